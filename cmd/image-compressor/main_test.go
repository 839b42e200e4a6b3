package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/statistics"
)

func TestParseResize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"1920x1080", 1920, 1080, false},
		{" 640X480 ", 640, 480, false},
		{"1920", 0, 0, true},
		{"axb", 0, 0, true},
		{"100x", 0, 0, true},
		{"0x100", 0, 0, true},
		{"100x-5", 0, 0, true},
	}
	for _, tt := range tests {
		w, h, err := parseResize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseResize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if w != tt.w || h != tt.h {
			t.Errorf("parseResize(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func newFlagCommand(t *testing.T, args ...string) (*cobra.Command, *compressFlags) {
	t.Helper()
	f := &compressFlags{}
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd, f
}

func TestCompressFlagsApply(t *testing.T) {
	base := compressor.DefaultOptions()
	base.Quality = 70
	base.PNGLevel = 3

	cmd, f := newFlagCommand(t,
		"--quality", "55",
		"--keep-metadata",
		"--overwrite",
		"--resize", "800x600",
		"--resize-mode", "exact",
	)
	opts, err := f.apply(cmd, base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if opts.Quality != 55 || opts.StripMetadata || !opts.Overwrite {
		t.Errorf("opts = %+v", opts)
	}
	if opts.PNGLevel != 3 {
		t.Errorf("unset flag overrode config: png level = %d", opts.PNGLevel)
	}
	if opts.Resize == nil || opts.Resize.String() != "800x600 (exact)" {
		t.Errorf("resize = %v", opts.Resize)
	}
	if base.Resize != nil || base.Quality != 70 {
		t.Error("base options modified")
	}
}

func TestCompressFlagsDefaultsKeepBase(t *testing.T) {
	cmd, f := newFlagCommand(t)
	base := compressor.DefaultOptions()
	opts, err := f.apply(cmd, base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if opts != base {
		t.Errorf("opts = %+v, want %+v", opts, base)
	}
}

func TestCompressFlagsRejectInvalid(t *testing.T) {
	tests := [][]string{
		{"--quality", "101"},
		{"--png-level", "9"},
		{"--avif-speed", "11"},
		{"--resize", "big"},
		{"--resize", "10x10", "--resize-mode", "stretch"},
	}
	for _, args := range tests {
		cmd, f := newFlagCommand(t, args...)
		if _, err := f.apply(cmd, compressor.DefaultOptions()); err == nil {
			t.Errorf("apply(%v) accepted invalid flags", args)
		}
	}
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		res  compressor.CompressionResult
		want string
	}{
		{
			compressor.CompressionResult{
				InputPath:  "photos/a.png",
				OutputPath: "out/a.webp",
				Action:     compressor.ActionCompressed,
				Stats:      statistics.NewCompressionStats(2_000_000, 500_000),
			},
			"compressed a.png → a.webp (2.0 MB → 500 KB, saved 75.0%)\n",
		},
		{
			compressor.CompressionResult{InputPath: "photos/b.png", Action: compressor.ActionSkipped},
			"skipped photos/b.png (output exists)\n",
		},
		{
			compressor.CompressionResult{InputPath: "photos/c.txt", Action: compressor.ActionFailed, Error: errors.New("decode failed")},
			"failed photos/c.txt: decode failed\n",
		},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		printResult(&buf, tt.res)
		if buf.String() != tt.want {
			t.Errorf("printResult = %q, want %q", buf.String(), tt.want)
		}
	}
}
