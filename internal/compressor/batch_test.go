package compressor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"golang.org/x/image/webp"
)

func TestCompressDirectoryMixed(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpeg"} {
		writeJPEG(t, filepath.Join(in, name), gradient(20, 10))
	}
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(in, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeJPEG(t, filepath.Join(in, "nested", "d.jpg"), gradient(4, 4))

	var seen []CompressionResult
	c := newTestCompressor(t, WithProgress(func(r CompressionResult) { seen = append(seen, r) }))

	report, err := c.CompressDirectory(context.Background(), in, out, "webp", DefaultOptions(), false)
	if err != nil {
		t.Fatalf("CompressDirectory: %v", err)
	}
	compressed, skipped, failed := report.Counts()
	if compressed != 3 || failed != 1 || skipped != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/0/1", compressed, skipped, failed)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
	for _, name := range []string{"a.webp", "b.webp", "c.webp"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "nested")); !os.IsNotExist(err) {
		t.Error("non-recursive run descended into nested/")
	}
	if len(seen) != 4 {
		t.Errorf("progress callbacks = %d, want 4", len(seen))
	}
	if report.Errors[0].Operation != StageCompress {
		t.Errorf("failure stage = %q", report.Errors[0].Operation)
	}
}

func TestCompressDirectoryRealWebP(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		writeJPEG(t, filepath.Join(in, name), gradient(24, 16))
	}
	if err := os.WriteFile(filepath.Join(in, "garbage.bin"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := NewDefaultCompressor(quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	report, err := c.CompressDirectory(context.Background(), in, out, "webp", DefaultOptions(), false)
	if err != nil {
		t.Fatalf("CompressDirectory: %v", err)
	}
	if compressed, skipped, failed := report.Counts(); compressed != 3 || skipped != 0 || failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/0/1", compressed, skipped, failed)
	}
	for _, name := range []string{"a.webp", "b.webp", "c.webp"} {
		f, err := os.Open(filepath.Join(out, name))
		if err != nil {
			t.Errorf("%s missing: %v", name, err)
			continue
		}
		cfg, err := webp.DecodeConfig(f)
		f.Close()
		if err != nil || cfg.Width != 24 || cfg.Height != 16 {
			t.Errorf("%s: config = %+v, err = %v", name, cfg, err)
		}
	}
}

func TestCompressDirectoryRecursive(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeJPEG(t, filepath.Join(in, "top.jpg"), gradient(8, 8))
	if err := os.MkdirAll(filepath.Join(in, "x", "y"), 0755); err != nil {
		t.Fatal(err)
	}
	writeJPEG(t, filepath.Join(in, "x", "y", "deep.JPG"), gradient(8, 8))

	c := newTestCompressor(t)
	report, err := c.CompressDirectory(context.Background(), in, out, ".PNG", DefaultOptions(), true)
	if err != nil {
		t.Fatalf("CompressDirectory: %v", err)
	}
	if compressed, _, _ := report.Counts(); compressed != 2 {
		t.Errorf("compressed = %d, want 2", compressed)
	}
	if _, err := os.Stat(filepath.Join(out, "x", "y", "deep.png")); err != nil {
		t.Errorf("nested output missing: %v", err)
	}
	if report.TotalOriginalBytes <= 0 || report.TotalCompressedBytes <= 0 {
		t.Errorf("totals not accumulated: %d / %d", report.TotalOriginalBytes, report.TotalCompressedBytes)
	}
}

func TestCompressDirectorySkipsExisting(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeJPEG(t, filepath.Join(in, "a.jpg"), gradient(8, 8))
	writeJPEG(t, filepath.Join(in, "b.jpg"), gradient(8, 8))
	existing := filepath.Join(out, "a.webp")
	if err := os.WriteFile(existing, []byte("untouched"), 0644); err != nil {
		t.Fatal(err)
	}

	c := newTestCompressor(t)
	report, err := c.CompressDirectory(context.Background(), in, out, "webp", DefaultOptions(), false)
	if err != nil {
		t.Fatal(err)
	}
	compressed, skipped, failed := report.Counts()
	if compressed != 1 || skipped != 1 || failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/1/0", compressed, skipped, failed)
	}
	data, _ := os.ReadFile(existing)
	if !bytes.Equal(data, []byte("untouched")) {
		t.Errorf("skipped destination changed: %q", data)
	}

	opts := DefaultOptions()
	opts.Overwrite = true
	report, err = c.CompressDirectory(context.Background(), in, out, "webp", opts, false)
	if err != nil {
		t.Fatal(err)
	}
	if compressed, skipped, _ := report.Counts(); compressed != 2 || skipped != 0 {
		t.Errorf("overwrite counts = %d compressed, %d skipped", compressed, skipped)
	}
}

func TestCompressDirectoryPreconditions(t *testing.T) {
	in := t.TempDir()
	writeJPEG(t, filepath.Join(in, "a.jpg"), gradient(4, 4))
	file := filepath.Join(in, "a.jpg")
	out := filepath.Join(t.TempDir(), "never")
	c := newTestCompressor(t)
	ctx := context.Background()

	if _, err := c.CompressDirectory(ctx, filepath.Join(in, "missing"), out, "webp", DefaultOptions(), false); !errors.Is(err, ErrInputDirNotFound) {
		t.Errorf("missing dir err = %v", err)
	}
	if _, err := c.CompressDirectory(ctx, file, out, "webp", DefaultOptions(), false); !errors.Is(err, ErrInputDirNotFound) {
		t.Errorf("file as dir err = %v", err)
	}
	if _, err := c.CompressDirectory(ctx, in, out, "gif", DefaultOptions(), false); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("bad format err = %v", err)
	}
	if _, err := c.CompressDirectory(ctx, in, out, " . ", DefaultOptions(), false); !errors.Is(err, ErrEmptyExtension) {
		t.Errorf("empty format err = %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output dir created despite a precondition failure")
	}
}

func TestCompressDirectoryCancelled(t *testing.T) {
	in := t.TempDir()
	writeJPEG(t, filepath.Join(in, "a.jpg"), gradient(4, 4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCompressor(t)
	report, err := c.CompressDirectory(ctx, in, t.TempDir(), "webp", DefaultOptions(), false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if report == nil {
		t.Fatal("no partial report")
	}
	if compressed, _, _ := report.Counts(); compressed != 0 {
		t.Errorf("compressed = %d after cancellation", compressed)
	}
}

func TestMapOutputPath(t *testing.T) {
	in := filepath.Join("src", "photos")
	out := filepath.Join("dst")

	got, err := MapOutputPath(in, out, filepath.Join(in, "2024", "a.JPG"), "webp")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(out, "2024", "a.webp"); got != want {
		t.Errorf("MapOutputPath = %q, want %q", got, want)
	}
	if _, err := MapOutputPath(in, out, filepath.Join("elsewhere", "b.jpg"), "webp"); err == nil {
		t.Error("path outside the input dir was mapped")
	}
}

func TestCollectInputFilesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.jpg", "a.jpg", "b.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := collectInputFiles(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if !sort.StringsAreSorted(files) || len(files) != 3 {
		t.Errorf("files = %v", files)
	}
}
