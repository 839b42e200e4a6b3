package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"image-compressor-go/internal/compressor"
)

// compressFlags holds the per-run flags shared by compress, batch and watch.
type compressFlags struct {
	quality      int
	lossless     bool
	progressive  bool
	keepMetadata bool
	resize       string
	resizeMode   string
	overwrite    bool
	pngLevel     int
	avifSpeed    int
}

func (f *compressFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.quality, "quality", 0, "encoder quality 1-100 (default depends on format)")
	flags.BoolVar(&f.lossless, "lossless", false, "lossless WebP/AVIF encoding")
	flags.BoolVar(&f.progressive, "progressive", false, "progressive JPEG (requires jpegtran)")
	flags.BoolVar(&f.keepMetadata, "keep-metadata", false, "copy EXIF/XMP metadata to the output (requires exiftool)")
	flags.StringVar(&f.resize, "resize", "", "resize to WIDTHxHEIGHT, e.g. 1920x1080")
	flags.StringVar(&f.resizeMode, "resize-mode", "fit", "resize mode: fit or exact")
	flags.BoolVar(&f.overwrite, "overwrite", false, "replace existing output files")
	flags.IntVar(&f.pngLevel, "png-level", 0, "PNG optimization level 1-6")
	flags.IntVar(&f.avifSpeed, "avif-speed", 0, "AVIF encoder speed 1-10 (slower is smaller)")
}

// apply overlays the flags the user actually set on base.
func (f *compressFlags) apply(cmd *cobra.Command, base compressor.CompressOptions) (compressor.CompressOptions, error) {
	opts := base
	changed := cmd.Flags().Changed

	if changed("quality") {
		opts.Quality = f.quality
	}
	if changed("lossless") {
		opts.Lossless = f.lossless
	}
	if changed("progressive") {
		opts.Progressive = f.progressive
	}
	if changed("keep-metadata") {
		opts.StripMetadata = !f.keepMetadata
	}
	if changed("overwrite") {
		opts.Overwrite = f.overwrite
	}
	if changed("png-level") {
		opts.PNGLevel = f.pngLevel
	}
	if changed("avif-speed") {
		opts.AVIFSpeed = f.avifSpeed
	}

	if f.resize != "" {
		width, height, err := parseResize(f.resize)
		if err != nil {
			return opts, err
		}
		mode, err := compressor.ParseResizeMode(f.resizeMode)
		if err != nil {
			return opts, err
		}
		r, err := compressor.NewResizeOptions(width, height, mode)
		if err != nil {
			return opts, err
		}
		opts.Resize = &r
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseResize parses a WIDTHxHEIGHT value.
func parseResize(value string) (int, int, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	w, h, ok := strings.Cut(normalized, "x")
	if !ok {
		return 0, 0, fmt.Errorf("resize must be in WIDTHxHEIGHT format (example: 1920x1080)")
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("resize width must be an integer")
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("resize height must be an integer")
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("resize width and height must be greater than zero")
	}
	return width, height, nil
}
