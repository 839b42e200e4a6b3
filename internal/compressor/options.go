package compressor

import (
	"fmt"

	"image-compressor-go/internal/pngopt"
)

// Format defaults applied when CompressOptions leaves a value at zero.
const (
	DefaultJPEGQuality = 85
	DefaultWebPQuality = 85
	DefaultAVIFQuality = 80
	DefaultAVIFSpeed   = 4
	DefaultPNGLevel    = pngopt.DefaultLevel
)

// CompressOptions configures one pipeline run. Zero numeric fields select the
// format default. The pipeline never modifies the options it is given.
type CompressOptions struct {
	Overwrite     bool
	Quality       int // 1-100
	Lossless      bool
	Progressive   bool
	StripMetadata bool
	Resize        *ResizeOptions
	PNGLevel      int // 1-6
	AVIFSpeed     int // 1-10
}

// DefaultOptions returns the options used when nothing is configured:
// no overwrite, metadata stripped, format default quality.
func DefaultOptions() CompressOptions {
	return CompressOptions{StripMetadata: true}
}

// Validate rejects out of range values before any file is read.
func (o CompressOptions) Validate() error {
	if o.Quality != 0 && (o.Quality < 1 || o.Quality > 100) {
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidOptions, o.Quality)
	}
	if o.PNGLevel != 0 && (o.PNGLevel < pngopt.MinLevel || o.PNGLevel > pngopt.MaxLevel) {
		return fmt.Errorf("%w: png level must be between %d and %d, got %d",
			ErrInvalidOptions, pngopt.MinLevel, pngopt.MaxLevel, o.PNGLevel)
	}
	if o.AVIFSpeed != 0 && (o.AVIFSpeed < 1 || o.AVIFSpeed > 10) {
		return fmt.Errorf("%w: avif speed must be between 1 and 10, got %d", ErrInvalidOptions, o.AVIFSpeed)
	}
	if o.Resize != nil {
		if err := o.Resize.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
