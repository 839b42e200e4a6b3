package compressor

import (
	"context"
	"errors"
	"time"

	"image-compressor-go/internal/statistics"
)

var (
	ErrEmptyExtension    = errors.New("format/extension cannot be empty")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrInvalidResize     = errors.New("invalid resize options")
	ErrInvalidOptions    = errors.New("invalid compression options")
	ErrInputNotFound     = errors.New("input file not found")
	ErrOutputExists      = errors.New("output file exists (use --overwrite to replace)")
	ErrMissingExtension  = errors.New("output path must include a file extension")
	ErrInputDirNotFound  = errors.New("input directory not found")
	ErrDecode            = errors.New("failed to decode image")
	ErrEncode            = errors.New("encoding failed")
)

// Actions reported for each file of a batch.
const (
	ActionCompressed = "compressed"
	ActionSkipped    = "skipped"
	ActionFailed     = "error"
)

// CompressionResult describes the outcome of one file in a batch run.
type CompressionResult struct {
	InputPath  string
	OutputPath string
	Action     string
	Stage      string
	Stats      statistics.CompressionStats
	StartedAt  time.Time
	FinishedAt time.Time
	Error      error
}

// ProgressFunc receives each file outcome as soon as it is known.
type ProgressFunc func(CompressionResult)

// Compressor defines the interface for image compression.
type Compressor interface {
	// CompressFile compresses one image, deriving the output format from the
	// output path's extension.
	CompressFile(ctx context.Context, inputPath, outputPath string, opts CompressOptions) (statistics.CompressionStats, error)

	// CompressDirectory compresses every file under inputDir into outputDir,
	// rewriting extensions to targetExt. Per-file failures are counted in the
	// report; only directory-level problems are returned as errors.
	CompressDirectory(ctx context.Context, inputDir, outputDir, targetExt string, opts CompressOptions, recursive bool) (*statistics.BatchReport, error)
}
