package compressor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/statistics"
)

// MetadataCopier carries metadata from the source file onto an encoded file.
type MetadataCopier interface {
	CopyMetadata(ctx context.Context, src, dst string) error
}

// DefaultCompressor is the default implementation of the Compressor interface.
// It processes one file at a time and never mutates its options.
type DefaultCompressor struct {
	log      *logrus.Logger
	decoder  *Decoder
	codecs   Codecs
	metadata MetadataCopier
	progress ProgressFunc
}

// Option customizes a DefaultCompressor.
type Option func(*DefaultCompressor)

// WithDecoder replaces the decoder.
func WithDecoder(d *Decoder) Option {
	return func(c *DefaultCompressor) { c.decoder = d }
}

// WithCodecs replaces the encoder set.
func WithCodecs(codecs Codecs) Option {
	return func(c *DefaultCompressor) { c.codecs = codecs }
}

// WithMetadataCopier sets the collaborator used when metadata is kept.
func WithMetadataCopier(m MetadataCopier) Option {
	return func(c *DefaultCompressor) { c.metadata = m }
}

// WithProgress registers a callback that receives every batch file outcome.
func WithProgress(fn ProgressFunc) Option {
	return func(c *DefaultCompressor) { c.progress = fn }
}

// NewDefaultCompressor creates a compressor. Without WithCodecs it uses the
// built-in PNG optimizer and looks up jpegtran on PATH.
func NewDefaultCompressor(log *logrus.Logger, opts ...Option) (*DefaultCompressor, error) {
	c := &DefaultCompressor{log: log, decoder: NewDecoder(true)}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Discard()
	}
	if c.codecs.JPEG == nil || c.codecs.PNG == nil || c.codecs.WebP == nil || c.codecs.AVIF == nil {
		defaults, err := NewCodecs(CodecConfig{PNGOptimizer: "builtin"})
		if err != nil {
			return nil, err
		}
		if c.codecs.JPEG == nil {
			c.codecs.JPEG = defaults.JPEG
		}
		if c.codecs.PNG == nil {
			c.codecs.PNG = defaults.PNG
		}
		if c.codecs.WebP == nil {
			c.codecs.WebP = defaults.WebP
		}
		if c.codecs.AVIF == nil {
			c.codecs.AVIF = defaults.AVIF
		}
	}
	return c, nil
}

// CompressFile compresses inputPath into outputPath. The output format comes
// from the output extension. Nothing is written until the whole output is in
// memory.
func (c *DefaultCompressor) CompressFile(ctx context.Context, inputPath, outputPath string, opts CompressOptions) (statistics.CompressionStats, error) {
	entry := logger.WithFileOperation(c.log, inputPath, "compress")

	if err := opts.Validate(); err != nil {
		return statistics.CompressionStats{}, err
	}

	info, err := os.Stat(inputPath)
	if err != nil || !info.Mode().IsRegular() {
		return statistics.CompressionStats{}, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
	}

	if _, err := os.Stat(outputPath); err == nil && !opts.Overwrite {
		return statistics.CompressionStats{}, fmt.Errorf("%w: %s", ErrOutputExists, outputPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return statistics.CompressionStats{}, fmt.Errorf("create output dir for %s: %w", outputPath, err)
	}

	ext := extensionOf(outputPath)
	if ext == "" {
		return statistics.CompressionStats{}, fmt.Errorf("%w: %s", ErrMissingExtension, outputPath)
	}
	format, err := ParseFormat(ext)
	if err != nil {
		return statistics.CompressionStats{}, err
	}
	settings, err := SettingsFor(format, opts)
	if err != nil {
		return statistics.CompressionStats{}, err
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return statistics.CompressionStats{}, fmt.Errorf("read %s: %w", inputPath, err)
	}

	out, fastPath, err := c.encode(ctx, raw, settings, opts)
	if err != nil {
		return statistics.CompressionStats{}, fmt.Errorf("%s: %w", inputPath, err)
	}

	tmpPath := outputPath + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return statistics.CompressionStats{}, fmt.Errorf("write %s: %w", tmpPath, err)
	}

	if !opts.StripMetadata && !fastPath && c.metadata != nil {
		if err := c.metadata.CopyMetadata(ctx, inputPath, tmpPath); err != nil {
			entry.WithError(err).Warn("Metadata not carried over")
		}
	}

	written, err := os.Stat(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return statistics.CompressionStats{}, fmt.Errorf("stat %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return statistics.CompressionStats{}, fmt.Errorf("rename %s: %w", outputPath, err)
	}

	stats := statistics.NewCompressionStats(info.Size(), written.Size())
	entry.WithFields(logrus.Fields{
		"output":     outputPath,
		"format":     format.String(),
		"original":   stats.OriginalBytes,
		"compressed": stats.CompressedBytes,
		"fast_path":  fastPath,
	}).Debug("File compressed")
	return stats, nil
}

// encode produces the output bytes. PNG targets without a resize whose source
// is already PNG skip decoding entirely; the second return reports that case.
func (c *DefaultCompressor) encode(ctx context.Context, raw []byte, settings EncodeSettings, opts CompressOptions) ([]byte, bool, error) {
	if s, ok := settings.(PNGSettings); ok && opts.Resize == nil {
		if src, _ := Sniff(raw); src == SourcePNG {
			out, err := c.codecs.OptimizePNG(ctx, raw, s)
			return out, true, err
		}
	}

	img, err := c.decoder.Prepare(raw, opts)
	if err != nil {
		return nil, false, err
	}
	out, err := c.codecs.Encode(ctx, img, settings)
	if err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, fmt.Errorf("%s %w: empty output", settings.Format(), ErrEncode)
	}
	return out, false, nil
}
