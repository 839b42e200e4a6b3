// Package pngopt optimizes PNG streams losslessly, either in process or by
// delegating to the oxipng binary.
package pngopt

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"

	"image-compressor-go/internal/external"
)

const (
	// DefaultLevel is the optimization preset used when none is given.
	DefaultLevel = 2
	MinLevel     = 1
	MaxLevel     = 6
)

// Optimizer modes accepted by New.
const (
	ModeAuto    = "auto"
	ModeBuiltin = "builtin"
	ModeOxipng  = "oxipng"
)

// Options controls a single optimization run.
type Options struct {
	Level         int  // 1-6, 0 selects DefaultLevel
	StripMetadata bool // strip chunks that do not affect rendering
}

func (o Options) resolveLevel() (int, error) {
	if o.Level == 0 {
		return DefaultLevel, nil
	}
	if o.Level < MinLevel || o.Level > MaxLevel {
		return 0, fmt.Errorf("png level must be between %d and %d, got %d", MinLevel, MaxLevel, o.Level)
	}
	return o.Level, nil
}

// Optimizer rewrites PNG bytes into an equivalent, ideally smaller, PNG.
type Optimizer interface {
	Name() string
	Optimize(ctx context.Context, data []byte, opts Options) ([]byte, error)
}

// New returns the optimizer for mode. In auto mode oxipng is used when it is
// installed, otherwise the built-in optimizer.
func New(mode, oxipngPath string) (Optimizer, error) {
	switch mode {
	case ModeBuiltin:
		return Builtin{}, nil
	case ModeOxipng:
		return NewOxipng(oxipngPath)
	case ModeAuto, "":
		if o, err := NewOxipng(oxipngPath); err == nil {
			return o, nil
		}
		return Builtin{}, nil
	default:
		return nil, fmt.Errorf("unknown png optimizer mode: %s (valid: auto, builtin, oxipng)", mode)
	}
}

// Builtin is a pure Go optimizer. It tries lossless bit-depth, palette and
// grayscale reductions and keeps whichever stream is smallest, never growing
// the input.
type Builtin struct{}

// Name returns the optimizer name.
func (Builtin) Name() string { return "builtin" }

// Optimize returns the smallest lossless rewrite of data.
func (Builtin) Optimize(_ context.Context, data []byte, opts Options) ([]byte, error) {
	level, err := opts.resolveLevel()
	if err != nil {
		return nil, err
	}

	chunks, err := readChunks(data)
	if err != nil {
		return nil, err
	}

	best := writeChunks(filterChunks(chunks, opts.StripMetadata))
	if isAnimated(chunks) {
		// Re-encoding would keep only the default image.
		return best, nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	carried := carriedChunks(chunks, opts.StripMetadata)
	enc := png.Encoder{CompressionLevel: compressionFor(level)}
	for _, candidate := range candidates(img, level, hasChunk(chunks, "iCCP")) {
		out, err := encodeWithChunks(&enc, candidate, carried)
		if err != nil {
			return nil, err
		}
		if len(out) < len(best) {
			best = out
		}
	}
	return best, nil
}

func compressionFor(level int) png.CompressionLevel {
	switch {
	case level <= 1:
		return png.BestSpeed
	case level <= 3:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func encodeWithChunks(enc *png.Encoder, img image.Image, carried []chunk) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if len(carried) == 0 {
		return buf.Bytes(), nil
	}
	encoded, err := readChunks(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return writeChunks(spliceAfterIHDR(encoded, carried)), nil
}

// Oxipng delegates to the oxipng binary.
type Oxipng struct {
	tool *external.Tool
}

// NewOxipng locates oxipng, preferring path when set.
func NewOxipng(path string) (*Oxipng, error) {
	tool, err := external.Lookup("oxipng", path)
	if err != nil {
		return nil, err
	}
	return &Oxipng{tool: tool}, nil
}

// Name returns the optimizer name.
func (o *Oxipng) Name() string { return "oxipng" }

// Optimize pipes data through oxipng.
func (o *Oxipng) Optimize(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	level, err := opts.resolveLevel()
	if err != nil {
		return nil, err
	}
	if !IsPNG(data) {
		return nil, ErrNotPNG
	}

	args := []string{"-o", strconv.Itoa(level)}
	if opts.StripMetadata {
		args = append(args, "--strip", "safe")
	}
	args = append(args, "--stdout", "-")

	out, err := o.tool.Pipe(ctx, data, args...)
	if err != nil {
		return nil, err
	}
	if !IsPNG(out) {
		return nil, fmt.Errorf("oxipng produced invalid output: %w", ErrNotPNG)
	}
	return out, nil
}
