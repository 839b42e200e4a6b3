package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"image-compressor-go/internal/pngopt"
)

// EncodeSettings is the per-format option set handed to an encoder. Each
// variant carries only the options its format understands.
type EncodeSettings interface {
	Format() OutputFormat
}

// JPEGSettings configures the JPEG encoder.
type JPEGSettings struct {
	Quality     int
	Progressive bool
}

// PNGSettings configures the PNG optimizer.
type PNGSettings struct {
	Level         int
	StripMetadata bool
}

// WebPSettings configures the WebP encoder. Quality is ignored when Lossless.
type WebPSettings struct {
	Lossless bool
	Quality  int
}

// AVIFSettings configures the AVIF encoder.
type AVIFSettings struct {
	Quality      int
	AlphaQuality int
	Speed        int
}

func (JPEGSettings) Format() OutputFormat { return FormatJPEG }
func (PNGSettings) Format() OutputFormat  { return FormatPNG }
func (WebPSettings) Format() OutputFormat { return FormatWebP }
func (AVIFSettings) Format() OutputFormat { return FormatAVIF }

// SettingsFor maps generic options onto the settings for format, applying the
// format defaults.
func SettingsFor(format OutputFormat, opts CompressOptions) (EncodeSettings, error) {
	switch format {
	case FormatJPEG:
		return JPEGSettings{
			Quality:     orDefault(opts.Quality, DefaultJPEGQuality),
			Progressive: opts.Progressive,
		}, nil
	case FormatPNG:
		return PNGSettings{
			Level:         orDefault(opts.PNGLevel, DefaultPNGLevel),
			StripMetadata: opts.StripMetadata,
		}, nil
	case FormatWebP:
		return WebPSettings{
			Lossless: opts.Lossless,
			Quality:  orDefault(opts.Quality, DefaultWebPQuality),
		}, nil
	case FormatAVIF:
		quality := orDefault(opts.Quality, DefaultAVIFQuality)
		if opts.Lossless {
			quality = 100
		}
		return AVIFSettings{
			Quality:      quality,
			AlphaQuality: quality,
			Speed:        orDefault(opts.AVIFSpeed, DefaultAVIFSpeed),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// JPEGEncoder encodes opaque RGB images to JPEG.
type JPEGEncoder interface {
	EncodeJPEG(ctx context.Context, img image.Image, s JPEGSettings) ([]byte, error)
}

// WebPEncoder encodes RGBA images to WebP.
type WebPEncoder interface {
	EncodeWebP(img image.Image, s WebPSettings) ([]byte, error)
}

// AVIFEncoder encodes RGBA images to AVIF.
type AVIFEncoder interface {
	EncodeAVIF(img image.Image, s AVIFSettings) ([]byte, error)
}

// Codecs bundles the encoder collaborators used by the pipeline.
type Codecs struct {
	JPEG JPEGEncoder
	PNG  pngopt.Optimizer
	WebP WebPEncoder
	AVIF AVIFEncoder
}

// Encode dispatches img to the encoder selected by settings.
func (c Codecs) Encode(ctx context.Context, img image.Image, settings EncodeSettings) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch s := settings.(type) {
	case JPEGSettings:
		out, err = c.JPEG.EncodeJPEG(ctx, flattenRGB(img), s)
	case PNGSettings:
		var baseline bytes.Buffer
		if err = imaging.Encode(&baseline, img, imaging.PNG); err == nil {
			out, err = c.PNG.Optimize(ctx, baseline.Bytes(), pngopt.Options{Level: s.Level, StripMetadata: s.StripMetadata})
		}
	case WebPSettings:
		out, err = c.WebP.EncodeWebP(flattenRGBA(img), s)
	case AVIFSettings:
		out, err = c.AVIF.EncodeAVIF(flattenRGBA(img), s)
	default:
		return nil, fmt.Errorf("%w: no encoder for %T", ErrUnsupportedFormat, settings)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %w: %w", settings.Format(), ErrEncode, err)
	}
	return out, nil
}

// OptimizePNG runs already PNG-encoded bytes through the optimizer without a
// decode round trip.
func (c Codecs) OptimizePNG(ctx context.Context, raw []byte, s PNGSettings) ([]byte, error) {
	out, err := c.PNG.Optimize(ctx, raw, pngopt.Options{Level: s.Level, StripMetadata: s.StripMetadata})
	if err != nil {
		return nil, fmt.Errorf("%s %w: %w", FormatPNG, ErrEncode, err)
	}
	return out, nil
}

// flattenRGB returns an opaque copy of img. Alpha is dropped, not composited.
func flattenRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// flattenRGBA returns a non-premultiplied 8-bit RGBA copy of img.
func flattenRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}
