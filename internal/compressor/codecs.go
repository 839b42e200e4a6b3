package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"

	"image-compressor-go/internal/external"
	"image-compressor-go/internal/pngopt"
)

// ErrProgressiveUnavailable is returned when a progressive JPEG is requested
// but jpegtran cannot be found.
var ErrProgressiveUnavailable = errors.New("progressive JPEG requires jpegtran")

// CodecConfig selects the concrete encoders used by NewCodecs.
type CodecConfig struct {
	PNGOptimizer string // auto, builtin or oxipng
	OxipngPath   string
	JpegtranPath string
}

// NewCodecs builds the production encoder set.
func NewCodecs(cfg CodecConfig) (Codecs, error) {
	png, err := pngopt.New(cfg.PNGOptimizer, cfg.OxipngPath)
	if err != nil {
		return Codecs{}, err
	}
	jpeg := &ImagingJPEG{}
	if tool, err := external.Lookup("jpegtran", cfg.JpegtranPath); err == nil {
		jpeg.Jpegtran = tool
	}
	return Codecs{
		JPEG: jpeg,
		PNG:  png,
		WebP: ChaiWebP{},
		AVIF: Gen2brainAVIF{},
	}, nil
}

// ImagingJPEG encodes baseline JPEG with imaging and, when progressive scans
// are requested, rewrites the stream losslessly through jpegtran.
type ImagingJPEG struct {
	Jpegtran *external.Tool
}

// EncodeJPEG implements JPEGEncoder.
func (e *ImagingJPEG) EncodeJPEG(ctx context.Context, img image.Image, s JPEGSettings) ([]byte, error) {
	if s.Progressive && e.Jpegtran == nil {
		return nil, ErrProgressiveUnavailable
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.Quality)); err != nil {
		return nil, err
	}
	if !s.Progressive {
		return buf.Bytes(), nil
	}
	return e.Jpegtran.Pipe(ctx, buf.Bytes(), "-copy", "none", "-optimize", "-progressive")
}

// ChaiWebP encodes WebP through libwebp.
type ChaiWebP struct{}

// EncodeWebP implements WebPEncoder.
func (ChaiWebP) EncodeWebP(img image.Image, s WebPSettings) ([]byte, error) {
	opts := &webp.Options{Lossless: s.Lossless, Exact: s.Lossless}
	if !s.Lossless {
		opts.Quality = float32(s.Quality)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, straightRGBA(img), opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// straightRGBA exposes non-premultiplied pixels under the *image.RGBA type.
// The webp package redraws every other image type into premultiplied RGBA
// before handing the bytes to libwebp, which reads them as straight alpha.
func straightRGBA(img image.Image) *image.RGBA {
	n, ok := img.(*image.NRGBA)
	if !ok {
		n = imaging.Clone(img)
	}
	return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
}

// Gen2brainAVIF encodes AVIF with the libaom based encoder.
type Gen2brainAVIF struct{}

// EncodeAVIF implements AVIFEncoder.
func (Gen2brainAVIF) EncodeAVIF(img image.Image, s AVIFSettings) ([]byte, error) {
	subsample := image.YCbCrSubsampleRatio420
	if s.Quality >= 100 {
		subsample = image.YCbCrSubsampleRatio444
	}
	var buf bytes.Buffer
	err := avif.Encode(&buf, img, avif.Options{
		Quality:           s.Quality,
		QualityAlpha:      s.AlphaQuality,
		Speed:             s.Speed,
		ChromaSubsampling: subsample,
	})
	if err != nil {
		return nil, fmt.Errorf("avif: %w", err)
	}
	return buf.Bytes(), nil
}
