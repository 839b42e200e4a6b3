package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"image-compressor-go/internal/pngopt"
)

var errCodec = errors.New("codec exploded")

type failingJPEG struct{}

func (failingJPEG) EncodeJPEG(context.Context, image.Image, JPEGSettings) ([]byte, error) {
	return nil, errCodec
}

type failingWebP struct{}

func (failingWebP) EncodeWebP(image.Image, WebPSettings) ([]byte, error) { return nil, errCodec }

type failingAVIF struct{}

func (failingAVIF) EncodeAVIF(image.Image, AVIFSettings) ([]byte, error) { return nil, errCodec }

type failingPNG struct{}

func (failingPNG) Name() string { return "failing" }
func (failingPNG) Optimize(context.Context, []byte, pngopt.Options) ([]byte, error) {
	return nil, errCodec
}

// recordingWebP captures what it was asked to encode.
type recordingWebP struct {
	got  image.Image
	opts WebPSettings
}

func (r *recordingWebP) EncodeWebP(img image.Image, s WebPSettings) ([]byte, error) {
	r.got, r.opts = img, s
	return []byte("RIFF....WEBP"), nil
}

func TestSettingsForDefaults(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		opts   CompressOptions
		want   EncodeSettings
	}{
		{"jpeg default", FormatJPEG, CompressOptions{}, JPEGSettings{Quality: 85}},
		{"jpeg progressive", FormatJPEG, CompressOptions{Quality: 70, Progressive: true}, JPEGSettings{Quality: 70, Progressive: true}},
		{"png default", FormatPNG, CompressOptions{StripMetadata: true}, PNGSettings{Level: 2, StripMetadata: true}},
		{"png level", FormatPNG, CompressOptions{PNGLevel: 5}, PNGSettings{Level: 5}},
		{"webp default", FormatWebP, CompressOptions{}, WebPSettings{Quality: 85}},
		{"webp lossless", FormatWebP, CompressOptions{Lossless: true}, WebPSettings{Lossless: true, Quality: 85}},
		{"avif default", FormatAVIF, CompressOptions{}, AVIFSettings{Quality: 80, AlphaQuality: 80, Speed: 4}},
		{"avif lossless", FormatAVIF, CompressOptions{Lossless: true, Quality: 40}, AVIFSettings{Quality: 100, AlphaQuality: 100, Speed: 4}},
		{"avif tuned", FormatAVIF, CompressOptions{Quality: 60, AVIFSpeed: 9}, AVIFSettings{Quality: 60, AlphaQuality: 60, Speed: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SettingsFor(tt.format, tt.opts)
			if err != nil {
				t.Fatalf("SettingsFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("SettingsFor = %#v, want %#v", got, tt.want)
			}
			if got.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", got.Format(), tt.format)
			}
		})
	}
}

func TestSettingsForUnknown(t *testing.T) {
	if _, err := SettingsFor(FormatUnknown, CompressOptions{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestEncodeWrapsCodecErrors(t *testing.T) {
	codecs := Codecs{JPEG: failingJPEG{}, PNG: failingPNG{}, WebP: failingWebP{}, AVIF: failingAVIF{}}
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	for _, s := range []EncodeSettings{
		JPEGSettings{Quality: 80},
		PNGSettings{Level: 2},
		WebPSettings{Quality: 80},
		AVIFSettings{Quality: 80, AlphaQuality: 80, Speed: 4},
	} {
		_, err := codecs.Encode(context.Background(), img, s)
		if !errors.Is(err, ErrEncode) || !errors.Is(err, errCodec) {
			t.Errorf("%v: err = %v, want ErrEncode wrapping the codec error", s.Format(), err)
		}
	}
}

func TestEncodeWebPGetsRGBA(t *testing.T) {
	rec := &recordingWebP{}
	codecs := Codecs{WebP: rec}
	src := image.NewGray(image.Rect(0, 0, 3, 2))

	if _, err := codecs.Encode(context.Background(), src, WebPSettings{Lossless: true}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, ok := rec.got.(*image.NRGBA); !ok {
		t.Errorf("encoder got %T, want *image.NRGBA", rec.got)
	}
	if !rec.opts.Lossless {
		t.Error("lossless flag not passed through")
	}
}

func TestFlattenRGBDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 0})
	src.SetNRGBA(1, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 128})

	out := flattenRGB(src)
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0xff {
			t.Fatalf("alpha at %d = %d, want 255", i, out.Pix[i])
		}
	}
	if c := out.NRGBAAt(0, 0); c.R != 200 {
		t.Errorf("color channel changed: %v", c)
	}
	if src.NRGBAAt(0, 0).A != 0 {
		t.Error("flattenRGB mutated its input")
	}
}

func TestImagingJPEGProgressiveWithoutJpegtran(t *testing.T) {
	enc := &ImagingJPEG{}
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	if _, err := enc.EncodeJPEG(context.Background(), img, JPEGSettings{Quality: 80, Progressive: true}); !errors.Is(err, ErrProgressiveUnavailable) {
		t.Errorf("err = %v, want ErrProgressiveUnavailable", err)
	}

	out, err := enc.EncodeJPEG(context.Background(), img, JPEGSettings{Quality: 80})
	if err != nil {
		t.Fatalf("baseline encode: %v", err)
	}
	if f, _ := Sniff(out); f != SourceJPEG {
		t.Errorf("output sniffed as %q", f)
	}
}

func TestEncodePNGThroughOptimizer(t *testing.T) {
	codecs := Codecs{PNG: pngopt.Builtin{}}
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}

	out, err := codecs.Encode(context.Background(), img, PNGSettings{Level: 3, StripMetadata: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded.Bounds().Dx() != 16 || decoded.Bounds().Dy() != 16 {
		t.Errorf("bounds = %v", decoded.Bounds())
	}
}
