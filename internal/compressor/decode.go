package compressor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// SourceFormat is the encoding of an input file as detected from its bytes.
type SourceFormat string

const (
	SourceJPEG SourceFormat = "jpeg"
	SourcePNG  SourceFormat = "png"
	SourceGIF  SourceFormat = "gif"
	SourceWebP SourceFormat = "webp"
	SourceBMP  SourceFormat = "bmp"
	SourceTIFF SourceFormat = "tiff"
	SourceAVIF SourceFormat = "avif"
)

// Sniff guesses the encoding of data from its magic bytes.
func Sniff(data []byte) (SourceFormat, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return SourceJPEG, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return SourcePNG, true
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return SourceGIF, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return SourceWebP, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return SourceTIFF, true
	case bytes.HasPrefix(data, []byte("BM")):
		return SourceBMP, true
	case isAVIF(data):
		return SourceAVIF, true
	}
	return "", false
}

// isAVIF checks the ISO-BMFF ftyp box for an avif/avis brand.
func isAVIF(data []byte) bool {
	if len(data) < 16 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	size := int(binary.BigEndian.Uint32(data[:4]))
	if size < 16 || size > len(data) {
		size = len(data)
	}
	// major brand at 8, minor version at 12, compatible brands from 16
	for off := 8; off+4 <= size; off += 4 {
		if off == 12 {
			continue
		}
		switch string(data[off : off+4]) {
		case "avif", "avis":
			return true
		}
	}
	return false
}

type decodeFunc func(r io.Reader) (image.Image, error)

// Decoder turns raw file bytes into an image ready for encoding.
type Decoder struct {
	// AutoOrient rotates JPEG sources according to their EXIF orientation.
	AutoOrient bool
}

// NewDecoder returns a decoder.
func NewDecoder(autoOrient bool) *Decoder {
	return &Decoder{AutoOrient: autoOrient}
}

func (d *Decoder) decoderFor(format SourceFormat) decodeFunc {
	switch format {
	case SourceJPEG:
		return func(r io.Reader) (image.Image, error) {
			return imaging.Decode(r, imaging.AutoOrientation(d.AutoOrient))
		}
	case SourcePNG:
		return png.Decode
	case SourceGIF:
		return gif.Decode
	case SourceWebP:
		return webp.Decode
	case SourceBMP:
		return bmp.Decode
	case SourceTIFF:
		return tiff.Decode
	case SourceAVIF:
		return avif.Decode
	}
	return nil
}

// Decode decodes raw using the sniffed format, falling back to registry
// detection when sniffing fails.
func (d *Decoder) Decode(raw []byte) (image.Image, error) {
	decode := func(r io.Reader) (image.Image, error) {
		return imaging.Decode(r, imaging.AutoOrientation(d.AutoOrient))
	}
	if format, ok := Sniff(raw); ok {
		decode = d.decoderFor(format)
	}

	img, err := decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// Prepare decodes raw and applies the resize from opts, if any.
func (d *Decoder) Prepare(raw []byte, opts CompressOptions) (image.Image, error) {
	img, err := d.Decode(raw)
	if err != nil {
		return nil, err
	}
	return Resize(img, opts.Resize), nil
}
