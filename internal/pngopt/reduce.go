package pngopt

import (
	"image"
	"image/color"
)

// reduceBitDepth returns an 8-bit copy of a 16-bit image when every sample has
// equal high and low bytes, i.e. when no precision is lost.
func reduceBitDepth(img image.Image) (image.Image, bool) {
	switch src := img.(type) {
	case *image.Gray16:
		dst := image.NewGray(src.Rect)
		if !narrow16(src.Pix, src.Stride, dst.Pix, dst.Stride, src.Rect.Dx(), src.Rect.Dy()) {
			return nil, false
		}
		return dst, true
	case *image.RGBA64:
		dst := image.NewRGBA(src.Rect)
		if !narrow16(src.Pix, src.Stride, dst.Pix, dst.Stride, 4*src.Rect.Dx(), src.Rect.Dy()) {
			return nil, false
		}
		return dst, true
	case *image.NRGBA64:
		dst := image.NewNRGBA(src.Rect)
		if !narrow16(src.Pix, src.Stride, dst.Pix, dst.Stride, 4*src.Rect.Dx(), src.Rect.Dy()) {
			return nil, false
		}
		return dst, true
	}
	return nil, false
}

func narrow16(src []byte, srcStride int, dst []byte, dstStride int, samples, rows int) bool {
	for y := 0; y < rows; y++ {
		s := src[y*srcStride:]
		d := dst[y*dstStride:]
		for i := 0; i < samples; i++ {
			hi, lo := s[2*i], s[2*i+1]
			if hi != lo {
				return false
			}
			d[i] = hi
		}
	}
	return true
}

func isWide(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// toPaletted converts an 8-bit image with at most 256 distinct colors to a
// paletted image holding exactly the same pixels.
func toPaletted(img image.Image) (*image.Paletted, bool) {
	if _, ok := img.(*image.Paletted); ok || isWide(img) {
		return nil, false
	}

	b := img.Bounds()
	dst := image.NewPaletted(b, nil)
	index := make(map[color.NRGBA]uint8, 256)
	palette := make(color.Palette, 0, 256)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i, ok := index[c]
			if !ok {
				if len(palette) == 256 {
					return nil, false
				}
				i = uint8(len(palette))
				index[c] = i
				palette = append(palette, c)
			}
			dst.Pix[dst.PixOffset(x, y)] = i
		}
	}
	dst.Palette = palette
	return dst, true
}

// toGray converts an opaque image whose pixels are all neutral to 8-bit gray.
func toGray(img image.Image) (*image.Gray, bool) {
	switch img.(type) {
	case *image.Gray, *image.Paletted:
		return nil, false
	}
	if isWide(img) {
		return nil, false
	}

	b := img.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A != 0xff || c.R != c.G || c.G != c.B {
				return nil, false
			}
			dst.Pix[dst.PixOffset(x, y)] = c.R
		}
	}
	return dst, true
}

// candidates lists lossless representations of img worth encoding at level.
func candidates(img image.Image, level int, hasICC bool) []image.Image {
	list := []image.Image{img}
	if level < 2 {
		return list
	}

	base := img
	if narrowed, ok := reduceBitDepth(img); ok {
		base = narrowed
		list = append(list, narrowed)
	}
	if p, ok := toPaletted(base); ok {
		list = append(list, p)
	}
	// An embedded ICC profile describes RGB data; keep the color type.
	if level >= 3 && !hasICC {
		if g, ok := toGray(base); ok {
			list = append(list, g)
		}
	}
	return list
}
