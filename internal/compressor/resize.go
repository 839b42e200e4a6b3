package compressor

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// ResizeMode selects how target dimensions are applied.
type ResizeMode int

const (
	// ResizeFit scales the image to fit inside the bounds, keeping aspect ratio.
	ResizeFit ResizeMode = iota
	// ResizeExact forces both dimensions, distorting the aspect ratio if needed.
	ResizeExact
)

// String returns the flag value for the mode.
func (m ResizeMode) String() string {
	if m == ResizeExact {
		return "exact"
	}
	return "fit"
}

// ParseResizeMode parses "fit" or "exact".
func ParseResizeMode(s string) (ResizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fit", "":
		return ResizeFit, nil
	case "exact":
		return ResizeExact, nil
	default:
		return ResizeFit, fmt.Errorf("%w: unknown resize mode %q (valid: fit, exact)", ErrInvalidResize, s)
	}
}

// Bound is an optional pixel limit on one axis. The zero value is unbounded.
type Bound struct {
	Pixels int
	Set    bool
}

// Limit returns a bound of px pixels.
func Limit(px int) Bound {
	return Bound{Pixels: px, Set: true}
}

// Unbounded places no limit on an axis.
var Unbounded = Bound{}

// ResizeOptions describes the target size of a resize.
type ResizeOptions struct {
	Width  Bound
	Height Bound
	Mode   ResizeMode
}

// NewResizeOptions returns options for a width x height box. Both dimensions
// must be positive.
func NewResizeOptions(width, height int, mode ResizeMode) (ResizeOptions, error) {
	r := ResizeOptions{Width: Limit(width), Height: Limit(height), Mode: mode}
	if err := r.Validate(); err != nil {
		return ResizeOptions{}, err
	}
	return r, nil
}

// NewFitWithin returns a fit resize where either axis may be unbounded.
func NewFitWithin(maxWidth, maxHeight Bound) (ResizeOptions, error) {
	r := ResizeOptions{Width: maxWidth, Height: maxHeight, Mode: ResizeFit}
	if err := r.Validate(); err != nil {
		return ResizeOptions{}, err
	}
	return r, nil
}

// Validate checks that every set bound is positive and that the mode has the
// bounds it needs.
func (r ResizeOptions) Validate() error {
	if (r.Width.Set && r.Width.Pixels <= 0) || (r.Height.Set && r.Height.Pixels <= 0) {
		return fmt.Errorf("%w: width and height must be greater than zero", ErrInvalidResize)
	}
	switch r.Mode {
	case ResizeExact:
		if !r.Width.Set || !r.Height.Set {
			return fmt.Errorf("%w: exact resize needs both width and height", ErrInvalidResize)
		}
	case ResizeFit:
		if !r.Width.Set && !r.Height.Set {
			return fmt.Errorf("%w: fit resize needs a width or a height", ErrInvalidResize)
		}
	default:
		return fmt.Errorf("%w: unknown resize mode %d", ErrInvalidResize, r.Mode)
	}
	return nil
}

// String formats the options as WIDTHxHEIGHT, using "*" for an unbounded axis.
func (r ResizeOptions) String() string {
	axis := func(b Bound) string {
		if !b.Set {
			return "*"
		}
		return fmt.Sprint(b.Pixels)
	}
	return fmt.Sprintf("%sx%s (%s)", axis(r.Width), axis(r.Height), r.Mode)
}

// TargetSize returns the dimensions a srcW x srcH image is resized to.
func (r ResizeOptions) TargetSize(srcW, srcH int) (int, int) {
	if r.Mode == ResizeExact {
		return r.Width.Pixels, r.Height.Pixels
	}
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}

	ratio := math.Inf(1)
	if r.Width.Set {
		ratio = math.Min(ratio, float64(r.Width.Pixels)/float64(srcW))
	}
	if r.Height.Set {
		ratio = math.Min(ratio, float64(r.Height.Pixels)/float64(srcH))
	}
	if math.IsInf(ratio, 1) {
		return srcW, srcH
	}

	w := scaleAxis(srcW, ratio, r.Width)
	h := scaleAxis(srcH, ratio, r.Height)
	return w, h
}

func scaleAxis(src int, ratio float64, bound Bound) int {
	n := int(math.Round(float64(src) * ratio))
	if bound.Set && n > bound.Pixels {
		n = bound.Pixels
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Resize applies opts to img with a Lanczos filter. A nil opts returns img
// unchanged.
func Resize(img image.Image, opts *ResizeOptions) image.Image {
	if opts == nil {
		return img
	}
	b := img.Bounds()
	w, h := opts.TargetSize(b.Dx(), b.Dy())
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
