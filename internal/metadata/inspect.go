package metadata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	// decoders registered for DecodeConfig
	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Info describes one image file for the info command.
type Info struct {
	Path   string
	Bytes  int64
	Format string
	Width  int
	Height int
	EXIF   *EXIFSummary
}

// Inspect reads the header of path for its format and dimensions and, when
// present, its EXIF summary. A missing EXIF block is not an error.
func Inspect(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read image header of %s: %w", path, err)
	}

	info := &Info{
		Path:   path,
		Bytes:  int64(len(raw)),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}
	if s, err := DecodeEXIF(bytes.NewReader(raw)); err == nil {
		info.EXIF = s
	}
	return info, nil
}
