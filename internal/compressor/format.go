package compressor

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputFormat is one of the formats the compressor can write.
type OutputFormat int

const (
	FormatUnknown OutputFormat = iota
	FormatJPEG
	FormatPNG
	FormatWebP
	FormatAVIF
)

// String returns the display name of the format.
func (f OutputFormat) String() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatPNG:
		return "PNG"
	case FormatWebP:
		return "WebP"
	case FormatAVIF:
		return "AVIF"
	default:
		return "Unknown"
	}
}

// Extension returns the canonical file extension without a dot.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return ""
	}
}

// NormalizeExtension trims whitespace and a single leading dot and lower-cases
// the result.
func NormalizeExtension(ext string) (string, error) {
	ext = strings.TrimSpace(ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", ErrEmptyExtension
	}
	return strings.ToLower(ext), nil
}

// ParseFormat resolves an extension token such as "JPG" or ".webp".
func ParseFormat(ext string) (OutputFormat, error) {
	normalized, err := NormalizeExtension(ext)
	if err != nil {
		return FormatUnknown, err
	}
	switch normalized {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "avif":
		return FormatAVIF, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, normalized)
	}
}

// extensionOf returns the extension of path without the dot. Dot files such as
// ".webp" have no extension.
func extensionOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == base {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// ReplaceExtension swaps the extension of path for ext, appending it when the
// path has none.
func ReplaceExtension(path, ext string) string {
	base := filepath.Base(path)
	if old := filepath.Ext(base); old != base {
		path = strings.TrimSuffix(path, old)
	}
	return path + "." + ext
}
