// Package metadata reads and carries image metadata: an EXIF summary through
// goexif, a full tag dump and tag copying through exiftool.
package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoEXIF is returned when a file carries no readable EXIF block.
var ErrNoEXIF = errors.New("no EXIF data")

// DateSource records which EXIF tag a capture date came from.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceEXIFDateTime
	DateSourceEXIFDateTimeOriginal
	DateSourceEXIFDateTimeDigitized
)

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceEXIFDateTime:
		return "EXIF DateTime"
	case DateSourceEXIFDateTimeOriginal:
		return "EXIF DateTimeOriginal"
	case DateSourceEXIFDateTimeDigitized:
		return "EXIF DateTimeDigitized"
	default:
		return "Unknown"
	}
}

// EXIFSummary is the handful of EXIF fields shown by the info command.
type EXIFSummary struct {
	Make        string
	Model       string
	Software    string
	Taken       *time.Time
	DateSource  DateSource
	Orientation int // 1-8, 0 when absent
}

// Camera returns "Make Model" without duplicating a make that the model
// already starts with.
func (s EXIFSummary) Camera() string {
	switch {
	case s.Model == "":
		return s.Make
	case s.Make == "" || strings.HasPrefix(s.Model, s.Make):
		return s.Model
	default:
		return s.Make + " " + s.Model
	}
}

// NeedsRotation reports whether the stored pixels differ from the displayed
// orientation.
func (s EXIFSummary) NeedsRotation() bool {
	return s.Orientation > 1
}

// ReadEXIF opens path and summarizes its EXIF block.
func ReadEXIF(path string) (*EXIFSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return DecodeEXIF(f)
}

// DecodeEXIF summarizes the EXIF block read from r.
func DecodeEXIF(r io.Reader) (*EXIFSummary, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEXIF, err)
	}

	s := &EXIFSummary{
		Make:     stringTag(x, exif.Make),
		Model:    stringTag(x, exif.Model),
		Software: stringTag(x, exif.Software),
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			s.Orientation = v
		}
	}
	s.Taken, s.DateSource = captureDate(x)
	return s, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	v, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

func captureDate(x *exif.Exif) (*time.Time, DateSource) {
	if tm, err := x.DateTime(); err == nil {
		return &tm, DateSourceEXIFDateTime
	}
	for _, c := range []struct {
		name   exif.FieldName
		source DateSource
	}{
		{exif.DateTimeOriginal, DateSourceEXIFDateTimeOriginal},
		{exif.DateTimeDigitized, DateSourceEXIFDateTimeDigitized},
	} {
		if date := parseEXIFDateTime(stringTag(x, c.name)); date != nil {
			return date, c.source
		}
	}
	return nil, DateSourceUnknown
}

// parseEXIFDateTime parses the date layouts seen in EXIF and XMP fields.
// Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
