package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/barasher/go-exiftool"

	"image-compressor-go/internal/external"
)

// Dump returns every tag exiftool reports for path.
func Dump(path, exiftoolPath string) (map[string]interface{}, error) {
	var opts []func(*exiftool.Exiftool) error
	if exiftoolPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(exiftoolPath))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned nothing for %s", path)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	return files[0].Fields, nil
}

// SortedKeys returns the tag names of a dump in a stable order.
func SortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copier carries tags from a source file onto a destination file.
type Copier interface {
	CopyMetadata(ctx context.Context, src, dst string) error
}

// ExiftoolCopier copies all writable tags from a source file onto an encoded
// output with `exiftool -TagsFromFile`.
type ExiftoolCopier struct {
	tool *external.Tool
}

// NewExiftoolCopier locates exiftool. It fails with external.ErrNotInstalled
// when the binary is missing.
func NewExiftoolCopier(path string) (*ExiftoolCopier, error) {
	tool, err := external.Lookup("exiftool", path)
	if err != nil {
		return nil, err
	}
	return &ExiftoolCopier{tool: tool}, nil
}

// CopyMetadata rewrites dst in place with the tags of src.
func (c *ExiftoolCopier) CopyMetadata(ctx context.Context, src, dst string) error {
	return c.tool.Run(ctx, "-TagsFromFile", src, "-overwrite_original", dst)
}

// MissingCopier stands in when exiftool is not installed so that keeping
// metadata degrades to a logged warning instead of a failure.
type MissingCopier struct {
	Err error
}

// CopyMetadata always returns the lookup error.
func (m MissingCopier) CopyMetadata(context.Context, string, string) error {
	return m.Err
}

// NewCopier returns an ExiftoolCopier, or a MissingCopier carrying the lookup
// error when exiftool cannot be found.
func NewCopier(path string) Copier {
	c, err := NewExiftoolCopier(path)
	if err != nil {
		return MissingCopier{Err: err}
	}
	return c
}
