package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/statistics"
)

// Tool names.
const (
	ToolCompressImage     = "compress_image"
	ToolCompressDirectory = "compress_directory"
)

// ToolDescriptor is one entry of tools/list.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var formatEnum = []string{"jpeg", "png", "webp", "avif"}

// Tools returns the descriptors of both tools.
func Tools() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:        ToolCompressImage,
			Description: "Compress a single image file to JPEG, PNG, WebP or AVIF",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"input_path"},
				"properties": map[string]interface{}{
					"input_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the source image file",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Path for the compressed output (format inferred from extension). Defaults to input path with format extension.",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "Compression quality 1-100 (default: format-specific, JPEG 85, WebP 85, AVIF 80)",
						"minimum":     1,
						"maximum":     100,
					},
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        formatEnum,
						"description": "Output format (overrides output_path extension)",
					},
					"max_width": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum width in pixels (maintains aspect ratio)",
						"minimum":     1,
					},
					"max_height": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum height in pixels (maintains aspect ratio)",
						"minimum":     1,
					},
					"lossless": map[string]interface{}{
						"type":        "boolean",
						"description": "Use lossless compression (WebP and AVIF only, default: false)",
					},
				},
			},
		},
		{
			Name:        ToolCompressDirectory,
			Description: "Batch compress all images in a directory",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"input_dir"},
				"properties": map[string]interface{}{
					"input_dir": map[string]interface{}{
						"type":        "string",
						"description": "Path to the source directory",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Path for compressed output (defaults to input_dir + '_compressed')",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "Compression quality 1-100",
						"minimum":     1,
						"maximum":     100,
					},
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        formatEnum,
						"description": "Output format for all images (default: webp)",
					},
				},
			},
		},
	}
}

// CompressImageArgs are the arguments of compress_image.
type CompressImageArgs struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path,omitempty"`
	Quality    *int   `json:"quality,omitempty"`
	Format     string `json:"format,omitempty"`
	MaxWidth   *int   `json:"max_width,omitempty"`
	MaxHeight  *int   `json:"max_height,omitempty"`
	Lossless   bool   `json:"lossless,omitempty"`
}

// CompressDirectoryArgs are the arguments of compress_directory.
type CompressDirectoryArgs struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir,omitempty"`
	Quality   *int   `json:"quality,omitempty"`
	Format    string `json:"format,omitempty"`
}

func invalidParams(format string, a ...interface{}) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, a...)}
}

func decodeArgs(raw json.RawMessage, v interface{}) *RPCError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidParams("Invalid arguments: %v", err)
	}
	return nil
}

// formatExtension maps a format argument onto a file extension.
func formatExtension(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func checkQuality(q *int) *RPCError {
	if q != nil && (*q < 1 || *q > 100) {
		return invalidParams("quality must be between 1 and 100, got %d", *q)
	}
	return nil
}

// resolveOutputPath applies the output_path and format rules of compress_image.
func (a CompressImageArgs) resolveOutputPath() string {
	ext := formatExtension(a.Format)
	out := a.OutputPath
	if out == "" {
		if ext == "" {
			ext = "webp"
		}
		return compressor.ReplaceExtension(a.InputPath, ext)
	}
	if ext != "" {
		return compressor.ReplaceExtension(out, ext)
	}
	return out
}

// resize maps max_width and max_height onto a fit resize. An absent bound is
// unbounded; a bound below 1 is rejected.
func (a CompressImageArgs) resize() (*compressor.ResizeOptions, *RPCError) {
	if a.MaxWidth == nil && a.MaxHeight == nil {
		return nil, nil
	}
	width, height := compressor.Unbounded, compressor.Unbounded
	if a.MaxWidth != nil {
		width = compressor.Limit(*a.MaxWidth)
	}
	if a.MaxHeight != nil {
		height = compressor.Limit(*a.MaxHeight)
	}
	r, err := compressor.NewFitWithin(width, height)
	if err != nil {
		return nil, invalidParams("max_width and max_height must be at least 1")
	}
	return &r, nil
}

func (s *Server) callCompressImage(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	var args CompressImageArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}
	if args.InputPath == "" {
		return nil, invalidParams("Missing required parameter: input_path")
	}
	if rpcErr := checkQuality(args.Quality); rpcErr != nil {
		return nil, rpcErr
	}
	resize, rpcErr := args.resize()
	if rpcErr != nil {
		return nil, rpcErr
	}

	opts := s.defaults
	opts.Overwrite = true
	opts.Lossless = args.Lossless
	opts.Resize = resize
	if args.Quality != nil {
		opts.Quality = *args.Quality
	}

	output := args.resolveOutputPath()
	s.log.Infof("compress_image: %s -> %s", args.InputPath, output)

	stats, err := s.compressor.CompressFile(ctx, args.InputPath, output, opts)
	if err != nil {
		s.log.WithError(err).Error("compress_image failed")
		return nil, &RPCError{Code: CodeToolFailed, Message: fmt.Sprintf("Compression failed: %v", err)}
	}
	return textResult(fmt.Sprintf("Compressed %s -> %s (%s -> %s, saved %.1f%%)",
		args.InputPath, output,
		statistics.FormatSize(stats.OriginalBytes),
		statistics.FormatSize(stats.CompressedBytes),
		stats.SavingsPercent)), nil
}

// ParseDirectoryArgs decodes and checks compress_directory arguments without
// touching the filesystem, so callers can reject a request before queueing it.
func ParseDirectoryArgs(raw json.RawMessage) (CompressDirectoryArgs, *RPCError) {
	var args CompressDirectoryArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return args, rpcErr
	}
	if args.InputDir == "" {
		return args, invalidParams("Missing required parameter: input_dir")
	}
	return args, checkQuality(args.Quality)
}

func (s *Server) callCompressDirectory(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := ParseDirectoryArgs(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ext := formatExtension(args.Format)
	if ext == "" {
		ext = "webp"
	}
	output := args.OutputDir
	if output == "" {
		output = args.InputDir + "_compressed"
	}

	opts := s.defaults
	opts.Overwrite = true
	if args.Quality != nil {
		opts.Quality = *args.Quality
	}

	s.log.Infof("compress_directory: %s -> %s (format: %s)", args.InputDir, output, ext)

	report, err := s.compressor.CompressDirectory(ctx, args.InputDir, output, ext, opts, true)
	if err != nil {
		s.log.WithError(err).Error("compress_directory failed")
		return nil, &RPCError{Code: CodeToolFailed, Message: fmt.Sprintf("Batch compression failed: %v", err)}
	}
	compressed, skipped, failed := report.Counts()
	return textResult(fmt.Sprintf("Batch compression complete: %d compressed, %d skipped, %d failed (%s -> %s)",
		compressed, skipped, failed,
		statistics.FormatSize(report.TotalOriginalBytes),
		statistics.FormatSize(report.TotalCompressedBytes))), nil
}
