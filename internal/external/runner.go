// Package external runs helper binaries (oxipng, jpegtran, exiftool) that
// process image bytes over stdin/stdout.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotInstalled is returned when a tool binary cannot be found.
var ErrNotInstalled = errors.New("tool not installed")

// Tool is a named external binary.
type Tool struct {
	Name string
	Path string
}

// Lookup resolves the tool binary. An explicit path wins over a PATH search.
func Lookup(name, explicitPath string) (*Tool, error) {
	candidate := name
	if explicitPath != "" {
		candidate = explicitPath
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return &Tool{Name: name, Path: path}, nil
}

// Available reports whether the tool binary can be found.
func Available(name, explicitPath string) bool {
	_, err := Lookup(name, explicitPath)
	return err == nil
}

// Pipe runs the tool with args, feeding input on stdin and returning stdout.
func (t *Tool) Pipe(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, t.wrap(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Run runs the tool with args and discards its output.
func (t *Tool) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return t.wrap(err, stderr.String())
	}
	return nil
}

func (t *Tool) wrap(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s failed: %w", t.Name, err)
	}
	return fmt.Errorf("%s failed: %w: %s", t.Name, err, stderr)
}
