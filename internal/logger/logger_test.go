package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("not JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Console = &buf

	log, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	WithFileOperation(log, "a.png", "compress").Info("File compressed")
	log.Debug("hidden at info level")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries: %q", len(entries), buf.String())
	}
	for key, want := range map[string]string{
		"message":   "File compressed",
		"level":     "info",
		"file":      "a.png",
		"operation": "compress",
	} {
		if entries[0][key] != want {
			t.Errorf("%s = %v, want %q", key, entries[0][key], want)
		}
	}
	if _, ok := entries[0]["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
}

func TestNewFileOnly(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "image-compressor.log")
	opts := DefaultOptions()
	opts.File.Path = path
	opts.Console = &console
	opts.NoConsole = true

	log, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	WithOperation(log, "batch").Warn("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file = %q", data)
	}
	if console.Len() != 0 {
		t.Errorf("console got %q with NoConsole set", console.String())
	}
}

func TestNoConsoleWithoutFileKeepsConsole(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Console = &buf
	opts.NoConsole = true

	log, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("still visible")
	if !strings.Contains(buf.String(), "still visible") {
		t.Error("entry lost with no file and no console")
	}
}

func TestNewBadLevel(t *testing.T) {
	opts := DefaultOptions()
	opts.Level = "chatty"
	if _, err := New(opts); err == nil {
		t.Error("invalid level accepted")
	}
}

func TestFallbackWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Fallback(&buf).Warn("fallback")
	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "fallback" {
		t.Errorf("entries = %v", entries)
	}
}

func TestForPlugin(t *testing.T) {
	var buf bytes.Buffer
	log := Fallback(&buf)
	ForPlugin(log, "image-compressor").WithField("method", "tools/call").Info("Tool called")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0]["plugin"] != "image-compressor" || entries[0]["method"] != "tools/call" {
		t.Errorf("entry = %v", entries[0])
	}

	// A nil logger must not panic.
	ForPlugin(nil, "image-compressor").Info("dropped")
}
