package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation describes the rotated log file. An empty Path disables it.
type Rotation struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options configures New.
type Options struct {
	Level string
	File  Rotation

	// Console receives a copy of every entry. Nil selects os.Stderr, since
	// stdout carries command results and the plugin JSON-RPC stream.
	Console io.Writer
	// NoConsole drops the console sink when a log file is configured.
	NoConsole bool
}

// DefaultOptions logs at info level to stderr only.
func DefaultOptions() Options {
	return Options{
		Level: "info",
		File: Rotation{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

func jsonFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}
}

// sinks opens the writers selected by opts. The console is kept whenever
// there is no file, so entries are never silently lost.
func sinks(opts Options) ([]io.Writer, error) {
	var out []io.Writer
	if opts.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File.Path), 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		out = append(out, &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		})
	}
	if !opts.NoConsole || len(out) == 0 {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		out = append(out, console)
	}
	return out, nil
}

// New builds a JSON logger writing to the sinks in opts.
func New(opts Options) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	writers, err := sinks(opts)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(jsonFormatter())
	if len(writers) == 1 {
		log.SetOutput(writers[0])
	} else {
		log.SetOutput(io.MultiWriter(writers...))
	}
	return log, nil
}

// Fallback is the logger used when New fails: info level, JSON, on w.
func Fallback(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(jsonFormatter())
	log.SetOutput(w)
	return log
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ForPlugin tags every entry with the plugin name, which keeps the side
// channel of a stdio plugin apart from the host's own output. A nil log
// yields a discarding entry.
func ForPlugin(log *logrus.Logger, name string) *logrus.Entry {
	if log == nil {
		log = Discard()
	}
	return log.WithField("plugin", name)
}

// WithOperation scopes entries to one command or run.
func WithOperation(log *logrus.Logger, operation string) *logrus.Entry {
	return log.WithField("operation", operation)
}

// WithFileOperation scopes entries to one file within an operation.
func WithFileOperation(log *logrus.Logger, path, operation string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"file":      path,
		"operation": operation,
	})
}
