package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before it is compressed.
const DefaultDebounce = 500 * time.Millisecond

// Config describes one watched directory.
type Config struct {
	InputDir  string
	OutputDir string
	TargetExt string
	Options   compressor.CompressOptions
	Recursive bool
	Debounce  time.Duration

	// OnResult, when set, receives every file outcome.
	OnResult compressor.ProgressFunc
}

// Watcher compresses files as they appear under an input directory. Files are
// handled one at a time on the loop started by Run.
type Watcher struct {
	compressor compressor.Compressor
	cfg        Config
	ext        string
	fs         *fsnotify.Watcher
	log        *logrus.Entry

	timers map[string]*pending
	ready  chan *pending
}

// pending is one scheduled compression. A rescheduled path gets a new
// pending, so a fire from the stopped timer can be told apart.
type pending struct {
	path  string
	timer *time.Timer
}

// New validates cfg and registers the watches. Events that arrive before Run
// is called are queued.
func New(c compressor.Compressor, cfg Config, log *logrus.Logger) (*Watcher, error) {
	info, err := os.Stat(cfg.InputDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", compressor.ErrInputDirNotFound, cfg.InputDir)
	}
	ext, err := compressor.NormalizeExtension(cfg.TargetExt)
	if err != nil {
		return nil, err
	}
	if _, err := compressor.ParseFormat(ext); err != nil {
		return nil, err
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", cfg.OutputDir, err)
	}
	if log == nil {
		log = logger.Discard()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	entry := logger.WithOperation(log, "watch").WithFields(logrus.Fields{
		"input":  cfg.InputDir,
		"output": cfg.OutputDir,
		"format": ext,
	})
	w := &Watcher{
		compressor: c,
		cfg:        cfg,
		ext:        ext,
		fs:         fsWatcher,
		log:        entry,
		timers:     make(map[string]*pending),
		ready:      make(chan *pending, 100),
	}

	if err := w.addDir(cfg.InputDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// addDir watches dir, and its subdirectories when the watch is recursive.
func (w *Watcher) addDir(dir string) error {
	if !w.cfg.Recursive {
		return w.fs.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.insideOutput(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", path, err)
		}
		w.log.WithField("dir", path).Debug("Watching folder")
		return nil
	})
}

// insideOutput reports whether path lies in the output tree, which may be
// nested in the input tree.
func (w *Watcher) insideOutput(path string) bool {
	out, err := filepath.Abs(w.cfg.OutputDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(out, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Run processes events until ctx is cancelled, then releases the watches.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	defer func() {
		for _, p := range w.timers {
			p.timer.Stop()
		}
	}()

	w.log.Info("Watch started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Watch stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case p := <-w.ready:
			w.fire(ctx, p)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || w.insideOutput(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && w.cfg.Recursive {
			if err := w.addDir(event.Name); err != nil {
				w.log.WithError(err).Warn("Failed to watch new folder")
			}
			w.scheduleExisting(ctx, event.Name)
		}
		return
	}
	if info.Mode().IsRegular() {
		w.schedule(ctx, event.Name)
	}
}

// scheduleExisting queues files that landed in a new folder before its watch
// was registered.
func (w *Watcher) scheduleExisting(ctx context.Context, dir string) {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			w.schedule(ctx, path)
		}
		return nil
	})
}

// schedule restarts the quiet period for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if p, exists := w.timers[path]; exists {
		p.timer.Stop()
	}
	p := &pending{path: path}
	p.timer = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case w.ready <- p:
		case <-ctx.Done():
		}
	})
	w.timers[path] = p
}

// fire compresses p.path unless p was superseded while its send was queued.
// It reports whether the compression ran.
func (w *Watcher) fire(ctx context.Context, p *pending) bool {
	if w.timers[p.path] != p {
		return false
	}
	delete(w.timers, p.path)
	w.compress(ctx, p.path)
	return true
}

func (w *Watcher) compress(ctx context.Context, path string) {
	res := compressor.CompressionResult{InputPath: path, StartedAt: time.Now()}
	defer func() {
		res.FinishedAt = time.Now()
		if w.cfg.OnResult != nil {
			w.cfg.OnResult(res)
		}
	}()
	log := w.log.WithField("file", path)

	dest, err := compressor.MapOutputPath(w.cfg.InputDir, w.cfg.OutputDir, path, w.ext)
	if err != nil {
		res.Action, res.Stage, res.Error = compressor.ActionFailed, compressor.StageMap, err
		log.WithError(err).Warn("Failed to map output path")
		return
	}
	res.OutputPath = dest

	if _, err := os.Stat(dest); err == nil && !w.cfg.Options.Overwrite {
		res.Action = compressor.ActionSkipped
		log.Debug("Output exists, skipping")
		return
	}

	stats, err := w.compressor.CompressFile(ctx, path, dest, w.cfg.Options)
	if err != nil {
		if errors.Is(err, compressor.ErrOutputExists) {
			res.Action = compressor.ActionSkipped
			return
		}
		res.Action, res.Stage, res.Error = compressor.ActionFailed, compressor.StageCompress, err
		log.WithError(err).Warn("Failed to compress file")
		return
	}
	res.Action, res.Stats = compressor.ActionCompressed, stats
	log.WithFields(logrus.Fields{
		"output":  dest,
		"summary": stats.Summary(),
	}).Info("File compressed")
}
