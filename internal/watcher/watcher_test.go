package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/statistics"
)

// copyCompressor writes a fixed payload to the destination and records calls.
type copyCompressor struct {
	mu    sync.Mutex
	calls []string
}

func (c *copyCompressor) CompressFile(ctx context.Context, in, out string, opts compressor.CompressOptions) (statistics.CompressionStats, error) {
	c.mu.Lock()
	c.calls = append(c.calls, in)
	c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return statistics.CompressionStats{}, err
	}
	if err := os.WriteFile(out, []byte("webp"), 0644); err != nil {
		return statistics.CompressionStats{}, err
	}
	return statistics.NewCompressionStats(100, 25), nil
}

func (c *copyCompressor) CompressDirectory(ctx context.Context, in, out, ext string, opts compressor.CompressOptions, recursive bool) (*statistics.BatchReport, error) {
	return nil, errors.New("not used")
}

func (c *copyCompressor) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func startWatcher(t *testing.T, c compressor.Compressor, cfg Config) <-chan compressor.CompressionResult {
	t.Helper()
	results := make(chan compressor.CompressionResult, 16)
	cfg.OnResult = func(r compressor.CompressionResult) { results <- r }
	if cfg.Debounce == 0 {
		cfg.Debounce = 20 * time.Millisecond
	}

	w, err := New(c, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return results
}

func waitResult(t *testing.T, results <-chan compressor.CompressionResult) compressor.CompressionResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no file processed")
	}
	return compressor.CompressionResult{}
}

func TestWatcherCompressesDroppedFile(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	c := &copyCompressor{}
	results := startWatcher(t, c, Config{InputDir: in, OutputDir: out, TargetExt: ".webp", Options: compressor.DefaultOptions()})

	src := filepath.Join(in, "photo.png")
	if err := os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	want := filepath.Join(out, "photo.webp")
	if r.Action != compressor.ActionCompressed || r.InputPath != src || r.OutputPath != want {
		t.Fatalf("result = %+v", r)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if r.Stats.SavingsPercent != 75 {
		t.Errorf("savings = %v", r.Stats.SavingsPercent)
	}
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	c := &copyCompressor{}
	results := startWatcher(t, c, Config{
		InputDir:  in,
		OutputDir: out,
		TargetExt: "webp",
		Options:   compressor.DefaultOptions(),
		Debounce:  100 * time.Millisecond,
	})

	src := filepath.Join(in, "a.jpg")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(src, []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	waitResult(t, results)
	select {
	case r := <-results:
		t.Errorf("second result %+v", r)
	case <-time.After(300 * time.Millisecond):
	}
	if n := c.callCount(); n != 1 {
		t.Errorf("CompressFile called %d times, want 1", n)
	}
}

func TestWatcherSkipsExistingOutput(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "a.webp"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	c := &copyCompressor{}
	results := startWatcher(t, c, Config{InputDir: in, OutputDir: out, TargetExt: "webp", Options: compressor.DefaultOptions()})

	if err := os.WriteFile(filepath.Join(in, "a.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, results); r.Action != compressor.ActionSkipped {
		t.Errorf("action = %q, want skipped", r.Action)
	}
	if c.callCount() != 0 {
		t.Error("compressor called for an existing output")
	}
}

func TestWatcherRecursiveNewFolder(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	c := &copyCompressor{}
	results := startWatcher(t, c, Config{
		InputDir:  in,
		OutputDir: out,
		TargetExt: "avif",
		Options:   compressor.DefaultOptions(),
		Recursive: true,
	})

	sub := filepath.Join(in, "2024", "june")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.jpg"), []byte("jpg"), 0644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if want := filepath.Join(out, "2024", "june", "b.avif"); r.OutputPath != want {
		t.Errorf("output = %q, want %q", r.OutputPath, want)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	c := &copyCompressor{}
	dir := t.TempDir()

	if _, err := New(c, Config{InputDir: filepath.Join(dir, "missing"), OutputDir: dir, TargetExt: "webp"}, nil); !errors.Is(err, compressor.ErrInputDirNotFound) {
		t.Errorf("missing dir: %v", err)
	}
	if _, err := New(c, Config{InputDir: dir, OutputDir: dir, TargetExt: "heic", Options: compressor.DefaultOptions()}, nil); !errors.Is(err, compressor.ErrUnsupportedFormat) {
		t.Errorf("bad format: %v", err)
	}
}

func TestInsideOutput(t *testing.T) {
	w := &Watcher{cfg: Config{OutputDir: filepath.Join("in", "out")}}
	cases := map[string]bool{
		filepath.Join("in", "out"):          true,
		filepath.Join("in", "out", "a.png"): true,
		filepath.Join("in", "a.png"):        false,
		filepath.Join("in", "outside"):      false,
	}
	for path, want := range cases {
		if got := w.insideOutput(path); got != want {
			t.Errorf("insideOutput(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestSupersededFireIsIgnored(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	src := filepath.Join(in, "a.png")
	if err := os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	c := &copyCompressor{}
	w, err := New(c, Config{
		InputDir:  in,
		OutputDir: out,
		TargetExt: "webp",
		Options:   compressor.DefaultOptions(),
		Debounce:  time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.fs.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first timer already fired and is waiting on ready when a new write
	// reschedules the same path.
	w.schedule(ctx, src)
	stale := w.timers[src]
	w.schedule(ctx, src)
	fresh := w.timers[src]
	defer fresh.timer.Stop()

	if w.fire(ctx, stale) {
		t.Error("superseded fire compressed the file")
	}
	if w.timers[src] != fresh {
		t.Fatal("superseded fire dropped the pending compression")
	}
	if !w.fire(ctx, fresh) {
		t.Error("current fire was ignored")
	}
	if w.fire(ctx, fresh) {
		t.Error("same fire ran twice")
	}
	if n := c.callCount(); n != 1 {
		t.Errorf("CompressFile called %d times, want 1", n)
	}
}
