package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"image-compressor-go/internal/bridge"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/watcher"
	"image-compressor-go/internal/web"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	version   = "dev"
	cfg       *config.Config
	cfgErr    error
	targetExt string
	recursive bool
	host      string
	port      int
	dumpAll   bool

	compressOpts compressFlags
	batchOpts    compressFlags
	watchOpts    compressFlags
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Compress images to JPEG, PNG, WebP or AVIF",
	Long: `image-compressor re-encodes images into JPEG, PNG, WebP or AVIF with
optional resizing and metadata handling.

The output format is chosen by the output file extension. Directories can be
compressed in one run, watched for new files, or driven by another program
through the stdio plugin bridge or the HTTP/WebSocket server.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Version:       version,
}

var compressCmd = &cobra.Command{
	Use:   "compress <input> <output>",
	Short: "Compress a single image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args[0], args[1])
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <input_dir> <output_dir>",
	Short: "Compress every image in a directory",
	Long: `Compresses the files of input_dir into output_dir, keeping relative paths
and replacing extensions with the --to format. Existing outputs are skipped
unless --overwrite is given. A failing file is reported and the run goes on.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], args[1])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <input_dir> <output_dir>",
	Short: "Compress images as they appear in a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args[0], args[1])
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show format, dimensions and EXIF data of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Serve compression tools as JSON-RPC over stdin/stdout",
	Long: `Runs the plugin bridge: one JSON-RPC 2.0 request per line on stdin, one
response per line on stdout. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlugin()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Serves the compression tools over HTTP (/api/*, /rpc) and WebSocket (/ws).
Batch progress is pushed to WebSocket clients as each file finishes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressOpts.register(compressCmd)

	batchOpts.register(batchCmd)
	batchCmd.Flags().StringVar(&targetExt, "to", "", "output format: jpg, png, webp or avif (default from config)")
	batchCmd.Flags().BoolVar(&recursive, "recursive", false, "include subdirectories")

	watchOpts.register(watchCmd)
	watchCmd.Flags().StringVar(&targetExt, "to", "", "output format: jpg, png, webp or avif (default from config)")
	watchCmd.Flags().BoolVar(&recursive, "recursive", false, "watch subdirectories (default from config)")

	infoCmd.Flags().BoolVar(&dumpAll, "all", false, "list every tag reported by exiftool")

	serveCmd.Flags().StringVar(&host, "host", "", "interface to listen on (default from config)")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// initConfig loads the configuration file and environment variables. Errors
// are reported by the command that needs the configuration.
func initConfig() {
	cfg, cfgErr = config.LoadConfig(cfgFile)
}

func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load config: %w", cfgErr)
	}
	if cfg == nil {
		return config.DefaultConfig(), nil
	}
	return cfg, nil
}

// setupLogger configures and returns a logger. Console output always goes
// to stderr.
func setupLogger(cfg *config.Config) *logrus.Logger {
	opts := logger.DefaultOptions()
	opts.Level = cfg.Logging.Level
	opts.File = logger.Rotation{
		Path:       cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	}

	if verbose {
		opts.Level = "debug"
	}
	if quiet {
		opts.Level = "error"
	}

	log, err := logger.New(opts)
	if err != nil {
		log = logger.Fallback(os.Stderr)
		log.WithError(err).Warn("Falling back to default logger")
	}

	return log
}

// newCompressor builds the pipeline from the tools and decode sections.
func newCompressor(cfg *config.Config, log *logrus.Logger, extra ...compressor.Option) (*compressor.DefaultCompressor, error) {
	codecs, err := compressor.NewCodecs(cfg.CodecConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up encoders: %w", err)
	}
	opts := []compressor.Option{
		compressor.WithCodecs(codecs),
		compressor.WithDecoder(compressor.NewDecoder(cfg.Decode.AutoOrient)),
		compressor.WithMetadataCopier(metadata.NewCopier(cfg.Tools.ExiftoolPath)),
	}
	return compressor.NewDefaultCompressor(log, append(opts, extra...)...)
}

// signalContext is cancelled by Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCompress(cmd *cobra.Command, input, output string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	opts, err := compressOpts.apply(cmd, cfg.CompressOptions())
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	c, err := newCompressor(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	stats, err := c.CompressFile(ctx, input, output, opts)
	if err != nil {
		return fmt.Errorf("failed to compress %s → %s: %w", input, output, err)
	}

	if !quiet {
		fmt.Println(compressedLine(input, output, stats))
	}
	return nil
}

// compressedLine is the per-file success line printed by the CLI.
func compressedLine(input, output string, stats statistics.CompressionStats) string {
	return fmt.Sprintf("compressed %s → %s (%s → %s, saved %.1f%%)",
		filepath.Base(input),
		filepath.Base(output),
		statistics.FormatSize(stats.OriginalBytes),
		statistics.FormatSize(stats.CompressedBytes),
		stats.SavingsPercent)
}

// printResult writes one file outcome of a batch or watch run.
func printResult(w io.Writer, res compressor.CompressionResult) {
	switch res.Action {
	case compressor.ActionCompressed:
		fmt.Fprintln(w, compressedLine(res.InputPath, res.OutputPath, res.Stats))
	case compressor.ActionSkipped:
		fmt.Fprintf(w, "skipped %s (output exists)\n", res.InputPath)
	default:
		fmt.Fprintf(w, "failed %s: %v\n", res.InputPath, res.Error)
	}
}

func formatFor(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("to") {
		return targetExt
	}
	return cfg.Compression.Format
}

func runBatch(cmd *cobra.Command, inputDir, outputDir string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	opts, err := batchOpts.apply(cmd, cfg.CompressOptions())
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	var progress []compressor.Option
	if !quiet {
		progress = append(progress, compressor.WithProgress(func(res compressor.CompressionResult) {
			printResult(os.Stdout, res)
		}))
	}
	c, err := newCompressor(cfg, log, progress...)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	report, err := c.CompressDirectory(ctx, inputDir, outputDir, formatFor(cmd, cfg), opts, recursive)
	if err != nil && report == nil {
		return fmt.Errorf("failed batch compression from %s to %s: %w", inputDir, outputDir, err)
	}

	if !quiet {
		fmt.Println(report.GetSummary())
	}
	if _, _, failed := report.Counts(); failed > 0 {
		fmt.Fprint(os.Stderr, report.GetErrorSummary())
	}
	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

func runWatch(cmd *cobra.Command, inputDir, outputDir string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	opts, err := watchOpts.apply(cmd, cfg.CompressOptions())
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	c, err := newCompressor(cfg, log)
	if err != nil {
		return err
	}

	watchCfg := watcher.Config{
		InputDir:  inputDir,
		OutputDir: outputDir,
		TargetExt: formatFor(cmd, cfg),
		Options:   opts,
		Recursive: cfg.Watch.Recursive,
		Debounce:  time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
	}
	if cmd.Flags().Changed("recursive") {
		watchCfg.Recursive = recursive
	}
	if !quiet {
		watchCfg.OnResult = func(res compressor.CompressionResult) {
			printResult(os.Stdout, res)
		}
	}

	w, err := watcher.New(c, watchCfg, log)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", inputDir, err)
	}

	ctx, stop := signalContext()
	defer stop()

	if !quiet {
		fmt.Fprintf(os.Stderr, "Watching %s, press Ctrl+C to stop\n", inputDir)
	}
	return w.Run(ctx)
}

func runInfo(path string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	info, err := metadata.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Printf("File:       %s\n", info.Path)
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Dimensions: %dx%d\n", info.Width, info.Height)
	fmt.Printf("Size:       %s\n", statistics.FormatSize(info.Bytes))
	if info.EXIF == nil {
		fmt.Println("EXIF:       none")
	} else {
		if camera := info.EXIF.Camera(); camera != "" {
			fmt.Printf("Camera:     %s\n", camera)
		}
		if info.EXIF.Software != "" {
			fmt.Printf("Software:   %s\n", info.EXIF.Software)
		}
		if info.EXIF.Taken != nil {
			fmt.Printf("Taken:      %s (%s)\n", info.EXIF.Taken.Format("2006-01-02 15:04:05"), info.EXIF.DateSource)
		}
		if info.EXIF.Orientation != 0 {
			fmt.Printf("Orientation: %d (rotation needed: %t)\n", info.EXIF.Orientation, info.EXIF.NeedsRotation())
		}
	}

	if !dumpAll {
		return nil
	}
	fields, err := metadata.Dump(path, cfg.Tools.ExiftoolPath)
	if err != nil {
		return fmt.Errorf("exiftool: %w", err)
	}
	fmt.Println()
	for _, key := range metadata.SortedKeys(fields) {
		fmt.Printf("%-32s %v\n", key, fields[key])
	}
	return nil
}

func runPlugin() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	c, err := newCompressor(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	log.WithField("version", version).Info("Plugin bridge started")
	server := bridge.NewServer(c, cfg.CompressOptions(), version, log)
	return server.Serve(ctx, os.Stdin, os.Stdout)
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("port") {
		port = cfg.Server.Port
	}
	if !cmd.Flags().Changed("host") {
		host = cfg.Server.Host
	}

	log := setupLogger(cfg)

	// the web server is created after the compressor that reports to it
	var server *web.Server
	c, err := newCompressor(cfg, log, compressor.WithProgress(func(res compressor.CompressionResult) {
		if server != nil {
			server.Progress(res)
		}
	}))
	if err != nil {
		return err
	}
	server = web.NewServer(bridge.NewServer(c, cfg.CompressOptions(), version, log), version, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(host, port); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	if !quiet {
		fmt.Fprintf(os.Stderr, "Image compressor server listening on http://%s:%d\n", displayHost(host), port)
		fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop the server\n")
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server stopped gracefully")
	return nil
}

func displayHost(h string) string {
	if h == "" {
		return "localhost"
	}
	return h
}

func runConfig() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
