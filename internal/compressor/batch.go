package compressor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/statistics"
)

// Stages reported for failed batch files.
const (
	StageMap      = "map"
	StageCompress = "compress"
)

// CompressDirectory compresses the files under inputDir one at a time, in walk
// order. A cancelled context stops the run between files and returns the
// partial report together with the context error.
func (c *DefaultCompressor) CompressDirectory(ctx context.Context, inputDir, outputDir, targetExt string, opts CompressOptions, recursive bool) (*statistics.BatchReport, error) {
	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputDirNotFound, inputDir)
	}

	ext, err := NormalizeExtension(targetExt)
	if err != nil {
		return nil, err
	}
	if _, err := ParseFormat(ext); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}

	files, err := collectInputFiles(inputDir, recursive)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}

	report := statistics.NewBatchReport(uuid.NewString())
	log := logger.WithOperation(c.log, "batch").WithFields(logrus.Fields{
		"run_id": report.RunID,
		"input":  inputDir,
		"output": outputDir,
		"format": ext,
	})
	log.WithField("files", len(files)).Info("Batch started")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			report.Finalize()
			log.WithError(err).Warn("Batch cancelled")
			return report, err
		}
		c.processOne(ctx, report, log, inputDir, outputDir, path, ext, opts)
	}

	report.Finalize()
	compressed, skipped, failed := report.Counts()
	log.WithFields(logrus.Fields{
		"compressed": compressed,
		"skipped":    skipped,
		"failed":     failed,
		"duration":   report.Duration.String(),
	}).Info("Batch finished")
	return report, nil
}

func (c *DefaultCompressor) processOne(ctx context.Context, report *statistics.BatchReport, log *logrus.Entry, inputDir, outputDir, path, ext string, opts CompressOptions) {
	res := CompressionResult{InputPath: path, StartedAt: time.Now()}
	defer func() {
		res.FinishedAt = time.Now()
		if c.progress != nil {
			c.progress(res)
		}
	}()

	dest, err := MapOutputPath(inputDir, outputDir, path, ext)
	if err != nil {
		report.RecordFailed(path, StageMap, err)
		log.WithField("file", path).WithError(err).Warn("Failed to map output path")
		res.Action, res.Stage, res.Error = ActionFailed, StageMap, err
		return
	}
	res.OutputPath = dest

	if _, err := os.Stat(dest); err == nil && !opts.Overwrite {
		report.RecordSkipped()
		log.WithField("file", path).Debug("Destination exists, skipping")
		res.Action = ActionSkipped
		return
	}

	stats, err := c.CompressFile(ctx, path, dest, opts)
	if err != nil {
		report.RecordFailed(path, StageCompress, err)
		log.WithField("file", path).WithError(err).Warn("Failed to compress file")
		res.Action, res.Stage, res.Error = ActionFailed, StageCompress, err
		return
	}
	report.RecordCompressed(stats)
	res.Action, res.Stats = ActionCompressed, stats
}

// MapOutputPath re-roots source from inputDir under outputDir and replaces its
// extension with ext.
func MapOutputPath(inputDir, outputDir, source, ext string) (string, error) {
	rel, err := filepath.Rel(inputDir, source)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", source, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", source, inputDir)
	}
	return ReplaceExtension(filepath.Join(outputDir, rel), ext), nil
}

// collectInputFiles lists regular files under dir in lexical order.
func collectInputFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		return files, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}
