package statistics

import (
	"fmt"
	"sync"
	"time"
)

// CompressionStats describes the size change of a single compressed file.
type CompressionStats struct {
	OriginalBytes   int64
	CompressedBytes int64
	SavingsPercent  float64
}

// NewCompressionStats returns stats for the given byte counts with the savings percentage derived.
func NewCompressionStats(originalBytes, compressedBytes int64) CompressionStats {
	return CompressionStats{
		OriginalBytes:   originalBytes,
		CompressedBytes: compressedBytes,
		SavingsPercent:  SavingsPercent(originalBytes, compressedBytes),
	}
}

// SavingsPercent returns (1 - compressed/original) * 100, or 0 when original is 0.
func SavingsPercent(originalBytes, compressedBytes int64) float64 {
	if originalBytes <= 0 {
		return 0
	}
	return (1 - float64(compressedBytes)/float64(originalBytes)) * 100
}

// Summary returns a human readable "X -> Y, saved Z%" fragment.
func (s CompressionStats) Summary() string {
	return fmt.Sprintf("%s -> %s, saved %.1f%%",
		FormatSize(s.OriginalBytes), FormatSize(s.CompressedBytes), s.SavingsPercent)
}

// StatError represents a file that failed during a batch run.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// BatchReport is the running tally of a directory compression run.
// It is updated as each file is processed and never rolled back.
type BatchReport struct {
	RunID string

	Compressed int
	Skipped    int
	Failed     int

	TotalOriginalBytes   int64
	TotalCompressedBytes int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// NewBatchReport returns an empty report stamped with the run ID and the current time.
func NewBatchReport(runID string) *BatchReport {
	return &BatchReport{
		RunID:     runID,
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// RecordCompressed counts a successful file and adds its sizes to the totals.
func (r *BatchReport) RecordCompressed(stats CompressionStats) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Compressed++
	r.TotalOriginalBytes += stats.OriginalBytes
	r.TotalCompressedBytes += stats.CompressedBytes
}

// RecordSkipped counts a file whose destination already existed.
func (r *BatchReport) RecordSkipped() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Skipped++
}

// RecordFailed counts a failed file and keeps the error for the summary.
func (r *BatchReport) RecordFailed(filePath, operation string, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.Failed++
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Errors = append(r.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     msg,
		Timestamp: time.Now(),
	})
}

// Finalize stamps the end time and duration.
func (r *BatchReport) Finalize() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Counts returns the compressed, skipped and failed counts.
func (r *BatchReport) Counts() (compressed, skipped, failed int) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.Compressed, r.Skipped, r.Failed
}

// SavedBytes returns the bytes saved across compressed files, never negative.
func (r *BatchReport) SavedBytes() int64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	saved := r.TotalOriginalBytes - r.TotalCompressedBytes
	if saved < 0 {
		return 0
	}
	return saved
}

// SavingsPercent returns the savings over all compressed files.
func (r *BatchReport) SavingsPercent() float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return SavingsPercent(r.TotalOriginalBytes, r.TotalCompressedBytes)
}

// GetSummary returns the one-line summary printed at the end of a batch.
func (r *BatchReport) GetSummary() string {
	saved := r.SavedBytes()
	percent := r.SavingsPercent()

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return fmt.Sprintf("batch complete: compressed=%d, failed=%d, skipped=%d, saved %s (%.1f%%)",
		r.Compressed, r.Failed, r.Skipped, FormatSize(saved), percent)
}

// GetErrorSummary returns a summary of the files that failed.
func (r *BatchReport) GetErrorSummary() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if len(r.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(r.Errors))
	for i, err := range r.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(r.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatSize returns a human-readable size using decimal units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1_000_000:
		return fmt.Sprintf("%.1f MB", float64(bytes)/1_000_000)
	case bytes >= 1_000:
		return fmt.Sprintf("%.0f KB", float64(bytes)/1_000)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
