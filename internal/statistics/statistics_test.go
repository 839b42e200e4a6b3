package statistics

import (
	"errors"
	"strings"
	"testing"
)

func TestSavingsPercent(t *testing.T) {
	tests := []struct {
		name       string
		original   int64
		compressed int64
		want       float64
	}{
		{"zero original", 0, 0, 0},
		{"zero original with output", 0, 50, 0},
		{"unchanged", 100, 100, 0},
		{"fully compressed", 100, 0, 100},
		{"half", 200, 100, 50},
		{"grew", 100, 150, -50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SavingsPercent(tt.original, tt.compressed)
			if got != tt.want {
				t.Errorf("SavingsPercent(%d, %d) = %v, want %v", tt.original, tt.compressed, got, tt.want)
			}
			if got > 100 {
				t.Errorf("savings must never exceed 100, got %v", got)
			}
		})
	}
}

func TestNewCompressionStats(t *testing.T) {
	s := NewCompressionStats(1000, 250)
	if s.OriginalBytes != 1000 || s.CompressedBytes != 250 {
		t.Fatalf("unexpected byte counts: %+v", s)
	}
	if s.SavingsPercent != 75 {
		t.Errorf("SavingsPercent = %v, want 75", s.SavingsPercent)
	}
	if got := s.Summary(); got != "1 KB -> 250 B, saved 75.0%" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:         "0 B",
		500:       "500 B",
		1_500:     "2 KB",
		999_999:   "1000 KB",
		2_400_000: "2.4 MB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBatchReportTally(t *testing.T) {
	r := NewBatchReport("run-1")
	r.RecordCompressed(NewCompressionStats(1000, 400))
	r.RecordCompressed(NewCompressionStats(3000, 600))
	r.RecordSkipped()
	r.RecordFailed("bad.bin", "decode", errors.New("unknown format"))
	r.Finalize()

	compressed, skipped, failed := r.Counts()
	if compressed != 2 || skipped != 1 || failed != 1 {
		t.Fatalf("Counts() = %d, %d, %d", compressed, skipped, failed)
	}
	if r.TotalOriginalBytes != 4000 || r.TotalCompressedBytes != 1000 {
		t.Errorf("totals = %d/%d", r.TotalOriginalBytes, r.TotalCompressedBytes)
	}
	if r.SavedBytes() != 3000 {
		t.Errorf("SavedBytes() = %d", r.SavedBytes())
	}
	if r.SavingsPercent() != 75 {
		t.Errorf("SavingsPercent() = %v", r.SavingsPercent())
	}
	if len(r.Errors) != 1 || r.Errors[0].Operation != "decode" {
		t.Errorf("errors not recorded: %+v", r.Errors)
	}
	if r.EndTime.Before(r.StartTime) {
		t.Error("end time before start time")
	}

	want := "batch complete: compressed=2, failed=1, skipped=1, saved 3 KB (75.0%)"
	if got := r.GetSummary(); got != want {
		t.Errorf("GetSummary() = %q, want %q", got, want)
	}
	if !strings.Contains(r.GetErrorSummary(), "bad.bin") {
		t.Errorf("error summary missing file: %s", r.GetErrorSummary())
	}
}

func TestBatchReportSavedBytesNeverNegative(t *testing.T) {
	r := NewBatchReport("")
	r.RecordCompressed(NewCompressionStats(100, 300))
	if r.SavedBytes() != 0 {
		t.Errorf("SavedBytes() = %d, want 0", r.SavedBytes())
	}
	if !strings.Contains(NewBatchReport("").GetErrorSummary(), "No errors") {
		t.Error("empty report should say no errors")
	}
}
