package dispatch

import (
	"time"

	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/printer"
)

// Origin records who asked for a file to be printed.
type Origin string

const (
	// OriginManual files were named explicitly and are never deleted.
	OriginManual Origin = "manual"
	// OriginMonitored files were discovered in the watched folder and are
	// deleted once fully processed.
	OriginMonitored Origin = "monitored"
)

// FileSource is a file to dispatch. Its identity is Path.
type FileSource struct {
	Path   string `json:"path"`
	Origin Origin `json:"origin"`
}

// Result is the outcome of dispatching one FileSource.
type Result struct {
	ID              string         `json:"id"`
	Source          FileSource     `json:"source"`
	Target          printer.Target `json:"target"`
	BlocksTotal     int            `json:"blocks_total"`
	BlocksSucceeded int            `json:"blocks_succeeded"`
	Err             error          `json:"-"`
	ContentHash     string         `json:"content_hash,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// FullyProcessed reports whether every block was accepted by the printer.
// Only then may a monitored file be deleted.
func (r Result) FullyProcessed() bool {
	return r.Err == nil && r.BlocksTotal > 0 && r.BlocksSucceeded == r.BlocksTotal
}

// Outcome is a short label for metrics and display.
func (r Result) Outcome() string {
	switch {
	case r.FullyProcessed():
		return "printed"
	case r.BlocksSucceeded > 0:
		return "partial"
	default:
		return "failed"
	}
}

// ErrorString returns Err as text, or "" on success.
func (r Result) ErrorString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Entry converts r to a history row.
func (r Result) Entry() history.Entry {
	return history.Entry{
		ID:              r.ID,
		Path:            r.Source.Path,
		Origin:          string(r.Source.Origin),
		Printer:         string(r.Target),
		BlocksTotal:     r.BlocksTotal,
		BlocksSucceeded: r.BlocksSucceeded,
		Error:           r.ErrorString(),
		ContentHash:     r.ContentHash,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}
