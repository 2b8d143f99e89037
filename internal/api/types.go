package api

import (
	"time"

	"github.com/mattjoyce/labelspool/internal/dispatch"
	"github.com/mattjoyce/labelspool/internal/history"
)

// PrintRequest is the JSON body for POST /print.
type PrintRequest struct {
	Files []string `json:"files"`
	// Printer overrides the selected printer for this request only.
	Printer string `json:"printer,omitempty"`
}

// FileResult is the outcome of one file in a print request.
type FileResult struct {
	ID              string `json:"id"`
	Path            string `json:"path"`
	Printer         string `json:"printer"`
	BlocksTotal     int    `json:"blocks_total"`
	BlocksSucceeded int    `json:"blocks_succeeded"`
	Printed         bool   `json:"printed"`
	Error           string `json:"error,omitempty"`
}

// FileResultFrom converts a dispatch result for JSON output.
func FileResultFrom(r dispatch.Result) FileResult {
	return FileResult{
		ID:              r.ID,
		Path:            r.Source.Path,
		Printer:         string(r.Target),
		BlocksTotal:     r.BlocksTotal,
		BlocksSucceeded: r.BlocksSucceeded,
		Printed:         r.FullyProcessed(),
		Error:           r.ErrorString(),
	}
}

// PrintResponse is returned by POST /print.
type PrintResponse struct {
	Results    []FileResult `json:"results"`
	AllPrinted bool         `json:"all_printed"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// PrintersResponse is returned by GET /printers.
type PrintersResponse struct {
	Printers []string `json:"printers"`
	Selected string   `json:"selected,omitempty"`
}

// SelectionRequest is the JSON body for PUT /selection. Omitted fields keep
// their current value.
type SelectionRequest struct {
	Printer *string `json:"printer,omitempty"`
	Folder  *string `json:"folder,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	StartedAt     time.Time `json:"started_at"`
	Printer       string    `json:"printer"`
	Folder        string    `json:"folder"`
	InFlight      int       `json:"in_flight"`
	Subscribers   int       `json:"event_subscribers"`
	DroppedEvents int64     `json:"dropped_events"`
	Version       string    `json:"version,omitempty"`
}
