// Package submit prints files named explicitly by an operator (CLI or API).
// Files submitted here are never deleted.
package submit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/dispatch"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/printer"
)

// Dispatcher prints one file.
type Dispatcher interface {
	Dispatch(ctx context.Context, src dispatch.FileSource, target printer.Target) dispatch.Result
}

// UnsupportedFileError rejects a path whose extension is not a label file
// type.
type UnsupportedFileError struct {
	Path       string
	Extensions []string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("%s: unsupported file type (accepted: %s)", e.Path, strings.Join(e.Extensions, ", "))
}

// Submitter hands operator-chosen files to the dispatcher in order.
type Submitter struct {
	disp       Dispatcher
	extensions []string
	logger     *slog.Logger
}

// New creates a Submitter. With no extensions every path is accepted.
func New(disp Dispatcher, extensions []string) *Submitter {
	return &Submitter{
		disp:       disp,
		extensions: config.NormalizeExtensions(extensions),
		logger:     log.WithComponent("submit"),
	}
}

// Submit dispatches each path to target and returns one Result per path, in
// input order. A failing file never stops the rest of the batch.
func (s *Submitter) Submit(ctx context.Context, paths []string, target printer.Target) []dispatch.Result {
	results := make([]dispatch.Result, 0, len(paths))
	for _, p := range paths {
		src := dispatch.FileSource{Path: p, Origin: dispatch.OriginManual}

		if len(s.extensions) > 0 && !config.HasExtension(p, s.extensions) {
			now := time.Now()
			err := &UnsupportedFileError{Path: p, Extensions: s.extensions}
			s.logger.Warn("skipping file", "path", p, "error", err)
			results = append(results, dispatch.Result{
				ID:          uuid.NewString(),
				Source:      src,
				Target:      target,
				Err:         err,
				StartedAt:   now,
				CompletedAt: now,
			})
			continue
		}

		res := s.disp.Dispatch(ctx, src, target)
		if res.FullyProcessed() {
			s.logger.Info("file printed", "path", p, "printer", string(target), "blocks", res.BlocksTotal)
		} else {
			s.logger.Warn("file not fully printed", "path", p, "printer", string(target),
				"blocks_total", res.BlocksTotal, "blocks_succeeded", res.BlocksSucceeded, "error", res.Err)
		}
		results = append(results, res)
	}
	return results
}

// AllPrinted reports whether every result was fully processed.
func AllPrinted(results []dispatch.Result) bool {
	for _, r := range results {
		if !r.FullyProcessed() {
			return false
		}
	}
	return len(results) > 0
}

// Abs makes paths absolute so results and history name files unambiguously.
func Abs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out[i] = abs
		} else {
			out[i] = p
		}
	}
	return out
}
