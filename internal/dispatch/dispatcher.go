package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/metrics"
	"github.com/mattjoyce/labelspool/internal/notify"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/zpl"
)

const (
	// DefaultPacing is the pause after each accepted block.
	DefaultPacing = 50 * time.Millisecond

	// recordTimeout bounds the history write after a dispatch, which runs
	// even when the caller's context is already cancelled.
	recordTimeout = 5 * time.Second
)

// Recorder persists dispatch outcomes.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPacing sets the pause after each accepted block. Zero disables it.
func WithPacing(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d >= 0 {
			disp.pacing = d
		}
	}
}

// WithNotifier routes outcome reports to n.
func WithNotifier(n notify.Notifier) Option {
	return func(disp *Dispatcher) {
		if n != nil {
			disp.notifier = n
		}
	}
}

// WithRecorder writes every Result to r.
func WithRecorder(r Recorder) Option {
	return func(disp *Dispatcher) { disp.recorder = r }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// Dispatcher sends label files to a printer one file at a time.
type Dispatcher struct {
	port     printer.Port
	pacing   time.Duration
	notifier notify.Notifier
	recorder Recorder
	logger   *slog.Logger

	// slot is the process-wide printer lock. Holding its single token means
	// owning the printer.
	slot chan struct{}

	readFile func(string) ([]byte, error)
	now      func() time.Time
}

// New creates a Dispatcher that sends through port.
func New(port printer.Port, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		port:     port,
		pacing:   DefaultPacing,
		notifier: notify.Nop,
		logger:   log.WithComponent("dispatch"),
		slot:     make(chan struct{}, 1),
		readFile: os.ReadFile,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch prints src on target and reports the outcome. It blocks while
// another dispatch holds the printer. Errors are carried in Result.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, src FileSource, target printer.Target) Result {
	res := Result{
		ID:     uuid.NewString(),
		Source: src,
		Target: target,
	}

	if target == "" {
		res.StartedAt = d.now()
		res.Err = ErrPrinterUnset
		d.finish(ctx, &res)
		return res
	}

	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		res.StartedAt = d.now()
		res.Err = ctx.Err()
		d.finish(ctx, &res)
		return res
	}
	defer func() { <-d.slot }()

	res.StartedAt = d.now()
	res.Err = d.send(ctx, &res)
	d.finish(ctx, &res)
	return res
}

func (d *Dispatcher) send(ctx context.Context, res *Result) error {
	path := res.Source.Path
	logger := d.logger.With("path", path, "printer", string(res.Target), "dispatch_id", res.ID)

	data, err := d.readFile(path)
	if err != nil {
		return &FileAccessError{Path: path, Op: "read", Err: err}
	}
	sum := blake3.Sum256(data)
	res.ContentHash = hex.EncodeToString(sum[:])

	blocks := zpl.Split(string(data))
	res.BlocksTotal = len(blocks)
	if len(blocks) == 0 {
		return &SplitError{Path: path}
	}

	logger.Debug("dispatching file", "blocks", len(blocks), "origin", string(res.Source.Origin))

	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.port.Send(ctx, res.Target, block.Bytes()); err != nil {
			metrics.RecordBlock(false)
			logger.Warn("block failed", "block", i+1, "of", len(blocks), "error", err)
			return err
		}
		metrics.RecordBlock(true)
		res.BlocksSucceeded++

		d.notifier.Notify(notify.Message{
			Level:   notify.LevelInfo,
			Event:   events.TypeBlockSent,
			Path:    path,
			Printer: string(res.Target),
			Text:    fmt.Sprintf("block %d of %d sent", i+1, len(blocks)),
			Fields:  map[string]any{"block": i + 1, "blocks_total": len(blocks)},
		})

		// A cancellation during the pause after the last block does not
		// undo a complete print.
		if err := d.pause(ctx); err != nil && i < len(blocks)-1 {
			return err
		}
	}
	return nil
}

// pause waits for the pacing interval while still holding the slot, so the
// next job (from this file or another) starts after it.
func (d *Dispatcher) pause(ctx context.Context) error {
	if d.pacing <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) finish(ctx context.Context, res *Result) {
	res.CompletedAt = d.now()
	took := res.CompletedAt.Sub(res.StartedAt)

	metrics.RecordFile(string(res.Source.Origin), res.Outcome(), took)

	msg := notify.Message{
		Path:    res.Source.Path,
		Printer: string(res.Target),
		Fields: map[string]any{
			"dispatch_id":      res.ID,
			"origin":           string(res.Source.Origin),
			"blocks_total":     res.BlocksTotal,
			"blocks_succeeded": res.BlocksSucceeded,
			"duration_ms":      took.Milliseconds(),
		},
	}
	if res.FullyProcessed() {
		msg.Level = notify.LevelInfo
		msg.Event = events.TypeFilePrinted
		msg.Text = fmt.Sprintf("%s printed (%d labels)", res.Source.Path, res.BlocksTotal)
	} else {
		msg.Level = notify.LevelError
		msg.Event = events.TypeFileFailed
		msg.Text = fmt.Sprintf("%s failed after %d of %d labels: %v",
			res.Source.Path, res.BlocksSucceeded, res.BlocksTotal, res.Err)
		msg.Fields["error"] = res.ErrorString()
	}
	d.notifier.Notify(msg)

	if d.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.recorder.Record(rctx, res.Entry()); err != nil {
		d.logger.Error("failed to record dispatch", "dispatch_id", res.ID, "path", res.Source.Path, "error", err)
	}
}
