// Package monitor watches a folder and prints the label files that appear in
// it, deleting each one once every block has reached the printer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/dispatch"
	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/metrics"
	"github.com/mattjoyce/labelspool/internal/notify"
	"github.com/mattjoyce/labelspool/internal/printer"
)

const pruneEvery = 10 * time.Minute

// Dispatcher prints one file.
type Dispatcher interface {
	Dispatch(ctx context.Context, src dispatch.FileSource, target printer.Target) dispatch.Result
}

// SelectionSource yields the current printer and folder.
type SelectionSource interface {
	Load() (config.Selection, error)
}

// Pruner trims the dispatch history.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Options tune the scan loop.
type Options struct {
	Interval          time.Duration
	Extensions        []string
	MinFileAge        time.Duration
	Notify            bool
	FailureBackoff    time.Duration
	FailureBackoffMax time.Duration
	HistoryRetention  time.Duration
}

// OptionsFromConfig maps the watch and history sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          cfg.Watch.Interval,
		Extensions:        cfg.Watch.Extensions,
		MinFileAge:        cfg.Watch.MinFileAge,
		Notify:            cfg.Watch.Notify,
		FailureBackoff:    cfg.Watch.FailureBackoff,
		FailureBackoffMax: cfg.Watch.FailureBackoffMax,
		HistoryRetention:  cfg.History.Retention,
	}
}

// Deps are the collaborators of a Monitor. Notifier, History and Logger are
// optional.
type Deps struct {
	Dispatcher Dispatcher
	Selection  SelectionSource
	Notifier   notify.Notifier
	History    Pruner
	Logger     *slog.Logger
}

// TickReport describes one scan pass.
type TickReport struct {
	At        time.Time `json:"at"`
	Printer   string    `json:"printer,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	Skipped   string    `json:"skipped,omitempty"`
	Found     int       `json:"found"`
	Submitted []string  `json:"submitted,omitempty"`
	InFlight  []string  `json:"in_flight,omitempty"`
	Deferred  []string  `json:"deferred,omitempty"`
	Err       error     `json:"-"`
}

// Monitor scans the selected folder on a fixed interval and submits new
// label files to the dispatcher.
type Monitor struct {
	opts      Options
	disp      Dispatcher
	selection SelectionSource
	notifier  notify.Notifier
	history   Pruner
	logger    *slog.Logger

	inflight *InFlightSet
	backoff  *fileBackoff

	removeFile func(string) error
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wake     chan struct{}
	wg       sync.WaitGroup // loop and watcher goroutines
	subs     sync.WaitGroup // submission batches

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	watcher   *watcher
	lastPrune time.Time
}

// New creates a Monitor. Call Start to run the loop, or Tick for one pass.
func New(opts Options, deps Deps) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt", ".zpl"}
	}
	opts.Extensions = config.NormalizeExtensions(opts.Extensions)

	logger := deps.Logger
	if logger == nil {
		logger = log.WithComponent("monitor")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}

	return &Monitor{
		opts:       opts,
		disp:       deps.Dispatcher,
		selection:  deps.Selection,
		notifier:   notifier,
		history:    deps.History,
		logger:     logger,
		inflight:   NewInFlightSet(),
		backoff:    newFileBackoff(opts.FailureBackoff, opts.FailureBackoffMax),
		removeFile: os.Remove,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// InFlight returns the paths currently being dispatched.
func (m *Monitor) InFlight() []string {
	return m.inflight.Snapshot()
}

// Start runs the scan loop in the background until Stop or ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}
	select {
	case <-m.stopCh:
		return fmt.Errorf("monitor already stopped")
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.logger.Info("starting folder monitor",
		"interval", m.opts.Interval.String(),
		"extensions", m.opts.Extensions,
		"notify", m.opts.Notify,
	)

	m.wg.Add(1)
	go m.loop(runCtx)
	return nil
}

// Stop ends the loop, cancels the dispatch in progress and waits for every
// submission to settle. Files whose dispatch was cut short are kept.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("stopping folder monitor")
		close(m.stopCh)

		m.mu.Lock()
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		m.wg.Wait()
		m.subs.Wait()

		m.mu.Lock()
		if m.watcher != nil {
			m.watcher.close()
			m.watcher = nil
		}
		m.running = false
		m.mu.Unlock()
		m.logger.Info("folder monitor stopped")
	})
}

// Wait blocks until every batch submitted so far has been dispatched.
func (m *Monitor) Wait() {
	m.subs.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.runTick(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-m.wake:
			m.logger.Debug("woken by filesystem event")
		case <-m.stopCh:
			return
		case <-ctx.Done():
			m.logger.Warn("monitor context cancelled, stopping loop")
			return
		}
		m.runTick(ctx)
	}
}

func (m *Monitor) runTick(ctx context.Context) {
	report := m.Tick(ctx)
	if m.opts.Notify && report.Folder != "" {
		m.ensureWatch(report.Folder)
	}
	m.maybePrune(ctx)
}

// Tick runs one scan pass with the current selection: list the folder,
// skip paths already in flight, and hand the rest to a background batch.
// Submissions use ctx; cancelling it aborts them.
func (m *Monitor) Tick(ctx context.Context) TickReport {
	report := TickReport{At: m.now()}

	sel, err := m.selection.Load()
	if err != nil {
		m.logger.Warn("failed to load selection, using fallback", "error", err)
	}
	report.Printer = sel.Printer
	report.Folder = sel.Folder

	switch {
	case sel.Printer == "":
		report.Skipped = "no printer selected"
	case sel.Folder == "":
		report.Skipped = "no folder selected"
	}
	if report.Skipped != "" {
		m.logger.Debug("tick skipped", "reason", report.Skipped)
		return report
	}

	paths, err := m.scan(sel.Folder, report.At)
	if err != nil {
		dirErr := &DirectoryError{Folder: sel.Folder, Err: err}
		report.Err = dirErr
		metrics.RecordDirectoryError()
		m.notifier.Notify(notify.Message{
			Level: notify.LevelError,
			Event: events.TypeMonitorError,
			Path:  sel.Folder,
			Text:  fmt.Sprintf("cannot read watched folder: %v", dirErr),
		})
		return report
	}
	report.Found = len(paths)

	present := make(map[string]struct{}, len(paths))
	var batch []string
	for _, p := range paths {
		present[p] = struct{}{}
		if !m.backoff.ready(p, report.At) {
			report.Deferred = append(report.Deferred, p)
			continue
		}
		if !m.inflight.TryAcquire(p) {
			report.InFlight = append(report.InFlight, p)
			continue
		}
		batch = append(batch, p)
	}
	m.backoff.retain(present)
	metrics.SetInFlight(m.inflight.Len())

	if len(batch) == 0 {
		return report
	}
	report.Submitted = batch

	m.logger.Info("submitting files", "folder", sel.Folder, "printer", sel.Printer, "count", len(batch))
	m.notifier.Notify(notify.Message{
		Level:   notify.LevelInfo,
		Event:   events.TypeMonitorTick,
		Path:    sel.Folder,
		Printer: sel.Printer,
		Text:    fmt.Sprintf("%d new file(s) in %s", len(batch), sel.Folder),
		Fields:  map[string]any{"files": batch},
	})

	m.subs.Add(1)
	go m.submit(ctx, printer.Target(sel.Printer), batch)
	return report
}

// scan lists folder for regular files with a recognized extension, in name
// order, old enough to be complete.
func (m *Monitor) scan(folder string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(folder) // sorted by filename
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !config.HasExtension(e.Name(), m.opts.Extensions) {
			continue
		}
		if m.opts.MinFileAge > 0 {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) < m.opts.MinFileAge {
				continue
			}
		}
		paths = append(paths, filepath.Join(folder, e.Name()))
	}
	return paths, nil
}

func (m *Monitor) submit(ctx context.Context, target printer.Target, batch []string) {
	defer m.subs.Done()

	for i, path := range batch {
		if ctx.Err() != nil {
			for _, rest := range batch[i:] {
				m.release(rest)
			}
			m.logger.Info("submission cancelled", "unsent", len(batch)-i)
			return
		}
		res := m.disp.Dispatch(ctx, dispatch.FileSource{Path: path, Origin: dispatch.OriginMonitored}, target)
		m.settle(res)
	}
}

// settle deletes a fully processed file and then clears its marker. Any
// other outcome leaves the file for a later tick.
func (m *Monitor) settle(res dispatch.Result) {
	path := res.Source.Path
	defer m.release(path)

	if !res.FullyProcessed() {
		if delay := m.backoff.failed(path, m.now()); delay > 0 {
			m.logger.Info("delaying retry of failed file", "path", path, "delay", delay.String())
		}
		return
	}
	m.backoff.succeeded(path)

	if err := m.removeFile(path); err != nil {
		fae := &dispatch.FileAccessError{Path: path, Op: "delete", Err: err}
		m.logger.Error("failed to delete printed file", "path", path, "error", err)
		m.notifier.Notify(notify.Message{
			Level:   notify.LevelError,
			Event:   events.TypeMonitorError,
			Path:    path,
			Printer: string(res.Target),
			Text:    fmt.Sprintf("printed but could not delete: %v", fae),
			Fields:  map[string]any{"error": fae.Error()},
		})
		return
	}

	metrics.RecordDelete()
	m.notifier.Notify(notify.Message{
		Level:   notify.LevelInfo,
		Event:   events.TypeFileDeleted,
		Path:    path,
		Printer: string(res.Target),
		Text:    fmt.Sprintf("%s removed after printing", filepath.Base(path)),
	})
}

func (m *Monitor) release(path string) {
	m.inflight.Release(path)
	metrics.SetInFlight(m.inflight.Len())
}

func (m *Monitor) maybePrune(ctx context.Context) {
	if m.history == nil || m.opts.HistoryRetention <= 0 {
		return
	}
	now := m.now()
	if !m.lastPrune.IsZero() && now.Sub(m.lastPrune) < pruneEvery {
		return
	}
	m.lastPrune = now
	n, err := m.history.Prune(ctx, m.opts.HistoryRetention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Error("failed to prune dispatch history", "error", err)
		}
		return
	}
	if n > 0 {
		m.logger.Info("pruned dispatch history", "rows", n)
	}
}

// signal wakes the loop without blocking. Multiple signals before the next
// tick collapse into one.
func (m *Monitor) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
