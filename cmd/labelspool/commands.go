package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/labelspool/internal/api"
	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/doctor"
	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/lock"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/monitor"
	"github.com/mattjoyce/labelspool/internal/notify"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/storage"
	"github.com/mattjoyce/labelspool/internal/submit"
	"github.com/mattjoyce/labelspool/internal/tui/watch"
	"github.com/mattjoyce/labelspool/internal/zpl"
)

const apiKeyEnv = "LABELSPOOL_API_KEY"

func runPrint(args []string) int {
	fs := flag.NewFlagSet("print", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	printerName := fs.String("printer", "", "Printer to use instead of the selected one")
	jsonOut := fs.Bool("json", false, "Output results as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: labelspool print [--printer NAME] [--json] FILE...")
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	target := strings.TrimSpace(*printerName)
	if target == "" {
		sel, err := selectionStore(cfg).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load selection: %v\n", err)
			return 1
		}
		target = sel.Printer
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "Failed to print: no printer selected (use --printer or 'labelspool select --printer NAME')")
		return 1
	}

	pidLock, err := acquireDispatchLock(cfg, "print")
	if err != nil {
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print: %v\n", err)
		return 1
	}
	defer a.Close()

	results := submit.New(a.dispatcher, cfg.Watch.Extensions).Submit(ctx, submit.Abs(files), printer.Target(target))
	allPrinted := submit.AllPrinted(results)

	if *jsonOut {
		resp := api.PrintResponse{Results: make([]api.FileResult, 0, len(results)), AllPrinted: allPrinted}
		for _, r := range results {
			resp.Results = append(resp.Results, api.FileResultFrom(r))
		}
		if code := printJSON(resp); code != 0 {
			return code
		}
	} else {
		for _, r := range results {
			fr := api.FileResultFrom(r)
			if fr.Printed {
				fmt.Printf("✓ %s → %s (%d/%d blocks)\n", fr.Path, fr.Printer, fr.BlocksSucceeded, fr.BlocksTotal)
				continue
			}
			fmt.Printf("✗ %s → %s (%d/%d blocks): %s\n", fr.Path, fr.Printer, fr.BlocksSucceeded, fr.BlocksTotal, fr.Error)
		}
	}
	for _, r := range results {
		if !r.FullyProcessed() {
			log.WithFile(r.Source.Path).Warn("file not printed", "printer", string(r.Target), "error", r.ErrorString())
		}
	}

	if !allPrinted {
		return 1
	}
	return 0
}

// acquireDispatchLock takes the instance lock before anything reaches the
// printer. Printer access is exclusive, so a one-shot command must not run
// beside 'labelspool start'. Failures are reported on stderr.
func acquireDispatchLock(cfg *config.Config, verb string) (*lock.PIDLock, error) {
	pidLock, err := lock.Acquire(cfg.LockFile())
	if err == nil {
		return pidLock, nil
	}

	fmt.Fprintf(os.Stderr, "Failed to %s: %v\n", verb, err)
	var held *lock.HeldError
	if errors.As(err, &held) {
		if cfg.API.Enabled {
			fmt.Fprintf(os.Stderr, "Hint: submit files to the running instance with POST %s/print\n",
				baseURLFromListen(cfg.API.Listen))
		} else {
			fmt.Fprintln(os.Stderr, "Hint: stop 'labelspool start', or enable the API and use POST /print")
		}
	}
	return nil, err
}

// scanSummary collects the terminal outcome of each file in a one-shot scan.
type scanSummary struct {
	mu      sync.Mutex
	Printed []string
	Failed  []string
	Deleted []string
	Errors  []string
}

func (s *scanSummary) collect(msg notify.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Event {
	case events.TypeFilePrinted:
		s.Printed = append(s.Printed, msg.Path)
	case events.TypeFileFailed:
		s.Failed = append(s.Failed, msg.Path)
	case events.TypeFileDeleted:
		s.Deleted = append(s.Deleted, msg.Path)
	case events.TypeMonitorError:
		s.Errors = append(s.Errors, msg.Text)
	}
}

type scanOutput struct {
	Report  monitor.TickReport `json:"report"`
	Printed []string           `json:"printed"`
	Failed  []string           `json:"failed"`
	Deleted []string           `json:"deleted"`
	Errors  []string           `json:"errors,omitempty"`
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output the pass as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	pidLock, err := acquireDispatchLock(cfg, "scan")
	if err != nil {
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := &scanSummary{}
	a, err := openApp(ctx, cfg, path, notify.Func(summary.collect))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to scan: %v\n", err)
		return 1
	}
	defer a.Close()

	opts := monitor.OptionsFromConfig(cfg)
	opts.Notify = false
	mon := monitor.New(opts, monitor.Deps{
		Dispatcher: a.dispatcher,
		Selection:  a.selection,
		Notifier:   a.notifier,
		History:    a.history,
		Logger:     log.WithComponent("monitor"),
	})
	report := mon.Tick(ctx)
	mon.Wait()

	summary.mu.Lock()
	out := scanOutput{
		Report:  report,
		Printed: summary.Printed,
		Failed:  summary.Failed,
		Deleted: summary.Deleted,
		Errors:  summary.Errors,
	}
	summary.mu.Unlock()

	code := 0
	if report.Skipped != "" || report.Err != nil || len(out.Failed) > 0 || len(out.Errors) > 0 {
		code = 1
	}

	if *jsonOut {
		if c := printJSON(out); c != 0 {
			return c
		}
		return code
	}

	switch {
	case report.Skipped != "":
		fmt.Printf("Nothing scanned: %s\n", report.Skipped)
		return code
	case report.Err != nil:
		fmt.Fprintf(os.Stderr, "Failed to scan: %v\n", report.Err)
		return code
	}

	fmt.Printf("Folder:   %s\n", report.Folder)
	fmt.Printf("Printer:  %s\n", report.Printer)
	fmt.Printf("Found:    %d\n", report.Found)
	fmt.Printf("Printed:  %d\n", len(out.Printed))
	fmt.Printf("Deleted:  %d\n", len(out.Deleted))
	if len(report.Deferred) > 0 {
		fmt.Printf("Deferred: %d\n", len(report.Deferred))
	}
	for _, p := range out.Failed {
		fmt.Printf("✗ %s\n", p)
	}
	for _, e := range out.Errors {
		fmt.Printf("! %s\n", e)
	}
	return code
}

type inspectResult struct {
	Path   string `json:"path"`
	Blocks int    `json:"blocks"`
	Bytes  int    `json:"bytes"`
	Hash   string `json:"blake3,omitempty"`
	Error  string `json:"error,omitempty"`
}

func inspectFile(path string) inspectResult {
	res := inspectResult{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	sum := blake3.Sum256(data)
	res.Bytes = len(data)
	res.Hash = hex.EncodeToString(sum[:])
	res.Blocks = zpl.Count(string(data))
	if res.Blocks == 0 {
		res.Error = "no printable content"
	}
	return res
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: labelspool inspect [--json] FILE...")
		return 1
	}

	results := make([]inspectResult, 0, fs.NArg())
	code := 0
	for _, p := range fs.Args() {
		r := inspectFile(p)
		if r.Error != "" {
			code = 1
		}
		results = append(results, r)
	}

	if *jsonOut {
		if c := printJSON(results); c != 0 {
			return c
		}
		return code
	}

	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("%s: %s\n", r.Path, r.Error)
			continue
		}
		fmt.Printf("%s: %d label(s), %d bytes, blake3 %s\n", r.Path, r.Blocks, r.Bytes, r.Hash[:16])
	}
	return code
}

func runPrinters(args []string) int {
	fs := flag.NewFlagSet("printers", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := printer.List(ctx, cfg.Printer.Aliases)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not list CUPS queues: %v\n", err)
	}
	sel, err := selectionStore(cfg).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if *jsonOut {
		if names == nil {
			names = []string{}
		}
		return printJSON(api.PrintersResponse{Printers: names, Selected: sel.Printer})
	}

	if len(names) == 0 {
		fmt.Println("No printers found. Add printer.aliases to the config or install CUPS.")
		return 0
	}
	for _, n := range names {
		mark := " "
		if n == sel.Printer {
			mark = "*"
		}
		if uri, ok := cfg.Printer.Aliases[n]; ok {
			fmt.Printf("%s %-20s %s\n", mark, n, uri)
			continue
		}
		fmt.Printf("%s %-20s (cups)\n", mark, n)
	}
	return 0
}

func runSelect(args []string) int {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	printerName := fs.String("printer", "", "Printer name or alias")
	folder := fs.String("folder", "", "Folder to watch")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	store := selectionStore(cfg)
	sel, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load selection: %v\n", err)
		return 1
	}

	if !set["printer"] && !set["folder"] {
		printSelection(sel, store.Path())
		return 0
	}

	if set["printer"] {
		sel.Printer = strings.TrimSpace(*printerName)
	}
	if set["folder"] {
		sel.Folder = strings.TrimSpace(*folder)
		if sel.Folder != "" {
			abs, err := filepath.Abs(sel.Folder)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to resolve folder: %v\n", err)
				return 1
			}
			info, err := os.Stat(abs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to select folder: %v\n", err)
				return 1
			}
			if !info.IsDir() {
				fmt.Fprintf(os.Stderr, "Failed to select folder: %s is not a directory\n", abs)
				return 1
			}
			sel.Folder = abs
		}
	}

	if err := store.Save(sel); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save selection: %v\n", err)
		return 1
	}
	printSelection(sel, store.Path())
	return 0
}

func printSelection(sel config.Selection, path string) {
	fmt.Printf("Printer: %s\n", orNone(sel.Printer))
	fmt.Printf("Folder:  %s\n", orNone(sel.Folder))
	fmt.Printf("Saved in %s\n", path)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be at least 1")
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.New(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		if entries == nil {
			entries = []history.Entry{}
		}
		return printJSON(api.HistoryResponse{Entries: entries})
	}

	if len(entries) == 0 {
		fmt.Println("No dispatches recorded.")
		return 0
	}
	for _, e := range entries {
		status := "✓"
		if !e.Succeeded() {
			status = "✗"
		}
		line := fmt.Sprintf("%s %s %-9s %-12s %d/%d %s",
			status,
			e.CompletedAt.Local().Format("2006-01-02 15:04:05"),
			e.Origin,
			e.Printer,
			e.BlocksSucceeded, e.BlocksTotal,
			e.Path,
		)
		if e.Error != "" {
			line += "  (" + e.Error + ")"
		}
		fmt.Println(line)
	}
	return 0
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		if *jsonOut {
			printJSON(doctor.Result{
				Valid:  false,
				Errors: []doctor.Issue{{Category: "config", Message: err.Error()}},
			})
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	sel, err := selectionStore(cfg).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	result := doctor.New(cfg, sel).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	switch {
	case !result.Valid:
		return 1
	case len(result.Warnings) > 0:
		return 2
	default:
		return 0
	}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	apiURL := fs.String("api", "", "API base URL")
	apiKey := fs.String("api-key", "", "Bearer API key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	url := strings.TrimRight(strings.TrimSpace(*apiURL), "/")
	if url == "" {
		url = baseURLFromListen(cfg.API.Listen)
	}
	key := strings.TrimSpace(*apiKey)
	if key == "" {
		key = cfg.API.Auth.APIKey
	}
	if key == "" {
		key = os.Getenv(apiKeyEnv)
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "Failed to start watch: no API key (use --api-key, api.auth.api_key or $%s)\n", apiKeyEnv)
		return 1
	}

	p := tea.NewProgram(watch.New(url, key), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run watch: %v\n", err)
		return 1
	}
	return 0
}

// baseURLFromListen turns a listen address into a URL a local client can
// dial. Wildcard hosts become loopback.
func baseURLFromListen(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
