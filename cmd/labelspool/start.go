package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/labelspool/internal/api"
	"github.com/mattjoyce/labelspool/internal/lock"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/monitor"
	"github.com/mattjoyce/labelspool/internal/submit"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "No config file found; using built-in defaults")
	}

	log.SetupFormat(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("labelspool starting", "version", version, "config", path)

	pidLock, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.LockFile(), "error", err)
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	a, err := openApp(ctx, cfg, path)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		return 1
	}
	defer a.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	mon := monitor.New(monitor.OptionsFromConfig(cfg), monitor.Deps{
		Dispatcher: a.dispatcher,
		Selection:  a.selection,
		Notifier:   a.notifier,
		History:    a.history,
		Logger:     log.WithComponent("monitor"),
	})

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		srv := newAPIServer(a, mon)
		go func() {
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if err := mon.Start(ctx); err != nil {
		logger.Error("failed to start monitor", "error", err)
		return 1
	}

	sel, _ := a.selection.Load()
	log.WithPrinter(sel.Printer).Info("labelspool running (press Ctrl+C to stop)", "folder", sel.Folder)

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}

	cancel()
	mon.Stop()
	logger.Info("labelspool stopped")
	return code
}

func newAPIServer(a *app, mon *monitor.Monitor) *api.Server {
	return api.New(api.Config{
		Listen:  a.cfg.API.Listen,
		APIKey:  a.cfg.API.Auth.APIKey,
		Version: currentVersionInfo().Version,
	}, api.Deps{
		Submitter: submit.New(a.dispatcher, a.cfg.Watch.Extensions),
		History:   a.history,
		Printers:  api.PrinterListerFunc(a.printers),
		Selection: a.selection,
		Monitor:   mon,
		Events:    a.hub,
	}, log.WithComponent("api"))
}
