package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/dispatch"
	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/notify"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/storage"
)

// app is the wired dispatch stack shared by start, print and scan.
type app struct {
	cfg        *config.Config
	configPath string
	selection  *config.SelectionStore
	db         *sql.DB
	history    *history.Store
	hub        *events.Hub
	spooler    *printer.Spooler
	notifier   notify.Notifier
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// loadConfig resolves --config, $LABELSPOOL_CONFIG, the standard locations,
// and finally the built-in defaults.
func loadConfig(configPath string) (*config.Config, string, error) {
	return config.LoadOrDefault(configPath)
}

func selectionStore(cfg *config.Config) *config.SelectionStore {
	return config.NewSelectionStore(cfg.SelectionFile(), cfg.DefaultSelection())
}

// setupLogging sends logs to stderr so command output on stdout stays clean.
func setupLogging(cfg *config.Config) {
	log.SetupFormat(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
}

// openApp opens the history database and builds the dispatcher. extra
// notifiers receive every message after the built-in ones.
func openApp(ctx context.Context, cfg *config.Config, configPath string, extra ...notify.Notifier) (*app, error) {
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		selection:  selectionStore(cfg),
		db:         db,
		history:    history.New(db),
		hub:        events.NewHub(256),
		logger:     log.WithComponent("main"),
	}

	a.spooler = printer.New(printer.Options{
		Aliases:      cfg.Printer.Aliases,
		DialTimeout:  cfg.Printer.DialTimeout,
		WriteTimeout: cfg.Printer.WriteTimeout,
		DocumentName: cfg.Printer.DocumentName,
		LPCommand:    cfg.Printer.LPCommand,
	})

	notifiers := []notify.Notifier{
		notify.Log(log.WithComponent("notify")),
		notify.Hub(a.hub),
	}
	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.Desktop(cfg.Service.Name, log.WithComponent("notify")))
	}
	notifiers = append(notifiers, extra...)
	a.notifier = notify.Multi(notifiers...)

	a.dispatcher = dispatch.New(a.spooler,
		dispatch.WithPacing(cfg.Printer.Pacing),
		dispatch.WithNotifier(a.notifier),
		dispatch.WithRecorder(a.history),
		dispatch.WithLogger(log.WithComponent("dispatch")),
	)
	return a, nil
}

func (a *app) printers(ctx context.Context) ([]string, error) {
	return printer.List(ctx, a.cfg.Printer.Aliases)
}

func (a *app) Close() error {
	return a.db.Close()
}
