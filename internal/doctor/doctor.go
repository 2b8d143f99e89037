// Package doctor checks a labelspool configuration against the machine it
// runs on: printer resolution, the watched folder, and local state.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a config together with the saved selection.
type Doctor struct {
	cfg *config.Config
	sel config.Selection

	lookPath    func(string) (string, error)
	networkFS   func(string) (string, bool, error)
	localFS     func(string) error
	resolveWith *printer.Spooler
}

// New creates a Doctor from a loaded config and the effective selection.
func New(cfg *config.Config, sel config.Selection) *Doctor {
	return &Doctor{
		cfg:       cfg,
		sel:       sel,
		lookPath:  exec.LookPath,
		networkFS: storage.NetworkFilesystem,
		localFS:   storage.CheckLocalFilesystem,
		resolveWith: printer.New(printer.Options{
			Aliases:   cfg.Printer.Aliases,
			LPCommand: cfg.Printer.LPCommand,
		}),
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateState(r)
	d.validateAliases(r)
	d.validatePrinter(r)
	d.validateFolder(r)
	d.validateAPIConfig(r)
	d.warnSuspiciousTiming(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateState checks that the history database can live where configured.
func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	if err := d.localFS(d.cfg.State.Path); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

// validateAliases checks that every alias names a backend we can drive.
func (d *Doctor) validateAliases(r *Result) {
	names := make([]string, 0, len(d.cfg.Printer.Aliases))
	for name := range d.cfg.Printer.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d.checkTarget(r, "printer.aliases."+name, printer.Target(name))
	}
}

// validatePrinter checks the selected printer.
func (d *Doctor) validatePrinter(r *Result) {
	if strings.TrimSpace(d.sel.Printer) == "" {
		d.addWarning(r, "printer", "printer.name",
			"no printer selected; the monitor idles and print requests fail until one is chosen")
		return
	}
	if _, isAlias := d.cfg.Printer.Aliases[d.sel.Printer]; isAlias {
		return // already checked with the aliases
	}
	d.checkTarget(r, "printer.name", printer.Target(d.sel.Printer))
}

func (d *Doctor) checkTarget(r *Result, field string, target printer.Target) {
	u, err := d.resolveWith.Resolve(target)
	if err != nil {
		d.addError(r, "printer", field, err.Error())
		return
	}

	switch u.Scheme {
	case "socket", "tcp":
		if _, port, err := net.SplitHostPort(u.Host); err != nil || port == "" {
			d.addError(r, "printer", field,
				fmt.Sprintf("printer %q: socket uri needs host:port (for example socket://10.0.0.5:9100)", target))
		}
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			d.addError(r, "printer", field, fmt.Sprintf("printer %q: file uri has no path", target))
			return
		}
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			d.addWarning(r, "printer", field,
				fmt.Sprintf("printer %q: directory of %s is not accessible: %v", target, path, err))
		}
	case "lp":
		if u.Host == "" {
			d.addError(r, "printer", field, fmt.Sprintf("printer %q: lp uri has no queue name", target))
			return
		}
		if _, err := d.lookPath(d.cfg.Printer.LPCommand); err != nil {
			d.addError(r, "printer", field,
				fmt.Sprintf("printer %q needs CUPS but %q is not on PATH", target, d.cfg.Printer.LPCommand))
		}
	default:
		d.addError(r, "printer", field,
			fmt.Sprintf("printer %q: unknown scheme %q (expected socket, file, or lp)", target, u.Scheme))
	}
}

// validateFolder checks the watched folder.
func (d *Doctor) validateFolder(r *Result) {
	folder := strings.TrimSpace(d.sel.Folder)
	if folder == "" {
		d.addWarning(r, "watch", "watch.folder", "no folder selected; the monitor idles until one is chosen")
		return
	}

	info, err := os.Stat(folder)
	if err != nil {
		d.addError(r, "watch", "watch.folder", fmt.Sprintf("folder %q: %v", folder, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "watch", "watch.folder", fmt.Sprintf("folder %q is not a directory", folder))
		return
	}
	if _, err := os.ReadDir(folder); err != nil {
		d.addError(r, "watch", "watch.folder", fmt.Sprintf("folder %q is not readable: %v", folder, err))
		return
	}

	fsType, network, err := d.networkFS(folder)
	if err != nil {
		d.addWarning(r, "watch", "watch.folder", fmt.Sprintf("cannot detect filesystem of %q: %v", folder, err))
		return
	}
	if network && d.cfg.Watch.Notify {
		d.addWarning(r, "watch", "watch.notify",
			fmt.Sprintf("folder %q is on %s; change notifications miss remote writes, polling every %s still applies",
				folder, fsType, d.cfg.Watch.Interval))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when the API is enabled")
	} else if _, _, err := net.SplitHostPort(d.cfg.API.Listen); err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("api.listen %q: %v", d.cfg.API.Listen, err))
	}
	if d.cfg.API.Auth.APIKey == "" {
		d.addWarning(r, "api", "api.auth.api_key",
			"API enabled without an api_key; every authenticated endpoint will answer 401")
	}
}

// warnSuspiciousTiming flags values that are legal but likely mistakes.
func (d *Doctor) warnSuspiciousTiming(r *Result) {
	if d.cfg.Watch.Interval > 0 && d.cfg.Watch.Interval < 500*time.Millisecond {
		d.addWarning(r, "timing", "watch.interval",
			fmt.Sprintf("watch.interval %s is very short (< 500ms)", d.cfg.Watch.Interval))
	}
	if d.cfg.Printer.Pacing > 5*time.Second {
		d.addWarning(r, "timing", "printer.pacing",
			fmt.Sprintf("printer.pacing %s makes multi-label files very slow", d.cfg.Printer.Pacing))
	}
	if d.cfg.History.Retention == 0 {
		d.addWarning(r, "timing", "history.retention", "history.retention is 0; the dispatch log is never pruned")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, is Issue) {
	if is.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, is.Category, is.Field, is.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, is.Category, is.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
