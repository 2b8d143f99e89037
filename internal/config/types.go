package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete labelspool configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Printer PrinterConfig `yaml:"printer"`
	Watch   WatchConfig   `yaml:"watch"`
	State   StateConfig   `yaml:"state"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// PrinterConfig defines how labels reach the printer.
type PrinterConfig struct {
	// Name is the default target when no selection has been saved.
	Name         string            `yaml:"name"`
	Pacing       time.Duration     `yaml:"pacing"`
	DialTimeout  time.Duration     `yaml:"dial_timeout"`
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	DocumentName string            `yaml:"document_name"`
	LPCommand    string            `yaml:"lp_command,omitempty"`
	Aliases      map[string]string `yaml:"aliases,omitempty"`
}

// WatchConfig defines folder monitoring.
type WatchConfig struct {
	// Folder is the default watched folder when no selection has been saved.
	Folder            string        `yaml:"folder"`
	Interval          time.Duration `yaml:"interval"`
	Extensions        []string      `yaml:"extensions"`
	Notify            bool          `yaml:"notify"`
	MinFileAge        time.Duration `yaml:"min_file_age,omitempty"`
	FailureBackoff    time.Duration `yaml:"failure_backoff,omitempty"`
	FailureBackoffMax time.Duration `yaml:"failure_backoff_max,omitempty"`
}

// StateConfig defines local state storage.
type StateConfig struct {
	Path          string `yaml:"path"`
	SelectionPath string `yaml:"selection_path,omitempty"`
}

// HistoryConfig defines dispatch log retention.
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// NotifyConfig selects notification sinks beyond the log.
type NotifyConfig struct {
	Desktop bool `yaml:"desktop"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "labelspool",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Printer: PrinterConfig{
			Pacing:       50 * time.Millisecond,
			DialTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			DocumentName: "label",
			LPCommand:    "lp",
			Aliases:      make(map[string]string),
		},
		Watch: WatchConfig{
			Interval:          3 * time.Second,
			Extensions:        []string{".txt", ".zpl"},
			FailureBackoffMax: 5 * time.Minute,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8631",
		},
	}
}

// SelectionFile returns where the printer/folder selection is persisted.
func (c *Config) SelectionFile() string {
	if c.State.SelectionPath != "" {
		return c.State.SelectionPath
	}
	return filepath.Join(filepath.Dir(c.State.Path), "selection.yaml")
}

// LockFile returns the single-instance PID lock path.
func (c *Config) LockFile() string {
	return filepath.Join(filepath.Dir(c.State.Path), "labelspool.lock")
}

// DefaultSelection is the selection implied by the config file alone.
func (c *Config) DefaultSelection() Selection {
	return Selection{Printer: c.Printer.Name, Folder: c.Watch.Folder}
}

// NormalizeExtensions lowercases entries and ensures a leading dot.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// HasExtension reports whether path ends in one of exts, ignoring case.
// exts must already be normalized.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
