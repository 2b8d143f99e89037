package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
printer:
  name: zebra
watch:
  folder: /srv/labels
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "zebra", cfg.Printer.Name)
				assert.Equal(t, "/srv/labels", cfg.Watch.Folder)
				assert.Equal(t, 3*time.Second, cfg.Watch.Interval)
				assert.Equal(t, 50*time.Millisecond, cfg.Printer.Pacing)
				assert.Equal(t, []string{".txt", ".zpl"}, cfg.Watch.Extensions)
				assert.Equal(t, "label", cfg.Printer.DocumentName)
				assert.Equal(t, "info", cfg.Service.LogLevel)
			},
		},
		{
			name: "empty file yields defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "labelspool", cfg.Service.Name)
				assert.Equal(t, "./data/state.db", cfg.State.Path)
			},
		},
		{
			name: "durations and extensions normalized",
			yaml: `
service:
  log_level: DEBUG
printer:
  pacing: 120ms
  aliases:
    zebra: socket://10.0.0.5:9100
watch:
  interval: 2s
  extensions: [ZPL, ".Txt", "zpl", "prn"]
  failure_backoff: 10s
  failure_backoff_max: 1s
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Service.LogLevel)
				assert.Equal(t, 120*time.Millisecond, cfg.Printer.Pacing)
				assert.Equal(t, 2*time.Second, cfg.Watch.Interval)
				assert.Equal(t, []string{".zpl", ".txt", ".prn"}, cfg.Watch.Extensions)
				assert.Equal(t, "socket://10.0.0.5:9100", cfg.Printer.Aliases["zebra"])
				assert.Equal(t, 10*time.Second, cfg.Watch.FailureBackoffMax, "max raised to base")
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  listen: 127.0.0.1:9999
  auth:
    api_key: ${LABELSPOOL_TEST_KEY}
`,
			env: map[string]string{"LABELSPOOL_TEST_KEY": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "s3cret", cfg.API.Auth.APIKey)
			},
		},
		{
			name: "unset env var in api key",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${LABELSPOOL_DEFINITELY_UNSET}
`,
			wantErr: "LABELSPOOL_DEFINITELY_UNSET",
		},
		{
			name:    "zero interval rejected",
			yaml:    "watch:\n  interval: 0s\n",
			wantErr: "watch.interval must be positive",
		},
		{
			name:    "negative pacing rejected",
			yaml:    "printer:\n  pacing: -1s\n",
			wantErr: "printer.pacing",
		},
		{
			name:    "alias without scheme rejected",
			yaml:    "printer:\n  aliases:\n    zebra: 10.0.0.5\n",
			wantErr: "not a printer uri",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad log format",
			yaml:    "service:\n  log_format: xml\n",
			wantErr: "service.log_format",
		},
		{
			name:    "unknown field",
			yaml:    "printer:\n  colour: red\n",
			wantErr: "parse yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("printer:\n  name: office\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "office", cfg.Printer.Name)

	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml not found")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "config file not found"))
}

func TestLoadOrDefaultUsesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("printer:\n  name: envprinter\n"), 0o644))
	t.Setenv("LABELSPOOL_CONFIG", path)

	cfg, used, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "envprinter", cfg.Printer.Name)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Defaults()
	cfg.State.Path = "/var/lib/labelspool/state.db"
	assert.Equal(t, "/var/lib/labelspool/selection.yaml", cfg.SelectionFile())
	assert.Equal(t, "/var/lib/labelspool/labelspool.lock", cfg.LockFile())

	cfg.State.SelectionPath = "/etc/labelspool/selection.yaml"
	assert.Equal(t, "/etc/labelspool/selection.yaml", cfg.SelectionFile())
}

func TestHasExtension(t *testing.T) {
	exts := NormalizeExtensions([]string{"zpl", ".TXT"})
	assert.True(t, HasExtension("/a/b/LABEL.ZPL", exts))
	assert.True(t, HasExtension("x.txt", exts))
	assert.False(t, HasExtension("x.zpl.tmp", exts))
	assert.False(t, HasExtension("zpl", exts))
	assert.False(t, HasExtension("x.pdf", exts))
}
