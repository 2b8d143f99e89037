package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by Discover when no config file exists anywhere.
var ErrNoConfig = errors.New("no config found")

// Load reads and parses configuration from a file, layered over Defaults.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, interpolates ${ENV} references, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $LABELSPOOL_CONFIG, ~/.config/labelspool/config.yaml, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv("LABELSPOOL_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "labelspool", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: $LABELSPOOL_CONFIG, ~/.config/labelspool/config.yaml, ./config.yaml)", ErrNoConfig)
}

// LoadOrDefault loads configPath, or the discovered config when configPath is
// empty. With nothing to discover it falls back to Defaults.
func LoadOrDefault(configPath string) (*Config, string, error) {
	if configPath == "" {
		discovered, err := Discover()
		if errors.Is(err, ErrNoConfig) {
			cfg := Defaults()
			applyConfigDefaults(cfg)
			return cfg, "", nil
		}
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Service.LogFormat))
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Printer.DocumentName == "" {
		cfg.Printer.DocumentName = defaults.Printer.DocumentName
	}
	if cfg.Printer.LPCommand == "" {
		cfg.Printer.LPCommand = defaults.Printer.LPCommand
	}
	if cfg.Printer.Aliases == nil {
		cfg.Printer.Aliases = make(map[string]string)
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = defaults.Watch.Extensions
	}
	cfg.Watch.Extensions = NormalizeExtensions(cfg.Watch.Extensions)
	if cfg.Watch.FailureBackoff > 0 && cfg.Watch.FailureBackoffMax < cfg.Watch.FailureBackoff {
		cfg.Watch.FailureBackoffMax = cfg.Watch.FailureBackoff
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive")
	}
	if cfg.Watch.MinFileAge < 0 {
		return fmt.Errorf("watch.min_file_age must not be negative")
	}
	if cfg.Watch.FailureBackoff < 0 {
		return fmt.Errorf("watch.failure_backoff must not be negative")
	}
	if len(cfg.Watch.Extensions) == 0 {
		return fmt.Errorf("watch.extensions must not be empty")
	}

	if cfg.Printer.Pacing < 0 {
		return fmt.Errorf("printer.pacing must not be negative")
	}
	for name, uri := range cfg.Printer.Aliases {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("printer.aliases: empty alias name")
		}
		if !strings.Contains(uri, "://") {
			return fmt.Errorf("printer.aliases.%s: %q is not a printer uri (expected scheme://...)", name, uri)
		}
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey); len(matches) > 1 {
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	return nil
}
