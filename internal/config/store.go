package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Selection is the operator's current choice of printer and watched folder.
// Either field may be empty, meaning "not chosen yet".
type Selection struct {
	Printer string `yaml:"printer" json:"printer"`
	Folder  string `yaml:"folder" json:"folder"`
}

// SelectionStore persists the Selection. It is the only place the selection
// is stored; everything else receives a Selection value per call.
type SelectionStore struct {
	path     string
	defaults Selection

	mu sync.Mutex
}

// NewSelectionStore stores the selection at path. defaults fill fields that
// were never saved.
func NewSelectionStore(path string, defaults Selection) *SelectionStore {
	return &SelectionStore{path: path, defaults: defaults}
}

// Path returns the backing file.
func (s *SelectionStore) Path() string { return s.path }

// Load returns the saved selection layered over the defaults. A missing file
// is not an error.
func (s *SelectionStore) Load() (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := s.defaults
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return sel, nil
	}
	if err != nil {
		return sel, fmt.Errorf("read selection %s: %w", s.path, err)
	}

	var saved Selection
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return sel, fmt.Errorf("parse selection %s: %w", s.path, err)
	}
	if v := strings.TrimSpace(saved.Printer); v != "" {
		sel.Printer = v
	}
	if v := strings.TrimSpace(saved.Folder); v != "" {
		sel.Folder = v
	}
	return sel, nil
}

// Save writes the selection atomically (temp file + rename).
func (s *SelectionStore) Save(sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel.Printer = strings.TrimSpace(sel.Printer)
	sel.Folder = strings.TrimSpace(sel.Folder)

	data, err := yaml.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create selection directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".selection-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp selection: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close selection: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace selection: %w", err)
	}
	return nil
}
