package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/notify"
)

const maxTrackedFiles = 100

// File statuses shown in the files panel.
const (
	StatusQueued   = "queued"
	StatusPrinting = "printing"
	StatusPrinted  = "printed"
	StatusFailed   = "failed"
	StatusDeleted  = "deleted"
)

// FileState tracks one label file seen on the event stream.
type FileState struct {
	Path        string
	Printer     string
	Origin      string
	Status      string
	BlocksSent  int
	BlocksTotal int
	Error       string
	StartTime   time.Time
	EndTime     time.Time
}

// Files keeps per-file state, newest first.
type Files struct {
	byPath map[string]*FileState
	order  []string
}

func NewFiles() *Files {
	return &Files{byPath: make(map[string]*FileState)}
}

// Len returns how many files are tracked.
func (f *Files) Len() int { return len(f.order) }

// Get returns the state for path, if tracked.
func (f *Files) Get(path string) (*FileState, bool) {
	s, ok := f.byPath[path]
	return s, ok
}

// touch returns the state for path and moves it to the front. A file that
// finished earlier starts over when it shows up again.
func (f *Files) touch(path string, now time.Time) *FileState {
	s, ok := f.byPath[path]
	if ok && s.EndTime.IsZero() {
		return s
	}
	if ok {
		f.remove(path)
	}
	s = &FileState{Path: path, StartTime: now}
	f.byPath[path] = s
	f.order = append([]string{path}, f.order...)
	for len(f.order) > maxTrackedFiles {
		f.remove(f.order[len(f.order)-1])
	}
	return s
}

func (f *Files) remove(path string) {
	delete(f.byPath, path)
	for i, p := range f.order {
		if p == path {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

// Apply folds one dispatch event into the file table.
func (f *Files) Apply(e events.Event) {
	var msg notify.Message
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return
	}
	now := e.At
	if now.IsZero() {
		now = time.Now()
	}

	switch e.Type {
	case events.TypeMonitorTick:
		raw, _ := msg.Fields["files"].([]any)
		for _, v := range raw {
			if path, ok := v.(string); ok {
				s := f.touch(path, now)
				s.Status = StatusQueued
				s.Printer = msg.Printer
				s.Origin = "monitored"
			}
		}

	case events.TypeBlockSent:
		if msg.Path == "" {
			return
		}
		s := f.touch(msg.Path, now)
		s.Status = StatusPrinting
		s.Printer = msg.Printer
		s.BlocksSent = intField(msg.Fields, "block")
		s.BlocksTotal = intField(msg.Fields, "blocks_total")

	case events.TypeFilePrinted, events.TypeFileFailed:
		if msg.Path == "" {
			return
		}
		s := f.touch(msg.Path, now)
		s.Printer = msg.Printer
		if origin, ok := msg.Fields["origin"].(string); ok {
			s.Origin = origin
		}
		s.BlocksSent = intField(msg.Fields, "blocks_succeeded")
		s.BlocksTotal = intField(msg.Fields, "blocks_total")
		s.EndTime = now
		if e.Type == events.TypeFilePrinted {
			s.Status = StatusPrinted
		} else {
			s.Status = StatusFailed
			s.Error, _ = msg.Fields["error"].(string)
		}

	case events.TypeFileDeleted:
		if s, ok := f.byPath[msg.Path]; ok {
			s.Status = StatusDeleted
		}
	}
}

// intField reads a JSON number that arrived as float64.
func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Rows renders the tracked files for the bubbles table.
func (f *Files) Rows(theme Theme) []table.Row {
	rows := make([]table.Row, 0, len(f.order))
	for _, path := range f.order {
		s := f.byPath[path]
		rows = append(rows, table.Row{
			statusSymbol(s.Status, theme),
			filepath.Base(s.Path),
			s.Printer,
			blocksColumn(s),
			durationColumn(s),
			s.Error,
		})
	}
	return rows
}

func statusSymbol(status string, theme Theme) string {
	switch status {
	case StatusQueued:
		return theme.StatusQueued.Render("○")
	case StatusPrinting:
		return theme.StatusRunning.Render("◉")
	case StatusPrinted:
		return theme.StatusOK.Render("●")
	case StatusDeleted:
		return theme.StatusDead.Render("✓")
	case StatusFailed:
		return theme.StatusFailed.Render("∅")
	}
	return "○"
}

func blocksColumn(s *FileState) string {
	if s.BlocksTotal == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", s.BlocksSent, s.BlocksTotal)
}

func durationColumn(s *FileState) string {
	if s.EndTime.IsZero() {
		return "-"
	}
	return s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String()
}

func newFilesTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "File", Width: 28},
			{Title: "Printer", Width: 16},
			{Title: "Blocks", Width: 8},
			{Title: "Took", Width: 10},
			{Title: "Error", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func renderFiles(t table.Model, theme Theme, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("FILES"),
		t.View(),
	)
	return theme.Border.Width(width - 4).Render(content)
}
