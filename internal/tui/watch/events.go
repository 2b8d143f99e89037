package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/notify"
)

const visibleEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeFilePrinted, events.TypeFileDeleted:
		typeStyle = theme.StatusOK
	case events.TypeFileFailed, events.TypeMonitorError:
		typeStyle = theme.StatusFailed
	case events.TypeBlockSent:
		typeStyle = theme.StatusRunning
	case events.TypeMonitorTick:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-14s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent shortens a notification payload to one line.
func describeEvent(e events.Event) string {
	var msg notify.Message
	if err := json.Unmarshal(e.Data, &msg); err != nil || (msg.Text == "" && msg.Path == "") {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	var parts []string
	if msg.Path != "" && e.Type != events.TypeMonitorTick {
		parts = append(parts, filepath.Base(msg.Path))
	}
	if msg.Printer != "" {
		parts = append(parts, "→ "+msg.Printer)
	}
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, " ")
}
