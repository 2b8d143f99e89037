// Package notify reports dispatch outcomes to people and tools. Every
// Notifier is fire-and-forget: Notify must return without waiting on the
// delivery of the message.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/labelspool/internal/events"
)

// Level is the severity of a Message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Message is one report. Event is one of the events.Type* constants.
type Message struct {
	Level   Level          `json:"level"`
	Event   string         `json:"event"`
	Path    string         `json:"path,omitempty"`
	Printer string         `json:"printer,omitempty"`
	Text    string         `json:"text"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier receives reports.
type Notifier interface {
	Notify(Message)
}

// Func adapts a function to Notifier.
type Func func(Message)

func (f Func) Notify(m Message) { f(m) }

// Nop drops everything.
var Nop Notifier = Func(func(Message) {})

// Multi fans a message out to every non-nil notifier in order.
func Multi(ns ...Notifier) Notifier {
	var out []Notifier
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return Func(func(m Message) {
		for _, n := range out {
			n.Notify(m)
		}
	})
}

// Log writes messages to a structured logger.
func Log(logger *slog.Logger) Notifier {
	return Func(func(m Message) {
		args := []any{"event", m.Event}
		if m.Path != "" {
			args = append(args, "path", m.Path)
		}
		if m.Printer != "" {
			args = append(args, "printer", m.Printer)
		}
		for k, v := range m.Fields {
			args = append(args, k, v)
		}
		switch m.Level {
		case LevelError:
			logger.Error(m.Text, args...)
		case LevelWarn:
			logger.Warn(m.Text, args...)
		default:
			logger.Info(m.Text, args...)
		}
	})
}

// Hub publishes messages on the event hub under their Event type.
func Hub(h *events.Hub) Notifier {
	return Func(func(m Message) {
		h.Publish(m.Event, m)
	})
}

// desktopCommand is a var so tests can swap it.
var desktopCommand = "notify-send"

// Desktop shows file-level outcomes as desktop notifications through
// notify-send. Per-block messages are skipped. Each notification runs in its
// own goroutine with a short timeout.
func Desktop(appName string, logger *slog.Logger) Notifier {
	return Func(func(m Message) {
		if !strings.HasPrefix(m.Event, "file.") && !strings.HasPrefix(m.Event, "monitor.error") {
			return
		}
		urgency := "normal"
		if m.Level == LevelError {
			urgency = "critical"
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			cmd := exec.CommandContext(ctx, desktopCommand, "-a", appName, "-u", urgency, appName, m.Text)
			if err := cmd.Run(); err != nil {
				logger.Debug("desktop notification failed", "error", err)
			}
		}()
	})
}
