package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/labelspool/internal/api"
)

// HealthState is the last /healthz answer plus connection status.
type HealthState struct {
	api.HealthzResponse
	Connected bool
	LastCheck time.Time
}

// Totals counts file outcomes seen since the dashboard started.
type Totals struct {
	Printed int
	Failed  int
	Deleted int
}

func renderHeader(health HealthState, totals Totals, ticker Ticker, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}
	lastTick := "never"
	if !ticker.LastTick().IsZero() {
		lastTick = fmt.Sprintf("%s ago", now.Sub(ticker.LastTick()).Round(time.Second))
	}

	titleText := fmt.Sprintf(" LABELSPOOL %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  ⏱ %s  Printer: %s  Folder: %s",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		orDash(health.Printer),
		orDash(health.Folder),
	)

	countsLine := fmt.Sprintf(" In flight: %d  Printed: %s  Failed: %s  Deleted: %d",
		health.InFlight,
		theme.StatusOK.Render(fmt.Sprint(totals.Printed)),
		theme.StatusFailed.Render(fmt.Sprint(totals.Failed)),
		totals.Deleted,
	)

	activityLine := fmt.Sprintf(" Last event: %s %s  Last scan: %s",
		lastEvent, activity.Render(theme), lastTick)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		countsLine,
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
