package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/labelspool/internal/api"
	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/notify"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(t *testing.T, id int64, typ string, msg notify.Message, at time.Time) events.Event {
	t.Helper()
	msg.Event = typ
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: at, Data: data}
}

func TestFilesFollowDispatchLifecycle(t *testing.T) {
	f := NewFiles()

	f.Apply(event(t, 1, events.TypeMonitorTick, notify.Message{
		Printer: "zebra",
		Fields:  map[string]any{"files": []string{"/in/a.zpl", "/in/b.zpl"}},
	}, t0))
	require.Equal(t, 2, f.Len())
	a, ok := f.Get("/in/a.zpl")
	require.True(t, ok)
	assert.Equal(t, StatusQueued, a.Status)

	f.Apply(event(t, 2, events.TypeBlockSent, notify.Message{
		Path: "/in/a.zpl", Printer: "zebra",
		Fields: map[string]any{"block": 1, "blocks_total": 2},
	}, t0.Add(time.Second)))
	a, _ = f.Get("/in/a.zpl")
	assert.Equal(t, StatusPrinting, a.Status)
	assert.Equal(t, 1, a.BlocksSent)
	assert.Equal(t, 2, a.BlocksTotal)

	f.Apply(event(t, 3, events.TypeFilePrinted, notify.Message{
		Path: "/in/a.zpl", Printer: "zebra",
		Fields: map[string]any{"origin": "monitored", "blocks_total": 2, "blocks_succeeded": 2},
	}, t0.Add(2*time.Second)))
	a, _ = f.Get("/in/a.zpl")
	assert.Equal(t, StatusPrinted, a.Status)
	assert.Equal(t, "2/2", blocksColumn(a))
	assert.Equal(t, "2s", durationColumn(a))

	f.Apply(event(t, 4, events.TypeFileDeleted, notify.Message{Path: "/in/a.zpl"}, t0.Add(3*time.Second)))
	a, _ = f.Get("/in/a.zpl")
	assert.Equal(t, StatusDeleted, a.Status)

	f.Apply(event(t, 5, events.TypeFileFailed, notify.Message{
		Path: "/in/b.zpl", Printer: "zebra",
		Fields: map[string]any{"blocks_total": 3, "blocks_succeeded": 1, "error": "connection refused"},
	}, t0.Add(4*time.Second)))
	b, _ := f.Get("/in/b.zpl")
	assert.Equal(t, StatusFailed, b.Status)
	assert.Equal(t, "connection refused", b.Error)
	assert.Equal(t, "1/3", blocksColumn(b))

	rows := f.Rows(NewDefaultTheme())
	require.Len(t, rows, 2)
	assert.Equal(t, "b.zpl", rows[0][1], "newest file first")
}

func TestFilesRetryStartsOver(t *testing.T) {
	f := NewFiles()
	f.Apply(event(t, 1, events.TypeFileFailed, notify.Message{
		Path: "/in/a.zpl", Fields: map[string]any{"blocks_total": 2, "blocks_succeeded": 1, "error": "x"},
	}, t0))
	f.Apply(event(t, 2, events.TypeBlockSent, notify.Message{
		Path: "/in/a.zpl", Fields: map[string]any{"block": 1, "blocks_total": 2},
	}, t0.Add(time.Minute)))

	a, _ := f.Get("/in/a.zpl")
	assert.Equal(t, StatusPrinting, a.Status)
	assert.Empty(t, a.Error)
	assert.Equal(t, t0.Add(time.Minute), a.StartTime)
	assert.Equal(t, 1, f.Len())
}

func TestFilesAreCapped(t *testing.T) {
	f := NewFiles()
	for i := 0; i < maxTrackedFiles+10; i++ {
		f.Apply(event(t, int64(i+1), events.TypeBlockSent, notify.Message{
			Path: fmt.Sprintf("/in/%03d.zpl", i), Fields: map[string]any{"block": 1, "blocks_total": 1},
		}, t0))
	}
	assert.Equal(t, maxTrackedFiles, f.Len())
	_, ok := f.Get("/in/000.zpl")
	assert.False(t, ok, "oldest file should be evicted")
}

func TestFilesIgnoreGarbage(t *testing.T) {
	f := NewFiles()
	f.Apply(events.Event{Type: events.TypeFilePrinted, Data: []byte("not json")})
	f.Apply(events.Event{Type: events.TypeFilePrinted, Data: []byte(`{}`)})
	assert.Equal(t, 0, f.Len())
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"id: 7",
		"event: file.printed",
		`data: {"path":"/in/a.zpl"}`,
		"",
		": keep-alive",
		"",
		"id: 8",
		"event: block.sent",
		`data: {"path":"/in/b.zpl"}`,
		"",
	}, "\n")

	var got []events.Event
	require.NoError(t, readSSE(strings.NewReader(stream), func(e events.Event) { got = append(got, e) }))
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.TypeFilePrinted, got[0].Type)
	assert.JSONEq(t, `{"path":"/in/a.zpl"}`, string(got[0].Data))
	assert.Equal(t, events.TypeBlockSent, got[1].Type)
}

func TestSubscribeToEventsResumesAfterLastID(t *testing.T) {
	var lastEventID, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastEventID = r.Header.Get("Last-Event-ID")
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id: 4\nevent: file.deleted\ndata: {\"path\":\"/in/a.zpl\"}\n\n")
	}))
	defer srv.Close()

	ch := make(chan events.Event, 4)
	msg := subscribeToEvents(srv.URL, "k", 3, ch)()

	_, disconnected := msg.(sseDisconnectedMsg)
	assert.True(t, disconnected)
	assert.Equal(t, "3", lastEventID)
	assert.Equal(t, "Bearer k", auth)
	require.Len(t, ch, 1)
	assert.Equal(t, int64(4), (<-ch).ID)
}

func TestSubscribeToEventsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	msg := subscribeToEvents(srv.URL, "bad", 0, make(chan events.Event, 1))()
	d, ok := msg.(sseDisconnectedMsg)
	require.True(t, ok)
	assert.ErrorContains(t, d.err, "401")
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.HealthzResponse{Status: "ok", Printer: "zebra", InFlight: 2})
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL, "k")
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "zebra", h.Printer)
	assert.Equal(t, 2, h.InFlight)
}

func TestModelAppliesEventsAndRenders(t *testing.T) {
	m := *New("http://127.0.0.1:0", "k")
	m.now = func() time.Time { return t0.Add(5 * time.Second) }

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(healthMsg(api.HealthzResponse{Status: "ok", Printer: "zebra", Folder: "/in"}))
	model, _ = model.Update(eventMsg(event(t, 9, events.TypeMonitorTick, notify.Message{
		Printer: "zebra", Fields: map[string]any{"files": []string{"/in/a.zpl"}},
	}, t0)))
	model, _ = model.Update(eventMsg(event(t, 10, events.TypeFilePrinted, notify.Message{
		Path: "/in/a.zpl", Printer: "zebra", Text: "a.zpl printed",
		Fields: map[string]any{"blocks_total": 1, "blocks_succeeded": 1},
	}, t0.Add(time.Second))))

	got := model.(Model)
	assert.Equal(t, int64(10), got.lastID)
	assert.Equal(t, 1, got.totals.Printed)
	assert.True(t, got.health.Connected)
	assert.Equal(t, t0, got.ticker.LastTick())

	view := got.View()
	assert.Contains(t, view, "LABELSPOOL")
	assert.Contains(t, view, "zebra")
	assert.Contains(t, view, "a.zpl")
	assert.Contains(t, view, "file.printed")
}

func TestModelDisconnectSchedulesReconnect(t *testing.T) {
	m := *New("http://127.0.0.1:0", "k")
	model, cmd := m.Update(sseDisconnectedMsg{})
	require.NotNil(t, cmd)
	got := model.(Model)
	assert.False(t, got.health.Connected)
	assert.Contains(t, got.lastError, "reconnecting")

	_, cmd = got.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestDescribeEvent(t *testing.T) {
	e := event(t, 1, events.TypeFileFailed, notify.Message{
		Path: "/in/deep/a.zpl", Printer: "zebra", Text: "failed after 1 of 3 blocks",
	}, t0)
	assert.Equal(t, "a.zpl → zebra failed after 1 of 3 blocks", describeEvent(e))

	raw := events.Event{Type: "other", Data: []byte(strings.Repeat("x", 80))}
	assert.True(t, strings.HasSuffix(describeEvent(raw), "..."))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", formatDuration(185*time.Second))
	assert.Equal(t, "2h 1m", formatDuration(121*time.Minute))
}

func TestActivityDecay(t *testing.T) {
	var a Activity
	a.OnEvent(t0)
	a.Decay(t0.Add(3 * time.Second))
	assert.Equal(t, 4, a.dots)
	a.Decay(t0.Add(11 * time.Second))
	assert.Equal(t, 0, a.dots)
}
