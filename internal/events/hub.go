// Package events fans dispatch progress out to live listeners (the SSE
// endpoint and, through it, the watch dashboard). A bounded backlog lets a
// reconnecting listener resume from the last event ID it saw.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the dispatch pipeline.
const (
	TypeBlockSent    = "block.sent"
	TypeFilePrinted  = "file.printed"
	TypeFileFailed   = "file.failed"
	TypeFileDeleted  = "file.deleted"
	TypeMonitorTick  = "monitor.tick"
	TypeMonitorError = "monitor.error"
)

const (
	defaultBacklog   = 100
	subscriberBuffer = 128
)

// Event is one published notification. IDs start at 1 and increase by one
// per Publish.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

type listener struct {
	ch chan Event
}

// Hub holds the recent backlog and the live listeners. Publish never waits
// on a listener: one whose buffer is full misses the event, and the miss is
// counted in Dropped.
type Hub struct {
	mu        sync.Mutex
	lastID    int64
	backlog   []Event // oldest first, at most limit long
	limit     int
	listeners map[*listener]struct{}
	dropped   int64
}

// NewHub keeps the last backlog events for late listeners.
func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{
		backlog:   make([]Event, 0, backlog),
		limit:     backlog,
		listeners: make(map[*listener]struct{}),
	}
}

// Publish stamps data as the next event and delivers it. A nil data
// publishes "{}".
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}

	h.backlog = append(h.backlog, ev)
	if over := len(h.backlog) - h.limit; over > 0 {
		h.backlog = h.backlog[over:]
	}

	for l := range h.listeners {
		select {
		case l.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a listener. The returned cancel closes the channel and
// may be called more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	l := &listener{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, l)
			close(l.ch)
			h.mu.Unlock()
		})
	}
	return l.ch, cancel
}

// SnapshotSince returns backlog events with ID > lastID, oldest first.
// lastID 0 returns the whole backlog.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.backlog))
	for _, ev := range h.backlog {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Dropped reports how many deliveries were skipped because a listener was
// full.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
