package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBacklogKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := range 5 {
		h.Publish(TypeBlockSent, map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].ID)
	assert.Equal(t, int64(5), snap[2].ID)

	var data map[string]int
	require.NoError(t, json.Unmarshal(snap[2].Data, &data))
	assert.Equal(t, 4, data["n"])

	assert.Len(t, h.SnapshotSince(4), 1)
}

func TestHubSubscribeAndCancel(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(TypeFilePrinted, nil)
	select {
	case ev := <-ch:
		assert.Equal(t, TypeFilePrinted, ev.Type)
		assert.Equal(t, "{}", string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	// Cancel is idempotent.
	cancel()
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 1000 {
			h.Publish(TypeMonitorTick, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(1000-subscriberBuffer), h.Dropped())
	assert.Len(t, h.SnapshotSince(0), 4)
}

func TestHubResumeAfterLastID(t *testing.T) {
	h := NewHub(10)
	for range 6 {
		h.Publish(TypeBlockSent, nil)
	}

	snap := h.SnapshotSince(4)
	require.Len(t, snap, 2)
	assert.Equal(t, int64(5), snap[0].ID)
	assert.Equal(t, int64(6), snap[1].ID)
	assert.Empty(t, h.SnapshotSince(6))
	assert.Equal(t, int64(0), h.Dropped())
}
