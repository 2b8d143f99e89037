package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/log"
	"github.com/mattjoyce/labelspool/internal/notify"
	"github.com/mattjoyce/labelspool/internal/printer"
	"github.com/mattjoyce/labelspool/internal/printer/mocks"
)

const threeLabels = "^XA^FDone^FS^XZ\n^XA^FDtwo^FS^XZ\n^XA^FDthree^FS^XZ\n"

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func writeLabelFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.zpl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Notify(m notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recordingNotifier) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}

type memRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (m *memRecorder) Record(ctx context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func TestDispatchAllBlocksInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, threeLabels)

	gomock.InOrder(
		port.EXPECT().Send(gomock.Any(), printer.Target("zebra"), []byte("^XA^FDone^FS^XZ")).Return(nil),
		port.EXPECT().Send(gomock.Any(), printer.Target("zebra"), []byte("^XA^FDtwo^FS^XZ")).Return(nil),
		port.EXPECT().Send(gomock.Any(), printer.Target("zebra"), []byte("^XA^FDthree^FS^XZ")).Return(nil),
	)

	n := &recordingNotifier{}
	rec := &memRecorder{}
	d := New(port, WithPacing(0), WithNotifier(n), WithRecorder(rec))

	res := d.Dispatch(context.Background(), FileSource{Path: path, Origin: OriginMonitored}, "zebra")

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.BlocksTotal)
	assert.Equal(t, 3, res.BlocksSucceeded)
	assert.True(t, res.FullyProcessed())
	assert.Equal(t, "printed", res.Outcome())
	assert.Len(t, res.ContentHash, 64)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))

	assert.Equal(t, []string{
		events.TypeBlockSent, events.TypeBlockSent, events.TypeBlockSent, events.TypeFilePrinted,
	}, n.events())

	require.Len(t, rec.entries, 1)
	assert.Equal(t, res.ID, rec.entries[0].ID)
	assert.Equal(t, "monitored", rec.entries[0].Origin)
	assert.True(t, rec.entries[0].Succeeded())

	_, err := os.Stat(path)
	assert.NoError(t, err, "dispatcher never deletes files")
}

func TestDispatchStopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, threeLabels)

	sendErr := &printer.PrintError{Target: "zebra", Op: "write", Err: errors.New("broken pipe")}
	gomock.InOrder(
		port.EXPECT().Send(gomock.Any(), gomock.Any(), []byte("^XA^FDone^FS^XZ")).Return(nil),
		port.EXPECT().Send(gomock.Any(), gomock.Any(), []byte("^XA^FDtwo^FS^XZ")).Return(sendErr),
	)
	// A third Send would fail the strict mock.

	n := &recordingNotifier{}
	rec := &memRecorder{}
	d := New(port, WithPacing(0), WithNotifier(n), WithRecorder(rec))

	res := d.Dispatch(context.Background(), FileSource{Path: path, Origin: OriginMonitored}, "zebra")

	assert.Equal(t, 3, res.BlocksTotal)
	assert.Equal(t, 1, res.BlocksSucceeded)
	assert.False(t, res.FullyProcessed())
	assert.Equal(t, "partial", res.Outcome())

	var pe *printer.PrintError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "write", pe.Op)

	assert.Equal(t, []string{events.TypeBlockSent, events.TypeFileFailed}, n.events())
	require.Len(t, rec.entries, 1)
	assert.Contains(t, rec.entries[0].Error, "broken pipe")
}

func TestDispatchZeroBlocks(t *testing.T) {
	for _, content := range []string{"", "   \n\t", "^XZ", "^XZ\n^XZ\n"} {
		ctrl := gomock.NewController(t)
		port := mocks.NewMockPort(ctrl)
		path := writeLabelFile(t, content)

		res := New(port, WithPacing(0)).Dispatch(context.Background(), FileSource{Path: path, Origin: OriginMonitored}, "zebra")

		assert.Equal(t, 0, res.BlocksTotal, "content %q", content)
		assert.Equal(t, 0, res.BlocksSucceeded)
		assert.False(t, res.FullyProcessed())
		assert.ErrorIs(t, res.Err, ErrNoPrintableContent)

		var se *SplitError
		require.ErrorAs(t, res.Err, &se)
		assert.Equal(t, path, se.Path)
	}
}

func TestDispatchReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	missing := filepath.Join(t.TempDir(), "gone.zpl")

	res := New(port).Dispatch(context.Background(), FileSource{Path: missing, Origin: OriginManual}, "zebra")

	var fae *FileAccessError
	require.ErrorAs(t, res.Err, &fae)
	assert.Equal(t, "read", fae.Op)
	assert.Equal(t, missing, fae.Path)
	assert.ErrorIs(t, res.Err, os.ErrNotExist)
	assert.Equal(t, 0, res.BlocksTotal)
	assert.Empty(t, res.ContentHash)
}

func TestDispatchPrinterUnset(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, threeLabels)

	res := New(port).Dispatch(context.Background(), FileSource{Path: path, Origin: OriginManual}, "")

	assert.ErrorIs(t, res.Err, ErrPrinterUnset)
	assert.Equal(t, 0, res.BlocksTotal)
	assert.False(t, res.FullyProcessed())
}

func TestDispatchCancelledMidFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, threeLabels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port.EXPECT().Send(gomock.Any(), gomock.Any(), []byte("^XA^FDone^FS^XZ")).
		DoAndReturn(func(context.Context, printer.Target, []byte) error {
			cancel()
			return nil
		})

	res := New(port, WithPacing(time.Second)).Dispatch(ctx, FileSource{Path: path, Origin: OriginMonitored}, "zebra")

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 3, res.BlocksTotal)
	assert.Equal(t, 1, res.BlocksSucceeded)
	assert.False(t, res.FullyProcessed())
}

func TestDispatchCancelAfterLastBlockStillComplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, "^XA^FDonly^FS^XZ")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, printer.Target, []byte) error {
			cancel()
			return nil
		})

	res := New(port, WithPacing(time.Second)).Dispatch(ctx, FileSource{Path: path, Origin: OriginMonitored}, "zebra")

	require.NoError(t, res.Err)
	assert.True(t, res.FullyProcessed())
}

func TestDispatchPacing(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, threeLabels)

	var sentAt []time.Time
	port.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, printer.Target, []byte) error {
			sentAt = append(sentAt, time.Now())
			return nil
		}).Times(3)

	pacing := 30 * time.Millisecond
	res := New(port, WithPacing(pacing)).Dispatch(context.Background(), FileSource{Path: path, Origin: OriginManual}, "zebra")

	require.NoError(t, res.Err)
	require.Len(t, sentAt, 3)
	for i := 1; i < len(sentAt); i++ {
		assert.GreaterOrEqual(t, sentAt[i].Sub(sentAt[i-1]), pacing, "gap before block %d", i+1)
	}
	assert.GreaterOrEqual(t, res.CompletedAt.Sub(res.StartedAt), 3*pacing, "pause follows every block")
}

// countingPort tracks how many Sends run at once.
type countingPort struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
}

func (p *countingPort) Send(ctx context.Context, target printer.Target, data []byte) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	p.calls.Add(1)
	time.Sleep(2 * time.Millisecond)
	return nil
}

func TestDispatchSerializesConcurrentCallers(t *testing.T) {
	port := &countingPort{}
	d := New(port, WithPacing(time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		path := writeLabelFile(t, threeLabels)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.Dispatch(context.Background(), FileSource{Path: path, Origin: OriginManual}, "zebra")
			assert.NoError(t, res.Err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 18, port.calls.Load())
	assert.EqualValues(t, 1, port.maxSeen.Load(), "printer must never be shared")
}

func TestDispatchWaitForSlotHonoursContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, "^XA^XZ")

	entered := make(chan struct{})
	release := make(chan struct{})
	port.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, printer.Target, []byte) error {
			close(entered)
			<-release
			return nil
		})

	d := New(port, WithPacing(0))
	done := make(chan Result, 1)
	go func() {
		done <- d.Dispatch(context.Background(), FileSource{Path: path, Origin: OriginManual}, "zebra")
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiting := d.Dispatch(ctx, FileSource{Path: path, Origin: OriginManual}, "zebra")
	assert.ErrorIs(t, waiting.Err, context.DeadlineExceeded)
	assert.Equal(t, 0, waiting.BlocksTotal)

	close(release)
	first := <-done
	assert.True(t, first.FullyProcessed())
}

func TestDispatchRecorderErrorDoesNotChangeResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	port := mocks.NewMockPort(ctrl)
	path := writeLabelFile(t, "^XA^XZ")
	port.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	rec := &memRecorder{err: errors.New("disk full")}
	res := New(port, WithPacing(0), WithRecorder(rec)).Dispatch(context.Background(), FileSource{Path: path, Origin: OriginManual}, "zebra")

	require.NoError(t, res.Err)
	assert.Len(t, rec.entries, 1)
}

func TestResultFullyProcessed(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want bool
	}{
		{"all sent", Result{BlocksTotal: 3, BlocksSucceeded: 3}, true},
		{"partial", Result{BlocksTotal: 3, BlocksSucceeded: 1, Err: errors.New("x")}, false},
		{"zero blocks", Result{Err: &SplitError{Path: "a"}}, false},
		{"zero blocks no error", Result{}, false},
		{"counts match but error", Result{BlocksTotal: 1, BlocksSucceeded: 1, Err: context.Canceled}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.res.FullyProcessed())
		})
	}
}

func TestErrorStrings(t *testing.T) {
	se := &SplitError{Path: "/in/a.zpl"}
	assert.Equal(t, "/in/a.zpl: no printable content", se.Error())

	fae := &FileAccessError{Path: "/in/a.zpl", Op: "delete", Err: os.ErrPermission}
	assert.Equal(t, "delete /in/a.zpl: permission denied", fae.Error())
	assert.ErrorIs(t, fae, os.ErrPermission)
}
