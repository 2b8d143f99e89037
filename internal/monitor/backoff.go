package monitor

import (
	"sync"
	"time"
)

type failure struct {
	count int
	until time.Time
}

// fileBackoff delays re-submission of files that keep failing. A nil
// *fileBackoff never delays anything.
type fileBackoff struct {
	base time.Duration
	max  time.Duration

	mu    sync.Mutex
	files map[string]failure
}

func newFileBackoff(base, maxDelay time.Duration) *fileBackoff {
	if base <= 0 {
		return nil
	}
	if maxDelay < base {
		maxDelay = base
	}
	return &fileBackoff{base: base, max: maxDelay, files: make(map[string]failure)}
}

// ready reports whether path may be submitted at now.
func (b *fileBackoff) ready(path string, now time.Time) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[path]
	return !ok || !now.Before(f.until)
}

// failed records another consecutive failure and returns the delay before
// the next attempt.
func (b *fileBackoff) failed(path string, now time.Time) time.Duration {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.files[path]
	f.count++
	delay := b.delay(f.count)
	f.until = now.Add(delay)
	b.files[path] = f
	return delay
}

func (b *fileBackoff) succeeded(path string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, path)
}

// retain forgets files that are no longer in the folder.
func (b *fileBackoff) retain(present map[string]struct{}) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.files {
		if _, ok := present[p]; !ok {
			delete(b.files, p)
		}
	}
}

func (b *fileBackoff) delay(attempts int) time.Duration {
	delay := b.base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= b.max {
			return b.max
		}
	}
	return delay
}
