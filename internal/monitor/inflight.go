package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// InFlightSet tracks paths that have been picked up and whose dispatch has
// not finished. A path in the set is never submitted again.
type InFlightSet struct {
	mu    sync.Mutex
	paths map[string]time.Time
}

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{paths: make(map[string]time.Time)}
}

// TryAcquire marks path in flight. It returns false if it already was.
func (s *InFlightSet) TryAcquire(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; ok {
		return false
	}
	s.paths[path] = time.Now()
	return true
}

// Release clears the marker for path. Releasing a path that is not in
// flight means the bookkeeping is broken, so it panics.
func (s *InFlightSet) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paths[path]; !ok {
		panic(fmt.Sprintf("monitor: release of %q which is not in flight", path))
	}
	delete(s.paths, path)
}

func (s *InFlightSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Snapshot returns the in-flight paths sorted by name.
func (s *InFlightSet) Snapshot() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}
