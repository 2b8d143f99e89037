package monitor

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/labelspool/internal/config"
)

// watcher follows one folder with fsnotify and wakes the loop when a label
// file shows up. The poll ticker stays authoritative; events only shorten
// the wait.
type watcher struct {
	fs     *fsnotify.Watcher
	folder string
	once   sync.Once
}

// ensureWatch points the watcher at folder, creating it on first use.
// Failures are logged and leave the monitor polling.
func (m *Monitor) ensureWatch(folder string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.stopCh:
		return
	default:
	}

	if m.watcher != nil && m.watcher.folder == folder {
		return
	}

	if m.watcher == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			m.logger.Warn("filesystem notifications unavailable, polling only", "error", err)
			return
		}
		m.watcher = &watcher{fs: fsw}
		m.wg.Add(1)
		go m.watchLoop(m.watcher)
	}

	if m.watcher.folder != "" {
		_ = m.watcher.fs.Remove(m.watcher.folder)
	}
	if err := m.watcher.fs.Add(folder); err != nil {
		m.logger.Warn("cannot watch folder, polling only", "folder", folder, "error", err)
		m.watcher.folder = ""
		return
	}
	m.watcher.folder = folder
	m.logger.Debug("watching folder for changes", "folder", folder)
}

func (m *Monitor) watchLoop(w *watcher) {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if relevant(ev, m.opts.Extensions) {
				m.signal()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			m.logger.Warn("file watcher error", "error", err)
		case <-m.stopCh:
			return
		}
	}
}

func relevant(ev fsnotify.Event, exts []string) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return config.HasExtension(ev.Name, exts)
}

func (w *watcher) close() {
	w.once.Do(func() { _ = w.fs.Close() })
}
