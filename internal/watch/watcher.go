// Package watch polls files for changes. It backs the config reload
// trigger and the batch-file commands.
package watch

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultInterval = 500 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the polling interval. The default is 500ms.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce suppresses a change that follows the previous change to
// any watched file by less than d. Every change still restarts the window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithContentHash ignores writes that leave a file's content unchanged.
func WithContentHash() Option {
	return func(w *Watcher) {
		w.hash = true
	}
}

// WithLogger sets the logger for stat and read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

// Watcher reports files that were created or modified. Removing a file is
// not a change.
type Watcher struct {
	paths    []string
	onChange func(path string)
	interval time.Duration
	debounce time.Duration
	hash     bool
	logger   *slog.Logger

	mu         sync.Mutex
	state      map[string]fileState
	lastChange time.Time
	now        func() time.Time
}

// New watches paths and calls onChange from the Run goroutine. The
// initial state is taken at construction, so files that already exist
// are not reported.
func New(paths []string, onChange func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		paths:    append([]string(nil), paths...),
		onChange: onChange,
		interval: defaultInterval,
		logger:   slog.New(slog.DiscardHandler),
		state:    make(map[string]fileState, len(paths)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range w.paths {
		w.state[p] = w.stat(p)
	}
	return w
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	var changed []string

	w.mu.Lock()
	for _, p := range w.paths {
		next := w.stat(p)
		prev := w.state[p]
		w.state[p] = next
		if !next.exists || !modified(prev, next, w.hash) {
			continue
		}

		now := w.now()
		quiet := w.lastChange.IsZero() || now.Sub(w.lastChange) >= w.debounce
		w.lastChange = now
		if quiet {
			changed = append(changed, p)
		} else {
			w.logger.Debug("file change debounced", "path", p)
		}
	}
	w.mu.Unlock()

	// Callbacks run outside the lock.
	for _, p := range changed {
		w.onChange(p)
	}
}

func modified(prev, next fileState, byContent bool) bool {
	if !prev.exists {
		return true
	}
	if byContent {
		return prev.sum != next.sum
	}
	return !prev.modTime.Equal(next.modTime) || prev.size != next.size
}

func (w *Watcher) stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("watch: cannot stat file", "path", path, "error", err.Error())
		}
		return fileState{}
	}

	st := fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
	if !w.hash {
		return st
	}

	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("watch: cannot open file", "path", path, "error", err.Error())
		return st
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		w.logger.Warn("watch: cannot read file", "path", path, "error", err.Error())
		return st
	}
	copy(st.sum[:], h.Sum(nil))
	return st
}

// BatchPaths joins each batch file name onto dir.
func BatchPaths(dir string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out
}
