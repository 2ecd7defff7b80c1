package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *changes) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestCheckReportsCreateAndModify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wotv")
	base := time.Now().Add(-time.Hour)

	var got changes
	w := New([]string{path}, got.add)

	w.check()
	require.Empty(t, got.all())

	writeFile(t, path, "a", base)
	w.check()
	require.Equal(t, []string{path}, got.all())

	w.check()
	require.Len(t, got.all(), 1)

	writeFile(t, path, "a", base.Add(time.Second))
	w.check()
	require.Len(t, got.all(), 2)

	require.NoError(t, os.Remove(path))
	w.check()
	require.Len(t, got.all(), 2)
}

func TestExistingFilesAreNotReportedAtStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	writeFile(t, path, "[Speech]", time.Now().Add(-time.Minute))

	var got changes
	w := New([]string{path}, got.add)
	w.check()
	require.Empty(t, got.all())
}

func TestDebounceSuppressesBurstAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	paths := BatchPaths(dir, []string{"wotv", "", "ivrqs"})
	require.Equal(t, []string{filepath.Join(dir, "wotv"), filepath.Join(dir, "ivrqs")}, paths)

	var got changes
	w := New(paths, got.add, WithDebounce(200*time.Millisecond))
	clock := time.Unix(1000, 0)
	w.now = func() time.Time { return clock }
	base := time.Now().Add(-time.Hour)

	writeFile(t, paths[0], "1", base)
	w.check()
	require.Equal(t, []string{paths[0]}, got.all())

	clock = clock.Add(100 * time.Millisecond)
	writeFile(t, paths[1], "1", base)
	w.check()
	require.Len(t, got.all(), 1)

	// The suppressed change restarted the window.
	clock = clock.Add(150 * time.Millisecond)
	writeFile(t, paths[0], "2", base.Add(time.Second))
	w.check()
	require.Len(t, got.all(), 1)

	clock = clock.Add(250 * time.Millisecond)
	writeFile(t, paths[1], "2", base.Add(time.Second))
	w.check()
	require.Equal(t, []string{paths[0], paths[1]}, got.all())
}

func TestContentHashIgnoresTouch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	base := time.Now().Add(-time.Hour)
	writeFile(t, path, "[Speech]\nLocale=en-US\n", base)

	var got changes
	w := New([]string{path}, got.add, WithContentHash())

	writeFile(t, path, "[Speech]\nLocale=en-US\n", base.Add(time.Second))
	w.check()
	require.Empty(t, got.all())

	writeFile(t, path, "[Speech]\nLocale=de-DE\n", base.Add(2*time.Second))
	w.check()
	require.Equal(t, []string{path}, got.all())
}

func TestRunPollsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ivrqs")

	var got changes
	w := New([]string{path}, got.add, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, "x", time.Now())
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
