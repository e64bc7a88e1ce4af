package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(settings, []byte(`{}`), 0600))

	rec := &recorder{}
	w, err := New(rec.record, settings)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(settings, []byte(`{"SEMDEDUP_WORKER_PORT": 1}`), 0600))
	}

	require.Eventually(t, func() bool { return len(rec.get()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{settings}, rec.get(), "burst should be debounced into one callback")
}

func TestWatcher_DetectsRemove(t *testing.T) {
	dir := t.TempDir()
	sources := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(sources, []byte("sources: []"), 0600))

	rec := &recorder{}
	w, err := New(rec.record, sources)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.Remove(sources))
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w, err := New(func(string) {}, filepath.Join(t.TempDir(), "missing", "settings.json"))
	require.NoError(t, err)
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
