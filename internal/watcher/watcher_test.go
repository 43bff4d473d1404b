package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: a\n"), 0600))

	var calls atomic.Int32
	w, err := New(path, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("api_key: b\n"), 0600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")

	var calls atomic.Int32
	w, err := New(path, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x"), 0600))

	time.Sleep(3 * DefaultDebounce)
	assert.Zero(t, calls.Load())
}

func TestWatcher_StartMissingParent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "settings.yml"), nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Start())
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "settings.yml"), nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
