package rules

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsPresetFiles(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Watch(ctx, dir) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	path := filepath.Join(dir, "live.yaml")
	// The watcher may not be registered yet, so keep rewriting until it picks the file up.
	assert.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: live_v\n    delta_v: 0.5\n"), 0644))
		return slices.Contains(engine.Names(), "live_v")
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "live.yaml", engine.List()[0].Source)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: live_q\n    delta_q: 1\n"), 0644))
	assert.Eventually(t, func() bool {
		return slices.Equal(engine.Names(), []string{"live_q"})
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("rules: []"), 0644))

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, engine.IsEmpty, 5*time.Second, 20*time.Millisecond)
}
