package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- rule_name: a\n  condition: x\n"), 0o644))

	store, _ := newTestStore()
	_, err := store.LoadFile(path)
	require.NoError(t, err)

	w := NewWatcher(store, path, nil, testLogger())
	reloaded := make(chan int, 4)
	w.OnReload(func(n int) { reloaded <- n })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("- rule_name: a\n  condition: x\n- rule_name: b\n  condition: y\n"), 0o644))

	select {
	case n := <-reloaded:
		require.Equal(t, 2, n)
	case <-time.After(5 * time.Second):
		t.Fatal("rules were not reloaded")
	}
	require.Len(t, store.GetAll(), 2)

	cancel()
	require.NoError(t, <-done)
}
