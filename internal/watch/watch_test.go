package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_FiresAfterChange(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fired := make(chan struct{}, 1)
	go func() {
		_ = w.Run(ctx, func(context.Context) {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watch loop a moment to start before generating events.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte("all:\n"), 0o644))

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("expected onChange to fire after a file write")
	}
}

func TestWatcher_PicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	w.debounceTime = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fired := make(chan struct{}, 4)
	go func() {
		_ = w.Run(ctx, func(context.Context) { fired <- struct{}{} })
	}()

	time.Sleep(100 * time.Millisecond)
	sub := filepath.Join(dir, "sql")
	require.NoError(t, os.Mkdir(sub, 0o755))

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("expected onChange for new directory")
	}

	// A write inside the new directory must also be seen.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "pair.sql"), []byte("--"), 0o644))
	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatal("expected onChange for file in new directory")
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(context.Context) {}) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
