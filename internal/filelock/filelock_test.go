package filelock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithLock_SerializesWithinProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.md")

	var active int32
	var sawOverlap bool
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(path, func() error {
				n := atomic.AddInt32(&active, 1)
				if n > 1 {
					mu.Lock()
					sawOverlap = true
					mu.Unlock()
				}
				atomic.AddInt32(&active, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.False(t, sawOverlap, "expected holders of the same key to never run concurrently")
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	err := WithLock(path, func() error { return require.AnError })
	require.ErrorIs(t, err, require.AnError)

	// A second acquisition must not deadlock if the first was released.
	done := make(chan struct{})
	go func() {
		_ = WithLock(path, func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second WithLock call did not complete; lock was not released")
	}
}
