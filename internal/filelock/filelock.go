// Package filelock provides scoped advisory mutual exclusion keyed by a
// filesystem path. Within one process, holders of the
// same key are serialized by an in-process mutex; on filesystems that
// support it, a sidecar lock file serializes holders across processes.
package filelock

import (
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

// registry holds the in-process mutex for each lock key, so that two
// goroutines in this process contending for the same path serialize
// without round-tripping through the kernel flock.
var registry = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

func mutexFor(key string) *sync.Mutex {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	m, ok := registry.locks[key]
	if !ok {
		m = &sync.Mutex{}
		registry.locks[key] = m
	}
	return m
}

// WithLock acquires the advisory lock for path, runs fn, and releases
// the lock on every exit path of fn including a panic. The lock file
// itself lives alongside path with a ".lock" suffix so it never
// collides with the data file it protects.
func WithLock(path string, fn func() error) error {
	inProcess := mutexFor(path)
	inProcess.Lock()
	defer inProcess.Unlock()

	unlock, err := acquireFileLock(path + ".lock")
	if err != nil {
		return fmt.Errorf("filelock: failed to acquire lock for %s: %w", path, err)
	}
	defer unlock()

	return fn()
}

// acquireFileLock opens (creating if necessary) the lock file at p and
// places an exclusive flock on it, blocking until available or until an
// unrecoverable error occurs. The returned func releases the lock.
//
// This is advisory: it only excludes other cooperating processes that
// also flock the same sidecar file, and any close of the same fd from
// this process (even via a different os.File) will drop it.
func acquireFileLock(p string) (func(), error) {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	flockT := syscall.Flock_t{
		Type:   syscall.F_WRLCK,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0,
	}
	for {
		err := syscall.FcntlFlock(f.Fd(), syscall.F_SETLKW, &flockT)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		break
	}

	return func() { _ = f.Close() }, nil
}
