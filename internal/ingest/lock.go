package ingest

import (
	"sync"
	"sync/atomic"
)

// IngestLock provides non-blocking lock semantics using atomic operations.
type IngestLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IngestLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IngestLock) Release() {
	l.state.Store(0)
}

// lockTable serializes updates to the same file. Two updates for the same
// (project, path) key run one after the other; unrelated files proceed in
// parallel.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the key and returns the matching unlock function.
func (t *lockTable) acquire(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
