package analyze

import "sync"

// resultMutex guards concurrent appends to a Result from worker
// goroutines.
type resultMutex struct {
	mu sync.Mutex
}

func (m *resultMutex) appendCompleted(r *Result, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Completed = append(r.Completed, n)
}

func (m *resultMutex) appendFailed(r *Result, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Failed = append(r.Failed, n)
}

func (m *resultMutex) appendSkipped(r *Result, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Skipped = append(r.Skipped, n)
}

// haltFlag lets any worker signal the scheduler to stop dispatching new
// chapters after the current in-flight batch, used when SkipFailed is
// false and a chapter fails.
type haltFlag struct {
	mu     sync.Mutex
	halted bool
}

func (h *haltFlag) set() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = true
}

func (h *haltFlag) isSet() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}
