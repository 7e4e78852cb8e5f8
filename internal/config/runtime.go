package config

import "sync"

// Runtime publishes the mutable sensor snapshot to the pipeline. The
// pipeline thread takes a copy at the top of every frame; the transport
// layer swaps in a whole new snapshot under a single writer lock, so no
// torn reads of individual fields can occur.
type Runtime struct {
	mu       sync.RWMutex
	snapshot Sensors
}

func NewRuntime(initial Sensors) *Runtime {
	return &Runtime{snapshot: initial}
}

// Snapshot returns the current value. Cheap: one read lock plus a
// struct copy.
func (r *Runtime) Snapshot() Sensors {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Publish replaces the snapshot.
func (r *Runtime) Publish(s Sensors) {
	r.mu.Lock()
	r.snapshot = s
	r.mu.Unlock()
}
