// Package persist keeps the device state in flash. Values are restored once
// at boot and written back after they stop changing for a quiet period.
package persist

import (
	"sync"

	"libdb.so/tollglow/flashstore"
)

// Handle shares one flash store between several writers.
type Handle struct {
	mu    sync.Mutex
	store *flashstore.Store
}

// NewHandle wraps store. The store must not be used directly afterwards.
func NewHandle(store *flashstore.Store) *Handle {
	return &Handle{store: store}
}

// Fetch returns the latest value stored for key.
func (h *Handle) Fetch(key byte) ([]byte, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Fetch(key)
}

// Store appends value for key.
func (h *Handle) Store(key byte, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Store(key, value)
}

// Stats returns the store activity counters.
func (h *Handle) Stats() flashstore.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Stats()
}
