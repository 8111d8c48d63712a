package api

import (
	"context"
	"sync"
)

// CancelHandle owns cancellation of a single stream. Cancel aborts the
// underlying connection; it is idempotent and fire-and-forget (it does not
// wait for transport teardown). IsCancelled reports whether Cancel has been
// invoked, not whether the transport has finished shutting down.
type CancelHandle struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
}

// NewCancelHandle wraps a context's cancel function.
func NewCancelHandle(cancel context.CancelFunc) *CancelHandle {
	return &CancelHandle{cancel: cancel}
}

// Cancel aborts the stream. Safe to call more than once.
func (h *CancelHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	if h.cancel != nil {
		h.cancel()
	}
}

// IsCancelled reports whether Cancel has been invoked.
func (h *CancelHandle) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
