// Package shutdown coordinates cooperative termination of long running tasks.
//
// A Coordinator hands out Handles. Shutdown broadcasts the signal to every
// handle once, then blocks until every handle has been released. A task that
// never releases its handle blocks Shutdown forever.
package shutdown

import (
	"context"
	"sync"
)

// Coordinator owns the shutdown signal and the drain barrier.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	drain   sync.WaitGroup
	ownDone sync.Once
}

// New creates a coordinator holding its own drain token.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		ctx:    ctx,
		cancel: cancel,
	}
	c.drain.Add(1)
	return c
}

// Subscribe returns a new handle. Handles subscribed after the signal are
// born signalled and do not take part in the drain.
func (c *Coordinator) Subscribe() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return &Handle{ctx: c.ctx}
	}

	c.drain.Add(1)
	return &Handle{ctx: c.ctx, drain: &c.drain}
}

// Shutdown broadcasts the signal, drops the coordinator's own token and waits
// until every outstanding handle is released.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.cancel()
	c.ownDone.Do(c.drain.Done)
	c.mu.Unlock()

	c.drain.Wait()
}

// Signalled reports whether Shutdown has been called.
func (c *Coordinator) Signalled() bool {
	return c.ctx.Err() != nil
}

// Handle is one task's view of the shutdown signal and its drain token.
type Handle struct {
	ctx     context.Context
	drain   *sync.WaitGroup
	release sync.Once
}

// Wait blocks until the shutdown signal. Returns immediately once signalled.
func (h *Handle) Wait() {
	<-h.ctx.Done()
}

// Done is closed when the shutdown signal fires.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Context is cancelled when the shutdown signal fires.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// IsShutdown reports whether the signal has been received.
func (h *Handle) IsShutdown() bool {
	return h.ctx.Err() != nil
}

// Release drops the drain token. Call it after all teardown work is finished.
func (h *Handle) Release() {
	if h == nil || h.drain == nil {
		return
	}
	h.release.Do(h.drain.Done)
}
