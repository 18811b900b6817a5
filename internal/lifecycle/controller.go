// Package lifecycle is the lifecycle controller (spec component H): the
// ingestion gate, the first-snapshot latch, and the shutdown signal
// every other component observes at its suspension points.
package lifecycle

import (
	"context"
	"sync/atomic"
)

// Controller holds the three binary/latch primitives spec.md §4.H
// names. StreamEnable gates whether a snapshot may be enqueued or
// written; FirstSnapshotSeen latches the first time any consumer
// forwards a snapshot (the hot-swap handoff does not read it; each
// pending consumer signals health through its own onHealthy callback);
// Shutdown is set once and never cleared.
type Controller struct {
	streamEnable      atomic.Bool
	firstSnapshotSeen atomic.Bool
	shutdown          atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController returns a Controller with the gate armed (StreamEnable
// set) and the other flags clear, as spec.md §4.H requires at startup.
// The returned context is cancelled the moment Shutdown is called —
// every suspension point in the pipeline should select on it.
func NewController() *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{ctx: ctx, cancel: cancel}
	c.streamEnable.Store(true)
	return c
}

// Context returns the controller's shutdown context.
func (c *Controller) Context() context.Context { return c.ctx }

// StreamEnabled reports whether the ingestion gate is currently set.
func (c *Controller) StreamEnabled() bool { return c.streamEnable.Load() }

// FirstSnapshotSeen reports whether any symbol has ever forwarded a
// snapshot.
func (c *Controller) FirstSnapshotSeen() bool { return c.firstSnapshotSeen.Load() }

// MarkFirstSnapshot latches FirstSnapshotSeen; idempotent.
func (c *Controller) MarkFirstSnapshot() { c.firstSnapshotSeen.Store(true) }

// IsShutdown reports whether shutdown has been initiated.
func (c *Controller) IsShutdown() bool { return c.shutdown.Load() }

// Shutdown clears StreamEnable, sets the shutdown flag, and cancels the
// shutdown context — exactly the transition spec.md §4.H assigns to
// receipt of an interrupt signal.
func (c *Controller) Shutdown() {
	c.streamEnable.Store(false)
	c.shutdown.Store(true)
	c.cancel()
}
