// Package hotswap is the hot-swap coordinator (spec component E): it
// schedules a backup upstream consumer ahead of the active one's
// target lifetime, waits for the backup to prove healthy, then swaps
// it in and tears down the superseded connection. Grounded on
// original_source/binance/hotswap.py's HotSwapManager
// (current_connection/pending_connection/swap_lock), generalised from
// asyncio tasks+events to goroutines+context.CancelFunc.
package hotswap

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConsumerRunner is the minimal surface the coordinator needs from an
// upstream consumer: something cancellable that runs until its context
// is done. *ingest.Consumer.Run satisfies this via a small adapter in
// main (see cmd/ingestor), keeping this package free of an import
// cycle on ingest's healthy-callback wiring.
type ConsumerRunner func(ctx context.Context)

// Factory builds one new consumer run-loop plus the callback it must
// invoke exactly once, the first time it forwards a snapshot
// successfully (the handoff signal). role is "primary" for the very
// first connection and "backup" for every consumer the coordinator
// schedules afterward; the primary has no handoff to signal, so its
// onHealthy is nil.
type Factory func(role string, onHealthy func()) ConsumerRunner

type handleState struct {
	id        string
	role      string
	createdAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Coordinator owns the active/pending consumer handles and serialises
// every transition behind a single mutex, exactly as spec.md §4.E
// requires.
type Coordinator struct {
	mu      sync.Mutex
	active  *handleState
	pending *handleState

	shutdown bool

	period     time.Duration // P: target consumer lifetime
	readyAhead time.Duration // A: how far ahead of P to start the backup

	factory Factory
	log     zerolog.Logger

	parentCtx context.Context
}

// NewCoordinator builds a Coordinator. Call Start once to bring up the
// initial (primary) consumer and the scheduling timer.
func NewCoordinator(period, readyAhead time.Duration, factory Factory, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		period:     period,
		readyAhead: readyAhead,
		factory:    factory,
		log:        log,
	}
}

// Start launches the primary consumer and the background scheduling
// timer. ctx is the process shutdown context; Coordinator.Shutdown
// should still be called explicitly so teardown waits are bounded
// rather than relying on ctx cancellation alone.
func (c *Coordinator) Start(ctx context.Context) {
	c.parentCtx = ctx

	c.mu.Lock()
	c.active = c.spawn(ctx, "primary")
	c.mu.Unlock()

	go c.scheduleLoop(ctx)
}

func (c *Coordinator) spawn(ctx context.Context, role string) *handleState {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	h := &handleState{
		id:        id,
		role:      role,
		createdAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	var handoff func()
	if role != "primary" {
		handoff = func() { c.completeHandoff(h) }
	}

	run := c.factory(role, handoff)
	go func() {
		run(runCtx)
		close(h.done)
	}()

	c.log.Info().Str("consumer", id).Str("role", role).Msg("consumer started")
	return h
}

// scheduleLoop checks the active consumer's age and, once it reaches
// P−A with no pending backup already scheduled, starts one.
func (c *Coordinator) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	threshold := c.period - c.readyAhead
	if threshold < 0 {
		threshold = 0
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.maybeScheduleBackup(ctx, threshold)
		}
	}
}

func (c *Coordinator) maybeScheduleBackup(ctx context.Context, threshold time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown || c.pending != nil || c.active == nil {
		return
	}
	if time.Since(c.active.createdAt) < threshold {
		return
	}

	c.log.Info().Dur("ready_ahead", c.readyAhead).Msg("scheduling backup consumer")
	c.pending = c.spawn(ctx, "backup")
	c.log.Info().Str("consumer", c.pending.id).Msg("duplicate window open: active and pending consumers may both enqueue")
}

// completeHandoff is the pending consumer's onHealthy callback: it
// atomically promotes pending to active and schedules the superseded
// connection for bounded teardown. Both consumers may have enqueued
// snapshots during the brief overlap — spec.md §4.E documents this as
// tolerated, not a bug.
func (c *Coordinator) completeHandoff(pending *handleState) {
	c.mu.Lock()
	if c.pending != pending {
		// Already handed off, or superseded by a shutdown; nothing to do.
		c.mu.Unlock()
		return
	}
	old := c.active
	c.active = c.pending
	c.pending = nil
	c.mu.Unlock()

	c.log.Info().Str("consumer", pending.id).Msg("hot-swap handoff complete")

	if old != nil {
		go c.teardown(old, 3*time.Second)
	}
}

func (c *Coordinator) teardown(h *handleState, timeout time.Duration) {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(timeout):
		c.log.Warn().Str("consumer", h.id).Dur("timeout", timeout).Msg("teardown exceeded bound")
	}
}

// Shutdown cancels pending (bounded 2s) then active (bounded 3s),
// clears both, and refuses any further scheduling — spec.md §4.E's
// shutdown rule.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	pending, active := c.pending, c.active
	c.pending, c.active = nil, nil
	c.mu.Unlock()

	if pending != nil {
		c.teardown(pending, 2*time.Second)
	}
	if active != nil {
		c.teardown(active, 3*time.Second)
	}
}
