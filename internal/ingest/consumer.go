// Package ingest is the upstream consumer (spec component D): connects
// to the multiplexed depth-of-book WebSocket feed, demultiplexes each
// frame by symbol, latency-corrects its receive time, and enqueues it.
// Reconnection is a four-state machine — Disconnected, Connecting,
// Connected, Draining — exactly as spec.md §4.D describes, grounded on
// the teacher's internal/ingest/depth.go reconnect loop and
// original_source/binance/REFACTOR/REFACTOR_put_snapshot.py's
// frame-handling and backoff formula.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fordicus/RT-Data-sub001/internal/latency"
	"github.com/fordicus/RT-Data-sub001/internal/lifecycle"
	"github.com/fordicus/RT-Data-sub001/internal/metrics"
	"github.com/fordicus/RT-Data-sub001/internal/model"
	"github.com/fordicus/RT-Data-sub001/internal/queue"
)

// Config is the subset of internal/config.Config the consumer needs,
// plus the target endpoint — the consumer factory in cmd/ingestor
// points a backup consumer's Config at WS_URL_BACKUP when that is set.
type Config struct {
	WSURL             string
	PingInterval      time.Duration
	PingTimeout       time.Duration
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	ResetCycleAfter   int
	ResetBackoffLevel int
}

// frame mirrors the upstream multiplexed-stream envelope (spec.md §6).
type frame struct {
	Stream string `json:"stream"`
	Data   struct {
		LastUpdateID *int64        `json:"lastUpdateId"`
		Bids         []model.Level `json:"bids"`
		Asks         []model.Level `json:"asks"`
	} `json:"data"`
}

// Consumer owns one WebSocket connection's lifecycle. Role labels
// metrics/logs ("primary" or "backup") so a hot-swap overlap is
// distinguishable in observability without changing behavior.
type Consumer struct {
	id   string
	role string
	cfg  Config

	symbols map[string]bool
	lat     *latency.Tracker
	queues  *queue.Registry
	life    *lifecycle.Controller
	m       *metrics.Metrics
	log     zerolog.Logger

	rng *rand.Rand

	healthyOnce sync.Once
	onHealthy   func()
}

// New builds a Consumer. onHealthy (may be nil) is invoked exactly
// once, the first time this consumer successfully enqueues a
// snapshot — the hot-swap coordinator's handoff signal.
func New(
	id, role string,
	cfg Config,
	symbols []string,
	lat *latency.Tracker,
	queues *queue.Registry,
	life *lifecycle.Controller,
	m *metrics.Metrics,
	log zerolog.Logger,
	onHealthy func(),
) *Consumer {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return &Consumer{
		id:        id,
		role:      role,
		cfg:       cfg,
		symbols:   set,
		lat:       lat,
		queues:    queues,
		life:      life,
		m:         m,
		log:       log.With().Str("consumer", id).Str("role", role).Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		onHealthy: onHealthy,
	}
}

// Run drives the Disconnected→Connecting→Connected→Draining loop until
// ctx is cancelled. It always returns once ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	retry := 0

	for {
		if ctx.Err() != nil {
			return
		}

		// Connecting
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.backoffAndReset(ctx, &retry)
			continue
		}

		// Connected: read until the socket errors or ctx is cancelled.
		if c.m != nil {
			c.m.Reconnects.WithLabelValues(c.role).Inc()
		}
		retry = 0
		err = c.consume(ctx, conn)
		conn.Close()

		// Draining
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("connection lost, reconnecting")
		}
		c.backoffAndReset(ctx, &retry)
	}
}

// backoffAndReset increments retry, sleeps for the backoff computed from
// the incremented count, and only afterward applies the
// RESET_CYCLE_AFTER → RESET_BACKOFF_LEVEL reset so it takes effect on the
// next cycle rather than shrinking the sleep that was just about to
// happen — spec.md §4.D orders sleep-then-reset, matching
// REFACTOR_put_snapshot.py's ws_retry_cnt handling. Both the dial-failure
// and the post-disconnect Draining paths share this so a sustained outage
// during Connecting still cycles the counter instead of growing it
// unbounded.
func (c *Consumer) backoffAndReset(ctx context.Context, retry *int) {
	*retry++
	c.sleepBackoff(ctx, *retry)
	if *retry > c.cfg.ResetCycleAfter {
		*retry = c.cfg.ResetBackoffLevel
	}
}

func (c *Consumer) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.WSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: dial: %w", err)
	}
	c.log.Info().Msg("connected to upstream")

	conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
		return nil
	})

	return conn, nil
}

// consume reads frames until the socket errors or ctx is cancelled. A
// malformed frame is logged and skipped; it never breaks this loop —
// only a genuine socket error does.
func (c *Consumer) consume(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if err := c.handleFrame(raw); err != nil {
			c.log.Warn().Err(err).Msg("failed to process frame")
		}
	}
}

func (c *Consumer) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			deadline := time.Now().Add(c.cfg.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *Consumer) handleFrame(raw []byte) error {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	symbol := symbolOf(f.Stream)
	if symbol == "" || !c.symbols[symbol] {
		return nil
	}

	if f.Data.LastUpdateID == nil {
		return nil
	}

	if !c.life.StreamEnabled() {
		if c.m != nil {
			c.m.FramesDropped.WithLabelValues(symbol, "gate_closed").Inc()
		}
		return nil
	}
	if c.lat.Empty(symbol) {
		if c.m != nil {
			c.m.FramesDropped.WithLabelValues(symbol, "latency_unseeded").Inc()
		}
		return nil
	}

	eventTime := nowMs() - maxI64(0, c.lat.Median(symbol))

	snap := model.Snapshot{
		LastUpdateID: *f.Data.LastUpdateID,
		EventTime:    eventTime,
		Bids:         f.Data.Bids,
		Asks:         f.Data.Asks,
	}

	if c.queues.Enqueue(symbol, snap) {
		c.life.MarkFirstSnapshot()
		if c.onHealthy != nil {
			c.healthyOnce.Do(c.onHealthy)
		}
	}

	return nil
}

func (c *Consumer) sleepBackoff(ctx context.Context, retry int) {
	d := Backoff(retry, c.cfg.BaseBackoff, c.cfg.MaxBackoff, c.rng)
	c.log.Warn().Dur("backoff", d).Int("retry", retry).Msg("reconnecting after backoff")
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Backoff computes min(base·2^retry, max) + U[0,1) seconds — spec.md
// §4.D's reconnect backoff formula, reproduced directly rather than
// through a backoff library so the literal S5 scenario
// (BASE_BACKOFF·8 ≤ delay < BASE_BACKOFF·8+1s at retry=3) holds exactly.
func Backoff(retry int, base, max time.Duration, rng *rand.Rand) time.Duration {
	if retry < 0 {
		retry = 0
	}
	exp := base * (1 << uint(retry))
	if exp > max || exp <= 0 {
		exp = max
	}
	jitter := time.Duration(rng.Float64() * float64(time.Second))
	return exp + jitter
}

func symbolOf(stream string) string {
	idx := strings.IndexByte(stream, '@')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(stream[:idx])
}

func nowMs() int64 { return time.Now().UnixMilli() }

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
