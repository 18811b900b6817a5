package ingest

import (
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fordicus/RT-Data-sub001/internal/latency"
	"github.com/fordicus/RT-Data-sub001/internal/lifecycle"
	"github.com/fordicus/RT-Data-sub001/internal/metrics"
	"github.com/fordicus/RT-Data-sub001/internal/queue"
)

func TestSymbolOfExtractsPrefixBeforeAt(t *testing.T) {
	cases := map[string]string{
		"btcusdt@depth20@100ms": "btcusdt",
		"ETHUSDT@depth20@100ms": "ethusdt",
		"no-at-sign":            "",
		"@leadingAt":            "",
	}
	for stream, want := range cases {
		if got := symbolOf(stream); got != want {
			t.Errorf("symbolOf(%q) = %q, want %q", stream, got, want)
		}
	}
}

func TestBackoffIsDeterministicWithinJitterBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 1 * time.Second
	max := 60 * time.Second

	// retry=3: exp = base*2^3 = 8s, result in [8s, 9s).
	d := Backoff(3, base, max, rng)
	if d < 8*time.Second || d >= 9*time.Second {
		t.Fatalf("Backoff(3) = %s, want in [8s, 9s)", d)
	}
}

func TestBackoffClampsToMax(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 1 * time.Second
	max := 10 * time.Second

	d := Backoff(10, base, max, rng) // 2^10s would vastly exceed max
	if d < max || d >= max+time.Second {
		t.Fatalf("Backoff(10) = %s, want in [%s, %s)", d, max, max+time.Second)
	}
}

func TestBackoffNegativeRetryTreatedAsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 1 * time.Second
	max := 60 * time.Second

	d := Backoff(-5, base, max, rng)
	if d < base || d >= base+time.Second {
		t.Fatalf("Backoff(-5) = %s, want in [%s, %s)", d, base, base+time.Second)
	}
}

func newTestConsumer(t *testing.T, symbols []string) (*Consumer, *latency.Tracker, *queue.Registry, *lifecycle.Controller) {
	t.Helper()
	lat := latency.NewTracker(symbols, 5)
	m := metrics.New(prometheus.NewRegistry())
	q := queue.NewRegistry(symbols, 10, m)
	life := lifecycle.NewController()

	c := New("test-consumer", "primary", Config{}, symbols, lat, q, life, m, zerolog.Nop(), nil)
	return c, lat, q, life
}

func TestHandleFrameDropsUnknownSymbol(t *testing.T) {
	c, lat, q, _ := newTestConsumer(t, []string{"btcusdt"})
	lat.Record("btcusdt", 5)

	raw := []byte(`{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`)
	require.NoError(t, c.handleFrame(raw))

	ch, _ := q.Channel("btcusdt")
	select {
	case <-ch:
		t.Fatal("unexpected snapshot enqueued for unknown symbol")
	default:
	}
}

func TestHandleFrameDropsWithoutLastUpdateID(t *testing.T) {
	c, lat, q, _ := newTestConsumer(t, []string{"btcusdt"})
	lat.Record("btcusdt", 5)

	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"bids":[],"asks":[]}}`)
	require.NoError(t, c.handleFrame(raw))

	ch, _ := q.Channel("btcusdt")
	select {
	case <-ch:
		t.Fatal("unexpected snapshot enqueued without lastUpdateId")
	default:
	}
}

func TestHandleFrameDropsWhenLatencyWindowEmpty(t *testing.T) {
	c, _, q, _ := newTestConsumer(t, []string{"btcusdt"})

	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`)
	require.NoError(t, c.handleFrame(raw))

	ch, _ := q.Channel("btcusdt")
	select {
	case <-ch:
		t.Fatal("unexpected snapshot enqueued with an unseeded latency window")
	default:
	}
}

func TestHandleFrameDropsWhenGateClosed(t *testing.T) {
	c, lat, q, life := newTestConsumer(t, []string{"btcusdt"})
	lat.Record("btcusdt", 5)
	life.Shutdown()

	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`)
	require.NoError(t, c.handleFrame(raw))

	ch, _ := q.Channel("btcusdt")
	select {
	case <-ch:
		t.Fatal("unexpected snapshot enqueued while gate closed")
	default:
	}
}

func TestHandleFrameEnqueuesValidSnapshotAndLatchesFirstSeen(t *testing.T) {
	c, lat, q, life := newTestConsumer(t, []string{"btcusdt"})
	lat.Record("btcusdt", 5)

	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":42,"bids":[["100.0","1.0"]],"asks":[["101.0","2.0"]]}}`)
	require.NoError(t, c.handleFrame(raw))

	ch, _ := q.Channel("btcusdt")
	select {
	case snap := <-ch:
		if snap.LastUpdateID != 42 {
			t.Fatalf("LastUpdateID = %d, want 42", snap.LastUpdateID)
		}
	default:
		t.Fatal("expected a snapshot to be enqueued")
	}

	if !life.FirstSnapshotSeen() {
		t.Fatal("expected FirstSnapshotSeen to latch after a successful enqueue")
	}
}

func TestHandleFrameMalformedJSONReturnsError(t *testing.T) {
	c, lat, _, _ := newTestConsumer(t, []string{"btcusdt"})
	lat.Record("btcusdt", 5)

	err := c.handleFrame([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed frame")
	}
}

func TestHandleFrameInvokesOnHealthyExactlyOnce(t *testing.T) {
	lat := latency.NewTracker([]string{"btcusdt"}, 5)
	lat.Record("btcusdt", 5)
	m := metrics.New(prometheus.NewRegistry())
	q := queue.NewRegistry([]string{"btcusdt"}, 10, m)
	life := lifecycle.NewController()

	calls := 0
	c := New("test", "backup", Config{}, []string{"btcusdt"}, lat, q, life, m, zerolog.Nop(), func() { calls++ })

	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`)
	require.NoError(t, c.handleFrame(raw))
	require.NoError(t, c.handleFrame(raw))

	if calls != 1 {
		t.Fatalf("onHealthy called %d times, want 1", calls)
	}
}
