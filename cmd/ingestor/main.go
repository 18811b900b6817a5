// Command ingestor runs the depth-of-book ingestion and archival
// pipeline: one upstream WebSocket consumer (with hot-swap and
// reconnect) feeding one writer goroutine per configured symbol.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fordicus/RT-Data-sub001/internal/config"
	"github.com/fordicus/RT-Data-sub001/internal/hotswap"
	"github.com/fordicus/RT-Data-sub001/internal/ingest"
	"github.com/fordicus/RT-Data-sub001/internal/latency"
	"github.com/fordicus/RT-Data-sub001/internal/lifecycle"
	"github.com/fordicus/RT-Data-sub001/internal/merge"
	"github.com/fordicus/RT-Data-sub001/internal/metrics"
	"github.com/fordicus/RT-Data-sub001/internal/queue"
	"github.com/fordicus/RT-Data-sub001/internal/writer"
)

const mergeWorkers = 4

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	configPath := "rtdata.conf"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(reg, log)

	life := lifecycle.NewController()
	lat := latency.NewTracker(cfg.Symbols, cfg.LatencyDequeSize)
	queues := queue.NewRegistry(cfg.Symbols, cfg.SnapshotsQueueMax, m)
	mrg := merge.NewDispatcher(cfg.LOBDir, mergeWorkers, m, log)

	startWriters(cfg, queues, life, mrg, m, log)

	coordinator := hotswap.NewCoordinator(
		cfg.HotswapPeriod, cfg.HotswapReadyAhead,
		consumerFactory(cfg, lat, queues, life, m, log),
		log,
	)
	coordinator.Start(life.Context())

	waitForSignal(log)

	log.Info().Msg("shutting down")
	life.Shutdown()
	coordinator.Shutdown()
	queues.Close()
	mrg.Wait()
	log.Info().Msg("shutdown complete")
}

func consumerFactory(
	cfg config.Config,
	lat *latency.Tracker,
	queues *queue.Registry,
	life *lifecycle.Controller,
	m *metrics.Metrics,
	log zerolog.Logger,
) hotswap.Factory {
	return func(role string, onHealthy func()) hotswap.ConsumerRunner {
		wsURL := cfg.WSURL
		if role == "backup" && cfg.WSBackupURL != "" {
			wsURL = cfg.WSBackupURL
		}

		ic := ingest.Config{
			WSURL:             wsURL,
			PingInterval:      cfg.WSPingInterval,
			PingTimeout:       cfg.WSPingTimeout,
			BaseBackoff:       cfg.BaseBackoff,
			MaxBackoff:        cfg.MaxBackoff,
			ResetCycleAfter:   cfg.ResetCycleAfter,
			ResetBackoffLevel: cfg.ResetBackoffLevel,
		}

		id := role + "-" + time.Now().UTC().Format("150405.000")
		consumer := ingest.New(id, role, ic, cfg.Symbols, lat, queues, life, m, log, onHealthy)

		return func(ctx context.Context) {
			consumer.Run(ctx)
		}
	}
}

func startWriters(
	cfg config.Config,
	queues *queue.Registry,
	life *lifecycle.Controller,
	mrg *merge.Dispatcher,
	m *metrics.Metrics,
	log zerolog.Logger,
) {
	for _, symbol := range cfg.Symbols {
		ch, ok := queues.Channel(symbol)
		if !ok {
			continue
		}
		w := writer.New(symbol, cfg.LOBDir, cfg.SaveIntervalMin, ch, life, mrg, m, log)
		go w.Run()
	}
}

func serveMetrics(reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := ":9090"
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func waitForSignal(log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("interrupt received")
}
