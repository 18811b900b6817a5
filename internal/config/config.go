// Package config loads the key=value configuration file spec.md §6
// names. Config parsing itself is an external collaborator to the core
// (spec.md §1) — this package is the thin interface that turns the raw
// file into the typed values components B–H are constructed with;
// it is deliberately not a general-purpose configuration framework.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-typed, validated form of the key=value file.
type Config struct {
	Symbols []string // lower-cased, order preserved, deduplicated

	SaveIntervalMin int
	LOBDir          string

	WSURL          string
	WSBackupURL    string // alternate endpoint/port for the hot-swap backup consumer; empty reuses WSURL
	WSPingInterval time.Duration
	WSPingTimeout  time.Duration

	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	ResetCycleAfter   int
	ResetBackoffLevel int

	SnapshotsQueueMax int
	LatencyDequeSize  int

	HotswapPeriod     time.Duration
	HotswapReadyAhead time.Duration
}

// Load reads path with godotenv (the file is the same comment-stripped
// key=value shape godotenv already parses, mirroring
// original_source/binance/stream_binance_globals.py's load_config) and
// extracts/validates every field spec.md §6 names.
func Load(path string) (Config, error) {
	raw, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return FromMap(raw)
}

// FromMap builds a Config from an already-parsed key=value map —
// exported mainly so tests can exercise validation without a file on
// disk.
func FromMap(raw map[string]string) (Config, error) {
	var cfg Config

	symbolsStr, ok := raw["SYMBOLS"]
	if !ok || strings.TrimSpace(symbolsStr) == "" {
		return Config{}, fmt.Errorf("config: SYMBOLS is required")
	}
	cfg.Symbols = normalizeSymbols(symbolsStr)
	if len(cfg.Symbols) == 0 {
		return Config{}, fmt.Errorf("config: SYMBOLS produced no entries")
	}

	var err error
	if cfg.SaveIntervalMin, err = intField(raw, "SAVE_INTERVAL_MIN", 5); err != nil {
		return Config{}, err
	}
	if cfg.SaveIntervalMin <= 0 {
		return Config{}, fmt.Errorf("config: SAVE_INTERVAL_MIN must be positive")
	}

	cfg.LOBDir = stringField(raw, "LOB_DIR", "lob_data")

	cfg.WSURL = raw["WS_URL"]
	if cfg.WSURL == "" {
		cfg.WSURL = buildDefaultWSURL(cfg.Symbols)
	}
	cfg.WSBackupURL = raw["WS_URL_BACKUP"]

	if cfg.WSPingInterval, err = durationSecondsField(raw, "WS_PING_INTERVAL", 20*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSPingTimeout, err = durationSecondsField(raw, "WS_PING_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BaseBackoff, err = durationSecondsField(raw, "BASE_BACKOFF", 1*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxBackoff, err = durationSecondsField(raw, "MAX_BACKOFF", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ResetCycleAfter, err = intField(raw, "RESET_CYCLE_AFTER", 10); err != nil {
		return Config{}, err
	}
	if cfg.ResetBackoffLevel, err = intField(raw, "RESET_BACKOFF_LEVEL", 1); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotsQueueMax, err = intField(raw, "SNAPSHOTS_QUEUE_MAX", 100); err != nil {
		return Config{}, err
	}
	if cfg.LatencyDequeSize, err = intField(raw, "LATENCY_DEQUE_SIZE", 10); err != nil {
		return Config{}, err
	}
	if cfg.HotswapPeriod, err = durationHoursField(raw, "HOTSWAP_PERIOD_HRS", 12*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.HotswapReadyAhead, err = durationSecondsField(raw, "HOTSWAP_READY_AHEAD_SEC", 30*time.Second); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func normalizeSymbols(raw string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func buildDefaultWSURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = s + "@depth20@100ms"
	}
	return "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/")
}

func stringField(raw map[string]string, key, def string) string {
	if v, ok := raw[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func intField(raw map[string]string, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func durationSecondsField(raw map[string]string, key string, def time.Duration) (time.Duration, error) {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number of seconds: %w", key, err)
	}
	return time.Duration(n * float64(time.Second)), nil
}

func durationHoursField(raw map[string]string, key string, def time.Duration) (time.Duration, error) {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number of hours: %w", key, err)
	}
	return time.Duration(n * float64(time.Hour)), nil
}
