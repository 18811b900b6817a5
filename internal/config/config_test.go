package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapRequiresSymbols(t *testing.T) {
	_, err := FromMap(map[string]string{})
	require.Error(t, err)
}

func TestFromMapNormalizesSymbols(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"SYMBOLS": " BTCUSDT, ethusdt,btcusdt ,",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, cfg.Symbols)
}

func TestFromMapAppliesDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{"SYMBOLS": "btcusdt"})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.SaveIntervalMin)
	assert.Equal(t, "lob_data", cfg.LOBDir)
	assert.Equal(t, 20*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 10*time.Second, cfg.WSPingTimeout)
	assert.Equal(t, 1*time.Second, cfg.BaseBackoff)
	assert.Equal(t, 60*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 10, cfg.ResetCycleAfter)
	assert.Equal(t, 1, cfg.ResetBackoffLevel)
	assert.Equal(t, 100, cfg.SnapshotsQueueMax)
	assert.Equal(t, 10, cfg.LatencyDequeSize)
	assert.Equal(t, 12*time.Hour, cfg.HotswapPeriod)
	assert.Equal(t, 30*time.Second, cfg.HotswapReadyAhead)
	assert.Equal(t, "", cfg.WSBackupURL)
	assert.Contains(t, cfg.WSURL, "btcusdt@depth20@100ms")
}

func TestFromMapRejectsNonPositiveSaveInterval(t *testing.T) {
	_, err := FromMap(map[string]string{
		"SYMBOLS":           "btcusdt",
		"SAVE_INTERVAL_MIN": "0",
	})
	require.Error(t, err)
}

func TestFromMapRejectsMalformedInt(t *testing.T) {
	_, err := FromMap(map[string]string{
		"SYMBOLS":           "btcusdt",
		"SAVE_INTERVAL_MIN": "not-a-number",
	})
	require.Error(t, err)
}

func TestFromMapHonorsExplicitWSURLs(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"SYMBOLS":       "btcusdt",
		"WS_URL":        "wss://example.test/primary",
		"WS_URL_BACKUP": "wss://example.test/backup",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/primary", cfg.WSURL)
	assert.Equal(t, "wss://example.test/backup", cfg.WSBackupURL)
}

func TestFromMapParsesFractionalSecondsAndHours(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"SYMBOLS":                 "btcusdt",
		"BASE_BACKOFF":             "0.5",
		"HOTSWAP_PERIOD_HRS":       "0.25",
		"HOTSWAP_READY_AHEAD_SEC":  "1.5",
	})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 15*time.Minute, cfg.HotswapPeriod)
	assert.Equal(t, 1500*time.Millisecond, cfg.HotswapReadyAhead)
}
