package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"https://data-api.binance.vision", "https://fapi.binance.com"}, c.API.Endpoints)
	assert.Equal(t, []int{418, 429, 403, 451, 500, 502, 503, 504}, c.API.RetryStatuses)
	assert.Equal(t, 3, c.API.MaxRetries)
	assert.Equal(t, time.Second, c.API.Backoff)

	ema := c.Scanners.EMACross
	assert.Equal(t, "15m", ema.Interval)
	assert.Equal(t, 300, ema.BarLimit)
	assert.Equal(t, 220, ema.MinBars)
	assert.Equal(t, 10, ema.Fast)
	assert.Equal(t, 200, ema.Slow)
	assert.Equal(t, 80*time.Millisecond, ema.Pacing)

	macd := c.Scanners.MACDDivergence
	assert.Equal(t, "1h", macd.Interval)
	assert.Equal(t, 720, macd.BarLimit)
	assert.True(t, macd.DropOpenBar)
	assert.Equal(t, []string{"TUTUSDT", "USDCUSDT", "USDPUSDT"}, macd.Excluded)
	assert.Equal(t, 5, macd.TopN)

	assert.Equal(t, "memory", c.Results.Store)
	assert.False(t, c.Sink.Kafka.Enabled)
}

func TestParse_OverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
api:
  endpoints: [http://localhost:9999]
  max_retries: 1
scanners:
  ema_cross:
    interval: 5m
    fast: 20
    slow: 50
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:9999"}, c.API.Endpoints)
	assert.Equal(t, 1, c.API.MaxRetries)
	assert.Equal(t, "5m", c.Scanners.EMACross.Interval)
	assert.Equal(t, 20, c.Scanners.EMACross.Fast)
	// untouched fields keep their defaults
	assert.Equal(t, 300, c.Scanners.EMACross.BarLimit)
	assert.Equal(t, "1h", c.Scanners.MACDDivergence.Interval)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"fast above slow": `
scanners:
  ema_cross:
    fast: 50
    slow: 20`,
		"bad interval": `
scanners:
  macd_divergence:
    interval: 7x`,
		"min bars above limit": `
scanners:
  ema_cross:
    bar_limit: 100
    min_bars: 220`,
		"no endpoints": `
api:
  endpoints: []`,
		"kafka without brokers": `
sink:
  kafka:
    enabled: true`,
		"unknown store": `
results:
  store: etcd`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\nserver:\n  port: 9000\n"), 0o600))

	t.Setenv("SIGNALSCAN_LOG_LEVEL", "debug")
	t.Setenv("SIGNALSCAN_ENDPOINTS", "http://a.test,http://b.test")
	t.Setenv("SIGNALSCAN_RESULTS_STORE", "redis")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.API.Endpoints)
	assert.Equal(t, "redis", c.Results.Store)
}

func TestLoadWithEnv_NoFile(t *testing.T) {
	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_SampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20.0, c.API.RateLimit.RPS)
	assert.Equal(t, 100, c.Sink.Kafka.BatchSize)
	assert.Equal(t, 60*time.Second, c.Sink.ClickHouse.MaxExecutionTime)
	assert.True(t, c.Server.CORS)
}
