package main

import (
	"bytes"
	"testing"
	"time"

	"SignalScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestRenderResult_EMACross(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &models.ScanResult{
		Buckets: map[models.Bucket][]models.Hit{
			models.BucketCrossed: {
				{Symbol: "BTCUSDT", LastClose: 64000.5, FastEMA: 64010, SlowEMA: 63990, Diff: 20, DiffPct: 0.031, QuoteVolume: 2.5e9, BarTime: start},
				{Symbol: "ETHUSDT", LastClose: 3100, QuoteVolume: 9.1e8, BarTime: start},
			},
			models.BucketImminent:  {},
			models.BucketPreparing: {},
		},
		Meta: models.ScanMeta{
			ID: "abc", Kind: models.KindEMACross, Endpoint: "https://e1", Total: 10, Scanned: 10,
			StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond), StopReason: models.StopCompleted,
			Counters: models.Counters{Classified: 8, Insufficient: 2},
		},
	}

	var buf bytes.Buffer
	renderResult(&buf, r, 1)
	out := buf.String()

	assert.Contains(t, out, "ema_cross scan abc: completed, 10/10 instruments via https://e1 in 1.5s")
	assert.Contains(t, out, "classified=8 insufficient=2 failed=0 skipped=0")
	assert.Contains(t, out, "== crossed (2)")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "2.50B")
	assert.NotContains(t, out, "ETHUSDT", "limit 1 keeps only the first row")
	assert.Contains(t, out, "== imminent (0)\n(none)")
}

func TestRenderResult_VolumeExtremes(t *testing.T) {
	hits := []models.Hit{{Symbol: "AAAUSDT", QuoteVolume: 9e6}, {Symbol: "BBBUSDT", QuoteVolume: 6e6}}
	r := &models.ScanResult{
		Buckets: map[models.Bucket][]models.Hit{models.BucketBullishDivergence: hits},
		VolumeExtremes: map[models.Bucket]models.VolumeExtremes{
			models.BucketBullishDivergence: models.Extremes(hits, 1, 1),
		},
		Meta: models.ScanMeta{Kind: models.KindMACDDivergence, StopReason: models.StopStopped},
	}

	var buf bytes.Buffer
	renderResult(&buf, r, 0)
	out := buf.String()

	assert.Contains(t, out, "-- bullish_divergence top volume")
	assert.Contains(t, out, "-- bullish_divergence bottom volume")
	assert.Contains(t, out, "== bearish_divergence (0)")
}

func TestNumberFormatting(t *testing.T) {
	assert.Equal(t, "0.5", num(0.5))
	assert.Equal(t, "120", num(120))
	assert.Equal(t, "1.50M", volume(1.5e6))
	assert.Equal(t, "999", volume(999))
}
