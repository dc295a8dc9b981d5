package signals

import (
	"testing"
	"time"

	"SignalScan/internal/domain/models"
	"SignalScan/internal/services/indicators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultEMAParams = EMACrossParams{
	Fast:           10,
	Slow:           200,
	ImminentGapPct: 0.001,
	PrepGapPct:     0.003,
	ImminentWindow: 3,
	PrepWindow:     6,
	MinBars:        220,
}

func seriesFromCloses(symbol string, closes []float64) models.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		bars[i] = models.Bar{
			OpenTime:  open,
			CloseTime: open.Add(15*time.Minute - time.Millisecond),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return models.Series{Symbol: symbol, Interval: "15m", Bars: bars}
}

// crossingCloses builds 300 closes: flat, a long decline, nine small rises and a
// final bar large enough to lift EMA10 above EMA200.
func crossingCloses(t *testing.T, p EMACrossParams) []float64 {
	t.Helper()
	closes := make([]float64, 0, 300)
	for i := 0; i < 200; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= 90; i++ {
		closes = append(closes, 100-0.1*float64(i))
	}
	for i := 1; i <= 9; i++ {
		closes = append(closes, 91+0.1*float64(i))
	}

	fast := indicators.EMA(closes, p.Fast)
	slow := indicators.EMA(closes, p.Slow)
	f, s := fast[len(fast)-1], slow[len(slow)-1]
	require.LessOrEqual(t, f-s, 0.0, "diff must be non-positive before the last bar")

	af := 2.0 / (float64(p.Fast) + 1)
	as := 2.0 / (float64(p.Slow) + 1)
	// smallest close that makes the next diff zero, plus a margin
	c := (s*(1-as)-f*(1-af))/(af-as) + 1
	return append(closes, c)
}

func TestEMACross_CrossedOnLastBar(t *testing.T) {
	closes := crossingCloses(t, defaultEMAParams)
	require.Len(t, closes, 300)
	for i := len(closes) - 10; i < len(closes); i++ {
		require.Greater(t, closes[i], closes[i-1])
	}

	c := NewEMACross(defaultEMAParams)
	hits := c.Classify(models.Instrument{Symbol: "AAAUSDT", QuoteVolume: 5e6}, seriesFromCloses("AAAUSDT", closes))
	require.Len(t, hits, 1)

	h := hits[0]
	assert.Equal(t, models.BucketCrossed, h.Bucket)
	assert.Equal(t, "AAAUSDT", h.Symbol)
	assert.Greater(t, h.Diff, 0.0)
	assert.InDelta(t, h.FastEMA-h.SlowEMA, h.Diff, 1e-9)
	assert.InDelta(t, h.Diff/h.LastClose*100, h.DiffPct, 1e-9)
	assert.Equal(t, h.Diff, h.Score)
	assert.Equal(t, 5e6, h.QuoteVolume)
}

func TestEMACross_Deterministic(t *testing.T) {
	closes := crossingCloses(t, defaultEMAParams)
	s := seriesFromCloses("AAAUSDT", closes)
	c := NewEMACross(defaultEMAParams)

	first := c.Classify(models.Instrument{Symbol: "AAAUSDT"}, s)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(models.Instrument{Symbol: "AAAUSDT"}, s))
	}
}

func TestEMACross_ShortSeriesIsNotClassified(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	c := NewEMACross(defaultEMAParams)
	assert.Empty(t, c.Classify(models.Instrument{Symbol: "X"}, seriesFromCloses("X", closes)))
}

func TestClassifyDiff(t *testing.T) {
	cases := []struct {
		name string
		diff []float64
		want models.Bucket
	}{
		{"crossed", []float64{-0.5, -0.4, -0.3, -0.2, -0.1, -0.05, -0.01, 0.01}, models.BucketCrossed},
		{"crossed from zero", []float64{-1, 0, 0.5}, models.BucketCrossed},
		{"imminent beats preparing", []float64{-10, -9, -8, -7, -6, -5, -0.05}, models.BucketImminent},
		{"preparing", []float64{-1, -0.9, -0.8, -0.7, -0.6, -0.5, -0.4, -0.25}, models.BucketPreparing},
		{"close but not rising", []float64{-1, -0.9, -0.8, -0.04, -0.06, -0.05}, models.BucketNone},
		{"too far", []float64{-5, -4, -3, -2, -1, -0.9, -0.8, -0.5}, models.BucketNone},
		{"already above", []float64{0.1, 0.2, 0.3}, models.BucketNone},
		{"window needs window+1 values", []float64{-0.3, -0.2, -0.05}, models.BucketNone},
		{"single value", []float64{1}, models.BucketNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyDiff(tc.diff, 100, defaultEMAParams))
		})
	}
}

func TestClassifyDiff_CrossedNeverImminentOrPreparing(t *testing.T) {
	// last value positive and tiny relative to the close, rising for many bars
	diff := []float64{-0.09, -0.08, -0.07, -0.06, -0.05, -0.04, -0.03, -0.02, -0.01, 0.001}
	for _, closePx := range []float64{1, 100, 10000} {
		assert.Equal(t, models.BucketCrossed, classifyDiff(diff, closePx, defaultEMAParams))
	}
}

func TestEMACross_Params(t *testing.T) {
	p := NewEMACross(defaultEMAParams).Params()
	assert.Equal(t, 10, p["fast"])
	assert.Equal(t, 200, p["slow"])
	assert.Equal(t, 220, p["min_bars"])
}
