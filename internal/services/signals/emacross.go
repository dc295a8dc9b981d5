package signals

import (
	"SignalScan/internal/domain/models"
	domsvc "SignalScan/internal/domain/service"
	"SignalScan/internal/services/indicators"
)

type EMACrossParams struct {
	Fast           int
	Slow           int
	ImminentGapPct float64
	PrepGapPct     float64
	ImminentWindow int
	PrepWindow     int
	MinBars        int
}

// EMACross reports how close the fast EMA is to crossing above the slow one.
type EMACross struct {
	p EMACrossParams
}

func NewEMACross(p EMACrossParams) *EMACross {
	if p.MinBars < 2 {
		p.MinBars = 2
	}
	return &EMACross{p: p}
}

func (c *EMACross) Kind() models.Kind { return models.KindEMACross }

func (c *EMACross) MinBars() int { return c.p.MinBars }

func (c *EMACross) Params() map[string]interface{} {
	return map[string]interface{}{
		"fast":             c.p.Fast,
		"slow":             c.p.Slow,
		"imminent_gap_pct": c.p.ImminentGapPct,
		"prep_gap_pct":     c.p.PrepGapPct,
		"imminent_window":  c.p.ImminentWindow,
		"prep_window":      c.p.PrepWindow,
		"min_bars":         c.p.MinBars,
	}
}

// Classify returns at most one hit.
func (c *EMACross) Classify(inst models.Instrument, s models.Series) []models.Hit {
	if s.Len() < c.p.MinBars {
		return nil
	}

	closes := s.Closes()
	fast := indicators.EMA(closes, c.p.Fast)
	slow := indicators.EMA(closes, c.p.Slow)
	diff := indicators.Sub(fast, slow)

	last := s.Last()
	bucket := classifyDiff(diff, last.Close, c.p)
	if bucket == models.BucketNone {
		return nil
	}

	n := len(diff) - 1
	hit := models.Hit{
		Symbol:      inst.Symbol,
		Bucket:      bucket,
		Score:       diff[n],
		BarTime:     last.OpenTime,
		LastClose:   last.Close,
		QuoteVolume: inst.QuoteVolume,
		LastPrice:   inst.LastPrice,
		FastEMA:     fast[n],
		SlowEMA:     slow[n],
		Diff:        diff[n],
	}
	if last.Close != 0 {
		hit.DiffPct = diff[n] / last.Close * 100
	}
	return []models.Hit{hit}
}

// classifyDiff checks Crossed, then Imminent, then Preparing; first match wins.
func classifyDiff(diff []float64, lastClose float64, p EMACrossParams) models.Bucket {
	if len(diff) < 2 {
		return models.BucketNone
	}
	last, prev := diff[len(diff)-1], diff[len(diff)-2]

	if prev <= 0 && last > 0 {
		return models.BucketCrossed
	}
	if last >= 0 {
		return models.BucketNone
	}

	gap := -last
	if gap <= lastClose*p.ImminentGapPct && indicators.StrictlyIncreasing(diff, p.ImminentWindow) {
		return models.BucketImminent
	}
	if gap <= lastClose*p.PrepGapPct && indicators.StrictlyIncreasing(diff, p.PrepWindow) {
		return models.BucketPreparing
	}
	return models.BucketNone
}

var _ domsvc.Classifier = (*EMACross)(nil)
