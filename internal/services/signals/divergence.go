package signals

import (
	"SignalScan/internal/domain/models"
	domsvc "SignalScan/internal/domain/service"
	"SignalScan/internal/services/indicators"
)

type DivergenceParams struct {
	Fast       int
	Slow       int
	Signal     int
	Lookback   int
	RecentBars int
	MinBars    int
}

// Divergence looks for MACD line/price divergence against the extreme bar of a
// trailing window. Bullish and bearish are checked independently.
type Divergence struct {
	p DivergenceParams
}

func NewDivergence(p DivergenceParams) *Divergence {
	if p.MinBars < p.Lookback+1 {
		p.MinBars = p.Lookback + 1
	}
	return &Divergence{p: p}
}

func (d *Divergence) Kind() models.Kind { return models.KindMACDDivergence }

func (d *Divergence) MinBars() int { return d.p.MinBars }

func (d *Divergence) Params() map[string]interface{} {
	return map[string]interface{}{
		"fast":        d.p.Fast,
		"slow":        d.p.Slow,
		"signal":      d.p.Signal,
		"lookback":    d.p.Lookback,
		"recent_bars": d.p.RecentBars,
		"min_bars":    d.p.MinBars,
	}
}

// Classify returns up to two hits, one per direction.
func (d *Divergence) Classify(inst models.Instrument, s models.Series) []models.Hit {
	if s.Len() < d.p.MinBars {
		return nil
	}

	macd := indicators.MACD(s.Closes(), d.p.Fast, d.p.Slow, d.p.Signal)
	lows, highs := s.Lows(), s.Highs()

	var hits []models.Hit
	if m, ok := findBullish(lows, macd.Line, d.p.Lookback, d.p.RecentBars); ok {
		hits = append(hits, d.hit(inst, s, macd, m, models.BucketBullishDivergence, lows[m.pivot]))
	}
	if m, ok := findBearish(highs, macd.Line, d.p.Lookback, d.p.RecentBars); ok {
		hits = append(hits, d.hit(inst, s, macd, m, models.BucketBearishDivergence, highs[m.pivot]))
	}
	return hits
}

func (d *Divergence) hit(inst models.Instrument, s models.Series, macd indicators.MACDSeries, m match, b models.Bucket, pivotPrice float64) models.Hit {
	return models.Hit{
		Symbol:      inst.Symbol,
		Bucket:      b,
		Score:       macd.Line[m.index] - macd.Line[m.pivot],
		BarTime:     s.Bars[m.index].OpenTime,
		LastClose:   s.Last().Close,
		QuoteVolume: inst.QuoteVolume,
		LastPrice:   inst.LastPrice,
		MACD:        macd.Line[m.index],
		Signal:      macd.Signal[m.index],
		Histogram:   macd.Histogram[m.index],
		PivotPrice:  pivotPrice,
		PivotMACD:   macd.Line[m.pivot],
		PivotTime:   s.Bars[m.pivot].OpenTime,
	}
}

type match struct {
	index int // bar where the divergence shows
	pivot int // extreme bar of the preceding window
}

// recentStart is the first bar index that is both past a full lookback window
// and within the last recent bars.
func recentStart(n, lookback, recent int) int {
	start := n - recent
	if start < lookback {
		start = lookback
	}
	return start
}

// findBullish: a lower low than the window's lowest bar while MACD is higher than at that bar.
func findBullish(lows, line []float64, lookback, recent int) (match, bool) {
	if lookback < 1 {
		return match{}, false
	}
	for i := recentStart(len(lows), lookback, recent); i < len(lows); i++ {
		p := indicators.ArgMin(lows, i-lookback, i)
		if lows[i] < lows[p] && line[i] > line[p] {
			return match{index: i, pivot: p}, true
		}
	}
	return match{}, false
}

// findBearish: MACD above its value at the window's highest bar while the high has not exceeded it.
func findBearish(highs, line []float64, lookback, recent int) (match, bool) {
	if lookback < 1 {
		return match{}, false
	}
	for i := recentStart(len(highs), lookback, recent); i < len(highs); i++ {
		p := indicators.ArgMax(highs, i-lookback, i)
		if line[i] > line[p] && highs[i] <= highs[p] {
			return match{index: i, pivot: p}, true
		}
	}
	return match{}, false
}

var _ domsvc.Classifier = (*Divergence)(nil)
