package indicators

// MACDSeries is the line/signal/histogram triple, one value per input bar.
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

func (m MACDSeries) Len() int { return len(m.Line) }

// MACD computes line = EMA(fast) - EMA(slow), signal = EMA(line, signal)
// and histogram = line - signal.
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	if len(closes) == 0 {
		return MACDSeries{}
	}
	line := Sub(EMA(closes, fast), EMA(closes, slow))
	sig := EMA(line, signal)
	return MACDSeries{
		Line:      line,
		Signal:    sig,
		Histogram: Sub(line, sig),
	}
}
