package models

import "time"

// Instrument is one tradable symbol from the universe step.
type Instrument struct {
	Symbol      string  `json:"symbol"`
	QuoteVolume float64 `json:"quote_volume"` // 24h traded value
	LastPrice   float64 `json:"last_price,omitempty"`
}

// Bar is one OHLC candle.
type Bar struct {
	OpenTime    time.Time `json:"open_time"`
	CloseTime   time.Time `json:"close_time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume float64   `json:"quote_volume"`
}

// Series holds bars ordered by strictly increasing OpenTime.
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Last returns the most recent bar. The series must not be empty.
func (s Series) Last() Bar { return s.Bars[len(s.Bars)-1] }
