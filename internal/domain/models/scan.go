package models

import (
	"sort"
	"time"
)

// Kind names a scan type. Each kind owns one classifier and its bucket set.
type Kind string

const (
	KindEMACross       Kind = "ema_cross"
	KindMACDDivergence Kind = "macd_divergence"
)

func (k Kind) Valid() bool {
	return k == KindEMACross || k == KindMACDDivergence
}

// Bucket is a classification outcome. BucketNone is never stored in a result.
type Bucket string

const (
	BucketNone              Bucket = ""
	BucketCrossed           Bucket = "crossed"
	BucketImminent          Bucket = "imminent"
	BucketPreparing         Bucket = "preparing"
	BucketBullishDivergence Bucket = "bullish_divergence"
	BucketBearishDivergence Bucket = "bearish_divergence"
)

// BucketsFor lists the buckets a kind can produce, in display order.
func BucketsFor(k Kind) []Bucket {
	switch k {
	case KindEMACross:
		return []Bucket{BucketCrossed, BucketImminent, BucketPreparing}
	case KindMACDDivergence:
		return []Bucket{BucketBullishDivergence, BucketBearishDivergence}
	}
	return nil
}

// Hit is one classified instrument with the fields derived while classifying it.
// Score is the sort key inside a bucket (descending).
type Hit struct {
	Symbol      string    `json:"symbol"`
	Bucket      Bucket    `json:"bucket"`
	Score       float64   `json:"score"`
	BarTime     time.Time `json:"bar_time"`
	LastClose   float64   `json:"last_close"`
	QuoteVolume float64   `json:"quote_volume"`
	LastPrice   float64   `json:"last_price,omitempty"`

	// ema_cross
	FastEMA float64 `json:"fast_ema,omitempty"`
	SlowEMA float64 `json:"slow_ema,omitempty"`
	Diff    float64 `json:"diff,omitempty"`
	DiffPct float64 `json:"diff_pct,omitempty"`

	// macd_divergence
	MACD       float64   `json:"macd,omitempty"`
	Signal     float64   `json:"signal,omitempty"`
	Histogram  float64   `json:"histogram,omitempty"`
	PivotPrice float64   `json:"pivot_price,omitempty"`
	PivotMACD  float64   `json:"pivot_macd,omitempty"`
	PivotTime  time.Time `json:"pivot_time,omitempty"`
}

type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopStopped   StopReason = "stopped"
	StopAborted   StopReason = "aborted"
)

// Counters tally per-symbol outcomes. Classified+Insufficient+Failed+Skipped equals Meta.Scanned.
type Counters struct {
	Classified   int `json:"classified"`
	Insufficient int `json:"insufficient"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}

type ScanMeta struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	Endpoint   string                 `json:"endpoint"`
	Total      int                    `json:"total"`
	Scanned    int                    `json:"scanned"`
	Params     map[string]interface{} `json:"params"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	StopReason StopReason             `json:"stop_reason"`
	Counters   Counters               `json:"counters"`
	Error      string                 `json:"error,omitempty"`
}

func (m ScanMeta) Duration() time.Duration { return m.FinishedAt.Sub(m.StartedAt) }

type VolumeExtremes struct {
	Top    []Hit `json:"top"`
	Bottom []Hit `json:"bottom"`
}

type ScanResult struct {
	Buckets        map[Bucket][]Hit          `json:"buckets"`
	VolumeExtremes map[Bucket]VolumeExtremes `json:"volume_extremes,omitempty"`
	Meta           ScanMeta                  `json:"meta"`
}

// HitCount returns the number of hits across all buckets.
func (r *ScanResult) HitCount() int {
	n := 0
	for _, hs := range r.Buckets {
		n += len(hs)
	}
	return n
}

// Hits flattens buckets in the kind's display order.
func (r *ScanResult) Hits() []Hit {
	out := make([]Hit, 0, r.HitCount())
	for _, b := range BucketsFor(r.Meta.Kind) {
		out = append(out, r.Buckets[b]...)
	}
	return out
}

// SortHits orders hits by Score descending; equal scores keep input order.
func SortHits(hs []Hit) {
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Score > hs[j].Score })
}

// Extremes returns the topN highest and bottomN lowest hits by quote volume.
// A symbol picked for Top is never repeated in Bottom.
func Extremes(hs []Hit, topN, bottomN int) VolumeExtremes {
	byVol := make([]Hit, len(hs))
	copy(byVol, hs)
	sort.SliceStable(byVol, func(i, j int) bool { return byVol[i].QuoteVolume > byVol[j].QuoteVolume })

	ve := VolumeExtremes{Top: []Hit{}, Bottom: []Hit{}}
	used := make(map[string]struct{}, topN+bottomN)
	for i := 0; i < len(byVol) && len(ve.Top) < topN; i++ {
		if _, ok := used[byVol[i].Symbol]; ok {
			continue
		}
		used[byVol[i].Symbol] = struct{}{}
		ve.Top = append(ve.Top, byVol[i])
	}
	for i := len(byVol) - 1; i >= 0 && len(ve.Bottom) < bottomN; i-- {
		if _, ok := used[byVol[i].Symbol]; ok {
			continue
		}
		used[byVol[i].Symbol] = struct{}{}
		ve.Bottom = append(ve.Bottom, byVol[i])
	}
	return ve
}

// Progress is one progress notification. Done runs 1..Total across the scan.
type Progress struct {
	ScanID string `json:"scan_id"`
	Kind   Kind   `json:"kind"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Symbol string `json:"symbol"`
}
