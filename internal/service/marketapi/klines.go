package marketapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"SignalScan/internal/domain/models"
	"SignalScan/pkg/util"
)

// SeriesStatus tells "no signal possible" apart from "fetch failed".
type SeriesStatus int

const (
	SeriesReady SeriesStatus = iota
	SeriesInsufficient
	SeriesUnavailable
)

func (s SeriesStatus) String() string {
	switch s {
	case SeriesReady:
		return "ready"
	case SeriesInsufficient:
		return "insufficient"
	case SeriesUnavailable:
		return "unavailable"
	}
	return "unknown"
}

type SeriesParams struct {
	Interval    string
	BarLimit    int
	MinBars     int
	DropOpenBar bool
}

// SeriesResult is the per-symbol outcome. Err is set only for SeriesUnavailable.
type SeriesResult struct {
	Series   models.Series
	Status   SeriesStatus
	Endpoint string
	Err      error
}

type SeriesFetcher struct {
	fetcher Fetcher
	path    string
	now     func() time.Time
}

func NewSeriesFetcher(f Fetcher, klinesPath string) *SeriesFetcher {
	return &SeriesFetcher{fetcher: f, path: klinesPath, now: time.Now}
}

// WithClock replaces the clock used to detect a still-forming last bar.
func (f *SeriesFetcher) WithClock(now func() time.Time) *SeriesFetcher {
	f.now = now
	return f
}

// Fetch loads one OHLC series. The returned error is non-nil only for an
// exhaustion or a cancelled context; every other failure is folded into a
// SeriesUnavailable result.
func (f *SeriesFetcher) Fetch(ctx context.Context, symbol string, p SeriesParams, fp FetchParams) (SeriesResult, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": p.Interval,
		"limit":    strconv.Itoa(p.BarLimit),
	}

	res, err := f.fetcher.Fetch(ctx, fp.request(f.path, params))
	if err != nil {
		if IsExhausted(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return SeriesResult{Status: SeriesUnavailable, Err: err}, err
		}
		return SeriesResult{Status: SeriesUnavailable, Err: err}, nil
	}

	bars, err := ParseKlines(res.Payload)
	if err != nil {
		return SeriesResult{Status: SeriesUnavailable, Endpoint: res.Endpoint, Err: err}, nil
	}

	if p.DropOpenBar && len(bars) > 0 && bars[len(bars)-1].CloseTime.After(f.now()) {
		bars = bars[:len(bars)-1]
	}

	out := SeriesResult{
		Series:   models.Series{Symbol: symbol, Interval: p.Interval, Bars: bars},
		Status:   SeriesReady,
		Endpoint: res.Endpoint,
	}
	if len(bars) < p.MinBars {
		out.Status = SeriesInsufficient
	}
	return out, nil
}

// ParseKlines decodes rows of [openTime, open, high, low, close, volume, closeTime, quoteVolume, ...].
// Prices may be strings or numbers. Open times must be strictly increasing.
func ParseKlines(payload []byte) ([]models.Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("%w: klines: %v", ErrMalformedPayload, err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("%w: klines row %d has %d fields", ErrMalformedPayload, i, len(row))
		}

		var nums [7]float64
		for j := 0; j < 7; j++ {
			v, ok := parseNumber(row[j])
			if !ok {
				return nil, fmt.Errorf("%w: klines row %d field %d", ErrMalformedPayload, i, j)
			}
			nums[j] = v
		}
		openTime, ok := util.FromUnixMilli(int64(nums[0]))
		if !ok {
			return nil, fmt.Errorf("%w: klines row %d open time", ErrMalformedPayload, i)
		}
		closeTime, _ := util.FromUnixMilli(int64(nums[6]))

		b := models.Bar{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      nums[1],
			High:      nums[2],
			Low:       nums[3],
			Close:     nums[4],
			Volume:    nums[5],
		}
		if len(row) > 7 {
			b.QuoteVolume, _ = parseNumber(row[7])
		}

		if len(bars) > 0 && !b.OpenTime.After(bars[len(bars)-1].OpenTime) {
			return nil, fmt.Errorf("%w: klines open time not increasing at row %d", ErrMalformedPayload, i)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
