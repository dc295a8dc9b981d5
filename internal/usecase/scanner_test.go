package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalScan/internal/domain/models"
	"SignalScan/internal/service/marketapi"
	"SignalScan/pkg/logger"
	"SignalScan/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUniverse struct {
	instruments []models.Instrument
	endpoint    string
	err         error
}

func (f *fakeUniverse) Resolve(context.Context, marketapi.UniverseParams, marketapi.FetchParams) (*marketapi.Universe, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &marketapi.Universe{Instruments: f.instruments, Endpoint: f.endpoint}, nil
}

// fakeSeries serves per-symbol outcomes. Symbols without an entry get a ready
// series of readyBars bars.
type fakeSeries struct {
	mu        sync.Mutex
	calls     []string
	outcomes  map[string]marketapi.SeriesResult
	errs      map[string]error
	readyBars int
	gate      chan struct{}
}

func (f *fakeSeries) Fetch(ctx context.Context, symbol string, _ marketapi.SeriesParams, _ marketapi.FetchParams) (marketapi.SeriesResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return marketapi.SeriesResult{Status: marketapi.SeriesUnavailable, Err: ctx.Err()}, ctx.Err()
		}
	}
	if err, ok := f.errs[symbol]; ok {
		return marketapi.SeriesResult{Status: marketapi.SeriesUnavailable, Err: err}, err
	}
	if r, ok := f.outcomes[symbol]; ok {
		return r, nil
	}
	n := f.readyBars
	if n == 0 {
		n = 10
	}
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{OpenTime: time.Unix(int64(i*60), 0), Close: float64(i + 1)}
	}
	return marketapi.SeriesResult{Series: models.Series{Symbol: symbol, Bars: bars}, Status: marketapi.SeriesReady}, nil
}

func (f *fakeSeries) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeClassifier puts every symbol listed in scores into bucket with that score.
type fakeClassifier struct {
	bucket  models.Bucket
	scores  map[string]float64
	panicOn string
	minBars int
}

func (c *fakeClassifier) Kind() models.Kind { return models.KindEMACross }
func (c *fakeClassifier) MinBars() int { return c.minBars }
func (c *fakeClassifier) Params() map[string]interface{} {
	return map[string]interface{}{"fast": 10, "slow": 200}
}

func (c *fakeClassifier) Classify(inst models.Instrument, _ models.Series) []models.Hit {
	if inst.Symbol == c.panicOn {
		panic("boom")
	}
	score, ok := c.scores[inst.Symbol]
	if !ok {
		return nil
	}
	return []models.Hit{{Symbol: inst.Symbol, Bucket: c.bucket, Score: score, QuoteVolume: inst.QuoteVolume}}
}

func instruments(n int) []models.Instrument {
	out := make([]models.Instrument, n)
	for i := range out {
		out[i] = models.Instrument{Symbol: fmt.Sprintf("S%03dUSDT", i), QuoteVolume: float64(1000 - i)}
	}
	return out
}

func testConfig(c *fakeClassifier, concurrency int) ScanConfig {
	return ScanConfig{
		Kind:        models.KindEMACross,
		Classifier:  c,
		Universe:    marketapi.UniverseParams{MinQuoteVolume: 1, MaxInstruments: 400, QuoteSuffix: "USDT"},
		Series:      marketapi.SeriesParams{Interval: "15m", BarLimit: 300, MinBars: 5},
		Fetch:       marketapi.FetchParams{Endpoints: []string{"https://e1"}, Timeout: time.Second},
		Concurrency: concurrency,
	}
}

func newTestScanner(u UniverseResolver, s SeriesSource) *Scanner {
	sc := NewScanner(u, s, metrics.Nop{}, logger.Nop())
	sc.sleep = func(context.Context, time.Duration) {}
	return sc
}

func TestRun_ProgressIsOneToN(t *testing.T) {
	const n = 37
	u := &fakeUniverse{instruments: instruments(n), endpoint: "https://e1"}
	sc := newTestScanner(u, &fakeSeries{})

	var (
		mu      sync.Mutex
		dones   []int
		symbols []string
	)
	progress := func(done, total int, symbol string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, n, total)
		dones = append(dones, done)
		symbols = append(symbols, symbol)
	}

	res, err := sc.Run(context.Background(), testConfig(&fakeClassifier{}, 6), progress, nil)
	require.NoError(t, err)

	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, dones)

	var all []string
	for _, in := range u.instruments {
		all = append(all, in.Symbol)
	}
	sort.Strings(symbols)
	assert.Equal(t, all, symbols)
	assert.Equal(t, n, res.Meta.Scanned)
	assert.Equal(t, models.StopCompleted, res.Meta.StopReason)
}

func TestRun_StopAfterK(t *testing.T) {
	u := &fakeUniverse{instruments: instruments(20)}
	series := &fakeSeries{}
	sc := newTestScanner(u, series)

	var done atomic.Int32
	progress := func(d, _ int, _ string) { done.Store(int32(d)) }
	stop := func() bool { return done.Load() >= 3 }

	c := &fakeClassifier{bucket: models.BucketCrossed, scores: map[string]float64{}}
	for _, in := range u.instruments {
		c.scores[in.Symbol] = 1
	}

	res, err := sc.Run(context.Background(), testConfig(c, 1), progress, stop)
	require.NoError(t, err)
	assert.Equal(t, models.StopStopped, res.Meta.StopReason)
	assert.Equal(t, 3, res.Meta.Scanned)
	assert.Len(t, series.called(), 3)
	assert.Len(t, res.Buckets[models.BucketCrossed], 3)
}

func TestRun_StopBeforeStartProcessesNothing(t *testing.T) {
	series := &fakeSeries{}
	sc := newTestScanner(&fakeUniverse{instruments: instruments(10)}, series)

	res, err := sc.Run(context.Background(), testConfig(&fakeClassifier{}, 4), nil, func() bool { return true })
	require.NoError(t, err)
	assert.Equal(t, 0, res.Meta.Scanned)
	assert.Equal(t, 10, res.Meta.Total)
	assert.Empty(t, series.called())
	assert.Equal(t, models.StopStopped, res.Meta.StopReason)
}

func TestRun_ExhaustionAbortsWithPartialResult(t *testing.T) {
	insts := instruments(10)
	ex := &marketapi.ExhaustedError{StatusCode: 429, URL: "https://e1/fapi/v1/klines", Attempts: 4}
	series := &fakeSeries{errs: map[string]error{insts[4].Symbol: ex}}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, series)

	c := &fakeClassifier{bucket: models.BucketImminent, scores: map[string]float64{
		insts[0].Symbol: 1, insts[2].Symbol: 2, insts[7].Symbol: 3,
	}}

	var calls int
	res, err := sc.Run(context.Background(), testConfig(c, 1), func(int, int, string) { calls++ }, nil)
	require.Error(t, err)
	assert.True(t, marketapi.IsExhausted(err))
	got, ok := marketapi.AsExhausted(err)
	require.True(t, ok)
	assert.Same(t, ex, got)

	require.NotNil(t, res)
	assert.Equal(t, models.StopAborted, res.Meta.StopReason)
	assert.Equal(t, 5, res.Meta.Scanned)
	assert.Equal(t, 5, calls)
	assert.Len(t, series.called(), 5)
	assert.Equal(t, 1, res.Meta.Counters.Failed)
	assert.Contains(t, res.Meta.Error, insts[4].Symbol)

	hits := res.Buckets[models.BucketImminent]
	require.Len(t, hits, 2)
	assert.Equal(t, insts[2].Symbol, hits[0].Symbol)
}

func TestRun_ExhaustionCancelsInFlightWorkers(t *testing.T) {
	insts := instruments(8)
	series := &fakeSeries{errs: map[string]error{insts[0].Symbol: &marketapi.ExhaustedError{StatusCode: 403}}}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, series)

	res, err := sc.Run(context.Background(), testConfig(&fakeClassifier{}, 3), nil, nil)
	require.ErrorIs(t, err, marketapi.ErrEndpointsExhausted)
	assert.Equal(t, models.StopAborted, res.Meta.StopReason)
	assert.Less(t, res.Meta.Scanned, len(insts)+1)
	c := res.Meta.Counters
	assert.Equal(t, res.Meta.Scanned, c.Classified+c.Insufficient+c.Failed+c.Skipped)
}

func TestRun_UniverseFailureIsReturnedUnchanged(t *testing.T) {
	ex := &marketapi.ExhaustedError{StatusCode: 451, URL: "https://e2/fapi/v1/ticker/24hr"}
	series := &fakeSeries{}
	sc := newTestScanner(&fakeUniverse{err: ex}, series)

	var calls int
	res, err := sc.Run(context.Background(), testConfig(&fakeClassifier{}, 2), func(int, int, string) { calls++ }, nil)
	assert.Nil(t, res)
	assert.Equal(t, error(ex), err)
	assert.Zero(t, calls)
	assert.Empty(t, series.called())
}

func TestRun_SortsBucketsByScoreDescending(t *testing.T) {
	insts := instruments(6)
	c := &fakeClassifier{bucket: models.BucketCrossed, scores: map[string]float64{
		insts[0].Symbol: 0.5,
		insts[1].Symbol: 3,
		insts[3].Symbol: -1,
		insts[5].Symbol: 2,
	}}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, &fakeSeries{})

	res, err := sc.Run(context.Background(), testConfig(c, 3), nil, nil)
	require.NoError(t, err)

	var got []float64
	for _, h := range res.Buckets[models.BucketCrossed] {
		got = append(got, h.Score)
	}
	assert.Equal(t, []float64{3, 2, 0.5, -1}, got)
	assert.Empty(t, res.Buckets[models.BucketImminent])
	assert.NotNil(t, res.Buckets[models.BucketPreparing])
	assert.Equal(t, 4, res.HitCount())
}

func TestRun_InsufficientHistoryIsNotAnError(t *testing.T) {
	insts := instruments(1)
	short := make([]models.Bar, 50)
	series := &fakeSeries{outcomes: map[string]marketapi.SeriesResult{
		insts[0].Symbol: {Series: models.Series{Bars: short}, Status: marketapi.SeriesInsufficient},
	}}
	c := &fakeClassifier{bucket: models.BucketCrossed, scores: map[string]float64{insts[0].Symbol: 1}, minBars: 220}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, series)

	res, err := sc.Run(context.Background(), testConfig(c, 1), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.HitCount())
	assert.Equal(t, 1, res.Meta.Counters.Insufficient)
	assert.Equal(t, models.StopCompleted, res.Meta.StopReason)
}

func TestRun_PerSymbolFailuresDoNotAbort(t *testing.T) {
	insts := instruments(4)
	series := &fakeSeries{
		outcomes: map[string]marketapi.SeriesResult{
			insts[0].Symbol: {Status: marketapi.SeriesUnavailable, Err: marketapi.ErrMalformedPayload},
		},
	}
	c := &fakeClassifier{bucket: models.BucketCrossed, panicOn: insts[1].Symbol, scores: map[string]float64{insts[3].Symbol: 1}}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, series)

	res, err := sc.Run(context.Background(), testConfig(c, 2), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Meta.Counters.Failed)
	assert.Equal(t, 2, res.Meta.Counters.Classified)
	assert.Len(t, res.Buckets[models.BucketCrossed], 1)
}

func TestRun_Metadata(t *testing.T) {
	insts := instruments(3)
	sc := newTestScanner(&fakeUniverse{instruments: insts, endpoint: "https://data-api.binance.vision"}, &fakeSeries{})
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	sc.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Minute)
	}

	cfg := testConfig(&fakeClassifier{}, 2)
	cfg.ID = "scan-1"
	res, err := sc.Run(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	m := res.Meta
	assert.Equal(t, "scan-1", m.ID)
	assert.Equal(t, models.KindEMACross, m.Kind)
	assert.Equal(t, "https://data-api.binance.vision", m.Endpoint)
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 3, m.Scanned)
	assert.Equal(t, time.Minute, m.Duration())
	assert.Equal(t, "15m", m.Params["interval"])
	assert.Equal(t, 10, m.Params["fast"])
	assert.Equal(t, 2, m.Params["concurrency"])
	assert.Equal(t, models.Counters{Classified: 3}, m.Counters)
}

func TestRun_PacingAfterEveryItem(t *testing.T) {
	insts := instruments(5)
	series := &fakeSeries{errs: map[string]error{insts[1].Symbol: errors.New("not exhaustion")}}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, series)

	var slept atomic.Int32
	sc.sleep = func(_ context.Context, d time.Duration) {
		assert.Equal(t, 80*time.Millisecond, d)
		slept.Add(1)
	}

	cfg := testConfig(&fakeClassifier{}, 2)
	cfg.Pacing = 80 * time.Millisecond
	_, err := sc.Run(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(5), slept.Load())
}

func TestRun_VolumeExtremes(t *testing.T) {
	insts := instruments(6)
	scores := map[string]float64{}
	for _, in := range insts {
		scores[in.Symbol] = 1
	}
	sc := newTestScanner(&fakeUniverse{instruments: insts}, &fakeSeries{})

	cfg := testConfig(&fakeClassifier{bucket: models.BucketCrossed, scores: scores}, 2)
	cfg.TopN, cfg.BottomN = 2, 2
	res, err := sc.Run(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	ve := res.VolumeExtremes[models.BucketCrossed]
	require.Len(t, ve.Top, 2)
	require.Len(t, ve.Bottom, 2)
	assert.Equal(t, insts[0].Symbol, ve.Top[0].Symbol)
	assert.Equal(t, insts[5].Symbol, ve.Bottom[0].Symbol)
}

func TestRun_RejectsMismatchedClassifier(t *testing.T) {
	sc := newTestScanner(&fakeUniverse{}, &fakeSeries{})
	cfg := testConfig(&fakeClassifier{}, 1)
	cfg.Kind = models.KindMACDDivergence
	_, err := sc.Run(context.Background(), cfg, nil, nil)
	assert.Error(t, err)

	cfg.Classifier = nil
	_, err = sc.Run(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
