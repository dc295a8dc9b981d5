package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalScan/internal/domain/models"
	drepo "SignalScan/internal/domain/repository"
	domsvc "SignalScan/internal/domain/service"
	"SignalScan/internal/service/marketapi"
	"SignalScan/pkg/logger"

	"github.com/google/uuid"
)

// ProgressFunc is called once per attempted item with done running 1..total.
type ProgressFunc func(done, total int, symbol string)

// StopFunc is polled before each item is dequeued.
type StopFunc func() bool

// ScanConfig is the immutable input of one scan.
type ScanConfig struct {
	ID          string // generated when empty
	Kind        models.Kind
	Classifier  domsvc.Classifier
	Universe    marketapi.UniverseParams
	Series      marketapi.SeriesParams
	Fetch       marketapi.FetchParams
	Concurrency int
	Pacing      time.Duration // per worker, after every item
	TopN        int           // volume extremes per bucket; zero disables
	BottomN     int
}

// Params flattens the effective configuration for ScanMeta.
func (c ScanConfig) Params() map[string]interface{} {
	p := map[string]interface{}{
		"interval":         c.Series.Interval,
		"bar_limit":        c.Series.BarLimit,
		"min_bars":         c.Series.MinBars,
		"drop_open_bar":    c.Series.DropOpenBar,
		"min_quote_volume": c.Universe.MinQuoteVolume,
		"max_instruments":  c.Universe.MaxInstruments,
		"quote_suffix":     c.Universe.QuoteSuffix,
		"excluded":         c.Universe.Excluded,
		"endpoints":        c.Fetch.Endpoints,
		"timeout_ms":       c.Fetch.Timeout.Milliseconds(),
		"max_retries":      c.Fetch.MaxRetries,
		"backoff_ms":       c.Fetch.Backoff.Milliseconds(),
		"concurrency":      c.Concurrency,
		"pacing_ms":        c.Pacing.Milliseconds(),
	}
	if c.Classifier != nil {
		for k, v := range c.Classifier.Params() {
			p[k] = v
		}
	}
	return p
}

func (c ScanConfig) validate() error {
	if c.Classifier == nil {
		return errors.New("scan config: classifier is required")
	}
	if c.Classifier.Kind() != c.Kind {
		return fmt.Errorf("scan config: classifier kind %q does not match %q", c.Classifier.Kind(), c.Kind)
	}
	return nil
}

type UniverseResolver interface {
	Resolve(ctx context.Context, p marketapi.UniverseParams, fp marketapi.FetchParams) (*marketapi.Universe, error)
}

type SeriesSource interface {
	Fetch(ctx context.Context, symbol string, p marketapi.SeriesParams, fp marketapi.FetchParams) (marketapi.SeriesResult, error)
}

// Scanner runs one scan per Run call and keeps nothing between calls.
type Scanner struct {
	universe UniverseResolver
	series   SeriesSource
	metrics  drepo.Metrics
	log      *logger.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

func NewScanner(u UniverseResolver, s SeriesSource, metrics drepo.Metrics, log *logger.Logger) *Scanner {
	return &Scanner{
		universe: u,
		series:   s,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		sleep:    pause,
	}
}

type symbolStatus string

const (
	statusClassified   symbolStatus = "classified"
	statusInsufficient symbolStatus = "insufficient"
	statusFailed       symbolStatus = "failed"
	statusSkipped      symbolStatus = "skipped"
)

type itemOutcome struct {
	status symbolStatus
	hits   []models.Hit
	fatal  error
}

// scanState is shared by the workers of one Run.
type scanState struct {
	mu       sync.Mutex
	done     int
	total    int
	hits     map[models.Bucket][]models.Hit
	counters models.Counters
	fatal    error
	stopped  bool
}

// Run resolves the universe, fans the instruments out to cfg.Concurrency workers
// and returns the bucketed hits sorted by score.
//
// A universe failure returns (nil, err) unchanged. An exhaustion while fetching a
// series aborts the remaining work; Run then returns the partial result with
// StopReason "aborted" together with the error. A stop request returns the
// partial result with StopReason "stopped" and a nil error.
func (s *Scanner) Run(ctx context.Context, cfg ScanConfig, progress ProgressFunc, stop StopFunc) (*models.ScanResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	meta := models.ScanMeta{
		ID:        cfg.ID,
		Kind:      cfg.Kind,
		Params:    cfg.Params(),
		StartedAt: s.now(),
	}
	log := s.log.With(logger.String("scan_id", meta.ID), logger.String("kind", string(cfg.Kind)))

	universe, err := s.universe.Resolve(ctx, cfg.Universe, cfg.Fetch)
	if err != nil {
		s.metrics.RecordError("universe")
		log.Error("universe resolution failed", logger.Error(err))
		return nil, err
	}
	meta.Endpoint = universe.Endpoint
	meta.Total = len(universe.Instruments)
	log.Info("scan started",
		logger.String("endpoint", universe.Endpoint),
		logger.Int("instruments", meta.Total),
		logger.Int("concurrency", cfg.Concurrency))

	queue := make(chan models.Instrument, len(universe.Instruments))
	for _, in := range universe.Instruments {
		queue <- in
	}
	close(queue)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &scanState{total: meta.Total, hits: make(map[models.Bucket][]models.Hit)}

	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > meta.Total && meta.Total > 0 {
		workers = meta.Total
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(runCtx, cancel, cfg, queue, st, progress, stop, log)
		}()
	}
	wg.Wait()

	meta.FinishedAt = s.now()
	meta.Scanned = st.done
	meta.Counters = st.counters

	result := &models.ScanResult{Buckets: make(map[models.Bucket][]models.Hit), Meta: meta}
	for _, b := range models.BucketsFor(cfg.Kind) {
		hs := st.hits[b]
		if hs == nil {
			hs = []models.Hit{}
		}
		models.SortHits(hs)
		result.Buckets[b] = hs
		s.metrics.RecordHits(string(cfg.Kind), string(b), len(hs))
	}
	if cfg.TopN > 0 || cfg.BottomN > 0 {
		result.VolumeExtremes = make(map[models.Bucket]models.VolumeExtremes, len(result.Buckets))
		for b, hs := range result.Buckets {
			result.VolumeExtremes[b] = models.Extremes(hs, cfg.TopN, cfg.BottomN)
		}
	}

	var runErr error
	switch {
	case st.fatal != nil:
		result.Meta.StopReason = models.StopAborted
		result.Meta.Error = st.fatal.Error()
		runErr = st.fatal
	case st.stopped:
		result.Meta.StopReason = models.StopStopped
	case ctx.Err() != nil:
		result.Meta.StopReason = models.StopStopped
		result.Meta.Error = ctx.Err().Error()
		runErr = ctx.Err()
	default:
		result.Meta.StopReason = models.StopCompleted
	}

	s.metrics.RecordScan(string(cfg.Kind), string(result.Meta.StopReason), meta.Duration().Seconds())
	log.Info("scan finished",
		logger.String("reason", string(result.Meta.StopReason)),
		logger.Int("scanned", meta.Scanned),
		logger.Int("hits", result.HitCount()),
		logger.Int("insufficient", meta.Counters.Insufficient),
		logger.Int("failed", meta.Counters.Failed),
		logger.Duration("duration_ms", meta.Duration()))

	return result, runErr
}

func (s *Scanner) worker(
	ctx context.Context,
	abort context.CancelFunc,
	cfg ScanConfig,
	queue <-chan models.Instrument,
	st *scanState,
	progress ProgressFunc,
	stop StopFunc,
	log *logger.Logger,
) {
	for {
		if stop != nil && stop() {
			st.mu.Lock()
			st.stopped = true
			st.mu.Unlock()
			return
		}
		if ctx.Err() != nil {
			return
		}

		inst, ok := <-queue
		if !ok {
			return
		}

		out := s.scanOne(ctx, cfg, inst, log)
		s.metrics.RecordSymbol(string(cfg.Kind), string(out.status))

		st.mu.Lock()
		switch out.status {
		case statusClassified:
			st.counters.Classified++
		case statusInsufficient:
			st.counters.Insufficient++
		case statusFailed:
			st.counters.Failed++
		case statusSkipped:
			st.counters.Skipped++
		}
		for _, h := range out.hits {
			st.hits[h.Bucket] = append(st.hits[h.Bucket], h)
		}
		if out.fatal != nil && st.fatal == nil {
			st.fatal = out.fatal
			abort()
		}
		st.done++
		if progress != nil {
			progress(st.done, st.total, inst.Symbol)
		}
		st.mu.Unlock()

		if cfg.Pacing > 0 {
			s.sleep(ctx, cfg.Pacing)
		}
	}
}

// scanOne fetches and classifies one instrument. Only an exhaustion is fatal.
func (s *Scanner) scanOne(ctx context.Context, cfg ScanConfig, inst models.Instrument, log *logger.Logger) (out itemOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("symbol scan panicked", logger.String("symbol", inst.Symbol), logger.Any("panic", r))
			out = itemOutcome{status: statusFailed}
		}
	}()

	res, err := s.series.Fetch(ctx, inst.Symbol, cfg.Series, cfg.Fetch)
	if err != nil {
		if marketapi.IsExhausted(err) {
			log.Warn("endpoints exhausted, aborting scan", logger.String("symbol", inst.Symbol), logger.Error(err))
			return itemOutcome{status: statusFailed, fatal: fmt.Errorf("symbol %s: %w", inst.Symbol, err)}
		}
		return itemOutcome{status: statusSkipped}
	}

	switch res.Status {
	case marketapi.SeriesUnavailable:
		log.Debug("series unavailable", logger.String("symbol", inst.Symbol), logger.Error(res.Err))
		return itemOutcome{status: statusFailed}
	case marketapi.SeriesInsufficient:
		log.Debug("insufficient history", logger.String("symbol", inst.Symbol), logger.Int("bars", res.Series.Len()))
		return itemOutcome{status: statusInsufficient}
	}

	if res.Series.Len() < cfg.Classifier.MinBars() {
		return itemOutcome{status: statusInsufficient}
	}
	return itemOutcome{status: statusClassified, hits: cfg.Classifier.Classify(inst, res.Series)}
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
