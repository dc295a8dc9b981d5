package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SignalScan/internal/domain/models"
	drepo "SignalScan/internal/domain/repository"
	"SignalScan/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrScanInProgress = errors.New("scan already in progress")
	ErrUnknownKind    = errors.New("unknown scan kind")
)

// ScanSession allows one scan at a time and remembers the last good result per kind.
type ScanSession struct {
	scanner *Scanner
	configs map[models.Kind]ScanConfig
	store   drepo.ResultStore
	sinks   []drepo.ResultSink
	log     *logger.Logger

	running atomic.Bool
	stopReq atomic.Bool
	wg      sync.WaitGroup

	mu       sync.RWMutex
	kind     models.Kind
	progress *models.Progress
	lastErr  error
	lastMeta map[models.Kind]*models.ScanMeta

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan models.Progress
}

func NewScanSession(
	scanner *Scanner,
	configs map[models.Kind]ScanConfig,
	store drepo.ResultStore,
	sinks []drepo.ResultSink,
	log *logger.Logger,
) *ScanSession {
	return &ScanSession{
		scanner:  scanner,
		configs:  configs,
		store:    store,
		sinks:    sinks,
		log:      log,
		lastMeta: make(map[models.Kind]*models.ScanMeta),
		subs:     make(map[int]chan models.Progress),
	}
}

// Start launches a scan in the background and fails fast when one is running.
// The scan keeps ctx's values but not its cancellation; use Stop to end it.
func (s *ScanSession) Start(ctx context.Context, kind models.Kind, o Override) error {
	cfg, err := s.acquire(kind, o)
	if err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(bg, cfg, nil)
	}()
	return nil
}

// Run performs a scan and blocks until it ends. progress may be nil.
func (s *ScanSession) Run(ctx context.Context, kind models.Kind, o Override, progress ProgressFunc) (*models.ScanResult, error) {
	cfg, err := s.acquire(kind, o)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, cfg, progress)
}

func (s *ScanSession) acquire(kind models.Kind, o Override) (ScanConfig, error) {
	cfg, ok := s.configs[kind]
	if !ok {
		return ScanConfig{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !s.running.CompareAndSwap(false, true) {
		return ScanConfig{}, ErrScanInProgress
	}
	s.stopReq.Store(false)

	s.mu.Lock()
	s.kind = kind
	s.progress = nil
	s.mu.Unlock()

	cfg = o.apply(cfg)
	cfg.ID = uuid.NewString()
	return cfg, nil
}

func (s *ScanSession) run(ctx context.Context, cfg ScanConfig, progress ProgressFunc) (*models.ScanResult, error) {
	defer s.running.Store(false)

	onProgress := func(done, total int, symbol string) {
		p := models.Progress{ScanID: cfg.ID, Kind: cfg.Kind, Done: done, Total: total, Symbol: symbol}
		s.mu.Lock()
		s.progress = &p
		s.mu.Unlock()
		s.broadcast(p)
		if progress != nil {
			progress(done, total, symbol)
		}
	}

	result, err := s.scanner.Run(ctx, cfg, onProgress, s.stopReq.Load)

	s.mu.Lock()
	s.lastErr = err
	if result != nil {
		meta := result.Meta
		s.lastMeta[cfg.Kind] = &meta
	}
	s.mu.Unlock()

	if err != nil {
		// the previous good result stays in the store
		return result, err
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.store.Save(saveCtx, result); err != nil {
		s.log.Error("save scan result", logger.String("kind", string(cfg.Kind)), logger.Error(err))
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(saveCtx, result); err != nil {
			s.log.Error("publish scan result", logger.String("sink", sink.Name()), logger.Error(err))
		}
	}
	return result, nil
}

// Stop asks the running scan to stop before its next item. It reports whether a scan was running.
func (s *ScanSession) Stop() bool {
	if !s.running.Load() {
		return false
	}
	s.stopReq.Store(true)
	return true
}

func (s *ScanSession) Running() bool { return s.running.Load() }

// Latest returns the last good result for kind.
func (s *ScanSession) Latest(ctx context.Context, kind models.Kind) (*models.ScanResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return s.store.Latest(ctx, kind)
}

// LastError is the error of the most recent scan, nil when it succeeded.
func (s *ScanSession) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *ScanSession) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.SessionStatus{
		Running:   s.running.Load(),
		Stopping:  s.stopReq.Load(),
		LastScans: make(map[models.Kind]*models.ScanMeta, len(s.lastMeta)),
	}
	if st.Running {
		st.Kind = s.kind
	}
	if s.progress != nil {
		p := *s.progress
		st.Progress = &p
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	for k, m := range s.lastMeta {
		st.LastScans[k] = m
	}
	return st
}

// Subscribe returns a channel of progress updates. Slow readers miss updates
// rather than holding up the scan. Call the returned func to unsubscribe.
func (s *ScanSession) Subscribe(buffer int) (<-chan models.Progress, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan models.Progress, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *ScanSession) broadcast(p models.Progress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Wait blocks until a background scan started with Start returns.
func (s *ScanSession) Wait() { s.wg.Wait() }
