package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalScan/internal/domain/models"
	domrepo "SignalScan/internal/domain/repository"
	"SignalScan/pkg/cache"
	applogger "SignalScan/pkg/logger"
)

// CacheResultStore keeps the latest result per kind in a cache.Service
// (memory for single-process use, layered memory+Redis when shared).
type CacheResultStore struct {
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCacheResultStore(c cache.Service, ttl time.Duration, l *applogger.Logger) *CacheResultStore {
	return &CacheResultStore{cache: c, ttl: ttl, l: l}
}

func latestKey(kind models.Kind) string {
	return "scan:latest:" + string(kind)
}

func (s *CacheResultStore) Save(ctx context.Context, r *models.ScanResult) error {
	if r == nil {
		return errors.New("save scan result: nil result")
	}
	start := time.Now()
	if err := s.cache.Set(ctx, latestKey(r.Meta.Kind), r, s.ttl); err != nil {
		return fmt.Errorf("save scan result %s: %w", r.Meta.Kind, err)
	}
	s.l.Debug("scan result stored",
		applogger.String("kind", string(r.Meta.Kind)),
		applogger.String("scan_id", r.Meta.ID),
		applogger.Int("hits", r.HitCount()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CacheResultStore) Latest(ctx context.Context, kind models.Kind) (*models.ScanResult, error) {
	var r models.ScanResult
	if err := s.cache.Get(ctx, latestKey(kind), &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrResultNotFound
		}
		return nil, fmt.Errorf("load scan result %s: %w", kind, err)
	}
	return &r, nil
}

func (s *CacheResultStore) Close() error {
	return s.cache.Close()
}
