package repository

import (
	"context"
	"errors"

	"SignalScan/internal/domain/models"
)

// ErrResultNotFound is returned by a ResultStore that has nothing for a kind yet.
var ErrResultNotFound = errors.New("scan result not found")

// ResultStore keeps the last successful ScanResult per kind.
type ResultStore interface {
	Save(ctx context.Context, r *models.ScanResult) error
	Latest(ctx context.Context, kind models.Kind) (*models.ScanResult, error)
}

// ResultSink receives every successful ScanResult (Kafka topic, ClickHouse table).
type ResultSink interface {
	Name() string
	Publish(ctx context.Context, r *models.ScanResult) error
	Close() error
}

type Metrics interface {
	RecordFetchAttempt(endpoint, outcome string)
	RecordFailover(endpoint string)
	RecordExhausted(path string)
	RecordSymbol(kind, status string)
	RecordHits(kind, bucket string, n int)
	RecordScan(kind, reason string, seconds float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
