package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalScan/internal/domain/models"
	pkgch "SignalScan/pkg/clickhouse"
	applogger "SignalScan/pkg/logger"
)

// CHHitSink appends every published scan to ClickHouse: one scan_runs row and one scan_hits row per hit.
type CHHitSink struct {
	ch       *pkgch.Client
	database string
	l        *applogger.Logger
}

func NewCHHitSink(ch *pkgch.Client, database string, l *applogger.Logger) *CHHitSink {
	return &CHHitSink{ch: ch, database: database, l: l}
}

func (s *CHHitSink) Name() string { return "clickhouse" }

func (s *CHHitSink) table(name string) string {
	if s.database == "" {
		return name
	}
	return s.database + "." + name
}

// SchemaStatements returns the idempotent DDL for the sink's tables.
func (s *CHHitSink) SchemaStatements() []string {
	var stmts []string
	if s.database != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database))
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    scan_id      String,
    kind         LowCardinality(String),
    endpoint     String,
    total        UInt32,
    scanned      UInt32,
    classified   UInt32,
    insufficient UInt32,
    failed       UInt32,
    skipped      UInt32,
    stop_reason  LowCardinality(String),
    params       String,
    started_at   DateTime64(3),
    finished_at  DateTime64(3)
) ENGINE = MergeTree
ORDER BY (kind, finished_at)`, s.table("scan_runs")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    scan_id      String,
    kind         LowCardinality(String),
    bucket       LowCardinality(String),
    symbol       String,
    score        Float64,
    bar_time     DateTime64(3),
    last_close   Float64,
    quote_volume Float64,
    diff_pct     Float64,
    macd         Float64,
    histogram    Float64,
    pivot_price  Float64,
    finished_at  DateTime64(3)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(finished_at)
ORDER BY (kind, bucket, symbol, finished_at)`, s.table("scan_hits")),
	)
}

// EnsureSchema creates the database and tables when missing.
func (s *CHHitSink) EnsureSchema(ctx context.Context) error {
	return s.ch.InitSchema(ctx, s.SchemaStatements())
}

func (s *CHHitSink) Publish(ctx context.Context, r *models.ScanResult) error {
	start := time.Now()
	m := r.Meta

	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	runQ := fmt.Sprintf(`INSERT INTO %s (scan_id, kind, endpoint, total, scanned, classified, insufficient, failed, skipped, stop_reason, params, started_at, finished_at)`, s.table("scan_runs"))
	run := []interface{}{
		m.ID, string(m.Kind), m.Endpoint,
		uint32(m.Total), uint32(m.Scanned),
		uint32(m.Counters.Classified), uint32(m.Counters.Insufficient), uint32(m.Counters.Failed), uint32(m.Counters.Skipped),
		string(m.StopReason), string(params), m.StartedAt, m.FinishedAt,
	}
	if err := s.ch.InsertBatch(ctx, runQ, [][]interface{}{run}); err != nil {
		s.l.Error("clickhouse insert scan_runs error", applogger.String("scan_id", m.ID), applogger.Error(err))
		return fmt.Errorf("insert scan run: %w", err)
	}

	rows := make([][]interface{}, 0, r.HitCount())
	for _, b := range models.BucketsFor(m.Kind) {
		for _, h := range r.Buckets[b] {
			rows = append(rows, []interface{}{
				m.ID, string(m.Kind), string(h.Bucket), h.Symbol, h.Score, h.BarTime,
				h.LastClose, h.QuoteVolume, h.DiffPct, h.MACD, h.Histogram, h.PivotPrice, m.FinishedAt,
			})
		}
	}
	hitQ := fmt.Sprintf(`INSERT INTO %s (scan_id, kind, bucket, symbol, score, bar_time, last_close, quote_volume, diff_pct, macd, histogram, pivot_price, finished_at)`, s.table("scan_hits"))
	if err := s.ch.InsertBatch(ctx, hitQ, rows); err != nil {
		s.l.Error("clickhouse insert scan_hits error", applogger.String("scan_id", m.ID), applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("insert scan hits: %w", err)
	}

	s.l.Info("clickhouse scan stored",
		applogger.String("scan_id", m.ID),
		applogger.String("kind", string(m.Kind)),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHHitSink) Close() error {
	return s.ch.Close()
}
