package repository

import (
	"context"
	"time"

	"SignalScan/internal/domain/models"
	pkgkafka "SignalScan/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// BatchPublisher is satisfied by *pkgkafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// ScanEnvelope is the first message of every published scan.
type ScanEnvelope struct {
	Type           string                                  `json:"type"`
	Meta           models.ScanMeta                         `json:"meta"`
	BucketCounts   map[models.Bucket]int                   `json:"bucket_counts"`
	VolumeExtremes map[models.Bucket]models.VolumeExtremes `json:"volume_extremes,omitempty"`
}

// HitEnvelope carries one hit, keyed by symbol so a symbol's hits stay on one partition.
type HitEnvelope struct {
	Type       string      `json:"type"`
	ScanID     string      `json:"scan_id"`
	Kind       models.Kind `json:"kind"`
	FinishedAt time.Time   `json:"finished_at"`
	Hit        models.Hit  `json:"hit"`
}

// KafkaResultSink publishes a scan as one envelope message followed by one message per hit.
type KafkaResultSink struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaResultSink(producer BatchPublisher, topic string) *KafkaResultSink {
	return &KafkaResultSink{producer: producer, topic: topic}
}

func (s *KafkaResultSink) Name() string { return "kafka" }

func (s *KafkaResultSink) Publish(ctx context.Context, r *models.ScanResult) error {
	headers := []kafka.Header{
		{Key: "scan_id", Value: []byte(r.Meta.ID)},
		{Key: "kind", Value: []byte(r.Meta.Kind)},
	}

	counts := make(map[models.Bucket]int, len(r.Buckets))
	for b, hs := range r.Buckets {
		counts[b] = len(hs)
	}

	msgs := make([]pkgkafka.Message, 0, 1+r.HitCount())
	msgs = append(msgs, pkgkafka.Message{
		Key:     []byte(r.Meta.Kind),
		Headers: headers,
		Value: ScanEnvelope{
			Type:           "scan",
			Meta:           r.Meta,
			BucketCounts:   counts,
			VolumeExtremes: r.VolumeExtremes,
		},
	})
	for _, b := range models.BucketsFor(r.Meta.Kind) {
		for _, h := range r.Buckets[b] {
			msgs = append(msgs, pkgkafka.Message{
				Key:     []byte(h.Symbol),
				Headers: headers,
				Value: HitEnvelope{
					Type:       "hit",
					ScanID:     r.Meta.ID,
					Kind:       r.Meta.Kind,
					FinishedAt: r.Meta.FinishedAt,
					Hit:        h,
				},
			})
		}
	}
	return s.producer.PublishBatch(ctx, s.topic, msgs)
}

func (s *KafkaResultSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
