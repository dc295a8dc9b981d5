package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_EncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip", nil)

	err := p.PublishBatch(context.Background(), "results", []Message{
		{Key: []byte("a"), Value: map[string]int{"n": 1}},
		{Key: []byte("b"), Value: "raw"},
		{Value: []byte(`{"x":true}`)},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 3)

	assert.Equal(t, "results", w.msgs[0].Topic)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, `{"x":true}`, string(w.msgs[2].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishMessageAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "none", reg)

	require.NoError(t, p.PublishMessage(context.Background(), "logs", []string{"boom"}))
	require.Len(t, w.msgs, 1)
	assert.Nil(t, w.msgs[0].Key)
	assert.JSONEq(t, `["boom"]`, string(w.msgs[0].Value))

	w.err = errors.New("leader not available")
	err := p.Publish(context.Background(), "logs", []byte("k"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("logs", "none", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errs.WithLabelValues("logs")))
}

func TestProducer_EmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("unused")}
	p := NewProducerWithWriter(w, "gzip", nil)
	assert.NoError(t, p.PublishBatch(context.Background(), "t", nil))
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
