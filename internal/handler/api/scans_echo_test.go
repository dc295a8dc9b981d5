package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalScan/internal/domain/models"
	domrepo "SignalScan/internal/domain/repository"
	"SignalScan/internal/service/marketapi"
	"SignalScan/internal/usecase"
	xhttp "SignalScan/pkg/http"
	xlogger "SignalScan/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	startErr  error
	started   []models.Kind
	overrides []usecase.Override
	running   bool
	status    models.SessionStatus
	latest    *models.ScanResult
	latestErr error
	lastErr   error
	progress  chan models.Progress
}

func (f *fakeSession) Start(_ context.Context, kind models.Kind, o usecase.Override) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, kind)
	f.overrides = append(f.overrides, o)
	return nil
}

func (f *fakeSession) Stop() bool                   { return f.running }
func (f *fakeSession) Status() models.SessionStatus { return f.status }
func (f *fakeSession) LastError() error             { return f.lastErr }

func (f *fakeSession) Latest(_ context.Context, _ models.Kind) (*models.ScanResult, error) {
	return f.latest, f.latestErr
}

func (f *fakeSession) Subscribe(int) (<-chan models.Progress, func()) {
	if f.progress == nil {
		f.progress = make(chan models.Progress, 8)
	}
	return f.progress, func() {}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(f *fakeSession, opts ...xhttp.ServerOption) *xhttp.Server {
	h := NewScansEchoHandler(xlogger.Nop(), f, StreamConfig{StatusInterval: time.Hour})
	return xhttp.NewServer(h, xlogger.Nop(), opts...)
}

func do(t *testing.T, s *xhttp.Server, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestStartScan_Accepted(t *testing.T) {
	f := &fakeSession{}
	s := newTestServer(f)

	rec, env := do(t, s, http.MethodPost, "/api/scans/macd_divergence?max_instruments=50&interval=4h")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, http.StatusAccepted, env.Status)

	require.Equal(t, []models.Kind{models.KindMACDDivergence}, f.started)
	assert.Equal(t, usecase.Override{MaxInstruments: 50, Interval: "4h"}, f.overrides[0])

	var resp models.StartScanResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Started)
}

func TestStartScan_Conflict(t *testing.T) {
	s := newTestServer(&fakeSession{startErr: usecase.ErrScanInProgress})

	rec, env := do(t, s, http.MethodPost, "/api/scans/ema_cross")
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_CONFLICT", errs[0].Code)
}

func TestStartScan_Validation(t *testing.T) {
	f := &fakeSession{}
	s := newTestServer(f)

	rec, env := do(t, s, http.MethodPost, "/api/scans/rsi")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.NotEmpty(t, errs)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "kind", errs[0].Field)

	rec, _ = do(t, s, http.MethodPost, "/api/scans/ema_cross?interval=7m")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.started)
}

func latestFixture() *models.ScanResult {
	hit := func(sym string, score float64) models.Hit {
		return models.Hit{Symbol: sym, Bucket: models.BucketCrossed, Score: score}
	}
	return &models.ScanResult{
		Buckets: map[models.Bucket][]models.Hit{
			models.BucketCrossed:   {hit("A", 3), hit("B", 2), hit("C", 1)},
			models.BucketImminent:  {{Symbol: "D", Bucket: models.BucketImminent}},
			models.BucketPreparing: {},
		},
		Meta: models.ScanMeta{ID: "s1", Kind: models.KindEMACross, StopReason: models.StopCompleted},
	}
}

func TestLatest_FiltersBucketAndLimit(t *testing.T) {
	f := &fakeSession{latest: latestFixture(), lastErr: &marketapi.ExhaustedError{StatusCode: 429}}
	s := newTestServer(f)

	rec, env := do(t, s, http.MethodGet, "/api/scans/ema_cross/latest?bucket=crossed&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.LatestScanResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Result.Buckets, 1)
	hs := resp.Result.Buckets[models.BucketCrossed]
	require.Len(t, hs, 2)
	assert.Equal(t, "A", hs[0].Symbol)
	assert.Equal(t, "s1", resp.Result.Meta.ID)
	assert.Contains(t, resp.LastError, "429")

	// the stored result is not mutated by filtering
	assert.Len(t, f.latest.Buckets[models.BucketCrossed], 3)
}

func TestLatest_DefaultLimitKeepsAllBuckets(t *testing.T) {
	s := newTestServer(&fakeSession{latest: latestFixture()})

	rec, env := do(t, s, http.MethodGet, "/api/scans/ema_cross/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.LatestScanResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Result.Buckets, 3)
	assert.Empty(t, resp.LastError)
}

func TestLatest_Errors(t *testing.T) {
	s := newTestServer(&fakeSession{latest: latestFixture()})
	rec, _ := do(t, s, http.MethodGet, "/api/scans/ema_cross/latest?bucket=bullish_divergence")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s = newTestServer(&fakeSession{latestErr: domrepo.ErrResultNotFound})
	rec, _ = do(t, s, http.MethodGet, "/api/scans/ema_cross/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s = newTestServer(&fakeSession{
		latestErr: domrepo.ErrResultNotFound,
		lastErr:   &marketapi.ExhaustedError{StatusCode: 418, URL: "https://a.example/x"},
	})
	rec, env := do(t, s, http.MethodGet, "/api/scans/ema_cross/latest")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	assert.Equal(t, "ERR_UPSTREAM_EXHAUSTED", errs[0].Code)
	assert.EqualValues(t, 418, errs[0].Params["status"])
}

func TestStopAndStatus(t *testing.T) {
	f := &fakeSession{status: models.SessionStatus{Running: true, Kind: models.KindEMACross}}
	s := newTestServer(f)

	rec, _ := do(t, s, http.MethodPost, "/api/scans/stop")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.running = true
	rec, _ = do(t, s, http.MethodPost, "/api/scans/stop")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, env := do(t, s, http.MethodGet, "/api/scans/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	var st models.SessionStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Running)
	assert.Equal(t, models.KindEMACross, st.Kind)
}

func TestStream_StatusThenProgress(t *testing.T) {
	f := &fakeSession{progress: make(chan models.Progress, 1), status: models.SessionStatus{Running: true}}
	ts := httptest.NewServer(newTestServer(f).Echo())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/scans/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first struct {
		Type string               `json:"type"`
		Data models.SessionStatus `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	assert.True(t, first.Data.Running)

	f.progress <- models.Progress{ScanID: "s1", Kind: models.KindEMACross, Done: 3, Total: 10, Symbol: "BTCUSDT"}

	var next struct {
		Type string          `json:"type"`
		Data models.Progress `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "progress", next.Type)
	assert.Equal(t, 3, next.Data.Done)
	assert.Equal(t, "BTCUSDT", next.Data.Symbol)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(&fakeSession{}, xhttp.WithMetrics("/metrics", reg, reg))

	do(t, s, http.MethodGet, "/api/scans/status")

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/api/scans/status",status="200"} 1`)
}
