package marketapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher returns a canned payload or error and records requests.
type stubFetcher struct {
	payload  string
	endpoint string
	err      error
	reqs     []Request
}

func (s *stubFetcher) Fetch(_ context.Context, r Request) (*Result, error) {
	s.reqs = append(s.reqs, r)
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Payload: json.RawMessage(s.payload), Endpoint: s.endpoint}, nil
}

var testFetchParams = FetchParams{
	Endpoints:  []string{"https://e1", "https://e2"},
	Timeout:    5 * time.Second,
	MaxRetries: 2,
	Backoff:    time.Second,
}

func TestResolve_MinVolumeFilter(t *testing.T) {
	f := &stubFetcher{
		payload:  `[{"symbol":"AAAUSDT","quoteVolume":"2000000"},{"symbol":"BBBUSDT","quoteVolume":"500000"}]`,
		endpoint: "https://e1",
	}

	u, err := NewResolver(f, "/fapi/v1/ticker/24hr").Resolve(context.Background(),
		UniverseParams{MinQuoteVolume: 1_000_000, MaxInstruments: 400, QuoteSuffix: "USDT"}, testFetchParams)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAAUSDT"}, u.Symbols())
	assert.Equal(t, "https://e1", u.Endpoint)
	require.Len(t, f.reqs, 1)
	assert.Equal(t, "/fapi/v1/ticker/24hr", f.reqs[0].Path)
	assert.Equal(t, testFetchParams.Endpoints, f.reqs[0].Endpoints)
	assert.Equal(t, 2, f.reqs[0].MaxRetries)
}

func TestParseTickers_SortFilterTruncate(t *testing.T) {
	payload := `[
		{"symbol":"LOWUSDT","quoteVolume":"1500000","lastPrice":"1.5"},
		{"symbol":"ETHBTC","quoteVolume":"90000000"},
		{"symbol":"TIE1USDT","quoteVolume":3000000},
		{"symbol":"USDCUSDT","quoteVolume":"99000000"},
		{"symbol":"BADUSDT","quoteVolume":"n/a"},
		{"symbol":"TIE2USDT","quoteVolume":"3000000"},
		{"symbol":"TOPUSDT","quoteVolume":"8000000"},
		{"symbol":"MISSUSDT"}
	]`

	got, err := ParseTickers([]byte(payload), UniverseParams{
		MinQuoteVolume: 1_000_000,
		QuoteSuffix:    "USDT",
		Excluded:       []string{"usdcusdt"},
	})
	require.NoError(t, err)

	var syms []string
	for _, in := range got {
		syms = append(syms, in.Symbol)
	}
	// ties keep response order
	assert.Equal(t, []string{"TOPUSDT", "TIE1USDT", "TIE2USDT", "LOWUSDT"}, syms)
	assert.Equal(t, 1.5, got[3].LastPrice)

	got, err = ParseTickers([]byte(payload), UniverseParams{MinQuoteVolume: 0, QuoteSuffix: "USDT", MaxInstruments: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "USDCUSDT", got[0].Symbol)
}

func TestParseTickers_Malformed(t *testing.T) {
	_, err := ParseTickers([]byte(`{"code":0}`), UniverseParams{QuoteSuffix: "USDT"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestResolve_PropagatesExhaustionUnchanged(t *testing.T) {
	ex := &ExhaustedError{StatusCode: 451, URL: "https://e2/fapi/v1/ticker/24hr", Attempts: 6}
	f := &stubFetcher{err: ex}

	_, err := NewResolver(f, "/fapi/v1/ticker/24hr").Resolve(context.Background(), UniverseParams{QuoteSuffix: "USDT"}, testFetchParams)
	var got *ExhaustedError
	require.True(t, errors.As(err, &got))
	assert.Same(t, ex, got)
}
