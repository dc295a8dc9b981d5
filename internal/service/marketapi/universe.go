package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"SignalScan/internal/domain/models"
)

// FetchParams are the transport settings shared by every call of one scan.
type FetchParams struct {
	Endpoints  []string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func (p FetchParams) request(path string, params map[string]string) Request {
	return Request{
		Path:       path,
		Params:     params,
		Timeout:    p.Timeout,
		MaxRetries: p.MaxRetries,
		Backoff:    p.Backoff,
		Endpoints:  p.Endpoints,
	}
}

type UniverseParams struct {
	MinQuoteVolume float64
	MaxInstruments int // <= 0 keeps everything
	QuoteSuffix    string
	Excluded       []string
}

type Universe struct {
	Instruments []models.Instrument
	Endpoint    string
}

func (u *Universe) Symbols() []string {
	out := make([]string, len(u.Instruments))
	for i, in := range u.Instruments {
		out[i] = in.Symbol
	}
	return out
}

// Resolver builds the working set of instruments from the 24h ticker resource.
type Resolver struct {
	fetcher Fetcher
	path    string
}

func NewResolver(f Fetcher, tickerPath string) *Resolver {
	return &Resolver{fetcher: f, path: tickerPath}
}

type tickerEntry struct {
	Symbol      string          `json:"symbol"`
	QuoteVolume json.RawMessage `json:"quoteVolume"`
	LastPrice   json.RawMessage `json:"lastPrice"`
}

// Resolve fetches the ticker list once, keeps symbols with the quote suffix that
// are not excluded and trade at least MinQuoteVolume, then orders them by volume
// descending (stable on response order) and truncates to MaxInstruments.
// Fetch errors are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, p UniverseParams, fp FetchParams) (*Universe, error) {
	res, err := r.fetcher.Fetch(ctx, fp.request(r.path, nil))
	if err != nil {
		return nil, err
	}

	instruments, err := ParseTickers(res.Payload, p)
	if err != nil {
		return nil, err
	}
	return &Universe{Instruments: instruments, Endpoint: res.Endpoint}, nil
}

// ParseTickers applies the universe filters to a raw ticker payload.
// Entries whose volume cannot be parsed are skipped.
func ParseTickers(payload []byte, p UniverseParams) ([]models.Instrument, error) {
	var entries []tickerEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("%w: ticker list: %v", ErrMalformedPayload, err)
	}

	excluded := make(map[string]struct{}, len(p.Excluded))
	for _, s := range p.Excluded {
		excluded[strings.ToUpper(s)] = struct{}{}
	}

	out := make([]models.Instrument, 0, len(entries))
	for _, e := range entries {
		if e.Symbol == "" || !strings.HasSuffix(e.Symbol, p.QuoteSuffix) {
			continue
		}
		if _, skip := excluded[e.Symbol]; skip {
			continue
		}
		vol, ok := parseNumber(e.QuoteVolume)
		if !ok || vol < p.MinQuoteVolume {
			continue
		}
		last, _ := parseNumber(e.LastPrice)
		out = append(out, models.Instrument{Symbol: e.Symbol, QuoteVolume: vol, LastPrice: last})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].QuoteVolume > out[j].QuoteVolume })
	if p.MaxInstruments > 0 && len(out) > p.MaxInstruments {
		out = out[:p.MaxInstruments]
	}
	return out, nil
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	} else {
		s = string(raw)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
