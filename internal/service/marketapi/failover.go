package marketapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	drepo "SignalScan/internal/domain/repository"
	"SignalScan/internal/service/ratelimit"
	"SignalScan/pkg/http"
	"SignalScan/pkg/logger"
	"SignalScan/pkg/metrics"

	"github.com/sony/gobreaker"
)

// DefaultRetryStatuses are treated as "blocked or overloaded, try again".
var DefaultRetryStatuses = []int{418, 429, 403, 451, 500, 502, 503, 504}

// Getter performs one HTTP GET. *http.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, params map[string]string, timeout time.Duration) (*http.Response, error)
}

// Request is one logical GET against a ranked list of base URLs.
type Request struct {
	Path       string
	Params     map[string]string
	Timeout    time.Duration
	MaxRetries int // per endpoint; each endpoint gets MaxRetries+1 attempts
	Backoff    time.Duration
	Endpoints  []string
}

// Result is a successful fetch.
type Result struct {
	Payload  json.RawMessage
	Endpoint string
	Attempts int
}

// Fetcher is the contract used by the universe resolver and the series fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

type Option func(*Client)

// Client is the failover fetch client. It holds no per-request state and is safe
// for concurrent use.
type Client struct {
	http    Getter
	retry   map[int]bool
	limiter *ratelimit.Limiter
	metrics drepo.Metrics
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	breakerOn       bool
	breakerFailures uint32
	breakerTimeout  time.Duration
	breakerMu       sync.Mutex
	breakers        map[string]*gobreaker.CircuitBreaker
}

func NewClient(h Getter, opts ...Option) *Client {
	c := &Client{
		http:     h,
		metrics:  metrics.Nop{},
		log:      logger.Nop(),
		sleep:    sleepCtx,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	c.setRetryStatuses(DefaultRetryStatuses)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithRetryStatuses(codes []int) Option {
	return func(c *Client) {
		if len(codes) > 0 {
			c.setRetryStatuses(codes)
		}
	}
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker opens a per-endpoint circuit after consecutive failures. An open
// circuit counts as a transport error and moves the fetch to the next endpoint.
func WithBreaker(consecutiveFailures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.breakerOn = consecutiveFailures > 0
		c.breakerFailures = consecutiveFailures
		c.breakerTimeout = openTimeout
	}
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func (c *Client) setRetryStatuses(codes []int) {
	c.retry = make(map[int]bool, len(codes))
	for _, code := range codes {
		c.retry[code] = true
	}
}

// Retryable reports whether status is in the retry set.
func (c *Client) Retryable(status int) bool { return c.retry[status] }

type failure struct {
	status int
	url    string
	body   []byte
	err    error
}

// Fetch walks req.Endpoints in order. A 2xx with a JSON body returns at once.
// A retryable status sleeps Backoff*attempt and retries the same endpoint until
// its attempts run out. Any other status, a transport error or a malformed body
// abandons the endpoint immediately. When nothing succeeds the result is an
// *ExhaustedError carrying the last failure. Context cancellation is returned
// as the context error.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	if len(req.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	var last failure
	attempts := 0

	for i, base := range req.Endpoints {
		target := strings.TrimRight(base, "/") + req.Path

	endpoint:
		for attempt := 1; attempt <= req.MaxRetries+1; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			attempts++

			resp, err := c.do(ctx, base, target, req)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				last = failure{url: target, err: err}
				c.observe(base, outcomeFor(err))
				c.log.Debug("fetch transport error",
					logger.String("url", target), logger.Int("attempt", attempt), logger.Error(err))
				break endpoint

			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if !json.Valid(resp.Body) {
					last = failure{status: resp.StatusCode, url: resp.URL, body: resp.Body, err: ErrMalformedPayload}
					c.observe(base, "malformed")
					c.log.Debug("fetch malformed body", logger.String("url", resp.URL))
					break endpoint
				}
				c.observe(base, "ok")
				return &Result{Payload: json.RawMessage(resp.Body), Endpoint: base, Attempts: attempts}, nil

			case c.Retryable(resp.StatusCode):
				last = failure{status: resp.StatusCode, url: resp.URL, body: resp.Body, err: ErrRetryableStatus}
				c.observe(base, "retryable")
				c.log.Debug("fetch retryable status",
					logger.String("url", resp.URL), logger.Int("status", resp.StatusCode), logger.Int("attempt", attempt))
				if attempt <= req.MaxRetries {
					if err := c.sleep(ctx, req.Backoff*time.Duration(attempt)); err != nil {
						return nil, err
					}
				}

			default:
				last = failure{status: resp.StatusCode, url: resp.URL, body: resp.Body, err: ErrUnexpectedStatus}
				c.observe(base, "fatal")
				c.log.Debug("fetch non-retryable status",
					logger.String("url", resp.URL), logger.Int("status", resp.StatusCode))
				break endpoint
			}
		}

		if i < len(req.Endpoints)-1 {
			c.metrics.RecordFailover(base)
			c.log.Warn("endpoint abandoned, trying next",
				logger.String("endpoint", base), logger.String("next", req.Endpoints[i+1]),
				logger.String("path", req.Path), logger.Int("status", last.status))
		}
	}

	c.metrics.RecordExhausted(req.Path)
	return nil, &ExhaustedError{
		Path:       req.Path,
		StatusCode: last.status,
		URL:        last.url,
		Body:       truncate(last.body),
		Attempts:   attempts,
		Err:        last.err,
	}
}

var errCountedStatus = errors.New("counted status")

func (c *Client) do(ctx context.Context, base, target string, req Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, base); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	cb := c.breaker(base)
	if cb == nil {
		return c.http.Get(ctx, target, req.Params, req.Timeout)
	}

	var resp *http.Response
	_, err := cb.Execute(func() (interface{}, error) {
		r, err := c.http.Get(ctx, target, req.Params, req.Timeout)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 || c.Retryable(r.StatusCode) {
			return nil, errCountedStatus
		}
		return nil, nil
	})
	if errors.Is(err, errCountedStatus) {
		return resp, nil
	}
	return resp, err
}

func (c *Client) breaker(base string) *gobreaker.CircuitBreaker {
	if !c.breakerOn {
		return nil
	}
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()

	if cb, ok := c.breakers[base]; ok {
		return cb
	}
	failures := c.breakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    base,
		Timeout: c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("endpoint breaker state changed",
				logger.String("endpoint", name), logger.String("from", from.String()), logger.String("to", to.String()))
		},
	})
	c.breakers[base] = cb
	return cb
}

func (c *Client) observe(endpoint, outcome string) {
	c.metrics.RecordFetchAttempt(endpoint, outcome)
}

func outcomeFor(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "transport"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
