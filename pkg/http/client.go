package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions holds HTTP request parameters.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string]string
	// Timeout bounds this request only; zero falls back to the client timeout.
	Timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
}

// Client is a pooled HTTP client safe for concurrent use by many workers.
type Client struct {
	timeout      time.Duration
	userAgent    string
	maxBodyBytes int64
	maxIdleConns int
	transport    http.RoundTripper
	client       *http.Client
}

// NewClient creates a new HTTP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:      30 * time.Second,
		maxBodyBytes: 32 << 20,
		maxIdleConns: 32,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = c.maxIdleConns
		t.MaxIdleConnsPerHost = c.maxIdleConns
		c.transport = t
	}

	// Per-request deadlines come from the context; the client timeout is a ceiling.
	c.client = &http.Client{Timeout: c.timeout, Transport: c.transport}
	return c
}

// Get issues a GET request with the given query parameters.
func (c *Client) Get(ctx context.Context, rawURL string, params map[string]string, timeout time.Duration) (*Response, error) {
	return c.SendRequest(ctx, &RequestOptions{
		Method:      http.MethodGet,
		URL:         rawURL,
		QueryParams: params,
		Timeout:     timeout,
	})
}

// SendRequest sends an HTTP request and reads the whole body.
// Non-2xx statuses are not errors here; callers classify them.
func (c *Client) SendRequest(ctx context.Context, opts *RequestOptions) (*Response, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		URL:        req.URL.String(),
		Body:       body,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if len(opts.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range opts.QueryParams {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// WithTimeout sets the client-wide timeout ceiling.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxIdleConns sizes the shared connection pool.
func WithMaxIdleConns(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxIdleConns = n
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.transport = rt }
}
