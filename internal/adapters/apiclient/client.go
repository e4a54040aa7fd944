// Package apiclient reads alerts from the PoliceTracker REST API. It is the
// data source of engines hosted outside the API process.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("apiclient: circuit breaker open")

	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
)

// Client implements ports.AlertSource and ports.CountSource over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	maxRetries uint64
	newBackoff func() backoff.BackOff
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff replaces the retry schedule. Mostly for tests.
func WithBackoff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackoff = f }
}

// New builds a client for the API at cfg.BaseURL.
func New(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = 30 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(base.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	c.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alerts-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchAlerts queries GET /v1/alerts for the box, window start and category.
func (c *Client) FetchAlerts(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
	values := url.Values{}
	values.Set("north", formatCoord(q.Bounds.MaxLat))
	values.Set("south", formatCoord(q.Bounds.MinLat))
	values.Set("east", formatCoord(q.Bounds.MaxLon))
	values.Set("west", formatCoord(q.Bounds.MinLon))
	if !q.Since.IsZero() {
		values.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Category != domain.CategoryAll {
		values.Set("category", string(q.Category))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	var alerts []domain.Alert
	if err := c.getJSON(ctx, "fetch_alerts", "/v1/alerts?"+values.Encode(), &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountAlerts queries GET /v1/alerts/count.
func (c *Client) CountAlerts(ctx context.Context) (int, error) {
	var body struct {
		Total int `json:"total"`
	}
	if err := c.getJSON(ctx, "count_alerts", "/v1/alerts/count", &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.UpstreamErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// do issues a GET through the breaker, retrying transport errors, 429 and
// 5xx with exponential backoff. Other 4xx fail at once.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		result, err := c.circuit.Execute(func() (interface{}, error) {
			r, execErr := c.httpClient.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			switch {
			case r.StatusCode == http.StatusTooManyRequests:
				drain(r)
				return nil, errRateLimited
			case r.StatusCode >= 500:
				drain(r)
				return nil, fmt.Errorf("%w: %d", errServerError, r.StatusCode)
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		r := result.(*http.Response)
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			drain(r)
			return backoff.Permanent(fmt.Errorf("%w: %d", errUnexpected, r.StatusCode))
		}
		resp = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackoff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return resp, nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4<<10))
	_ = r.Body.Close()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
