// Package fetch is the shared outbound HTTP layer for all adapters. It owns
// user-agent rotation, per-organization throttling with jitter, retry with
// backoff, transparent decompression, charset normalization, and a per-host
// circuit breaker so one dead source cannot burn the retry budget of every
// scrape that follows it.
package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sony/gobreaker"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/types"
)

// Client issues throttled, retried GETs. A single Client is shared between
// scrapes; ForOrg derives a per-organization view with its own pacing. All
// mutable shared state sits behind pointers so the derived view is a cheap
// value copy.
type Client struct {
	cfg        config.FetchConfig
	httpClient *http.Client
	logger     *slog.Logger

	uaIndex  *atomic.Uint64
	breakers *breakerSet
	throttle *throttle

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

type breakerSet struct {
	mu sync.Mutex
	m  map[string]*gobreaker.CircuitBreaker
}

// throttle paces requests to one source. Guarded by its own mutex because
// detail-fetch workers share the organization's client.
type throttle struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
}

// New builds the shared client. The cookie jar is process-wide; session
// cookies some sources set on the list page carry over to detail pages.
func New(cfg config.FetchConfig, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		// We negotiate and decode compression ourselves so br is on the table.
		DisableCompression: true,
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With("component", "fetch"),
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
				}
				return nil
			},
		},
		uaIndex:  &atomic.Uint64{},
		breakers: &breakerSet{m: make(map[string]*gobreaker.CircuitBreaker)},
		throttle: &throttle{},
		sleep:    sleepContext,
	}
	return c
}

// ForOrg returns a view of the client that paces requests at the given delay.
// Transport, cookies, and breakers stay shared.
func (c *Client) ForOrg(delay time.Duration) *Client {
	clone := *c
	clone.throttle = &throttle{delay: delay}
	return &clone
}

// Get fetches a URL with throttling, retries, and decompression. The returned
// body is already decoded to UTF-8 for textual content types.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &types.FetchError{URL: rawURL, Err: types.ErrInvalidURL}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			c.logger.Debug("retrying fetch",
				"url", rawURL, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := c.applyThrottle(ctx); err != nil {
			return nil, err
		}

		resp, err := c.fetchOnce(ctx, rawURL, u.Host)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var fe *types.FetchError
		if !errors.As(err, &fe) || !fe.Retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", types.ErrMaxRetries, c.cfg.MaxRetries+1, lastErr)
}

// Head issues a single throttled HEAD request, no retries. The image checker
// uses it to verify URLs without pulling the bytes; callers fall back to Get
// when a server rejects HEAD.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &types.FetchError{URL: rawURL, Err: types.ErrInvalidURL}
	}
	if err := c.applyThrottle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.nextUserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableNetErr(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		FinalURL:   rawURL,
		Duration:   time.Since(start),
	}, nil
}

// GetJSON fetches a URL and decodes the body as JSON into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		return &types.FetchError{URL: rawURL, Err: types.ErrEmptyResponse}
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &types.ParseError{URL: rawURL, Err: err}
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, rawURL, host string) (*Response, error) {
	breaker := c.breakerFor(host)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &types.FetchError{
				URL:       rawURL,
				Err:       fmt.Errorf("%w: %s", types.ErrBreakerOpen, host),
				Retryable: false,
			}
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.FetchError{
			URL:       rawURL,
			Err:       err,
			Retryable: isRetryableNetErr(err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("rate limited"),
			Retryable:  true,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  resp.StatusCode >= 500,
		}
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        err,
			Retryable:  errors.Is(err, io.ErrUnexpectedEOF),
		}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
}

func (c *Client) nextUserAgent() string {
	uas := c.cfg.UserAgents
	if len(uas) == 0 {
		return "rescueradar/" + config.Version
	}
	i := c.uaIndex.Add(1)
	return uas[int(i)%len(uas)]
}

// readBody decompresses, bounds, and charset-normalizes the response body.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader, err := decompressReader(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	limit := c.cfg.MaxBodySize
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, types.ErrBodyTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if isTextual(ct) {
		cr, err := charset.NewReader(bytes.NewReader(body), ct)
		if err == nil {
			decoded, err := io.ReadAll(cr)
			if err == nil {
				body = decoded
			}
		}
	}
	return body, nil
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml")
}

func decompressReader(body io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gz, nil
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	default:
		return io.NopCloser(body), nil
	}
}

// backoff computes the wait before a retry: linear in the attempt number,
// overridden by a server-provided Retry-After when one was sent.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var fe *types.FetchError
	if errors.As(lastErr, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter
	}
	return c.cfg.RetryDelay * time.Duration(attempt)
}

// applyThrottle enforces the per-organization delay plus uniform jitter.
func (c *Client) applyThrottle(ctx context.Context) error {
	t := c.throttle
	if t.delay <= 0 {
		return nil
	}

	t.mu.Lock()
	wait := t.delay - time.Since(t.last)
	if c.cfg.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(2*c.cfg.Jitter))) - c.cfg.Jitter
	}
	if wait < 0 {
		wait = 0
	}
	t.last = time.Now().Add(wait)
	t.mu.Unlock()

	if wait == 0 {
		return nil
	}
	return c.sleep(ctx, wait)
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.breakers.mu.Lock()
	defer c.breakers.mu.Unlock()
	if cb, ok := c.breakers.m[host]; ok {
		return cb
	}
	maxFailures := uint32(c.cfg.Breaker.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     host,
		Interval: c.cfg.Breaker.Interval,
		Timeout:  c.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"host", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers.m[host] = cb
	return cb
}

// isRetryableNetErr mirrors the usual transport taxonomy: timeouts and
// connection churn retry, context cancellation never does.
func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF")
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
