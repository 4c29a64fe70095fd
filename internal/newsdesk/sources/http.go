package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"
)

const userAgent = "newsdesk/1.0 (+https://github.com/RobinCoderZhao/newsdesk)"

// Options configures a provider client.
type Options struct {
	APIKey   string
	BaseURL  string
	Language string
	PageSize int
	Client   *http.Client
	// MaxAttempts bounds retries of 429 and 5xx responses.
	MaxAttempts int
}

func (o Options) withDefaults(baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Language == "" {
		o.Language = "en"
	}
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// fetcher performs GET requests with exponential backoff.
type fetcher struct {
	provider    string
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	header      http.Header
}

func newFetcher(provider string, o Options) *fetcher {
	return &fetcher{
		provider:    provider,
		client:      o.Client,
		maxAttempts: o.MaxAttempts,
		baseDelay:   500 * time.Millisecond,
		header:      http.Header{},
	}
}

// get fetches url and returns the body of the first 2xx response.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		body, err := f.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == f.maxAttempts-1 {
			break
		}

		delay := f.backoffDelay(attempt)
		slog.Warn("provider request failed, retrying",
			"source", f.provider,
			"attempt", attempt+1,
			"max_attempts", f.maxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// getJSON fetches url and decodes the JSON body into out.
func (f *fetcher) getJSON(ctx context.Context, url string, out any) error {
	body, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", f.provider, err)
	}
	return nil
}

func (f *fetcher) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", f.provider, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range f.header {
		req.Header[k] = v
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", f.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", f.provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &HTTPError{Provider: f.provider, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func (f *fetcher) backoffDelay(attempt int) time.Duration {
	delay := float64(f.baseDelay) * math.Pow(2, float64(attempt))
	maxDelay := 10 * time.Second
	if time.Duration(delay) > maxDelay {
		return maxDelay
	}
	return time.Duration(delay)
}

func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
