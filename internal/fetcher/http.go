package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"btc-advisor/internal/metrics"
)

// HTTPOptions tune the shared JSON client of every provider.
type HTTPOptions struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	Burst      int
	MaxRetries int
	Backoff    time.Duration
	UserAgent  string
}

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Source string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s api error (%d)", e.Source, e.Status)
	}
	return fmt.Sprintf("%s api error (%d): %s", e.Source, e.Status, e.Detail)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type jsonClient struct {
	source  string
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func newJSONClient(source string, opts HTTPOptions, logger zerolog.Logger) *jsonClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &jsonClient{
		source:  source,
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With().Str("component", source+"_fetcher").Logger(),
		sleep:   sleepContext,
	}
}

// getJSON issues a GET and decodes the body into dst, retrying network
// failures, 429 and 5xx responses with exponential backoff.
func (c *jsonClient) getJSON(ctx context.Context, endpoint string, dst any) error {
	started := time.Now()
	body, err := c.getWithRetry(ctx, endpoint)
	if err == nil {
		if decodeErr := json.Unmarshal(body, dst); decodeErr != nil {
			err = fmt.Errorf("decode %s response: %w", c.source, decodeErr)
		}
	}
	metrics.RecordFetch(c.source, time.Since(started), err)
	return err
}

func (c *jsonClient) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.opts.Backoff << (attempt - 1)
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", c.source, c.opts.MaxRetries+1, lastErr)
}

func (c *jsonClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter %s: %w", c.source, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "btcadvisor/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(c.source, resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Code    json.RawMessage `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func parseHTTPError(source string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, detail := range []string{apiErr.Msg, apiErr.Message, apiErr.Error} {
			if detail != "" {
				return &HTTPError{Source: source, Status: status, Detail: detail}
			}
		}
	}
	detail := strings.TrimSpace(string(payload))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return &HTTPError{Source: source, Status: status, Detail: detail}
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
