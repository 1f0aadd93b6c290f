package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	pkgerrs "redveil/pkg/errors"
)

// Client dispatches authenticated requests against the upstream API. It
// owns the rate limiter and the retry policy; the connection pool behind
// the embedded http.Client is shared by all callers.
type Client struct {
	client    *http.Client
	BaseURL   *url.URL
	UserAgent string
	tokens    *TokenStore
	logger    *zap.Logger

	limiter     *rate.Limiter
	maxRetries  uint64
	baseBackoff time.Duration

	mu             sync.Mutex
	forceWaitUntil time.Time
}

// RateLimitConfig controls how requests are throttled before reaching upstream.
type RateLimitConfig struct {
	// RequestsPerMinute caps steady-state throughput. Defaults to 60 if zero.
	RequestsPerMinute float64
	// Burst allows short spikes above the steady-state rate. Defaults to 10 if zero.
	Burst int
}

// RetryConfig bounds the transient-failure retry loop. The curve is a
// tunable, not a protocol contract.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Defaults to 3 if zero.
	MaxRetries int
	// InitialInterval is the first backoff delay. Defaults to 200ms if zero.
	InitialInterval time.Duration
}

const (
	defaultRequestsPerMinute = 60
	defaultRateLimitBurst    = 10
	defaultMaxRetries        = 3
	defaultInitialInterval   = 200 * time.Millisecond
	maxBackoffInterval       = 5 * time.Second

	quarantineAckParam = "quarantine_opt_in"
)

// NewClient returns a new upstream dispatcher. A nil httpClient gets the
// browser-profile transport.
func NewClient(httpClient *http.Client, tokens *TokenStore, baseURL, userAgent string, rateCfg *RateLimitConfig, retryCfg *RetryConfig, logger *zap.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Transport: NewBrowserTransport(), Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}

	if rateCfg == nil {
		rateCfg = &RateLimitConfig{}
	}
	if retryCfg == nil {
		retryCfg = &RetryConfig{}
	}
	maxRetries := retryCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	baseBackoff := retryCfg.InitialInterval
	if baseBackoff <= 0 {
		baseBackoff = defaultInitialInterval
	}

	return &Client{
		client:      httpClient,
		BaseURL:     parsedURL,
		UserAgent:   userAgent,
		tokens:      tokens,
		logger:      logger.Named("dispatch"),
		limiter:     buildLimiter(*rateCfg),
		maxRetries:  uint64(maxRetries),
		baseBackoff: baseBackoff,
	}, nil
}

// FetchJSON issues an authenticated GET for path (relative to the base URL)
// and returns the raw JSON payload. Transient failures (429, 5xx) are
// retried with exponential backoff and jitter; restriction classes
// (quarantined, private, banned, gated, not-found) are permanent for the
// request lifetime. When quarantineOK is set, a quarantine rejection is
// retried exactly once with the acknowledgment parameter attached.
func (c *Client) FetchJSON(ctx context.Context, path string, quarantineOK bool) (json.RawMessage, error) {
	u, err := c.BaseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}

	raw, err := c.fetchWithRetry(ctx, u)
	if err != nil && quarantineOK && pkgerrs.IsQuarantined(err) {
		q := u.Query()
		q.Set(quarantineAckParam, "true")
		u.RawQuery = q.Encode()
		c.logger.Debug("retrying quarantined resource with acknowledgment", zap.String("path", path))
		return c.fetchWithRetry(ctx, u)
	}
	return raw, err
}

// fetchWithRetry runs the bounded retry loop around single attempts.
func (c *Client) fetchWithRetry(ctx context.Context, u *url.URL) (json.RawMessage, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseBackoff
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2
	bo.MaxInterval = maxBackoffInterval
	bo.MaxElapsedTime = 0

	var raw json.RawMessage
	attempt := 0
	op := func() error {
		if attempt > 0 {
			upstreamRetries.Inc()
		}
		attempt++

		payload, transient, err := c.attempt(ctx, u)
		if err == nil {
			raw = payload
			return nil
		}
		if transient {
			c.logger.Warn("transient upstream failure",
				zap.String("url", u.Redacted()), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// attempt performs one authenticated request and classifies the outcome.
// The second return reports whether the failure is transient.
func (c *Client) attempt(ctx context.Context, u *url.URL) (json.RawMessage, bool, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return nil, false, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		// AuthError propagates untouched so callers can distinguish it.
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}
	defer resp.Body.Close()

	observeUpstream(resp.StatusCode, start)
	c.applyRateHeaders(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !json.Valid(body) {
			return nil, false, &pkgerrs.FetchError{Kind: pkgerrs.KindDecode, StatusCode: resp.StatusCode}
		}
		return body, false, nil

	case resp.StatusCode == http.StatusUnauthorized:
		// The stored token was rejected early; drop it so the retry
		// acquires a fresh one.
		c.tokens.Invalidate()
		return nil, true, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return nil, false, classifyRestriction(resp.StatusCode, body)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, &pkgerrs.FetchError{Kind: pkgerrs.KindRateLimited, StatusCode: resp.StatusCode}

	case resp.StatusCode >= 500:
		return nil, true, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, StatusCode: resp.StatusCode}

	default:
		return nil, false, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, StatusCode: resp.StatusCode}
	}
}

// classifyRestriction maps 403/404 body markers onto the restriction kinds.
func classifyRestriction(status int, body []byte) *pkgerrs.FetchError {
	var marker struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	reason := ""
	if err := json.Unmarshal(body, &marker); err == nil {
		reason = strings.ToLower(marker.Reason)
	}
	if reason == "" {
		// Some error pages skip the structured reason field.
		lower := strings.ToLower(string(body))
		for _, m := range []string{"quarantined", "private", "banned", "gated"} {
			if strings.Contains(lower, m) {
				reason = m
				break
			}
		}
	}

	kind := pkgerrs.KindNotFound
	switch reason {
	case "quarantined":
		kind = pkgerrs.KindQuarantined
	case "private":
		kind = pkgerrs.KindPrivate
	case "banned":
		kind = pkgerrs.KindBanned
	case "gated":
		kind = pkgerrs.KindGated
	default:
		if status == http.StatusForbidden {
			kind = pkgerrs.KindUpstream
		}
	}
	return &pkgerrs.FetchError{Kind: kind, StatusCode: status}
}

// Stream fetches media bytes from the given upstream URL and returns the
// response unread so the caller can stream the body. Range semantics are
// preserved: rangeHeader, when non-empty, is forwarded verbatim and a 206
// comes back as-is. The caller owns resp.Body.
func (c *Client) Stream(ctx context.Context, mediaURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &pkgerrs.FetchError{Kind: pkgerrs.KindUpstream, Err: err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		kind := pkgerrs.KindUpstream
		if resp.StatusCode == http.StatusNotFound {
			kind = pkgerrs.KindNotFound
		}
		return nil, &pkgerrs.FetchError{Kind: kind, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func buildLimiter(cfg RateLimitConfig) *rate.Limiter {
	requestsPerMinute := cfg.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	limitPerSecond := rate.Limit(requestsPerMinute / 60.0)
	if limitPerSecond <= 0 {
		limitPerSecond = rate.Limit(1)
	}
	return rate.NewLimiter(limitPerSecond, burst)
}

func (c *Client) waitForRateLimit(ctx context.Context) error {
	if err := c.waitForForcedDelay(ctx); err != nil {
		return err
	}
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) waitForForcedDelay(ctx context.Context) error {
	for {
		c.mu.Lock()
		waitUntil := c.forceWaitUntil
		c.mu.Unlock()

		if waitUntil.IsZero() {
			return nil
		}
		now := time.Now()
		if !now.Before(waitUntil) {
			c.clearForcedDelay(waitUntil)
			return nil
		}

		timer := time.NewTimer(waitUntil.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			c.clearForcedDelay(waitUntil)
		}
	}
}

func (c *Client) clearForcedDelay(previous time.Time) {
	c.mu.Lock()
	if previous.Equal(c.forceWaitUntil) {
		c.forceWaitUntil = time.Time{}
	}
	c.mu.Unlock()
}

// applyRateHeaders defers future requests when upstream signals pressure,
// either through Retry-After or the ratelimit accounting headers.
func (c *Client) applyRateHeaders(resp *http.Response) {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil && seconds > 0 {
			c.deferRequests(time.Duration(seconds * float64(time.Second)))
		}
	}

	remainingHeader := resp.Header.Get("X-Ratelimit-Remaining")
	resetHeader := resp.Header.Get("X-Ratelimit-Reset")
	if remainingHeader == "" || resetHeader == "" {
		return
	}
	remaining, errRemaining := strconv.ParseFloat(remainingHeader, 64)
	resetSeconds, errReset := strconv.ParseFloat(resetHeader, 64)
	if errRemaining != nil || errReset != nil || resetSeconds <= 0 {
		return
	}
	if remaining <= 1 {
		c.deferRequests(time.Duration(resetSeconds * float64(time.Second)))
	}
}

func (c *Client) deferRequests(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	c.mu.Lock()
	if until.After(c.forceWaitUntil) {
		c.forceWaitUntil = until
	}
	c.mu.Unlock()
}
