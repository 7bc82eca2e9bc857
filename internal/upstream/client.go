// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package upstream is the client for the linux.do (Discourse) user API.

A profile fetch issues two sequential GET requests:

	{base}/u/{username}.json          -> "user"
	{base}/u/{username}/summary.json  -> "user_summary"

Every outbound request passes one process-wide rate limiter, so two calls
are always at least MinInterval apart no matter which user they are for.
Each request carries a hard timeout. There are no retries: a failed fetch
is reported to the caller, which tries again on the next refresh cycle. A
circuit breaker stops hammering an upstream that keeps failing.
*/
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
	"github.com/tomtom215/greeting/internal/profile"
)

// Compile-time interface check.
var _ profile.Fetcher = (*Client)(nil)

// DefaultBaseURL is the linux.do forum.
const DefaultBaseURL = "https://linux.do"

// DefaultUserAgent identifies the service to the upstream API.
const DefaultUserAgent = "Mozilla/5.0 (compatible; greeting-badge/1.0; +https://github.com/tomtom215/greeting)"

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

// maxErrorBodySize bounds the body quoted in a StatusError.
const maxErrorBodySize = 512

// Config configures the client.
type Config struct {
	// BaseURL of the Discourse forum. Default: https://linux.do
	BaseURL string

	// Timeout per request. Default: 5s
	Timeout time.Duration

	// MinInterval between any two outbound requests. Default: 1s
	MinInterval time.Duration

	// UserAgent sent with every request.
	UserAgent string

	// Breaker settings.
	Breaker BreakerConfig

	// BioFilter, when set, is applied to the fetched bio_raw.
	BioFilter func(string) string

	// HTTPClient overrides the transport. Its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Timeout:     5 * time.Second,
		MinInterval: time.Second,
		UserAgent:   DefaultUserAgent,
		Breaker:     DefaultBreakerConfig(),
	}
}

// Client fetches profiles. It is safe for concurrent use.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker
	bioFilter  func(string) string
}

// NewClient creates a client from cfg, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker = def.Breaker
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		cp := *cfg.HTTPClient
		httpClient = &cp
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		breaker:    newBreaker("linux-do-api", cfg.Breaker),
		bioFilter:  cfg.BioFilter,
	}
}

type userDocument struct {
	User *profile.User `json:"user"`
	DiscourseError
}

type summaryDocument struct {
	UserSummary *profile.Summary `json:"user_summary"`
	DiscourseError
}

// Fetch loads the profile and summary documents for username.
func (c *Client) Fetch(ctx context.Context, username string) (*profile.UserInfo, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	metrics.UpstreamFetchesInFlight.Inc()
	defer metrics.UpstreamFetchesInFlight.Dec()

	return c.breaker.execute(func() (*profile.UserInfo, error) {
		return c.fetch(ctx, username)
	})
}

func (c *Client) fetch(ctx context.Context, username string) (*profile.UserInfo, error) {
	escaped := url.PathEscape(username)

	var ud userDocument
	if err := c.getJSON(ctx, "user", "/u/"+escaped+".json", &ud); err != nil {
		return nil, err
	}
	if ud.User == nil {
		metrics.UpstreamErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: user document has no user object", ErrUpstreamUnavailable)
	}

	if c.bioFilter != nil && ud.User.BioRaw != "" {
		ud.User.BioRaw = c.bioFilter(ud.User.BioRaw)
	}

	var sd summaryDocument
	if err := c.getJSON(ctx, "summary", "/u/"+escaped+"/summary.json", &sd); err != nil {
		return nil, err
	}
	if sd.UserSummary == nil {
		metrics.UpstreamErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: summary document has no user_summary object", ErrUpstreamUnavailable)
	}

	logging.Ctx(ctx).Debug().Str("user", username).Msg("Fetched linux.do profile")

	return &profile.UserInfo{
		User:      *ud.User,
		Summary:   *sd.UserSummary,
		FetchedAt: time.Now(),
	}, nil
}

// envelope is implemented by documents that embed DiscourseError.
type envelope interface {
	discourseError() *DiscourseError
}

func (e *DiscourseError) discourseError() *DiscourseError { return e }

// getJSON waits for the rate limiter, performs one GET and decodes the body
// into out.
func (c *Client) getJSON(ctx context.Context, document, path string, out envelope) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest(document, time.Since(start))
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		return fmt.Errorf("%w: GET %s: %w", ErrUpstreamUnavailable, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		return fmt.Errorf("%w: read %s: %w", ErrUpstreamUnavailable, path, err)
	}

	decodeErr := json.Unmarshal(body, out)
	de := out.discourseError()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && de.ErrorType != "" {
			de.StatusCode = resp.StatusCode
			metrics.UpstreamErrors.WithLabelValues("discourse").Inc()
			return de
		}
		metrics.UpstreamErrors.WithLabelValues("status").Inc()
		if len(body) > maxErrorBodySize {
			body = body[:maxErrorBodySize]
		}
		return &StatusError{Document: document, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if decodeErr != nil {
		metrics.UpstreamErrors.WithLabelValues("decode").Inc()
		return fmt.Errorf("%w: decode %s: %w", ErrUpstreamUnavailable, path, decodeErr)
	}
	if de.ErrorType != "" || len(de.Errors) > 0 {
		de.StatusCode = resp.StatusCode
		metrics.UpstreamErrors.WithLabelValues("discourse").Inc()
		return de
	}
	return nil
}

// BreakerOpen reports whether the circuit breaker is rejecting fetches.
func (c *Client) BreakerOpen() bool {
	return c.breaker.open()
}
