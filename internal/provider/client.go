// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/customreports/internal/config"
	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/metrics"
	"github.com/tomtom215/customreports/internal/models"
)

const (
	reportsPath      = "/reports"
	breakerName      = "analytics-provider"
	maxErrorBodySize = 4 << 10
)

// HTTPClient calls the provider over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker

	maxRetries     int
	retryBaseDelay time.Duration
}

// NewHTTPClient builds a client from cfg. RateLimitCalls calls are allowed
// per RateLimitWindow, with a burst of RateLimitCalls.
func NewHTTPClient(cfg *config.ProviderConfig) *HTTPClient {
	calls := cfg.RateLimitCalls
	if calls <= 0 {
		calls = 20
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRateLimitRetries
	if retries < 0 {
		retries = 0
	}

	c := &HTTPClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Every(window/time.Duration(calls)), calls),
		maxRetries:     retries,
		retryBaseDelay: time.Second,
	}
	if cfg.BreakerEnabled {
		c.breaker = newBreaker(breakerName, cfg.BreakerTimeout)
	}
	return c
}

// Execute runs query against the provider.
func (c *HTTPClient) Execute(ctx context.Context, query models.QueryConfig) (*Response, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider rate limiter: %w", err)
	}
	metrics.ProviderRateLimitWait.Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	var (
		resp *Response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.execute(func() (*Response, error) {
			return c.do(ctx, query)
		})
	} else {
		resp, err = c.do(ctx, query)
	}
	metrics.RecordProviderCall(query.DimensionName, time.Since(start), errorReason(err))

	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("dimension", query.DimensionName).
			Int("urls", len(query.URLs)).
			Str("start", query.DateRange.Start).
			Str("end", query.DateRange.End).
			Msg("Provider query failed")
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, query models.QueryConfig) (*Response, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode provider query: %w", err)
	}

	httpResp, err := c.doRequestWithRateLimit(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodySize))
		return nil, &Error{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &resp, nil
}

// doRequestWithRateLimit posts payload, retrying HTTP 429 with exponential
// backoff (1s, 2s, 4s...) unless the provider sends Retry-After seconds.
func (c *HTTPClient) doRequestWithRateLimit(ctx context.Context, payload []byte) (*http.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+reportsPath, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create provider request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute provider request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()

		if attempt == c.maxRetries {
			break
		}

		retryDelay := c.retryBaseDelay * (1 << attempt)
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			retryDelay = time.Duration(seconds) * time.Second
		}

		logging.Ctx(ctx).Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("Provider rate limited (HTTP 429), retrying")

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w after %d retries", ErrRateLimited, c.maxRetries)
}

func errorReason(err error) string {
	if err == nil {
		return ""
	}
	if code := StatusCode(err); code != 0 {
		return strconv.Itoa(code)
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
