package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
)

const userAgent = "sfextract/1.0"

// Client performs HTTP calls against the source API and maps failures to
// typed errors.
type Client struct {
	httpClient        *http.Client
	headers           map[string]string
	defaultRetryAfter time.Duration
	logger            logger.Logger
}

// NewClient creates a client whose every request is bounded by timeout
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, log)
}

// NewClientWithHTTP wraps an existing *http.Client
func NewClientWithHTTP(hc *http.Client, log logger.Logger) *Client {
	return &Client{
		httpClient: hc,
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		defaultRetryAfter: 30 * time.Second,
		logger:            logger.OrNop(log),
	}
}

// SetDefaultRetryAfter sets the wait used when a 429 carries no usable
// Retry-After header.
func (c *Client) SetDefaultRetryAfter(d time.Duration) {
	c.defaultRetryAfter = d
}

// do sends req and returns the body of a 2xx response. Non-2xx statuses
// come back as *errs.Error; transport failures as network errors.
func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		c.logger.WithError(err).WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      redact(req.URL.String()),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, op, err)
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, req.Method, redact(req.URL.String()), resp.StatusCode, duration)

	if err := c.checkResponseStatus(op, resp); err != nil {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, op, fmt.Errorf("failed to read response body: %w", err))
	}
	return body, nil
}

// checkResponseStatus maps a non-2xx response to a typed error
func (c *Client) checkResponseStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), c.defaultRetryAfter, time.Now())
	}

	e := errs.FromStatus(op, resp.StatusCode, retryAfter)
	if snippet := readSnippet(resp.Body); snippet != "" {
		e.Message = e.Message + ": " + snippet
	}
	return e
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Missing or unparsable values yield fallback.
func ParseRetryAfter(value string, fallback time.Duration, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
		return 0
	}
	return fallback
}

func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// redact strips the query string, which may carry tokens or skip tokens
// too long for a log line.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?…"
	}
	return raw
}
