// Package fetch provides the shared rate-limited HTTP transport handed to
// engine factories. Engines do not manage connection lifecycle themselves.
package fetch

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lokum/internal/adapters/observability"
	"lokum/internal/domain"
)

type Client struct {
	hc        *http.Client
	userAgent string
	rl        *rate.Limiter
}

func New(userAgent string, rps int) *Client {
	if rps <= 0 {
		rps = 2
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"
	}
	return &Client{
		hc:        &http.Client{Timeout: 20 * time.Second},
		userAgent: userAgent,
		rl:        rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Get fetches a page body with client-side rate limiting and retries.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
// A 404/410 surfaces as domain.NotFoundError; other failures as domain.FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	host := hostLabel(rawURL)
	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &domain.FetchError{URL: rawURL, Err: err}
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/html,application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			observability.ObserveExternal("fetch", host, 0, time.Since(start))
			lastErr = &domain.FetchError{URL: rawURL, Err: err}
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		observability.ObserveExternal("fetch", host, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, &domain.FetchError{URL: rawURL, Err: err}
			}
			return body, nil

		case http.StatusNotFound, http.StatusGone:
			resp.Body.Close()
			return nil, &domain.NotFoundError{URL: rawURL}

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = &domain.FetchError{URL: rawURL, Err: fmt.Errorf("remote %d", resp.StatusCode)}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &domain.FetchError{
				URL: rawURL,
				Err: fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
			}
		}
	}

	return nil, lastErr
}

func hostLabel(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% concurrency-safe jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
