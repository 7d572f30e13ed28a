package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/metrics"
)

const (
	DefaultUserAgent = "iptvcatalog/1.0"
	DefaultTimeout   = 30 * time.Second

	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
	maxBodySize    = 256 << 20
)

// Options configures a Client. Zero values fall back to defaults; a zero
// Rate disables pacing.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Rate       float64
	Burst      int
	// InitialBackoff overrides the first retry delay.
	InitialBackoff time.Duration
}

// Client performs GET requests against provider endpoints.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewClient returns a Client. hc may be nil.
func NewClient(hc *http.Client, opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = initialBackoff
	}
	c := &Client{
		http:       hc,
		userAgent:  opts.UserAgent,
		maxRetries: max(opts.MaxRetries, 0),
		backoff:    opts.InitialBackoff,
		log:        log,
	}
	if opts.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), max(opts.Burst, 1))
	}
	return c
}

// Get fetches rawURL and returns the decoded body. Non-2xx responses and
// network failures come back as *catalog.TransportError. Retryable statuses
// (408, 423, 429, 5xx) and network errors are retried up to MaxRetries times,
// honouring Retry-After.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastWait(lastErr, backoff)); err != nil {
				return nil, err
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		status := "network"
		var te *catalog.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			status = strconv.Itoa(te.StatusCode)
		}
		metrics.HTTPRetries.WithLabelValues(status).Inc()
		c.log.Debug().Str("url", RedactURL(rawURL)).Int("attempt", attempt+1).Err(err).Msg("retrying provider request")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &catalog.TransportError{URL: RedactURL(rawURL), Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &catalog.TransportError{URL: RedactURL(rawURL), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &statusError{
			TransportError: catalog.TransportError{URL: RedactURL(rawURL), StatusCode: resp.StatusCode},
			retryAfter:     parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, &catalog.TransportError{URL: RedactURL(rawURL), Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// statusError carries the server's Retry-After hint alongside the status.
type statusError struct {
	catalog.TransportError
	retryAfter time.Duration
}

func (e *statusError) Unwrap() []error {
	return append(e.TransportError.Unwrap(), &e.TransportError)
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		// Transport only decompresses transparently when it set the header itself.
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, err
	}
	return bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), nil
}

func retryable(err error) bool {
	var te *catalog.TransportError
	if !errors.As(err, &te) {
		return false
	}
	switch code := te.StatusCode; {
	case code == 0:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusLocked, code == http.StatusRequestTimeout:
		return true
	case code >= 500 && code < 600:
		return true
	}
	return false
}

func lastWait(err error, backoff time.Duration) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > 0 {
		return se.retryAfter
	}
	return backoff
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); 0 if missing or invalid.
func parseRetryAfter(s string) time.Duration {
	if s == "" {
		return 0
	}
	if sec, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && sec > 0 {
		return min(time.Duration(sec)*time.Second, maxBackoff)
	}
	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return 0
		}
		return min(d, maxBackoff)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
