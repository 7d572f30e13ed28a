package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/metrics"
	"github.com/voyagen/iptvcatalog/internal/models"
)

// ProbeStatus is the result class of one endpoint attempt.
type ProbeStatus int

const (
	ProbeSuccess ProbeStatus = iota
	ProbeTransportFailure
	ProbeParseFailure
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeSuccess:
		return "success"
	case ProbeTransportFailure:
		return "transport_failure"
	case ProbeParseFailure:
		return "parse_failure"
	}
	return "unknown"
}

// ProbeOutcome records a single endpoint attempt.
type ProbeOutcome struct {
	Endpoint   Endpoint
	Status     ProbeStatus
	StatusCode int
	Err        error
	Duration   time.Duration
}

// ProbeResult is the winning endpoint, its classified payload and every
// attempt made to get there.
type ProbeResult struct {
	Endpoint Endpoint
	URL      string
	Payload  *catalog.Payload
	Attempts []ProbeOutcome
}

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Prober tries endpoints strictly in order and stops at the first one that
// yields a usable payload.
type Prober struct {
	getter Getter
	log    zerolog.Logger
}

// NewProber returns a Prober using g for requests.
func NewProber(g Getter, log zerolog.Logger) *Prober {
	return &Prober{getter: g, log: log}
}

// Probe walks endpoints in order. Transport and parse failures move on to the
// next endpoint. If none succeeds the error wraps catalog.ErrAllEndpointsFailed
// and the last failure; the attempts made are still returned. Context
// cancellation stops probing and returns the context error.
func (p *Prober) Probe(ctx context.Context, creds models.Credentials, endpoints []Endpoint) (*ProbeResult, error) {
	res := &ProbeResult{}
	var lastErr error
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, payload, rawURL := p.attempt(ctx, creds, ep)
		res.Attempts = append(res.Attempts, out)
		metrics.ObserveProbe(ep.Name, out.Status.String(), out.Duration)

		if out.Status == ProbeSuccess {
			res.Endpoint = ep
			res.URL = RedactURL(rawURL)
			res.Payload = payload
			p.log.Info().Str("endpoint", ep.Name).Str("format", payload.Format.String()).Dur("took", out.Duration).Msg("provider endpoint answered")
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		lastErr = out.Err
		p.log.Warn().Str("endpoint", ep.Name).Str("status", out.Status.String()).Err(out.Err).Msg("provider endpoint failed, trying next")
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return res, fmt.Errorf("%w: %w", catalog.ErrAllEndpointsFailed, lastErr)
}

// Get downloads rawURL with the prober's client, without classification.
func (p *Prober) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return p.getter.Get(ctx, rawURL)
}

// Fetch requests a single endpoint without fallback.
func (p *Prober) Fetch(ctx context.Context, creds models.Credentials, ep Endpoint) (*catalog.Payload, ProbeOutcome) {
	out, payload, _ := p.attempt(ctx, creds, ep)
	metrics.ObserveProbe(ep.Name, out.Status.String(), out.Duration)
	return payload, out
}

func (p *Prober) attempt(ctx context.Context, creds models.Credentials, ep Endpoint) (ProbeOutcome, *catalog.Payload, string) {
	rawURL := ep.URL(creds)
	start := time.Now()
	out := ProbeOutcome{Endpoint: ep}

	body, err := p.getter.Get(ctx, rawURL)
	out.Duration = time.Since(start)
	if err != nil {
		out.Status = ProbeTransportFailure
		out.Err = err
		var te *catalog.TransportError
		if errors.As(err, &te) {
			out.StatusCode = te.StatusCode
		}
		return out, nil, rawURL
	}

	payload, err := catalog.Detect(body, rawURL)
	if err != nil {
		var pe *catalog.ParseError
		if errors.As(err, &pe) {
			pe.URL = RedactURL(pe.URL)
		}
		out.Status = ProbeParseFailure
		out.Err = err
		return out, nil, rawURL
	}
	if payload.Format == catalog.FormatPlaylistText && !catalog.HasM3UHeader(body) {
		out.Status = ProbeParseFailure
		out.Err = &catalog.ParseError{URL: RedactURL(rawURL), Err: catalog.ErrInvalidFormat}
		return out, nil, rawURL
	}
	out.Status = ProbeSuccess
	return out, payload, rawURL
}
