package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/models"
)

// fakeProvider answers by endpoint name and records the order of requests.
type fakeProvider struct {
	mu       sync.Mutex
	requests []string
	handlers map[string]http.HandlerFunc
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if a := r.URL.Query().Get("action"); a != "" {
		name = a
	}
	f.mu.Lock()
	f.requests = append(f.requests, name)
	f.mu.Unlock()
	if h, ok := f.handlers[name]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (f *fakeProvider) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newProber(t *testing.T, fp *fakeProvider) (*Prober, models.Credentials) {
	t.Helper()
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)
	creds := models.Credentials{ServerURL: srv.URL + "/", Username: "u", Password: "p"}
	return NewProber(newTestClient(0), zerolog.Nop()), creds
}

func TestProbeFallsBackToPlayerLiveStreams(t *testing.T) {
	fp := &fakeProvider{handlers: map[string]http.HandlerFunc{
		"/api/panel_api.php": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		ActionLiveStreams: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "u", r.URL.Query().Get("username"))
			assert.Equal(t, "p", r.URL.Query().Get("password"))
			_, _ = w.Write([]byte(`[{"stream_id":1,"name":"One"}]`))
		},
	}}
	p, creds := newProber(t, fp)

	res, err := p.Probe(context.Background(), creds, DefaultProbeOrder())
	require.NoError(t, err)
	assert.Equal(t, DialectPlayer, res.Endpoint.Dialect)
	assert.Equal(t, catalog.FormatFlatArray, res.Payload.Format)
	assert.Equal(t, []string{"/api/panel_api.php", ActionLiveStreams}, fp.seen())

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, ProbeTransportFailure, res.Attempts[0].Status)
	assert.Equal(t, http.StatusInternalServerError, res.Attempts[0].StatusCode)
	assert.Equal(t, ProbeSuccess, res.Attempts[1].Status)
	assert.NotContains(t, res.URL, "password=p")
}

func TestProbeParseFailureMovesOn(t *testing.T) {
	fp := &fakeProvider{handlers: map[string]http.HandlerFunc{
		"/api/panel_api.php": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>login</html>`))
		},
		ActionLiveStreams: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		},
	}}
	p, creds := newProber(t, fp)

	res, err := p.Probe(context.Background(), creds, DefaultProbeOrder())
	require.NoError(t, err)
	assert.Equal(t, ProbeParseFailure, res.Attempts[0].Status)
	assert.True(t, errors.Is(res.Attempts[0].Err, catalog.ErrParse))
	assert.Equal(t, ActionLiveStreams, res.Endpoint.Name)
}

func TestProbeM3UEndpoint(t *testing.T) {
	fp := &fakeProvider{handlers: map[string]http.HandlerFunc{
		"/get.php": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "m3u_plus", r.URL.Query().Get("type"))
			_, _ = w.Write([]byte("#EXTM3U\n"))
		},
	}}
	p, creds := newProber(t, fp)

	res, err := p.Probe(context.Background(), creds, DefaultProbeOrder())
	require.NoError(t, err)
	assert.Equal(t, DialectM3U, res.Endpoint.Dialect)
	assert.Equal(t, catalog.FormatPlaylistText, res.Payload.Format)
	assert.Len(t, res.Attempts, 4)
}

func TestProbeAllEndpointsFailed(t *testing.T) {
	fp := &fakeProvider{}
	p, creds := newProber(t, fp)

	res, err := p.Probe(context.Background(), creds, DefaultProbeOrder())
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrAllEndpointsFailed))
	assert.True(t, errors.Is(err, catalog.ErrTransport))
	assert.Len(t, res.Attempts, 4)
	assert.Len(t, fp.seen(), 4)
}

func TestProbeCancelled(t *testing.T) {
	fp := &fakeProvider{}
	p, creds := newProber(t, fp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Probe(ctx, creds, DefaultProbeOrder())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fp.seen())
}

func TestEndpointURL(t *testing.T) {
	creds := models.Credentials{ServerURL: "http://h:8080/player_api.php", Username: "a b", Password: "p&q"}

	assert.Equal(t, "http://h:8080/api/panel_api.php?password=p%26q&username=a+b", Panel.URL(creds))
	assert.Equal(t, "http://h:8080/player_api.php?action=get_live_categories&password=p%26q&username=a+b", PlayerLiveCategories.URL(creds))
	assert.Equal(t, "http://h:8080/get.php?password=p%26q&type=m3u_plus&username=a+b", M3UPlus.URL(creds))
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("http://h/player_api.php?username=me&password=secret&action=get_series")
	assert.NotContains(t, got, "secret")
	assert.NotContains(t, got, "=me")
	assert.Contains(t, got, "action=get_series")
	assert.Equal(t, "http://h/x", RedactURL("http://h/x"))
}

func TestProbeRejectsM3UWithoutHeader(t *testing.T) {
	fp := &fakeProvider{handlers: map[string]http.HandlerFunc{
		"/get.php": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("Account expired"))
		},
	}}
	p, creds := newProber(t, fp)

	res, err := p.Probe(context.Background(), creds, DefaultProbeOrder())
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrAllEndpointsFailed))
	assert.True(t, errors.Is(err, catalog.ErrInvalidFormat))
	assert.Equal(t, ProbeParseFailure, res.Attempts[3].Status)
}
