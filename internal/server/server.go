package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/config"
	"github.com/voyagen/iptvcatalog/internal/models"
	"github.com/voyagen/iptvcatalog/internal/service"
	"github.com/voyagen/iptvcatalog/internal/store"
)

const maxImportSize = 64 << 20

// Server holds dependencies for the HTTP API.
type Server struct {
	store  store.Store
	syncer *service.Syncer
	queue  service.JobQueue // nil disables async sync
	cfg    *config.Config
	log    zerolog.Logger
	mux    *http.ServeMux
}

// New creates a Server and registers routes.
func New(s store.Store, syncer *service.Syncer, queue service.JobQueue, cfg *config.Config, log zerolog.Logger) *Server {
	srv := &Server{store: s, syncer: syncer, queue: queue, cfg: cfg, log: log, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Playlists
	s.mux.HandleFunc("GET /api/playlists", s.handleListPlaylists)
	s.mux.HandleFunc("POST /api/playlists", s.handleCreatePlaylist)
	s.mux.HandleFunc("GET /api/playlists/{id}", s.handleGetPlaylist)
	s.mux.HandleFunc("PATCH /api/playlists/{id}", s.handleUpdatePlaylist)
	s.mux.HandleFunc("DELETE /api/playlists/{id}", s.handleDeletePlaylist)
	s.mux.HandleFunc("POST /api/playlists/{id}/sync", s.handleSyncPlaylist)
	s.mux.HandleFunc("POST /api/playlists/{id}/import", s.handleImportM3U)

	// Catalog
	s.mux.HandleFunc("GET /api/playlists/{id}/categories", s.handleListCategories)
	s.mux.HandleFunc("GET /api/playlists/{id}/channels", s.handleListPlaylistChannels)
	s.mux.HandleFunc("GET /api/playlists/{id}/selected", s.handleGetSelected)
	s.mux.HandleFunc("PUT /api/playlists/{id}/selected", s.handleSetSelected)
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler with the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withCORS(withLogging(s.log, s.mux)).ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("server shutdown")
		}
	}()

	s.log.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- playlist handlers ---

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.store.ListPlaylists(r.Context())
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	writeJSON(w, http.StatusOK, playlists)
}

type createPlaylistRequest struct {
	Name      string  `json:"name"`
	ServerURL string  `json:"server_url"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	EPGURL    *string `json:"epg_url"`
	IsActive  *bool   `json:"is_active"`
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Name == "" {
		writeErr(w, r, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := validateServerURL(req.ServerURL); err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	p := &models.Playlist{
		Name:      req.Name,
		ServerURL: req.ServerURL,
		Username:  req.Username,
		Password:  req.Password,
		EPGURL:    req.EPGURL,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	id, err := s.store.CreatePlaylist(r.Context(), p)
	if err != nil {
		writeErr(w, r, statusFor(err), err)
		return
	}
	created, err := s.store.GetPlaylist(r.Context(), id)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.GetPlaylist(r.Context(), id)
	if err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePlaylistRequest struct {
	Name      *string `json:"name"`
	ServerURL *string `json:"server_url"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	EPGURL    *string `json:"epg_url"`
	IsActive  *bool   `json:"is_active"`
}

func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	var req updatePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.ServerURL != nil {
		if err := validateServerURL(*req.ServerURL); err != nil {
			writeErr(w, r, http.StatusBadRequest, err)
			return
		}
	}
	fields := store.PlaylistUpdate{
		Name:      req.Name,
		ServerURL: req.ServerURL,
		Username:  req.Username,
		Password:  req.Password,
		EPGURL:    req.EPGURL,
		IsActive:  req.IsActive,
	}
	if err := s.store.UpdatePlaylist(r.Context(), id, fields); err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
		return
	}
	p, err := s.store.GetPlaylist(r.Context(), id)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeletePlaylist(r.Context(), id); err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
		return
	}
	writeNoContent(w)
}

// handleSyncPlaylist runs a sync inline, or queues it with ?async=true.
func (s *Server) handleSyncPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.GetPlaylist(r.Context(), id)
	if err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
		return
	}
	if !p.IsActive {
		writeErr(w, r, http.StatusConflict, fmt.Errorf("playlist %d is inactive", id))
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if s.queue == nil {
			writeErr(w, r, http.StatusServiceUnavailable, errors.New("background sync is not configured"))
			return
		}
		job, err := service.Enqueue(r.Context(), s.queue, id)
		if err != nil {
			writeErr(w, r, http.StatusServiceUnavailable, fmt.Errorf("enqueue: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	res, err := s.syncer.SyncPlaylist(r.Context(), id)
	if err != nil {
		writeErr(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res.Summary())
}

// handleImportM3U replaces the catalog from an M3U document, either the raw
// request body or the playlist at ?url=.
func (s *Server) handleImportM3U(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}

	var imported bool
	if src := r.URL.Query().Get("url"); src != "" {
		imported, err = s.syncer.ImportM3UFromURL(r.Context(), id, src)
	} else {
		if _, err := s.store.GetPlaylist(r.Context(), id); err != nil {
			writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
			return
		}
		body, rerr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
		if rerr != nil {
			writeErr(w, r, http.StatusRequestEntityTooLarge, rerr)
			return
		}
		imported, err = s.syncer.ImportM3U(r.Context(), id, string(body))
	}
	if err != nil {
		writeErr(w, r, statusFor(err), err)
		return
	}

	resp := map[string]any{"playlist_id": id, "imported": imported}
	if imported {
		pid := id
		if _, total, err := s.store.ListChannels(r.Context(), store.ChannelFilter{PlaylistID: &pid, Limit: 1}); err == nil {
			resp["channel_count"] = total
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- catalog handlers ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetPlaylist(r.Context(), id); err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "playlist", id))
		return
	}
	cats, err := s.store.ListCategories(r.Context(), id)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		k, ok := models.ParseContentKind(kind)
		if !ok {
			writeErr(w, r, http.StatusBadRequest, fmt.Errorf("invalid kind: %s", kind))
			return
		}
		filtered := cats[:0]
		for _, c := range cats {
			if c.Kind == k {
				filtered = append(filtered, c)
			}
		}
		cats = filtered
	}
	if cats == nil {
		cats = []models.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleListPlaylistChannels(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	filter, err := parseChannelFilter(r.URL.Query())
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	filter.PlaylistID = &id
	s.listChannels(w, r, filter)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseChannelFilter(q)
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	if v := q.Get("playlist_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, r, http.StatusBadRequest, fmt.Errorf("invalid playlist_id: %s", v))
			return
		}
		filter.PlaylistID = &id
	}
	s.listChannels(w, r, filter)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request, filter store.ChannelFilter) {
	// Apply defaults so the response reflects actual values used.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	channels, total, err := s.store.ListChannels(r.Context(), filter)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	ch, err := s.store.GetChannelByID(r.Context(), id)
	if err != nil {
		writeErr(w, r, statusFor(err), notFound(err, "channel", id))
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleGetSelected(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	sel, err := s.store.GetSelectedChannel(r.Context(), id)
	if err != nil {
		writeErr(w, r, statusFor(err), fmt.Errorf("no channel selected for playlist %d: %w", id, err))
		return
	}
	ch, err := s.store.GetChannelByID(r.Context(), sel.ChannelID)
	if err != nil {
		writeErr(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playlist_id": sel.PlaylistID,
		"selected_at": sel.SelectedAt,
		"channel":     ch,
	})
}

type setSelectedRequest struct {
	ChannelID int64 `json:"channel_id"`
}

func (s *Server) handleSetSelected(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, err)
		return
	}
	var req setSelectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.ChannelID <= 0 {
		writeErr(w, r, http.StatusBadRequest, errors.New("channel_id is required"))
		return
	}
	if err := s.store.SetSelectedChannel(r.Context(), id, req.ChannelID); err != nil {
		writeErr(w, r, statusFor(err), fmt.Errorf("channel %d in playlist %d: %w", req.ChannelID, id, err))
		return
	}
	sel, err := s.store.GetSelectedChannel(r.Context(), id)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// --- request parsing ---

func parseChannelFilter(q url.Values) (store.ChannelFilter, error) {
	filter := store.ChannelFilter{Search: q.Get("search")}
	if v := q.Get("category_id"); v != "" {
		filter.CategoryID = &v
	}
	if v := q.Get("stream_type"); v != "" {
		k, ok := models.ParseContentKind(v)
		if !ok {
			return filter, fmt.Errorf("invalid stream_type: %s", v)
		}
		st := string(k)
		filter.StreamType = &st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %s", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset: %s", v)
		}
		filter.Offset = n
	}
	return filter, nil
}

func validateServerURL(raw string) error {
	if raw == "" {
		return errors.New("server_url is required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("server_url must be a valid http or https URL")
	}
	return nil
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}
