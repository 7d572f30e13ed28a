package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/cache"
	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/fetcher"
	"github.com/voyagen/iptvcatalog/internal/metrics"
	"github.com/voyagen/iptvcatalog/internal/models"
	"github.com/voyagen/iptvcatalog/internal/store"
)

// ErrSyncInProgress is returned when another sync holds the playlist's lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// State is a step of the sync state machine.
type State string

const (
	StateIdle        State = "idle"
	StateProbing     State = "probing"
	StateExtracting  State = "extracting"
	StateNormalizing State = "normalizing"
	StateCommitting  State = "committing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const defaultLockTTL = 10 * time.Minute

// Options tunes a Syncer.
type Options struct {
	// Endpoints overrides the probe order.
	Endpoints []fetcher.Endpoint
	// FetchAllKinds additionally pulls VOD and series from player-dialect
	// providers once the live-streams endpoint has answered.
	FetchAllKinds bool
	// LockTTL bounds how long a crashed sync can block the next one.
	LockTTL time.Duration
}

// Syncer replaces playlist catalogs from their providers.
type Syncer struct {
	store  store.Store
	prober *fetcher.Prober
	locker cache.Locker
	opts   Options
	log    zerolog.Logger
}

// NewSyncer returns a Syncer. A nil locker means an in-process lock.
func NewSyncer(s store.Store, p *fetcher.Prober, locker cache.Locker, opts Options, log zerolog.Logger) *Syncer {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = fetcher.DefaultProbeOrder()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Syncer{store: s, prober: p, locker: locker, opts: opts, log: log}
}

// Request identifies what to sync.
type Request struct {
	PlaylistID  int64
	Credentials models.Credentials
}

// Result reports one sync run.
type Result struct {
	PlaylistID int64                  `json:"playlist_id"`
	State      State                  `json:"state"`
	Dialect    fetcher.Dialect        `json:"dialect,omitempty"`
	Endpoint   string                 `json:"endpoint,omitempty"`
	Format     string                 `json:"format,omitempty"`
	Attempts   []fetcher.ProbeOutcome `json:"-"`
	Categories []models.Category      `json:"-"`
	Channels   []models.Channel       `json:"-"`
	Dropped    []catalog.Dropped      `json:"-"`
	Duplicates int                    `json:"duplicates"`
	Committed  bool                   `json:"committed"`
	StartedAt  time.Time              `json:"started_at"`
	Duration   time.Duration          `json:"duration"`
}

// Summary is the JSON-friendly view of a Result.
type Summary struct {
	*Result
	CategoryCount int      `json:"category_count"`
	ChannelCount  int      `json:"channel_count"`
	DroppedCount  int      `json:"dropped_count"`
	Attempts      []string `json:"attempts"`
}

// Summary flattens r for API responses.
func (r *Result) Summary() Summary {
	s := Summary{
		Result:        r,
		CategoryCount: len(r.Categories),
		ChannelCount:  len(r.Channels),
		DroppedCount:  len(r.Dropped),
	}
	for _, a := range r.Attempts {
		s.Attempts = append(s.Attempts, a.Endpoint.Name+":"+a.Status.String())
	}
	return s
}

// SyncCatalog probes the provider, replaces the playlist's catalog and
// returns the committed channels.
func (s *Syncer) SyncCatalog(ctx context.Context, playlistID int64, serverURL, username, password string) ([]models.Channel, error) {
	res, err := s.Run(ctx, Request{
		PlaylistID:  playlistID,
		Credentials: models.Credentials{ServerURL: serverURL, Username: username, Password: password},
	})
	if err != nil {
		return nil, err
	}
	return res.Channels, nil
}

// SyncPlaylist syncs a stored playlist using its saved credentials.
func (s *Syncer) SyncPlaylist(ctx context.Context, playlistID int64) (*Result, error) {
	creds, err := s.store.GetPlaylistCredentials(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return s.Run(ctx, Request{PlaylistID: playlistID, Credentials: creds})
}

// Run executes the full pipeline. Nothing is written unless a payload was
// obtained and normalized; the write itself is a single transaction.
func (s *Syncer) Run(ctx context.Context, req Request) (res *Result, err error) {
	res = &Result{PlaylistID: req.PlaylistID, State: StateIdle, StartedAt: time.Now()}
	log := s.log.With().Int64("playlist_id", req.PlaylistID).Logger()

	unlock, err := s.lock(ctx, req.PlaylistID)
	if err != nil {
		return res, err
	}
	defer unlock()

	defer func() {
		res.Duration = time.Since(res.StartedAt)
		if err != nil {
			res.State = StateFailed
			log.Error().Err(err).Str("state", string(res.State)).Msg("sync failed")
		}
		metrics.ObserveSync(string(res.Dialect), err, res.Duration)
	}()

	res.transition(log, StateProbing)
	probe, err := s.prober.Probe(ctx, req.Credentials, s.opts.Endpoints)
	res.Attempts = probe.Attempts
	if err != nil {
		return res, err
	}
	res.Dialect = probe.Endpoint.Dialect
	res.Endpoint = probe.Endpoint.Name
	res.Format = probe.Payload.Format.String()

	if probe.Payload.Format == catalog.FormatPlaylistText {
		return res, s.runM3U(ctx, log, res, probe.Payload.Text)
	}

	res.transition(log, StateExtracting)
	cats := catalog.ExtractCategories(probe.Payload)
	batches := []rawBatch{{kind: probe.Endpoint.Kind, records: catalog.ExtractChannels(probe.Payload, probe.Endpoint.Kind)}}
	if s.opts.FetchAllKinds && probe.Endpoint.Dialect == fetcher.DialectPlayer {
		more, extra := s.fetchPlayerCatalog(ctx, log, req.Credentials, probe.Endpoint, res)
		cats.Merge(more)
		batches = append(batches, extra...)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.transition(log, StateNormalizing)
	var channels []models.Channel
	for _, b := range batches {
		chs, dropped := catalog.NormalizeAll(b.records, catalog.NormalizeInput{
			PlaylistID:  req.PlaylistID,
			Categories:  cats,
			Credentials: req.Credentials,
			Kind:        b.kind,
		})
		channels = append(channels, chs...)
		res.Dropped = append(res.Dropped, dropped...)
	}
	channels, res.Duplicates = dedupe(channels)
	recordDrops(log, res.Dropped)

	res.Categories = cats.List()
	for i := range res.Categories {
		res.Categories[i].PlaylistID = req.PlaylistID
	}
	res.Channels = channels

	res.transition(log, StateCommitting)
	if err := s.replace(ctx, req.PlaylistID, res.Categories, res.Channels); err != nil {
		return res, err
	}
	res.Committed = true
	res.transition(log, StateDone)
	log.Info().
		Str("dialect", string(res.Dialect)).
		Int("categories", len(res.Categories)).
		Int("channels", len(res.Channels)).
		Int("dropped", len(res.Dropped)).
		Int("duplicates", res.Duplicates).
		Msg("catalog synced")
	return res, nil
}

// ImportM3U replaces the playlist's channels from M3U text. M3U carries no
// category list, so a committed import also deletes the playlist's stored
// categories; group-title survives only as each channel's category_name.
// It reports false without writing when the text has no channels, and
// returns catalog.ErrInvalidFormat when the header is missing or a line
// exceeds the scanner limit.
func (s *Syncer) ImportM3U(ctx context.Context, playlistID int64, text string) (bool, error) {
	unlock, err := s.lock(ctx, playlistID)
	if err != nil {
		return false, err
	}
	defer unlock()

	res := &Result{PlaylistID: playlistID, State: StateIdle, StartedAt: time.Now(), Dialect: fetcher.DialectM3U}
	log := s.log.With().Int64("playlist_id", playlistID).Logger()
	if err := s.runM3U(ctx, log, res, text); err != nil {
		return false, err
	}
	return res.Committed, nil
}

func (s *Syncer) runM3U(ctx context.Context, log zerolog.Logger, res *Result, text string) error {
	res.transition(log, StateExtracting)
	channels, err := catalog.ParseM3U(strings.NewReader(text))
	if err != nil {
		res.State = StateFailed
		if errors.Is(err, catalog.ErrInvalidFormat) {
			log.Warn().Err(err).Msg("m3u import rejected")
			return err
		}
		return fmt.Errorf("read m3u: %w", err)
	}
	if len(channels) == 0 {
		log.Info().Msg("m3u contained no channels, catalog left unchanged")
		res.transition(log, StateDone)
		return nil
	}
	for i := range channels {
		channels[i].PlaylistID = res.PlaylistID
	}
	res.Channels = channels

	res.transition(log, StateCommitting)
	if err := s.replace(ctx, res.PlaylistID, nil, channels); err != nil {
		res.State = StateFailed
		return err
	}
	res.Committed = true
	res.transition(log, StateDone)
	log.Info().Int("channels", len(channels)).Msg("m3u catalog imported")
	return nil
}

// replace swaps the playlist's catalog in one transaction. Any failure
// leaves the previous catalog in place and is reported as catalog.ErrStorage.
func (s *Syncer) replace(ctx context.Context, playlistID int64, cats []models.Category, channels []models.Channel) error {
	err := store.WithCatalogTx(ctx, s.store, func(tx store.CatalogTx) error {
		if err := tx.DeleteCategories(ctx, playlistID); err != nil {
			return err
		}
		if err := tx.DeleteChannels(ctx, playlistID); err != nil {
			return err
		}
		for _, c := range cats {
			if err := tx.InsertCategory(ctx, playlistID, c); err != nil {
				return err
			}
		}
		for i := range channels {
			if err := tx.InsertChannel(ctx, playlistID, &channels[i]); err != nil {
				return err
			}
		}
		return tx.MarkSynced(ctx, playlistID)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	metrics.CatalogChannels.WithLabelValues(strconv.FormatInt(playlistID, 10)).Set(float64(len(channels)))
	metrics.RecordsNormalized.Add(float64(len(channels)))
	return nil
}

func (s *Syncer) lock(ctx context.Context, playlistID int64) (func(), error) {
	unlock, err := s.locker.TryLock(ctx, fmt.Sprintf("lock:sync:%d", playlistID), s.opts.LockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return nil, fmt.Errorf("playlist %d: %w", playlistID, ErrSyncInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("sync lock: %w", err)
	}
	return unlock, nil
}

// rawBatch is a set of records sharing one content-kind context.
type rawBatch struct {
	kind    models.ContentKind
	records []catalog.Record
}

// fetchPlayerCatalog pulls the remaining player endpoints. Each failure is
// logged and skipped.
func (s *Syncer) fetchPlayerCatalog(ctx context.Context, log zerolog.Logger, creds models.Credentials, won fetcher.Endpoint, res *Result) (*catalog.CategorySet, []rawBatch) {
	cats := catalog.NewCategorySet()
	var batches []rawBatch
	for _, ep := range fetcher.PlayerCatalog() {
		if ep.Name == won.Name {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		payload, out := s.prober.Fetch(ctx, creds, ep)
		res.Attempts = append(res.Attempts, out)
		if out.Status != fetcher.ProbeSuccess {
			log.Warn().Str("endpoint", ep.Name).Err(out.Err).Msg("skipping player endpoint")
			continue
		}
		if ep.Categories {
			cats.Merge(catalog.ExtractCategoriesAs(payload, ep.Kind))
			continue
		}
		batches = append(batches, rawBatch{kind: ep.Kind, records: catalog.ExtractChannels(payload, ep.Kind)})
	}
	return cats, batches
}

// dedupe keeps one channel per stream id: the last occurrence's data at the
// first occurrence's position.
func dedupe(channels []models.Channel) ([]models.Channel, int) {
	index := make(map[string]int, len(channels))
	out := channels[:0:0]
	dups := 0
	for _, ch := range channels {
		if i, ok := index[ch.StreamID]; ok {
			out[i] = ch
			dups++
			continue
		}
		index[ch.StreamID] = len(out)
		out = append(out, ch)
	}
	return out, dups
}

func recordDrops(log zerolog.Logger, dropped []catalog.Dropped) {
	for _, d := range dropped {
		field := "unknown"
		var mf *catalog.MissingFieldError
		if errors.As(d.Err, &mf) {
			field = mf.Field
		}
		metrics.RecordsDropped.WithLabelValues(field).Inc()
	}
	if len(dropped) > 0 {
		log.Warn().Int("dropped", len(dropped)).Msg("records dropped during normalization")
	}
}

func (r *Result) transition(log zerolog.Logger, to State) {
	log.Debug().Str("from", string(r.State)).Str("to", string(to)).Msg("sync state")
	r.State = to
}
