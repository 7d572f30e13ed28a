package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/cache"
	"github.com/voyagen/iptvcatalog/internal/metrics"
	"github.com/voyagen/iptvcatalog/internal/models"
)

// JobQueue is implemented by cache.Queue and cache.LocalQueue.
type JobQueue interface {
	Enqueue(ctx context.Context, job cache.SyncJob) error
	Dequeue(ctx context.Context, timeout time.Duration) (*cache.SyncJob, error)
}

// Enqueue schedules an asynchronous sync of playlistID and returns the job.
func Enqueue(ctx context.Context, q JobQueue, playlistID int64) (cache.SyncJob, error) {
	job := cache.NewSyncJob(playlistID)
	if err := q.Enqueue(ctx, job); err != nil {
		return job, err
	}
	metrics.SyncJobsQueued.Inc()
	return job, nil
}

// playlistSyncer is the part of Syncer the worker and scheduler drive.
type playlistSyncer interface {
	SyncPlaylist(ctx context.Context, playlistID int64) (*Result, error)
}

// Worker drains sync jobs from a queue.
type Worker struct {
	queue   JobQueue
	syncer  playlistSyncer
	log     zerolog.Logger
	poll    time.Duration
	backoff time.Duration
}

// NewWorker returns a Worker running jobs from q through s.
func NewWorker(q JobQueue, s *Syncer, log zerolog.Logger) *Worker {
	return newWorker(q, s, log)
}

func newWorker(q JobQueue, s playlistSyncer, log zerolog.Logger) *Worker {
	return &Worker{queue: q, syncer: s, log: log, poll: 5 * time.Second, backoff: 2 * time.Second}
}

// Run processes jobs one at a time until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Msg("sync worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("sync worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.poll)
		if err != nil {
			w.log.Error().Err(err).Msg("dequeue failed")
			sleep(ctx, w.backoff)
			continue
		}
		if job == nil {
			continue
		}
		w.handle(ctx, *job)
	}
}

func (w *Worker) handle(ctx context.Context, job cache.SyncJob) {
	log := w.log.With().Str("job_id", job.JobID).Int64("playlist_id", job.PlaylistID).Logger()
	log.Info().Dur("queued_for", time.Since(job.EnqueuedAt)).Msg("processing sync job")
	res, err := w.syncer.SyncPlaylist(ctx, job.PlaylistID)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		log.Info().Msg("sync already running, job skipped")
	case err != nil:
		log.Error().Err(err).Msg("sync job failed")
	default:
		log.Info().Int("channels", len(res.Channels)).Bool("committed", res.Committed).Msg("sync job done")
	}
}

// playlistLister is the part of store.Store the scheduler needs.
type playlistLister interface {
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)
}

// Scheduler enqueues a sync of every active playlist on a fixed interval.
type Scheduler struct {
	store    playlistLister
	queue    JobQueue
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler returns a Scheduler. Run is a no-op when interval <= 0.
func NewScheduler(s playlistLister, q JobQueue, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{store: s, queue: q, interval: interval, log: log}
}

// Run enqueues once at start and then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.log.Info().Dur("interval", s.interval).Msg("sync scheduler started")
	s.EnqueueAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EnqueueAll(ctx)
		}
	}
}

// EnqueueAll queues one job per active playlist and returns how many were queued.
func (s *Scheduler) EnqueueAll(ctx context.Context) int {
	playlists, err := s.store.ListPlaylists(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list playlists")
		return 0
	}
	n := 0
	for _, p := range playlists {
		if !p.IsActive {
			continue
		}
		if _, err := Enqueue(ctx, s.queue, p.ID); err != nil {
			s.log.Warn().Err(err).Int64("playlist_id", p.ID).Msg("enqueue scheduled sync")
			continue
		}
		n++
	}
	s.log.Debug().Int("queued", n).Msg("scheduled syncs enqueued")
	return n
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
