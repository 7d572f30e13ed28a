package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvcatalog/internal/cache"
	"github.com/voyagen/iptvcatalog/internal/models"
)

type recordingSyncer struct {
	mu   sync.Mutex
	ids  []int64
	err  error
	done chan struct{}
}

func (r *recordingSyncer) SyncPlaylist(_ context.Context, id int64) (*Result, error) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.done <- struct{}{}
	if r.err != nil {
		return nil, r.err
	}
	return &Result{PlaylistID: id, Committed: true}, nil
}

func TestWorkerProcessesQueuedJobs(t *testing.T) {
	q := cache.NewLocalQueue(4)
	rs := &recordingSyncer{done: make(chan struct{}, 4)}
	w := newWorker(q, rs, zerolog.Nop())
	w.poll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	_, err := Enqueue(ctx, q, 5)
	require.NoError(t, err)
	_, err = Enqueue(ctx, q, 6)
	require.NoError(t, err)

	for range 2 {
		select {
		case <-rs.done:
		case <-time.After(2 * time.Second):
			t.Fatal("job was not processed")
		}
	}
	cancel()
	<-stopped

	rs.mu.Lock()
	defer rs.mu.Unlock()
	assert.Equal(t, []int64{5, 6}, rs.ids)
}

func TestWorkerSurvivesFailedJob(t *testing.T) {
	q := cache.NewLocalQueue(4)
	rs := &recordingSyncer{done: make(chan struct{}, 4), err: errors.New("provider down")}
	w := newWorker(q, rs, zerolog.Nop())

	w.handle(context.Background(), cache.NewSyncJob(1))
	rs.err = ErrSyncInProgress
	w.handle(context.Background(), cache.NewSyncJob(2))
	assert.Len(t, rs.done, 2)
}

func TestLocalQueueFullAndTimeout(t *testing.T) {
	q := cache.NewLocalQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, cache.NewSyncJob(1)))
	assert.ErrorIs(t, q.Enqueue(ctx, cache.NewSyncJob(2)), cache.ErrQueueFull)

	job, err := q.Dequeue(ctx, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, int64(1), job.PlaylistID)

	job, err = q.Dequeue(ctx, time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

type staticPlaylists []models.Playlist

func (s staticPlaylists) ListPlaylists(context.Context) ([]models.Playlist, error) {
	return s, nil
}

func TestSchedulerEnqueuesActivePlaylists(t *testing.T) {
	q := cache.NewLocalQueue(8)
	s := NewScheduler(staticPlaylists{
		{ID: 1, IsActive: true},
		{ID: 2, IsActive: false},
		{ID: 3, IsActive: true},
	}, q, time.Hour, zerolog.Nop())

	assert.Equal(t, 2, s.EnqueueAll(context.Background()))

	var got []int64
	for {
		job, _ := q.Dequeue(context.Background(), time.Millisecond)
		if job == nil {
			break
		}
		got = append(got, job.PlaylistID)
	}
	assert.Equal(t, []int64{1, 3}, got)
}

func TestSchedulerDisabled(t *testing.T) {
	q := cache.NewLocalQueue(1)
	s := NewScheduler(staticPlaylists{{ID: 1, IsActive: true}}, q, 0, zerolog.Nop())
	s.Run(context.Background())
	job, _ := q.Dequeue(context.Background(), time.Millisecond)
	assert.Nil(t, job)
}
