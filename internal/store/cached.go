package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/voyagen/iptvcatalog/internal/cache"
	"github.com/voyagen/iptvcatalog/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlPlaylists  = 2 * time.Minute
	ttlPlaylist   = 5 * time.Minute
	ttlCategories = 5 * time.Minute
	ttlChannels   = 1 * time.Minute
	ttlChannel    = 5 * time.Minute
	ttlSelected   = 1 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer.
// Read-heavy operations are served from cache when possible;
// write operations and catalog commits invalidate the relevant keys.
// Cached playlists never carry the password; credentials always come from
// the inner store.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	log   zerolog.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, log zerolog.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: c, log: log}
}

// --- cached read operations ---

func (c *CachedStore) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	const key = "playlists:all"
	return readThrough(ctx, c, key, ttlPlaylists, func() ([]models.Playlist, error) {
		return c.inner.ListPlaylists(ctx)
	})
}

func (c *CachedStore) GetPlaylist(ctx context.Context, playlistID int64) (*models.Playlist, error) {
	return readThrough(ctx, c, playlistKey(playlistID), ttlPlaylist, func() (*models.Playlist, error) {
		return c.inner.GetPlaylist(ctx, playlistID)
	})
}

func (c *CachedStore) ListCategories(ctx context.Context, playlistID int64) ([]models.Category, error) {
	return readThrough(ctx, c, fmt.Sprintf("categories:%d", playlistID), ttlCategories, func() ([]models.Category, error) {
		return c.inner.ListCategories(ctx, playlistID)
	})
}

// channelListResult is a helper type to cache the ListChannels tuple.
type channelListResult struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	scope := "all"
	if filter.PlaylistID != nil {
		scope = fmt.Sprintf("%d", *filter.PlaylistID)
	}
	key := fmt.Sprintf("channels:%s:%s", scope, filterHash(filter))
	res, err := readThrough(ctx, c, key, ttlChannels, func() (channelListResult, error) {
		chs, total, err := c.inner.ListChannels(ctx, filter)
		return channelListResult{Channels: chs, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Channels, res.Total, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	return readThrough(ctx, c, fmt.Sprintf("channel:%d", channelID), ttlChannel, func() (*models.Channel, error) {
		return c.inner.GetChannelByID(ctx, channelID)
	})
}

func (c *CachedStore) GetSelectedChannel(ctx context.Context, playlistID int64) (*models.SelectedChannel, error) {
	return readThrough(ctx, c, selectedKey(playlistID), ttlSelected, func() (*models.SelectedChannel, error) {
		return c.inner.GetSelectedChannel(ctx, playlistID)
	})
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreatePlaylist(ctx context.Context, p *models.Playlist) (int64, error) {
	id, err := c.inner.CreatePlaylist(ctx, p)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, "playlists:all")
	return id, nil
}

func (c *CachedStore) UpdatePlaylist(ctx context.Context, playlistID int64, fields PlaylistUpdate) error {
	if err := c.inner.UpdatePlaylist(ctx, playlistID, fields); err != nil {
		return err
	}
	c.invalidate(ctx, playlistKey(playlistID), "playlists:all")
	return nil
}

func (c *CachedStore) DeletePlaylist(ctx context.Context, playlistID int64) error {
	if err := c.inner.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}
	c.invalidateCatalog(ctx, playlistID)
	return nil
}

func (c *CachedStore) SetSelectedChannel(ctx context.Context, playlistID, channelID int64) error {
	if err := c.inner.SetSelectedChannel(ctx, playlistID, channelID); err != nil {
		return err
	}
	c.invalidate(ctx, selectedKey(playlistID))
	return nil
}

// BeginCatalog wraps the inner transaction so a successful commit drops
// every cached view of the touched playlists.
func (c *CachedStore) BeginCatalog(ctx context.Context) (CatalogTx, error) {
	tx, err := c.inner.BeginCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedTx{CatalogTx: tx, store: c, touched: make(map[int64]struct{})}, nil
}

// --- passthrough (no caching) ---

func (c *CachedStore) GetPlaylistCredentials(ctx context.Context, playlistID int64) (models.Credentials, error) {
	return c.inner.GetPlaylistCredentials(ctx, playlistID)
}

func (c *CachedStore) Close() error {
	return c.inner.Close()
}

type cachedTx struct {
	CatalogTx
	store   *CachedStore
	touched map[int64]struct{}
}

func (t *cachedTx) DeleteCategories(ctx context.Context, playlistID int64) error {
	t.touched[playlistID] = struct{}{}
	return t.CatalogTx.DeleteCategories(ctx, playlistID)
}

func (t *cachedTx) DeleteChannels(ctx context.Context, playlistID int64) error {
	t.touched[playlistID] = struct{}{}
	return t.CatalogTx.DeleteChannels(ctx, playlistID)
}

func (t *cachedTx) InsertCategory(ctx context.Context, playlistID int64, cat models.Category) error {
	t.touched[playlistID] = struct{}{}
	return t.CatalogTx.InsertCategory(ctx, playlistID, cat)
}

func (t *cachedTx) InsertChannel(ctx context.Context, playlistID int64, ch *models.Channel) error {
	t.touched[playlistID] = struct{}{}
	return t.CatalogTx.InsertChannel(ctx, playlistID, ch)
}

func (t *cachedTx) MarkSynced(ctx context.Context, playlistID int64) error {
	t.touched[playlistID] = struct{}{}
	return t.CatalogTx.MarkSynced(ctx, playlistID)
}

func (t *cachedTx) Commit(ctx context.Context) error {
	if err := t.CatalogTx.Commit(ctx); err != nil {
		return err
	}
	for id := range t.touched {
		t.store.invalidateCatalog(ctx, id)
	}
	return nil
}

// --- helpers ---

// readThrough serves key from Redis, falling back to load and caching its
// result. Cache failures are logged and never fail the read.
func readThrough[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("cache get")
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set")
	}
	return v, nil
}

// invalidateCatalog drops everything cached about one playlist. Channel ids
// change on every replace, so single-channel entries go too.
func (c *CachedStore) invalidateCatalog(ctx context.Context, playlistID int64) {
	c.invalidate(ctx, playlistKey(playlistID), "playlists:all",
		fmt.Sprintf("categories:%d", playlistID), selectedKey(playlistID))
	c.invalidatePattern(ctx, fmt.Sprintf("channels:%d:*", playlistID), "channels:all:*", "channel:*")
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Strs("keys", keys).Msg("cache del")
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.log.Warn().Err(err).Str("pattern", p).Msg("cache del pattern")
		}
	}
}

func playlistKey(id int64) string { return fmt.Sprintf("playlist:%d", id) }
func selectedKey(id int64) string { return fmt.Sprintf("selected:%d", id) }

// filterHash produces a short deterministic hash for a ChannelFilter so it
// can be used as part of a cache key.
func filterHash(f ChannelFilter) string {
	f = f.normalized()
	raw := fmt.Sprintf("%s|%s|%s|%d|%d", deref(f.CategoryID), deref(f.StreamType), f.Search, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
