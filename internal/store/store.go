package store

import (
	"context"
	"fmt"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// Store defines persistence for playlists and their catalogs.
type Store interface {
	// CreatePlaylist inserts a playlist and returns its id.
	CreatePlaylist(ctx context.Context, p *models.Playlist) (int64, error)
	// GetPlaylist returns a single playlist by id.
	GetPlaylist(ctx context.Context, playlistID int64) (*models.Playlist, error)
	// ListPlaylists returns all playlists.
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)
	// UpdatePlaylist updates mutable fields of a playlist.
	UpdatePlaylist(ctx context.Context, playlistID int64, fields PlaylistUpdate) error
	// DeletePlaylist deletes a playlist and cascades to its catalog.
	DeletePlaylist(ctx context.Context, playlistID int64) error
	// GetPlaylistCredentials returns the provider credentials of a playlist.
	GetPlaylistCredentials(ctx context.Context, playlistID int64) (models.Credentials, error)

	// BeginCatalog opens a transaction for replacing a catalog. Other
	// writers are excluded until it is committed or rolled back.
	BeginCatalog(ctx context.Context) (CatalogTx, error)

	// ListCategories returns the categories of a playlist.
	ListCategories(ctx context.Context, playlistID int64) ([]models.Category, error)
	// ListChannels returns channels matching the filter and the total count (before limit/offset).
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	// GetChannelByID returns a single channel by id.
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)

	// SetSelectedChannel points the playlist at one of its channels.
	SetSelectedChannel(ctx context.Context, playlistID, channelID int64) error
	// GetSelectedChannel returns the selected pointer of a playlist.
	GetSelectedChannel(ctx context.Context, playlistID int64) (*models.SelectedChannel, error)

	Close() error
}

// CatalogTx is the write side of a catalog replace. Nothing is visible to
// readers until Commit.
type CatalogTx interface {
	DeleteCategories(ctx context.Context, playlistID int64) error
	// DeleteChannels also clears the playlist's selected channel.
	DeleteChannels(ctx context.Context, playlistID int64) error
	InsertCategory(ctx context.Context, playlistID int64, c models.Category) error
	InsertChannel(ctx context.Context, playlistID int64, ch *models.Channel) error
	// MarkSynced stamps last_synced_at on the playlist.
	MarkSynced(ctx context.Context, playlistID int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens catalog transactions.
type Beginner interface {
	BeginCatalog(ctx context.Context) (CatalogTx, error)
}

// WithCatalogTx runs fn inside a catalog transaction. The transaction is
// committed when fn returns nil and rolled back on every other exit,
// including a panic in fn.
func WithCatalogTx(ctx context.Context, b Beginner, fn func(tx CatalogTx) error) (err error) {
	tx, err := b.BeginCatalog(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The caller's context may already be cancelled.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	PlaylistID *int64
	CategoryID *string
	StreamType *string
	Search     string // case-insensitive substring match on channel name
	Limit      int    // default 50, max 200
	Offset     int
}

// PlaylistUpdate holds mutable fields for PATCH /playlists/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type PlaylistUpdate struct {
	Name      *string
	ServerURL *string
	Username  *string
	Password  *string
	EPGURL    *string
	IsActive  *bool
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (f ChannelFilter) normalized() ChannelFilter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
