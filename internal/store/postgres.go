package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// CreatePlaylist inserts a playlist and returns its id.
func (p *Postgres) CreatePlaylist(ctx context.Context, pl *models.Playlist) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO playlists (name, server_url, username, password, epg_url, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		pl.Name, pl.ServerURL, pl.Username, pl.Password, pl.EPGURL, pl.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreatePlaylist: %w", mapError(err))
	}
	return id, nil
}

// GetPlaylist returns a single playlist by id.
func (p *Postgres) GetPlaylist(ctx context.Context, playlistID int64) (*models.Playlist, error) {
	var pl models.Playlist
	err := p.pool.QueryRow(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = $1`, playlistID).
		Scan(playlistDest(&pl)...)
	if err != nil {
		return nil, fmt.Errorf("GetPlaylist: %w", mapError(err))
	}
	return &pl, nil
}

// ListPlaylists returns all playlists ordered by id.
func (p *Postgres) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+playlistColumns+` FROM playlists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()
	var out []models.Playlist
	for rows.Next() {
		var pl models.Playlist
		if err := rows.Scan(playlistDest(&pl)...); err != nil {
			return nil, fmt.Errorf("ListPlaylists scan: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

// UpdatePlaylist updates the non-nil fields of a playlist.
func (p *Postgres) UpdatePlaylist(ctx context.Context, playlistID int64, f PlaylistUpdate) error {
	sets, args := playlistSets(f, postgresDialect)
	if len(sets) == 0 {
		_, err := p.GetPlaylist(ctx, playlistID)
		return err
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, playlistID)
	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE playlists SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("UpdatePlaylist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("UpdatePlaylist: %w", ErrNotFound)
	}
	return nil
}

// DeletePlaylist deletes a playlist and cascades to its catalog.
func (p *Postgres) DeletePlaylist(ctx context.Context, playlistID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, playlistID)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeletePlaylist: %w", ErrNotFound)
	}
	return nil
}

// GetPlaylistCredentials returns the provider credentials of a playlist.
func (p *Postgres) GetPlaylistCredentials(ctx context.Context, playlistID int64) (models.Credentials, error) {
	var c models.Credentials
	err := p.pool.QueryRow(ctx,
		`SELECT server_url, username, password FROM playlists WHERE id = $1`, playlistID,
	).Scan(&c.ServerURL, &c.Username, &c.Password)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("GetPlaylistCredentials: %w", mapError(err))
	}
	return c, nil
}

// BeginCatalog starts a transaction. The playlist row is not locked here;
// concurrent syncs of one playlist are excluded by the sync lock.
func (p *Postgres) BeginCatalog(ctx context.Context) (CatalogTx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("BeginCatalog: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// ListCategories returns the categories of a playlist in insertion order.
func (p *Postgres) ListCategories(ctx context.Context, playlistID int64) ([]models.Category, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE playlist_id = $1 ORDER BY id`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		var (
			c    models.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.PlaylistID, &c.CategoryID, &c.Name, &kind, &c.ParentID); err != nil {
			return nil, fmt.Errorf("ListCategories scan: %w", err)
		}
		c.Kind = models.ContentKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChannels returns channels matching the filter and the total count.
func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	f := filter.normalized()
	where, args := postgresDialect.channelWhere(f)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM channels%s ORDER BY id LIMIT $%d OFFSET $%d`,
		channelSelect, where, len(args)+1, len(args)+2)
	rows, err := p.pool.Query(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()
	out := make([]models.Channel, 0, f.Limit)
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(pgChannelDest(&ch)...); err != nil {
			return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
		}
		out = append(out, ch)
	}
	return out, total, rows.Err()
}

// GetChannelByID returns a single channel by id.
func (p *Postgres) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx, `SELECT `+channelSelect+` FROM channels WHERE id = $1`, channelID).
		Scan(pgChannelDest(&ch)...)
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", mapError(err))
	}
	return &ch, nil
}

// SetSelectedChannel points the playlist at channelID. The channel must
// belong to the playlist.
func (p *Postgres) SetSelectedChannel(ctx context.Context, playlistID, channelID int64) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO selected_channels (playlist_id, channel_id, selected_at)
		 SELECT playlist_id, id, NOW() FROM channels WHERE id = $1 AND playlist_id = $2
		 ON CONFLICT (playlist_id) DO UPDATE SET channel_id = EXCLUDED.channel_id, selected_at = EXCLUDED.selected_at`,
		channelID, playlistID,
	)
	if err != nil {
		return fmt.Errorf("SetSelectedChannel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("SetSelectedChannel: %w", ErrNotFound)
	}
	return nil
}

// GetSelectedChannel returns the selected pointer of a playlist.
func (p *Postgres) GetSelectedChannel(ctx context.Context, playlistID int64) (*models.SelectedChannel, error) {
	var sc models.SelectedChannel
	err := p.pool.QueryRow(ctx,
		`SELECT playlist_id, channel_id, selected_at FROM selected_channels WHERE playlist_id = $1`, playlistID,
	).Scan(&sc.PlaylistID, &sc.ChannelID, &sc.SelectedAt)
	if err != nil {
		return nil, fmt.Errorf("GetSelectedChannel: %w", mapError(err))
	}
	return &sc, nil
}

// pgTx is a catalog transaction on one pooled connection.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) DeleteCategories(ctx context.Context, playlistID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM categories WHERE playlist_id = $1`, playlistID); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteChannels(ctx context.Context, playlistID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM selected_channels WHERE playlist_id = $1`, playlistID); err != nil {
		return fmt.Errorf("delete selected channel: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM channels WHERE playlist_id = $1`, playlistID); err != nil {
		return fmt.Errorf("delete channels: %w", err)
	}
	return nil
}

func (t *pgTx) InsertCategory(ctx context.Context, playlistID int64, c models.Category) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO categories (playlist_id, category_id, name, kind, parent_id) VALUES ($1, $2, $3, $4, $5)`,
		playlistID, c.CategoryID, c.Name, string(c.Kind), c.ParentID,
	)
	if err != nil {
		return fmt.Errorf("insert category %s: %w", c.CategoryID, mapError(err))
	}
	return nil
}

func (t *pgTx) InsertChannel(ctx context.Context, playlistID int64, ch *models.Channel) error {
	var backdrop []string
	if len(ch.BackdropPath) > 0 {
		backdrop = ch.BackdropPath
	}
	args := append(channelArgs(playlistID, ch), backdrop)
	_, err := t.tx.Exec(ctx,
		`INSERT INTO channels (`+channelInsertColumns+`) VALUES (`+postgresDialect.placeholders(1, channelInsertArgs)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert channel %s: %w", ch.StreamID, mapError(err))
	}
	return nil
}

func (t *pgTx) MarkSynced(ctx context.Context, playlistID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE playlists SET last_synced_at = NOW() WHERE id = $1`, playlistID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark synced: %w", ErrNotFound)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func playlistDest(pl *models.Playlist) []any {
	return []any{&pl.ID, &pl.Name, &pl.ServerURL, &pl.Username, &pl.Password, &pl.EPGURL, &pl.IsActive,
		&pl.CreatedAt, &pl.UpdatedAt, &pl.LastSyncedAt}
}

func pgChannelDest(ch *models.Channel) []any {
	return append(channelDest(ch), &ch.BackdropPath, &ch.CreatedAt)
}
