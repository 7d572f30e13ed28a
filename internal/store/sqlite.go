package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// SQLite implements Store on an embedded SQLite database. The pool holds a
// single connection, so a catalog transaction excludes every other reader
// and writer until it finishes.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{db: db}, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	return nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreatePlaylist inserts a playlist and returns its id.
func (s *SQLite) CreatePlaylist(ctx context.Context, p *models.Playlist) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (name, server_url, username, password, epg_url, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.ServerURL, p.Username, p.Password, p.EPGURL, p.IsActive, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("CreatePlaylist: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreatePlaylist: %w", err)
	}
	return id, nil
}

// GetPlaylist returns a single playlist by id.
func (s *SQLite) GetPlaylist(ctx context.Context, playlistID int64) (*models.Playlist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, playlistID)
	p, err := scanSQLitePlaylist(row)
	if err != nil {
		return nil, fmt.Errorf("GetPlaylist: %w", mapError(err))
	}
	return p, nil
}

// ListPlaylists returns all playlists ordered by id.
func (s *SQLite) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playlistColumns+` FROM playlists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()
	var out []models.Playlist
	for rows.Next() {
		p, err := scanSQLitePlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPlaylists scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePlaylist updates the non-nil fields of a playlist.
func (s *SQLite) UpdatePlaylist(ctx context.Context, playlistID int64, f PlaylistUpdate) error {
	sets, args := playlistSets(f, sqliteDialect)
	if len(sets) == 0 {
		_, err := s.GetPlaylist(ctx, playlistID)
		return err
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().Unix(), playlistID)
	res, err := s.db.ExecContext(ctx, `UPDATE playlists SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("UpdatePlaylist: %w", err)
	}
	return affected(res, "UpdatePlaylist")
}

// DeletePlaylist deletes a playlist; categories, channels and the selected
// pointer go with it.
func (s *SQLite) DeletePlaylist(ctx context.Context, playlistID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, playlistID)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	return affected(res, "DeletePlaylist")
}

// GetPlaylistCredentials returns the provider credentials of a playlist.
func (s *SQLite) GetPlaylistCredentials(ctx context.Context, playlistID int64) (models.Credentials, error) {
	var c models.Credentials
	err := s.db.QueryRowContext(ctx,
		`SELECT server_url, username, password FROM playlists WHERE id = ?`, playlistID,
	).Scan(&c.ServerURL, &c.Username, &c.Password)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("GetPlaylistCredentials: %w", mapError(err))
	}
	return c, nil
}

// BeginCatalog starts a transaction on the single connection.
func (s *SQLite) BeginCatalog(ctx context.Context) (CatalogTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginCatalog: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// ListCategories returns the categories of a playlist in insertion order.
func (s *SQLite) ListCategories(ctx context.Context, playlistID int64) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE playlist_id = ? ORDER BY id`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.PlaylistID, &c.CategoryID, &c.Name, &c.Kind, &c.ParentID); err != nil {
			return nil, fmt.Errorf("ListCategories scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChannels returns channels matching the filter and the total count.
func (s *SQLite) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	f := filter.normalized()
	where, args := sqliteDialect.channelWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelSelect+` FROM channels`+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()
	out := make([]models.Channel, 0, f.Limit)
	for rows.Next() {
		ch, err := scanSQLiteChannel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
		}
		out = append(out, *ch)
	}
	return out, total, rows.Err()
}

// GetChannelByID returns a single channel by id.
func (s *SQLite) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelSelect+` FROM channels WHERE id = ?`, channelID)
	ch, err := scanSQLiteChannel(row)
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", mapError(err))
	}
	return ch, nil
}

// SetSelectedChannel points the playlist at channelID. The channel must
// belong to the playlist.
func (s *SQLite) SetSelectedChannel(ctx context.Context, playlistID, channelID int64) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO selected_channels (playlist_id, channel_id, selected_at)
		 SELECT playlist_id, id, ? FROM channels WHERE id = ? AND playlist_id = ?
		 ON CONFLICT (playlist_id) DO UPDATE SET channel_id = excluded.channel_id, selected_at = excluded.selected_at`,
		time.Now().Unix(), channelID, playlistID,
	)
	if err != nil {
		return fmt.Errorf("SetSelectedChannel: %w", err)
	}
	return affected(res, "SetSelectedChannel")
}

// GetSelectedChannel returns the selected pointer of a playlist.
func (s *SQLite) GetSelectedChannel(ctx context.Context, playlistID int64) (*models.SelectedChannel, error) {
	var (
		sc models.SelectedChannel
		at int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT playlist_id, channel_id, selected_at FROM selected_channels WHERE playlist_id = ?`, playlistID,
	).Scan(&sc.PlaylistID, &sc.ChannelID, &at)
	if err != nil {
		return nil, fmt.Errorf("GetSelectedChannel: %w", mapError(err))
	}
	sc.SelectedAt = time.Unix(at, 0).UTC()
	return &sc, nil
}

// sqliteTx is a catalog transaction on the single connection.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) DeleteCategories(ctx context.Context, playlistID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteChannels(ctx context.Context, playlistID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM selected_channels WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("delete selected channel: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM channels WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("delete channels: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertCategory(ctx context.Context, playlistID int64, c models.Category) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (playlist_id, category_id, name, kind, parent_id) VALUES (?, ?, ?, ?, ?)`,
		playlistID, c.CategoryID, c.Name, string(c.Kind), c.ParentID,
	)
	if err != nil {
		return fmt.Errorf("insert category %s: %w", c.CategoryID, mapError(err))
	}
	return nil
}

func (t *sqliteTx) InsertChannel(ctx context.Context, playlistID int64, ch *models.Channel) error {
	backdrop, err := encodeBackdrop(ch.BackdropPath)
	if err != nil {
		return err
	}
	args := append(channelArgs(playlistID, ch), backdrop)
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO channels (`+channelInsertColumns+`) VALUES (`+sqliteDialect.placeholders(1, channelInsertArgs)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert channel %s: %w", ch.StreamID, mapError(err))
	}
	return nil
}

func (t *sqliteTx) MarkSynced(ctx context.Context, playlistID int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE playlists SET last_synced_at = ? WHERE id = ?`, time.Now().Unix(), playlistID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return affected(res, "mark synced")
}

func (t *sqliteTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback(context.Context) error { return t.tx.Rollback() }

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePlaylist(row rowScanner) (*models.Playlist, error) {
	var (
		p               models.Playlist
		created         int64
		updated, synced sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.ServerURL, &p.Username, &p.Password, &p.EPGURL, &p.IsActive,
		&created, &updated, &synced); err != nil {
		return nil, err
	}
	p.CreatedAt = unixPtr(sql.NullInt64{Int64: created, Valid: true})
	p.UpdatedAt = unixPtr(updated)
	p.LastSyncedAt = unixPtr(synced)
	return &p, nil
}

func scanSQLiteChannel(row rowScanner) (*models.Channel, error) {
	var (
		ch       models.Channel
		backdrop sql.NullString
		created  int64
	)
	dest := append(channelDest(&ch), &backdrop, &created)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if backdrop.Valid && backdrop.String != "" {
		if err := json.Unmarshal([]byte(backdrop.String), &ch.BackdropPath); err != nil {
			return nil, fmt.Errorf("decode backdrop_path: %w", err)
		}
	}
	ch.CreatedAt = unixPtr(sql.NullInt64{Int64: created, Valid: true})
	return &ch, nil
}

func encodeBackdrop(paths []string) (*string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("encode backdrop_path: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func affected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// playlistSets builds SET clauses for the non-nil fields of f.
func playlistSets(f PlaylistUpdate, d sqlDialect) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = "+d.placeholder(len(args)))
	}
	if f.Name != nil {
		add("name", *f.Name)
	}
	if f.ServerURL != nil {
		add("server_url", *f.ServerURL)
	}
	if f.Username != nil {
		add("username", *f.Username)
	}
	if f.Password != nil {
		add("password", *f.Password)
	}
	if f.EPGURL != nil {
		add("epg_url", *f.EPGURL)
	}
	if f.IsActive != nil {
		add("is_active", *f.IsActive)
	}
	return sets, args
}
