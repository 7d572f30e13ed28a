package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvcatalog/internal/models"
)

func setupTestStore(t *testing.T) (*SQLite, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path))
	s, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	return s, func() { s.Close() }
}

func createPlaylist(t *testing.T, s Store) int64 {
	t.Helper()
	id, err := s.CreatePlaylist(context.Background(), &models.Playlist{
		Name: "Test", ServerURL: "http://provider", Username: "u", Password: "p", IsActive: true,
	})
	require.NoError(t, err)
	return id
}

func strp(s string) *string { return &s }

func replaceCatalog(t *testing.T, s Store, playlistID int64, cats []models.Category, chs []models.Channel) {
	t.Helper()
	err := WithCatalogTx(context.Background(), s, func(tx CatalogTx) error {
		ctx := context.Background()
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
		for i := range chs {
			if err := tx.InsertChannel(ctx, playlistID, &chs[i]); err != nil {
				return err
			}
		}
		return tx.MarkSynced(ctx, playlistID)
	})
	require.NoError(t, err)
}

func TestPlaylistCRUD(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id := createPlaylist(t, s)

	p, err := s.GetPlaylist(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test", p.Name)
	assert.True(t, p.IsActive)
	require.NotNil(t, p.CreatedAt)
	assert.Nil(t, p.LastSyncedAt)

	require.NoError(t, s.UpdatePlaylist(ctx, id, PlaylistUpdate{Name: strp("Renamed"), IsActive: new(bool)}))
	p, err = s.GetPlaylist(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	assert.False(t, p.IsActive)
	assert.NotNil(t, p.UpdatedAt)

	creds, err := s.GetPlaylistCredentials(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Credentials{ServerURL: "http://provider", Username: "u", Password: "p"}, creds)

	list, err := s.ListPlaylists(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePlaylist(ctx, id))
	_, err = s.GetPlaylist(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeletePlaylist(ctx, id), ErrNotFound)
}

func TestCatalogReplaceAndReads(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	pid := createPlaylist(t, s)

	parent := int64(1)
	rating := 4.5
	replaceCatalog(t, s, pid,
		[]models.Category{
			{CategoryID: "1", Name: "News", Kind: models.KindLive},
			{CategoryID: "2", Name: "Films", Kind: models.KindMovie, ParentID: &parent},
		},
		[]models.Channel{
			{CategoryID: strp("1"), CategoryName: "News", StreamID: "10", Name: "BBC", StreamType: "live", StreamURL: "http://x/10"},
			{CategoryID: strp("2"), CategoryName: "Films", StreamID: "20", Name: "Film", StreamType: "movie", StreamURL: "http://x/20",
				Rating5Based: &rating, BackdropPath: []string{"a.jpg", "b.jpg"}},
		},
	)

	cats, err := s.ListCategories(ctx, pid)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, models.KindMovie, cats[1].Kind)
	require.NotNil(t, cats[1].ParentID)
	assert.Equal(t, int64(1), *cats[1].ParentID)

	chs, total, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &pid})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, chs, 2)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, chs[1].BackdropPath)
	require.NotNil(t, chs[1].Rating5Based)
	assert.InDelta(t, 4.5, *chs[1].Rating5Based, 1e-9)
	assert.Nil(t, chs[0].BackdropPath)
	assert.Nil(t, chs[0].Plot)

	movie := "movie"
	chs, total, err = s.ListChannels(ctx, ChannelFilter{PlaylistID: &pid, StreamType: &movie})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Film", chs[0].Name)

	chs, _, err = s.ListChannels(ctx, ChannelFilter{Search: "bb"})
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, "BBC", chs[0].Name)

	got, err := s.GetChannelByID(ctx, chs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.StreamID)

	p, err := s.GetPlaylist(ctx, pid)
	require.NoError(t, err)
	assert.NotNil(t, p.LastSyncedAt)
}

func TestSelectedChannelClearedOnReplace(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	pid := createPlaylist(t, s)
	other := createPlaylist(t, s)

	replaceCatalog(t, s, pid, nil, []models.Channel{
		{CategoryName: models.UncategorizedName, StreamID: "1", Name: "A", StreamType: "live", StreamURL: "http://x/1"},
	})
	chs, _, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &pid})
	require.NoError(t, err)

	require.NoError(t, s.SetSelectedChannel(ctx, pid, chs[0].ID))
	sel, err := s.GetSelectedChannel(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, chs[0].ID, sel.ChannelID)

	// a channel of another playlist cannot be selected
	assert.ErrorIs(t, s.SetSelectedChannel(ctx, other, chs[0].ID), ErrNotFound)

	replaceCatalog(t, s, pid, nil, nil)
	_, err = s.GetSelectedChannel(ctx, pid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithCatalogTxRollsBack(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	pid := createPlaylist(t, s)

	replaceCatalog(t, s, pid,
		[]models.Category{{CategoryID: "1", Name: "News", Kind: models.KindLive}},
		[]models.Channel{{CategoryName: "News", StreamID: "1", Name: "Old", StreamType: "live", StreamURL: "http://x/1"}},
	)

	boom := errors.New("boom")
	err := WithCatalogTx(ctx, s, func(tx CatalogTx) error {
		require.NoError(t, tx.DeleteCategories(ctx, pid))
		require.NoError(t, tx.DeleteChannels(ctx, pid))
		require.NoError(t, tx.InsertChannel(ctx, pid, &models.Channel{
			CategoryName: "X", StreamID: "2", Name: "New", StreamType: "live", StreamURL: "http://x/2",
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	chs, _, err := s.ListChannels(ctx, ChannelFilter{PlaylistID: &pid})
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, "Old", chs[0].Name)
	cats, err := s.ListCategories(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestWithCatalogTxRollsBackOnPanic(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	pid := createPlaylist(t, s)

	assert.Panics(t, func() {
		_ = WithCatalogTx(ctx, s, func(tx CatalogTx) error {
			_ = tx.DeleteChannels(ctx, pid)
			panic("boom")
		})
	})

	// the single connection must be free again
	_, err := s.GetPlaylist(ctx, pid)
	require.NoError(t, err)
}

func TestInsertDuplicateChannel(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	pid := createPlaylist(t, s)

	err := WithCatalogTx(ctx, s, func(tx CatalogTx) error {
		ch := models.Channel{CategoryName: "X", StreamID: "1", Name: "A", StreamType: "live", StreamURL: "u"}
		if err := tx.InsertChannel(ctx, pid, &ch); err != nil {
			return err
		}
		return tx.InsertChannel(ctx, pid, &ch)
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestParseDSN(t *testing.T) {
	b, p := ParseDSN("postgres://u:p@h/db")
	assert.Equal(t, BackendPostgres, b)
	assert.Equal(t, "postgres://u:p@h/db", p)

	b, p = ParseDSN("sqlite://./data/x.db")
	assert.Equal(t, BackendSQLite, b)
	assert.Equal(t, "./data/x.db", p)

	b, p = ParseDSN("./data/iptvcatalog.db")
	assert.Equal(t, BackendSQLite, b)
	assert.Equal(t, "./data/iptvcatalog.db", p)
}
