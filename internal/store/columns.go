package store

import (
	"fmt"
	"strings"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// channelColumns are the columns shared by both backends, in scan order.
// backdrop_path and created_at follow and are handled per backend.
const channelColumns = `id, playlist_id, category_id, category_name, stream_id, name, stream_type, stream_url,
	type_name, stream_icon, epg_channel_id, added, series_no, live, container_extension, custom_sid,
	tv_archive, direct_source, tv_archive_duration, num, plot, "cast", director, genre, release_date,
	rating, rating_5based, youtube_trailer, episode_run_time, cover`

const channelSelect = channelColumns + `, backdrop_path, created_at`

// channelInsertColumns omits id and created_at, which the database fills.
const channelInsertColumns = `playlist_id, category_id, category_name, stream_id, name, stream_type, stream_url,
	type_name, stream_icon, epg_channel_id, added, series_no, live, container_extension, custom_sid,
	tv_archive, direct_source, tv_archive_duration, num, plot, "cast", director, genre, release_date,
	rating, rating_5based, youtube_trailer, episode_run_time, cover, backdrop_path`

const channelInsertArgs = 30

const playlistColumns = `id, name, server_url, username, password, epg_url, is_active, created_at, updated_at, last_synced_at`

const categoryColumns = `id, playlist_id, category_id, name, kind, parent_id`

// channelDest returns scan destinations for channelColumns.
func channelDest(ch *models.Channel) []any {
	return []any{
		&ch.ID, &ch.PlaylistID, &ch.CategoryID, &ch.CategoryName, &ch.StreamID, &ch.Name, &ch.StreamType, &ch.StreamURL,
		&ch.TypeName, &ch.StreamIcon, &ch.EPGChannelID, &ch.Added, &ch.SeriesNo, &ch.Live, &ch.ContainerExtension, &ch.CustomSID,
		&ch.TVArchive, &ch.DirectSource, &ch.TVArchiveDuration, &ch.Num, &ch.Plot, &ch.Cast, &ch.Director, &ch.Genre, &ch.ReleaseDate,
		&ch.Rating, &ch.Rating5Based, &ch.YoutubeTrailer, &ch.EpisodeRunTime, &ch.Cover,
	}
}

// channelArgs returns insert arguments for channelInsertColumns without
// backdrop_path.
func channelArgs(playlistID int64, ch *models.Channel) []any {
	return []any{
		playlistID, ch.CategoryID, ch.CategoryName, ch.StreamID, ch.Name, ch.StreamType, ch.StreamURL,
		ch.TypeName, ch.StreamIcon, ch.EPGChannelID, ch.Added, ch.SeriesNo, ch.Live, ch.ContainerExtension, ch.CustomSID,
		ch.TVArchive, ch.DirectSource, ch.TVArchiveDuration, ch.Num, ch.Plot, ch.Cast, ch.Director, ch.Genre, ch.ReleaseDate,
		ch.Rating, ch.Rating5Based, ch.YoutubeTrailer, ch.EpisodeRunTime, ch.Cover,
	}
}

// sqlDialect captures the syntax differences between backends.
type sqlDialect struct {
	placeholder func(n int) string
	// like is the case-insensitive match operator.
	like string
}

var (
	sqliteDialect   = sqlDialect{placeholder: func(int) string { return "?" }, like: "LIKE"}
	postgresDialect = sqlDialect{placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }, like: "ILIKE"}
)

func (d sqlDialect) placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = d.placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// channelWhere builds the WHERE clause for f. Arguments are numbered from 1.
func (d sqlDialect) channelWhere(f ChannelFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, d.placeholder(len(args))))
	}
	if f.PlaylistID != nil {
		add("playlist_id = %s", *f.PlaylistID)
	}
	if f.CategoryID != nil {
		add("category_id = %s", *f.CategoryID)
	}
	if f.StreamType != nil {
		add("stream_type = %s", *f.StreamType)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("name "+d.like+" %s", "%"+s+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
