package models

import "time"

// Channel is one playable catalog entry (live channel, movie or series) in
// canonical form. CategoryName is resolved at ingestion time and kept as a
// snapshot; it is never re-joined from the categories table.
type Channel struct {
	ID           int64   `json:"id,omitempty"`
	PlaylistID   int64   `json:"playlist_id"`
	CategoryID   *string `json:"category_id,omitempty"`
	CategoryName string  `json:"category_name"`
	StreamID     string  `json:"stream_id"`
	Name         string  `json:"name"`
	StreamType   string  `json:"stream_type"`
	StreamURL    string  `json:"stream_url"`

	TypeName           *string  `json:"type_name,omitempty"`
	StreamIcon         *string  `json:"stream_icon,omitempty"`
	EPGChannelID       *string  `json:"epg_channel_id,omitempty"`
	Added              *string  `json:"added,omitempty"`
	SeriesNo           *string  `json:"series_no,omitempty"`
	Live               *string  `json:"live,omitempty"`
	ContainerExtension *string  `json:"container_extension,omitempty"`
	CustomSID          *string  `json:"custom_sid,omitempty"`
	TVArchive          *int64   `json:"tv_archive,omitempty"`
	DirectSource       *string  `json:"direct_source,omitempty"`
	TVArchiveDuration  *int64   `json:"tv_archive_duration,omitempty"`
	Num                *string  `json:"num,omitempty"`
	Plot               *string  `json:"plot,omitempty"`
	Cast               *string  `json:"cast,omitempty"`
	Director           *string  `json:"director,omitempty"`
	Genre              *string  `json:"genre,omitempty"`
	ReleaseDate        *string  `json:"release_date,omitempty"`
	Rating             *string  `json:"rating,omitempty"`
	Rating5Based       *float64 `json:"rating_5based,omitempty"`
	BackdropPath       []string `json:"backdrop_path,omitempty"`
	YoutubeTrailer     *string  `json:"youtube_trailer,omitempty"`
	EpisodeRunTime     *string  `json:"episode_run_time,omitempty"`
	Cover              *string  `json:"cover,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Kind returns the content kind implied by StreamType, defaulting to live.
func (c *Channel) Kind() ContentKind {
	if k, ok := ParseContentKind(c.StreamType); ok {
		return k
	}
	return KindLive
}

// SelectedChannel points at the channel currently tuned for a playlist.
type SelectedChannel struct {
	PlaylistID int64     `json:"playlist_id"`
	ChannelID  int64     `json:"channel_id"`
	SelectedAt time.Time `json:"selected_at"`
}
