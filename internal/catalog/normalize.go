package catalog

import (
	"strings"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// apiSuffixes are stripped from the server URL before stream URLs are built.
var apiSuffixes = []string{"/api/panel_api.php", "/panel_api.php", "/player_api.php"}

// NormalizeInput is the context a raw record is resolved against.
type NormalizeInput struct {
	PlaylistID  int64
	Categories  *CategorySet
	Credentials models.Credentials
	// Kind applies when the record has no stream_type of its own.
	Kind models.ContentKind
}

// Dropped describes a record that failed normalization.
type Dropped struct {
	Index int
	Err   error
}

// Normalize resolves one raw record into a canonical channel. It has no side
// effects; a *MissingFieldError means the record should be dropped.
func Normalize(rec Record, in NormalizeInput) (models.Channel, error) {
	streamID, ok := firstString(rec, "stream_id", "num")
	if !ok {
		return models.Channel{}, &MissingFieldError{Field: "stream_id"}
	}
	name, ok := firstString(rec, "name", "title")
	if !ok {
		return models.Channel{}, &MissingFieldError{Field: "name"}
	}

	ch := models.Channel{
		PlaylistID:   in.PlaylistID,
		StreamID:     streamID,
		Name:         name,
		CategoryName: models.UncategorizedName,
	}

	if catID, ok := firstString(rec, "category_id", "group"); ok {
		ch.CategoryID = &catID
		if c, found := in.Categories.Lookup(catID); found {
			ch.CategoryName = c.Name
		}
	}

	// Labels are stored canonically ("vod" becomes "movie"). Unknown labels
	// such as "created_live" fall back to the endpoint kind.
	st, _ := rec.NonEmptyString("stream_type")
	switch kind, ok := models.ParseContentKind(st); {
	case ok:
		ch.StreamType = string(kind)
	case in.Kind != "":
		ch.StreamType = string(in.Kind)
	default:
		ch.StreamType = string(models.KindLive)
	}

	if u, ok := firstString(rec, "stream_url", "stream"); ok {
		ch.StreamURL = u
	} else {
		ch.StreamURL = StreamURL(in.Credentials, ch.Kind(), streamID)
	}

	copyMetadata(rec, &ch)
	return ch, nil
}

// NormalizeAll normalizes records in order, collecting per-record failures
// instead of stopping at the first one.
func NormalizeAll(recs []Record, in NormalizeInput) ([]models.Channel, []Dropped) {
	out := make([]models.Channel, 0, len(recs))
	var dropped []Dropped
	for i, rec := range recs {
		ch, err := Normalize(rec, in)
		if err != nil {
			dropped = append(dropped, Dropped{Index: i, Err: err})
			continue
		}
		out = append(out, ch)
	}
	return out, dropped
}

// StreamURL synthesizes {server}/{kind}/{username}/{password}/{stream_id}.
func StreamURL(creds models.Credentials, kind models.ContentKind, streamID string) string {
	return BaseURL(creds.ServerURL) + "/" + kind.PathSegment() + "/" + creds.Username + "/" + creds.Password + "/" + streamID
}

// BaseURL strips trailing slashes and a known API script suffix from a
// provider server URL.
func BaseURL(server string) string {
	s := strings.TrimRight(strings.TrimSpace(server), "/")
	lower := strings.ToLower(s)
	for _, suffix := range apiSuffixes {
		if strings.HasSuffix(lower, suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}
	return strings.TrimRight(s, "/")
}

// firstString returns the first key whose value coerces to a non-blank
// string.
func firstString(rec Record, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := rec.NonEmptyString(k); ok {
			return s, true
		}
	}
	return "", false
}

func copyMetadata(rec Record, ch *models.Channel) {
	ch.TypeName = strPtr(rec.NonEmptyString("type_name"))
	ch.StreamIcon = strPtr(rec.NonEmptyString("stream_icon"))
	ch.EPGChannelID = strPtr(rec.NonEmptyString("epg_channel_id"))
	ch.Added = strPtr(rec.NonEmptyString("added"))
	ch.SeriesNo = strPtr(rec.NonEmptyString("series_no"))
	ch.Live = strPtr(rec.NonEmptyString("live"))
	ch.ContainerExtension = strPtr(rec.NonEmptyString("container_extension"))
	ch.CustomSID = strPtr(rec.NonEmptyString("custom_sid"))
	ch.DirectSource = strPtr(rec.NonEmptyString("direct_source"))
	ch.Num = strPtr(rec.NonEmptyString("num"))
	ch.Plot = strPtr(rec.NonEmptyString("plot"))
	ch.Cast = strPtr(rec.NonEmptyString("cast"))
	ch.Director = strPtr(rec.NonEmptyString("director"))
	ch.Genre = strPtr(rec.NonEmptyString("genre"))
	ch.ReleaseDate = strPtr(firstString(rec, "release_date", "releaseDate", "releasedate"))
	ch.Rating = strPtr(rec.NonEmptyString("rating"))
	ch.YoutubeTrailer = strPtr(rec.NonEmptyString("youtube_trailer"))
	ch.EpisodeRunTime = strPtr(rec.NonEmptyString("episode_run_time"))
	ch.Cover = strPtr(rec.NonEmptyString("cover"))

	if n, ok := rec.Int("tv_archive"); ok {
		ch.TVArchive = &n
	}
	if n, ok := rec.Int("tv_archive_duration"); ok {
		ch.TVArchiveDuration = &n
	}
	if f, ok := rec.Float("rating_5based"); ok {
		ch.Rating5Based = &f
	}
	if paths, ok := rec.Strings("backdrop_path"); ok {
		ch.BackdropPath = paths
	}
}
