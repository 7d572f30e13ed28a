package models

import "strings"

// ContentKind classifies a catalog entry. The VOD kind is labelled "movie"
// everywhere (categories, stream types, URL paths); "vod" is accepted as an
// alias on input only.
type ContentKind string

const (
	KindLive   ContentKind = "live"
	KindMovie  ContentKind = "movie"
	KindSeries ContentKind = "series"
)

// UncategorizedName is the category display name used when a stream has no
// resolvable category.
const UncategorizedName = "Uncategorized"

// ParseContentKind maps a provider label to a ContentKind.
func ParseContentKind(s string) (ContentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return KindLive, true
	case "movie", "vod":
		return KindMovie, true
	case "series":
		return KindSeries, true
	}
	return "", false
}

// PathSegment is the URL path element providers use for streams of this kind.
func (k ContentKind) PathSegment() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindSeries:
		return "series"
	default:
		return "live"
	}
}

func (k ContentKind) String() string { return string(k) }
