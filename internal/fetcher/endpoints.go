package fetcher

import (
	"net/url"

	"github.com/voyagen/iptvcatalog/internal/catalog"
	"github.com/voyagen/iptvcatalog/internal/models"
)

// Dialect is the provider API family an endpoint belongs to.
type Dialect string

const (
	DialectPanel  Dialect = "panel"
	DialectPlayer Dialect = "player"
	DialectM3U    Dialect = "m3u"
)

// Player API actions.
const (
	ActionLiveStreams      = "get_live_streams"
	ActionLiveCategories   = "get_live_categories"
	ActionVodStreams       = "get_vod_streams"
	ActionVodCategories    = "get_vod_categories"
	ActionSeries           = "get_series"
	ActionSeriesCategories = "get_series_categories"
)

// Endpoint describes one candidate provider request.
type Endpoint struct {
	// Name is a stable label used in logs and metrics.
	Name    string
	Dialect Dialect
	Path    string
	Action  string
	// Type is the get.php output type, e.g. m3u_plus.
	Type string
	// Kind is the content kind of records returned, for dialects that do
	// not describe it per record.
	Kind models.ContentKind
	// Categories marks endpoints that return a category list, not streams.
	Categories bool
}

var (
	Panel = Endpoint{
		Name:    "panel",
		Dialect: DialectPanel,
		Path:    "/api/panel_api.php",
		Kind:    models.KindLive,
	}
	PlayerLiveStreams    = PlayerAction(ActionLiveStreams, models.KindLive, false)
	PlayerLiveCategories = PlayerAction(ActionLiveCategories, models.KindLive, true)
	M3UPlus              = Endpoint{
		Name:    "m3u_plus",
		Dialect: DialectM3U,
		Path:    "/get.php",
		Type:    "m3u_plus",
	}
)

// PlayerAction describes a player_api.php request.
func PlayerAction(action string, kind models.ContentKind, categories bool) Endpoint {
	return Endpoint{
		Name:       action,
		Dialect:    DialectPlayer,
		Path:       "/player_api.php",
		Action:     action,
		Kind:       kind,
		Categories: categories,
	}
}

// DefaultProbeOrder is the fixed fallback order: panel, player live streams,
// player live categories, M3U.
func DefaultProbeOrder() []Endpoint {
	return []Endpoint{Panel, PlayerLiveStreams, PlayerLiveCategories, M3UPlus}
}

// PlayerCatalog lists the extra player endpoints used to fetch the full
// catalog once the player dialect is known. Category endpoints come first
// so names are resolvable before streams are normalized.
func PlayerCatalog() []Endpoint {
	return []Endpoint{
		PlayerLiveCategories,
		PlayerAction(ActionVodCategories, models.KindMovie, true),
		PlayerAction(ActionSeriesCategories, models.KindSeries, true),
		PlayerAction(ActionVodStreams, models.KindMovie, false),
		PlayerAction(ActionSeries, models.KindSeries, false),
	}
}

// URL builds the request URL for creds. Credentials are query-escaped but
// otherwise passed through untouched.
func (e Endpoint) URL(creds models.Credentials) string {
	q := url.Values{}
	q.Set("username", creds.Username)
	q.Set("password", creds.Password)
	if e.Action != "" {
		q.Set("action", e.Action)
	}
	if e.Type != "" {
		q.Set("type", e.Type)
	}
	return catalog.BaseURL(creds.ServerURL) + e.Path + "?" + q.Encode()
}
