package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/voyagen/iptvcatalog/internal/fetcher"
)

// ErrInvalidURL is returned by ImportM3UFromURL for unusable URLs.
var ErrInvalidURL = errors.New("invalid m3u url")

// ImportM3UFromURL downloads an M3U playlist and imports it like ImportM3U.
// The URL is never logged unredacted.
func (s *Syncer) ImportM3UFromURL(ctx context.Context, playlistID int64, m3uURL string) (bool, error) {
	u, err := url.Parse(m3uURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, ErrInvalidURL
	}
	if _, err := s.store.GetPlaylist(ctx, playlistID); err != nil {
		return false, fmt.Errorf("GetPlaylist: %w", err)
	}

	body, err := s.prober.Get(ctx, m3uURL)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", fetcher.RedactURL(m3uURL), err)
	}
	return s.ImportM3U(ctx, playlistID, string(body))
}
