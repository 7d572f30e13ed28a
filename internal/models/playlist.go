package models

import "time"

// Playlist is a configured provider account. Catalog rows reference it by id
// and are deleted with it.
type Playlist struct {
	ID           int64      `json:"id,omitempty"`
	Name         string     `json:"name"`
	ServerURL    string     `json:"server_url"`
	Username     string     `json:"username"`
	Password     string     `json:"-"`
	EPGURL       *string    `json:"epg_url,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Credentials are passed through to the provider untouched.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}
