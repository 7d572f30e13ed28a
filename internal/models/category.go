package models

// Category groups channels within one playlist. CategoryID is assigned by the
// provider and is only unique per playlist.
type Category struct {
	ID         int64       `json:"id,omitempty"`
	PlaylistID int64       `json:"playlist_id"`
	CategoryID string      `json:"category_id"`
	Name       string      `json:"name"`
	Kind       ContentKind `json:"kind"`
	ParentID   *int64      `json:"parent_id,omitempty"`
}
