package wrapped

import "time"

// Track is a frozen copy of one track from the external service. PlayedAt is
// set only for recently-played snapshots.
type Track struct {
	SpotifyID  string     `json:"spotify_id"`
	Name       string     `json:"name"`
	Artist     string     `json:"artist"` // Comma-separated artist names
	Album      string     `json:"album,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	Popularity int        `json:"popularity,omitempty"`
	PlayedAt   *time.Time `json:"played_at,omitempty"` // nullable
}

// Artist is a frozen copy of one artist with its genre list.
type Artist struct {
	SpotifyID  string   `json:"spotify_id"`
	Name       string   `json:"name"`
	ImageURL   string   `json:"image_url,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
}

// Album is the single most-played album derived from top tracks. PlayCount
// is the number of top-track appearances that elected it.
type Album struct {
	SpotifyID string `json:"spotify_id,omitempty"`
	Name      string `json:"name"`
	Artist    string `json:"artist,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	PlayCount int    `json:"play_count"`
}

// Genre is one entry of a top-genres tally.
type Genre struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"` // share of all genre occurrences, two decimals
}

// Playlist is a frozen summary of one of the user's playlists.
type Playlist struct {
	SpotifyID       string `json:"spotify_id"`
	Name            string `json:"name"`
	ImageURL        string `json:"image_url,omitempty"`
	TrackCount      int    `json:"track_count"`
	DurationMinutes int    `json:"duration_minutes"`
}

// SnapshotData holds the child records fetched for one snapshot. Only the
// slice matching the category is populated.
type SnapshotData struct {
	Category  Category   `json:"category"`
	Tracks    []Track    `json:"tracks,omitempty"`
	Artists   []Artist   `json:"artists,omitempty"`
	Albums    []Album    `json:"albums,omitempty"`
	Genres    []Genre    `json:"genres,omitempty"`
	Playlists []Playlist `json:"playlists,omitempty"`

	// Degraded is set when at least one upstream call failed and was
	// replaced by an empty result. It distinguishes "the user has no
	// data" from "the service was unreachable".
	Degraded bool `json:"degraded,omitempty"`
}
