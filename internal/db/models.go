package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

// User is a local account, optionally bound to one Spotify account. The
// Spotify fields are nullable: they are populated on OAuth callback and
// cleared on disconnect.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	SpotifyID    *string    // nullable, unique across users when set
	AccessToken  *string    // nullable
	RefreshToken *string    // nullable
	TokenExpiry  *time.Time // nullable
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SpotifyConnected reports whether the user has a Spotify account bound.
func (u *User) SpotifyConnected() bool {
	return u.SpotifyID != nil && *u.SpotifyID != ""
}

// TokenExpired reports whether the access token must be refreshed before
// use. A user with no recorded expiry is treated as expired.
func (u *User) TokenExpired(now time.Time) bool {
	if u.TokenExpiry == nil {
		return true
	}
	return !now.Before(*u.TokenExpiry)
}

// Snapshot is one point-in-time capture of one listening-data category for
// one user. Exactly one of the child slices is populated, matching Category.
type Snapshot struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Category  wrapped.Category `json:"category"`
	Public    bool             `json:"public"`
	CreatedAt time.Time        `json:"created_at"`

	Tracks    []wrapped.Track    `json:"tracks,omitempty"`
	Artists   []wrapped.Artist   `json:"artists,omitempty"`
	Albums    []wrapped.Album    `json:"albums,omitempty"`
	Genres    []wrapped.Genre    `json:"genres,omitempty"`
	Playlists []wrapped.Playlist `json:"playlists,omitempty"`
}

// DuoInvite pairs two users for comparing listening data. Selection is an
// opaque JSON payload holding each side's track picks, keyed by role.
type DuoInvite struct {
	ID          uuid.UUID       `json:"id"`
	SenderID    uuid.UUID       `json:"sender_id"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	Accepted    bool            `json:"accepted"`
	Selection   json.RawMessage `json:"selection,omitempty"` // nullable
	CreatedAt   time.Time       `json:"created_at"`
}

// Session is an authenticated web session for a local user.
type Session struct {
	ID        string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}
