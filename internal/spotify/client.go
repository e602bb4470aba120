// Package spotify wraps the Spotify Web API and maps raw responses into the
// normalized snapshot records of the wrapped package.
package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// Client wraps the Spotify API client with snapshot-oriented methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// Profile identifies the authenticated Spotify account.
type Profile struct {
	ID          string
	DisplayName string
}

// CurrentUser returns the authenticated account's profile.
func (c *Client) CurrentUser(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &Profile{ID: user.ID, DisplayName: user.DisplayName}, nil
}

// joinArtists flattens artist credits to a comma-separated string.
func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// firstImageURL returns the first artwork URL, or "" when there is none.
func firstImageURL(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
