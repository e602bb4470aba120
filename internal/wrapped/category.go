// Package wrapped defines the listening-data snapshot domain: the fixed set
// of snapshot categories, the denormalized child records frozen into a
// snapshot, and the frequency tallies used to derive albums and genres.
package wrapped

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned when a category code or display name does
// not match any known category.
var ErrUnknownCategory = errors.New("unknown snapshot category")

// Category identifies one kind of listening-data snapshot.
type Category string

// The full set of snapshot categories.
const (
	RecentlyPlayed  Category = "RECENTLY_PLAYED"
	TopTracksShort  Category = "TOP_TRACKS_SHORT"
	TopTracksMedium Category = "TOP_TRACKS_MEDIUM"
	TopTracksLong   Category = "TOP_TRACKS_LONG"
	TopArtists      Category = "TOP_ARTISTS"
	TopAlbums       Category = "TOP_ALBUMS"
	TopGenres       Category = "TOP_GENRES"
	TopPlaylists    Category = "TOP_PLAYLISTS"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	RecentlyPlayed,
	TopTracksShort,
	TopTracksMedium,
	TopTracksLong,
	TopArtists,
	TopAlbums,
	TopGenres,
	TopPlaylists,
}

// displayNames maps each category to its human-readable name. The mapping is
// bijective; displayToCategory is derived from it at init.
var displayNames = map[Category]string{
	RecentlyPlayed:  "Recently Played",
	TopTracksShort:  "Top Tracks (4 Weeks)",
	TopTracksMedium: "Top Tracks (6 Months)",
	TopTracksLong:   "Top Tracks (All Time)",
	TopArtists:      "Top Artists",
	TopAlbums:       "Top Albums",
	TopGenres:       "Top Genres",
	TopPlaylists:    "Top Playlists",
}

var displayToCategory = make(map[string]Category, len(displayNames))

func init() {
	for c, name := range displayNames {
		if _, dup := displayToCategory[name]; dup {
			panic(fmt.Sprintf("duplicate display name %q", name))
		}
		displayToCategory[name] = c
	}
}

// DisplayName returns the human-readable name for the category.
func (c Category) DisplayName() string {
	return displayNames[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := displayNames[c]
	return ok
}

// ParseCategory resolves either an internal code or a display name to a
// Category. Returns ErrUnknownCategory for anything else.
func ParseCategory(s string) (Category, error) {
	if c := Category(s); c.Valid() {
		return c, nil
	}
	if c, ok := displayToCategory[s]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
