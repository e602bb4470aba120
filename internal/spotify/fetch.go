package spotify

import (
	"context"
	"fmt"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

const (
	// recentlyPlayedLimit matches the Spotify API maximum for the
	// recently-played endpoint.
	recentlyPlayedLimit = 50

	// topItemsLimit is how many tracks/artists are kept per time window.
	topItemsLimit = 10

	// playlistsLimit bounds how many playlists a top-playlists snapshot
	// summarizes.
	playlistsLimit = 20
)

// timeRanges ties the time-windowed track categories to API ranges.
var timeRanges = map[wrapped.Category]spotify.Range{
	wrapped.TopTracksShort:  spotify.ShortTermRange,
	wrapped.TopTracksMedium: spotify.MediumTermRange,
	wrapped.TopTracksLong:   spotify.LongTermRange,
}

// allRanges is the order in which multi-window categories walk the windows.
var allRanges = []spotify.Range{spotify.ShortTermRange, spotify.MediumTermRange, spotify.LongTermRange}

// Fetch retrieves the listening data for one snapshot category. Upstream
// failures never escape as errors: each failed call degrades to an empty
// result for that call and marks the data as degraded, so a snapshot can
// always be created. The only error returned is an unknown category.
func (c *Client) Fetch(ctx context.Context, category wrapped.Category) (wrapped.SnapshotData, error) {
	data := wrapped.SnapshotData{Category: category}

	switch category {
	case wrapped.RecentlyPlayed:
		c.fetchRecentlyPlayed(ctx, &data)
	case wrapped.TopTracksShort, wrapped.TopTracksMedium, wrapped.TopTracksLong:
		c.fetchTopTracks(ctx, &data, timeRanges[category])
	case wrapped.TopArtists:
		c.fetchTopArtists(ctx, &data)
	case wrapped.TopAlbums:
		c.fetchTopAlbum(ctx, &data)
	case wrapped.TopGenres:
		c.fetchTopGenres(ctx, &data)
	case wrapped.TopPlaylists:
		c.fetchTopPlaylists(ctx, &data)
	default:
		return data, fmt.Errorf("%w: %q", wrapped.ErrUnknownCategory, category)
	}

	return data, nil
}

// degrade records a failed upstream call. The snapshot proceeds with an
// empty result for that call.
func degrade(data *wrapped.SnapshotData, op string, err error) {
	logger.Log.Warnw("spotify call failed, degrading to empty result", "op", op, "err", err)
	data.Degraded = true
}

func (c *Client) fetchRecentlyPlayed(ctx context.Context, data *wrapped.SnapshotData) {
	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: recentlyPlayedLimit})
	if err != nil {
		degrade(data, "recently-played", err)
		return
	}

	for _, item := range items {
		playedAt := item.PlayedAt
		data.Tracks = append(data.Tracks, wrapped.Track{
			SpotifyID: item.Track.ID.String(),
			Name:      item.Track.Name,
			Artist:    joinArtists(item.Track.Artists),
			Album:     item.Track.Album.Name,
			ImageURL:  firstImageURL(item.Track.Album.Images),
			PlayedAt:  &playedAt,
		})
	}
}

func (c *Client) fetchTopTracks(ctx context.Context, data *wrapped.SnapshotData, timeRange spotify.Range) {
	tracks, err := c.topTracks(ctx, timeRange)
	if err != nil {
		degrade(data, "top-tracks", err)
		return
	}

	for _, t := range tracks {
		data.Tracks = append(data.Tracks, convertFullTrack(t))
	}
}

func (c *Client) fetchTopArtists(ctx context.Context, data *wrapped.SnapshotData) {
	artists, err := c.topArtists(ctx, spotify.MediumTermRange)
	if err != nil {
		degrade(data, "top-artists", err)
		return
	}

	for _, a := range artists {
		data.Artists = append(data.Artists, wrapped.Artist{
			SpotifyID:  a.ID.String(),
			Name:       a.Name,
			ImageURL:   firstImageURL(a.Images),
			Genres:     a.Genres,
			Popularity: int(a.Popularity),
		})
	}
}

// fetchTopAlbum tallies album names over the top tracks of every time
// window, then resolves the winner's metadata through a search call.
func (c *Client) fetchTopAlbum(ctx context.Context, data *wrapped.SnapshotData) {
	var albumNames []string
	for _, r := range allRanges {
		tracks, err := c.topTracks(ctx, r)
		if err != nil {
			degrade(data, "top-tracks", err)
			continue
		}
		for _, t := range tracks {
			albumNames = append(albumNames, t.Album.Name)
		}
	}

	name, count, ok := wrapped.MostFrequentAlbum(albumNames)
	if !ok {
		return
	}

	album := wrapped.Album{Name: name, PlayCount: count}

	result, err := c.api.Search(ctx, "album:"+name, spotify.SearchTypeAlbum, spotify.Limit(1))
	switch {
	case err != nil:
		degrade(data, "search-album", err)
	case result.Albums != nil && len(result.Albums.Albums) > 0:
		found := result.Albums.Albums[0]
		album.SpotifyID = found.ID.String()
		album.Name = found.Name
		album.Artist = joinArtists(found.Artists)
		album.ImageURL = firstImageURL(found.Images)
	}

	data.Albums = append(data.Albums, album)
}

// fetchTopGenres flattens artist genre lists over every time window into a
// top-ten tally.
func (c *Client) fetchTopGenres(ctx context.Context, data *wrapped.SnapshotData) {
	var genreLists [][]string
	for _, r := range allRanges {
		artists, err := c.topArtists(ctx, r)
		if err != nil {
			degrade(data, "top-artists", err)
			continue
		}
		for _, a := range artists {
			genreLists = append(genreLists, a.Genres)
		}
	}

	data.Genres = wrapped.TallyTopGenres(genreLists, wrapped.TopGenresLimit)
}

func (c *Client) fetchTopPlaylists(ctx context.Context, data *wrapped.SnapshotData) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(playlistsLimit))
	if err != nil {
		degrade(data, "playlists", err)
		return
	}

	for _, p := range page.Playlists {
		playlist := wrapped.Playlist{
			SpotifyID: p.ID.String(),
			Name:      p.Name,
			ImageURL:  firstImageURL(p.Images),
		}

		items, err := c.api.GetPlaylistItems(ctx, p.ID)
		if err != nil {
			// Keep the playlist itself; its totals stay zero.
			degrade(data, "playlist-items", err)
			data.Playlists = append(data.Playlists, playlist)
			continue
		}

		var total time.Duration
		for _, item := range items.Items {
			if item.Track.Track == nil {
				// Episodes and local files carry no track payload.
				continue
			}
			total += item.Track.Track.TimeDuration()
			playlist.TrackCount++
		}
		playlist.DurationMinutes = int(total.Minutes())

		data.Playlists = append(data.Playlists, playlist)
	}
}

func (c *Client) topTracks(ctx context.Context, timeRange spotify.Range) ([]spotify.FullTrack, error) {
	page, err := c.api.CurrentUsersTopTracks(ctx, spotify.Timerange(timeRange), spotify.Limit(topItemsLimit))
	if err != nil {
		return nil, err
	}
	return page.Tracks, nil
}

func (c *Client) topArtists(ctx context.Context, timeRange spotify.Range) ([]spotify.FullArtist, error) {
	page, err := c.api.CurrentUsersTopArtists(ctx, spotify.Timerange(timeRange), spotify.Limit(topItemsLimit))
	if err != nil {
		return nil, err
	}
	return page.Artists, nil
}

// convertFullTrack maps an API track to a snapshot record. No play
// timestamp: top-track windows aggregate plays rather than list them.
func convertFullTrack(t spotify.FullTrack) wrapped.Track {
	return wrapped.Track{
		SpotifyID:  t.ID.String(),
		Name:       t.Name,
		Artist:     joinArtists(t.Artists),
		Album:      t.Album.Name,
		ImageURL:   firstImageURL(t.Album.Images),
		Popularity: int(t.Popularity),
	}
}
