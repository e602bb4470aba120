package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

// childTables lists the snapshot child tables in deletion order.
var childTables = []string{
	"snapshot_tracks",
	"snapshot_artists",
	"snapshot_albums",
	"snapshot_genres",
	"snapshot_playlists",
}

// SnapshotRepository persists snapshot headers and their child collections.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// Save creates the header row and bulk-inserts the category-appropriate
// child rows in one transaction, returning the populated header.
func (r *SnapshotRepository) Save(ctx context.Context, userID uuid.UUID, data wrapped.SnapshotData) (*Snapshot, error) {
	if !data.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", wrapped.ErrUnknownCategory, data.Category)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	snap := &Snapshot{
		ID:       uuid.New(),
		UserID:   userID,
		Category: data.Category,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO snapshots (id, user_id, category)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, snap.ID, snap.UserID, snap.Category).Scan(&snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}

	if err := insertChildren(ctx, tx, snap.ID, data); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	snap.Tracks = data.Tracks
	snap.Artists = data.Artists
	snap.Albums = data.Albums
	snap.Genres = data.Genres
	snap.Playlists = data.Playlists
	return snap, nil
}

// insertChildren bulk-inserts the child records via COPY.
func insertChildren(ctx context.Context, tx pgx.Tx, snapshotID uuid.UUID, data wrapped.SnapshotData) error {
	copyAll := func(table string, columns []string, rows [][]any) error {
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copying into %s: %w", table, err)
		}
		return nil
	}

	trackRows := make([][]any, len(data.Tracks))
	for i, t := range data.Tracks {
		trackRows[i] = []any{snapshotID, t.SpotifyID, t.Name, t.Artist, t.Album, t.ImageURL, t.Popularity, t.PlayedAt}
	}
	if err := copyAll("snapshot_tracks",
		[]string{"snapshot_id", "spotify_id", "name", "artist", "album", "image_url", "popularity", "played_at"},
		trackRows); err != nil {
		return err
	}

	artistRows := make([][]any, len(data.Artists))
	for i, a := range data.Artists {
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		artistRows[i] = []any{snapshotID, a.SpotifyID, a.Name, a.ImageURL, genres, a.Popularity}
	}
	if err := copyAll("snapshot_artists",
		[]string{"snapshot_id", "spotify_id", "name", "image_url", "genres", "popularity"},
		artistRows); err != nil {
		return err
	}

	albumRows := make([][]any, len(data.Albums))
	for i, a := range data.Albums {
		albumRows[i] = []any{snapshotID, a.SpotifyID, a.Name, a.Artist, a.ImageURL, a.PlayCount}
	}
	if err := copyAll("snapshot_albums",
		[]string{"snapshot_id", "spotify_id", "name", "artist", "image_url", "play_count"},
		albumRows); err != nil {
		return err
	}

	genreRows := make([][]any, len(data.Genres))
	for i, g := range data.Genres {
		genreRows[i] = []any{snapshotID, g.Name, g.Count, g.Percent}
	}
	if err := copyAll("snapshot_genres",
		[]string{"snapshot_id", "name", "occurrences", "percent"},
		genreRows); err != nil {
		return err
	}

	playlistRows := make([][]any, len(data.Playlists))
	for i, p := range data.Playlists {
		playlistRows[i] = []any{snapshotID, p.SpotifyID, p.Name, p.ImageURL, p.TrackCount, p.DurationMinutes}
	}
	return copyAll("snapshot_playlists",
		[]string{"snapshot_id", "spotify_id", "name", "image_url", "track_count", "duration_minutes"},
		playlistRows)
}

// List returns the user's snapshots newest first, children eagerly loaded.
// With includePublic set, other users' public snapshots are included.
func (r *SnapshotRepository) List(ctx context.Context, userID uuid.UUID, includePublic bool) ([]Snapshot, error) {
	query := `
		SELECT id, user_id, category, public, created_at
		FROM snapshots
		WHERE user_id = $1 OR ($2 AND public)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, includePublic)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.UserID, &s.Category, &s.Public, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		if err := r.loadChildren(ctx, &snaps[i]); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

// Delete removes the snapshot identified by (user, category, exact creation
// timestamp): children explicitly first, then the header. Returns the
// deleted header, or ErrNotFound when no snapshot matches.
func (r *SnapshotRepository) Delete(ctx context.Context, userID uuid.UUID, category wrapped.Category, createdAt time.Time) (*Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := findSnapshot(ctx, tx, userID, category, createdAt)
	if err != nil {
		return nil, err
	}

	// The schema cascades, but child collections are removed explicitly so
	// a failure surfaces here instead of inside the header delete.
	for _, table := range childTables {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE snapshot_id = $1`, table), snap.ID); err != nil {
			logger.Log.Errorw("deleting snapshot children", "table", table, "snapshot_id", snap.ID, "err", err)
			return nil, fmt.Errorf("deleting from %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, snap.ID); err != nil {
		logger.Log.Errorw("deleting snapshot header", "snapshot_id", snap.ID, "err", err)
		return nil, fmt.Errorf("deleting snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return snap, nil
}

// SetVisibility flips the public flag on the snapshot identified by (user,
// category, exact creation timestamp). Returns ErrNotFound when absent.
func (r *SnapshotRepository) SetVisibility(ctx context.Context, userID uuid.UUID, category wrapped.Category, createdAt time.Time, public bool) (*Snapshot, error) {
	query := `
		UPDATE snapshots
		SET public = $4
		WHERE user_id = $1 AND category = $2 AND created_at = $3
		RETURNING id, user_id, category, public, created_at
	`
	var s Snapshot
	err := r.pool.QueryRow(ctx, query, userID, category, createdAt, public).Scan(
		&s.ID, &s.UserID, &s.Category, &s.Public, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating visibility: %w", err)
	}
	return &s, nil
}

func findSnapshot(ctx context.Context, tx pgx.Tx, userID uuid.UUID, category wrapped.Category, createdAt time.Time) (*Snapshot, error) {
	var s Snapshot
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, category, public, created_at
		FROM snapshots
		WHERE user_id = $1 AND category = $2 AND created_at = $3
	`, userID, category, createdAt).Scan(&s.ID, &s.UserID, &s.Category, &s.Public, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return &s, nil
}

// loadChildren fills the child slice matching the snapshot's category.
func (r *SnapshotRepository) loadChildren(ctx context.Context, snap *Snapshot) error {
	switch snap.Category {
	case wrapped.RecentlyPlayed, wrapped.TopTracksShort, wrapped.TopTracksMedium, wrapped.TopTracksLong:
		return r.loadTracks(ctx, snap)
	case wrapped.TopArtists:
		return r.loadArtists(ctx, snap)
	case wrapped.TopAlbums:
		return r.loadAlbums(ctx, snap)
	case wrapped.TopGenres:
		return r.loadGenres(ctx, snap)
	case wrapped.TopPlaylists:
		return r.loadPlaylists(ctx, snap)
	}
	return nil
}

func (r *SnapshotRepository) loadTracks(ctx context.Context, snap *Snapshot) error {
	rows, err := r.pool.Query(ctx, `
		SELECT spotify_id, name, artist, album, image_url, popularity, played_at
		FROM snapshot_tracks
		WHERE snapshot_id = $1
		ORDER BY id
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("querying snapshot tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t wrapped.Track
		if err := rows.Scan(&t.SpotifyID, &t.Name, &t.Artist, &t.Album, &t.ImageURL, &t.Popularity, &t.PlayedAt); err != nil {
			return fmt.Errorf("scanning snapshot track: %w", err)
		}
		snap.Tracks = append(snap.Tracks, t)
	}
	return rows.Err()
}

func (r *SnapshotRepository) loadArtists(ctx context.Context, snap *Snapshot) error {
	rows, err := r.pool.Query(ctx, `
		SELECT spotify_id, name, image_url, genres, popularity
		FROM snapshot_artists
		WHERE snapshot_id = $1
		ORDER BY id
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("querying snapshot artists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a wrapped.Artist
		if err := rows.Scan(&a.SpotifyID, &a.Name, &a.ImageURL, &a.Genres, &a.Popularity); err != nil {
			return fmt.Errorf("scanning snapshot artist: %w", err)
		}
		snap.Artists = append(snap.Artists, a)
	}
	return rows.Err()
}

func (r *SnapshotRepository) loadAlbums(ctx context.Context, snap *Snapshot) error {
	rows, err := r.pool.Query(ctx, `
		SELECT spotify_id, name, artist, image_url, play_count
		FROM snapshot_albums
		WHERE snapshot_id = $1
		ORDER BY id
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("querying snapshot albums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a wrapped.Album
		if err := rows.Scan(&a.SpotifyID, &a.Name, &a.Artist, &a.ImageURL, &a.PlayCount); err != nil {
			return fmt.Errorf("scanning snapshot album: %w", err)
		}
		snap.Albums = append(snap.Albums, a)
	}
	return rows.Err()
}

func (r *SnapshotRepository) loadGenres(ctx context.Context, snap *Snapshot) error {
	rows, err := r.pool.Query(ctx, `
		SELECT name, occurrences, percent
		FROM snapshot_genres
		WHERE snapshot_id = $1
		ORDER BY id
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("querying snapshot genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g wrapped.Genre
		if err := rows.Scan(&g.Name, &g.Count, &g.Percent); err != nil {
			return fmt.Errorf("scanning snapshot genre: %w", err)
		}
		snap.Genres = append(snap.Genres, g)
	}
	return rows.Err()
}

func (r *SnapshotRepository) loadPlaylists(ctx context.Context, snap *Snapshot) error {
	rows, err := r.pool.Query(ctx, `
		SELECT spotify_id, name, image_url, track_count, duration_minutes
		FROM snapshot_playlists
		WHERE snapshot_id = $1
		ORDER BY id
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("querying snapshot playlists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p wrapped.Playlist
		if err := rows.Scan(&p.SpotifyID, &p.Name, &p.ImageURL, &p.TrackCount, &p.DurationMinutes); err != nil {
			return fmt.Errorf("scanning snapshot playlist: %w", err)
		}
		snap.Playlists = append(snap.Playlists, p)
	}
	return rows.Err()
}
