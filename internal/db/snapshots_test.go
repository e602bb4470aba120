package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

func trackData(t *testing.T, n int) wrapped.SnapshotData {
	t.Helper()

	data := wrapped.SnapshotData{Category: wrapped.TopTracksShort}
	for i := 0; i < n; i++ {
		data.Tracks = append(data.Tracks, wrapped.Track{
			SpotifyID:  uuid.NewString(),
			Name:       "Track",
			Artist:     "Artist",
			Album:      "Album",
			Popularity: 40 + i,
		})
	}
	return data
}

func saveSnapshot(t *testing.T, database *DB, userID uuid.UUID, data wrapped.SnapshotData) *Snapshot {
	t.Helper()

	snap, err := database.Snapshots().Save(context.Background(), userID, data)
	require.NoError(t, err)
	return snap
}

func TestSnapshotRepository_SaveListRoundTrip(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")

	playedAt := time.Date(2026, 2, 14, 20, 30, 0, 0, time.UTC)
	recent := wrapped.SnapshotData{
		Category: wrapped.RecentlyPlayed,
		Tracks: []wrapped.Track{
			{SpotifyID: "t1", Name: "One", Artist: "A", Album: "X", Popularity: 50, PlayedAt: &playedAt},
			{SpotifyID: "t2", Name: "Two", Artist: "B", Album: "Y", Popularity: 60, PlayedAt: &playedAt},
			{SpotifyID: "t3", Name: "Three", Artist: "C", Album: "Z", Popularity: 70, PlayedAt: &playedAt},
		},
	}
	genres := wrapped.SnapshotData{
		Category: wrapped.TopGenres,
		Genres: []wrapped.Genre{
			{Name: "pop", Count: 2, Percent: 66.67},
			{Name: "rock", Count: 1, Percent: 33.33},
		},
	}

	saveSnapshot(t, database, alice.ID, recent)
	saveSnapshot(t, database, alice.ID, genres)

	snaps, err := database.Snapshots().List(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Newest first.
	assert.True(t, !snaps[0].CreatedAt.Before(snaps[1].CreatedAt))

	byCategory := map[wrapped.Category]Snapshot{}
	for _, s := range snaps {
		byCategory[s.Category] = s
	}

	gotRecent := byCategory[wrapped.RecentlyPlayed]
	require.Len(t, gotRecent.Tracks, 3)
	assert.Equal(t, "t1", gotRecent.Tracks[0].SpotifyID)
	require.NotNil(t, gotRecent.Tracks[0].PlayedAt)
	assert.True(t, gotRecent.Tracks[0].PlayedAt.Equal(playedAt))

	gotGenres := byCategory[wrapped.TopGenres]
	require.Len(t, gotGenres.Genres, 2)
	assert.Equal(t, wrapped.Genre{Name: "pop", Count: 2, Percent: 66.67}, gotGenres.Genres[0])
	assert.Equal(t, wrapped.Genre{Name: "rock", Count: 1, Percent: 33.33}, gotGenres.Genres[1])
}

func TestSnapshotRepository_Save_UnknownCategory(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")

	_, err := database.Snapshots().Save(context.Background(), alice.ID, wrapped.SnapshotData{Category: "TOP_PODCASTS"})
	assert.ErrorIs(t, err, wrapped.ErrUnknownCategory)
}

func TestSnapshotRepository_Delete(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	keep := saveSnapshot(t, database, alice.ID, trackData(t, 2))
	victim := saveSnapshot(t, database, alice.ID, trackData(t, 3))

	deleted, err := database.Snapshots().Delete(ctx, alice.ID, victim.Category, victim.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, victim.ID, deleted.ID)

	snaps, err := database.Snapshots().List(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, keep.ID, snaps[0].ID)
	assert.Len(t, snaps[0].Tracks, 2)
}

func TestSnapshotRepository_Delete_NotFound(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	existing := saveSnapshot(t, database, alice.ID, trackData(t, 2))

	// No snapshot matches this timestamp; nothing else may be deleted.
	_, err := database.Snapshots().Delete(ctx, alice.ID, existing.Category, existing.CreatedAt.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotFound)

	snaps, err := database.Snapshots().List(ctx, alice.ID, false)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Tracks, 2)
}

func TestSnapshotRepository_UserCategoryTimestampUnique(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	insert := func() error {
		_, err := database.pool.Exec(ctx, `
			INSERT INTO snapshots (id, user_id, category, created_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), alice.ID, wrapped.TopTracksShort, createdAt)
		return err
	}

	require.NoError(t, insert())
	// The (user, category, created_at) triple addresses exactly one
	// snapshot, so a second row on the same triple must be rejected.
	assert.Error(t, insert())
}

func TestSnapshotRepository_VisibilityAcrossUsers(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	snap := saveSnapshot(t, database, alice.ID, trackData(t, 2))

	// Private by default: invisible to bob even when including public
	// snapshots.
	snaps, err := database.Snapshots().List(ctx, bob.ID, true)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	toggled, err := database.Snapshots().SetVisibility(ctx, alice.ID, snap.Category, snap.CreatedAt, true)
	require.NoError(t, err)
	assert.True(t, toggled.Public)

	snaps, err = database.Snapshots().List(ctx, bob.ID, true)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.ID, snaps[0].ID)
	assert.Len(t, snaps[0].Tracks, 2)

	// Without the cross-user flag bob still sees nothing.
	snaps, err = database.Snapshots().List(ctx, bob.ID, false)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	// Toggle target absent -> not found.
	_, err = database.Snapshots().SetVisibility(ctx, bob.ID, snap.Category, snap.CreatedAt, true)
	assert.ErrorIs(t, err, ErrNotFound)
}
