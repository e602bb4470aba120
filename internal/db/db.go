// Package db provides PostgreSQL persistence for the Spotify Rewind
// application: users with their Spotify identity and token fields, snapshot
// headers with their child collections, duo invites, and web sessions.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken and ErrEmailTaken are returned on signup conflicts.
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already taken")

	// ErrSpotifyIDRequired is returned when binding an empty Spotify ID.
	ErrSpotifyIDRequired = errors.New("spotify ID required")

	// ErrSpotifyIDTaken is returned when the Spotify account is already
	// bound to a different local user.
	ErrSpotifyIDTaken = errors.New("spotify account already linked to another user")

	// ErrTokenFieldsRequired is returned when SetSpotifyTokens is called
	// with a missing access token, refresh token, or expiry duration.
	ErrTokenFieldsRequired = errors.New("access token, refresh token and expiry are all required")

	// ErrInviteExists is returned when a duo invite for the same
	// (sender, recipient) pair already exists.
	ErrInviteExists = errors.New("invite already exists for this pair")
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// NewFromPool wraps an existing pool. Used by tests that manage their own
// database lifecycle.
func NewFromPool(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Users returns a UserRepository.
func (db *DB) Users() *UserRepository {
	return &UserRepository{pool: db.pool}
}

// Snapshots returns a SnapshotRepository.
func (db *DB) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{pool: db.pool}
}

// DuoInvites returns a DuoInviteRepository.
func (db *DB) DuoInvites() *DuoInviteRepository {
	return &DuoInviteRepository{pool: db.pool}
}

// Sessions returns a SessionRepository.
func (db *DB) Sessions() *SessionRepository {
	return &SessionRepository{pool: db.pool}
}

// uniqueViolation reports whether err is a unique-constraint violation on
// the named constraint. An empty name matches any unique violation.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
