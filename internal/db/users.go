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
)

const userColumns = `id, username, email, password_hash, spotify_id,
	access_token, refresh_token, token_expiry, created_at, updated_at`

// UserRepository handles user database operations, including the Spotify
// identity binding and token lifecycle. Binding and token updates serialize
// per user through row-level locks; the partial unique index on spotify_id
// resolves concurrent binds of the same Spotify account.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new user. Returns ErrUsernameTaken or ErrEmailTaken on
// conflict.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if uniqueViolation(err, "users_username_key") {
		return ErrUsernameTaken
	}
	if uniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, "username = $1", username)
}

// GetBySpotifyID retrieves the user holding the given Spotify account.
func (r *UserRepository) GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error) {
	return r.getBy(ctx, "spotify_id = $1", spotifyID)
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)

	var user User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.SpotifyID,
		&user.AccessToken,
		&user.RefreshToken,
		&user.TokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// BindSpotifyID associates a Spotify account with the user. It is a no-op
// when the user already holds that exact ID. Returns ErrSpotifyIDRequired
// for an empty ID and ErrSpotifyIDTaken when a different user holds it;
// under concurrent binds of the same ID exactly one caller wins.
func (r *UserRepository) BindSpotifyID(ctx context.Context, user *User, spotifyID string) error {
	if spotifyID == "" {
		return ErrSpotifyIDRequired
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user's row so a concurrent token update or bind on the
	// same user serializes behind us.
	var current *string
	err = tx.QueryRow(ctx,
		`SELECT spotify_id FROM users WHERE id = $1 FOR UPDATE`,
		user.ID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking user row: %w", err)
	}

	if current != nil && *current == spotifyID {
		// Already bound to this exact account. Mirror the field in case
		// the caller's copy predates the bind.
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing bind: %w", err)
		}
		user.SpotifyID = &spotifyID
		return nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET spotify_id = $2, updated_at = NOW() WHERE id = $1`,
		user.ID, spotifyID,
	)
	if uniqueViolation(err, "users_spotify_id_key") {
		return ErrSpotifyIDTaken
	}
	if err != nil {
		return fmt.Errorf("binding spotify ID: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing bind: %w", err)
	}

	user.SpotifyID = &spotifyID
	return nil
}

// SetSpotifyTokens stores a fresh access/refresh token pair and its absolute
// expiry (now + expiresIn) in one atomic update. Returns
// ErrTokenFieldsRequired if any field is missing; nothing is written then.
func (r *UserRepository) SetSpotifyTokens(ctx context.Context, user *User, access, refresh string, expiresIn time.Duration) error {
	if access == "" || refresh == "" || expiresIn <= 0 {
		return ErrTokenFieldsRequired
	}

	expiry := time.Now().Add(expiresIn)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`,
		user.ID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking user row: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1
	`, user.ID, access, refresh, expiry)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing token update: %w", err)
	}

	user.AccessToken = &access
	user.RefreshToken = &refresh
	user.TokenExpiry = &expiry
	return nil
}

// ClearSpotifyData nulls the Spotify identity and every credential field in
// one update. Used on disconnect and on unrecoverable refresh failure.
func (r *UserRepository) ClearSpotifyData(ctx context.Context, user *User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET spotify_id = NULL, access_token = NULL, refresh_token = NULL,
		    token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`, user.ID)
	if err != nil {
		return fmt.Errorf("clearing spotify data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	user.SpotifyID = nil
	user.AccessToken = nil
	user.RefreshToken = nil
	user.TokenExpiry = nil
	return nil
}

// Delete removes the user; snapshots, sessions and invites cascade.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		logger.Log.Errorw("deleting user", "user_id", id, "err", err)
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
