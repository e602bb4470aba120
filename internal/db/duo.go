package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const duoColumns = `id, sender_id, recipient_id, accepted, selection, created_at`

// DuoInviteRepository handles duo-wrapped invite pairings. The schema keeps
// at most one invite per (sender, recipient) pair.
type DuoInviteRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a pending invite. Returns ErrInviteExists when an invite
// for the same pair already exists.
func (r *DuoInviteRepository) Create(ctx context.Context, invite *DuoInvite) error {
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}

	query := `
		INSERT INTO duo_invites (id, sender_id, recipient_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, invite.ID, invite.SenderID, invite.RecipientID).
		Scan(&invite.CreatedAt)
	if uniqueViolation(err, "duo_invites_pair_key") {
		return ErrInviteExists
	}
	if err != nil {
		return fmt.Errorf("inserting invite: %w", err)
	}
	return nil
}

// Get retrieves an invite by ID.
func (r *DuoInviteRepository) Get(ctx context.Context, id uuid.UUID) (*DuoInvite, error) {
	query := fmt.Sprintf(`SELECT %s FROM duo_invites WHERE id = $1`, duoColumns)

	var inv DuoInvite
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.SenderID, &inv.RecipientID, &inv.Accepted, &inv.Selection, &inv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite: %w", err)
	}
	return &inv, nil
}

// Accept marks the invite accepted. Only the recipient can accept; any other
// caller sees ErrNotFound.
func (r *DuoInviteRepository) Accept(ctx context.Context, id, recipientID uuid.UUID) (*DuoInvite, error) {
	query := fmt.Sprintf(`
		UPDATE duo_invites
		SET accepted = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING %s
	`, duoColumns)

	var inv DuoInvite
	err := r.pool.QueryRow(ctx, query, id, recipientID).Scan(
		&inv.ID, &inv.SenderID, &inv.RecipientID, &inv.Accepted, &inv.Selection, &inv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accepting invite: %w", err)
	}
	return &inv, nil
}

// SetSelection merges one side's track picks into the opaque selection
// payload under the given key ("sender" or "recipient").
func (r *DuoInviteRepository) SetSelection(ctx context.Context, id uuid.UUID, side string, picks json.RawMessage) (*DuoInvite, error) {
	query := fmt.Sprintf(`
		UPDATE duo_invites
		SET selection = COALESCE(selection, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1
		RETURNING %s
	`, duoColumns)

	var inv DuoInvite
	err := r.pool.QueryRow(ctx, query, id, side, picks).Scan(
		&inv.ID, &inv.SenderID, &inv.RecipientID, &inv.Accepted, &inv.Selection, &inv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating selection: %w", err)
	}
	return &inv, nil
}

// ListForUser returns invites where the user is sender or recipient, newest
// first.
func (r *DuoInviteRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]DuoInvite, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM duo_invites
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
	`, duoColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying invites: %w", err)
	}
	defer rows.Close()

	var invites []DuoInvite
	for rows.Next() {
		var inv DuoInvite
		if err := rows.Scan(&inv.ID, &inv.SenderID, &inv.RecipientID, &inv.Accepted, &inv.Selection, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}
