// Package duo pairs two users so they can compare listening data. An
// invite is sent by username, accepted by the recipient, and then both
// sides attach their track picks to it.
package duo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/soundeck/go-spotify-rewind/internal/db"
)

// Selection sides stored in the invite payload.
const (
	SideSender    = "sender"
	SideRecipient = "recipient"
)

var (
	ErrSelfInvite       = errors.New("cannot invite yourself")
	ErrNotParticipant   = errors.New("user is not part of this invite")
	ErrNotAccepted      = errors.New("invite has not been accepted")
	ErrInvalidSelection = errors.New("selection must be a JSON value")
)

// InviteStore is the subset of the invite repository the service needs.
type InviteStore interface {
	Create(ctx context.Context, invite *db.DuoInvite) error
	Get(ctx context.Context, id uuid.UUID) (*db.DuoInvite, error)
	Accept(ctx context.Context, id, recipientID uuid.UUID) (*db.DuoInvite, error)
	SetSelection(ctx context.Context, id uuid.UUID, side string, picks json.RawMessage) (*db.DuoInvite, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]db.DuoInvite, error)
}

// UserLookup resolves invite recipients.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*db.User, error)
}

// Service manages duo invites.
type Service struct {
	invites InviteStore
	users   UserLookup
}

// NewService creates a duo invite service.
func NewService(invites InviteStore, users UserLookup) *Service {
	return &Service{invites: invites, users: users}
}

// Send creates an invite from sender to the named user. At most one invite
// exists per (sender, recipient) pair; a duplicate reports
// db.ErrInviteExists and an unknown recipient db.ErrNotFound.
func (s *Service) Send(ctx context.Context, senderID uuid.UUID, recipientUsername string) (*db.DuoInvite, error) {
	recipient, err := s.users.GetByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, ErrSelfInvite
	}

	invite := &db.DuoInvite{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipient.ID,
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, err
	}
	return invite, nil
}

// Accept marks the invite accepted. Only the recipient can accept; anyone
// else gets db.ErrNotFound, same as a missing invite.
func (s *Service) Accept(ctx context.Context, inviteID, userID uuid.UUID) (*db.DuoInvite, error) {
	return s.invites.Accept(ctx, inviteID, userID)
}

// SetSelection stores one side's track picks on an accepted invite. The
// side is resolved from the calling user.
func (s *Service) SetSelection(ctx context.Context, inviteID, userID uuid.UUID, picks json.RawMessage) (*db.DuoInvite, error) {
	if !json.Valid(picks) {
		return nil, ErrInvalidSelection
	}

	invite, err := s.invites.Get(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	var side string
	switch userID {
	case invite.SenderID:
		side = SideSender
	case invite.RecipientID:
		side = SideRecipient
	default:
		return nil, ErrNotParticipant
	}

	if !invite.Accepted {
		return nil, ErrNotAccepted
	}

	return s.invites.SetSelection(ctx, inviteID, side, picks)
}

// List returns every invite the user sent or received.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]db.DuoInvite, error) {
	return s.invites.ListForUser(ctx, userID)
}
