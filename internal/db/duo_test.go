package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuoInviteRepository_PairUniqueness(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	first := &DuoInvite{SenderID: alice.ID, RecipientID: bob.ID}
	require.NoError(t, database.DuoInvites().Create(ctx, first))

	dup := &DuoInvite{SenderID: alice.ID, RecipientID: bob.ID}
	assert.ErrorIs(t, database.DuoInvites().Create(ctx, dup), ErrInviteExists)

	// The reverse direction is a distinct pair.
	reverse := &DuoInvite{SenderID: bob.ID, RecipientID: alice.ID}
	assert.NoError(t, database.DuoInvites().Create(ctx, reverse))
}

func TestDuoInviteRepository_AcceptAndSelection(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	invite := &DuoInvite{SenderID: alice.ID, RecipientID: bob.ID}
	require.NoError(t, database.DuoInvites().Create(ctx, invite))

	// Only the recipient can accept.
	_, err := database.DuoInvites().Accept(ctx, invite.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	accepted, err := database.DuoInvites().Accept(ctx, invite.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)

	// Each side's picks merge into one payload.
	_, err = database.DuoInvites().SetSelection(ctx, invite.ID, "sender", json.RawMessage(`["t1","t2"]`))
	require.NoError(t, err)
	updated, err := database.DuoInvites().SetSelection(ctx, invite.ID, "recipient", json.RawMessage(`["t3"]`))
	require.NoError(t, err)

	var selection map[string][]string
	require.NoError(t, json.Unmarshal(updated.Selection, &selection))
	assert.Equal(t, []string{"t1", "t2"}, selection["sender"])
	assert.Equal(t, []string{"t3"}, selection["recipient"])

	invites, err := database.DuoInvites().ListForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, invite.ID, invites[0].ID)
}
