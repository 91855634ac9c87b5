package room

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMembers struct {
	members map[uuid.UUID]map[uuid.UUID]bool // roomID -> userID -> member
	err     error
}

func (f *fakeMembers) IsMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[roomID][userID], nil
}

func (f *fakeMembers) add(roomID, userID uuid.UUID) {
	if f.members == nil {
		f.members = make(map[uuid.UUID]map[uuid.UUID]bool)
	}
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[uuid.UUID]bool)
	}
	f.members[roomID][userID] = true
}

func TestCanAccessPublicRoom(t *testing.T) {
	policy := NewPolicy(&fakeMembers{})
	rm := &Room{ID: uuid.New(), Name: "general", IsPublic: true}

	// Any verified identity is admitted, no membership lookup needed.
	assert.NoError(t, policy.CanAccess(context.Background(), rm, uuid.New()))
}

func TestCanAccessPrivateRoom(t *testing.T) {
	members := &fakeMembers{}
	policy := NewPolicy(members)
	rm := &Room{ID: uuid.New(), Name: "secret", IsPublic: false}
	member := uuid.New()
	members.add(rm.ID, member)

	assert.NoError(t, policy.CanAccess(context.Background(), rm, member))

	err := policy.CanAccess(context.Background(), rm, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCanAccessPropagatesStorageErrors(t *testing.T) {
	storageErr := errors.New("pg down")
	policy := NewPolicy(&fakeMembers{err: storageErr})
	rm := &Room{ID: uuid.New(), IsPublic: false}

	err := policy.CanAccess(context.Background(), rm, uuid.New())
	assert.ErrorIs(t, err, storageErr)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestCanInvite(t *testing.T) {
	members := &fakeMembers{}
	policy := NewPolicy(members)
	private := &Room{ID: uuid.New(), IsPublic: false}
	public := &Room{ID: uuid.New(), IsPublic: true}
	member := uuid.New()
	members.add(private.ID, member)

	ok, err := policy.CanInvite(context.Background(), private, member)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = policy.CanInvite(context.Background(), private, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok, "non-members cannot invite")

	ok, err = policy.CanInvite(context.Background(), public, member)
	require.NoError(t, err)
	assert.False(t, ok, "public rooms have no invitations")
}
