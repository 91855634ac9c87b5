package room

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relaychat/internal/user"
)

type fakeStore struct {
	rooms   map[string]*Room
	members *fakeMembers
	added   []uuid.UUID // user ids passed to AddMember, in order
}

func newFakeStore(rooms ...*Room) *fakeStore {
	byName := make(map[string]*Room)
	for _, rm := range rooms {
		byName[rm.Name] = rm
	}
	return &fakeStore{rooms: byName, members: &fakeMembers{}}
}

func (f *fakeStore) ByName(_ context.Context, name string) (*Room, error) {
	rm, ok := f.rooms[name]
	if !ok {
		return nil, ErrNotFound
	}
	return rm, nil
}

func (f *fakeStore) Create(_ context.Context, name, description string, isPublic bool, createdBy uuid.UUID) (*Room, error) {
	rm := &Room{ID: uuid.New(), Name: name, Description: description, IsPublic: isPublic, CreatedBy: createdBy}
	f.rooms[name] = rm
	return rm, nil
}

func (f *fakeStore) ListVisible(_ context.Context, _ uuid.UUID) ([]Room, error) {
	var out []Room
	for _, rm := range f.rooms {
		out = append(out, *rm)
	}
	return out, nil
}

func (f *fakeStore) AddMember(_ context.Context, roomID, userID uuid.UUID) error {
	f.members.add(roomID, userID)
	f.added = append(f.added, userID)
	return nil
}

type fakeUsers struct {
	byName map[string]*user.User
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*user.User, error) {
	u, ok := f.byName[username]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func newServiceFixture(rooms ...*Room) (*Service, *fakeStore, *fakeUsers) {
	store := newFakeStore(rooms...)
	users := &fakeUsers{byName: make(map[string]*user.User)}
	svc := NewService(store, NewPolicy(store.members), users, zap.NewNop())
	return svc, store, users
}

func TestInviteHappyPath(t *testing.T) {
	private := &Room{ID: uuid.New(), Name: "secret", IsPublic: false}
	svc, store, users := newServiceFixture(private)

	inviter := uuid.New()
	store.members.add(private.ID, inviter)
	invitee := &user.User{ID: uuid.New(), Username: "bob"}
	users.byName["bob"] = invitee

	outcome, err := svc.Invite(context.Background(), "secret", inviter, "bob")
	require.NoError(t, err)
	assert.Equal(t, Invited, outcome)
	assert.Equal(t, []uuid.UUID{invitee.ID}, store.added)
}

func TestInviteIntoPublicRoomNeedsNoInvitation(t *testing.T) {
	public := &Room{ID: uuid.New(), Name: "general", IsPublic: true}
	svc, store, _ := newServiceFixture(public)

	outcome, err := svc.Invite(context.Background(), "general", uuid.New(), "bob")
	require.NoError(t, err, "a public room is a non-error outcome, not a failure")
	assert.Equal(t, InviteePublicRoom, outcome)
	assert.Empty(t, store.added)
}

func TestInviteByNonMemberForbidden(t *testing.T) {
	private := &Room{ID: uuid.New(), Name: "secret", IsPublic: false}
	svc, store, users := newServiceFixture(private)
	users.byName["bob"] = &user.User{ID: uuid.New(), Username: "bob"}

	_, err := svc.Invite(context.Background(), "secret", uuid.New(), "bob")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, store.added)
}

func TestInviteUnknownUsername(t *testing.T) {
	private := &Room{ID: uuid.New(), Name: "secret", IsPublic: false}
	svc, store, _ := newServiceFixture(private)
	inviter := uuid.New()
	store.members.add(private.ID, inviter)

	_, err := svc.Invite(context.Background(), "secret", inviter, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.added, "no membership row for an unknown invitee")
}

func TestInviteUnknownRoom(t *testing.T) {
	svc, _, _ := newServiceFixture()
	_, err := svc.Invite(context.Background(), "nowhere", uuid.New(), "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInviteExistingMemberIsNonError(t *testing.T) {
	private := &Room{ID: uuid.New(), Name: "secret", IsPublic: false}
	svc, store, users := newServiceFixture(private)

	inviter := uuid.New()
	invitee := &user.User{ID: uuid.New(), Username: "bob"}
	store.members.add(private.ID, inviter)
	store.members.add(private.ID, invitee.ID)
	users.byName["bob"] = invitee

	outcome, err := svc.Invite(context.Background(), "secret", inviter, "bob")
	require.NoError(t, err)
	assert.Equal(t, InviteeAlreadyMember, outcome)
	assert.Empty(t, store.added, "no duplicate membership row")
}

func TestCreatePrivateRoomAddsCreatorAsMember(t *testing.T) {
	svc, store, _ := newServiceFixture()
	creator := uuid.New()
	isPublic := false

	rm, err := svc.Create(context.Background(), &CreateRequest{Name: "secret", IsPublic: &isPublic}, creator)
	require.NoError(t, err)
	assert.False(t, rm.IsPublic)
	assert.Equal(t, []uuid.UUID{creator}, store.added)
}

func TestCreatePublicRoomByDefault(t *testing.T) {
	svc, store, _ := newServiceFixture()

	rm, err := svc.Create(context.Background(), &CreateRequest{Name: "general"}, uuid.New())
	require.NoError(t, err)
	assert.True(t, rm.IsPublic, "visibility defaults to public")
	assert.Empty(t, store.added)

	_, err = svc.Create(context.Background(), &CreateRequest{Name: ""}, uuid.New())
	assert.Error(t, err)
}
