package room

import (
	"context"

	"github.com/google/uuid"
)

// MembershipChecker is the slice of the repository the policy needs.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// Policy decides room access. Public rooms admit any verified identity;
// private rooms require a membership row.
type Policy struct {
	members MembershipChecker
}

func NewPolicy(members MembershipChecker) *Policy {
	return &Policy{members: members}
}

// CanAccess returns nil when the user may read and write in the room,
// ErrForbidden when membership is required and absent.
func (p *Policy) CanAccess(ctx context.Context, r *Room, userID uuid.UUID) error {
	if r.IsPublic {
		return nil
	}
	ok, err := p.members.IsMember(ctx, r.ID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// CanInvite is true only for members of a private room.
func (p *Policy) CanInvite(ctx context.Context, r *Room, userID uuid.UUID) (bool, error) {
	if r.IsPublic {
		return false, nil
	}
	return p.members.IsMember(ctx, r.ID, userID)
}

// AlreadyMember is the invite flow's duplicate check.
func (p *Policy) AlreadyMember(ctx context.Context, r *Room, candidate uuid.UUID) (bool, error) {
	return p.members.IsMember(ctx, r.ID, candidate)
}
