package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"relaychat/internal/user"
)

// InviteOutcome distinguishes the invite flow's non-error results from
// its failures: a public room needing no invitation and a duplicate
// invite are user-visible outcomes, not errors.
type InviteOutcome int

const (
	Invited InviteOutcome = iota
	InviteePublicRoom
	InviteeAlreadyMember
)

// Store is the slice of the repository the service needs.
type Store interface {
	ByName(ctx context.Context, name string) (*Room, error)
	Create(ctx context.Context, name, description string, isPublic bool, createdBy uuid.UUID) (*Room, error)
	ListVisible(ctx context.Context, userID uuid.UUID) ([]Room, error)
	AddMember(ctx context.Context, roomID, userID uuid.UUID) error
}

// UserDirectory resolves invitees by username.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*user.User, error)
}

type Service struct {
	store  Store
	policy *Policy
	users  UserDirectory
	log    *zap.Logger
}

func NewService(store Store, policy *Policy, users UserDirectory, log *zap.Logger) *Service {
	return &Service{store: store, policy: policy, users: users, log: log}
}

func (s *Service) Create(ctx context.Context, req *CreateRequest, createdBy uuid.UUID) (*Room, error) {
	if req.Name == "" || len(req.Name) > 100 {
		return nil, fmt.Errorf("invalid room name")
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	rm, err := s.store.Create(ctx, req.Name, req.Description, isPublic, createdBy)
	if err != nil {
		return nil, err
	}

	// The creator of a private room must be a member or they could never
	// enter their own room.
	if !rm.IsPublic {
		if err := s.store.AddMember(ctx, rm.ID, createdBy); err != nil {
			return nil, err
		}
	}

	s.log.Info("room created",
		zap.String("room", rm.Name),
		zap.Bool("public", rm.IsPublic),
		zap.String("created_by", createdBy.String()))
	return rm, nil
}

func (s *Service) ListVisible(ctx context.Context, userID uuid.UUID) ([]Room, error) {
	return s.store.ListVisible(ctx, userID)
}

// Invite adds the named user to a private room. The inviter must be a
// member; unknown rooms and unknown usernames return ErrNotFound, a
// non-member inviter returns ErrForbidden.
func (s *Service) Invite(ctx context.Context, roomName string, inviterID uuid.UUID, inviteeUsername string) (InviteOutcome, error) {
	rm, err := s.store.ByName(ctx, roomName)
	if err != nil {
		return 0, err
	}

	if rm.IsPublic {
		return InviteePublicRoom, nil
	}

	canInvite, err := s.policy.CanInvite(ctx, rm, inviterID)
	if err != nil {
		return 0, err
	}
	if !canInvite {
		return 0, ErrForbidden
	}

	invitee, err := s.users.FindByUsername(ctx, inviteeUsername)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	already, err := s.policy.AlreadyMember(ctx, rm, invitee.ID)
	if err != nil {
		return 0, err
	}
	if already {
		return InviteeAlreadyMember, nil
	}

	if err := s.store.AddMember(ctx, rm.ID, invitee.ID); err != nil {
		return 0, err
	}

	s.log.Info("user invited to room",
		zap.String("room", rm.Name),
		zap.String("invitee", inviteeUsername),
		zap.String("inviter", inviterID.String()))
	return Invited, nil
}
