package room

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers both unknown rooms and unknown invitees.
	ErrNotFound = errors.New("room not found")
	// ErrForbidden means the user has no access to a private room.
	ErrForbidden = errors.New("not a member of this private room")
)

type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"is_public"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Member struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

type InviteRequest struct {
	Username string `json:"username"`
}

type InviteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
