package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the persisted chat message. The router never mutates a
// message after the insert returns.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	RoomID      uuid.UUID   `json:"room_id"`
	UserID      uuid.UUID   `json:"user_id"`
	Username    string      `json:"username,omitempty"` // denormalized on history reads
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a message and returns it with the server-assigned id
// and timestamp, the single source of truth for what gets broadcast.
func (r *Repository) Insert(ctx context.Context, roomID, userID uuid.UUID, content string, msgType MessageType) (*Message, error) {
	m := &Message{
		RoomID:      roomID,
		UserID:      userID,
		Content:     content,
		MessageType: msgType,
	}
	query := `
		INSERT INTO messages (room_id, user_id, content, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, roomID, userID, content, string(msgType)).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// History returns the most recent messages in a room, newest first,
// optionally only those older than beforeID for paging.
func (r *Repository) History(ctx context.Context, roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT m.id, m.room_id, m.user_id, u.username, m.content, m.message_type, m.created_at
		FROM messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1`
	args := []any{roomID}
	if beforeID != nil {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)`
		args = append(args, *beforeID)
	}
	query += fmt.Sprintf(" ORDER BY m.created_at DESC LIMIT $%d", len(args)+1)

	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var msgType string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Content, &msgType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MessageType = MessageType(msgType)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
