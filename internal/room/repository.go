package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Repository reads and writes rooms and memberships. Lookups by name are
// served through a short-lived Redis cache when a client is configured;
// cache failures degrade to a plain database read.
type Repository struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
	log      *zap.Logger
}

func NewRepository(db *sql.DB, cache *redis.Client, cacheTTL time.Duration, log *zap.Logger) *Repository {
	return &Repository{db: db, cache: cache, cacheTTL: cacheTTL, log: log}
}

const roomColumns = "id, name, description, is_public, created_by, created_at, updated_at"

func (r *Repository) scanRoom(row *sql.Row) (*Room, error) {
	rm := &Room{}
	err := row.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.IsPublic, &rm.CreatedBy, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rm, nil
}

func cacheKey(name string) string {
	return "room:name:" + name
}

func (r *Repository) ByName(ctx context.Context, name string) (*Room, error) {
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, cacheKey(name)).Bytes()
		if err == nil {
			rm := &Room{}
			if err := json.Unmarshal(raw, rm); err == nil {
				return rm, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.log.Debug("room cache read failed", zap.String("room", name), zap.Error(err))
		}
	}

	query := "SELECT " + roomColumns + " FROM rooms WHERE name = $1"
	rm, err := r.scanRoom(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if raw, err := json.Marshal(rm); err == nil {
			if err := r.cache.Set(ctx, cacheKey(name), raw, r.cacheTTL).Err(); err != nil {
				r.log.Debug("room cache write failed", zap.String("room", name), zap.Error(err))
			}
		}
	}
	return rm, nil
}

func (r *Repository) ByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	query := "SELECT " + roomColumns + " FROM rooms WHERE id = $1"
	return r.scanRoom(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) Create(ctx context.Context, name, description string, isPublic bool, createdBy uuid.UUID) (*Room, error) {
	query := `
		INSERT INTO rooms (name, description, is_public, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + roomColumns
	rm, err := r.scanRoom(r.db.QueryRowContext(ctx, query, name, description, isPublic, createdBy))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Del(ctx, cacheKey(name)).Err(); err != nil {
			r.log.Debug("room cache invalidation failed", zap.String("room", name), zap.Error(err))
		}
	}
	return rm, nil
}

// ListVisible returns public rooms plus private rooms the user belongs to.
func (r *Repository) ListVisible(ctx context.Context, userID uuid.UUID) ([]Room, error) {
	query := `
		SELECT ` + roomColumns + ` FROM rooms
		WHERE is_public = true
		   OR id IN (SELECT room_id FROM room_members WHERE user_id = $1)
		ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Description, &rm.IsPublic, &rm.CreatedBy, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, rm)
	}
	return rooms, rows.Err()
}

func (r *Repository) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)"
	err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	return exists, err
}

func (r *Repository) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	query := `
		INSERT INTO room_members (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, roomID, userID)
	return err
}
