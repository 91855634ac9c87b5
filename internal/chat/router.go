package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"relaychat/internal/room"
	"relaychat/internal/search"
)

const maxContentLen = 4000

// RoomResolver, AccessPolicy and MessageStore are the slices of the
// persistence layer the router depends on, kept as interfaces so the
// protocol logic tests against fakes.
type RoomResolver interface {
	ByName(ctx context.Context, name string) (*room.Room, error)
}

type AccessPolicy interface {
	CanAccess(ctx context.Context, r *room.Room, userID uuid.UUID) error
}

type MessageStore interface {
	Insert(ctx context.Context, roomID, userID uuid.UUID, content string, msgType MessageType) (*Message, error)
}

// Router dispatches one connection's inbound frames. A single router
// instance is shared across connections; per-connection ordering comes
// from each receive loop calling Handle sequentially.
type Router struct {
	registry *Registry
	rooms    RoomResolver
	policy   AccessPolicy
	messages MessageStore
	indexer  search.Indexer
	log      *zap.Logger
	now      func() time.Time
}

func NewRouter(registry *Registry, rooms RoomResolver, policy AccessPolicy, messages MessageStore, indexer search.Indexer, log *zap.Logger) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		policy:   policy,
		messages: messages,
		indexer:  indexer,
		log:      log,
		now:      time.Now,
	}
}

// Handle processes one inbound frame. Policy denials, lookups misses and
// storage failures are answered with frames on the same connection; none
// of them terminate the session.
func (rt *Router) Handle(ctx context.Context, c *Conn, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		rt.log.Warn("malformed frame",
			zap.String("username", c.Username()),
			zap.Error(err))
		rt.replyError(c, "invalid frame", CodeBadRequest)
		return
	}

	switch frame.Type {
	case typeJoinRoom:
		rt.handleJoin(ctx, c, frame.Room)
	case typeSendMessage:
		rt.handleSend(ctx, c, frame)
	case typeLeaveRoom:
		rt.handleLeave(c, frame.Room)
	case typePing:
		rt.handlePing(c, frame.Timestamp)
	case typeWebRTCOffer, typeWebRTCAnswer, typeWebRTCICE:
		rt.handleSignal(c, frame)
	default:
		rt.log.Warn("unknown frame type",
			zap.String("username", c.Username()),
			zap.String("frame_type", frame.Type))
		rt.replyError(c, "unknown frame type", CodeBadRequest)
	}
}

func (rt *Router) handleJoin(ctx context.Context, c *Conn, roomName string) {
	if !c.joinLimiter.tryAdmit(rt.now()) {
		rt.replyRateLimited(c, c.joinLimiter)
		return
	}

	if roomName == "" || len(roomName) > 100 {
		rt.replyError(c, "invalid room name", CodeBadRequest)
		return
	}

	rm := rt.resolveRoom(ctx, c, roomName)
	if rm == nil {
		return
	}

	if err := rt.policy.CanAccess(ctx, rm, c.UserID()); err != nil {
		if errors.Is(err, room.ErrForbidden) {
			rt.log.Warn("join denied",
				zap.String("username", c.Username()),
				zap.String("room", roomName))
			rt.replyError(c, "you are not a member of this private room", CodeDenied)
		} else {
			rt.log.Error("membership check failed", zap.String("room", roomName), zap.Error(err))
			rt.replyError(c, "internal error", CodeInternal)
		}
		return
	}

	added := rt.registry.AddRoom(c.ID(), rm.Name)

	rt.registry.SendToConn(c.ID(), encodeFrame(roomJoinedFrame{
		Type:     typeRoomJoined,
		Room:     rm.Name,
		UserID:   c.UserID().String(),
		Username: c.Username(),
	}))

	if added {
		rt.registry.FanoutExcept(rm.Name, c.ID(), encodeFrame(presenceFrame{
			Type:     typeUserJoined,
			Room:     rm.Name,
			UserID:   c.UserID().String(),
			Username: c.Username(),
		}))
		rt.log.Info("user joined room",
			zap.String("username", c.Username()),
			zap.String("room", rm.Name))
	}
}

func (rt *Router) handleSend(ctx context.Context, c *Conn, frame clientFrame) {
	if !c.sendLimiter.tryAdmit(rt.now()) {
		rt.log.Warn("send rate limit exceeded", zap.String("username", c.Username()))
		rt.replyRateLimited(c, c.sendLimiter)
		return
	}

	if frame.Content == "" {
		rt.replyError(c, "message content cannot be empty", CodeBadRequest)
		return
	}
	if len(frame.Content) > maxContentLen {
		rt.replyError(c, "message content too long", CodeBadRequest)
		return
	}
	msgType, err := parseMessageType(frame.MessageType)
	if err != nil {
		rt.replyError(c, err.Error(), CodeBadRequest)
		return
	}

	rm := rt.resolveRoom(ctx, c, frame.Room)
	if rm == nil {
		return
	}

	if err := rt.policy.CanAccess(ctx, rm, c.UserID()); err != nil {
		if errors.Is(err, room.ErrForbidden) {
			rt.replyError(c, "you are not a member of this private room", CodeDenied)
		} else {
			rt.log.Error("membership check failed", zap.String("room", rm.Name), zap.Error(err))
			rt.replyError(c, "internal error", CodeInternal)
		}
		return
	}

	// The insert is awaited even if the session is tearing down: once a
	// frame is accepted the message must reach the other room members.
	msg, err := rt.messages.Insert(context.WithoutCancel(ctx), rm.ID, c.UserID(), frame.Content, msgType)
	if err != nil {
		rt.log.Error("message insert failed",
			zap.String("room", rm.Name),
			zap.String("username", c.Username()),
			zap.Error(err))
		rt.replyError(c, "failed to send message", CodeInternal)
		return
	}

	rt.indexer.IndexMessage(search.Document{
		ID:          msg.ID.String(),
		RoomID:      rm.ID.String(),
		RoomName:    rm.Name,
		AuthorID:    c.UserID().String(),
		AuthorName:  c.Username(),
		Content:     msg.Content,
		MessageType: string(msg.MessageType),
		CreatedAt:   msg.CreatedAt.Unix(),
	})

	rt.registry.Fanout(rm.Name, encodeFrame(messageFrame{
		Type:        typeMessage,
		ID:          msg.ID.String(),
		Room:        rm.Name,
		UserID:      c.UserID().String(),
		Username:    c.Username(),
		Content:     msg.Content,
		MessageType: string(msg.MessageType),
		Timestamp:   msg.CreatedAt,
	}))

	rt.log.Debug("message sent",
		zap.String("username", c.Username()),
		zap.String("room", rm.Name))
}

func (rt *Router) handleLeave(c *Conn, roomName string) {
	// Leaving needs no access check and is idempotent.
	removed := rt.registry.RemoveRoom(c.ID(), roomName)
	if removed {
		rt.registry.FanoutExcept(roomName, c.ID(), encodeFrame(presenceFrame{
			Type:     typeUserLeft,
			Room:     roomName,
			UserID:   c.UserID().String(),
			Username: c.Username(),
		}))
		rt.log.Info("user left room",
			zap.String("username", c.Username()),
			zap.String("room", roomName))
	}
}

func (rt *Router) handlePing(c *Conn, timestamp *uint64) {
	// Heartbeats are never rate-gated; denying them would break the
	// liveness mechanism itself.
	c.Touch()
	rt.registry.SendToConn(c.ID(), encodeFrame(pongFrame{
		Type:      typePong,
		Timestamp: timestamp,
	}))
}

func (rt *Router) handleSignal(c *Conn, frame clientFrame) {
	target, err := uuid.Parse(frame.ToUserID)
	if err != nil {
		rt.replyError(c, "invalid target user id", CodeBadRequest)
		return
	}

	relay := encodeFrame(signalFrame{
		Type:       frame.Type,
		Room:       frame.Room,
		FromUserID: c.UserID().String(),
		ToUserID:   frame.ToUserID,
		Offer:      frame.Offer,
		Answer:     frame.Answer,
		Candidate:  frame.Candidate,
	})

	// A vanished target is a silent no-op: the signaling layer above
	// times out on its own.
	reached := rt.registry.SendToUser(frame.Room, target, relay)
	if reached == 0 {
		rt.log.Debug("signal target not connected",
			zap.String("room", frame.Room),
			zap.String("to_user_id", frame.ToUserID))
	} else {
		rt.log.Debug("signal relayed",
			zap.String("frame_type", frame.Type),
			zap.String("room", frame.Room),
			zap.Int("connections", reached))
	}
}

// resolveRoom looks the room up by name and answers the connection
// directly on failure. Returns nil when the caller should stop.
func (rt *Router) resolveRoom(ctx context.Context, c *Conn, roomName string) *room.Room {
	rm, err := rt.rooms.ByName(ctx, roomName)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			rt.replyError(c, "room not found", CodeNotFound)
		} else {
			rt.log.Error("room lookup failed", zap.String("room", roomName), zap.Error(err))
			rt.replyError(c, "internal error", CodeInternal)
		}
		return nil
	}
	return rm
}

func (rt *Router) replyError(c *Conn, message string, code int) {
	rt.registry.SendToConn(c.ID(), encodeFrame(errorFrame{
		Type:    typeError,
		Message: message,
		Code:    code,
	}))
}

func (rt *Router) replyRateLimited(c *Conn, w *rateWindowCounter) {
	retry := uint64(w.retryAfter(rt.now()).Seconds() + 0.5)
	if retry == 0 {
		retry = 1
	}
	rt.registry.SendToConn(c.ID(), encodeFrame(rateLimitedFrame{
		Type:       typeRateLimited,
		RetryAfter: retry,
	}))
}
