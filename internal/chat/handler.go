package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relaychat/internal/middleware"
	"relaychat/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// TokenVerifier turns a bearer credential into a verified identity.
// This keeps the chat package decoupled from the user service.
type TokenVerifier interface {
	VerifyToken(tokenString string) (uuid.UUID, string, error)
}

type Handler struct {
	registry      *Registry
	router        *Router
	verifier      TokenVerifier
	rooms         RoomResolver
	policy        AccessPolicy
	messages      *Repository
	clientTimeout time.Duration
	log           *zap.Logger
}

func NewHandler(registry *Registry, router *Router, verifier TokenVerifier, rooms RoomResolver, policy AccessPolicy, messages *Repository, clientTimeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		registry:      registry,
		router:        router,
		verifier:      verifier,
		rooms:         rooms,
		policy:        policy,
		messages:      messages,
		clientTimeout: clientTimeout,
		log:           log,
	}
}

// ServeWS verifies the credential and upgrades. Verification happens
// before the upgrade so an unauthenticated request is rejected at the
// transport level and never creates a registry entry.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		h.log.Warn("websocket connection attempt without token")
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	userID, username, err := h.verifier.VerifyToken(token)
	if err != nil {
		h.log.Warn("websocket authentication failed", zap.Error(err))
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConn(userID, username)
	h.log.Info("connection established",
		zap.String("conn_id", conn.ID()),
		zap.String("username", username))

	s := &session{
		ws:            ws,
		conn:          conn,
		registry:      h.registry,
		router:        h.router,
		clientTimeout: h.clientTimeout,
		log:           h.log,
	}
	// The request context dies when this handler returns; the session
	// lives until the socket closes.
	go s.run(context.Background())
}

// History serves the most recent messages of a room, subject to the same
// access policy as the live message path.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomName := chi.URLParam(r, "room")
	rm, err := h.rooms.ByName(r.Context(), roomName)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
		} else {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if err := h.policy.CanAccess(r.Context(), rm, userID); err != nil {
		if errors.Is(err, room.ErrForbidden) {
			http.Error(w, "access denied", http.StatusForbidden)
		} else {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	var beforeID *uuid.UUID
	if before := r.URL.Query().Get("before"); before != "" {
		id, err := uuid.Parse(before)
		if err != nil {
			http.Error(w, "invalid before id", http.StatusBadRequest)
			return
		}
		beforeID = &id
	}

	msgs, err := h.messages.History(r.Context(), rm.ID, 50, beforeID)
	if err != nil {
		h.log.Error("history query failed", zap.String("room", roomName), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
}

// Online reports the registry's presence snapshot.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{"users": h.registry.OnlineUsers()})
}
