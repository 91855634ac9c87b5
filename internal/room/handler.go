package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"relaychat/internal/middleware"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rm, err := h.Service.Create(r.Context(), &req, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rm)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rooms, err := h.Service.ListVisible(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(rooms)
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomName := chi.URLParam(r, "room")

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.Service.Invite(r.Context(), roomName, userID, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "room or user not found", http.StatusNotFound)
		case errors.Is(err, ErrForbidden):
			http.Error(w, "only members can invite", http.StatusForbidden)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	res := InviteResponse{Success: outcome == Invited}
	switch outcome {
	case Invited:
		res.Message = fmt.Sprintf("%s has been invited", req.Username)
	case InviteePublicRoom:
		res.Message = "public rooms need no invitation"
	case InviteeAlreadyMember:
		res.Message = fmt.Sprintf("%s is already a member", req.Username)
	}
	json.NewEncoder(w).Encode(res)
}
