package search

import (
	"encoding/json"
	"net/http"
)

type Handler struct {
	client *Client
}

func NewHandler(c *Client) *Handler {
	return &Handler{client: c}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	docs, err := h.client.Search(r.Context(), q, 20)
	if err != nil {
		http.Error(w, "search unavailable", http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"hits": docs})
}
