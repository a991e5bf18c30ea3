package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"studymate-backend/internal/middleware"
	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

type CommunityHandler struct {
	community *services.CommunityService
}

func NewCommunityHandler(community *services.CommunityService) *CommunityHandler {
	return &CommunityHandler{community: community}
}

func (h *CommunityHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": h.community.Posts(r.Context(), middleware.GetUserID(r.Context())),
	})
}

func (h *CommunityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.community.CreatePost(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *CommunityHandler) Like(w http.ResponseWriter, r *http.Request) {
	post, err := h.community.Like(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}
