package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studymate-backend/internal/middleware"
	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

// VideoLister is the channel listing side of the content API.
type VideoLister interface {
	ChannelVideos(ctx context.Context, pageToken string) (*models.VideoPage, error)
	LatestLiveVideo(ctx context.Context) (*models.Video, error)
}

type LiveHandler struct {
	live   *services.LiveClassService
	videos VideoLister
}

// NewLiveHandler builds the live class routes. videos may be nil.
func NewLiveHandler(live *services.LiveClassService, videos VideoLister) *LiveHandler {
	return &LiveHandler{live: live, videos: videos}
}

// Start joins the given video, or the channel's latest live video when
// none is named.
func (h *LiveHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartLiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.VideoID) == "" && h.videos != nil {
		video, err := h.videos.LatestLiveVideo(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		req.VideoID = video.ID
		if req.Context == "" {
			req.Context = strings.TrimSpace(video.Title + ". " + video.Description)
		}
	}

	snap, err := h.live.Start(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *LiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.live.Get(middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *LiveHandler) Play(w http.ResponseWriter, r *http.Request) {
	snap, err := h.live.Play(middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *LiveHandler) Pause(w http.ResponseWriter, r *http.Request) {
	snap, err := h.live.Pause(middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *LiveHandler) Stop(w http.ResponseWriter, r *http.Request) {
	snap, err := h.live.Stop(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *LiveHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := h.live.Ask(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Answer: answer})
}

func (h *LiveHandler) Videos(w http.ResponseWriter, r *http.Request) {
	if h.videos == nil {
		handleServiceError(w, r, &services.UpstreamError{Endpoint: "channel-videos", Message: "video listing is not configured"})
		return
	}
	page, err := h.videos.ChannelVideos(r.Context(), r.URL.Query().Get("pageToken"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *LiveHandler) LatestLive(w http.ResponseWriter, r *http.Request) {
	if h.videos == nil {
		handleServiceError(w, r, &services.UpstreamError{Endpoint: "latest-live", Message: "video listing is not configured"})
		return
	}
	video, err := h.videos.LatestLiveVideo(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}
