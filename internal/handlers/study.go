package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"studymate-backend/internal/middleware"
	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

type StudyHandler struct {
	study *services.StudyService
}

func NewStudyHandler(study *services.StudyService) *StudyHandler {
	return &StudyHandler{study: study}
}

type generateRequest struct {
	Type           models.InputType `json:"type"`
	Content        string           `json:"content"`
	Topic          string           `json:"topic"`
	OutputLanguage string           `json:"outputLanguage"`
	Title          string           `json:"title"`
	AIPrompt       string           `json:"aiPrompt"`
	LocalOnly      bool             `json:"localOnly"`
}

func (g generateRequest) toService() services.GenerateRequest {
	return services.GenerateRequest{
		Type:           g.Type,
		Content:        g.Content,
		Topic:          g.Topic,
		OutputLanguage: g.OutputLanguage,
		Title:          g.Title,
		AIPrompt:       g.AIPrompt,
		LocalOnly:      g.LocalOnly,
	}
}

// Generate accepts either a JSON body or a multipart form whose "file"
// part carries the upload for audio, video and document inputs.
func (h *StudyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req services.GenerateRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if r.ContentLength > services.MaxUploadBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 100MB limit", r))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadBytes+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
			return
		}
		localOnly, _ := strconv.ParseBool(r.FormValue("localOnly"))
		req = generateRequest{
			Type:           models.InputType(r.FormValue("type")),
			Content:        r.FormValue("content"),
			Topic:          r.FormValue("topic"),
			OutputLanguage: r.FormValue("outputLanguage"),
			Title:          r.FormValue("title"),
			AIPrompt:       r.FormValue("aiPrompt"),
			LocalOnly:      localOnly,
		}.toService()

		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			req.File = file
			req.FileName = header.Filename
			req.FileSize = header.Size
		}
	} else {
		var body generateRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		req = body.toService()
	}
	req.RequestID = requestID(r)

	resp, err := h.study.Generate(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StudyHandler) Materials(w http.ResponseWriter, r *http.Request) {
	materials := h.study.Materials(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("topic"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"materials": materials})
}

func (h *StudyHandler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.study.DeleteMaterial(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StudyHandler) Quizzes(w http.ResponseWriter, r *http.Request) {
	quizzes := h.study.Quizzes(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("topic"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"quizzes": quizzes})
}

func (h *StudyHandler) SubmitQuizResult(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitQuizResultRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.study.SubmitQuizResult(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *StudyHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"inputs":  h.study.InputHistory(r.Context(), userID),
		"quizzes": h.study.QuizHistory(r.Context(), userID),
	})
}

func (h *StudyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.study.Stats(r.Context(), middleware.GetUserID(r.Context())))
}

func (h *StudyHandler) AddStudyTime(w http.ResponseWriter, r *http.Request) {
	var req models.StudyTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	daily, err := h.study.AddStudyTime(r.Context(), middleware.GetUserID(r.Context()), req.Minutes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dailyStudyTimes": daily})
}

// ClearData resets the caller's study data; the profile survives with its
// counters zeroed.
func (h *StudyHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	user, err := h.study.ClearAllData(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profile": user})
}
