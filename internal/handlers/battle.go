package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"studymate-backend/internal/middleware"
	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

type BattleHandler struct {
	battles *services.BattleService
}

func NewBattleHandler(battles *services.BattleService) *BattleHandler {
	return &BattleHandler{battles: battles}
}

func (h *BattleHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartBattleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	battle, err := h.battles.StartBattle(r.Context(), middleware.GetUserID(r.Context()), req.QuizID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, battle)
}

func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	battle, err := h.battles.GetBattle(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, battle)
}

// Answer returns 202: the round resolves once the opponent answers, which
// is pushed over the websocket as battle_round.
func (h *BattleHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req models.BattleAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	battle, err := h.battles.SubmitAnswer(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, battle)
}

func (h *BattleHandler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"battles": h.battles.History(r.Context(), middleware.GetUserID(r.Context())),
	})
}
