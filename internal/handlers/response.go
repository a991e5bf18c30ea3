package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID(r),
		},
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
		notFound   *services.NotFoundError
		unauth     *services.UnauthorizedError
		limited    *services.RateLimitError
		genFailed  *services.GenerationFailedError
		upstream   *services.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &unauth):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauth.Message, r))
	case errors.As(err, &limited):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", limited.Message, r))
	case errors.As(err, &genFailed):
		writeJSON(w, http.StatusBadGateway, errorResp("GENERATION_FAILED", genFailed.Message, r))
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", upstream.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
