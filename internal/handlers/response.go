package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIError is the machine-readable error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// RespondJSON writes a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response failed", "path", r.URL.Path, "error", err)
	}
}

// RespondError writes a structured error with a reason code.
func RespondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	RespondJSON(w, r, status, errorResponse{Error: APIError{Code: code, Message: message}})
}

func RespondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	RespondError(w, r, http.StatusBadRequest, "validation_error", message)
}

func RespondNotFound(w http.ResponseWriter, r *http.Request, message string) {
	RespondError(w, r, http.StatusNotFound, "not_found", message)
}

func RespondInternalError(w http.ResponseWriter, r *http.Request, message string) {
	RespondError(w, r, http.StatusInternalServerError, "internal_error", message)
}

func RespondServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	RespondError(w, r, http.StatusServiceUnavailable, "service_unavailable", message)
}
