package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError is the single exit for failed requests. 4xx bodies carry the
// error text; 5xx bodies never do.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusBadGateway:
		logger.Error("upstream call failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "upstream service unavailable")
	case status >= 500:
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal server error")
	default:
		writeError(w, status, err.Error())
	}
}

// decodeJSON reads a JSON body into v, failing with domain.ErrValidation
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, errors.New("invalid request body"))
	}
	return nil
}
