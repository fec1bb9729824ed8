package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxBodyBytes caps JSON request bodies read by the validators
const maxBodyBytes = 1 << 20

// ValidateJSONContentType middleware ensures POST/PUT requests have JSON content type
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			// Bodyless toggles and logouts are fine
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSONFields rejects bodies that are not a JSON object carrying every
// named field as a non-empty value. The body is restored for the handler.
func RequireJSONFields(log *slog.Logger, fields ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(raw))

			var payload map[string]json.RawMessage
			if err := json.Unmarshal(raw, &payload); err != nil {
				log.Warn("invalid json payload",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusBadRequest, "Invalid JSON body")
				return
			}

			for _, field := range fields {
				v, exists := payload[field]
				if !exists || isBlank(v) {
					log.Warn("missing required field",
						slog.String("path", r.URL.Path),
						slog.String("field", field),
					)
					writeError(w, http.StatusBadRequest, field+" is required")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isBlank(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	if s == "" || s == "null" {
		return true
	}
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return strings.TrimSpace(str) == ""
	}
	return false
}

// SanitizeInputs middleware rejects markup characters in query params and traversal in paths
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dangerousChars := []string{"<", ">", "\"", "'"}
			for key, values := range r.URL.Query() {
				if key == "access_token" {
					continue
				}
				for _, val := range values {
					for _, char := range dangerousChars {
						if strings.Contains(val, char) {
							log.Warn("suspicious input detected",
								slog.String("path", r.URL.Path),
								slog.String("param", key),
								slog.String("pattern", char),
							)
							writeError(w, http.StatusBadRequest, "Invalid input: dangerous characters detected")
							return
						}
					}
				}
			}

			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected",
					slog.String("path", r.URL.Path),
				)
				writeError(w, http.StatusBadRequest, "Invalid path")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
