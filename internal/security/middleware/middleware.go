package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/auth"
	"github.com/aryan0dhankhar/rulemaster/internal/security/ratelimit"
)

// ChatSocketPath accepts the token as an access_token query parameter since
// browsers cannot set headers on websocket upgrades.
const ChatSocketPath = "/api/v1/chat/ws"

type UserContextKey struct{}

// TokenVerifier validates a raw bearer token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

func isPublic(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" ||
		strings.HasPrefix(path, "/api/v1/auth/")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func JWTMiddleware(verifier TokenVerifier, authz *security.AuthorizationService, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && r.URL.Path == ChatSocketPath {
				if t := r.URL.Query().Get("access_token"); t != "" {
					authHeader = "Bearer " + t
				}
			}
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid auth")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				log.Warn("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user := authz.Identify(claims.PreferredUsername, claims.AllRoles(), claims.Groups)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RateLimitMiddleware limits authenticated callers per username and anonymous
// callers per client address.
func RateLimitMiddleware(limiter ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key := "ip:" + ClientIP(r)
			if user := GetUserFromContext(r.Context()); user != nil {
				key = "user:" + user.Username
			}

			if !limiter.Allow(r.Context(), key) {
				log.Warn("rate limit exceeded", slog.String("key", key), slog.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimit applies a strict per-address budget to the password grant
func LoginRateLimit(limiter *ratelimit.MemoryLimiter, maxAttempts int, window time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/v1/auth/login" {
				next.ServeHTTP(w, r)
				return
			}
			ip := ClientIP(r)
			if !limiter.AllowStrict("login:"+ip, maxAttempts, window) {
				log.Warn("login rate limit exceeded", slog.String("ip", ip))
				writeError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				username, department := "", ""
				if user := GetUserFromContext(r.Context()); user != nil {
					username, department = user.Username, user.Department
				}
				if !strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
					auditLog.LogAction(r.Context(), username, department, strings.ToLower(r.Method), "api", r.URL.Path, "initiated", "")
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func WithUser(ctx context.Context, user *domain.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, UserContextKey{}, user)
}

func GetUserFromContext(ctx context.Context) *domain.AuthenticatedUser {
	if u, ok := ctx.Value(UserContextKey{}).(*domain.AuthenticatedUser); ok {
		return u
	}
	return nil
}
