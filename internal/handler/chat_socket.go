package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
)

const (
	socketPingInterval = 15 * time.Second
	socketWriteWait    = 5 * time.Second
	socketReadLimit    = 64 * 1024
)

// ChatSocketHandler serves the chat protocol over a websocket. Each text frame
// carries a PromptRequest and is answered by one JSON frame.
type ChatSocketHandler struct {
	chat           *ChatHandler
	logger         *slog.Logger
	allowedOrigins []string
}

// NewChatSocketHandler creates a new websocket chat handler
func NewChatSocketHandler(chat *ChatHandler, allowedOrigins []string, logger *slog.Logger) *ChatSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatSocketHandler{chat: chat, logger: logger, allowedOrigins: allowedOrigins}
}

func (h *ChatSocketHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /api/v1/chat/ws
func (h *ChatSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(socketReadLimit)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(socketPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(socketWriteWait))
			case <-done:
				return
			}
		}
	}()

	ctx := r.Context()
	h.logger.Debug("chat socket opened", slog.String("username", user.Username))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("chat socket closed", slog.String("username", user.Username), slog.String("reason", err.Error()))
			}
			return
		}

		var req PromptRequest
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &req); err != nil {
			frame = map[string]interface{}{"success": false, "error": "invalid message"}
		} else {
			frame = h.answer(r, req.Prompt)
		}

		_ = ws.SetWriteDeadline(time.Now().Add(socketWriteWait))
		if err := ws.WriteJSON(frame); err != nil {
			h.logger.Debug("chat socket write failed", slog.String("error", err.Error()))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// answer runs a prompt and always yields a frame; status codes become a field
func (h *ChatSocketHandler) answer(r *http.Request, prompt string) map[string]interface{} {
	ctx := r.Context()
	status, body, err := h.chat.dispatch(ctx, middleware.GetUserFromContext(ctx), prompt)
	if err != nil {
		status = statusFor(err)
		msg := err.Error()
		if status >= 500 {
			h.logger.Error("chat socket prompt failed", slog.String("error", msg))
			msg = "internal server error"
			if status == http.StatusBadGateway {
				msg = "upstream service unavailable"
			}
		}
		body = map[string]interface{}{"success": false, "error": msg}
	}
	body["status"] = status
	return body
}
