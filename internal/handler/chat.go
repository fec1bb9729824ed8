package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

// PromptRequest is the body of the prompt-driven endpoints
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// ChatHandler serves the prompt-driven endpoints
type ChatHandler struct {
	chat   *service.ChatService
	audit  *audit.Logger
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *service.ChatService, auditLog *audit.Logger, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &ChatHandler{chat: chat, audit: auditLog, logger: logger}
}

// Chat handles POST /api/v1/chat/ai
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	status, body, err := h.dispatch(r.Context(), middleware.GetUserFromContext(r.Context()), req.Prompt)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, body)
}

// ParseRule handles POST /api/v1/rules/nlp. The admin check runs before the
// prompt reaches the oracle.
func (h *ChatHandler) ParseRule(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	var req PromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	id, parsed, err := h.chat.CreateFromPrompt(r.Context(), user, req.Prompt, service.SourceNLP)
	if err != nil {
		if parsed.Rejected() {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": parsed.Error})
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogRuleChange(r.Context(), user.Username, user.Department, "rule.create", id)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"ruleId":     id,
		"parsedRule": parsed,
		"message":    "Rule created successfully from prompt",
	})
}

// dispatch runs one prompt and shapes the reply for the wire. The returned
// error is non-nil only for failures that go through respondError.
func (h *ChatHandler) dispatch(ctx context.Context, user *domain.AuthenticatedUser, prompt string) (int, map[string]interface{}, error) {
	reply, err := h.chat.Dispatch(ctx, user, prompt)
	if err != nil {
		if reply != nil && reply.ParsedRule.Rejected() && errors.Is(err, domain.ErrValidation) {
			return http.StatusBadRequest, map[string]interface{}{"success": false, "error": reply.ParsedRule.Error}, nil
		}
		return 0, nil, err
	}

	switch reply.Intent {
	case domain.IntentCreate:
		h.audit.LogRuleChange(ctx, user.Username, user.Department, "rule.create", reply.RuleID)
		return http.StatusCreated, map[string]interface{}{
			"success":    true,
			"ruleId":     reply.RuleID,
			"parsedRule": reply.ParsedRule,
			"message":    reply.Message,
		}, nil
	case domain.IntentList:
		rules := reply.Rules
		if rules == nil {
			rules = []domain.RuleWithDetails{}
		}
		return http.StatusOK, map[string]interface{}{
			"success": true,
			"count":   reply.Total,
			"data":    rules,
		}, nil
	default:
		return http.StatusOK, map[string]interface{}{"success": true, "message": reply.Message}, nil
	}
}
