package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/metrics"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
)

const (
	SourceChat   = "chat"
	SourceNLP    = "nlp"
	SourceManual = "manual"

	chatListLimit = 100
)

// IntentDetector buckets prompts and answers casual ones
type IntentDetector interface {
	Classify(ctx context.Context, prompt string) (domain.Intent, error)
	Answer(ctx context.Context, prompt string) (string, error)
}

// RuleGenerator turns a prompt into a parsed rule, optionally scoped to a department
type RuleGenerator interface {
	GenerateRule(ctx context.Context, prompt, department string) (*domain.ParsedRule, error)
}

// ChatReply is the outcome of one dispatched prompt. Which fields are set depends on Intent.
type ChatReply struct {
	Intent     domain.Intent
	RuleID     string
	ParsedRule *domain.ParsedRule
	Rules      []domain.RuleWithDetails
	Total      int
	Message    string
}

// ChatService routes prompts to rule creation, rule listing or a casual answer
type ChatService struct {
	intents IntentDetector
	parser  RuleGenerator
	rules   *RuleService
	authz   *security.AuthorizationService
	access  *security.RuleAccess
	scoped  bool
	logger  *slog.Logger
}

// NewChatService creates a chat service. scoped constrains parsing to the
// caller's department for callers that are not super-admins.
func NewChatService(
	intents IntentDetector,
	parser RuleGenerator,
	rules *RuleService,
	authz *security.AuthorizationService,
	access *security.RuleAccess,
	scoped bool,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		intents: intents,
		parser:  parser,
		rules:   rules,
		authz:   authz,
		access:  access,
		scoped:  scoped,
		logger:  logger,
	}
}

// Dispatch classifies prompt and acts on the intent
func (s *ChatService) Dispatch(ctx context.Context, user *domain.AuthenticatedUser, prompt string) (*ChatReply, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: no caller identity", domain.ErrUnauthorized)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	intent, err := s.intents.Classify(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to classify prompt: %w", err)
	}
	metrics.ObserveIntent(string(intent))

	switch intent {
	case domain.IntentCreate:
		id, parsed, err := s.CreateFromPrompt(ctx, user, prompt, SourceChat)
		if err != nil {
			return &ChatReply{Intent: intent, ParsedRule: parsed}, err
		}
		return &ChatReply{
			Intent:     intent,
			RuleID:     id,
			ParsedRule: parsed,
			Message:    "Rule created successfully from prompt",
		}, nil

	case domain.IntentList:
		department, err := s.access.ScopeDepartment(user, nil)
		if err != nil {
			return nil, err
		}
		page, err := s.rules.GetAllRules(ctx, 1, chatListLimit, nil, department)
		if err != nil {
			return nil, fmt.Errorf("failed to list rules: %w", err)
		}
		return &ChatReply{Intent: intent, Rules: page.Rules, Total: page.Total}, nil

	default:
		answer, err := s.intents.Answer(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to answer prompt: %w", err)
		}
		return &ChatReply{Intent: domain.IntentCasual, Message: answer}, nil
	}
}

// CreateFromPrompt parses prompt and stores the rule. The admin check runs
// before the oracle is called. A refused prompt returns the parsed result
// together with a domain.ErrValidation error. A caller who is not a super-admin
// and whose parsed rule names another department gets domain.ErrForbidden.
func (s *ChatService) CreateFromPrompt(ctx context.Context, user *domain.AuthenticatedUser, prompt, source string) (string, *domain.ParsedRule, error) {
	if err := s.authz.RequireAdmin(user); err != nil {
		return "", nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	department := s.access.ParseScope(user, s.scoped)
	parsed, err := s.parser.GenerateRule(ctx, prompt, department)
	if err != nil {
		s.logger.Error("rule generation failed",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return "", nil, fmt.Errorf("failed to generate rule: %w", err)
	}
	if parsed.Rejected() {
		s.logger.Info("prompt refused by parser",
			slog.String("username", user.Username),
			slog.String("reason", parsed.Error),
		)
		return "", parsed, fmt.Errorf("%w: %s", domain.ErrValidation, parsed.Error)
	}
	if parsed == nil {
		return "", nil, fmt.Errorf("%w: parser returned no rule", domain.ErrValidation)
	}
	if !user.IsSuperAdmin {
		if parsed.Rule.Department == "" {
			parsed.Rule.Department = user.Department
		} else if !user.CanSeeDepartment(parsed.Rule.Department) {
			s.logger.Warn("parsed rule outside caller department",
				slog.String("username", user.Username),
				slog.String("caller_department", user.Department),
				slog.String("department", parsed.Rule.Department),
			)
			return "", parsed, fmt.Errorf("%w: rule department must be %s", domain.ErrForbidden, user.Department)
		}
	}

	id, err := s.rules.ProcessAndStoreRule(ctx, parsed, user.Username)
	if err != nil {
		return "", parsed, err
	}
	metrics.ObserveRuleCreated(source)
	return id, parsed, nil
}
