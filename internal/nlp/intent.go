package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

const intentTemplate = `You are a natural language intent classifier for a rule engine.

Classify the prompt as one of:
- create (if it's for making a new rule)
- list (if it's asking to show/list rules)
- casual (if it's not related to rules)

Only return one word.

Prompt:
%q`

const casualTemplate = `You are a helpful assistant. Answer the user's general query briefly and clearly.

User asked:
%q`

// IntentClassifier buckets chat prompts and answers the ones unrelated to rules
type IntentClassifier struct {
	oracle Oracle
	logger *slog.Logger
}

// NewIntentClassifier creates a classifier backed by the given oracle
func NewIntentClassifier(oracle Oracle, logger *slog.Logger) *IntentClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentClassifier{oracle: oracle, logger: logger}
}

// Classify returns create or list when the oracle says so, casual for anything else
func (c *IntentClassifier) Classify(ctx context.Context, prompt string) (domain.Intent, error) {
	raw, err := c.oracle.Complete(ctx, fmt.Sprintf(intentTemplate, prompt))
	if err != nil {
		return "", fmt.Errorf("failed to classify prompt: %w", err)
	}

	intent := ParseIntent(raw)
	c.logger.Debug("prompt classified", slog.String("intent", string(intent)))
	return intent, nil
}

// Answer produces a short free-text reply for a casual prompt
func (c *IntentClassifier) Answer(ctx context.Context, prompt string) (string, error) {
	raw, err := c.oracle.Complete(ctx, fmt.Sprintf(casualTemplate, prompt))
	if err != nil {
		return "", fmt.Errorf("failed to answer prompt: %w", err)
	}
	return strings.TrimSpace(raw), nil
}

// ParseIntent maps a raw oracle answer onto an Intent
func ParseIntent(raw string) domain.Intent {
	switch domain.Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.IntentCreate:
		return domain.IntentCreate
	case domain.IntentList:
		return domain.IntentList
	default:
		return domain.IntentCasual
	}
}
