package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// UnavailableProvider is selected when no oracle credentials are configured.
// Every call fails with domain.ErrUpstream so rule CRUD keeps working while
// prompt-driven endpoints report the missing dependency.
type UnavailableProvider struct {
	Reason string
}

// Complete always fails
func (p UnavailableProvider) Complete(_ context.Context, _ string) (string, error) {
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = "oracle not configured"
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUpstream, reason)
}

// Name identifies the provider
func (p UnavailableProvider) Name() string {
	return "unavailable"
}
