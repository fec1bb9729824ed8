package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// Oracle is a single-shot text generation backend
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const ruleParserTemplate = `You are a rule parser. Convert the user input into structured JSON.

Format:
{
  "rule": { "title": "...", "department": "..." },
  "logic": "(cond1 AND cond2)",
  "conditions": [
    { "id": "cond1", "field": "...", "operator": "...", "value": "..." }
  ],
  "actions": [
    { "type": "...", "value": "..." }
  ]
}

Use symbolic operators like >, <, =, !=, >=, <=, IN, NOT IN, LIKE etc.
%s
User Rule:
%q`

const departmentConstraint = `
The rule must belong to the "%s" department. Set rule.department to "%s".
If the user rule is not about the %s department, do not generate a rule and
return exactly { "error": "Rule does not belong to the %s department" } instead.
`

// RuleParser turns natural-language rule descriptions into ParsedRule values
type RuleParser struct {
	oracle Oracle
	logger *slog.Logger
}

// NewRuleParser creates a parser backed by the given oracle
func NewRuleParser(oracle Oracle, logger *slog.Logger) *RuleParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleParser{oracle: oracle, logger: logger}
}

// BuildRulePrompt renders the parser instruction for prompt, optionally scoped to a department
func BuildRulePrompt(prompt, department string) string {
	constraint := ""
	if d := strings.TrimSpace(department); d != "" {
		constraint = fmt.Sprintf(departmentConstraint, d, d, d, d)
	}
	return fmt.Sprintf(ruleParserTemplate, constraint, prompt)
}

// GenerateRule asks the oracle for a structured rule. An oracle refusal is
// returned as a ParsedRule with Error set, not as a Go error.
func (p *RuleParser) GenerateRule(ctx context.Context, prompt, department string) (*domain.ParsedRule, error) {
	raw, err := p.oracle.Complete(ctx, BuildRulePrompt(prompt, department))
	if err != nil {
		return nil, fmt.Errorf("failed to generate rule: %w", err)
	}

	parsed, err := DecodeParsedRule(raw)
	if err != nil {
		p.logger.Warn("oracle returned unusable rule output",
			slog.String("error", err.Error()),
			slog.Int("output_len", len(raw)),
		)
		return nil, err
	}

	return parsed, nil
}

// DecodeParsedRule extracts the JSON object from raw oracle text, decodes it
// and normalizes every condition operator.
func DecodeParsedRule(raw string) (*domain.ParsedRule, error) {
	span, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var parsed domain.ParsedRule
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}

	for i := range parsed.Conditions {
		parsed.Conditions[i].Operator = NormalizeOperator(parsed.Conditions[i].Operator)
	}
	return &parsed, nil
}

// ExtractJSON returns the greedy brace-delimited span of s, from the first '{'
// to the last '}'.
func ExtractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", domain.ErrNoJSON
	}
	return s[start : end+1], nil
}
