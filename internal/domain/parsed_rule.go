package domain

// ParsedRule is the structured rule produced from a natural-language prompt.
// When the oracle refuses the prompt (for example a department mismatch) only
// Error is set.
type ParsedRule struct {
	Rule       ParsedRuleHeader  `json:"rule"`
	Logic      string            `json:"logic,omitempty"`
	Conditions []ParsedCondition `json:"conditions"`
	Actions    []ParsedAction    `json:"actions"`
	Error      string            `json:"error,omitempty"`
}

// ParsedRuleHeader holds the rule-level metadata of a parsed rule
type ParsedRuleHeader struct {
	Title      string `json:"title"`
	Department string `json:"department,omitempty"`
}

// ParsedCondition is a condition as produced by the parser or supplied by a client
type ParsedCondition struct {
	ID       string   `json:"id,omitempty"`
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Value    RawValue `json:"value"`
}

// ParsedAction is an action as produced by the parser or supplied by a client
type ParsedAction struct {
	Type  string   `json:"type"`
	Value RawValue `json:"value"`
}

// Rejected reports whether the oracle answered with an error object instead of a rule
func (p *ParsedRule) Rejected() bool {
	return p != nil && p.Error != ""
}

// Intent is the bucket a free-text prompt is classified into
type Intent string

const (
	IntentCreate Intent = "create"
	IntentList   Intent = "list"
	IntentCasual Intent = "casual"
)
