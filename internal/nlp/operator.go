package nlp

import "strings"

// operatorPhrases maps natural-language comparison phrases onto the canonical
// operator set stored with rule conditions.
var operatorPhrases = map[string]string{
	"is":                       "=",
	"equals":                   "=",
	"equal to":                 "=",
	"is equal to":              "=",
	"not equal to":             "!=",
	"is not":                   "!=",
	"greater than":             ">",
	"more than":                ">",
	"less than":                "<",
	"fewer than":               "<",
	"greater than or equal to": ">=",
	"at least":                 ">=",
	"less than or equal to":    "<=",
	"at most":                  "<=",
	"in":                       "IN",
	"is in":                    "IN",
	"not in":                   "NOT IN",
	"is not in":                "NOT IN",
	"contains":                 "LIKE",
	"does not contain":         "NOT LIKE",
	"starts with":              "LIKE",
	"ends with":                "LIKE",
	"like":                     "LIKE",
	"not like":                 "NOT LIKE",
	"between":                  "BETWEEN",
	"is null":                  "IS NULL",
	"is not null":              "IS NOT NULL",

	"=":  "=",
	"!=": "!=",
	">":  ">",
	"<":  "<",
	">=": ">=",
	"<=": "<=",
}

// NormalizeOperator returns the canonical operator for phrase.
// Unknown input is returned unchanged, including its casing and whitespace.
func NormalizeOperator(phrase string) string {
	if op, ok := operatorPhrases[strings.ToLower(strings.TrimSpace(phrase))]; ok {
		return op
	}
	return phrase
}
