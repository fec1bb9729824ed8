package featureflags

import (
	"os"
	"strings"
)

const (
	// DepartmentScopedParsing constrains NLP parsing to the caller's department
	DepartmentScopedParsing = "department_scoped_parsing"
	// ChatWebsocket exposes GET /api/v1/chat/ws
	ChatWebsocket = "chat_websocket"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return EnabledOr(name, false)
}

// EnabledOr is Enabled with a default for an unset or unrecognised value
func EnabledOr(name string, def bool) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
