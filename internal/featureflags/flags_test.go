package featureflags

import "testing"

func TestEnabledOr(t *testing.T) {
	t.Setenv("FLAG_CHAT_WEBSOCKET", "")
	if Enabled(ChatWebsocket) {
		t.Fatalf("unset flag should be off")
	}
	if !EnabledOr(ChatWebsocket, true) {
		t.Fatalf("unset flag should take the default")
	}

	t.Setenv("FLAG_CHAT_WEBSOCKET", "Yes")
	if !Enabled(ChatWebsocket) {
		t.Fatalf("yes should enable")
	}

	t.Setenv("FLAG_DEPARTMENT_SCOPED_PARSING", "off")
	if EnabledOr(DepartmentScopedParsing, true) {
		t.Fatalf("off should override the default")
	}
}
