package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/rulemaster/internal/security/auth"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized: invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-1", "refresh_token": "refresh-1", "expires_in": 300, "token_type": "Bearer",
		})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Logout successful"}`))
	})
	mux.HandleFunc("GET /api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("page = %q", r.URL.Query().Get("page"))
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"r1","title":"Senior","department":"finance","is_active":true,
			"rule_conditions":[{"field":"age","operator":">","value":60}],"rule_actions":[]}],"total":11,"page":2,"limit":10}`))
	})
	mux.HandleFunc("POST /api/v1/chat/ai", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"message":"Hello there"}`))
	})
	mux.HandleFunc("DELETE /api/v1/rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"rule ` + r.PathValue("id") + `: not found"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginListLogout(t *testing.T) {
	srv := fakeServer(t)
	profile := filepath.Join(t.TempDir(), "profile.yaml")

	if _, err := run(t, "wrong\n", "--profile", profile, "--server", srv.URL, "login", "-u", "alice", "--password-stdin"); err == nil {
		t.Fatal("expected login failure")
	}

	out, err := run(t, "s3cret\n", "--profile", profile, "--server", srv.URL, "login", "-u", "alice", "--password-stdin")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	p, err := LoadProfile(profile)
	if err != nil {
		t.Fatal(err)
	}
	if p.AccessToken != "access-1" || p.RefreshToken != "refresh-1" || p.Server != srv.URL || p.Username != "alice" {
		t.Fatalf("profile: %+v", p)
	}

	// the server comes from the profile now
	out, err = run(t, "", "--profile", profile, "--server", "", "rules", "list", "--page", "2")
	if err != nil {
		t.Fatalf("rules list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Senior") || !strings.Contains(out, "of 11 rules") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := run(t, "", "--profile", profile, "logout"); err != nil {
		t.Fatal(err)
	}
	p, _ = LoadProfile(profile)
	if p.AccessToken != "" || p.RefreshToken != "" {
		t.Fatalf("tokens not cleared: %+v", p)
	}
	if _, err := run(t, "", "--profile", profile, "rules", "stats"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in, got %v", err)
	}
}

func TestChatAndAPIErrors(t *testing.T) {
	srv := fakeServer(t)
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	if err := (&Profile{Server: srv.URL, AccessToken: "access-1"}).Save(profile); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "--profile", profile, "--server", "", "chat", "hi", "there")
	if err != nil || !strings.Contains(out, "Hello there") {
		t.Fatalf("chat: %v\n%s", err, out)
	}

	_, err = run(t, "", "--profile", profile, "--server", "", "rules", "delete", "r9")
	var apiErr *APIError
	if err == nil || !asAPIError(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func asAPIError(err error, target **APIError) bool {
	e, ok := err.(*APIError)
	if ok {
		*target = e
	}
	return ok
}

func TestWhoamiDecodesClaims(t *testing.T) {
	claims := auth.Claims{
		PreferredUsername: "alice",
		Groups:            []string{"/finance/finance_admin"},
		RegisteredClaims:  jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	claims.RealmAccess.Roles = []string{"finance_admin_role"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	if err != nil {
		t.Fatal(err)
	}

	profile := filepath.Join(t.TempDir(), "profile.yaml")
	if err := (&Profile{Server: "http://x", AccessToken: token}).Save(profile); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "--profile", profile, "whoami")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"alice", "finance_admin_role", "/finance/finance_admin", "(valid)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
