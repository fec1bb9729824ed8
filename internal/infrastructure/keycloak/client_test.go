package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

type fakeKeycloak struct {
	tokenCalls atomic.Int32
	expiresIn  int
	mux        *http.ServeMux
}

func newFakeKeycloak(t *testing.T) (*fakeKeycloak, *httptest.Server) {
	t.Helper()
	fk := &fakeKeycloak{expiresIn: 300, mux: http.NewServeMux()}
	fk.mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		fk.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "admin-token", "expires_in": fk.expiresIn})
	})
	srv := httptest.NewServer(fk.mux)
	t.Cleanup(srv.Close)
	return fk, srv
}

func requireAdmin(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "Bearer admin-token" {
		t.Errorf("missing admin bearer token, got %q", got)
	}
}

func TestTokenFetchedOnceForConcurrentCallers(t *testing.T) {
	fk, srv := newFakeKeycloak(t)
	c := NewClient(Config{BaseURL: srv.URL, Realm: "acme", ClientID: "svc", ClientSecret: "s"}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.tokens.Token(context.Background())
			if err != nil {
				errs <- err
				return
			}
			if tok != "admin-token" {
				errs <- errors.New("unexpected token " + tok)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Token: %v", err)
	}
	if n := fk.tokenCalls.Load(); n != 1 {
		t.Fatalf("expected a single token request, got %d", n)
	}

	// cached for subsequent calls
	if _, err := c.tokens.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if n := fk.tokenCalls.Load(); n != 1 {
		t.Fatalf("expected cached token, got %d requests", n)
	}
}

func TestTokenNotCachedWhenExpiringWithinSkew(t *testing.T) {
	fk, srv := newFakeKeycloak(t)
	fk.expiresIn = 30
	c := NewClient(Config{BaseURL: srv.URL, Realm: "acme"}, nil)

	c.tokens.Token(context.Background())
	c.tokens.Token(context.Background())
	if n := fk.tokenCalls.Load(); n != 2 {
		t.Fatalf("expected refetch for short-lived token, got %d requests", n)
	}
}

func TestRealmErrorsAreClassified(t *testing.T) {
	fk, srv := newFakeKeycloak(t)
	fk.mux.HandleFunc("GET /admin/realms/{realm}", func(w http.ResponseWriter, r *http.Request) {
		requireAdmin(t, r)
		if r.PathValue("realm") == "acme" {
			json.NewEncoder(w).Encode(domain.Realm{Realm: "acme", Enabled: true})
			return
		}
		http.Error(w, `{"error":"Realm not found."}`, http.StatusNotFound)
	})
	fk.mux.HandleFunc("POST /admin/realms", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"Conflict detected."}`, http.StatusConflict)
	})
	fk.mux.HandleFunc("DELETE /admin/realms/{realm}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewClient(Config{BaseURL: srv.URL, Realm: "acme"}, nil)
	ctx := context.Background()

	realm, err := c.GetRealm(ctx, "acme")
	if err != nil || realm.Realm != "acme" {
		t.Fatalf("GetRealm: %v %+v", err, realm)
	}
	if _, err := c.GetRealm(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.CreateRealm(ctx, "acme"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	err = c.DeleteRealm(ctx, "acme")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 || !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream APIError, got %v", err)
	}
}

func TestCreateUserReadsLocation(t *testing.T) {
	fk, srv := newFakeKeycloak(t)
	fk.mux.HandleFunc("POST /admin/realms/acme/users", func(w http.ResponseWriter, r *http.Request) {
		requireAdmin(t, r)
		var rep userRepresentation
		json.NewDecoder(r.Body).Decode(&rep)
		if !rep.Enabled || len(rep.Credentials) != 1 || rep.Credentials[0].Temporary {
			t.Errorf("unexpected user payload %+v", rep)
		}
		w.Header().Set("Location", "http://kc/admin/realms/acme/users/0b7c")
		w.WriteHeader(http.StatusCreated)
	})
	c := NewClient(Config{BaseURL: srv.URL, Realm: "acme"}, nil)

	id, err := c.CreateUser(context.Background(), domain.OnboardUser{Username: "bob", Email: "b@x.io", Password: "secret1"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id != "0b7c" {
		t.Fatalf("expected id from Location, got %q", id)
	}
}

func TestPasswordGrant(t *testing.T) {
	fk, srv := newFakeKeycloak(t)
	fk.mux.HandleFunc("POST /realms/acme/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("password") != "right" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(domain.TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresIn: 300, TokenType: "Bearer"})
	})
	c := NewClient(Config{BaseURL: srv.URL, Realm: "acme"}, nil)

	tokens, err := c.PasswordGrant(context.Background(), "bob", "right")
	if err != nil || tokens.AccessToken != "a" || tokens.RefreshToken != "r" {
		t.Fatalf("PasswordGrant: %v %+v", err, tokens)
	}
	if _, err := c.PasswordGrant(context.Background(), "bob", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
