package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

type roleSet struct {
	Roles []string `json:"roles"`
}

// Claims are the Keycloak access token claims the service consumes
type Claims struct {
	PreferredUsername string             `json:"preferred_username"`
	RealmAccess       roleSet            `json:"realm_access"`
	ResourceAccess    map[string]roleSet `json:"resource_access"`
	Groups            []string           `json:"groups"`
	jwt.RegisteredClaims
}

// AllRoles merges realm and client roles, keeping first-seen order
func (c *Claims) AllRoles() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(roles []string) {
		for _, r := range roles {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	add(c.RealmAccess.Roles)
	clients := make([]string, 0, len(c.ResourceAccess))
	for name := range c.ResourceAccess {
		clients = append(clients, name)
	}
	sort.Strings(clients)
	for _, name := range clients {
		add(c.ResourceAccess[name].Roles)
	}
	return out
}

// Verifier validates RS256 access tokens issued by one issuer
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier verifies tokens with the given key lookup
func NewVerifier(kf jwt.Keyfunc, issuer string) *Verifier {
	return &Verifier{
		keyfunc: kf,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// JWKSURL is the Keycloak certificate endpoint of an issuer
func JWKSURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/protocol/openid-connect/certs"
}

// NewJWKSVerifier verifies tokens against the issuer's JWKS, refreshed in the background until ctx ends
func NewJWKSVerifier(ctx context.Context, issuer string) (*Verifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{JWKSURL(issuer)})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}
	return NewVerifier(k.Keyfunc, issuer), nil
}

// Verify parses and validates a raw token
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.PreferredUsername == "" {
		return nil, fmt.Errorf("%w: token has no preferred_username", domain.ErrUnauthorized)
	}
	return claims, nil
}

// ErrMissingToken means no bearer token was presented
var ErrMissingToken = errors.New("missing bearer token")

// ExtractToken returns the token of an "Authorization: Bearer <token>" header
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
