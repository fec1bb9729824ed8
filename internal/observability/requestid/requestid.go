// Package requestid carries the per-request correlation id through contexts.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the response header the id is echoed in
const Header = "X-Request-ID"

type key struct{}

// New generates a fresh request id
func New() string {
	return uuid.NewString()
}

// With stores id in ctx
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// From returns the id stored in ctx, or ""
func From(ctx context.Context) string {
	if id, ok := ctx.Value(key{}).(string); ok {
		return id
	}
	return ""
}
