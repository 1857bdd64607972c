package api

import (
	"context"

	"github.com/Barrelito/sam-a-sub000/org"
)

type contextKey int

const ctxKeyPrincipal contextKey = 0

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p org.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal. The zero
// principal is returned when none is set; it can see and do nothing.
func PrincipalFrom(ctx context.Context) org.Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(org.Principal)
	return p
}
