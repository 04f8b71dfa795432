package middleware

import "context"

type principalKey struct{}

// principal is what the auth middleware learns from a verified access token.
type principal struct {
	userID string
	role   string
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, mutate func(*principal)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p := principalFrom(ctx)
	mutate(&p)
	return context.WithValue(ctx, principalKey{}, p)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

// RoleFromContext returns the platform role carried by the access token.
func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.role = role })
}
