package identity

import "context"

type principalContextKey struct{}

// PrincipalContextKey carries the resolved Principal through a request.
var PrincipalContextKey principalContextKey

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(Principal)
	return p, ok
}
