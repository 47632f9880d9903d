package goSSO

import (
	"context"

	"github.com/MrEthical07/goSSO/identity"
)

type identityContextKey struct{}
type sessionContextKey struct{}

// WithIdentity attaches ident to ctx.
func WithIdentity(ctx context.Context, ident identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext returns the identity attached by [WithIdentity].
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	ident, ok := ctx.Value(identityContextKey{}).(identity.Identity)
	return ident, ok && ident != nil
}

// WithSession attaches sess and its identity to ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, sessionContextKey{}, sess)
	return WithIdentity(ctx, sess.Identity)
}

// SessionFromContext returns the session attached by [WithSession].
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	return sess, ok && sess != nil
}
