package auth

import (
	"context"

	"github.com/unkn0wn-root/stockcore/session"
)

type ctxKey struct{}

// WithSession returns a context carrying s. The gate middleware calls it for
// every request that has a valid session.
func WithSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(session.Session)
	return s, ok
}

// Require returns the context session if its level is at least min.
// Server actions call it before doing any work.
func Require(ctx context.Context, min session.AccessLevel) (session.Session, error) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return session.Session{}, ErrUnauthenticated
	}
	if !s.AccessLevel.AtLeast(min) {
		return session.Session{}, ErrForbidden
	}
	return s, nil
}
