package domain

import (
	"context"
	"time"
)

// PublishSettings is the resolved configuration a request runs with.
type PublishSettings struct {
	DefaultProviders       []string
	MediaRequiredProviders []string
	PreviewWait            time.Duration
}

// Session is the request scoped identity threaded through every call.
type Session struct {
	UserID   string
	Settings PublishSettings
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached by the auth middleware.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// RequireSession is SessionFrom that fails with ErrUnauthenticated.
func RequireSession(ctx context.Context) (Session, error) {
	s, ok := SessionFrom(ctx)
	if !ok {
		return Session{}, ErrUnauthenticated
	}
	return s, nil
}
