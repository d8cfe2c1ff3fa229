package agent

import (
	"context"

	"github.com/ghostmesh/gateway/pkg/models"
)

// sessionContextKey is an unexported type so only this package can mint the
// context key, per Go's standard context-value convention.
type sessionContextKey struct{}

// ContextWithSession attaches session to ctx so tools running underneath
// Loop.Run (e.g. change_directory) can read and mutate session-scoped state
// such as the ghost's current working directory without the tool registry
// itself needing a session-aware Execute signature.
func ContextWithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the session attached by ContextWithSession, if
// any.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*models.Session)
	return session, ok
}
