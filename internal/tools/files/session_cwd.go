package files

import (
	"context"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
)

// sessionCWD returns the ghost's current working directory for this
// session, defaulting to root when no session is attached to ctx (an
// ephemeral scheduler turn) or the session carries no cwd metadata yet.
func sessionCWD(ctx context.Context, root string) string {
	session, ok := agent.SessionFromContext(ctx)
	if !ok || session.Metadata == nil {
		return root
	}
	cwd, ok := session.Metadata["cwd"].(string)
	if !ok || strings.TrimSpace(cwd) == "" {
		return root
	}
	return cwd
}
