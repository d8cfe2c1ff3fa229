// Package reflect implements the write-side tools a ghost's reflection job
// uses to update its own persistent state: the diary, its identity files,
// and the structured TODO list the scheduler folds into the job log. These
// tools are registered on a separate registry from the chat surface
// (internal/agent.ToolRegistry passed as Scheduler.Reflect), never the one
// an operator's own messages can drive.
package reflect

import (
	"github.com/ghostmesh/gateway/internal/agent"
	"github.com/ghostmesh/gateway/internal/tools/files"
)

// Config controls where reflection tools write, scoped to the same
// workspace root as the chat filesystem tools.
type Config struct {
	Workspace string
}

func resolver(cfg Config) files.Resolver {
	return files.Resolver{Root: cfg.Workspace}
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
