// Package agent implements the session chat loop, the tool registry, the
// approval gate, and the model chain dispatcher that together drive one
// ghost's turn of conversation.
package agent

import (
	"context"
	"encoding/json"
)

// Tool is the uniform contract every tool in the registry satisfies,
// whether it touches the filesystem, the network, or a ghost's own
// identity files.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is a tool's raw outcome before it is wrapped into a
// models.ToolResultBlock and appended to the conversation.
type ToolResult struct {
	Content string
	IsError bool
}

// ApprovalRequiredPrefix is the sentinel a tool's Execute returns in place
// of a normal result when the requested action needs operator sign-off.
// The loop detects this prefix, halts the turn without a tool result, and
// records a PendingApproval instead.
const ApprovalRequiredPrefix = "APPROVAL_REQUIRED:"

// ReasonWorkspaceEscape is the approval reason code a filesystem tool emits
// when the requested path resolves outside the ghost's workspace root.
const ReasonWorkspaceEscape = "WorkspaceEscape"
