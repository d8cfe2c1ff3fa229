// Package models defines the persistent domain entities shared across the
// gateway: operators, ghosts, interfaces, sessions, messages, and the
// bookkeeping records (usage, job logs, pending approvals, circuit breaker
// state) that the orchestration engine reads and writes.
package models

import (
	"encoding/json"
	"time"
)

// InterfaceKind names the external platform an Interface binds to.
type InterfaceKind string

const (
	InterfaceTelegram InterfaceKind = "telegram"
	InterfaceDiscord  InterfaceKind = "discord"
	InterfaceSlack    InterfaceKind = "slack"
	InterfaceCLI      InterfaceKind = "cli"
)

// InterfaceStatus tracks an Interface's binding lifecycle.
type InterfaceStatus string

const (
	InterfacePending  InterfaceStatus = "pending"
	InterfaceApproved InterfaceStatus = "approved"
	InterfaceDenied   InterfaceStatus = "denied"
)

// Role indicates the author of a Message.
type Role string

const (
	RoleOperator  Role = "operator"
	RoleGhost     Role = "ghost"
	RoleSystem    Role = "system"
)

// Operator is a human principal who owns one or more Ghosts and
// authenticates through zero or more Interfaces.
type Operator struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// Ghost is a persistent agent persona: a workspace, an identity, a model
// chain, and a tool policy.
type Ghost struct {
	ID           string         `json:"id"`
	OperatorID   string         `json:"operator_id"`
	Name         string         `json:"name"`
	WorkspaceDir string         `json:"workspace_dir"`
	ModelChain   []string       `json:"model_chain"` // ordered list of model alias names
	ToolPolicy   []string       `json:"tool_policy"`
	Config       map[string]any `json:"config,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Interface binds an external platform identity (platform + external_id) to
// an Operator, subject to approval.
type Interface struct {
	ID         string          `json:"id"`
	Kind       InterfaceKind   `json:"kind"`
	ExternalID string          `json:"external_id"`
	OperatorID string          `json:"operator_id,omitempty"`
	Status     InterfaceStatus `json:"status"`
	Code       string          `json:"code,omitempty"` // human-friendly pairing code while pending
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Session is a single conversation thread between an Operator (via one
// Interface) and one Ghost.
type Session struct {
	ID          string    `json:"id"`
	GhostID     string    `json:"ghost_id"`
	OperatorID  string    `json:"operator_id"`
	InterfaceID string    `json:"interface_id"`
	Key         string    `json:"key"` // ghost_id:interface_kind:external_id
	// CompactedThrough is the index (exclusive) of messages already folded
	// into a summary message; the history assembler replays only the
	// summary plus messages from this index onward.
	CompactedThrough int            `json:"compacted_through"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SessionKey derives the canonical lookup key for a session.
func SessionKey(ghostID string, kind InterfaceKind, externalID string) string {
	return ghostID + ":" + string(kind) + ":" + externalID
}

// ContentBlock is the closed sum type carried by a Message. Exactly one of
// TextBlock, ToolUseBlock, or ToolResultBlock satisfies it.
type ContentBlock interface {
	blockKind() string
}

// BlockKind returns the concrete kind tag of a ContentBlock, usable for
// JSON discriminated-union handling.
func BlockKind(b ContentBlock) string { return b.blockKind() }

// TextBlock carries plain conversational text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) blockKind() string { return "text" }

// ToolUseBlock records a single tool invocation requested by a ghost turn.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) blockKind() string { return "tool_use" }

// ToolResultBlock carries the outcome of executing a ToolUseBlock, matched
// by ID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) blockKind() string { return "tool_result" }

// Message is one turn of conversation, carried as an ordered block list
// rather than a single content string so text, tool use, and tool results
// can be interleaved and round-tripped faithfully to providers.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Blocks    []ContentBlock `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Text concatenates all TextBlocks in order, the common case of reading a
// message's prose content without caring about tool plumbing.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns every ToolUseBlock in the message, in order.
func (m *Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Blocks {
		if t, ok := b.(ToolUseBlock); ok {
			out = append(out, t)
		}
	}
	return out
}

// wireMessage is the on-disk/wire JSON encoding of Message, since
// ContentBlock is an interface and needs a discriminated-union encoding.
type wireMessage struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Role      Role              `json:"role"`
	Blocks    []json.RawMessage `json:"blocks"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type wireBlock struct {
	Kind string `json:"kind"`
	json.RawMessage
}

// MarshalJSON encodes Message's block slice as {"kind":..., ...fields}.
func (m Message) MarshalJSON() ([]byte, error) {
	blocks := make([]json.RawMessage, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		tagged := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &tagged); err != nil {
			return nil, err
		}
		kindRaw, _ := json.Marshal(BlockKind(b))
		tagged["kind"] = kindRaw
		final, err := json.Marshal(tagged)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, final)
	}
	return json.Marshal(wireMessage{
		ID: m.ID, SessionID: m.SessionID, Role: m.Role,
		Blocks: blocks, Metadata: m.Metadata, CreatedAt: m.CreatedAt,
	})
}

// UnmarshalJSON decodes the discriminated-union block encoding produced by
// MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ID, m.SessionID, m.Role, m.Metadata, m.CreatedAt = w.ID, w.SessionID, w.Role, w.Metadata, w.CreatedAt
	m.Blocks = make([]ContentBlock, 0, len(w.Blocks))
	for _, raw := range w.Blocks {
		var tag struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return err
		}
		switch tag.Kind {
		case "text":
			var b TextBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return err
			}
			m.Blocks = append(m.Blocks, b)
		case "tool_use":
			var b ToolUseBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return err
			}
			m.Blocks = append(m.Blocks, b)
		case "tool_result":
			var b ToolResultBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return err
			}
			m.Blocks = append(m.Blocks, b)
		}
	}
	return nil
}

// UsageRecord accounts for one provider call's token consumption, used for
// per-ghost and per-operator usage reporting.
type UsageRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	GhostID      string    `json:"ghost_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// JobKind distinguishes the two background scheduler job types.
type JobKind string

const (
	JobHeartbeat  JobKind = "heartbeat"
	JobReflection JobKind = "reflection"
)

// RunStatus is the outcome of one scheduled job run.
type RunStatus string

const (
	RunRan     RunStatus = "ran"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
)

// JobLog is a standalone transcript of one background scheduler run,
// distinct from the session's own message log.
type JobLog struct {
	ID          string    `json:"id"`
	GhostID     string    `json:"ghost_id"`
	Kind        JobKind   `json:"kind"`
	Status      RunStatus `json:"status"`
	Transcript  string    `json:"transcript,omitempty"`
	HandoffNote string    `json:"handoff_note,omitempty"`
	TODOList    []string  `json:"todo_list,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// PendingApproval records a tool execution halted by the approval gate,
// awaiting the operator's next reply. Input is the tool call's original
// parameters, replayed on approval so the tool runs with the exact
// arguments the model requested rather than a reconstruction.
type PendingApproval struct {
	SessionID  string          `json:"session_id"`
	ToolUseID  string          `json:"tool_use_id"`
	ToolName   string          `json:"tool_name"`
	ReasonCode string          `json:"reason_code"`
	Payload    string          `json:"payload"`
	Input      json.RawMessage `json:"input,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CircuitBreakerEntry is the persisted cooldown state for one provider
// alias, shared process-wide across every session that might use it.
type CircuitBreakerEntry struct {
	Alias          string    `json:"alias"`
	CooldownUntil  time.Time `json:"cooldown_until"`
	LastFailure    string    `json:"last_failure,omitempty"`
	ConsecutiveErr int       `json:"consecutive_errors"`
}
