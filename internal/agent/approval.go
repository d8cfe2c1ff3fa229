package agent

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ghostmesh/gateway/pkg/models"
)

// ApprovalStore holds at most one PendingApproval per session: spec.md's
// approval gate is a single in-flight gate per session, not a queue, since
// the loop halts the whole turn the moment it hits an approval-gated tool.
type ApprovalStore interface {
	Get(sessionID string) (*models.PendingApproval, bool)
	Set(sessionID string, pending *models.PendingApproval)
	Clear(sessionID string)
}

// MemoryApprovalStore is an in-memory ApprovalStore, sufficient for a
// single-process gateway; a persistent implementation would back this with
// the same session store used for messages.
type MemoryApprovalStore struct {
	mu      sync.RWMutex
	pending map[string]*models.PendingApproval
}

// NewMemoryApprovalStore returns an empty MemoryApprovalStore.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{pending: make(map[string]*models.PendingApproval)}
}

func (s *MemoryApprovalStore) Get(sessionID string) (*models.PendingApproval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[sessionID]
	return p, ok
}

func (s *MemoryApprovalStore) Set(sessionID string, pending *models.PendingApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[sessionID] = pending
}

func (s *MemoryApprovalStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, sessionID)
}

// ParseApprovalSentinel splits a tool's "APPROVAL_REQUIRED:<reason-code>:<payload>"
// result into its reason code and payload. ok is false if content does not
// carry the sentinel.
func ParseApprovalSentinel(content string) (reasonCode, payload string, ok bool) {
	if !strings.HasPrefix(content, ApprovalRequiredPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, ApprovalRequiredPrefix)
	parts := strings.SplitN(rest, ":", 2)
	reasonCode = parts[0]
	if len(parts) > 1 {
		payload = parts[1]
	}
	return reasonCode, payload, true
}

// ApprovalDecision is the outcome of matching an operator reply against an
// open PendingApproval.
type ApprovalDecision int

const (
	// ApprovalUndecided means the reply did not resolve the pending
	// approval; it should be treated as an ordinary new message instead.
	ApprovalUndecided ApprovalDecision = iota
	ApprovalApproved
	ApprovalDenied
)

// ResolveApprovalReply matches an operator's literal reply text against the
// "approve" / "deny" vocabulary from spec.md §4.4. Matching is
// case-insensitive and tolerates surrounding whitespace, but nothing
// fuzzier: a reply like "approve it" does not resolve the gate, since
// partial matches would make accidental approvals too easy.
func ResolveApprovalReply(text string) ApprovalDecision {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "approve":
		return ApprovalApproved
	case "deny":
		return ApprovalDenied
	default:
		return ApprovalUndecided
	}
}

// NewPendingApproval builds the record the loop persists when a tool halts
// on the approval sentinel.
func NewPendingApproval(sessionID, toolUseID, toolName, reasonCode, payload string, input json.RawMessage) *models.PendingApproval {
	return &models.PendingApproval{
		SessionID:  sessionID,
		ToolUseID:  toolUseID,
		ToolName:   toolName,
		ReasonCode: reasonCode,
		Payload:    payload,
		Input:      input,
		CreatedAt:  time.Now(),
	}
}

// markInputApproved returns pending.Input with "_approved":true merged in,
// so a re-executed tool call can tell this invocation was already cleared
// by the operator and should not re-emit the approval sentinel.
func markInputApproved(input json.RawMessage) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return nil, err
		}
	}
	fields["_approved"] = true
	return json.Marshal(fields)
}
