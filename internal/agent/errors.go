package agent

import "errors"

// SessionErrorKind classifies why a session-level operation failed, the
// abstract error kinds spec.md assigns to the session chat loop and
// dispatcher rather than concrete Go types.
type SessionErrorKind string

const (
	SessionNotFound         SessionErrorKind = "session_not_found"
	OperatorNotApproved     SessionErrorKind = "operator_not_approved"
	RateLimitedOperator     SessionErrorKind = "rate_limited_operator"
	MaxIterationsReached    SessionErrorKind = "max_iterations_reached"
	AllModelsExhausted      SessionErrorKind = "all_models_exhausted"
)

// SessionError is a session-level failure surfaced to the transport layer,
// distinct from a ProviderError (one provider's failure) or a ToolError
// (one tool call's failure).
type SessionError struct {
	Kind    SessionErrorKind
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// NewSessionError wraps cause (which may be nil) with kind.
func NewSessionError(kind SessionErrorKind, message string, cause error) *SessionError {
	return &SessionError{Kind: kind, Message: message, Cause: cause}
}

// IsSessionErrorKind reports whether err is a SessionError of kind.
func IsSessionErrorKind(err error, kind SessionErrorKind) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == kind
	}
	return false
}

// ToolErrorKind classifies a tool call failure surfaced as an error
// ToolResult rather than a Go error — the provider sees it on the wire and
// may recover by retrying with different input.
type ToolErrorKind string

const (
	ToolInvalidInput     ToolErrorKind = "invalid_input"
	ToolNotFound         ToolErrorKind = "not_found"
	ToolPermissionDenied ToolErrorKind = "permission_denied"
	ToolWorkspaceEscape  ToolErrorKind = "workspace_escape"
	ToolTimeout          ToolErrorKind = "timeout"
	ToolInternal         ToolErrorKind = "internal"
)

// ToolError is a classified tool-execution failure. Tool.Execute returns it
// wrapped in a Go error; the registry turns it into an error ToolResult
// rather than aborting the loop.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError wraps cause (which may be nil) with kind.
func NewToolError(kind ToolErrorKind, message string, cause error) *ToolError {
	return &ToolError{Kind: kind, Message: message, Cause: cause}
}
