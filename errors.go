package infty

import (
	"errors"
	"fmt"
	"time"
)

// Standard errors returned by the hub and orchestrator.
var (
	// ErrUnknownTarget means a (run, role) pair or conversation ID could
	// not be resolved in the hub registry.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrSessionClosed means a conversation's event stream ended while a
	// caller was still waiting on it.
	ErrSessionClosed = errors.New("session closed")

	// ErrRoleExists means a role name was registered twice within a run.
	ErrRoleExists = errors.New("role already registered")

	// ErrRunInterrupted means the run was cancelled before producing an
	// outcome.
	ErrRunInterrupted = errors.New("run interrupted")

	// ErrSolverSignalBudget means the solver kept replying with
	// unrecognized envelopes until the re-prompt budget ran out.
	ErrSolverSignalBudget = errors.New("solver re-prompt budget exhausted")
)

// AwaitTimeoutError reports an idle timeout while waiting for a role's
// first assistant message.
type AwaitTimeoutError struct {
	Timeout time.Duration
}

// Error returns the timeout description.
func (e *AwaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for assistant message after %s", e.Timeout)
}

// RoleError reports an error event emitted by a role's model stream on the
// awaited submission.
type RoleError struct {
	Role    string
	Message string
}

// Error returns the role error description.
func (e *RoleError) Error() string {
	return fmt.Sprintf("role %s: %s", e.Role, e.Message)
}

// ParseError reports an assistant reply that failed strict JSON parsing or
// schema validation for the expected response type.
type ParseError struct {
	TypeName string
	Err      error
}

// Error returns the parse failure description.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse message as %s: %v", e.TypeName, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// RunError wraps a failure with the originating role and turn so run-level
// errors identify their source.
type RunError struct {
	RunID        string
	Role         string
	SubmissionID string
	Err          error
}

// Error returns the run failure description.
func (e *RunError) Error() string {
	if e.SubmissionID != "" {
		return fmt.Sprintf("run %s: role %s (turn %s): %v", e.RunID, e.Role, e.SubmissionID, e.Err)
	}
	return fmt.Sprintf("run %s: role %s: %v", e.RunID, e.Role, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}
