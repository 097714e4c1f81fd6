package engine

import "fmt"

// AuthenticationError means the acting principal could not be resolved to an
// active actor. Distinct from workflow.AuthorizationError, which is about a
// resolved actor lacking the role.
type AuthenticationError struct {
	ActorID string
	Reason  string
}

func (e AuthenticationError) Error() string {
	return fmt.Sprintf("actor %s: %s", e.ActorID, e.Reason)
}

// ValidationError rejects an action payload before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConcurrentModificationError means another transition landed between the
// caller's read and its write. The caller re-reads and retries.
type ConcurrentModificationError struct {
	RequestID       string
	ExpectedVersion int64
}

func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("request %s changed since version %d was read", e.RequestID, e.ExpectedVersion)
}

// AuditWriteError aborts an operation whose audit entry could not be written.
// A transition that cannot be recorded must not happen.
type AuditWriteError struct {
	Err error
}

func (e AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed: %v", e.Err)
}

func (e AuditWriteError) Unwrap() error { return e.Err }
