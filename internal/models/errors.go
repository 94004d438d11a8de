package models

import "fmt"

// ValidationError indicates bad input. It never follows a state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError indicates the requester is neither the session's
// candidate nor its interviewer.
type AuthorizationError struct {
	RequesterID string
	SessionID   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("requester %s is not a participant of session %s", e.RequesterID, e.SessionID)
}

// InvalidTransitionError indicates a transition was requested from a status
// that does not allow it.
type InvalidTransitionError struct {
	SessionID     string
	CurrentStatus string
	TargetStatus  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: cannot move from %s to %s", e.SessionID, e.CurrentStatus, e.TargetStatus)
}

// TerminalStateError indicates a transition was attempted on a session whose
// status is terminal.
type TerminalStateError struct {
	SessionID     string
	CurrentStatus string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("session %s is terminal (%s)", e.SessionID, e.CurrentStatus)
}

// StaleStateError indicates the stored status changed between read and write,
// so the conditional update matched nothing.
type StaleStateError struct {
	SessionID      string
	ExpectedStatus string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("session %s: status no longer %s", e.SessionID, e.ExpectedStatus)
}

// GatewayError indicates the external payment gateway call failed before any
// confirmation. No local state changed; the operation is safe to retry.
type GatewayError struct {
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ReconciliationRequired indicates the gateway confirmed a money movement but
// the local ledger update afterwards failed. This is not a user-facing
// failure: the money moved, and the background reconciler will finish the
// local side. Callers must report "accepted, confirmation pending".
type ReconciliationRequired struct {
	SessionID string
	Operation string
	RecordID  string
}

func (e *ReconciliationRequired) Error() string {
	return fmt.Sprintf("session %s: %s confirmed by gateway, local apply pending (record %s)", e.SessionID, e.Operation, e.RecordID)
}

// NoEligibleFundsError indicates an interviewer's payable balance is below
// the minimum payout.
type NoEligibleFundsError struct {
	InterviewerID  string
	ShortfallCents int64
}

func (e *NoEligibleFundsError) Error() string {
	return fmt.Sprintf("interviewer %s: payable balance %d cents short of the minimum payout", e.InterviewerID, e.ShortfallCents)
}

// NotFoundError indicates the requested entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}
