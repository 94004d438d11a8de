package models

import (
	"database/sql"
	"time"
)

// Session represents a paid, scheduled one-on-one interview between a
// candidate and an interviewer
type Session struct {
	ID                 string         `db:"id" json:"id"`
	CandidateID        string         `db:"candidate_id" json:"candidate_id"`
	InterviewerID      string         `db:"interviewer_id" json:"interviewer_id"`
	ScheduledAt        time.Time      `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes    int            `db:"duration_minutes" json:"duration_minutes"`
	Status             string         `db:"status" json:"status"`
	PriceCents         int64          `db:"price_cents" json:"price_cents"`
	PlatformFeeCents   int64          `db:"platform_fee_cents" json:"platform_fee_cents"`
	PayoutCents        int64          `db:"payout_cents" json:"payout_cents"`
	PaymentStatus      string         `db:"payment_status" json:"payment_status"`
	PaymentIntentID    sql.NullString `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	RefundID           sql.NullString `db:"refund_id" json:"refund_id,omitempty"`
	RefundAmountCents  int64          `db:"refund_amount_cents" json:"refund_amount_cents"`
	CoachingPackageID  sql.NullString `db:"coaching_package_id" json:"coaching_package_id,omitempty"`
	PayoutID           sql.NullString `db:"payout_id" json:"payout_id,omitempty"`
	CancelledAt        sql.NullTime   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason sql.NullString `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CompletedAt        sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// CoachingPackage tracks a prepaid bundle of sessions for one user
type CoachingPackage struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	TotalSessions     int       `db:"total_sessions" json:"total_sessions"`
	RemainingSessions int       `db:"remaining_sessions" json:"remaining_sessions"`
	UsedSessions      int       `db:"used_sessions" json:"used_sessions"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Payout aggregates an interviewer's unpaid completed sessions into one
// gateway transfer
type Payout struct {
	ID            string         `db:"id" json:"id"`
	InterviewerID string         `db:"interviewer_id" json:"interviewer_id"`
	AmountCents   int64          `db:"amount_cents" json:"amount_cents"`
	Currency      string         `db:"currency" json:"currency"`
	Status        string         `db:"status" json:"status"`
	TransferID    sql.NullString `db:"transfer_id" json:"transfer_id,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	CompletedAt   sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`

	// SessionIDs is derived from the sessions claimed by this payout.
	// The claimed set is immutable once the payout row exists.
	SessionIDs []string `db:"-" json:"session_ids"`
}

// ReconciliationRecord is the durable write-ahead intent for a money-moving
// gateway call. It answers "did we ask the gateway to move money"
// independently of whether the local ledger update that should follow
// actually succeeded.
type ReconciliationRecord struct {
	ID             string         `db:"id" json:"id"`
	SessionID      string         `db:"session_id" json:"session_id"`
	Operation      string         `db:"operation" json:"operation"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key"`
	GatewayStatus  string         `db:"gateway_status" json:"gateway_status"`
	LocalStatus    string         `db:"local_status" json:"local_status"`
	AmountCents    int64          `db:"amount_cents" json:"amount_cents"`
	Reason         string         `db:"reason" json:"reason"`
	ExternalRef    sql.NullString `db:"external_ref" json:"external_ref,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Session statuses
const (
	SessionStatusPendingPayment = "pending_payment"
	SessionStatusScheduled      = "scheduled"
	SessionStatusInProgress     = "in_progress"
	SessionStatusCompleted      = "completed"
	SessionStatusCancelled      = "cancelled"
	SessionStatusNoShow         = "no_show"
)

// Payment statuses
const (
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusPaid              = "paid"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

// Coaching package statuses
const (
	PackageStatusActive    = "active"
	PackageStatusExhausted = "exhausted"
	PackageStatusCancelled = "cancelled"
)

// Payout statuses
const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// Reconciliation operations and statuses
const (
	ReconOpRefund         = "refund"
	ReconOpPayoutTransfer = "payout_transfer"

	ReconGatewayNotAttempted = "not_attempted"
	ReconGatewaySent         = "sent"
	ReconGatewayConfirmed    = "confirmed"

	ReconLocalPending = "pending"
	ReconLocalApplied = "applied"
)

// IsTerminalStatus reports whether a session status admits no further
// transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusNoShow:
		return true
	}
	return false
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
