package models

import "time"

// Event types
const (
	EventTypeSessionBooked    = "SESSION_BOOKED"
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypeSessionStarted   = "SESSION_STARTED"
	EventTypeSessionCompleted = "SESSION_COMPLETED"
	EventTypeSessionCancelled = "SESSION_CANCELLED"
	EventTypeSessionNoShow    = "SESSION_NO_SHOW"
	EventTypeRefundIssued     = "REFUND_ISSUED"
	EventTypePayoutCompleted  = "PAYOUT_COMPLETED"
	EventTypePayoutFailed     = "PAYOUT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionBookedEvent published when a session is created in pending_payment
type SessionBookedEvent struct {
	BaseEvent
	SessionID     string    `json:"session_id"`
	CandidateID   string    `json:"candidate_id"`
	InterviewerID string    `json:"interviewer_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	PriceCents    int64     `json:"price_cents"`
	PackageID     string    `json:"package_id,omitempty"`
}

// PaymentConfirmedEvent published by the gateway confirmation path when a
// charge settles; consumed by the worker to move the session to scheduled
type PaymentConfirmedEvent struct {
	BaseEvent
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents"`
}

// SessionStartedEvent published when a session enters in_progress
type SessionStartedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
}

// SessionCompletedEvent published when a session completes and becomes
// payable
type SessionCompletedEvent struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	InterviewerID string `json:"interviewer_id"`
	PayoutCents   int64  `json:"payout_cents"`
}

// SessionNoShowEvent published when a scheduled session passes its grace
// window with no join
type SessionNoShowEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
}

// SessionCancelledEvent published when a session is cancelled
type SessionCancelledEvent struct {
	BaseEvent
	SessionID         string `json:"session_id"`
	RequesterID       string `json:"requester_id"`
	Reason            string `json:"reason"`
	RefundAmountCents int64  `json:"refund_amount_cents"`
}

// RefundIssuedEvent published after the gateway confirms a refund
type RefundIssuedEvent struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	RefundID    string `json:"refund_id"`
	AmountCents int64  `json:"amount_cents"`
}

// PayoutCompletedEvent published after the gateway confirms a transfer
type PayoutCompletedEvent struct {
	BaseEvent
	PayoutID      string `json:"payout_id"`
	InterviewerID string `json:"interviewer_id"`
	AmountCents   int64  `json:"amount_cents"`
	SessionCount  int    `json:"session_count"`
}

// PayoutFailedEvent published when a gateway transfer fails; the claimed
// sessions stay attached to the failed payout for an ops retry
type PayoutFailedEvent struct {
	BaseEvent
	PayoutID      string `json:"payout_id"`
	InterviewerID string `json:"interviewer_id"`
	Reason        string `json:"reason"`
}
