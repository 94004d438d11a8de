package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"interview-service/internal/models"
)

// CreateSession inserts a new session in pending_payment
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			id, candidate_id, interviewer_id, scheduled_at, duration_minutes,
			status, price_cents, platform_fee_cents, payout_cents,
			payment_status, coaching_package_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		session.ID, session.CandidateID, session.InterviewerID,
		session.ScheduledAt, session.DurationMinutes, session.Status,
		session.PriceCents, session.PlatformFeeCents, session.PayoutCents,
		session.PaymentStatus, session.CoachingPackageID,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
}

// GetSessionByID retrieves a session by ID
func (s *Store) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.GetContext(ctx, &session, "SELECT * FROM sessions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "session", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TransitionStatus moves a session from one status to another with a
// conditional update on the current stored status. Returns false when the
// stored status is no longer fromStatus; the caller decides whether that is
// idempotent success, terminal, or stale.
func (s *Store) TransitionStatus(ctx context.Context, id, fromStatus, toStatus string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		toStatus, id, fromStatus)
	if err != nil {
		return false, fmt.Errorf("failed to transition session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConfirmPayment moves a pending_payment session to scheduled and records
// the payment intent. payment_intent_id is set once; the guard on the
// current status keeps it immutable afterwards.
func (s *Store) ConfirmPayment(ctx context.Context, id, paymentIntentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, payment_status = $2, payment_intent_id = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5 AND payment_intent_id IS NULL`,
		models.SessionStatusScheduled, models.PaymentStatusPaid, paymentIntentID,
		id, models.SessionStatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteSession moves an in_progress session to completed and stamps
// completed_at, making it payable.
func (s *Store) CompleteSession(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, completed_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.SessionStatusCompleted, completedAt, id, models.SessionStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelUpdate carries the fields written when a session is cancelled
type CancelUpdate struct {
	FromStatus        string
	PaymentStatus     string
	RefundID          string
	RefundAmountCents int64
	CancelledAt       time.Time
	Reason            string
}

// CancelSession applies a cancellation in one conditional write guarded on
// the current status.
func (s *Store) CancelSession(ctx context.Context, id string, upd CancelUpdate) (bool, error) {
	var refundID interface{}
	if upd.RefundID != "" {
		refundID = upd.RefundID
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, payment_status = $2, refund_id = $3,
		    refund_amount_cents = $4, cancelled_at = $5,
		    cancellation_reason = $6, updated_at = NOW()
		WHERE id = $7 AND status = $8`,
		models.SessionStatusCancelled, upd.PaymentStatus, refundID,
		upd.RefundAmountCents, upd.CancelledAt, upd.Reason,
		id, upd.FromStatus)
	if err != nil {
		return false, fmt.Errorf("failed to cancel session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimPayableSessions atomically attaches every completed, paid, unclaimed
// session of one interviewer to a payout. The payout_id IS NULL predicate is
// the concurrency guard: a session already claimed by a concurrent run does
// not match.
func (s *Store) ClaimPayableSessions(ctx context.Context, interviewerID, payoutID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.SelectContext(ctx, &sessions, `
		UPDATE sessions
		SET payout_id = $1, updated_at = NOW()
		WHERE interviewer_id = $2 AND status = $3 AND payment_status = $4 AND payout_id IS NULL
		RETURNING *`,
		payoutID, interviewerID, models.SessionStatusCompleted, models.PaymentStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to claim payable sessions: %w", err)
	}
	return sessions, nil
}

// ReleaseClaim detaches sessions from a payout that was abandoned before any
// transfer was attempted (below-minimum balance).
func (s *Store) ReleaseClaim(ctx context.Context, payoutID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET payout_id = NULL, updated_at = NOW() WHERE payout_id = $1",
		payoutID)
	return err
}

// GetSessionsByPayoutID lists the sessions claimed by a payout
func (s *Store) GetSessionsByPayoutID(ctx context.Context, payoutID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT * FROM sessions WHERE payout_id = $1 ORDER BY completed_at", payoutID)
	return sessions, err
}

// ListExpiredPendingSessions finds pending_payment sessions older than the
// cutoff, for the abandon sweep.
func (s *Store) ListExpiredPendingSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT * FROM sessions WHERE status = $1 AND created_at < $2",
		models.SessionStatusPendingPayment, cutoff)
	return sessions, err
}

// ListOverdueScheduledSessions finds scheduled sessions whose start passed
// the grace window with no join, for the no-show sweep.
func (s *Store) ListOverdueScheduledSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT * FROM sessions WHERE status = $1 AND scheduled_at < $2",
		models.SessionStatusScheduled, cutoff)
	return sessions, err
}
