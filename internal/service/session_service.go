package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"interview-service/config"
	"interview-service/internal/models"
	"interview-service/internal/store"
	"interview-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService owns the session status state machine: booking, payment
// confirmation, start, completion, and the background sweeps for abandoned
// and no-show sessions.
type SessionService struct {
	store  Store
	events EventPublisher
	cfg    config.BusinessConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(store Store, events EventPublisher, cfg config.BusinessConfig) *SessionService {
	return &SessionService{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// BookSessionRequest represents a request to book a session
type BookSessionRequest struct {
	CandidateID     string    `json:"candidate_id" binding:"required"`
	InterviewerID   string    `json:"interviewer_id" binding:"required"`
	ScheduledAt     time.Time `json:"scheduled_at" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=15"`
	PriceCents      int64     `json:"price_cents" binding:"required,min=1"`
	PackageID       string    `json:"package_id,omitempty"`
}

// BookSession creates a session. A direct booking starts in pending_payment
// and waits for the gateway confirmation; a coaching-package booking debits
// the package and is scheduled immediately, since no per-session charge
// happens.
func (s *SessionService) BookSession(ctx context.Context, req *BookSessionRequest) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.BookSession")
	defer span.End()

	if !req.ScheduledAt.After(s.now()) {
		return nil, &models.ValidationError{Field: "scheduled_at", Reason: "must be in the future"}
	}
	if req.CandidateID == req.InterviewerID {
		return nil, &models.ValidationError{Field: "interviewer_id", Reason: "candidate cannot book themselves"}
	}

	fee := req.PriceCents * int64(s.cfg.PlatformFeePercent) / 100

	session := &models.Session{
		ID:               uuid.New().String(),
		CandidateID:      req.CandidateID,
		InterviewerID:    req.InterviewerID,
		ScheduledAt:      req.ScheduledAt,
		DurationMinutes:  req.DurationMinutes,
		Status:           models.SessionStatusPendingPayment,
		PriceCents:       req.PriceCents,
		PlatformFeeCents: fee,
		PayoutCents:      req.PriceCents - fee,
		PaymentStatus:    models.PaymentStatusUnpaid,
	}

	if req.PackageID != "" {
		pkg, err := s.store.GetPackageByID(ctx, req.PackageID)
		if err != nil {
			return nil, err
		}
		if pkg.UserID != req.CandidateID {
			return nil, &models.AuthorizationError{RequesterID: req.CandidateID, SessionID: req.PackageID}
		}

		debited, err := s.store.DebitPackage(ctx, req.PackageID)
		if err != nil {
			return nil, fmt.Errorf("failed to debit package: %w", err)
		}
		if !debited {
			return nil, &models.ValidationError{Field: "package_id", Reason: "no sessions remaining in package"}
		}

		session.CoachingPackageID = nullString(req.PackageID)
		session.Status = models.SessionStatusScheduled
		session.PaymentStatus = models.PaymentStatusPaid
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		// The booking row failed after the debit; give the package its
		// session back.
		if req.PackageID != "" {
			if _, cErr := s.store.CreditPackage(ctx, req.PackageID); cErr != nil {
				s.logger.Error("Failed to credit package after booking failure",
					zap.String("package_id", req.PackageID),
					zap.Error(cErr))
			}
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	util.SessionsBookedTotal.Inc()
	s.logger.Info("Session booked",
		zap.String("session_id", session.ID),
		zap.String("candidate_id", session.CandidateID),
		zap.String("interviewer_id", session.InterviewerID),
		zap.Int64("price_cents", session.PriceCents))

	event := &models.SessionBookedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeSessionBooked),
		SessionID:     session.ID,
		CandidateID:   session.CandidateID,
		InterviewerID: session.InterviewerID,
		ScheduledAt:   session.ScheduledAt,
		PriceCents:    session.PriceCents,
		PackageID:     req.PackageID,
	}
	if err := s.events.PublishSessionBooked(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionBooked event", zap.Error(err))
	}

	return session, nil
}

// ConfirmPayment moves a pending_payment session to scheduled once the
// gateway settles the charge. Re-delivery of the same confirmation is
// idempotent.
func (s *SessionService) ConfirmPayment(ctx context.Context, sessionID, paymentIntentID string) error {
	ctx, span := util.StartSpan(ctx, "SessionService.ConfirmPayment")
	defer span.End()

	if paymentIntentID == "" {
		return &models.ValidationError{Field: "payment_intent_id", Reason: "required"}
	}

	applied, err := s.store.ConfirmPayment(ctx, sessionID, paymentIntentID)
	if err != nil {
		return err
	}
	if !applied {
		return s.resolveFailedTransition(ctx, sessionID, models.SessionStatusPendingPayment, models.SessionStatusScheduled)
	}

	util.SessionsScheduledTotal.Inc()
	s.logger.Info("Payment confirmed, session scheduled",
		zap.String("session_id", sessionID),
		zap.String("payment_intent_id", paymentIntentID))

	return nil
}

// StartSession moves a scheduled session to in_progress when a participant
// joins.
func (s *SessionService) StartSession(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "SessionService.StartSession")
	defer span.End()

	applied, err := s.store.TransitionStatus(ctx, sessionID,
		models.SessionStatusScheduled, models.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if !applied {
		return s.resolveFailedTransition(ctx, sessionID, models.SessionStatusScheduled, models.SessionStatusInProgress)
	}

	event := &models.SessionStartedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSessionStarted),
		SessionID: sessionID,
	}
	if err := s.events.PublishSessionStarted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionStarted event", zap.Error(err))
	}

	return nil
}

// CompleteSession moves an in_progress session to completed, stamping
// completed_at. Completed paid sessions are what the payout batcher claims.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "SessionService.CompleteSession")
	defer span.End()

	applied, err := s.store.CompleteSession(ctx, sessionID, s.now())
	if err != nil {
		return err
	}
	if !applied {
		return s.resolveFailedTransition(ctx, sessionID, models.SessionStatusInProgress, models.SessionStatusCompleted)
	}

	util.SessionsCompletedTotal.Inc()

	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		s.logger.Error("Failed to reload completed session", zap.Error(err))
		return nil
	}

	s.logger.Info("Session completed",
		zap.String("session_id", sessionID),
		zap.Int64("payout_cents", session.PayoutCents))

	event := &models.SessionCompletedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeSessionCompleted),
		SessionID:     sessionID,
		InterviewerID: session.InterviewerID,
		PayoutCents:   session.PayoutCents,
	}
	if err := s.events.PublishSessionCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionCompleted event", zap.Error(err))
	}

	return nil
}

// GetSession retrieves a session by ID
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetSessionByID(ctx, sessionID)
}

// ExpirePendingSessions cancels pending_payment sessions whose payment was
// never completed. Nothing was charged, so no refund is involved.
func (s *SessionService) ExpirePendingSessions(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.PendingPaymentTTLMinutes) * time.Minute)

	sessions, err := s.store.ListExpiredPendingSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending sessions: %w", err)
	}

	expired := 0
	for _, session := range sessions {
		applied, err := s.store.CancelSession(ctx, session.ID, store.CancelUpdate{
			FromStatus:    models.SessionStatusPendingPayment,
			PaymentStatus: models.PaymentStatusUnpaid,
			CancelledAt:   s.now(),
			Reason:        "Payment not completed in time",
		})
		if err != nil {
			s.logger.Error("Failed to expire pending session",
				zap.String("session_id", session.ID),
				zap.Error(err))
			continue
		}
		if applied {
			expired++
			util.SessionsCancelledTotal.WithLabelValues(RefundTierNone).Inc()
		}
	}

	if expired > 0 {
		s.logger.Info("Expired abandoned bookings", zap.Int("count", expired))
	}
	return expired, nil
}

// SweepNoShows moves scheduled sessions past their grace window to no_show.
func (s *SessionService) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.NoShowGraceMinutes) * time.Minute)

	sessions, err := s.store.ListOverdueScheduledSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue sessions: %w", err)
	}

	swept := 0
	for _, session := range sessions {
		applied, err := s.store.TransitionStatus(ctx, session.ID,
			models.SessionStatusScheduled, models.SessionStatusNoShow)
		if err != nil {
			s.logger.Error("Failed to mark session no-show",
				zap.String("session_id", session.ID),
				zap.Error(err))
			continue
		}
		if !applied {
			// Raced with a join or a cancellation; the guard did its job.
			continue
		}

		swept++
		util.SessionsNoShowTotal.Inc()

		event := &models.SessionNoShowEvent{
			BaseEvent: newBaseEvent(models.EventTypeSessionNoShow),
			SessionID: session.ID,
		}
		if err := s.events.PublishSessionNoShow(ctx, event); err != nil {
			s.logger.Error("Failed to publish SessionNoShow event", zap.Error(err))
		}
	}

	return swept, nil
}

// resolveFailedTransition classifies a conditional update that matched no
// row. Already at the target status means a duplicate request: idempotent
// success. Terminal means the session is closed for good. The expected
// status still being stored means the write raced another writer.
func (s *SessionService) resolveFailedTransition(ctx context.Context, sessionID, fromStatus, toStatus string) error {
	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	switch {
	case session.Status == toStatus:
		return nil
	case models.IsTerminalStatus(session.Status):
		return &models.TerminalStateError{SessionID: sessionID, CurrentStatus: session.Status}
	case session.Status == fromStatus:
		return &models.StaleStateError{SessionID: sessionID, ExpectedStatus: fromStatus}
	default:
		return &models.InvalidTransitionError{
			SessionID:     sessionID,
			CurrentStatus: session.Status,
			TargetStatus:  toStatus,
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
