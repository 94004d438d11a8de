package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"interview-service/config"
	"interview-service/internal/gateway"
	"interview-service/internal/models"
	"interview-service/internal/store"
	"interview-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CancellationService composes the refund policy, the payment gateway, the
// coaching credit ledger and the session ledger into one consistent
// cancellation operation.
//
// The money-moving step is bracketed by a durable intent write before and a
// best-effort local write after; the gateway call never runs inside a local
// transaction.
type CancellationService struct {
	store   Store
	gateway gateway.Gateway
	events  EventPublisher
	policy  RefundPolicy
	logger  *zap.Logger
	now     func() time.Time
}

// NewCancellationService creates a new cancellation service
func NewCancellationService(store Store, gw gateway.Gateway, events EventPublisher, cfg config.BusinessConfig) *CancellationService {
	return &CancellationService{
		store:   store,
		gateway: gw,
		events:  events,
		policy: RefundPolicy{
			FullHours:       cfg.FullRefundHours,
			PartialHours:    cfg.PartialRefundHours,
			PartialFraction: cfg.PartialRefundFraction,
		},
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// CancelResult is returned to the caller after a cancellation
type CancelResult struct {
	Session               *models.Session
	RefundTier            string
	RefundPercent         int
	RefundAmountCents     int64
	RefundReason          string
	ReconciliationPending bool
}

// Cancel cancels a session on behalf of one of its participants, applying
// the refund policy in force at the moment of cancellation.
func (s *CancellationService) Cancel(ctx context.Context, sessionID, requesterID, reason string) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.Cancel")
	defer span.End()

	if requesterID == "" {
		return nil, &models.ValidationError{Field: "requester_id", Reason: "required"}
	}

	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	role, ok := participantRole(session, requesterID)
	if !ok {
		return nil, &models.AuthorizationError{RequesterID: requesterID, SessionID: sessionID}
	}

	// A duplicate cancel of an already-cancelled session succeeds without
	// side effects; double-submitted clicks must not surface errors.
	if session.Status == models.SessionStatusCancelled {
		return resultFromCancelled(session), nil
	}
	if session.Status != models.SessionStatusScheduled && session.Status != models.SessionStatusInProgress {
		return nil, &models.InvalidTransitionError{
			SessionID:     sessionID,
			CurrentStatus: session.Status,
			TargetStatus:  models.SessionStatusCancelled,
		}
	}

	now := s.now()

	// A prior attempt may already have asked the gateway to move money. That
	// refund must be settled at its recorded amount; re-evaluating the policy
	// at the retry time could land in a different tier and lose track of a
	// refund that already happened.
	var openIntent *models.ReconciliationRecord
	if session.PaymentIntentID.Valid {
		rec, rErr := s.store.GetReconciliationRecord(ctx, session.ID, models.ReconOpRefund)
		if rErr != nil {
			return nil, rErr
		}
		if rec != nil && rec.GatewayStatus != models.ReconGatewayNotAttempted {
			openIntent = rec
		}
	}

	decision := s.policy.Evaluate(session.ScheduledAt, now)
	if openIntent != nil {
		decision = decisionFromIntent(openIntent, session.PriceCents)
	}
	if reason == "" {
		reason = role + ": " + decision.Reason
		if openIntent != nil && openIntent.Reason != "" {
			reason = openIntent.Reason
		}
	}

	var result *CancelResult
	switch {
	case openIntent != nil:
		result, err = s.cancelWithRefund(ctx, session, decision, openIntent.AmountCents, now, reason)

	case session.PaymentStatus == models.PaymentStatusUnpaid:
		result, err = s.cancelWithoutRefund(ctx, session, decision, now, reason)

	case session.CoachingPackageID.Valid && decision.Tier == RefundTierFull:
		result, err = s.cancelWithPackageCredit(ctx, session, decision, now, reason)

	case decision.Fraction > 0 && session.PaymentIntentID.Valid:
		result, err = s.cancelWithRefund(ctx, session, decision, decision.RefundAmount(session.PriceCents), now, reason)

	default:
		// Covers the no-refund tier, and package sessions past the full
		// window: the prepaid credit is forfeit and there is no per-session
		// charge to refund.
		result, err = s.cancelWithoutRefund(ctx, session, decision, now, reason)
	}
	if err != nil {
		return nil, err
	}

	util.SessionsCancelledTotal.WithLabelValues(result.RefundTier).Inc()

	event := &models.SessionCancelledEvent{
		BaseEvent:         newBaseEvent(models.EventTypeSessionCancelled),
		SessionID:         sessionID,
		RequesterID:       requesterID,
		Reason:            reason,
		RefundAmountCents: result.RefundAmountCents,
	}
	if pubErr := s.events.PublishSessionCancelled(ctx, event); pubErr != nil {
		s.logger.Error("Failed to publish SessionCancelled event", zap.Error(pubErr))
	}

	return result, nil
}

// cancelWithoutRefund closes the session with no money movement
func (s *CancellationService) cancelWithoutRefund(ctx context.Context, session *models.Session, decision RefundDecision, now time.Time, reason string) (*CancelResult, error) {
	applied, err := s.store.CancelSession(ctx, session.ID, store.CancelUpdate{
		FromStatus:    session.Status,
		PaymentStatus: session.PaymentStatus,
		CancelledAt:   now,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.resolveCancelRace(ctx, session.ID)
	}

	return s.loadResult(ctx, session.ID, RefundTierNone, 0, 0, decision.Reason, false)
}

// cancelWithPackageCredit returns the prepaid credit to the coaching package
// instead of refunding money; no per-session charge ever happened on this
// path, so the gateway is never called.
func (s *CancellationService) cancelWithPackageCredit(ctx context.Context, session *models.Session, decision RefundDecision, now time.Time, reason string) (*CancelResult, error) {
	applied, err := s.store.CancelSession(ctx, session.ID, store.CancelUpdate{
		FromStatus:    session.Status,
		PaymentStatus: session.PaymentStatus,
		CancelledAt:   now,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Only the writer that wins the conditional update credits the
		// package; the loser of a concurrent cancel takes the idempotent
		// path with no credit of its own.
		return s.resolveCancelRace(ctx, session.ID)
	}

	credited, err := s.store.CreditPackage(ctx, session.CoachingPackageID.String)
	if err != nil {
		s.logger.Error("Session cancelled but package credit failed, manual credit required",
			zap.String("session_id", session.ID),
			zap.String("package_id", session.CoachingPackageID.String),
			zap.Error(err))
	} else if !credited {
		s.logger.Warn("Package credit did not apply",
			zap.String("session_id", session.ID),
			zap.String("package_id", session.CoachingPackageID.String))
	}

	s.logger.Info("Session cancelled, package credit restored",
		zap.String("session_id", session.ID),
		zap.String("package_id", session.CoachingPackageID.String))

	return s.loadResult(ctx, session.ID, RefundTierFull, 100, 0, decision.Reason, false)
}

// cancelWithRefund runs the refund saga: durable intent, gateway call, local
// apply. A failure after the gateway confirmed is surfaced as
// ReconciliationRequired, never as a user-facing failure.
func (s *CancellationService) cancelWithRefund(ctx context.Context, session *models.Session, decision RefundDecision, refundAmount int64, now time.Time, reason string) (*CancelResult, error) {
	rec, err := s.ensureRefundIntent(ctx, session, refundAmount, reason)
	if err != nil {
		return nil, err
	}

	refundID := rec.ExternalRef.String
	if rec.GatewayStatus != models.ReconGatewayConfirmed {
		if err := s.store.UpdateReconciliationGatewayStatus(ctx, rec.ID, models.ReconGatewaySent, ""); err != nil {
			return nil, err
		}

		refundID, err = s.gateway.Refund(ctx, session.PaymentIntentID.String, refundAmount, rec.IdempotencyKey)
		if err != nil {
			if gateway.IsUnknownOutcome(err) {
				// The money may have moved. Leave the intent open for the
				// operator and tell the caller the refund is pending, not
				// failed.
				s.logger.Error("Refund outcome unknown, reconciliation required",
					zap.String("session_id", session.ID),
					zap.String("record_id", rec.ID),
					zap.Bool("reconciliation_pending", true),
					zap.Error(err))
				return nil, &models.ReconciliationRequired{
					SessionID: session.ID,
					Operation: models.ReconOpRefund,
					RecordID:  rec.ID,
				}
			}

			// Definite failure: nothing moved. Reset the intent so a retry
			// reuses the same idempotency key from the top.
			if uErr := s.store.UpdateReconciliationGatewayStatus(ctx, rec.ID, models.ReconGatewayNotAttempted, ""); uErr != nil {
				s.logger.Error("Failed to reset refund intent", zap.Error(uErr))
			}
			return nil, &models.GatewayError{Operation: models.ReconOpRefund, Err: err}
		}

		if err := s.store.UpdateReconciliationGatewayStatus(ctx, rec.ID, models.ReconGatewayConfirmed, refundID); err != nil {
			// The refund happened; only our bookkeeping write failed. The
			// local apply below and the reconciler both key off the session
			// row, so keep going.
			s.logger.Error("Failed to record refund confirmation",
				zap.String("record_id", rec.ID),
				zap.Error(err))
		}

		util.RefundsIssuedTotal.Inc()
		util.RefundedCentsTotal.Add(float64(refundAmount))
	}

	paymentStatus := models.PaymentStatusPartiallyRefunded
	if refundAmount == session.PriceCents {
		paymentStatus = models.PaymentStatusRefunded
	}

	applied, err := s.store.CancelSession(ctx, session.ID, store.CancelUpdate{
		FromStatus:        session.Status,
		PaymentStatus:     paymentStatus,
		RefundID:          refundID,
		RefundAmountCents: refundAmount,
		CancelledAt:       now,
		Reason:            reason,
	})
	if err != nil || !applied {
		if !applied && err == nil {
			// Another writer may have finished the cancellation already.
			if res, rErr := s.resolveCancelRace(ctx, session.ID); rErr == nil {
				if mErr := s.store.MarkReconciliationApplied(ctx, rec.ID); mErr != nil {
					s.logger.Error("Failed to finalize reconciliation record", zap.Error(mErr))
				}
				return res, nil
			}
		}

		// Money moved but the ledger write did not land. The intent record
		// stays pending for the background reconciler; the caller must hear
		// "refund processed, confirmation pending", not "refund failed".
		s.logger.Error("Refund confirmed but local apply failed, reconciliation required",
			zap.String("session_id", session.ID),
			zap.String("record_id", rec.ID),
			zap.Bool("reconciliation_pending", true),
			zap.Error(err))
		util.ReconciliationPending.Inc()
		return nil, &models.ReconciliationRequired{
			SessionID: session.ID,
			Operation: models.ReconOpRefund,
			RecordID:  rec.ID,
		}
	}

	if err := s.store.MarkReconciliationApplied(ctx, rec.ID); err != nil {
		s.logger.Error("Failed to finalize reconciliation record", zap.Error(err))
	}

	s.logger.Info("Session cancelled with refund",
		zap.String("session_id", session.ID),
		zap.String("refund_id", refundID),
		zap.Int64("refund_amount_cents", refundAmount))

	refundEvent := &models.RefundIssuedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeRefundIssued),
		SessionID:   session.ID,
		RefundID:    refundID,
		AmountCents: refundAmount,
	}
	if pubErr := s.events.PublishRefundIssued(ctx, refundEvent); pubErr != nil {
		s.logger.Error("Failed to publish RefundIssued event", zap.Error(pubErr))
	}

	percent := 0
	if session.PriceCents > 0 {
		percent = int(refundAmount * 100 / session.PriceCents)
	}
	return s.loadResult(ctx, session.ID, decision.Tier, percent, refundAmount, decision.Reason, false)
}

// decisionFromIntent reconstructs the refund decision recorded by a prior
// cancel attempt, so a retry settles at the tier in force when the refund was
// first sent to the gateway.
func decisionFromIntent(rec *models.ReconciliationRecord, priceCents int64) RefundDecision {
	tier := RefundTierPartial
	fraction := 0.0
	if priceCents > 0 {
		fraction = float64(rec.AmountCents) / float64(priceCents)
	}
	if rec.AmountCents == priceCents {
		tier = RefundTierFull
	}
	return RefundDecision{Tier: tier, Fraction: fraction, Reason: rec.Reason}
}

// ensureRefundIntent finds or durably creates the write-ahead record for a
// refund. The idempotency key is derived from the session id, so every
// attempt for one session presents the same key to the gateway.
func (s *CancellationService) ensureRefundIntent(ctx context.Context, session *models.Session, amountCents int64, reason string) (*models.ReconciliationRecord, error) {
	rec, err := s.store.GetReconciliationRecord(ctx, session.ID, models.ReconOpRefund)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		// A retry after a definite gateway failure may land in a different
		// tier. As long as nothing was sent the intent just tracks what the
		// next attempt will ask for.
		if rec.GatewayStatus == models.ReconGatewayNotAttempted &&
			(rec.AmountCents != amountCents || rec.Reason != reason) {
			if err := s.store.RefreshReconciliationIntent(ctx, rec.ID, amountCents, reason); err != nil {
				return nil, err
			}
			rec.AmountCents = amountCents
			rec.Reason = reason
		}
		return rec, nil
	}

	rec = &models.ReconciliationRecord{
		ID:             uuid.New().String(),
		SessionID:      session.ID,
		Operation:      models.ReconOpRefund,
		IdempotencyKey: refundIdempotencyKey(session.ID),
		GatewayStatus:  models.ReconGatewayNotAttempted,
		LocalStatus:    models.ReconLocalPending,
		AmountCents:    amountCents,
		Reason:         reason,
	}
	if err := s.store.CreateReconciliationRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to write refund intent: %w", err)
	}
	return rec, nil
}

// resolveCancelRace handles a cancel whose conditional write matched no row
func (s *CancellationService) resolveCancelRace(ctx context.Context, sessionID string) (*CancelResult, error) {
	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusCancelled {
		return resultFromCancelled(session), nil
	}
	if models.IsTerminalStatus(session.Status) {
		return nil, &models.TerminalStateError{SessionID: sessionID, CurrentStatus: session.Status}
	}
	return nil, &models.StaleStateError{SessionID: sessionID, ExpectedStatus: session.Status}
}

func (s *CancellationService) loadResult(ctx context.Context, sessionID, tier string, percent int, amount int64, reason string, pending bool) (*CancelResult, error) {
	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &CancelResult{
		Session:               session,
		RefundTier:            tier,
		RefundPercent:         percent,
		RefundAmountCents:     amount,
		RefundReason:          reason,
		ReconciliationPending: pending,
	}, nil
}

// resultFromCancelled reconstructs the idempotent-success result from a
// session that is already cancelled.
func resultFromCancelled(session *models.Session) *CancelResult {
	tier := RefundTierNone
	percent := 0
	if session.PriceCents > 0 && session.RefundAmountCents > 0 {
		percent = int(session.RefundAmountCents * 100 / session.PriceCents)
		tier = RefundTierPartial
		if session.RefundAmountCents == session.PriceCents {
			tier = RefundTierFull
		}
	}
	return &CancelResult{
		Session:           session,
		RefundTier:        tier,
		RefundPercent:     percent,
		RefundAmountCents: session.RefundAmountCents,
		RefundReason:      session.CancellationReason.String,
	}
}

// participantRole returns which side of the session the requester is on
func participantRole(session *models.Session, requesterID string) (string, bool) {
	switch requesterID {
	case session.CandidateID:
		return "candidate", true
	case session.InterviewerID:
		return "interviewer", true
	}
	return "", false
}

// refundIdempotencyKey derives the gateway idempotency key for a session's
// refund. Deterministic: retries present the same key.
func refundIdempotencyKey(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID + ":refund"))
	return "refund-" + hex.EncodeToString(sum[:16])
}
