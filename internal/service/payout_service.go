package service

import (
	"context"
	"fmt"
	"time"

	"interview-service/config"
	"interview-service/internal/gateway"
	"interview-service/internal/models"
	"interview-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayoutService batches an interviewer's unpaid completed sessions into one
// gateway transfer. The claim (setting payout_id where it is null) is the
// concurrency guard: a session can be claimed by at most one payout run.
type PayoutService struct {
	store   Store
	gateway gateway.Gateway
	events  EventPublisher
	cfg     config.BusinessConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewPayoutService creates a new payout service
func NewPayoutService(store Store, gw gateway.Gateway, events EventPublisher, cfg config.BusinessConfig) *PayoutService {
	return &PayoutService{
		store:   store,
		gateway: gw,
		events:  events,
		cfg:     cfg,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// RequestPayout claims every payable session of the interviewer and
// transfers the aggregate to their account.
func (s *PayoutService) RequestPayout(ctx context.Context, interviewerID string) (*models.Payout, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.RequestPayout")
	defer span.End()

	if interviewerID == "" {
		return nil, &models.ValidationError{Field: "interviewer_id", Reason: "required"}
	}

	util.PayoutsRequestedTotal.Inc()

	payoutID := uuid.New().String()

	claimed, err := s.store.ClaimPayableSessions(ctx, interviewerID, payoutID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, session := range claimed {
		total += session.PayoutCents
	}

	if total < s.cfg.MinPayoutCents {
		// Below the minimum: release the claim so the sessions stay payable
		// for a later run.
		if len(claimed) > 0 {
			if rErr := s.store.ReleaseClaim(ctx, payoutID); rErr != nil {
				s.logger.Error("Failed to release payout claim",
					zap.String("payout_id", payoutID),
					zap.Error(rErr))
			}
		}
		util.PayoutsFailedTotal.WithLabelValues("insufficient_funds").Inc()
		return nil, &models.NoEligibleFundsError{
			InterviewerID:  interviewerID,
			ShortfallCents: s.cfg.MinPayoutCents - total,
		}
	}

	payout := &models.Payout{
		ID:            payoutID,
		InterviewerID: interviewerID,
		AmountCents:   total,
		Currency:      s.cfg.PayoutCurrency,
		Status:        models.PayoutStatusPending,
	}
	for _, session := range claimed {
		payout.SessionIDs = append(payout.SessionIDs, session.ID)
	}

	if err := s.store.CreatePayout(ctx, payout); err != nil {
		if rErr := s.store.ReleaseClaim(ctx, payoutID); rErr != nil {
			s.logger.Error("Failed to release payout claim",
				zap.String("payout_id", payoutID),
				zap.Error(rErr))
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	s.logger.Info("Payout claimed",
		zap.String("payout_id", payoutID),
		zap.String("interviewer_id", interviewerID),
		zap.Int("sessions", len(claimed)),
		zap.Int64("amount_cents", total))

	return s.transfer(ctx, payout)
}

// RetryPayout re-attempts the transfer of a failed or stalled payout. The
// payout id is the idempotency key, so a transfer that actually went through
// the first time is not duplicated.
func (s *PayoutService) RetryPayout(ctx context.Context, payoutID string) (*models.Payout, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.RetryPayout")
	defer span.End()

	payout, err := s.store.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == models.PayoutStatusCompleted {
		return s.withSessions(ctx, payout)
	}
	if payout.Status == models.PayoutStatusPending {
		// A pending payout is only retryable when a transfer intent is
		// already on record, meaning an earlier attempt stalled with an
		// unknown outcome. Re-presenting the payout id settles it either way.
		rec, rErr := s.store.GetReconciliationRecord(ctx, payout.ID, models.ReconOpPayoutTransfer)
		if rErr != nil {
			return nil, rErr
		}
		if rec == nil {
			return nil, &models.ValidationError{Field: "payout_id", Reason: "payout is not in a retryable state"}
		}
	}

	return s.transfer(ctx, payout)
}

// GetPayout retrieves a payout with its claimed sessions
func (s *PayoutService) GetPayout(ctx context.Context, payoutID string) (*models.Payout, error) {
	payout, err := s.store.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	return s.withSessions(ctx, payout)
}

// transfer writes the intent record, calls the gateway, and applies the
// outcome. The payout id doubles as the gateway idempotency key.
func (s *PayoutService) transfer(ctx context.Context, payout *models.Payout) (*models.Payout, error) {
	rec, err := s.ensureTransferIntent(ctx, payout)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateReconciliationGatewayStatus(ctx, rec.ID, models.ReconGatewaySent, ""); err != nil {
		return nil, err
	}

	// The interviewer's platform id doubles as the gateway destination
	// account; the mapping to a connected payout account lives in the
	// gateway, not here.
	transferID, err := s.gateway.Transfer(ctx, payout.InterviewerID, payout.AmountCents, payout.ID)
	if err != nil {
		if gateway.IsUnknownOutcome(err) {
			// The transfer may have gone through. Keep the payout pending
			// and leave the intent open instead of risking a second claim.
			s.logger.Error("Transfer outcome unknown, reconciliation required",
				zap.String("payout_id", payout.ID),
				zap.Bool("reconciliation_pending", true),
				zap.Error(err))
			return nil, &models.ReconciliationRequired{
				SessionID: payout.ID,
				Operation: models.ReconOpPayoutTransfer,
				RecordID:  rec.ID,
			}
		}

		// Definite failure: the payout keeps its claimed sessions so a
		// retry re-attempts this same payout rather than double-claiming.
		if mErr := s.store.MarkPayoutFailed(ctx, payout.ID); mErr != nil {
			s.logger.Error("Failed to mark payout failed", zap.Error(mErr))
		}
		util.PayoutsFailedTotal.WithLabelValues("gateway_error").Inc()

		event := &models.PayoutFailedEvent{
			BaseEvent:     newBaseEvent(models.EventTypePayoutFailed),
			PayoutID:      payout.ID,
			InterviewerID: payout.InterviewerID,
			Reason:        err.Error(),
		}
		if pubErr := s.events.PublishPayoutFailed(ctx, event); pubErr != nil {
			s.logger.Error("Failed to publish PayoutFailed event", zap.Error(pubErr))
		}

		return nil, &models.GatewayError{Operation: models.ReconOpPayoutTransfer, Err: err}
	}

	if err := s.store.UpdateReconciliationGatewayStatus(ctx, rec.ID, models.ReconGatewayConfirmed, transferID); err != nil {
		s.logger.Error("Failed to record transfer confirmation", zap.Error(err))
	}

	completedAt := s.now()
	if err := s.store.MarkPayoutCompleted(ctx, payout.ID, transferID, completedAt); err != nil {
		s.logger.Error("Transfer confirmed but local apply failed, reconciliation required",
			zap.String("payout_id", payout.ID),
			zap.Bool("reconciliation_pending", true),
			zap.Error(err))
		util.ReconciliationPending.Inc()
		return nil, &models.ReconciliationRequired{
			SessionID: payout.ID,
			Operation: models.ReconOpPayoutTransfer,
			RecordID:  rec.ID,
		}
	}

	if err := s.store.MarkReconciliationApplied(ctx, rec.ID); err != nil {
		s.logger.Error("Failed to finalize reconciliation record", zap.Error(err))
	}

	payout.Status = models.PayoutStatusCompleted
	payout.TransferID.String = transferID
	payout.TransferID.Valid = true
	payout.CompletedAt.Time = completedAt
	payout.CompletedAt.Valid = true

	util.PayoutsCompletedTotal.Inc()
	s.logger.Info("Payout completed",
		zap.String("payout_id", payout.ID),
		zap.String("transfer_id", transferID),
		zap.Int64("amount_cents", payout.AmountCents))

	event := &models.PayoutCompletedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePayoutCompleted),
		PayoutID:      payout.ID,
		InterviewerID: payout.InterviewerID,
		AmountCents:   payout.AmountCents,
		SessionCount:  len(payout.SessionIDs),
	}
	if pubErr := s.events.PublishPayoutCompleted(ctx, event); pubErr != nil {
		s.logger.Error("Failed to publish PayoutCompleted event", zap.Error(pubErr))
	}

	return s.withSessions(ctx, payout)
}

func (s *PayoutService) ensureTransferIntent(ctx context.Context, payout *models.Payout) (*models.ReconciliationRecord, error) {
	rec, err := s.store.GetReconciliationRecord(ctx, payout.ID, models.ReconOpPayoutTransfer)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	rec = &models.ReconciliationRecord{
		ID:             uuid.New().String(),
		SessionID:      payout.ID,
		Operation:      models.ReconOpPayoutTransfer,
		IdempotencyKey: payout.ID,
		GatewayStatus:  models.ReconGatewayNotAttempted,
		LocalStatus:    models.ReconLocalPending,
		AmountCents:    payout.AmountCents,
	}
	if err := s.store.CreateReconciliationRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to write transfer intent: %w", err)
	}
	return rec, nil
}

func (s *PayoutService) withSessions(ctx context.Context, payout *models.Payout) (*models.Payout, error) {
	if len(payout.SessionIDs) == 0 {
		sessions, err := s.store.GetSessionsByPayoutID(ctx, payout.ID)
		if err != nil {
			return nil, err
		}
		for _, session := range sessions {
			payout.SessionIDs = append(payout.SessionIDs, session.ID)
		}
	}
	return payout, nil
}
