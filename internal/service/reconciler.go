package service

import (
	"context"
	"time"

	"interview-service/internal/models"
	"interview-service/internal/store"
	"interview-service/internal/util"

	"go.uber.org/zap"
)

// Reconciler finishes the local side of money movements the gateway already
// confirmed. It retries only the local ledger write; it never re-issues the
// external call, so an imperfect gateway idempotency guarantee can never
// cause a double refund or double transfer.
type Reconciler struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// Run scans for confirmed-but-unapplied records and applies each one.
// Returns how many records were applied.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	records, err := r.store.ListUnappliedReconciliations(ctx)
	if err != nil {
		return 0, err
	}

	util.ReconciliationPending.Set(float64(len(records)))

	applied := 0
	for _, rec := range records {
		var err error
		switch rec.Operation {
		case models.ReconOpRefund:
			err = r.applyRefund(ctx, rec)
		case models.ReconOpPayoutTransfer:
			err = r.applyTransfer(ctx, rec)
		default:
			r.logger.Warn("Unknown reconciliation operation",
				zap.String("record_id", rec.ID),
				zap.String("operation", rec.Operation))
			continue
		}

		if err != nil {
			r.logger.Error("Reconciliation apply failed, will retry",
				zap.String("record_id", rec.ID),
				zap.String("operation", rec.Operation),
				zap.Error(err))
			continue
		}

		if err := r.store.MarkReconciliationApplied(ctx, rec.ID); err != nil {
			r.logger.Error("Failed to finalize reconciliation record",
				zap.String("record_id", rec.ID),
				zap.Error(err))
			continue
		}

		applied++
		util.ReconciliationAppliedTotal.Inc()
		util.ReconciliationPending.Dec()
		r.logger.Info("Reconciliation applied",
			zap.String("record_id", rec.ID),
			zap.String("operation", rec.Operation))
	}

	return applied, nil
}

// applyRefund finishes the session-side bookkeeping of a confirmed refund
func (r *Reconciler) applyRefund(ctx context.Context, rec models.ReconciliationRecord) error {
	session, err := r.store.GetSessionByID(ctx, rec.SessionID)
	if err != nil {
		return err
	}

	if session.Status == models.SessionStatusCancelled {
		// The original writer got there after all; nothing left to apply.
		return nil
	}
	if models.IsTerminalStatus(session.Status) {
		// The session ended some other way while the refund sat unapplied.
		// Terminal states are final and a completed session may already be
		// claimed by a payout, so leave the record for an operator.
		r.logger.Error("Confirmed refund cannot be applied to a terminal session, manual resolution required",
			zap.String("session_id", session.ID),
			zap.String("status", session.Status),
			zap.String("record_id", rec.ID),
			zap.Bool("reconciliation_pending", true))
		return &models.TerminalStateError{SessionID: session.ID, CurrentStatus: session.Status}
	}

	paymentStatus := models.PaymentStatusPartiallyRefunded
	if rec.AmountCents == session.PriceCents {
		paymentStatus = models.PaymentStatusRefunded
	}

	applied, err := r.store.CancelSession(ctx, rec.SessionID, store.CancelUpdate{
		FromStatus:        session.Status,
		PaymentStatus:     paymentStatus,
		RefundID:          rec.ExternalRef.String,
		RefundAmountCents: rec.AmountCents,
		CancelledAt:       r.now(),
		Reason:            rec.Reason,
	})
	if err != nil {
		return err
	}
	if !applied {
		return &models.StaleStateError{SessionID: rec.SessionID, ExpectedStatus: session.Status}
	}
	return nil
}

// applyTransfer finishes the payout-side bookkeeping of a confirmed
// transfer. For transfer records the record's session id holds the payout
// id, since the payout row is the entity being reconciled.
func (r *Reconciler) applyTransfer(ctx context.Context, rec models.ReconciliationRecord) error {
	payout, err := r.store.GetPayoutByID(ctx, rec.SessionID)
	if err != nil {
		return err
	}

	if payout.Status == models.PayoutStatusCompleted {
		return nil
	}

	return r.store.MarkPayoutCompleted(ctx, payout.ID, rec.ExternalRef.String, r.now())
}
