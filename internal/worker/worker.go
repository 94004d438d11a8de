package worker

import (
	"context"
	"time"

	"interview-service/internal/broker"
	"interview-service/internal/models"
	"interview-service/internal/service"
	"interview-service/internal/util"

	"go.uber.org/zap"
)

// EventDeduper tracks which broker events have already been handled.
// *store.Store satisfies it.
type EventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// PaymentConfirmationWorker consumes gateway payment confirmations and feeds
// them into the session state machine.
type PaymentConfirmationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPaymentConfirmationWorker creates a new payment confirmation worker
func NewPaymentConfirmationWorker(consumer *broker.Consumer, sessions *service.SessionService, dedup EventDeduper) *PaymentConfirmationWorker {
	eventHandler := broker.NewEventHandler()
	logger := util.GetLogger()

	eventHandler.OnPaymentConfirmed(func(ctx context.Context, event *models.PaymentConfirmedEvent) error {
		processed, err := dedup.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return err
		}
		if processed {
			logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}

		if err := sessions.ConfirmPayment(ctx, event.SessionID, event.PaymentIntentID); err != nil {
			return err
		}

		if err := dedup.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			logger.Error("Failed to mark event processed", zap.Error(err))
		}
		return nil
	})

	return &PaymentConfirmationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *PaymentConfirmationWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting payment confirmation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentConfirmationWorker) Stop() error {
	util.GetLogger().Info("Stopping payment confirmation worker")
	return w.consumer.Close()
}

// ReconcileWorker periodically applies confirmed-but-unapplied money
// movements to the local ledger.
type ReconcileWorker struct {
	reconciler *service.Reconciler
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(reconciler *service.Reconciler, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
		logger:     util.GetLogger(),
	}
}

// Start runs the reconciler on a ticker until ctx is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker stopping")
			return ctx.Err()
		case <-ticker.C:
			applied, err := w.reconciler.Run(ctx)
			if err != nil {
				w.logger.Error("Reconciler scan failed", zap.Error(err))
				continue
			}
			if applied > 0 {
				w.logger.Info("Reconciler applied records", zap.Int("count", applied))
			}
		}
	}
}

// SweepWorker periodically expires abandoned bookings and marks no-shows
type SweepWorker struct {
	sessions *service.SessionService
	interval time.Duration
	logger   *zap.Logger
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sessions *service.SessionService, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		sessions: sessions,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweeps on a ticker until ctx is cancelled
func (w *SweepWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sweep worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Sweep worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.sessions.ExpirePendingSessions(ctx); err != nil {
				w.logger.Error("Pending-payment sweep failed", zap.Error(err))
			}
			if _, err := w.sessions.SweepNoShows(ctx); err != nil {
				w.logger.Error("No-show sweep failed", zap.Error(err))
			}
		}
	}
}
