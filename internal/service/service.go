package service

import (
	"context"
	"time"

	"interview-service/internal/models"
	"interview-service/internal/store"
)

// Store is the persistence surface the services need. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	TransitionStatus(ctx context.Context, id, fromStatus, toStatus string) (bool, error)
	ConfirmPayment(ctx context.Context, id, paymentIntentID string) (bool, error)
	CompleteSession(ctx context.Context, id string, completedAt time.Time) (bool, error)
	CancelSession(ctx context.Context, id string, upd store.CancelUpdate) (bool, error)
	ClaimPayableSessions(ctx context.Context, interviewerID, payoutID string) ([]models.Session, error)
	ReleaseClaim(ctx context.Context, payoutID string) error
	GetSessionsByPayoutID(ctx context.Context, payoutID string) ([]models.Session, error)
	ListExpiredPendingSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error)
	ListOverdueScheduledSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error)

	GetPackageByID(ctx context.Context, id string) (*models.CoachingPackage, error)
	DebitPackage(ctx context.Context, id string) (bool, error)
	CreditPackage(ctx context.Context, id string) (bool, error)

	CreatePayout(ctx context.Context, payout *models.Payout) error
	GetPayoutByID(ctx context.Context, id string) (*models.Payout, error)
	MarkPayoutCompleted(ctx context.Context, id, transferID string, completedAt time.Time) error
	MarkPayoutFailed(ctx context.Context, id string) error

	CreateReconciliationRecord(ctx context.Context, rec *models.ReconciliationRecord) error
	GetReconciliationRecord(ctx context.Context, sessionID, operation string) (*models.ReconciliationRecord, error)
	RefreshReconciliationIntent(ctx context.Context, id string, amountCents int64, reason string) error
	UpdateReconciliationGatewayStatus(ctx context.Context, id, gatewayStatus, externalRef string) error
	MarkReconciliationApplied(ctx context.Context, id string) error
	ListUnappliedReconciliations(ctx context.Context) ([]models.ReconciliationRecord, error)
}

// EventPublisher is the domain-event surface. *broker.EventPublisher
// satisfies it; tests pass a no-op.
type EventPublisher interface {
	PublishSessionBooked(ctx context.Context, event *models.SessionBookedEvent) error
	PublishSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error
	PublishSessionCompleted(ctx context.Context, event *models.SessionCompletedEvent) error
	PublishSessionCancelled(ctx context.Context, event *models.SessionCancelledEvent) error
	PublishSessionNoShow(ctx context.Context, event *models.SessionNoShowEvent) error
	PublishRefundIssued(ctx context.Context, event *models.RefundIssuedEvent) error
	PublishPayoutCompleted(ctx context.Context, event *models.PayoutCompletedEvent) error
	PublishPayoutFailed(ctx context.Context, event *models.PayoutFailedEvent) error
}
