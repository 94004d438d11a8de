package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"interview-service/internal/gateway"
	"interview-service/internal/models"
	"interview-service/internal/store"
)

// memStore is an in-memory Store for unit tests. Conditional updates hold
// the lock across read and write, matching the atomicity the SQL layer gets
// from single-statement compare-and-set.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	packages map[string]*models.CoachingPackage
	payouts  map[string]*models.Payout
	recons   map[string]*models.ReconciliationRecord

	// failCancel makes CancelSession fail, simulating a ledger write that
	// dies after the gateway already confirmed.
	failCancel     bool
	failMarkPayout bool
	cancelCalls    int
	creditCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.Session),
		packages: make(map[string]*models.CoachingPackage),
		payouts:  make(map[string]*models.Payout),
		recons:   make(map[string]*models.ReconciliationRecord),
	}
}

func (m *memStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *memStore) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "session", ID: id}
	}
	cp := *session
	return &cp, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id, fromStatus, toStatus string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Status != fromStatus {
		return false, nil
	}
	session.Status = toStatus
	session.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) ConfirmPayment(_ context.Context, id, paymentIntentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Status != models.SessionStatusPendingPayment || session.PaymentIntentID.Valid {
		return false, nil
	}
	session.Status = models.SessionStatusScheduled
	session.PaymentStatus = models.PaymentStatusPaid
	session.PaymentIntentID.String = paymentIntentID
	session.PaymentIntentID.Valid = true
	return true, nil
}

func (m *memStore) CompleteSession(_ context.Context, id string, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Status != models.SessionStatusInProgress {
		return false, nil
	}
	session.Status = models.SessionStatusCompleted
	session.CompletedAt.Time = completedAt
	session.CompletedAt.Valid = true
	return true, nil
}

func (m *memStore) CancelSession(_ context.Context, id string, upd store.CancelUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	if m.failCancel {
		return false, errors.New("simulated write failure")
	}
	session, ok := m.sessions[id]
	if !ok || session.Status != upd.FromStatus {
		return false, nil
	}
	session.Status = models.SessionStatusCancelled
	session.PaymentStatus = upd.PaymentStatus
	if upd.RefundID != "" {
		session.RefundID.String = upd.RefundID
		session.RefundID.Valid = true
	}
	session.RefundAmountCents = upd.RefundAmountCents
	session.CancelledAt.Time = upd.CancelledAt
	session.CancelledAt.Valid = true
	session.CancellationReason.String = upd.Reason
	session.CancellationReason.Valid = true
	return true, nil
}

func (m *memStore) ClaimPayableSessions(_ context.Context, interviewerID, payoutID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []models.Session
	for _, session := range m.sessions {
		if session.InterviewerID == interviewerID &&
			session.Status == models.SessionStatusCompleted &&
			session.PaymentStatus == models.PaymentStatusPaid &&
			!session.PayoutID.Valid {
			session.PayoutID.String = payoutID
			session.PayoutID.Valid = true
			claimed = append(claimed, *session)
		}
	}
	return claimed, nil
}

func (m *memStore) ReleaseClaim(_ context.Context, payoutID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.PayoutID.Valid && session.PayoutID.String == payoutID {
			session.PayoutID = sql.NullString{}
		}
	}
	return nil
}

func (m *memStore) GetSessionsByPayoutID(_ context.Context, payoutID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, session := range m.sessions {
		if session.PayoutID.Valid && session.PayoutID.String == payoutID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiredPendingSessions(_ context.Context, cutoff time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, session := range m.sessions {
		if session.Status == models.SessionStatusPendingPayment && session.CreatedAt.Before(cutoff) {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *memStore) ListOverdueScheduledSessions(_ context.Context, cutoff time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, session := range m.sessions {
		if session.Status == models.SessionStatusScheduled && session.ScheduledAt.Before(cutoff) {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *memStore) GetPackageByID(_ context.Context, id string) (*models.CoachingPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.packages[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "coaching package", ID: id}
	}
	cp := *pkg
	return &cp, nil
}

func (m *memStore) DebitPackage(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.packages[id]
	if !ok || pkg.Status != models.PackageStatusActive || pkg.RemainingSessions <= 0 {
		return false, nil
	}
	pkg.RemainingSessions--
	pkg.UsedSessions++
	if pkg.RemainingSessions == 0 {
		pkg.Status = models.PackageStatusExhausted
	}
	return true, nil
}

func (m *memStore) CreditPackage(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditCalls++
	pkg, ok := m.packages[id]
	if !ok || pkg.UsedSessions <= 0 {
		return false, nil
	}
	pkg.RemainingSessions++
	pkg.UsedSessions--
	if pkg.Status == models.PackageStatusExhausted {
		pkg.Status = models.PackageStatusActive
	}
	return true, nil
}

func (m *memStore) CreatePayout(_ context.Context, payout *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout.CreatedAt = time.Now()
	cp := *payout
	m.payouts[payout.ID] = &cp
	return nil
}

func (m *memStore) GetPayoutByID(_ context.Context, id string) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "payout", ID: id}
	}
	cp := *payout
	return &cp, nil
}

func (m *memStore) MarkPayoutCompleted(_ context.Context, id, transferID string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkPayout {
		return errors.New("simulated write failure")
	}
	payout, ok := m.payouts[id]
	if !ok {
		return fmt.Errorf("payout not found: %s", id)
	}
	payout.Status = models.PayoutStatusCompleted
	payout.TransferID.String = transferID
	payout.TransferID.Valid = true
	payout.CompletedAt.Time = completedAt
	payout.CompletedAt.Valid = true
	return nil
}

func (m *memStore) MarkPayoutFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[id]
	if !ok {
		return fmt.Errorf("payout not found: %s", id)
	}
	payout.Status = models.PayoutStatusFailed
	return nil
}

func (m *memStore) CreateReconciliationRecord(_ context.Context, rec *models.ReconciliationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	m.recons[rec.ID] = &cp
	return nil
}

func (m *memStore) GetReconciliationRecord(_ context.Context, sessionID, operation string) (*models.ReconciliationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recons {
		if rec.SessionID == sessionID && rec.Operation == operation {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) RefreshReconciliationIntent(_ context.Context, id string, amountCents int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recons[id]
	if !ok {
		return fmt.Errorf("reconciliation record not found: %s", id)
	}
	if rec.GatewayStatus != models.ReconGatewayNotAttempted {
		return nil
	}
	rec.AmountCents = amountCents
	rec.Reason = reason
	return nil
}

func (m *memStore) UpdateReconciliationGatewayStatus(_ context.Context, id, gatewayStatus, externalRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recons[id]
	if !ok {
		return fmt.Errorf("reconciliation record not found: %s", id)
	}
	rec.GatewayStatus = gatewayStatus
	if externalRef != "" {
		rec.ExternalRef.String = externalRef
		rec.ExternalRef.Valid = true
	}
	return nil
}

func (m *memStore) MarkReconciliationApplied(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recons[id]
	if !ok {
		return fmt.Errorf("reconciliation record not found: %s", id)
	}
	rec.LocalStatus = models.ReconLocalApplied
	return nil
}

func (m *memStore) ListUnappliedReconciliations(_ context.Context) ([]models.ReconciliationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReconciliationRecord
	for _, rec := range m.recons {
		if rec.GatewayStatus == models.ReconGatewayConfirmed && rec.LocalStatus == models.ReconLocalPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) reconBySession(sessionID, operation string) *models.ReconciliationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recons {
		if rec.SessionID == sessionID && rec.Operation == operation {
			cp := *rec
			return &cp
		}
	}
	return nil
}

// fakeGateway counts calls and serves canned results
type fakeGateway struct {
	mu            sync.Mutex
	refundCalls   int
	transferCalls int
	refundErr     error
	transferErr   error
	lastKey       string
}

func (g *fakeGateway) Charge(_ context.Context, _ int64, _, _ string) (string, error) {
	return "pi_fake", nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, _ int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	g.lastKey = idempotencyKey
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "re_fake", nil
}

func (g *fakeGateway) Transfer(_ context.Context, _ string, _ int64, idempotencyKey string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls++
	g.lastKey = idempotencyKey
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return "tr_fake", nil
}

var _ Store = (*memStore)(nil)

var _ gateway.Gateway = (*fakeGateway)(nil)

// nopPublisher drops every event
type nopPublisher struct{}

func (nopPublisher) PublishSessionBooked(context.Context, *models.SessionBookedEvent) error { return nil }
func (nopPublisher) PublishSessionStarted(context.Context, *models.SessionStartedEvent) error {
	return nil
}
func (nopPublisher) PublishSessionCompleted(context.Context, *models.SessionCompletedEvent) error {
	return nil
}
func (nopPublisher) PublishSessionCancelled(context.Context, *models.SessionCancelledEvent) error {
	return nil
}
func (nopPublisher) PublishSessionNoShow(context.Context, *models.SessionNoShowEvent) error {
	return nil
}
func (nopPublisher) PublishRefundIssued(context.Context, *models.RefundIssuedEvent) error { return nil }
func (nopPublisher) PublishPayoutCompleted(context.Context, *models.PayoutCompletedEvent) error {
	return nil
}
func (nopPublisher) PublishPayoutFailed(context.Context, *models.PayoutFailedEvent) error { return nil }
