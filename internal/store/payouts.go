package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"interview-service/internal/models"
)

// CreatePayout inserts a new payout row
func (s *Store) CreatePayout(ctx context.Context, payout *models.Payout) error {
	query := `
		INSERT INTO payouts (id, interviewer_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	return s.db.QueryRowxContext(ctx, query,
		payout.ID, payout.InterviewerID, payout.AmountCents,
		payout.Currency, payout.Status,
	).Scan(&payout.CreatedAt)
}

// GetPayoutByID retrieves a payout by ID
func (s *Store) GetPayoutByID(ctx context.Context, id string) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.GetContext(ctx, &payout, "SELECT * FROM payouts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "payout", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// MarkPayoutCompleted records a confirmed gateway transfer
func (s *Store) MarkPayoutCompleted(ctx context.Context, id, transferID string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payouts SET status = $1, transfer_id = $2, completed_at = $3 WHERE id = $4",
		models.PayoutStatusCompleted, transferID, completedAt, id)
	return err
}

// MarkPayoutFailed records a failed gateway transfer. The claimed sessions
// stay attached so an ops retry re-attempts the same payout id.
func (s *Store) MarkPayoutFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payouts SET status = $1 WHERE id = $2",
		models.PayoutStatusFailed, id)
	return err
}

// CreateReconciliationRecord durably writes the intent to move money before
// the gateway is called.
func (s *Store) CreateReconciliationRecord(ctx context.Context, rec *models.ReconciliationRecord) error {
	query := `
		INSERT INTO reconciliation_records (
			id, session_id, operation, idempotency_key,
			gateway_status, local_status, amount_cents, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		rec.ID, rec.SessionID, rec.Operation, rec.IdempotencyKey,
		rec.GatewayStatus, rec.LocalStatus, rec.AmountCents, rec.Reason,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetReconciliationRecord finds the intent record for one session/operation
// pair, so a retry reuses the same idempotency key.
func (s *Store) GetReconciliationRecord(ctx context.Context, sessionID, operation string) (*models.ReconciliationRecord, error) {
	var rec models.ReconciliationRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM reconciliation_records WHERE session_id = $1 AND operation = $2",
		sessionID, operation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RefreshReconciliationIntent re-stamps the amount and reason of an intent
// whose gateway call was never attempted. Once anything was sent the recorded
// amount is immutable: it is the amount the gateway may have moved.
func (s *Store) RefreshReconciliationIntent(ctx context.Context, id string, amountCents int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_records
		SET amount_cents = $1, reason = $2, updated_at = NOW()
		WHERE id = $3 AND gateway_status = $4`,
		amountCents, reason, id, models.ReconGatewayNotAttempted)
	if err != nil {
		return fmt.Errorf("failed to refresh reconciliation intent: %w", err)
	}
	return nil
}

// UpdateReconciliationGatewayStatus records how far the gateway call got
func (s *Store) UpdateReconciliationGatewayStatus(ctx context.Context, id, gatewayStatus, externalRef string) error {
	var ref interface{}
	if externalRef != "" {
		ref = externalRef
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_records
		SET gateway_status = $1, external_ref = COALESCE($2, external_ref), updated_at = NOW()
		WHERE id = $3`,
		gatewayStatus, ref, id)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation gateway status: %w", err)
	}
	return nil
}

// MarkReconciliationApplied finalizes a record once the local ledger update
// landed.
func (s *Store) MarkReconciliationApplied(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reconciliation_records SET local_status = $1, updated_at = NOW() WHERE id = $2",
		models.ReconLocalApplied, id)
	return err
}

// ListUnappliedReconciliations finds records where the gateway confirmed a
// money movement but the local apply has not landed. The background
// reconciler scans these.
func (s *Store) ListUnappliedReconciliations(ctx context.Context) ([]models.ReconciliationRecord, error) {
	var recs []models.ReconciliationRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM reconciliation_records
		WHERE gateway_status = $1 AND local_status = $2
		ORDER BY created_at`,
		models.ReconGatewayConfirmed, models.ReconLocalPending)
	return recs, err
}
