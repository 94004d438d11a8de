package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"interview-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetPackageByID retrieves a coaching package by ID
func (s *Store) GetPackageByID(ctx context.Context, id string) (*models.CoachingPackage, error) {
	var pkg models.CoachingPackage
	err := s.db.GetContext(ctx, &pkg, "SELECT * FROM coaching_packages WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "coaching package", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// DebitPackage consumes one session from a package. The update is guarded on
// remaining_sessions > 0 and status = active so the remaining+used=total
// invariant holds under concurrent bookings. Returns false when the package
// had no sessions left.
func (s *Store) DebitPackage(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coaching_packages
		SET remaining_sessions = remaining_sessions - 1,
		    used_sessions = used_sessions + 1,
		    status = CASE WHEN remaining_sessions - 1 = 0 THEN $1 ELSE status END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND remaining_sessions > 0`,
		models.PackageStatusExhausted, id, models.PackageStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to debit package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreditPackage returns one session to a package after a full-refund
// cancellation. Guarded on used_sessions > 0; re-activates an exhausted
// package.
func (s *Store) CreditPackage(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coaching_packages
		SET remaining_sessions = remaining_sessions + 1,
		    used_sessions = used_sessions - 1,
		    status = CASE WHEN status = $1 THEN $2 ELSE status END,
		    updated_at = NOW()
		WHERE id = $3 AND used_sessions > 0`,
		models.PackageStatusExhausted, models.PackageStatusActive, id)
	if err != nil {
		return false, fmt.Errorf("failed to credit package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
