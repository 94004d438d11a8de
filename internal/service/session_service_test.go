package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"interview-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionFixture(t *testing.T) (*SessionService, *memStore) {
	t.Helper()
	st := newMemStore()
	svc := NewSessionService(st, nopPublisher{}, testBusinessConfig())
	svc.now = func() time.Time { return testNow }
	return svc, st
}

func bookRequest() *BookSessionRequest {
	return &BookSessionRequest{
		CandidateID:     "cand-1",
		InterviewerID:   "int-1",
		ScheduledAt:     testNow.Add(48 * time.Hour),
		DurationMinutes: 60,
		PriceCents:      10000,
	}
}

func TestBookSessionSplitsFee(t *testing.T) {
	svc, st := newSessionFixture(t)

	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusPendingPayment, session.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, session.PaymentStatus)
	assert.Equal(t, int64(10000), session.PriceCents)
	assert.Equal(t, int64(2000), session.PlatformFeeCents)
	assert.Equal(t, int64(8000), session.PayoutCents)

	stored, err := st.GetSessionByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
}

func TestBookSessionRejectsPastTime(t *testing.T) {
	svc, _ := newSessionFixture(t)

	req := bookRequest()
	req.ScheduledAt = testNow.Add(-time.Hour)

	_, err := svc.BookSession(context.Background(), req)

	var valErr *models.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "scheduled_at", valErr.Field)
}

func TestBookSessionRejectsSelfBooking(t *testing.T) {
	svc, _ := newSessionFixture(t)

	req := bookRequest()
	req.InterviewerID = req.CandidateID

	_, err := svc.BookSession(context.Background(), req)

	var valErr *models.ValidationError
	require.True(t, errors.As(err, &valErr))
}

func TestBookSessionWithPackageDebitsAndSchedules(t *testing.T) {
	svc, st := newSessionFixture(t)
	st.packages["pkg-1"] = &models.CoachingPackage{
		ID:                "pkg-1",
		UserID:            "cand-1",
		TotalSessions:     5,
		RemainingSessions: 1,
		UsedSessions:      4,
		Status:            models.PackageStatusActive,
	}

	req := bookRequest()
	req.PackageID = "pkg-1"

	session, err := svc.BookSession(context.Background(), req)
	require.NoError(t, err)

	// No per-session charge: the booking is live immediately.
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.Equal(t, models.PaymentStatusPaid, session.PaymentStatus)
	assert.Equal(t, "pkg-1", session.CoachingPackageID.String)
	assert.False(t, session.PaymentIntentID.Valid)

	assert.Equal(t, 0, st.packages["pkg-1"].RemainingSessions)
	assert.Equal(t, 5, st.packages["pkg-1"].UsedSessions)
	assert.Equal(t, models.PackageStatusExhausted, st.packages["pkg-1"].Status)
}

func TestBookSessionExhaustedPackage(t *testing.T) {
	svc, st := newSessionFixture(t)
	st.packages["pkg-1"] = &models.CoachingPackage{
		ID:                "pkg-1",
		UserID:            "cand-1",
		TotalSessions:     5,
		RemainingSessions: 0,
		UsedSessions:      5,
		Status:            models.PackageStatusExhausted,
	}

	req := bookRequest()
	req.PackageID = "pkg-1"

	_, err := svc.BookSession(context.Background(), req)

	var valErr *models.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "package_id", valErr.Field)
	assert.Equal(t, 0, st.packages["pkg-1"].RemainingSessions)
}

func TestBookSessionRejectsForeignPackage(t *testing.T) {
	svc, st := newSessionFixture(t)
	st.packages["pkg-1"] = &models.CoachingPackage{
		ID:                "pkg-1",
		UserID:            "someone-else",
		TotalSessions:     5,
		RemainingSessions: 5,
		Status:            models.PackageStatusActive,
	}

	req := bookRequest()
	req.PackageID = "pkg-1"

	_, err := svc.BookSession(context.Background(), req)

	var authErr *models.AuthorizationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 5, st.packages["pkg-1"].RemainingSessions)
}

func TestConfirmPaymentSchedulesSession(t *testing.T) {
	svc, st := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))

	stored, _ := st.GetSessionByID(context.Background(), session.ID)
	assert.Equal(t, models.SessionStatusScheduled, stored.Status)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, "pi_123", stored.PaymentIntentID.String)
}

func TestConfirmPaymentRedeliveryIsIdempotent(t *testing.T) {
	svc, st := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))
	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))

	stored, _ := st.GetSessionByID(context.Background(), session.ID)
	assert.Equal(t, "pi_123", stored.PaymentIntentID.String)
}

func TestConfirmPaymentOnCancelledSession(t *testing.T) {
	svc, st := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	st.sessions[session.ID].Status = models.SessionStatusCancelled

	err = svc.ConfirmPayment(context.Background(), session.ID, "pi_123")

	var termErr *models.TerminalStateError
	require.True(t, errors.As(err, &termErr))
	assert.Equal(t, models.SessionStatusCancelled, termErr.CurrentStatus)
}

func TestStartAndCompleteSession(t *testing.T) {
	svc, st := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))

	require.NoError(t, svc.StartSession(context.Background(), session.ID))
	stored, _ := st.GetSessionByID(context.Background(), session.ID)
	assert.Equal(t, models.SessionStatusInProgress, stored.Status)

	require.NoError(t, svc.CompleteSession(context.Background(), session.ID))
	stored, _ = st.GetSessionByID(context.Background(), session.ID)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status)
	assert.Equal(t, testNow, stored.CompletedAt.Time)
}

func TestStartUnpaidSessionFails(t *testing.T) {
	svc, _ := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)

	err = svc.StartSession(context.Background(), session.ID)

	var transitionErr *models.InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, models.SessionStatusPendingPayment, transitionErr.CurrentStatus)
	assert.Equal(t, models.SessionStatusInProgress, transitionErr.TargetStatus)
}

func TestCompleteSkippingInProgressFails(t *testing.T) {
	svc, _ := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))

	err = svc.CompleteSession(context.Background(), session.ID)

	var transitionErr *models.InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
}

func TestCompleteRedeliveryIsIdempotent(t *testing.T) {
	svc, _ := newSessionFixture(t)
	session, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), session.ID, "pi_123"))
	require.NoError(t, svc.StartSession(context.Background(), session.ID))

	require.NoError(t, svc.CompleteSession(context.Background(), session.ID))
	require.NoError(t, svc.CompleteSession(context.Background(), session.ID))
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newSessionFixture(t)

	_, err := svc.GetSession(context.Background(), "missing")

	var nfErr *models.NotFoundError
	require.True(t, errors.As(err, &nfErr))
}

func TestExpirePendingSessions(t *testing.T) {
	svc, st := newSessionFixture(t)

	stale, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	st.sessions[stale.ID].CreatedAt = testNow.Add(-time.Hour)

	fresh, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	st.sessions[fresh.ID].CreatedAt = testNow.Add(-5 * time.Minute)

	expired, err := svc.ExpirePendingSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	staleStored, _ := st.GetSessionByID(context.Background(), stale.ID)
	assert.Equal(t, models.SessionStatusCancelled, staleStored.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, staleStored.PaymentStatus)
	assert.Equal(t, "Payment not completed in time", staleStored.CancellationReason.String)

	freshStored, _ := st.GetSessionByID(context.Background(), fresh.ID)
	assert.Equal(t, models.SessionStatusPendingPayment, freshStored.Status)
}

func TestSweepNoShows(t *testing.T) {
	svc, st := newSessionFixture(t)

	overdue, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), overdue.ID, "pi_1"))
	st.sessions[overdue.ID].ScheduledAt = testNow.Add(-time.Hour)

	upcoming, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), upcoming.ID, "pi_2"))

	// In progress sessions are past their start time but must not be
	// swept.
	started, err := svc.BookSession(context.Background(), bookRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmPayment(context.Background(), started.ID, "pi_3"))
	require.NoError(t, svc.StartSession(context.Background(), started.ID))
	st.sessions[started.ID].ScheduledAt = testNow.Add(-time.Hour)

	swept, err := svc.SweepNoShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	overdueStored, _ := st.GetSessionByID(context.Background(), overdue.ID)
	assert.Equal(t, models.SessionStatusNoShow, overdueStored.Status)

	startedStored, _ := st.GetSessionByID(context.Background(), started.ID)
	assert.Equal(t, models.SessionStatusInProgress, startedStored.Status)
}
