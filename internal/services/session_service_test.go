package services

import (
	"context"
	"testing"
	"time"

	contextutils "feedbackapp/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "user_id", "feedback_id", "submission_id",
	"started_at", "ended_at", "duration_seconds", "created_at", "updated_at",
}

func sessionFixture(t *testing.T, now time.Time) (*SessionService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	service := NewSessionService(db, testLogger())
	service.now = func() time.Time { return now }
	return service, mock
}

func openSessionRow(id, userID, feedbackID int, startedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).
		AddRow(id, userID, feedbackID, nil, startedAt, nil, nil, startedAt, startedAt)
}

func TestStartSession_CreatesOpenSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	mock.ExpectQuery("INSERT INTO submission_sessions").
		WithArgs(42, 1, now).
		WillReturnRows(openSessionRow(10, 42, 1, now))

	session, err := service.StartSession(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, session.ID)
	assert.True(t, session.Open())
}

func TestFindOpenSession_NoneIsSessionNotFound(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := service.FindOpenSession(context.Background(), 42)
	assert.True(t, contextutils.IsError(err, contextutils.ErrSessionNotFound))
}

func TestStartSession_StaleCloseFailureDoesNotBlockStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	startedEarlier := now.Add(-10 * time.Minute)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(openSessionRow(10, 42, 1, startedEarlier))
	mock.ExpectQuery("UPDATE submission_sessions").
		WithArgs(now, int64(600), 10).
		WillReturnError(assert.AnError)
	mock.ExpectQuery("INSERT INTO submission_sessions").
		WithArgs(42, 2, now).
		WillReturnRows(openSessionRow(11, 42, 2, now))

	session, err := service.StartSession(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.Equal(t, 11, session.ID)
}

func TestStartSession_ClosesStaleOpenSessionFirst(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	startedEarlier := now.Add(-10 * time.Minute)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(openSessionRow(10, 42, 1, startedEarlier))
	mock.ExpectQuery("UPDATE submission_sessions").
		WithArgs(now, int64(600), 10).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(10, 42, 1, nil, startedEarlier, now, 600, startedEarlier, now))
	mock.ExpectQuery("INSERT INTO submission_sessions").
		WithArgs(42, 2, now).
		WillReturnRows(openSessionRow(11, 42, 2, now))

	session, err := service.StartSession(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.Equal(t, 11, session.ID)
}

func TestStartSession_RetriesOnLostRace(t *testing.T) {
	// A concurrent start wins the insert race; the partial unique index
	// rejects our row, and the second pass closes the winner before
	// inserting again.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WillReturnRows(sqlmock.NewRows(sessionColumns))
	mock.ExpectQuery("INSERT INTO submission_sessions").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WillReturnRows(openSessionRow(20, 42, 1, now))
	mock.ExpectQuery("UPDATE submission_sessions").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(20, 42, 1, nil, now, now, 0, now, now))
	mock.ExpectQuery("INSERT INTO submission_sessions").
		WillReturnRows(openSessionRow(21, 42, 1, now))

	session, err := service.StartSession(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 21, session.ID)
}

func TestStopSession_ComputesDuration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 1, 30, 0, time.UTC)
	startedAt := now.Add(-90 * time.Second)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(openSessionRow(10, 42, 1, startedAt))
	mock.ExpectQuery("UPDATE submission_sessions").
		WithArgs(now, int64(90), 10).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(10, 42, 1, nil, startedAt, now, 90, startedAt, now))

	session, err := service.StopSession(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.False(t, session.Open())
	assert.Equal(t, int64(90), session.DurationSeconds.Int64)
}

func TestStopSession_NoOpenSessionIsBenign(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("SELECT (.+) FROM submission_sessions").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	session, err := service.StopSession(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSumDurations_FiltersByUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	userID := 42

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(duration_seconds\\), 0\\)").
		WithArgs(from, to, userID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1234))

	total, err := service.SumDurations(context.Background(), &userID, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), total)
}

func TestMonthlyTotal_Global(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(duration_seconds\\), 0\\)").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0))

	total, err := service.MonthlyTotal(context.Background(), nil, 2025, time.June)
	require.NoError(t, err)
	assert.Equal(t, 2025, total.Year)
	assert.Equal(t, 6, total.Month)
	assert.Equal(t, int64(0), total.TotalSeconds)
}

func TestAttachSubmission_LinksBothDirections(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("UPDATE submission_sessions").
		WithArgs(7, now, 42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectExec("UPDATE submissions SET session_id").
		WithArgs(10, now, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.AttachSubmission(context.Background(), 42, 7)
	require.NoError(t, err)
}

func TestAttachSubmission_NoClosedSessionIsBenign(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service, mock := sessionFixture(t, now)

	mock.ExpectQuery("UPDATE submission_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := service.AttachSubmission(context.Background(), 42, 7)
	require.NoError(t, err)
}
