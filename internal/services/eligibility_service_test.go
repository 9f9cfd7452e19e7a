package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func eligibilityFixture(t *testing.T, feedback *models.Feedback, targeted bool) (*EligibilityService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	feedbackStub := &stubFeedbackService{
		getByID: func(_ context.Context, _ int) (*models.Feedback, error) {
			return feedback, nil
		},
	}
	targetingStub := &stubTargetingService{
		isTargeted: func(_ context.Context, _, _ int) (bool, error) {
			return targeted, nil
		},
	}

	service := NewEligibilityService(db, feedbackStub, targetingStub, testLogger())
	return service, mock
}

func TestCheckEligibility_Allowed(t *testing.T) {
	feedback := &models.Feedback{ID: 1, Title: "Q3 review", ProjectID: 1, Active: true}
	service, mock := eligibilityFixture(t, feedback, true)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM submissions").
		WithArgs(42, 1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
	assert.Equal(t, true, result.Constraints["can_submit"])
	assert.Equal(t, true, result.Constraints["within_window"])
}

func TestCheckEligibility_Inactive(t *testing.T) {
	feedback := &models.Feedback{ID: 1, ProjectID: 1, Active: false}
	service, _ := eligibilityFixture(t, feedback, true)

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.ReasonFeedbackInactive, result.Reason)
	assert.Equal(t, "feedback inactive", string(result.Reason))
	assert.Equal(t, false, result.Constraints["can_submit"])
}

func TestCheckEligibility_BeforeWindowOpens(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feedback := &models.Feedback{
		ID:        1,
		ProjectID: 1,
		Active:    true,
		StartDate: sql.NullTime{Time: now.Add(time.Hour), Valid: true},
	}
	service, _ := eligibilityFixture(t, feedback, true)
	service.now = func() time.Time { return now }

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.ReasonOutsideWindow, result.Reason)
	assert.Equal(t, "outside submission window", string(result.Reason))
	assert.Equal(t, false, result.Constraints["has_started"])
	assert.Equal(t, 60, result.Constraints["minutes_until_start"])
}

func TestCheckEligibility_AfterWindowCloses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feedback := &models.Feedback{
		ID:        1,
		ProjectID: 1,
		Active:    true,
		EndDate:   sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
	}
	service, _ := eligibilityFixture(t, feedback, true)
	service.now = func() time.Time { return now }

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.ReasonOutsideWindow, result.Reason)
	assert.Equal(t, true, result.Constraints["has_ended"])
}

func TestCheckEligibility_NullBoundsAreUnbounded(t *testing.T) {
	// Neither bound set: the round is always within its window.
	feedback := &models.Feedback{ID: 1, ProjectID: 1, Active: true}
	service, mock := eligibilityFixture(t, feedback, true)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM submissions").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.NotContains(t, result.Constraints, "has_started")
	assert.NotContains(t, result.Constraints, "has_ended")
}

func TestCheckEligibility_NotTargeted(t *testing.T) {
	feedback := &models.Feedback{ID: 1, ProjectID: 1, Active: true}
	service, _ := eligibilityFixture(t, feedback, false)

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.ReasonNotTargeted, result.Reason)
	assert.Equal(t, "not targeted", string(result.Reason))
	assert.Equal(t, false, result.Constraints["targeted"])
}

func TestCheckEligibility_AlreadySubmitted(t *testing.T) {
	feedback := &models.Feedback{ID: 1, ProjectID: 1, Active: true}
	service, mock := eligibilityFixture(t, feedback, true)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM submissions").
		WithArgs(42, 1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	result, err := service.CheckEligibility(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, models.ReasonAlreadySubmitted, result.Reason)
	assert.Equal(t, "already submitted", string(result.Reason))
	assert.Equal(t, true, result.Constraints["already_submitted"])
}

func TestWithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start sql.NullTime
		end   sql.NullTime
		want  bool
	}{
		{"no bounds", sql.NullTime{}, sql.NullTime{}, true},
		{"inside both bounds", sql.NullTime{Time: now.Add(-time.Hour), Valid: true}, sql.NullTime{Time: now.Add(time.Hour), Valid: true}, true},
		{"before start", sql.NullTime{Time: now.Add(time.Hour), Valid: true}, sql.NullTime{}, false},
		{"after end", sql.NullTime{}, sql.NullTime{Time: now.Add(-time.Hour), Valid: true}, false},
		{"exactly at start", sql.NullTime{Time: now, Valid: true}, sql.NullTime{}, true},
		{"exactly at end", sql.NullTime{}, sql.NullTime{Time: now, Valid: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &models.Feedback{StartDate: tt.start, EndDate: tt.end}
			assert.Equal(t, tt.want, withinWindow(f, now))
		})
	}
}
