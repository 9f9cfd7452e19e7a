package services

import (
	"context"
	"testing"
	"time"

	"feedbackapp/internal/models"
	contextutils "feedbackapp/internal/utils"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedbackColumns = []string{
	"id", "title", "description", "project_id",
	"start_date", "end_date", "active", "created_at", "updated_at",
}

func feedbackFixture(t *testing.T) (*FeedbackService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	return NewFeedbackService(db, testLogger()), mock
}

func TestCreateFeedback_RejectsInvertedWindow(t *testing.T) {
	service, _ := feedbackFixture(t)

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := service.CreateFeedback(context.Background(), &models.CreateFeedbackRequest{
		Title:     "Q3 review",
		ProjectID: 1,
		StartDate: &start,
		EndDate:   &end,
	})
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestCreateFeedback_RequiresExistingProject(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM projects").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := service.CreateFeedback(context.Background(), &models.CreateFeedbackRequest{
		Title:     "Q3 review",
		ProjectID: 99,
	})
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestCreateFeedback_Inserts(t *testing.T) {
	service, mock := feedbackFixture(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM projects").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO feedbacks").
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(3, "Q3 review", nil, 1, nil, nil, false, now, now))

	feedback, err := service.CreateFeedback(context.Background(), &models.CreateFeedbackRequest{
		Title:     "Q3 review",
		ProjectID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, feedback.ID)
	assert.False(t, feedback.Active)
}

func TestGetFeedbackByID_NotFound(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectQuery("SELECT (.+) FROM feedbacks WHERE id").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(feedbackColumns))

	_, err := service.GetFeedbackByID(context.Background(), 99)
	assert.True(t, contextutils.IsError(err, contextutils.ErrFeedbackNotFound))
}

func TestSetActive_NotFound(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectExec("UPDATE feedbacks SET active").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.SetActive(context.Background(), 99, true)
	assert.True(t, contextutils.IsError(err, contextutils.ErrFeedbackNotFound))
}

func TestAddTargetUser_Idempotent(t *testing.T) {
	service, mock := feedbackFixture(t)

	// First add inserts a row.
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM feedbacks").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO feedback_target_users").
		WithArgs(1, 42, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, service.AddTargetUser(context.Background(), 1, 42))

	// Second add matches the WHERE NOT EXISTS guard and inserts nothing.
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM feedbacks").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO feedback_target_users").
		WithArgs(1, 42, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, service.AddTargetUser(context.Background(), 1, 42))
}

func TestAddTargetUser_LostRaceIsStillSuccess(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM feedbacks").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO feedback_target_users").
		WillReturnError(&pq.Error{Code: "23505"})

	require.NoError(t, service.AddTargetUser(context.Background(), 1, 42))
}

func TestAddQuestion_UnknownFeedback(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM feedbacks").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := service.AddQuestion(context.Background(), 99, 1)
	assert.True(t, contextutils.IsError(err, contextutils.ErrFeedbackNotFound))
}

func TestUpdateFeedback_RejectsInvertedWindowAfterMerge(t *testing.T) {
	service, mock := feedbackFixture(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	existingEnd := now.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM feedbacks WHERE id").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(3, "Q3 review", nil, 1, nil, existingEnd, true, now, now))

	// New start lands after the already-stored end.
	badStart := existingEnd.Add(time.Hour)
	_, err := service.UpdateFeedback(context.Background(), 3, &models.UpdateFeedbackRequest{
		StartDate: &badStart,
	})
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestGetStatistics(t *testing.T) {
	service, mock := feedbackFixture(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "submissions"}).
			AddRow(10, 3, 57))

	stats, err := service.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalFeedbacks)
	assert.Equal(t, 3, stats.ActiveFeedbacks)
	assert.Equal(t, 57, stats.TotalSubmissions)
}
