package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSessionService embeds the interface so only overridden methods are
// callable; anything else nil-panics and fails the test.
type stubSessionService struct {
	services.SessionServiceInterface
	start        func(ctx context.Context, userID, feedbackID int) (*models.SubmissionSession, error)
	stop         func(ctx context.Context, userID int) (*models.SubmissionSession, error)
	findOpen     func(ctx context.Context, userID int) (*models.SubmissionSession, error)
	monthlyTotal func(ctx context.Context, userID *int, year int, month time.Month) (*models.MonthlyDuration, error)
}

func (s *stubSessionService) StartSession(ctx context.Context, userID, feedbackID int) (*models.SubmissionSession, error) {
	return s.start(ctx, userID, feedbackID)
}

func (s *stubSessionService) StopSession(ctx context.Context, userID int) (*models.SubmissionSession, error) {
	return s.stop(ctx, userID)
}

func (s *stubSessionService) FindOpenSession(ctx context.Context, userID int) (*models.SubmissionSession, error) {
	return s.findOpen(ctx, userID)
}

func (s *stubSessionService) MonthlyTotal(ctx context.Context, userID *int, year int, month time.Month) (*models.MonthlyDuration, error) {
	return s.monthlyTotal(ctx, userID, year, month)
}

func handlerTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

// sessionTestRouter wires the handler behind session middleware with the
// given user already signed in. userID 0 means anonymous.
func sessionTestRouter(svc services.SessionServiceInterface, userID int) *gin.Engine {
	r := setupGinWithSessions()
	if userID != 0 {
		r.Use(func(c *gin.Context) {
			sess := sessions.Default(c)
			sess.Set(middleware.UserIDKey, userID)
			_ = sess.Save()
			c.Next()
		})
	}

	h := NewSessionHandler(svc, handlerTestLogger())
	r.POST("/v1/sessions/start", h.StartSession)
	r.POST("/v1/sessions/stop", h.StopSession)
	r.GET("/v1/sessions/current", h.GetCurrentSession)
	r.GET("/v1/sessions/monthly", h.GetMonthlyTotal)
	r.GET("/v1/admin/sessions/monthly", h.GetMonthlyTotalAdmin)
	return r
}

func TestStartSession_RequiresAuth(t *testing.T) {
	r := sessionTestRouter(&stubSessionService{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/start", bytes.NewBufferString(`{"feedback_id": 3}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStartSession_Created(t *testing.T) {
	svc := &stubSessionService{
		start: func(_ context.Context, userID, feedbackID int) (*models.SubmissionSession, error) {
			assert.Equal(t, 42, userID)
			assert.Equal(t, 3, feedbackID)
			return &models.SubmissionSession{ID: 10, UserID: userID, FeedbackID: feedbackID}, nil
		},
	}
	r := sessionTestRouter(svc, 42)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/start", bytes.NewBufferString(`{"feedback_id": 3}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"id\":10")
}

func TestStartSession_RejectsMissingFeedbackID(t *testing.T) {
	r := sessionTestRouter(&stubSessionService{}, 42)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/start", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStopSession_NoOpenSessionReturnsNull(t *testing.T) {
	svc := &stubSessionService{
		stop: func(_ context.Context, _ int) (*models.SubmissionSession, error) {
			return nil, nil
		},
	}
	r := sessionTestRouter(svc, 42)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/stop", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"session\":null")
}

func TestGetCurrentSession_NoOpenSessionReturnsNull(t *testing.T) {
	svc := &stubSessionService{
		findOpen: func(_ context.Context, _ int) (*models.SubmissionSession, error) {
			return nil, contextutils.ErrSessionNotFound
		},
	}
	r := sessionTestRouter(svc, 42)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"session\":null")
}

func TestGetCurrentSession_ReturnsOpenSession(t *testing.T) {
	svc := &stubSessionService{
		findOpen: func(_ context.Context, userID int) (*models.SubmissionSession, error) {
			assert.Equal(t, 42, userID)
			return &models.SubmissionSession{ID: 10, UserID: userID, FeedbackID: 3}, nil
		},
	}
	r := sessionTestRouter(svc, 42)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"id\":10")
}

func TestGetMonthlyTotal_RejectsInvalidMonth(t *testing.T) {
	r := sessionTestRouter(&stubSessionService{}, 42)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/monthly?year=2025&month=13", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "month")
}

func TestGetMonthlyTotal_ScopedToSelf(t *testing.T) {
	svc := &stubSessionService{
		monthlyTotal: func(_ context.Context, userID *int, year int, month time.Month) (*models.MonthlyDuration, error) {
			require.NotNil(t, userID)
			assert.Equal(t, 42, *userID)
			assert.Equal(t, 2025, year)
			assert.Equal(t, time.June, month)
			return &models.MonthlyDuration{Year: year, Month: int(month), TotalSeconds: 900}, nil
		},
	}
	r := sessionTestRouter(svc, 42)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/monthly?year=2025&month=6", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"total_seconds\":900")
}

func TestGetMonthlyTotalAdmin_GlobalWithoutUserFilter(t *testing.T) {
	svc := &stubSessionService{
		monthlyTotal: func(_ context.Context, userID *int, _ int, _ time.Month) (*models.MonthlyDuration, error) {
			assert.Nil(t, userID)
			return &models.MonthlyDuration{Year: 2025, Month: 6, TotalSeconds: 3600}, nil
		},
	}
	r := sessionTestRouter(svc, 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/sessions/monthly?year=2025&month=6", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"total_seconds\":3600")
}

func TestGetMonthlyTotalAdmin_RejectsBadUserID(t *testing.T) {
	r := sessionTestRouter(&stubSessionService{}, 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/sessions/monthly?year=2025&month=6&user_id=abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "user_id")
}
