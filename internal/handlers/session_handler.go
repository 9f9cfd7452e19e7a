package handlers

import (
	"net/http"
	"strconv"
	"time"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// SessionHandler handles submission session timing requests
type SessionHandler struct {
	sessionService services.SessionServiceInterface
	logger         *observability.Logger
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(sessionService services.SessionServiceInterface, logger *observability.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// StartSession handles POST /v1/sessions/start. Starting while a session is
// already open closes the stale one first.
func (h *SessionHandler) StartSession(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "start_session")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	span.SetAttributes(
		observability.AttributeUserID(userID),
		observability.AttributeFeedbackID(req.FeedbackID),
	)

	session, err := h.sessionService.StartSession(c.Request.Context(), userID, req.FeedbackID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeSessionID(session.ID))
	c.JSON(http.StatusCreated, session)
}

// StopSession handles POST /v1/sessions/stop. Stopping with no open session
// is not an error; the response carries a null session.
func (h *SessionHandler) StopSession(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "stop_session")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	session, err := h.sessionService.StopSession(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if session == nil {
		span.SetAttributes(attribute.Bool("session.was_open", false))
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}

	span.SetAttributes(observability.AttributeSessionID(session.ID))
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// GetCurrentSession handles GET /v1/sessions/current
func (h *SessionHandler) GetCurrentSession(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_current_session")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	session, err := h.sessionService.FindOpenSession(c.Request.Context(), userID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrSessionNotFound) {
			c.JSON(http.StatusOK, gin.H{"session": nil})
			return
		}
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// GetMonthlyTotal handles GET /v1/sessions/monthly?year=&month= for the
// requesting user. Defaults to the current month when params are missing.
func (h *SessionHandler) GetMonthlyTotal(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_monthly_total")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	year, month, ok := parseYearMonth(c)
	if !ok {
		return
	}

	span.SetAttributes(
		observability.AttributeUserID(userID),
		attribute.Int("session.year", year),
		attribute.Int("session.month", int(month)),
	)

	total, err := h.sessionService.MonthlyTotal(c.Request.Context(), &userID, year, month)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, total)
}

// GetMonthlyTotalAdmin handles GET /v1/admin/sessions/monthly?year=&month=&user_id=.
// Omitting user_id aggregates across all users.
func (h *SessionHandler) GetMonthlyTotalAdmin(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_monthly_total_admin")
	defer observability.FinishSpan(span, nil)

	year, month, ok := parseYearMonth(c)
	if !ok {
		return
	}

	var userFilter *int
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			HandleValidationError(c, "user_id", raw, "must be a positive integer")
			return
		}
		userFilter = &id
		span.SetAttributes(observability.AttributeUserID(id))
	}

	span.SetAttributes(
		attribute.Int("session.year", year),
		attribute.Int("session.month", int(month)),
	)

	total, err := h.sessionService.MonthlyTotal(c.Request.Context(), userFilter, year, month)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, total)
}

// parseYearMonth reads year/month query params, defaulting to the current
// UTC month.
func parseYearMonth(c *gin.Context) (int, time.Month, bool) {
	now := time.Now().UTC()
	year := now.Year()
	month := now.Month()

	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1970 {
			HandleValidationError(c, "year", raw, "must be a valid year")
			return 0, 0, false
		}
		year = y
	}
	if raw := c.Query("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			HandleValidationError(c, "month", raw, "must be between 1 and 12")
			return 0, 0, false
		}
		month = time.Month(m)
	}
	return year, month, true
}
