package handlers

import (
	"context"
	"net/http"
	"strconv"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// FeedbackHandler handles feedback round management and eligibility requests
type FeedbackHandler struct {
	feedbackService services.FeedbackServiceInterface
	eligibility     services.EligibilityServiceInterface
	targeting       services.TargetingServiceInterface
	userService     services.UserServiceInterface
	emailService    services.EmailServiceInterface
	logger          *observability.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler instance
func NewFeedbackHandler(
	feedbackService services.FeedbackServiceInterface,
	eligibility services.EligibilityServiceInterface,
	targeting services.TargetingServiceInterface,
	userService services.UserServiceInterface,
	emailService services.EmailServiceInterface,
	logger *observability.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: feedbackService,
		eligibility:     eligibility,
		targeting:       targeting,
		userService:     userService,
		emailService:    emailService,
		logger:          logger,
	}
}

// parseIDParam parses a positive integer path parameter.
func parseIDParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		HandleValidationError(c, name, c.Param(name), "must be a positive integer")
		return 0, false
	}
	return id, true
}

// CreateFeedback handles POST /v1/feedbacks
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_feedback")
	defer observability.FinishSpan(span, nil)

	var req models.CreateFeedbackRequest
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
		attribute.String("feedback.title", req.Title),
		observability.AttributeProjectID(req.ProjectID),
	)

	feedback, err := h.feedbackService.CreateFeedback(c.Request.Context(), &req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeFeedbackID(feedback.ID))
	c.JSON(http.StatusCreated, feedback)
}

// GetFeedback handles GET /v1/feedbacks/:id
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_feedback")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(id))

	view, err := h.feedbackService.GetFeedbackView(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	// CanSubmit reflects the requesting user's eligibility, not a property
	// of the round itself.
	if userID, authed := GetUserIDFromSession(c); authed {
		result, eligErr := h.eligibility.CheckEligibility(c.Request.Context(), userID, id)
		if eligErr != nil {
			HandleAppError(c, eligErr)
			return
		}
		view.CanSubmit = result.Allowed
	}

	c.JSON(http.StatusOK, view)
}

// ListFeedbacks handles GET /v1/feedbacks
func (h *FeedbackHandler) ListFeedbacks(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_feedbacks")
	defer observability.FinishSpan(span, nil)

	activeOnly := c.Query("active") == "true"
	span.SetAttributes(attribute.Bool("feedback.active_only", activeOnly))

	feedbacks, err := h.feedbackService.ListFeedbacks(c.Request.Context(), activeOnly)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedbacks": feedbacks})
}

// UpdateFeedback handles PUT /v1/feedbacks/:id
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_feedback")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(id))

	var req models.UpdateFeedbackRequest
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

	feedback, err := h.feedbackService.UpdateFeedback(c.Request.Context(), id, &req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}

// Activate handles POST /v1/feedbacks/:id/activate. Targeted users are
// notified by email best-effort; notification failures do not fail the
// activation.
func (h *FeedbackHandler) Activate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "activate_feedback")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(id))

	if err := h.feedbackService.SetActive(c.Request.Context(), id, true); err != nil {
		HandleAppError(c, err)
		return
	}

	h.notifyTargetedUsers(c, id)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Feedback activated",
	})
}

// Deactivate handles POST /v1/feedbacks/:id/deactivate
func (h *FeedbackHandler) Deactivate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "deactivate_feedback")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(id))

	if err := h.feedbackService.SetActive(c.Request.Context(), id, false); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Feedback deactivated",
	})
}

func (h *FeedbackHandler) notifyTargetedUsers(c *gin.Context, feedbackID int) {
	ctx := c.Request.Context()

	if h.emailService == nil || !h.emailService.IsEnabled() {
		return
	}

	feedback, err := h.feedbackService.GetFeedbackByID(ctx, feedbackID)
	if err != nil {
		h.logger.Warn(ctx, "Failed to load feedback for notifications", map[string]interface{}{"feedback_id": feedbackID, "error": err.Error()})
		return
	}

	eligible, err := h.targeting.ResolveEligibleUsers(ctx, feedbackID)
	if err != nil {
		h.logger.Warn(ctx, "Failed to resolve eligible users for notifications", map[string]interface{}{"feedback_id": feedbackID, "error": err.Error()})
		return
	}

	for _, userID := range services.SortedUserIDs(eligible) {
		user, userErr := h.userService.GetUserByID(ctx, userID)
		if userErr != nil {
			h.logger.Warn(ctx, "Failed to load user for notification", map[string]interface{}{"user_id": userID, "error": userErr.Error()})
			continue
		}
		if sendErr := h.emailService.SendFeedbackOpenedNotification(ctx, user, feedback); sendErr != nil {
			h.logger.Warn(ctx, "Failed to send feedback notification", map[string]interface{}{"user_id": userID, "feedback_id": feedbackID, "error": sendErr.Error()})
		}
	}
}

// associationRequest carries the id being linked to a feedback round.
type associationRequest struct {
	ID int `json:"id" binding:"required"`
}

// AddQuestion handles POST /v1/feedbacks/:id/questions
func (h *FeedbackHandler) AddQuestion(c *gin.Context) {
	h.handleAssociation(c, "add_feedback_question", h.feedbackService.AddQuestion)
}

// RemoveQuestion handles DELETE /v1/feedbacks/:id/questions/:qid
func (h *FeedbackHandler) RemoveQuestion(c *gin.Context) {
	h.handleRemoval(c, "remove_feedback_question", "qid", h.feedbackService.RemoveQuestion)
}

// AddTargetUser handles POST /v1/feedbacks/:id/target-users
func (h *FeedbackHandler) AddTargetUser(c *gin.Context) {
	h.handleAssociation(c, "add_target_user", h.feedbackService.AddTargetUser)
}

// RemoveTargetUser handles DELETE /v1/feedbacks/:id/target-users/:uid
func (h *FeedbackHandler) RemoveTargetUser(c *gin.Context) {
	h.handleRemoval(c, "remove_target_user", "uid", h.feedbackService.RemoveTargetUser)
}

// AddTargetDepartment handles POST /v1/feedbacks/:id/target-departments
func (h *FeedbackHandler) AddTargetDepartment(c *gin.Context) {
	h.handleAssociation(c, "add_target_department", h.feedbackService.AddTargetDepartment)
}

// RemoveTargetDepartment handles DELETE /v1/feedbacks/:id/target-departments/:did
func (h *FeedbackHandler) RemoveTargetDepartment(c *gin.Context) {
	h.handleRemoval(c, "remove_target_department", "did", h.feedbackService.RemoveTargetDepartment)
}

func (h *FeedbackHandler) handleAssociation(c *gin.Context, spanName string, op func(ctx context.Context, feedbackID, id int) error) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), spanName)
	defer observability.FinishSpan(span, nil)

	feedbackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(feedbackID))

	var req associationRequest
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

	if err := op(c.Request.Context(), feedbackID, req.ID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *FeedbackHandler) handleRemoval(c *gin.Context, spanName, param string, op func(ctx context.Context, feedbackID, id int) error) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), spanName)
	defer observability.FinishSpan(span, nil)

	feedbackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	id, ok := parseIDParam(c, param)
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(feedbackID))

	if err := op(c.Request.Context(), feedbackID, id); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckEligibility handles GET /v1/feedbacks/:id/eligibility for the
// requesting user. The result is advisory; submission re-runs the checks.
func (h *FeedbackHandler) CheckEligibility(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "check_eligibility")
	defer observability.FinishSpan(span, nil)

	feedbackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	span.SetAttributes(
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeUserID(userID),
	)

	result, err := h.eligibility.CheckEligibility(c.Request.Context(), userID, feedbackID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("eligibility.allowed", result.Allowed))
	c.JSON(http.StatusOK, result)
}

// ListEligibleUsers handles GET /v1/admin/feedbacks/:id/eligible-users
func (h *FeedbackHandler) ListEligibleUsers(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_eligible_users")
	defer observability.FinishSpan(span, nil)

	feedbackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(feedbackID))

	audience, err := h.targeting.ResolveEligibleUsers(c.Request.Context(), feedbackID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	ids := services.SortedUserIDs(audience)
	span.SetAttributes(attribute.Int("eligibility.user_count", len(ids)))
	c.JSON(http.StatusOK, gin.H{"user_ids": ids, "count": len(ids)})
}

// GetStatistics handles GET /v1/admin/feedbacks/stats
func (h *FeedbackHandler) GetStatistics(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "feedback_statistics")
	defer observability.FinishSpan(span, nil)

	stats, err := h.feedbackService.GetStatistics(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
