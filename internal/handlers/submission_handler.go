package handlers

import (
	"net/http"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// SubmissionHandler handles submission recording and read requests
type SubmissionHandler struct {
	submissionService services.SubmissionServiceInterface
	logger            *observability.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler instance
func NewSubmissionHandler(submissionService services.SubmissionServiceInterface, logger *observability.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		logger:            logger,
	}
}

// CreateSubmission handles POST /v1/submissions for the requesting user
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_submission")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	var req models.RecordSubmissionRequest
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
		attribute.String("submission.privacy_level", string(req.PrivacyLevel)),
	)

	view, err := h.submissionService.RecordSubmission(c.Request.Context(), userID, &req)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeSubmissionID(view.ID))
	c.JSON(http.StatusCreated, view)
}

// GetSubmission handles GET /v1/submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_submission")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeSubmissionID(id))

	view, err := h.submissionService.GetSubmissionView(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListMySubmissions handles GET /v1/submissions for the requesting user
func (h *SubmissionHandler) ListMySubmissions(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_my_submissions")
	defer observability.FinishSpan(span, nil)

	userID, authed := GetUserIDFromSession(c)
	if !authed {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	views, err := h.submissionService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": views})
}

// ListFeedbackSubmissions handles GET /v1/admin/feedbacks/:id/submissions
func (h *SubmissionHandler) ListFeedbackSubmissions(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_feedback_submissions")
	defer observability.FinishSpan(span, nil)

	feedbackID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(feedbackID))

	views, err := h.submissionService.ListByFeedback(c.Request.Context(), feedbackID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": views})
}
