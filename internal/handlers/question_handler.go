package handlers

import (
	"net/http"

	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// QuestionHandler handles question bank management requests
type QuestionHandler struct {
	questionService services.QuestionServiceInterface
	logger          *observability.Logger
}

// NewQuestionHandler creates a new QuestionHandler instance
func NewQuestionHandler(questionService services.QuestionServiceInterface, logger *observability.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		logger:          logger,
	}
}

type createQuestionRequest struct {
	Text     string `json:"text" binding:"required"`
	Category string `json:"category"`
	Required bool   `json:"required"`
}

// CreateQuestion handles POST /v1/admin/questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_question")
	defer observability.FinishSpan(span, nil)

	var req createQuestionRequest
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

	question, err := h.questionService.CreateQuestion(c.Request.Context(), req.Text, req.Category, req.Required)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(observability.AttributeQuestionID(question.ID))
	c.JSON(http.StatusCreated, question)
}

// GetQuestion handles GET /v1/questions/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_question")
	defer observability.FinishSpan(span, nil)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeQuestionID(id))

	question, err := h.questionService.GetQuestionByID(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// ListQuestions handles GET /v1/questions with an optional category filter
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_questions")
	defer observability.FinishSpan(span, nil)

	category := c.Query("category")
	if category != "" {
		span.SetAttributes(attribute.String("question.category", category))
	}

	questions, err := h.questionService.ListQuestions(c.Request.Context(), category)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}
