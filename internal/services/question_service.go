package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// QuestionServiceInterface defines question bank operations
type QuestionServiceInterface interface {
	CreateQuestion(ctx context.Context, text, category string, required bool) (*models.Question, error)
	GetQuestionByID(ctx context.Context, id int) (*models.Question, error)
	ListQuestions(ctx context.Context, category string) ([]models.Question, error)
}

// QuestionService manages the question bank.
type QuestionService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewQuestionService creates a new QuestionService instance
func NewQuestionService(db *sql.DB, logger *observability.Logger) *QuestionService {
	if db == nil {
		panic("NewQuestionService: db is nil")
	}
	if logger == nil {
		panic("NewQuestionService: logger is nil")
	}
	return &QuestionService{db: db, logger: logger}
}

// CreateQuestion inserts a new question into the bank.
func (s *QuestionService) CreateQuestion(ctx context.Context, text, category string, required bool) (result0 *models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "create_question",
		attribute.String("question.category", category),
	)
	defer observability.FinishSpan(span, &err)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "question text is required")
	}

	var cat sql.NullString
	if category != "" {
		cat = sql.NullString{String: category, Valid: true}
	}

	now := time.Now()
	var q models.Question
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO questions (text, category, required, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING id, text, category, required, created_at, updated_at`,
		text, cat, required, now,
	).Scan(&q.ID, &q.Text, &q.Category, &q.Required, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to insert question")
	}
	return &q, nil
}

// GetQuestionByID returns the question with the given id.
func (s *QuestionService) GetQuestionByID(ctx context.Context, id int) (result0 *models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "get_question_by_id",
		observability.AttributeQuestionID(id),
	)
	defer observability.FinishSpan(span, &err)

	var q models.Question
	err = s.db.QueryRowContext(ctx,
		`SELECT id, text, category, required, created_at, updated_at FROM questions WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.Text, &q.Category, &q.Required, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan question")
	}
	return &q, nil
}

// ListQuestions returns questions, optionally filtered by category.
func (s *QuestionService) ListQuestions(ctx context.Context, category string) (result0 []models.Question, err error) {
	ctx, span := observability.TraceQuestionFunction(ctx, "list_questions",
		attribute.String("question.category", category),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT id, text, category, required, created_at, updated_at FROM questions`
	var args []interface{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query questions")
	}
	defer func() {
		_ = rows.Close()
	}()

	questions := []models.Question{}
	for rows.Next() {
		var q models.Question
		if err = rows.Scan(&q.ID, &q.Text, &q.Category, &q.Required, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan question")
		}
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate questions")
	}
	return questions, nil
}
