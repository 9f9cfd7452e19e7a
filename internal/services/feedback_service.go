package services

import (
	"context"
	"database/sql"
	"time"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// feedbackQueryFields is the canonical column list for scanning feedbacks.
const feedbackQueryFields = `id, title, description, project_id, start_date, end_date, active, created_at, updated_at`

// FeedbackServiceInterface defines feedback round lifecycle and audience
// management operations.
type FeedbackServiceInterface interface {
	CreateFeedback(ctx context.Context, req *models.CreateFeedbackRequest) (*models.Feedback, error)
	GetFeedbackByID(ctx context.Context, id int) (*models.Feedback, error)
	ListFeedbacks(ctx context.Context, activeOnly bool) ([]models.Feedback, error)
	UpdateFeedback(ctx context.Context, id int, req *models.UpdateFeedbackRequest) (*models.Feedback, error)
	SetActive(ctx context.Context, id int, active bool) error
	AddQuestion(ctx context.Context, feedbackID, questionID int) error
	RemoveQuestion(ctx context.Context, feedbackID, questionID int) error
	ListQuestionIDs(ctx context.Context, feedbackID int) ([]int, error)
	AddTargetUser(ctx context.Context, feedbackID, userID int) error
	RemoveTargetUser(ctx context.Context, feedbackID, userID int) error
	ListTargetUsers(ctx context.Context, feedbackID int) ([]int, error)
	AddTargetDepartment(ctx context.Context, feedbackID, departmentID int) error
	RemoveTargetDepartment(ctx context.Context, feedbackID, departmentID int) error
	ListTargetDepartments(ctx context.Context, feedbackID int) ([]int, error)
	GetFeedbackView(ctx context.Context, feedbackID int) (*models.FeedbackView, error)
	GetStatistics(ctx context.Context) (*models.FeedbackStatistics, error)
}

// FeedbackService manages feedback round definitions: lifecycle, question
// links, and explicit target audiences.
type FeedbackService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewFeedbackService creates a new FeedbackService instance
func NewFeedbackService(db *sql.DB, logger *observability.Logger) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	return &FeedbackService{db: db, logger: logger}
}

func scanFeedback(row interface{ Scan(...interface{}) error }) (result0 *models.Feedback, err error) {
	var f models.Feedback
	err = row.Scan(
		&f.ID,
		&f.Title,
		&f.Description,
		&f.ProjectID,
		&f.StartDate,
		&f.EndDate,
		&f.Active,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrFeedbackNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan feedback")
	}
	return &f, nil
}

// CreateFeedback creates a new feedback round. The owning project must exist
// and, when both window bounds are set, start must not be after end.
func (s *FeedbackService) CreateFeedback(ctx context.Context, req *models.CreateFeedbackRequest) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "create_feedback",
		observability.AttributeProjectID(req.ProjectID),
	)
	defer observability.FinishSpan(span, &err)

	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "start_date must not be after end_date")
	}

	var projectExists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, req.ProjectID,
	).Scan(&projectExists)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to check project")
	}
	if !projectExists {
		return nil, contextutils.WrapError(contextutils.ErrRecordNotFound, "project not found")
	}

	var desc sql.NullString
	if req.Description != "" {
		desc = sql.NullString{String: req.Description, Valid: true}
	}
	var start, end sql.NullTime
	if req.StartDate != nil {
		start = sql.NullTime{Time: *req.StartDate, Valid: true}
	}
	if req.EndDate != nil {
		end = sql.NullTime{Time: *req.EndDate, Valid: true}
	}

	now := time.Now()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO feedbacks (title, description, project_id, start_date, end_date, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+feedbackQueryFields,
		req.Title, desc, req.ProjectID, start, end, req.Active, now,
	)
	return scanFeedback(row)
}

// GetFeedbackByID returns the feedback round with the given id.
func (s *FeedbackService) GetFeedbackByID(ctx context.Context, id int) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback_by_id",
		observability.AttributeFeedbackID(id),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+feedbackQueryFields+` FROM feedbacks WHERE id = $1`, id)
	return scanFeedback(row)
}

// ListFeedbacks returns feedback rounds, optionally restricted to active
// ones.
func (s *FeedbackService) ListFeedbacks(ctx context.Context, activeOnly bool) (result0 []models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_feedbacks",
		attribute.Bool("feedback.active_only", activeOnly),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + feedbackQueryFields + ` FROM feedbacks`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query feedbacks")
	}
	defer func() {
		_ = rows.Close()
	}()

	feedbacks := []models.Feedback{}
	for rows.Next() {
		f, scanErr := scanFeedback(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		feedbacks = append(feedbacks, *f)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate feedbacks")
	}
	return feedbacks, nil
}

// UpdateFeedback applies a partial update: only non-nil fields overwrite.
func (s *FeedbackService) UpdateFeedback(ctx context.Context, id int, req *models.UpdateFeedbackRequest) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "update_feedback",
		observability.AttributeFeedbackID(id),
	)
	defer observability.FinishSpan(span, &err)

	existing, err := s.GetFeedbackByID(ctx, id)
	if err != nil {
		return nil, err
	}

	title := existing.Title
	if req.Title != nil {
		title = *req.Title
	}
	desc := existing.Description
	if req.Description != nil {
		desc = sql.NullString{String: *req.Description, Valid: *req.Description != ""}
	}
	start := existing.StartDate
	if req.StartDate != nil {
		start = sql.NullTime{Time: *req.StartDate, Valid: true}
	}
	end := existing.EndDate
	if req.EndDate != nil {
		end = sql.NullTime{Time: *req.EndDate, Valid: true}
	}
	if start.Valid && end.Valid && start.Time.After(end.Time) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "start_date must not be after end_date")
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE feedbacks
		 SET title = $1, description = $2, start_date = $3, end_date = $4, updated_at = $5
		 WHERE id = $6
		 RETURNING `+feedbackQueryFields,
		title, desc, start, end, time.Now(), id,
	)
	return scanFeedback(row)
}

// SetActive toggles the active flag. Deactivation is the soft-delete path for
// feedback rounds that submissions already reference.
func (s *FeedbackService) SetActive(ctx context.Context, id int, active bool) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "set_active",
		observability.AttributeFeedbackID(id),
		attribute.Bool("feedback.active", active),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx,
		`UPDATE feedbacks SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now(), id,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to update active flag")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return contextutils.ErrFeedbackNotFound
	}
	return nil
}

// addAssociation inserts an association row if it is not already present.
func (s *FeedbackService) addAssociation(ctx context.Context, table, column string, feedbackID, value int) (err error) {
	if err := s.requireFeedback(ctx, feedbackID); err != nil {
		return err
	}
	// table and column are compile-time constants from the callers below
	query := `INSERT INTO ` + table + ` (feedback_id, ` + column + `, created_at)
		 SELECT $1, $2, $3
		 WHERE NOT EXISTS (
		     SELECT 1 FROM ` + table + ` WHERE feedback_id = $1 AND ` + column + ` = $2
		 )`
	_, err = s.db.ExecContext(ctx, query, feedbackID, value, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with an identical insert; the row exists, which is
			// the requested outcome.
			return nil
		}
		return contextutils.WrapErrorf(err, "failed to insert into %s", table)
	}
	return nil
}

// removeAssociation deletes an association row if present.
func (s *FeedbackService) removeAssociation(ctx context.Context, table, column string, feedbackID, value int) (err error) {
	if err := s.requireFeedback(ctx, feedbackID); err != nil {
		return err
	}
	query := `DELETE FROM ` + table + ` WHERE feedback_id = $1 AND ` + column + ` = $2`
	_, err = s.db.ExecContext(ctx, query, feedbackID, value)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to delete from %s", table)
	}
	return nil
}

// listAssociation returns column values for a feedback in insertion order.
func (s *FeedbackService) listAssociation(ctx context.Context, table, column string, feedbackID int) (result0 []int, err error) {
	query := `SELECT ` + column + ` FROM ` + table + ` WHERE feedback_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, feedbackID)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to query %s", table)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []int{}
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to scan %s row", table)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to iterate %s", table)
	}
	return ids, nil
}

// requireFeedback returns ErrFeedbackNotFound when the id is unknown.
func (s *FeedbackService) requireFeedback(ctx context.Context, feedbackID int) (err error) {
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM feedbacks WHERE id = $1)`, feedbackID,
	).Scan(&exists)
	if err != nil {
		return contextutils.WrapError(err, "failed to check feedback")
	}
	if !exists {
		return contextutils.ErrFeedbackNotFound
	}
	return nil
}

// AddQuestion links a question into the feedback round. Idempotent.
func (s *FeedbackService) AddQuestion(ctx context.Context, feedbackID, questionID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "add_question",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)
	return s.addAssociation(ctx, "feedback_questions", "question_id", feedbackID, questionID)
}

// RemoveQuestion unlinks a question from the feedback round. Idempotent.
func (s *FeedbackService) RemoveQuestion(ctx context.Context, feedbackID, questionID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "remove_question",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)
	return s.removeAssociation(ctx, "feedback_questions", "question_id", feedbackID, questionID)
}

// ListQuestionIDs returns linked question ids in insertion order.
func (s *FeedbackService) ListQuestionIDs(ctx context.Context, feedbackID int) (result0 []int, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_question_ids",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)
	return s.listAssociation(ctx, "feedback_questions", "question_id", feedbackID)
}

// AddTargetUser adds an explicit target user. Idempotent.
func (s *FeedbackService) AddTargetUser(ctx context.Context, feedbackID, userID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "add_target_user",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)
	return s.addAssociation(ctx, "feedback_target_users", "user_id", feedbackID, userID)
}

// RemoveTargetUser removes an explicit target user. Idempotent.
func (s *FeedbackService) RemoveTargetUser(ctx context.Context, feedbackID, userID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "remove_target_user",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)
	return s.removeAssociation(ctx, "feedback_target_users", "user_id", feedbackID, userID)
}

// ListTargetUsers returns explicit target user ids in insertion order.
func (s *FeedbackService) ListTargetUsers(ctx context.Context, feedbackID int) (result0 []int, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_target_users",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)
	return s.listAssociation(ctx, "feedback_target_users", "user_id", feedbackID)
}

// AddTargetDepartment adds an explicit target department. Idempotent.
func (s *FeedbackService) AddTargetDepartment(ctx context.Context, feedbackID, departmentID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "add_target_department",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeDepartmentID(departmentID),
	)
	defer observability.FinishSpan(span, &err)
	return s.addAssociation(ctx, "feedback_target_departments", "department_id", feedbackID, departmentID)
}

// RemoveTargetDepartment removes an explicit target department. Idempotent.
func (s *FeedbackService) RemoveTargetDepartment(ctx context.Context, feedbackID, departmentID int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "remove_target_department",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeDepartmentID(departmentID),
	)
	defer observability.FinishSpan(span, &err)
	return s.removeAssociation(ctx, "feedback_target_departments", "department_id", feedbackID, departmentID)
}

// ListTargetDepartments returns explicit target department ids in insertion
// order.
func (s *FeedbackService) ListTargetDepartments(ctx context.Context, feedbackID int) (result0 []int, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "list_target_departments",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)
	return s.listAssociation(ctx, "feedback_target_departments", "department_id", feedbackID)
}

// GetFeedbackView assembles the enriched read model for a feedback round.
// CanSubmit is left false; the caller fills it from the eligibility engine.
func (s *FeedbackService) GetFeedbackView(ctx context.Context, feedbackID int) (result0 *models.FeedbackView, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback_view",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	feedback, err := s.GetFeedbackByID(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	var projectName string
	err = s.db.QueryRowContext(ctx,
		`SELECT name FROM projects WHERE id = $1`, feedback.ProjectID,
	).Scan(&projectName)
	if err != nil && err != sql.ErrNoRows {
		return nil, contextutils.WrapError(err, "failed to query project name")
	}
	err = nil

	questionIDs, err := s.ListQuestionIDs(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	targetUsers, err := s.ListTargetUsers(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	targetDepartments, err := s.ListTargetDepartments(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	var submissionCount int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE feedback_id = $1`, feedbackID,
	).Scan(&submissionCount)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count submissions")
	}

	return &models.FeedbackView{
		Feedback:          *feedback,
		ProjectName:       projectName,
		QuestionIDs:       questionIDs,
		TargetUserIDs:     targetUsers,
		TargetDepartments: targetDepartments,
		SubmissionCount:   submissionCount,
	}, nil
}

// GetStatistics returns dashboard totals.
func (s *FeedbackService) GetStatistics(ctx context.Context) (result0 *models.FeedbackStatistics, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_statistics")
	defer observability.FinishSpan(span, &err)

	var stats models.FeedbackStatistics
	err = s.db.QueryRowContext(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM feedbacks),
		     (SELECT COUNT(*) FROM feedbacks WHERE active = TRUE),
		     (SELECT COUNT(*) FROM submissions)`,
	).Scan(&stats.TotalFeedbacks, &stats.ActiveFeedbacks, &stats.TotalSubmissions)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query statistics")
	}
	return &stats, nil
}
