package services

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

// SubmissionServiceInterface records and reads submissions.
type SubmissionServiceInterface interface {
	RecordSubmission(ctx context.Context, userID int, req *models.RecordSubmissionRequest) (*models.SubmissionView, error)
	GetSubmissionView(ctx context.Context, id int) (*models.SubmissionView, error)
	ListByFeedback(ctx context.Context, feedbackID int) ([]models.SubmissionView, error)
	ListByUser(ctx context.Context, userID int) ([]models.SubmissionView, error)
	CountByUser(ctx context.Context, userID int) (int, error)
}

// SubmissionService validates and atomically persists submissions together
// with their per-question responses. Eligibility is re-checked here at
// submission time; the earlier advisory check result is never trusted.
type SubmissionService struct {
	db          *sql.DB
	cfg         *config.Config
	eligibility EligibilityServiceInterface
	sessions    SessionServiceInterface
	directory   UserServiceInterface
	logger      *observability.Logger
}

// NewSubmissionService creates a new SubmissionService instance
func NewSubmissionService(db *sql.DB, cfg *config.Config, eligibility EligibilityServiceInterface, sessions SessionServiceInterface, directory UserServiceInterface, logger *observability.Logger) *SubmissionService {
	if db == nil {
		panic("NewSubmissionService: db is nil")
	}
	if logger == nil {
		panic("NewSubmissionService: logger is nil")
	}
	return &SubmissionService{
		db:          db,
		cfg:         cfg,
		eligibility: eligibility,
		sessions:    sessions,
		directory:   directory,
		logger:      logger,
	}
}

// denialError maps an eligibility denial reason to the error taxonomy.
func denialError(reason models.EligibilityReason) error {
	switch reason {
	case models.ReasonFeedbackInactive:
		return contextutils.ErrFeedbackInactive
	case models.ReasonOutsideWindow:
		return contextutils.ErrOutsideWindow
	case models.ReasonNotTargeted:
		return contextutils.ErrNotTargeted
	case models.ReasonAlreadySubmitted:
		return contextutils.ErrAlreadySubmitted
	}
	return contextutils.ErrForbidden
}

// RecordSubmission validates the request, re-runs the eligibility checks,
// and persists the submission row plus all response rows in one transaction.
// A failure partway leaves no submission row visible.
func (s *SubmissionService) RecordSubmission(ctx context.Context, userID int, req *models.RecordSubmissionRequest) (result0 *models.SubmissionView, err error) {
	ctx, span := observability.TraceSubmissionFunction(ctx, "record_submission",
		observability.AttributeUserID(userID),
		observability.AttributeFeedbackID(req.FeedbackID),
	)
	defer observability.FinishSpan(span, &err)

	if userID <= 0 {
		return nil, contextutils.ErrUnauthorized
	}
	if !req.PrivacyLevel.Valid() {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "unknown privacy level")
	}

	eligibility, err := s.eligibility.CheckEligibility(ctx, userID, req.FeedbackID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Allowed {
		return nil, denialError(eligibility.Reason)
	}

	if len(req.Responses) == 0 {
		return nil, contextutils.ErrEmptyResponses
	}

	anonymous := req.PrivacyLevel.IsAnonymous()
	var comments sql.NullString
	if req.OverallComments != "" {
		comments = sql.NullString{String: req.OverallComments, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now()
	var submissionID int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO submissions (feedback_id, user_id, privacy_level, anonymous, overall_comments, reviewed, submitted_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		 RETURNING id`,
		req.FeedbackID, userID, string(req.PrivacyLevel), anonymous, comments, now,
	).Scan(&submissionID)
	if err != nil {
		// The unique constraint on (feedback_id, user_id) closes the gap
		// between the eligibility check above and this insert.
		if isUniqueViolation(err) {
			return nil, contextutils.ErrAlreadySubmitted
		}
		return nil, contextutils.WrapError(err, "failed to insert submission")
	}

	// Deterministic write order keeps retries and deadlock behavior stable.
	questionIDs := make([]int, 0, len(req.Responses))
	for questionID := range req.Responses {
		questionIDs = append(questionIDs, questionID)
	}
	sort.Ints(questionIDs)

	for _, questionID := range questionIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO submission_responses (submission_id, question_id, answer, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (submission_id, question_id)
			 DO UPDATE SET answer = EXCLUDED.answer, updated_at = EXCLUDED.updated_at`,
			submissionID, questionID, req.Responses[questionID], now,
		)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to upsert submission response")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit submission")
	}
	committed = true

	span.SetAttributes(observability.AttributeSubmissionID(submissionID))

	if s.cfg != nil && s.cfg.Server.LinkSessions && s.sessions != nil {
		// Best-effort linkage of the submission to the user's last closed
		// session; a failure here never fails the recorded submission.
		if linkErr := s.sessions.AttachSubmission(ctx, userID, submissionID); linkErr != nil {
			s.logger.Warn(ctx, "Failed to link submission to session", map[string]interface{}{
				"user_id":       userID,
				"submission_id": submissionID,
				"error":         linkErr.Error(),
			})
		}
	}

	return s.GetSubmissionView(ctx, submissionID)
}

// scanSubmission scans a submission using the canonical field order.
func scanSubmission(row interface{ Scan(...interface{}) error }) (result0 *models.Submission, err error) {
	var sub models.Submission
	var privacy string
	err = row.Scan(
		&sub.ID,
		&sub.FeedbackID,
		&sub.UserID,
		&privacy,
		&sub.Anonymous,
		&sub.OverallComments,
		&sub.Reviewed,
		&sub.SessionID,
		&sub.SubmittedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan submission")
	}
	sub.PrivacyLevel = models.PrivacyLevel(privacy)
	return &sub, nil
}

const submissionQueryFields = `id, feedback_id, user_id, privacy_level, anonymous, overall_comments, reviewed, session_id, submitted_at, updated_at`

// GetSubmissionView returns the assembled read model for a submission, with
// submitter identity suppressed when the privacy level requires it.
func (s *SubmissionService) GetSubmissionView(ctx context.Context, id int) (result0 *models.SubmissionView, err error) {
	ctx, span := observability.TraceSubmissionFunction(ctx, "get_submission_view",
		observability.AttributeSubmissionID(id),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionQueryFields+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, err
	}

	responses, err := s.loadResponses(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	return s.assembleView(ctx, sub, responses)
}

// loadResponses returns the question-to-answer map of a submission.
func (s *SubmissionService) loadResponses(ctx context.Context, submissionID int) (result0 map[int]string, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, answer FROM submission_responses WHERE submission_id = $1 ORDER BY question_id`,
		submissionID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query submission responses")
	}
	defer func() {
		_ = rows.Close()
	}()

	responses := make(map[int]string)
	for rows.Next() {
		var questionID int
		var answer string
		if err = rows.Scan(&questionID, &answer); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan submission response")
		}
		responses[questionID] = answer
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate submission responses")
	}
	return responses, nil
}

// assembleView builds the read model, suppressing submitter identity for
// anonymous submissions.
func (s *SubmissionService) assembleView(ctx context.Context, sub *models.Submission, responses map[int]string) (result0 *models.SubmissionView, err error) {
	view := &models.SubmissionView{
		ID:           sub.ID,
		FeedbackID:   sub.FeedbackID,
		PrivacyLevel: sub.PrivacyLevel,
		Anonymous:    sub.Anonymous,
		Reviewed:     sub.Reviewed,
		Responses:    responses,
		SubmittedAt:  sub.SubmittedAt,
	}
	if sub.OverallComments.Valid {
		view.OverallComments = &sub.OverallComments.String
	}

	if !sub.Anonymous {
		submitterID := sub.UserID
		view.SubmitterID = &submitterID
		if s.directory != nil {
			user, userErr := s.directory.GetUserByID(ctx, sub.UserID)
			if userErr == nil {
				view.SubmitterName = &user.Username
			} else if !contextutils.IsError(userErr, contextutils.ErrRecordNotFound) {
				return nil, userErr
			}
		}
	}
	return view, nil
}

// ListByFeedback returns all submissions for a feedback round.
func (s *SubmissionService) ListByFeedback(ctx context.Context, feedbackID int) (result0 []models.SubmissionView, err error) {
	ctx, span := observability.TraceSubmissionFunction(ctx, "list_by_feedback",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	return s.listSubmissions(ctx,
		`SELECT `+submissionQueryFields+` FROM submissions WHERE feedback_id = $1 ORDER BY submitted_at DESC`,
		feedbackID)
}

// ListByUser returns all submissions made by a user.
func (s *SubmissionService) ListByUser(ctx context.Context, userID int) (result0 []models.SubmissionView, err error) {
	ctx, span := observability.TraceSubmissionFunction(ctx, "list_by_user",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	return s.listSubmissions(ctx,
		`SELECT `+submissionQueryFields+` FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC`,
		userID)
}

func (s *SubmissionService) listSubmissions(ctx context.Context, query string, args ...interface{}) (result0 []models.SubmissionView, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query submissions")
	}
	defer func() {
		_ = rows.Close()
	}()

	subs := []models.Submission{}
	for rows.Next() {
		sub, scanErr := scanSubmission(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, *sub)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate submissions")
	}

	views := []models.SubmissionView{}
	for i := range subs {
		responses, respErr := s.loadResponses(ctx, subs[i].ID)
		if respErr != nil {
			return nil, respErr
		}
		view, viewErr := s.assembleView(ctx, &subs[i], responses)
		if viewErr != nil {
			return nil, viewErr
		}
		views = append(views, *view)
	}
	return views, nil
}

// CountByUser returns how many submissions a user has made.
func (s *SubmissionService) CountByUser(ctx context.Context, userID int) (result0 int, err error) {
	ctx, span := observability.TraceSubmissionFunction(ctx, "count_by_user",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to count submissions")
	}
	return count, nil
}
