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

// sessionQueryFields is the canonical column list for scanning sessions.
const sessionQueryFields = `id, user_id, feedback_id, submission_id, started_at, ended_at, duration_seconds, created_at, updated_at`

// SessionServiceInterface tracks submission timing sessions.
type SessionServiceInterface interface {
	StartSession(ctx context.Context, userID, feedbackID int) (*models.SubmissionSession, error)
	StopSession(ctx context.Context, userID int) (*models.SubmissionSession, error)
	FindOpenSession(ctx context.Context, userID int) (*models.SubmissionSession, error)
	AttachSubmission(ctx context.Context, userID, submissionID int) error
	SumDurations(ctx context.Context, userID *int, from, to time.Time) (int64, error)
	MonthlyTotal(ctx context.Context, userID *int, year int, month time.Month) (*models.MonthlyDuration, error)
}

// SessionService maintains submission timing sessions. For a given user at
// most one session is open at a time; the storage layer backs this with a
// partial unique index on (user_id) WHERE ended_at IS NULL, and StartSession
// retries once when an insert loses a race against that index.
type SessionService struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService instance
func NewSessionService(db *sql.DB, logger *observability.Logger) *SessionService {
	if db == nil {
		panic("NewSessionService: db is nil")
	}
	if logger == nil {
		panic("NewSessionService: logger is nil")
	}
	return &SessionService{db: db, logger: logger, now: time.Now}
}

func scanSession(row interface{ Scan(...interface{}) error }) (result0 *models.SubmissionSession, err error) {
	var s models.SubmissionSession
	err = row.Scan(
		&s.ID,
		&s.UserID,
		&s.FeedbackID,
		&s.SubmissionID,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationSeconds,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(err, "failed to scan submission session")
	}
	return &s, nil
}

// FindOpenSession returns the user's open session, or ErrSessionNotFound.
func (s *SessionService) FindOpenSession(ctx context.Context, userID int) (result0 *models.SubmissionSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "find_open_session",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionQueryFields+` FROM submission_sessions
		 WHERE user_id = $1 AND ended_at IS NULL`, userID)
	session, err := scanSession(row)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			return nil, contextutils.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// closeSession marks the session closed with the duration computed against
// now, floored at zero.
func (s *SessionService) closeSession(ctx context.Context, session *models.SubmissionSession, now time.Time) (result0 *models.SubmissionSession, err error) {
	duration := int64(now.Sub(session.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE submission_sessions
		 SET ended_at = $1, duration_seconds = $2, updated_at = $1
		 WHERE id = $3 AND ended_at IS NULL
		 RETURNING `+sessionQueryFields,
		now, duration, session.ID,
	)
	return scanSession(row)
}

// StartSession closes the user's stale open session if one exists, then
// creates a new open session. A failure while closing the stale session is
// best-effort and does not block the new session; losing a stale close
// record is less harmful than blocking the user from starting a new attempt.
func (s *SessionService) StartSession(ctx context.Context, userID, feedbackID int) (result0 *models.SubmissionSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "start_session",
		observability.AttributeUserID(userID),
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	// Two passes: the insert can lose a race against a concurrent start for
	// the same user; the partial unique index rejects the second open row
	// and the retry closes whatever appeared before inserting again.
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()

		open, findErr := s.FindOpenSession(ctx, userID)
		if findErr != nil && !contextutils.IsError(findErr, contextutils.ErrSessionNotFound) {
			return nil, findErr
		}
		if open != nil {
			if _, closeErr := s.closeSession(ctx, open, now); closeErr != nil {
				s.logger.Warn(ctx, "Failed to close stale open session, continuing", map[string]interface{}{
					"user_id":    userID,
					"session_id": open.ID,
					"error":      closeErr.Error(),
				})
			}
		}

		session, insertErr := s.insertOpenSession(ctx, userID, feedbackID, now)
		if insertErr != nil {
			if isUniqueViolation(insertErr) {
				span.SetAttributes(attribute.Bool("session.start_retried", true))
				continue
			}
			return nil, insertErr
		}
		return session, nil
	}

	return nil, contextutils.WrapError(contextutils.ErrConflict, "could not obtain exclusive open session")
}

func (s *SessionService) insertOpenSession(ctx context.Context, userID, feedbackID int, now time.Time) (result0 *models.SubmissionSession, err error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO submission_sessions (user_id, feedback_id, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $3, $3)
		 RETURNING `+sessionQueryFields,
		userID, feedbackID, now,
	)
	return scanSession(row)
}

// StopSession closes the user's open session and returns it. When no session
// is open this is a benign no-op returning (nil, nil); callers must tolerate
// the absent result.
func (s *SessionService) StopSession(ctx context.Context, userID int) (result0 *models.SubmissionSession, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "stop_session",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	open, err := s.FindOpenSession(ctx, userID)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrSessionNotFound) {
			span.SetAttributes(attribute.Bool("session.noop_stop", true))
			return nil, nil
		}
		return nil, err
	}

	closed, err := s.closeSession(ctx, open, s.now())
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// AttachSubmission links a submission to the user's most recently closed
// session that is not yet linked. Used only when session linkage is enabled.
func (s *SessionService) AttachSubmission(ctx context.Context, userID, submissionID int) (err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "attach_submission",
		observability.AttributeUserID(userID),
		observability.AttributeSubmissionID(submissionID),
	)
	defer observability.FinishSpan(span, &err)

	now := s.now()

	var sessionID int
	err = s.db.QueryRowContext(ctx,
		`UPDATE submission_sessions
		 SET submission_id = $1, updated_at = $2
		 WHERE id = (
		     SELECT id FROM submission_sessions
		     WHERE user_id = $3 AND ended_at IS NOT NULL AND submission_id IS NULL
		     ORDER BY ended_at DESC
		     LIMIT 1
		 )
		 RETURNING id`,
		submissionID, now, userID,
	).Scan(&sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			// No closed unlinked session to attach to.
			return nil
		}
		return contextutils.WrapError(err, "failed to attach submission to session")
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE submissions SET session_id = $1, updated_at = $2 WHERE id = $3`,
		sessionID, now, submissionID,
	)
	if err != nil {
		return contextutils.WrapError(err, "failed to record session on submission")
	}
	return nil
}

// SumDurations sums completed-session seconds with started_at in [from, to).
// Open sessions are excluded until closed. A nil userID sums globally.
func (s *SessionService) SumDurations(ctx context.Context, userID *int, from, to time.Time) (result0 int64, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "sum_durations",
		attribute.String("session.from", from.Format(time.RFC3339)),
		attribute.String("session.to", to.Format(time.RFC3339)),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT COALESCE(SUM(duration_seconds), 0) FROM submission_sessions
		 WHERE ended_at IS NOT NULL AND started_at >= $1 AND started_at < $2`
	args := []interface{}{from, to}
	if userID != nil {
		query += ` AND user_id = $3`
		args = append(args, *userID)
	}

	var total int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to sum session durations")
	}
	return total, nil
}

// MonthlyTotal sums completed-session seconds for the calendar month.
func (s *SessionService) MonthlyTotal(ctx context.Context, userID *int, year int, month time.Month) (result0 *models.MonthlyDuration, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "monthly_total",
		attribute.Int("session.year", year),
		attribute.Int("session.month", int(month)),
	)
	defer observability.FinishSpan(span, &err)

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	total, err := s.SumDurations(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	return &models.MonthlyDuration{Year: year, Month: int(month), TotalSeconds: total}, nil
}
