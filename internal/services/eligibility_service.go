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

// EligibilityServiceInterface decides whether a user may submit to a feedback
// round right now.
type EligibilityServiceInterface interface {
	CheckEligibility(ctx context.Context, userID, feedbackID int) (*models.EligibilityResult, error)
	HasSubmitted(ctx context.Context, userID, feedbackID int) (bool, error)
}

// EligibilityService combines targeting resolution with the round's
// active/time-window state and prior-submission state. Checks short-circuit
// in a fixed order; the first failing check determines the denial reason.
// The result is a read model for clients; the recorder re-runs the same
// checks at submission time.
type EligibilityService struct {
	db        *sql.DB
	feedback  FeedbackServiceInterface
	targeting TargetingServiceInterface
	logger    *observability.Logger
	now       func() time.Time
}

// NewEligibilityService creates a new EligibilityService instance
func NewEligibilityService(db *sql.DB, feedback FeedbackServiceInterface, targeting TargetingServiceInterface, logger *observability.Logger) *EligibilityService {
	if db == nil {
		panic("NewEligibilityService: db is nil")
	}
	if logger == nil {
		panic("NewEligibilityService: logger is nil")
	}
	return &EligibilityService{
		db:        db,
		feedback:  feedback,
		targeting: targeting,
		logger:    logger,
		now:       time.Now,
	}
}

// withinWindow reports whether now falls inside [start, end], treating a null
// bound as unbounded on that side.
func withinWindow(f *models.Feedback, now time.Time) bool {
	if f.StartDate.Valid && now.Before(f.StartDate.Time) {
		return false
	}
	if f.EndDate.Valid && now.After(f.EndDate.Time) {
		return false
	}
	return true
}

// HasSubmitted reports whether a submission exists for (user, feedback).
func (s *EligibilityService) HasSubmitted(ctx context.Context, userID, feedbackID int) (result0 bool, err error) {
	ctx, span := observability.TraceEligibilityFunction(ctx, "has_submitted",
		observability.AttributeUserID(userID),
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM submissions WHERE user_id = $1 AND feedback_id = $2)`,
		userID, feedbackID,
	).Scan(&exists)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to check prior submission")
	}
	return exists, nil
}

// CheckEligibility evaluates, in order: feedback exists, active flag, time
// window, targeting, prior submission. Returns NotFound for an unknown
// feedback id; every other failure is a denial carried in the result, not an
// error.
func (s *EligibilityService) CheckEligibility(ctx context.Context, userID, feedbackID int) (result0 *models.EligibilityResult, err error) {
	ctx, span := observability.TraceEligibilityFunction(ctx, "check_eligibility",
		observability.AttributeUserID(userID),
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	feedback, err := s.feedback.GetFeedbackByID(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	constraints := s.buildConstraints(feedback, now)

	deny := func(reason models.EligibilityReason) *models.EligibilityResult {
		span.SetAttributes(
			attribute.Bool("eligibility.allowed", false),
			attribute.String("eligibility.reason", string(reason)),
		)
		constraints["can_submit"] = false
		return &models.EligibilityResult{Allowed: false, Reason: reason, Constraints: constraints}
	}

	if !feedback.Active {
		return deny(models.ReasonFeedbackInactive), nil
	}

	if !withinWindow(feedback, now) {
		return deny(models.ReasonOutsideWindow), nil
	}

	targeted, err := s.targeting.IsTargeted(ctx, feedbackID, userID)
	if err != nil {
		return nil, err
	}
	constraints["targeted"] = targeted
	if !targeted {
		return deny(models.ReasonNotTargeted), nil
	}

	submitted, err := s.HasSubmitted(ctx, userID, feedbackID)
	if err != nil {
		return nil, err
	}
	constraints["already_submitted"] = submitted
	if submitted {
		return deny(models.ReasonAlreadySubmitted), nil
	}

	span.SetAttributes(attribute.Bool("eligibility.allowed", true))
	constraints["can_submit"] = true
	return &models.EligibilityResult{Allowed: true, Constraints: constraints}, nil
}

// buildConstraints assembles the human-oriented constraint payload clients
// use to render guidance.
func (s *EligibilityService) buildConstraints(f *models.Feedback, now time.Time) map[string]interface{} {
	constraints := map[string]interface{}{
		"active": f.Active,
	}

	if f.StartDate.Valid {
		constraints["start_date"] = f.StartDate.Time
		constraints["has_started"] = !now.Before(f.StartDate.Time)
		if now.Before(f.StartDate.Time) {
			constraints["minutes_until_start"] = int(f.StartDate.Time.Sub(now).Minutes())
		}
	}
	if f.EndDate.Valid {
		constraints["end_date"] = f.EndDate.Time
		constraints["has_ended"] = now.After(f.EndDate.Time)
		if !now.After(f.EndDate.Time) {
			constraints["minutes_until_end"] = int(f.EndDate.Time.Sub(now).Minutes())
		}
	}
	constraints["within_window"] = withinWindow(f, now)

	return constraints
}
