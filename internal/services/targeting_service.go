package services

import (
	"context"
	"database/sql"
	"sort"

	"feedbackapp/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// TargetingServiceInterface resolves the audience of a feedback round.
type TargetingServiceInterface interface {
	ResolveEligibleUsers(ctx context.Context, feedbackID int) (map[int]struct{}, error)
	IsTargeted(ctx context.Context, feedbackID, userID int) (bool, error)
}

// TargetingService determines the set of users eligible to receive and submit
// a feedback round. The eligible set is the union of explicit target users
// and the members of explicitly targeted departments; project membership is
// consulted only as a fallback when both explicit target sets are empty.
type TargetingService struct {
	db        *sql.DB
	feedback  FeedbackServiceInterface
	directory UserServiceInterface
	logger    *observability.Logger
}

// NewTargetingService creates a new TargetingService instance
func NewTargetingService(db *sql.DB, feedback FeedbackServiceInterface, directory UserServiceInterface, logger *observability.Logger) *TargetingService {
	if db == nil {
		panic("NewTargetingService: db is nil")
	}
	if logger == nil {
		panic("NewTargetingService: logger is nil")
	}
	return &TargetingService{db: db, feedback: feedback, directory: directory, logger: logger}
}

// ResolveEligibleUsers returns the deduplicated set of user ids eligible for
// the feedback round. An empty set is a valid result, not an error.
func (s *TargetingService) ResolveEligibleUsers(ctx context.Context, feedbackID int) (result0 map[int]struct{}, err error) {
	ctx, span := observability.TraceTargetingFunction(ctx, "resolve_eligible_users",
		observability.AttributeFeedbackID(feedbackID),
	)
	defer observability.FinishSpan(span, &err)

	feedback, err := s.feedback.GetFeedbackByID(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	targetUsers, err := s.feedback.ListTargetUsers(ctx, feedbackID)
	if err != nil {
		return nil, err
	}
	targetDepartments, err := s.feedback.ListTargetDepartments(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	eligible := make(map[int]struct{})

	// Project membership is the fallback scope: consulted only when the
	// round declares no explicit targets at all.
	if len(targetUsers) == 0 && len(targetDepartments) == 0 {
		members, err := s.directory.GetProjectMembers(ctx, feedback.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			eligible[id] = struct{}{}
		}
		span.SetAttributes(
			attribute.Bool("targeting.project_fallback", true),
			attribute.Int("targeting.eligible_count", len(eligible)),
		)
		return eligible, nil
	}

	for _, id := range targetUsers {
		eligible[id] = struct{}{}
	}
	for _, deptID := range targetDepartments {
		members, err := s.directory.GetDepartmentMembers(ctx, deptID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			eligible[id] = struct{}{}
		}
	}

	span.SetAttributes(
		attribute.Bool("targeting.project_fallback", false),
		attribute.Int("targeting.eligible_count", len(eligible)),
	)
	return eligible, nil
}

// IsTargeted reports whether the user is in the eligible set of the round.
func (s *TargetingService) IsTargeted(ctx context.Context, feedbackID, userID int) (result0 bool, err error) {
	ctx, span := observability.TraceTargetingFunction(ctx, "is_targeted",
		observability.AttributeFeedbackID(feedbackID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	eligible, err := s.ResolveEligibleUsers(ctx, feedbackID)
	if err != nil {
		return false, err
	}
	_, ok := eligible[userID]
	return ok, nil
}

// SortedUserIDs converts an eligible-user set to a sorted slice for stable
// API output.
func SortedUserIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
