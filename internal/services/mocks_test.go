package services

import (
	"context"

	"feedbackapp/internal/models"
)

// Stub services embed the interface they stand in for; only the methods a
// test overrides are callable, anything else nil-panics and fails the test.

type stubFeedbackService struct {
	FeedbackServiceInterface
	getByID         func(ctx context.Context, id int) (*models.Feedback, error)
	listTargetUsers func(ctx context.Context, feedbackID int) ([]int, error)
	listTargetDepts func(ctx context.Context, feedbackID int) ([]int, error)
}

func (s *stubFeedbackService) GetFeedbackByID(ctx context.Context, id int) (*models.Feedback, error) {
	return s.getByID(ctx, id)
}

func (s *stubFeedbackService) ListTargetUsers(ctx context.Context, feedbackID int) ([]int, error) {
	return s.listTargetUsers(ctx, feedbackID)
}

func (s *stubFeedbackService) ListTargetDepartments(ctx context.Context, feedbackID int) ([]int, error) {
	return s.listTargetDepts(ctx, feedbackID)
}

type stubUserDirectory struct {
	UserServiceInterface
	getUserByID          func(ctx context.Context, id int) (*models.User, error)
	getProjectMembers    func(ctx context.Context, projectID int) ([]int, error)
	getDepartmentMembers func(ctx context.Context, departmentID int) ([]int, error)
}

func (s *stubUserDirectory) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.getUserByID(ctx, id)
}

func (s *stubUserDirectory) GetProjectMembers(ctx context.Context, projectID int) ([]int, error) {
	return s.getProjectMembers(ctx, projectID)
}

func (s *stubUserDirectory) GetDepartmentMembers(ctx context.Context, departmentID int) ([]int, error) {
	return s.getDepartmentMembers(ctx, departmentID)
}

type stubTargetingService struct {
	TargetingServiceInterface
	isTargeted func(ctx context.Context, feedbackID, userID int) (bool, error)
}

func (s *stubTargetingService) IsTargeted(ctx context.Context, feedbackID, userID int) (bool, error) {
	return s.isTargeted(ctx, feedbackID, userID)
}

type stubEligibilityService struct {
	EligibilityServiceInterface
	check func(ctx context.Context, userID, feedbackID int) (*models.EligibilityResult, error)
}

func (s *stubEligibilityService) CheckEligibility(ctx context.Context, userID, feedbackID int) (*models.EligibilityResult, error) {
	return s.check(ctx, userID, feedbackID)
}

type stubSessionService struct {
	SessionServiceInterface
	attach func(ctx context.Context, userID, submissionID int) error
}

func (s *stubSessionService) AttachSubmission(ctx context.Context, userID, submissionID int) error {
	return s.attach(ctx, userID, submissionID)
}
