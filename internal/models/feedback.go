package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Feedback represents a configured round of feedback collection tied to a
// project, a question set, a time window, and a target audience.
type Feedback struct {
	ID          int            `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description sql.NullString `json:"description" yaml:"description"`
	ProjectID   int            `json:"project_id" yaml:"project_id"`
	StartDate   sql.NullTime   `json:"start_date" yaml:"start_date"`
	EndDate     sql.NullTime   `json:"end_date" yaml:"end_date"`
	Active      bool           `json:"active" yaml:"active"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for Feedback to handle nullable fields
func (f Feedback) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int        `json:"id"`
		Title       string     `json:"title"`
		Description *string    `json:"description"`
		ProjectID   int        `json:"project_id"`
		StartDate   *time.Time `json:"start_date"`
		EndDate     *time.Time `json:"end_date"`
		Active      bool       `json:"active"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}{
		ID:          f.ID,
		Title:       f.Title,
		Description: nullStringToPointer(f.Description),
		ProjectID:   f.ProjectID,
		StartDate:   nullTimeToPointer(f.StartDate),
		EndDate:     nullTimeToPointer(f.EndDate),
		Active:      f.Active,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	})
}

// Question represents an entry in the question bank
type Question struct {
	ID        int            `json:"id" yaml:"id"`
	Text      string         `json:"text" yaml:"text"`
	Category  sql.NullString `json:"category" yaml:"category"`
	Required  bool           `json:"required" yaml:"required"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for Question to handle nullable fields
func (q Question) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID        int       `json:"id"`
		Text      string    `json:"text"`
		Category  *string   `json:"category"`
		Required  bool      `json:"required"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}{
		ID:        q.ID,
		Text:      q.Text,
		Category:  nullStringToPointer(q.Category),
		Required:  q.Required,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	})
}

// FeedbackTargetUser is an explicit (feedback, user) audience entry
type FeedbackTargetUser struct {
	ID         int       `json:"id" yaml:"id"`
	FeedbackID int       `json:"feedback_id" yaml:"feedback_id"`
	UserID     int       `json:"user_id" yaml:"user_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// FeedbackTargetDepartment is an explicit (feedback, department) audience entry
type FeedbackTargetDepartment struct {
	ID           int       `json:"id" yaml:"id"`
	FeedbackID   int       `json:"feedback_id" yaml:"feedback_id"`
	DepartmentID int       `json:"department_id" yaml:"department_id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// FeedbackQuestion links a question into a feedback round; listing order is
// insertion order.
type FeedbackQuestion struct {
	ID         int       `json:"id" yaml:"id"`
	FeedbackID int       `json:"feedback_id" yaml:"feedback_id"`
	QuestionID int       `json:"question_id" yaml:"question_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// EligibilityReason is a stable machine-readable reason code for an
// eligibility denial. Clients render guidance from these, never from free
// text.
type EligibilityReason string

const (
	// ReasonFeedbackInactive denies submission to a deactivated feedback
	ReasonFeedbackInactive EligibilityReason = "feedback inactive"
	// ReasonOutsideWindow denies submission outside [start_date, end_date]
	ReasonOutsideWindow EligibilityReason = "outside submission window"
	// ReasonNotTargeted denies submission by a user outside the audience
	ReasonNotTargeted EligibilityReason = "not targeted"
	// ReasonAlreadySubmitted denies a second submission for the same pair
	ReasonAlreadySubmitted EligibilityReason = "already submitted"
)

// EligibilityResult is the read model produced by the eligibility engine. It
// is advisory for clients; enforcement re-runs the same checks at submission
// time.
type EligibilityResult struct {
	Allowed     bool                   `json:"allowed"`
	Reason      EligibilityReason      `json:"reason,omitempty"`
	Constraints map[string]interface{} `json:"constraints"`
}

// FeedbackView is the enriched read model for a feedback round
type FeedbackView struct {
	Feedback          Feedback `json:"feedback"`
	ProjectName       string   `json:"project_name"`
	QuestionIDs       []int    `json:"question_ids"`
	TargetUserIDs     []int    `json:"target_user_ids"`
	TargetDepartments []int    `json:"target_department_ids"`
	SubmissionCount   int      `json:"submission_count"`
	CanSubmit         bool     `json:"can_submit"`
}

// FeedbackStatistics carries dashboard totals
type FeedbackStatistics struct {
	TotalFeedbacks   int `json:"total_feedbacks"`
	ActiveFeedbacks  int `json:"active_feedbacks"`
	TotalSubmissions int `json:"total_submissions"`
}
