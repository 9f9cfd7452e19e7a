package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// PrivacyLevel is the submission visibility policy. It is a closed
// enumeration; unknown values are rejected at the boundary.
type PrivacyLevel string

const (
	// PrivacyPublic exposes the submitter identity to everyone allowed to read
	PrivacyPublic PrivacyLevel = "PUBLIC"
	// PrivacyPrivate restricts the submission to the feedback owner
	PrivacyPrivate PrivacyLevel = "PRIVATE"
	// PrivacyAnonymous suppresses the submitter identity downstream
	PrivacyAnonymous PrivacyLevel = "ANONYMOUS"
	// PrivacyConfidential restricts the submission to administrators
	PrivacyConfidential PrivacyLevel = "CONFIDENTIAL"
)

// Valid reports whether the privacy level is one of the known values.
func (p PrivacyLevel) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyPrivate, PrivacyAnonymous, PrivacyConfidential:
		return true
	}
	return false
}

// IsAnonymous reports whether submitter identity must be suppressed.
func (p PrivacyLevel) IsAnonymous() bool {
	return p == PrivacyAnonymous
}

// Submission represents one user's recorded submission to a feedback round.
// Anonymous is derived from PrivacyLevel at creation time, never set
// independently.
type Submission struct {
	ID              int            `json:"id" yaml:"id"`
	FeedbackID      int            `json:"feedback_id" yaml:"feedback_id"`
	UserID          int            `json:"user_id" yaml:"user_id"`
	PrivacyLevel    PrivacyLevel   `json:"privacy_level" yaml:"privacy_level"`
	Anonymous       bool           `json:"anonymous" yaml:"anonymous"`
	OverallComments sql.NullString `json:"overall_comments" yaml:"overall_comments"`
	Reviewed        bool           `json:"reviewed" yaml:"reviewed"`
	SessionID       sql.NullInt64  `json:"session_id" yaml:"session_id"`
	SubmittedAt     time.Time      `json:"submitted_at" yaml:"submitted_at"`
	UpdatedAt       time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for Submission to handle nullable fields
func (s Submission) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int          `json:"id"`
		FeedbackID      int          `json:"feedback_id"`
		UserID          int          `json:"user_id"`
		PrivacyLevel    PrivacyLevel `json:"privacy_level"`
		Anonymous       bool         `json:"anonymous"`
		OverallComments *string      `json:"overall_comments"`
		Reviewed        bool         `json:"reviewed"`
		SessionID       *int64       `json:"session_id"`
		SubmittedAt     time.Time    `json:"submitted_at"`
		UpdatedAt       time.Time    `json:"updated_at"`
	}{
		ID:              s.ID,
		FeedbackID:      s.FeedbackID,
		UserID:          s.UserID,
		PrivacyLevel:    s.PrivacyLevel,
		Anonymous:       s.Anonymous,
		OverallComments: nullStringToPointer(s.OverallComments),
		Reviewed:        s.Reviewed,
		SessionID:       nullInt64ToPointer(s.SessionID),
		SubmittedAt:     s.SubmittedAt,
		UpdatedAt:       s.UpdatedAt,
	})
}

// SubmissionResponse is one answer within a submission, keyed by
// (submission_id, question_id) with upsert semantics.
type SubmissionResponse struct {
	ID           int       `json:"id" yaml:"id"`
	SubmissionID int       `json:"submission_id" yaml:"submission_id"`
	QuestionID   int       `json:"question_id" yaml:"question_id"`
	Answer       string    `json:"answer" yaml:"answer"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// SubmissionView is the assembled read model returned after recording or
// fetching a submission. SubmitterID and SubmitterName are nil when the
// privacy level suppresses identity.
type SubmissionView struct {
	ID              int            `json:"id"`
	FeedbackID      int            `json:"feedback_id"`
	SubmitterID     *int           `json:"submitter_id"`
	SubmitterName   *string        `json:"submitter_name"`
	PrivacyLevel    PrivacyLevel   `json:"privacy_level"`
	Anonymous       bool           `json:"anonymous"`
	OverallComments *string        `json:"overall_comments"`
	Reviewed        bool           `json:"reviewed"`
	Responses       map[int]string `json:"responses"`
	SubmittedAt     time.Time      `json:"submitted_at"`
}

// SubmissionSession is a contiguous timed interval representing a user
// actively filling out a submission. At most one row per user has a null
// EndedAt; the storage layer enforces this with a partial unique index.
type SubmissionSession struct {
	ID              int           `json:"id" yaml:"id"`
	UserID          int           `json:"user_id" yaml:"user_id"`
	FeedbackID      int           `json:"feedback_id" yaml:"feedback_id"`
	SubmissionID    sql.NullInt64 `json:"submission_id" yaml:"submission_id"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt         sql.NullTime  `json:"ended_at" yaml:"ended_at"`
	DurationSeconds sql.NullInt64 `json:"duration_seconds" yaml:"duration_seconds"`
	CreatedAt       time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Open reports whether the session has not been closed yet.
func (s *SubmissionSession) Open() bool {
	return !s.EndedAt.Valid
}

// MarshalJSON customizes JSON marshaling for SubmissionSession to handle nullable fields
func (s SubmissionSession) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int        `json:"id"`
		UserID          int        `json:"user_id"`
		FeedbackID      int        `json:"feedback_id"`
		SubmissionID    *int64     `json:"submission_id"`
		StartedAt       time.Time  `json:"started_at"`
		EndedAt         *time.Time `json:"ended_at"`
		DurationSeconds *int64     `json:"duration_seconds"`
	}{
		ID:              s.ID,
		UserID:          s.UserID,
		FeedbackID:      s.FeedbackID,
		SubmissionID:    nullInt64ToPointer(s.SubmissionID),
		StartedAt:       s.StartedAt,
		EndedAt:         nullTimeToPointer(s.EndedAt),
		DurationSeconds: nullInt64ToPointer(s.DurationSeconds),
	})
}

// CreateFeedbackRequest is the admin payload for creating a feedback round
type CreateFeedbackRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	ProjectID   int        `json:"project_id" binding:"required"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Active      bool       `json:"active"`
}

// UpdateFeedbackRequest is a partial update: only non-nil fields overwrite.
type UpdateFeedbackRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// RecordSubmissionRequest is the payload for recording a submission
type RecordSubmissionRequest struct {
	FeedbackID      int            `json:"feedback_id" binding:"required"`
	PrivacyLevel    PrivacyLevel   `json:"privacy_level" binding:"required"`
	Responses       map[int]string `json:"responses" binding:"required"`
	OverallComments string         `json:"overall_comments"`
}

// StartSessionRequest is the payload for starting a submission session
type StartSessionRequest struct {
	FeedbackID int `json:"feedback_id" binding:"required"`
}

// MonthlyDuration is one month's accumulated completed-session seconds
type MonthlyDuration struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	TotalSeconds int64 `json:"total_seconds"`
}
