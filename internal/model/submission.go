package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitReason records what triggered a submission.
type SubmitReason string

const (
	ReasonUserRequested SubmitReason = "user_requested"
	ReasonTimeExpired   SubmitReason = "time_expired"
	ReasonViolations    SubmitReason = "fullscreen_violations"
)

// AnswerSubmission is one answered question in the server's ordered
// answer-list format. Unanswered questions are simply absent.
type AnswerSubmission struct {
	QuestionID          uuid.UUID `json:"question_id"`
	SelectedOptionID    uuid.UUID `json:"selected_option_id"`
	SelectedAnswerIndex int       `json:"selected_answer_index"`
}

// Submission is the finalization payload for one attempt.
type Submission struct {
	AttemptID        uuid.UUID          `json:"attempt_id"`
	TestID           uuid.UUID          `json:"test_id"`
	StudentID        int                `json:"student_id"`
	Answers          []AnswerSubmission `json:"answers"`
	TimeSpentMinutes int                `json:"time_spent_minutes"`
	StartedAt        time.Time          `json:"started_at"`
	Reason           SubmitReason       `json:"submission_reason"`
}

// PendingSubmission is the durable snapshot written just before a forced
// submission is scheduled, so a tab close during the grace window still
// produces a submission. At most one exists per attempt; it is deleted
// the instant any send path consumes it.
type PendingSubmission struct {
	AttemptID        uuid.UUID          `json:"attempt_id"`
	TestID           uuid.UUID          `json:"test_id"`
	StudentID        int                `json:"student_id"`
	Answers          []AnswerSubmission `json:"answers"`
	RemainingSeconds int                `json:"remaining_seconds"`
	Reason           SubmitReason       `json:"reason"`
	ScheduledAt      time.Time          `json:"scheduled_at"`
}

// SubmitTestRequest is the body of the normal HTTP submission endpoint.
// Timing is never taken from the client; an empty answer list is legal.
type SubmitTestRequest struct {
	Answers []AnswerSubmission `json:"answers" binding:"omitempty,dive"`
	Reason  SubmitReason       `json:"submission_reason" binding:"omitempty,oneof=user_requested time_expired fullscreen_violations"`
}

// BeaconSubmitRequest is the fire-and-forget variant used during page
// unload. Beacon transports cannot set an Authorization header, so the
// auth token travels in the body.
type BeaconSubmitRequest struct {
	Token     string    `json:"token" binding:"required"`
	AttemptID uuid.UUID `json:"attempt_id" binding:"required"`
}
