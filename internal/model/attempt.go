package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// Attempt represents a student's test attempt row.
type Attempt struct {
	ID           uuid.UUID     `json:"id"`
	TestID       uuid.UUID     `json:"test_id"`
	StudentID    int           `json:"student_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Status       AttemptStatus `json:"status"`
	SubmitReason *SubmitReason `json:"submit_reason,omitempty"`
}

// StartAttemptRequest is the payload for a student starting a test attempt.
type StartAttemptRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// AttemptState is what a reloading client needs to resume: previously
// autosaved answers plus the authoritative remaining time.
type AttemptState struct {
	TestID           uuid.UUID         `json:"test_id"`
	StudentID        int               `json:"student_id"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}

// CapabilityReport carries the outcomes of the client-side capability
// probes, sent once in the session begin message. Cookies is the only
// hard requirement; the rest degrade the session when false.
type CapabilityReport struct {
	Cookies          bool `json:"cookies"`
	StoragePersisted bool `json:"storage_persisted"`
	WakeLock         bool `json:"wake_lock"`
	OrientationLock  bool `json:"orientation_lock"`
}
