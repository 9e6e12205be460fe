package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationEvent is the transient record of one detected fullscreen exit.
// It drives the violation counter and duplicate suppression; rows are
// persisted asynchronously for audit only.
type ViolationEvent struct {
	At           time.Time `json:"at"`
	Sequence     int       `json:"sequence"`
	WarningLevel int       `json:"warning_level"`
}

// ViolationRecord is the queue payload consumed by the violation worker.
type ViolationRecord struct {
	TestID       string `json:"test_id"`
	StudentID    int    `json:"student_id"`
	AttemptID    string `json:"attempt_id"`
	Sequence     int    `json:"sequence"`
	WarningLevel int    `json:"warning_level"`
	Timestamp    int64  `json:"timestamp"`
}

// NewViolationRecord flattens a ViolationEvent with its attempt identity
// for queueing.
func NewViolationRecord(testID uuid.UUID, studentID int, attemptID uuid.UUID, v *ViolationEvent) *ViolationRecord {
	return &ViolationRecord{
		TestID:       testID.String(),
		StudentID:    studentID,
		AttemptID:    attemptID.String(),
		Sequence:     v.Sequence,
		WarningLevel: v.WarningLevel,
		Timestamp:    v.At.Unix(),
	}
}
