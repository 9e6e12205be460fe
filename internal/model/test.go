package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the lifecycle states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusClosed    TestStatus = "CLOSED"
)

// Test represents an authored test entity.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	EntryToken      string     `json:"entry_token,omitempty"`
	QuestionCount   int        `json:"question_count"`
	Status          TestStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Option is a single selectable answer choice.
type Option struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// QuestionForTaking is a question as delivered to a student: prompt and
// options only, never correctness data.
type QuestionForTaking struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	Options  []Option  `json:"options"`
	Points   int       `json:"points"`
	OrderNum int       `json:"order_num"`
}

// TestPayload is the Redis-cached payload a student downloads to take a test.
type TestPayload struct {
	TestID          uuid.UUID           `json:"test_id"`
	Title           string              `json:"title"`
	DurationMinutes int                 `json:"duration_minutes"`
	Questions       []QuestionForTaking `json:"questions"`
}
