package proctor

import (
	"time"

	"github.com/google/uuid"
	"github.com/quizport/quizport-backend/internal/model"
)

// Phase enumerates the ordered steps of a test attempt. Transitions are
// strictly forward; failures in permissions or the fullscreen request
// degrade into PhaseActive rather than blocking the student.
type Phase string

const (
	PhaseLoading           Phase = "loading"
	PhaseInstructions      Phase = "instructions"
	PhasePermissions       Phase = "permission-negotiation"
	PhaseFullscreenRequest Phase = "fullscreen-request"
	PhaseActive            Phase = "active"
	PhaseSubmitted         Phase = "submitted"
)

// Session is the in-memory state of one attempt. It is owned exclusively
// by its Machine and discarded on submission or abandonment.
type Session struct {
	AttemptID uuid.UUID
	TestID    uuid.UUID
	StudentID int

	Questions []model.QuestionForTaking
	TimeLimit time.Duration
	Remaining time.Duration

	// Answers maps question index to selected option index. Sparse;
	// insertion order is irrelevant.
	Answers         map[int]int
	CurrentQuestion int

	Phase     Phase
	StartedAt time.Time
}

// NewSession builds a Session in the instructions phase.
func NewSession(attemptID, testID uuid.UUID, studentID int, questions []model.QuestionForTaking, limit, remaining time.Duration, startedAt time.Time) *Session {
	return &Session{
		AttemptID: attemptID,
		TestID:    testID,
		StudentID: studentID,
		Questions: questions,
		TimeLimit: limit,
		Remaining: remaining,
		Answers:   make(map[int]int),
		Phase:     PhaseInstructions,
		StartedAt: startedAt,
	}
}

// OrderedAnswers translates the sparse answer map into the server's
// ordered answer-list format, skipping unanswered questions and any
// out-of-range option index.
func (s *Session) OrderedAnswers() []model.AnswerSubmission {
	answers := make([]model.AnswerSubmission, 0, len(s.Answers))
	for i, q := range s.Questions {
		optIdx, ok := s.Answers[i]
		if !ok || optIdx < 0 || optIdx >= len(q.Options) {
			continue
		}
		answers = append(answers, model.AnswerSubmission{
			QuestionID:          q.ID,
			SelectedOptionID:    q.Options[optIdx].ID,
			SelectedAnswerIndex: optIdx,
		})
	}
	return answers
}
