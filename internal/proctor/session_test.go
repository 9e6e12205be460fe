package proctor

import (
	"testing"
	"time"
)

func TestOrderedAnswersSkipsOutOfRangeSelections(t *testing.T) {
	sess := testSession(2, time.Hour, time.Now())
	sess.Answers[0] = 1
	sess.Answers[1] = 99 // corrupted client input

	answers := sess.OrderedAnswers()
	if len(answers) != 1 {
		t.Fatalf("answers = %d entries, want 1 (out-of-range dropped)", len(answers))
	}
	if answers[0].QuestionID != sess.Questions[0].ID {
		t.Fatal("wrong question survived filtering")
	}
}

func TestOrderedAnswersEmptyForUnansweredSession(t *testing.T) {
	sess := testSession(5, time.Hour, time.Now())
	if got := sess.OrderedAnswers(); len(got) != 0 {
		t.Fatalf("answers = %v, want empty", got)
	}
}
