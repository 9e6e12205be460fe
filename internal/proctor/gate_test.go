package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/quizport/quizport-backend/internal/model"
)

type gateFixture struct {
	gate      *Gate
	sess      *Session
	effects   *effectsMock
	submitter *submitterMock
	pending   *pendingMemStore
	clk       *clock.Mock
}

func newGateFixture(questions int) *gateFixture {
	f := &gateFixture{
		effects:   &effectsMock{},
		submitter: &submitterMock{},
		pending:   newPendingMemStore(),
		clk:       clock.NewMock(),
	}
	f.clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	f.sess = testSession(questions, time.Hour, f.clk.Now())
	f.sess.Phase = PhaseActive
	lock := NewInputLock(f.effects)
	f.gate = NewGate(f.clk, f.submitter, f.pending, lock, f.effects, nopLogger())
	return f
}

func TestGateConcurrentSubmitsResultInOneNetworkCall(t *testing.T) {
	f := newGateFixture(3)
	block := make(chan struct{})
	f.submitter.enterBlock = block

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.gate.Submit(context.Background(), f.sess, model.ReasonUserRequested)
		}()
	}

	// One goroutine holds the in-flight flag and blocks on the network;
	// the other must bounce off the gate immediately.
	first := <-results
	if !errors.Is(first, ErrSubmissionInFlight) {
		t.Fatalf("loser error = %v, want ErrSubmissionInFlight", first)
	}
	close(block)
	wg.Wait()

	if second := <-results; second != nil {
		t.Fatalf("winner error = %v, want nil", second)
	}
	if f.submitter.callCount() != 1 {
		t.Fatalf("network submissions = %d, want exactly 1", f.submitter.callCount())
	}
}

func TestGateSparseAnswerMapRoundTrip(t *testing.T) {
	f := newGateFixture(3)
	// Answer map {0: 2, 2: 0} over 3 questions: index 1 omitted.
	f.sess.Answers[0] = 2
	f.sess.Answers[2] = 0

	if err := f.gate.Submit(context.Background(), f.sess, model.ReasonUserRequested); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sub := f.submitter.lastCall()
	if sub == nil {
		t.Fatal("no submission recorded")
	}
	if len(sub.Answers) != 2 {
		t.Fatalf("answers = %d entries, want 2", len(sub.Answers))
	}
	if sub.Answers[0].QuestionID != f.sess.Questions[0].ID ||
		sub.Answers[0].SelectedOptionID != f.sess.Questions[0].Options[2].ID ||
		sub.Answers[0].SelectedAnswerIndex != 2 {
		t.Fatalf("first answer mismatch: %+v", sub.Answers[0])
	}
	if sub.Answers[1].QuestionID != f.sess.Questions[2].ID ||
		sub.Answers[1].SelectedOptionID != f.sess.Questions[2].Options[0].ID ||
		sub.Answers[1].SelectedAnswerIndex != 0 {
		t.Fatalf("second answer mismatch: %+v", sub.Answers[1])
	}
}

func TestGateSuccessClearsPendingAndReleasesResources(t *testing.T) {
	f := newGateFixture(2)
	attemptKey := f.sess.AttemptID.String()
	_ = f.pending.Put(context.Background(), &model.PendingSubmission{
		AttemptID:   f.sess.AttemptID,
		ScheduledAt: f.clk.Now(),
	})

	if err := f.gate.Submit(context.Background(), f.sess, model.ReasonViolations); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if f.pending.has(attemptKey) {
		t.Fatal("pending record survived a confirmed submission")
	}
	if f.sess.Phase != PhaseSubmitted {
		t.Fatalf("phase = %v, want submitted", f.sess.Phase)
	}
	if f.effects.released != 1 {
		t.Fatalf("ReleaseCapabilities calls = %d, want 1", f.effects.released)
	}
	if got := f.effects.submittedReasons(); len(got) != 1 || got[0] != model.ReasonViolations {
		t.Fatalf("submitted reasons = %v", got)
	}
}

func TestGateManualFailureIsRetryable(t *testing.T) {
	f := newGateFixture(1)
	f.submitter.err = errors.New("network down")

	err := f.gate.Submit(context.Background(), f.sess, model.ReasonUserRequested)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.sess.Phase != PhaseActive {
		t.Fatalf("phase = %v after manual failure, want still active", f.sess.Phase)
	}

	// Retry succeeds once the network is back.
	f.submitter.mu.Lock()
	f.submitter.err = nil
	f.submitter.mu.Unlock()
	if err := f.gate.Submit(context.Background(), f.sess, model.ReasonUserRequested); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.sess.Phase != PhaseSubmitted {
		t.Fatalf("phase = %v after retry, want submitted", f.sess.Phase)
	}
}

func TestGateAutomaticFailureClosesSession(t *testing.T) {
	f := newGateFixture(1)
	f.submitter.err = errors.New("network down")

	err := f.gate.Submit(context.Background(), f.sess, model.ReasonTimeExpired)
	if err == nil {
		t.Fatal("expected error")
	}
	// An automatic submission failure must not leave the session alive:
	// otherwise a network failure bypasses the time limit.
	if f.sess.Phase != PhaseSubmitted {
		t.Fatalf("phase = %v after automatic failure, want submitted", f.sess.Phase)
	}
}

func TestGateUnlocksInputBeforeSubmitting(t *testing.T) {
	f := newGateFixture(1)
	lock := NewInputLock(f.effects)
	lock.LockPermanent()
	f.gate.lock = lock

	if err := f.gate.Submit(context.Background(), f.sess, model.ReasonViolations); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lock.IsLocked() {
		t.Fatal("input still locked through submission")
	}
}
