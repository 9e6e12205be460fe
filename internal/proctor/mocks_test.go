package proctor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/rs/zerolog"
)

// effectsMock records every directive the engine emits. All counters are
// mutex-guarded because directives arrive from the machine, ticker, and
// grace-timer goroutines.
type effectsMock struct {
	mu sync.Mutex

	fullscreenRequests int
	lockCalls          []bool // permanent flag per call
	unlockCalls        int
	warnings           [][2]int // violations, remainingWarnings
	finalWarnings      int
	clearWarnings      int
	timeWarnings       []time.Duration
	degraded           []string
	permissionDenied   []error
	released           int
	submitted          []model.SubmitReason
	submitFailed       []model.SubmitReason
}

func (e *effectsMock) RequestFullscreen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreenRequests++
}

func (e *effectsMock) LockInput(permanent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockCalls = append(e.lockCalls, permanent)
}

func (e *effectsMock) UnlockInput() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unlockCalls++
}

func (e *effectsMock) ShowWarning(violations, remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, [2]int{violations, remaining})
}

func (e *effectsMock) ShowFinalWarning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalWarnings++
}

func (e *effectsMock) ClearWarning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearWarnings++
}

func (e *effectsMock) TimeWarning(remaining time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeWarnings = append(e.timeWarnings, remaining)
}

func (e *effectsMock) DegradedMode(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.degraded = append(e.degraded, reason)
}

func (e *effectsMock) PermissionDenied(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permissionDenied = append(e.permissionDenied, err)
}

func (e *effectsMock) ReleaseCapabilities() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released++
}

func (e *effectsMock) Submitted(reason model.SubmitReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, reason)
}

func (e *effectsMock) SubmitFailed(reason model.SubmitReason, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitFailed = append(e.submitFailed, reason)
}

func (e *effectsMock) warningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warnings)
}

func (e *effectsMock) submittedReasons() []model.SubmitReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.SubmitReason, len(e.submitted))
	copy(out, e.submitted)
	return out
}

// submitterMock records submissions. enterBlock, when non-nil, makes
// Submit wait until the channel is closed, to exercise interleavings.
type submitterMock struct {
	mu         sync.Mutex
	calls      []*model.Submission
	err        error
	enterBlock chan struct{}
}

func (s *submitterMock) Submit(ctx context.Context, sub *model.Submission) error {
	if s.enterBlock != nil {
		<-s.enterBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, sub)
	return nil
}

func (s *submitterMock) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *submitterMock) lastCall() *model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

// pendingMemStore is an in-memory PendingStore with the same
// destructive-read semantics as the Redis implementation.
type pendingMemStore struct {
	mu      sync.Mutex
	records map[string]*model.PendingSubmission
	puts    int
	takes   int
}

func newPendingMemStore() *pendingMemStore {
	return &pendingMemStore{records: make(map[string]*model.PendingSubmission)}
}

func (p *pendingMemStore) Put(ctx context.Context, rec *model.PendingSubmission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	p.records[rec.AttemptID.String()] = rec
	return nil
}

func (p *pendingMemStore) Take(ctx context.Context, attemptID string) (*model.PendingSubmission, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.takes++
	rec, ok := p.records[attemptID]
	if !ok {
		return nil, false, nil
	}
	delete(p.records, attemptID)
	return rec, true, nil
}

func (p *pendingMemStore) has(attemptID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.records[attemptID]
	return ok
}

type fallbackMock struct {
	mu    sync.Mutex
	sends []*model.PendingSubmission
}

func (f *fallbackMock) Send(p *model.PendingSubmission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, p)
}

func (f *fallbackMock) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type violationSinkMock struct {
	mu     sync.Mutex
	events []*model.ViolationEvent
}

func (v *violationSinkMock) Record(ev *model.ViolationEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, ev)
}

func (v *violationSinkMock) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.events)
}

type answerSinkMock struct {
	mu    sync.Mutex
	saves [][2]int
}

func (a *answerSinkMock) SaveAnswer(questionIndex, optionIndex int, q *model.QuestionForTaking) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saves = append(a.saves, [2]int{questionIndex, optionIndex})
}

// ─── Shared fixtures ───────────────────────────────────────────────────

func testQuestions(n int) []model.QuestionForTaking {
	questions := make([]model.QuestionForTaking, n)
	for i := range questions {
		opts := make([]model.Option, 4)
		for j := range opts {
			opts[j] = model.Option{ID: uuid.New(), Text: "option"}
		}
		questions[i] = model.QuestionForTaking{
			ID:       uuid.New(),
			Prompt:   "prompt",
			Options:  opts,
			Points:   1,
			OrderNum: i + 1,
		}
	}
	return questions
}

func testSession(questions int, limit time.Duration, startedAt time.Time) *Session {
	return NewSession(uuid.New(), uuid.New(), 42, testQuestions(questions), limit, limit, startedAt)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
