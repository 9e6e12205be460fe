package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/quizport/quizport-backend/internal/model"
)

type machineFixture struct {
	m         *Machine
	sess      *Session
	clk       *clock.Mock
	effects   *effectsMock
	submitter *submitterMock
	pending   *pendingMemStore
	fallback  *fallbackMock
	sink      *violationSinkMock
	answers   *answerSinkMock
}

func newMachineFixture(t *testing.T, questions int, limit time.Duration) *machineFixture {
	t.Helper()
	f := &machineFixture{
		clk:       clock.NewMock(),
		effects:   &effectsMock{},
		submitter: &submitterMock{},
		pending:   newPendingMemStore(),
		fallback:  &fallbackMock{},
		sink:      &violationSinkMock{},
		answers:   &answerSinkMock{},
	}
	f.clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	f.sess = testSession(questions, limit, f.clk.Now())
	f.m = NewMachine(f.sess, DefaultPolicy(), Deps{
		Clock:     f.clk,
		Log:       nopLogger(),
		Effects:   f.effects,
		Submitter: f.submitter,
		Pending:   f.pending,
		Fallback:  f.fallback,
		Violation: f.sink,
		Answers:   f.answers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(f.m.Dispose)
	f.m.Start(ctx)
	return f
}

// begin walks the machine into the active phase: full capability grant
// plus a successful fullscreen entry.
func (f *machineFixture) begin(t *testing.T) {
	t.Helper()
	if err := f.m.Begin(model.CapabilityReport{
		Cookies: true, StoragePersisted: true, WakeLock: true, OrientationLock: true,
	}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.signal(SignalFullscreenEnter, 0)
	if got := f.m.Phase(); got != PhaseActive {
		t.Fatalf("phase = %v after begin, want active", got)
	}
}

// signal injects a lifecycle signal at an offset from the mock now.
func (f *machineFixture) signal(kind SignalKind, offset time.Duration) {
	f.m.HandleSignal(context.Background(), Signal{Kind: kind, At: f.clk.Now().Add(offset)})
}

// advance moves the mock clock forward one second at a time, waiting for
// each tick to be absorbed before the next.
func (f *machineFixture) advance(t *testing.T, seconds int) {
	t.Helper()
	for i := 0; i < seconds; i++ {
		before := f.m.Remaining()
		f.clk.Add(time.Second)
		waitFor(t, func() bool {
			return f.m.Remaining() < before || f.m.Phase() == PhaseSubmitted
		})
	}
}

func TestMachineTimeExpiryForcesSubmission(t *testing.T) {
	f := newMachineFixture(t, 3, 60*time.Second)
	f.begin(t)
	f.m.SaveAnswer(0, 1)

	f.advance(t, 60)

	waitFor(t, func() bool { return f.m.Phase() == PhaseSubmitted })
	if got := f.effects.submittedReasons(); len(got) != 1 || got[0] != model.ReasonTimeExpired {
		t.Fatalf("submitted reasons = %v, want [time_expired]", got)
	}
	if f.submitter.callCount() != 1 {
		t.Fatalf("network submissions = %d, want 1", f.submitter.callCount())
	}
	sub := f.submitter.lastCall()
	if sub.Reason != model.ReasonTimeExpired {
		t.Fatalf("reason = %v, want time_expired", sub.Reason)
	}
	if len(sub.Answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(sub.Answers))
	}

	// Further ticks after the terminal phase change nothing.
	f.clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if f.submitter.callCount() != 1 {
		t.Fatalf("submission fired again after expiry: %d calls", f.submitter.callCount())
	}
}

func TestMachineViolationRecoveryCycle(t *testing.T) {
	f := newMachineFixture(t, 3, time.Hour)
	f.begin(t)

	// First exit: warning with two remaining, input locked, no submit.
	f.signal(SignalFullscreenExit, 10*time.Second)
	if !f.m.InputLocked() {
		t.Fatal("input not locked after first violation")
	}
	if got := f.effects.warnings; len(got) != 1 || got[0] != [2]int{1, 2} {
		t.Fatalf("warnings = %v, want [{1 2}]", got)
	}

	// Locked input refuses answer saves.
	f.m.SaveAnswer(0, 0)
	if len(f.sess.Answers) != 0 {
		t.Fatal("answer accepted while input locked")
	}

	// Ack and re-enter: unlocked, session continues.
	f.signal(SignalRecoveryAck, 12*time.Second)
	f.signal(SignalFullscreenEnter, 14*time.Second)
	if f.m.InputLocked() {
		t.Fatal("input still locked after recovery")
	}
	f.m.SaveAnswer(0, 0)
	if len(f.sess.Answers) != 1 {
		t.Fatal("answer rejected after recovery")
	}

	// Second exit, outside the abuse window: warning with one remaining.
	f.signal(SignalFullscreenExit, 30*time.Second)
	if got := f.effects.warnings; len(got) != 2 || got[1] != [2]int{2, 1} {
		t.Fatalf("warnings = %v, want second {2 1}", got)
	}
	if f.submitter.callCount() != 0 {
		t.Fatal("violation warning triggered a submission")
	}
	if f.m.Phase() != PhaseActive {
		t.Fatalf("phase = %v, want still active", f.m.Phase())
	}
}

func TestMachineThirdViolationEscalatesAndSubmits(t *testing.T) {
	f := newMachineFixture(t, 2, time.Hour)
	f.begin(t)
	policy := DefaultPolicy()

	exit := 10 * time.Second
	for i := 0; i < 3; i++ {
		f.signal(SignalFullscreenExit, exit)
		if i < 2 {
			ack := exit + time.Second
			f.signal(SignalRecoveryAck, ack)
			f.signal(SignalFullscreenEnter, ack+2*time.Second)
			exit = ack + policy.AbuseWindow + time.Second
		}
	}

	// Terminal violation: permanent lock, snapshot persisted, submission
	// scheduled but not yet fired.
	if !f.m.InputLocked() {
		t.Fatal("input not locked after terminal violation")
	}
	if !f.pending.has(f.sess.AttemptID.String()) {
		t.Fatal("pending snapshot missing during grace window")
	}
	if f.submitter.callCount() != 0 {
		t.Fatal("submission fired before the grace delay")
	}
	if f.effects.finalWarnings != 1 {
		t.Fatalf("finalWarnings = %d, want 1", f.effects.finalWarnings)
	}

	// Grace delay elapses with no further user action.
	f.clk.Add(policy.GraceDelay)
	waitFor(t, func() bool { return f.m.Phase() == PhaseSubmitted })

	if got := f.effects.submittedReasons(); len(got) != 1 || got[0] != model.ReasonViolations {
		t.Fatalf("submitted reasons = %v, want [fullscreen_violations]", got)
	}
	if f.submitter.callCount() != 1 {
		t.Fatalf("network submissions = %d, want 1", f.submitter.callCount())
	}
	if f.pending.has(f.sess.AttemptID.String()) {
		t.Fatal("pending record survived the forced submission")
	}
}

func TestMachineAbuseEscalatesImmediately(t *testing.T) {
	f := newMachineFixture(t, 1, time.Hour)
	f.begin(t)
	policy := DefaultPolicy()

	f.signal(SignalFullscreenExit, 10*time.Second)
	f.signal(SignalRecoveryAck, 12*time.Second)
	f.signal(SignalFullscreenEnter, 13*time.Second)
	// Exiting right after the acknowledged recovery is gaming the flow.
	f.signal(SignalFullscreenExit, 13*time.Second+policy.AbuseWindow/2)

	if got := f.m.Violations(); got != policy.MaxViolations {
		t.Fatalf("violations = %d, want escalated to %d", got, policy.MaxViolations)
	}
	if !f.pending.has(f.sess.AttemptID.String()) {
		t.Fatal("pending snapshot missing after abuse escalation")
	}

	f.clk.Add(policy.GraceDelay)
	waitFor(t, func() bool { return f.m.Phase() == PhaseSubmitted })
	if got := f.effects.submittedReasons(); len(got) != 1 || got[0] != model.ReasonViolations {
		t.Fatalf("submitted reasons = %v", got)
	}
}

func TestMachineTabCloseDuringGraceWindowFiresFallback(t *testing.T) {
	f := newMachineFixture(t, 2, time.Hour)
	f.begin(t)
	policy := DefaultPolicy()

	exit := 10 * time.Second
	for i := 0; i < 3; i++ {
		f.signal(SignalFullscreenExit, exit)
		if i < 2 {
			ack := exit + time.Second
			f.signal(SignalRecoveryAck, ack)
			f.signal(SignalFullscreenEnter, ack+2*time.Second)
			exit = ack + policy.AbuseWindow + time.Second
		}
	}
	if !f.pending.has(f.sess.AttemptID.String()) {
		t.Fatal("pending snapshot missing")
	}

	// The tab closes before the grace delay elapses.
	f.signal(SignalPageUnload, exit+time.Second)

	if f.fallback.sendCount() != 1 {
		t.Fatalf("fallback sends = %d, want 1", f.fallback.sendCount())
	}
	if f.pending.has(f.sess.AttemptID.String()) {
		t.Fatal("pending record not consumed by fallback send")
	}

	// The still-scheduled forced submission must find nothing to do.
	f.clk.Add(policy.GraceDelay)
	time.Sleep(10 * time.Millisecond)
	if f.submitter.callCount() != 0 {
		t.Fatalf("normal submission fired after fallback: %d calls", f.submitter.callCount())
	}
	if f.fallback.sendCount() != 1 {
		t.Fatalf("fallback fired twice: %d sends", f.fallback.sendCount())
	}
}

func TestMachineDepartureWithoutPendingIsInert(t *testing.T) {
	f := newMachineFixture(t, 1, time.Hour)
	f.begin(t)

	f.m.Depart(context.Background())
	if f.fallback.sendCount() != 0 {
		t.Fatal("fallback fired with no pending record")
	}
	if f.m.Phase() != PhaseActive {
		t.Fatalf("phase = %v, want active after inert departure", f.m.Phase())
	}
}

func TestMachineStalePendingIsDropped(t *testing.T) {
	f := newMachineFixture(t, 1, time.Hour)
	f.begin(t)
	policy := DefaultPolicy()

	_ = f.pending.Put(context.Background(), &model.PendingSubmission{
		AttemptID:   f.sess.AttemptID,
		ScheduledAt: f.clk.Now().Add(-policy.PendingRecency - time.Minute),
	})

	f.m.Depart(context.Background())
	if f.fallback.sendCount() != 0 {
		t.Fatal("stale pending record triggered a fallback send")
	}
}

func TestMachineFullscreenDenialDegradesIntoActive(t *testing.T) {
	f := newMachineFixture(t, 1, time.Hour)
	if err := f.m.Begin(model.CapabilityReport{Cookies: true}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.signal(SignalFullscreenDenied, 0)

	if got := f.m.Phase(); got != PhaseActive {
		t.Fatalf("phase = %v, want active despite fullscreen denial", got)
	}
	if len(f.effects.degraded) != 1 {
		t.Fatalf("degraded notices = %v, want one", f.effects.degraded)
	}
}

func TestMachineCookieFailureAbortsStart(t *testing.T) {
	f := newMachineFixture(t, 1, time.Hour)

	err := f.m.Begin(model.CapabilityReport{Cookies: false, WakeLock: true})
	if err == nil {
		t.Fatal("expected cookie probe failure")
	}
	if len(f.effects.permissionDenied) != 1 {
		t.Fatalf("permissionDenied notices = %d, want 1", len(f.effects.permissionDenied))
	}
	if got := f.m.Phase(); got == PhaseActive {
		t.Fatal("session became active without cookie support")
	}
}

func TestMachineUserSubmitWhileActive(t *testing.T) {
	f := newMachineFixture(t, 3, time.Hour)
	f.begin(t)
	f.m.SaveAnswer(0, 2)
	f.m.SaveAnswer(2, 0)

	if err := f.m.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if f.m.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %v, want submitted", f.m.Phase())
	}
	sub := f.submitter.lastCall()
	if sub == nil || sub.Reason != model.ReasonUserRequested {
		t.Fatalf("submission = %+v, want user_requested", sub)
	}
	if len(sub.Answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(sub.Answers))
	}
	if len(f.answers.saves) != 2 {
		t.Fatalf("answer sink saves = %d, want 2", len(f.answers.saves))
	}
}
