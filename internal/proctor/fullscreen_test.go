package proctor

import (
	"testing"
	"time"
)

type guardFixture struct {
	guard     *FullscreenGuard
	effects   *effectsMock
	lock      *InputLock
	sink      *violationSinkMock
	escalated int
	base      time.Time
}

func newGuardFixture(policy Policy) *guardFixture {
	f := &guardFixture{
		effects: &effectsMock{},
		sink:    &violationSinkMock{},
		base:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.lock = NewInputLock(f.effects)
	f.guard = NewFullscreenGuard(policy, f.lock, f.effects, f.sink, func() { f.escalated++ }, nopLogger())
	return f
}

func (f *guardFixture) at(offset time.Duration) time.Time {
	return f.base.Add(offset)
}

func TestGuardFirstTwoExitsWarnWithoutEscalating(t *testing.T) {
	f := newGuardFixture(DefaultPolicy())

	f.guard.HandleExit(f.at(0))
	if got := f.guard.Violations(); got != 1 {
		t.Fatalf("violations after first exit = %d, want 1", got)
	}
	if !f.lock.IsLocked() {
		t.Fatal("input not locked after first violation")
	}
	if len(f.effects.warnings) != 1 || f.effects.warnings[0] != [2]int{1, 2} {
		t.Fatalf("warnings = %v, want [{1 2}]", f.effects.warnings)
	}

	// Recovery: ack, then fullscreen re-entry well past the abuse window.
	f.guard.HandleRecoveryAck(f.at(10 * time.Second))
	f.guard.HandleEnter(f.at(12 * time.Second))
	if f.lock.IsLocked() {
		t.Fatal("input still locked after fullscreen recovery")
	}
	if f.effects.clearWarnings != 1 {
		t.Fatalf("clearWarnings = %d, want 1", f.effects.clearWarnings)
	}

	// Second genuine exit, long after the ack.
	f.guard.HandleExit(f.at(30 * time.Second))
	if got := f.guard.Violations(); got != 2 {
		t.Fatalf("violations after second exit = %d, want 2", got)
	}
	if len(f.effects.warnings) != 2 || f.effects.warnings[1] != [2]int{2, 1} {
		t.Fatalf("warnings = %v, want second entry {2 1}", f.effects.warnings)
	}
	if f.escalated != 0 {
		t.Fatalf("escalated %d times, want 0", f.escalated)
	}
}

func TestGuardDuplicateExitSignalsAreDebounced(t *testing.T) {
	policy := DefaultPolicy()
	f := newGuardFixture(policy)

	// One physical exit fires three overlapping browser events.
	f.guard.HandleExit(f.at(0))
	f.guard.HandleExit(f.at(50 * time.Millisecond))
	f.guard.HandleExit(f.at(policy.ExitDebounce - time.Millisecond))

	if got := f.guard.Violations(); got != 1 {
		t.Fatalf("violations = %d, want 1 (duplicates must be debounced)", got)
	}
	if f.sink.count() != 1 {
		t.Fatalf("violation events recorded = %d, want 1", f.sink.count())
	}
}

func TestGuardThirdExitEscalates(t *testing.T) {
	policy := DefaultPolicy()
	f := newGuardFixture(policy)

	exit := time.Duration(0)
	for i := 0; i < 3; i++ {
		f.guard.HandleExit(f.at(exit))
		if i < 2 {
			ack := exit + time.Second
			f.guard.HandleRecoveryAck(f.at(ack))
			f.guard.HandleEnter(f.at(ack + 2*time.Second))
			// Next exit must be outside the abuse window of this ack.
			exit = ack + policy.AbuseWindow + time.Second
		}
	}

	if !f.guard.Escalated() {
		t.Fatal("guard not escalated after third exit")
	}
	if f.escalated != 1 {
		t.Fatalf("onEscalate fired %d times, want 1", f.escalated)
	}
	if f.lock.Mode() != LockPermanent {
		t.Fatalf("lock mode = %v, want LockPermanent", f.lock.Mode())
	}
	if f.effects.finalWarnings != 1 {
		t.Fatalf("finalWarnings = %d, want 1", f.effects.finalWarnings)
	}

	// Further signals are inert in the terminal state.
	f.guard.HandleExit(f.at(exit + time.Minute))
	f.guard.HandleEnter(f.at(exit + 2*time.Minute))
	if got := f.guard.Violations(); got != 3 {
		t.Fatalf("violations after terminal state = %d, want 3", got)
	}
	if f.lock.Mode() != LockPermanent {
		t.Fatal("permanent lock cleared by post-escalation enter signal")
	}
}

func TestGuardAbuseWindowEscalatesRegardlessOfCount(t *testing.T) {
	policy := DefaultPolicy()
	f := newGuardFixture(policy)

	// First violation, then the student acknowledges and re-enters, and
	// immediately exits again: gaming the acknowledge flow.
	f.guard.HandleExit(f.at(0))
	f.guard.HandleRecoveryAck(f.at(2 * time.Second))
	f.guard.HandleEnter(f.at(3 * time.Second))
	f.guard.HandleExit(f.at(3*time.Second + policy.AbuseWindow/2))

	if !f.guard.Escalated() {
		t.Fatal("abuse exit did not escalate")
	}
	if f.escalated != 1 {
		t.Fatalf("onEscalate fired %d times, want 1", f.escalated)
	}
	if got := f.guard.Violations(); got != policy.MaxViolations {
		t.Fatalf("violations = %d, want %d after abuse escalation", got, policy.MaxViolations)
	}
}

func TestGuardReentryWindowSuppressesPromiseRace(t *testing.T) {
	policy := DefaultPolicy()
	f := newGuardFixture(policy)

	f.guard.HandleExit(f.at(0))
	f.guard.HandleRecoveryAck(f.at(5 * time.Second))

	// The fullscreen request promise settling can fire a spurious exit
	// signal right after the ack; it must not count.
	f.guard.HandleExit(f.at(5*time.Second + policy.ReentryGuard/2))

	if f.guard.Escalated() {
		t.Fatal("promise-race exit escalated")
	}
	if got := f.guard.Violations(); got != 1 {
		t.Fatalf("violations = %d, want 1", got)
	}

	// The real re-entry then lands and recovers the session.
	f.guard.HandleEnter(f.at(6 * time.Second))
	if f.lock.IsLocked() {
		t.Fatal("input still locked after recovery")
	}
}

func TestGuardViolationCountIsMonotonic(t *testing.T) {
	policy := DefaultPolicy()
	f := newGuardFixture(policy)

	prev := 0
	offset := time.Duration(0)
	for i := 0; i < 6; i++ {
		f.guard.HandleExit(f.at(offset))
		if got := f.guard.Violations(); got < prev {
			t.Fatalf("violation count decreased: %d -> %d", prev, got)
		}
		prev = f.guard.Violations()
		offset += policy.ExitDebounce + time.Second
	}
	if prev != policy.MaxViolations {
		t.Fatalf("violations = %d, want capped at %d", prev, policy.MaxViolations)
	}
}
