package proctor

import "testing"

func TestInputLockModes(t *testing.T) {
	effects := &effectsMock{}
	l := NewInputLock(effects)

	if l.IsLocked() {
		t.Fatal("new lock reports locked")
	}

	l.Lock()
	if !l.IsLocked() || l.Mode() != LockTemporary {
		t.Fatalf("mode = %v, want LockTemporary", l.Mode())
	}

	l.Unlock()
	if l.IsLocked() {
		t.Fatal("still locked after Unlock")
	}

	l.LockPermanent()
	l.Unlock()
	if l.Mode() != LockPermanent {
		t.Fatal("Unlock cleared a permanent lock")
	}

	// Only the submission path may clear a permanent lock.
	l.ForceUnlock()
	if l.IsLocked() {
		t.Fatal("still locked after ForceUnlock")
	}

	if len(effects.lockCalls) != 2 || effects.lockCalls[0] != false || effects.lockCalls[1] != true {
		t.Fatalf("lock directives = %v, want [false true]", effects.lockCalls)
	}
	if effects.unlockCalls != 2 {
		t.Fatalf("unlock directives = %d, want 2", effects.unlockCalls)
	}
}

func TestInputLockCarveOuts(t *testing.T) {
	l := NewInputLock(&effectsMock{})
	l.Lock()

	cases := []struct {
		name string
		ev   InputEvent
		want bool
	}{
		{"fullscreen toggle key passes", InputEvent{Kind: "key", Key: FullscreenToggleKey}, true},
		{"other keys suppressed", InputEvent{Kind: "key", Key: "Tab"}, false},
		{"pointer inside warning dialog passes", InputEvent{Kind: "pointer", InDialog: true}, true},
		{"pointer outside dialog suppressed", InputEvent{Kind: "pointer"}, false},
	}
	for _, tc := range cases {
		if got := l.Allows(tc.ev); got != tc.want {
			t.Errorf("%s: Allows = %v, want %v", tc.name, got, tc.want)
		}
	}

	l.ForceUnlock()
	if !l.Allows(InputEvent{Kind: "key", Key: "Tab"}) {
		t.Fatal("unlocked controller suppressed input")
	}
}

func TestLockWhilePermanentIsNoOp(t *testing.T) {
	effects := &effectsMock{}
	l := NewInputLock(effects)

	l.LockPermanent()
	l.Lock()
	if l.Mode() != LockPermanent {
		t.Fatalf("mode = %v, want LockPermanent preserved", l.Mode())
	}
	if len(effects.lockCalls) != 1 {
		t.Fatalf("lock directives = %d, want 1", len(effects.lockCalls))
	}
}
