package proctor

// LockMode describes the current input suspension level.
type LockMode int

const (
	LockNone LockMode = iota
	LockTemporary
	LockPermanent
)

// FullscreenToggleKey is the one key that must always pass through a
// lock: many browsers only allow fullscreen re-entry via this key when
// no click target is available.
const FullscreenToggleKey = "F11"

// BaselineBlockedShortcuts are suppressed for the whole active phase
// regardless of lock state, as a baseline anti-cheating measure. The
// list is shipped to the client in the session start directive.
var BaselineBlockedShortcuts = []string{
	"Ctrl+C", "Ctrl+V", "Ctrl+X",
	"Ctrl+Shift+I", "Ctrl+Shift+J", "Ctrl+U", "F12",
	"Alt+Tab", "Ctrl+Tab", "ContextMenu",
}

// InputEvent is a client input event checked against the lock carve-outs.
type InputEvent struct {
	Kind     string // "key" or "pointer"
	Key      string // key identifier for Kind == "key"
	InDialog bool   // pointer target lies within the warning dialog
}

// InputLock suspends all keyboard and pointer input except the designated
// recovery carve-outs. A permanent lock survives Unlock and can only be
// cleared by the submission path via ForceUnlock.
type InputLock struct {
	mode    LockMode
	effects Effects
}

// NewInputLock creates an unlocked controller.
func NewInputLock(effects Effects) *InputLock {
	return &InputLock{effects: effects}
}

// Lock suspends input until fullscreen recovery. No-op when already
// permanently locked.
func (l *InputLock) Lock() {
	if l.mode == LockPermanent {
		return
	}
	l.mode = LockTemporary
	l.effects.LockInput(false)
}

// LockPermanent suspends input for the remainder of the session.
func (l *InputLock) LockPermanent() {
	l.mode = LockPermanent
	l.effects.LockInput(true)
}

// Unlock clears a temporary lock. Permanent locks are not cleared here.
func (l *InputLock) Unlock() {
	if l.mode != LockTemporary {
		return
	}
	l.mode = LockNone
	l.effects.UnlockInput()
}

// ForceUnlock clears any lock. Submission is always allowed to proceed
// even under lockdown, so the gate uses this before finalizing.
func (l *InputLock) ForceUnlock() {
	if l.mode == LockNone {
		return
	}
	l.mode = LockNone
	l.effects.UnlockInput()
}

// IsLocked reports whether input is currently suspended.
func (l *InputLock) IsLocked() bool {
	return l.mode != LockNone
}

// Mode returns the current lock mode.
func (l *InputLock) Mode() LockMode {
	return l.mode
}

// Allows reports whether an input event may pass through the lock:
// the fullscreen toggle key always does, and pointer events do when the
// target lies within the active warning dialog.
func (l *InputLock) Allows(ev InputEvent) bool {
	if l.mode == LockNone {
		return true
	}
	if ev.Kind == "key" && ev.Key == FullscreenToggleKey {
		return true
	}
	if ev.Kind == "pointer" && ev.InDialog {
		return true
	}
	return false
}
