package proctor

import (
	"time"

	"github.com/quizport/quizport-backend/internal/model"
	"github.com/rs/zerolog"
)

// guardState is the internal state of the FullscreenGuard. The source of
// truth for debounce, re-entry protection, and abuse detection is this
// one state machine plus two timestamps, not independent timers.
type guardState int

const (
	guardIdle guardState = iota
	guardWarning
	guardRecovering
	guardEscalated
)

func (s guardState) String() string {
	switch s {
	case guardIdle:
		return "idle"
	case guardWarning:
		return "warning-shown"
	case guardRecovering:
		return "recovering"
	case guardEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// FullscreenGuard maintains the invariant that the document stays in
// fullscreen while the attempt is active, and reacts to violations of it.
// All methods must be called under the owning Machine's lock.
type FullscreenGuard struct {
	policy Policy
	log    zerolog.Logger

	lock *InputLock

	state      guardState
	violations int
	seq        int
	lastExit   time.Time
	lastAck    time.Time

	effects Effects
	sink    ViolationSink

	// onEscalate persists the pending snapshot and schedules the forced
	// submission; owned by the Machine.
	onEscalate func()
}

// NewFullscreenGuard creates a guard in the idle state.
func NewFullscreenGuard(policy Policy, lock *InputLock, effects Effects, sink ViolationSink, onEscalate func(), log zerolog.Logger) *FullscreenGuard {
	return &FullscreenGuard{
		policy:     policy,
		log:        log.With().Str("component", "fullscreen_guard").Logger(),
		lock:       lock,
		effects:    effects,
		sink:       sink,
		onEscalate: onEscalate,
	}
}

// Violations returns the monotonic violation count.
func (g *FullscreenGuard) Violations() int { return g.violations }

// Escalated reports whether the guard reached the terminal state.
func (g *FullscreenGuard) Escalated() bool { return g.state == guardEscalated }

// HandleExit classifies one fullscreen-exit signal.
func (g *FullscreenGuard) HandleExit(at time.Time) {
	if g.state == guardEscalated {
		return
	}

	// Protection window: between a recovery acknowledgement and the
	// fullscreen request settling, exit signals are races, not actions.
	if g.state == guardRecovering && !g.lastAck.IsZero() && at.Sub(g.lastAck) < g.policy.ReentryGuard {
		g.log.Debug().Msg("Exit signal inside re-entry guard window, ignored")
		return
	}

	// Duplicate suppression: several browser events fire for one exit.
	if !g.lastExit.IsZero() && at.Sub(g.lastExit) < g.policy.ExitDebounce {
		g.log.Debug().Msg("Duplicate exit signal debounced")
		return
	}
	g.lastExit = at

	// Abuse: acknowledging the warning and immediately exiting again is
	// an attempt to game the acknowledge flow. Escalate regardless of
	// the running count.
	if !g.lastAck.IsZero() && at.Sub(g.lastAck) < g.policy.AbuseWindow {
		g.log.Warn().Int("violations", g.violations).Msg("Exit within abuse window after recovery ack, escalating")
		g.escalate(at, false)
		return
	}

	g.violations++
	g.record(at)

	if g.violations >= g.policy.MaxViolations {
		g.escalate(at, true)
		return
	}

	g.state = guardWarning
	g.lock.Lock()
	remaining := g.policy.MaxViolations - g.violations
	g.log.Warn().Int("violations", g.violations).Int("remaining_warnings", remaining).Msg("Fullscreen violation")
	g.effects.ShowWarning(g.violations, remaining)
}

// HandleRecoveryAck records the student's warning acknowledgement. The
// guard does not re-enter fullscreen itself: browsers reject fullscreen
// requests outside a user gesture, so the client performs the request
// and reports the result as an enter signal.
func (g *FullscreenGuard) HandleRecoveryAck(at time.Time) {
	if g.state != guardWarning {
		return
	}
	g.state = guardRecovering
	g.lastAck = at
}

// HandleEnter processes a successful (re-)entry into fullscreen: clear
// the warning, unlock input, drop the protection window.
func (g *FullscreenGuard) HandleEnter(at time.Time) {
	if g.state != guardWarning && g.state != guardRecovering {
		return
	}
	g.state = guardIdle
	g.lock.Unlock()
	g.effects.ClearWarning()
	g.log.Info().Int("violations", g.violations).Msg("Fullscreen recovered")
}

// escalate enters the terminal state. counted is true when the caller
// already recorded the triggering exit.
func (g *FullscreenGuard) escalate(at time.Time, counted bool) {
	if g.violations < g.policy.MaxViolations {
		g.violations = g.policy.MaxViolations
	}
	if !counted {
		g.record(at)
	}
	g.state = guardEscalated

	g.lock.LockPermanent()
	g.effects.ShowFinalWarning()
	g.log.Warn().Int("violations", g.violations).Msg("Violation limit reached, forcing submission")

	if g.onEscalate != nil {
		g.onEscalate()
	}
}

func (g *FullscreenGuard) record(at time.Time) {
	g.seq++
	if g.sink == nil {
		return
	}
	g.sink.Record(&model.ViolationEvent{
		At:           at,
		Sequence:     g.seq,
		WarningLevel: g.violations,
	})
}
