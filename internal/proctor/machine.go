package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/rs/zerolog"
)

// Deps are the ports a Machine needs. Clock defaults to the wall clock
// when nil so only tests need to care about it.
type Deps struct {
	Clock     clock.Clock
	Log       zerolog.Logger
	Effects   Effects
	Submitter Submitter
	Pending   PendingStore
	Fallback  FallbackSender
	Violation ViolationSink
	Answers   AnswerSink
}

// Machine orchestrates one test attempt through the ordered phases
// loading → instructions → permission-negotiation → fullscreen-request →
// active → submitted. One instance exists per attempt with an explicit
// Start/Dispose lifecycle; there is no package-level mutable state, so
// nothing leaks across sessions and teardown is deterministic.
//
// All externally scheduled callbacks (the ticker, browser signals, the
// grace-delay timer) are serialized through one mutex, which is the
// single-threaded cooperative model the engine is specified against.
type Machine struct {
	mu sync.Mutex

	policy Policy
	clk    clock.Clock
	log    zerolog.Logger

	sess       *Session
	effects    Effects
	negotiator *Negotiator
	lock       *InputLock
	guard      *FullscreenGuard
	countdown  *Countdown
	gate       *Gate
	pending    PendingStore
	fallback   FallbackSender
	answers    AnswerSink

	perms PermissionOutcome

	graceTimer *clock.Timer
	done       chan struct{}
	stopOnce   sync.Once
}

// NewMachine wires a Machine for one attempt. The session must carry the
// authoritative remaining time (computed server-side from the attempt
// start, so a reload cannot reset the clock).
func NewMachine(sess *Session, policy Policy, deps Deps) *Machine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := deps.Log.With().
		Str("component", "session_machine").
		Str("attempt_id", sess.AttemptID.String()).
		Int("student_id", sess.StudentID).
		Logger()

	m := &Machine{
		policy:     policy,
		clk:        clk,
		log:        log,
		sess:       sess,
		effects:    deps.Effects,
		negotiator: NewNegotiator(log),
		pending:    deps.Pending,
		fallback:   deps.Fallback,
		answers:    deps.Answers,
		done:       make(chan struct{}),
	}

	m.lock = NewInputLock(deps.Effects)
	m.guard = NewFullscreenGuard(policy, m.lock, deps.Effects, deps.Violation, m.onEscalate, log)
	m.gate = NewGate(clk, deps.Submitter, deps.Pending, m.lock, deps.Effects, log)
	m.countdown = NewCountdown(sess.Remaining, policy.WarnThresholds,
		func(remaining time.Duration) { deps.Effects.TimeWarning(remaining) },
		m.onExpire,
	)
	return m
}

// Start launches the tick loop. The machine stays in the instructions
// phase until Begin arrives from the client.
func (m *Machine) Start(ctx context.Context) {
	// The ticker is created here, not in the goroutine, so callers have
	// a happens-before edge on its registration (the mock clock in tests
	// relies on it; the wall clock does not care).
	ticker := m.clk.Ticker(time.Second)
	go m.runTicker(ctx, ticker)
}

// Dispose tears the machine down: the ticker stops and any scheduled
// forced submission is cancelled. Safe to call more than once.
func (m *Machine) Dispose() {
	m.mu.Lock()
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.done) })
}

// Phase returns the current session phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Phase
}

// Violations returns the guard's violation count.
func (m *Machine) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard.Violations()
}

// Remaining returns the countdown's remaining time.
func (m *Machine) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countdown.Remaining()
}

// InputLocked reports whether input is currently suspended.
func (m *Machine) InputLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock.IsLocked()
}

// Permissions returns the negotiated capability set.
func (m *Machine) Permissions() PermissionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perms
}

// Begin runs permission negotiation from the client's capability report
// and, on success, cues the fullscreen request. A cookie probe failure
// is fatal; every other missing capability degrades the session.
func (m *Machine) Begin(report model.CapabilityReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Phase != PhaseInstructions {
		return nil
	}
	m.sess.Phase = PhasePermissions

	out, err := m.negotiator.Acquire(report)
	if err != nil {
		m.effects.PermissionDenied(err)
		return err
	}
	m.perms = out

	m.sess.Phase = PhaseFullscreenRequest
	m.effects.RequestFullscreen()
	return nil
}

// HandleSignal dispatches one client lifecycle signal. Unknown or
// out-of-phase signals are ignored rather than failed: the stream of
// browser events is inherently noisy.
func (m *Machine) HandleSignal(ctx context.Context, sig Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := sig.At
	if at.IsZero() {
		at = m.clk.Now()
	}

	switch sig.Kind {
	case SignalFullscreenEnter:
		if m.sess.Phase == PhaseFullscreenRequest {
			m.activate()
			return
		}
		if m.sess.Phase == PhaseActive {
			m.guard.HandleEnter(at)
		}
	case SignalFullscreenDenied:
		if m.sess.Phase == PhaseFullscreenRequest {
			m.effects.DegradedMode("fullscreen_unavailable")
			m.log.Warn().Msg("Fullscreen unavailable, continuing degraded")
			m.activate()
		}
	case SignalFullscreenExit:
		if m.sess.Phase == PhaseActive {
			m.guard.HandleExit(at)
		}
	case SignalRecoveryAck:
		if m.sess.Phase == PhaseActive {
			m.guard.HandleRecoveryAck(at)
		}
	case SignalPageHidden, SignalPageUnload:
		m.departLocked(ctx)
	}
}

// SaveAnswer records a selected option for a question index. Saves are
// refused while input is locked; the lock directive on the client is
// advisory, the server state is authoritative.
func (m *Machine) SaveAnswer(questionIndex, optionIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Phase != PhaseActive || m.lock.IsLocked() {
		return
	}
	if questionIndex < 0 || questionIndex >= len(m.sess.Questions) {
		return
	}
	q := &m.sess.Questions[questionIndex]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return
	}

	m.sess.Answers[questionIndex] = optionIndex
	m.sess.CurrentQuestion = questionIndex
	if m.answers != nil {
		m.answers.SaveAnswer(questionIndex, optionIndex, q)
	}
}

// RequestSubmit is the student's explicit submission action.
func (m *Machine) RequestSubmit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Phase != PhaseActive {
		return nil
	}
	return m.submitLocked(ctx, model.ReasonUserRequested)
}

// Depart handles the client going away (page hidden, unload, or the
// stream closing): if a recent pending snapshot exists it is consumed
// and handed to the fire-and-forget sender.
func (m *Machine) Depart(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departLocked(ctx)
}

// ─── Internal (mu held) ────────────────────────────────────────────────

func (m *Machine) activate() {
	m.sess.Phase = PhaseActive
	m.log.Info().
		Dur("remaining", m.countdown.Remaining()).
		Msg("Attempt active")
}

func (m *Machine) runTicker(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.sess.Phase == PhaseActive {
				m.countdown.Tick()
			}
			m.mu.Unlock()
		}
	}
}

// onExpire runs inside the ticker's critical section.
func (m *Machine) onExpire() {
	_ = m.submitLocked(context.Background(), model.ReasonTimeExpired)
}

// onEscalate runs inside guard.HandleExit, under mu. It snapshots the
// pending submission immediately (a tab close during the grace window
// must still be recoverable) and schedules the forced submission.
func (m *Machine) onEscalate() {
	snapshot := &model.PendingSubmission{
		AttemptID:        m.sess.AttemptID,
		TestID:           m.sess.TestID,
		StudentID:        m.sess.StudentID,
		Answers:          m.sess.OrderedAnswers(),
		RemainingSeconds: int(m.countdown.Remaining().Seconds()),
		Reason:           model.ReasonViolations,
		ScheduledAt:      m.clk.Now(),
	}
	if err := m.pending.Put(context.Background(), snapshot); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist pending submission snapshot")
	}

	if m.graceTimer != nil {
		m.graceTimer.Stop()
	}
	m.graceTimer = m.clk.AfterFunc(m.policy.GraceDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = m.submitLocked(context.Background(), model.ReasonViolations)
	})
}

func (m *Machine) submitLocked(ctx context.Context, reason model.SubmitReason) error {
	err := m.gate.Submit(ctx, m.sess, reason)
	if err == ErrSubmissionInFlight {
		return nil
	}
	if m.sess.Phase == PhaseSubmitted && m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	return err
}

func (m *Machine) departLocked(ctx context.Context) {
	if m.sess.Phase == PhaseSubmitted {
		return
	}
	p, ok, err := m.pending.Take(ctx, m.sess.AttemptID.String())
	if err != nil {
		m.log.Error().Err(err).Msg("Pending lookup failed on departure")
		return
	}
	if !ok {
		return
	}
	if m.clk.Now().Sub(p.ScheduledAt) > m.policy.PendingRecency {
		m.log.Warn().Msg("Stale pending submission dropped on departure")
		return
	}
	m.log.Info().Msg("Client departed with pending submission, firing fallback send")
	m.fallback.Send(p)
	m.sess.Phase = PhaseSubmitted
}
