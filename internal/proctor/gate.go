package proctor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/rs/zerolog"
)

// ErrSubmissionInFlight is returned when a submission attempt is already
// running; callers treat it as a no-op.
var ErrSubmissionInFlight = errors.New("submission already in flight")

// Gate is the single authoritative place where an attempt is finalized.
// It guarantees at most one successful submission per session instance;
// cross-retry idempotency belongs to the server.
type Gate struct {
	inFlight atomic.Bool

	clk       clock.Clock
	log       zerolog.Logger
	submitter Submitter
	pending   PendingStore
	lock      *InputLock
	effects   Effects
}

// NewGate creates a Gate.
func NewGate(clk clock.Clock, submitter Submitter, pending PendingStore, lock *InputLock, effects Effects, log zerolog.Logger) *Gate {
	return &Gate{
		clk:       clk,
		log:       log.With().Str("component", "submission_gate").Logger(),
		submitter: submitter,
		pending:   pending,
		lock:      lock,
		effects:   effects,
	}
}

// Submit finalizes the session. Re-entrant calls while one attempt is in
// flight return ErrSubmissionInFlight. Manual submissions that fail are
// retryable; automatic ones close the session regardless, so a network
// failure cannot be exploited to outlive the violation limit or timer.
func (g *Gate) Submit(ctx context.Context, sess *Session, reason model.SubmitReason) error {
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrSubmissionInFlight
	}
	if sess.Phase == PhaseSubmitted {
		return nil
	}

	// Submission always proceeds even under lockdown.
	g.lock.ForceUnlock()
	g.effects.ClearWarning()

	sub := g.buildSubmission(sess, reason)

	if err := g.submitter.Submit(ctx, sub); err != nil {
		g.log.Error().Err(err).Str("reason", string(reason)).Msg("Submission failed")
		if reason == model.ReasonUserRequested {
			// Manual path: surface the error and allow a retry.
			g.inFlight.Store(false)
			g.effects.SubmitFailed(reason, err)
			return err
		}
		// Automatic path: the session cannot meaningfully continue.
		sess.Phase = PhaseSubmitted
		g.effects.SubmitFailed(reason, err)
		return err
	}

	// Consume the pending snapshot first so no later lifecycle hook can
	// also fire a fallback send.
	if _, _, err := g.pending.Take(ctx, sess.AttemptID.String()); err != nil {
		g.log.Warn().Err(err).Msg("Failed to clear pending submission record")
	}

	sess.Phase = PhaseSubmitted
	g.effects.ReleaseCapabilities()
	g.effects.Submitted(reason)
	g.log.Info().
		Str("attempt_id", sess.AttemptID.String()).
		Str("reason", string(reason)).
		Int("answered", len(sub.Answers)).
		Msg("Attempt submitted")
	return nil
}

func (g *Gate) buildSubmission(sess *Session, reason model.SubmitReason) *model.Submission {
	elapsed := g.clk.Now().Sub(sess.StartedAt)
	return &model.Submission{
		AttemptID:        sess.AttemptID,
		TestID:           sess.TestID,
		StudentID:        sess.StudentID,
		Answers:          sess.OrderedAnswers(),
		TimeSpentMinutes: int(elapsed.Minutes()),
		StartedAt:        sess.StartedAt,
		Reason:           reason,
	}
}
