package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/middleware"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/proctor"
	"github.com/quizport/quizport-backend/internal/service"
	ws "github.com/quizport/quizport-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty origins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler owns the proctor stream: one WebSocket, one session machine.
type WSHandler struct {
	attemptService *service.AttemptService
	testService    *service.TestService
	cfg            *config.Config
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	testService *service.TestService,
	cfg *config.Config,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		testService:    testService,
		cfg:            cfg,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// policyFromConfig maps the env-tunable thresholds onto the machine's policy.
func policyFromConfig(cfg *config.Config) proctor.Policy {
	p := proctor.DefaultPolicy()
	p.MaxViolations = cfg.MaxViolations
	p.GraceDelay = cfg.GraceDelay
	p.ExitDebounce = cfg.ExitDebounce
	p.ReentryGuard = cfg.ReentryGuard
	p.AbuseWindow = cfg.AbuseWindow
	p.PendingRecency = cfg.PendingRecency
	return p
}

// ProctorStream godoc
// WS /ws/v1/portal/tests/:test_id/stream
// Upgrades to WebSocket and runs the session machine for one attempt.
// The client forwards raw browser signals; every proctoring decision is
// made here and pushed back as directives.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test ID"})
		return
	}

	studentID := claims.StudentID
	ctx := c.Request.Context()

	attempt, err := h.attemptService.VerifyActiveAttempt(ctx, testID, studentID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no active attempt for this test"})
		return
	}

	payload, err := h.testService.GetTestPayload(ctx, testID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "test payload unavailable"})
		return
	}

	// Authoritative remaining time: computed from the stored attempt
	// start, never from anything the client says.
	remaining, err := h.attemptService.RemainingTime(ctx, testID, studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attempt.ID.String()).
		Logger()

	sess := proctor.NewSession(
		attempt.ID, testID, studentID,
		payload.Questions,
		time.Duration(payload.DurationMinutes)*time.Minute,
		remaining,
		attempt.StartedAt,
	)

	effects := newWSEffects(conn, wsLog)
	machine := proctor.NewMachine(sess, policyFromConfig(h.cfg), proctor.Deps{
		Log:       h.log,
		Effects:   effects,
		Submitter: h.attemptService,
		Pending:   h.attemptService.Pending(),
		Fallback:  &fallbackSender{svc: h.attemptService, log: wsLog},
		Violation: &violationSink{svc: h.attemptService, attempt: attempt},
		Answers:   &answerSink{svc: h.attemptService, attempt: attempt, log: wsLog},
	})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	machine.Start(streamCtx)
	defer machine.Dispose()

	// A vanished socket is a departure: the fallback send must fire if a
	// pending snapshot exists, even when no unload signal made it through.
	defer machine.Depart(context.Background())

	wsLog.Info().Dur("remaining", remaining).Msg("Proctor stream connected")
	effects.sendState(machine, sess)

	h.readLoop(streamCtx, conn, machine, effects, wsLog)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, machine *proctor.Machine, effects *wsEffects, wsLog zerolog.Logger) {
	for {
		_, raw, err := readMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		envelope, err := ws.PeekAction(raw)
		if err != nil {
			effects.writeError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionBegin:
			var req ws.BeginRequest
			if err := ws.DecodeInto(raw, &req); err != nil {
				effects.writeError("malformed begin payload")
				continue
			}
			_ = machine.Begin(model.CapabilityReport{
				Cookies:          req.Cookies,
				StoragePersisted: req.StoragePersisted,
				WakeLock:         req.WakeLock,
				OrientationLock:  req.OrientationLock,
			})

		case ws.ActionSignal:
			var req ws.SignalRequest
			if err := ws.DecodeInto(raw, &req); err != nil {
				effects.writeError("malformed signal payload")
				continue
			}
			machine.HandleSignal(ctx, proctor.Signal{
				Kind: proctor.SignalKind(req.Kind),
				At:   signalTime(req.AtMs),
			})

		case ws.ActionAnswer:
			var req ws.AnswerRequest
			if err := ws.DecodeInto(raw, &req); err != nil {
				effects.writeError("malformed answer payload")
				continue
			}
			machine.SaveAnswer(req.QuestionIndex, req.OptionIndex)

		case ws.ActionSubmit:
			if err := machine.RequestSubmit(ctx); err != nil {
				wsLog.Warn().Err(err).Msg("Submit over stream failed")
			}

		case ws.ActionPing:
			effects.writePong()

		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			effects.writeError("unknown action: " + string(envelope.Action))
		}

		if machine.Phase() == proctor.PhaseSubmitted {
			wsLog.Info().Msg("Attempt submitted, closing stream")
			return
		}
	}
}

func readMessage(conn *websocket.Conn) (int, []byte, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	return conn.ReadMessage()
}

// signalTime converts the client's event timestamp. A zero or absurd
// value falls back to server receipt time inside the machine.
func signalTime(atMs int64) time.Time {
	if atMs <= 0 {
		return time.Time{}
	}
	at := time.UnixMilli(atMs)
	if d := time.Since(at); d < -time.Minute || d > time.Hour {
		return time.Time{}
	}
	return at
}

// ─── Effects: machine directives → socket messages ─────────────────────

// wsEffects translates machine directives into stream events. A single
// mutex serializes writes; the machine and its timer goroutines may fire
// directives concurrently with the read loop's pong replies.
type wsEffects struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  zerolog.Logger
}

func newWSEffects(conn *websocket.Conn, log zerolog.Logger) *wsEffects {
	return &wsEffects{conn: conn, log: log}
}

func (e *wsEffects) write(v interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ws.WriteTyped(e.conn, v); err != nil {
		e.log.Debug().Err(err).Msg("Directive write failed")
	}
}

func (e *wsEffects) sendState(machine *proctor.Machine, sess *proctor.Session) {
	answers := make(map[string]int, len(sess.Answers))
	for qIdx, optIdx := range sess.Answers {
		if qIdx >= 0 && qIdx < len(sess.Questions) {
			answers[sess.Questions[qIdx].ID.String()] = optIdx
		}
	}
	e.write(ws.StateResponse{
		Event:            ws.EventState,
		Phase:            string(machine.Phase()),
		RemainingSeconds: machine.Remaining().Seconds(),
		Violations:       machine.Violations(),
		InputLocked:      machine.InputLocked(),
		Answers:          answers,
	})
}

func (e *wsEffects) writeError(msg string) {
	e.write(ws.ErrorResponse{Event: ws.EventError, Error: msg})
}

func (e *wsEffects) writePong() {
	e.write(ws.PongResponse{Event: ws.EventPong})
}

func (e *wsEffects) RequestFullscreen() {
	e.write(ws.PlainEvent{Event: ws.EventRequestFullscreen})
}

func (e *wsEffects) LockInput(permanent bool) {
	e.write(ws.InputLockDirective{Event: ws.EventInputLock, Permanent: permanent})
}

func (e *wsEffects) UnlockInput() {
	e.write(ws.PlainEvent{Event: ws.EventInputUnlock})
}

func (e *wsEffects) ShowWarning(violations, remainingWarnings int) {
	e.write(ws.WarningDirective{
		Event:             ws.EventWarning,
		Violations:        violations,
		RemainingWarnings: remainingWarnings,
	})
}

func (e *wsEffects) ShowFinalWarning() {
	e.write(ws.PlainEvent{Event: ws.EventFinalWarning})
}

func (e *wsEffects) ClearWarning() {
	e.write(ws.PlainEvent{Event: ws.EventWarningClear})
}

func (e *wsEffects) TimeWarning(remaining time.Duration) {
	e.write(ws.TimeWarningDirective{
		Event:            ws.EventTimeWarning,
		RemainingSeconds: remaining.Seconds(),
	})
}

func (e *wsEffects) DegradedMode(reason string) {
	e.write(ws.DegradedDirective{Event: ws.EventDegraded, Reason: reason})
}

func (e *wsEffects) PermissionDenied(err error) {
	e.write(ws.PermissionDeniedDirective{Event: ws.EventPermissionDenied, Message: err.Error()})
}

func (e *wsEffects) ReleaseCapabilities() {
	e.write(ws.PlainEvent{Event: ws.EventRelease})
}

func (e *wsEffects) Submitted(reason model.SubmitReason) {
	e.write(ws.SubmittedDirective{Event: ws.EventSubmitted, Reason: string(reason)})
}

func (e *wsEffects) SubmitFailed(reason model.SubmitReason, err error) {
	e.write(ws.SubmitFailedDirective{
		Event:     ws.EventSubmitFailed,
		Reason:    string(reason),
		Retryable: reason == model.ReasonUserRequested,
		Error:     err.Error(),
	})
}

// ─── Sink adapters: machine ports → services ───────────────────────────

// fallbackSender hands a consumed pending snapshot to the attempt
// service. Fire-and-forget: the departing client gets no response.
type fallbackSender struct {
	svc *service.AttemptService
	log zerolog.Logger
}

func (f *fallbackSender) Send(p *model.PendingSubmission) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.svc.SubmitPending(ctx, p); err != nil {
			f.log.Error().Err(err).
				Str("attempt_id", p.AttemptID.String()).
				Msg("Fallback submission failed")
		}
	}()
}

// violationSink queues violation events for audit persistence.
type violationSink struct {
	svc     *service.AttemptService
	attempt *model.Attempt
}

func (s *violationSink) Record(v *model.ViolationEvent) {
	record := model.NewViolationRecord(s.attempt.TestID, s.attempt.StudentID, s.attempt.ID, v)
	s.svc.RecordViolation(context.Background(), record)
}

// answerSink mirrors accepted answer saves into the autosave pipeline.
type answerSink struct {
	svc     *service.AttemptService
	attempt *model.Attempt
	log     zerolog.Logger
}

func (s *answerSink) SaveAnswer(questionIndex, optionIndex int, q *model.QuestionForTaking) {
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.svc.AutosaveAnswer(ctx, s.attempt, q.ID, q.Options[optionIndex].ID); err != nil {
		s.log.Error().Err(err).Str("question_id", q.ID.String()).Msg("Autosave failed")
	}
}
