package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizport/quizport-backend/internal/middleware"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/response"
	"github.com/quizport/quizport-backend/internal/service"
	"github.com/quizport/quizport-backend/internal/validator"
	"github.com/rs/zerolog"
)

// PortalHandler handles the student-facing test taking endpoints.
type PortalHandler struct {
	attemptService *service.AttemptService
	testService    *service.TestService
	authService    *service.AuthService
	log            zerolog.Logger
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	attemptService *service.AttemptService,
	testService *service.TestService,
	authService *service.AuthService,
	log zerolog.Logger,
) *PortalHandler {
	return &PortalHandler{
		attemptService: attemptService,
		testService:    testService,
		authService:    authService,
		log:            log.With().Str("component", "portal_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/portal/tests/:test_id/start
// Validates the entry token and creates an attempt (idempotent). The
// response includes the single-use beacon token the client embeds in its
// page-unload submission.
func (h *PortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), testID, claims.StudentID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEntryToken):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrTestNotAvailable):
			response.Fail(c, http.StatusBadRequest, response.ErrTestNotAvailable)
		case errors.Is(err, service.ErrAttemptSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	beaconToken, err := h.authService.IssueBeaconToken(c.Request.Context(), attempt.ID.String())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to issue beacon token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":      attempt,
		"beacon_token": beaconToken,
	})
}

// GetTestPaper godoc
// GET /api/v1/portal/tests/:test_id/paper
// Returns the question payload from Redis (bypasses PostgreSQL).
// Requires an active attempt for this test — prevents IDOR.
func (h *PortalHandler) GetTestPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Students cannot download papers for tests they have not joined.
	if _, err := h.attemptService.VerifyActiveAttempt(c.Request.Context(), testID, claims.StudentID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		return
	}

	payload, err := h.testService.GetTestPayload(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrTestNotPublished)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetAttemptState godoc
// GET /api/v1/portal/tests/:test_id/state
// Returns autosaved answers and the authoritative remaining time, so a
// reloading client can resume without resetting its clock.
func (h *PortalHandler) GetAttemptState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.attemptService.VerifyActiveAttempt(c.Request.Context(), testID, claims.StudentID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), testID, claims.StudentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SubmitTest godoc
// POST /api/v1/portal/tests/:test_id/submit
// The HTTP submission path. The server recomputes nothing from the
// client clock; the reason defaults to a user-requested submission.
func (h *PortalHandler) SubmitTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.VerifyActiveAttempt(c.Request.Context(), testID, claims.StudentID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptSubmitted) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
			return
		}
		response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		return
	}

	var req model.SubmitTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = model.ReasonUserRequested
	}

	sub := &model.Submission{
		AttemptID:        attempt.ID,
		TestID:           testID,
		StudentID:        claims.StudentID,
		Answers:          req.Answers,
		TimeSpentMinutes: int(time.Since(attempt.StartedAt).Minutes()),
		StartedAt:        attempt.StartedAt,
		Reason:           reason,
	}

	if err := h.attemptService.Submit(c.Request.Context(), sub); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Submit failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": attempt.ID,
		"status":     model.AttemptStatusSubmitted,
		"reason":     reason,
	})
}

// SubmitBeacon godoc
// POST /api/v1/portal/attempts/beacon
// Fire-and-forget unload submission. Beacon transports cannot set an
// Authorization header, so a single-use token travels in the body. The
// endpoint is deliberately terse: the page firing it is already gone.
func (h *PortalHandler) SubmitBeacon(c *gin.Context) {
	var req model.BeaconSubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.ConsumeBeaconToken(c.Request.Context(), req.AttemptID.String(), req.Token); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidBeaconToken)
		return
	}

	if err := h.attemptService.BeaconSubmit(c.Request.Context(), req.AttemptID); err != nil {
		switch {
		case errors.Is(err, service.ErrNoPendingSubmission):
			response.Fail(c, http.StatusNotFound, response.ErrNoPendingSubmission)
		case errors.Is(err, service.ErrStalePending):
			response.Fail(c, http.StatusGone, response.ErrNoPendingSubmission)
		default:
			h.log.Error().Err(err).Str("attempt_id", req.AttemptID.String()).Msg("Beacon submit failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt_id": req.AttemptID})
}
