package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrTestNotAvailable    = errors.New("test is not available for taking")
	ErrInvalidEntryToken   = errors.New("invalid entry token")
	ErrAttemptSubmitted    = errors.New("attempt already submitted")
	ErrAttemptNotFound     = errors.New("no attempt in progress")
	ErrNoPendingSubmission = errors.New("no pending submission for this attempt")
	ErrStalePending        = errors.New("pending submission is too old")
)

// AttemptService owns the attempt lifecycle: the idempotent join, state
// recovery for reloading clients, autosave, and every finalization path
// (live submit, fallback send, beacon).
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	testRepo    *repository.TestRepository
	pendingRepo *repository.PendingSubmissionRepository
	rdb         *redis.Client
	cfg         *config.Config
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	testRepo *repository.TestRepository,
	pendingRepo *repository.PendingSubmissionRepository,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		testRepo:    testRepo,
		pendingRepo: pendingRepo,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Pending exposes the snapshot store for wiring into session machines.
func (s *AttemptService) Pending() *repository.PendingSubmissionRepository {
	return s.pendingRepo
}

// Start validates the entry token and creates an attempt for the student.
// Joining twice returns the existing attempt; a submitted attempt cannot
// be restarted.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, studentID int, entryToken string) (*model.Attempt, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotAvailable
	}
	if test.EntryToken != entryToken {
		return nil, ErrInvalidEntryToken
	}

	// Check if student already has an attempt.
	existing, err := s.attemptRepo.GetByTestAndStudent(ctx, testID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	if existing != nil {
		if existing.Status == model.AttemptStatusSubmitted {
			return nil, ErrAttemptSubmitted
		}
		// Re-join from a reload or second device: make sure Redis still
		// has the authoritative start time.
		_ = s.rdb.Set(ctx, config.CacheKey.AttemptStartKey(testID.String(), studentID), existing.StartedAt.Unix(), 0)
		return existing, nil
	}

	attempt := &model.Attempt{
		TestID:    testID,
		StudentID: studentID,
		StartedAt: time.Now(),
		Status:    model.AttemptStatusInProgress,
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent join: the other writer won, use its row.
			existing, fetchErr := s.attemptRepo.GetByTestAndStudent(ctx, testID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	startKey := config.CacheKey.AttemptStartKey(testID.String(), studentID)
	if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		// State recovery falls back to PostgreSQL, so a cache write
		// failure must not fail the join.
		s.log.Warn().Err(err).Msg("Failed to cache attempt start time")
	}
	_ = s.rdb.Set(ctx, config.CacheKey.StudentActiveTestKey(studentID), testID.String(), 0)

	return attempt, nil
}

// VerifyActiveAttempt checks that a student has an IN_PROGRESS attempt for
// the given test and returns it.
func (s *AttemptService) VerifyActiveAttempt(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return nil, ErrAttemptSubmitted
	}
	return attempt, nil
}

// GetState returns what a reloading client needs to resume: autosaved
// answers plus the remaining time computed from the authoritative start.
func (s *AttemptService) GetState(ctx context.Context, testID uuid.UUID, studentID int) (*model.AttemptState, error) {
	answersKey := config.CacheKey.AttemptAnswersKey(testID.String(), studentID)
	answers, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	remaining, err := s.RemainingTime(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	return &model.AttemptState{
		TestID:           testID,
		StudentID:        studentID,
		AutosavedAnswers: answers,
		RemainingSeconds: remaining.Seconds(),
	}, nil
}

// RemainingTime computes the time left on an attempt from the cached
// start timestamp, healing the cache from PostgreSQL on a miss. The
// client never supplies this value.
func (s *AttemptService) RemainingTime(ctx context.Context, testID uuid.UUID, studentID int) (time.Duration, error) {
	durationStr, err := s.rdb.Get(ctx, config.CacheKey.TestDurationKey(testID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("get test duration: %w", err)
	}
	durationMinutes, err := strconv.Atoi(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format in cache: %w", err)
	}

	var startUnix int64
	startKey := config.CacheKey.AttemptStartKey(testID.String(), studentID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		// Cache miss (eviction or restart): PostgreSQL is the source of
		// truth, and we self-heal the cache for the next request.
		attempt, dbErr := s.attemptRepo.GetByTestAndStudent(ctx, testID, studentID)
		if dbErr != nil {
			return 0, fmt.Errorf("attempt not found in cache or db: %w", dbErr)
		}
		startUnix = attempt.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
	} else if err != nil {
		return 0, fmt.Errorf("redis error getting start time: %w", err)
	} else {
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid start time format in cache: %w", err)
		}
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(durationMinutes) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// AutosaveAnswer writes one answer to the Redis hash and queues it for
// asynchronous database persistence.
func (s *AttemptService) AutosaveAnswer(ctx context.Context, attempt *model.Attempt, questionID, optionID uuid.UUID) error {
	answersKey := config.CacheKey.AttemptAnswersKey(attempt.TestID.String(), attempt.StudentID)
	if err := s.rdb.HSet(ctx, answersKey, questionID.String(), optionID.String()).Err(); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  attempt.ID.String(),
		"student_id":  attempt.StudentID,
		"test_id":     attempt.TestID.String(),
		"question_id": questionID.String(),
		"option_id":   optionID.String(),
	})
	s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	return nil
}

// RecordViolation queues one violation record for audit persistence.
// Called from the guard's sink; it must never block a session.
func (s *AttemptService) RecordViolation(ctx context.Context, record *model.ViolationRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal violation record")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to enqueue violation record")
	}
}

// Submit finalizes an attempt: the row flips to SUBMITTED synchronously
// and answers go to the finalize queue for asynchronous persistence.
// A second call for the same attempt is a no-op.
func (s *AttemptService) Submit(ctx context.Context, sub *model.Submission) error {
	finalized, err := s.attemptRepo.Finalize(ctx, sub.AttemptID, sub.Reason, time.Now())
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if !finalized {
		s.log.Info().
			Str("attempt_id", sub.AttemptID.String()).
			Msg("Attempt already finalized, skipping")
		return nil
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptsQueue, payload).Err(); err != nil {
		// The row is already SUBMITTED; losing the answer batch here
		// would be silent data loss, so surface it.
		return fmt.Errorf("enqueue finalization: %w", err)
	}

	s.cleanupAttemptKeys(ctx, sub.TestID, sub.StudentID)

	s.log.Info().
		Str("attempt_id", sub.AttemptID.String()).
		Str("reason", string(sub.Reason)).
		Int("answers", len(sub.Answers)).
		Msg("Attempt submitted")
	return nil
}

// SubmitPending converts a consumed snapshot into a real submission. Used
// by the fallback send on departure and by the beacon endpoint.
func (s *AttemptService) SubmitPending(ctx context.Context, p *model.PendingSubmission) error {
	attempt, err := s.attemptRepo.GetByID(ctx, p.AttemptID)
	if err != nil {
		return fmt.Errorf("get attempt for pending submission: %w", err)
	}

	elapsed := time.Since(attempt.StartedAt)
	sub := &model.Submission{
		AttemptID:        p.AttemptID,
		TestID:           p.TestID,
		StudentID:        p.StudentID,
		Answers:          p.Answers,
		TimeSpentMinutes: int(elapsed.Minutes()),
		StartedAt:        attempt.StartedAt,
		Reason:           p.Reason,
	}
	return s.Submit(ctx, sub)
}

// BeaconSubmit handles the fire-and-forget unload request: it consumes
// the attempt's pending snapshot, enforces recency, and submits it. The
// caller has already burned the beacon token.
func (s *AttemptService) BeaconSubmit(ctx context.Context, attemptID uuid.UUID) error {
	p, ok, err := s.pendingRepo.Take(ctx, attemptID.String())
	if err != nil {
		return fmt.Errorf("take pending submission: %w", err)
	}
	if !ok {
		return ErrNoPendingSubmission
	}
	if time.Since(p.ScheduledAt) > s.cfg.PendingRecency {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Msg("Stale pending submission dropped at beacon")
		return ErrStalePending
	}
	return s.SubmitPending(ctx, p)
}

func (s *AttemptService) cleanupAttemptKeys(ctx context.Context, testID uuid.UUID, studentID int) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(testID.String(), studentID))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(testID.String(), studentID))
	pipe.Del(ctx, config.CacheKey.StudentActiveTestKey(studentID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clean up attempt cache keys")
	}
}
