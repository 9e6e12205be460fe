package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrNoQuestions      = errors.New("test has no questions")
	ErrTestNotPublished = errors.New("test status is not PUBLISHED")
)

// TestService handles test delivery and Redis payload caching.
type TestService struct {
	testRepo *repository.TestRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(testRepo *repository.TestRepository, rdb *redis.Client, log zerolog.Logger) *TestService {
	return &TestService{
		testRepo: testRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "test_service").Logger(),
	}
}

// GetByID retrieves a test by its UUID.
func (s *TestService) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return s.testRepo.GetByID(ctx, id)
}

// WarmTestCache loads a test's taking payload from PostgreSQL into Redis.
// Correctness data never enters this cache.
func (s *TestService) WarmTestCache(ctx context.Context, test *model.Test) error {
	questions, err := s.testRepo.QuestionsForTaking(ctx, test.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	payload := model.TestPayload{
		TestID:          test.ID,
		Title:           test.Title,
		DurationMinutes: test.DurationMinutes,
		Questions:       questions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Cache payload and duration atomically via pipeline.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestPayloadKey(test.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.TestDurationKey(test.ID.String()), test.DurationMinutes, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("test_id", test.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published tests into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *TestService) PrewarmAllCaches(ctx context.Context) error {
	tests, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}

	if len(tests) == 0 {
		s.log.Info().Msg("No published tests to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(tests)).Msg("Prewarming published tests...")

	warmed := 0
	for i := range tests {
		if err := s.WarmTestCache(ctx, &tests[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", tests[i].ID.String()).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(tests)).
		Msg("Prewarming complete")
	return nil
}

// GetTestPayload retrieves the cached taking payload, falling back to the
// database (with a self-heal write) on a cache miss.
func (s *TestService) GetTestPayload(ctx context.Context, testID uuid.UUID) (*model.TestPayload, error) {
	key := config.CacheKey.TestPayloadKey(testID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	if errors.Is(err, redis.Nil) {
		test, dbErr := s.testRepo.GetByID(ctx, testID)
		if dbErr != nil {
			return nil, fmt.Errorf("payload not cached and test lookup failed: %w", dbErr)
		}
		if test.Status != model.TestStatusPublished {
			return nil, ErrTestNotPublished
		}
		if warmErr := s.WarmTestCache(ctx, test); warmErr != nil {
			return nil, warmErr
		}
		if data, err = s.rdb.Get(ctx, key).Bytes(); err != nil {
			return nil, fmt.Errorf("get payload after warm: %w", err)
		}
	}

	var payload model.TestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}
