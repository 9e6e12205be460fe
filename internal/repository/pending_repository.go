package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// pendingTTL bounds how long an unconsumed snapshot can linger. Consumers
// apply their own recency check; the TTL only keeps Redis tidy.
const pendingTTL = time.Hour

// PendingSubmissionRepository stores the per-attempt submission snapshot
// written when a forced submission is scheduled. Reads are destructive
// (GETDEL), so at most one consumer ever sees a given snapshot.
type PendingSubmissionRepository struct {
	redis *redis.Client
}

// NewPendingSubmissionRepository creates a new PendingSubmissionRepository.
func NewPendingSubmissionRepository(rdb *redis.Client) *PendingSubmissionRepository {
	return &PendingSubmissionRepository{redis: rdb}
}

// Put writes or replaces the snapshot for an attempt.
func (r *PendingSubmissionRepository) Put(ctx context.Context, p *model.PendingSubmission) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending submission: %w", err)
	}

	key := config.CacheKey.PendingSubmissionKey(p.AttemptID.String())
	if err := r.redis.Set(ctx, key, raw, pendingTTL).Err(); err != nil {
		return fmt.Errorf("store pending submission: %w", err)
	}
	return nil
}

// Take atomically removes and returns the snapshot for an attempt.
// Returns found=false when no snapshot exists or another consumer won.
func (r *PendingSubmissionRepository) Take(ctx context.Context, attemptID string) (*model.PendingSubmission, bool, error) {
	key := config.CacheKey.PendingSubmissionKey(attemptID)
	raw, err := r.redis.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take pending submission: %w", err)
	}

	var p model.PendingSubmission
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, fmt.Errorf("decode pending submission: %w", err)
	}
	return &p, true, nil
}
