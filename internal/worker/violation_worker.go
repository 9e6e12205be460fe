package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker persists fullscreen violation records for audit. The
// guard's decisions never wait on this path; a violation is enforced in
// memory long before it reaches PostgreSQL.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*model.ViolationRecord, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var record model.ViolationRecord
		if err := json.Unmarshal([]byte(result[1]), &record); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &record)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.ViolationRecord) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*model.ViolationRecord) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, r := range batch {
		attemptID, err := uuid.Parse(r.AttemptID)
		if err != nil {
			// Trigger fallback, which handles the bad UUID individually.
			return err
		}
		testID, err := uuid.Parse(r.TestID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			attemptID, testID, r.StudentID, r.Sequence, r.WarningLevel, time.Unix(r.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"attempt_id", "test_id", "student_id", "sequence", "warning_level", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationRecord) {
	requeueList := make([]*model.ViolationRecord, 0)

	for _, r := range batch {
		attemptID, err := uuid.Parse(r.AttemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", r.AttemptID).Msg("Dropping violation with invalid UUID")
			continue
		}
		testID, err := uuid.Parse(r.TestID)
		if err != nil {
			w.log.Error().Str("test_id", r.TestID).Msg("Dropping violation with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_violations (attempt_id, test_id, student_id, sequence, warning_level, recorded_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			attemptID, testID, r.StudentID, r.Sequence, r.WarningLevel, time.Unix(r.Timestamp, 0),
		)

		if err != nil {
			w.log.Error().Err(err).Int("student_id", r.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, r)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*model.ViolationRecord) {
	pipe := w.rdb.Pipeline()
	for _, r := range items {
		data, _ := json.Marshal(r)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*model.ViolationRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
