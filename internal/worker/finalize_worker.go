package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	FinalizePollTimeout = 1 * time.Second
)

// FinalizeWorker persists the answer list of submitted attempts. The
// attempt row flips to SUBMITTED synchronously at submission time; this
// worker only owns the durable answer records and cache cleanup.
type FinalizeWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewFinalizeWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FinalizeWorker {
	return &FinalizeWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "finalize_worker").Logger(),
	}
}

func (w *FinalizeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("FinalizeWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested, draining queue...")
			w.drain(context.Background())
			return
		default:
			item, err := w.rdb.BLPop(ctx, FinalizePollTimeout, config.WorkerKey.FinalizeAttemptsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}
			w.handleRaw(ctx, item[1])
		}
	}
}

func (w *FinalizeWorker) handleRaw(ctx context.Context, raw string) {
	var sub model.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed submission payload")
		return
	}

	if err := w.persistAnswers(ctx, &sub); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", sub.AttemptID.String()).
			Msg("Persist failed, requeueing in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptsQueue, raw)
		time.Sleep(5 * time.Second)
		return
	}

	w.clearAutosaveBuffer(ctx, &sub)

	w.log.Info().
		Str("attempt_id", sub.AttemptID.String()).
		Int("answers", len(sub.Answers)).
		Str("reason", string(sub.Reason)).
		Msg("Attempt answers persisted")
}

// persistAnswers upserts the full final answer list in one statement
// using UNNEST, replacing whatever autosave left behind.
func (w *FinalizeWorker) persistAnswers(ctx context.Context, sub *model.Submission) error {
	if len(sub.Answers) == 0 {
		// An empty submission is legal (forced submit with nothing
		// answered); only the time spent is recorded.
		return w.updateTimeSpent(ctx, sub)
	}

	n := len(sub.Answers)
	questionIDs := make([]uuid.UUID, 0, n)
	optionIDs := make([]uuid.UUID, 0, n)
	indexes := make([]int, 0, n)
	for _, a := range sub.Answers {
		questionIDs = append(questionIDs, a.QuestionID)
		optionIDs = append(optionIDs, a.SelectedOptionID)
		indexes = append(indexes, a.SelectedAnswerIndex)
	}

	query := `
		INSERT INTO attempt_answers (attempt_id, question_id, selected_option_id, selected_index)
		SELECT $1, u.question_id, u.option_id, u.selected_index
		FROM UNNEST(
			$2::uuid[],
			$3::uuid[],
			$4::int[]
		) AS u (question_id, option_id, selected_index)
		ON CONFLICT (attempt_id, question_id) DO UPDATE
		SET selected_option_id = EXCLUDED.selected_option_id,
		    selected_index = EXCLUDED.selected_index,
		    updated_at = NOW()
	`

	if _, err := w.pool.Exec(ctx, query, sub.AttemptID, questionIDs, optionIDs, indexes); err != nil {
		return err
	}
	return w.updateTimeSpent(ctx, sub)
}

func (w *FinalizeWorker) updateTimeSpent(ctx context.Context, sub *model.Submission) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE attempts SET time_spent_minutes = $1 WHERE id = $2`,
		sub.TimeSpentMinutes, sub.AttemptID)
	return err
}

func (w *FinalizeWorker) clearAutosaveBuffer(ctx context.Context, sub *model.Submission) {
	pipe := w.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(sub.TestID.String(), sub.StudentID))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(sub.TestID.String(), sub.StudentID))
	_, _ = pipe.Exec(ctx)
}

// drain processes all remaining items in the queue before shutdown.
func (w *FinalizeWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.FinalizeAttemptsQueue).Result()
		if err != nil {
			break
		}

		var sub model.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistAnswers(ctx, &sub); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptsQueue, raw)
			break
		}
		w.clearAutosaveBuffer(ctx, &sub)
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
