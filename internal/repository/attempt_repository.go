package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizport/quizport-backend/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByTestAndStudent retrieves the attempt for a test-student pair.
func (r *AttemptRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, started_at, finished_at, status, submit_reason
		 FROM attempts
		 WHERE test_id = $1 AND student_id = $2`, testID, studentID,
	).Scan(&a.ID, &a.TestID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.SubmitReason)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, started_at, finished_at, status, submit_reason
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.TestID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.SubmitReason)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new attempt (student joins the test). On conflict the
// insert is a no-op and Scan returns pgx.ErrNoRows; callers re-fetch the
// existing row, which makes the join idempotent.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.TestID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Finalize marks an attempt as submitted with its trigger reason. The
// status guard makes finalization idempotent: a second writer finds zero
// rows and reports false.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, submit_reason = $2, finished_at = $3
		 WHERE id = $4 AND status = $5`,
		model.AttemptStatusSubmitted, reason, finishedAt,
		attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
