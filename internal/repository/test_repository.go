package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizport/quizport-backend/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, author_id, duration_minutes, entry_token, question_count, status, created_at, updated_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.AuthorID, &t.DurationMinutes, &t.EntryToken,
		&t.QuestionCount, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPublished returns all tests with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *TestRepository) ListPublished(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_minutes, entry_token, question_count, status, created_at, updated_at
		 FROM tests WHERE status = $1
		 ORDER BY created_at DESC`, model.TestStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.AuthorID, &t.DurationMinutes, &t.EntryToken,
			&t.QuestionCount, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// QuestionsForTaking retrieves a test's questions in presentation order.
// Correctness data never leaves the database through this query.
func (r *TestRepository) QuestionsForTaking(ctx context.Context, testID uuid.UUID) ([]model.QuestionForTaking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, points, order_num
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionForTaking
	for rows.Next() {
		var q model.QuestionForTaking
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
