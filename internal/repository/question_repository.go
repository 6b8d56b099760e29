package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hskprep/hsk-backend/internal/model"
)

var ErrQuestionNotFound = errors.New("question not found")

// QuestionRepository handles read access to the question catalog.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ActiveIDsForBank retrieves the identifiers of active questions in a bank at
// the given HSK level, in stable catalog order (creation order, ties by id).
// This is the sequencer's question pool.
func (r *QuestionRepository) ActiveIDsForBank(ctx context.Context, bankID uuid.UUID, hskLevelID int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id
		 FROM questions q
		 JOIN question_bank_items bi ON bi.question_id = q.id
		 WHERE bi.bank_id = $1 AND q.hsk_level_id = $2 AND q.is_active
		 ORDER BY q.created_at, q.id`, bankID, hskLevelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ByIDs retrieves questions with their choices, keyed by question id.
// Identifiers that no longer resolve are simply absent from the result; the
// scoring engine treats missing entries as catalog drift and skips them.
func (r *QuestionRepository) ByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.Question{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, text, hsk_level_id, points, is_active, created_at
		 FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.HSKLevelID, &q.Points, &q.IsActive, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	choiceRows, err := r.pool.Query(ctx,
		`SELECT id, question_id, text, is_correct, ord
		 FROM choices WHERE question_id = ANY($1)
		 ORDER BY question_id, ord`, ids)
	if err != nil {
		return nil, err
	}
	defer choiceRows.Close()

	for choiceRows.Next() {
		var c model.Choice
		if err := choiceRows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect, &c.Ord); err != nil {
			return nil, err
		}
		q, ok := questions[c.QuestionID]
		if !ok {
			continue
		}
		q.Choices = append(q.Choices, c)
		questions[c.QuestionID] = q
	}
	return questions, choiceRows.Err()
}

// GetByID retrieves one question with its choices.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	questions, err := r.ByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	q, ok := questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return &q, nil
}
