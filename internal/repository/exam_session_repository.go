package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hskprep/hsk-backend/internal/model"
)

// ErrActiveSessionExists signals that the partial unique index on
// (exam_id, user_id) for non-terminal sessions rejected a concurrent start.
var ErrActiveSessionExists = errors.New("an active session already exists for this exam")

// ExamSessionRepository handles exam session persistence.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, user_id, status, started_at, completed_at,
	questions_order, current_question_index, user_answers,
	total_points, earned_points, percentage, passed, created_at`

func scanSession(row interface{ Scan(...any) error }) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var orderRaw, answersRaw []byte
	err := row.Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.CompletedAt,
		&orderRaw, &s.CurrentQuestionIndex, &answersRaw,
		&s.TotalPoints, &s.EarnedPoints, &s.Percentage, &s.Passed, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(orderRaw, &s.QuestionsOrder); err != nil {
		return nil, fmt.Errorf("decode questions_order: %w", err)
	}
	if err := json.Unmarshal(answersRaw, &s.UserAnswers); err != nil {
		return nil, fmt.Errorf("decode user_answers: %w", err)
	}
	if s.UserAnswers == nil {
		s.UserAnswers = make(map[uuid.UUID]uuid.UUID)
	}
	return s, nil
}

func encodeSessionJSON(s *model.ExamSession) (orderRaw, answersRaw []byte, err error) {
	order := s.QuestionsOrder
	if order == nil {
		order = []uuid.UUID{}
	}
	orderRaw, err = json.Marshal(order)
	if err != nil {
		return nil, nil, fmt.Errorf("encode questions_order: %w", err)
	}
	answers := s.UserAnswers
	if answers == nil {
		answers = map[uuid.UUID]uuid.UUID{}
	}
	answersRaw, err = json.Marshal(answers)
	if err != nil {
		return nil, nil, fmt.Errorf("encode user_answers: %w", err)
	}
	return orderRaw, answersRaw, nil
}

// Create inserts a new session. The partial unique index on
// (exam_id, user_id) WHERE status NOT IN ('completed','expired') serializes
// concurrent starts; the loser gets ErrActiveSessionExists.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	orderRaw, answersRaw, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions
		        (exam_id, user_id, status, started_at, questions_order, current_question_index, user_answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (exam_id, user_id) WHERE status IN ('not_started', 'in_progress') DO NOTHING
		 RETURNING id, created_at`,
		s.ExamID, s.UserID, s.Status, s.StartedAt, orderRaw, s.CurrentQuestionIndex, answersRaw,
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrActiveSessionExists
	}
	return err
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// ListByExamAndUser retrieves a user's attempt history for one exam, newest
// first. This is the eligibility checker's input.
func (r *ExamSessionRepository) ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) ([]model.ExamSession, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY created_at DESC`, examID, userID)
}

// ListByUser retrieves all of a user's sessions, newest first.
func (r *ExamSessionRepository) ListByUser(ctx context.Context, userID int) ([]model.ExamSession, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
}

func (r *ExamSessionRepository) list(ctx context.Context, query string, args ...any) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Mutate runs fn against the session inside a transaction holding a row lock
// (SELECT ... FOR UPDATE), then persists every mutable field. Two concurrent
// requests for the same session therefore serialize; a duplicated "next"
// click cannot corrupt the index or double-trigger completion. An error from
// fn rolls the transaction back and is returned unchanged.
func (r *ExamSessionRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.ExamSession) error) (*model.ExamSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	orderRaw, answersRaw, err := encodeSessionJSON(s)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, started_at = $2, completed_at = $3,
		     questions_order = $4, current_question_index = $5, user_answers = $6,
		     total_points = $7, earned_points = $8, percentage = $9, passed = $10
		 WHERE id = $11`,
		s.Status, s.StartedAt, s.CompletedAt,
		orderRaw, s.CurrentQuestionIndex, answersRaw,
		s.TotalPoints, s.EarnedPoints, s.Percentage, s.Passed,
		s.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ListExpiredInProgress retrieves ids of in-progress sessions whose time
// window elapsed before the given instant. Input for the best-effort sweep.
func (r *ExamSessionRepository) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = 'in_progress'
		   AND s.started_at IS NOT NULL
		   AND s.started_at + make_interval(mins => e.duration_minutes) < $1
		 ORDER BY s.started_at
		 LIMIT $2`, now, limit)
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

// DeleteTerminalBefore purges completed and expired sessions finished before
// the cutoff. Retention policy only; the session engine itself never deletes.
func (r *ExamSessionRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exam_sessions
		 WHERE status IN ('completed', 'expired') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
