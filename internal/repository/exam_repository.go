package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hskprep/hsk-backend/internal/model"
)

// ExamRepository handles exam catalog data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, hsk_level_id, question_bank_id,
	duration_minutes, total_questions, passing_score,
	is_active, start_date, end_date,
	randomize_questions, show_results_immediately, allow_retake, max_attempts,
	created_at, updated_at`

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.HSKLevelID, &e.QuestionBankID,
		&e.DurationMinutes, &e.TotalQuestions, &e.PassingScore,
		&e.IsActive, &e.StartDate, &e.EndDate,
		&e.RandomizeQuestions, &e.ShowResultsImmediately, &e.AllowRetake, &e.MaxAttempts,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// ListAvailable retrieves exams that are active and inside their availability
// window at the given instant, newest first, optionally filtered by level.
func (r *ExamRepository) ListAvailable(ctx context.Context, now time.Time, hskLevelID *int) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + `
		 FROM exams
		 WHERE is_active AND start_date <= $1 AND (end_date IS NULL OR end_date >= $1)`
	args := []any{now}

	if hskLevelID != nil {
		args = append(args, *hskLevelID)
		query += ` AND hsk_level_id = $2`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// ListActive retrieves all active exams regardless of window. Used for cache
// prewarming at startup.
func (r *ExamRepository) ListActive(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, hsk_level_id, question_bank_id,
		        duration_minutes, total_questions, passing_score,
		        is_active, start_date, end_date,
		        randomize_questions, show_results_immediately, allow_retake, max_attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.HSKLevelID, e.QuestionBankID,
		e.DurationMinutes, e.TotalQuestions, e.PassingScore,
		e.IsActive, e.StartDate, e.EndDate,
		e.RandomizeQuestions, e.ShowResultsImmediately, e.AllowRetake, e.MaxAttempts,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites an exam's mutable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2,
		     duration_minutes = $3, total_questions = $4, passing_score = $5,
		     is_active = $6, start_date = $7, end_date = $8,
		     randomize_questions = $9, show_results_immediately = $10,
		     allow_retake = $11, max_attempts = $12,
		     updated_at = NOW()
		 WHERE id = $13`,
		e.Title, e.Description,
		e.DurationMinutes, e.TotalQuestions, e.PassingScore,
		e.IsActive, e.StartDate, e.EndDate,
		e.RandomizeQuestions, e.ShowResultsImmediately,
		e.AllowRetake, e.MaxAttempts,
		e.ID)
	return err
}

// ExamStats aggregates attempt outcomes for one exam.
type ExamStats struct {
	TotalSessions      int     `json:"total_sessions"`
	CompletedSessions  int     `json:"completed_sessions"`
	InProgressSessions int     `json:"in_progress_sessions"`
	ExpiredSessions    int     `json:"expired_sessions"`
	AverageScore       float64 `json:"average_score"`
	HighestScore       float64 `json:"highest_score"`
	LowestScore        float64 `json:"lowest_score"`
	PassRate           float64 `json:"pass_rate"`

	// ScoreDistribution buckets completed percentages: 90-100, 80-89,
	// 70-79, 60-69, 0-59.
	ScoreDistribution map[string]int `json:"score_distribution"`
}

// Stats computes aggregate statistics over all sessions of an exam.
func (r *ExamRepository) Stats(ctx context.Context, examID uuid.UUID) (*ExamStats, error) {
	st := &ExamStats{ScoreDistribution: map[string]int{
		"90-100": 0, "80-89": 0, "70-79": 0, "60-69": 0, "0-59": 0,
	}}

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status = 'in_progress'),
		        COUNT(*) FILTER (WHERE status = 'expired'),
		        COALESCE(AVG(percentage) FILTER (WHERE status = 'completed'), 0),
		        COALESCE(MAX(percentage) FILTER (WHERE status = 'completed'), 0),
		        COALESCE(MIN(percentage) FILTER (WHERE status = 'completed'), 0),
		        COALESCE(AVG(CASE WHEN passed THEN 100.0 ELSE 0 END) FILTER (WHERE status = 'completed'), 0)
		 FROM exam_sessions WHERE exam_id = $1`, examID,
	).Scan(&st.TotalSessions, &st.CompletedSessions, &st.InProgressSessions, &st.ExpiredSessions,
		&st.AverageScore, &st.HighestScore, &st.LowestScore, &st.PassRate)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT CASE
		          WHEN percentage >= 90 THEN '90-100'
		          WHEN percentage >= 80 THEN '80-89'
		          WHEN percentage >= 70 THEN '70-79'
		          WHEN percentage >= 60 THEN '60-69'
		          ELSE '0-59'
		        END AS bucket, COUNT(*)
		 FROM exam_sessions
		 WHERE exam_id = $1 AND status = 'completed' AND percentage IS NOT NULL
		 GROUP BY bucket`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		st.ScoreDistribution[bucket] = count
	}
	return st, rows.Err()
}
