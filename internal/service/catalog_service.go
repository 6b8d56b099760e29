package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/config"
	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/repository"
)

// CatalogService handles the exam catalog: listing, detail, the cached
// learner-facing paper, and the admin surface.
type CatalogService struct {
	exams     *repository.ExamRepository
	questions *repository.QuestionRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(
	exams *repository.ExamRepository,
	questions *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *CatalogService {
	return &CatalogService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "catalog_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

// ListAvailable returns exams a learner can see right now, optionally
// filtered by HSK level.
func (s *CatalogService) ListAvailable(ctx context.Context, hskLevelID *int) ([]model.Exam, error) {
	exams, err := s.exams.ListAvailable(ctx, time.Now(), hskLevelID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Create inserts a new exam and warms its paper cache.
func (s *CatalogService) Create(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := req.ToExam()
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	if err := s.WarmPaperCache(ctx, exam); err != nil {
		// The cache self-heals on first read; creation already succeeded.
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("paper cache warm failed")
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Str("title", exam.Title).Msg("exam created")
	return exam, nil
}

// Update applies admin changes to an exam and refreshes its paper cache.
func (s *CatalogService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(exam)
	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}

	if err := s.WarmPaperCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("paper cache warm failed")
	}
	return exam, nil
}

// Stats returns aggregate attempt statistics for an exam.
func (s *CatalogService) Stats(ctx context.Context, examID uuid.UUID) (*repository.ExamStats, error) {
	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.exams.Stats(ctx, examID)
}

// RefreshCache re-warms the paper cache for one exam, for admins to call
// after editing the underlying question bank.
func (s *CatalogService) RefreshCache(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if err := s.WarmPaperCache(ctx, exam); err != nil {
		return err
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("paper cache refreshed")
	return nil
}

// WarmPaperCache builds the learner-facing paper from PostgreSQL and stores
// it in Redis. The paper carries no correct-answer flags; scoring always
// reads the catalog directly.
func (s *CatalogService) WarmPaperCache(ctx context.Context, exam *model.Exam) error {
	paper, err := s.buildPaper(ctx, exam)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), raw, 0).Err(); err != nil {
		return fmt.Errorf("cache paper: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(paper.Questions)).
		Msg("paper cache warmed")
	return nil
}

// GetPaper returns the learner-facing paper for an exam: from Redis when
// cached, otherwise rebuilt from PostgreSQL and re-cached.
func (s *CatalogService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Result()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal([]byte(val), &paper); err == nil {
			return &paper, nil
		}
		// Corrupt cache entry; fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("paper cache read failed")
	}

	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	paper, err := s.buildPaper(ctx, exam)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(paper); err == nil {
		_ = s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(examID.String()), raw, 0).Err()
	}
	return paper, nil
}

// PrewarmActive warms the paper cache for every active exam. Called once at
// startup so the first learner of the day does not pay the build cost.
func (s *CatalogService) PrewarmActive(ctx context.Context) error {
	exams, err := s.exams.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmPaperCache(ctx, &exams[i]); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("prewarm failed")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("paper caches prewarmed")
	return nil
}

func (s *CatalogService) buildPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	ids, err := s.questions.ActiveIDsForBank(ctx, exam.QuestionBankID, exam.HSKLevelID)
	if err != nil {
		return nil, fmt.Errorf("list bank questions: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoQuestions
	}

	qs, err := s.questions.ByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	paper := &model.ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: make([]model.PaperQuestion, 0, len(ids)),
	}
	for _, id := range ids {
		if q, ok := qs[id]; ok {
			paper.Questions = append(paper.Questions, q.Paper())
		}
	}
	return paper, nil
}
