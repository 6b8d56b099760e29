package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/config"
	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/repository"
)

// Domain Errors
var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotSessionOwner      = errors.New("session belongs to another user")
	ErrSessionExpired       = errors.New("session time limit has elapsed")
	ErrResultsNotReady      = errors.New("results are not available for an ongoing session")
	ErrQuestionNotInSession = errors.New("question is not part of this session")
	ErrChoiceMismatch       = errors.New("choice does not belong to this question")
	ErrInvalidDirection     = errors.New("invalid navigation direction")
	ErrNoQuestions          = errors.New("exam has no questions available")
)

// errAlreadyFinal aborts a Mutate closure when the session reached a terminal
// state before the requested transition. The transaction rolls back and the
// caller decides whether that is an error or an idempotent success.
var errAlreadyFinal = errors.New("session already finalized")

// EligibilityError carries the rejection reason of a denied start attempt.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string {
	return e.Reason
}

// sessionStore is the slice of ExamSessionRepository the engine depends on.
type sessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) ([]model.ExamSession, error)
	ListByUser(ctx context.Context, userID int) ([]model.ExamSession, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*model.ExamSession) error) (*model.ExamSession, error)
	ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type examStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

type questionStore interface {
	ActiveIDsForBank(ctx context.Context, bankID uuid.UUID, hskLevelID int) ([]uuid.UUID, error)
	ByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error)
}

// ExamSessionService drives the attempt lifecycle: eligibility, start,
// answering, navigation, completion, expiry and results. All state changes go
// through sessionStore.Mutate so concurrent calls against one session
// serialize on the row lock.
type ExamSessionService struct {
	sessions  sessionStore
	exams     examStore
	questions questionStore
	rdb       *redis.Client
	rng       *rand.Rand
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. rng may be nil, in
// which case question shuffling uses the global math/rand source.
func NewExamSessionService(
	sessions sessionStore,
	exams examStore,
	questions questionStore,
	rdb *redis.Client,
	rng *rand.Rand,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions:  sessions,
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		rng:       rng,
		log:       log.With().Str("component", "exam_session_service").Logger(),
	}
}

// CheckEligibility evaluates whether the user may start a new attempt at the
// exam. A stale in-progress session found in the history is expired and
// scored here, so the verdict reflects the session's true state rather than
// its last persisted one.
func (s *ExamSessionService) CheckEligibility(ctx context.Context, examID uuid.UUID, userID int) (Eligibility, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Eligibility{}, ErrExamNotFound
		}
		return Eligibility{}, fmt.Errorf("get exam: %w", err)
	}

	history, err := s.healedHistory(ctx, exam, userID)
	if err != nil {
		return Eligibility{}, err
	}

	return CanStart(exam, history, time.Now()), nil
}

// healedHistory loads the user's attempt history for the exam and expires any
// in-progress session whose window has already elapsed.
func (s *ExamSessionService) healedHistory(ctx context.Context, exam *model.Exam, userID int) ([]model.ExamSession, error) {
	history, err := s.sessions.ListByExamAndUser(ctx, exam.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := time.Now()
	for i := range history {
		sess := &history[i]
		if sess.Status != model.SessionStatusInProgress || !sess.IsExpired(exam.Duration(), now) {
			continue
		}
		healed, err := s.expireAndScore(ctx, sess.ID, exam)
		if err != nil {
			return nil, fmt.Errorf("expire stale session: %w", err)
		}
		history[i] = *healed
	}
	return history, nil
}

// StartSession begins a new attempt. The question order is generated once
// here and never changes afterwards. Losing a concurrent-start race is
// reported the same way as a pre-existing active session.
func (s *ExamSessionService) StartSession(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	history, err := s.healedHistory(ctx, exam, userID)
	if err != nil {
		return nil, err
	}
	if verdict := CanStart(exam, history, time.Now()); !verdict.Allowed {
		return nil, &EligibilityError{Reason: verdict.Reason}
	}

	pool, err := s.questions.ActiveIDsForBank(ctx, exam.QuestionBankID, exam.HSKLevelID)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestions
	}
	order := GenerateOrder(pool, exam.RandomizeQuestions, exam.TotalQuestions, s.rng)

	sess := model.NewExamSession(examID, userID)
	if err := sess.Start(time.Now(), order); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			// Lost the race against a concurrent start on another device.
			return nil, &EligibilityError{Reason: ReasonAttemptInProgress}
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.cacheClock(ctx, sess, exam)

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Int("questions", len(order)).
		Msg("session started")

	return sess, nil
}

// cacheClock stores the session's start time and duration in Redis so the
// countdown endpoints avoid a DB round trip. Best effort: the DB row is the
// source of truth and TimeRemaining self-heals on a cache miss.
func (s *ExamSessionService) cacheClock(ctx context.Context, sess *model.ExamSession, exam *model.Exam) {
	if sess.StartedAt == nil {
		return
	}
	ttl := exam.Duration() + time.Hour
	_ = s.rdb.Set(ctx, config.CacheKey.SessionStartKey(sess.ID.String()), sess.StartedAt.Unix(), ttl).Err()
	_ = s.rdb.Set(ctx, config.CacheKey.SessionDurationKey(sess.ID.String()), exam.DurationMinutes, ttl).Err()
}

// CurrentQuestionView is what the learner sees at their current position.
type CurrentQuestionView struct {
	SessionID        uuid.UUID            `json:"session_id"`
	Index            int                  `json:"index"`
	TotalQuestions   int                  `json:"total_questions"`
	Progress         float64              `json:"progress"`
	Question         *model.PaperQuestion `json:"question,omitempty"`
	SelectedChoiceID *uuid.UUID           `json:"selected_choice_id,omitempty"`
	HasNext          bool                 `json:"has_next"`
	HasPrevious      bool                 `json:"has_previous"`
}

// CurrentQuestion returns the question at the session's current position,
// stripped of correct-answer flags. A nil Question in the view means the
// sequence is exhausted and the only remaining move is completion.
func (s *ExamSessionService) CurrentQuestion(ctx context.Context, sessionID uuid.UUID, userID int) (*CurrentQuestionView, error) {
	sess, _, err := s.loadLive(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	view := &CurrentQuestionView{
		SessionID:      sess.ID,
		Index:          sess.CurrentQuestionIndex,
		TotalQuestions: len(sess.QuestionsOrder),
		Progress:       sess.ProgressPercentage(),
		HasNext:        sess.HasNext(),
		HasPrevious:    sess.HasPrevious(),
	}

	qid, ok := sess.CurrentQuestionID()
	if !ok {
		return view, nil
	}

	qs, err := s.questions.ByIDs(ctx, []uuid.UUID{qid})
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if q, ok := qs[qid]; ok {
		paper := q.Paper()
		view.Question = &paper
	}
	if choiceID, ok := sess.Answer(qid); ok {
		id := choiceID
		view.SelectedChoiceID = &id
	}
	return view, nil
}

// SubmitAnswer records the selected choice for a question in the session.
// Re-submitting the same pair is a no-op; a different choice overwrites. The
// session's position does not move.
func (s *ExamSessionService) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, userID int, questionID, choiceID uuid.UUID) (*model.ExamSession, error) {
	_, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	return s.mutateLive(ctx, sessionID, exam, func(live *model.ExamSession) error {
		inOrder := false
		for _, qid := range live.QuestionsOrder {
			if qid == questionID {
				inOrder = true
				break
			}
		}
		if !inOrder {
			return ErrQuestionNotInSession
		}

		qs, err := s.questions.ByIDs(ctx, []uuid.UUID{questionID})
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}
		q, ok := qs[questionID]
		if !ok || !q.HasChoice(choiceID) {
			return ErrChoiceMismatch
		}

		return live.RecordAnswer(questionID, choiceID)
	})
}

// NavigationResult reports where a Navigate call left the session.
type NavigationResult struct {
	Session   *model.ExamSession `json:"session"`
	Completed bool               `json:"completed"`
}

// Navigate moves the session's position. Moving next from the last question
// does not overflow the index; it finalizes the attempt, scoring it
// synchronously. Moving previous at the first question is a no-op.
func (s *ExamSessionService) Navigate(ctx context.Context, sessionID uuid.UUID, userID int, direction model.NavigationDirection) (*NavigationResult, error) {
	_, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	completed := false
	sess, err := s.mutateLive(ctx, sessionID, exam, func(live *model.ExamSession) error {
		switch direction {
		case model.NavigateNext:
			moved, err := live.Advance()
			if err != nil {
				return err
			}
			if !moved {
				completed = true
				return s.finalize(ctx, live, exam, false)
			}
			return nil
		case model.NavigatePrevious:
			return live.Retreat()
		default:
			return ErrInvalidDirection
		}
	})
	if err != nil {
		return nil, err
	}
	return &NavigationResult{Session: sess, Completed: completed}, nil
}

// Complete finalizes the attempt explicitly, regardless of position.
// Completing an already-finalized session is an idempotent success: the
// stored outcome is returned unchanged and nothing is rescored.
func (s *ExamSessionService) Complete(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, error) {
	sess, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutateLive(ctx, sessionID, exam, func(live *model.ExamSession) error {
		return s.finalize(ctx, live, exam, false)
	})
	if err != nil {
		if errors.Is(err, model.ErrSessionFinished) {
			return sess, nil
		}
		return nil, err
	}
	return updated, nil
}

// SessionResult is the learner-facing outcome of a finished attempt.
type SessionResult struct {
	Session   *model.ExamSession `json:"session"`
	Breakdown []QuestionScore    `json:"breakdown,omitempty"`
}

// Result returns the outcome of a terminal session. An in-progress session
// whose window has elapsed is finalized first, so polling the result is
// enough to observe expiry. The per-question breakdown is included only when
// the exam is configured to show results immediately.
func (s *ExamSessionService) Result(ctx context.Context, sessionID uuid.UUID, userID int) (*SessionResult, error) {
	sess, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if sess.Status == model.SessionStatusInProgress && sess.IsExpired(exam.Duration(), time.Now()) {
		sess, err = s.expireAndScore(ctx, sessionID, exam)
		if err != nil {
			return nil, err
		}
	}
	if !sess.Status.Terminal() {
		return nil, ErrResultsNotReady
	}

	result := &SessionResult{Session: sess}
	if exam.ShowResultsImmediately {
		qs, err := s.questions.ByIDs(ctx, sess.QuestionsOrder)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		result.Breakdown = Score(sess.QuestionsOrder, sess.UserAnswers, qs, exam.PassingScore).Breakdown
	}
	return result, nil
}

// History returns all of the user's sessions, newest first.
func (s *ExamSessionService) History(ctx context.Context, userID int) ([]model.ExamSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}
	return sessions, nil
}

// TimeRemaining returns the seconds left on the session clock, clamped at
// zero. The start time comes from Redis when cached, falling back to the DB
// row and re-priming the cache on a miss.
func (s *ExamSessionService) TimeRemaining(ctx context.Context, sessionID uuid.UUID, userID int) (float64, error) {
	sess, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return 0, err
	}
	if sess.Status.Terminal() {
		return 0, nil
	}
	if sess.StartedAt == nil {
		return exam.Duration().Seconds(), nil
	}

	var startUnix int64
	startKey := config.CacheKey.SessionStartKey(sessionID.String())
	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case err == nil:
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			startUnix = sess.StartedAt.Unix()
		}
	case errors.Is(err, redis.Nil):
		startUnix = sess.StartedAt.Unix()
		s.cacheClock(ctx, sess, exam)
	default:
		// Redis down; the DB row is enough.
		startUnix = sess.StartedAt.Unix()
	}

	remaining := time.Until(time.Unix(startUnix, 0).Add(exam.Duration()))
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Seconds(), nil
}

// ExpireStale finalizes every in-progress session whose window has elapsed.
// The periodic sweep calls this; it is an optimization on top of the lazy
// per-request check, not the correctness mechanism. Returns the number of
// sessions expired.
func (s *ExamSessionService) ExpireStale(ctx context.Context, limit int) (int, error) {
	ids, err := s.sessions.ListExpiredInProgress(ctx, time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if _, err := s.expireSession(ctx, id); err != nil {
			// Another request may have finalized it in the meantime.
			if errors.Is(err, errAlreadyFinal) {
				continue
			}
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("failed to expire session")
			continue
		}
		expired++
	}
	return expired, nil
}

// loadOwned fetches the session and its exam, verifying ownership.
func (s *ExamSessionService) loadOwned(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, *model.Exam, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != userID {
		return nil, nil, ErrNotSessionOwner
	}

	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	return sess, exam, nil
}

// loadLive is loadOwned plus the lazy expiry check on the read path: an
// in-progress session past its window is finalized before the caller sees it.
func (s *ExamSessionService) loadLive(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, *model.Exam, error) {
	sess, exam, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status == model.SessionStatusInProgress && sess.IsExpired(exam.Duration(), time.Now()) {
		if _, err := s.expireAndScore(ctx, sessionID, exam); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrSessionExpired
	}
	return sess, exam, nil
}

// mutateLive applies fn to the session under the row lock, first re-running
// the expiry check against the locked row. When the window has elapsed the
// session is expired and scored instead of applying fn, and ErrSessionExpired
// is returned; the mutation commits either way.
func (s *ExamSessionService) mutateLive(ctx context.Context, sessionID uuid.UUID, exam *model.Exam, fn func(*model.ExamSession) error) (*model.ExamSession, error) {
	intercepted := false
	sess, err := s.sessions.Mutate(ctx, sessionID, func(live *model.ExamSession) error {
		if live.Status.Terminal() {
			return errAlreadyFinal
		}
		if live.Status == model.SessionStatusInProgress && live.IsExpired(exam.Duration(), time.Now()) {
			intercepted = true
			return s.finalize(ctx, live, exam, true)
		}
		return fn(live)
	})
	if err != nil {
		if errors.Is(err, errAlreadyFinal) {
			return nil, model.ErrSessionFinished
		}
		return nil, err
	}
	if intercepted {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// expireAndScore finalizes an overrun session as expired.
func (s *ExamSessionService) expireAndScore(ctx context.Context, sessionID uuid.UUID, exam *model.Exam) (*model.ExamSession, error) {
	sess, err := s.sessions.Mutate(ctx, sessionID, func(live *model.ExamSession) error {
		if live.Status.Terminal() {
			return errAlreadyFinal
		}
		return s.finalize(ctx, live, exam, true)
	})
	if err != nil {
		if errors.Is(err, errAlreadyFinal) {
			return s.sessions.GetByID(ctx, sessionID)
		}
		return nil, fmt.Errorf("expire session: %w", err)
	}
	return sess, nil
}

// expireSession is expireAndScore for callers that only have the session id.
func (s *ExamSessionService) expireSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return s.sessions.Mutate(ctx, sessionID, func(live *model.ExamSession) error {
		if live.Status.Terminal() {
			return errAlreadyFinal
		}
		return s.finalize(ctx, live, exam, true)
	})
}

// finalize transitions the session to its terminal state and scores it in the
// same mutation, so a finalized session is never observable without its
// outcome. asExpired selects which terminal state records how the attempt
// ended; the scoring itself is identical.
func (s *ExamSessionService) finalize(ctx context.Context, sess *model.ExamSession, exam *model.Exam, asExpired bool) error {
	now := time.Now()
	var err error
	if asExpired {
		err = sess.Expire(now)
	} else {
		err = sess.Complete(now)
	}
	if err != nil {
		return err
	}

	qs, err := s.questions.ByIDs(ctx, sess.QuestionsOrder)
	if err != nil {
		return fmt.Errorf("load questions for scoring: %w", err)
	}

	result := Score(sess.QuestionsOrder, sess.UserAnswers, qs, exam.PassingScore)
	sess.TotalPoints = result.TotalPoints
	sess.EarnedPoints = result.EarnedPoints
	pct := result.Percentage
	sess.Percentage = &pct
	sess.Passed = result.Passed

	// The clock cache is dead weight once the session is terminal.
	_ = s.rdb.Del(ctx,
		config.CacheKey.SessionStartKey(sess.ID.String()),
		config.CacheKey.SessionDurationKey(sess.ID.String()),
	).Err()

	return nil
}
