package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/repository"
)

// ─── Fakes ──────────────────────────────────────────────────────────
//
// The fakes mirror the repository contracts: every read hands out a deep
// copy, and Mutate only persists when the closure returns nil, so rollback
// semantics hold in-memory too.

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.ExamSession
	exams    *fakeExamStore
}

func newFakeSessionStore(exams *fakeExamStore) *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*model.ExamSession), exams: exams}
}

func cloneSession(s *model.ExamSession) *model.ExamSession {
	c := *s
	c.QuestionsOrder = append([]uuid.UUID(nil), s.QuestionsOrder...)
	c.UserAnswers = make(map[uuid.UUID]uuid.UUID, len(s.UserAnswers))
	for k, v := range s.UserAnswers {
		c.UserAnswers[k] = v
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Percentage != nil {
		p := *s.Percentage
		c.Percentage = &p
	}
	return &c
}

func (f *fakeSessionStore) Create(ctx context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.ExamID == s.ExamID && existing.UserID == s.UserID && !existing.Status.Terminal() {
			return repository.ErrActiveSessionExists
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneSession(s), nil
}

func (f *fakeSessionStore) ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.ExamID == examID && s.UserID == userID {
			out = append(out, *cloneSession(s))
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ListByUser(ctx context.Context, userID int) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *cloneSession(s))
		}
	}
	return out, nil
}

func (f *fakeSessionStore) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.ExamSession) error) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	work := cloneSession(s)
	if err := fn(work); err != nil {
		return nil, err
	}
	f.sessions[id] = cloneSession(work)
	return work, nil
}

func (f *fakeSessionStore) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, s := range f.sessions {
		if s.Status != model.SessionStatusInProgress {
			continue
		}
		exam := f.exams.exams[s.ExamID]
		if exam == nil {
			continue
		}
		if s.IsExpired(exam.Duration(), now) {
			ids = append(ids, s.ID)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// seed drops a session into the store directly, bypassing the active-attempt
// guard, for arranging histories.
func (f *fakeSessionStore) seed(s *model.ExamSession) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.sessions[s.ID] = cloneSession(s)
	return s.ID
}

type fakeExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *e
	return &c, nil
}

type fakeQuestionStore struct {
	pool      []uuid.UUID
	questions map[uuid.UUID]model.Question
}

func (f *fakeQuestionStore) ActiveIDsForBank(ctx context.Context, bankID uuid.UUID, hskLevelID int) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.pool...), nil
}

func (f *fakeQuestionStore) ByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	out := make(map[uuid.UUID]model.Question)
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

// ─── Fixture ────────────────────────────────────────────────────────

type engineFixture struct {
	svc      *ExamSessionService
	sessions *fakeSessionStore
	exams    *fakeExamStore
	exam     *model.Exam
	// correct maps question id to its correct choice id.
	correct map[uuid.UUID]uuid.UUID
	store   *fakeQuestionStore
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	q1, c1 := mcq(4)
	q2, c2 := mcq(4)
	q3, c3 := mcq(4)

	exam := testExam()
	exam.TotalQuestions = 3
	exam.RandomizeQuestions = false
	exam.ShowResultsImmediately = true

	exams := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	sessions := newFakeSessionStore(exams)
	store := &fakeQuestionStore{
		pool:      []uuid.UUID{q1.ID, q2.ID, q3.ID},
		questions: catalog(q1, q2, q3),
	}

	// Redis at an unroutable address: the engine treats the cache as best
	// effort, so every call must still succeed through the DB path.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 10 * time.Millisecond})

	svc := NewExamSessionService(sessions, exams, store, rdb, nil, zerolog.Nop())
	return &engineFixture{
		svc:      svc,
		sessions: sessions,
		exams:    exams,
		exam:     exam,
		correct:  map[uuid.UUID]uuid.UUID{q1.ID: c1, q2.ID: c2, q3.ID: c3},
		store:    store,
	}
}

func (f *engineFixture) start(t *testing.T, userID int) *model.ExamSession {
	t.Helper()
	sess, err := f.svc.StartSession(context.Background(), f.exam.ID, userID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return sess
}

// backdate rewinds a stored session's start time so its window has elapsed.
func (f *engineFixture) backdate(sessionID uuid.UUID, by time.Duration) {
	f.sessions.mu.Lock()
	defer f.sessions.mu.Unlock()
	s := f.sessions.sessions[sessionID]
	past := s.StartedAt.Add(-by)
	s.StartedAt = &past
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestStartSessionHappyPath(t *testing.T) {
	f := newEngineFixture(t)

	sess := f.start(t, 1)
	if sess.Status != model.SessionStatusInProgress {
		t.Errorf("status = %s, want in_progress", sess.Status)
	}
	if len(sess.QuestionsOrder) != 3 {
		t.Fatalf("order len = %d, want 3", len(sess.QuestionsOrder))
	}
	for i, id := range f.store.pool {
		if sess.QuestionsOrder[i] != id {
			t.Errorf("non-randomized order diverged from catalog order at %d", i)
		}
	}
	if sess.StartedAt == nil {
		t.Error("StartedAt not stamped")
	}
}

func TestStartSessionRejectsSecondAttempt(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t, 1)

	_, err := f.svc.StartSession(context.Background(), f.exam.ID, 1)
	var elig *EligibilityError
	if !errors.As(err, &elig) || elig.Reason != ReasonAttemptInProgress {
		t.Fatalf("err = %v, want eligibility error %q", err, ReasonAttemptInProgress)
	}

	// A different user is unaffected.
	if _, err := f.svc.StartSession(context.Background(), f.exam.ID, 2); err != nil {
		t.Errorf("second user blocked: %v", err)
	}
}

func TestStartSessionAttemptLimit(t *testing.T) {
	f := newEngineFixture(t)
	f.exam.MaxAttempts = 2
	for i := 0; i < 2; i++ {
		f.sessions.seed(&model.ExamSession{
			ExamID: f.exam.ID, UserID: 1,
			Status:      model.SessionStatusCompleted,
			UserAnswers: map[uuid.UUID]uuid.UUID{},
		})
	}

	_, err := f.svc.StartSession(context.Background(), f.exam.ID, 1)
	var elig *EligibilityError
	if !errors.As(err, &elig) || elig.Reason != ReasonAttemptLimit {
		t.Fatalf("err = %v, want eligibility error %q", err, ReasonAttemptLimit)
	}
}

func TestStartSessionUnknownExam(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.svc.StartSession(context.Background(), uuid.New(), 1)
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()
	q1 := sess.QuestionsOrder[0]

	// Foreign question.
	_, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, uuid.New(), uuid.New())
	if !errors.Is(err, ErrQuestionNotInSession) {
		t.Errorf("foreign question: %v, want ErrQuestionNotInSession", err)
	}

	// Choice from another question.
	otherChoice := f.correct[sess.QuestionsOrder[1]]
	_, err = f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, otherChoice)
	if !errors.Is(err, ErrChoiceMismatch) {
		t.Errorf("mismatched choice: %v, want ErrChoiceMismatch", err)
	}

	// Rejected submissions must not persist anything.
	stored, _ := f.sessions.GetByID(ctx, sess.ID)
	if len(stored.UserAnswers) != 0 {
		t.Errorf("rejected answers persisted: %v", stored.UserAnswers)
	}

	// Valid pair.
	updated, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1])
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if got := updated.UserAnswers[q1]; got != f.correct[q1] {
		t.Errorf("answer not recorded")
	}
	if updated.CurrentQuestionIndex != 0 {
		t.Errorf("answering moved the position")
	}
}

func TestSubmitAnswerOwnership(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)

	q1 := sess.QuestionsOrder[0]
	_, err := f.svc.SubmitAnswer(context.Background(), sess.ID, 2, q1, f.correct[q1])
	if !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("err = %v, want ErrNotSessionOwner", err)
	}
}

func TestNavigateNextAtLastIndexCompletes(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()

	// Answer the first two questions correctly, the last wrongly.
	for i, qid := range sess.QuestionsOrder {
		choice := f.correct[qid]
		if i == 2 {
			choice = wrongChoice(f.store.questions[qid])
		}
		if _, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, qid, choice); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	for i := 0; i < 2; i++ {
		res, err := f.svc.Navigate(ctx, sess.ID, 1, model.NavigateNext)
		if err != nil {
			t.Fatalf("Navigate %d: %v", i, err)
		}
		if res.Completed {
			t.Fatalf("Navigate %d completed early", i)
		}
	}

	res, err := f.svc.Navigate(ctx, sess.ID, 1, model.NavigateNext)
	if err != nil {
		t.Fatalf("final Navigate: %v", err)
	}
	if !res.Completed {
		t.Fatal("next at last index did not complete the session")
	}
	if res.Session.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Session.Status)
	}
	if res.Session.Percentage == nil || !approx(*res.Session.Percentage, 66.7) {
		t.Errorf("percentage = %v, want ~66.7", res.Session.Percentage)
	}
	if !res.Session.Passed {
		t.Error("2/3 should pass at threshold 60")
	}
}

func TestNavigatePreviousPreservesAnswers(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()
	q1 := sess.QuestionsOrder[0]

	if _, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1]); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Navigate(ctx, sess.ID, 1, model.NavigateNext); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Navigate(ctx, sess.ID, 1, model.NavigatePrevious)
	if err != nil {
		t.Fatalf("Navigate previous: %v", err)
	}
	if res.Session.CurrentQuestionIndex != 0 {
		t.Errorf("index = %d, want 0", res.Session.CurrentQuestionIndex)
	}
	if res.Session.UserAnswers[q1] != f.correct[q1] {
		t.Error("navigating back dropped the recorded answer")
	}

	// Previous at the first question is a silent no-op.
	res, err = f.svc.Navigate(ctx, sess.ID, 1, model.NavigatePrevious)
	if err != nil || res.Session.CurrentQuestionIndex != 0 {
		t.Errorf("previous at 0: err=%v index=%d", err, res.Session.CurrentQuestionIndex)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()
	q1 := sess.QuestionsOrder[0]

	if _, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1]); err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.Complete(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if first.Status != model.SessionStatusCompleted || first.Percentage == nil {
		t.Fatalf("first complete not scored: %+v", first)
	}

	second, err := f.svc.Complete(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if *second.Percentage != *first.Percentage || second.EarnedPoints != first.EarnedPoints {
		t.Errorf("second complete rescored: %v vs %v", *second.Percentage, *first.Percentage)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Error("second complete moved the completion timestamp")
	}
}

func TestExpiryInterceptsMutations(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()
	q1 := sess.QuestionsOrder[0]

	if _, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1]); err != nil {
		t.Fatal(err)
	}
	f.backdate(sess.ID, 2*time.Hour)

	_, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1])
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}

	stored, _ := f.sessions.GetByID(ctx, sess.ID)
	if stored.Status != model.SessionStatusExpired {
		t.Errorf("status = %s, want expired", stored.Status)
	}
	// Answers recorded before expiry still count.
	if stored.Percentage == nil || !approx(*stored.Percentage, 33.3) {
		t.Errorf("expired session scored %v, want ~33.3", stored.Percentage)
	}
}

func TestEligibilityHealsStaleSession(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	f.backdate(sess.ID, 2*time.Hour)

	// The overrun session no longer blocks: it is expired during the check
	// and only counts as a used attempt.
	verdict, err := f.svc.CheckEligibility(context.Background(), f.exam.ID, 1)
	if err != nil {
		t.Fatalf("CheckEligibility: %v", err)
	}
	if !verdict.Allowed {
		t.Errorf("denied after self-heal: %q", verdict.Reason)
	}

	stored, _ := f.sessions.GetByID(context.Background(), sess.ID)
	if stored.Status != model.SessionStatusExpired {
		t.Errorf("stale session not healed: %s", stored.Status)
	}

	// And a new attempt can start immediately.
	if _, err := f.svc.StartSession(context.Background(), f.exam.ID, 1); err != nil {
		t.Errorf("restart after heal: %v", err)
	}
}

func TestResultGating(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()

	if _, err := f.svc.Result(ctx, sess.ID, 1); !errors.Is(err, ErrResultsNotReady) {
		t.Fatalf("result of ongoing session: %v, want ErrResultsNotReady", err)
	}

	q1 := sess.QuestionsOrder[0]
	if _, err := f.svc.SubmitAnswer(ctx, sess.ID, 1, q1, f.correct[q1]); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Complete(ctx, sess.ID, 1); err != nil {
		t.Fatal(err)
	}

	result, err := f.svc.Result(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(result.Breakdown) != 3 {
		t.Errorf("breakdown lines = %d, want 3", len(result.Breakdown))
	}

	// With immediate results disabled the outcome is returned without the
	// per-question breakdown.
	f.exam.ShowResultsImmediately = false
	result, err = f.svc.Result(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("Result without breakdown: %v", err)
	}
	if result.Breakdown != nil {
		t.Error("breakdown leaked with show_results_immediately off")
	}
}

func TestResultFinalizesOverrunSession(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	f.backdate(sess.ID, 2*time.Hour)

	result, err := f.svc.Result(context.Background(), sess.ID, 1)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Session.Status != model.SessionStatusExpired {
		t.Errorf("status = %s, want expired", result.Session.Status)
	}
	if result.Session.Percentage == nil {
		t.Error("overrun session returned unscored")
	}
}

func TestExpireStaleSweep(t *testing.T) {
	f := newEngineFixture(t)
	fresh := f.start(t, 1)
	stale := f.start(t, 2)
	f.backdate(stale.ID, 2*time.Hour)

	n, err := f.svc.ExpireStale(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	ctx := context.Background()
	got, _ := f.sessions.GetByID(ctx, stale.ID)
	if got.Status != model.SessionStatusExpired {
		t.Errorf("stale session = %s, want expired", got.Status)
	}
	got, _ = f.sessions.GetByID(ctx, fresh.ID)
	if got.Status != model.SessionStatusInProgress {
		t.Errorf("fresh session = %s, want untouched", got.Status)
	}
}

func TestCurrentQuestionView(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)
	ctx := context.Background()

	view, err := f.svc.CurrentQuestion(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("CurrentQuestion: %v", err)
	}
	if view.Question == nil || view.Question.ID != sess.QuestionsOrder[0] {
		t.Fatalf("view question = %+v, want first of order", view.Question)
	}
	if view.TotalQuestions != 3 || view.Index != 0 {
		t.Errorf("view position %d/%d, want 0/3", view.Index, view.TotalQuestions)
	}
	// The learner view must never carry correct-answer flags; PaperChoice
	// has no such field, so it is enough that choices are present.
	if len(view.Question.Choices) != 4 {
		t.Errorf("choices = %d, want 4", len(view.Question.Choices))
	}
}

func TestTimeRemainingFallsBackToDB(t *testing.T) {
	f := newEngineFixture(t)
	sess := f.start(t, 1)

	remaining, err := f.svc.TimeRemaining(context.Background(), sess.ID, 1)
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	want := f.exam.Duration().Seconds()
	if remaining <= 0 || remaining > want {
		t.Errorf("remaining = %v, want in (0, %v]", remaining, want)
	}

	f.backdate(sess.ID, 2*time.Hour)
	remaining, err = f.svc.TimeRemaining(context.Background(), sess.ID, 1)
	if err != nil {
		t.Fatalf("TimeRemaining after overrun: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %v, want clamped to 0", remaining)
	}
}

// wrongChoice returns a choice of q that is not flagged correct.
func wrongChoice(q model.Question) uuid.UUID {
	for _, c := range q.Choices {
		if !c.IsCorrect {
			return c.ID
		}
	}
	return uuid.Nil
}
