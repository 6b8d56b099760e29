package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "not_started"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusExpired    SessionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired
}

// State-machine errors. Handlers map these to distinct response codes so the
// caller can redirect to the results view instead of showing a form error.
var (
	// ErrSessionNotStarted is returned when a mutating call arrives before
	// the session has been started.
	ErrSessionNotStarted = errors.New("session not started")
	// ErrSessionFinished is returned for any transition attempted on a
	// terminal session. The call is side-effect-free.
	ErrSessionFinished = errors.New("session already finished")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// NavigationDirection selects the movement of Navigate calls.
type NavigationDirection string

const (
	NavigateNext     NavigationDirection = "next"
	NavigatePrevious NavigationDirection = "previous"
)

// SubmitAnswerRequest is the payload for recording an answer.
type SubmitAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	ChoiceID   uuid.UUID `json:"choice_id" binding:"required"`
}

// NavigateRequest is the payload for moving through the question sequence.
type NavigateRequest struct {
	Direction NavigationDirection `json:"direction" binding:"required,oneof=next previous"`
}

// ExamSession is one user's attempt at an exam. All mutation goes through the
// transition methods below; persistence layers must not flip Status directly.
type ExamSession struct {
	ID     uuid.UUID     `json:"id"`
	ExamID uuid.UUID     `json:"exam_id"`
	UserID int           `json:"user_id"`
	Status SessionStatus `json:"status"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// QuestionsOrder is fixed at Start and immutable afterwards.
	QuestionsOrder       []uuid.UUID             `json:"questions_order"`
	CurrentQuestionIndex int                     `json:"current_question_index"`
	UserAnswers          map[uuid.UUID]uuid.UUID `json:"user_answers"`

	TotalPoints  int      `json:"total_points"`
	EarnedPoints int      `json:"earned_points"`
	Percentage   *float64 `json:"percentage,omitempty"`
	Passed       bool     `json:"passed"`

	CreatedAt time.Time `json:"created_at"`
}

// NewExamSession creates a not-started attempt for the given exam and user.
func NewExamSession(examID uuid.UUID, userID int) *ExamSession {
	return &ExamSession{
		ExamID:      examID,
		UserID:      userID,
		Status:      SessionStatusNotStarted,
		UserAnswers: make(map[uuid.UUID]uuid.UUID),
	}
}

// Start transitions not_started → in_progress, stamping the start time and
// fixing the question order if not yet populated.
func (s *ExamSession) Start(now time.Time, order []uuid.UUID) error {
	switch s.Status {
	case SessionStatusNotStarted:
	case SessionStatusInProgress:
		return ErrAlreadyStarted
	default:
		return ErrSessionFinished
	}

	s.Status = SessionStatusInProgress
	t := now
	s.StartedAt = &t
	if len(s.QuestionsOrder) == 0 {
		s.QuestionsOrder = order
	}
	if s.UserAnswers == nil {
		s.UserAnswers = make(map[uuid.UUID]uuid.UUID)
	}
	return nil
}

// RecordAnswer upserts the selected choice for a question. Re-submitting the
// same pair is a no-op; a different choice overwrites. Position is untouched.
func (s *ExamSession) RecordAnswer(questionID, choiceID uuid.UUID) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	s.UserAnswers[questionID] = choiceID
	return nil
}

// Advance moves to the next question. It reports false when already at the
// last index, which is the caller's completion trigger.
func (s *ExamSession) Advance() (moved bool, err error) {
	if err := s.requireInProgress(); err != nil {
		return false, err
	}
	if !s.HasNext() {
		return false, nil
	}
	s.CurrentQuestionIndex++
	return true, nil
}

// Retreat moves to the previous question; at index 0 it is a silent no-op.
func (s *ExamSession) Retreat() error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	if s.HasPrevious() {
		s.CurrentQuestionIndex--
	}
	return nil
}

// Complete transitions in_progress → completed. The caller runs scoring
// synchronously afterwards; a second call is a no-op failure.
func (s *ExamSession) Complete(now time.Time) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	s.Status = SessionStatusCompleted
	t := now
	s.CompletedAt = &t
	return nil
}

// Expire transitions in_progress → expired. Scoring is identical to Complete;
// the two transitions only record how the attempt ended.
func (s *ExamSession) Expire(now time.Time) error {
	if err := s.requireInProgress(); err != nil {
		return err
	}
	s.Status = SessionStatusExpired
	t := now
	s.CompletedAt = &t
	return nil
}

// IsExpired reports whether the session's time window has elapsed. Pure query;
// the lifecycle controller evaluates it before honoring any mutating call.
func (s *ExamSession) IsExpired(duration time.Duration, now time.Time) bool {
	if s.StartedAt == nil || duration <= 0 {
		return false
	}
	return now.After(s.StartedAt.Add(duration))
}

// EndTime returns the instant the session's window closes, or nil before start.
func (s *ExamSession) EndTime(duration time.Duration) *time.Time {
	if s.StartedAt == nil {
		return nil
	}
	t := s.StartedAt.Add(duration)
	return &t
}

// CurrentQuestionID returns the question at the current index, or false when
// the sequence is exhausted or unpopulated.
func (s *ExamSession) CurrentQuestionID() (uuid.UUID, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionsOrder) {
		return uuid.Nil, false
	}
	return s.QuestionsOrder[s.CurrentQuestionIndex], true
}

// Answer returns the recorded choice for a question, if any.
func (s *ExamSession) Answer(questionID uuid.UUID) (uuid.UUID, bool) {
	c, ok := s.UserAnswers[questionID]
	return c, ok
}

// HasNext reports whether the current index is not the last.
func (s *ExamSession) HasNext() bool {
	return s.CurrentQuestionIndex < len(s.QuestionsOrder)-1
}

// HasPrevious reports whether the current index is not the first.
func (s *ExamSession) HasPrevious() bool {
	return s.CurrentQuestionIndex > 0
}

// ProgressPercentage tracks position in the sequence, not answered count.
func (s *ExamSession) ProgressPercentage() float64 {
	if len(s.QuestionsOrder) == 0 {
		return 0
	}
	return float64(s.CurrentQuestionIndex) / float64(len(s.QuestionsOrder)) * 100
}

func (s *ExamSession) requireInProgress() error {
	switch s.Status {
	case SessionStatusInProgress:
		return nil
	case SessionStatusNotStarted:
		return ErrSessionNotStarted
	default:
		return ErrSessionFinished
	}
}
