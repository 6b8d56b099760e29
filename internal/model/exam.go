package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is an HSK practice exam definition. The session engine treats exams as
// read-only catalog data; only admin handlers mutate them.
type Exam struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	HSKLevelID     int        `json:"hsk_level_id"`
	QuestionBankID uuid.UUID  `json:"question_bank_id"`

	DurationMinutes int     `json:"duration_minutes"`
	TotalQuestions  int     `json:"total_questions"`
	PassingScore    float64 `json:"passing_score"`

	IsActive  bool       `json:"is_active"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	RandomizeQuestions      bool `json:"randomize_questions"`
	ShowResultsImmediately  bool `json:"show_results_immediately"`
	AllowRetake             bool `json:"allow_retake"`
	MaxAttempts             int  `json:"max_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAvailable reports whether the exam can be started at the given instant:
// active and inside its availability window.
func (e *Exam) IsAvailable(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if now.Before(e.StartDate) {
		return false
	}
	if e.EndDate != nil && now.After(*e.EndDate) {
		return false
	}
	return true
}

// Duration returns the exam's time limit as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// CreateExamRequest is the admin payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=200"`
	Description     string     `json:"description" binding:"omitempty,max=2000"`
	HSKLevelID      int        `json:"hsk_level_id" binding:"required,min=1,max=6"`
	QuestionBankID  uuid.UUID  `json:"question_bank_id" binding:"required"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	TotalQuestions  int        `json:"total_questions" binding:"required,min=1"`
	PassingScore    float64    `json:"passing_score" binding:"min=0,max=100"`
	StartDate       *time.Time `json:"start_date" binding:"omitempty"`
	EndDate         *time.Time `json:"end_date" binding:"omitempty,gtfield=StartDate"`

	RandomizeQuestions     *bool `json:"randomize_questions" binding:"omitempty"`
	ShowResultsImmediately *bool `json:"show_results_immediately" binding:"omitempty"`
	AllowRetake            *bool `json:"allow_retake" binding:"omitempty"`
	MaxAttempts            int   `json:"max_attempts" binding:"omitempty,min=1"`
}

// ToExam converts the request into a new Exam, filling in catalog defaults
// for omitted fields.
func (r *CreateExamRequest) ToExam() *Exam {
	e := &Exam{
		Title:           r.Title,
		Description:     r.Description,
		HSKLevelID:      r.HSKLevelID,
		QuestionBankID:  r.QuestionBankID,
		DurationMinutes: r.DurationMinutes,
		TotalQuestions:  r.TotalQuestions,
		PassingScore:    r.PassingScore,
		IsActive:        true,
		StartDate:       time.Now(),

		RandomizeQuestions:     true,
		ShowResultsImmediately: true,
		AllowRetake:            true,
		MaxAttempts:            3,
	}
	if r.PassingScore == 0 {
		e.PassingScore = 60
	}
	if r.StartDate != nil {
		e.StartDate = *r.StartDate
	}
	e.EndDate = r.EndDate
	if r.RandomizeQuestions != nil {
		e.RandomizeQuestions = *r.RandomizeQuestions
	}
	if r.ShowResultsImmediately != nil {
		e.ShowResultsImmediately = *r.ShowResultsImmediately
	}
	if r.AllowRetake != nil {
		e.AllowRetake = *r.AllowRetake
	}
	if r.MaxAttempts > 0 {
		e.MaxAttempts = r.MaxAttempts
	}
	return e
}

// UpdateExamRequest is the admin payload for updating an exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=200"`
	Description     *string    `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	TotalQuestions  int        `json:"total_questions" binding:"omitempty,min=1"`
	PassingScore    *float64   `json:"passing_score" binding:"omitempty,min=0,max=100"`
	StartDate       *time.Time `json:"start_date" binding:"omitempty"`
	EndDate         *time.Time `json:"end_date" binding:"omitempty"`

	RandomizeQuestions     *bool `json:"randomize_questions" binding:"omitempty"`
	ShowResultsImmediately *bool `json:"show_results_immediately" binding:"omitempty"`
	AllowRetake            *bool `json:"allow_retake" binding:"omitempty"`
	MaxAttempts            int   `json:"max_attempts" binding:"omitempty,min=1"`
	IsActive               *bool `json:"is_active" binding:"omitempty"`
}

// Apply overlays the set fields of the request onto the exam. Zero-valued
// and nil fields are left untouched.
func (r *UpdateExamRequest) Apply(e *Exam) {
	if r.Title != "" {
		e.Title = r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.DurationMinutes > 0 {
		e.DurationMinutes = r.DurationMinutes
	}
	if r.TotalQuestions > 0 {
		e.TotalQuestions = r.TotalQuestions
	}
	if r.PassingScore != nil {
		e.PassingScore = *r.PassingScore
	}
	if r.StartDate != nil {
		e.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		e.EndDate = r.EndDate
	}
	if r.RandomizeQuestions != nil {
		e.RandomizeQuestions = *r.RandomizeQuestions
	}
	if r.ShowResultsImmediately != nil {
		e.ShowResultsImmediately = *r.ShowResultsImmediately
	}
	if r.AllowRetake != nil {
		e.AllowRetake = *r.AllowRetake
	}
	if r.MaxAttempts > 0 {
		e.MaxAttempts = r.MaxAttempts
	}
	if r.IsActive != nil {
		e.IsActive = *r.IsActive
	}
}

// ExamPaper is the learner-facing view of an exam's questions, cached in
// Redis without correct-answer flags.
type ExamPaper struct {
	ExamID    uuid.UUID       `json:"exam_id"`
	Title     string          `json:"title"`
	Duration  int             `json:"duration_minutes"`
	Questions []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question stripped of correct-answer information.
type PaperQuestion struct {
	ID      uuid.UUID     `json:"id"`
	Text    string        `json:"text"`
	Points  int           `json:"points"`
	Choices []PaperChoice `json:"choices"`
}

// PaperChoice is a choice stripped of its is_correct flag.
type PaperChoice struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Ord  int       `json:"ord"`
}
