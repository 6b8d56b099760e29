package model

import (
	"time"

	"github.com/google/uuid"
)

// Choice is one multiple-choice option of a question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"is_correct,omitempty"`
	Ord        int       `json:"ord"`
}

// Question is a single HSK multiple-choice question with its ordered choices.
type Question struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	HSKLevelID int       `json:"hsk_level_id"`
	Points     int       `json:"points"`
	IsActive   bool      `json:"is_active"`
	Choices    []Choice  `json:"choices"`
	CreatedAt  time.Time `json:"created_at"`
}

// CorrectChoiceID returns the identifier of the question's correct choice.
// The catalog contract is exactly one correct choice per question; when the
// catalog violates it, the first choice flagged correct (in display order)
// wins. Returns false if no choice is flagged correct.
func (q *Question) CorrectChoiceID() (uuid.UUID, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c.ID, true
		}
	}
	return uuid.Nil, false
}

// HasChoice reports whether the given choice belongs to this question.
func (q *Question) HasChoice(choiceID uuid.UUID) bool {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}

// Paper returns the learner-facing view of the question, with correct-answer
// flags stripped. Anything serialized toward a live session must go through
// this.
func (q *Question) Paper() PaperQuestion {
	p := PaperQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Points:  q.Points,
		Choices: make([]PaperChoice, 0, len(q.Choices)),
	}
	for _, c := range q.Choices {
		p.Choices = append(p.Choices, PaperChoice{ID: c.ID, Text: c.Text, Ord: c.Ord})
	}
	return p
}

// QuestionBank groups questions for exam composition at one HSK level.
type QuestionBank struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	HSKLevelID int       `json:"hsk_level_id"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
