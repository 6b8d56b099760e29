package service

import (
	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/model"
)

// QuestionScore is the per-question line of a scoring breakdown.
type QuestionScore struct {
	QuestionID       uuid.UUID  `json:"question_id"`
	Points           int        `json:"points"`
	Answered         bool       `json:"answered"`
	SelectedChoiceID *uuid.UUID `json:"selected_choice_id,omitempty"`
	CorrectChoiceID  *uuid.UUID `json:"correct_choice_id,omitempty"`
	Correct          bool       `json:"correct"`
	EarnedPoints     int        `json:"earned_points"`
}

// ScoreResult is the computed outcome of an attempt.
type ScoreResult struct {
	TotalPoints  int             `json:"total_points"`
	EarnedPoints int             `json:"earned_points"`
	Percentage   float64         `json:"percentage"`
	Passed       bool            `json:"passed"`
	Breakdown    []QuestionScore `json:"breakdown"`
}

// Score computes the result of an attempt. It is a pure function of the
// question order, the recorded answers, and the catalog snapshot: identical
// inputs always produce identical output, so it is safe to recompute.
//
// Unanswered questions earn nothing but still count toward the total. A
// question id that no longer resolves in the catalog is skipped entirely —
// excluded from both totals — because the catalog is an independently
// mutable collaborator and scoring is best effort against drift. A question
// whose catalog row flags no correct choice can never be earned; one with
// several flags resolves to the first in display order.
func Score(order []uuid.UUID, answers map[uuid.UUID]uuid.UUID, questions map[uuid.UUID]model.Question, passingScore float64) ScoreResult {
	result := ScoreResult{Breakdown: make([]QuestionScore, 0, len(order))}

	for _, qid := range order {
		q, ok := questions[qid]
		if !ok {
			continue
		}

		line := QuestionScore{QuestionID: qid, Points: q.Points}
		if correctID, ok := q.CorrectChoiceID(); ok {
			id := correctID
			line.CorrectChoiceID = &id
		}

		result.TotalPoints += q.Points

		if selected, ok := answers[qid]; ok {
			id := selected
			line.Answered = true
			line.SelectedChoiceID = &id
			if line.CorrectChoiceID != nil && selected == *line.CorrectChoiceID {
				line.Correct = true
				line.EarnedPoints = q.Points
				result.EarnedPoints += q.Points
			}
		}

		result.Breakdown = append(result.Breakdown, line)
	}

	if result.TotalPoints > 0 {
		result.Percentage = float64(result.EarnedPoints) / float64(result.TotalPoints) * 100
		result.Passed = result.Percentage >= passingScore
	}
	return result
}
