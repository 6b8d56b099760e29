package service

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/model"
)

// mcq builds a one-point question with one correct and n-1 wrong choices,
// returning the question and the id of its correct choice.
func mcq(choices int) (model.Question, uuid.UUID) {
	q := model.Question{ID: uuid.New(), Points: 1, IsActive: true}
	correct := uuid.Nil
	for i := 0; i < choices; i++ {
		c := model.Choice{ID: uuid.New(), QuestionID: q.ID, Ord: i, IsCorrect: i == 0}
		if c.IsCorrect {
			correct = c.ID
		}
		q.Choices = append(q.Choices, c)
	}
	return q, correct
}

func catalog(qs ...model.Question) map[uuid.UUID]model.Question {
	m := make(map[uuid.UUID]model.Question, len(qs))
	for _, q := range qs {
		m[q.ID] = q
	}
	return m
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 0.1
}

func TestScoreTwoOfThreePasses(t *testing.T) {
	q1, c1 := mcq(4)
	q2, c2 := mcq(4)
	q3, _ := mcq(4)

	order := []uuid.UUID{q1.ID, q2.ID, q3.ID}
	answers := map[uuid.UUID]uuid.UUID{
		q1.ID: c1,
		q2.ID: c2,
		q3.ID: q3.Choices[1].ID, // wrong
	}

	result := Score(order, answers, catalog(q1, q2, q3), 60)
	if result.TotalPoints != 3 || result.EarnedPoints != 2 {
		t.Fatalf("points = %d/%d, want 2/3", result.EarnedPoints, result.TotalPoints)
	}
	if !approx(result.Percentage, 66.7) {
		t.Errorf("percentage = %v, want ~66.7", result.Percentage)
	}
	if !result.Passed {
		t.Error("66.7%% should pass at a 60 threshold")
	}
}

func TestScoreOneOfThreeFails(t *testing.T) {
	q1, c1 := mcq(4)
	q2, _ := mcq(4)
	q3, _ := mcq(4)

	order := []uuid.UUID{q1.ID, q2.ID, q3.ID}
	answers := map[uuid.UUID]uuid.UUID{
		q1.ID: c1,
		q2.ID: q2.Choices[2].ID,
		q3.ID: q3.Choices[3].ID,
	}

	result := Score(order, answers, catalog(q1, q2, q3), 60)
	if !approx(result.Percentage, 33.3) {
		t.Errorf("percentage = %v, want ~33.3", result.Percentage)
	}
	if result.Passed {
		t.Error("33.3%% should fail at a 60 threshold")
	}
}

func TestScoreUnansweredCountTowardTotal(t *testing.T) {
	q1, c1 := mcq(4)
	q2, _ := mcq(4)

	order := []uuid.UUID{q1.ID, q2.ID}
	answers := map[uuid.UUID]uuid.UUID{q1.ID: c1}

	result := Score(order, answers, catalog(q1, q2), 60)
	if result.TotalPoints != 2 {
		t.Errorf("total = %d, want 2 with one unanswered", result.TotalPoints)
	}
	if result.EarnedPoints != 1 {
		t.Errorf("earned = %d, want 1", result.EarnedPoints)
	}
	if len(result.Breakdown) != 2 {
		t.Fatalf("breakdown lines = %d, want 2", len(result.Breakdown))
	}
	if result.Breakdown[1].Answered {
		t.Error("unanswered question marked answered in breakdown")
	}
}

func TestScoreSkipsMissingQuestions(t *testing.T) {
	// A question deleted from the catalog after the session started is
	// excluded from both totals, not counted as wrong.
	q1, c1 := mcq(4)
	ghost := uuid.New()

	order := []uuid.UUID{q1.ID, ghost}
	answers := map[uuid.UUID]uuid.UUID{q1.ID: c1, ghost: uuid.New()}

	result := Score(order, answers, catalog(q1), 60)
	if result.TotalPoints != 1 || result.EarnedPoints != 1 {
		t.Errorf("points = %d/%d, want 1/1", result.EarnedPoints, result.TotalPoints)
	}
	if result.Percentage != 100 || !result.Passed {
		t.Errorf("drifted catalog punished the learner: %v%%", result.Percentage)
	}
	if len(result.Breakdown) != 1 {
		t.Errorf("breakdown lines = %d, want 1", len(result.Breakdown))
	}
}

func TestScoreEmptyTotal(t *testing.T) {
	result := Score([]uuid.UUID{uuid.New()}, nil, map[uuid.UUID]model.Question{}, 60)
	if result.Percentage != 0 {
		t.Errorf("percentage = %v, want 0 with no scorable questions", result.Percentage)
	}
	if result.Passed {
		t.Error("empty total should never pass")
	}
}

func TestScorePointWeights(t *testing.T) {
	q1, c1 := mcq(4)
	q2, _ := mcq(4)
	q2.Points = 3

	order := []uuid.UUID{q1.ID, q2.ID}
	answers := map[uuid.UUID]uuid.UUID{q1.ID: c1}

	result := Score(order, answers, catalog(q1, q2), 60)
	if result.TotalPoints != 4 || result.EarnedPoints != 1 {
		t.Errorf("points = %d/%d, want 1/4", result.EarnedPoints, result.TotalPoints)
	}
	if result.Passed {
		t.Error("25%% passed at a 60 threshold")
	}
}

func TestScoreFirstCorrectChoiceWins(t *testing.T) {
	// Catalog contract is one correct choice; when violated the first in
	// display order is authoritative.
	q, _ := mcq(4)
	q.Choices[2].IsCorrect = true

	order := []uuid.UUID{q.ID}
	answers := map[uuid.UUID]uuid.UUID{q.ID: q.Choices[2].ID}

	result := Score(order, answers, catalog(q), 60)
	if result.EarnedPoints != 0 {
		t.Errorf("second flagged choice scored; first in display order should win")
	}

	answers[q.ID] = q.Choices[0].ID
	result = Score(order, answers, catalog(q), 60)
	if result.EarnedPoints != 1 {
		t.Errorf("first flagged choice did not score")
	}
}

func TestScoreIsPure(t *testing.T) {
	q1, c1 := mcq(4)
	q2, _ := mcq(4)
	order := []uuid.UUID{q1.ID, q2.ID}
	answers := map[uuid.UUID]uuid.UUID{q1.ID: c1}
	qs := catalog(q1, q2)

	a := Score(order, answers, qs, 60)
	b := Score(order, answers, qs, 60)
	if a.TotalPoints != b.TotalPoints || a.EarnedPoints != b.EarnedPoints ||
		a.Percentage != b.Percentage || a.Passed != b.Passed {
		t.Errorf("identical inputs scored differently: %+v vs %+v", a, b)
	}
}
