package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/model"
)

func testExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "HSK 3 Practice",
		HSKLevelID:      3,
		QuestionBankID:  uuid.New(),
		DurationMinutes: 30,
		TotalQuestions:  10,
		PassingScore:    60,
		IsActive:        true,
		StartDate:       time.Now().Add(-time.Hour),
		AllowRetake:     true,
		MaxAttempts:     3,
	}
}

func sessionWithStatus(status model.SessionStatus, passed bool) model.ExamSession {
	return model.ExamSession{
		ID:     uuid.New(),
		Status: status,
		Passed: passed,
	}
}

func TestCanStartNoHistory(t *testing.T) {
	got := CanStart(testExam(), nil, time.Now())
	if !got.Allowed {
		t.Errorf("fresh user denied: %q", got.Reason)
	}
}

func TestCanStartAvailabilityWindow(t *testing.T) {
	now := time.Now()

	inactive := testExam()
	inactive.IsActive = false

	future := testExam()
	future.StartDate = now.Add(time.Hour)

	pastEnd := testExam()
	end := now.Add(-time.Minute)
	pastEnd.EndDate = &end

	for name, exam := range map[string]*model.Exam{
		"inactive": inactive, "before start": future, "after end": pastEnd,
	} {
		got := CanStart(exam, nil, now)
		if got.Allowed || got.Reason != ReasonExamUnavailable {
			t.Errorf("%s: got %+v, want unavailable", name, got)
		}
	}

	open := testExam()
	end = now.Add(time.Hour)
	open.EndDate = &end
	if got := CanStart(open, nil, now); !got.Allowed {
		t.Errorf("inside window denied: %q", got.Reason)
	}
}

func TestCanStartAttemptLimit(t *testing.T) {
	exam := testExam()
	exam.MaxAttempts = 2

	history := []model.ExamSession{
		sessionWithStatus(model.SessionStatusCompleted, false),
		sessionWithStatus(model.SessionStatusExpired, false),
	}
	got := CanStart(exam, history, time.Now())
	if got.Allowed || got.Reason != ReasonAttemptLimit {
		t.Errorf("at limit: got %+v, want attempt limit", got)
	}

	// Only terminal sessions count toward the limit.
	history = []model.ExamSession{
		sessionWithStatus(model.SessionStatusCompleted, false),
	}
	if got := CanStart(exam, history, time.Now()); !got.Allowed {
		t.Errorf("one of two attempts used, denied: %q", got.Reason)
	}
}

func TestCanStartConcurrentSession(t *testing.T) {
	exam := testExam()
	history := []model.ExamSession{
		sessionWithStatus(model.SessionStatusInProgress, false),
	}
	got := CanStart(exam, history, time.Now())
	if got.Allowed || got.Reason != ReasonAttemptInProgress {
		t.Errorf("got %+v, want attempt in progress", got)
	}
}

func TestCanStartRetakeAfterPass(t *testing.T) {
	exam := testExam()
	exam.AllowRetake = false
	history := []model.ExamSession{
		sessionWithStatus(model.SessionStatusCompleted, true),
	}

	got := CanStart(exam, history, time.Now())
	if got.Allowed || got.Reason != ReasonAlreadyPassed {
		t.Errorf("got %+v, want already passed", got)
	}

	// A failed attempt does not block, even with retakes off.
	history = []model.ExamSession{
		sessionWithStatus(model.SessionStatusCompleted, false),
	}
	if got := CanStart(exam, history, time.Now()); !got.Allowed {
		t.Errorf("failed attempt blocked restart: %q", got.Reason)
	}

	// With retakes on, a pass does not block either.
	exam.AllowRetake = true
	history = []model.ExamSession{
		sessionWithStatus(model.SessionStatusCompleted, true),
	}
	if got := CanStart(exam, history, time.Now()); !got.Allowed {
		t.Errorf("retake after pass denied with AllowRetake: %q", got.Reason)
	}
}

func TestCanStartRuleOrder(t *testing.T) {
	// Attempt limit is reported ahead of the in-progress rule when both hold.
	exam := testExam()
	exam.MaxAttempts = 1
	history := []model.ExamSession{
		sessionWithStatus(model.SessionStatusExpired, false),
		sessionWithStatus(model.SessionStatusInProgress, false),
	}
	got := CanStart(exam, history, time.Now())
	if got.Reason != ReasonAttemptLimit {
		t.Errorf("reason = %q, want attempt limit first", got.Reason)
	}
}
