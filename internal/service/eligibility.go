package service

import (
	"time"

	"github.com/hskprep/hsk-backend/internal/model"
)

// Eligibility rejection reasons, surfaced verbatim to the caller.
const (
	ReasonExamUnavailable   = "exam unavailable"
	ReasonAttemptLimit      = "attempt limit exceeded"
	ReasonAttemptInProgress = "attempt in progress"
	ReasonAlreadyPassed     = "already passed, retake disabled"
)

// Eligibility is the outcome of an attempt-start check.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanStart decides whether a user may begin a new attempt, given the exam
// configuration and their prior attempt history. Rules are evaluated in
// order; the first failure wins. Stale in-progress sessions must have been
// self-healed (expired) by the caller before this runs — CanStart itself is
// a pure function of its inputs.
func CanStart(exam *model.Exam, history []model.ExamSession, now time.Time) Eligibility {
	if !exam.IsAvailable(now) {
		return Eligibility{Reason: ReasonExamUnavailable}
	}

	terminal := 0
	for i := range history {
		if history[i].Status.Terminal() {
			terminal++
		}
	}
	if terminal >= exam.MaxAttempts {
		return Eligibility{Reason: ReasonAttemptLimit}
	}

	for i := range history {
		if history[i].Status == model.SessionStatusInProgress {
			return Eligibility{Reason: ReasonAttemptInProgress}
		}
	}

	if !exam.AllowRetake {
		for i := range history {
			if history[i].Status == model.SessionStatusCompleted && history[i].Passed {
				return Eligibility{Reason: ReasonAlreadyPassed}
			}
		}
	}

	return Eligibility{Allowed: true}
}
