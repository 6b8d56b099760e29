package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/middleware"
	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/response"
	"github.com/hskprep/hsk-backend/internal/service"
	"github.com/hskprep/hsk-backend/internal/validator"
)

// SessionHandler handles the attempt lifecycle endpoints.
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Start godoc
// POST /api/v1/exams/:exam_id/sessions
// Begins a new attempt. The eligibility rules are re-evaluated here under
// the concurrency guard, so a stale advisory check cannot slip through.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.StartSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		var elig *service.EligibilityError
		if errors.As(err, &elig) {
			response.Fail(c, http.StatusConflict, eligibilityCode(elig.Reason))
			return
		}
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// CurrentQuestion godoc
// GET /api/v1/sessions/:session_id/question
// Returns the question at the session's current position. A null question
// with has_next=false means the sequence is exhausted and the learner should
// be offered completion.
func (h *SessionHandler) CurrentQuestion(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	view, err := h.sessionService.CurrentQuestion(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SubmitAnswer godoc
// POST /api/v1/sessions/:session_id/answer
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.SubmitAnswer(c.Request.Context(), sessionID, claims.UserID, req.QuestionID, req.ChoiceID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"answered": len(session.UserAnswers),
		"progress": session.ProgressPercentage(),
	})
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moving next from the last question finalizes the attempt; the response
// carries completed=true and the scored session.
func (h *SessionHandler) Navigate(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Navigate(c.Request.Context(), sessionID, claims.UserID, req.Direction)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Complete godoc
// POST /api/v1/sessions/:session_id/complete
// Explicit finalization. Safe to call twice; the second call returns the
// stored outcome without rescoring.
func (h *SessionHandler) Complete(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Complete(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// Result godoc
// GET /api/v1/sessions/:session_id/result
func (h *SessionHandler) Result(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Result(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// TimeRemaining godoc
// GET /api/v1/sessions/:session_id/time
// Returns the seconds left on the clock. Frontends poll this as a fallback
// when the WebSocket clock stream is unavailable.
func (h *SessionHandler) TimeRemaining(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	remaining, err := h.sessionService.TimeRemaining(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"remaining_seconds": remaining})
}

// History godoc
// GET /api/v1/sessions
func (h *SessionHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}

// eligibilityCode maps a rejection reason to its response code.
func eligibilityCode(reason string) response.ErrCode {
	switch reason {
	case service.ReasonExamUnavailable:
		return response.ErrExamNotAvailable
	case service.ReasonAttemptLimit:
		return response.ErrAttemptLimit
	case service.ReasonAttemptInProgress:
		return response.ErrAttemptInProgress
	case service.ReasonAlreadyPassed:
		return response.ErrAlreadyPassed
	default:
		return response.ErrForbidden
	}
}

// failSession maps lifecycle errors to HTTP responses. Every state-machine
// rejection gets its own code so frontends can redirect appropriately.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
	case errors.Is(err, service.ErrSessionExpired):
		response.Fail(c, http.StatusConflict, response.ErrSessionExpired)
	case errors.Is(err, model.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionFinished)
	case errors.Is(err, model.ErrSessionNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotStarted)
	case errors.Is(err, service.ErrQuestionNotInSession):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInSession)
	case errors.Is(err, service.ErrChoiceMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrChoiceMismatch)
	case errors.Is(err, service.ErrInvalidDirection):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidDirection)
	case errors.Is(err, service.ErrResultsNotReady):
		response.Fail(c, http.StatusConflict, response.ErrResultsNotReady)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
