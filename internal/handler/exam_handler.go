package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hskprep/hsk-backend/internal/middleware"
	"github.com/hskprep/hsk-backend/internal/model"
	"github.com/hskprep/hsk-backend/internal/response"
	"github.com/hskprep/hsk-backend/internal/service"
	"github.com/hskprep/hsk-backend/internal/validator"
)

// ExamHandler handles the exam catalog: learner listing and detail, and the
// admin management surface.
type ExamHandler struct {
	catalogService *service.CatalogService
	sessionService *service.ExamSessionService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	catalogService *service.CatalogService,
	sessionService *service.ExamSessionService,
) *ExamHandler {
	return &ExamHandler{
		catalogService: catalogService,
		sessionService: sessionService,
	}
}

// List godoc
// GET /api/v1/exams?hsk_level=3
// Returns exams currently open for attempts.
func (h *ExamHandler) List(c *gin.Context) {
	var hskLevel *int
	if raw := c.Query("hsk_level"); raw != "" {
		lvl, err := strconv.Atoi(raw)
		if err != nil || lvl < 1 || lvl > 6 {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		hskLevel = &lvl
	}

	exams, err := h.catalogService.ListAvailable(c.Request.Context(), hskLevel)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Get godoc
// GET /api/v1/exams/:exam_id
func (h *ExamHandler) Get(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.catalogService.GetByID(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Eligibility godoc
// GET /api/v1/exams/:exam_id/eligibility
// Tells the learner whether they can start an attempt right now, and why not
// otherwise. The start endpoint re-checks; this is advisory for the UI.
func (h *ExamHandler) Eligibility(c *gin.Context) {
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

	verdict, err := h.sessionService.CheckEligibility(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, verdict)
}

// Paper godoc
// GET /api/v1/exams/:exam_id/paper
// Returns the cached learner-facing paper. Correct-answer flags never appear
// here regardless of cache state.
func (h *ExamHandler) Paper(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.catalogService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusNotFound, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// Create godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) Create(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.catalogService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// Update godoc
// PATCH /api/v1/admin/exams/:exam_id
func (h *ExamHandler) Update(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.catalogService.Update(c.Request.Context(), examID, &req)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Stats godoc
// GET /api/v1/admin/exams/:exam_id/stats
// Aggregate attempt statistics: counts per terminal status, average score,
// pass rate, and a score distribution histogram.
func (h *ExamHandler) Stats(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	stats, err := h.catalogService.Stats(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// RefreshCache godoc
// POST /api/v1/admin/exams/:exam_id/refresh-cache
// Re-warms the paper cache after question bank edits.
func (h *ExamHandler) RefreshCache(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.catalogService.RefreshCache(c.Request.Context(), examID); err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"refreshed": true})
}
