package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/survey-backend/internal/response"
	"github.com/stemsi/survey-backend/internal/routing"
	"github.com/stemsi/survey-backend/internal/service"
)

const maxDefinitionBytes = 4 << 20

// SurveyHandler manages survey definitions.
type SurveyHandler struct {
	surveyService *service.SurveyService
}

// NewSurveyHandler creates a new SurveyHandler.
func NewSurveyHandler(surveyService *service.SurveyService) *SurveyHandler {
	return &SurveyHandler{surveyService: surveyService}
}

// PutSurvey godoc
// PUT /api/v1/forms/:form_id
// Stores a survey definition. Definitions with lint errors are rejected.
func (h *SurveyHandler) PutSurvey(c *gin.Context) {
	formID, ok := formIDParam(c)
	if !ok {
		return
	}

	var definition json.RawMessage
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDefinitionBytes)
	if err := c.ShouldBindJSON(&definition); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, map[string]string{"detail": err.Error()})
		return
	}

	rec, issues, err := h.surveyService.Put(c.Request.Context(), formID, definition)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSurvey) {
			response.FailWithData(c, http.StatusUnprocessableEntity, response.ErrInvalidSurvey, gin.H{"issues": issuesOrEmpty(issues)}, map[string]string{"detail": err.Error()})
			return
		}
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"survey": rec,
		"issues": issuesOrEmpty(issues),
	})
}

// GetSurvey godoc
// GET /api/v1/forms/:form_id
func (h *SurveyHandler) GetSurvey(c *gin.Context) {
	formID, ok := formIDParam(c)
	if !ok {
		return
	}

	rec, err := h.surveyService.Get(c.Request.Context(), formID)
	if err != nil {
		status, code := errorStatus(err)
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

// LintSurvey godoc
// GET /api/v1/forms/:form_id/lint
// Reports routing problems of a stored definition.
func (h *SurveyHandler) LintSurvey(c *gin.Context) {
	formID, ok := formIDParam(c)
	if !ok {
		return
	}

	issues, err := h.surveyService.Lint(c.Request.Context(), formID)
	if err != nil {
		status, code := errorStatus(err)
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"issues": issuesOrEmpty(issues),
		"valid":  !routing.HasErrors(issues),
	})
}

func formIDParam(c *gin.Context) (string, bool) {
	formID := strings.TrimSpace(c.Param("form_id"))
	if formID == "" || len(formID) > 128 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return formID, true
}

func issuesOrEmpty(issues []routing.Issue) []routing.Issue {
	if issues == nil {
		return []routing.Issue{}
	}
	return issues
}
