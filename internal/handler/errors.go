package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/survey-backend/internal/response"
	"github.com/stemsi/survey-backend/internal/routing"
	"github.com/stemsi/survey-backend/internal/service"
	"github.com/stemsi/survey-backend/internal/session"
)

// errorStatus maps domain errors to an HTTP status and error code.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusUnprocessableEntity, response.ErrSectionIncomplete
	case errors.Is(err, session.ErrCompleted):
		return http.StatusConflict, response.ErrSessionCompleted
	case errors.Is(err, session.ErrSectionNotVisible):
		return http.StatusConflict, response.ErrSectionNotAvailable
	case errors.Is(err, routing.ErrQuestionNotFound), errors.Is(err, routing.ErrSectionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrSurveyNotFound):
		return http.StatusNotFound, response.ErrSurveyNotFound
	case errors.Is(err, service.ErrSessionConflict):
		return http.StatusConflict, response.ErrSessionConflict
	case errors.Is(err, service.ErrInvalidSurvey):
		return http.StatusUnprocessableEntity, response.ErrInvalidSurvey
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failSession writes err. Validation failures still carry the session view
// so the client can highlight the offending questions.
func failSession(c *gin.Context, view session.View, err error) {
	status, code := errorStatus(err)
	if errors.Is(err, session.ErrValidation) {
		response.FailWithData(c, status, code, view, map[string]string(view.Errors))
		return
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
