package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/response"
	"github.com/stemsi/survey-backend/internal/service"
	"github.com/stemsi/survey-backend/internal/session"
	"github.com/stemsi/survey-backend/internal/validator"
)

// SessionHandler exposes respondent sessions over REST.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/forms/:form_id/sessions
// Starts a session, or resumes it with its saved answers when session_id is known.
func (h *SessionHandler) StartSession(c *gin.Context) {
	formID, ok := formIDParam(c)
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.sessionService.Start(c.Request.Context(), formID, &req)
	if err != nil {
		failSession(c, session.View{}, err)
		return
	}
	response.Success(c, http.StatusCreated, ctrl.View())
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, ctrl.View())
}

// Answer godoc
// PUT /api/v1/sessions/:session_id/answers?flush=true
// Applies one answer. Visibility is recomputed after the per-type delay
// unless flush is set.
func (h *SessionHandler) Answer(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	flush, _ := strconv.ParseBool(c.DefaultQuery("flush", "false"))

	view, err := ctrl.Answer(req.SectionID, req.QuestionID, req.Value, flush)
	if err != nil {
		failSession(c, view, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Next godoc
// POST /api/v1/sessions/:session_id/next
func (h *SessionHandler) Next(c *gin.Context) {
	h.navigate(c, (*session.Controller).Next)
}

// Back godoc
// POST /api/v1/sessions/:session_id/back
func (h *SessionHandler) Back(c *gin.Context) {
	h.navigate(c, (*session.Controller).Back)
}

// Reset godoc
// POST /api/v1/sessions/:session_id/reset
func (h *SessionHandler) Reset(c *gin.Context) {
	h.navigate(c, (*session.Controller).Reset)
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	h.navigate(c, (*session.Controller).Submit)
}

// Jump godoc
// POST /api/v1/sessions/:session_id/jump
func (h *SessionHandler) Jump(c *gin.Context) {
	var req model.JumpRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.navigate(c, func(ctrl *session.Controller, ctx context.Context) (session.View, error) {
		return ctrl.Jump(ctx, req.SectionID)
	})
}

func (h *SessionHandler) navigate(c *gin.Context, move func(*session.Controller, context.Context) (session.View, error)) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	view, err := move(ctrl, c.Request.Context())
	if err != nil {
		failSession(c, view, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *SessionHandler) controller(c *gin.Context) (*session.Controller, bool) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" || len(sessionID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		failSession(c, session.View{}, err)
		return nil, false
	}
	return ctrl, true
}
