package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/survey-backend/internal/response"
	"github.com/stemsi/survey-backend/internal/service"
	"github.com/stemsi/survey-backend/internal/session"
	ws "github.com/stemsi/survey-backend/internal/websocket"
)

const outboxSize = 16

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session views over a WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Accepts answer and navigation actions and pushes a view after every change.
func (h *WSHandler) SessionStream(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" || len(sessionID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctrl, err := h.sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		failSession(c, session.View{}, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", sessionID).Logger()
	wsLog.Info().Msg("Respondent connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Only the writer goroutine touches the connection for writing.
	outbox := make(chan any, outboxSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbox {
			if err := ws.WriteTyped(conn, msg); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				cancel()
				_ = conn.Close()
				return
			}
		}
	}()

	views, unsubscribe := ctrl.Subscribe()
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-views:
				if !ok {
					// The session was evicted; the client reconnects to restore it.
					cancel()
					_ = conn.Close()
					return
				}
				send(ctx, outbox, ws.ViewResponse{Event: ws.EventView, View: v})
			}
		}
	}()

	send(ctx, outbox, ws.ViewResponse{Event: ws.EventView, View: ctrl.View()})

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.handle(ctx, ctrl, outbox, &msg, wsLog)
	}

	cancel()
	unsubscribe()
	<-forwardDone
	close(outbox)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, ctrl *session.Controller, outbox chan<- any, msg *ws.RequestPayload, log zerolog.Logger) {
	var (
		view session.View
		err  error
		// Navigation publishes its own view through the subscription.
		published = true
	)

	switch msg.Action {
	case ws.ActionPing:
		send(ctx, outbox, ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionAnswer:
		if msg.QuestionID == "" {
			send(ctx, outbox, ws.ErrorResponse{Event: ws.EventError, Error: "question_id is required"})
			return
		}
		view, err = ctrl.Answer(msg.SectionID, msg.QuestionID, msg.Value, msg.Flush)
		published = false
	case ws.ActionNext:
		view, err = ctrl.Next(ctx)
	case ws.ActionBack:
		view, err = ctrl.Back(ctx)
	case ws.ActionJump:
		view, err = ctrl.Jump(ctx, msg.SectionID)
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		send(ctx, outbox, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		return
	}

	if err != nil {
		_, code := errorStatus(err)
		var fields map[string]string
		if errors.Is(err, session.ErrValidation) {
			fields = view.Errors
		} else if code == response.ErrInternal {
			log.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
		}
		send(ctx, outbox, ws.ErrorResponse{Event: ws.EventError, Error: response.GetMessage(code), Fields: fields})
		return
	}
	if !published {
		send(ctx, outbox, ws.ViewResponse{Event: ws.EventView, View: view})
	}
}

func send(ctx context.Context, outbox chan<- any, msg any) {
	select {
	case outbox <- msg:
	case <-ctx.Done():
	}
}
