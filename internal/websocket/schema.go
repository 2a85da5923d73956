package websocket

import (
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionNext   Action = "next"
	ActionBack   Action = "back"
	ActionJump   Action = "jump"
	ActionPing   Action = "ping"
)

// RequestPayload carries every client action; fields unused by an action
// are ignored.
type RequestPayload struct {
	Action     Action       `json:"action"`
	SectionID  string       `json:"section_id,omitempty"`
	QuestionID string       `json:"question_id,omitempty"`
	Value      model.Answer `json:"value"`
	// Flush skips the debounce window for this answer.
	Flush bool `json:"flush,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventView  Event = "view"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// ViewResponse pushes the session view.
type ViewResponse struct {
	Event Event        `json:"event"`
	View  session.View `json:"view"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
