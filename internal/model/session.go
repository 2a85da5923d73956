package model

import (
	"time"
)

// SessionStatus enumerates survey session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// SessionContext identifies a respondent session for the persistence layer.
type SessionContext struct {
	FormID      string `json:"form_id"`
	SessionID   string `json:"app_session_id"`
	TerritoryID string `json:"territory_id"`
	StoreID     string `json:"store_id,omitempty"`
	StoreName   string `json:"store_name,omitempty"`
	Region      string `json:"region,omitempty"`
}

// SurveySession is a stored respondent session.
type SurveySession struct {
	SessionContext
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// SubmittedQuestion is one answer entry of an autosave batch.
type SubmittedQuestion struct {
	SectionID  string `json:"section_id"`
	Section    string `json:"section"`
	QuestionNo string `json:"question_no"`
	Question   string `json:"question"`
	AnswerText string `json:"answer_text"`
	Answer     Answer `json:"answer"`
	Timestamp  string `json:"timestamp"`
}

// RemovedQuestionRef identifies an answer the persistence layer must delete.
type RemovedQuestionRef struct {
	SectionID  string `json:"section_id"`
	Section    string `json:"section"`
	QuestionNo string `json:"question_no"`
}

// Progress is the persisted state of a session as returned by FetchProgress.
type Progress struct {
	Status   SessionStatus `json:"status"`
	RowCount int           `json:"row_count"`
	Data     []ProgressRow `json:"data"`
}

// ProgressRow is one persisted answer.
type ProgressRow struct {
	SectionID  string    `json:"section_id"`
	Section    string    `json:"section"`
	QuestionNo string    `json:"question_no"`
	AnswerText string    `json:"answer_text"`
	Answer     Answer    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// ResponseBatch is one autosave as queued for the persistence worker.
type ResponseBatch struct {
	Session   SessionContext       `json:"session"`
	Submitted []SubmittedQuestion  `json:"submitted"`
	Removed   []RemovedQuestionRef `json:"removed"`
	QueuedAt  time.Time            `json:"queued_at"`
}

// ─── Requests ───────────────────────────────────────────────────────

// StartSessionRequest is the payload for starting or resuming a session.
type StartSessionRequest struct {
	SessionID   string `json:"session_id" binding:"omitempty,max=64"`
	TerritoryID string `json:"territory_id" binding:"required,max=64"`
	StoreID     string `json:"store_id" binding:"omitempty,max=64"`
	StoreName   string `json:"store_name" binding:"omitempty,max=255"`
	Region      string `json:"region" binding:"omitempty,len=2,alpha"`
}

// AnswerRequest sets the answer of one question. SectionID defaults to the
// session's current section.
type AnswerRequest struct {
	SectionID  string `json:"section_id" binding:"omitempty,max=128"`
	QuestionID string `json:"question_id" binding:"required,max=128"`
	Value      Answer `json:"value"`
}

// JumpRequest moves the session to a section listed in the navigation.
type JumpRequest struct {
	SectionID string `json:"section_id" binding:"required,max=128"`
}
