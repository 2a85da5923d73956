package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/survey-backend/internal/model"
)

// SessionRepository handles survey session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Get retrieves a session. It returns pgx.ErrNoRows when none exists.
func (r *SessionRepository) Get(ctx context.Context, formID, sessionID string) (*model.SurveySession, error) {
	s := &model.SurveySession{}
	err := r.pool.QueryRow(ctx,
		`SELECT form_id, session_id, territory_id, store_id, store_name, region,
		        status, started_at, updated_at, completed_at
		 FROM survey_sessions
		 WHERE form_id = $1 AND session_id = $2`, formID, sessionID,
	).Scan(&s.FormID, &s.SessionID, &s.TerritoryID, &s.StoreID, &s.StoreName, &s.Region,
		&s.Status, &s.StartedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindBySessionID retrieves the most recently active session with the
// given id across forms.
func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.SurveySession, error) {
	s := &model.SurveySession{}
	err := r.pool.QueryRow(ctx,
		`SELECT form_id, session_id, territory_id, store_id, store_name, region,
		        status, started_at, updated_at, completed_at
		 FROM survey_sessions
		 WHERE session_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`, sessionID,
	).Scan(&s.FormID, &s.SessionID, &s.TerritoryID, &s.StoreID, &s.StoreName, &s.Region,
		&s.Status, &s.StartedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a session, keeping the existing row when the session is
// resumed.
func (r *SessionRepository) Create(ctx context.Context, sc model.SessionContext) (*model.SurveySession, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO survey_sessions (form_id, session_id, territory_id, store_id, store_name, region, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (form_id, session_id) DO NOTHING`,
		sc.FormID, sc.SessionID, sc.TerritoryID, sc.StoreID, sc.StoreName, sc.Region,
		model.SessionStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, sc.FormID, sc.SessionID)
}

// Complete marks a session as completed.
func (r *SessionRepository) Complete(ctx context.Context, formID, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE survey_sessions
		 SET status = $1, completed_at = NOW(), updated_at = NOW()
		 WHERE form_id = $2 AND session_id = $3`,
		model.SessionStatusCompleted, formID, sessionID)
	return err
}

// Touch records activity on a session.
func (r *SessionRepository) Touch(ctx context.Context, formID, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE survey_sessions SET updated_at = NOW()
		 WHERE form_id = $1 AND session_id = $2`,
		formID, sessionID)
	return err
}
