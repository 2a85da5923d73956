package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/survey-backend/internal/model"
)

// SurveyRepository handles survey definition data access.
type SurveyRepository struct {
	pool *pgxpool.Pool
}

// NewSurveyRepository creates a new SurveyRepository.
func NewSurveyRepository(pool *pgxpool.Pool) *SurveyRepository {
	return &SurveyRepository{pool: pool}
}

// GetByFormID retrieves the definition of a form. It returns pgx.ErrNoRows
// when the form is unknown.
func (r *SurveyRepository) GetByFormID(ctx context.Context, formID string) (*model.SurveyRecord, error) {
	rec := &model.SurveyRecord{FormID: formID}
	err := r.pool.QueryRow(ctx,
		`SELECT version, definition, created_at, updated_at
		 FROM surveys
		 WHERE form_id = $1`, formID,
	).Scan(&rec.Version, &rec.Definition, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Survey, err = model.ParseSurvey(rec.Definition)
	if err != nil {
		return nil, fmt.Errorf("parse stored survey %s: %w", formID, err)
	}
	return rec, nil
}

// Upsert stores a definition, bumping its version when the form exists.
func (r *SurveyRepository) Upsert(ctx context.Context, formID string, definition json.RawMessage) (*model.SurveyRecord, error) {
	rec := &model.SurveyRecord{FormID: formID, Definition: definition}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO surveys (form_id, definition)
		 VALUES ($1, $2)
		 ON CONFLICT (form_id) DO UPDATE
		 SET definition = EXCLUDED.definition,
		     version = surveys.version + 1,
		     updated_at = NOW()
		 RETURNING version, created_at, updated_at`,
		formID, definition,
	).Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFormIDs returns every stored form id.
func (r *SurveyRepository) ListFormIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT form_id FROM surveys ORDER BY form_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
