package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/survey-backend/internal/config"
	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/repository"
	"github.com/stemsi/survey-backend/internal/routing"
)

var (
	ErrSurveyNotFound = errors.New("survey not found")
	ErrInvalidSurvey  = errors.New("invalid survey definition")
)

// SurveyService stores survey definitions and hands out routing engines.
type SurveyService struct {
	repo    *repository.SurveyRepository
	rdb     *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.RWMutex
	engines map[string]*versionedEngine
	flight  singleflight.Group
}

type versionedEngine struct {
	version int
	engine  *routing.Engine
}

// cachedSurvey is the Redis representation of a definition.
type cachedSurvey struct {
	Version    int             `json:"version"`
	Definition json.RawMessage `json:"definition"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewSurveyService creates a new SurveyService.
func NewSurveyService(repo *repository.SurveyRepository, rdb *redis.Client, ttl time.Duration, m *metrics.Metrics, log zerolog.Logger) *SurveyService {
	return &SurveyService{
		repo:    repo,
		rdb:     rdb,
		ttl:     ttl,
		metrics: m,
		log:     log.With().Str("component", "survey_service").Logger(),
		engines: make(map[string]*versionedEngine),
	}
}

// Put validates and stores a definition. Lint warnings are returned with
// the stored record; lint errors reject the definition.
func (s *SurveyService) Put(ctx context.Context, formID string, definition json.RawMessage) (*model.SurveyRecord, []routing.Issue, error) {
	survey, err := model.ParseSurvey(definition)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSurvey, err)
	}
	issues := routing.Lint(survey)
	if routing.HasErrors(issues) {
		return nil, issues, ErrInvalidSurvey
	}
	engine, err := routing.NewEngine(survey, s.log)
	if err != nil {
		return nil, issues, fmt.Errorf("%w: %v", ErrInvalidSurvey, err)
	}

	rec, err := s.repo.Upsert(ctx, formID, definition)
	if err != nil {
		return nil, issues, fmt.Errorf("store survey: %w", err)
	}
	rec.Survey = survey

	if err := s.rdb.Del(ctx, config.CacheKey.SurveyDefinitionKey(formID)).Err(); err != nil {
		s.log.Warn().Err(err).Str("form_id", formID).Msg("Failed to invalidate cached definition")
	}
	s.remember(formID, rec.Version, engine)

	s.log.Info().
		Str("form_id", formID).
		Int("version", rec.Version).
		Int("sections", len(survey.Sections)).
		Int("questions", survey.QuestionCount()).
		Msg("Survey stored")

	return rec, issues, nil
}

// Get returns the stored definition of a form, from Redis when cached.
func (s *SurveyService) Get(ctx context.Context, formID string) (*model.SurveyRecord, error) {
	key := config.CacheKey.SurveyDefinitionKey(formID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c cachedSurvey
		if uerr := json.Unmarshal(data, &c); uerr == nil {
			if survey, perr := model.ParseSurvey(c.Definition); perr == nil {
				s.metrics.SurveyCacheHits.Inc()
				return &model.SurveyRecord{
					FormID:     formID,
					Version:    c.Version,
					Survey:     survey,
					Definition: c.Definition,
					CreatedAt:  c.CreatedAt,
					UpdatedAt:  c.UpdatedAt,
				}, nil
			}
		}
		s.log.Warn().Str("form_id", formID).Msg("Discarding unreadable cached definition")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("form_id", formID).Msg("Definition cache unavailable")
	}

	s.metrics.SurveyCacheMisses.Inc()
	rec, err := s.repo.GetByFormID(ctx, formID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSurveyNotFound, formID)
		}
		return nil, fmt.Errorf("get survey: %w", err)
	}

	payload, _ := json.Marshal(cachedSurvey{
		Version:    rec.Version,
		Definition: rec.Definition,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("form_id", formID).Msg("Failed to cache definition")
	}
	return rec, nil
}

// Engine returns the routing engine of the current version of a form.
// Concurrent calls for one form share a single load.
func (s *SurveyService) Engine(ctx context.Context, formID string) (*routing.Engine, error) {
	v, err, _ := s.flight.Do(formID, func() (any, error) {
		return s.loadEngine(ctx, formID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*routing.Engine), nil
}

func (s *SurveyService) loadEngine(ctx context.Context, formID string) (*routing.Engine, error) {
	rec, err := s.Get(ctx, formID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.engines[formID]
	s.mu.RUnlock()
	if ok && cached.version == rec.Version {
		return cached.engine, nil
	}

	engine, err := routing.NewEngine(rec.Survey, s.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSurvey, err)
	}
	s.remember(formID, rec.Version, engine)
	return engine, nil
}

// Lint reports routing problems of a stored form.
func (s *SurveyService) Lint(ctx context.Context, formID string) ([]routing.Issue, error) {
	rec, err := s.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	return routing.Lint(rec.Survey), nil
}

func (s *SurveyService) remember(formID string, version int, engine *routing.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.engines[formID]; ok && cur.version > version {
		return
	}
	s.engines[formID] = &versionedEngine{version: version, engine: engine}
}

// Prewarm loads every stored definition into Redis and builds its engine so
// the first sessions after startup do not hit PostgreSQL.
func (s *SurveyService) Prewarm(ctx context.Context) error {
	formIDs, err := s.repo.ListFormIDs(ctx)
	if err != nil {
		return fmt.Errorf("list forms: %w", err)
	}

	loaded := 0
	for _, formID := range formIDs {
		if _, err := s.Engine(ctx, formID); err != nil {
			s.log.Warn().Err(err).Str("form_id", formID).Msg("Failed to prewarm survey")
			continue
		}
		loaded++
	}
	s.log.Info().Int("forms", loaded).Msg("Survey caches prewarmed")
	return nil
}
