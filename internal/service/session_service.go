package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/repository"
	"github.com/stemsi/survey-backend/internal/routing"
	"github.com/stemsi/survey-backend/internal/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session belongs to another form")
)

// SessionService keeps the controllers of active sessions in memory and
// restores sessions from persistence on demand.
type SessionService struct {
	surveys   *SurveyService
	sessions  *repository.SessionRepository
	responses session.Persistence
	opts      session.Options
	idle      time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu      sync.Mutex
	active  map[string]*session.Controller
	loading map[string]*restoreLock
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	surveys *SurveyService,
	sessions *repository.SessionRepository,
	responses session.Persistence,
	opts session.Options,
	idle time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		surveys:   surveys,
		sessions:  sessions,
		responses: responses,
		opts:      opts,
		idle:      idle,
		metrics:   m,
		log:       log.With().Str("component", "session_service").Logger(),
		active:    make(map[string]*session.Controller),
		loading:   make(map[string]*restoreLock),
	}
}

// Start starts a session on a form, or resumes it when the session id is
// already known.
func (s *SessionService) Start(ctx context.Context, formID string, req *model.StartSessionRequest) (*session.Controller, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := s.lock(sessionID)
	defer unlock()

	if c, ok := s.lookup(sessionID); ok {
		if c.State().Context.FormID != formID {
			return nil, fmt.Errorf("%w: %s", ErrSessionConflict, sessionID)
		}
		return c, nil
	}

	engine, err := s.surveys.Engine(ctx, formID)
	if err != nil {
		return nil, err
	}

	row, err := s.sessions.Create(ctx, model.SessionContext{
		FormID:      formID,
		SessionID:   sessionID,
		TerritoryID: req.TerritoryID,
		StoreID:     req.StoreID,
		StoreName:   req.StoreName,
		Region:      strings.ToUpper(req.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.restore(ctx, engine, row.SessionContext)
}

// Get returns the controller of a session, restoring it from persistence
// when it is not in memory.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*session.Controller, error) {
	if c, ok := s.lookup(sessionID); ok {
		return c, nil
	}

	unlock := s.lock(sessionID)
	defer unlock()

	if c, ok := s.lookup(sessionID); ok {
		return c, nil
	}

	row, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	engine, err := s.surveys.Engine(ctx, row.FormID)
	if err != nil {
		return nil, err
	}
	return s.restore(ctx, engine, row.SessionContext)
}

func (s *SessionService) restore(ctx context.Context, engine *routing.Engine, sc model.SessionContext) (*session.Controller, error) {
	progress, err := s.responses.FetchProgress(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("fetch progress: %w", err)
	}

	state := session.NewState(engine, sc)
	answers := SnapshotFromProgress(engine.Survey(), progress)
	completed := progress.Status == model.SessionStatusCompleted
	if len(answers) > 0 || completed {
		state, _, err = session.Reduce(engine, state, session.Restore{Answers: answers, Completed: completed})
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
	}

	c := session.NewController(engine, state, s.responses, s.opts, s.metrics, s.log)

	s.mu.Lock()
	if existing, ok := s.active[sc.SessionID]; ok {
		s.mu.Unlock()
		c.Close()
		return existing, nil
	}
	s.active[sc.SessionID] = c
	s.mu.Unlock()
	s.metrics.ActiveSessions.Inc()

	s.log.Info().
		Str("form_id", sc.FormID).
		Str("session_id", sc.SessionID).
		Int("restored_answers", len(answers)).
		Bool("completed", completed).
		Msg("Session loaded")
	return c, nil
}

func (s *SessionService) lookup(sessionID string) (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[sessionID]
	return c, ok
}

// restoreLock serializes restores of one session id. holders counts the
// goroutines holding or waiting on mu; the entry is dropped at zero.
type restoreLock struct {
	mu      sync.Mutex
	holders int
}

func (s *SessionService) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.loading[sessionID]
	if !ok {
		l = &restoreLock{}
		s.loading[sessionID] = l
	}
	l.holders++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		s.mu.Lock()
		l.holders--
		if l.holders == 0 {
			delete(s.loading, sessionID)
		}
		s.mu.Unlock()
		l.mu.Unlock()
	}
}

// EvictIdle saves and closes sessions idle for at least the idle window.
// They are restored from persistence on next access.
func (s *SessionService) EvictIdle(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	var idle []*session.Controller
	for id, c := range s.active {
		if now.Sub(c.LastActive()) >= s.idle {
			idle = append(idle, c)
			delete(s.active, id)
		}
	}
	s.mu.Unlock()

	for _, c := range idle {
		sc := c.State().Context
		if err := c.Flush(ctx); err != nil {
			s.log.Warn().Err(err).Str("session_id", sc.SessionID).Msg("Failed to save evicted session")
		}
		c.Close()
		s.metrics.ActiveSessions.Dec()
		if err := s.sessions.Touch(ctx, sc.FormID, sc.SessionID); err != nil {
			s.log.Warn().Err(err).Str("session_id", sc.SessionID).Msg("Failed to record session activity")
		}
	}
	if len(idle) > 0 {
		s.log.Info().Int("count", len(idle)).Msg("Evicted idle sessions")
	}
	return len(idle)
}

// StartJanitor evicts idle sessions until ctx is done. Call in a goroutine.
func (s *SessionService) StartJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.EvictIdle(ctx, now)
		}
	}
}

// Shutdown saves and closes every active session.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	active := s.active
	s.active = make(map[string]*session.Controller)
	s.mu.Unlock()

	for id, c := range active {
		if err := c.Flush(ctx); err != nil {
			s.log.Warn().Err(err).Str("session_id", id).Msg("Failed to save session on shutdown")
		}
		c.Close()
		s.metrics.ActiveSessions.Dec()
	}
}
