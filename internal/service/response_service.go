package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/survey-backend/internal/config"
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/repository"
)

// snapshotTTL keeps a session's saved answers in Redis long enough to cover
// the persistence worker's retries.
const snapshotTTL = 24 * time.Hour

// savedAtField marks a snapshot hash as present even when every answer
// was removed.
const savedAtField = "_saved_at"

// ResponseService persists answers. Autosaves are written to a per-session
// Redis hash and queued for the response worker, so a save returns as soon
// as Redis acknowledges it.
type ResponseService struct {
	sessions  *repository.SessionRepository
	responses *repository.ResponseRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewResponseService creates a new ResponseService.
func NewResponseService(sessions *repository.SessionRepository, responses *repository.ResponseRepository, rdb *redis.Client, log zerolog.Logger) *ResponseService {
	return &ResponseService{
		sessions:  sessions,
		responses: responses,
		rdb:       rdb,
		log:       log.With().Str("component", "response_service").Logger(),
	}
}

// SubmitAnswers records an autosave.
func (s *ResponseService) SubmitAnswers(ctx context.Context, sc model.SessionContext, submitted []model.SubmittedQuestion, removed []model.RemovedQuestionRef) error {
	batch, err := json.Marshal(model.ResponseBatch{
		Session:   sc,
		Submitted: submitted,
		Removed:   removed,
		QueuedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	fields := make([]any, 0, 2*len(submitted)+2)
	fields = append(fields, savedAtField, time.Now().UTC().Format(time.RFC3339))
	for _, q := range submitted {
		raw, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal answer %s/%s: %w", q.SectionID, q.QuestionNo, err)
		}
		fields = append(fields, model.FQID(q.SectionID, q.QuestionNo), raw)
	}
	gone := make([]string, 0, len(removed))
	for _, r := range removed {
		gone = append(gone, model.FQID(r.SectionID, r.QuestionNo))
	}

	key := config.CacheKey.SessionSnapshotKey(sc.FormID, sc.SessionID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(gone) > 0 {
			pipe.HDel(ctx, key, gone...)
		}
		pipe.HSet(ctx, key, fields...)
		pipe.Expire(ctx, key, snapshotTTL)
		pipe.RPush(ctx, config.WorkerKey.PersistResponsesQueue, batch)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue answers: %w", err)
	}
	return nil
}

// FetchProgress returns the saved answers of a session. Answers still
// waiting in the worker queue are read from the Redis snapshot.
func (s *ResponseService) FetchProgress(ctx context.Context, sc model.SessionContext) (*model.Progress, error) {
	progress := &model.Progress{Status: model.SessionStatusInProgress}

	sess, err := s.sessions.Get(ctx, sc.FormID, sc.SessionID)
	switch {
	case err == nil:
		progress.Status = sess.Status
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("get session: %w", err)
	}

	key := config.CacheKey.SessionSnapshotKey(sc.FormID, sc.SessionID)
	hash, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sc.SessionID).Msg("Snapshot cache unavailable, reading database")
	}
	if len(hash) > 0 {
		progress.Data = rowsFromSnapshot(hash, s.log)
	} else {
		rows, err := s.responses.ListBySession(ctx, sc.FormID, sc.SessionID)
		if err != nil {
			return nil, fmt.Errorf("list responses: %w", err)
		}
		progress.Data = rows
	}
	progress.RowCount = len(progress.Data)
	return progress, nil
}

// CompleteSession marks the session completed.
func (s *ResponseService) CompleteSession(ctx context.Context, sc model.SessionContext) error {
	if err := s.sessions.Complete(ctx, sc.FormID, sc.SessionID); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func rowsFromSnapshot(hash map[string]string, log zerolog.Logger) []model.ProgressRow {
	rows := make([]model.ProgressRow, 0, len(hash))
	for field, raw := range hash {
		if field == savedAtField {
			continue
		}
		var q model.SubmittedQuestion
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			log.Warn().Err(err).Str("field", field).Msg("Skipping unreadable snapshot entry")
			continue
		}
		rows = append(rows, model.ProgressRow{
			SectionID:  q.SectionID,
			Section:    q.Section,
			QuestionNo: q.QuestionNo,
			AnswerText: q.AnswerText,
			Answer:     q.Answer,
			AnsweredAt: parseClientTimestamp(q.Timestamp),
		})
	}
	slices.SortFunc(rows, func(a, b model.ProgressRow) int {
		if c := strings.Compare(a.SectionID, b.SectionID); c != 0 {
			return c
		}
		return strings.Compare(a.QuestionNo, b.QuestionNo)
	})
	return rows
}

// parseClientTimestamp reads the timestamps written by session.Timestamp.
func parseClientTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	ist := time.FixedZone("IST", 5*60*60+30*60)
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, ist); err == nil {
		return t
	}
	return time.Time{}
}

// SnapshotFromProgress rebuilds an answer snapshot from saved rows, keeping
// only questions that exist in survey.
func SnapshotFromProgress(survey *model.Survey, p *model.Progress) model.Snapshot {
	snap := model.Snapshot{}
	if p == nil {
		return snap
	}
	for _, row := range p.Data {
		if _, ok := survey.Question(row.SectionID, row.QuestionNo); !ok {
			continue
		}
		if row.Answer.IsAnswered() {
			snap[model.FQID(row.SectionID, row.QuestionNo)] = row.Answer
		}
	}
	return snap
}
