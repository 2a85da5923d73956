package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/survey-backend/internal/config"
	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/model"
)

const (
	ResponseBatchTimeout = 2 * time.Second
	ResponsePollTimeout  = 1 * time.Second
	ResponseRetryDelay   = 5 * time.Second
)

// ResponseStore applies queued autosaves.
type ResponseStore interface {
	ApplyBatch(ctx context.Context, batches []*model.ResponseBatch) (upserted, deleted int64, err error)
}

// ResponseWorker consumes persist_responses_queue and writes answers to
// PostgreSQL in batches.
type ResponseWorker struct {
	store     ResponseStore
	rdb       *redis.Client
	batchSize int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewResponseWorker creates a new ResponseWorker.
func NewResponseWorker(store ResponseStore, rdb *redis.Client, batchSize int, m *metrics.Metrics, log zerolog.Logger) *ResponseWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ResponseWorker{
		store:     store,
		rdb:       rdb,
		batchSize: batchSize,
		metrics:   m,
		log:       log.With().Str("component", "response_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ResponseWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("Worker started")

	batch := make([]*model.ResponseBatch, 0, w.batchSize)
	raws := make([]string, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= ResponseBatchTimeout) {

			if !w.flush(ctx, batch, raws) {
				sleep(ctx, ResponseRetryDelay)
			}
			batch = batch[:0]
			raws = raws[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.flush(context.Background(), batch, raws)
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResponsePollTimeout, config.WorkerKey.PersistResponsesQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			b, err := decodeBatch(item[1])
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, b)
			raws = append(raws, item[1])
		}
	}
}

// flush writes a batch. On failure the raw payloads go back to the front
// of the queue in their original order and flush reports false.
func (w *ResponseWorker) flush(ctx context.Context, batch []*model.ResponseBatch, raws []string) bool {
	if len(batch) == 0 {
		return true
	}

	upserted, deleted, err := w.store.ApplyBatch(ctx, batch)
	if err != nil {
		w.log.Error().Err(err).Int("batches", len(batch)).Msg("Persist error, requeueing")
		w.requeue(ctx, raws)
		return false
	}

	w.metrics.PersistedRows.WithLabelValues("upsert").Add(float64(upserted))
	w.metrics.PersistedRows.WithLabelValues("delete").Add(float64(deleted))
	w.log.Debug().
		Int("batches", len(batch)).
		Int64("upserted", upserted).
		Int64("deleted", deleted).
		Msg("Responses persisted")
	return true
}

func (w *ResponseWorker) requeue(ctx context.Context, raws []string) {
	if len(raws) == 0 {
		return
	}
	// LPUSH prepends one by one, so push in reverse to keep queue order.
	vals := make([]any, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		vals = append(vals, raws[i])
	}
	if err := w.rdb.LPush(ctx, config.WorkerKey.PersistResponsesQueue, vals...).Err(); err != nil {
		w.log.Error().Err(err).Int("batches", len(raws)).Msg("Requeue failed, batches lost")
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *ResponseWorker) drain(ctx context.Context) {
	drained := 0
	for {
		vals, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistResponsesQueue, w.batchSize).Result()
		if err != nil || len(vals) == 0 {
			break
		}

		batch := make([]*model.ResponseBatch, 0, len(vals))
		raws := make([]string, 0, len(vals))
		for _, raw := range vals {
			b, err := decodeBatch(raw)
			if err != nil {
				w.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, b)
			raws = append(raws, raw)
		}

		if !w.flush(ctx, batch, raws) {
			break
		}
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func decodeBatch(raw string) (*model.ResponseBatch, error) {
	var b model.ResponseBatch
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, err
	}
	if b.Session.FormID == "" || b.Session.SessionID == "" {
		return nil, errors.New("batch without session")
	}
	return &b, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
