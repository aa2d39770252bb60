// Package dispatch schedules background work on a Redis list and runs it
// in a worker loop.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arbitrium/internal/pacing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Kind string

const (
	KindReconcile     Kind = "reconcile"
	KindRefreshPrices Kind = "refresh_prices"
	KindRefreshAll    Kind = "refresh_all"
	KindCSMoneyPull   Kind = "csmoney_pull"
)

// ErrUnknownJob is returned for a job whose kind has no handler.
var ErrUnknownJob = errors.New("unknown job kind")

type Job struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	InventoryID uint      `json:"inventory_id,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// NewJob returns a job with a fresh id.
func NewJob(kind Kind, inventoryID uint) Job {
	return Job{ID: uuid.NewString(), Kind: kind, InventoryID: inventoryID}
}

// Queue is a FIFO of jobs: LPUSH on enqueue, BRPOP on dequeue.
type Queue struct {
	rdb *redis.Client
	key string
}

func NewQueue(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

// Enqueue stores job, filling in its id and enqueue time when unset, and
// returns the stored job.
func (q *Queue) Enqueue(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return Job{}, fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}
	return job, nil
}

// Next blocks up to timeout for a job. It returns nil, nil when the wait
// timed out with nothing queued.
func (q *Queue) Next(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res is [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Handler runs one job.
type Handler func(ctx context.Context, job Job) error

// Worker pulls jobs off a Queue and routes them by kind.
type Worker struct {
	queue    *Queue
	handlers map[Kind]Handler
	poll     time.Duration
	log      *zap.Logger
}

func NewWorker(q *Queue, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		queue:    q,
		handlers: make(map[Kind]Handler),
		poll:     5 * time.Second,
		log:      log.Named("worker"),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (w *Worker) Handle(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Process runs a single job through its handler and publishes the
// outcome on the queue's events channel.
func (w *Worker) Process(ctx context.Context, job Job) error {
	h, ok := w.handlers[job.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind)
	}
	start := time.Now()
	err := h(ctx, job)
	if perr := w.queue.Publish(ctx, newEvent(job, err)); perr != nil {
		w.log.Warn("publish job event failed", zap.String("job_id", job.ID), zap.Error(perr))
	}
	w.log.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Uint("inventory_id", job.InventoryID),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	return err
}

// Run consumes jobs until ctx is cancelled. Handler failures are logged
// and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", zap.String("queue", w.queue.key))
	for {
		job, err := w.queue.Next(ctx, w.poll)
		if ctx.Err() != nil {
			w.log.Info("worker stopped")
			return nil
		}
		if err != nil {
			w.log.Error("dequeue failed", zap.Error(err))
			if pacing.Sleep(ctx, time.Second) != nil {
				return nil
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, *job); err != nil {
			w.log.Warn("job failed", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)), zap.Error(err))
		}
	}
}
