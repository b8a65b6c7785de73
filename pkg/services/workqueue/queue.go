package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/llm"
)

// RetryConfig tunes retry behavior for transient task failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig retries three times on a 2s/4s/8s schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Queue executes tasks with bounded concurrency. Transient failures (as
// judged by llm.IsRetryable) are retried with exponential backoff; other
// failures are terminal for the task but not the batch.
type Queue struct {
	mu        sync.Mutex
	tasks     []*taskState
	cancelled bool

	maxConcurrent int
	running       int
	retryConfig   RetryConfig

	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxConcurrent bounds parallel task execution.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxConcurrent = n
		}
	}
}

// WithRetryConfig overrides the retry schedule.
func WithRetryConfig(config RetryConfig) Option {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// New creates a queue. The default concurrency is 1 (serialized), which is
// what schema-ordered extraction batches want.
func New(logger *zap.Logger, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxConcurrent: 1,
		retryConfig:   DefaultRetryConfig(),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.Named("workqueue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a task and starts it when a slot is free.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		q.logger.Warn("queue cancelled, ignoring enqueue",
			zap.String("task_id", task.ID()))
		return
	}

	q.resetDoneLocked()
	q.tasks = append(q.tasks, newTaskState(task))
	q.logger.Debug("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()))

	q.tryStartLocked()
}

func (q *Queue) tryStartLocked() {
	if q.cancelled {
		return
	}
	for _, ts := range q.tasks {
		if q.running >= q.maxConcurrent {
			return
		}
		if ts.getStatus() != TaskStatusPending {
			continue
		}
		ts.setStatus(TaskStatusRunning)
		q.running++
		q.wg.Add(1)
		go q.runTask(ts)
	}
}

func (q *Queue) runTask(ts *taskState) {
	defer q.wg.Done()

	var lastErr error
	for attempt := 0; attempt <= q.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-q.ctx.Done():
				q.finishTask(ts, q.ctx.Err())
				return
			case <-time.After(q.backoff(attempt)):
			}
		}

		err := ts.task.Execute(q.ctx)
		if err == nil {
			q.finishTask(ts, nil)
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || !llm.IsRetryable(err) {
			break
		}

		ts.incrementRetry()
		q.logger.Warn("retryable task failure",
			zap.String("task_id", ts.task.ID()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	q.finishTask(ts, lastErr)
}

// backoff is exponential with a cap and ±10% jitter.
func (q *Queue) backoff(attempt int) time.Duration {
	d := float64(q.retryConfig.InitialBackoff) *
		math.Pow(q.retryConfig.BackoffFactor, float64(attempt-1))
	if d > float64(q.retryConfig.MaxBackoff) {
		d = float64(q.retryConfig.MaxBackoff)
	}
	jitter := d * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}

func (q *Queue) finishTask(ts *taskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running--

	switch {
	case err == nil:
		ts.setStatus(TaskStatusCompleted)
	case errors.Is(err, context.Canceled):
		ts.setStatus(TaskStatusCancelled)
	default:
		ts.setStatus(TaskStatusFailed)
		ts.setError(err)
		q.logger.Error("task failed",
			zap.String("task_id", ts.task.ID()),
			zap.String("task_name", ts.task.Name()),
			zap.Error(err))
	}

	if q.allDoneLocked() {
		q.closeDoneLocked()
		return
	}
	q.tryStartLocked()
}

func (q *Queue) allDoneLocked() bool {
	for _, ts := range q.tasks {
		status := ts.getStatus()
		if status == TaskStatusPending || status == TaskStatusRunning {
			return false
		}
	}
	return true
}

func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

// Wait blocks until every task reaches a terminal state or ctx expires.
// It returns the first task failure, if any.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ts := range q.tasks {
			if ts.getStatus() == TaskStatusFailed {
				return ts.getError()
			}
		}
		return nil
	case <-ctx.Done():
		q.Cancel()
		return ctx.Err()
	}
}

// Cancel stops accepting work and signals running tasks to stop.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		return
	}
	q.cancelled = true
	q.cancel()

	for _, ts := range q.tasks {
		if ts.getStatus() == TaskStatusPending {
			ts.setStatus(TaskStatusCancelled)
		}
	}
	if q.allDoneLocked() {
		q.closeDoneLocked()
	}
}

// Snapshots returns an immutable view of every task.
func (q *Queue) Snapshots() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshots := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		snapshots[i] = ts.snapshot()
	}
	return snapshots
}

// Progress summarizes queue state.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Progress reports current counts per status.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{Total: len(q.tasks)}
	for _, ts := range q.tasks {
		switch ts.getStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		case TaskStatusCompleted:
			p.Completed++
		case TaskStatusFailed:
			p.Failed++
		case TaskStatusCancelled:
			p.Cancelled++
		}
	}
	return p
}
