// Package workqueue runs background batches (ontology extraction) with
// bounded concurrency and retry on transient model errors.
package workqueue

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of background work.
type Task interface {
	ID() string
	Name() string
	Execute(ctx context.Context) error
}

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskSnapshot is an immutable view of one task's state.
type TaskSnapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	RetryCount int        `json:"retry_count"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// taskState tracks one task's mutable state under its own lock.
type taskState struct {
	mu         sync.Mutex
	task       Task
	status     TaskStatus
	retryCount int
	err        error
	startedAt  *time.Time
	finishedAt *time.Time
}

func newTaskState(task Task) *taskState {
	return &taskState{task: task, status: TaskStatusPending}
}

func (ts *taskState) getStatus() TaskStatus {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.status
}

func (ts *taskState) setStatus(status TaskStatus) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status

	now := time.Now()
	switch status {
	case TaskStatusRunning:
		ts.startedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		ts.finishedAt = &now
	}
}

func (ts *taskState) setError(err error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.err = err
}

func (ts *taskState) getError() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.err
}

func (ts *taskState) incrementRetry() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.retryCount++
	return ts.retryCount
}

func (ts *taskState) snapshot() TaskSnapshot {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	snap := TaskSnapshot{
		ID:         ts.task.ID(),
		Name:       ts.task.Name(),
		Status:     ts.status,
		RetryCount: ts.retryCount,
		StartedAt:  ts.startedAt,
		FinishedAt: ts.finishedAt,
	}
	if ts.err != nil {
		snap.Error = ts.err.Error()
	}
	return snap
}
