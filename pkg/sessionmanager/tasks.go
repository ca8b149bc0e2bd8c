package sessionmanager

import (
	"sync"
	"time"
)

// TaskStatus enumerates AsyncInitTask lifecycle states (spec §3 AsyncInitTask).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskSnapshot is an immutable copy of a Task's state, safe to hand to
// callers without exposing the mutable original (spec §9 "Background task
// table updated by workers").
type TaskSnapshot struct {
	TaskID    string
	Status    TaskStatus
	Progress  float64
	Message   string
	SessionID string
	Result    any
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is a typed handle for one async bootstrap (spec §4.12
// initialize_async, §3 AsyncInitTask). Its only publicly-mutable face is
// Progress/Complete/Fail; reads go through Snapshot, an immutable copy.
type Task struct {
	mu   sync.Mutex
	snap TaskSnapshot
}

func newTask(taskID string) *Task {
	now := time.Now()
	return &Task{
		snap: TaskSnapshot{
			TaskID:    taskID,
			Status:    TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Progress records a milestone: a fraction in [0,1] and a human-readable
// message (spec §4.12: "updates progress in init_tasks at 0.1 / 0.2 / 0.6 /
// 0.8 / 1.0 with textual milestones").
func (t *Task) Progress(fraction float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = TaskRunning
	t.snap.Progress = fraction
	t.snap.Message = message
	t.snap.UpdatedAt = time.Now()
}

// Complete marks the task done with sessionID and result.
func (t *Task) Complete(sessionID string, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = TaskCompleted
	t.snap.Progress = 1.0
	t.snap.SessionID = sessionID
	t.snap.Result = result
	t.snap.UpdatedAt = time.Now()
}

// Fail marks the task failed with the given error text.
func (t *Task) Fail(errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = TaskFailed
	t.snap.Error = errText
	t.snap.UpdatedAt = time.Now()
}

// Snapshot returns an immutable copy of the task's current state.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}
