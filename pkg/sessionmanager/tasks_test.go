package sessionmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskLifecycle(t *testing.T) {
	task := newTask("task-1")
	assert.Equal(t, TaskPending, task.Snapshot().Status)

	task.Progress(0.1, "allocating session")
	snap := task.Snapshot()
	assert.Equal(t, TaskRunning, snap.Status)
	assert.InDelta(t, 0.1, snap.Progress, 1e-9)
	assert.Equal(t, "allocating session", snap.Message)

	task.Complete("sess-1", map[string]int{"nodes": 3})
	snap = task.Snapshot()
	assert.Equal(t, TaskCompleted, snap.Status)
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.InDelta(t, 1.0, snap.Progress, 1e-9)
}

func TestTaskFail(t *testing.T) {
	task := newTask("task-2")
	task.Fail("bootstrap failed")
	snap := task.Snapshot()
	assert.Equal(t, TaskFailed, snap.Status)
	assert.Equal(t, "bootstrap failed", snap.Error)
}
