package model

import "time"

// TaskType names a bulk background job.
type TaskType string

const (
	TaskSyncCells               TaskType = "sync_cells"
	TaskAutoApproveElements     TaskType = "auto_approve_elements"
	TaskBuildCellSuggestionsAll TaskType = "build_cell_suggestions_all"
	TaskComputeCollisionsAll    TaskType = "compute_collisions_all"
	TaskComputeRiskAll          TaskType = "compute_risk_all"
)

// KnownTaskType reports whether t is one of the dispatchable job types.
func KnownTaskType(t TaskType) bool {
	switch t {
	case TaskSyncCells, TaskAutoApproveElements, TaskBuildCellSuggestionsAll,
		TaskComputeCollisionsAll, TaskComputeRiskAll:
		return true
	}
	return false
}

// TaskStatus tracks task lifecycle. Transitions are forward-only:
// queued -> running -> done|error. Terminal states are final.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskError   TaskStatus = "error"
)

// Task is one background job with persisted progress.
type Task struct {
	ID         int64      `json:"id"`
	Type       TaskType   `json:"type"`
	Status     TaskStatus `json:"status"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LogLevel grades task log entries.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// TaskLog is one append-only log line belonging to a task.
type TaskLog struct {
	ID        int64          `json:"id"`
	TaskID    int64          `json:"task_id"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
