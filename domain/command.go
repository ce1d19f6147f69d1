package domain

import "github.com/bytedance/sonic"

const (
	CommandAddTask        = "add-task"
	CommandUpdateTask     = "update-task"
	CommandDeleteTask     = "delete-task"
	CommandDeleteAllTasks = "delete-all-tasks"
	CommandMoveTask       = "move-task"
)

// Command is the wire form of a board mutation as posted to /api/commands.
type Command struct {
	// IdempotencyKey lets a client resubmit a batch without applying it twice.
	IdempotencyKey string                 `json:"idempotencyKey"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// TaskRef addresses a single task.
type TaskRef struct {
	TaskID string `json:"taskId"`
}

// UpdateTaskData is the payload of an update-task command.
type UpdateTaskData struct {
	TaskID string   `json:"taskId"`
	Form   TaskForm `json:"form"`
}

// ColumnRef addresses a single column.
type ColumnRef struct {
	ColumnID ColumnID `json:"columnId"`
}

// MoveTaskData is the payload of a move-task command and of a drop.
type MoveTaskData struct {
	TaskID         string   `json:"taskId"`
	SourceColumnID ColumnID `json:"sourceColumnId"`
	TargetColumnID ColumnID `json:"targetColumnId"`
}
