package board

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

// Command is a board mutation expressed as a value.
type Command interface {
	apply(ctx context.Context, e *Engine) (Result, error)
}

// Result describes the effect of an applied command.
type Result struct {
	Changed bool         `json:"changed"`
	Task    *domain.Task `json:"task,omitempty"`
	Removed int          `json:"removed,omitempty"`
}

type AddTaskCommand struct {
	Form domain.TaskForm
}

type UpdateTaskCommand struct {
	TaskID string
	Form   domain.TaskForm
}

type DeleteTaskCommand struct {
	TaskID string
}

type DeleteAllTasksCommand struct {
	ColumnID domain.ColumnID
}

type MoveTaskCommand struct {
	TaskID string
	Source domain.ColumnID
	Target domain.ColumnID
}

// Apply runs a single command against the registry.
func (e *Engine) Apply(ctx context.Context, cmd Command) (Result, error) {
	if cmd == nil {
		return Result{}, &domain.ValidationError{Field: "type", Message: "missing command"}
	}
	return cmd.apply(ctx, e)
}

func (c AddTaskCommand) apply(ctx context.Context, e *Engine) (Result, error) {
	task, err := e.AddTask(ctx, c.Form)
	if err != nil {
		return Result{}, err
	}
	return Result{Changed: true, Task: &task}, nil
}

func (c UpdateTaskCommand) apply(ctx context.Context, e *Engine) (Result, error) {
	task, err := e.UpdateTask(ctx, c.TaskID, c.Form)
	if err != nil {
		return Result{}, err
	}
	return Result{Changed: true, Task: &task}, nil
}

func (c DeleteTaskCommand) apply(ctx context.Context, e *Engine) (Result, error) {
	if e.DeleteTask(ctx, c.TaskID) {
		return Result{Changed: true, Removed: 1}, nil
	}
	return Result{}, nil
}

func (c DeleteAllTasksCommand) apply(ctx context.Context, e *Engine) (Result, error) {
	n := e.DeleteAllTasks(ctx, c.ColumnID)
	return Result{Changed: n > 0, Removed: n}, nil
}

func (c MoveTaskCommand) apply(ctx context.Context, e *Engine) (Result, error) {
	task, moved := e.MoveTask(ctx, c.TaskID, c.Source, c.Target)
	if !moved {
		return Result{}, nil
	}
	return Result{Changed: true, Task: &task}, nil
}

// DecodeCommand turns a wire envelope into a typed command.
func DecodeCommand(env domain.Command) (Command, error) {
	switch env.Type {
	case domain.CommandAddTask:
		var form domain.TaskForm
		if err := decodeData(env, &form); err != nil {
			return nil, err
		}
		return AddTaskCommand{Form: form}, nil
	case domain.CommandUpdateTask:
		var data domain.UpdateTaskData
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		if data.TaskID == "" {
			return nil, &domain.ValidationError{Field: "taskId", Message: "task id is required"}
		}
		return UpdateTaskCommand{TaskID: data.TaskID, Form: data.Form}, nil
	case domain.CommandDeleteTask:
		var data domain.TaskRef
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return DeleteTaskCommand{TaskID: data.TaskID}, nil
	case domain.CommandDeleteAllTasks:
		var data domain.ColumnRef
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return DeleteAllTasksCommand{ColumnID: data.ColumnID}, nil
	case domain.CommandMoveTask:
		var data domain.MoveTaskData
		if err := decodeData(env, &data); err != nil {
			return nil, err
		}
		return MoveTaskCommand{TaskID: data.TaskID, Source: data.SourceColumnID, Target: data.TargetColumnID}, nil
	default:
		return nil, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown command type %q", env.Type)}
	}
}

func decodeData(env domain.Command, v any) error {
	if len(env.Data) == 0 {
		return &domain.ValidationError{Field: "data", Message: "missing command data"}
	}
	if err := sonic.ConfigStd.Unmarshal(env.Data, v); err != nil {
		return &domain.ValidationError{Field: "data", Message: "invalid " + env.Type + " data"}
	}
	return nil
}
