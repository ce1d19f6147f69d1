package api

import (
	"context"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/drag"
)

// Board is the engine the handlers drive.
type Board interface {
	Snapshot() domain.Board
	Subscribe() (<-chan struct{}, func())
	AddTask(ctx context.Context, form domain.TaskForm) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, form domain.TaskForm) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) bool
	DeleteAllTasks(ctx context.Context, columnID domain.ColumnID) int
	MoveTask(ctx context.Context, taskID string, source, target domain.ColumnID) (domain.Task, bool)
	Apply(ctx context.Context, cmd board.Command) (board.Result, error)
}

// Profiles manages the onboarded user.
type Profiles interface {
	Get() (domain.UserProfile, bool)
	Onboard(ctx context.Context, nickname, profilePic string) (domain.UserProfile, error)
}

// DragController tracks the drag in progress.
type DragController interface {
	Start(taskID string, source domain.ColumnID) drag.Session
	Active() (drag.Session, bool)
	DragOver(column domain.ColumnID) (drag.HoverState, error)
	DragLeave(column domain.ColumnID, stillInside bool) (drag.HoverState, error)
	Drop(ctx context.Context, column domain.ColumnID) (drag.DropResult, error)
	Cancel()
	States() map[domain.ColumnID]drag.HoverState
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
