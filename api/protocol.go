package api

import (
	"taskboard/board"
	"taskboard/domain"
	"taskboard/drag"
	"taskboard/view"
)

const (
	postCommandMaxSize = 64 * 1024 // 64 KiB
	// profile pictures travel as data URIs
	requestMaxSize = 4 * 1024 * 1024
)

type errorResponse struct {
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type boardResponse struct {
	Columns []view.Column   `json:"columns"`
	Counts  view.TaskCounts `json:"counts"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type deleteTaskResponse struct {
	Deleted bool `json:"deleted"`
}

type deleteColumnResponse struct {
	Removed int `json:"removed"`
}

type moveRequest struct {
	SourceColumnID domain.ColumnID `json:"sourceColumnId"`
	TargetColumnID domain.ColumnID `json:"targetColumnId"`
}

type moveResponse struct {
	Moved bool         `json:"moved"`
	Task  *domain.Task `json:"task,omitempty"`
}

const (
	commandApplied   = "applied"
	commandDuplicate = "duplicate"
	commandRejected  = "rejected"

	errDedupeUnavailable = "idempotency store unavailable"
)

// /POST /api/commands response body
type postCommandResponse struct {
	Results []commandResult `json:"results"`
}

type commandResult struct {
	IdempotencyKey string        `json:"idempotencyKey"`
	Status         string        `json:"status"`
	Result         *board.Result `json:"result,omitempty"`
	Field          string        `json:"field,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type dragStateResponse struct {
	Session *drag.Session                       `json:"session,omitempty"`
	States  map[domain.ColumnID]drag.HoverState `json:"states"`
}

type dragColumnRequest struct {
	ColumnID    domain.ColumnID `json:"columnId"`
	StillInside bool            `json:"stillInside,omitempty"`
}

type hoverResponse struct {
	ColumnID domain.ColumnID `json:"columnId"`
	State    drag.HoverState `json:"state"`
}

type profileRequest struct {
	Nickname   string `json:"nickname"`
	ProfilePic string `json:"profilePic"`
}

type profileResponse struct {
	Profile         *domain.UserProfile `json:"profile,omitempty"`
	NeedsOnboarding bool                `json:"needsOnboarding"`
}
