// Package drag models a pointer drag of a task card across the board
// columns: the payload carried by the drag, the hover state of each column
// and the drop that turns into a move.
package drag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrUnknownColumn is returned for drag events on a column that is not on
// the board.
var ErrUnknownColumn = errors.New("unknown column")

// HoverState is the drop-target state of a column.
type HoverState int

const (
	Idle HoverState = iota
	HoverRejected
	HoverAccepted
)

func (s HoverState) String() string {
	switch s {
	case HoverRejected:
		return "rejected"
	case HoverAccepted:
		return "accepted"
	default:
		return "idle"
	}
}

func (s HoverState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Payload is the data attached to a drag when it starts.
type Payload struct {
	TaskID         string          `json:"taskId"`
	SourceColumnID domain.ColumnID `json:"sourceColumnId"`
}

// Session is one drag from start to drop or cancel.
type Session struct {
	ID        string    `json:"id"`
	Payload   Payload   `json:"payload"`
	StartedAt time.Time `json:"startedAt"`
}

// Mover performs the move a drop resolves to.
type Mover interface {
	MoveTask(ctx context.Context, taskID string, source, target domain.ColumnID) (domain.Task, bool)
}

// DropResult reports what a drop did.
type DropResult struct {
	Moved bool         `json:"moved"`
	Task  *domain.Task `json:"task,omitempty"`
}

// Controller tracks the single active drag and the hover state of every
// column.
type Controller struct {
	mu      sync.Mutex
	mover   Mover
	log     *log.Logger
	session *Session
	states  map[domain.ColumnID]HoverState
}

func NewController(mover Mover, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Controller{mover: mover, log: logger}
	c.resetLocked()
	return c
}

func (c *Controller) resetLocked() {
	c.states = make(map[domain.ColumnID]HoverState, len(domain.ColumnOrder))
	for _, id := range domain.ColumnOrder {
		c.states[id] = Idle
	}
}

// Start begins a drag of taskID from source. A drag already in progress is
// abandoned.
func (c *Controller) Start(taskID string, source domain.ColumnID) Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.log.WithField("session", c.session.ID).Debug("abandoning previous drag")
	}
	c.resetLocked()
	s := Session{
		ID:        uuid.NewString(),
		Payload:   Payload{TaskID: taskID, SourceColumnID: source},
		StartedAt: time.Now(),
	}
	c.session = &s
	return s
}

// Active returns the drag in progress.
func (c *Controller) Active() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Controller) payloadLocked() Payload {
	if c.session == nil {
		return Payload{}
	}
	return c.session.Payload
}

// DragOver updates the hover state of a column the pointer is over. A
// column rejects its own cards; anything else carrying a task is accepted,
// even when the source is missing or unknown.
func (c *Controller) DragOver(column domain.ColumnID) (HoverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[column]
	if !ok {
		return Idle, ErrUnknownColumn
	}
	p := c.payloadLocked()
	if p.TaskID == "" {
		return state, nil
	}
	if p.SourceColumnID == column {
		state = HoverRejected
	} else {
		state = HoverAccepted
	}
	c.states[column] = state
	return state, nil
}

// DragLeave resets a column when the pointer left its region. Leaving into
// a child element of the column (stillInside) keeps the state.
func (c *Controller) DragLeave(column domain.ColumnID, stillInside bool) (HoverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[column]
	if !ok {
		return Idle, ErrUnknownColumn
	}
	if stillInside {
		return state, nil
	}
	c.states[column] = Idle
	return Idle, nil
}

// Drop ends the drag over column. It moves the task when the payload names
// both a task and a different source column; the hover states are reset in
// every case.
func (c *Controller) Drop(ctx context.Context, column domain.ColumnID) (DropResult, error) {
	c.mu.Lock()
	if _, ok := c.states[column]; !ok {
		c.mu.Unlock()
		return DropResult{}, ErrUnknownColumn
	}
	p := c.payloadLocked()
	c.session = nil
	c.resetLocked()
	c.mu.Unlock()

	if p.TaskID == "" || p.SourceColumnID == "" || p.SourceColumnID == column || c.mover == nil {
		return DropResult{}, nil
	}
	task, moved := c.mover.MoveTask(ctx, p.TaskID, p.SourceColumnID, column)
	if !moved {
		c.log.WithFields(log.Fields{
			"task":   p.TaskID,
			"source": p.SourceColumnID,
			"target": column,
		}).Debug("drop ignored")
		return DropResult{}, nil
	}
	return DropResult{Moved: true, Task: &task}, nil
}

// Cancel ends the drag without a drop.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.session = nil
	c.resetLocked()
	c.mu.Unlock()
}

// States reports the hover state of every column.
func (c *Controller) States() map[domain.ColumnID]HoverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.ColumnID]HoverState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}
