// Package board owns the column registry and applies every mutation to it.
package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	defaultProgressTotal = 5
	defaultSaveTimeout   = 5 * time.Second
)

// Saver persists the registry after each mutation.
type Saver interface {
	SaveBoard(ctx context.Context, b domain.Board) error
}

// Engine serializes all board mutations and writes the registry through to
// the Saver before releasing its lock.
type Engine struct {
	mu    sync.Mutex
	board domain.Board

	saver       Saver
	saveTimeout time.Duration
	log         *log.Logger
	broker      *updateBroker
	newID       func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSaveTimeout bounds every write-through save.
func WithSaveTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.saveTimeout = d
		}
	}
}

// WithIDGenerator replaces the task id source. Used by tests.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine over the initial registry. A registry that
// fails its consistency check is replaced with the seed board.
func NewEngine(initial domain.Board, saver Saver, opts ...Option) *Engine {
	e := &Engine{
		board:       initial.Clone(),
		saver:       saver,
		saveTimeout: defaultSaveTimeout,
		log:         log.StandardLogger(),
		broker:      newUpdateBroker(),
		newID:       func() string { return "task-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.board.Check(); err != nil {
		e.log.WithError(err).Warn("initial board inconsistent, starting from seed")
		e.board = domain.NewBoard()
	}
	return e
}

// Snapshot returns a deep copy of the registry.
func (e *Engine) Snapshot() domain.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone()
}

// Subscribe returns a channel signalled after every committed mutation and a
// function that releases it. Signals coalesce: readers should take a fresh
// Snapshot when woken.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	ch := e.broker.subscribe()
	return ch, func() { e.broker.unsubscribe(ch) }
}

// commit must be called with e.mu held.
func (e *Engine) commit(ctx context.Context) {
	if e.saver != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.saveTimeout)
		if err := e.saver.SaveBoard(saveCtx, e.board); err != nil {
			e.log.WithError(err).Error("board save failed")
		}
		cancel()
	}
	e.broker.notify()
}

// AddTask validates the form and appends a new task to the column whose
// title equals the form status.
func (e *Engine) AddTask(ctx context.Context, form domain.TaskForm) (domain.Task, error) {
	task, err := newTaskFromForm(form)
	if err != nil {
		return domain.Task{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	col, ok := e.board.ColumnByTitle(task.Status)
	if !ok {
		return domain.Task{}, &domain.ValidationError{Field: "status", Message: "unknown status"}
	}
	task.ID = e.newID()
	col.Tasks = append(col.Tasks, task)
	e.commit(ctx)
	return task, nil
}

// UpdateTask overwrites the submitted fields of an existing task. A status
// change moves the task to the end of the new column.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, form domain.TaskForm) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, colID, ok := e.board.FindTask(taskID)
	if !ok {
		return domain.Task{}, &domain.NotFoundError{Kind: "task", ID: taskID}
	}
	updated, err := mergeForm(current, form)
	if err != nil {
		return domain.Task{}, err
	}

	src, _ := e.board.FindColumn(colID)
	idx := src.IndexOf(taskID)
	if updated.Status == current.Status {
		src.Tasks[idx] = updated
	} else {
		dst, ok := e.board.ColumnByTitle(updated.Status)
		if !ok {
			return domain.Task{}, &domain.ValidationError{Field: "status", Message: "unknown status"}
		}
		src.Tasks = append(src.Tasks[:idx], src.Tasks[idx+1:]...)
		dst.Tasks = append(dst.Tasks, updated)
	}
	e.commit(ctx)
	return updated, nil
}

// DeleteTask removes a task wherever it is. Deleting an absent task is a
// no-op and reports false.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, colID, ok := e.board.FindTask(taskID)
	if !ok {
		return false
	}
	col, _ := e.board.FindColumn(colID)
	idx := col.IndexOf(taskID)
	col.Tasks = append(col.Tasks[:idx], col.Tasks[idx+1:]...)
	e.commit(ctx)
	return true
}

// DeleteAllTasks empties one column and returns how many tasks it held.
func (e *Engine) DeleteAllTasks(ctx context.Context, columnID domain.ColumnID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ok := e.board.FindColumn(columnID)
	if !ok || len(col.Tasks) == 0 {
		return 0
	}
	n := len(col.Tasks)
	col.Tasks = []domain.Task{}
	e.commit(ctx)
	return n
}

// MoveTask moves a task from source to the end of target. Moves onto the same
// column, to an unknown column or of a task that is not in source are
// ignored. Entering the in-progress column advances progress by one step.
func (e *Engine) MoveTask(ctx context.Context, taskID string, source, target domain.ColumnID) (domain.Task, bool) {
	if source == target {
		return domain.Task{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dst, ok := e.board.FindColumn(target)
	if !ok {
		return domain.Task{}, false
	}
	src, ok := e.board.FindColumn(source)
	if !ok {
		return domain.Task{}, false
	}
	idx := src.IndexOf(taskID)
	if idx < 0 {
		return domain.Task{}, false
	}

	task := src.Tasks[idx]
	src.Tasks = append(src.Tasks[:idx], src.Tasks[idx+1:]...)
	task.Status = dst.Title
	if target == domain.ColumnInProgress {
		task.ProgressCurrent = min(task.ProgressCurrent+1, domain.ProgressCeiling(task.ProgressTotal))
	}
	dst.Tasks = append(dst.Tasks, task)
	e.commit(ctx)
	return task, true
}

func newTaskFromForm(form domain.TaskForm) (domain.Task, error) {
	task := domain.Task{
		ProgressTotal: defaultProgressTotal,
		DueDate:       domain.DueDateUnset,
		Priority:      domain.PriorityLow,
	}
	if form.Title == nil {
		return domain.Task{}, &domain.ValidationError{Field: "title", Message: "title is required"}
	}
	if form.Status == nil {
		return domain.Task{}, &domain.ValidationError{Field: "status", Message: "status is required"}
	}
	return mergeForm(task, form)
}

// mergeForm applies the submitted fields to base and validates the result.
func mergeForm(base domain.Task, form domain.TaskForm) (domain.Task, error) {
	out := base
	if form.Title != nil {
		if strings.TrimSpace(*form.Title) == "" {
			return domain.Task{}, &domain.ValidationError{Field: "title", Message: "title must not be empty"}
		}
		out.Title = *form.Title
	}
	if form.Subtitle != nil {
		out.Subtitle = *form.Subtitle
	}
	if form.Status != nil {
		if !form.Status.Valid() {
			return domain.Task{}, &domain.ValidationError{Field: "status", Message: "unknown status " + string(*form.Status)}
		}
		out.Status = *form.Status
	}
	if form.Priority != nil {
		p, ok := domain.ParsePriority(string(*form.Priority))
		if !ok {
			return domain.Task{}, &domain.ValidationError{Field: "priority", Message: "priority must be low, medium or high"}
		}
		out.Priority = p
	}
	if form.DueDate != nil {
		due, err := normalizeDueDate(*form.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		out.DueDate = due
	}
	if form.ProgressTotal != nil {
		if *form.ProgressTotal < 1 {
			return domain.Task{}, &domain.ValidationError{Field: "progressTotal", Message: "total must be at least 1"}
		}
		out.ProgressTotal = *form.ProgressTotal
	}
	if form.ProgressCurrent != nil {
		if *form.ProgressCurrent < 0 {
			return domain.Task{}, &domain.ValidationError{Field: "progressCurrent", Message: "current must not be negative"}
		}
		out.ProgressCurrent = *form.ProgressCurrent
	}
	if out.ProgressCurrent > domain.ProgressCeiling(out.ProgressTotal) {
		return domain.Task{}, &domain.ValidationError{Field: "progressCurrent", Message: "current must not exceed total"}
	}
	return out, nil
}

func normalizeDueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == domain.DueDateUnset {
		return domain.DueDateUnset, nil
	}
	ts, ok := domain.ParseDueDate(raw)
	if !ok {
		return "", &domain.ValidationError{Field: "dueDate", Message: "invalid date " + raw}
	}
	return domain.FormatDueDate(ts), nil
}
