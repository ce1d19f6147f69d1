// Package view derives what the board screen shows from a registry
// snapshot. Nothing here is cached or mutates its input.
package view

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"taskboard/domain"
)

// TaskCounts holds the per-column badges. All excludes finished tasks.
type TaskCounts struct {
	ToDo       int `json:"todo"`
	InProgress int `json:"inProgress"`
	Done       int `json:"done"`
	All        int `json:"all"`
}

func Counts(b domain.Board) TaskCounts {
	c := TaskCounts{
		ToDo:       b.CountByColumn(domain.ColumnToDo),
		InProgress: b.CountByColumn(domain.ColumnInProgress),
		Done:       b.CountByColumn(domain.ColumnDone),
	}
	c.All = c.ToDo + c.InProgress
	return c
}

// Search returns tasks whose title or subtitle contains term, ignoring case,
// in column order. A blank term matches every task.
func Search(b domain.Board, term string) []domain.Task {
	term = strings.TrimSpace(term)
	all := b.AllTasks()
	if term == "" {
		return all
	}
	fold := cases.Fold()
	needle := fold.String(term)
	out := []domain.Task{}
	for _, t := range all {
		if strings.Contains(fold.String(t.Title), needle) || strings.Contains(fold.String(t.Subtitle), needle) {
			out = append(out, t)
		}
	}
	return out
}

// Upcoming lists tasks with a due date, soonest first. Tasks whose date
// cannot be parsed sort last, keeping board order among themselves.
func Upcoming(b domain.Board) []domain.Task {
	out := []domain.Task{}
	for _, t := range b.AllTasks() {
		if t.HasDueDate() {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		ta, okA := a.Due()
		tb, okB := b.Due()
		switch {
		case okA && okB:
			return ta.Compare(tb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return out
}

// PrioritySorted returns a copy of tasks ordered high, medium, low; equal
// priorities keep their relative order.
func PrioritySorted(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	if out == nil {
		out = []domain.Task{}
	}
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})
	return out
}

// Column is a render-ready column.
type Column struct {
	ID    domain.ColumnID `json:"id"`
	Title domain.Status   `json:"title"`
	Count int             `json:"count"`
	Tasks []domain.Task   `json:"tasks"`
}

// Columns renders the board with each column sorted by priority.
func Columns(b domain.Board) []Column {
	out := make([]Column, 0, len(b.Columns))
	for _, col := range b.Columns {
		out = append(out, Column{
			ID:    col.ID,
			Title: col.Title,
			Count: len(col.Tasks),
			Tasks: PrioritySorted(col.Tasks),
		})
	}
	return out
}

// Progress is the completion percentage shown on a card, 0 to 100.
func Progress(t domain.Task) int {
	pct := float64(t.ProgressCurrent) * 100 / float64(domain.ProgressCeiling(t.ProgressTotal))
	return int(math.Round(math.Max(0, math.Min(100, pct))))
}
