package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ColumnID identifies one of the three fixed columns.
type ColumnID string

const (
	ColumnToDo       ColumnID = "todo"
	ColumnInProgress ColumnID = "inprogress"
	ColumnDone       ColumnID = "done"
)

// ColumnOrder is the display order of the board.
var ColumnOrder = []ColumnID{ColumnToDo, ColumnInProgress, ColumnDone}

var columnTitles = map[ColumnID]Status{
	ColumnToDo:       StatusToDo,
	ColumnInProgress: StatusInProgress,
	ColumnDone:       StatusDone,
}

// ColumnTitle returns the display title of a column.
func ColumnTitle(id ColumnID) (Status, bool) {
	s, ok := columnTitles[id]
	return s, ok
}

// ColumnForStatus maps a task status back to the column holding it.
func ColumnForStatus(s Status) (ColumnID, bool) {
	for id, title := range columnTitles {
		if title == s {
			return id, true
		}
	}
	return "", false
}

// Column is one bucket of the board. Task order is insertion order.
type Column struct {
	ID    ColumnID `json:"id"`
	Title Status   `json:"title"`
	Tasks []Task   `json:"tasks"`
}

// Board is the column registry: the three columns and the tasks they hold.
// It serializes as a plain array of columns.
type Board struct {
	Columns []Column
}

// NewBoard returns the seed state: three empty columns.
func NewBoard() Board {
	cols := make([]Column, 0, len(ColumnOrder))
	for _, id := range ColumnOrder {
		cols = append(cols, Column{ID: id, Title: columnTitles[id], Tasks: []Task{}})
	}
	return Board{Columns: cols}
}

func (b Board) MarshalJSON() ([]byte, error) {
	cols := b.Columns
	if cols == nil {
		cols = []Column{}
	}
	return sonic.ConfigStd.Marshal(cols)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var cols []Column
	if err := sonic.ConfigStd.Unmarshal(data, &cols); err != nil {
		return err
	}
	b.Columns = cols
	return nil
}

// FindColumn returns the column with the given id.
func (b Board) FindColumn(id ColumnID) (*Column, bool) {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// ColumnByTitle returns the column whose title matches a task status.
func (b Board) ColumnByTitle(s Status) (*Column, bool) {
	for i := range b.Columns {
		if b.Columns[i].Title == s {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// FindTask looks a task up across all columns.
func (b Board) FindTask(id string) (Task, ColumnID, bool) {
	for _, col := range b.Columns {
		if i := col.IndexOf(id); i >= 0 {
			return col.Tasks[i], col.ID, true
		}
	}
	return Task{}, "", false
}

// AllTasks flattens the board in column order.
func (b Board) AllTasks() []Task {
	out := []Task{}
	for _, col := range b.Columns {
		out = append(out, col.Tasks...)
	}
	return out
}

// CountByColumn returns the number of tasks in a column, zero for unknown ids.
func (b Board) CountByColumn(id ColumnID) int {
	if col, ok := b.FindColumn(id); ok {
		return len(col.Tasks)
	}
	return 0
}

// Clone returns a deep copy safe to hand to readers.
func (b Board) Clone() Board {
	out := Board{Columns: make([]Column, len(b.Columns))}
	for i, col := range b.Columns {
		tasks := make([]Task, len(col.Tasks))
		for j, t := range col.Tasks {
			tasks[j] = t.clone()
		}
		out.Columns[i] = Column{ID: col.ID, Title: col.Title, Tasks: tasks}
	}
	return out
}

// Check verifies the registry invariants: the three canonical columns in
// order, every status equal to its column title, unique ids and sane progress.
func (b Board) Check() error {
	if len(b.Columns) != len(ColumnOrder) {
		return fmt.Errorf("board has %d columns, want %d", len(b.Columns), len(ColumnOrder))
	}
	seen := make(map[string]ColumnID)
	for i, col := range b.Columns {
		if col.ID != ColumnOrder[i] {
			return fmt.Errorf("column %d is %q, want %q", i, col.ID, ColumnOrder[i])
		}
		if col.Title != columnTitles[col.ID] {
			return fmt.Errorf("column %s has title %q", col.ID, col.Title)
		}
		for _, t := range col.Tasks {
			if prev, dup := seen[t.ID]; dup {
				return fmt.Errorf("task %s appears in %s and %s", t.ID, prev, col.ID)
			}
			seen[t.ID] = col.ID
			if t.Status != col.Title {
				return fmt.Errorf("task %s has status %q in column %s", t.ID, t.Status, col.ID)
			}
			if t.ProgressCurrent < 0 || t.ProgressCurrent > ProgressCeiling(t.ProgressTotal) {
				return fmt.Errorf("task %s has progress %d/%d", t.ID, t.ProgressCurrent, t.ProgressTotal)
			}
		}
	}
	return nil
}

// IndexOf returns the position of a task in the column or -1.
func (c *Column) IndexOf(taskID string) int {
	for i := range c.Tasks {
		if c.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}
