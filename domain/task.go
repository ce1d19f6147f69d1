package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// DueDateUnset is stored in place of a due date when none was chosen.
const DueDateUnset = "Not set"

// Status names the column a task lives in. It always equals the owning column title.
type Status string

const (
	StatusToDo       Status = "To do"
	StatusInProgress Status = "In progress"
	StatusDone       Status = "Done"
)

// Valid reports whether s is one of the three column titles.
func (s Status) Valid() bool {
	_, ok := ColumnForStatus(s)
	return ok
}

// Priority of a task. Stored lowercase.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts any letter case ("High", "high").
func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, true
	}
	return "", false
}

// Rank orders priorities for display: high first, low (and anything unknown) last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParsePriority(raw); ok {
		*p = parsed
		return nil
	}
	*p = Priority(raw)
	return nil
}

// Task represents a single card on the board.
type Task struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Subtitle        string   `json:"subtitle"`
	Status          Status   `json:"status"`
	ProgressCurrent int      `json:"progressCurrent"`
	ProgressTotal   int      `json:"progressTotal"`
	DueDate         string   `json:"dueDate"`
	Priority        Priority `json:"priority"`

	// Extra keeps fields written by earlier versions of the board (assignees,
	// comment counts, ...) so that saving never drops them.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownTaskFields = []string{"id", "title", "subtitle", "status", "progressCurrent", "progressTotal", "dueDate", "priority"}

type taskFields Task

func (t Task) MarshalJSON() ([]byte, error) {
	base, err := sonic.ConfigStd.Marshal(taskFields(t))
	if err != nil || len(t.Extra) == 0 {
		return base, err
	}
	merged := make(map[string]json.RawMessage, len(knownTaskFields)+len(t.Extra))
	if err := sonic.ConfigStd.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return sonic.ConfigStd.Marshal(merged)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var fields taskFields
	if err := sonic.ConfigStd.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := sonic.ConfigStd.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownTaskFields {
		delete(all, k)
	}
	fields.Extra = nil
	if len(all) > 0 {
		fields.Extra = all
	}
	*t = Task(fields)
	return nil
}

// HasDueDate reports whether a due date was set.
func (t Task) HasDueDate() bool {
	return t.DueDate != "" && t.DueDate != DueDateUnset
}

// Due parses the due date. ok is false when unset or unparsable.
func (t Task) Due() (time.Time, bool) {
	if !t.HasDueDate() {
		return time.Time{}, false
	}
	return ParseDueDate(t.DueDate)
}

// ParseDueDate accepts RFC 3339 date-times and plain dates (2006-01-02).
func ParseDueDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FormatDueDate renders ts the way the board stores due dates.
func FormatDueDate(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (t Task) clone() Task {
	if t.Extra != nil {
		extra := make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			extra[k] = append(json.RawMessage(nil), v...)
		}
		t.Extra = extra
	}
	return t
}

// ProgressCeiling is the highest progressCurrent allowed for a total. Tasks
// without a total still count one step of progress.
func ProgressCeiling(total int) int {
	if total < 1 {
		return 1
	}
	return total
}
