package domain

// TaskForm carries the fields of the add/edit task form. Nil fields were not
// submitted: on add they take defaults, on edit they keep the prior value.
type TaskForm struct {
	Title           *string   `json:"title,omitempty"`
	Subtitle        *string   `json:"subtitle,omitempty"`
	Status          *Status   `json:"status,omitempty"`
	DueDate         *string   `json:"dueDate,omitempty"`
	ProgressCurrent *int      `json:"progressCurrent,omitempty"`
	ProgressTotal   *int      `json:"progressTotal,omitempty"`
	Priority        *Priority `json:"priority,omitempty"`
}
