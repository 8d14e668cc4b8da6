package entity

import "time"

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Task is a row in the `tasks` table. Owner is fixed at creation.
type Task struct {
	ID          int64      `json:"id,string"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Completed   bool       `json:"completed"`
	Owner       int64      `json:"owner,string"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Patch lists the fields an update may change. Nil means "leave as is".
// Owner is not patchable.
type Patch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
	Completed    *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.Completed == nil
}
