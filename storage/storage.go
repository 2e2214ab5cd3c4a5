// Package storage defines the persistence interfaces the workflows run against.
// Backends live in the memory and sqlite subpackages.
package storage

import (
	"context"

	"github.com/cyp0633/librecur/task"
)

// ListOptions filters ListTasks.
type ListOptions struct {
	// RecurringOnly restricts the result to series masters.
	RecurringOnly bool
	// IncludeCompleted also returns completed tasks.
	IncludeCompleted bool
}

// TaskStore persists tasks. Implementations return copies; callers never share
// memory with stored records.
type TaskStore interface {
	// GetTask returns a not_found error when id is unknown.
	GetTask(ctx context.Context, id string) (*task.Task, error)
	// CreateTask stores t and returns its id. An empty t.ID gets a new uuid; an id
	// already in use yields an already_exists error. t.ID, CreatedAt and UpdatedAt
	// are filled in on success.
	CreateTask(ctx context.Context, t *task.Task) (string, error)
	// UpdateTask applies the present fields of patch.
	UpdateTask(ctx context.Context, id string, patch task.Patch) error
	// DeleteTask removes the task together with its exceptions.
	DeleteTask(ctx context.Context, id string) error
	// ListTasks returns tasks ordered by due date, undated tasks last.
	ListTasks(ctx context.Context, opts ListOptions) ([]task.Task, error)
}

// ExceptionStore persists per-occurrence exceptions of series masters.
type ExceptionStore interface {
	// UpsertException records status for (taskID, date). The last write wins.
	UpsertException(ctx context.Context, taskID string, date task.Date, status task.ExceptionStatus) error
	// DeleteException removes the exception for (taskID, date). Removing a
	// missing exception is not an error.
	DeleteException(ctx context.Context, taskID string, date task.Date) error
	// ListExceptions returns every exception of taskID.
	ListExceptions(ctx context.Context, taskID string) (task.ExceptionSet, error)
}

// Storage is the interface that must be implemented by storage backends
type Storage interface {
	TaskStore
	ExceptionStore
}

// CheckTask validates the invariants every backend enforces on write.
func CheckTask(t task.Task) error {
	if t.IsRecurring() && t.DueDate == nil {
		return NewError(ErrInvalidInput, "recurring task "+t.ID+" has no due date", nil)
	}
	if t.EndTime != nil && t.StartTime == nil {
		return NewError(ErrInvalidInput, "task "+t.ID+" has an end time but no start time", nil)
	}
	return nil
}

// Matches reports whether t passes opts.
func (o ListOptions) Matches(t task.Task) bool {
	if o.RecurringOnly && !t.IsRecurring() {
		return false
	}
	if !o.IncludeCompleted && t.IsCompleted {
		return false
	}
	return true
}
