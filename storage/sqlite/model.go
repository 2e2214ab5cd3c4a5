package sqlite

import (
	"fmt"
	"time"

	"github.com/cyp0633/librecur/task"
)

// taskRow is the persisted form of task.Task. Dates are stored as YYYY-MM-DD
// so that lexical order is calendar order.
type taskRow struct {
	ID             string `gorm:"primaryKey"`
	Title          string
	Description    string
	Priority       int
	DueDate        *string `gorm:"index"`
	StartTime      *time.Time
	EndTime        *time.Time
	RecurrenceRule *string
	IsCompleted    bool `gorm:"default:false;index"`
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (taskRow) TableName() string { return "tasks" }

// exceptionRow records the status of one occurrence of a series.
type exceptionRow struct {
	TaskID    string `gorm:"primaryKey"`
	Date      string `gorm:"primaryKey"`
	Status    string
	UpdatedAt time.Time
}

func (exceptionRow) TableName() string { return "occurrence_exceptions" }

func fromTask(t task.Task) taskRow {
	row := taskRow{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Priority:       t.Priority,
		StartTime:      utc(t.StartTime),
		EndTime:        utc(t.EndTime),
		IsCompleted:    t.IsCompleted,
		CompletedAt:    utc(t.CompletedAt),
		RecurrenceRule: t.RecurrenceRule,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}
	if t.DueDate != nil {
		s := t.DueDate.String()
		row.DueDate = &s
	}
	return row
}

func (r taskRow) toTask() (task.Task, error) {
	t := task.Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
		StartTime:      utc(r.StartTime),
		EndTime:        utc(r.EndTime),
		RecurrenceRule: r.RecurrenceRule,
		IsCompleted:    r.IsCompleted,
		CompletedAt:    utc(r.CompletedAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.DueDate != nil {
		d, err := task.ParseDate(*r.DueDate)
		if err != nil {
			return task.Task{}, fmt.Errorf("task %s: %w", r.ID, err)
		}
		t.DueDate = &d
	}
	return t, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
