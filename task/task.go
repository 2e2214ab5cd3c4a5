// Package task holds the domain types shared by the recurrence engine, the
// workflows and the storage backends.
package task

import (
	"time"

	"github.com/samber/mo"
)

// Task is either a standalone task or the master record of a recurring series.
//
// A master (RecurrenceRule != nil) always has a DueDate; that date together with
// the clock of StartTime is the series anchor. StartTime marks a timed task,
// EndTime is only meaningful alongside StartTime.
type Task struct {
	ID          string
	Title       string
	Description string
	Priority    int

	DueDate   *Date
	StartTime *time.Time
	EndTime   *time.Time

	// RecurrenceRule is the serialized rule, see package rule for the format.
	RecurrenceRule *string

	IsCompleted bool
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) IsRecurring() bool {
	return t.RecurrenceRule != nil && *t.RecurrenceRule != ""
}

func (t Task) IsTimed() bool {
	return t.StartTime != nil
}

// Duration returns EndTime - StartTime when both are set.
func (t Task) Duration() (time.Duration, bool) {
	if t.StartTime == nil || t.EndTime == nil {
		return 0, false
	}
	return t.EndTime.Sub(*t.StartTime), true
}

// Anchor returns the instant the series is computed from: DueDate at the clock of
// StartTime for timed tasks, midnight UTC of DueDate for all-day tasks.
func (t Task) Anchor() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	if t.StartTime != nil {
		return t.DueDate.At(*t.StartTime), true
	}
	return t.DueDate.Midnight(), true
}

// ShiftTo moves the task's time window onto d, keeping the clock time and the
// duration. All-day tasks yield nil for both.
func (t Task) ShiftTo(d Date) (start, end *time.Time) {
	if t.StartTime == nil {
		return nil, nil
	}
	s := d.At(*t.StartTime)
	start = &s
	if dur, ok := t.Duration(); ok {
		e := s.Add(dur)
		end = &e
	}
	return start, end
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	c.StartTime = copyTime(t.StartTime)
	c.EndTime = copyTime(t.EndTime)
	c.CompletedAt = copyTime(t.CompletedAt)
	if t.RecurrenceRule != nil {
		r := *t.RecurrenceRule
		c.RecurrenceRule = &r
	}
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Patch is a partial update. An absent option leaves the field untouched; for
// nullable fields mo.Some(nil) clears the value.
type Patch struct {
	Title          mo.Option[string]
	Description    mo.Option[string]
	Priority       mo.Option[int]
	DueDate        mo.Option[*Date]
	StartTime      mo.Option[*time.Time]
	EndTime        mo.Option[*time.Time]
	RecurrenceRule mo.Option[*string]
	IsCompleted    mo.Option[bool]
	CompletedAt    mo.Option[*time.Time]
}

func (p Patch) IsEmpty() bool {
	return p.Title.IsAbsent() && p.Description.IsAbsent() && p.Priority.IsAbsent() &&
		p.DueDate.IsAbsent() && p.StartTime.IsAbsent() && p.EndTime.IsAbsent() &&
		p.RecurrenceRule.IsAbsent() && p.IsCompleted.IsAbsent() && p.CompletedAt.IsAbsent()
}

// Apply writes the present fields of p onto t. Pointer values are copied.
func (p Patch) Apply(t *Task) {
	if v, ok := p.Title.Get(); ok {
		t.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		t.Description = v
	}
	if v, ok := p.Priority.Get(); ok {
		t.Priority = v
	}
	if v, ok := p.DueDate.Get(); ok {
		if v == nil {
			t.DueDate = nil
		} else {
			d := *v
			t.DueDate = &d
		}
	}
	if v, ok := p.StartTime.Get(); ok {
		t.StartTime = copyTime(v)
	}
	if v, ok := p.EndTime.Get(); ok {
		t.EndTime = copyTime(v)
	}
	if v, ok := p.RecurrenceRule.Get(); ok {
		if v == nil {
			t.RecurrenceRule = nil
		} else {
			r := *v
			t.RecurrenceRule = &r
		}
	}
	if v, ok := p.IsCompleted.Get(); ok {
		t.IsCompleted = v
	}
	if v, ok := p.CompletedAt.Get(); ok {
		t.CompletedAt = copyTime(v)
	}
}
