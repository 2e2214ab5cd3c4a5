package recurrence

import (
	"github.com/cyp0633/librecur/task"
)

// Occurrence is one instance of a task inside an expansion window.
//
// For a recurring master the embedded Task is a copy of the master moved onto
// Date: DueDate is Date, StartTime/EndTime are shifted with the duration kept,
// and IsCompleted comes from the exception set. ID stays the master's id; use
// Ref to address the occurrence itself.
type Occurrence struct {
	task.Task

	Date     task.Date
	Virtual  bool   // Computed from a rule, not a stored record
	MasterID string // Set for virtual occurrences
}

// Ref returns the address of this occurrence.
func (o Occurrence) Ref() task.OccurrenceRef {
	if o.Virtual {
		return task.VirtualRef{MasterID: o.MasterID, Date: o.Date}
	}
	return task.RealRef{TaskID: o.ID}
}
