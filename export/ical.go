// Package export writes tasks as iCalendar VTODO components, either as an
// .ics stream or as an xCal document.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/task"
)

// ProductID is written as the PRODID of every calendar.
const ProductID = "-//librecur//Recurring Tasks//EN"

const (
	statusCompleted   = "COMPLETED"
	statusNeedsAction = "NEEDS-ACTION"
)

// VTodo converts t into a VTODO. Every recorded exception of a series becomes
// an EXDATE next to the ones already in its rule: the occurrences it stands
// for are either gone or live on as tasks of their own. stamp is the DTSTAMP.
func VTodo(t task.Task, exceptions task.ExceptionSet, stamp time.Time) (*ical.Component, error) {
	c := ical.NewComponent(ical.CompToDo)
	c.Props.SetText(ical.PropUID, t.ID)
	c.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	c.Props.SetText(ical.PropSummary, t.Title)
	if t.Description != "" {
		c.Props.SetText(ical.PropDescription, t.Description)
	}
	if t.Priority >= 1 && t.Priority <= 9 {
		p := ical.NewProp(ical.PropPriority)
		p.Value = strconv.Itoa(t.Priority)
		c.Props.Set(p)
	}
	if !t.CreatedAt.IsZero() {
		c.Props.SetDateTime(ical.PropCreated, t.CreatedAt.UTC())
	}
	if !t.UpdatedAt.IsZero() {
		c.Props.SetDateTime(ical.PropLastModified, t.UpdatedAt.UTC())
	}

	start, timed := anchorOf(t)
	switch {
	case timed:
		c.Props.SetDateTime(ical.PropDateTimeStart, start)
		if dur, ok := t.Duration(); ok && dur > 0 {
			c.Props.SetDateTime(ical.PropDue, start.Add(dur))
		}
	case t.DueDate != nil && t.IsRecurring():
		c.Props.SetDate(ical.PropDateTimeStart, start)
	case t.DueDate != nil:
		c.Props.SetDate(ical.PropDue, start)
	}

	if t.IsCompleted {
		c.Props.SetText(ical.PropStatus, statusCompleted)
		if t.CompletedAt != nil {
			c.Props.SetDateTime(ical.PropCompleted, t.CompletedAt.UTC())
		}
	} else {
		c.Props.SetText(ical.PropStatus, statusNeedsAction)
	}

	if t.IsRecurring() && t.DueDate != nil {
		r, err := rule.Parse(*t.RecurrenceRule)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		p := ical.NewProp(ical.PropRecurrenceRule)
		p.Value = r.Value()
		c.Props.Set(p)

		for _, ex := range exclusions(r, exceptions, start, timed) {
			p := ical.NewProp(ical.PropExceptionDates)
			if timed {
				p.SetDateTime(ex)
			} else {
				p.SetDate(ex)
			}
			c.Props.Add(p)
		}
	}
	return c, nil
}

// anchorOf returns the instant DTSTART describes and whether it has a time.
func anchorOf(t task.Task) (time.Time, bool) {
	if anchor, ok := t.Anchor(); ok {
		return anchor, t.IsTimed()
	}
	if t.StartTime != nil {
		return t.StartTime.UTC(), true
	}
	return time.Time{}, false
}

// exclusions merges the rule's EXDATEs with the exception dates, sorted and
// without repeats. For timed series, whole-day values are moved to the clock of
// the anchor so that they match an instance.
func exclusions(r rule.Rule, exceptions task.ExceptionSet, anchor time.Time, timed bool) []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	add := func(t time.Time) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, ex := range r.ExDates() {
		if timed && ex.Hour() == 0 && ex.Minute() == 0 && ex.Second() == 0 {
			ex = task.DateOf(ex).At(anchor)
		}
		if !timed {
			ex = task.DateOf(ex).Midnight()
		}
		add(ex)
	}
	for _, d := range exceptions.Dates() {
		if timed {
			add(d.At(anchor))
		} else {
			add(d.Midnight())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Calendar builds a VCALENDAR with one VTODO per task. exceptions is keyed by
// task id.
func Calendar(tasks []task.Task, exceptions map[string]task.ExceptionSet, stamp time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	for _, t := range tasks {
		todo, err := VTodo(t, exceptions[t.ID], stamp)
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, todo)
	}
	return cal, nil
}

// EncodeICS writes cal in iCalendar text form.
func EncodeICS(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
