package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/task"
)

const clockLayout = "15:04"

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t, nil
}

// dateFlag returns the parsed value of a date flag, or None when it was not set.
func dateFlag(cmd *cobra.Command, name string) (mo.Option[task.Date], error) {
	if !cmd.Flags().Changed(name) {
		return mo.None[task.Date](), nil
	}
	s, _ := cmd.Flags().GetString(name)
	d, err := task.ParseDate(s)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("--%s: %w", name, err)
	}
	return mo.Some(d), nil
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// when renders the date and time part of a task.
func when(t task.Task) string {
	if t.DueDate == nil {
		return "no date"
	}
	s := t.DueDate.String()
	if t.StartTime != nil {
		s += " " + t.StartTime.UTC().Format(clockLayout)
		if t.EndTime != nil {
			s += "-" + t.EndTime.UTC().Format(clockLayout)
		}
	}
	return s
}

func printTaskLine(w io.Writer, t task.Task) {
	line := fmt.Sprintf("%s %s  %s  %s", checkbox(t.IsCompleted), t.ID, when(t), t.Title)
	if t.IsRecurring() {
		line += "  (" + rule.Describe(*t.RecurrenceRule) + ")"
	}
	fmt.Fprintln(w, line)
}

func printTask(w io.Writer, t task.Task) {
	fmt.Fprintf(w, "ID:          %s\n", t.ID)
	fmt.Fprintf(w, "Title:       %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", t.Description)
	}
	if t.Priority != 0 {
		fmt.Fprintf(w, "Priority:    %d\n", t.Priority)
	}
	fmt.Fprintf(w, "When:        %s\n", when(t))
	if t.IsRecurring() {
		fmt.Fprintf(w, "Repeats:     %s\n", rule.Describe(*t.RecurrenceRule))
		fmt.Fprintf(w, "Rule:        %s\n", strings.ReplaceAll(*t.RecurrenceRule, "\n", " | "))
	}
	fmt.Fprintf(w, "Completed:   %t\n", t.IsCompleted)
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "Completed at: %s\n", t.CompletedAt.UTC().Format(time.RFC3339))
	}
}

func printOccurrence(w io.Writer, o recurrence.Occurrence) {
	fmt.Fprintf(w, "%s %s  %s  %s\n", checkbox(o.IsCompleted), o.Ref().String(), when(o.Task), o.Title)
}

func printNext(w io.Writer, next mo.Option[task.Date]) {
	if d, ok := next.Get(); ok {
		fmt.Fprintf(w, "Next occurrence: %s\n", d)
		return
	}
	fmt.Fprintln(w, "Series ended")
}
