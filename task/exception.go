package task

import (
	"fmt"
	"sort"
	"strings"
)

// ExceptionStatus is the recorded fate of one occurrence of a master.
type ExceptionStatus string

const (
	StatusCompleted ExceptionStatus = "completed"
	StatusSkipped   ExceptionStatus = "skipped"
	// StatusArchived marks an occurrence detached from its series by an edit.
	StatusArchived ExceptionStatus = "archived"
)

func (s ExceptionStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusArchived:
		return true
	}
	return false
}

// Hidden reports whether occurrences with this status are left out of expansion.
func (s ExceptionStatus) Hidden() bool {
	return s == StatusSkipped || s == StatusArchived
}

func ParseExceptionStatus(s string) (ExceptionStatus, error) {
	st := ExceptionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown exception status %q", s)
	}
	return st, nil
}

// ExceptionKey builds the lookup key {taskId}_{YYYY-MM-DD}.
func ExceptionKey(taskID string, d Date) string {
	return taskID + "_" + d.String()
}

// Exceptions maps ExceptionKey values to statuses. It may hold the exceptions of
// several masters at once.
type Exceptions map[string]ExceptionStatus

func (e Exceptions) Lookup(taskID string, d Date) (ExceptionStatus, bool) {
	if e == nil {
		return "", false
	}
	st, ok := e[ExceptionKey(taskID, d)]
	return st, ok
}

func (e Exceptions) Set(taskID string, d Date, status ExceptionStatus) {
	e[ExceptionKey(taskID, d)] = status
}

// Merge copies every entry of other into e, overwriting on conflict.
func (e Exceptions) Merge(other Exceptions) {
	for k, v := range other {
		e[k] = v
	}
}

// ExceptionSet holds the exceptions of a single master keyed by date.
type ExceptionSet map[Date]ExceptionStatus

// Keyed converts the set to an Exceptions map for taskID.
func (s ExceptionSet) Keyed(taskID string) Exceptions {
	out := make(Exceptions, len(s))
	for d, st := range s {
		out[ExceptionKey(taskID, d)] = st
	}
	return out
}

// Dates returns the dates in ascending order.
func (s ExceptionSet) Dates() []Date {
	dates := make([]Date, 0, len(s))
	for d := range s {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
