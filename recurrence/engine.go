// Package recurrence expands recurring tasks into occurrences, finds the next
// occurrence of a series and scans for occurrences the user never acted on.
//
// Every walk anchors the rule on the task itself: DueDate at the clock of
// StartTime for timed tasks, midnight UTC for all-day ones. The DTSTART line of
// the stored rule is informational and never consulted.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/task"
)

// ErrMissingAnchor is returned by Validate for a recurring task without a due date.
var ErrMissingAnchor = errors.New("recurring task has no due date")

const (
	opExpand = "expand"
	opPast   = "past"
	opMember = "member"
	opCount  = "count"
)

// Engine provides unified recurrence expansion and lookup logic
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
}

// NewEngine creates an engine without a cache.
func NewEngine() *Engine {
	return NewEngineWithConfig(DisabledCacheConfig)
}

// Close releases the cache, if any.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// CacheStats reports cache statistics; ok is false when caching is disabled.
func (e *Engine) CacheStats() (stats CacheStats, ok bool) {
	if e.cache == nil {
		return CacheStats{}, false
	}
	return e.cache.Stats(), true
}

// series is a parsed rule bound to the anchor of its task.
type series struct {
	text    string
	anchor  time.Time
	rr      *rrule.RRule
	exDates []time.Time
}

// seriesFor parses the task's rule. ok is false for tasks that do not recur:
// no rule, or no due date to anchor it on.
func (e *Engine) seriesFor(t task.Task) (s *series, ok bool, err error) {
	if !t.IsRecurring() || t.DueDate == nil {
		return nil, false, nil
	}
	r, err := rule.Parse(*t.RecurrenceRule)
	if err != nil {
		return nil, false, fmt.Errorf("task %s: %w", t.ID, err)
	}
	anchor, _ := t.Anchor()
	rr, err := r.RRule(anchor)
	if err != nil {
		return nil, false, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return &series{
		text:    r.String(),
		anchor:  anchor,
		rr:      rr,
		exDates: r.ExDates(),
	}, true, nil
}

// isExcluded checks if a given time is in the EXDATE list
func (s *series) isExcluded(t time.Time) bool {
	for _, exdate := range s.exDates {
		if t.Equal(exdate) {
			return true
		}

		// Midnight exclusions cover the whole day.
		if exdate.Hour() == 0 && exdate.Minute() == 0 && exdate.Second() == 0 {
			if task.DateOf(t) == task.DateOf(exdate) {
				return true
			}
		}
	}
	return false
}

// instants returns the raw rule instants in [from, to], EXDATEs included,
// capped at MaxOccurrences.
func (e *Engine) instants(op string, s *series, from, to time.Time) []time.Time {
	key := CacheKey{Operation: op, Rule: s.text, Anchor: s.anchor, From: from, To: to}
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached
		}
	}

	var out []time.Time
	next := s.rr.Iterator()
	for {
		v, ok := next()
		if !ok || v.After(to) {
			break
		}
		if v.Before(from) {
			continue
		}
		out = append(out, v)
		if e.config.MaxOccurrences > 0 && len(out) >= e.config.MaxOccurrences {
			break
		}
	}

	if e.cache != nil {
		e.cache.Set(key, out)
	}
	return out
}

// Validate checks that a recurring task can be expanded.
func (e *Engine) Validate(t task.Task) error {
	if !t.IsRecurring() {
		return nil
	}
	if t.DueDate == nil {
		return fmt.Errorf("task %s: %w", t.ID, ErrMissingAnchor)
	}
	_, _, err := e.seriesFor(t)
	return err
}

// Expand returns the occurrences of t whose dates fall in [rangeStart, rangeEnd],
// in ascending order. Skipped and archived occurrences are left out, completed
// ones are flagged. A task that does not recur comes back unchanged as the only
// element, whatever the window.
func (e *Engine) Expand(t task.Task, rangeStart, rangeEnd task.Date, exceptions task.Exceptions) ([]Occurrence, error) {
	s, ok, err := e.seriesFor(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		o := Occurrence{Task: t.Clone()}
		if t.DueDate != nil {
			o.Date = *t.DueDate
		}
		return []Occurrence{o}, nil
	}
	if rangeEnd.Before(rangeStart) {
		return []Occurrence{}, nil
	}

	from := rangeStart.Midnight()
	to := rangeEnd.AddDays(1).Midnight().Add(-time.Second)
	dur, hasDur := t.Duration()

	out := []Occurrence{}
	for _, at := range e.instants(opExpand, s, from, to) {
		if s.isExcluded(at) {
			continue
		}
		d := task.DateOf(at)
		status, found := exceptions.Lookup(t.ID, d)
		if found && status.Hidden() {
			continue
		}

		occ := t.Clone()
		occ.DueDate = &d
		if t.IsTimed() {
			start := at
			occ.StartTime = &start
			occ.EndTime = nil
			if hasDur {
				end := at.Add(dur)
				occ.EndTime = &end
			}
		}
		if found && status == task.StatusCompleted {
			occ.IsCompleted = true
		}

		out = append(out, Occurrence{Task: occ, Date: d, Virtual: true, MasterID: t.ID})
	}
	return out, nil
}

// NextInstant returns the first occurrence of t strictly after the given
// instant. It is None for tasks that do not recur and for exhausted series.
func (e *Engine) NextInstant(t task.Task, after time.Time) (mo.Option[time.Time], error) {
	s, ok, err := e.seriesFor(t)
	if err != nil {
		return mo.None[time.Time](), err
	}
	if !ok {
		return mo.None[time.Time](), nil
	}

	next := s.rr.Iterator()
	for {
		v, ok := next()
		if !ok {
			return mo.None[time.Time](), nil
		}
		if !v.After(after) || s.isExcluded(v) {
			continue
		}
		return mo.Some(v), nil
	}
}

// NextOccurrence is NextInstant reduced to a calendar date.
func (e *Engine) NextOccurrence(t task.Task, after time.Time) (mo.Option[task.Date], error) {
	at, err := e.NextInstant(t, after)
	if err != nil {
		return mo.None[task.Date](), err
	}
	if v, ok := at.Get(); ok {
		return mo.Some(task.DateOf(v)), nil
	}
	return mo.None[task.Date](), nil
}

// PastIncomplete returns the occurrence dates strictly before reference that
// have no exception at all, oldest first. The scan starts at the anchor, or at
// reference minus MaxLookback when that is later.
func (e *Engine) PastIncomplete(t task.Task, exceptions task.Exceptions, reference task.Date) ([]task.Date, error) {
	s, ok, err := e.seriesFor(t)
	if err != nil || !ok {
		return nil, err
	}

	ref := reference.Midnight()
	from := s.anchor
	if lb := e.config.MaxLookback; lb > 0 && ref.Add(-lb).After(from) {
		from = ref.Add(-lb)
	}
	if !from.Before(ref) {
		return nil, nil
	}

	var out []task.Date
	seen := make(map[task.Date]bool)
	for _, at := range e.instants(opPast, s, from, ref.Add(-time.Second)) {
		if s.isExcluded(at) {
			continue
		}
		d := task.DateOf(at)
		if seen[d] {
			continue
		}
		seen[d] = true
		if _, found := exceptions.Lookup(t.ID, d); found {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// IsOccurrence reports whether t has an occurrence on d. For a task that does
// not recur that is its due date.
func (e *Engine) IsOccurrence(t task.Task, d task.Date) (bool, error) {
	s, ok, err := e.seriesFor(t)
	if err != nil {
		return false, err
	}
	if !ok {
		return t.DueDate != nil && *t.DueDate == d, nil
	}
	for _, at := range e.instants(opMember, s, d.Midnight(), d.AddDays(1).Midnight().Add(-time.Second)) {
		if !s.isExcluded(at) {
			return true, nil
		}
	}
	return false, nil
}

// CountBetween returns how many rule instants fall in [from, to). EXDATEs are
// counted too, matching how COUNT is consumed.
func (e *Engine) CountBetween(t task.Task, from, to time.Time) (int, error) {
	s, ok, err := e.seriesFor(t)
	if err != nil || !ok {
		return 0, err
	}
	if !to.After(from) {
		return 0, nil
	}
	n := 0
	for _, at := range e.instants(opCount, s, from, to) {
		if at.Before(to) {
			n++
		}
	}
	return n, nil
}
