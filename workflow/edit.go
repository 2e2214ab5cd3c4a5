package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/task"
)

// Mode selects how much of a series an edit touches.
type Mode string

const (
	// ModeSingle detaches one occurrence into a standalone task.
	ModeSingle Mode = "single"
	// ModeFollowing ends the series before the occurrence and starts a new
	// series from it.
	ModeFollowing Mode = "following"
	// ModeAll edits the master in place.
	ModeAll Mode = "all"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeSingle, ModeFollowing, ModeAll:
		return m, nil
	}
	return "", invalidf("unknown edit mode %q", s)
}

// ScheduleChange says what an edit does to the date and time of the edited
// occurrence. The implementations are KeepSchedule, ShiftDate, SetTimedAnchor
// and ClearToAllDay; a nil ScheduleChange is KeepSchedule.
type ScheduleChange interface {
	isScheduleChange()
}

// KeepSchedule leaves date and time alone.
type KeepSchedule struct{}

// ShiftDate moves to another date, keeping the clock time and duration of a
// timed task.
type ShiftDate struct {
	Date task.Date
}

// SetTimedAnchor makes the task timed at the UTC clock of Start, on Date or on
// the current date. End sets the duration; without it the previous duration
// is kept.
type SetTimedAnchor struct {
	Date  mo.Option[task.Date]
	Start time.Time
	End   mo.Option[time.Time]
}

// ClearToAllDay drops the times, optionally moving to Date.
type ClearToAllDay struct {
	Date mo.Option[task.Date]
}

func (KeepSchedule) isScheduleChange()   {}
func (ShiftDate) isScheduleChange()      {}
func (SetTimedAnchor) isScheduleChange() {}
func (ClearToAllDay) isScheduleChange()  {}

// Updates are the user's changes to an occurrence.
type Updates struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	Priority    mo.Option[int]
	Schedule    ScheduleChange
}

func (u Updates) applyContent(t *task.Task) {
	if v, ok := u.Title.Get(); ok {
		t.Title = v
	}
	if v, ok := u.Description.Get(); ok {
		t.Description = v
	}
	if v, ok := u.Priority.Get(); ok {
		t.Priority = v
	}
}

type EditRequest struct {
	MasterID string
	Mode     Mode
	// OccurrenceDate is the occurrence being edited. ModeAll ignores it.
	OccurrenceDate task.Date
	Updates        Updates
}

type EditResult struct {
	Mode Mode
	// TaskID is the task that now carries the edited occurrence: the detached
	// task, the new series or the master.
	TaskID string
	// Recurring reports whether TaskID is a series.
	Recurring bool
	// MasterEnded is set when the master had no occurrence left and was turned
	// into a completed task.
	MasterEnded bool
}

// schedule is the date and time part of a task.
type schedule struct {
	date       task.Date
	start, end *time.Time
}

func scheduleOf(t task.Task) schedule {
	sc := schedule{start: t.StartTime, end: t.EndTime}
	if t.DueDate != nil {
		sc.date = *t.DueDate
	}
	return sc
}

// anchor is the instant a series on this schedule starts at.
func (sc schedule) anchor() time.Time {
	if sc.start != nil {
		return sc.date.At(*sc.start)
	}
	return sc.date.Midnight()
}

func (sc schedule) duration() (time.Duration, bool) {
	if sc.start == nil || sc.end == nil {
		return 0, false
	}
	return sc.end.Sub(*sc.start), true
}

// apply returns the schedule after change.
func (sc schedule) apply(change ScheduleChange) (schedule, error) {
	switch c := change.(type) {
	case nil, KeepSchedule:
		return sc, nil

	case ShiftDate:
		out := schedule{date: c.Date}
		if sc.start != nil {
			st := c.Date.At(*sc.start)
			out.start = &st
			if dur, ok := sc.duration(); ok {
				e := st.Add(dur)
				out.end = &e
			}
		}
		return out, nil

	case SetTimedAnchor:
		out := schedule{date: c.Date.OrElse(sc.date)}
		st := out.date.At(c.Start)
		out.start = &st
		if end, ok := c.End.Get(); ok {
			if end.Before(c.Start) {
				return schedule{}, invalidf("end %s is before start %s", end.Format(time.RFC3339), c.Start.Format(time.RFC3339))
			}
			e := st.Add(end.Sub(c.Start))
			out.end = &e
		} else if dur, ok := sc.duration(); ok {
			e := st.Add(dur)
			out.end = &e
		}
		return out, nil

	case ClearToAllDay:
		return schedule{date: c.Date.OrElse(sc.date)}, nil

	default:
		return schedule{}, invalidf("unsupported schedule change %T", change)
	}
}

// Edit applies req.Updates to one occurrence, to the occurrence and the rest of
// the series, or to the whole series.
func (s *Service) Edit(ctx context.Context, req EditRequest) (*EditResult, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	m, err := s.getMaster(ctx, req.MasterID)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	switch mode {
	case ModeSingle:
		return s.editSingle(ctx, m, req)
	case ModeFollowing:
		return s.editFollowing(ctx, m, req)
	default:
		return s.editAll(ctx, m, req)
	}
}

// editSingle archives the occurrence on the master and recreates it as a
// standalone task carrying the updates.
func (s *Service) editSingle(ctx context.Context, m *task.Task, req EditRequest) (*EditResult, error) {
	d := req.OccurrenceDate
	occ, at, err := s.occurrenceOn(*m, d)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	sc, err := scheduleOf(occ.Task).apply(req.Updates.Schedule)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	detached := occ.Task.Clone()
	detached.ID = DerivedID(m.ID, KindDetached, d)
	detached.RecurrenceRule = nil
	detached.DueDate = &sc.date
	detached.StartTime, detached.EndTime = sc.start, sc.end
	detached.CreatedAt, detached.UpdatedAt = time.Time{}, time.Time{}
	req.Updates.applyContent(&detached)

	result := &EditResult{Mode: ModeSingle, TaskID: detached.ID}
	r := s.begin("edit-single", m.ID)

	err = r.step(ctx, StepArchive, func(ctx context.Context) error {
		return s.store.UpsertException(ctx, m.ID, d, task.StatusArchived)
	})
	if err != nil {
		return nil, err
	}
	err = r.step(ctx, StepCreate, func(ctx context.Context) error {
		return s.createDerived(ctx, &detached)
	})
	if err != nil {
		return nil, err
	}

	if d == *m.DueDate {
		err = r.step(ctx, StepAdvance, func(ctx context.Context) error {
			adv, err := s.advance(ctx, m.ID, d, at)
			result.MasterEnded = adv.ended
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// editFollowing ends the master just before the occurrence and starts a new
// series from it with the updates applied. A weekly tail repeats on the
// weekday of its new anchor only.
func (s *Service) editFollowing(ctx context.Context, m *task.Task, req EditRequest) (*EditResult, error) {
	d := req.OccurrenceDate
	occ, splitAt, err := s.occurrenceOn(*m, d)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	sc, err := scheduleOf(occ.Task).apply(req.Updates.Schedule)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	r0, err := rule.Parse(*m.RecurrenceRule)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	// The master keeps the occurrences before the split.
	truncated := m.Clone()
	head := r0.WithoutCount().WithUntil(splitAt.Add(-time.Second)).String()
	truncated.RecurrenceRule = &head
	anchor, _ := m.Anchor()
	left, err := s.engine.NextInstant(truncated, anchor.Add(-time.Second))
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	masterPatch := task.Patch{RecurrenceRule: mo.Some(&head)}
	masterEnded := left.IsAbsent()
	if masterEnded {
		masterPatch = s.endSeries()
	}

	// The new series takes over from the split with what is left of COUNT.
	tail := r0
	if c, ok := r0.Count(); ok {
		walked, err := s.engine.CountBetween(*m, anchor, splitAt)
		if err != nil {
			return nil, fmt.Errorf("edit: %w", err)
		}
		tail = tail.WithCount(max(c-walked, 1))
	}
	newAnchor := sc.anchor()
	tail = tail.WithAnchor(newAnchor).WithWeekday(sc.date.Weekday())
	tailText := tail.String()

	next := m.Clone()
	next.ID = DerivedID(m.ID, KindSplit, d)
	next.DueDate = &sc.date
	next.StartTime, next.EndTime = sc.start, sc.end
	next.RecurrenceRule = &tailText
	next.IsCompleted, next.CompletedAt = false, nil
	next.CreatedAt, next.UpdatedAt = time.Time{}, time.Time{}
	req.Updates.applyContent(&next)

	first, err := s.engine.NextInstant(next, newAnchor.Add(-time.Second))
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	if first.IsAbsent() {
		now := s.now().UTC()
		next.RecurrenceRule = nil
		next.IsCompleted, next.CompletedAt = true, &now
	}

	result := &EditResult{Mode: ModeFollowing, TaskID: next.ID, Recurring: next.IsRecurring(), MasterEnded: masterEnded}
	r := s.begin("edit-following", m.ID)

	err = r.step(ctx, StepTruncate, func(ctx context.Context) error {
		return s.store.UpdateTask(ctx, m.ID, masterPatch)
	})
	if err != nil {
		return nil, err
	}
	if !masterEnded {
		err = r.step(ctx, StepArchive, func(ctx context.Context) error {
			return s.store.UpsertException(ctx, m.ID, d, task.StatusArchived)
		})
		if err != nil {
			return nil, err
		}
	}
	err = r.step(ctx, StepCreate, func(ctx context.Context) error {
		return s.createDerived(ctx, &next)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// editAll rewrites the master. The DTSTART of its rule is always rewritten to
// the resulting anchor. A weekly rule follows the anchor to its weekday when a
// start time is set or the anchor moved to another date.
func (s *Service) editAll(ctx context.Context, m *task.Task, req EditRequest) (*EditResult, error) {
	current := scheduleOf(*m)
	sc, err := current.apply(req.Updates.Schedule)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	r0, err := rule.Parse(*m.RecurrenceRule)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	r1 := r0.WithAnchor(sc.anchor())
	if _, timed := req.Updates.Schedule.(SetTimedAnchor); timed || sc.date != current.date {
		r1 = r1.WithWeekday(sc.date.Weekday())
	}
	text := r1.String()

	updated := m.Clone()
	updated.DueDate = &sc.date
	updated.StartTime, updated.EndTime = sc.start, sc.end
	updated.RecurrenceRule = &text
	req.Updates.applyContent(&updated)

	patch := task.Patch{
		DueDate:        mo.Some(updated.DueDate),
		StartTime:      mo.Some(updated.StartTime),
		EndTime:        mo.Some(updated.EndTime),
		RecurrenceRule: mo.Some(updated.RecurrenceRule),
	}
	if updated.Title != m.Title {
		patch.Title = mo.Some(updated.Title)
	}
	if updated.Description != m.Description {
		patch.Description = mo.Some(updated.Description)
	}
	if updated.Priority != m.Priority {
		patch.Priority = mo.Some(updated.Priority)
	}

	first, err := s.engine.NextInstant(updated, sc.anchor().Add(-time.Second))
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	ended := first.IsAbsent()
	if ended {
		end := s.endSeries()
		patch.IsCompleted, patch.CompletedAt, patch.RecurrenceRule = end.IsCompleted, end.CompletedAt, end.RecurrenceRule
	}

	err = s.begin("edit-all", m.ID).step(ctx, StepUpdate, func(ctx context.Context) error {
		return s.store.UpdateTask(ctx, m.ID, patch)
	})
	if err != nil {
		return nil, err
	}
	return &EditResult{Mode: ModeAll, TaskID: m.ID, Recurring: !ended, MasterEnded: ended}, nil
}
