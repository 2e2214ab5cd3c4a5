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

// Resolution is the caller's decision for one missed occurrence.
type Resolution string

const (
	ResolveCompleted Resolution = "completed"
	ResolveSkipped   Resolution = "skipped"
	// ResolveIgnore records nothing. The date drops out of view once the master
	// moves past it.
	ResolveIgnore Resolution = "ignore"
)

func (r Resolution) valid() bool {
	switch r {
	case ResolveCompleted, ResolveSkipped, ResolveIgnore:
		return true
	}
	return false
}

// ParseResolution accepts the Resolution names case-insensitively.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if !r.valid() {
		return "", invalidf("unknown resolution %q", s)
	}
	return r, nil
}

// CompleteStatus tells whether a completion ran or is waiting on the caller.
type CompleteStatus string

const (
	StatusDone            CompleteStatus = "done"
	StatusNeedsResolution CompleteStatus = "needs_resolution"
)

type CompleteRequest struct {
	TaskID string
	// OccurrenceDate selects a virtual occurrence. It defaults to the master's
	// due date and must match the due date of a task that does not recur.
	OccurrenceDate mo.Option[task.Date]
	// Resolutions answers the missed occurrences of an earlier
	// StatusNeedsResolution result.
	Resolutions map[task.Date]Resolution
}

type CompleteResult struct {
	Status CompleteStatus
	// Pending lists the missed occurrences that need a Resolution before the
	// completion can run. Set only with StatusNeedsResolution.
	Pending []task.Date

	Occurrence task.Date
	CloneID    string
	// Resolved holds what was recorded for each missed occurrence; None for
	// ResolveIgnore.
	Resolved map[task.Date]mo.Option[task.ExceptionStatus]
	// Next is the master's new due date. It is None when the series ended.
	Next        mo.Option[task.Date]
	SeriesEnded bool
}

// Complete completes a task or one occurrence of a series.
//
// For a series the steps are: record the caller's resolutions for missed
// occurrences, create a completed clone of the occurrence, mark the occurrence
// completed on the master, then move the master to its next occurrence or end
// it. When missed occurrences have no resolution yet, nothing is written and
// the result lists them with StatusNeedsResolution.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	t, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if !t.IsRecurring() {
		return s.completeSingle(ctx, t, req.OccurrenceDate)
	}

	d := *t.DueDate
	if v, ok := req.OccurrenceDate.Get(); ok {
		d = v
	}
	occ, at, err := s.occurrenceOn(*t, d)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	for date, res := range req.Resolutions {
		if !res.valid() {
			return nil, fmt.Errorf("complete: %w", invalidf("unknown resolution %q for %s", res, date))
		}
	}

	set, err := s.store.ListExceptions(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	missed, err := s.engine.PastIncomplete(*t, set.Keyed(t.ID), d)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	var unresolved []task.Date
	for _, m := range missed {
		if m == d {
			continue
		}
		if _, ok := req.Resolutions[m]; !ok {
			unresolved = append(unresolved, m)
		}
	}
	if len(unresolved) > 0 {
		s.logger.Info("completion needs resolution of missed occurrences",
			"task_id", t.ID, "occurrence", d.String(), "pending", len(unresolved))
		return &CompleteResult{Status: StatusNeedsResolution, Pending: unresolved, Occurrence: d}, nil
	}

	result := &CompleteResult{
		Status:     StatusDone,
		Occurrence: d,
		CloneID:    DerivedID(t.ID, KindClone, d),
		Resolved:   make(map[task.Date]mo.Option[task.ExceptionStatus], len(missed)),
	}
	r := s.begin("complete", t.ID)

	if len(missed) > 0 {
		err := r.step(ctx, StepResolvePast, func(ctx context.Context) error {
			for _, m := range missed {
				if m == d {
					continue
				}
				switch req.Resolutions[m] {
				case ResolveCompleted:
					if err := s.store.UpsertException(ctx, t.ID, m, task.StatusCompleted); err != nil {
						return err
					}
					result.Resolved[m] = mo.Some(task.StatusCompleted)
				case ResolveSkipped:
					if err := s.store.UpsertException(ctx, t.ID, m, task.StatusSkipped); err != nil {
						return err
					}
					result.Resolved[m] = mo.Some(task.StatusSkipped)
				case ResolveIgnore:
					result.Resolved[m] = mo.None[task.ExceptionStatus]()
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	err = r.step(ctx, StepClone, func(ctx context.Context) error {
		clone := occ.Task.Clone()
		clone.ID = result.CloneID
		clone.RecurrenceRule = nil
		clone.IsCompleted = true
		clone.CompletedAt = &now
		clone.CreatedAt = time.Time{}
		clone.UpdatedAt = time.Time{}
		return s.createDerived(ctx, &clone)
	})
	if err != nil {
		return nil, err
	}

	err = r.step(ctx, StepMarkResolved, func(ctx context.Context) error {
		return s.store.UpsertException(ctx, t.ID, d, task.StatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	err = r.step(ctx, StepAdvance, func(ctx context.Context) error {
		adv, err := s.advance(ctx, t.ID, d, at)
		result.Next, result.SeriesEnded = adv.next, adv.ended
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) completeSingle(ctx context.Context, t *task.Task, date mo.Option[task.Date]) (*CompleteResult, error) {
	if d, ok := date.Get(); ok && (t.DueDate == nil || *t.DueDate != d) {
		return nil, fmt.Errorf("complete: %w", invalidf("task %s is not due on %s", t.ID, d))
	}
	result := &CompleteResult{Status: StatusDone, SeriesEnded: true}
	if t.DueDate != nil {
		result.Occurrence = *t.DueDate
	}
	if t.IsCompleted {
		return result, nil
	}

	now := s.now().UTC()
	err := s.begin("complete", t.ID).step(ctx, StepComplete, func(ctx context.Context) error {
		return s.store.UpdateTask(ctx, t.ID, task.Patch{
			IsCompleted: mo.Some(true),
			CompletedAt: mo.Some(&now),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Uncomplete reverts a completion. A real reference clears the task's
// completion; a virtual one deletes the completed exception of that occurrence.
// Clones made by Complete are left alone.
func (s *Service) Uncomplete(ctx context.Context, ref task.OccurrenceRef) error {
	switch ref := ref.(type) {
	case task.RealRef:
		t, err := s.store.GetTask(ctx, ref.TaskID)
		if err != nil {
			return fmt.Errorf("uncomplete: %w", err)
		}
		if !t.IsCompleted {
			return nil
		}
		return s.begin("uncomplete", t.ID).step(ctx, StepUncomplete, func(ctx context.Context) error {
			return s.store.UpdateTask(ctx, t.ID, task.Patch{
				IsCompleted: mo.Some(false),
				CompletedAt: mo.Some[*time.Time](nil),
			})
		})

	case task.VirtualRef:
		m, err := s.getMaster(ctx, ref.MasterID)
		if err != nil {
			return fmt.Errorf("uncomplete: %w", err)
		}
		set, err := s.store.ListExceptions(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("uncomplete: %w", err)
		}
		st, ok := set[ref.Date]
		if !ok {
			return nil
		}
		if st != task.StatusCompleted {
			return fmt.Errorf("uncomplete: %w", invalidf("occurrence %s is %s, not completed", ref, st))
		}
		return s.begin("uncomplete", m.ID).step(ctx, StepUncomplete, func(ctx context.Context) error {
			return s.store.DeleteException(ctx, m.ID, ref.Date)
		})

	default:
		return fmt.Errorf("uncomplete: %w", invalidf("unsupported reference %T", ref))
	}
}

// Skip marks the occurrence of masterID on d as skipped. Skipping the
// occurrence the master is anchored on also moves the master forward.
func (s *Service) Skip(ctx context.Context, masterID string, d task.Date) (mo.Option[task.Date], error) {
	m, err := s.getMaster(ctx, masterID)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("skip: %w", err)
	}
	_, at, err := s.occurrenceOn(*m, d)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("skip: %w", err)
	}

	r := s.begin("skip", m.ID)
	err = r.step(ctx, StepMarkSkipped, func(ctx context.Context) error {
		return s.store.UpsertException(ctx, m.ID, d, task.StatusSkipped)
	})
	if err != nil {
		return mo.None[task.Date](), err
	}
	if d != *m.DueDate {
		return mo.Some(*m.DueDate), nil
	}

	var adv advanceResult
	err = r.step(ctx, StepAdvance, func(ctx context.Context) error {
		a, err := s.advance(ctx, m.ID, d, at)
		adv = a
		return err
	})
	return adv.next, err
}

// DeleteOccurrence removes the occurrence of masterID on d from the series by
// adding an EXDATE to its rule. Deleting the anchor occurrence also moves the
// master forward.
func (s *Service) DeleteOccurrence(ctx context.Context, masterID string, d task.Date) (mo.Option[task.Date], error) {
	m, err := s.getMaster(ctx, masterID)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("delete occurrence: %w", err)
	}
	_, at, err := s.occurrenceOn(*m, d)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("delete occurrence: %w", err)
	}
	text, err := rule.AddExclusionDate(*m.RecurrenceRule, at)
	if err != nil {
		return mo.None[task.Date](), fmt.Errorf("delete occurrence: %w", err)
	}

	r := s.begin("delete-occurrence", m.ID)
	err = r.step(ctx, StepExclude, func(ctx context.Context) error {
		return s.store.UpdateTask(ctx, m.ID, task.Patch{RecurrenceRule: mo.Some(&text)})
	})
	if err != nil {
		return mo.None[task.Date](), err
	}
	if d != *m.DueDate {
		return mo.Some(*m.DueDate), nil
	}

	var adv advanceResult
	err = r.step(ctx, StepAdvance, func(ctx context.Context) error {
		a, err := s.advance(ctx, m.ID, d, at)
		adv = a
		return err
	})
	return adv.next, err
}

type advanceResult struct {
	next  mo.Option[task.Date]
	ended bool
}

// advance moves the master past its occurrence on d, which starts at at. The
// master is re-read first: when another invocation already moved it past d it
// is left as found.
func (s *Service) advance(ctx context.Context, masterID string, d task.Date, at time.Time) (advanceResult, error) {
	m, err := s.store.GetTask(ctx, masterID)
	if err != nil {
		return advanceResult{}, err
	}
	if !m.IsRecurring() {
		s.logger.Info("master no longer recurs, not advancing", "task_id", m.ID)
		return advanceResult{ended: true}, nil
	}
	if m.DueDate.After(d) {
		s.logger.Info("master already past occurrence, not advancing",
			"task_id", m.ID, "occurrence", d.String(), "due", m.DueDate.String())
		return advanceResult{next: mo.Some(*m.DueDate)}, nil
	}

	next, err := s.engine.NextInstant(*m, at)
	if err != nil {
		return advanceResult{}, err
	}
	if n, ok := next.Get(); ok {
		patch, ok, err := s.reanchor(*m, n)
		if err != nil {
			return advanceResult{}, err
		}
		if ok {
			if err := s.store.UpdateTask(ctx, m.ID, patch); err != nil {
				return advanceResult{}, err
			}
			return advanceResult{next: mo.Some(task.DateOf(n))}, nil
		}
	}

	if err := s.store.UpdateTask(ctx, m.ID, s.endSeries()); err != nil {
		return advanceResult{}, err
	}
	s.logger.Debug("series ended", "task_id", m.ID, "occurrence", d.String())
	return advanceResult{ended: true}, nil
}

// reanchor builds the patch that moves m onto the occurrence starting at n. The
// rule's DTSTART follows the new anchor and COUNT shrinks by the occurrences
// walked past. ok is false when no count is left.
func (s *Service) reanchor(m task.Task, n time.Time) (task.Patch, bool, error) {
	r, err := rule.Parse(*m.RecurrenceRule)
	if err != nil {
		return task.Patch{}, false, err
	}
	if c, ok := r.Count(); ok {
		anchor, _ := m.Anchor()
		walked, err := s.engine.CountBetween(m, anchor, n)
		if err != nil {
			return task.Patch{}, false, err
		}
		if c-walked < 1 {
			return task.Patch{}, false, nil
		}
		r = r.WithCount(c - walked)
	}
	text := r.WithAnchor(n).String()

	due := task.DateOf(n)
	patch := task.Patch{
		DueDate:        mo.Some(&due),
		RecurrenceRule: mo.Some(&text),
		IsCompleted:    mo.Some(false),
		CompletedAt:    mo.Some[*time.Time](nil),
	}
	if m.IsTimed() {
		start := n
		patch.StartTime = mo.Some(&start)
		patch.EndTime = mo.Some[*time.Time](nil)
		if dur, ok := m.Duration(); ok {
			end := n.Add(dur)
			patch.EndTime = mo.Some(&end)
		}
	}
	return patch, true, nil
}

// endSeries turns a master with nothing left to occur into a completed task.
func (s *Service) endSeries() task.Patch {
	now := s.now().UTC()
	return task.Patch{
		IsCompleted:    mo.Some(true),
		CompletedAt:    mo.Some(&now),
		RecurrenceRule: mo.Some[*string](nil),
	}
}
