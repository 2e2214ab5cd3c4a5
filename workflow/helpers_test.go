package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/storage/memory"
	"github.com/cyp0633/librecur/task"
)

var fixedNow = time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)

func d(s string) task.Date {
	return task.MustParseDate(s)
}

func at(date string, hour, min int) time.Time {
	return d(date).Midnight().Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, recurrence.NewEngine(), WithClock(func() time.Time { return fixedNow })), store
}

func newMockService(store storage.Storage) *Service {
	return New(store, recurrence.NewEngine(), WithClock(func() time.Time { return fixedNow }))
}

func allDaySeries(id, rrule, due string) task.Task {
	dd := d(due)
	return task.Task{
		ID:             id,
		Title:          "water plants",
		Description:    "balcony",
		Priority:       1,
		DueDate:        &dd,
		RecurrenceRule: task.Ptr(rrule),
	}
}

func timedSeries(id, rrule, due string, hour, min int, dur time.Duration) task.Task {
	tk := allDaySeries(id, rrule, due)
	tk.Title = "standup"
	start := at(due, hour, min)
	end := start.Add(dur)
	tk.StartTime = &start
	tk.EndTime = &end
	return tk
}

func seed(t *testing.T, store storage.Storage, tk task.Task) string {
	t.Helper()
	id, err := store.CreateTask(context.Background(), &tk)
	require.NoError(t, err)
	return id
}

func mustGet(t *testing.T, store storage.Storage, id string) *task.Task {
	t.Helper()
	tk, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return tk
}

func ruleOf(t *testing.T, tk *task.Task) rule.Rule {
	t.Helper()
	require.NotNil(t, tk.RecurrenceRule)
	r, err := rule.Parse(*tk.RecurrenceRule)
	require.NoError(t, err)
	return r
}

func exceptionsOf(t *testing.T, store storage.Storage, id string) task.ExceptionSet {
	t.Helper()
	set, err := store.ListExceptions(context.Background(), id)
	require.NoError(t, err)
	return set
}

func expandDates(t *testing.T, store storage.Storage, id, from, to string) []task.Date {
	t.Helper()
	tk := mustGet(t, store, id)
	occs, err := recurrence.NewEngine().Expand(*tk, d(from), d(to), exceptionsOf(t, store, id).Keyed(id))
	require.NoError(t, err)
	out := make([]task.Date, len(occs))
	for i, o := range occs {
		out[i] = o.Date
	}
	return out
}

func dates(ss ...string) []task.Date {
	out := make([]task.Date, len(ss))
	for i, s := range ss {
		out[i] = d(s)
	}
	return out
}
