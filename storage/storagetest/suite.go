// Package storagetest holds the behaviour every storage.Storage backend must
// share. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

// Factory returns an empty store.
type Factory func(t *testing.T) storage.Storage

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("CreateInvalid", func(t *testing.T) { testCreateInvalid(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Exceptions", func(t *testing.T) { testExceptions(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
}

func sampleMaster() *task.Task {
	due := task.MustParseDate("2026-01-20")
	start := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	return &task.Task{
		Title:          "standup",
		Description:    "daily sync",
		Priority:       2,
		DueDate:        &due,
		StartTime:      &start,
		EndTime:        &end,
		RecurrenceRule: task.Ptr("DTSTART:20260120T090000Z\nRRULE:FREQ=DAILY"),
	}
}

func testCreateAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	in := sampleMaster()
	id, err := s.CreateTask(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, in.ID)
	assert.False(t, in.CreatedAt.IsZero())

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Priority, got.Priority)
	assert.Equal(t, *in.DueDate, *got.DueDate)
	assert.True(t, in.StartTime.Equal(*got.StartTime))
	assert.True(t, in.EndTime.Equal(*got.EndTime))
	assert.Equal(t, *in.RecurrenceRule, *got.RecurrenceRule)
	assert.False(t, got.IsCompleted)
	assert.Nil(t, got.CompletedAt)

	fixed := &task.Task{ID: "fixed-id", Title: "with id"}
	id, err = s.CreateTask(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	_, err = s.GetTask(ctx, "missing")
	assert.True(t, storage.IsNotFound(err), "got %v", err)
}

func testCreateDuplicate(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.CreateTask(ctx, &task.Task{ID: "dup", Title: "first"})
	require.NoError(t, err)

	_, err = s.CreateTask(ctx, &task.Task{ID: "dup", Title: "second"})
	assert.True(t, storage.IsAlreadyExists(err), "got %v", err)

	got, err := s.GetTask(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func testCreateInvalid(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.CreateTask(ctx, &task.Task{Title: "no anchor", RecurrenceRule: task.Ptr("FREQ=DAILY")})
	assert.True(t, storage.IsInvalidInput(err), "got %v", err)
}

func testUpdate(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.CreateTask(ctx, sampleMaster())
	require.NoError(t, err)

	completedAt := time.Date(2026, 1, 21, 8, 0, 0, 0, time.UTC)
	next := task.MustParseDate("2026-01-21")
	err = s.UpdateTask(ctx, id, task.Patch{
		Title:          mo.Some("standup v2"),
		DueDate:        mo.Some(&next),
		StartTime:      mo.Some[*time.Time](nil),
		EndTime:        mo.Some[*time.Time](nil),
		RecurrenceRule: mo.Some[*string](nil),
		IsCompleted:    mo.Some(true),
		CompletedAt:    mo.Some(&completedAt),
	})
	require.NoError(t, err)

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "standup v2", got.Title)
	assert.Equal(t, "daily sync", got.Description, "absent fields are untouched")
	assert.Equal(t, next, *got.DueDate)
	assert.Nil(t, got.StartTime)
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.RecurrenceRule)
	assert.True(t, got.IsCompleted)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))

	// clearing the due date of a series breaks its invariant
	id2, err := s.CreateTask(ctx, sampleMaster())
	require.NoError(t, err)
	err = s.UpdateTask(ctx, id2, task.Patch{DueDate: mo.Some[*task.Date](nil)})
	assert.True(t, storage.IsInvalidInput(err), "got %v", err)

	err = s.UpdateTask(ctx, "missing", task.Patch{Title: mo.Some("x")})
	assert.True(t, storage.IsNotFound(err), "got %v", err)
}

func testReturnsCopies(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	in := sampleMaster()
	id, err := s.CreateTask(ctx, in)
	require.NoError(t, err)

	// mutating the input or a returned value never reaches the store
	*in.DueDate = task.MustParseDate("2030-01-01")
	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.MustParseDate("2026-01-20"), *got.DueDate)

	*got.RecurrenceRule = "FREQ=YEARLY"
	again, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "DTSTART:20260120T090000Z\nRRULE:FREQ=DAILY", *again.RecurrenceRule)
}

func testList(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	late := task.MustParseDate("2026-03-01")
	early := task.MustParseDate("2026-01-01")

	_, err := s.CreateTask(ctx, &task.Task{ID: "undated", Title: "someday"})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, &task.Task{ID: "late", DueDate: &late})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, &task.Task{ID: "done", DueDate: &early, IsCompleted: true})
	require.NoError(t, err)
	master := sampleMaster()
	master.ID = "master"
	_, err = s.CreateTask(ctx, master)
	require.NoError(t, err)

	ids := func(tasks []task.Task) []string {
		out := make([]string, len(tasks))
		for i, tk := range tasks {
			out[i] = tk.ID
		}
		return out
	}

	all, err := s.ListTasks(ctx, storage.ListOptions{IncludeCompleted: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "master", "late", "undated"}, ids(all))

	open, err := s.ListTasks(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"master", "late", "undated"}, ids(open))

	recurring, err := s.ListTasks(ctx, storage.ListOptions{RecurringOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"master"}, ids(recurring))
}

func testExceptions(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.CreateTask(ctx, sampleMaster())
	require.NoError(t, err)

	d1 := task.MustParseDate("2026-01-21")
	d2 := task.MustParseDate("2026-01-22")

	set, err := s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, set)

	require.NoError(t, s.UpsertException(ctx, id, d1, task.StatusSkipped))
	require.NoError(t, s.UpsertException(ctx, id, d1, task.StatusCompleted))
	require.NoError(t, s.UpsertException(ctx, id, d2, task.StatusArchived))

	set, err = s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.ExceptionSet{d1: task.StatusCompleted, d2: task.StatusArchived}, set)

	require.NoError(t, s.DeleteException(ctx, id, d1))
	require.NoError(t, s.DeleteException(ctx, id, d1), "deleting twice is fine")

	set, err = s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.ExceptionSet{d2: task.StatusArchived}, set)

	err = s.UpsertException(ctx, id, d1, task.ExceptionStatus("done"))
	assert.True(t, storage.IsInvalidInput(err), "got %v", err)

	err = s.UpsertException(ctx, "missing", d1, task.StatusCompleted)
	assert.True(t, storage.IsNotFound(err), "got %v", err)
}

func testDeleteCascades(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id, err := s.CreateTask(ctx, sampleMaster())
	require.NoError(t, err)
	require.NoError(t, s.UpsertException(ctx, id, task.MustParseDate("2026-01-21"), task.StatusCompleted))

	require.NoError(t, s.DeleteTask(ctx, id))

	_, err = s.GetTask(ctx, id)
	assert.True(t, storage.IsNotFound(err))

	set, err := s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, set)

	err = s.DeleteTask(ctx, id)
	assert.True(t, storage.IsNotFound(err))
}
