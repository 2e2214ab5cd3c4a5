package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/storage/storagetest"
	"github.com/cyp0633/librecur/task"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New()
	})
}

func TestStore_Clock(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 20, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	now := created
	s := New(WithClock(func() time.Time { return now }))

	id, err := s.CreateTask(ctx, &task.Task{Title: "x"})
	require.NoError(t, err)

	now = created.Add(time.Hour)
	require.NoError(t, s.UpdateTask(ctx, id, task.Patch{Title: mo.Some("y")}))

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created.UTC(), got.CreatedAt)
	assert.Equal(t, now.UTC(), got.UpdatedAt)
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestStore_NilOptionsKeepDefaults(t *testing.T) {
	s := New(WithLogger(nil), WithClock(nil))
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.now)
}

func TestStore_FailedUpdateLeavesTask(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := task.MustParseDate("2026-01-20")

	id, err := s.CreateTask(ctx, &task.Task{Title: "series", DueDate: &due, RecurrenceRule: task.Ptr("FREQ=DAILY")})
	require.NoError(t, err)

	err = s.UpdateTask(ctx, id, task.Patch{Title: mo.Some("renamed"), DueDate: mo.Some[*task.Date](nil)})
	require.Error(t, err)

	got, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "series", got.Title)
	assert.Equal(t, due, *got.DueDate)
}

func TestStore_ListExceptionsIsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := task.MustParseDate("2026-01-21")

	id, err := s.CreateTask(ctx, &task.Task{Title: "x"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertException(ctx, id, d, task.StatusSkipped))

	set, err := s.ListExceptions(ctx, id)
	require.NoError(t, err)
	set[d] = task.StatusCompleted
	delete(set, d)

	again, err := s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSkipped, again[d])
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := task.MustParseDate("2026-01-01")

	id, err := s.CreateTask(ctx, &task.Task{Title: "series", DueDate: &due, RecurrenceRule: task.Ptr("FREQ=DAILY")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := due.AddDays(i)
			assert.NoError(t, s.UpsertException(ctx, id, d, task.StatusCompleted))
			_, err := s.ListExceptions(ctx, id)
			assert.NoError(t, err)
			_, err = s.ListTasks(ctx, storage.ListOptions{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	set, err := s.ListExceptions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, set, 20)
}
