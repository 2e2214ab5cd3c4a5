// memory based implementation for testing purposes and the CLI's --memory mode
package memory

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

// Store implements storage.Storage using in-memory maps
type Store struct {
	mu         sync.RWMutex
	tasks      map[string]*task.Task
	exceptions map[string]task.ExceptionSet // key: task id
	logger     *slog.Logger
	now        func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		tasks:      make(map[string]*task.Task),
		exceptions: make(map[string]task.ExceptionSet),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Task operations

func (s *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.TaskNotFound(id)
	}
	c := t.Clone()
	return &c, nil
}

func (s *Store) CreateTask(_ context.Context, t *task.Task) (string, error) {
	if err := storage.CheckTask(*t); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.tasks[id]; exists {
		s.logger.Warn("failed to create task: already exists", "task_id", id)
		return "", storage.NewError(storage.ErrAlreadyExists, "task "+id+" already exists", nil)
	}

	now := s.now().UTC()
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	c := t.Clone()
	s.tasks[id] = &c

	s.logger.Debug("task created", "task_id", id, "recurring", t.IsRecurring())
	return id, nil
}

func (s *Store) UpdateTask(_ context.Context, id string, patch task.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return storage.TaskNotFound(id)
	}

	updated := current.Clone()
	patch.Apply(&updated)
	if err := storage.CheckTask(updated); err != nil {
		return err
	}
	updated.UpdatedAt = s.now().UTC()
	s.tasks[id] = &updated

	s.logger.Debug("task updated", "task_id", id)
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return storage.TaskNotFound(id)
	}
	delete(s.tasks, id)
	delete(s.exceptions, id)

	s.logger.Debug("task deleted", "task_id", id)
	return nil
}

func (s *Store) ListTasks(_ context.Context, opts storage.ListOptions) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if opts.Matches(*t) {
			out = append(out, t.Clone())
		}
	}
	sortTasks(out)
	return out, nil
}

// sortTasks orders by due date with undated tasks last, then by creation time
// and id.
func sortTasks(tasks []task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && *a.DueDate != *b.DueDate:
			return a.DueDate.Before(*b.DueDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Exception operations

func (s *Store) UpsertException(_ context.Context, taskID string, date task.Date, status task.ExceptionStatus) error {
	if !status.Valid() {
		return storage.NewError(storage.ErrInvalidInput, "unknown exception status "+string(status), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return storage.TaskNotFound(taskID)
	}
	set, ok := s.exceptions[taskID]
	if !ok {
		set = task.ExceptionSet{}
		s.exceptions[taskID] = set
	}
	set[date] = status

	s.logger.Debug("exception recorded", "task_id", taskID, "occurrence", date.String(), "status", status)
	return nil
}

func (s *Store) DeleteException(_ context.Context, taskID string, date task.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.exceptions[taskID]; ok {
		delete(set, date)
		if len(set) == 0 {
			delete(s.exceptions, taskID)
		}
	}

	s.logger.Debug("exception removed", "task_id", taskID, "occurrence", date.String())
	return nil
}

func (s *Store) ListExceptions(_ context.Context, taskID string) (task.ExceptionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(task.ExceptionSet, len(s.exceptions[taskID]))
	for d, st := range s.exceptions[taskID] {
		out[d] = st
	}
	return out, nil
}
