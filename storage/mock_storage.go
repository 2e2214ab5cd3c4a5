package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cyp0633/librecur/task"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

// GetTask implements the Storage interface
func (m *MockStorage) GetTask(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*task.Task)
	return t, args.Error(1)
}

// CreateTask implements the Storage interface
func (m *MockStorage) CreateTask(ctx context.Context, t *task.Task) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

// UpdateTask implements the Storage interface
func (m *MockStorage) UpdateTask(ctx context.Context, id string, patch task.Patch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

// DeleteTask implements the Storage interface
func (m *MockStorage) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ListTasks implements the Storage interface
func (m *MockStorage) ListTasks(ctx context.Context, opts ListOptions) ([]task.Task, error) {
	args := m.Called(ctx, opts)
	tasks, _ := args.Get(0).([]task.Task)
	return tasks, args.Error(1)
}

// UpsertException implements the Storage interface
func (m *MockStorage) UpsertException(ctx context.Context, taskID string, date task.Date, status task.ExceptionStatus) error {
	args := m.Called(ctx, taskID, date, status)
	return args.Error(0)
}

// DeleteException implements the Storage interface
func (m *MockStorage) DeleteException(ctx context.Context, taskID string, date task.Date) error {
	args := m.Called(ctx, taskID, date)
	return args.Error(0)
}

// ListExceptions implements the Storage interface
func (m *MockStorage) ListExceptions(ctx context.Context, taskID string) (task.ExceptionSet, error) {
	args := m.Called(ctx, taskID)
	set, _ := args.Get(0).(task.ExceptionSet)
	return set, args.Error(1)
}
