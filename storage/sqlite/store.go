// Package sqlite persists tasks and occurrence exceptions in a SQLite database
// through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	driver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

// DefaultDSN is used when Open is given an empty DSN.
const DefaultDSN = "librecur.db"

// Store implements storage.Storage on top of gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store. Slow queries and driver warnings
// are routed to it as well.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens a SQLite database and runs migrations.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	s := &Store{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		slogWriter{s.logger},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(driver.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return s.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if isMemoryDSN(dsn) {
		// every pooled connection to a private in-memory database is a new database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&taskRow{}, &exceptionRow{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	s.db = db
	s.logger.Debug("sqlite store opened", "dsn", dsn)
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if isMemoryDSN(dsn) {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// slogWriter adapts a slog.Logger to gorm's logger.Writer.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "gorm")
}

// Task operations

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.TaskNotFound(id)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	t, err := row.toTask()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) (string, error) {
	if err := storage.CheckTask(*t); err != nil {
		return "", err
	}

	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()

	row := fromTask(*t)
	row.ID = id
	row.CreatedAt = now
	row.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Warn("failed to create task: already exists", "task_id", id)
			return "", storage.NewError(storage.ErrAlreadyExists, "task "+id+" already exists", err)
		}
		return "", fmt.Errorf("create task: %w", err)
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	s.logger.Debug("task created", "task_id", id, "recurring", t.IsRecurring())
	return id, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch task.Patch) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.TaskNotFound(id)
			}
			return err
		}
		t, err := row.toTask()
		if err != nil {
			return err
		}
		patch.Apply(&t)
		if err := storage.CheckTask(t); err != nil {
			return err
		}
		updated := fromTask(t)
		updated.UpdatedAt = s.now().UTC()
		return tx.Save(&updated).Error
	})
	if err != nil {
		var se *storage.Error
		if errors.As(err, &se) {
			return err
		}
		return fmt.Errorf("update task %s: %w", id, err)
	}

	s.logger.Debug("task updated", "task_id", id)
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&exceptionRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&taskRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.TaskNotFound(id)
		}
		return nil
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.logger.Debug("task deleted", "task_id", id)
	return nil
}

func (s *Store) ListTasks(ctx context.Context, opts storage.ListOptions) ([]task.Task, error) {
	q := s.db.WithContext(ctx)
	if opts.RecurringOnly {
		q = q.Where("recurrence_rule IS NOT NULL AND recurrence_rule <> ''")
	}
	if !opts.IncludeCompleted {
		q = q.Where("is_completed = ?", false)
	}

	var rows []taskRow
	if err := q.Order("due_date NULLS LAST, created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.toTask()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Exception operations

func (s *Store) UpsertException(ctx context.Context, taskID string, date task.Date, status task.ExceptionStatus) error {
	if !status.Valid() {
		return storage.NewError(storage.ErrInvalidInput, "unknown exception status "+string(status), nil)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&taskRow{}).Where("id = ?", taskID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return storage.TaskNotFound(taskID)
		}
		row := exceptionRow{
			TaskID:    taskID,
			Date:      date.String(),
			Status:    string(status),
			UpdatedAt: s.now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		if storage.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("upsert exception %s@%s: %w", taskID, date, err)
	}

	s.logger.Debug("exception recorded", "task_id", taskID, "occurrence", date.String(), "status", status)
	return nil
}

func (s *Store) DeleteException(ctx context.Context, taskID string, date task.Date) error {
	if err := s.db.WithContext(ctx).
		Where("task_id = ? AND date = ?", taskID, date.String()).
		Delete(&exceptionRow{}).Error; err != nil {
		return fmt.Errorf("delete exception %s@%s: %w", taskID, date, err)
	}
	s.logger.Debug("exception removed", "task_id", taskID, "occurrence", date.String())
	return nil
}

func (s *Store) ListExceptions(ctx context.Context, taskID string) (task.ExceptionSet, error) {
	var rows []exceptionRow
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list exceptions %s: %w", taskID, err)
	}

	out := make(task.ExceptionSet, len(rows))
	for _, row := range rows {
		d, err := task.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("exception %s: %w", taskID, err)
		}
		st, err := task.ParseExceptionStatus(row.Status)
		if err != nil {
			return nil, fmt.Errorf("exception %s@%s: %w", taskID, row.Date, err)
		}
		out[d] = st
	}
	return out, nil
}
