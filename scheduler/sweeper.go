// Package scheduler runs the missed-occurrence scan on a timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

// Missed lists the occurrences of one series that were never completed,
// skipped or archived.
type Missed struct {
	Task  task.Task
	Dates []task.Date
}

// MissedFunc receives the non-empty result of a scheduled sweep.
type MissedFunc func(ctx context.Context, missed []Missed)

// Sweeper wraps a cron scheduler that periodically scans every open series.
type Sweeper struct {
	store   storage.Storage
	engine  *recurrence.Engine
	handler MissedFunc
	cron    *cron.Cron
	logger  *slog.Logger
	now     func() time.Time
	loc     *time.Location
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger for the sweeper.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source that decides "today" for scheduled runs.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone cron specs and "today" are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Sweeper) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSweeper creates a stopped sweeper. A nil engine gets a default one.
func NewSweeper(store storage.Storage, engine *recurrence.Engine, handler MissedFunc, opts ...Option) *Sweeper {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	s := &Sweeper{
		store:   store,
		engine:  engine,
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.loc), cron.WithSeconds())
	return s
}

// Schedule registers a sweep every interval, rounded down to whole seconds.
func (s *Sweeper) Schedule(interval time.Duration) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), s.sweep)
}

// ScheduleDaily registers a sweep every day at the given HH:MM time.
func (s *Sweeper) ScheduleDaily(timeStr string) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, s.sweep)
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Today returns the current calendar date in the sweeper's location.
func (s *Sweeper) Today() task.Date {
	y, m, d := s.now().In(s.loc).Date()
	return task.NewDate(y, m, d)
}

func (s *Sweeper) sweep() {
	ctx := context.Background()
	today := s.Today()

	missed, err := s.RunOnce(ctx, today)
	if err != nil {
		s.logger.Error("sweep finished with errors", "today", today.String(), "error", err)
	}
	if len(missed) == 0 || s.handler == nil {
		return
	}
	s.handler(ctx, missed)
}

// RunOnce scans every open recurring master for occurrences before today
// that have no exception. A series whose rule cannot be read is logged and
// left out; its error is joined into the returned error while the other
// series are still reported.
func (s *Sweeper) RunOnce(ctx context.Context, today task.Date) ([]Missed, error) {
	masters, err := s.store.ListTasks(ctx, storage.ListOptions{RecurringOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list recurring tasks: %w", err)
	}

	var (
		out  []Missed
		errs []error
	)
	for _, m := range masters {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		set, err := s.store.ListExceptions(ctx, m.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", m.ID, err))
			continue
		}
		dates, err := s.engine.PastIncomplete(m, set.Keyed(m.ID), today)
		if err != nil {
			s.logger.Warn("skipping series in sweep", "task_id", m.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(dates) == 0 {
			continue
		}
		out = append(out, Missed{Task: m, Dates: dates})
	}

	s.logger.Info("sweep complete", "today", today.String(), "series", len(masters), "with_missed", len(out))
	return out, errors.Join(errs...)
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
