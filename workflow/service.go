// Package workflow runs the multi-step operations on recurring tasks: completing
// an occurrence, and editing one occurrence, the rest of a series or all of it.
//
// Each workflow is a fixed sequence of store writes with no transaction around
// them. A failing step stops the sequence and is reported as a *StepError that
// lists the steps already committed. Steps are written so that re-running a
// workflow after a partial failure does not duplicate records: derived tasks get
// deterministic ids and exception writes are keyed upserts.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

// ErrInvalidRequest is wrapped by every error caused by the request itself
// rather than by the store.
var ErrInvalidRequest = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Step names reported in StepError and in logs.
const (
	StepComplete     = "complete"
	StepUncomplete   = "uncomplete"
	StepResolvePast  = "resolve-past"
	StepClone        = "clone"
	StepMarkResolved = "mark-resolved"
	StepAdvance      = "advance"
	StepMarkSkipped  = "mark-skipped"
	StepExclude      = "exclude"
	StepArchive      = "archive"
	StepCreate       = "create"
	StepTruncate     = "truncate"
	StepUpdate       = "update"
)

// StepError reports a workflow that stopped at Step. Committed lists the steps
// that had already been written, in order.
type StepError struct {
	Workflow  string
	TaskID    string
	Step      string
	Committed []string
	Err       error
}

func (e *StepError) Error() string {
	if len(e.Committed) == 0 {
		return fmt.Sprintf("%s %s: step %s failed: %v", e.Workflow, e.TaskID, e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s: step %s failed after %s: %v",
		e.Workflow, e.TaskID, e.Step, strings.Join(e.Committed, ","), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Service runs workflows against a store.
type Service struct {
	store  storage.Storage
	engine *recurrence.Engine
	logger *slog.Logger
	now    func() time.Time
}

// Option represents a configuration option for the Service
type Option func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for completed_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service. A nil engine means recurrence.NewEngine().
func New(store storage.Storage, engine *recurrence.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	s := &Service{
		store:  store,
		engine: engine,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks the committed steps of one workflow invocation.
type run struct {
	logger    *slog.Logger
	workflow  string
	taskID    string
	committed []string
}

func (s *Service) begin(workflow, taskID string) *run {
	return &run{logger: s.logger, workflow: workflow, taskID: taskID}
}

// step executes fn and records it as committed when it succeeds.
func (r *run) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		r.logger.Error("workflow step failed",
			"workflow", r.workflow, "task_id", r.taskID, "step", name,
			"committed", r.committed, "error", err)
		return &StepError{
			Workflow:  r.workflow,
			TaskID:    r.taskID,
			Step:      name,
			Committed: append([]string(nil), r.committed...),
			Err:       err,
		}
	}
	r.committed = append(r.committed, name)
	r.logger.Debug("workflow step committed", "workflow", r.workflow, "task_id", r.taskID, "step", name)
	return nil
}

// getMaster loads a task and checks that it recurs.
func (s *Service) getMaster(ctx context.Context, id string) (*task.Task, error) {
	m, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsRecurring() {
		return nil, invalidf("task %s does not recur", id)
	}
	return m, nil
}

// occurrenceOn returns the occurrence of m on d, ignoring recorded exceptions,
// and the instant it starts at.
func (s *Service) occurrenceOn(m task.Task, d task.Date) (recurrence.Occurrence, time.Time, error) {
	occs, err := s.engine.Expand(m, d, d, nil)
	if err != nil {
		return recurrence.Occurrence{}, time.Time{}, err
	}
	if len(occs) == 0 {
		return recurrence.Occurrence{}, time.Time{}, invalidf("%s is not an occurrence of task %s", d, m.ID)
	}
	o := occs[0]
	at := d.Midnight()
	if o.StartTime != nil {
		at = *o.StartTime
	}
	return o, at, nil
}

// DerivedID returns the id of the task a workflow derives from the occurrence of
// masterID on d. kind separates clones from detached occurrences and split series.
func DerivedID(masterID, kind string, d task.Date) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:librecur:"+kind+":"+masterID+":"+d.String())).String()
}

// Kinds of derived tasks.
const (
	KindClone    = "clone"
	KindDetached = "detached"
	KindSplit    = "split"
)

// createDerived stores t, treating an existing record with the same id as a
// previous attempt of the same step.
func (s *Service) createDerived(ctx context.Context, t *task.Task) error {
	_, err := s.store.CreateTask(ctx, t)
	if storage.IsAlreadyExists(err) {
		s.logger.Info("derived task already recorded", "task_id", t.ID)
		return nil
	}
	return err
}
