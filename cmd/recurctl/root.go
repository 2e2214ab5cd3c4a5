package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/config"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/storage/memory"
	"github.com/cyp0633/librecur/storage/sqlite"
	"github.com/cyp0633/librecur/workflow"
)

// annotNoStore marks commands that run without opening storage.
const annotNoStore = "recurctl/no-store"

// app carries what the commands share for one invocation.
type app struct {
	configPath string
	dbPath     string
	memory     bool

	now func() time.Time

	cfg     *config.Config
	logger  *slog.Logger
	engine  *recurrence.Engine
	store   storage.Storage
	closers []func() error
	svc     *workflow.Service
}

func newRootCmd() *cobra.Command {
	return newApp(time.Now).rootCmd()
}

func newApp(now func() time.Time) *app {
	return &app{now: now}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recurctl",
		Short: "Manage recurring tasks",
		Long: `recurctl manages tasks that repeat on an iCalendar recurrence rule.

A series is stored once and expanded on demand. Completing, skipping or
editing one occurrence records an exception on the series instead of
materialising every instance.`,
		Version:           fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./recur.yaml, then the user config dir)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path, overrides storage.dsn")
	root.PersistentFlags().BoolVar(&a.memory, "memory", false, "use a throwaway in-memory store")

	root.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.showCmd(),
		a.expandCmd(),
		a.nextCmd(),
		a.completeCmd(),
		a.uncompleteCmd(),
		a.skipCmd(),
		a.deleteOccurrenceCmd(),
		a.editCmd(),
		a.exportCmd(),
		a.sweepCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads configuration and, unless the command opts out, opens storage.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.Driver = config.DriverSQLite
		cfg.Storage.DSN = a.dbPath
	}
	if a.memory {
		cfg.Storage.Driver = config.DriverMemory
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	level, _ := cfg.Log.SlogLevel()
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if cmd.Annotations[annotNoStore] != "" {
		return nil
	}

	ec, err := cfg.Engine.Build()
	if err != nil {
		return err
	}
	a.engine = recurrence.NewEngineWithConfig(ec)
	a.closers = append(a.closers, func() error { a.engine.Close(); return nil })

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.store = memory.New(memory.WithLogger(a.logger), memory.WithClock(a.now))
	default:
		st, err := sqlite.Open(cfg.Storage.DSN, sqlite.WithLogger(a.logger), sqlite.WithClock(a.now))
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	}

	a.svc = workflow.New(a.store, a.engine, workflow.WithLogger(a.logger), workflow.WithClock(a.now))
	a.logger.Debug("storage opened", "driver", cfg.Storage.Driver, "dsn", cfg.Storage.DSN)
	return nil
}

func (a *app) teardown() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
