package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/scheduler"
)

func printMissed(w io.Writer, missed []scheduler.Missed) {
	if len(missed) == 0 {
		fmt.Fprintln(w, "No missed occurrences")
		return
	}
	for _, m := range missed {
		fmt.Fprintf(w, "%s  %s\n", m.Task.ID, m.Task.Title)
		for _, d := range m.Dates {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}

func (a *app) sweepCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report occurrences that were never completed or skipped",
		Long: `Scan every open series for past occurrences without a completion,
skip or archive. With --watch the scan repeats on the schedule in the
sweep section of the configuration until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			loc, err := a.cfg.Sweep.Zone()
			if err != nil {
				return err
			}
			handler := func(_ context.Context, missed []scheduler.Missed) { printMissed(out, missed) }
			sw := scheduler.NewSweeper(a.store, a.engine, handler,
				scheduler.WithLogger(a.logger),
				scheduler.WithClock(a.now),
				scheduler.WithLocation(loc),
			)

			today, err := dateFlag(cmd, "today")
			if err != nil {
				return err
			}

			if !watch {
				missed, err := sw.RunOnce(cmd.Context(), today.OrElse(sw.Today()))
				printMissed(out, missed)
				return err
			}

			if daily := a.cfg.Sweep.Daily; daily != "" {
				_, err = sw.ScheduleDaily(daily)
			} else {
				_, err = sw.Schedule(a.cfg.Sweep.Interval)
			}
			if err != nil {
				return fmt.Errorf("scheduling sweep: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sw.Start()
			a.logger.Info("sweeper started", "interval", a.cfg.Sweep.Interval, "daily", a.cfg.Sweep.Daily)
			<-ctx.Done()
			sw.Stop()
			a.logger.Info("sweeper stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and sweep on the configured schedule")
	cmd.Flags().String("today", "", "reference date for a single sweep (default: today)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "config",
		Short:       "Print the effective configuration as YAML",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotNoStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
