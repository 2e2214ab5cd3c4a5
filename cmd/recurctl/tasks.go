package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/rule"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

func (a *app) addCmd() *cobra.Command {
	var (
		description string
		priority    int
		due         string
		start, end  string
		rrule       string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task or a recurring series",
		Long: `Create a task. With --rrule the task becomes a series anchored on its
due date, and on its start time when one is given.

Example:
  recurctl add "water plants" --due 2026-01-20 --rrule "FREQ=WEEKLY;BYDAY=TU,FR"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := task.Task{Title: args[0], Description: description, Priority: priority}

			if due != "" {
				d, err := task.ParseDate(due)
				if err != nil {
					return fmt.Errorf("--due: %w", err)
				}
				t.DueDate = &d
			}
			if start != "" {
				if t.DueDate == nil {
					return fmt.Errorf("--start needs --due")
				}
				clock, err := parseClock(start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				st := t.DueDate.At(clock)
				t.StartTime = &st
				if end != "" {
					clock, err := parseClock(end)
					if err != nil {
						return fmt.Errorf("--end: %w", err)
					}
					e := t.DueDate.At(clock)
					if e.Before(st) {
						return fmt.Errorf("--end %s is before --start %s", end, start)
					}
					t.EndTime = &e
				}
			} else if end != "" {
				return fmt.Errorf("--end needs --start")
			}

			if rrule != "" {
				if t.DueDate == nil {
					return fmt.Errorf("--rrule needs --due")
				}
				r, err := rule.Parse(rrule)
				if err != nil {
					return err
				}
				anchor, _ := t.Anchor()
				t.RecurrenceRule = task.Ptr(r.WithAnchor(anchor).String())
				if err := a.engine.Validate(t); err != nil {
					return err
				}
			}

			id, err := a.store.CreateTask(cmd.Context(), &t)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority, 1 (highest) to 9")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&start, "start", "", "start time HH:MM (UTC)")
	cmd.Flags().StringVar(&end, "end", "", "end time HH:MM (UTC)")
	cmd.Flags().StringVar(&rrule, "rrule", "", "recurrence rule, e.g. FREQ=DAILY;COUNT=5")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var all, recurring bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks and series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.store.ListTasks(cmd.Context(), storage.ListOptions{
				RecurringOnly:    recurring,
				IncludeCompleted: all,
			})
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
				return nil
			}
			for _, t := range tasks {
				printTaskLine(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "only list series")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printTask(out, *t)

			on, err := dateFlag(cmd, "on")
			if err != nil {
				return err
			}
			if d, ok := on.Get(); ok {
				yes, err := a.engine.IsOccurrence(*t, d)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Occurs on %s: %t\n", d, yes)
			}

			if t.IsRecurring() {
				set, err := a.store.ListExceptions(cmd.Context(), t.ID)
				if err != nil {
					return err
				}
				for _, d := range set.Dates() {
					fmt.Fprintf(out, "Exception:   %s %s\n", d, set[d])
				}
			}
			return nil
		},
	}
	cmd.Flags().String("on", "", "also report whether the task occurs on this date")
	return cmd
}

func (a *app) expandCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "expand <task-id>",
		Short: "List the occurrences of a task in a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start, err := task.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := task.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			t, err := a.store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			set, err := a.store.ListExceptions(ctx, t.ID)
			if err != nil {
				return err
			}
			occs, err := a.engine.Expand(*t, start, end, set.Keyed(t.ID))
			if err != nil {
				return err
			}
			if len(occs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No occurrences")
				return nil
			}
			for _, o := range occs {
				printOccurrence(cmd.OutOrStdout(), o)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) nextCmd() *cobra.Command {
	var after string
	cmd := &cobra.Command{
		Use:   "next <task-id>",
		Short: "Show the next occurrence of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			from := a.now().UTC()
			if after != "" {
				if from, err = time.Parse(time.RFC3339, after); err != nil {
					d, derr := task.ParseDate(after)
					if derr != nil {
						return fmt.Errorf("--after: expected YYYY-MM-DD or RFC 3339, got %q", after)
					}
					from = d.AddDays(1).Midnight().Add(-time.Second)
				}
			}
			next, err := a.engine.NextOccurrence(*t, from)
			if err != nil {
				return err
			}
			printNext(cmd.OutOrStdout(), next)
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "date or RFC 3339 instant to look after (default: now)")
	return cmd
}
