package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/task"
	"github.com/cyp0633/librecur/workflow"
)

// errNeedsResolution is returned by complete when missed occurrences have to
// be answered first.
var errNeedsResolution = errors.New("missed occurrences need a resolution; rerun with --resolve DATE=completed|skipped|ignore or --resolve-all")

// parseResolutions reads DATE=resolution pairs.
func parseResolutions(pairs []string) (map[task.Date]workflow.Resolution, error) {
	out := make(map[task.Date]workflow.Resolution, len(pairs))
	for _, p := range pairs {
		date, res, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--resolve %q: expected DATE=RESOLUTION", p)
		}
		d, err := task.ParseDate(strings.TrimSpace(date))
		if err != nil {
			return nil, fmt.Errorf("--resolve %q: %w", p, err)
		}
		r, err := workflow.ParseResolution(res)
		if err != nil {
			return nil, fmt.Errorf("--resolve %q: %w", p, err)
		}
		out[d] = r
	}
	return out, nil
}

// occurrenceArgs resolves "<ref>" or "<task-id> <date>" into a task id and an
// optional date.
func occurrenceArgs(args []string) (string, mo.Option[task.Date], error) {
	if len(args) == 2 {
		d, err := task.ParseDate(args[1])
		if err != nil {
			return "", mo.None[task.Date](), err
		}
		return args[0], mo.Some(d), nil
	}
	ref, err := task.ParseRef(args[0])
	if err != nil {
		return "", mo.None[task.Date](), err
	}
	switch r := ref.(type) {
	case task.VirtualRef:
		return r.MasterID, mo.Some(r.Date), nil
	case task.RealRef:
		return r.TaskID, mo.None[task.Date](), nil
	}
	return "", mo.None[task.Date](), fmt.Errorf("unsupported reference %q", args[0])
}

func (a *app) completeCmd() *cobra.Command {
	var (
		resolve    []string
		resolveAll string
	)
	cmd := &cobra.Command{
		Use:   "complete <task-id|occurrence-ref> [date]",
		Short: "Complete a task or one occurrence of a series",
		Long: `Complete a task. For a series the occurrence defaults to its due date;
pass a date or an occurrence reference (masterId_recur_YYYYMMDD) to pick
another one.

When earlier occurrences were never acted on, nothing is written and the
missed dates are listed. Answer them with --resolve or --resolve-all.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, date, err := occurrenceArgs(args)
			if err != nil {
				return err
			}
			resolutions, err := parseResolutions(resolve)
			if err != nil {
				return err
			}

			req := workflow.CompleteRequest{TaskID: id, OccurrenceDate: date, Resolutions: resolutions}
			res, err := a.svc.Complete(cmd.Context(), req)
			if err != nil {
				return err
			}

			if res.Status == workflow.StatusNeedsResolution && resolveAll != "" {
				all, err := workflow.ParseResolution(resolveAll)
				if err != nil {
					return fmt.Errorf("--resolve-all: %w", err)
				}
				for _, d := range res.Pending {
					if _, ok := req.Resolutions[d]; !ok {
						req.Resolutions[d] = all
					}
				}
				if res, err = a.svc.Complete(cmd.Context(), req); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if res.Status == workflow.StatusNeedsResolution {
				fmt.Fprintln(out, "Missed occurrences:")
				for _, d := range res.Pending {
					fmt.Fprintf(out, "  %s\n", d)
				}
				return errNeedsResolution
			}
			printCompleted(out, res)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&resolve, "resolve", nil, "resolve a missed occurrence, DATE=completed|skipped|ignore (repeatable)")
	cmd.Flags().StringVar(&resolveAll, "resolve-all", "", "resolve every remaining missed occurrence the same way")
	return cmd
}

func printCompleted(w io.Writer, res *workflow.CompleteResult) {
	if res.CloneID == "" {
		fmt.Fprintln(w, "Completed")
		return
	}
	fmt.Fprintf(w, "Completed occurrence %s as %s\n", res.Occurrence, res.CloneID)
	for _, d := range sortedDates(res.Resolved) {
		status := "ignored"
		if st, ok := res.Resolved[d].Get(); ok {
			status = string(st)
		}
		fmt.Fprintf(w, "  %s %s\n", d, status)
	}
	printNext(w, res.Next)
}

func sortedDates[V any](m map[task.Date]V) []task.Date {
	set := make(task.ExceptionSet, len(m))
	for d := range m {
		set[d] = task.StatusCompleted
	}
	return set.Dates()
}

func (a *app) uncompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncomplete <task-id|occurrence-ref>",
		Short: "Undo the completion of a task or occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := task.ParseRef(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Uncomplete(cmd.Context(), ref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened %s\n", ref)
			return nil
		},
	}
}

// occurrenceCmd builds the commands that act on one occurrence of a series.
func occurrenceCmd(use, short string, run func(cmd *cobra.Command, id string, d task.Date) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id|occurrence-ref> [date]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, date, err := occurrenceArgs(args)
			if err != nil {
				return err
			}
			d, ok := date.Get()
			if !ok {
				return fmt.Errorf("%s needs an occurrence date", use)
			}
			return run(cmd, id, d)
		},
	}
}

func (a *app) skipCmd() *cobra.Command {
	return occurrenceCmd("skip", "Skip one occurrence of a series", func(cmd *cobra.Command, id string, d task.Date) error {
		next, err := a.svc.Skip(cmd.Context(), id, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Skipped %s\n", d)
		printNext(cmd.OutOrStdout(), next)
		return nil
	})
}

func (a *app) deleteOccurrenceCmd() *cobra.Command {
	return occurrenceCmd("delete-occurrence", "Remove one occurrence from a series", func(cmd *cobra.Command, id string, d task.Date) error {
		next, err := a.svc.DeleteOccurrence(cmd.Context(), id, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", d)
		printNext(cmd.OutOrStdout(), next)
		return nil
	})
}

func (a *app) editCmd() *cobra.Command {
	var (
		mode               string
		on                 string
		title, description string
		priority           int
		date, start, end   string
		allDay             bool
	)
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit one occurrence, the rest of a series, or all of it",
		Long: `Edit a series.

  --mode single     detach the occurrence given by --on into its own task
  --mode following  end the series before --on and start a new one there
  --mode all        change the series itself`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := workflow.ParseMode(mode)
			if err != nil {
				return err
			}
			req := workflow.EditRequest{MasterID: args[0], Mode: m}
			if m != workflow.ModeAll {
				if on == "" {
					return fmt.Errorf("--mode %s needs --on", m)
				}
				if req.OccurrenceDate, err = task.ParseDate(on); err != nil {
					return fmt.Errorf("--on: %w", err)
				}
			}

			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Updates.Title = mo.Some(title)
			}
			if flags.Changed("description") {
				req.Updates.Description = mo.Some(description)
			}
			if flags.Changed("priority") {
				req.Updates.Priority = mo.Some(priority)
			}
			if req.Updates.Schedule, err = scheduleChange(cmd, allDay, start, end); err != nil {
				return err
			}

			res, err := a.svc.Edit(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Edited (%s): %s\n", res.Mode, res.TaskID)
			if res.MasterEnded {
				fmt.Fprintf(out, "Series %s ended\n", req.MasterID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(workflow.ModeSingle), "single, following or all")
	cmd.Flags().StringVar(&on, "on", "", "occurrence date, YYYY-MM-DD")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority")
	cmd.Flags().StringVar(&date, "date", "", "move to this date, YYYY-MM-DD")
	cmd.Flags().StringVar(&start, "start", "", "new start time HH:MM (UTC)")
	cmd.Flags().StringVar(&end, "end", "", "new end time HH:MM (UTC)")
	cmd.Flags().BoolVar(&allDay, "all-day", false, "drop the start and end times")
	cmd.MarkFlagsMutuallyExclusive("all-day", "start")
	cmd.MarkFlagsMutuallyExclusive("all-day", "end")
	return cmd
}

func scheduleChange(cmd *cobra.Command, allDay bool, start, end string) (workflow.ScheduleChange, error) {
	date, err := dateFlag(cmd, "date")
	if err != nil {
		return nil, err
	}
	switch {
	case allDay:
		return workflow.ClearToAllDay{Date: date}, nil
	case start != "":
		st, err := parseClock(start)
		if err != nil {
			return nil, fmt.Errorf("--start: %w", err)
		}
		change := workflow.SetTimedAnchor{Date: date, Start: st}
		if end != "" {
			e, err := parseClock(end)
			if err != nil {
				return nil, fmt.Errorf("--end: %w", err)
			}
			change.End = mo.Some(e)
		}
		return change, nil
	case end != "":
		return nil, fmt.Errorf("--end needs --start")
	}
	if d, ok := date.Get(); ok {
		return workflow.ShiftDate{Date: d}, nil
	}
	return workflow.KeepSchedule{}, nil
}
