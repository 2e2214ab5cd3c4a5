package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyp0633/librecur/export"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/task"
)

func (a *app) exportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export [task-id...]",
		Short: "Export tasks as iCalendar (.ics) or xCal",
		Long: `Export tasks as VTODO components. Without ids every task is exported,
completed ones included. Exceptions recorded on a series are written as
EXDATEs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format != "ics" && format != "xcal" {
				return fmt.Errorf("--format: expected ics or xcal, got %q", format)
			}

			var tasks []task.Task
			if len(args) == 0 {
				all, err := a.store.ListTasks(ctx, storage.ListOptions{IncludeCompleted: true})
				if err != nil {
					return fmt.Errorf("listing tasks: %w", err)
				}
				tasks = all
			} else {
				for _, id := range args {
					t, err := a.store.GetTask(ctx, id)
					if err != nil {
						return err
					}
					tasks = append(tasks, *t)
				}
			}

			exceptions := make(map[string]task.ExceptionSet)
			for _, t := range tasks {
				if !t.IsRecurring() {
					continue
				}
				set, err := a.store.ListExceptions(ctx, t.ID)
				if err != nil {
					return err
				}
				exceptions[t.ID] = set
			}

			cal, err := export.Calendar(tasks, exceptions, a.now())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			if format == "xcal" {
				err = export.EncodeXCal(w, cal)
			} else {
				err = export.EncodeICS(w, cal)
			}
			if err != nil {
				return err
			}
			a.logger.Info("exported tasks", "count", len(tasks), "format", format, "output", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "ics", "ics or xcal")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
