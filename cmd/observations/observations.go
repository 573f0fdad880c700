// Package observations inspects observations and replays stored drafts from the command line.
package observations

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorhub/annotator/internal/app"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/drawing"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/reconcile"
)

// Command returns the observations command group.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observations",
		Short: "List observations and replay unsaved drafts",
	}
	cmd.AddCommand(listCommand(settings, build), syncCommand(settings, build), draftsCommand(settings, build))
	return cmd
}

func withApp(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.New(settings, build, logger.Global().Module("app"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func listCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var fileID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the observations attached to a data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), settings, build, func(ctx context.Context, a *app.App) error {
				rows, err := a.Source.List(ctx, fileID)
				if err != nil {
					return err
				}
				return printObservations(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "file", 0, "Data file id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func syncCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var fileID int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send a stored draft to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), settings, build, func(ctx context.Context, a *app.App) error {
				report, err := a.ReplayDraft(ctx, fileID)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				if !report.Success {
					return fmt.Errorf("%s", report.Summary())
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "file", 0, "Data file id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func draftsCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List stored drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), settings, build, func(ctx context.Context, a *app.App) error {
				if a.Drafts == nil {
					return fmt.Errorf("draft storage is disabled")
				}
				drafts, err := a.Drafts.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "FILE\tROWS\tSESSION\tUPDATED")
				for _, d := range drafts {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", d.FileID, d.RowCount, d.SessionID, d.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func printObservations(out io.Writer, rows []observation.Observation) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tSOURCE\tBOX\tOWNER")
	for _, o := range rows {
		box := "-"
		if !o.BoundingBox.IsEmpty() {
			box = fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", o.BoundingBox.X1, o.BoundingBox.Y1, o.BoundingBox.X2, o.BoundingBox.Y2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", o.ID, drawing.Label(o), o.Source, box, o.UserIsOwner)
	}
	return w.Flush()
}

func printReport(out io.Writer, r *reconcile.Report) {
	fmt.Fprintf(out, "%s (batch %s)\n", r.Summary(), r.BatchID)
	for _, o := range r.Failures() {
		name := o.Species
		if name == "" {
			name = "unnamed observation"
		}
		fmt.Fprintf(out, "  %s %s [%s]: %s\n", o.Op, name, o.Status, o.Message)
	}
}
