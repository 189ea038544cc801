package cli

import (
	stderrors "errors"
	"eventmaster/errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local events with the configured remote",
	}
	cmd.AddCommand(newSyncRunCommand(opts))
	cmd.AddCommand(newSyncStatusCommand(opts))
	cmd.AddCommand(newSyncResolveCommand(opts))
	cmd.AddCommand(newSyncPurgeCommand(opts))
	return cmd
}

func newSyncRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Pull, merge and push the current namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			report, err := app.Reconciler.Reconcile(ctx)
			if err != nil && !stderrors.Is(err, errors.ErrConflictUnresolved) {
				return out.Fail("sync failed", err)
			}
			if renderErr := out.Render(report, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s: %d pulled, %d pushed, %d adopted, %d conflicts (%d local wins, %d remote wins)\n",
					report.Namespace, report.Pulled, report.Pushed, report.Adopted,
					report.Conflicts, report.LocalWins, report.RemoteWins)
				for _, id := range report.Unresolved {
					fmt.Fprintf(w, "  ! #%d needs 'sync resolve %d --keep local|remote'\n", id, id)
				}
				for _, m := range report.Rekeyed {
					fmt.Fprintf(w, "  ~ #%d is now #%d, another device used its id first\n", m.From, m.To)
				}
				for _, d := range report.Duplicates {
					fmt.Fprintf(w, "  ! #%d has the same name and date as #%d\n", d.ID, d.Of)
				}
			}); renderErr != nil {
				return renderErr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "unresolved conflicts", err)
			}
			return nil
		},
	}
}

func newSyncStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			status := app.Reconciler.Status(ctx)
			return out.Render(status, func(w io.Writer) {
				fmt.Fprintf(w, "Namespace %s, device %s, clock %d\n", status.Namespace, status.DeviceID, status.Clock)
				if len(status.Entries) == 0 {
					fmt.Fprintln(w, "Nothing tracked yet.")
					return
				}
				table := newTable(w, "ID", "State", "Version", "Synced", "Updated", "Origin", "Deleted")
				for _, e := range status.Entries {
					table.Append([]string{
						strconv.FormatInt(e.ID, 10),
						string(e.State),
						strconv.FormatInt(e.Version, 10),
						strconv.FormatInt(e.SyncedVersion, 10),
						e.UpdatedAt.Format("2006-01-02 15:04:05"),
						e.Origin,
						strconv.FormatBool(e.Deleted),
					})
				}
				table.Render()
			})
		},
	}
}

func newSyncResolveCommand(opts *RootOptions) *cobra.Command {
	var keep string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Settle a conflict by keeping the local or the remote copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if keep != "local" && keep != "remote" {
				return WrapExitError(ExitFailure, fmt.Sprintf("--keep must be local or remote, got %q", keep), nil)
			}
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			entry, err := app.Reconciler.Resolve(ctx, id, keep == "local")
			if err != nil {
				return out.Fail("conflict not resolved", err)
			}
			return out.Render(entry, func(w io.Writer) {
				fmt.Fprintf(w, "✓ #%d resolved keeping the %s copy (%s)\n", id, keep, entry.State)
			})
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "local|remote")
	_ = cmd.MarkFlagRequired("keep")
	return cmd
}

type purgeResult struct {
	Purged int `json:"purged"`
}

func newSyncPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop synced tombstones older than TOMBSTONE_GRACE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			purged, err := app.Reconciler.Purge(ctx, app.Now())
			if err != nil {
				return out.Fail("purge failed", err)
			}
			return out.Success(fmt.Sprintf("%d tombstones purged", purged), purgeResult{Purged: purged})
		},
	}
}

