package cli

import (
	"eventmaster/internal"
	"eventmaster/observability"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type inspectResult struct {
	Prefix string                         `json:"prefix"`
	Rows   []internal.InspectRow          `json:"rows"`
	Stats  observability.DiagnosticsStats `json:"stats"`
}

func NewInspectCommand(opts *RootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump the raw keys of the local store",
		Example: `  eventmaster inspect
  eventmaster inspect --prefix @App:Events_
  eventmaster inspect --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.Formatter(cmd)
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			rows, err := internal.Inspect(ctx, app.Store, prefix)
			if err != nil {
				return out.Fail("inspect failed", err)
			}
			result := inspectResult{Prefix: prefix, Rows: rows, Stats: app.Diag.GetLatest()}
			return out.Render(result, func(w io.Writer) {
				if len(rows) == 0 {
					fmt.Fprintln(w, "No keys found.")
					return
				}
				table := newTable(w, "Key", "Type", "Namespace", "Records", "Timestamp", "Detail")
				for _, r := range rows {
					table.Append([]string{r.Key, r.Type, r.Namespace, r.Records, r.Timestamp, r.Detail})
				}
				table.Render()
				fmt.Fprintf(w, "%d keys, %d read failures, %d corrupt\n",
					len(rows), result.Stats.ReadFailures, result.Stats.CorruptRecords)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only keys starting with this prefix")
	return cmd
}
