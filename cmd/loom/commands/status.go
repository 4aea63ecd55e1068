package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var (
		buildLogPath string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent packaging runs",
		Long: `Print the most recent packaging batches recorded in the build log.

The build log is only written when loom dev runs with --build-log.`,
		Example: `  # Show the last 10 batches
  loom status --build-log .loom/build.db

  # Machine-readable output
  loom status --build-log .loom/build.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openBuildLog(cmd.Context(), buildLogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.RecentBatches(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read build log: %w", err)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No packaging runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tTRIGGER\tSTATUS\tCOMPONENTS\tFAILED\tERROR")
			for _, r := range records {
				failed, errMsg := "-", "-"
				if r.FailedComponent != nil {
					failed = *r.FailedComponent
				}
				if r.Error != nil {
					errMsg = *r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.RFC3339),
					r.Trigger, r.Status, r.Components, failed, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&buildLogPath, "build-log", ".loom/build.db", "SQLite build log file")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of batches to show")

	return cmd
}
