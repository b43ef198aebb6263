package root

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newThreadsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List locally cached threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			cache, err := openCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer cache.Close()

			summaries, err := cache.ListThreads(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached threads.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "THREAD\tPROJECT\tMESSAGES\tSYNCED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					s.ThreadID, s.ProjectID, s.MessageCount, s.SyncedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}
