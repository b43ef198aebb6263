package root

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/pkg/view"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "watch <thread-id>",
		Short: "Follow a thread and print its tool-call timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			threadID := args[0]

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			backend, err := newBackend(cfg)
			if err != nil {
				return err
			}

			v := view.NewThreadView(threadID, projectID, backend,
				view.WithPollInterval(cfg.PollDuration()),
				view.WithNarrowViewport(cfg.NarrowViewport),
			)

			snapshots, unsubscribe := v.Subscribe()
			defer unsubscribe()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return v.Run(ctx)
			})
			eg.Go(func() error {
				printed := 0
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case snap, ok := <-snapshots:
						if !ok {
							return nil
						}
						printed = printToolCalls(cmd, snap, printed)
					}
				}
			})

			err = eg.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id, enables sandbox tracking")

	return cmd
}

// printToolCalls writes tool calls not yet seen, plus status updates for the
// last one when it settles. Returns the count already printed.
func printToolCalls(cmd *cobra.Command, snap view.Snapshot, printed int) int {
	out := cmd.OutOrStdout()

	for i := printed; i < len(snap.ToolCalls); i++ {
		rec := snap.ToolCalls[i]
		status := "running"
		if !rec.Streaming() {
			status = "failed"
			if rec.Result.Success {
				status = "ok"
			}
		}
		fmt.Fprintf(out, "[%s] %s (%s)\n", snap.RunStatus, rec.ToolName, status)
	}
	if len(snap.ToolCalls) > printed {
		return len(snap.ToolCalls)
	}
	return printed
}
