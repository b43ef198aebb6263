package root

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/pkg/server"
	"github.com/agentdeck/agentdeck/pkg/view"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reconciled thread views over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Listen = listenAddr
			}

			backend, err := newBackend(cfg)
			if err != nil {
				return err
			}

			cache, err := openCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer cache.Close()

			vm := view.NewManager(ctx, backend,
				view.WithManagerCache(cache),
				view.WithManagerNarrowViewport(cfg.NarrowViewport),
				view.WithManagerPollInterval(cfg.PollDuration()),
			)
			defer vm.Close()

			ln, err := server.Listen(ctx, cfg.Listen)
			if err != nil {
				return err
			}

			slog.Info("Serving thread views", "listen", cfg.Listen, "backend", cfg.BackendURL)

			srv := server.New(vm, cache)

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return srv.Serve(ctx, ln)
			})
			return eg.Wait()
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")

	return cmd
}
