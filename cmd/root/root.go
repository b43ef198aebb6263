// Package root implements the agentdeck command line interface.
package root

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/logging"
)

type rootFlags struct {
	configPath  string
	debugMode   bool
	logFilePath string
	logFile     io.Closer
}

// NewRootCmd builds the agentdeck command tree.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "agentdeck",
		Short: "agentdeck - reconciled thread views for agent backends",
		Long:  "agentdeck consumes an agent backend's REST and SSE APIs and serves a reconciled, tool-call-aware view of each conversation thread.",
		Example: `  agentdeck serve
  agentdeck watch thread-42
  agentdeck threads`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.setupLogging(); err != nil {
				// Fall back to stderr so we still get logs.
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: flags.level(),
				})))
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if flags.logFile != nil {
				flags.logFile.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to the configuration file")
	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "write logs to this file instead of stderr")

	cmd.AddCommand(
		newServeCmd(&flags),
		newWatchCmd(&flags),
		newThreadsCmd(&flags),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the command tree with the given streams and arguments.
func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	cmd := NewRootCmd()
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func (f *rootFlags) level() slog.Level {
	if f.debugMode {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (f *rootFlags) setupLogging() error {
	var w io.Writer = os.Stderr

	if f.logFilePath != "" {
		file, err := logging.NewRotatingFile(f.logFilePath)
		if err != nil {
			return err
		}
		f.logFile = file
		w = file
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: f.level(),
	})))
	return nil
}
