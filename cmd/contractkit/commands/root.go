// Package commands implements the contractkit subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"contractkit/config"
	"contractkit/internal/app"
	"contractkit/internal/logging"
	"contractkit/internal/version"
)

// state is shared by the subcommands of one invocation.
type state struct {
	configPath string
	app        *app.App
}

// Execute runs the CLI with os.Args.
func Execute() error {
	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	st := &state{}
	defer st.close()

	err := newRootCommand(st).ExecuteContext(ctx)
	if err != nil {
		slog.Error("command failed", "error", err)
	}
	return err
}

func (st *state) close() {
	if st.app == nil {
		return
	}
	if err := st.app.Close(); err != nil {
		slog.Error("failed to release resources", "error", err)
	}
}

// newRootCommand builds the command tree.
func newRootCommand(st *state) *cobra.Command {
	root := &cobra.Command{
		Use:           "contractkit",
		Short:         "Consumer-driven contract testing: stubs, verification and a sample producer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level, cfg.Log.NoColor)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			st.app = a
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "config file (default config.yaml or config/config.yaml)")

	root.AddCommand(
		serveCmd(st),
		stubsCmd(st),
		verifyCmd(st),
		contractsCmd(st),
		historyCmd(st),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}

func logStart(name string) {
	slog.Info("starting contractkit "+name,
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
		"pid", os.Getpid(),
	)
}
