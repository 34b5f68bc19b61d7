package commands

import (
	"github.com/spf13/cobra"

	"contractkit/internal/app"
)

func serveCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fraud name producer service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logStart("producer")
			st.app.LogStartupInfo()

			cfg := st.app.Config()
			return app.Serve(cmd.Context(), "producer", st.app.Producer(), ":"+cfg.Server.Port)
		},
	}
}

func stubsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "stubs",
		Short: "Serve the loaded contracts as HTTP stubs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logStart("stub runner")
			st.app.LogStartupInfo()

			runner, err := st.app.StubRunner()
			if err != nil {
				return err
			}
			cfg := st.app.Config()
			return app.Serve(cmd.Context(), "stubs", runner, ":"+cfg.Stubs.Port)
		},
	}
}
