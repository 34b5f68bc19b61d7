package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func contractsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Inspect the loaded contracts",
	}
	cmd.AddCommand(contractsListCmd(st), contractsShowCmd(st))
	return cmd
}

func contractsListCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contracts with their fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMETHOD\tPATH\tSTATUS\tFINGERPRINT")
			for _, c := range st.app.Contracts().All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.Name, c.Request.Method, c.Path(), c.Response.Status, c.Fingerprint())
			}
			return w.Flush()
		},
	}
}

func contractsShowCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a contract as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := st.app.Contracts().Get(args[0])
			if !ok {
				return fmt.Errorf("contract %q not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		},
	}
}
