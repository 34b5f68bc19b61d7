package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"contractkit/internal/verifier"
)

// errVerificationFailed is returned when at least one contract fails, so the
// process exits non-zero.
var errVerificationFailed = errors.New("contract verification failed")

func verifyCmd(st *state) *cobra.Command {
	var (
		baseURL string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the loaded contracts against a running producer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := st.app.Verify(cmd.Context(), baseURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := printReport(out, report); err != nil {
				return err
			}

			if !report.OK() {
				return errVerificationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "producer base URL (default verifier.base_url)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(out io.Writer, report verifier.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run %s against %s\n", report.RunID, report.BaseURL)
	fmt.Fprintln(w, "RESULT\tCONTRACT\tSTATUS\tDURATION")
	for _, r := range report.Results {
		result := "PASS"
		if !r.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", result, r.Contract, r.Status, r.Duration.Round(time.Microsecond))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "\t  - %s\t\t\n", f)
		}
	}
	fmt.Fprintf(w, "%d passed, %d failed in %s\n", report.Passed, report.Failed, report.Duration.Round(time.Millisecond))
	return w.Flush()
}
