package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect past estimates",
}

// -- submissions list --

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded submissions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.SubmissionFilter{}
		if p, _ := cmd.Flags().GetString("policy"); p != "" {
			policy, err := model.ParsePolicy(p)
			if err != nil {
				return err
			}
			filter.Policy = policy
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		subs, err := st.ListSubmissions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "submissions list")
		}

		if len(subs) == 0 {
			fmt.Fprintln(os.Stderr, "No submissions found.")
			return nil
		}

		formatSubmissionsList(cmd.OutOrStdout(), subs)
		return nil
	},
}

// -- submissions show --

var submissionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one submission as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sub, err := st.GetSubmission(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submissions show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

func formatSubmissionsList(w io.Writer, subs []model.Submission) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tPOLICY\tMODE\tMATCHED\tADDRESS")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.CreatedAt.Local().Format(time.DateTime),
			s.Policy,
			s.Mode,
			s.Matched,
			s.Address,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	submissionsListCmd.Flags().String("policy", "", "filter by policy (isochrone, distance)")
	submissionsListCmd.Flags().Int("limit", 20, "max submissions to show")

	submissionsCmd.AddCommand(submissionsListCmd, submissionsShowCmd)
	rootCmd.AddCommand(submissionsCmd)
}
