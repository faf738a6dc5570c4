package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/settlement"
)

func settleCmd(a *app) *cobra.Command {
	var (
		strategy string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Compute the transfers that settle every debt",
		Long: "Compute the transfers that settle every debt and record them in the settlement history.\n" +
			"The ledger itself is not changed. Use --dry-run to only print the plan.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, err := settlement.ParseAlgorithm(strategy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dryRun {
				transfers, err := a.engine.Plan(cmd.Context(), algorithm)
				if err != nil {
					return err
				}
				for _, t := range transfers {
					fmt.Fprintf(out, "%s pays %s %s\n", t.From, t.To, t.Amount.StringFixed())
				}
				return nil
			}

			txns, err := a.engine.Simplify(cmd.Context(), algorithm)
			if err != nil {
				return err
			}
			for _, t := range txns {
				fmt.Fprintf(out, "%s pays %s %s\t%s\n", t.From, t.To, t.Amount.StringFixed(), t.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(settlement.Greedy), "greedy or largest-first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without recording it")
	return cmd
}

func settlementsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settlements",
		Short: "List recorded settlement transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txns, err := a.engine.ListSettlements(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range txns {
				fmt.Fprintf(out, "%s\t%s\t%s pays %s %s\t%s\n",
					time.Unix(t.CreatedAt, 0).UTC().Format(time.RFC3339), t.ID, t.From, t.To, t.Amount.StringFixed(), t.Algorithm)
			}
			return nil
		},
	}
}

func minCountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "min-count",
		Short: "Find the smallest number of transfers that settles every debt",
		Long: "Find the smallest number of transfers that settles every debt with an exhaustive search.\n" +
			"The search is refused above MAX_SEARCH_PARTICIPANTS users and stops after the timeout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := a.engine.MinimumSettlementCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
	cmd.Flags().DurationVar(&a.searchTimeout, "timeout", 0, "give up after this long (env SEARCH_TIMEOUT, default 10s)")
	return cmd
}
