package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/models"
)

func balanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user1> <user2>",
		Short: "Show the balance between two users from user1's point of view",
		Long: "Show the balance between two users from user1's point of view.\n" +
			"Positive means user2 owes user1; negative means user1 owes user2.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.ledger.Balance(cmd.Context(), models.UserID(args[0]), models.UserID(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.StringFixed())
			return nil
		},
	}
}

func totalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "total <user>",
		Short: "Show a user's net balance across everyone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.ledger.TotalBalance(cmd.Context(), models.UserID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.StringFixed())
			return nil
		},
	}
}

func pairsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List every outstanding pairwise debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := a.ledger.AllPairwiseBalances(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range pairs {
				fmt.Fprintf(out, "%s owes %s %s\n", p.Debtor, p.Creditor, p.Amount.StringFixed())
			}
			return nil
		},
	}
}

func checkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the ledger balances to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ledger.CheckConservation(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
