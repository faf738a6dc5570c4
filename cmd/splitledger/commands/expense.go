package commands

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/service"
)

// expenseFlags are the flags shared by expense add and expense edit.
type expenseFlags struct {
	title        string
	description  string
	group        string
	payer        string
	amount       string
	participants []string
	split        string
	percentages  map[string]string
	amounts      map[string]string
	shares       map[string]string
	adjustments  map[string]string
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "expense title")
	cmd.Flags().StringVar(&f.description, "description", "", "free-text description")
	cmd.Flags().StringVar(&f.group, "group", "", "group the expense belongs to")
	cmd.Flags().StringVar(&f.payer, "payer", "", "user who paid")
	cmd.Flags().StringVar(&f.amount, "amount", "", "total amount paid")
	cmd.Flags().StringSliceVar(&f.participants, "participants", nil, "comma-separated users the amount is split among")
	cmd.Flags().StringVar(&f.split, "split", "", "split policy: equal, percentage, exact_amount, shares or adjustment")
	cmd.Flags().StringToStringVar(&f.percentages, "percentages", nil, "percentage per user, e.g. alice=50,bob=50")
	cmd.Flags().StringToStringVar(&f.amounts, "amounts", nil, "exact amount per user, e.g. alice=12.50,bob=7.50")
	cmd.Flags().StringToStringVar(&f.shares, "shares", nil, "share weight per user, e.g. alice=2,bob=1")
	cmd.Flags().StringToStringVar(&f.adjustments, "adjustments", nil, "extra amount per user on top of an equal split")
}

func (f *expenseFlags) participantIDs() []models.UserID {
	ids := make([]models.UserID, len(f.participants))
	for i, p := range f.participants {
		ids[i] = models.UserID(p)
	}
	return ids
}

func (f *expenseFlags) parseAmount() (money.Money, error) {
	amount, err := money.NewFromString(f.amount)
	if err != nil {
		return money.Zero(), fmt.Errorf("invalid --amount: %w", err)
	}
	return amount, nil
}

func (f *expenseFlags) params() (calculator.Params, error) {
	p := calculator.Params{Kind: f.split}
	var err error
	if p.Percentages, err = floatMap(f.percentages); err != nil {
		return p, fmt.Errorf("invalid --percentages: %w", err)
	}
	if p.Shares, err = floatMap(f.shares); err != nil {
		return p, fmt.Errorf("invalid --shares: %w", err)
	}
	if p.Amounts, err = moneyMap(f.amounts); err != nil {
		return p, fmt.Errorf("invalid --amounts: %w", err)
	}
	if p.Adjustments, err = moneyMap(f.adjustments); err != nil {
		return p, fmt.Errorf("invalid --adjustments: %w", err)
	}
	return p, nil
}

func floatMap(in map[string]string) (map[models.UserID]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[models.UserID]float64, len(in))
	for k, v := range in {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%s: %q is not a finite number", k, v)
		}
		out[models.UserID(k)] = f
	}
	return out, nil
}

func moneyMap(in map[string]string) (map[models.UserID]money.Money, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[models.UserID]money.Money, len(in))
	for k, v := range in {
		m, err := money.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[models.UserID(k)] = m
	}
	return out, nil
}

func expenseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Add, edit, delete and list expenses",
	}
	cmd.AddCommand(expenseAddCmd(a), expenseEditCmd(a), expenseDeleteCmd(a), expenseShowCmd(a), expenseListCmd(a))
	return cmd
}

func expenseAddCmd(a *app) *cobra.Command {
	var f expenseFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense and apply it to the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := f.parseAmount()
			if err != nil {
				return err
			}
			params, err := f.params()
			if err != nil {
				return err
			}

			e, err := a.service.AddExpense(cmd.Context(), service.AddExpenseInput{
				Title:        f.title,
				Description:  f.description,
				GroupID:      f.group,
				Payer:        models.UserID(f.payer),
				Amount:       amount,
				Participants: f.participantIDs(),
				Split:        params,
			})
			if err != nil {
				return err
			}
			printExpense(cmd.OutOrStdout(), e)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("participants")
	return cmd
}

func expenseEditCmd(a *app) *cobra.Command {
	var f expenseFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an expense; omitted flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.EditExpenseInput{ID: args[0]}
			changed := cmd.Flags().Changed

			if changed("title") {
				in.Title = &f.title
			}
			if changed("description") {
				in.Description = &f.description
			}
			if changed("payer") {
				payer := models.UserID(f.payer)
				in.Payer = &payer
			}
			if changed("amount") {
				amount, err := f.parseAmount()
				if err != nil {
					return err
				}
				in.Amount = &amount
			}
			if changed("participants") {
				in.Participants = f.participantIDs()
			}
			if changed("split") || changed("percentages") || changed("amounts") || changed("shares") || changed("adjustments") {
				if !changed("split") {
					return fmt.Errorf("--split is required when changing split parameters")
				}
				params, err := f.params()
				if err != nil {
					return err
				}
				in.Split = &params
			}
			if changed("group") {
				return fmt.Errorf("the group of an expense cannot be changed")
			}

			e, err := a.service.EditExpense(cmd.Context(), in)
			if err != nil {
				return err
			}
			printExpense(cmd.OutOrStdout(), e)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func expenseDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense and reverse it in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.service.DeleteExpense(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func expenseShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one expense with its shares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.service.GetExpense(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printExpense(cmd.OutOrStdout(), e)
			return nil
		},
	}
}

func expenseListCmd(a *app) *cobra.Command {
	var group, user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, optionally for one group or user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				expenses []*models.Expense
				err      error
			)
			switch {
			case group != "" && user != "":
				return fmt.Errorf("--group and --user are mutually exclusive")
			case group != "":
				expenses, err = a.service.ListExpensesByGroup(cmd.Context(), group)
			case user != "":
				expenses, err = a.service.ListExpensesByUser(cmd.Context(), models.UserID(user))
			default:
				expenses, err = a.service.ListExpenses(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range expenses {
				fmt.Fprintf(out, "%s\t%s\t%s paid %s\t%s\n", e.ID, e.Title, e.Payer, e.Amount.StringFixed(), e.Split.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "only expenses of this group")
	cmd.Flags().StringVar(&user, "user", "", "only expenses this user paid for or takes part in")
	return cmd
}

func printExpense(w io.Writer, e *models.Expense) {
	fmt.Fprintf(w, "%s  %s\n", e.ID, e.Title)
	if e.Description != "" {
		fmt.Fprintf(w, "  %s\n", e.Description)
	}
	if e.GroupID != "" {
		fmt.Fprintf(w, "  group: %s\n", e.GroupID)
	}
	fmt.Fprintf(w, "  %s paid %s, split %s\n", e.Payer, e.Amount.StringFixed(), e.Split.Kind)

	users := make([]models.UserID, 0, len(e.Shares))
	for u := range e.Shares {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, u := range users {
		fmt.Fprintf(w, "  %-12s %s\n", u, e.Shares[u].StringFixed())
	}
}
