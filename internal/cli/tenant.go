package cli

import (
	"github.com/spf13/cobra"

	id "benefits/pkg/domain"
)

func (s *session) tenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Municipal offices and their budget ledgers"}

	var budget string
	create := &cobra.Command{
		Use:   "create CODE NAME",
		Short: "Register an office with an allocated budget in pesos",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := id.ParseMoney(budget)
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			t, err := a.Tenants.CreateTenant(ctx, args[0], args[1], amount)
			if err != nil {
				return err
			}
			return s.print(t)
		},
	}
	create.Flags().StringVar(&budget, "budget", "0", "allocated budget in pesos")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show an office",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := id.ParseTenantID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			t, err := a.Tenants.GetTenant(ctx, tenantID)
			if err != nil {
				return err
			}
			return s.print(t)
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve CODE",
		Short: "Look up an office by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			t, err := a.Tenants.ResolveCode(ctx, args[0])
			if err != nil {
				return err
			}
			return s.print(t)
		},
	}

	budgets := &cobra.Command{
		Use:   "budgets",
		Short: "Budget ledger of every visible office",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			reports, err := a.Tenants.BudgetReports(ctx)
			if err != nil {
				return err
			}
			return s.print(reports)
		},
	}

	setBudget := &cobra.Command{
		Use:   "set-budget ID AMOUNT",
		Short: "Replace an office's allocated budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := id.ParseTenantID(args[0])
			if err != nil {
				return err
			}
			amount, err := id.ParseMoney(args[1])
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			if err := a.Tenants.SetAllocatedBudget(ctx, tenantID, amount); err != nil {
				return err
			}
			t, err := a.Tenants.GetTenant(ctx, tenantID)
			if err != nil {
				return err
			}
			return s.print(t)
		},
	}

	cmd.AddCommand(create, get, resolve, budgets, setBudget)
	return cmd
}
