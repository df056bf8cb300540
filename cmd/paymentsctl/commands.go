package main

import (
	"fmt"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/settlement"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the ledger escrow total against a provider total",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := settlement.Input{}
			in.Provider, _ = cmd.Flags().GetString("provider")
			in.Currency, _ = cmd.Flags().GetString("currency")
			in.PeriodStart, _ = cmd.Flags().GetString("from")
			in.PeriodEnd, _ = cmd.Flags().GetString("to")

			if total, _ := cmd.Flags().GetString("total"); total != "" {
				parsed, err := money.Parse(total)
				if err != nil {
					return fmt.Errorf("invalid --total: %w", err)
				}
				in.ProviderTotal = &parsed
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			report, err := e.services.Settlement.RunReconciliation(e.ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().StringP("provider", "p", "", "Provider name (required)")
	cmd.Flags().StringP("currency", "c", "", "Currency (defaults to PAYMENTS_CURRENCY)")
	cmd.Flags().String("total", "", "Provider reported total; omit to record a pending settlement")
	cmd.Flags().String("from", "", "Period start YYYY-MM-DD (defaults to today)")
	cmd.Flags().String("to", "", "Period end YYYY-MM-DD (defaults to today)")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func invariantCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invariant-check",
		Short: "List transactions whose ledger entries do not balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			violations, err := e.services.Ledger.InvariantCheck(e.ctx)
			if err != nil {
				return err
			}
			if violations == nil {
				violations = []string{}
			}
			if err := printJSON(cmd, map[string]interface{}{"violations": violations}); err != nil {
				return err
			}
			if len(violations) > 0 {
				return fmt.Errorf("%d unbalanced transactions", len(violations))
			}
			return nil
		},
	}
}

func riskCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk-cases",
		Short: "Inspect and resolve intents held by the fraud assessor",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the newest review and blocked intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			cases, err := e.services.Payments.ListRiskCases(e.ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, cases)
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve [intent-id]",
		Short: "Clear or block a risk case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			rc, err := e.services.Ops.ResolveRiskCase(e.ctx, args[0], action)
			if err != nil {
				return err
			}
			return printJSON(cmd, rc)
		},
	}
	resolve.Flags().StringP("action", "a", payment.ResolveClear, "clear or block")

	cmd.AddCommand(list, resolve)
	return cmd
}

func escrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Escrow hold tooling",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "List holds still in the held state",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			holds, err := e.services.Ops.OpenHolds(e.ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, holds)
		},
	})
	return cmd
}

func treasuryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treasury",
		Short: "Treasury tooling",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show treasury balances against the minimum reserve",
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, _ := cmd.Flags().GetString("currency")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			report, err := e.services.Ops.TreasuryStatus(e.ctx, currency)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	status.Flags().StringP("currency", "c", "", "Currency (defaults to PAYMENTS_CURRENCY)")

	cmd.AddCommand(status)
	return cmd
}
