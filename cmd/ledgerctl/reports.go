package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/reports"
)

// ── reports ──────────────────────────────────────────────────────────────────

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Print financial reports",
}

var (
	reportAsOf string
	reportFrom string
	reportTo   string
)

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

func parsePeriod() (time.Time, time.Time, error) {
	from, err := parseDateFlag("from", reportFrom)
	if err != nil {
		return from, from, err
	}
	if from.IsZero() {
		return from, from, fmt.Errorf("--from is required")
	}
	to, err := parseDateFlag("to", reportTo)
	return from, to, err
}

var trialBalanceCmd = &cobra.Command{
	Use:   "trial-balance",
	Short: "Debit and credit balances of every account",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDateFlag("as-of", reportAsOf)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		tb, err := c.TrialBalance(ctx, asOf)
		if err != nil {
			return err
		}
		return render(tb, func() error {
			fmt.Printf("Trial balance as of %s\n\n", tb.AsOf.Format(model.DateLayout))
			w := newTable()
			fmt.Fprintln(w, "CODE\tNAME\tDEBIT\tCREDIT")
			for _, r := range tb.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Code, r.Name, blankZero(r.Debit.String(), r.Debit.IsZero()), blankZero(r.Credit.String(), r.Credit.IsZero()))
			}
			fmt.Fprintf(w, "\tTOTAL\t%s\t%s\n", tb.TotalDebit, tb.TotalCredit)
			if err := w.Flush(); err != nil {
				return err
			}
			if !tb.Balanced() {
				fmt.Println("\nWARNING: trial balance does not balance")
			}
			return nil
		})
	},
}

var balanceSheetCmd = &cobra.Command{
	Use:   "balance-sheet",
	Short: "Assets, liabilities and equity at a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDateFlag("as-of", reportAsOf)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		bs, err := c.BalanceSheet(ctx, asOf)
		if err != nil {
			return err
		}
		return render(bs, func() error {
			fmt.Printf("Balance sheet as of %s\n", bs.AsOf.Format(model.DateLayout))
			w := newTable()
			printSection(w, "Assets", bs.Assets)
			printSection(w, "Liabilities", bs.Liabilities)
			printSection(w, "Equity", bs.Equity)
			fmt.Fprintf(w, "  Current earnings\t%s\n", bs.CurrentEarnings)
			fmt.Fprintf(w, "\nLiabilities + equity\t%s\n", bs.TotalLiabilities+bs.TotalEquity)
			return w.Flush()
		})
	},
}

var profitAndLossCmd = &cobra.Command{
	Use:     "profit-and-loss",
	Aliases: []string{"pnl"},
	Short:   "Income and expenses over a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parsePeriod()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		pl, err := c.ProfitAndLoss(ctx, from, to)
		if err != nil {
			return err
		}
		return render(pl, func() error {
			fmt.Printf("Profit and loss %s to %s\n", pl.From.Format(model.DateLayout), pl.To.Format(model.DateLayout))
			w := newTable()
			printSection(w, "Income", pl.Income)
			printSection(w, "Expenses", pl.Expenses)
			fmt.Fprintf(w, "\nNet profit\t%s\n", pl.NetProfit)
			return w.Flush()
		})
	},
}

var cashFlowCmd = &cobra.Command{
	Use:   "cash-flow",
	Short: "Cash movements over a period by activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parsePeriod()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		cf, err := c.CashFlow(ctx, from, to)
		if err != nil {
			return err
		}
		return render(cf, func() error {
			fmt.Printf("Cash flow %s to %s\n\n", cf.From.Format(model.DateLayout), cf.To.Format(model.DateLayout))
			w := newTable()
			fmt.Fprintf(w, "Opening cash\t%s\n", cf.OpeningCash)
			for _, act := range []reports.CashFlowActivity{reports.ActivityOperating, reports.ActivityInvesting, reports.ActivityFinancing} {
				for _, l := range cf.Lines {
					if l.Activity == act {
						fmt.Fprintf(w, "  %s %s (%s)\t%s\n", l.Code, l.Name, act, l.Amount)
					}
				}
			}
			fmt.Fprintf(w, "Operating\t%s\n", cf.Operating)
			fmt.Fprintf(w, "Investing\t%s\n", cf.Investing)
			fmt.Fprintf(w, "Financing\t%s\n", cf.Financing)
			fmt.Fprintf(w, "Net change\t%s\n", cf.NetChange)
			fmt.Fprintf(w, "Closing cash\t%s\n", cf.ClosingCash)
			return w.Flush()
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{trialBalanceCmd, balanceSheetCmd} {
		cmd.Flags().StringVar(&reportAsOf, "as-of", "", "Report date YYYY-MM-DD (default today)")
	}
	for _, cmd := range []*cobra.Command{profitAndLossCmd, cashFlowCmd} {
		cmd.Flags().StringVar(&reportFrom, "from", "", "First day of the period YYYY-MM-DD (required)")
		cmd.Flags().StringVar(&reportTo, "to", "", "Last day of the period YYYY-MM-DD (default today)")
	}
	reportsCmd.AddCommand(trialBalanceCmd, balanceSheetCmd, profitAndLossCmd, cashFlowCmd)
}

func printSection(w io.Writer, title string, s reports.Section) {
	fmt.Fprintf(w, "\n%s\t\n", title)
	for _, r := range s.Rows {
		fmt.Fprintf(w, "%s%s %s\t%s\n", strings.Repeat("  ", r.Depth+1), r.Code, r.Name, r.Balance)
	}
	fmt.Fprintf(w, "Total %s\t%s\n", strings.ToLower(title), s.Total)
}

func blankZero(s string, zero bool) string {
	if zero {
		return ""
	}
	return s
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-verify the whole hash chain on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := c.Verify(ctx)
		if err != nil {
			return err
		}
		if err := render(res, func() error {
			if res.IsValid {
				fmt.Printf("Chain valid: %d entries, tail %s\n", res.TotalEntries, res.Tail.Hash)
				return nil
			}
			fmt.Printf("Chain BROKEN at sequence %d: %s\n", *res.BrokenAtSequence, res.Reason)
			fmt.Printf("Verified %d of %d entries\n", res.VerifiedEntries, res.TotalEntries)
			return nil
		}); err != nil {
			return err
		}
		if !res.IsValid {
			return res.Err()
		}
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger counts and the chain tail",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		o, err := c.Overview(ctx)
		if err != nil {
			return err
		}
		return render(o, func() error {
			fmt.Printf("Posted:   %d (%d voided)\n", o.Posted, o.Voided)
			fmt.Printf("Drafts:   %d\n", o.Drafts)
			fmt.Printf("Accounts: %d\n", o.Accounts)
			fmt.Printf("Tail:     #%d %s\n", o.Tail.Sequence, o.Tail.Hash)
			return nil
		})
	},
}
