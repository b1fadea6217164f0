// Package reports derives balances and financial statements from a
// consistent snapshot of posted entries. Nothing here is authoritative;
// every result can be recomputed from the chain.
package reports

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
)

// Source provides chain snapshots.
type Source interface {
	Tail(ctx context.Context) (model.ChainTail, error)
	Snapshot(ctx context.Context) (*store.Snapshot, error)
}

// ChartView is the read side of the chart of accounts.
type ChartView interface {
	Get(accountID string) (*model.Account, bool)
	List() []*model.Account
	Children(accountID string) []*model.Account
	Leaves(accountID string) []string
	Revision() int64
}

// Aggregator folds posted entries into balances and reports. Voided
// originals and their reversals are both folded: the reversal is a real
// entry dated when the void happened, and the pair nets to zero from then on.
type Aggregator struct {
	src    Source
	chart  ChartView
	cache  Cache
	logger *zap.Logger
}

// NewAggregator creates an Aggregator. A nil cache disables caching.
func NewAggregator(src Source, chart ChartView, cache Cache, logger *zap.Logger) *Aggregator {
	if cache == nil {
		cache = NopCache{}
	}
	return &Aggregator{src: src, chart: chart, cache: cache, logger: logger}
}

// sums holds gross debit and credit per account.
type sums struct {
	debit  money.Amount
	credit money.Amount
}

func (s sums) net() money.Amount { return s.debit - s.credit }

// natural returns the balance with the sign convention of t.
func natural(t model.AccountType, s sums) money.Amount {
	if t.DebitNormal() {
		return s.debit - s.credit
	}
	return s.credit - s.debit
}

// fold sums lines of entries dated within [from, to]. A zero from means
// from the beginning. Void marks are ignored: a voided original counts from
// its own date and its reversal from the reversal date, so a report dated
// between the two still shows the original.
func fold(entries []*model.Posted, from, to time.Time) map[string]sums {
	out := make(map[string]sums)
	for _, p := range entries {
		if p.Date.After(to) || (!from.IsZero() && p.Date.Before(from)) {
			continue
		}
		for _, l := range p.Lines {
			s := out[l.AccountID]
			s.debit += l.Debit
			s.credit += l.Credit
			out[l.AccountID] = s
		}
	}
	return out
}

// cached runs compute on a miss and stores the result. Keys include the
// snapshot tail hash and the chart revision, so a new post or a chart
// change makes earlier results unreachable.
func cached[T any](ctx context.Context, a *Aggregator, kind, params string, compute func(*store.Snapshot) (*T, error)) (*T, error) {
	tail, err := a.src.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tail: %w", err)
	}
	key := cacheKey(kind, tail.Hash, a.chart.Revision(), params)
	var hit T
	if ok, err := a.cache.Get(ctx, key, &hit); err != nil {
		a.logger.Warn("report cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return &hit, nil
	}

	snap, err := a.src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out, err := compute(snap)
	if err != nil {
		return nil, err
	}
	key = cacheKey(kind, snap.Tail.Hash, a.chart.Revision(), params)
	if err := a.cache.Set(ctx, key, out); err != nil {
		a.logger.Warn("report cache set failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

// AccountBalance returns the natural-sign balance of accountID at asOf.
// A group account's balance is the sum of its descendant leaves.
func (a *Aggregator) AccountBalance(ctx context.Context, accountID string, asOf time.Time) (*AccountBalance, error) {
	acct, ok := a.chart.Get(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: account %s", model.ErrNotFound, accountID)
	}
	asOf = model.Day(asOf)
	return cached(ctx, a, "balance", accountID+":"+asOf.Format(model.DateLayout), func(snap *store.Snapshot) (*AccountBalance, error) {
		totals := fold(snap.Entries, time.Time{}, asOf)
		var s sums
		for _, leaf := range a.chart.Leaves(acct.ID) {
			t := totals[leaf]
			s.debit += t.debit
			s.credit += t.credit
		}
		return &AccountBalance{
			AccountID: acct.ID,
			Code:      acct.Code,
			AsOf:      asOf,
			Debit:     s.debit,
			Credit:    s.credit,
			Balance:   natural(acct.Type, s),
			Tail:      snap.Tail,
		}, nil
	})
}

// TrialBalance lists every postable account with activity up to asOf.
func (a *Aggregator) TrialBalance(ctx context.Context, asOf time.Time) (*TrialBalance, error) {
	asOf = model.Day(asOf)
	return cached(ctx, a, "trial-balance", asOf.Format(model.DateLayout), func(snap *store.Snapshot) (*TrialBalance, error) {
		return a.trialBalance(snap, asOf), nil
	})
}

func (a *Aggregator) trialBalance(snap *store.Snapshot, asOf time.Time) *TrialBalance {
	totals := fold(snap.Entries, time.Time{}, asOf)
	tb := &TrialBalance{AsOf: asOf, Tail: snap.Tail, Rows: []TrialBalanceRow{}}
	for _, acct := range a.chart.List() {
		s, ok := totals[acct.ID]
		if !ok || acct.IsGroup {
			continue
		}
		row := TrialBalanceRow{AccountID: acct.ID, Code: acct.Code, Name: acct.Name, Type: acct.Type}
		if n := s.net(); n >= 0 {
			row.Debit = n
		} else {
			row.Credit = -n
		}
		tb.TotalDebit += row.Debit
		tb.TotalCredit += row.Credit
		tb.Rows = append(tb.Rows, row)
	}
	if !tb.Balanced() {
		a.logger.Error("trial balance does not balance",
			zap.Int64("tail_sequence", snap.Tail.Sequence),
			zap.String("total_debit", tb.TotalDebit.String()),
			zap.String("total_credit", tb.TotalCredit.String()),
		)
	}
	return tb
}

// BalanceSheet reports assets, liabilities and equity at asOf.
func (a *Aggregator) BalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error) {
	asOf = model.Day(asOf)
	return cached(ctx, a, "balance-sheet", asOf.Format(model.DateLayout), func(snap *store.Snapshot) (*BalanceSheet, error) {
		totals := fold(snap.Entries, time.Time{}, asOf)
		bs := &BalanceSheet{
			AsOf:        asOf,
			Assets:      a.section(model.AccountTypeAsset, totals),
			Liabilities: a.section(model.AccountTypeLiability, totals),
			Equity:      a.section(model.AccountTypeEquity, totals),
			Tail:        snap.Tail,
		}
		income := a.section(model.AccountTypeIncome, totals)
		expense := a.section(model.AccountTypeExpense, totals)
		bs.CurrentEarnings = income.Total - expense.Total
		bs.TotalAssets = bs.Assets.Total
		bs.TotalLiabilities = bs.Liabilities.Total
		bs.TotalEquity = bs.Equity.Total + bs.CurrentEarnings
		return bs, nil
	})
}

// ProfitAndLoss reports income and expenses for entries dated from..to.
func (a *Aggregator) ProfitAndLoss(ctx context.Context, from, to time.Time) (*ProfitAndLoss, error) {
	from, to = model.Day(from), model.Day(to)
	if to.Before(from) {
		return nil, periodError(from, to)
	}
	params := from.Format(model.DateLayout) + ":" + to.Format(model.DateLayout)
	return cached(ctx, a, "profit-and-loss", params, func(snap *store.Snapshot) (*ProfitAndLoss, error) {
		totals := fold(snap.Entries, from, to)
		pl := &ProfitAndLoss{
			From:     from,
			To:       to,
			Income:   a.section(model.AccountTypeIncome, totals),
			Expenses: a.section(model.AccountTypeExpense, totals),
			Tail:     snap.Tail,
		}
		pl.TotalIncome = pl.Income.Total
		pl.TotalExpenses = pl.Expenses.Total
		pl.NetProfit = pl.TotalIncome - pl.TotalExpenses
		return pl, nil
	})
}

// section builds the rows of one account type as a depth-first walk of the
// chart, keeping only accounts with a non-zero balance.
func (a *Aggregator) section(t model.AccountType, totals map[string]sums) Section {
	sec := Section{Type: t, Rows: []SectionRow{}}

	var walk func(acct *model.Account, depth int) money.Amount
	walk = func(acct *model.Account, depth int) money.Amount {
		idx := len(sec.Rows)
		sec.Rows = append(sec.Rows, SectionRow{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Depth:     depth,
			IsGroup:   acct.IsGroup,
		})
		var bal money.Amount
		if acct.IsGroup {
			for _, child := range a.chart.Children(acct.ID) {
				bal += walk(child, depth+1)
			}
		} else {
			bal = natural(t, totals[acct.ID])
		}
		if bal == 0 && !hasChildRows(sec.Rows, idx) {
			sec.Rows = sec.Rows[:idx]
			return 0
		}
		sec.Rows[idx].Balance = bal
		return bal
	}

	for _, acct := range a.chart.List() {
		if acct.Type != t || acct.ParentID != "" {
			continue
		}
		sec.Total += walk(acct, 0)
	}
	return sec
}

// hasChildRows reports whether rows were appended after the row at idx.
func hasChildRows(rows []SectionRow, idx int) bool { return len(rows) > idx+1 }

func periodError(from, to time.Time) error {
	return &model.ValidationError{Problems: []model.Problem{{
		Line:    -1,
		Message: fmt.Sprintf("period end %s is before start %s", to.Format(model.DateLayout), from.Format(model.DateLayout)),
	}}}
}
