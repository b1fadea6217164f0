package reports

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
)

type fixture struct {
	t     *testing.T
	chart *accounts.Chart
	store *store.MemoryStore
	agg   *Aggregator
}

func newFixture(t *testing.T, cache Cache) *fixture {
	t.Helper()
	ctx := context.Background()
	chart := accounts.NewChart(accounts.NewMemoryRepository(), zap.NewNop())
	require.NoError(t, chart.Load(ctx))
	_, err := chart.Seed(ctx, accounts.DefaultChart())
	require.NoError(t, err)
	st := store.NewMemoryStore()
	return &fixture{t: t, chart: chart, store: st, agg: NewAggregator(st, chart, cache, zap.NewNop())}
}

func (f *fixture) acct(code string) string {
	a, ok := f.chart.GetByCode(code)
	require.True(f.t, ok, "account %s", code)
	return a.ID
}

// line builds a line from a code and a signed major amount: positive debits,
// negative credits.
func (f *fixture) line(code string, major int64) model.Line {
	if major >= 0 {
		return model.Line{AccountID: f.acct(code), Debit: money.FromMajor(major)}
	}
	return model.Line{AccountID: f.acct(code), Credit: money.FromMajor(-major)}
}

// post appends a balanced entry directly to the store. Hashes are not
// checked by reports.
func (f *fixture) post(date time.Time, lines ...model.Line) *model.Posted {
	return f.postReversal(date, "", lines...)
}

func (f *fixture) postReversal(date time.Time, reverses string, lines ...model.Line) *model.Posted {
	f.t.Helper()
	ctx := context.Background()
	tail, err := f.store.Tail(ctx)
	require.NoError(f.t, err)
	var d, c money.Amount
	for _, l := range lines {
		d += l.Debit
		c += l.Credit
	}
	require.Equal(f.t, d, c, "test entry must balance")
	p := &model.Posted{
		Entry: model.Entry{
			ID:          fmt.Sprintf("je_%d", tail.Sequence+1),
			EntryNumber: fmt.Sprintf("JE-2026-%04d", tail.Sequence+1),
			Date:        date,
			Description: "test",
			Lines:       lines,
		},
		DebitTotal:      d,
		CreditTotal:     c,
		Sequence:        tail.Sequence + 1,
		PrevHash:        tail.Hash,
		Hash:            fmt.Sprintf("%064x", tail.Sequence+1),
		PostedAt:        time.Now().UTC(),
		ReversesEntryID: reverses,
	}
	require.NoError(f.t, f.store.Append(ctx, store.AppendRequest{Expected: tail, Entry: p, VoidsEntryID: reverses}))
	return p
}

func day(m time.Month, d int) time.Time { return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC) }

func TestTrialBalance_ExampleScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(4, 1), f.line("1110", 25000), f.line("4100", -21186), f.line("2120", -3814))
	f.post(day(4, 2), f.line("5100", 42373), f.line("1140", 7627), f.line("1120", -50000))

	tb, err := f.agg.TrialBalance(ctx, day(4, 30))
	require.NoError(t, err)
	assert.True(t, tb.Balanced())
	assert.Equal(t, money.FromMajor(75000), tb.TotalDebit)
	assert.Equal(t, money.FromMajor(75000), tb.TotalCredit)
	require.Len(t, tb.Rows, 6)
	assert.Equal(t, "1110", tb.Rows[0].Code)
	assert.Equal(t, int64(2), tb.Tail.Sequence)

	early, err := f.agg.TrialBalance(ctx, day(4, 1))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(25000), early.TotalDebit)
	assert.Len(t, early.Rows, 3)
}

func TestTrialBalance_RandomLedgersAlwaysBalance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var leaves []string
	for _, a := range f.chart.List() {
		if !a.IsGroup {
			leaves = append(leaves, a.Code)
		}
	}

	for i := 0; i < 60; i++ {
		n := 2 + rng.Intn(4)
		lines := make([]model.Line, 0, n)
		var debits money.Amount
		for j := 0; j < n-1; j++ {
			amt := money.FromMinor(1 + rng.Int63n(1_000_000))
			lines = append(lines, model.Line{AccountID: f.acct(leaves[rng.Intn(len(leaves))]), Debit: amt})
			debits += amt
		}
		lines = append(lines, model.Line{AccountID: f.acct(leaves[rng.Intn(len(leaves))]), Credit: debits})
		f.post(day(time.Month(1+rng.Intn(12)), 1+rng.Intn(28)), lines...)

		asOf := day(time.Month(1+rng.Intn(12)), 28)
		tb, err := f.agg.TrialBalance(ctx, asOf)
		require.NoError(t, err)
		require.True(t, tb.Balanced(), "unbalanced after %d entries as of %s", i+1, asOf)

		bs, err := f.agg.BalanceSheet(ctx, asOf)
		require.NoError(t, err)
		require.True(t, bs.Balanced(), "balance sheet off after %d entries", i+1)
	}
}

func TestBalanceSheet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(4, 1), f.line("1120", 100000), f.line("3100", -100000))
	f.post(day(4, 2), f.line("1110", 25000), f.line("4100", -21186), f.line("2120", -3814))
	f.post(day(4, 3), f.line("5100", 10000), f.line("1120", -10000))

	bs, err := f.agg.BalanceSheet(ctx, day(4, 30))
	require.NoError(t, err)
	assert.True(t, bs.Balanced())
	assert.Equal(t, money.FromMajor(115000), bs.TotalAssets)
	assert.Equal(t, money.FromMajor(3814), bs.TotalLiabilities)
	assert.Equal(t, money.FromMajor(11186), bs.CurrentEarnings)
	assert.Equal(t, money.FromMajor(111186), bs.TotalEquity)

	// Group rows roll up their children.
	require.NotEmpty(t, bs.Assets.Rows)
	root := bs.Assets.Rows[0]
	assert.Equal(t, "1000", root.Code)
	assert.True(t, root.IsGroup)
	assert.Equal(t, money.FromMajor(115000), root.Balance)
	for _, r := range bs.Assets.Rows {
		assert.NotEqual(t, "1500", r.Code, "empty fixed asset group should be omitted")
	}
}

func TestProfitAndLoss_Period(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(3, 31), f.line("1110", 500), f.line("4100", -500))
	f.post(day(4, 1), f.line("1110", 25000), f.line("4100", -21186), f.line("2120", -3814))
	f.post(day(4, 15), f.line("5100", 42373), f.line("1140", 7627), f.line("1120", -50000))
	f.post(day(5, 1), f.line("5200", 1000), f.line("1120", -1000))

	pl, err := f.agg.ProfitAndLoss(ctx, day(4, 1), day(4, 30))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(21186), pl.TotalIncome)
	assert.Equal(t, money.FromMajor(42373), pl.TotalExpenses)
	assert.Equal(t, money.FromMajor(21186-42373), pl.NetProfit)

	_, err = f.agg.ProfitAndLoss(ctx, day(5, 1), day(4, 1))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCashFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(3, 1), f.line("1120", 100000), f.line("3100", -100000))
	f.post(day(4, 1), f.line("1110", 25000), f.line("4100", -21186), f.line("2120", -3814))
	f.post(day(4, 5), f.line("1520", 60000), f.line("1120", -60000))
	f.post(day(4, 9), f.line("1120", 50000), f.line("2510", -50000))
	f.post(day(4, 10), f.line("5100", 10000), f.line("2110", -10000))
	f.post(day(4, 12), f.line("1110", 5000), f.line("1120", -5000))

	cf, err := f.agg.CashFlow(ctx, day(4, 1), day(4, 30))
	require.NoError(t, err)
	assert.True(t, cf.Reconciles())
	assert.Equal(t, money.FromMajor(100000), cf.OpeningCash)
	assert.Equal(t, money.FromMajor(25000), cf.Operating)
	assert.Equal(t, money.FromMajor(-60000), cf.Investing)
	assert.Equal(t, money.FromMajor(50000), cf.Financing)
	assert.Equal(t, money.FromMajor(15000), cf.NetChange)
	assert.Equal(t, money.FromMajor(115000), cf.ClosingCash)
	assert.Len(t, cf.Lines, 4)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ActivityInvesting, Classify(&model.Account{Type: model.AccountTypeAsset, Subtype: model.SubtypeFixedAsset}))
	assert.Equal(t, ActivityFinancing, Classify(&model.Account{Type: model.AccountTypeLiability, Subtype: model.SubtypeLoan}))
	assert.Equal(t, ActivityFinancing, Classify(&model.Account{Type: model.AccountTypeEquity}))
	assert.Equal(t, ActivityOperating, Classify(&model.Account{Type: model.AccountTypeIncome}))
}

func TestVoidedEntriesNetToZero(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	orig := f.post(day(4, 1), f.line("1110", 25000), f.line("4100", -25000))
	f.postReversal(day(4, 10), orig.ID, f.line("1110", -25000), f.line("4100", 25000))

	before, err := f.agg.AccountBalance(ctx, f.acct("1110"), day(4, 5))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(25000), before.Balance)

	after, err := f.agg.AccountBalance(ctx, f.acct("1110"), day(4, 30))
	require.NoError(t, err)
	assert.Equal(t, money.Zero, after.Balance)

	tb, err := f.agg.TrialBalance(ctx, day(4, 30))
	require.NoError(t, err)
	assert.True(t, tb.Balanced())
	assert.Equal(t, money.Zero, tb.TotalDebit)
}

func TestVoid_ReportsBetweenOriginalAndReversal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(4, 1), f.line("1120", 100000), f.line("3100", -100000))
	orig := f.post(day(4, 20), f.line("1110", 5000), f.line("4100", -5000))

	tbBefore, err := f.agg.TrialBalance(ctx, day(4, 30))
	require.NoError(t, err)
	bsBefore, err := f.agg.BalanceSheet(ctx, day(4, 30))
	require.NoError(t, err)

	// Voided in May; April is already closed from the reader's view.
	f.postReversal(day(5, 3), orig.ID, f.line("1110", -5000), f.line("4100", 5000))
	voided, err := f.store.GetPosted(ctx, orig.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusVoided, voided.Status())

	tbAfter, err := f.agg.TrialBalance(ctx, day(4, 30))
	require.NoError(t, err)
	assert.Equal(t, tbBefore.Rows, tbAfter.Rows, "a later void must not rewrite April")
	assert.Equal(t, money.FromMajor(105000), tbAfter.TotalDebit)

	bsAfter, err := f.agg.BalanceSheet(ctx, day(4, 30))
	require.NoError(t, err)
	assert.Equal(t, bsBefore.CurrentEarnings, bsAfter.CurrentEarnings)
	assert.Equal(t, money.FromMajor(5000), bsAfter.CurrentEarnings)

	april, err := f.agg.ProfitAndLoss(ctx, day(4, 1), day(4, 30))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(5000), april.TotalIncome)

	may, err := f.agg.ProfitAndLoss(ctx, day(5, 1), day(5, 31))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(-5000), may.TotalIncome)

	// From the reversal date on, the pair nets out.
	bsMay, err := f.agg.BalanceSheet(ctx, day(5, 31))
	require.NoError(t, err)
	assert.Equal(t, money.Zero, bsMay.CurrentEarnings)
	assert.Equal(t, money.FromMajor(100000), bsMay.TotalAssets)
}

func TestAccountBalance_GroupSumsLeaves(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.post(day(4, 1), f.line("1110", 300), f.line("1120", 700), f.line("3100", -1000))

	bal, err := f.agg.AccountBalance(ctx, f.acct("1100"), day(4, 1))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(1000), bal.Balance)

	eq, err := f.agg.AccountBalance(ctx, f.acct("3100"), day(4, 1))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(1000), eq.Balance, "credit-normal accounts report positive balances")

	_, err = f.agg.AccountBalance(ctx, "acct_missing", day(4, 1))
	assert.ErrorIs(t, err, model.ErrNotFound)
}
