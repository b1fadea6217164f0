// Command seed populates a development database with the default chart of
// accounts and a quarter of realistic posted journal entries.
//
// Entries go through the ledger service, so they are validated and chained
// exactly like API posts. Running twice is safe: seeding is skipped when the
// ledger already holds posted entries.
//
// Usage:
//
//	CHAINLEDGER_CHAIN_KEY=... go run ./cmd/seed
//	CHAINLEDGER_DATABASE_URL=postgres://... CHAINLEDGER_CHAIN_KEY=... go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/config"
	"github.com/jmerrifield20/chainledger/internal/journal"
	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

// seedEntry is one sample transaction. Amounts are keyed by account code;
// positive is a debit, negative a credit.
type seedEntry struct {
	date        string
	description string
	lines       []seedLine
	void        string // non-empty: void this entry afterwards with the reason
}

type seedLine struct {
	code   string
	amount string
}

var seedEntries = []seedEntry{
	{date: "2026-04-01", description: "Owner capital contribution", lines: []seedLine{
		{"1120", "500000.00"}, {"3100", "-500000.00"},
	}},
	{date: "2026-04-03", description: "Term loan disbursed", lines: []seedLine{
		{"1120", "250000.00"}, {"2510", "-250000.00"},
	}},
	{date: "2026-04-05", description: "Laptops for the team", lines: []seedLine{
		{"1520", "180000.00"}, {"1140", "32400.00"}, {"1120", "-212400.00"},
	}},
	{date: "2026-04-10", description: "April office rent", lines: []seedLine{
		{"5100", "45000.00"}, {"1120", "-45000.00"},
	}},
	{date: "2026-04-15", description: "Consulting invoice INV-001", lines: []seedLine{
		{"1130", "118000.00"}, {"4200", "-100000.00"}, {"2120", "-18000.00"},
	}},
	{date: "2026-04-20", description: "Stationery purchase", lines: []seedLine{
		{"5400", "2350.00"}, {"1110", "-2350.00"},
	}, void: "Duplicate of petty cash voucher"},
	{date: "2026-04-28", description: "Payment received for INV-001", lines: []seedLine{
		{"1120", "108000.00"}, {"1150", "10000.00"}, {"1130", "-118000.00"},
	}},
	{date: "2026-04-30", description: "April salaries", lines: []seedLine{
		{"5200", "150000.00"}, {"2130", "-15000.00"}, {"1120", "-135000.00"},
	}},
	{date: "2026-05-10", description: "May office rent", lines: []seedLine{
		{"5100", "45000.00"}, {"1120", "-45000.00"},
	}},
	{date: "2026-05-12", description: "Product sales", lines: []seedLine{
		{"1120", "59000.00"}, {"4100", "-50000.00"}, {"2120", "-9000.00"},
	}},
	{date: "2026-05-31", description: "Bank charges", lines: []seedLine{
		{"5700", "590.00"}, {"1120", "-590.00"},
	}},
	{date: "2026-06-05", description: "Loan repayment", lines: []seedLine{
		{"2510", "20000.00"}, {"1120", "-20000.00"},
	}},
	{date: "2026-06-30", description: "Quarterly depreciation", lines: []seedLine{
		{"5600", "15000.00"}, {"1520", "-15000.00"},
	}},
}

func run() error {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	v := config.New()
	v.Set("ledger.backend", config.BackendPostgres)
	cfg, err := config.Load(v, logger)
	if err != nil {
		return err
	}
	signer, err := cfg.Signer(logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("connected to database")

	chart := accounts.NewChart(accounts.NewPostgresRepository(db), logger)
	if err := chart.Load(ctx); err != nil {
		return fmt.Errorf("load chart: %w", err)
	}
	n, err := chart.Seed(ctx, accounts.DefaultChart())
	if err != nil {
		return fmt.Errorf("seed chart: %w", err)
	}
	fmt.Printf("  chart: %d account(s) created\n", n)

	svc := ledger.NewService(store.NewPostgresStore(db, logger), chart, signer, nil, logger)
	svc.SetNumbering(journal.Numbering{StartMonth: cfg.Fiscal.YearStartMonth})

	ov, err := svc.Overview(ctx)
	if err != nil {
		return err
	}
	if ov.Posted > 0 {
		fmt.Printf("ledger already holds %d posted entries; skipping sample data\n", ov.Posted)
		return nil
	}

	for _, se := range seedEntries {
		p, err := post(ctx, svc, chart, se)
		if err != nil {
			return fmt.Errorf("seed %q: %w", se.description, err)
		}
		fmt.Printf("  post  %s #%d %s\n", p.EntryNumber, p.Sequence, p.Description)

		if se.void == "" {
			continue
		}
		r, err := svc.Void(ctx, p.ID, ledger.VoidParams{Date: p.Date, Reason: se.void, VoidedBy: "seed"})
		if err != nil {
			return fmt.Errorf("void %q: %w", se.description, err)
		}
		fmt.Printf("  void  %s #%d %s\n", r.EntryNumber, r.Sequence, r.Description)
	}

	res, err := svc.VerifyChain(ctx)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	fmt.Printf("seeded %d entries, chain verified (tail %s)\n", res.TotalEntries, res.Tail.Hash)
	return nil
}

func post(ctx context.Context, svc *ledger.Service, chart *accounts.Chart, se seedEntry) (*model.Posted, error) {
	date, err := time.Parse(model.DateLayout, se.date)
	if err != nil {
		return nil, err
	}
	lines := make([]model.Line, 0, len(se.lines))
	for _, sl := range se.lines {
		acct, ok := chart.GetByCode(sl.code)
		if !ok {
			return nil, fmt.Errorf("account %s not in chart", sl.code)
		}
		amt, err := money.Parse(sl.amount)
		if err != nil {
			return nil, err
		}
		l := model.Line{AccountID: acct.ID}
		if amt.IsNegative() {
			l.Credit = amt.Neg()
		} else {
			l.Debit = amt
		}
		lines = append(lines, l)
	}

	d, err := svc.CreateDraft(ctx, ledger.CreateDraftParams{
		Date:        date,
		Description: se.description,
		Lines:       lines,
		CreatedBy:   "seed",
	})
	if err != nil {
		return nil, err
	}
	return svc.Post(ctx, d.ID)
}
