package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/api/handler"
	"github.com/jmerrifield20/chainledger/internal/chain"
	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
	"github.com/jmerrifield20/chainledger/pkg/client"
)

// ── Test server ──────────────────────────────────────────────────────────

func ledgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	chart := accounts.NewChart(accounts.NewMemoryRepository(), zap.NewNop())
	if err := chart.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := chart.Seed(ctx, accounts.DefaultChart()); err != nil {
		t.Fatal(err)
	}
	signer, err := chain.NewEphemeralSigner()
	if err != nil {
		t.Fatal(err)
	}
	svc := ledger.NewService(store.NewMemoryStore(), chart, signer, nil, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAccountHandler(svc, zap.NewNop()).Register(v1)
	handler.NewEntryHandler(svc, zap.NewNop()).Register(v1)
	handler.NewReportHandler(svc, zap.NewNop()).Register(v1)
	handler.NewLedgerHandler(svc, zap.NewNop()).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func day(m time.Month, d int) time.Time { return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC) }

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_rejectsBadURL(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for malformed base URL")
	}
}

func TestClient_ExampleScenario(t *testing.T) {
	srv := ledgerServer(t)
	c := client.MustNew(srv.URL, client.WithTimeout(5*time.Second))
	ctx := context.Background()

	entries := []client.DraftRequest{
		{Date: "2026-04-01", Description: "Cash sale", Lines: []client.Line{
			{Account: "1110", Debit: money.MustParse("25000")},
			{Account: "4100", Credit: money.MustParse("21186")},
			{Account: "2120", Credit: money.MustParse("3814")},
		}},
		{Date: "2026-04-02", Description: "April rent", Lines: []client.Line{
			{Account: "5100", Debit: money.MustParse("42373")},
			{Account: "1140", Debit: money.MustParse("7627")},
			{Account: "1120", Credit: money.MustParse("50000")},
		}},
	}
	var posted []*model.Posted
	for _, e := range entries {
		d, err := c.CreateDraft(ctx, e)
		if err != nil {
			t.Fatalf("create draft: %v", err)
		}
		p, err := c.Post(ctx, d.ID)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		posted = append(posted, p)
	}
	if posted[1].PrevHash != posted[0].Hash {
		t.Error("second entry does not link to the first")
	}

	tb, err := c.TrialBalance(ctx, day(4, 30))
	if err != nil {
		t.Fatal(err)
	}
	if tb.TotalDebit != money.FromMajor(75000) || tb.TotalCredit != money.FromMajor(75000) {
		t.Errorf("totals = %s / %s", tb.TotalDebit, tb.TotalCredit)
	}

	res, err := c.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsValid || res.VerifiedEntries != 2 {
		t.Errorf("verify = %+v", res)
	}

	got, err := c.GetBySequence(ctx, 2)
	if err != nil || got.Hash != posted[1].Hash {
		t.Errorf("GetBySequence(2) = %v, %v", got, err)
	}

	list, err := c.ListPosted(ctx, 1, 10)
	if err != nil || len(list) != 2 {
		t.Errorf("ListPosted = %d entries, %v", len(list), err)
	}
}

func TestClient_VoidAndErrors(t *testing.T) {
	srv := ledgerServer(t)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	d, err := c.CreateDraft(ctx, client.DraftRequest{Date: "2026-04-01", Description: "sale", Lines: []client.Line{
		{Account: "1110", Debit: money.FromMajor(10)},
		{Account: "4100", Credit: money.FromMajor(10)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	p, err := c.Post(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}

	rev, err := c.Void(ctx, p.ID, client.VoidRequest{Reason: "duplicate", Date: "2026-04-02"})
	if err != nil {
		t.Fatal(err)
	}
	if rev.ReversesEntryID != p.ID {
		t.Errorf("reversal references %q, want %q", rev.ReversesEntryID, p.ID)
	}

	entry, err := c.GetEntry(ctx, p.ID)
	if err != nil || entry.Status != model.StatusVoided {
		t.Errorf("entry after void = %+v, %v", entry, err)
	}

	_, err = c.Void(ctx, p.ID, client.VoidRequest{Reason: "again"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("double void err = %v", err)
	}

	bad, err := c.CreateDraft(ctx, client.DraftRequest{Description: "lopsided", Lines: []client.Line{
		{Account: "1110", Debit: money.FromMajor(10)},
		{Account: "4100", Credit: money.FromMajor(9)},
	}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Post(ctx, bad.ID)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || len(apiErr.Problems) == 0 {
		t.Errorf("unbalanced post err = %#v", err)
	}
	if apiErr.Retryable() {
		t.Error("validation errors are not retryable")
	}

	if _, err := c.GetEntry(ctx, "je_missing"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("missing entry err = %v", err)
	}
}

func TestClient_DraftEditing(t *testing.T) {
	srv := ledgerServer(t)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	d, err := c.CreateDraft(ctx, client.DraftRequest{Description: "first"})
	if err != nil {
		t.Fatal(err)
	}
	desc := "second"
	upd, err := c.UpdateDraft(ctx, d.ID, client.DraftUpdate{Description: &desc})
	if err != nil || upd.Description != "second" {
		t.Fatalf("update = %+v, %v", upd, err)
	}
	drafts, err := c.ListDrafts(ctx, 10, 0)
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts = %d, %v", len(drafts), err)
	}
	if err := c.DeleteDraft(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	ov, err := c.Overview(ctx)
	if err != nil || ov.Drafts != 0 {
		t.Errorf("overview = %+v, %v", ov, err)
	}
}

func TestClient_Accounts(t *testing.T) {
	srv := ledgerServer(t)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	acct, err := c.CreateAccount(ctx, model.CreateAccountRequest{
		Code: "5800", Name: "Software", Type: model.AccountTypeExpense, ParentCode: "5000",
	})
	if err != nil {
		t.Fatal(err)
	}
	if acct.ID == "" || acct.ParentID == "" {
		t.Errorf("created account = %+v", acct)
	}

	expenses, err := c.ListAccounts(ctx, model.AccountTypeExpense)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range expenses {
		if a.Type != model.AccountTypeExpense {
			t.Errorf("filter leaked %s (%s)", a.Code, a.Type)
		}
	}

	bal, err := c.AccountBalance(ctx, "5800", time.Time{})
	if err != nil || bal.Balance != money.Zero {
		t.Errorf("balance = %+v, %v", bal, err)
	}
}

func TestAPIError_fallbackMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := client.MustNew(srv.URL).Overview(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if !apiErr.Retryable() || apiErr.Message != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("apiErr = %+v", apiErr)
	}
}
