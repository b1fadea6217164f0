package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/reports"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// Line is one journal line. Account is an account ID or code.
type Line struct {
	Account     string       `json:"account"`
	Debit       money.Amount `json:"debit"`
	Credit      money.Amount `json:"credit"`
	Description string       `json:"description,omitempty"`
}

// DraftRequest is the payload for CreateDraft. Date is YYYY-MM-DD; empty
// means today.
type DraftRequest struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`
	Lines       []Line `json:"lines"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// DraftUpdate is the payload for UpdateDraft. Nil fields are left unchanged.
type DraftUpdate struct {
	Date        *string `json:"date,omitempty"`
	Description *string `json:"description,omitempty"`
	Lines       []Line  `json:"lines,omitempty"`
}

// VoidRequest is the payload for Void.
type VoidRequest struct {
	Date     string `json:"date,omitempty"`
	Reason   string `json:"reason"`
	VoidedBy string `json:"voided_by,omitempty"`
}

// Entry is a journal entry in any state. Exactly one of Draft and Posted
// is set.
type Entry struct {
	Status model.Status  `json:"status"`
	Draft  *model.Draft  `json:"draft,omitempty"`
	Posted *model.Posted `json:"posted,omitempty"`
}

// Overview is the response of GET /ledger.
type Overview struct {
	Tail     model.ChainTail `json:"tail"`
	Posted   int64           `json:"posted"`
	Voided   int64           `json:"voided"`
	Drafts   int64           `json:"drafts"`
	Accounts int             `json:"accounts"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int             `json:"-"`
	Message    string          `json:"error"`
	Problems   []model.Problem `json:"problems,omitempty"`
	Fields     map[string]any  `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chainledger: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusTooManyRequests
}

// Client is the chainledger SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	userAgent  string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. http://localhost:8080.
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "chainledger-go",
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ── Accounts ─────────────────────────────────────────────────────────────

// ListAccounts returns the chart of accounts, optionally filtered by type.
func (c *Client) ListAccounts(ctx context.Context, typ model.AccountType) ([]*model.Account, error) {
	q := url.Values{}
	if typ != "" {
		q.Set("type", string(typ))
	}
	var out struct {
		Accounts []*model.Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/accounts", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// CreateAccount adds an account to the chart.
func (c *Client) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error) {
	var out model.Account
	if err := c.call(ctx, http.MethodPost, "/api/v1/accounts", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountBalance returns the balance of an account (ID or code) at asOf.
func (c *Client) AccountBalance(ctx context.Context, account string, asOf time.Time) (*reports.AccountBalance, error) {
	var out reports.AccountBalance
	path := "/api/v1/accounts/" + url.PathEscape(account) + "/balance"
	if err := c.call(ctx, http.MethodGet, path, dateQuery("as_of", asOf), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Entries ──────────────────────────────────────────────────────────────

// CreateDraft stores a new draft entry.
func (c *Client) CreateDraft(ctx context.Context, req DraftRequest) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPost, "/api/v1/entries", req)
}

// UpdateDraft edits a draft entry.
func (c *Client) UpdateDraft(ctx context.Context, id string, req DraftUpdate) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPatch, "/api/v1/entries/"+url.PathEscape(id), req)
}

// DeleteDraft removes a draft entry.
func (c *Client) DeleteDraft(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/entries/"+url.PathEscape(id), nil, nil, nil)
}

// GetEntry returns an entry in any state.
func (c *Client) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var out Entry
	if err := c.call(ctx, http.MethodGet, "/api/v1/entries/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDrafts returns drafts in creation order.
func (c *Client) ListDrafts(ctx context.Context, limit, offset int) ([]Entry, error) {
	q := url.Values{"status": {string(model.StatusDraft)}}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return c.listEntries(ctx, q)
}

// ListPosted returns posted entries starting at sequence from.
func (c *Client) ListPosted(ctx context.Context, from int64, limit int) ([]Entry, error) {
	q := url.Values{"status": {string(model.StatusPosted)}}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("from", strconv.FormatInt(from, 10))
	return c.listEntries(ctx, q)
}

func (c *Client) listEntries(ctx context.Context, q url.Values) ([]Entry, error) {
	var out struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/entries", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Post validates a draft and appends it to the chain.
func (c *Client) Post(ctx context.Context, id string) (*model.Posted, error) {
	return c.postedCall(ctx, "/api/v1/entries/"+url.PathEscape(id)+"/post", nil)
}

// Void posts a reversal of a posted entry and returns the reversal.
func (c *Client) Void(ctx context.Context, id string, req VoidRequest) (*model.Posted, error) {
	return c.postedCall(ctx, "/api/v1/entries/"+url.PathEscape(id)+"/void", req)
}

func (c *Client) draftCall(ctx context.Context, method, path string, body any) (*model.Draft, error) {
	var out Entry
	if err := c.call(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	if out.Draft == nil {
		return nil, fmt.Errorf("chainledger: response to %s %s has no draft", method, path)
	}
	return out.Draft, nil
}

func (c *Client) postedCall(ctx context.Context, path string, body any) (*model.Posted, error) {
	var out Entry
	if err := c.call(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	if out.Posted == nil {
		return nil, fmt.Errorf("chainledger: response to POST %s has no posted entry", path)
	}
	return out.Posted, nil
}

// ── Reports ──────────────────────────────────────────────────────────────

// TrialBalance returns the trial balance at asOf. A zero asOf means today.
func (c *Client) TrialBalance(ctx context.Context, asOf time.Time) (*reports.TrialBalance, error) {
	var out reports.TrialBalance
	if err := c.call(ctx, http.MethodGet, "/api/v1/reports/trial-balance", dateQuery("as_of", asOf), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BalanceSheet returns the balance sheet at asOf. A zero asOf means today.
func (c *Client) BalanceSheet(ctx context.Context, asOf time.Time) (*reports.BalanceSheet, error) {
	var out reports.BalanceSheet
	if err := c.call(ctx, http.MethodGet, "/api/v1/reports/balance-sheet", dateQuery("as_of", asOf), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProfitAndLoss returns income and expenses for [from, to].
func (c *Client) ProfitAndLoss(ctx context.Context, from, to time.Time) (*reports.ProfitAndLoss, error) {
	var out reports.ProfitAndLoss
	if err := c.call(ctx, http.MethodGet, "/api/v1/reports/profit-and-loss", periodQuery(from, to), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CashFlow returns the cash flow statement for [from, to].
func (c *Client) CashFlow(ctx context.Context, from, to time.Time) (*reports.CashFlow, error) {
	var out reports.CashFlow
	if err := c.call(ctx, http.MethodGet, "/api/v1/reports/cash-flow", periodQuery(from, to), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Ledger ───────────────────────────────────────────────────────────────

// Overview returns the chain tail and store counts.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify walks the whole chain on the server. A broken chain is not an
// error; inspect the result.
func (c *Client) Verify(ctx context.Context) (*model.VerificationResult, error) {
	var out model.VerificationResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBySequence returns the posted entry at seq.
func (c *Client) GetBySequence(ctx context.Context, seq int64) (*model.Posted, error) {
	var out model.Posted
	path := "/api/v1/ledger/entries/" + strconv.FormatInt(seq, 10)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Transport ────────────────────────────────────────────────────────────

// call sends a JSON request and decodes a JSON response into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func dateQuery(name string, t time.Time) url.Values {
	if t.IsZero() {
		return nil
	}
	return url.Values{name: {t.Format(model.DateLayout)}}
}

func periodQuery(from, to time.Time) url.Values {
	q := url.Values{"from": {from.Format(model.DateLayout)}}
	if !to.IsZero() {
		q.Set("to", to.Format(model.DateLayout))
	}
	return q
}
