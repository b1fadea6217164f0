package reports

import (
	"time"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
)

// TrialBalanceRow is one postable account's net balance, shown on the side
// it falls.
type TrialBalanceRow struct {
	AccountID string            `json:"account_id"`
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Type      model.AccountType `json:"type"`
	Debit     money.Amount      `json:"debit"`
	Credit    money.Amount      `json:"credit"`
}

// TrialBalance lists every account with activity up to AsOf.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  money.Amount      `json:"total_debit"`
	TotalCredit money.Amount      `json:"total_credit"`
	Tail        model.ChainTail   `json:"tail"`
}

// Balanced reports whether total debits equal total credits.
func (tb *TrialBalance) Balanced() bool { return tb.TotalDebit == tb.TotalCredit }

// SectionRow is an account in a report section. Balances use the natural
// sign of the account type; group rows sum their descendants.
type SectionRow struct {
	AccountID string       `json:"account_id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Depth     int          `json:"depth"`
	IsGroup   bool         `json:"is_group"`
	Balance   money.Amount `json:"balance"`
}

// Section groups the rows of one account type.
type Section struct {
	Type  model.AccountType `json:"type"`
	Rows  []SectionRow      `json:"rows"`
	Total money.Amount      `json:"total"`
}

// BalanceSheet is the position at AsOf. Current earnings (income less
// expenses to date) are reported inside equity.
type BalanceSheet struct {
	AsOf             time.Time       `json:"as_of"`
	Assets           Section         `json:"assets"`
	Liabilities      Section         `json:"liabilities"`
	Equity           Section         `json:"equity"`
	CurrentEarnings  money.Amount    `json:"current_earnings"`
	TotalAssets      money.Amount    `json:"total_assets"`
	TotalLiabilities money.Amount    `json:"total_liabilities"`
	TotalEquity      money.Amount    `json:"total_equity"`
	Tail             model.ChainTail `json:"tail"`
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs *BalanceSheet) Balanced() bool {
	return bs.TotalAssets == bs.TotalLiabilities+bs.TotalEquity
}

// ProfitAndLoss covers entries dated From..To inclusive.
type ProfitAndLoss struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Income        Section         `json:"income"`
	Expenses      Section         `json:"expenses"`
	TotalIncome   money.Amount    `json:"total_income"`
	TotalExpenses money.Amount    `json:"total_expenses"`
	NetProfit     money.Amount    `json:"net_profit"`
	Tail          model.ChainTail `json:"tail"`
}

// CashFlowActivity classifies a cash movement.
type CashFlowActivity string

const (
	ActivityOperating CashFlowActivity = "operating"
	ActivityInvesting CashFlowActivity = "investing"
	ActivityFinancing CashFlowActivity = "financing"
)

// CashFlowLine is the net cash effect of one counter-account in the period.
type CashFlowLine struct {
	AccountID string           `json:"account_id"`
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Activity  CashFlowActivity `json:"activity"`
	Amount    money.Amount     `json:"amount"`
}

// CashFlow is the direct-method cash flow for entries dated From..To.
type CashFlow struct {
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	OpeningCash money.Amount    `json:"opening_cash"`
	Operating   money.Amount    `json:"operating"`
	Investing   money.Amount    `json:"investing"`
	Financing   money.Amount    `json:"financing"`
	NetChange   money.Amount    `json:"net_change"`
	ClosingCash money.Amount    `json:"closing_cash"`
	Lines       []CashFlowLine  `json:"lines"`
	Tail        model.ChainTail `json:"tail"`
}

// Reconciles reports whether the activity totals explain the change in cash.
func (cf *CashFlow) Reconciles() bool {
	return cf.Operating+cf.Investing+cf.Financing == cf.NetChange &&
		cf.OpeningCash+cf.NetChange == cf.ClosingCash
}

// AccountBalance is the natural-sign balance of one account at AsOf.
type AccountBalance struct {
	AccountID string          `json:"account_id"`
	Code      string          `json:"code"`
	AsOf      time.Time       `json:"as_of"`
	Debit     money.Amount    `json:"debit"`
	Credit    money.Amount    `json:"credit"`
	Balance   money.Amount    `json:"balance"`
	Tail      model.ChainTail `json:"tail"`
}
