package model

import "time"

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow with debits.
// Assets and expenses are debit-normal; liabilities, equity and income are credit-normal.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// AccountSubtype refines an account for reporting. It is optional.
type AccountSubtype string

const (
	SubtypeNone       AccountSubtype = ""
	SubtypeCash       AccountSubtype = "cash"
	SubtypeBank       AccountSubtype = "bank"
	SubtypeReceivable AccountSubtype = "receivable"
	SubtypePayable    AccountSubtype = "payable"
	SubtypeTax        AccountSubtype = "tax"
	SubtypeFixedAsset AccountSubtype = "fixed_asset"
	SubtypeLoan       AccountSubtype = "loan"
)

// Valid reports whether s is a known subtype (empty is allowed).
func (s AccountSubtype) Valid() bool {
	switch s {
	case SubtypeNone, SubtypeCash, SubtypeBank, SubtypeReceivable, SubtypePayable,
		SubtypeTax, SubtypeFixedAsset, SubtypeLoan:
		return true
	}
	return false
}

// Account is a node in the chart of accounts. Group accounts aggregate their
// descendants and never receive postings directly.
type Account struct {
	ID          string         `json:"id"                    db:"id"`
	Code        string         `json:"code"                  db:"code"`
	Name        string         `json:"name"                  db:"name"`
	Type        AccountType    `json:"type"                  db:"type"`
	ParentID    string         `json:"parent_id,omitempty"   db:"parent_id"`
	IsGroup     bool           `json:"is_group"              db:"is_group"`
	Subtype     AccountSubtype `json:"subtype,omitempty"     db:"subtype"`
	Description string         `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time      `json:"created_at"            db:"created_at"`
}

// IsCash reports whether the account holds cash or cash equivalents.
func (a *Account) IsCash() bool {
	return a.Subtype == SubtypeCash || a.Subtype == SubtypeBank
}

// CreateAccountRequest is the payload for adding an account to the chart.
type CreateAccountRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Type        AccountType    `json:"type"`
	ParentCode  string         `json:"parent_code,omitempty"`
	IsGroup     bool           `json:"is_group"`
	Subtype     AccountSubtype `json:"subtype,omitempty"`
	Description string         `json:"description,omitempty"`
}
