package accounts

import "github.com/jmerrifield20/chainledger/internal/model"

// DefaultChart returns the default chart of accounts for a small business.
// Parents precede children so the result can be passed to Chart.Seed.
func DefaultChart() []model.CreateAccountRequest {
	g := func(code, name string, t model.AccountType, parent string) model.CreateAccountRequest {
		return model.CreateAccountRequest{Code: code, Name: name, Type: t, ParentCode: parent, IsGroup: true}
	}
	l := func(code, name string, t model.AccountType, parent string, st model.AccountSubtype) model.CreateAccountRequest {
		return model.CreateAccountRequest{Code: code, Name: name, Type: t, ParentCode: parent, Subtype: st}
	}
	const (
		asset     = model.AccountTypeAsset
		liability = model.AccountTypeLiability
		equity    = model.AccountTypeEquity
		income    = model.AccountTypeIncome
		expense   = model.AccountTypeExpense
	)
	return []model.CreateAccountRequest{
		g("1000", "Assets", asset, ""),
		g("1100", "Current Assets", asset, "1000"),
		l("1110", "Cash", asset, "1100", model.SubtypeCash),
		l("1120", "Bank", asset, "1100", model.SubtypeBank),
		l("1130", "Accounts Receivable", asset, "1100", model.SubtypeReceivable),
		l("1140", "GST Input Credit", asset, "1100", model.SubtypeTax),
		l("1150", "TDS Receivable", asset, "1100", model.SubtypeTax),
		g("1500", "Fixed Assets", asset, "1000"),
		l("1510", "Office Equipment", asset, "1500", model.SubtypeFixedAsset),
		l("1520", "Computers", asset, "1500", model.SubtypeFixedAsset),

		g("2000", "Liabilities", liability, ""),
		g("2100", "Current Liabilities", liability, "2000"),
		l("2110", "Accounts Payable", liability, "2100", model.SubtypePayable),
		l("2120", "GST Payable", liability, "2100", model.SubtypeTax),
		l("2130", "TDS Payable", liability, "2100", model.SubtypeTax),
		g("2500", "Long-term Liabilities", liability, "2000"),
		l("2510", "Bank Loan", liability, "2500", model.SubtypeLoan),

		g("3000", "Equity", equity, ""),
		l("3100", "Owner's Capital", equity, "3000", model.SubtypeNone),
		l("3200", "Retained Earnings", equity, "3000", model.SubtypeNone),

		g("4000", "Income", income, ""),
		l("4100", "Sales Revenue", income, "4000", model.SubtypeNone),
		l("4200", "Service Revenue", income, "4000", model.SubtypeNone),
		l("4900", "Other Income", income, "4000", model.SubtypeNone),

		g("5000", "Expenses", expense, ""),
		l("5100", "Rent Expense", expense, "5000", model.SubtypeNone),
		l("5200", "Salaries", expense, "5000", model.SubtypeNone),
		l("5300", "Utilities", expense, "5000", model.SubtypeNone),
		l("5400", "Office Supplies", expense, "5000", model.SubtypeNone),
		l("5500", "Professional Fees", expense, "5000", model.SubtypeNone),
		l("5600", "Depreciation", expense, "5000", model.SubtypeNone),
		l("5700", "Bank Charges", expense, "5000", model.SubtypeNone),
	}
}
