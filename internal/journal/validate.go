package journal

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
)

// MinLines is the smallest number of lines a journal entry may have.
const MinLines = 2

// AccountLookup resolves account IDs against the chart of accounts.
type AccountLookup interface {
	Get(accountID string) (*model.Account, bool)
}

// Validated is an entry that passed Validator.Validate. It can only be
// produced by the validator; the zero value is rejected by the appender.
type Validated struct {
	entry  model.Entry
	debit  money.Amount
	credit money.Amount
	ok     bool
}

// Entry returns a copy of the validated entry content.
func (v Validated) Entry() model.Entry {
	e := v.entry
	e.Lines = append([]model.Line(nil), v.entry.Lines...)
	return e
}

// DebitTotal is the sum of debit lines.
func (v Validated) DebitTotal() money.Amount { return v.debit }

// CreditTotal is the sum of credit lines.
func (v Validated) CreditTotal() money.Amount { return v.credit }

// OK reports whether v came from a successful validation and still balances.
func (v Validated) OK() bool { return v.ok && v.debit == v.credit && v.debit > 0 }

// Validator checks the structural and balance invariants of candidate
// entries. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	accounts AccountLookup
}

// NewValidator creates a Validator that resolves accounts through lookup.
func NewValidator(lookup AccountLookup) *Validator {
	return &Validator{accounts: lookup}
}

// Validate checks e and returns every problem found as a *model.ValidationError.
func (v *Validator) Validate(e *model.Entry) (Validated, error) {
	var problems []model.Problem
	add := func(line int, format string, args ...any) {
		problems = append(problems, model.Problem{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(e.Description) == "" {
		add(-1, "description is required")
	}
	if e.Date.IsZero() {
		add(-1, "date is required")
	}
	if len(e.Lines) < MinLines {
		add(-1, "entry needs at least %d lines, got %d", MinLines, len(e.Lines))
	}

	var debit, credit money.Amount
	for i, l := range e.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			add(i, "amounts must not be negative")
		}
		hasDebit := !l.Debit.IsZero()
		hasCredit := !l.Credit.IsZero()
		switch {
		case hasDebit && hasCredit:
			add(i, "line cannot have both debit and credit")
		case !hasDebit && !hasCredit:
			add(i, "line must have a debit or a credit")
		}

		acct, ok := v.accounts.Get(l.AccountID)
		switch {
		case !ok:
			add(i, "unknown account %q", l.AccountID)
		case acct.IsGroup:
			add(i, "account %s (%s) is a group account", acct.Code, acct.Name)
		}

		debit += l.Debit
		credit += l.Credit
	}

	if debit.IsNegative() || credit.IsNegative() {
		add(-1, "totals overflow")
	} else if debit != credit {
		add(-1, "debits (%s) != credits (%s)", debit, credit)
	}

	if len(problems) > 0 {
		return Validated{}, &model.ValidationError{Problems: problems}
	}

	out := *e
	out.Lines = append([]model.Line(nil), e.Lines...)
	out.Date = model.Day(e.Date)
	return Validated{entry: out, debit: debit, credit: credit, ok: true}, nil
}
