package reports

import (
	"context"
	"sort"
	"time"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
)

// Classify assigns a non-cash account to a cash-flow activity.
func Classify(acct *model.Account) CashFlowActivity {
	switch {
	case acct.Subtype == model.SubtypeFixedAsset:
		return ActivityInvesting
	case acct.Subtype == model.SubtypeLoan, acct.Type == model.AccountTypeEquity:
		return ActivityFinancing
	default:
		return ActivityOperating
	}
}

// CashFlow reports cash movements for entries dated from..to. Cash accounts
// are those with subtype cash or bank. For each entry that touches cash,
// every non-cash line contributes credit minus debit to its activity.
func (a *Aggregator) CashFlow(ctx context.Context, from, to time.Time) (*CashFlow, error) {
	from, to = model.Day(from), model.Day(to)
	if to.Before(from) {
		return nil, periodError(from, to)
	}
	params := from.Format(model.DateLayout) + ":" + to.Format(model.DateLayout)
	return cached(ctx, a, "cash-flow", params, func(snap *store.Snapshot) (*CashFlow, error) {
		return a.cashFlow(snap, from, to), nil
	})
}

func (a *Aggregator) cashFlow(snap *store.Snapshot, from, to time.Time) *CashFlow {
	cf := &CashFlow{From: from, To: to, Tail: snap.Tail, Lines: []CashFlowLine{}}

	accts := make(map[string]*model.Account)
	lookup := func(id string) *model.Account {
		if acct, ok := accts[id]; ok {
			return acct
		}
		acct, ok := a.chart.Get(id)
		if !ok {
			acct = &model.Account{ID: id, Code: id, Name: id}
		}
		accts[id] = acct
		return acct
	}

	byAccount := make(map[string]money.Amount)
	for _, p := range snap.Entries {
		if p.Date.After(to) {
			continue
		}
		var cash money.Amount
		touchesCash := false
		for _, l := range p.Lines {
			if lookup(l.AccountID).IsCash() {
				touchesCash = true
				cash += l.Debit - l.Credit
			}
		}
		if p.Date.Before(from) {
			cf.OpeningCash += cash
			continue
		}
		if !touchesCash {
			continue
		}
		cf.NetChange += cash
		for _, l := range p.Lines {
			acct := lookup(l.AccountID)
			if acct.IsCash() {
				continue
			}
			amt := l.Credit - l.Debit
			byAccount[acct.ID] += amt
			switch Classify(acct) {
			case ActivityInvesting:
				cf.Investing += amt
			case ActivityFinancing:
				cf.Financing += amt
			default:
				cf.Operating += amt
			}
		}
	}
	cf.ClosingCash = cf.OpeningCash + cf.NetChange

	for id, amt := range byAccount {
		if amt == 0 {
			continue
		}
		acct := lookup(id)
		cf.Lines = append(cf.Lines, CashFlowLine{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Activity:  Classify(acct),
			Amount:    amt,
		})
	}
	sort.Slice(cf.Lines, func(i, j int) bool { return cf.Lines[i].Code < cf.Lines[j].Code })
	return cf
}
