package model

import (
	"time"

	"github.com/jmerrifield20/chainledger/internal/money"
)

// Status is the lifecycle state of a journal entry as seen by readers.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
	StatusVoided Status = "voided"
)

// Line is one side of a double-entry posting. Exactly one of Debit and
// Credit is non-zero.
type Line struct {
	AccountID   string       `json:"account_id"`
	Debit       money.Amount `json:"debit"`
	Credit      money.Amount `json:"credit"`
	Description string       `json:"description,omitempty"`
}

// Entry holds the content shared by drafts and posted entries.
type Entry struct {
	ID          string    `json:"id"`
	EntryNumber string    `json:"entry_number"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Lines       []Line    `json:"lines"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Totals sums the debit and credit sides of the entry's lines.
func (e *Entry) Totals() (debit, credit money.Amount) {
	for _, l := range e.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return debit, credit
}

// Draft is an entry that has not been posted. It carries no chain position
// and may be edited or deleted freely. Revision starts at 1 and grows by
// one on every stored edit.
type Draft struct {
	Entry
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status implements the status view for drafts.
func (d *Draft) Status() Status { return StatusDraft }

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	cp := *d
	cp.Lines = append([]Line(nil), d.Lines...)
	return &cp
}

// Posted is an entry committed to the hash chain. Every field except the
// void mark (VoidedByEntryID, VoidedAt) is immutable once stored, and the
// void mark is not covered by Hash.
type Posted struct {
	Entry
	DebitTotal      money.Amount `json:"debit_total"`
	CreditTotal     money.Amount `json:"credit_total"`
	Sequence        int64        `json:"sequence"`
	PrevHash        string       `json:"prev_hash"`
	Hash            string       `json:"hash"`
	PostedAt        time.Time    `json:"posted_at"`
	ReversesEntryID string       `json:"reverses_entry_id,omitempty"`

	VoidedByEntryID string     `json:"voided_by_entry_id,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
}

// Status reports posted or voided.
func (p *Posted) Status() Status {
	if p.VoidedByEntryID != "" {
		return StatusVoided
	}
	return StatusPosted
}

// IsReversal reports whether this entry reverses another posted entry.
func (p *Posted) IsReversal() bool { return p.ReversesEntryID != "" }

// Clone returns a deep copy of the posted entry.
func (p *Posted) Clone() *Posted {
	cp := *p
	cp.Lines = append([]Line(nil), p.Lines...)
	if p.VoidedAt != nil {
		t := *p.VoidedAt
		cp.VoidedAt = &t
	}
	return &cp
}

// Day truncates t to midnight UTC. Entry dates are calendar days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire and canonical format of entry dates.
const DateLayout = "2006-01-02"
