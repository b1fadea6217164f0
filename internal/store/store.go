// Package store persists posted journal entries, the chain tail, and drafts.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// AppendRequest is one atomic chain write. The entry is appended and the
// tail advanced only if the tail still equals Expected. DraftID, when set,
// names the draft removed in the same step; it is removed only while its
// revision still equals DraftRevision. VoidsEntryID, when set, names
// the posted entry that Entry reverses; its void mark is set in the same step.
type AppendRequest struct {
	Expected      model.ChainTail
	Entry         *model.Posted
	DraftID       string
	DraftRevision int64
	VoidsEntryID  string
}

// Validate checks that the entry extends Expected.
func (r AppendRequest) Validate() error {
	if r.Entry == nil {
		return errors.New("append: nil entry")
	}
	if r.Entry.Sequence != r.Expected.Sequence+1 {
		return fmt.Errorf("append: sequence %d does not follow tail %d", r.Entry.Sequence, r.Expected.Sequence)
	}
	if r.Entry.PrevHash != r.Expected.Hash {
		return errors.New("append: prev_hash does not match expected tail")
	}
	if r.DraftID != "" && r.DraftRevision < 1 {
		return errors.New("append: draft revision not set")
	}
	if r.VoidsEntryID != "" && r.Entry.ReversesEntryID != r.VoidsEntryID {
		return errors.New("append: reversal does not reference the voided entry")
	}
	return nil
}

// Snapshot is a consistent view of the chain: Entries holds sequences
// 1..Tail.Sequence with void marks as of the same instant. Entries are
// shared and must not be modified.
type Snapshot struct {
	Tail    model.ChainTail
	Entries []*model.Posted
}

// Stats summarizes store contents.
type Stats struct {
	Tail   model.ChainTail `json:"tail"`
	Posted int64           `json:"posted"`
	Voided int64           `json:"voided"`
	Drafts int64           `json:"drafts"`
}

// RecoveryReport describes what Recover found at startup.
type RecoveryReport struct {
	Tail        model.ChainTail `json:"tail"`
	MaxSequence int64           `json:"max_sequence"`
	Advanced    bool            `json:"advanced"`
	Orphaned    int64           `json:"orphaned"`
}

// Chain is the append-only side of the store. There is no operation that
// changes posted content.
type Chain interface {
	Append(ctx context.Context, req AppendRequest) error
	GetBySequence(ctx context.Context, seq int64) (*model.Posted, error)
	GetPosted(ctx context.Context, id string) (*model.Posted, error)
	// Range returns entries with from <= sequence <= to in order. A
	// non-positive to means up to the tail.
	Range(ctx context.Context, from, to int64) ([]*model.Posted, error)
	Tail(ctx context.Context) (model.ChainTail, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
	Recover(ctx context.Context) (RecoveryReport, error)
}

// Drafts is ordinary mutable storage for unposted entries.
type Drafts interface {
	CreateDraft(ctx context.Context, d *model.Draft) error
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	// UpdateDraft stores d and sets d.Revision to the stored revision.
	UpdateDraft(ctx context.Context, d *model.Draft) error
	DeleteDraft(ctx context.Context, id string) error
	ListDrafts(ctx context.Context, limit, offset int) ([]*model.Draft, error)
	NextEntryNumber(ctx context.Context, fiscalYear int) (int64, error)
}

// Store is the full ledger store.
type Store interface {
	Chain
	Drafts
	Stats(ctx context.Context) (Stats, error)
}

// DefaultPageSize is the draft page size when the caller passes none.
const DefaultPageSize = 50

// clampPage normalizes a limit/offset pair: limit defaults to
// DefaultPageSize and offset is never negative.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
