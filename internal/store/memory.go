package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jmerrifield20/chainledger/internal/chain"
	"github.com/jmerrifield20/chainledger/internal/model"
)

// MemoryStore is an in-memory, thread-safe Store. Posted entries are never
// modified in place: setting a void mark replaces the stored pointer, so a
// snapshot can share entries without copying them.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []*model.Posted
	byID     map[string]int
	tail     model.ChainTail
	drafts   map[string]*model.Draft
	counters map[int]int64
	voided   int64
}

// NewMemoryStore creates an empty MemoryStore at the genesis tail.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]int),
		tail:     chain.GenesisTail(),
		drafts:   make(map[string]*model.Draft),
		counters: make(map[int]int64),
	}
}

// Append implements Chain.
func (s *MemoryStore) Append(ctx context.Context, req AppendRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tail != req.Expected {
		return model.ErrChainRace
	}
	if _, dup := s.byID[req.Entry.ID]; dup {
		return fmt.Errorf("%w: %s already posted", model.ErrNotDraft, req.Entry.ID)
	}
	if req.DraftID != "" {
		d, ok := s.drafts[req.DraftID]
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrNotDraft, req.DraftID)
		}
		if d.Revision != req.DraftRevision {
			return fmt.Errorf("%w: %s is at revision %d, not %d", model.ErrDraftChanged, req.DraftID, d.Revision, req.DraftRevision)
		}
	}
	origIdx := -1
	if req.VoidsEntryID != "" {
		idx, ok := s.byID[req.VoidsEntryID]
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrNotPosted, req.VoidsEntryID)
		}
		orig := s.entries[idx]
		if orig.IsReversal() {
			return model.ErrReversalEntry
		}
		if orig.VoidedByEntryID != "" {
			return model.ErrAlreadyVoided
		}
		origIdx = idx
	}

	// Every check passed; the writes below cannot fail.
	p := req.Entry.Clone()
	p.VoidedByEntryID = ""
	p.VoidedAt = nil
	s.entries = append(s.entries, p)
	s.byID[p.ID] = len(s.entries) - 1
	s.tail = model.ChainTail{Sequence: p.Sequence, Hash: p.Hash}
	if req.DraftID != "" {
		delete(s.drafts, req.DraftID)
	}
	if origIdx >= 0 {
		marked := s.entries[origIdx].Clone()
		at := p.PostedAt
		marked.VoidedByEntryID = p.ID
		marked.VoidedAt = &at
		s.entries[origIdx] = marked
		s.voided++
	}
	return nil
}

// GetBySequence implements Chain.
func (s *MemoryStore) GetBySequence(_ context.Context, seq int64) (*model.Posted, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 1 || seq > int64(len(s.entries)) {
		return nil, fmt.Errorf("%w: sequence %d", model.ErrNotFound, seq)
	}
	return s.entries[seq-1].Clone(), nil
}

// GetPosted implements Chain.
func (s *MemoryStore) GetPosted(_ context.Context, id string) (*model.Posted, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: entry %s", model.ErrNotFound, id)
	}
	return s.entries[idx].Clone(), nil
}

// Range implements Chain.
func (s *MemoryStore) Range(_ context.Context, from, to int64) ([]*model.Posted, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := int64(len(s.entries))
	if from < 1 {
		from = 1
	}
	if to <= 0 || to > n {
		to = n
	}
	if from > to {
		return nil, nil
	}
	out := make([]*model.Posted, 0, to-from+1)
	for _, p := range s.entries[from-1 : to] {
		out = append(out, p.Clone())
	}
	return out, nil
}

// Tail implements Chain.
func (s *MemoryStore) Tail(_ context.Context) (model.ChainTail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail, nil
}

// Snapshot implements Chain.
func (s *MemoryStore) Snapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*model.Posted, len(s.entries))
	copy(entries, s.entries)
	return &Snapshot{Tail: s.tail, Entries: entries}, nil
}

// Recover implements Chain. Append and tail advance happen under one lock,
// so the memory store is always consistent.
func (s *MemoryStore) Recover(_ context.Context) (RecoveryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RecoveryReport{Tail: s.tail, MaxSequence: int64(len(s.entries))}, nil
}

// CreateDraft implements Drafts.
func (s *MemoryStore) CreateDraft(_ context.Context, d *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[d.ID]; ok {
		return fmt.Errorf("draft %s already exists", d.ID)
	}
	if _, ok := s.byID[d.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrNotDraft, d.ID)
	}
	if d.Revision < 1 {
		d.Revision = 1
	}
	s.drafts[d.ID] = d.Clone()
	return nil
}

// GetDraft implements Drafts.
func (s *MemoryStore) GetDraft(_ context.Context, id string) (*model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, s.missingDraft(id)
	}
	return d.Clone(), nil
}

// UpdateDraft implements Drafts.
func (s *MemoryStore) UpdateDraft(_ context.Context, d *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.drafts[d.ID]
	if !ok {
		return s.missingDraft(d.ID)
	}
	d.Revision = cur.Revision + 1
	s.drafts[d.ID] = d.Clone()
	return nil
}

// DeleteDraft implements Drafts.
func (s *MemoryStore) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return s.missingDraft(id)
	}
	delete(s.drafts, id)
	return nil
}

// missingDraft distinguishes a posted entry from an unknown one. Callers hold mu.
func (s *MemoryStore) missingDraft(id string) error {
	if _, posted := s.byID[id]; posted {
		return fmt.Errorf("%w: %s", model.ErrNotDraft, id)
	}
	return fmt.Errorf("%w: draft %s", model.ErrNotFound, id)
}

// ListDrafts implements Drafts. Drafts are ordered by creation time.
func (s *MemoryStore) ListDrafts(_ context.Context, limit, offset int) ([]*model.Draft, error) {
	limit, offset = clampPage(limit, offset)
	s.mu.RLock()
	out := make([]*model.Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryNumber < out[j].EntryNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NextEntryNumber implements Drafts.
func (s *MemoryStore) NextEntryNumber(_ context.Context, fiscalYear int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[fiscalYear]++
	return s.counters[fiscalYear], nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Tail:   s.tail,
		Posted: int64(len(s.entries)),
		Voided: s.voided,
		Drafts: int64(len(s.drafts)),
	}, nil
}
