package accounts

import (
	"context"
	"sync"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// MemoryRepository is an in-process Repository used by the memory backend
// and tests.
type MemoryRepository struct {
	mu    sync.Mutex
	accts []*model.Account
	codes map[string]bool
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{codes: make(map[string]bool)}
}

// Insert stores a copy of a.
func (r *MemoryRepository) Insert(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes[a.Code] {
		return model.ErrAccountExists
	}
	cp := *a
	r.accts = append(r.accts, &cp)
	r.codes[a.Code] = true
	return nil
}

// List returns copies of every stored account in insertion order.
func (r *MemoryRepository) List(_ context.Context) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Account, len(r.accts))
	for i, a := range r.accts {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}
