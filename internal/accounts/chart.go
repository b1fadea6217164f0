package accounts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/chainledger/internal/id"
	"github.com/jmerrifield20/chainledger/internal/model"
	"go.uber.org/zap"
)

// Repository persists chart-of-accounts records.
type Repository interface {
	Insert(ctx context.Context, a *model.Account) error
	List(ctx context.Context) ([]*model.Account, error)
}

// DefaultMissReloadGap is the minimum time between index reloads caused by
// lookup misses.
const DefaultMissReloadGap = time.Second

const missReloadTimeout = 5 * time.Second

// Chart is the in-process registry of accounts. Lookups are served from an
// index loaded from the repository; writes go through the repository first.
// Several processes may share one repository, so a lookup that misses
// reloads the index before reporting the account unknown.
type Chart struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	byID     map[string]*model.Account
	byCode   map[string]*model.Account
	children map[string][]string

	reloadMu   sync.Mutex
	missGap    time.Duration
	lastReload time.Time
}

// NewChart creates an empty Chart backed by repo. Call Load before use.
func NewChart(repo Repository, logger *zap.Logger) *Chart {
	return &Chart{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		byID:     make(map[string]*model.Account),
		byCode:   make(map[string]*model.Account),
		children: make(map[string][]string),
		missGap:  DefaultMissReloadGap,
	}
}

// SetMissReloadGap sets the minimum time between reloads caused by lookup
// misses. Zero reloads on every miss; a negative gap disables them.
func (c *Chart) SetMissReloadGap(d time.Duration) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	c.missGap = d
}

// reloadOnMiss reloads the index unless a miss already did so within the
// gap. It reports whether the index was reloaded.
func (c *Chart) reloadOnMiss(ctx context.Context) bool {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	if c.missGap < 0 {
		return false
	}
	now := c.now()
	if !c.lastReload.IsZero() && now.Sub(c.lastReload) < c.missGap {
		return false
	}
	c.lastReload = now

	ctx, cancel := context.WithTimeout(ctx, missReloadTimeout)
	defer cancel()
	before := c.Len()
	if err := c.Load(ctx); err != nil {
		c.logger.Warn("chart reload after lookup miss failed", zap.Error(err))
		return false
	}
	if after := c.Len(); after != before {
		c.logger.Info("chart reloaded after lookup miss", zap.Int("accounts", after), zap.Int("new", after-before))
	}
	return true
}

// Load rebuilds the index from the repository contents.
func (c *Chart) Load(ctx context.Context) error {
	accts, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.byID
	c.byID = make(map[string]*model.Account, len(accts))
	c.byCode = make(map[string]*model.Account, len(accts))
	c.children = make(map[string][]string)
	for _, a := range accts {
		c.index(a)
	}
	// Accounts are never removed; keep any created here after List ran.
	for aid, a := range prev {
		if _, ok := c.byID[aid]; !ok {
			c.index(a)
		}
	}
	return nil
}

func (c *Chart) index(a *model.Account) {
	c.byID[a.ID] = a
	c.byCode[a.Code] = a
	if a.ParentID != "" {
		c.children[a.ParentID] = append(c.children[a.ParentID], a.ID)
	}
}

// Create validates req and adds a new account to the chart.
func (c *Chart) Create(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: code and name are required", model.ErrInvalidAccount)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrInvalidAccount, req.Type)
	}
	if !req.Subtype.Valid() {
		return nil, fmt.Errorf("%w: unknown subtype %q", model.ErrInvalidAccount, req.Subtype)
	}

	if req.ParentCode != "" {
		if _, ok := c.lookup(req.ParentCode, true); !ok {
			c.reloadOnMiss(ctx)
		}
	}

	acct := &model.Account{
		ID:          id.NewAccountID(),
		Code:        req.Code,
		Name:        req.Name,
		Type:        req.Type,
		IsGroup:     req.IsGroup,
		Subtype:     req.Subtype,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}

	// The write lock spans the repository insert.
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byCode[acct.Code]; ok {
		return nil, fmt.Errorf("%w: %s", model.ErrAccountExists, acct.Code)
	}
	if req.ParentCode != "" {
		parent, ok := c.byCode[req.ParentCode]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s does not exist", model.ErrInvalidAccount, req.ParentCode)
		}
		if !parent.IsGroup {
			return nil, fmt.Errorf("%w: parent %s is not a group account", model.ErrInvalidAccount, req.ParentCode)
		}
		if parent.Type != acct.Type {
			return nil, fmt.Errorf("%w: parent %s is %s, not %s", model.ErrInvalidAccount, req.ParentCode, parent.Type, acct.Type)
		}
		acct.ParentID = parent.ID
	}

	if err := c.repo.Insert(ctx, acct); err != nil {
		return nil, fmt.Errorf("insert account %s: %w", acct.Code, err)
	}
	c.index(acct)

	c.logger.Info("account created",
		zap.String("id", acct.ID),
		zap.String("code", acct.Code),
		zap.String("type", string(acct.Type)),
	)
	cp := *acct
	return &cp, nil
}

// Get returns a copy of the account with the given ID.
func (c *Chart) Get(accountID string) (*model.Account, bool) {
	return c.find(func() (*model.Account, bool) { return c.lookup(accountID, false) })
}

// GetByCode returns a copy of the account with the given code.
func (c *Chart) GetByCode(code string) (*model.Account, bool) {
	return c.find(func() (*model.Account, bool) { return c.lookup(code, true) })
}

// Resolve looks an account up by ID, falling back to code.
func (c *Chart) Resolve(ref string) (*model.Account, bool) {
	return c.find(func() (*model.Account, bool) {
		if a, ok := c.lookup(ref, false); ok {
			return a, true
		}
		return c.lookup(ref, true)
	})
}

// find runs fn against the index, and once more after a reload if it misses.
func (c *Chart) find(fn func() (*model.Account, bool)) (*model.Account, bool) {
	if a, ok := fn(); ok {
		return a, true
	}
	if !c.reloadOnMiss(context.Background()) {
		return nil, false
	}
	return fn()
}

// lookup returns a copy of the account keyed by ID, or by code if byCode.
func (c *Chart) lookup(key string, byCode bool) (*model.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := c.byID
	if byCode {
		idx = c.byCode
	}
	a, ok := idx[key]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// List returns every account sorted by code.
func (c *Chart) List() []*model.Account {
	c.mu.RLock()
	out := make([]*model.Account, 0, len(c.byID))
	for _, a := range c.byID {
		cp := *a
		out = append(out, &cp)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Children returns the direct children of a group account, sorted by code.
func (c *Chart) Children(accountID string) []*model.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.children[accountID]
	out := make([]*model.Account, 0, len(ids))
	for _, cid := range ids {
		cp := *c.byID[cid]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Leaves returns the IDs of every postable account at or below accountID.
// For a leaf account it returns the account itself.
func (c *Chart) Leaves(accountID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	var walk func(string)
	walk = func(aid string) {
		a, ok := c.byID[aid]
		if !ok {
			return
		}
		if !a.IsGroup {
			out = append(out, aid)
			return
		}
		for _, cid := range c.children[aid] {
			walk(cid)
		}
	}
	walk(accountID)
	return out
}

// Revision identifies the chart contents for report cache keys. Accounts
// are never edited or removed, so the account count is enough and agrees
// across processes that share a repository.
func (c *Chart) Revision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.byID))
}

// Len returns the number of accounts.
func (c *Chart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Seed creates the given accounts if the chart is empty. Requests must be
// ordered so that parents precede their children.
func (c *Chart) Seed(ctx context.Context, reqs []model.CreateAccountRequest) (int, error) {
	if c.Len() > 0 {
		return 0, nil
	}
	for i, req := range reqs {
		if _, err := c.Create(ctx, req); err != nil {
			return i, fmt.Errorf("seed account %s: %w", req.Code, err)
		}
	}
	c.logger.Info("chart of accounts seeded", zap.Int("accounts", len(reqs)))
	return len(reqs), nil
}
