package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
)

func newTestChart(t *testing.T) *Chart {
	t.Helper()
	c := NewChart(NewMemoryRepository(), zap.NewNop())
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestChart_CreateAndLookup(t *testing.T) {
	c := newTestChart(t)
	ctx := context.Background()

	grp, err := c.Create(ctx, model.CreateAccountRequest{Code: "1000", Name: "Assets", Type: model.AccountTypeAsset, IsGroup: true})
	require.NoError(t, err)
	cash, err := c.Create(ctx, model.CreateAccountRequest{Code: "1110", Name: "Cash", Type: model.AccountTypeAsset, ParentCode: "1000", Subtype: model.SubtypeCash})
	require.NoError(t, err)

	assert.Equal(t, grp.ID, cash.ParentID)
	assert.True(t, cash.IsCash())

	got, ok := c.Get(cash.ID)
	require.True(t, ok)
	assert.Equal(t, "Cash", got.Name)

	byCode, ok := c.GetByCode("1000")
	require.True(t, ok)
	assert.Equal(t, grp.ID, byCode.ID)

	r, ok := c.Resolve("1110")
	require.True(t, ok)
	assert.Equal(t, cash.ID, r.ID)
}

func TestChart_CreateRejects(t *testing.T) {
	c := newTestChart(t)
	ctx := context.Background()

	_, err := c.Create(ctx, model.CreateAccountRequest{Code: "1000", Name: "Assets", Type: model.AccountTypeAsset, IsGroup: true})
	require.NoError(t, err)
	_, err = c.Create(ctx, model.CreateAccountRequest{Code: "1110", Name: "Cash", Type: model.AccountTypeAsset, ParentCode: "1000"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  model.CreateAccountRequest
		want error
	}{
		{"duplicate code", model.CreateAccountRequest{Code: "1000", Name: "Again", Type: model.AccountTypeAsset}, model.ErrAccountExists},
		{"missing name", model.CreateAccountRequest{Code: "1200", Type: model.AccountTypeAsset}, model.ErrInvalidAccount},
		{"bad type", model.CreateAccountRequest{Code: "1200", Name: "X", Type: "revenue"}, model.ErrInvalidAccount},
		{"bad subtype", model.CreateAccountRequest{Code: "1200", Name: "X", Type: model.AccountTypeAsset, Subtype: "crypto"}, model.ErrInvalidAccount},
		{"unknown parent", model.CreateAccountRequest{Code: "1200", Name: "X", Type: model.AccountTypeAsset, ParentCode: "9999"}, model.ErrInvalidAccount},
		{"parent not group", model.CreateAccountRequest{Code: "1200", Name: "X", Type: model.AccountTypeAsset, ParentCode: "1110"}, model.ErrInvalidAccount},
		{"parent type mismatch", model.CreateAccountRequest{Code: "2100", Name: "X", Type: model.AccountTypeLiability, ParentCode: "1000"}, model.ErrInvalidAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestChart_LeavesAndChildren(t *testing.T) {
	c := newTestChart(t)
	n, err := c.Seed(context.Background(), DefaultChart())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultChart()), n)

	assets, ok := c.GetByCode("1000")
	require.True(t, ok)
	leaves := c.Leaves(assets.ID)
	assert.Len(t, leaves, 7)

	cash, _ := c.GetByCode("1110")
	assert.Equal(t, []string{cash.ID}, c.Leaves(cash.ID))

	current, _ := c.GetByCode("1100")
	kids := c.Children(current.ID)
	require.Len(t, kids, 5)
	assert.Equal(t, "1110", kids[0].Code)

	list := c.List()
	assert.Equal(t, "1000", list[0].Code)
	assert.Equal(t, c.Len(), len(list))
}

func TestChart_SeedIsNoopWhenPopulated(t *testing.T) {
	c := newTestChart(t)
	ctx := context.Background()
	_, err := c.Seed(ctx, DefaultChart())
	require.NoError(t, err)

	rev := c.Revision()
	n, err := c.Seed(ctx, DefaultChart())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, rev, c.Revision())
}

func TestChart_LoadRebuildsIndex(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	first := NewChart(repo, zap.NewNop())
	require.NoError(t, first.Load(ctx))
	_, err := first.Seed(ctx, DefaultChart())
	require.NoError(t, err)

	second := NewChart(repo, zap.NewNop())
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, first.Len(), second.Len())

	bank, ok := second.GetByCode("1120")
	require.True(t, ok)
	parent, ok := second.Get(bank.ParentID)
	require.True(t, ok)
	assert.Equal(t, "1100", parent.Code)
}

func TestChart_LookupMissReloadsSharedRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	first := NewChart(repo, zap.NewNop())
	require.NoError(t, first.Load(ctx))
	_, err := first.Seed(ctx, DefaultChart())
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	second := NewChart(repo, zap.NewNop())
	second.now = func() time.Time { return now }
	require.NoError(t, second.Load(ctx))

	// Created through the other instance after this one loaded.
	petty, err := first.Create(ctx, model.CreateAccountRequest{
		Code: "1115", Name: "Petty cash", Type: model.AccountTypeAsset, ParentCode: "1100", Subtype: model.SubtypeCash,
	})
	require.NoError(t, err)

	got, ok := second.GetByCode("1115")
	require.True(t, ok, "miss must reload from the repository")
	assert.Equal(t, petty.ID, got.ID)
	_, ok = second.Get(petty.ID)
	assert.True(t, ok)
	assert.Equal(t, first.Revision(), second.Revision())

	// Misses inside the gap do not hit the repository again.
	_, err = first.Create(ctx, model.CreateAccountRequest{Code: "1116", Name: "Float", Type: model.AccountTypeAsset, ParentCode: "1100"})
	require.NoError(t, err)
	_, ok = second.Resolve("1116")
	assert.False(t, ok)
	now = now.Add(DefaultMissReloadGap)
	_, ok = second.Resolve("1116")
	assert.True(t, ok)

	// A parent created elsewhere is found when creating a child here.
	_, err = first.Create(ctx, model.CreateAccountRequest{Code: "1600", Name: "Deposits", Type: model.AccountTypeAsset, ParentCode: "1000", IsGroup: true})
	require.NoError(t, err)
	now = now.Add(DefaultMissReloadGap)
	_, err = second.Create(ctx, model.CreateAccountRequest{Code: "1610", Name: "Rent deposit", Type: model.AccountTypeAsset, ParentCode: "1600"})
	require.NoError(t, err)
	_, ok = first.GetByCode("1610")
	assert.True(t, ok)

	second.SetMissReloadGap(-1)
	now = now.Add(time.Hour)
	_, ok = second.GetByCode("9999")
	assert.False(t, ok)
}

func TestDefaultChart_ParentsFirst(t *testing.T) {
	seen := make(map[string]model.AccountType)
	for _, req := range DefaultChart() {
		if req.ParentCode != "" {
			pt, ok := seen[req.ParentCode]
			require.True(t, ok, "parent %s of %s not defined earlier", req.ParentCode, req.Code)
			assert.Equal(t, pt, req.Type, "type mismatch for %s", req.Code)
		}
		seen[req.Code] = req.Type
	}
}
