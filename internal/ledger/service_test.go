package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/chain"
	"github.com/jmerrifield20/chainledger/internal/journal"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
	"github.com/jmerrifield20/chainledger/internal/store"
)

func newTestService(t *testing.T, st store.Store) *Service {
	t.Helper()
	ctx := context.Background()
	chart := accounts.NewChart(accounts.NewMemoryRepository(), zap.NewNop())
	require.NoError(t, chart.Load(ctx))
	_, err := chart.Seed(ctx, accounts.DefaultChart())
	require.NoError(t, err)
	signer, err := chain.NewSigner([]byte("service-test-secret-0123456789"))
	require.NoError(t, err)
	if st == nil {
		st = store.NewMemoryStore()
	}
	svc := NewService(st, chart, signer, nil, zap.NewNop())
	svc.SetNumbering(journal.Numbering{StartMonth: time.April})
	return svc
}

func ln(t *testing.T, svc *Service, code string, major int64) model.Line {
	t.Helper()
	a, ok := svc.Chart().GetByCode(code)
	require.True(t, ok, "account %s", code)
	if major >= 0 {
		return model.Line{AccountID: a.ID, Debit: money.FromMajor(major)}
	}
	return model.Line{AccountID: a.ID, Credit: money.FromMajor(-major)}
}

func date(m time.Month, d int) time.Time { return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC) }

func draftAndPost(t *testing.T, svc *Service, on time.Time, desc string, lines ...model.Line) *model.Posted {
	t.Helper()
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, CreateDraftParams{Date: on, Description: desc, Lines: lines, CreatedBy: "tester"})
	require.NoError(t, err)
	p, err := svc.Post(ctx, d.ID)
	require.NoError(t, err)
	return p
}

func TestService_ExampleScenario(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	e1 := draftAndPost(t, svc, date(4, 1), "Cash sale",
		ln(t, svc, "1110", 25000), ln(t, svc, "4100", -21186), ln(t, svc, "2120", -3814))
	e2 := draftAndPost(t, svc, date(4, 2), "April rent",
		ln(t, svc, "5100", 42373), ln(t, svc, "1140", 7627), ln(t, svc, "1120", -50000))

	assert.Equal(t, int64(1), e1.Sequence)
	assert.Equal(t, chain.GenesisHash, e1.PrevHash)
	assert.Equal(t, e1.Hash, e2.PrevHash)
	assert.Equal(t, "JE-2026-0001", e1.EntryNumber)
	assert.Equal(t, "JE-2026-0002", e2.EntryNumber)

	tb, err := svc.TrialBalance(ctx, date(4, 30))
	require.NoError(t, err)
	assert.Equal(t, money.FromMajor(75000), tb.TotalDebit)
	assert.Equal(t, money.FromMajor(75000), tb.TotalCredit)

	res, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, int64(2), res.VerifiedEntries)
}

func TestService_PostRejectsInvalidDraft(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, CreateDraftParams{
		Date:        date(4, 1),
		Description: "lopsided",
		Lines:       []model.Line{ln(t, svc, "1110", 100), ln(t, svc, "4100", -90)},
	})
	require.NoError(t, err)

	_, err = svc.Post(ctx, d.ID)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, model.ErrValidation)

	// The draft survives and can be fixed.
	lines := []model.Line{ln(t, svc, "1110", 100), ln(t, svc, "4100", -100)}
	_, err = svc.UpdateDraft(ctx, d.ID, UpdateDraftParams{Lines: lines})
	require.NoError(t, err)
	p, err := svc.Post(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.EntryNumber, p.EntryNumber)

	_, err = svc.GetDraft(ctx, d.ID)
	assert.ErrorIs(t, err, model.ErrNotDraft)
}

func TestService_StateErrors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	p := draftAndPost(t, svc, date(4, 1), "sale", ln(t, svc, "1110", 10), ln(t, svc, "4100", -10))

	_, err := svc.Post(ctx, p.ID)
	assert.ErrorIs(t, err, model.ErrNotDraft, "posting twice")

	desc := "edited"
	_, err = svc.UpdateDraft(ctx, p.ID, UpdateDraftParams{Description: &desc})
	assert.ErrorIs(t, err, model.ErrNotDraft)
	assert.ErrorIs(t, svc.DeleteDraft(ctx, p.ID), model.ErrNotDraft)

	_, err = svc.Post(ctx, "je_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	d, err := svc.CreateDraft(ctx, CreateDraftParams{Description: "pending"})
	require.NoError(t, err)
	_, err = svc.Void(ctx, d.ID, VoidParams{})
	assert.ErrorIs(t, err, model.ErrNotPosted)

	_, err = svc.Void(ctx, "je_missing", VoidParams{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestService_VoidDoesNotErase(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	orig := draftAndPost(t, svc, date(4, 1), "sale", ln(t, svc, "1110", 250), ln(t, svc, "4100", -250))

	rev, err := svc.Void(ctx, orig.ID, VoidParams{Date: date(4, 10), Reason: "duplicate", VoidedBy: "auditor"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev.Sequence)
	assert.Equal(t, orig.ID, rev.ReversesEntryID)
	assert.Equal(t, "Reversal of "+orig.EntryNumber+": duplicate", rev.Description)
	require.Len(t, rev.Lines, len(orig.Lines))
	for i := range orig.Lines {
		assert.Equal(t, orig.Lines[i].Debit, rev.Lines[i].Credit)
		assert.Equal(t, orig.Lines[i].Credit, rev.Lines[i].Debit)
	}

	after, err := svc.GetPosted(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, after.Status())
	assert.Equal(t, rev.ID, after.VoidedByEntryID)
	assert.Equal(t, orig.Hash, after.Hash)
	assert.Equal(t, orig.Lines, after.Lines)

	_, err = svc.Void(ctx, orig.ID, VoidParams{})
	assert.ErrorIs(t, err, model.ErrAlreadyVoided)
	_, err = svc.Void(ctx, rev.ID, VoidParams{})
	assert.ErrorIs(t, err, model.ErrReversalEntry)

	res, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Reason)

	bal, err := svc.AccountBalance(ctx, orig.Lines[0].AccountID, date(4, 30))
	require.NoError(t, err)
	assert.Equal(t, money.Zero, bal.Balance)

	ov, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ov.Posted)
	assert.Equal(t, int64(1), ov.Voided)
}

func TestService_ConcurrentPostsAreGapless(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	const n = 25

	ids := make([]string, n)
	for i := range ids {
		d, err := svc.CreateDraft(ctx, CreateDraftParams{
			Date:        date(5, 1+i%28),
			Description: "concurrent",
			Lines:       []model.Line{ln(t, svc, "1110", int64(i+1)), ln(t, svc, "4100", -int64(i+1))},
		})
		require.NoError(t, err)
		ids[i] = d.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.Post(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("post: %v", err)
	}

	entries, err := svc.ListPosted(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, entries, n)
	seen := make(map[string]bool, n)
	for i, p := range entries {
		assert.Equal(t, int64(i+1), p.Sequence)
		assert.False(t, seen[p.PrevHash], "prev_hash %s reused", p.PrevHash)
		seen[p.PrevHash] = true
	}

	res, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, int64(n), res.VerifiedEntries)
}

// racingStore loses the first append of every post to a simulated
// competing writer.
type racingStore struct {
	*store.MemoryStore
	calls atomic.Int32
}

func (r *racingStore) Append(ctx context.Context, req store.AppendRequest) error {
	if r.calls.Add(1)%2 == 1 {
		return model.ErrChainRace
	}
	return r.MemoryStore.Append(ctx, req)
}

func TestService_RetriesChainRace(t *testing.T) {
	st := &racingStore{MemoryStore: store.NewMemoryStore()}
	svc := newTestService(t, st)
	var races, posted atomic.Int32
	svc.SetMetricsRecorders(func(result string) {
		if result == "posted" {
			posted.Add(1)
		}
	}, nil, func() { races.Add(1) }, nil)

	draftAndPost(t, svc, date(4, 1), "sale", ln(t, svc, "1110", 10), ln(t, svc, "4100", -10))
	assert.Equal(t, int32(1), races.Load())
	assert.Equal(t, int32(1), posted.Load())

	svc.SetMaxRetries(0)
	d, err := svc.CreateDraft(context.Background(), CreateDraftParams{
		Description: "no retry",
		Lines:       []model.Line{ln(t, svc, "1110", 10), ln(t, svc, "4100", -10)},
	})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), d.ID)
	assert.ErrorIs(t, err, model.ErrChainRace)
	_, err = svc.GetDraft(context.Background(), d.ID)
	assert.NoError(t, err, "draft must survive a failed post")
}

// editingStore runs onTail once, inside the appender, after the draft has
// been read and validated.
type editingStore struct {
	*store.MemoryStore
	once   sync.Once
	onTail func()
}

func (e *editingStore) Tail(ctx context.Context) (model.ChainTail, error) {
	if e.onTail != nil {
		e.once.Do(e.onTail)
	}
	return e.MemoryStore.Tail(ctx)
}

func TestService_PostDoesNotDropConcurrentEdit(t *testing.T) {
	st := &editingStore{MemoryStore: store.NewMemoryStore()}
	svc := newTestService(t, st)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, CreateDraftParams{
		Date:        date(5, 1),
		Description: "orig",
		Lines:       []model.Line{ln(t, svc, "1110", 100), ln(t, svc, "4100", -100)},
	})
	require.NoError(t, err)

	var updateErr error
	st.onTail = func() {
		desc := "edited"
		_, updateErr = svc.UpdateDraft(ctx, d.ID, UpdateDraftParams{
			Description: &desc,
			Lines:       []model.Line{ln(t, svc, "1110", 999), ln(t, svc, "4100", -999)},
		})
	}

	_, err = svc.Post(ctx, d.ID)
	require.NoError(t, updateErr)
	assert.ErrorIs(t, err, model.ErrDraftChanged)

	tail, err := svc.Tail(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tail.Sequence, "nothing may be posted")

	kept, err := svc.GetDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", kept.Description)
	assert.Equal(t, int64(2), kept.Revision)

	// Posting again picks up the edit.
	p, err := svc.Post(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", p.Description)
	assert.Equal(t, money.FromMajor(999), p.DebitTotal)
}

func TestService_RedateRenumbersAcrossFiscalYears(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, CreateDraftParams{
		Date:  date(5, 1),
		Lines: []model.Line{ln(t, svc, "1110", 10), ln(t, svc, "4100", -10)},
	})
	require.NoError(t, err)
	assert.Equal(t, "JE-2026-0001", d.EntryNumber)

	// Same fiscal year (April 2026 to March 2027): number kept.
	feb := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	d, err = svc.UpdateDraft(ctx, d.ID, UpdateDraftParams{Date: &feb})
	require.NoError(t, err)
	assert.Equal(t, "JE-2026-0001", d.EntryNumber)

	june := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	d, err = svc.UpdateDraft(ctx, d.ID, UpdateDraftParams{Date: &june})
	require.NoError(t, err)
	assert.Equal(t, "JE-2027-0001", d.EntryNumber)

	p, err := svc.Post(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, june, p.Date)
	assert.Equal(t, "JE-2027-0001", p.EntryNumber)

	// The abandoned 2026 number stays a gap.
	next, err := svc.CreateDraft(ctx, CreateDraftParams{Date: date(6, 1)})
	require.NoError(t, err)
	assert.Equal(t, "JE-2026-0002", next.EntryNumber)
}

func TestService_CancelledPostLeavesNoTrace(t *testing.T) {
	svc := newTestService(t, nil)
	d, err := svc.CreateDraft(context.Background(), CreateDraftParams{
		Description: "cancelled",
		Lines:       []model.Line{ln(t, svc, "1110", 10), ln(t, svc, "4100", -10)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Post(ctx, d.ID)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)

	tail, err := svc.Tail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), tail.Sequence)
	_, err = svc.GetDraft(context.Background(), d.ID)
	assert.NoError(t, err)
}

func TestAppender_RejectsUnvalidated(t *testing.T) {
	signer, err := chain.NewEphemeralSigner()
	require.NoError(t, err)
	a := NewAppender(store.NewMemoryStore(), signer, zap.NewNop())
	_, err = a.Post(context.Background(), journal.Validated{}, &model.Draft{Revision: 1})
	assert.ErrorIs(t, err, model.ErrUnbalanced)
}

func TestService_VerifyChainReportsTampering(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	var last model.VerificationResult
	svc.SetMetricsRecorders(nil, nil, nil, func(r model.VerificationResult) { last = r })

	draftAndPost(t, svc, date(4, 1), "one", ln(t, svc, "1110", 10), ln(t, svc, "4100", -10))
	draftAndPost(t, svc, date(4, 2), "two", ln(t, svc, "1110", 20), ln(t, svc, "4100", -20))

	// Snapshots share entry pointers; editing one simulates a direct
	// write to the underlying storage.
	snap, err := svc.store.Snapshot(ctx)
	require.NoError(t, err)
	snap.Entries[1].Lines[0].Debit = money.FromMajor(2000)
	snap.Entries[1].DebitTotal = money.FromMajor(2000)
	snap.Entries[1].Lines[1].Credit = money.FromMajor(2000)
	snap.Entries[1].CreditTotal = money.FromMajor(2000)

	res, err := svc.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.NotNil(t, res.BrokenAtSequence)
	assert.Equal(t, int64(2), *res.BrokenAtSequence)
	assert.Equal(t, int64(1), res.VerifiedEntries)
	assert.False(t, last.IsValid)
}

func TestService_CreateDraftDefaults(t *testing.T) {
	svc := newTestService(t, nil)
	svc.now = func() time.Time { return time.Date(2027, 2, 10, 15, 4, 5, 0, time.UTC) }

	d, err := svc.CreateDraft(context.Background(), CreateDraftParams{Description: "  padded  "})
	require.NoError(t, err)
	assert.Equal(t, date(2, 10).AddDate(1, 0, 0), d.Date)
	assert.Equal(t, "padded", d.Description)
	// February 2027 falls in the fiscal year starting April 2026.
	assert.Equal(t, "JE-2026-0001", d.EntryNumber)

	list, err := svc.ListDrafts(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = svc.ListDrafts(context.Background(), 10, -1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.ErrorIs(t, svc.ValidateDraft(context.Background(), d.ID), model.ErrValidation)
}
