package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/chain"
	"github.com/jmerrifield20/chainledger/internal/id"
	"github.com/jmerrifield20/chainledger/internal/journal"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/reports"
	"github.com/jmerrifield20/chainledger/internal/store"
)

// CreateDraftParams is the input to Service.CreateDraft.
type CreateDraftParams struct {
	Date        time.Time
	Description string
	Lines       []model.Line
	CreatedBy   string
}

// UpdateDraftParams replaces the non-nil fields of a draft.
type UpdateDraftParams struct {
	Date        *time.Time
	Description *string
	Lines       []model.Line
}

// VoidParams is the input to Service.Void. A zero Date means today.
type VoidParams struct {
	Date     time.Time
	Reason   string
	VoidedBy string
}

// Overview summarizes the ledger.
type Overview struct {
	Tail     model.ChainTail `json:"tail"`
	Posted   int64           `json:"posted"`
	Voided   int64           `json:"voided"`
	Drafts   int64           `json:"drafts"`
	Accounts int             `json:"accounts"`
}

// PostRecorder is an optional callback for post outcomes. result is one of
// "posted", "invalid" or "error".
type PostRecorder func(result string)

// VerifyRecorder is an optional callback for verification runs.
type VerifyRecorder func(res model.VerificationResult)

// Service is the ledger engine: drafts are mutable, posted entries are only
// ever appended, and corrections are reversals.
type Service struct {
	store     store.Store
	chart     *accounts.Chart
	validator *journal.Validator
	appender  *Appender
	verifier  *chain.Verifier
	reports   *reports.Aggregator
	numbering journal.Numbering
	logger    *zap.Logger

	postTimeout time.Duration
	now         func() time.Time

	onPost   PostRecorder
	onVoid   func()
	onVerify VerifyRecorder
}

// NewService wires a Service. cache may be nil.
func NewService(st store.Store, chart *accounts.Chart, signer *chain.Signer, cache reports.Cache, logger *zap.Logger) *Service {
	return &Service{
		store:     st,
		chart:     chart,
		validator: journal.NewValidator(chart),
		appender:  NewAppender(st, signer, logger),
		verifier:  chain.NewVerifier(signer),
		reports:   reports.NewAggregator(st, chart, cache, logger),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNumbering sets the fiscal year used for entry numbers.
func (s *Service) SetNumbering(n journal.Numbering) {
	s.numbering = n
}

// SetPostTimeout bounds each post and void. Zero means no bound beyond ctx.
func (s *Service) SetPostTimeout(d time.Duration) {
	s.postTimeout = d
}

// SetMaxRetries sets how often a post is retried after a chain race.
func (s *Service) SetMaxRetries(n int) {
	s.appender.SetMaxRetries(n)
}

// SetMetricsRecorders configures the metrics callbacks. Any may be nil.
func (s *Service) SetMetricsRecorders(onPost PostRecorder, onVoid func(), onRace func(), onVerify VerifyRecorder) {
	s.onPost = onPost
	s.onVoid = onVoid
	s.onVerify = onVerify
	s.appender.SetRaceMetrics(onRace)
}

// Chart returns the chart of accounts.
func (s *Service) Chart() *accounts.Chart { return s.chart }

// Reports returns the report aggregator.
func (s *Service) Reports() *reports.Aggregator { return s.reports }

// ── Drafts ────────────────────────────────────────────────────────────────

// CreateDraft stores a new draft and assigns its entry number. Drafts are
// not validated until they are posted.
func (s *Service) CreateDraft(ctx context.Context, p CreateDraftParams) (*model.Draft, error) {
	date := p.Date
	if date.IsZero() {
		date = s.now()
	}
	date = model.Day(date)

	fy := s.numbering.FiscalYear(date)
	seq, err := s.store.NextEntryNumber(ctx, fy)
	if err != nil {
		return nil, fmt.Errorf("allocate entry number: %w", err)
	}

	now := s.now()
	d := &model.Draft{
		Entry: model.Entry{
			ID:          id.NewEntryID(),
			EntryNumber: s.numbering.Format(fy, seq),
			Date:        date,
			Description: strings.TrimSpace(p.Description),
			Lines:       append([]model.Line(nil), p.Lines...),
			CreatedBy:   p.CreatedBy,
			CreatedAt:   now,
		},
		Revision:  1,
		UpdatedAt: now,
	}
	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	s.logger.Debug("draft created", zap.String("id", d.ID), zap.String("entry_number", d.EntryNumber))
	return d, nil
}

// UpdateDraft edits a draft in place. Posted entries return model.ErrNotDraft.
// Moving the date into another fiscal year allocates a number from that
// year's sequence; the old number is left as a gap.
func (s *Service) UpdateDraft(ctx context.Context, entryID string, p UpdateDraftParams) (*model.Draft, error) {
	d, err := s.store.GetDraft(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if p.Date != nil {
		date := model.Day(*p.Date)
		if fy := s.numbering.FiscalYear(date); fy != s.numbering.FiscalYear(d.Date) {
			seq, err := s.store.NextEntryNumber(ctx, fy)
			if err != nil {
				return nil, fmt.Errorf("allocate entry number: %w", err)
			}
			s.logger.Debug("draft renumbered",
				zap.String("id", d.ID),
				zap.String("from", d.EntryNumber),
				zap.String("to", s.numbering.Format(fy, seq)),
			)
			d.EntryNumber = s.numbering.Format(fy, seq)
		}
		d.Date = date
	}
	if p.Description != nil {
		d.Description = strings.TrimSpace(*p.Description)
	}
	if p.Lines != nil {
		d.Lines = append([]model.Line(nil), p.Lines...)
	}
	d.UpdatedAt = s.now()
	if err := s.store.UpdateDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDraft removes a draft. Posted entries return model.ErrNotDraft.
func (s *Service) DeleteDraft(ctx context.Context, entryID string) error {
	return s.store.DeleteDraft(ctx, entryID)
}

// GetDraft returns a draft by ID.
func (s *Service) GetDraft(ctx context.Context, entryID string) (*model.Draft, error) {
	return s.store.GetDraft(ctx, entryID)
}

// ListDrafts returns drafts in creation order. A negative offset is
// treated as zero.
func (s *Service) ListDrafts(ctx context.Context, limit, offset int) ([]*model.Draft, error) {
	if offset < 0 {
		offset = 0
	}
	return s.store.ListDrafts(ctx, limit, offset)
}

// ValidateDraft reports the problems that would stop a draft from posting.
func (s *Service) ValidateDraft(ctx context.Context, entryID string) error {
	d, err := s.store.GetDraft(ctx, entryID)
	if err != nil {
		return err
	}
	_, err = s.validator.Validate(&d.Entry)
	return err
}

// ── Posting ───────────────────────────────────────────────────────────────

// Post validates draft entryID and appends it to the chain. On any error
// the draft is left as it was. An edit that lands between the read and the
// append fails the post with model.ErrDraftChanged rather than being lost.
func (s *Service) Post(ctx context.Context, entryID string) (*model.Posted, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.store.GetDraft(ctx, entryID)
	if err != nil {
		s.recordPost("error")
		return nil, err
	}
	v, err := s.validator.Validate(&d.Entry)
	if err != nil {
		s.recordPost("invalid")
		return nil, err
	}
	posted, err := s.appender.Post(ctx, v, d)
	if err != nil {
		s.recordPost("error")
		return nil, fmt.Errorf("post %s: %w", d.EntryNumber, err)
	}
	s.recordPost("posted")
	return posted, nil
}

// Void appends a reversal of posted entry entryID and marks the original
// voided. The original's content and hash are unchanged.
func (s *Service) Void(ctx context.Context, entryID string, p VoidParams) (*model.Posted, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	orig, err := s.store.GetPosted(ctx, entryID)
	if errors.Is(err, model.ErrNotFound) {
		if _, derr := s.store.GetDraft(ctx, entryID); derr == nil {
			return nil, fmt.Errorf("%w: %s is a draft", model.ErrNotPosted, entryID)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if orig.IsReversal() {
		return nil, fmt.Errorf("%w: %s", model.ErrReversalEntry, orig.EntryNumber)
	}
	if orig.VoidedByEntryID != "" {
		return nil, fmt.Errorf("%w: %s", model.ErrAlreadyVoided, orig.EntryNumber)
	}

	date := p.Date
	if date.IsZero() {
		date = s.now()
	}
	date = model.Day(date)
	fy := s.numbering.FiscalYear(date)
	seq, err := s.store.NextEntryNumber(ctx, fy)
	if err != nil {
		return nil, fmt.Errorf("allocate entry number: %w", err)
	}

	desc := "Reversal of " + orig.EntryNumber
	if r := strings.TrimSpace(p.Reason); r != "" {
		desc += ": " + r
	}
	lines := make([]model.Line, len(orig.Lines))
	for i, l := range orig.Lines {
		lines[i] = model.Line{AccountID: l.AccountID, Debit: l.Credit, Credit: l.Debit, Description: l.Description}
	}
	rev := &model.Entry{
		ID:          id.NewEntryID(),
		EntryNumber: s.numbering.Format(fy, seq),
		Date:        date,
		Description: desc,
		Lines:       lines,
		CreatedBy:   p.VoidedBy,
		CreatedAt:   s.now(),
	}
	v, err := s.validator.Validate(rev)
	if err != nil {
		return nil, fmt.Errorf("build reversal of %s: %w", orig.EntryNumber, err)
	}
	posted, err := s.appender.PostReversal(ctx, v, orig.ID)
	if err != nil {
		return nil, fmt.Errorf("void %s: %w", orig.EntryNumber, err)
	}
	if s.onVoid != nil {
		s.onVoid()
	}
	s.logger.Info("journal entry voided",
		zap.String("entry_number", orig.EntryNumber),
		zap.String("reversal", posted.EntryNumber),
		zap.String("voided_by", p.VoidedBy),
	)
	return posted, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.postTimeout > 0 {
		return context.WithTimeout(ctx, s.postTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) recordPost(result string) {
	if s.onPost != nil {
		s.onPost(result)
	}
}

// ── Reads ─────────────────────────────────────────────────────────────────

// GetPosted returns a posted entry by ID, including its void mark.
func (s *Service) GetPosted(ctx context.Context, entryID string) (*model.Posted, error) {
	return s.store.GetPosted(ctx, entryID)
}

// GetBySequence returns the posted entry at seq.
func (s *Service) GetBySequence(ctx context.Context, seq int64) (*model.Posted, error) {
	return s.store.GetBySequence(ctx, seq)
}

// ListPosted returns up to limit posted entries starting at sequence from.
func (s *Service) ListPosted(ctx context.Context, from int64, limit int) ([]*model.Posted, error) {
	if limit <= 0 {
		limit = 50
	}
	if from < 1 {
		from = 1
	}
	return s.store.Range(ctx, from, from+int64(limit)-1)
}

// Tail returns the current chain tail.
func (s *Service) Tail(ctx context.Context) (model.ChainTail, error) {
	return s.store.Tail(ctx)
}

// Overview returns chain and store counts.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	return &Overview{
		Tail:     st.Tail,
		Posted:   st.Posted,
		Voided:   st.Voided,
		Drafts:   st.Drafts,
		Accounts: s.chart.Len(),
	}, nil
}

// ── Reports ───────────────────────────────────────────────────────────────

// AccountBalance returns the balance of accountID as of asOf.
func (s *Service) AccountBalance(ctx context.Context, accountID string, asOf time.Time) (*reports.AccountBalance, error) {
	return s.reports.AccountBalance(ctx, accountID, asOf)
}

// TrialBalance returns the trial balance as of asOf.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (*reports.TrialBalance, error) {
	return s.reports.TrialBalance(ctx, asOf)
}

// BalanceSheet returns the balance sheet as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (*reports.BalanceSheet, error) {
	return s.reports.BalanceSheet(ctx, asOf)
}

// ProfitAndLoss returns income and expenses for [from, to].
func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (*reports.ProfitAndLoss, error) {
	return s.reports.ProfitAndLoss(ctx, from, to)
}

// CashFlow returns the cash flow statement for [from, to].
func (s *Service) CashFlow(ctx context.Context, from, to time.Time) (*reports.CashFlow, error) {
	return s.reports.CashFlow(ctx, from, to)
}

// ── Integrity ─────────────────────────────────────────────────────────────

// VerifyChain recomputes every hash from genesis against a snapshot. A
// broken chain is reported and logged as an alarm; it is never repaired.
func (s *Service) VerifyChain(ctx context.Context) (model.VerificationResult, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return model.VerificationResult{}, fmt.Errorf("snapshot chain: %w", err)
	}
	res, err := s.verifier.VerifyTail(ctx, snap.Tail, snap.Entries)
	if err != nil {
		return res, err
	}
	if s.onVerify != nil {
		s.onVerify(res)
	}
	if !res.IsValid {
		s.logger.Error("ledger integrity check failed",
			zap.Int64("broken_at_sequence", *res.BrokenAtSequence),
			zap.Int64("verified_entries", res.VerifiedEntries),
			zap.Int64("total_entries", res.TotalEntries),
			zap.String("reason", res.Reason),
		)
		return res, nil
	}
	s.logger.Debug("ledger integrity verified", zap.Int64("entries", res.VerifiedEntries))
	return res, nil
}

// Recover reconciles the stored tail with stored entries. It runs once at
// startup before any post is accepted.
func (s *Service) Recover(ctx context.Context) (store.RecoveryReport, error) {
	rep, err := s.store.Recover(ctx)
	if err != nil {
		return rep, fmt.Errorf("recover chain: %w", err)
	}
	s.logger.Info("chain recovered",
		zap.Int64("sequence", rep.Tail.Sequence),
		zap.Bool("advanced", rep.Advanced),
		zap.Int64("orphaned", rep.Orphaned),
	)
	return rep, nil
}
