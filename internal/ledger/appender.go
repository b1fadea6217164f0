// Package ledger is the engine facade: draft lifecycle, posting through the
// hash-chain appender, voiding, reports and verification.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/chain"
	"github.com/jmerrifield20/chainledger/internal/journal"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/store"
)

// DefaultMaxRetries bounds how often a post is retried after ErrChainRace.
const DefaultMaxRetries = 5

// Appender is the only writer of the chain. Within a process, posts are
// serialized by a one-slot semaphore; across processes the store's
// compare-and-swap on the tail rejects stale writers with ErrChainRace,
// which the appender retries from a fresh tail.
type Appender struct {
	store      store.Chain
	signer     *chain.Signer
	logger     *zap.Logger
	sem        chan struct{}
	maxRetries uint64
	now        func() time.Time

	onRace func()
}

// NewAppender creates an Appender writing to st and hashing with signer.
func NewAppender(st store.Chain, signer *chain.Signer, logger *zap.Logger) *Appender {
	return &Appender{
		store:      st,
		signer:     signer,
		logger:     logger,
		sem:        make(chan struct{}, 1),
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxRetries sets the ErrChainRace retry bound.
func (a *Appender) SetMaxRetries(n int) {
	if n >= 0 {
		a.maxRetries = uint64(n)
	}
}

// SetRaceMetrics registers a callback invoked on every ErrChainRace.
func (a *Appender) SetRaceMetrics(fn func()) {
	a.onRace = fn
}

// Post appends v as the next chain entry and removes draft d in the same
// atomic step. If d was edited after v was validated from it, nothing is
// written and the error wraps model.ErrDraftChanged.
func (a *Appender) Post(ctx context.Context, v journal.Validated, d *model.Draft) (*model.Posted, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: no draft", model.ErrNotDraft)
	}
	return a.append(ctx, v, draftRef{id: d.ID, revision: d.Revision}, "")
}

// PostReversal appends v as the reversal of originalID and marks the
// original voided in the same atomic step.
func (a *Appender) PostReversal(ctx context.Context, v journal.Validated, originalID string) (*model.Posted, error) {
	if originalID == "" {
		return nil, fmt.Errorf("%w: reversal without original", model.ErrNotPosted)
	}
	return a.append(ctx, v, draftRef{}, originalID)
}

type draftRef struct {
	id       string
	revision int64
}

func (a *Appender) append(ctx context.Context, v journal.Validated, draft draftRef, voids string) (*model.Posted, error) {
	if !v.OK() {
		return nil, model.ErrUnbalanced
	}

	// Waiting for the slot honours ctx, so a caller that gives up here has
	// read nothing and written nothing.
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for chain: %w", ctx.Err())
	}
	defer func() { <-a.sem }()

	var posted *model.Posted
	attempt := 0
	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		tail, err := a.store.Tail(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read chain tail: %w", err))
		}

		p := &model.Posted{
			Entry:           v.Entry(),
			DebitTotal:      v.DebitTotal(),
			CreditTotal:     v.CreditTotal(),
			Sequence:        tail.Sequence + 1,
			PrevHash:        tail.Hash,
			PostedAt:        a.now(),
			ReversesEntryID: voids,
		}
		p.Hash = a.signer.Hash(p, tail.Hash)

		err = a.store.Append(ctx, store.AppendRequest{
			Expected:      tail,
			Entry:         p,
			DraftID:       draft.id,
			DraftRevision: draft.revision,
			VoidsEntryID:  voids,
		})
		if errors.Is(err, model.ErrChainRace) {
			if a.onRace != nil {
				a.onRace()
			}
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		posted = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, a.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		a.logger.Warn("chain race, retrying post",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}

	a.logger.Info("journal entry posted",
		zap.Int64("sequence", posted.Sequence),
		zap.String("entry_number", posted.EntryNumber),
		zap.String("id", posted.ID),
		zap.String("reverses", posted.ReversesEntryID),
	)
	return posted, nil
}
