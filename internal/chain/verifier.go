package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
)

// Verifier walks a chain snapshot from genesis and reports the first entry
// whose stored hash no longer matches its content.
type Verifier struct {
	signer *Signer
}

// NewVerifier creates a Verifier that recomputes hashes with signer.
func NewVerifier(signer *Signer) *Verifier {
	return &Verifier{signer: signer}
}

// Verify checks entries, which must be the full chain prefix in sequence
// order. Each entry is checked against the stored hash of the entry before
// it, so a single edited entry is reported at its own sequence. Only ctx
// cancellation produces an error.
func (v *Verifier) Verify(ctx context.Context, entries []*model.Posted) (model.VerificationResult, error) {
	res := model.VerificationResult{
		TotalEntries: int64(len(entries)),
		Tail:         GenesisTail(),
		CheckedAt:    time.Now().UTC(),
	}
	if n := len(entries); n > 0 {
		res.Tail = model.ChainTail{Sequence: entries[n-1].Sequence, Hash: entries[n-1].Hash}
	}

	prevHash := GenesisHash
	for i, p := range entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("verify chain: %w", err)
			}
		}
		want := int64(i) + 1
		if reason := v.check(p, want, prevHash); reason != "" {
			res.BrokenAtSequence = &want
			res.Reason = reason
			return res, nil
		}
		prevHash = p.Hash
		res.VerifiedEntries++
	}
	res.IsValid = true
	return res, nil
}

// VerifyTail verifies entries and then checks that the recorded tail points
// at the last of them. A tail ahead of the entries means entries were removed
// from the end of the chain.
func (v *Verifier) VerifyTail(ctx context.Context, tail model.ChainTail, entries []*model.Posted) (model.VerificationResult, error) {
	res, err := v.Verify(ctx, entries)
	if err != nil || !res.IsValid {
		return res, err
	}
	if tail == res.Tail {
		return res, nil
	}
	broken := res.Tail.Sequence + 1
	if tail.Sequence == res.Tail.Sequence {
		broken = tail.Sequence
	}
	res.IsValid = false
	res.BrokenAtSequence = &broken
	res.Reason = fmt.Sprintf("chain tail (%d) does not match last stored entry (%d)", tail.Sequence, res.Tail.Sequence)
	res.Tail = tail
	return res, nil
}

// check returns a non-empty reason when p fails verification.
func (v *Verifier) check(p *model.Posted, wantSeq int64, prevHash string) string {
	if p.Sequence != wantSeq {
		return fmt.Sprintf("sequence gap: expected %d, found %d", wantSeq, p.Sequence)
	}
	if p.PrevHash != prevHash {
		return "prev_hash does not link to the preceding entry"
	}
	var debit, credit money.Amount
	for _, l := range p.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	if debit != credit || debit != p.DebitTotal || credit != p.CreditTotal {
		return fmt.Sprintf("entry does not balance: lines %s/%s, totals %s/%s",
			debit, credit, p.DebitTotal, p.CreditTotal)
	}
	if !v.signer.Matches(p, prevHash, p.Hash) {
		return "content hash mismatch"
	}
	return ""
}
