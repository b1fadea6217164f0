package model

import "time"

// ChainTail identifies the last committed entry of the hash chain.
// The empty chain's tail is sequence 0 with the genesis hash.
type ChainTail struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}

// VerificationResult reports the outcome of walking the chain from genesis.
type VerificationResult struct {
	IsValid          bool      `json:"is_valid"`
	TotalEntries     int64     `json:"total_entries"`
	VerifiedEntries  int64     `json:"verified_entries"`
	BrokenAtSequence *int64    `json:"broken_at_sequence"`
	Reason           string    `json:"reason,omitempty"`
	Tail             ChainTail `json:"tail"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Err returns an *IntegrityError when the chain failed verification.
func (r VerificationResult) Err() error {
	if r.IsValid {
		return nil
	}
	var seq int64
	if r.BrokenAtSequence != nil {
		seq = *r.BrokenAtSequence
	}
	return &IntegrityError{BrokenAtSequence: seq, Reason: r.Reason}
}
