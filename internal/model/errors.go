package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an entry or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotDraft is returned when posting or editing an entry that is not a draft.
	ErrNotDraft = errors.New("entry is not a draft")

	// ErrDraftChanged is returned when a draft was edited after it was read
	// for posting. Nothing was posted; the caller may post again.
	ErrDraftChanged = errors.New("draft changed during post")

	// ErrUnbalanced is returned when an entry reaches the appender without
	// passing validation.
	ErrUnbalanced = errors.New("entry is not balanced")

	// ErrChainRace is returned when the chain tail moved between read and
	// commit. The caller may retry.
	ErrChainRace = errors.New("chain tail changed during post")

	// ErrNotPosted is returned when voiding an entry that was never posted.
	ErrNotPosted = errors.New("entry is not posted")

	// ErrAlreadyVoided is returned when voiding an entry twice.
	ErrAlreadyVoided = errors.New("entry already voided")

	// ErrReversalEntry is returned when voiding a reversal entry.
	ErrReversalEntry = errors.New("reversal entries cannot be voided")

	// ErrAccountExists is returned when an account code is already taken.
	ErrAccountExists = errors.New("account code already exists")

	// ErrInvalidAccount is returned for structurally invalid accounts.
	ErrInvalidAccount = errors.New("invalid account")
)

// Problem describes one rule a candidate entry violates.
// Line is the zero-based line index, or -1 for entry-level problems.
type Problem struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a candidate entry.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Line >= 0 {
			msgs[i] = fmt.Sprintf("line %d: %s", p.Line+1, p.Message)
		} else {
			msgs[i] = p.Message
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IntegrityError reports that the stored chain no longer matches its
// cryptographic history. It is never recovered from automatically.
type IntegrityError struct {
	BrokenAtSequence int64
	Reason           string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity broken at sequence %d: %s", e.BrokenAtSequence, e.Reason)
}
