// Package id generates and validates the prefixed identifiers used for
// ledger records. IDs are TypeIDs ("prefix_suffix"): globally unique,
// K-sortable (UUIDv7 based) and URL-safe.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in an ID.
type Prefix string

const (
	PrefixEntry   Prefix = "je"   // journal entry (draft or posted)
	PrefixAccount Prefix = "acct" // chart-of-accounts node
)

// New generates an ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewEntryID generates a journal entry ID.
func NewEntryID() string { return New(PrefixEntry) }

// NewAccountID generates an account ID.
func NewAccountID() string { return New(PrefixAccount) }

// Validate checks that s is a well-formed ID carrying the expected prefix.
func Validate(s string, expected Prefix) error {
	if s == "" {
		return fmt.Errorf("id: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return fmt.Errorf("id: parse %q: %w", s, err)
	}
	if Prefix(tid.Prefix()) != expected {
		return fmt.Errorf("id: expected prefix %q, got %q", expected, tid.Prefix())
	}
	return nil
}
