package id_test

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/chainledger/internal/id"
)

func TestNew_prefixes(t *testing.T) {
	if got := id.NewEntryID(); !strings.HasPrefix(got, "je_") {
		t.Errorf("entry ID %q missing je_ prefix", got)
	}
	if got := id.NewAccountID(); !strings.HasPrefix(got, "acct_") {
		t.Errorf("account ID %q missing acct_ prefix", got)
	}
}

func TestNew_unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		v := id.NewEntryID()
		if seen[v] {
			t.Fatalf("duplicate ID %q", v)
		}
		seen[v] = true
	}
}

func TestValidate(t *testing.T) {
	if err := id.Validate(id.NewEntryID(), id.PrefixEntry); err != nil {
		t.Errorf("Validate(entry) = %v", err)
	}
	if err := id.Validate(id.NewAccountID(), id.PrefixEntry); err == nil {
		t.Error("expected prefix mismatch error")
	}
	if err := id.Validate("", id.PrefixEntry); err == nil {
		t.Error("expected error for empty ID")
	}
	if err := id.Validate("not an id", id.PrefixEntry); err == nil {
		t.Error("expected parse error")
	}
}
