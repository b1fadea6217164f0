// Package chain implements the keyed hash chain over posted journal entries:
// the canonical serialization, the HMAC signer, and the verifier.
package chain

import (
	"bytes"
	"strconv"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// GenesisHash is the well-known prev_hash of the first posted entry and the
// hash of the empty chain's tail.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CanonicalVersion prefixes every canonical form so the layout can evolve.
const CanonicalVersion = "v1"

// GenesisTail is the tail of an empty chain.
func GenesisTail() model.ChainTail {
	return model.ChainTail{Sequence: 0, Hash: GenesisHash}
}

// Canonicalize returns the deterministic byte form of p's hashed content
// bound to prevHash. Sequence, PostedAt, Hash and the void mark are not part
// of it.
func Canonicalize(p *model.Posted, prevHash string) []byte {
	var b bytes.Buffer
	b.WriteString(CanonicalVersion)
	b.WriteByte('\n')
	field(&b, "entry_number", p.EntryNumber)
	field(&b, "date", p.Date.UTC().Format(model.DateLayout))
	field(&b, "description", strconv.Quote(p.Description))
	for i, l := range p.Lines {
		b.WriteString("line=")
		b.WriteString(strconv.Itoa(i))
		b.WriteByte('|')
		b.WriteString(l.AccountID)
		b.WriteByte('|')
		b.WriteString(l.Debit.String())
		b.WriteByte('|')
		b.WriteString(l.Credit.String())
		b.WriteByte('|')
		b.WriteString(strconv.Quote(l.Description))
		b.WriteByte('\n')
	}
	field(&b, "debit_total", p.DebitTotal.String())
	field(&b, "credit_total", p.CreditTotal.String())
	field(&b, "reverses", p.ReversesEntryID)
	field(&b, "prev_hash", prevHash)
	return b.Bytes()
}

func field(b *bytes.Buffer, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte('\n')
}
