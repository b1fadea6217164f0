package chain

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/jmerrifield20/chainledger/internal/model"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the derived HMAC key in bytes.
const KeySize = 32

// MinSecretSize is the shortest secret accepted by DeriveKey.
const MinSecretSize = 16

// keyInfo is the HKDF context label for chain keys.
const keyInfo = "chainledger/chain/v1"

// ErrWeakSecret is returned when the configured secret is too short.
var ErrWeakSecret = errors.New("chain secret is too short")

// DeriveKey stretches secret into a KeySize HMAC key with HKDF-SHA256.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretSize, len(secret))
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive chain key: %w", err)
	}
	return key, nil
}

// Signer computes entry hashes with a process-wide HMAC key. The key is
// never exposed or logged.
type Signer struct {
	key []byte
}

// NewSigner derives the HMAC key from secret.
func NewSigner(secret []byte) (*Signer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// NewEphemeralSigner returns a Signer with a random key. Hashes it produces
// cannot be verified after the process exits.
func NewEphemeralSigner() (*Signer, error) {
	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate ephemeral secret: %w", err)
	}
	return NewSigner(secret)
}

// Hash returns the hex HMAC-SHA256 of p's canonical form bound to prevHash.
func (s *Signer) Hash(p *model.Posted, prevHash string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(Canonicalize(p, prevHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches reports whether stored equals the hash recomputed from p and
// prevHash, comparing in constant time.
func (s *Signer) Matches(p *model.Posted, prevHash, stored string) bool {
	want, err := hex.DecodeString(s.Hash(p, prevHash))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// String keeps the key out of formatted output.
func (s *Signer) String() string { return "chain.Signer{key:REDACTED}" }
