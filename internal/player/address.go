// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// MaxIdentityLength bounds the length of an owner identity string.
const MaxIdentityLength = 128

// Identity names a principal that owns or pays for player records.
// Identities produced by internal/auth are lowercase hex ed25519 public keys,
// but the ledger treats them as opaque strings.
type Identity string

// String returns the identity as a string.
func (id Identity) String() string { return string(id) }

// Validate checks that the identity is usable as a derivation seed.
func (id Identity) Validate() error {
	s := string(id)
	if s == "" {
		return &ValidationError{Field: "owner", Message: "cannot be empty"}
	}
	if !utf8.ValidString(s) {
		return &ValidationError{Field: "owner", Message: "must be valid UTF-8"}
	}
	if len(s) > MaxIdentityLength {
		return &ValidationError{Field: "owner", Message: "exceeds maximum length"}
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return &ValidationError{Field: "owner", Message: "cannot contain control characters"}
	}
	return nil
}

// Address locates a player record. It is always derived from the owner
// identity, never chosen by callers.
type Address [32]byte

// addressDomainKey separates player address derivation from any other use of
// BLAKE3 keyed hashing. Changing it moves every record.
var addressDomainKey = [32]byte{
	'b', 'l', 'o', 'c', 'k', 's', 't', 'r', 'a', 'n', 'd', 'i', 'n', 'g', '.',
	'p', 'l', 'a', 'y', 'e', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Derive maps an owner identity to its record address.
func Derive(owner Identity) Address {
	h, err := blake3.NewKeyed(addressDomainKey[:])
	if err != nil {
		// Only fails for a key that is not 32 bytes.
		panic("player: blake3 keyed hasher: " + err.Error())
	}
	_, _ = h.Write([]byte(owner))
	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// String returns the lowercase hex form of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress parses the hex form produced by String.
func ParseAddress(s string) (Address, error) {
	var addr Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, &ValidationError{Field: "address", Message: "must be hex encoded"}
	}
	if len(b) != len(addr) {
		return addr, &ValidationError{Field: "address", Message: "must be 32 bytes"}
	}
	copy(addr[:], b)
	return addr, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
