// Package types defines core primitive types shared by the ledger client,
// the program encoders and the local ledger.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of an account address in bytes.
const PublicKeySize = 32

// PublicKey is a 32-byte account address, rendered as base58.
type PublicKey [PublicKeySize]byte

// IsZero returns true if the key is all zeros.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// String returns the base58-encoded key.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the key as a byte slice.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, k[:])
	return b
}

// Equals reports whether two keys are identical.
func (k PublicKey) Equals(other PublicKey) bool {
	return k == other
}

// Compare orders keys by their raw bytes.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k[:], other[:])
}

// MarshalJSON encodes the key as a base58 string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a base58 string into a key.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*k = PublicKey{}
		return nil
	}
	parsed, err := PublicKeyFromBase58(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PublicKeyFromBase58 parses a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid base58 public key: %w", err)
	}
	return PublicKeyFromBytes(b)
}

// PublicKeyFromBytes copies a 32-byte slice into a key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	var k PublicKey
	copy(k[:], b)
	return k, nil
}

// MustPublicKey parses a base58 address and panics on failure.
// Intended for well-known program IDs declared at package level.
func MustPublicKey(s string) PublicKey {
	k, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return k
}
