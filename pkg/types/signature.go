package types

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureSize is the length of an ed25519 signature in bytes.
const SignatureSize = 64

// Signature is a detached ed25519 signature. A transaction's first
// signature doubles as its identifier.
type Signature [SignatureSize]byte

// IsZero returns true if the signature is all zeros (unsigned slot).
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// String returns the base58-encoded signature.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// MarshalJSON encodes the signature as a base58 string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a base58 string into a signature.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := SignatureFromBase58(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SignatureFromBase58 parses a base58 signature.
func SignatureFromBase58(str string) (Signature, error) {
	b, err := base58.Decode(str)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid base58 signature: %w", err)
	}
	return SignatureFromBytes(b)
}

// SignatureFromBytes copies a 64-byte slice into a signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != SignatureSize {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(b))
	}
	var s Signature
	copy(s[:], b)
	return s, nil
}
