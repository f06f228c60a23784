// Package anchor implements the instruction and account framing used by
// Anchor programs: 8-byte discriminators followed by Borsh-encoded fields.
package anchor

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// DiscriminatorSize is the length of instruction and account discriminators.
const DiscriminatorSize = 8

// Discriminator is the 8-byte tag that prefixes instruction data and
// account data.
type Discriminator [DiscriminatorSize]byte

// Errors returned while decoding.
var (
	ErrShortData             = errors.New("borsh: data too short")
	ErrDiscriminatorMismatch = errors.New("anchor: discriminator mismatch")
	ErrInvalidBool           = errors.New("borsh: invalid bool")
	ErrInvalidOption         = errors.New("borsh: invalid option tag")
)

// InstructionDiscriminator returns sha256("global:<name>")[:8]. name is the
// snake_case instruction name.
func InstructionDiscriminator(name string) Discriminator {
	return sighash("global", name)
}

// AccountDiscriminator returns sha256("account:<Name>")[:8]. name is the
// CamelCase account type name.
func AccountDiscriminator(name string) Discriminator {
	return sighash("account", name)
}

func sighash(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// CheckAccount verifies that data starts with want and returns a decoder
// positioned after it.
func CheckAccount(data []byte, want Discriminator) (*Decoder, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortData, len(data))
	}
	var got Discriminator
	copy(got[:], data)
	if got != want {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrDiscriminatorMismatch, got[:], want[:])
	}
	return NewDecoder(data[DiscriminatorSize:]), nil
}
