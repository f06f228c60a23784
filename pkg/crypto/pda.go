package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Program-derived address limits.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	ErrMaxSeedLength = errors.New("seed exceeds maximum length")
	ErrTooManySeeds  = errors.New("too many seeds")
	ErrInvalidSeeds  = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump  = errors.New("unable to find a viable program address bump")
)

// CreateProgramAddress derives an address from seeds and a program ID.
// The result must be off the ed25519 curve so no private key can exist for it.
func CreateProgramAddress(seeds [][]byte, programID types.PublicKey) (types.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return types.PublicKey{}, fmt.Errorf("%w: %d, max %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return types.PublicKey{}, fmt.Errorf("%w: %d bytes, max %d", ErrMaxSeedLength, len(s), MaxSeedLength)
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out types.PublicKey
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out[:]) {
		return types.PublicKey{}, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID types.PublicKey) (types.PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.PublicKey{}, 0, err
		}
	}
	return types.PublicKey{}, 0, ErrNoViableBump
}

// MustFindProgramAddress is FindProgramAddress for seeds known to be valid
// at compile time. It panics on malformed seeds.
func MustFindProgramAddress(seeds [][]byte, programID types.PublicKey) types.PublicKey {
	addr, _, err := FindProgramAddress(seeds, programID)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
