package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// SeedSize is the length of an ed25519 private key seed.
const SeedSize = ed25519.SeedSize

// Signer signs messages with an ed25519 key.
type Signer interface {
	// Sign produces a 64-byte detached signature over msg.
	Sign(msg []byte) (types.Signature, error)
	// PublicKey returns the signer's account address.
	PublicKey() types.PublicKey
}

// Verifier verifies ed25519 signatures.
type Verifier interface {
	Verify(msg []byte, sig types.Signature, pub types.PublicKey) bool
}

// PrivateKey wraps an ed25519 private key.
type PrivateKey struct {
	key ed25519.PrivateKey
	pub types.PublicKey
}

// GenerateKey creates a new random ed25519 key.
func GenerateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newPrivateKey(key), nil
}

// PrivateKeyFromSeed creates a PrivateKey from a 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("private key seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return newPrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// PrivateKeyFromBytes accepts either a 32-byte seed or the 64-byte
// seed||pubkey form used by Solana CLI keypair files. For the 64-byte form
// the embedded public key must match the seed.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	switch len(b) {
	case SeedSize:
		return PrivateKeyFromSeed(b)
	case ed25519.PrivateKeySize:
		pk, err := PrivateKeyFromSeed(b[:SeedSize])
		if err != nil {
			return nil, err
		}
		if string(pk.pub[:]) != string(b[SeedSize:]) {
			return nil, fmt.Errorf("keypair public key does not match seed")
		}
		return pk, nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

func newPrivateKey(key ed25519.PrivateKey) *PrivateKey {
	var pub types.PublicKey
	copy(pub[:], key.Public().(ed25519.PublicKey))
	return &PrivateKey{key: key, pub: pub}
}

// Sign produces a detached signature over msg.
func (pk *PrivateKey) Sign(msg []byte) (types.Signature, error) {
	if len(pk.key) != ed25519.PrivateKeySize {
		return types.Signature{}, fmt.Errorf("sign: private key has been zeroed")
	}
	var sig types.Signature
	copy(sig[:], ed25519.Sign(pk.key, msg))
	return sig, nil
}

// PublicKey returns the account address of this key.
func (pk *PrivateKey) PublicKey() types.PublicKey {
	return pk.pub
}

// Seed returns the 32-byte seed.
func (pk *PrivateKey) Seed() []byte {
	return pk.key.Seed()
}

// Serialize returns the 64-byte seed||pubkey form.
func (pk *PrivateKey) Serialize() []byte {
	out := make([]byte, ed25519.PrivateKeySize)
	copy(out, pk.key)
	return out
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	for i := range pk.key {
		pk.key[i] = 0
	}
	pk.key = nil
}

// VerifySignature checks an ed25519 signature over msg.
func VerifySignature(msg []byte, sig types.Signature, pub types.PublicKey) bool {
	return ed25519.Verify(pub[:], msg, sig[:])
}

// Ed25519Verifier implements the Verifier interface.
type Ed25519Verifier struct{}

// Verify checks an ed25519 signature over msg.
func (v Ed25519Verifier) Verify(msg []byte, sig types.Signature, pub types.PublicKey) bool {
	return VerifySignature(msg, sig, pub)
}
