package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Derivation path constants. Keys live at m/44'/501'/account'/change',
// the layout used by Solana wallets.
const (
	HardenedOffset uint32 = 0x80000000

	PurposeBIP44   = HardenedOffset + 44
	CoinTypeSolana = HardenedOffset + 501
)

var (
	ErrSeedLength  = errors.New("seed must be 16 to 64 bytes")
	ErrNonHardened = errors.New("ed25519 derivation supports hardened indices only")
	ErrInvalidPath = errors.New("invalid derivation path")
	masterHMACKey  = []byte("ed25519 seed")
)

// HDKey is a SLIP-0010 ed25519 extended private key.
type HDKey struct {
	key       [32]byte
	chainCode [32]byte
	depth     uint8
}

func hdFromHMAC(sum []byte, depth uint8) *HDKey {
	k := &HDKey{depth: depth}
	copy(k.key[:], sum[:32])
	copy(k.chainCode[:], sum[32:])
	return k
}

// NewMasterKey creates the master key of seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, fmt.Errorf("%w: got %d", ErrSeedLength, len(seed))
	}
	mac := hmac.New(sha512.New, masterHMACKey)
	mac.Write(seed)
	return hdFromHMAC(mac.Sum(nil), 0), nil
}

// DeriveChild derives the child at index, which must be hardened.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	if index < HardenedOffset {
		return nil, fmt.Errorf("%w: %d", ErrNonHardened, index)
	}
	data := make([]byte, 0, 37)
	data = append(data, 0)
	data = append(data, k.key[:]...)
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data)
	return hdFromHMAC(mac.Sum(nil), k.depth+1), nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveAccount derives the key at m/44'/501'/account'/change'.
func (k *HDKey) DeriveAccount(account, change uint32) (*HDKey, error) {
	return k.DerivePath(PurposeBIP44, CoinTypeSolana, HardenedOffset+account, HardenedOffset+change)
}

// AccountPath formats the path DeriveAccount uses.
func AccountPath(account, change uint32) string {
	return fmt.Sprintf("m/44'/501'/%d'/%d'", account, change)
}

// ParsePath parses a path like m/44'/501'/0'/0'. Every segment must be
// hardened, marked with ', h or H.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if !strings.HasSuffix(p, "'") && !strings.HasSuffix(p, "h") && !strings.HasSuffix(p, "H") {
			return nil, fmt.Errorf("%w: segment %q", ErrNonHardened, p)
		}
		n, err := strconv.ParseUint(p[:len(p)-1], 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, p)
		}
		out = append(out, HardenedOffset+uint32(n))
	}
	return out, nil
}

// ChainCode returns the chain code.
func (k *HDKey) ChainCode() []byte {
	return append([]byte(nil), k.chainCode[:]...)
}

// Seed returns the 32-byte ed25519 private key seed.
func (k *HDKey) Seed() []byte {
	return append([]byte(nil), k.key[:]...)
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.depth
}

// Signer returns the ed25519 key of k.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	return crypto.PrivateKeyFromSeed(k.key[:])
}

// PublicKey returns the public key of k.
func (k *HDKey) PublicKey() (types.PublicKey, error) {
	s, err := k.Signer()
	if err != nil {
		return types.PublicKey{}, err
	}
	return s.PublicKey(), nil
}

// Zero wipes the key material.
func (k *HDKey) Zero() {
	wipe(k.key[:])
	wipe(k.chainCode[:])
}
