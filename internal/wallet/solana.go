package wallet

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
)

// ParseSolanaKeypair reads the JSON byte array written by solana-keygen:
// 64 numbers holding the seed followed by the public key.
func ParseSolanaKeypair(data []byte) (*crypto.PrivateKey, error) {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("parse keypair: byte %d out of range: %d", i, n)
		}
		raw[i] = byte(n)
	}
	defer wipe(raw)
	return crypto.PrivateKeyFromBytes(raw)
}

// ReadSolanaKeypair loads a solana-keygen keypair file.
func ReadSolanaKeypair(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	return ParseSolanaKeypair(data)
}

// MarshalSolanaKeypair encodes key in the solana-keygen format.
func MarshalSolanaKeypair(key *crypto.PrivateKey) ([]byte, error) {
	raw := key.Serialize()
	defer wipe(raw)
	nums := make([]int, len(raw))
	for i, b := range raw {
		nums[i] = int(b)
	}
	return json.Marshal(nums)
}
