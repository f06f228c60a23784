// Package crypto provides the signing, hashing and address-derivation
// primitives used by the ledger client.
package crypto

import (
	"github.com/Klingon-tech/klingdrop/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of a hash and extra bytes.
// The local ledger chains blockhashes with it.
func HashConcat(prev types.Hash, extra []byte) types.Hash {
	buf := make([]byte, 0, types.HashSize+len(extra))
	buf = append(buf, prev[:]...)
	buf = append(buf, extra...)
	return Hash(buf)
}
