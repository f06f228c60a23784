package assembler

import (
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// DedupeSigners drops nil signers, including nil keys stored in the
// interface, and keeps the first signer for each public key.
func DedupeSigners(signers []crypto.Signer) []crypto.Signer {
	seen := make(map[types.PublicKey]struct{}, len(signers))
	out := make([]crypto.Signer, 0, len(signers))
	for _, s := range signers {
		if isNil(s) {
			continue
		}
		pub := s.PublicKey()
		if _, ok := seen[pub]; ok {
			continue
		}
		seen[pub] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isNil(s crypto.Signer) bool {
	if s == nil {
		return true
	}
	k, ok := s.(*crypto.PrivateKey)
	return ok && k == nil
}

// Signers collects optional keys into a signer list. Nil keys are kept and
// dropped later by DedupeSigners.
func Signers(keys ...*crypto.PrivateKey) []crypto.Signer {
	out := make([]crypto.Signer, len(keys))
	for i, k := range keys {
		if k != nil {
			out[i] = k
		}
	}
	return out
}
