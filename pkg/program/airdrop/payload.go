package airdrop

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ClaimPayloadSize is the length of an encoded ClaimPayload.
const ClaimPayloadSize = 4 + 8 + 4*types.PublicKeySize

var (
	ErrEncodingOverflow = errors.New("airdrop: amount does not fit in u64")
	ErrInvalidPayload   = errors.New("airdrop: invalid claim payload")
)

// ClaimPayload is the message the airdrop admin signs to authorize a claim.
// The field order and widths are fixed: verifiers rebuild the bytes from
// public inputs.
type ClaimPayload struct {
	Nonce           uint32
	Amount          uint64
	Mint            types.PublicKey
	Claimant        types.PublicKey
	AirdropProject  types.PublicKey
	BusinessProject types.PublicKey
}

// NewClaimPayload builds a payload from an arbitrary precision amount,
// rejecting negatives and values above MaxUint64.
func NewClaimPayload(nonce uint32, amount *big.Int, mint, claimant, airdropProject, businessProject types.PublicKey) (ClaimPayload, error) {
	if amount == nil || amount.Sign() < 0 || !amount.IsUint64() {
		return ClaimPayload{}, fmt.Errorf("%w: %v", ErrEncodingOverflow, amount)
	}
	return ClaimPayload{
		Nonce:           nonce,
		Amount:          amount.Uint64(),
		Mint:            mint,
		Claimant:        claimant,
		AirdropProject:  airdropProject,
		BusinessProject: businessProject,
	}, nil
}

// Encode returns the 140-byte signing message.
func (c ClaimPayload) Encode() []byte {
	buf := make([]byte, ClaimPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.Nonce)
	binary.LittleEndian.PutUint64(buf[4:12], c.Amount)
	copy(buf[12:44], c.Mint[:])
	copy(buf[44:76], c.Claimant[:])
	copy(buf[76:108], c.AirdropProject[:])
	copy(buf[108:140], c.BusinessProject[:])
	return buf
}

// DecodeClaimPayload parses an encoded payload.
func DecodeClaimPayload(b []byte) (ClaimPayload, error) {
	if len(b) != ClaimPayloadSize {
		return ClaimPayload{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidPayload, len(b), ClaimPayloadSize)
	}
	var c ClaimPayload
	c.Nonce = binary.LittleEndian.Uint32(b[0:4])
	c.Amount = binary.LittleEndian.Uint64(b[4:12])
	copy(c.Mint[:], b[12:44])
	copy(c.Claimant[:], b[44:76])
	copy(c.AirdropProject[:], b[76:108])
	copy(c.BusinessProject[:], b[108:140])
	return c, nil
}
