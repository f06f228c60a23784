package tx

import (
	"math"
	"math/bits"
)

// LamportsPerSignature is the base fee charged for each required signature.
const LamportsPerSignature = 5000

// MicroLamportsPerLamport converts compute unit prices to lamports.
const MicroLamportsPerLamport = 1_000_000

// BaseFee is the signature fee of a message.
func BaseFee(m *Message) uint64 {
	return uint64(m.Header.NumRequiredSignatures) * LamportsPerSignature
}

// PriorityFee is the prioritization fee for a compute unit limit at a price
// in micro-lamports per unit, rounded up. Saturates at MaxUint64.
func PriorityFee(unitLimit uint32, unitPrice uint64) uint64 {
	hi, lo := bits.Mul64(uint64(unitLimit), unitPrice)
	lo, carry := bits.Add64(lo, MicroLamportsPerLamport-1, 0)
	hi += carry
	if hi >= MicroLamportsPerLamport {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, MicroLamportsPerLamport)
	return q
}
