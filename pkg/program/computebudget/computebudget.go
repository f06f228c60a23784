// Package computebudget builds compute budget directives.
package computebudget

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the compute budget program.
var ProgramID = types.MustPublicKey("ComputeBudget111111111111111111111111111111")

const (
	// MaxComputeUnitLimit is the largest limit a transaction may request.
	MaxComputeUnitLimit uint32 = 1_400_000
	// DefaultInstructionComputeUnitLimit is charged per non-budget
	// instruction when no limit is requested.
	DefaultInstructionComputeUnitLimit uint32 = 200_000
)

const (
	discriminatorSetComputeUnitLimit byte = 2
	discriminatorSetComputeUnitPrice byte = 3
)

// ErrInvalidInstruction is returned for unknown or malformed directives.
var ErrInvalidInstruction = errors.New("compute budget: invalid instruction data")

// SetComputeUnitLimit caps the compute units the transaction may consume.
func SetComputeUnitLimit(units uint32) tx.Instruction {
	data := make([]byte, 0, 5)
	data = append(data, discriminatorSetComputeUnitLimit)
	data = binary.LittleEndian.AppendUint32(data, units)
	return tx.Instruction{ProgramID: ProgramID, Data: data}
}

// SetComputeUnitPrice sets the priority price in micro-lamports per unit.
func SetComputeUnitPrice(microLamports uint64) tx.Instruction {
	data := make([]byte, 0, 9)
	data = append(data, discriminatorSetComputeUnitPrice)
	data = binary.LittleEndian.AppendUint64(data, microLamports)
	return tx.Instruction{ProgramID: ProgramID, Data: data}
}

// Limits are the budget values requested by a transaction.
type Limits struct {
	UnitLimit    uint32
	HasUnitLimit bool
	UnitPrice    uint64
}

// Apply folds one compute budget instruction into l.
func (l *Limits) Apply(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case discriminatorSetComputeUnitLimit:
		if len(data) != 5 {
			return fmt.Errorf("%w: limit length %d", ErrInvalidInstruction, len(data))
		}
		l.UnitLimit = binary.LittleEndian.Uint32(data[1:])
		l.HasUnitLimit = true
	case discriminatorSetComputeUnitPrice:
		if len(data) != 9 {
			return fmt.Errorf("%w: price length %d", ErrInvalidInstruction, len(data))
		}
		l.UnitPrice = binary.LittleEndian.Uint64(data[1:])
	default:
		return fmt.Errorf("%w: discriminator %d", ErrInvalidInstruction, data[0])
	}
	return nil
}

// EffectiveLimit is the requested limit, or the per-instruction default for
// the given number of non-budget instructions, capped at the maximum.
func (l Limits) EffectiveLimit(nonBudgetInstructions int) uint32 {
	limit := uint64(l.UnitLimit)
	if !l.HasUnitLimit {
		limit = uint64(DefaultInstructionComputeUnitLimit) * uint64(nonBudgetInstructions)
	}
	if limit > uint64(MaxComputeUnitLimit) {
		return MaxComputeUnitLimit
	}
	return uint32(limit)
}
