// Package system builds and decodes system program instructions.
package system

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

var (
	// ProgramID is the system program.
	ProgramID = types.MustPublicKey("11111111111111111111111111111111")
	// SysvarInstructionsID exposes the current transaction's instructions.
	SysvarInstructionsID = types.MustPublicKey("Sysvar1nstructions1111111111111111111111111")
	// SysvarRentID holds the rent parameters.
	SysvarRentID = types.MustPublicKey("SysvarRent111111111111111111111111111111111")
)

// Instruction indexes.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
)

// ErrInvalidInstruction is returned for data that is not a known instruction.
var ErrInvalidInstruction = errors.New("system: invalid instruction data")

// CreateAccount allocates space for a new account owned by owner and funds it.
// Both from and newAccount sign.
func CreateAccount(from, newAccount types.PublicKey, lamports, space uint64, owner types.PublicKey) tx.Instruction {
	data := make([]byte, 0, 4+8+8+32)
	data = binary.LittleEndian.AppendUint32(data, InstructionCreateAccount)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.WritableSigner(from), tx.WritableSigner(newAccount)},
		Data:      data,
	}
}

// Transfer moves lamports between system accounts.
func Transfer(from, to types.PublicKey, lamports uint64) tx.Instruction {
	data := make([]byte, 0, 12)
	data = binary.LittleEndian.AppendUint32(data, InstructionTransfer)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.WritableSigner(from), tx.Writable(to)},
		Data:      data,
	}
}

// Decoded is a parsed system instruction.
type Decoded struct {
	Kind     uint32
	Lamports uint64
	Space    uint64
	Owner    types.PublicKey
}

// Decode parses system instruction data.
func Decode(data []byte) (Decoded, error) {
	if len(data) < 4 {
		return Decoded{}, ErrInvalidInstruction
	}
	d := Decoded{Kind: binary.LittleEndian.Uint32(data)}
	body := data[4:]
	switch d.Kind {
	case InstructionCreateAccount:
		if len(body) != 48 {
			return Decoded{}, fmt.Errorf("%w: create account length %d", ErrInvalidInstruction, len(body))
		}
		d.Lamports = binary.LittleEndian.Uint64(body)
		d.Space = binary.LittleEndian.Uint64(body[8:])
		copy(d.Owner[:], body[16:])
	case InstructionAssign:
		if len(body) != 32 {
			return Decoded{}, fmt.Errorf("%w: assign length %d", ErrInvalidInstruction, len(body))
		}
		copy(d.Owner[:], body)
	case InstructionTransfer:
		if len(body) != 8 {
			return Decoded{}, fmt.Errorf("%w: transfer length %d", ErrInvalidInstruction, len(body))
		}
		d.Lamports = binary.LittleEndian.Uint64(body)
	default:
		return Decoded{}, fmt.Errorf("%w: kind %d", ErrInvalidInstruction, d.Kind)
	}
	return d, nil
}
