// Package ata derives associated token accounts and builds the instructions
// that create them.
package ata

import (
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the associated token account program.
var ProgramID = types.MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// Instruction tags. An empty data slice also means Create.
const (
	InstructionCreate           byte = 0
	InstructionCreateIdempotent byte = 1
)

// FindAddress derives the associated token account of owner for mint.
func FindAddress(owner, mint types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{owner[:], token.ProgramID[:], mint[:]}, ProgramID)
}

// MustFindAddress is FindAddress for inputs known to derive.
func MustFindAddress(owner, mint types.PublicKey) types.PublicKey {
	addr, _, err := FindAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	return addr
}

// Create creates the associated token account, failing if it exists.
func Create(payer, owner, mint types.PublicKey) tx.Instruction {
	return build(payer, owner, mint, InstructionCreate)
}

// CreateIdempotent creates the associated token account unless it exists.
func CreateIdempotent(payer, owner, mint types.PublicKey) tx.Instruction {
	return build(payer, owner, mint, InstructionCreateIdempotent)
}

func build(payer, owner, mint types.PublicKey, tag byte) tx.Instruction {
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Writable(MustFindAddress(owner, mint)),
			tx.ReadOnly(owner),
			tx.ReadOnly(mint),
			tx.ReadOnly(system.ProgramID),
			tx.ReadOnly(token.ProgramID),
		},
		Data: []byte{tag},
	}
}
