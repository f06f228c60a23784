package tx

import "github.com/Klingon-tech/klingdrop/pkg/types"

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	PublicKey  types.PublicKey `json:"pubkey"`
	IsSigner   bool            `json:"isSigner"`
	IsWritable bool            `json:"isWritable"`
}

// Meta builds an AccountMeta.
func Meta(key types.PublicKey, signer, writable bool) AccountMeta {
	return AccountMeta{PublicKey: key, IsSigner: signer, IsWritable: writable}
}

// ReadOnly is a non-signing, read-only account.
func ReadOnly(key types.PublicKey) AccountMeta { return Meta(key, false, false) }

// Writable is a non-signing, writable account.
func Writable(key types.PublicKey) AccountMeta { return Meta(key, false, true) }

// Signer is a signing, read-only account.
func Signer(key types.PublicKey) AccountMeta { return Meta(key, true, false) }

// WritableSigner is a signing, writable account.
func WritableSigner(key types.PublicKey) AccountMeta { return Meta(key, true, true) }

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID types.PublicKey `json:"programId"`
	Accounts  []AccountMeta   `json:"accounts"`
	Data      []byte          `json:"data"`
}

// LookupTable is a resolved address lookup table: its on-ledger address and
// the addresses it stores, in index order.
type LookupTable struct {
	Key       types.PublicKey   `json:"key"`
	Addresses []types.PublicKey `json:"addresses"`
}

// IndexOf returns the table index of key or -1.
func (t LookupTable) IndexOf(key types.PublicKey) int {
	for i, a := range t.Addresses {
		if a == key {
			return i
		}
	}
	return -1
}
