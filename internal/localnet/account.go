package localnet

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Rent parameters: an account is rent exempt when it holds two years of
// rent for its data plus the fixed storage overhead.
const (
	AccountStorageOverhead  = 128
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2
	LamportsPerSOL          = 1_000_000_000
	accountHeaderSize       = 8 + 32 + 1
)

// MinimumBalance is the rent-exempt minimum for an account with dataLen
// bytes of data.
func MinimumBalance(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionThresholdYears
}

// Account is the ledger state stored under one public key.
type Account struct {
	Lamports   uint64
	Owner      types.PublicKey
	Executable bool
	Data       []byte
}

// IsEmpty reports whether the account would not be stored.
func (a Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && !a.Executable
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	c := a
	c.Data = append([]byte(nil), a.Data...)
	return c
}

func (a Account) encode() []byte {
	buf := make([]byte, accountHeaderSize, accountHeaderSize+len(a.Data))
	binary.LittleEndian.PutUint64(buf, a.Lamports)
	copy(buf[8:40], a.Owner[:])
	if a.Executable {
		buf[40] = 1
	}
	return append(buf, a.Data...)
}

func decodeAccount(b []byte) (Account, error) {
	if len(b) < accountHeaderSize {
		return Account{}, fmt.Errorf("account record: %d bytes", len(b))
	}
	a := Account{
		Lamports:   binary.LittleEndian.Uint64(b),
		Executable: b[40] == 1,
		Data:       append([]byte(nil), b[accountHeaderSize:]...),
	}
	copy(a.Owner[:], b[8:40])
	return a, nil
}
