package token

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Mint is the state of a token mint.
type Mint struct {
	MintAuthority   types.OptionalKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority types.OptionalKey
}

// Account is the state of a token account.
type Account struct {
	Mint   types.PublicKey
	Owner  types.PublicKey
	Amount uint64
	State  uint8
}

// Token account states.
const (
	StateUninitialized uint8 = 0
	StateInitialized   uint8 = 1
)

// DecodeMint parses MintSize bytes of mint state.
func DecodeMint(data []byte) (Mint, error) {
	if len(data) != MintSize {
		return Mint{}, fmt.Errorf("%w: mint length %d", ErrInvalidAccountData, len(data))
	}
	var m Mint
	var err error
	if m.MintAuthority, err = readCOptionKey(data[0:36]); err != nil {
		return Mint{}, err
	}
	m.Supply = binary.LittleEndian.Uint64(data[36:44])
	m.Decimals = data[44]
	m.IsInitialized = data[45] == 1
	if m.FreezeAuthority, err = readCOptionKey(data[46:82]); err != nil {
		return Mint{}, err
	}
	return m, nil
}

// Encode serializes m into MintSize bytes.
func (m Mint) Encode() []byte {
	data := make([]byte, 0, MintSize)
	data = appendCOptionKey(data, m.MintAuthority)
	data = binary.LittleEndian.AppendUint64(data, m.Supply)
	data = append(data, m.Decimals)
	if m.IsInitialized {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	return appendCOptionKey(data, m.FreezeAuthority)
}

// DecodeAccount parses AccountSize bytes of token account state. Delegate,
// native and close authority fields are not surfaced.
func DecodeAccount(data []byte) (Account, error) {
	if len(data) != AccountSize {
		return Account{}, fmt.Errorf("%w: account length %d", ErrInvalidAccountData, len(data))
	}
	var a Account
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])
	a.State = data[108]
	return a, nil
}

// Encode serializes a into AccountSize bytes with no delegate, not native
// and no close authority.
func (a Account) Encode() []byte {
	data := make([]byte, AccountSize)
	copy(data[0:32], a.Mint[:])
	copy(data[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	data[108] = a.State
	return data
}

func readCOptionKey(b []byte) (types.OptionalKey, error) {
	switch binary.LittleEndian.Uint32(b) {
	case 0:
		return types.None[types.PublicKey](), nil
	case 1:
		var k types.PublicKey
		copy(k[:], b[4:36])
		return types.Some(k), nil
	default:
		return types.None[types.PublicKey](), fmt.Errorf("%w: coption tag", ErrInvalidAccountData)
	}
}

func appendCOptionKey(data []byte, o types.OptionalKey) []byte {
	k, ok := o.Get()
	if !ok {
		return append(data, make([]byte, 36)...)
	}
	data = binary.LittleEndian.AppendUint32(data, 1)
	return append(data, k[:]...)
}
