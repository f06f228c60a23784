// Package token builds SPL token instructions and decodes mint and token
// account state.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the SPL token program.
var ProgramID = types.MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// Account sizes.
const (
	MintSize    = 82
	AccountSize = 165
)

// Instruction tags.
const (
	InstructionMintTo             byte = 7
	InstructionSetAuthority       byte = 6
	InstructionInitializeAccount3 byte = 18
	InstructionInitializeMint2    byte = 20
)

// AuthorityMintTokens is the SetAuthority kind for the mint authority.
const AuthorityMintTokens byte = 0

var (
	ErrInvalidInstruction = errors.New("token: invalid instruction data")
	ErrInvalidAccountData = errors.New("token: invalid account data")
)

// InitializeMint2 initializes a mint created with MintSize bytes.
func InitializeMint2(mint types.PublicKey, decimals uint8, mintAuthority types.PublicKey, freezeAuthority types.OptionalKey) tx.Instruction {
	data := []byte{InstructionInitializeMint2, decimals}
	data = append(data, mintAuthority[:]...)
	data = appendOptionKey(data, freezeAuthority)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.Writable(mint)},
		Data:      data,
	}
}

// InitializeAccount3 initializes a token account created with AccountSize bytes.
func InitializeAccount3(account, mint, owner types.PublicKey) tx.Instruction {
	data := []byte{InstructionInitializeAccount3}
	data = append(data, owner[:]...)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.Writable(account), tx.ReadOnly(mint)},
		Data:      data,
	}
}

// MintTo mints amount to dest. authority signs.
func MintTo(mint, dest, authority types.PublicKey, amount uint64) tx.Instruction {
	data := []byte{InstructionMintTo}
	data = binary.LittleEndian.AppendUint64(data, amount)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.Writable(mint), tx.Writable(dest), tx.Signer(authority)},
		Data:      data,
	}
}

// SetMintAuthority moves the mint authority of mint. current signs.
func SetMintAuthority(mint, current types.PublicKey, newAuthority types.OptionalKey) tx.Instruction {
	data := []byte{InstructionSetAuthority, AuthorityMintTokens}
	data = appendOptionKey(data, newAuthority)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts:  []tx.AccountMeta{tx.Writable(mint), tx.Signer(current)},
		Data:      data,
	}
}

func appendOptionKey(data []byte, o types.OptionalKey) []byte {
	k, ok := o.Get()
	if !ok {
		return append(data, 0)
	}
	data = append(data, 1)
	return append(data, k[:]...)
}

// Decoded is a parsed token instruction.
type Decoded struct {
	Tag           byte
	Decimals      uint8
	Amount        uint64
	Authority     types.PublicKey
	AuthorityType byte
	Optional      types.OptionalKey
}

// Decode parses token instruction data for the instructions this package builds.
func Decode(data []byte) (Decoded, error) {
	if len(data) == 0 {
		return Decoded{}, ErrInvalidInstruction
	}
	d := Decoded{Tag: data[0]}
	body := data[1:]
	var err error
	switch d.Tag {
	case InstructionInitializeMint2:
		if len(body) < 33 {
			return Decoded{}, fmt.Errorf("%w: initialize mint length %d", ErrInvalidInstruction, len(body))
		}
		d.Decimals = body[0]
		copy(d.Authority[:], body[1:33])
		d.Optional, err = readOptionKey(body[33:])
	case InstructionInitializeAccount3:
		if len(body) != 32 {
			return Decoded{}, fmt.Errorf("%w: initialize account length %d", ErrInvalidInstruction, len(body))
		}
		copy(d.Authority[:], body)
	case InstructionMintTo:
		if len(body) != 8 {
			return Decoded{}, fmt.Errorf("%w: mint to length %d", ErrInvalidInstruction, len(body))
		}
		d.Amount = binary.LittleEndian.Uint64(body)
	case InstructionSetAuthority:
		if len(body) < 1 {
			return Decoded{}, fmt.Errorf("%w: set authority length %d", ErrInvalidInstruction, len(body))
		}
		d.AuthorityType = body[0]
		d.Optional, err = readOptionKey(body[1:])
	default:
		return Decoded{}, fmt.Errorf("%w: tag %d", ErrInvalidInstruction, d.Tag)
	}
	if err != nil {
		return Decoded{}, err
	}
	return d, nil
}

func readOptionKey(b []byte) (types.OptionalKey, error) {
	switch {
	case len(b) == 1 && b[0] == 0:
		return types.None[types.PublicKey](), nil
	case len(b) == 33 && b[0] == 1:
		var k types.PublicKey
		copy(k[:], b[1:])
		return types.Some(k), nil
	default:
		return types.None[types.PublicKey](), fmt.Errorf("%w: option", ErrInvalidInstruction)
	}
}
