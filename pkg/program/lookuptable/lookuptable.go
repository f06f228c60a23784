// Package lookuptable builds address lookup table instructions and decodes
// table state.
package lookuptable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the address lookup table program.
var ProgramID = types.MustPublicKey("AddressLookupTab1e1111111111111111111111111")

const (
	// MetaSize is the fixed header before the stored addresses.
	MetaSize = 56
	// MaxAddresses is the most addresses one table holds.
	MaxAddresses = 256
)

// Instruction indexes.
const (
	InstructionCreate uint32 = 0
	InstructionExtend uint32 = 2
)

var (
	ErrInvalidInstruction = errors.New("lookup table: invalid instruction data")
	ErrInvalidAccountData = errors.New("lookup table: invalid account data")
)

// FindAddress derives the table address for authority at recentSlot.
func FindAddress(authority types.PublicKey, recentSlot uint64) (types.PublicKey, uint8, error) {
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], recentSlot)
	return crypto.FindProgramAddress([][]byte{authority[:], slot[:]}, ProgramID)
}

// Create returns the instruction creating a table owned by authority and
// the table's address. recentSlot must be a recent finalized slot.
func Create(authority, payer types.PublicKey, recentSlot uint64) (tx.Instruction, types.PublicKey, error) {
	addr, bump, err := FindAddress(authority, recentSlot)
	if err != nil {
		return tx.Instruction{}, types.PublicKey{}, err
	}
	data := make([]byte, 0, 13)
	data = binary.LittleEndian.AppendUint32(data, InstructionCreate)
	data = binary.LittleEndian.AppendUint64(data, recentSlot)
	data = append(data, bump)
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts: []tx.AccountMeta{
			tx.Writable(addr),
			tx.Signer(authority),
			tx.WritableSigner(payer),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}, addr, nil
}

// Extend appends addresses to table.
func Extend(table, authority, payer types.PublicKey, addresses []types.PublicKey) tx.Instruction {
	data := make([]byte, 0, 12+32*len(addresses))
	data = binary.LittleEndian.AppendUint32(data, InstructionExtend)
	data = binary.LittleEndian.AppendUint64(data, uint64(len(addresses)))
	for _, a := range addresses {
		data = append(data, a[:]...)
	}
	return tx.Instruction{
		ProgramID: ProgramID,
		Accounts: []tx.AccountMeta{
			tx.Writable(table),
			tx.Signer(authority),
			tx.WritableSigner(payer),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// Decoded is a parsed lookup table instruction.
type Decoded struct {
	Kind       uint32
	RecentSlot uint64
	Bump       uint8
	Addresses  []types.PublicKey
}

// Decode parses create and extend instruction data.
func Decode(data []byte) (Decoded, error) {
	if len(data) < 4 {
		return Decoded{}, ErrInvalidInstruction
	}
	d := Decoded{Kind: binary.LittleEndian.Uint32(data)}
	body := data[4:]
	switch d.Kind {
	case InstructionCreate:
		if len(body) != 9 {
			return Decoded{}, fmt.Errorf("%w: create length %d", ErrInvalidInstruction, len(body))
		}
		d.RecentSlot = binary.LittleEndian.Uint64(body)
		d.Bump = body[8]
	case InstructionExtend:
		if len(body) < 8 {
			return Decoded{}, fmt.Errorf("%w: extend length %d", ErrInvalidInstruction, len(body))
		}
		n := binary.LittleEndian.Uint64(body)
		if n == 0 || n > MaxAddresses || uint64(len(body)-8) != n*32 {
			return Decoded{}, fmt.Errorf("%w: extend with %d addresses in %d bytes", ErrInvalidInstruction, n, len(body)-8)
		}
		d.Addresses = make([]types.PublicKey, n)
		for i := range d.Addresses {
			copy(d.Addresses[i][:], body[8+i*32:])
		}
	default:
		return Decoded{}, fmt.Errorf("%w: kind %d", ErrInvalidInstruction, d.Kind)
	}
	return d, nil
}

// State is a decoded lookup table account.
type State struct {
	DeactivationSlot       uint64
	LastExtendedSlot       uint64
	LastExtendedStartIndex uint8
	Authority              types.OptionalKey
	Addresses              []types.PublicKey
}

// IsActive reports whether the table has not been deactivated.
func (s State) IsActive() bool {
	return s.DeactivationSlot == math.MaxUint64
}

// DecodeState parses table account data.
func DecodeState(data []byte) (State, error) {
	if len(data) < MetaSize || (len(data)-MetaSize)%32 != 0 {
		return State{}, fmt.Errorf("%w: length %d", ErrInvalidAccountData, len(data))
	}
	if kind := binary.LittleEndian.Uint32(data); kind != 1 {
		return State{}, fmt.Errorf("%w: type %d", ErrInvalidAccountData, kind)
	}
	s := State{
		DeactivationSlot:       binary.LittleEndian.Uint64(data[4:]),
		LastExtendedSlot:       binary.LittleEndian.Uint64(data[12:]),
		LastExtendedStartIndex: data[20],
		Authority:              types.None[types.PublicKey](),
	}
	switch data[21] {
	case 0:
	case 1:
		var k types.PublicKey
		copy(k[:], data[22:54])
		s.Authority = types.Some(k)
	default:
		return State{}, fmt.Errorf("%w: authority tag %d", ErrInvalidAccountData, data[21])
	}
	n := (len(data) - MetaSize) / 32
	s.Addresses = make([]types.PublicKey, n)
	for i := range s.Addresses {
		copy(s.Addresses[i][:], data[MetaSize+i*32:])
	}
	return s, nil
}

// Encode serializes s.
func (s State) Encode() []byte {
	data := make([]byte, MetaSize, MetaSize+32*len(s.Addresses))
	binary.LittleEndian.PutUint32(data, 1)
	binary.LittleEndian.PutUint64(data[4:], s.DeactivationSlot)
	binary.LittleEndian.PutUint64(data[12:], s.LastExtendedSlot)
	data[20] = s.LastExtendedStartIndex
	if k, ok := s.Authority.Get(); ok {
		data[21] = 1
		copy(data[22:54], k[:])
	}
	for _, a := range s.Addresses {
		data = append(data, a[:]...)
	}
	return data
}

// Table converts s into the form the message compiler takes.
func (s State) Table(key types.PublicKey) tx.LookupTable {
	return tx.LookupTable{Key: key, Addresses: s.Addresses}
}
