package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// messageVersionPrefix marks a versioned message; the low bits carry the version.
const messageVersionPrefix = 0x80

// MessageHeader counts the signer and read-only sections of the static keys.
type MessageHeader struct {
	NumRequiredSignatures uint8 `json:"numRequiredSignatures"`
	NumReadonlySigned     uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsigned   uint8 `json:"numReadonlyUnsignedAccounts"`
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8   `json:"programIdIndex"`
	Accounts       []uint8 `json:"accounts"`
	Data           []byte  `json:"data"`
}

// AddressTableLookup selects entries of one lookup table.
type AddressTableLookup struct {
	AccountKey      types.PublicKey `json:"accountKey"`
	WritableIndexes []uint8         `json:"writableIndexes"`
	ReadonlyIndexes []uint8         `json:"readonlyIndexes"`
}

// LoadedAddresses are the keys resolved from a message's table lookups.
type LoadedAddresses struct {
	Writable []types.PublicKey
	Readonly []types.PublicKey
}

// Message is a v0 transaction message.
type Message struct {
	Header              MessageHeader         `json:"header"`
	StaticAccountKeys   []types.PublicKey     `json:"staticAccountKeys"`
	RecentBlockhash     types.Hash            `json:"recentBlockhash"`
	Instructions        []CompiledInstruction `json:"instructions"`
	AddressTableLookups []AddressTableLookup  `json:"addressTableLookups"`
}

// FeePayer returns the first static key.
func (m *Message) FeePayer() types.PublicKey {
	if len(m.StaticAccountKeys) == 0 {
		return types.PublicKey{}
	}
	return m.StaticAccountKeys[0]
}

// SignerKeys returns the keys that must sign, in signature order.
func (m *Message) SignerKeys() []types.PublicKey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.StaticAccountKeys) {
		n = len(m.StaticAccountKeys)
	}
	return m.StaticAccountKeys[:n]
}

// IsSigner reports whether the account at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the account at index i is writable given the
// number of writable keys loaded from lookup tables.
func (m *Message) IsWritable(i int, loadedWritable int) bool {
	numStatic := len(m.StaticAccountKeys)
	if i >= numStatic {
		return i-numStatic < loadedWritable
	}
	numSigned := int(m.Header.NumRequiredSignatures)
	if i < numSigned {
		return i < numSigned-int(m.Header.NumReadonlySigned)
	}
	return i < numStatic-int(m.Header.NumReadonlyUnsigned)
}

// AccountKeys returns static keys followed by loaded writable then loaded
// read-only keys, the order instruction indexes refer to.
func (m *Message) AccountKeys(loaded LoadedAddresses) []types.PublicKey {
	keys := make([]types.PublicKey, 0, len(m.StaticAccountKeys)+len(loaded.Writable)+len(loaded.Readonly))
	keys = append(keys, m.StaticAccountKeys...)
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)
	return keys
}

// Decompile expands compiled instructions back into instructions with full
// account metas.
func (m *Message) Decompile(loaded LoadedAddresses) ([]Instruction, error) {
	keys := m.AccountKeys(loaded)
	ixs := make([]Instruction, len(m.Instructions))
	for i, ci := range m.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: %w: program index %d", i, ErrInvalidAccountIndex, ci.ProgramIDIndex)
		}
		metas := make([]AccountMeta, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: %w: account index %d", i, ErrInvalidAccountIndex, idx)
			}
			metas[j] = AccountMeta{
				PublicKey:  keys[idx],
				IsSigner:   m.IsSigner(int(idx)),
				IsWritable: m.IsWritable(int(idx), len(loaded.Writable)),
			}
		}
		ixs[i] = Instruction{
			ProgramID: keys[ci.ProgramIDIndex],
			Accounts:  metas,
			Data:      ci.Data,
		}
	}
	return ixs, nil
}

// Serialize encodes the message in the v0 wire format. Signatures are made
// over these bytes.
func (m *Message) Serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, messageVersionPrefix)
	buf = append(buf, m.Header.NumRequiredSignatures, m.Header.NumReadonlySigned, m.Header.NumReadonlyUnsigned)

	buf = appendShortVec(buf, len(m.StaticAccountKeys))
	for _, k := range m.StaticAccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)

	buf = appendShortVec(buf, len(m.Instructions))
	for _, ci := range m.Instructions {
		buf = append(buf, ci.ProgramIDIndex)
		buf = appendShortVec(buf, len(ci.Accounts))
		buf = append(buf, ci.Accounts...)
		buf = appendShortVec(buf, len(ci.Data))
		buf = append(buf, ci.Data...)
	}

	buf = appendShortVec(buf, len(m.AddressTableLookups))
	for _, l := range m.AddressTableLookups {
		buf = append(buf, l.AccountKey[:]...)
		buf = appendShortVec(buf, len(l.WritableIndexes))
		buf = append(buf, l.WritableIndexes...)
		buf = appendShortVec(buf, len(l.ReadonlyIndexes))
		buf = append(buf, l.ReadonlyIndexes...)
	}
	return buf
}

// DeserializeMessage decodes a v0 message and returns it with the number of
// bytes consumed.
func DeserializeMessage(b []byte) (*Message, int, error) {
	r := &reader{buf: b}

	prefix, err := r.byte()
	if err != nil {
		return nil, 0, err
	}
	if prefix&messageVersionPrefix == 0 {
		return nil, 0, fmt.Errorf("%w: legacy message", ErrUnsupportedVersion)
	}
	if v := prefix &^ messageVersionPrefix; v != 0 {
		return nil, 0, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, v)
	}

	m := &Message{}
	hdr, err := r.bytes(3)
	if err != nil {
		return nil, 0, err
	}
	m.Header = MessageHeader{hdr[0], hdr[1], hdr[2]}

	nkeys, err := r.shortVec()
	if err != nil {
		return nil, 0, err
	}
	m.StaticAccountKeys = make([]types.PublicKey, nkeys)
	for i := range m.StaticAccountKeys {
		if m.StaticAccountKeys[i], err = r.pubkey(); err != nil {
			return nil, 0, err
		}
	}
	bh, err := r.bytes(types.HashSize)
	if err != nil {
		return nil, 0, err
	}
	copy(m.RecentBlockhash[:], bh)

	nix, err := r.shortVec()
	if err != nil {
		return nil, 0, err
	}
	m.Instructions = make([]CompiledInstruction, nix)
	for i := range m.Instructions {
		ci := &m.Instructions[i]
		if ci.ProgramIDIndex, err = r.byte(); err != nil {
			return nil, 0, err
		}
		if ci.Accounts, err = r.vec(); err != nil {
			return nil, 0, err
		}
		if ci.Data, err = r.vec(); err != nil {
			return nil, 0, err
		}
	}

	nl, err := r.shortVec()
	if err != nil {
		return nil, 0, err
	}
	if nl > 0 {
		m.AddressTableLookups = make([]AddressTableLookup, nl)
	}
	for i := range m.AddressTableLookups {
		l := &m.AddressTableLookups[i]
		if l.AccountKey, err = r.pubkey(); err != nil {
			return nil, 0, err
		}
		if l.WritableIndexes, err = r.vec(); err != nil {
			return nil, 0, err
		}
		if l.ReadonlyIndexes, err = r.vec(); err != nil {
			return nil, 0, err
		}
	}

	if int(m.Header.NumRequiredSignatures) > len(m.StaticAccountKeys) {
		return nil, 0, fmt.Errorf("%w: %d signers, %d keys", ErrMalformedMessage,
			m.Header.NumRequiredSignatures, len(m.StaticAccountKeys))
	}
	return m, r.pos, nil
}
