package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

type keyMeta struct {
	key        types.PublicKey
	isSigner   bool
	isWritable bool
	isInvoked  bool
}

// compiledKeys tracks every account referenced by a set of instructions in
// first-seen order, with the fee payer first.
type compiledKeys struct {
	order []types.PublicKey
	metas map[types.PublicKey]*keyMeta
}

func newCompiledKeys(payer types.PublicKey, ixs []Instruction) *compiledKeys {
	ck := &compiledKeys{metas: make(map[types.PublicKey]*keyMeta)}
	p := ck.getOrInsert(payer)
	p.isSigner = true
	p.isWritable = true
	for _, ix := range ixs {
		ck.getOrInsert(ix.ProgramID).isInvoked = true
		for _, am := range ix.Accounts {
			m := ck.getOrInsert(am.PublicKey)
			m.isSigner = m.isSigner || am.IsSigner
			m.isWritable = m.isWritable || am.IsWritable
		}
	}
	return ck
}

func (ck *compiledKeys) getOrInsert(k types.PublicKey) *keyMeta {
	if m, ok := ck.metas[k]; ok {
		return m
	}
	m := &keyMeta{key: k}
	ck.metas[k] = m
	ck.order = append(ck.order, k)
	return m
}

func (ck *compiledKeys) remove(k types.PublicKey) {
	delete(ck.metas, k)
	for i, o := range ck.order {
		if o == k {
			ck.order = append(ck.order[:i], ck.order[i+1:]...)
			return
		}
	}
}

// drain moves keys matching filter that exist in the table out of the static
// set and returns their table indexes.
func (ck *compiledKeys) drain(table LookupTable, filter func(*keyMeta) bool) ([]uint8, []types.PublicKey, error) {
	var indexes []uint8
	var drained []types.PublicKey
	for _, k := range append([]types.PublicKey(nil), ck.order...) {
		m := ck.metas[k]
		if !filter(m) {
			continue
		}
		idx := table.IndexOf(k)
		if idx < 0 {
			continue
		}
		if idx > 255 {
			return nil, nil, fmt.Errorf("%w: lookup index %d", ErrTooManyAccounts, idx)
		}
		indexes = append(indexes, uint8(idx))
		drained = append(drained, k)
		ck.remove(k)
	}
	return indexes, drained, nil
}

func (ck *compiledKeys) components() (MessageHeader, []types.PublicKey, error) {
	var ws, rs, wn, rn []types.PublicKey
	for _, k := range ck.order {
		m := ck.metas[k]
		switch {
		case m.isSigner && m.isWritable:
			ws = append(ws, k)
		case m.isSigner:
			rs = append(rs, k)
		case m.isWritable:
			wn = append(wn, k)
		default:
			rn = append(rn, k)
		}
	}
	if len(ws)+len(rs) > 255 || len(ck.order) > 256 {
		return MessageHeader{}, nil, fmt.Errorf("%w: %d static keys", ErrTooManyAccounts, len(ck.order))
	}
	header := MessageHeader{
		NumRequiredSignatures: uint8(len(ws) + len(rs)),
		NumReadonlySigned:     uint8(len(rs)),
		NumReadonlyUnsigned:   uint8(len(rn)),
	}
	keys := make([]types.PublicKey, 0, len(ck.order))
	keys = append(keys, ws...)
	keys = append(keys, rs...)
	keys = append(keys, wn...)
	keys = append(keys, rn...)
	return header, keys, nil
}

// CompileMessage compiles instructions into a v0 message. Accounts that are
// neither signers nor invoked programs are moved into the given lookup
// tables when present there. Tables contributing no account are omitted.
func CompileMessage(payer types.PublicKey, ixs []Instruction, blockhash types.Hash, tables []LookupTable) (*Message, error) {
	if payer.IsZero() {
		return nil, ErrNoFeePayer
	}
	ck := newCompiledKeys(payer, ixs)

	var lookups []AddressTableLookup
	var loaded LoadedAddresses
	for _, table := range tables {
		wIdx, wKeys, err := ck.drain(table, func(m *keyMeta) bool {
			return !m.isSigner && !m.isInvoked && m.isWritable
		})
		if err != nil {
			return nil, err
		}
		rIdx, rKeys, err := ck.drain(table, func(m *keyMeta) bool {
			return !m.isSigner && !m.isInvoked && !m.isWritable
		})
		if err != nil {
			return nil, err
		}
		if len(wIdx) == 0 && len(rIdx) == 0 {
			continue
		}
		lookups = append(lookups, AddressTableLookup{
			AccountKey:      table.Key,
			WritableIndexes: wIdx,
			ReadonlyIndexes: rIdx,
		})
		loaded.Writable = append(loaded.Writable, wKeys...)
		loaded.Readonly = append(loaded.Readonly, rKeys...)
	}

	header, static, err := ck.components()
	if err != nil {
		return nil, err
	}

	all := make([]types.PublicKey, 0, len(static)+len(loaded.Writable)+len(loaded.Readonly))
	all = append(all, static...)
	all = append(all, loaded.Writable...)
	all = append(all, loaded.Readonly...)
	if len(all) > 256 {
		return nil, fmt.Errorf("%w: %d keys", ErrTooManyAccounts, len(all))
	}
	index := make(map[types.PublicKey]uint8, len(all))
	for i, k := range all {
		index[k] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(ixs))
	for i, ix := range ixs {
		accts := make([]uint8, len(ix.Accounts))
		for j, am := range ix.Accounts {
			accts[j] = index[am.PublicKey]
		}
		compiled[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       accts,
			Data:           append([]byte(nil), ix.Data...),
		}
	}

	return &Message{
		Header:              header,
		StaticAccountKeys:   static,
		RecentBlockhash:     blockhash,
		Instructions:        compiled,
		AddressTableLookups: lookups,
	}, nil
}
