package tx

import (
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Builder collects instructions and compiles them into a transaction.
type Builder struct {
	payer        types.PublicKey
	instructions []Instruction
	blockhash    types.Hash
	tables       []LookupTable
}

// NewBuilder creates a builder paid for by payer.
func NewBuilder(payer types.PublicKey) *Builder {
	return &Builder{payer: payer}
}

// AddInstruction appends instructions in execution order.
func (b *Builder) AddInstruction(ixs ...Instruction) *Builder {
	b.instructions = append(b.instructions, ixs...)
	return b
}

// PrependInstruction inserts ix before all current instructions.
func (b *Builder) PrependInstruction(ix Instruction) *Builder {
	b.instructions = append([]Instruction{ix}, b.instructions...)
	return b
}

// SetRecentBlockhash sets the blockhash the message commits to.
func (b *Builder) SetRecentBlockhash(h types.Hash) *Builder {
	b.blockhash = h
	return b
}

// WithLookupTables sets the lookup tables accounts may be loaded from.
func (b *Builder) WithLookupTables(tables ...LookupTable) *Builder {
	b.tables = tables
	return b
}

// Instructions returns the collected instructions.
func (b *Builder) Instructions() []Instruction {
	return b.instructions
}

// Build compiles an unsigned transaction.
func (b *Builder) Build() (*Transaction, error) {
	if b.blockhash.IsZero() {
		return nil, ErrNoBlockhash
	}
	msg, err := CompileMessage(b.payer, b.instructions, b.blockhash, b.tables)
	if err != nil {
		return nil, err
	}
	return NewTransaction(msg), nil
}

// BuildSigned compiles and signs with every given signer.
func (b *Builder) BuildSigned(signers ...crypto.Signer) (*Transaction, error) {
	t, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := t.Sign(signers...); err != nil {
		return nil, err
	}
	return t, nil
}
