// Package ed25519 builds instructions for the native signature verification
// program. The program checks the signature when the transaction executes;
// a later instruction in the same transaction inspects this instruction to
// learn which key signed which message.
package ed25519

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the ed25519 signature verification program.
var ProgramID = types.MustPublicKey("Ed25519SigVerify111111111111111111111111111")

// Layout of a single-signature instruction.
const (
	headerSize       = 2
	offsetsSize      = 14
	PublicKeyOffset  = headerSize + offsetsSize
	SignatureOffset  = PublicKeyOffset + types.PublicKeySize
	MessageOffset    = SignatureOffset + types.SignatureSize
	MaxMessageLength = 0xFFFF - MessageOffset

	// CurrentInstruction makes an offset refer to the instruction holding it.
	CurrentInstruction uint16 = 0xFFFF
)

var (
	ErrMessageTooLong     = errors.New("ed25519: message too long")
	ErrInvalidInstruction = errors.New("ed25519: invalid instruction data")
)

// NewVerifyInstruction embeds pubkey, signature and message into one
// instruction with every offset pointing into itself.
func NewVerifyInstruction(pubkey types.PublicKey, sig types.Signature, message []byte) (tx.Instruction, error) {
	if len(message) > MaxMessageLength {
		return tx.Instruction{}, fmt.Errorf("%w: %d bytes, max %d", ErrMessageTooLong, len(message), MaxMessageLength)
	}
	data := make([]byte, 0, MessageOffset+len(message))
	data = append(data, 1, 0)
	data = binary.LittleEndian.AppendUint16(data, SignatureOffset)
	data = binary.LittleEndian.AppendUint16(data, CurrentInstruction)
	data = binary.LittleEndian.AppendUint16(data, PublicKeyOffset)
	data = binary.LittleEndian.AppendUint16(data, CurrentInstruction)
	data = binary.LittleEndian.AppendUint16(data, MessageOffset)
	data = binary.LittleEndian.AppendUint16(data, uint16(len(message)))
	data = binary.LittleEndian.AppendUint16(data, CurrentInstruction)
	data = append(data, pubkey[:]...)
	data = append(data, sig[:]...)
	data = append(data, message...)
	return tx.Instruction{ProgramID: ProgramID, Data: data}, nil
}

// SignatureOffsets is one entry of the offset table.
type SignatureOffsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageOffset             uint16
	MessageSize               uint16
	MessageInstructionIndex   uint16
}

// Entry is one signature check with its inputs resolved.
type Entry struct {
	Offsets   SignatureOffsets
	PublicKey types.PublicKey
	Signature types.Signature
	Message   []byte
}

// ParseInstruction decodes the offset table of data and resolves each entry.
// all holds the data of every instruction in the transaction and current is
// the index of data within it; CurrentInstruction resolves to current.
func ParseInstruction(data []byte, all [][]byte, current int) ([]Entry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidInstruction, len(data))
	}
	n := int(data[0])
	if n == 0 || len(data) < headerSize+n*offsetsSize {
		return nil, fmt.Errorf("%w: %d signatures in %d bytes", ErrInvalidInstruction, n, len(data))
	}
	entries := make([]Entry, n)
	for i := range entries {
		off := data[headerSize+i*offsetsSize:]
		o := SignatureOffsets{
			SignatureOffset:           binary.LittleEndian.Uint16(off[0:]),
			SignatureInstructionIndex: binary.LittleEndian.Uint16(off[2:]),
			PublicKeyOffset:           binary.LittleEndian.Uint16(off[4:]),
			PublicKeyInstructionIndex: binary.LittleEndian.Uint16(off[6:]),
			MessageOffset:             binary.LittleEndian.Uint16(off[8:]),
			MessageSize:               binary.LittleEndian.Uint16(off[10:]),
			MessageInstructionIndex:   binary.LittleEndian.Uint16(off[12:]),
		}
		sig, err := slice(all, current, o.SignatureInstructionIndex, o.SignatureOffset, types.SignatureSize)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		pub, err := slice(all, current, o.PublicKeyInstructionIndex, o.PublicKeyOffset, types.PublicKeySize)
		if err != nil {
			return nil, fmt.Errorf("public key %d: %w", i, err)
		}
		msg, err := slice(all, current, o.MessageInstructionIndex, o.MessageOffset, int(o.MessageSize))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		e := Entry{Offsets: o, Message: msg}
		copy(e.Signature[:], sig)
		copy(e.PublicKey[:], pub)
		entries[i] = e
	}
	return entries, nil
}

func slice(all [][]byte, current int, index, offset uint16, size int) ([]byte, error) {
	idx := int(index)
	if index == CurrentInstruction {
		idx = current
	}
	if idx < 0 || idx >= len(all) {
		return nil, fmt.Errorf("%w: instruction index %d", ErrInvalidInstruction, index)
	}
	src := all[idx]
	end := int(offset) + size
	if end > len(src) {
		return nil, fmt.Errorf("%w: range %d..%d of %d", ErrInvalidInstruction, offset, end, len(src))
	}
	return src[offset:end], nil
}

// IsSelfContained reports whether ix has exactly the layout produced by
// NewVerifyInstruction for the given inputs.
func IsSelfContained(ix tx.Instruction, pubkey types.PublicKey, sig types.Signature, message []byte) bool {
	if ix.ProgramID != ProgramID || len(ix.Accounts) != 0 {
		return false
	}
	want, err := NewVerifyInstruction(pubkey, sig, message)
	if err != nil {
		return false
	}
	return string(ix.Data) == string(want.Data)
}
