package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
)

// Validation errors.
var (
	ErrNoFeePayer          = errors.New("transaction has no fee payer")
	ErrTooManyAccounts     = errors.New("too many accounts")
	ErrTransactionTooLarge = errors.New("transaction too large")
	ErrMissingSignature    = errors.New("missing signature")
	ErrUnknownSigner       = errors.New("signer not required by message")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUnsupportedVersion  = errors.New("unsupported message version")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrInvalidAccountIndex = errors.New("account index out of range")
	ErrNoBlockhash         = errors.New("recent blockhash not set")
)

// Validate checks structural rules that do not need ledger state.
func (t *Transaction) Validate() error {
	m := t.Message
	if m == nil || len(m.StaticAccountKeys) == 0 || m.Header.NumRequiredSignatures == 0 {
		return ErrNoFeePayer
	}
	if int(m.Header.NumRequiredSignatures) > len(m.StaticAccountKeys) {
		return fmt.Errorf("%w: %d signers, %d keys", ErrMalformedMessage,
			m.Header.NumRequiredSignatures, len(m.StaticAccountKeys))
	}
	if m.Header.NumReadonlySigned >= m.Header.NumRequiredSignatures {
		return fmt.Errorf("%w: fee payer must be writable", ErrMalformedMessage)
	}
	if len(t.Signatures) != int(m.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: %d signatures for %d signers", ErrMalformedMessage,
			len(t.Signatures), m.Header.NumRequiredSignatures)
	}

	total := len(m.StaticAccountKeys)
	for _, l := range m.AddressTableLookups {
		total += len(l.WritableIndexes) + len(l.ReadonlyIndexes)
	}
	if total > 256 {
		return fmt.Errorf("%w: %d keys", ErrTooManyAccounts, total)
	}
	for i, ci := range m.Instructions {
		if int(ci.ProgramIDIndex) >= total {
			return fmt.Errorf("instruction %d: %w", i, ErrInvalidAccountIndex)
		}
		for _, a := range ci.Accounts {
			if int(a) >= total {
				return fmt.Errorf("instruction %d: %w", i, ErrInvalidAccountIndex)
			}
		}
	}
	if size := t.Size(); size > PacketDataSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTransactionTooLarge, size, PacketDataSize)
	}
	return nil
}

// VerifySignatures checks every signature against the serialized message.
func (t *Transaction) VerifySignatures() error {
	data := t.Message.Serialize()
	for i, k := range t.Message.SignerKeys() {
		if i >= len(t.Signatures) || t.Signatures[i].IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSignature, k)
		}
		if !crypto.VerifySignature(data, t.Signatures[i], k) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, k)
		}
	}
	return nil
}
