// Package tx defines v0 messages, transactions and their wire encoding.
package tx

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// PacketDataSize is the largest serialized transaction the network accepts.
const PacketDataSize = 1232

// Transaction is a message plus one signature slot per required signer.
type Transaction struct {
	Signatures []types.Signature `json:"signatures"`
	Message    *Message          `json:"message"`
}

// NewTransaction wraps msg with zeroed signature slots.
func NewTransaction(msg *Message) *Transaction {
	return &Transaction{
		Signatures: make([]types.Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}
}

// Sign fills the slot of each given signer. Signers not required by the
// message are rejected. Slots without a matching signer keep their value.
func (t *Transaction) Sign(signers ...crypto.Signer) error {
	data := t.Message.Serialize()
	required := t.Message.SignerKeys()
	if len(t.Signatures) != len(required) {
		sigs := make([]types.Signature, len(required))
		copy(sigs, t.Signatures)
		t.Signatures = sigs
	}
	for _, s := range signers {
		pub := s.PublicKey()
		slot := -1
		for i, k := range required {
			if k == pub {
				slot = i
				break
			}
		}
		if slot < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, pub)
		}
		sig, err := s.Sign(data)
		if err != nil {
			return fmt.Errorf("sign as %s: %w", pub, err)
		}
		t.Signatures[slot] = sig
	}
	return nil
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() types.Signature {
	if len(t.Signatures) == 0 {
		return types.Signature{}
	}
	return t.Signatures[0]
}

// IsSigned reports whether every signature slot is filled.
func (t *Transaction) IsSigned() bool {
	for _, s := range t.Signatures {
		if s.IsZero() {
			return false
		}
	}
	return len(t.Signatures) > 0
}

// Size returns the serialized length without enforcing the packet limit.
func (t *Transaction) Size() int {
	return len(t.encode())
}

func (t *Transaction) encode() []byte {
	msg := t.Message.Serialize()
	buf := make([]byte, 0, 1+len(t.Signatures)*types.SignatureSize+len(msg))
	buf = appendShortVec(buf, len(t.Signatures))
	for _, s := range t.Signatures {
		buf = append(buf, s[:]...)
	}
	return append(buf, msg...)
}

// Serialize encodes the transaction. Transactions above PacketDataSize are
// rejected.
func (t *Transaction) Serialize() ([]byte, error) {
	b := t.encode()
	if len(b) > PacketDataSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrTransactionTooLarge, len(b), PacketDataSize)
	}
	return b, nil
}

// Base64 returns the serialized transaction in base64, the form RPC nodes take.
func (t *Transaction) Base64() (string, error) {
	b, err := t.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Deserialize decodes a wire transaction.
func Deserialize(b []byte) (*Transaction, error) {
	r := &reader{buf: b}
	n, err := r.shortVec()
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	sigs := make([]types.Signature, n)
	for i := range sigs {
		raw, err := r.bytes(types.SignatureSize)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		copy(sigs[i][:], raw)
	}
	msg, used, err := DeserializeMessage(b[r.pos:])
	if err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}
	if r.pos+used != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, len(b)-r.pos-used)
	}
	if int(msg.Header.NumRequiredSignatures) != len(sigs) {
		return nil, fmt.Errorf("%w: %d signatures for %d signers", ErrMalformedMessage, len(sigs), msg.Header.NumRequiredSignatures)
	}
	return &Transaction{Signatures: sigs, Message: msg}, nil
}

// DeserializeBase64 decodes a base64 wire transaction.
func DeserializeBase64(s string) (*Transaction, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return Deserialize(b)
}

// MarshalJSON encodes the transaction as its base64 wire form.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(t.encode()))
}

// UnmarshalJSON decodes a base64 wire transaction.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dec, err := DeserializeBase64(s)
	if err != nil {
		return err
	}
	*t = *dec
	return nil
}
