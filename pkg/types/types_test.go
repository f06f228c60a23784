package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPublicKey_IsZero(t *testing.T) {
	var zero PublicKey
	if !zero.IsZero() {
		t.Error("zero-value PublicKey should be zero")
	}

	nonZero := PublicKey{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero PublicKey should not be zero")
	}
}

func TestPublicKey_String(t *testing.T) {
	var zero PublicKey
	if got, want := zero.String(), strings.Repeat("1", 32); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestPublicKeyFromBase58(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "system program", input: "11111111111111111111111111111111"},
		{name: "token program", input: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
		{name: "ed25519 program", input: "Ed25519SigVerify111111111111111111111111111"},
		{name: "too short", input: "abc", wantErr: true},
		{name: "invalid alphabet", input: "0OIl" + strings.Repeat("1", 40), wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := PublicKeyFromBase58(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("PublicKeyFromBase58(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("PublicKeyFromBase58(%q) unexpected error: %v", tt.input, err)
			}
			if k.String() != tt.input {
				t.Errorf("roundtrip: got %s, want %s", k.String(), tt.input)
			}
		})
	}
}

func TestPublicKey_Bytes(t *testing.T) {
	k := PublicKey{0x01, 0x02, 0x03}
	b := k.Bytes()
	if len(b) != PublicKeySize {
		t.Errorf("Bytes() length = %d, want %d", len(b), PublicKeySize)
	}

	b[0] = 0xFF
	if k[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestPublicKey_JSON(t *testing.T) {
	k := MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	data, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"` {
		t.Errorf("Marshal() = %s", data)
	}

	var back PublicKey
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != k {
		t.Errorf("Unmarshal() = %s, want %s", back, k)
	}
}

func TestPublicKey_Compare(t *testing.T) {
	a := PublicKey{0x01}
	b := PublicKey{0x02}
	if a.Compare(b) >= 0 {
		t.Error("expected a < b")
	}
	if !a.Equals(a) {
		t.Error("key should equal itself")
	}
}

func TestHashFromBase58(t *testing.T) {
	h := Hash{0xab, 0xcd}
	parsed, err := HashFromBase58(h.String())
	if err != nil {
		t.Fatalf("HashFromBase58: %v", err)
	}
	if parsed != h {
		t.Errorf("roundtrip: got %x, want %x", parsed, h)
	}

	if _, err := HashFromBase58("2"); err == nil {
		t.Error("short hash should fail")
	}
}

func TestSignatureFromBytes(t *testing.T) {
	if _, err := SignatureFromBytes(make([]byte, 63)); err == nil {
		t.Error("63-byte signature should fail")
	}

	var raw [SignatureSize]byte
	raw[0] = 7
	sig, err := SignatureFromBytes(raw[:])
	if err != nil {
		t.Fatalf("SignatureFromBytes: %v", err)
	}
	back, err := SignatureFromBase58(sig.String())
	if err != nil {
		t.Fatalf("SignatureFromBase58: %v", err)
	}
	if back != sig {
		t.Error("signature base58 roundtrip mismatch")
	}
}

func TestOption(t *testing.T) {
	none := None[uint32]()
	if none.IsSome() {
		t.Error("None should not be present")
	}
	if got := none.OrElse(9); got != 9 {
		t.Errorf("OrElse() = %d, want 9", got)
	}

	some := Some[uint32](4)
	v, ok := some.Get()
	if !ok || v != 4 {
		t.Errorf("Get() = (%d, %v), want (4, true)", v, ok)
	}
}
