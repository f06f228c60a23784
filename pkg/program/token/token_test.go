package token

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestMint_EncodeDecode(t *testing.T) {
	auth := types.PublicKey{9}
	m := Mint{
		MintAuthority: types.Some(auth),
		Supply:        6000,
		Decimals:      6,
		IsInitialized: true,
	}
	data := m.Encode()
	if len(data) != MintSize {
		t.Fatalf("len(Encode()) = %d, want %d", len(data), MintSize)
	}
	got, err := DecodeMint(data)
	if err != nil {
		t.Fatalf("DecodeMint: %v", err)
	}
	if a, ok := got.MintAuthority.Get(); !ok || a != auth {
		t.Errorf("MintAuthority = %s, want %s", a, auth)
	}
	if got.Supply != 6000 || got.Decimals != 6 || !got.IsInitialized || got.FreezeAuthority.IsSome() {
		t.Errorf("DecodeMint() = %+v", got)
	}

	data[0] = 7
	if _, err := DecodeMint(data); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("DecodeMint(bad tag) = %v, want ErrInvalidAccountData", err)
	}
	if _, err := DecodeMint(data[:10]); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("DecodeMint(short) = %v, want ErrInvalidAccountData", err)
	}
}

func TestAccount_EncodeDecode(t *testing.T) {
	a := Account{Mint: types.PublicKey{1}, Owner: types.PublicKey{2}, Amount: 3000, State: StateInitialized}
	data := a.Encode()
	if len(data) != AccountSize {
		t.Fatalf("len(Encode()) = %d, want %d", len(data), AccountSize)
	}
	got, err := DecodeAccount(data)
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}
	if got != a {
		t.Errorf("DecodeAccount() = %+v, want %+v", got, a)
	}
}

func TestInstructions(t *testing.T) {
	mint, dest, auth := types.PublicKey{1}, types.PublicKey{2}, types.PublicKey{3}

	mt := MintTo(mint, dest, auth, 3000)
	d, err := Decode(mt.Data)
	if err != nil {
		t.Fatalf("Decode(MintTo): %v", err)
	}
	if d.Tag != InstructionMintTo || d.Amount != 3000 {
		t.Errorf("Decode(MintTo) = %+v", d)
	}
	if !mt.Accounts[2].IsSigner {
		t.Error("mint authority must sign MintTo")
	}

	sa := SetMintAuthority(mint, auth, types.Some(dest))
	d, err = Decode(sa.Data)
	if err != nil {
		t.Fatalf("Decode(SetAuthority): %v", err)
	}
	if k, ok := d.Optional.Get(); !ok || k != dest || d.AuthorityType != AuthorityMintTokens {
		t.Errorf("Decode(SetAuthority) = %+v", d)
	}

	im := InitializeMint2(mint, 6, auth, types.None[types.PublicKey]())
	if len(im.Data) != 1+1+32+1 {
		t.Errorf("len(InitializeMint2.Data) = %d, want 35", len(im.Data))
	}
	d, err = Decode(im.Data)
	if err != nil {
		t.Fatalf("Decode(InitializeMint2): %v", err)
	}
	if d.Decimals != 6 || d.Authority != auth || d.Optional.IsSome() {
		t.Errorf("Decode(InitializeMint2) = %+v", d)
	}

	if _, err := Decode([]byte{99}); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("Decode(unknown) = %v, want ErrInvalidInstruction", err)
	}
}
