package airdrop

import (
	"testing"

	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestClaim(t *testing.T) {
	var sig types.Signature
	sig[0] = 0xAB
	params := ClaimParams{
		Payer:           types.PublicKey{1},
		NonceFeePayer:   types.PublicKey{1},
		Claimant:        types.PublicKey{2},
		SpaceFeePayer:   types.PublicKey{1},
		AirdropProject:  types.PublicKey{3},
		Mint:            types.PublicKey{4},
		NonceProgram:    nonceverify.Default,
		NonceProjectID:  types.PublicKey{5},
		BusinessProject: types.PublicKey{6},
		Amount:          3000,
		Nonce:           2,
		Signature:       sig,
	}
	ix := Default.Claim(params)

	if len(ix.Accounts) != 18 {
		t.Fatalf("len(Accounts) = %d, want 18", len(ix.Accounts))
	}
	if ix.Accounts[7].PublicKey != ata.MustFindAddress(params.Claimant, params.Mint) {
		t.Error("account 7 is not the claimant's associated token account")
	}
	if ix.Accounts[17].PublicKey != system.SysvarInstructionsID {
		t.Error("last account must be the instructions sysvar")
	}

	args, err := DecodeClaimArgs(ix.Data[8:])
	if err != nil {
		t.Fatalf("DecodeClaimArgs: %v", err)
	}
	if args.Amount != 3000 || args.Nonce != 2 || len(args.Signature) != 64 || args.Signature[0] != 0xAB {
		t.Errorf("DecodeClaimArgs() = %+v", args)
	}
	if len(ix.Data) != 8+8+4+4+64 {
		t.Errorf("len(Data) = %d, want 88", len(ix.Data))
	}
}

func TestAirdropProject_EncodeDecode(t *testing.T) {
	ap := AirdropProject{ID: types.PublicKey{1}, Admin: types.PublicKey{2}}
	data := ap.Encode()
	if len(data) != AirdropProjectSize {
		t.Errorf("len(Encode()) = %d, want %d", len(data), AirdropProjectSize)
	}
	got, err := DecodeAirdropProject(data)
	if err != nil || got != ap {
		t.Errorf("DecodeAirdropProject() = %+v, %v", got, err)
	}
}

func TestFindAuthorities(t *testing.T) {
	project := must(Default.FindAirdropProject(types.PublicKey{1}))
	mintAuth := must(Default.FindMintAuthority(project, types.PublicKey{2}))
	bizAuth := must(Default.FindBusinessAuthority(project, types.PublicKey{2}))
	if mintAuth == bizAuth {
		t.Error("mint authority and business authority collide for the same inputs")
	}
}
