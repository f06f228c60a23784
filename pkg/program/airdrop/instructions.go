package airdrop

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitializeAirdrop creates the airdrop project of projectID with admin as
// the claim signing key.
func (p Program) InitializeAirdrop(payer, projectID, admin types.PublicKey) tx.Instruction {
	data := anchor.NewEncoder(DiscInitializeAirdrop).
		PublicKey(projectID).
		PublicKey(admin).
		Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Writable(must(p.FindAirdropProject(projectID))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// ClaimParams are the inputs of a claim_ft instruction.
type ClaimParams struct {
	Payer          types.PublicKey
	NonceFeePayer  types.PublicKey
	Claimant       types.PublicKey
	SpaceFeePayer  types.PublicKey
	AirdropProject types.PublicKey
	Mint           types.PublicKey

	NonceProgram    nonceverify.Program
	NonceProjectID  types.PublicKey
	BusinessProject types.PublicKey

	Amount    uint64
	Nonce     uint32
	Signature types.Signature
}

// Claim mints Amount to the claimant's associated token account. It must be
// preceded by an ed25519 verify instruction over the matching ClaimPayload.
func (p Program) Claim(params ClaimParams) tx.Instruction {
	np := params.NonceProgram
	nonceProject := must(np.FindNonceProject(params.NonceProjectID))
	data := anchor.NewEncoder(DiscClaimFt).
		U64(params.Amount).
		U32(params.Nonce).
		VecBytes(params.Signature[:]).
		Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(params.Payer),
			tx.WritableSigner(params.NonceFeePayer),
			tx.Signer(params.Claimant),
			tx.WritableSigner(params.SpaceFeePayer),
			tx.ReadOnly(params.AirdropProject),
			tx.Writable(params.Mint),
			tx.ReadOnly(must(p.FindMintAuthority(params.AirdropProject, params.Mint))),
			tx.Writable(ata.MustFindAddress(params.Claimant, params.Mint)),
			tx.ReadOnly(nonceProject),
			tx.Writable(must(np.FindNonceVault(params.NonceProjectID))),
			tx.ReadOnly(params.BusinessProject),
			tx.ReadOnly(must(p.FindBusinessAuthority(params.AirdropProject, params.BusinessProject))),
			tx.Writable(must(np.FindUserNonce(params.BusinessProject, params.Claimant))),
			tx.ReadOnly(system.ProgramID),
			tx.ReadOnly(token.ProgramID),
			tx.ReadOnly(ata.ProgramID),
			tx.ReadOnly(np.ID),
			tx.ReadOnly(system.SysvarInstructionsID),
		},
		Data: data,
	}
}

// TransferMintAuthority hands the mint authority held by the program's PDA
// to newAuthority. The airdrop admin signs.
func (p Program) TransferMintAuthority(payer, admin, airdropProject, mint, newAuthority types.PublicKey) tx.Instruction {
	data := anchor.NewEncoder(DiscTransferMintAuthority).PublicKey(newAuthority).Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Signer(admin),
			tx.ReadOnly(airdropProject),
			tx.Writable(mint),
			tx.ReadOnly(must(p.FindMintAuthority(airdropProject, mint))),
			tx.ReadOnly(system.ProgramID),
			tx.ReadOnly(token.ProgramID),
			tx.ReadOnly(ata.ProgramID),
		},
		Data: data,
	}
}

// CloseAirdrop closes the project and sends its rent to receiver. The
// airdrop admin signs.
func (p Program) CloseAirdrop(payer, receiver, admin, airdropProject types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Writable(receiver),
			tx.Signer(admin),
			tx.Writable(airdropProject),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscCloseAirdrop).Bytes(),
	}
}

// ClaimArgs are the decoded parameters of claim_ft.
type ClaimArgs struct {
	Amount    uint64
	Nonce     uint32
	Signature []byte
}

// DecodeClaimArgs parses claim_ft data after the discriminator.
func DecodeClaimArgs(body []byte) (ClaimArgs, error) {
	d := anchor.NewDecoder(body)
	args := ClaimArgs{Amount: d.U64(), Nonce: d.U32(), Signature: d.VecBytes()}
	return args, d.Err()
}
