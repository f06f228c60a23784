// Package airdrop is the client side of the signed-claim airdrop program.
//
// A claim mints tokens to a claimant when an off-chain authority has signed a
// ClaimPayload binding the claimant's current nonce. The program consumes
// the nonce through the nonce-verify program, so every signature is good for
// exactly one claim.
package airdrop

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the default deployment of the program.
var ProgramID = types.MustPublicKey("GMznVrvA9P4WfBzJPWq92BWmsBMQUo6pb8B7CMSvgX9n")

// PDA seed tags.
var (
	SeedAirdropProject    = []byte("ad_project")
	SeedMintAuthority     = []byte("ad_mint_auth")
	SeedBusinessAuthority = []byte("ad_nv_biz_prj")
)

// Instruction discriminators.
var (
	DiscInitializeAirdrop     = anchor.InstructionDiscriminator("initialize_airdrop")
	DiscClaimFt               = anchor.InstructionDiscriminator("claim_ft")
	DiscTransferMintAuthority = anchor.InstructionDiscriminator("transfer_mint_authority")
	DiscCloseAirdrop          = anchor.InstructionDiscriminator("close_airdrop")
)

// Program error codes.
const (
	ErrCodeMissingEd25519Instruction = anchor.ErrCodeUserOffset + iota
	ErrCodeInvalidEd25519Instruction
	ErrCodeSigVerificationFailed
)

// ErrorNames maps program error codes to names.
var ErrorNames = map[uint32]string{
	ErrCodeMissingEd25519Instruction: "MissingEd25519Instruction",
	ErrCodeInvalidEd25519Instruction: "InvalidEd25519Instruction",
	ErrCodeSigVerificationFailed:     "SigVerificationFailed",
}

// Program addresses one deployment of the airdrop program.
type Program struct {
	ID types.PublicKey
}

// New returns a Program for the deployment at id.
func New(id types.PublicKey) Program {
	return Program{ID: id}
}

// Default is the program at ProgramID.
var Default = New(ProgramID)

// FindAirdropProject derives the airdrop project of projectID.
func (p Program) FindAirdropProject(projectID types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedAirdropProject, projectID[:]}, p.ID)
}

// FindMintAuthority derives the PDA that must hold the mint authority of
// mint for claims against airdropProject.
func (p Program) FindMintAuthority(airdropProject, mint types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedMintAuthority, airdropProject[:], mint[:]}, p.ID)
}

// FindBusinessAuthority derives the PDA that must be registered as the
// authority of businessProject so the airdrop program can verify nonces.
func (p Program) FindBusinessAuthority(airdropProject, businessProject types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedBusinessAuthority, airdropProject[:], businessProject[:]}, p.ID)
}

func must(k types.PublicKey, _ uint8, err error) types.PublicKey {
	if err != nil {
		panic(err)
	}
	return k
}
