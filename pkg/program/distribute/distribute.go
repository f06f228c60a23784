// Package distribute is the client side of the direct-distribute airdrop
// program, which mints to many receivers in one instruction under the
// authority of a project admin.
package distribute

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the default deployment of the program.
var ProgramID = types.MustPublicKey("GaHqnnZv2CeZYEA23V1zGuADSFhWnJZSmFzLeje1H2T1")

// PDA seed tags.
var (
	SeedManager       = []byte("dda_manager")
	SeedFeeReceiver   = []byte("dda_fee_recv")
	SeedMintAuthority = []byte("dda_mint_auth")
)

// Instruction discriminators.
var (
	DiscInitManager           = anchor.InstructionDiscriminator("init_singleton_manage_project")
	DiscUpdateManager         = anchor.InstructionDiscriminator("update_manager_singleton_project")
	DiscClaimFee              = anchor.InstructionDiscriminator("claim_fee")
	DiscInitProject           = anchor.InstructionDiscriminator("init_dda_airdrop_project")
	DiscUpdateProject         = anchor.InstructionDiscriminator("update_dda_airdrop_project")
	DiscTransferMintAuthority = anchor.InstructionDiscriminator("transfer_dda_mint_authority")
	DiscDistribute            = anchor.InstructionDiscriminator("dda_airdrop_ft")
)

// Program error codes.
const (
	ErrCodeAlreadyInitialized = anchor.ErrCodeUserOffset + iota
	ErrCodeReceiverCountNotMatch
	ErrCodeReceiverTokenAccountMismatch
)

// ErrorNames maps program error codes to names.
var ErrorNames = map[uint32]string{
	ErrCodeAlreadyInitialized:           "AlreadyInitialized",
	ErrCodeReceiverCountNotMatch:        "AirdropReceiverCountNotMatch",
	ErrCodeReceiverTokenAccountMismatch: "ReceiverTokenAccountNotMatchReceiverAccount",
}

// Compute cost of a distribution: a fixed part plus one associated account
// creation and one mint per receiver.
const (
	BaseComputeUnits     uint32 = 25_000
	ReceiverComputeUnits uint32 = 32_000
)

// Program addresses one deployment of the direct-distribute program.
type Program struct {
	ID types.PublicKey
}

// New returns a Program for the deployment at id.
func New(id types.PublicKey) Program {
	return Program{ID: id}
}

// Default is the program at ProgramID.
var Default = New(ProgramID)

// FindManager derives the singleton manager account.
func (p Program) FindManager() (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedManager}, p.ID)
}

// FindFeeReceiver derives the account collecting per-receiver fees.
func (p Program) FindFeeReceiver() (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedFeeReceiver}, p.ID)
}

// FindMintAuthority derives the PDA that must hold the mint authority of
// mint for distributions by project.
func (p Program) FindMintAuthority(project, mint types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedMintAuthority, project[:], mint[:]}, p.ID)
}

func must(k types.PublicKey, _ uint8, err error) types.PublicKey {
	if err != nil {
		panic(err)
	}
	return k
}
