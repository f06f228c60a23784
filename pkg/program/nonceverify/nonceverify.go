// Package nonceverify is the client side of the nonce-verify program: PDA
// derivation, instruction encoding and account decoding.
//
// A nonce project is a fee-collecting scope. Business projects register under
// it, and each (business project, user) pair owns a nonce that starts at 0
// and advances by exactly one on every successful verify.
package nonceverify

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ProgramID is the default deployment of the program.
var ProgramID = types.MustPublicKey("4U17W5WH9JJQZK9HcZaD9mYhWehhBSyymAoG6gMYj5CW")

// PDA seed tags.
var (
	SeedNonceProject      = []byte("nonce_verify_project")
	SeedNonceVault        = []byte("nonce_vault")
	SeedBusinessProject   = []byte("business_project")
	SeedUserBusinessNonce = []byte("user_business_nonce")
)

// Instruction names.
const (
	ixInitializeNonceProject  = "initialize_nonce_project"
	ixRegisterBusinessProject = "register_business_project"
	ixInitUserBusinessNonce   = "init_user_business_nonce"
	ixVerifyBusinessNonce     = "verify_business_nonce"
	ixCloseUserBusinessNonce  = "close_user_business_nonce"
	ixClaimNonceFee           = "claim_nonce_fee"
)

// Instruction discriminators.
var (
	DiscInitializeNonceProject  = anchor.InstructionDiscriminator(ixInitializeNonceProject)
	DiscRegisterBusinessProject = anchor.InstructionDiscriminator(ixRegisterBusinessProject)
	DiscInitUserBusinessNonce   = anchor.InstructionDiscriminator(ixInitUserBusinessNonce)
	DiscVerifyBusinessNonce     = anchor.InstructionDiscriminator(ixVerifyBusinessNonce)
	DiscCloseUserBusinessNonce  = anchor.InstructionDiscriminator(ixCloseUserBusinessNonce)
	DiscClaimNonceFee           = anchor.InstructionDiscriminator(ixClaimNonceFee)
)

// Program error codes.
const (
	ErrCodeRunOutOfAdminSignature = anchor.ErrCodeUserOffset + iota
	ErrCodeNonceValueNotMatch
)

// ErrorNames maps program error codes to names.
var ErrorNames = map[uint32]string{
	ErrCodeRunOutOfAdminSignature: "RunOutOfAdminSignature",
	ErrCodeNonceValueNotMatch:     "NonceValueNotMatch",
}

// Program addresses one deployment of the nonce-verify program.
type Program struct {
	ID types.PublicKey
}

// New returns a Program for the deployment at id.
func New(id types.PublicKey) Program {
	return Program{ID: id}
}

// Default is the program at ProgramID.
var Default = New(ProgramID)

// FindNonceProject derives the nonce project of projectID.
func (p Program) FindNonceProject(projectID types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedNonceProject, projectID[:]}, p.ID)
}

// FindNonceVault derives the fee vault of projectID.
func (p Program) FindNonceVault(projectID types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedNonceVault, projectID[:]}, p.ID)
}

// FindBusinessProject derives a business project registered under nonceProject.
func (p Program) FindBusinessProject(nonceProject, businessProjectID types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedBusinessProject, nonceProject[:], businessProjectID[:]}, p.ID)
}

// FindUserNonce derives the nonce account of user in businessProject.
func (p Program) FindUserNonce(businessProject, user types.PublicKey) (types.PublicKey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{SeedUserBusinessNonce, businessProject[:], user[:]}, p.ID)
}

func must(k types.PublicKey, _ uint8, err error) types.PublicKey {
	if err != nil {
		panic(err)
	}
	return k
}
