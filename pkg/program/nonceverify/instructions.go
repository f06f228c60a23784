package nonceverify

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitializeNonceProjectParams configures a new nonce project.
type InitializeNonceProjectParams struct {
	Payer     types.PublicKey
	ProjectID types.PublicKey // signs
	// Admin must co-sign registrations when RegisterNeedVerify is set.
	Admin              types.OptionalKey
	BusinessFee        uint32
	UserFee            uint32
	RegisterNeedVerify bool
}

// InitializeNonceProject creates the nonce project of ProjectID. An absent
// admin is passed as the program ID.
func (p Program) InitializeNonceProject(params InitializeNonceProjectParams) tx.Instruction {
	data := anchor.NewEncoder(DiscInitializeNonceProject).
		U32(params.BusinessFee).
		U32(params.UserFee).
		Bool(params.RegisterNeedVerify).
		Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(params.Payer),
			tx.Signer(params.ProjectID),
			p.optionalAccount(params.Admin, false),
			tx.Writable(must(p.FindNonceProject(params.ProjectID))),
			tx.Writable(must(p.FindNonceVault(params.ProjectID))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// RegisterBusinessProjectParams registers a business project.
type RegisterBusinessProjectParams struct {
	Payer             types.PublicKey
	RegisterFeePayer  types.PublicKey
	NonceProjectID    types.PublicKey
	BusinessProjectID types.PublicKey
	Authority         types.PublicKey
	// Admin signs when the nonce project requires verification.
	Admin types.OptionalKey
}

// RegisterBusinessProject creates a business project under the nonce project
// and charges its business fee to RegisterFeePayer.
func (p Program) RegisterBusinessProject(params RegisterBusinessProjectParams) tx.Instruction {
	nonceProject := must(p.FindNonceProject(params.NonceProjectID))
	data := anchor.NewEncoder(DiscRegisterBusinessProject).
		PublicKey(params.BusinessProjectID).
		PublicKey(params.Authority).
		Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(params.Payer),
			tx.WritableSigner(params.RegisterFeePayer),
			tx.Writable(must(p.FindBusinessProject(nonceProject, params.BusinessProjectID))),
			p.optionalAccount(params.Admin, true),
			tx.ReadOnly(nonceProject),
			tx.Writable(must(p.FindNonceVault(params.NonceProjectID))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// InitUserNonce creates the nonce account of user, which pays its rent and
// receives it back on close.
func (p Program) InitUserNonce(payer, user, businessProject types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.WritableSigner(user),
			tx.Writable(must(p.FindUserNonce(businessProject, user))),
			tx.ReadOnly(businessProject),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscInitUserBusinessNonce).Bytes(),
	}
}

// VerifyNonceParams consumes one nonce value.
type VerifyNonceParams struct {
	Payer           types.PublicKey
	UserFeePayer    types.PublicKey
	User            types.PublicKey
	BusinessProject types.PublicKey
	// Authority is the business project's authority; it signs.
	Authority      types.PublicKey
	NonceProjectID types.PublicKey
	Nonce          uint32
}

// VerifyNonce checks Nonce against the stored value and advances it,
// charging the user fee to UserFeePayer.
func (p Program) VerifyNonce(params VerifyNonceParams) tx.Instruction {
	data := anchor.NewEncoder(DiscVerifyBusinessNonce).U32(params.Nonce).Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(params.Payer),
			tx.WritableSigner(params.UserFeePayer),
			tx.Signer(params.User),
			tx.Writable(must(p.FindUserNonce(params.BusinessProject, params.User))),
			tx.Signer(params.Authority),
			tx.ReadOnly(params.BusinessProject),
			tx.ReadOnly(must(p.FindNonceProject(params.NonceProjectID))),
			tx.Writable(must(p.FindNonceVault(params.NonceProjectID))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// CloseUserNonce closes the nonce account of user and refunds its rent.
func (p Program) CloseUserNonce(user, businessProject types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(user),
			tx.Writable(must(p.FindUserNonce(businessProject, user))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscCloseUserBusinessNonce).Bytes(),
	}
}

// ClaimNonceFeeParams withdraws collected fees.
type ClaimNonceFeeParams struct {
	Payer          types.PublicKey
	Receiver       types.PublicKey
	Admin          types.PublicKey
	NonceProjectID types.PublicKey
	Amount         uint64
}

// ClaimNonceFee moves Amount lamports from the vault to Receiver. The nonce
// project admin signs.
func (p Program) ClaimNonceFee(params ClaimNonceFeeParams) tx.Instruction {
	data := anchor.NewEncoder(DiscClaimNonceFee).U64(params.Amount).Bytes()
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(params.Payer),
			tx.Writable(params.Receiver),
			tx.Signer(params.Admin),
			tx.ReadOnly(must(p.FindNonceProject(params.NonceProjectID))),
			tx.Writable(must(p.FindNonceVault(params.NonceProjectID))),
			tx.ReadOnly(system.ProgramID),
		},
		Data: data,
	}
}

// optionalAccount encodes an optional account: present keys are passed as
// is, absent ones as the program ID.
func (p Program) optionalAccount(o types.OptionalKey, signer bool) tx.AccountMeta {
	if k, ok := o.Get(); ok {
		return tx.Meta(k, signer, false)
	}
	return tx.ReadOnly(p.ID)
}
