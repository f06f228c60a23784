package action

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitializeNonceProjectRequest creates a nonce project. ProjectID signs.
type InitializeNonceProjectRequest struct {
	BuildOptions
	nonceverify.InitializeNonceProjectParams
}

// InitializeNonceProject creates a nonce scope with its fee vault.
func (b *Builder) InitializeNonceProject(ctx context.Context, req InitializeNonceProjectRequest) (*assembler.Result, error) {
	if req.RegisterNeedVerify && !req.Admin.IsSome() {
		return nil, fmt.Errorf("initialize nonce project: %w", ErrMissingAdmin)
	}
	ix := b.programs.NonceVerify.InitializeNonceProject(req.InitializeNonceProjectParams)
	return b.build(ctx, "initialize nonce project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// RegisterBusinessProjectRequest registers a business project. Payer and
// RegisterFeePayer sign, and Admin too when the nonce project demands it.
type RegisterBusinessProjectRequest struct {
	BuildOptions
	nonceverify.RegisterBusinessProjectParams
}

// RegisterBusinessProject registers a business project under an existing
// nonce project and returns its address with the build result.
func (b *Builder) RegisterBusinessProject(ctx context.Context, req RegisterBusinessProjectRequest) (types.PublicKey, *assembler.Result, error) {
	np, err := b.reader.NonceProject(ctx, req.NonceProjectID)
	if err != nil {
		return types.PublicKey{}, nil, fmt.Errorf("register business project: %w", err)
	}
	if np.RegisterNeedVerify {
		want, ok := np.Admin.Get()
		got, given := req.Admin.Get()
		if !given {
			return types.PublicKey{}, nil, fmt.Errorf("register business project: %w", ErrMissingAdmin)
		}
		if !ok {
			return types.PublicKey{}, nil, fmt.Errorf("register business project: %w: project has no admin", ErrAuthorityMismatch)
		}
		if err := checkAuthority("nonce project admin", got, want); err != nil {
			return types.PublicKey{}, nil, fmt.Errorf("register business project: %w", err)
		}
	}

	addr, err := b.BusinessProjectAddress(req.NonceProjectID, req.BusinessProjectID)
	if err != nil {
		return types.PublicKey{}, nil, err
	}
	ix := b.programs.NonceVerify.RegisterBusinessProject(req.RegisterBusinessProjectParams)
	res, err := b.build(ctx, "register business project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
	if err != nil {
		return types.PublicKey{}, nil, err
	}
	return addr, res, nil
}

// BusinessProjectAddress derives the business project registered as
// businessProjectID under the nonce project of nonceProjectID.
func (b *Builder) BusinessProjectAddress(nonceProjectID, businessProjectID types.PublicKey) (types.PublicKey, error) {
	np, _, err := b.programs.NonceVerify.FindNonceProject(nonceProjectID)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("derive nonce project: %w", err)
	}
	bp, _, err := b.programs.NonceVerify.FindBusinessProject(np, businessProjectID)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("derive business project: %w", err)
	}
	return bp, nil
}

// InitUserNonceRequest creates a user's nonce account. User signs.
type InitUserNonceRequest struct {
	BuildOptions
	Payer           types.PublicKey
	User            types.PublicKey
	BusinessProject types.PublicKey
}

// InitUserNonce creates the nonce account of a user in a business project.
func (b *Builder) InitUserNonce(ctx context.Context, req InitUserNonceRequest) (*assembler.Result, error) {
	if _, err := b.reader.BusinessProject(ctx, req.BusinessProject); err != nil {
		return nil, fmt.Errorf("init user nonce: %w", err)
	}
	ix := b.programs.NonceVerify.InitUserNonce(req.Payer, req.User, req.BusinessProject)
	return b.build(ctx, "init user nonce", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// VerifyNonceRequest consumes the current nonce of User. Payer,
// UserFeePayer, User and Authority sign.
type VerifyNonceRequest struct {
	BuildOptions
	Payer           types.PublicKey
	UserFeePayer    types.PublicKey
	User            types.PublicKey
	BusinessProject types.PublicKey
	Authority       types.PublicKey
}

// VerifyNonce advances the nonce of a user by verifying its current value.
func (b *Builder) VerifyNonce(ctx context.Context, req VerifyNonceRequest) (*assembler.Result, error) {
	nonce, err := b.reader.UserNonce(ctx, req.BusinessProject, req.User)
	if err != nil {
		return nil, fmt.Errorf("verify nonce: %w", err)
	}
	if !nonce.Exists {
		return nil, fmt.Errorf("verify nonce: %w", ErrNonceNotFound)
	}
	bp, err := b.reader.BusinessProject(ctx, req.BusinessProject)
	if err != nil {
		return nil, fmt.Errorf("verify nonce: %w", err)
	}
	if err := checkAuthority("business authority", req.Authority, bp.Authority); err != nil {
		return nil, fmt.Errorf("verify nonce: %w", err)
	}
	np, err := b.reader.NonceProjectAt(ctx, bp.NonceProject)
	if err != nil {
		return nil, fmt.Errorf("verify nonce: %w", err)
	}

	ix := b.programs.NonceVerify.VerifyNonce(nonceverify.VerifyNonceParams{
		Payer:           req.Payer,
		UserFeePayer:    req.UserFeePayer,
		User:            req.User,
		BusinessProject: req.BusinessProject,
		Authority:       req.Authority,
		NonceProjectID:  np.ProjectID,
		Nonce:           nonce.Value,
	})
	return b.build(ctx, "verify nonce", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// CloseUserNonceRequest closes a nonce account. User signs and gets the
// rent back.
type CloseUserNonceRequest struct {
	BuildOptions
	Payer           types.PublicKey
	User            types.PublicKey
	BusinessProject types.PublicKey
}

// CloseUserNonce closes the nonce account of a user.
func (b *Builder) CloseUserNonce(ctx context.Context, req CloseUserNonceRequest) (*assembler.Result, error) {
	nonce, err := b.reader.UserNonce(ctx, req.BusinessProject, req.User)
	if err != nil {
		return nil, fmt.Errorf("close user nonce: %w", err)
	}
	if !nonce.Exists {
		return nil, fmt.Errorf("close user nonce: %w", ErrNonceNotFound)
	}
	ix := b.programs.NonceVerify.CloseUserNonce(req.User, req.BusinessProject)
	return b.build(ctx, "close user nonce", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// ClaimNonceFeeRequest withdraws from a nonce project vault. Payer and
// Admin sign.
type ClaimNonceFeeRequest struct {
	BuildOptions
	nonceverify.ClaimNonceFeeParams
}

// ClaimNonceFee withdraws collected fees to a receiver.
func (b *Builder) ClaimNonceFee(ctx context.Context, req ClaimNonceFeeRequest) (*assembler.Result, error) {
	np, err := b.reader.NonceProject(ctx, req.NonceProjectID)
	if err != nil {
		return nil, fmt.Errorf("claim nonce fee: %w", err)
	}
	admin, ok := np.Admin.Get()
	if !ok {
		return nil, fmt.Errorf("claim nonce fee: %w: project has no admin", ErrAuthorityMismatch)
	}
	if err := checkAuthority("nonce project admin", req.Admin, admin); err != nil {
		return nil, fmt.Errorf("claim nonce fee: %w", err)
	}
	ix := b.programs.NonceVerify.ClaimNonceFee(req.ClaimNonceFeeParams)
	return b.build(ctx, "claim nonce fee", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}
