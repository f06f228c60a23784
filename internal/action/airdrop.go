package action

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/ledger"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/ed25519"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitializeAirdropProjectRequest creates an airdrop project.
type InitializeAirdropProjectRequest struct {
	BuildOptions
	Payer     types.PublicKey
	ProjectID types.PublicKey
	Admin     types.PublicKey
}

// InitializeAirdropProject creates the airdrop project of ProjectID and
// returns its address with the build result.
func (b *Builder) InitializeAirdropProject(ctx context.Context, req InitializeAirdropProjectRequest) (types.PublicKey, *assembler.Result, error) {
	addr, _, err := b.programs.Airdrop.FindAirdropProject(req.ProjectID)
	if err != nil {
		return types.PublicKey{}, nil, fmt.Errorf("derive airdrop project: %w", err)
	}
	ix := b.programs.Airdrop.InitializeAirdrop(req.Payer, req.ProjectID, req.Admin)
	res, err := b.build(ctx, "initialize airdrop project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
	if err != nil {
		return types.PublicKey{}, nil, err
	}
	return addr, res, nil
}

// ClaimPayloadRequest names the claim an airdrop admin is asked to sign.
type ClaimPayloadRequest struct {
	AirdropProject  types.PublicKey
	BusinessProject types.PublicKey
	Claimant        types.PublicKey
	Mint            types.PublicKey
	Amount          *big.Int
}

// ClaimPayload builds the message the airdrop admin signs for a claim,
// using the claimant's current nonce.
func (b *Builder) ClaimPayload(ctx context.Context, req ClaimPayloadRequest) (airdrop.ClaimPayload, error) {
	nonce, err := b.reader.UserNonce(ctx, req.BusinessProject, req.Claimant)
	if err != nil {
		return airdrop.ClaimPayload{}, fmt.Errorf("claim payload: %w", err)
	}
	return airdrop.NewClaimPayload(nonce.Value, req.Amount, req.Mint, req.Claimant, req.AirdropProject, req.BusinessProject)
}

// SignClaim builds the claim payload and signs it with admin.
func (b *Builder) SignClaim(ctx context.Context, admin crypto.Signer, req ClaimPayloadRequest) (airdrop.ClaimPayload, types.Signature, error) {
	payload, err := b.ClaimPayload(ctx, req)
	if err != nil {
		return airdrop.ClaimPayload{}, types.Signature{}, err
	}
	sig, err := admin.Sign(payload.Encode())
	if err != nil {
		return airdrop.ClaimPayload{}, types.Signature{}, fmt.Errorf("sign claim: %w", err)
	}
	return payload, sig, nil
}

// ClaimRequest mints an admin-approved amount to a claimant. Payer,
// NonceFeePayer, Claimant and SpaceFeePayer sign; they may be the same key.
type ClaimRequest struct {
	BuildOptions
	Payer           types.PublicKey
	NonceFeePayer   types.PublicKey
	Claimant        types.PublicKey
	SpaceFeePayer   types.PublicKey
	AirdropProject  types.PublicKey
	BusinessProject types.PublicKey
	Mint            types.PublicKey
	Amount          *big.Int
	// Signature is the airdrop admin's signature over the claim payload.
	Signature types.Signature
}

// claimState is everything a claim reads before building.
type claimState struct {
	nonce   ledger.Nonce
	bp      nonceverify.BusinessProject
	np      nonceverify.NonceProject
	project airdrop.AirdropProject
	mint    token.Mint
}

func (b *Builder) loadClaim(ctx context.Context, req ClaimRequest) (*claimState, error) {
	var st claimState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.nonce, err = b.reader.UserNonce(gctx, req.BusinessProject, req.Claimant)
		return err
	})
	g.Go(func() (err error) {
		st.bp, err = b.reader.BusinessProject(gctx, req.BusinessProject)
		if err != nil {
			return err
		}
		st.np, err = b.reader.NonceProjectAt(gctx, st.bp.NonceProject)
		return err
	})
	g.Go(func() (err error) {
		st.project, err = b.reader.AirdropProject(gctx, b.programs.Airdrop, req.AirdropProject)
		return err
	})
	g.Go(func() (err error) {
		st.mint, err = b.reader.Mint(gctx, req.Mint)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

// Claim builds a claim: the user nonce account is created first when
// missing, then an ed25519 verify instruction over the claim payload
// precedes the claim itself. The payload is rebuilt from the current nonce
// and checked against the airdrop admin before anything is sent.
func (b *Builder) Claim(ctx context.Context, req ClaimRequest) (*assembler.Result, error) {
	st, err := b.loadClaim(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	ap := b.programs.Airdrop
	wantAuthority, _, err := ap.FindBusinessAuthority(req.AirdropProject, req.BusinessProject)
	if err != nil {
		return nil, fmt.Errorf("claim: derive business authority: %w", err)
	}
	if err := checkAuthority("business authority", wantAuthority, st.bp.Authority); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	mintAuthority, _, err := ap.FindMintAuthority(req.AirdropProject, req.Mint)
	if err != nil {
		return nil, fmt.Errorf("claim: derive mint authority: %w", err)
	}
	if err := checkMintAuthority(st.mint, mintAuthority); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	payload, err := airdrop.NewClaimPayload(st.nonce.Value, req.Amount, req.Mint, req.Claimant, req.AirdropProject, req.BusinessProject)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	msg := payload.Encode()
	if !crypto.VerifySignature(msg, req.Signature, st.project.Admin) {
		return nil, fmt.Errorf("claim: %w (nonce %d)", ErrSignatureMismatch, st.nonce.Value)
	}
	verify, err := ed25519.NewVerifyInstruction(st.project.Admin, req.Signature, msg)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}

	ixs := make([]tx.Instruction, 0, 3)
	if !st.nonce.Exists {
		ixs = append(ixs, b.programs.NonceVerify.InitUserNonce(req.Payer, req.Claimant, req.BusinessProject))
	}
	ixs = append(ixs, verify, ap.Claim(airdrop.ClaimParams{
		Payer:           req.Payer,
		NonceFeePayer:   req.NonceFeePayer,
		Claimant:        req.Claimant,
		SpaceFeePayer:   req.SpaceFeePayer,
		AirdropProject:  req.AirdropProject,
		Mint:            req.Mint,
		NonceProgram:    b.programs.NonceVerify,
		NonceProjectID:  st.np.ProjectID,
		BusinessProject: req.BusinessProject,
		Amount:          payload.Amount,
		Nonce:           payload.Nonce,
		Signature:       req.Signature,
	}))

	b.logger.Debug().
		Str("claimant", req.Claimant.String()).
		Uint32("nonce", payload.Nonce).
		Uint64("amount", payload.Amount).
		Bool("init_nonce", !st.nonce.Exists).
		Msg("Claim prepared")
	return b.build(ctx, "claim", ixs, req.Payer, req.BuildOptions)
}

// AirdropAdminRequest is an admin operation on an airdrop project. Payer
// and Admin sign.
type AirdropAdminRequest struct {
	BuildOptions
	Payer          types.PublicKey
	Admin          types.PublicKey
	AirdropProject types.PublicKey
}

func (b *Builder) checkAirdropAdmin(ctx context.Context, req AirdropAdminRequest) error {
	project, err := b.reader.AirdropProject(ctx, b.programs.Airdrop, req.AirdropProject)
	if err != nil {
		return err
	}
	return checkAuthority("airdrop admin", req.Admin, project.Admin)
}

// TransferAirdropMintRequest hands a program-controlled mint to a new
// authority.
type TransferAirdropMintRequest struct {
	AirdropAdminRequest
	Mint         types.PublicKey
	NewAuthority types.PublicKey
}

// TransferAirdropMintAuthority moves the mint authority of Mint from the
// airdrop program to NewAuthority.
func (b *Builder) TransferAirdropMintAuthority(ctx context.Context, req TransferAirdropMintRequest) (*assembler.Result, error) {
	if err := b.checkAirdropAdmin(ctx, req.AirdropAdminRequest); err != nil {
		return nil, fmt.Errorf("transfer mint authority: %w", err)
	}
	ix := b.programs.Airdrop.TransferMintAuthority(req.Payer, req.Admin, req.AirdropProject, req.Mint, req.NewAuthority)
	return b.build(ctx, "transfer mint authority", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// CloseAirdropProjectRequest closes an airdrop project.
type CloseAirdropProjectRequest struct {
	AirdropAdminRequest
	// Receiver gets the project rent.
	Receiver types.PublicKey
}

// CloseAirdropProject closes an airdrop project and refunds its rent.
func (b *Builder) CloseAirdropProject(ctx context.Context, req CloseAirdropProjectRequest) (*assembler.Result, error) {
	if err := b.checkAirdropAdmin(ctx, req.AirdropAdminRequest); err != nil {
		return nil, fmt.Errorf("close airdrop project: %w", err)
	}
	ix := b.programs.Airdrop.CloseAirdrop(req.Payer, req.Receiver, req.Admin, req.AirdropProject)
	return b.build(ctx, "close airdrop project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}
