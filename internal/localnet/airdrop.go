package localnet

import (
	"bytes"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/ed25519"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func (l *Ledger) execAirdrop(inv *invocation) error {
	disc, body, err := anchorDispatch(inv.data)
	if err != nil {
		return err
	}
	p := airdrop.New(inv.program)
	switch disc {
	case airdrop.DiscInitializeAirdrop:
		inv.log("Instruction: InitializeAirdrop")
		return initializeAirdrop(inv, p, body)
	case airdrop.DiscClaimFt:
		inv.log("Instruction: ClaimFt")
		return l.claimFt(inv, p, body)
	case airdrop.DiscTransferMintAuthority:
		inv.log("Instruction: TransferMintAuthority")
		return transferAirdropMintAuthority(inv, p, body)
	case airdrop.DiscCloseAirdrop:
		inv.log("Instruction: CloseAirdrop")
		return closeAirdrop(inv)
	}
	return anchor.NewError(anchor.ErrCodeInstructionFallbackNotFound, nil)
}

func initializeAirdrop(inv *invocation, p airdrop.Program, body []byte) error {
	if err := inv.consume(costAirdropInit); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	projectID, admin := d.PublicKey(), d.PublicKey()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(2)
	if err != nil {
		return err
	}
	payer, project := keys[0], keys[1]
	if err := anchorSigner(inv, payer); err != nil {
		return err
	}
	if err := checkPDA(project, derived(p.FindAirdropProject(projectID))); err != nil {
		return err
	}
	ap := airdrop.AirdropProject{ID: projectID, Admin: admin}
	return inv.rt.initAccount(payer, project, inv.program, ap.Encode(), airdrop.AirdropProjectSize)
}

func (l *Ledger) claimFt(inv *invocation, p airdrop.Program, body []byte) error {
	if err := inv.consume(costAirdropClaim); err != nil {
		return err
	}
	args, err := airdrop.DecodeClaimArgs(body)
	if err != nil || len(args.Signature) != types.SignatureSize {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(18)
	if err != nil {
		return err
	}
	var (
		payer         = keys[0]
		nonceFeePayer = keys[1]
		claimant      = keys[2]
		spaceFeePayer = keys[3]
		projectKey    = keys[4]
		mint          = keys[5]
		mintAuthority = keys[6]
		tokenAccount  = keys[7]
		nonceProject  = keys[8]
		vault         = keys[9]
		business      = keys[10]
		businessAuth  = keys[11]
		userNonce     = keys[12]
		nonceProgram  = keys[16]
		instructions  = keys[17]
	)
	for _, k := range []types.PublicKey{payer, nonceFeePayer, claimant, spaceFeePayer} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	if nonceProgram != l.cfg.NonceVerify {
		return reason(tx.ReasonIncorrectProgramID)
	}
	if instructions != system.SysvarInstructionsID {
		return anchor.NewError(anchor.ErrCodeConstraintAddress, nil)
	}
	ap, err := loadAnchor(inv, projectKey, airdrop.DecodeAirdropProject)
	if err != nil {
		return err
	}
	if err := checkPDA(mintAuthority, derived(p.FindMintAuthority(projectKey, mint))); err != nil {
		return err
	}
	if err := checkPDA(businessAuth, derived(p.FindBusinessAuthority(projectKey, business))); err != nil {
		return err
	}

	acc := verifyAccounts{
		payer:           payer,
		userFeePayer:    nonceFeePayer,
		user:            claimant,
		userNonce:       userNonce,
		authority:       businessAuth,
		businessProject: business,
		nonceProject:    nonceProject,
		vault:           vault,
	}
	err = inv.invoke(nonceProgram, func(sub *invocation) error {
		sub.log("Instruction: VerifyBusinessNonce")
		return verifyNonce(sub, nonceverify.New(nonceProgram), acc, args.Nonce, true)
	})
	if err != nil {
		return err
	}

	payload := airdrop.ClaimPayload{
		Nonce:           args.Nonce,
		Amount:          args.Amount,
		Mint:            mint,
		Claimant:        claimant,
		AirdropProject:  projectKey,
		BusinessProject: business,
	}
	var sig types.Signature
	copy(sig[:], args.Signature)
	if err := checkClaimSignature(inv, ap.Admin, payload.Encode(), sig); err != nil {
		return err
	}

	rt := inv.rt
	if _, ok, err := rt.load(tokenAccount); err != nil {
		return err
	} else if !ok {
		if err := inv.consume(costCreateATA); err != nil {
			return err
		}
	}
	if err := rt.createATA(spaceFeePayer, tokenAccount, claimant, mint, true); err != nil {
		return err
	}
	inv.log("claim %d tokens of %s for %s", args.Amount, mint, claimant)
	return rt.mintTo(mint, tokenAccount, mintAuthority, args.Amount, true)
}

// checkClaimSignature requires the instruction before the current one to
// be a self-contained ed25519 verification of payload by admin.
func checkClaimSignature(inv *invocation, admin types.PublicKey, payload []byte, sig types.Signature) error {
	rt := inv.rt
	missing := anchor.NewError(airdrop.ErrCodeMissingEd25519Instruction, airdrop.ErrorNames)
	invalid := anchor.NewError(airdrop.ErrCodeInvalidEd25519Instruction, airdrop.ErrorNames)
	if rt.current == 0 {
		return missing
	}
	prev := rt.ixs[rt.current-1]
	if prev.ProgramID != ed25519.ProgramID {
		return missing
	}
	if len(prev.Accounts) != 0 || len(prev.Data) != ed25519.MessageOffset+len(payload) {
		return invalid
	}
	entries, err := ed25519.ParseInstruction(prev.Data, rt.ixData, rt.current-1)
	if err != nil || len(entries) != 1 {
		return invalid
	}
	e := entries[0]
	o := e.Offsets
	if o.PublicKeyOffset != ed25519.PublicKeyOffset ||
		o.SignatureOffset != ed25519.SignatureOffset ||
		o.MessageOffset != ed25519.MessageOffset ||
		int(o.MessageSize) != len(payload) ||
		o.PublicKeyInstructionIndex != ed25519.CurrentInstruction ||
		o.SignatureInstructionIndex != ed25519.CurrentInstruction ||
		o.MessageInstructionIndex != ed25519.CurrentInstruction {
		return invalid
	}
	if e.PublicKey != admin || e.Signature != sig || !bytes.Equal(e.Message, payload) {
		inv.log("ed25519 instruction does not match the claim")
		return anchor.NewError(airdrop.ErrCodeSigVerificationFailed, airdrop.ErrorNames)
	}
	return nil
}

func transferAirdropMintAuthority(inv *invocation, p airdrop.Program, body []byte) error {
	if err := inv.consume(costAirdropTransfer); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	next := d.PublicKey()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(5)
	if err != nil {
		return err
	}
	payer, admin, projectKey, mint, mintAuthority := keys[0], keys[1], keys[2], keys[3], keys[4]
	for _, k := range []types.PublicKey{payer, admin} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	ap, err := loadAnchor(inv, projectKey, airdrop.DecodeAirdropProject)
	if err != nil {
		return err
	}
	if err := checkHasOne(admin, ap.Admin); err != nil {
		return err
	}
	if err := checkPDA(mintAuthority, derived(p.FindMintAuthority(projectKey, mint))); err != nil {
		return err
	}
	return inv.rt.setMintAuthority(mint, mintAuthority, types.Some(next), true)
}

func closeAirdrop(inv *invocation) error {
	if err := inv.consume(costAirdropClose); err != nil {
		return err
	}
	keys, err := inv.accountKeys(4)
	if err != nil {
		return err
	}
	payer, receiver, admin, projectKey := keys[0], keys[1], keys[2], keys[3]
	for _, k := range []types.PublicKey{payer, admin} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	ap, err := loadAnchor(inv, projectKey, airdrop.DecodeAirdropProject)
	if err != nil {
		return err
	}
	if err := checkHasOne(admin, ap.Admin); err != nil {
		return err
	}
	return inv.rt.closeAccount(inv.program, projectKey, receiver)
}
