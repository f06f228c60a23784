package localnet

import (
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func (l *Ledger) execNonceVerify(inv *invocation) error {
	disc, body, err := anchorDispatch(inv.data)
	if err != nil {
		return err
	}
	p := nonceverify.New(inv.program)
	switch disc {
	case nonceverify.DiscInitializeNonceProject:
		inv.log("Instruction: InitializeNonceProject")
		return initializeNonceProject(inv, p, body)
	case nonceverify.DiscRegisterBusinessProject:
		inv.log("Instruction: RegisterBusinessProject")
		return registerBusinessProject(inv, p, body)
	case nonceverify.DiscInitUserBusinessNonce:
		inv.log("Instruction: InitUserBusinessNonce")
		return initUserNonce(inv, p)
	case nonceverify.DiscVerifyBusinessNonce:
		inv.log("Instruction: VerifyBusinessNonce")
		if err := inv.consume(costNonceVerify); err != nil {
			return err
		}
		d := anchor.NewDecoder(body)
		nonce := d.U32()
		if d.Err() != nil {
			return didNotDeserialize()
		}
		keys, err := inv.accountKeys(8)
		if err != nil {
			return err
		}
		acc := verifyAccounts{
			payer:           keys[0],
			userFeePayer:    keys[1],
			user:            keys[2],
			userNonce:       keys[3],
			authority:       keys[4],
			businessProject: keys[5],
			nonceProject:    keys[6],
			vault:           keys[7],
		}
		return verifyNonce(inv, p, acc, nonce, inv.isSigner(acc.authority))
	case nonceverify.DiscCloseUserBusinessNonce:
		inv.log("Instruction: CloseUserBusinessNonce")
		return closeUserNonce(inv)
	case nonceverify.DiscClaimNonceFee:
		inv.log("Instruction: ClaimNonceFee")
		return claimNonceFee(inv, p, body)
	}
	return anchor.NewError(anchor.ErrCodeInstructionFallbackNotFound, nil)
}

func initializeNonceProject(inv *invocation, p nonceverify.Program, body []byte) error {
	if err := inv.consume(costNonceInit); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	businessFee, userFee, needVerify := d.U32(), d.U32(), d.Bool()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(5)
	if err != nil {
		return err
	}
	payer, projectID, adminKey, project, vault := keys[0], keys[1], keys[2], keys[3], keys[4]
	for _, k := range []types.PublicKey{payer, projectID} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	if err := checkPDA(project, derived(p.FindNonceProject(projectID))); err != nil {
		return err
	}
	if err := checkPDA(vault, derived(p.FindNonceVault(projectID))); err != nil {
		return err
	}

	admin := types.None[types.PublicKey]()
	if adminKey != inv.program {
		admin = types.Some(adminKey)
	}
	np := nonceverify.NonceProject{
		Admin:              admin,
		ProjectID:          projectID,
		BusinessFee:        businessFee,
		UserFee:            userFee,
		RegisterNeedVerify: needVerify,
	}
	rt := inv.rt
	if err := rt.initAccount(payer, project, inv.program, np.Encode(), nonceverify.NonceProjectSize); err != nil {
		return err
	}
	// The vault stays a system account, funded to its rent-exempt minimum.
	va, _, err := rt.load(vault)
	if err != nil {
		return err
	}
	if floor := MinimumBalance(0); va.Lamports < floor {
		return rt.transfer(payer, vault, floor-va.Lamports)
	}
	return nil
}

func registerBusinessProject(inv *invocation, p nonceverify.Program, body []byte) error {
	if err := inv.consume(costNonceRegister); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	id, authority := d.PublicKey(), d.PublicKey()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(6)
	if err != nil {
		return err
	}
	payer, feePayer, bpKey, adminKey, npKey, vault := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5]
	for _, k := range []types.PublicKey{payer, feePayer} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	np, err := loadAnchor(inv, npKey, nonceverify.DecodeNonceProject)
	if err != nil {
		return err
	}
	if err := checkPDA(vault, derived(p.FindNonceVault(np.ProjectID))); err != nil {
		return err
	}
	if err := checkPDA(bpKey, derived(p.FindBusinessProject(npKey, id))); err != nil {
		return err
	}
	if np.RegisterNeedVerify {
		admin, ok := np.Admin.Get()
		if !ok || adminKey != admin || !inv.isSigner(adminKey) {
			return anchor.NewError(nonceverify.ErrCodeRunOutOfAdminSignature, nonceverify.ErrorNames)
		}
	}
	rt := inv.rt
	if err := rt.transfer(feePayer, vault, uint64(np.BusinessFee)); err != nil {
		return err
	}
	bp := nonceverify.BusinessProject{ID: id, Authority: authority, NonceProject: npKey}
	return rt.initAccount(payer, bpKey, inv.program, bp.Encode(), nonceverify.BusinessProjectSize)
}

func initUserNonce(inv *invocation, p nonceverify.Program) error {
	if err := inv.consume(costNonceInitUser); err != nil {
		return err
	}
	keys, err := inv.accountKeys(4)
	if err != nil {
		return err
	}
	payer, user, nonceKey, bpKey := keys[0], keys[1], keys[2], keys[3]
	for _, k := range []types.PublicKey{payer, user} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	if _, err := loadAnchor(inv, bpKey, nonceverify.DecodeBusinessProject); err != nil {
		return err
	}
	if err := checkPDA(nonceKey, derived(p.FindUserNonce(bpKey, user))); err != nil {
		return err
	}
	st := nonceverify.UserBusinessNonceState{BusinessProject: bpKey, User: user}
	return inv.rt.initAccount(user, nonceKey, inv.program, st.Encode(), nonceverify.UserBusinessNonceStateSize)
}

// verifyAccounts are the accounts of a nonce verification.
type verifyAccounts struct {
	payer           types.PublicKey
	userFeePayer    types.PublicKey
	user            types.PublicKey
	userNonce       types.PublicKey
	authority       types.PublicKey
	businessProject types.PublicKey
	nonceProject    types.PublicKey
	vault           types.PublicKey
}

// verifyNonce charges the user fee, checks nonce against the stored value
// and advances it. inv must be an invocation of the nonce-verify program;
// authoritySigned reports whether the business authority signed, directly
// or through the seeds of a calling program.
func verifyNonce(inv *invocation, p nonceverify.Program, acc verifyAccounts, nonce uint32, authoritySigned bool) error {
	for _, k := range []types.PublicKey{acc.payer, acc.userFeePayer, acc.user} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	if !authoritySigned {
		return anchor.NewError(anchor.ErrCodeAccountNotSigner, nil)
	}
	bp, err := loadAnchor(inv, acc.businessProject, nonceverify.DecodeBusinessProject)
	if err != nil {
		return err
	}
	if err := checkHasOne(acc.authority, bp.Authority); err != nil {
		return err
	}
	if err := checkHasOne(acc.nonceProject, bp.NonceProject); err != nil {
		return err
	}
	np, err := loadAnchor(inv, acc.nonceProject, nonceverify.DecodeNonceProject)
	if err != nil {
		return err
	}
	if err := checkPDA(acc.vault, derived(p.FindNonceVault(np.ProjectID))); err != nil {
		return err
	}
	if err := checkPDA(acc.userNonce, derived(p.FindUserNonce(acc.businessProject, acc.user))); err != nil {
		return err
	}
	st, err := loadAnchor(inv, acc.userNonce, nonceverify.DecodeUserBusinessNonceState)
	if err != nil {
		return err
	}

	if err := inv.rt.transfer(acc.userFeePayer, acc.vault, uint64(np.UserFee)); err != nil {
		return err
	}
	if st.NonceValue != nonce || nonce == math.MaxUint32 {
		inv.log("nonce value %d does not match stored value %d", nonce, st.NonceValue)
		return anchor.NewError(nonceverify.ErrCodeNonceValueNotMatch, nonceverify.ErrorNames)
	}
	st.NonceValue++
	return storeAnchor(inv, acc.userNonce, st.Encode())
}

func closeUserNonce(inv *invocation) error {
	if err := inv.consume(costNonceClose); err != nil {
		return err
	}
	keys, err := inv.accountKeys(2)
	if err != nil {
		return err
	}
	user, nonceKey := keys[0], keys[1]
	if err := anchorSigner(inv, user); err != nil {
		return err
	}
	st, err := loadAnchor(inv, nonceKey, nonceverify.DecodeUserBusinessNonceState)
	if err != nil {
		return err
	}
	if err := checkHasOne(user, st.User); err != nil {
		return err
	}
	return inv.rt.closeAccount(inv.program, nonceKey, user)
}

func claimNonceFee(inv *invocation, p nonceverify.Program, body []byte) error {
	if err := inv.consume(costNonceClaimFee); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	amount := d.U64()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(5)
	if err != nil {
		return err
	}
	payer, receiver, adminKey, npKey, vault := keys[0], keys[1], keys[2], keys[3], keys[4]
	for _, k := range []types.PublicKey{payer, adminKey} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	np, err := loadAnchor(inv, npKey, nonceverify.DecodeNonceProject)
	if err != nil {
		return err
	}
	admin, ok := np.Admin.Get()
	if !ok {
		admin = inv.program
	}
	if err := checkHasOne(adminKey, admin); err != nil {
		return err
	}
	if err := checkPDA(vault, derived(p.FindNonceVault(np.ProjectID))); err != nil {
		return err
	}
	return inv.rt.transfer(vault, receiver, amount)
}

// derived drops the bump of a derivation; a failed derivation yields the
// zero key, which never matches a passed account.
func derived(k types.PublicKey, _ uint8, err error) types.PublicKey {
	if err != nil {
		return types.PublicKey{}
	}
	return k
}
