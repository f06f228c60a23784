package localnet

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func (l *Ledger) execDistribute(inv *invocation) error {
	disc, body, err := anchorDispatch(inv.data)
	if err != nil {
		return err
	}
	p := distribute.New(inv.program)
	switch disc {
	case distribute.DiscInitManager:
		inv.log("Instruction: InitSingletonManageProject")
		return initManager(inv, p, body)
	case distribute.DiscUpdateManager:
		inv.log("Instruction: UpdateManagerSingletonProject")
		return updateManager(inv, body)
	case distribute.DiscClaimFee:
		inv.log("Instruction: ClaimFee")
		return claimDistributeFee(inv, p, body)
	case distribute.DiscInitProject:
		inv.log("Instruction: InitDdaAirdropProject")
		return initDistributeProject(inv)
	case distribute.DiscUpdateProject:
		inv.log("Instruction: UpdateDdaAirdropProject")
		return updateDistributeProject(inv, body)
	case distribute.DiscTransferMintAuthority:
		inv.log("Instruction: TransferDdaMintAuthority")
		return transferDistributeMintAuthority(inv, p)
	case distribute.DiscDistribute:
		inv.log("Instruction: DdaAirdropFt")
		return distributeTokens(inv, p, body)
	}
	return anchor.NewError(anchor.ErrCodeInstructionFallbackNotFound, nil)
}

func initManager(inv *invocation, p distribute.Program, body []byte) error {
	if err := inv.consume(costDistInitManager); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	fee := d.U32()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(4)
	if err != nil {
		return err
	}
	payer, admin, manager, receiver := keys[0], keys[1], keys[2], keys[3]
	for _, k := range []types.PublicKey{payer, admin} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	if err := checkPDA(manager, derived(p.FindManager())); err != nil {
		return err
	}
	if err := checkPDA(receiver, derived(p.FindFeeReceiver())); err != nil {
		return err
	}
	rt := inv.rt
	if _, ok, err := rt.load(manager); err != nil {
		return err
	} else if ok {
		if m, err := loadAnchor(inv, manager, distribute.DecodeManager); err == nil && m.Initialized {
			return anchor.NewError(distribute.ErrCodeAlreadyInitialized, distribute.ErrorNames)
		}
	}
	m := distribute.Manager{Initialized: true, Admin: admin, FeeReceiver: receiver, UserFee: fee}
	if err := rt.initAccount(payer, manager, inv.program, m.Encode(), distribute.ManagerSize); err != nil {
		return err
	}
	ra, _, err := rt.load(receiver)
	if err != nil {
		return err
	}
	if floor := MinimumBalance(0); ra.Lamports < floor {
		return rt.transfer(payer, receiver, floor-ra.Lamports)
	}
	return nil
}

// loadManagerAs loads the manager and requires admin to be its signing
// admin.
func loadManagerAs(inv *invocation, manager, admin types.PublicKey) (distribute.Manager, error) {
	if err := anchorSigner(inv, admin); err != nil {
		return distribute.Manager{}, err
	}
	m, err := loadAnchor(inv, manager, distribute.DecodeManager)
	if err != nil {
		return distribute.Manager{}, err
	}
	return m, checkHasOne(admin, m.Admin)
}

func updateManager(inv *invocation, body []byte) error {
	if err := inv.consume(costDistUpdate); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	newAdmin, newFee := d.OptionPublicKey(), d.OptionU32()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(3)
	if err != nil {
		return err
	}
	m, err := loadManagerAs(inv, keys[2], keys[1])
	if err != nil {
		return err
	}
	if k, ok := newAdmin.Get(); ok {
		m.Admin = k
	}
	if f, ok := newFee.Get(); ok {
		m.UserFee = f
	}
	return storeAnchor(inv, keys[2], m.Encode())
}

func claimDistributeFee(inv *invocation, p distribute.Program, body []byte) error {
	if err := inv.consume(costDistClaimFee); err != nil {
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
	payer, receiver, admin, manager, feeReceiver := keys[0], keys[1], keys[2], keys[3], keys[4]
	if err := anchorSigner(inv, payer); err != nil {
		return err
	}
	m, err := loadManagerAs(inv, manager, admin)
	if err != nil {
		return err
	}
	if err := checkPDA(feeReceiver, derived(p.FindFeeReceiver())); err != nil {
		return err
	}
	if err := checkHasOne(feeReceiver, m.FeeReceiver); err != nil {
		return err
	}
	return inv.rt.transfer(feeReceiver, receiver, amount)
}

func initDistributeProject(inv *invocation) error {
	if err := inv.consume(costDistInitProject); err != nil {
		return err
	}
	keys, err := inv.accountKeys(3)
	if err != nil {
		return err
	}
	payer, admin, project := keys[0], keys[1], keys[2]
	for _, k := range []types.PublicKey{payer, project} {
		if err := anchorSigner(inv, k); err != nil {
			return err
		}
	}
	pr := distribute.Project{Admin: admin}
	return inv.rt.initAccount(payer, project, inv.program, pr.Encode(), distribute.ProjectSize)
}

// loadProjectAs loads a distribution project and requires admin to be its
// signing admin.
func loadProjectAs(inv *invocation, project, admin types.PublicKey) (distribute.Project, error) {
	if err := anchorSigner(inv, admin); err != nil {
		return distribute.Project{}, err
	}
	pr, err := loadAnchor(inv, project, distribute.DecodeProject)
	if err != nil {
		return distribute.Project{}, err
	}
	return pr, checkHasOne(admin, pr.Admin)
}

func updateDistributeProject(inv *invocation, body []byte) error {
	if err := inv.consume(costDistUpdate); err != nil {
		return err
	}
	d := anchor.NewDecoder(body)
	newAdmin := d.PublicKey()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	keys, err := inv.accountKeys(3)
	if err != nil {
		return err
	}
	pr, err := loadProjectAs(inv, keys[2], keys[1])
	if err != nil {
		return err
	}
	pr.Admin = newAdmin
	return storeAnchor(inv, keys[2], pr.Encode())
}

func transferDistributeMintAuthority(inv *invocation, p distribute.Program) error {
	if err := inv.consume(costDistTransfer); err != nil {
		return err
	}
	keys, err := inv.accountKeys(6)
	if err != nil {
		return err
	}
	admin, project, mint, mintAuthority, next := keys[1], keys[2], keys[3], keys[4], keys[5]
	if _, err := loadProjectAs(inv, project, admin); err != nil {
		return err
	}
	if err := checkPDA(mintAuthority, derived(p.FindMintAuthority(project, mint))); err != nil {
		return err
	}
	return inv.rt.setMintAuthority(mint, mintAuthority, types.Some(next), true)
}

func distributeTokens(inv *invocation, p distribute.Program, body []byte) error {
	d := anchor.NewDecoder(body)
	amounts := d.VecU64()
	if d.Err() != nil {
		return didNotDeserialize()
	}
	if err := inv.consume(distribute.ComputeUnits(len(amounts))); err != nil {
		return err
	}
	keys, err := inv.accountKeys(distribute.FixedAccounts)
	if err != nil {
		return err
	}
	var (
		payer         = keys[0]
		manager       = keys[1]
		feeReceiver   = keys[2]
		admin         = keys[3]
		project       = keys[4]
		mint          = keys[5]
		mintAuthority = keys[6]
	)
	if err := anchorSigner(inv, payer); err != nil {
		return err
	}
	remaining := inv.accounts[distribute.FixedAccounts:]
	if len(remaining) != 2*len(amounts) {
		inv.log("%d remaining accounts for %d receivers", len(remaining), len(amounts))
		return anchor.NewError(distribute.ErrCodeReceiverCountNotMatch, distribute.ErrorNames)
	}
	if _, err := loadProjectAs(inv, project, admin); err != nil {
		return err
	}
	m, err := loadAnchor(inv, manager, distribute.DecodeManager)
	if err != nil {
		return err
	}
	if err := checkPDA(manager, derived(p.FindManager())); err != nil {
		return err
	}
	if err := checkHasOne(feeReceiver, m.FeeReceiver); err != nil {
		return err
	}
	if err := checkPDA(mintAuthority, derived(p.FindMintAuthority(project, mint))); err != nil {
		return err
	}

	rt := inv.rt
	if err := rt.transfer(payer, feeReceiver, uint64(m.UserFee)*uint64(len(amounts))); err != nil {
		return err
	}
	for i, amount := range amounts {
		owner, tokenAccount := remaining[2*i].PublicKey, remaining[2*i+1].PublicKey
		if want, _, err := ata.FindAddress(owner, mint); err != nil || want != tokenAccount {
			return anchor.NewError(distribute.ErrCodeReceiverTokenAccountMismatch, distribute.ErrorNames)
		}
		a, _, err := rt.load(tokenAccount)
		if err != nil {
			return err
		}
		if a.Lamports == 0 {
			if err := rt.createATA(payer, tokenAccount, owner, mint, false); err != nil {
				return err
			}
		}
		if err := rt.mintTo(mint, tokenAccount, mintAuthority, amount, true); err != nil {
			return err
		}
	}
	inv.log("distributed %s to %d receivers", mint, len(amounts))
	return nil
}
