package distribute

import (
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitManager creates the singleton manager with admin and a per-receiver
// fee, and funds the fee receiver with its rent-exempt minimum.
func (p Program) InitManager(payer, admin types.PublicKey, userFee uint32) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Signer(admin),
			tx.Writable(must(p.FindManager())),
			tx.Writable(must(p.FindFeeReceiver())),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscInitManager).U32(userFee).Bytes(),
	}
}

// UpdateManager replaces the manager admin and/or fee. Absent values are
// left unchanged. The current admin signs.
func (p Program) UpdateManager(payer, admin types.PublicKey, newAdmin types.OptionalKey, newFee types.Option[uint32]) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Signer(admin),
			tx.Writable(must(p.FindManager())),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscUpdateManager).OptionPublicKey(newAdmin).OptionU32(newFee).Bytes(),
	}
}

// ClaimFee moves amount lamports of collected fees to receiver.
func (p Program) ClaimFee(payer, receiver, admin types.PublicKey, amount uint64) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Writable(receiver),
			tx.Signer(admin),
			tx.ReadOnly(must(p.FindManager())),
			tx.Writable(must(p.FindFeeReceiver())),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscClaimFee).U64(amount).Bytes(),
	}
}

// InitProject creates a distribution project at the fresh keypair address
// project, which signs.
func (p Program) InitProject(payer, admin, project types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.ReadOnly(admin),
			tx.WritableSigner(project),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscInitProject).Bytes(),
	}
}

// UpdateProject sets a new project admin. The current admin signs.
func (p Program) UpdateProject(payer, admin, project, newAdmin types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Signer(admin),
			tx.Writable(project),
			tx.ReadOnly(system.ProgramID),
		},
		Data: anchor.NewEncoder(DiscUpdateProject).PublicKey(newAdmin).Bytes(),
	}
}

// TransferMintAuthority hands the mint authority held by the program's PDA
// to newAuthority. The project admin signs.
func (p Program) TransferMintAuthority(payer, admin, project, mint, newAuthority types.PublicKey) tx.Instruction {
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts: []tx.AccountMeta{
			tx.WritableSigner(payer),
			tx.Signer(admin),
			tx.ReadOnly(project),
			tx.Writable(mint),
			tx.ReadOnly(must(p.FindMintAuthority(project, mint))),
			tx.ReadOnly(newAuthority),
			tx.ReadOnly(system.ProgramID),
			tx.ReadOnly(token.ProgramID),
			tx.ReadOnly(ata.ProgramID),
		},
		Data: anchor.NewEncoder(DiscTransferMintAuthority).Bytes(),
	}
}

// Receiver is one distribution target.
type Receiver struct {
	Owner  types.PublicKey
	Amount uint64
}

// DistributeParams are the inputs of dda_airdrop_ft.
type DistributeParams struct {
	Payer     types.PublicKey
	Admin     types.PublicKey
	Project   types.PublicKey
	Mint      types.PublicKey
	Receivers []Receiver
}

// Distribute mints each receiver's amount to its associated token account,
// creating the account when missing. Receivers follow the fixed accounts as
// (owner, associated account) pairs.
func (p Program) Distribute(params DistributeParams) tx.Instruction {
	amounts := make([]uint64, len(params.Receivers))
	accounts := []tx.AccountMeta{
		tx.WritableSigner(params.Payer),
		tx.ReadOnly(must(p.FindManager())),
		tx.Writable(must(p.FindFeeReceiver())),
		tx.Signer(params.Admin),
		tx.ReadOnly(params.Project),
		tx.Writable(params.Mint),
		tx.ReadOnly(must(p.FindMintAuthority(params.Project, params.Mint))),
		tx.ReadOnly(system.ProgramID),
		tx.ReadOnly(token.ProgramID),
		tx.ReadOnly(ata.ProgramID),
	}
	for i, r := range params.Receivers {
		amounts[i] = r.Amount
		accounts = append(accounts,
			tx.ReadOnly(r.Owner),
			tx.Writable(ata.MustFindAddress(r.Owner, params.Mint)),
		)
	}
	return tx.Instruction{
		ProgramID: p.ID,
		Accounts:  accounts,
		Data:      anchor.NewEncoder(DiscDistribute).VecU64(amounts).Bytes(),
	}
}

// FixedAccounts is the number of accounts before the receiver pairs.
const FixedAccounts = 10

// LookupAddresses lists the accounts of a distribution that do not change
// between receivers, for storing in a lookup table. payer is included when
// present.
func (p Program) LookupAddresses(payer types.OptionalKey, admin, project, mint types.PublicKey, extra ...types.PublicKey) []types.PublicKey {
	addrs := make([]types.PublicKey, 0, 12+len(extra))
	addrs = append(addrs, extra...)
	addrs = append(addrs, system.ProgramID, token.ProgramID, ata.ProgramID)
	if k, ok := payer.Get(); ok {
		addrs = append(addrs, k)
	}
	addrs = append(addrs,
		must(p.FindManager()),
		must(p.FindFeeReceiver()),
		project,
		admin,
		mint,
		must(p.FindMintAuthority(project, mint)),
	)
	return dedupe(addrs)
}

func dedupe(keys []types.PublicKey) []types.PublicKey {
	seen := make(map[types.PublicKey]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
