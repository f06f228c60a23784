package localnet

import (
	"encoding/binary"
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/ed25519"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func execSystem(inv *invocation) error {
	if err := inv.consume(costSystem); err != nil {
		return err
	}
	d, err := system.Decode(inv.data)
	if err != nil {
		return reason(tx.ReasonInvalidInstructionData)
	}
	rt := inv.rt
	switch d.Kind {
	case system.InstructionCreateAccount:
		keys, err := inv.accountKeys(2)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := inv.requireSigner(k); err != nil {
				return err
			}
		}
		return rt.createAccount(keys[0], keys[1], d.Lamports, int(d.Space), d.Owner)

	case system.InstructionAssign:
		key, err := inv.account(0)
		if err != nil {
			return err
		}
		if err := inv.requireSigner(key); err != nil {
			return err
		}
		a, _, err := rt.load(key)
		if err != nil {
			return err
		}
		if a.Owner != system.ProgramID {
			return reason(tx.ReasonIncorrectProgramID)
		}
		a.Owner = d.Owner
		return rt.put(system.ProgramID, key, a)

	case system.InstructionTransfer:
		keys, err := inv.accountKeys(2)
		if err != nil {
			return err
		}
		if err := inv.requireSigner(keys[0]); err != nil {
			return err
		}
		return rt.transfer(keys[0], keys[1], d.Lamports)
	}
	return reason(tx.ReasonInvalidInstructionData)
}

// execComputeBudget only charges units; the limits were applied before
// execution started.
func execComputeBudget(inv *invocation) error {
	return inv.consume(costComputeBudget)
}

func execEd25519(inv *invocation) error {
	rt := inv.rt
	entries, err := ed25519.ParseInstruction(inv.data, rt.ixData, rt.current)
	if err != nil {
		rt.logf("Ed25519 precompile: %v", err)
		if len(inv.data) < 2 {
			return custom(errPrecompileInvalidDataSize)
		}
		return custom(errPrecompileInvalidOffsets)
	}
	for _, e := range entries {
		if !crypto.VerifySignature(e.Message, e.Signature, e.PublicKey) {
			return custom(errPrecompileInvalidSig)
		}
	}
	return nil
}

func execToken(inv *invocation) error {
	d, err := token.Decode(inv.data)
	if err != nil {
		return reason(tx.ReasonInvalidInstructionData)
	}
	rt := inv.rt
	switch d.Tag {
	case token.InstructionInitializeMint2:
		if err := inv.consume(costTokenInitMint); err != nil {
			return err
		}
		key, err := inv.account(0)
		if err != nil {
			return err
		}
		a, _, err := rt.load(key)
		if err != nil {
			return err
		}
		if a.Owner != token.ProgramID {
			return reason(tx.ReasonIncorrectProgramID)
		}
		if len(a.Data) != token.MintSize {
			return reason(tx.ReasonInvalidAccountData)
		}
		if m, err := token.DecodeMint(a.Data); err == nil && m.IsInitialized {
			return custom(errTokenAlreadyInUse)
		}
		if a.Lamports < MinimumBalance(token.MintSize) {
			return custom(errTokenNotRentExempt)
		}
		m := token.Mint{
			MintAuthority:   types.Some(d.Authority),
			Decimals:        d.Decimals,
			IsInitialized:   true,
			FreezeAuthority: d.Optional,
		}
		a.Data = m.Encode()
		return rt.put(token.ProgramID, key, a)

	case token.InstructionInitializeAccount3:
		if err := inv.consume(costTokenInitAcct); err != nil {
			return err
		}
		keys, err := inv.accountKeys(2)
		if err != nil {
			return err
		}
		a, _, err := rt.load(keys[0])
		if err != nil {
			return err
		}
		if a.Owner != token.ProgramID {
			return reason(tx.ReasonIncorrectProgramID)
		}
		if len(a.Data) != token.AccountSize {
			return reason(tx.ReasonInvalidAccountData)
		}
		if !isZeroed(a.Data) {
			return custom(errTokenAlreadyInUse)
		}
		if _, err := rt.loadMint(keys[1]); err != nil {
			return err
		}
		acct := token.Account{Mint: keys[1], Owner: d.Authority, State: token.StateInitialized}
		a.Data = acct.Encode()
		return rt.put(token.ProgramID, keys[0], a)

	case token.InstructionMintTo:
		if err := inv.consume(costTokenMintTo); err != nil {
			return err
		}
		keys, err := inv.accountKeys(3)
		if err != nil {
			return err
		}
		return rt.mintTo(keys[0], keys[1], keys[2], d.Amount, inv.isSigner(keys[2]))

	case token.InstructionSetAuthority:
		if err := inv.consume(costTokenSetAuth); err != nil {
			return err
		}
		keys, err := inv.accountKeys(2)
		if err != nil {
			return err
		}
		if d.AuthorityType != token.AuthorityMintTokens {
			return reason(tx.ReasonInvalidArgument)
		}
		return rt.setMintAuthority(keys[0], keys[1], d.Optional, inv.isSigner(keys[1]))
	}
	return reason(tx.ReasonInvalidInstructionData)
}

func execATA(inv *invocation) error {
	if err := inv.consume(costCreateATA); err != nil {
		return err
	}
	idempotent := false
	switch {
	case len(inv.data) == 0 || (len(inv.data) == 1 && inv.data[0] == ata.InstructionCreate):
	case len(inv.data) == 1 && inv.data[0] == ata.InstructionCreateIdempotent:
		idempotent = true
	default:
		return reason(tx.ReasonInvalidInstructionData)
	}
	keys, err := inv.accountKeys(4)
	if err != nil {
		return err
	}
	if err := inv.requireSigner(keys[0]); err != nil {
		return err
	}
	return inv.rt.createATA(keys[0], keys[1], keys[2], keys[3], idempotent)
}

func execLookupTable(inv *invocation) error {
	d, err := lookuptable.Decode(inv.data)
	if err != nil {
		return reason(tx.ReasonInvalidInstructionData)
	}
	keys, err := inv.accountKeys(3)
	if err != nil {
		return err
	}
	table, authority, payer := keys[0], keys[1], keys[2]
	rt := inv.rt

	switch d.Kind {
	case lookuptable.InstructionCreate:
		if err := inv.consume(costTableCreate); err != nil {
			return err
		}
		if err := inv.requireSigner(payer); err != nil {
			return err
		}
		if _, ok := rt.l.hashes[d.RecentSlot]; !ok || d.RecentSlot > rt.slot {
			inv.log("%d is not a recent slot", d.RecentSlot)
			return reason(tx.ReasonInvalidInstructionData)
		}
		want, err := crypto.CreateProgramAddress([][]byte{authority[:], slotSeed(d.RecentSlot), {d.Bump}}, lookuptable.ProgramID)
		if err != nil || want != table {
			inv.log("Table address must match derived address: %s", want)
			return reason(tx.ReasonInvalidArgument)
		}
		if a, ok, err := rt.load(table); err != nil {
			return err
		} else if ok && a.Owner == lookuptable.ProgramID {
			inv.log("Table account must not be allocated")
			return reason(tx.ReasonAccountAlreadyInitialized)
		}
		st := lookuptable.State{
			DeactivationSlot: math.MaxUint64,
			Authority:        types.Some(authority),
		}
		return rt.initAccount(payer, table, lookuptable.ProgramID, st.Encode(), lookuptable.MetaSize)

	case lookuptable.InstructionExtend:
		if err := inv.consume(costTableExtend); err != nil {
			return err
		}
		a, ok, err := rt.load(table)
		if err != nil {
			return err
		}
		if !ok || a.Owner != lookuptable.ProgramID {
			return reason(tx.ReasonInvalidAccountOwner)
		}
		st, err := lookuptable.DecodeState(a.Data)
		if err != nil {
			return reason(tx.ReasonInvalidAccountData)
		}
		if !st.IsActive() {
			return reason(tx.ReasonInvalidArgument)
		}
		if owner, ok := st.Authority.Get(); !ok || owner != authority {
			return reason(tx.ReasonIncorrectAuthority)
		}
		if err := inv.requireSigner(authority); err != nil {
			return err
		}
		if len(st.Addresses)+len(d.Addresses) > lookuptable.MaxAddresses {
			inv.log("Extended lookup table length %d would exceed max capacity of %d", len(st.Addresses)+len(d.Addresses), lookuptable.MaxAddresses)
			return reason(tx.ReasonInvalidInstructionData)
		}
		if st.LastExtendedSlot != rt.slot {
			st.LastExtendedSlot = rt.slot
			st.LastExtendedStartIndex = uint8(len(st.Addresses))
		}
		st.Addresses = append(st.Addresses, d.Addresses...)
		a.Data = st.Encode()
		if err := rt.put(lookuptable.ProgramID, table, a); err != nil {
			return err
		}
		if need := MinimumBalance(len(a.Data)); a.Lamports < need {
			if err := inv.requireSigner(payer); err != nil {
				return err
			}
			return rt.transfer(payer, table, need-a.Lamports)
		}
		return nil
	}
	return reason(tx.ReasonInvalidInstructionData)
}

func slotSeed(slot uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, slot)
}
