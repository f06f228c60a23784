package localnet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// program executes one instruction addressed to it.
type program func(inv *invocation) error

// runtime is the state of one transaction being executed.
type runtime struct {
	l        *Ledger
	store    *storage.Overlay
	slot     uint64
	signers  map[types.PublicKey]bool
	writable map[types.PublicKey]bool
	ixData   [][]byte
	ixs      []tx.Instruction
	current  int
	limit    uint64
	consumed uint64
	logs     []string
	touched  map[types.PublicKey]uint64 // lamports before the transaction
}

// invocation is one top-level instruction.
type invocation struct {
	rt       *runtime
	program  types.PublicKey
	accounts []tx.AccountMeta
	data     []byte
}

// errStorage marks failures of the backing store, which abort the
// transaction instead of failing it.
type errStorage struct{ err error }

func (e *errStorage) Error() string { return "storage: " + e.err.Error() }
func (e *errStorage) Unwrap() error { return e.err }

func reason(r string) error {
	return tx.InstructionFailure(0, r)
}

func (rt *runtime) run(i int, ix tx.Instruction) error {
	rt.current = i
	p, ok := rt.l.programs[ix.ProgramID]
	if !ok {
		rt.logf("Program %s is not deployed", ix.ProgramID)
		return tx.InstructionFailure(i, tx.ReasonUnsupportedProgramID)
	}
	rt.logf("Program %s invoke [1]", ix.ProgramID)
	before := rt.consumed
	err := p(&invocation{rt: rt, program: ix.ProgramID, accounts: ix.Accounts, data: ix.Data})
	rt.logf("Program %s consumed %d of %d compute units", ix.ProgramID, rt.consumed-before, rt.limit)

	if err == nil {
		rt.logf("Program %s success", ix.ProgramID)
		return nil
	}
	var se *errStorage
	if errors.As(err, &se) {
		return err
	}
	var pe *anchor.ProgramError
	if errors.As(err, &pe) {
		rt.logf("Program log: AnchorError occurred. Error Code: %s. Error Number: %d.", pe.Name, pe.Code)
		rt.logf("Program %s failed: custom program error: %#x", ix.ProgramID, pe.Code)
		return tx.CustomFailure(i, pe.Code)
	}
	var ee *tx.ExecutionError
	if errors.As(err, &ee) {
		out := *ee
		out.Instruction = i
		rt.logf("Program %s failed: %s", ix.ProgramID, out.Reason)
		return &out
	}
	rt.logf("Program %s failed: %v", ix.ProgramID, err)
	return tx.InstructionFailure(i, tx.ReasonInvalidInstructionData)
}

func (rt *runtime) logf(format string, args ...any) {
	rt.logs = append(rt.logs, fmt.Sprintf(format, args...))
}

// load returns the account at key and whether it exists.
func (rt *runtime) load(key types.PublicKey) (Account, bool, error) {
	a, ok, err := loadAccount(rt.store, key)
	if err != nil {
		return Account{}, false, &errStorage{err}
	}
	if !ok {
		a.Owner = system.ProgramID
	}
	return a, ok, nil
}

// put stores a as the new state of key on behalf of program as. Only the
// owner may change data or debit lamports, and only the owner may reassign
// an account, leaving its data zeroed.
func (rt *runtime) put(as, key types.PublicKey, a Account) error {
	prev, _, err := rt.load(key)
	if err != nil {
		return err
	}
	if !rt.writable[key] {
		if a.Lamports != prev.Lamports {
			return reason(tx.ReasonReadonlyLamportChange)
		}
		return reason(tx.ReasonReadonlyDataModified)
	}
	if prev.Executable {
		return reason(tx.ReasonReadonlyDataModified)
	}
	if prev.Owner != as {
		if string(prev.Data) != string(a.Data) || a.Owner != prev.Owner {
			return reason(tx.ReasonExternalAccountDataModified)
		}
		if a.Lamports < prev.Lamports {
			return reason(tx.ReasonExternalAccountDataModified)
		}
	}
	if a.Owner != prev.Owner && !isZeroed(a.Data) {
		return reason(tx.ReasonExternalAccountDataModified)
	}
	if _, ok := rt.touched[key]; !ok {
		rt.touched[key] = prev.Lamports
	}
	if a.IsEmpty() {
		a.Owner = system.ProgramID
	}
	if err := storeAccount(rt.store, key, a); err != nil {
		return &errStorage{err}
	}
	return nil
}

func isZeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// consume charges compute units against the transaction limit.
func (inv *invocation) consume(units uint32) error {
	rt := inv.rt
	rt.consumed += uint64(units)
	if rt.consumed > rt.limit {
		rt.consumed = rt.limit
		return reason(tx.ReasonComputationalBudgetExceeded)
	}
	return nil
}

// account returns the i-th account key of the instruction.
func (inv *invocation) account(i int) (types.PublicKey, error) {
	if i >= len(inv.accounts) {
		return types.PublicKey{}, reason(tx.ReasonNotEnoughAccountKeys)
	}
	return inv.accounts[i].PublicKey, nil
}

// accountKeys returns the first n account keys.
func (inv *invocation) accountKeys(n int) ([]types.PublicKey, error) {
	if len(inv.accounts) < n {
		return nil, reason(tx.ReasonNotEnoughAccountKeys)
	}
	keys := make([]types.PublicKey, n)
	for i := range keys {
		keys[i] = inv.accounts[i].PublicKey
	}
	return keys, nil
}

// isSigner reports whether key signed the transaction.
func (inv *invocation) isSigner(key types.PublicKey) bool {
	return inv.rt.signers[key]
}

func (inv *invocation) requireSigner(key types.PublicKey) error {
	if !inv.isSigner(key) {
		return reason(tx.ReasonMissingRequiredSignature)
	}
	return nil
}

// invoke runs fn as a cross-program call into programID.
func (inv *invocation) invoke(programID types.PublicKey, fn func(sub *invocation) error) error {
	rt := inv.rt
	rt.logf("Program %s invoke [2]", programID)
	if err := fn(&invocation{rt: rt, program: programID}); err != nil {
		return err
	}
	rt.logf("Program %s success", programID)
	return nil
}

func (inv *invocation) log(format string, args ...any) {
	inv.rt.logf("Program log: "+format, args...)
}

// checkRent rejects accounts whose balance changed into the range between
// zero and their rent-exempt minimum.
func (rt *runtime) checkRent() error {
	for key, before := range rt.touched {
		a, ok, err := rt.load(key)
		if err != nil {
			return err
		}
		if !ok || a.Lamports == before {
			continue
		}
		if a.Lamports > 0 && a.Lamports < MinimumBalance(len(a.Data)) {
			rt.logf("Account %s: %d lamports below rent-exempt minimum %d", key, a.Lamports, MinimumBalance(len(a.Data)))
			return tx.NewExecutionError(tx.KindInsufficientFundsForRent)
		}
	}
	return nil
}
