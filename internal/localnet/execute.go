package localnet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ErrInvalidTransaction wraps structural problems found before execution.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Result is the outcome of executing a transaction.
type Result struct {
	Signature     types.Signature
	Slot          uint64
	Err           *tx.ExecutionError
	Logs          []string
	UnitsConsumed uint64
	Fee           uint64
	// ReplacementBlockhash is set when simulation substituted the
	// blockhash.
	ReplacementBlockhash *types.Hash
	LastValidBlockHeight uint64
}

// PreflightError reports a transaction rejected before it was recorded.
type PreflightError struct {
	Result *Result
}

func (e *PreflightError) Error() string {
	return "transaction simulation failed: " + e.Result.Err.Error()
}

func (e *PreflightError) Unwrap() error { return e.Result.Err }

// SimulateOptions control Simulate.
type SimulateOptions struct {
	SigVerify              bool
	ReplaceRecentBlockhash bool
}

// Simulate executes t against the current state and discards its effects.
func (l *Ledger) Simulate(t *tx.Transaction, opts SimulateOptions) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executeLocked(t, execOptions{
		sigVerify:        opts.SigVerify,
		replaceBlockhash: opts.ReplaceRecentBlockhash,
	})
}

// Submit executes t and records it. Unless skipPreflight is set, a
// transaction that would fail is rejected with a *PreflightError and
// leaves no trace. Failures that prevent charging the fee are always
// rejected; instruction failures of skipPreflight submissions are recorded
// with their error and still pay the fee.
func (l *Ledger) Submit(t *tx.Transaction, skipPreflight bool) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !skipPreflight {
		res, err := l.executeLocked(t, execOptions{sigVerify: true, checkProcessed: true})
		if err != nil {
			return nil, err
		}
		if res.Err != nil {
			return res, &PreflightError{Result: res}
		}
	}
	res, err := l.executeLocked(t, execOptions{sigVerify: true, checkProcessed: true, commit: true})
	if err != nil {
		return nil, err
	}
	if res.Err != nil && res.Err.Kind != tx.KindInstructionError && res.Err.Kind != tx.KindInsufficientFundsForRent {
		return res, &PreflightError{Result: res}
	}
	return res, nil
}

type execOptions struct {
	sigVerify        bool
	replaceBlockhash bool
	checkProcessed   bool
	commit           bool
}

func (l *Ledger) executeLocked(t *tx.Transaction, opts execOptions) (*Result, error) {
	msg := t.Message
	res := &Result{Slot: l.slot, Signature: t.Signature()}
	fail := func(kind string) (*Result, error) {
		res.Err = tx.NewExecutionError(kind)
		return res, nil
	}

	if opts.replaceBlockhash {
		m := *msg
		m.RecentBlockhash = l.hashes[l.slot]
		msg = &m
		h := m.RecentBlockhash
		res.ReplacementBlockhash = &h
		res.LastValidBlockHeight = l.slot + MaxRecentBlockhashes
	} else if _, ok := l.hashSlots[msg.RecentBlockhash]; !ok {
		return fail(tx.KindBlockhashNotFound)
	}
	if opts.sigVerify {
		if err := t.VerifySignatures(); err != nil {
			return fail(tx.KindSignatureFailure)
		}
	}
	if opts.checkProcessed {
		done, err := l.statuses.Has(res.Signature[:])
		if err != nil {
			return nil, err
		}
		if done {
			return fail(tx.KindAlreadyProcessed)
		}
	}

	loaded, kind, err := l.resolveLookupsLocked(msg)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		return fail(kind)
	}
	ixs, err := msg.Decompile(loaded)
	if err != nil {
		return fail(tx.KindInvalidAccountIndex)
	}

	var limits computebudget.Limits
	nonBudget := 0
	for i, ix := range ixs {
		if ix.ProgramID != computebudget.ProgramID {
			nonBudget++
			continue
		}
		if err := limits.Apply(ix.Data); err != nil {
			res.Err = tx.InstructionFailure(i, tx.ReasonInvalidInstructionData)
			return res, nil
		}
	}
	limit := limits.EffectiveLimit(nonBudget)
	res.Fee = tx.BaseFee(msg) + tx.PriorityFee(limit, limits.UnitPrice)

	feeStore := storage.NewOverlay(l.accounts)
	payer := msg.FeePayer()
	pa, ok, err := loadAccount(feeStore, payer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fail(tx.KindAccountNotFound)
	}
	if pa.Lamports < res.Fee {
		return fail(tx.KindInsufficientFundsForFee)
	}
	pa.Lamports -= res.Fee
	if err := storeAccount(feeStore, payer, pa); err != nil {
		return nil, err
	}

	rt := &runtime{
		l:        l,
		store:    storage.NewOverlay(feeStore),
		slot:     l.slot,
		signers:  make(map[types.PublicKey]bool),
		writable: make(map[types.PublicKey]bool),
		ixs:      ixs,
		limit:    uint64(limit),
		touched:  make(map[types.PublicKey]uint64),
	}
	keys := msg.AccountKeys(loaded)
	for i, k := range keys {
		if msg.IsSigner(i) {
			rt.signers[k] = true
		}
		if msg.IsWritable(i, len(loaded.Writable)) && !l.isReservedLocked(k) {
			rt.writable[k] = true
		}
	}
	rt.ixData = make([][]byte, len(ixs))
	for i, ix := range ixs {
		rt.ixData[i] = ix.Data
	}

	var execErr error
	for i, ix := range ixs {
		if execErr = rt.run(i, ix); execErr != nil {
			break
		}
	}
	if execErr == nil {
		execErr = rt.checkRent()
	}
	res.Logs = rt.logs
	res.UnitsConsumed = rt.consumed

	if execErr != nil {
		var se *errStorage
		if errors.As(execErr, &se) {
			return nil, se.err
		}
		var ee *tx.ExecutionError
		if !errors.As(execErr, &ee) {
			return nil, execErr
		}
		res.Err = ee
	} else if err := rt.store.Commit(); err != nil {
		return nil, err
	}

	if !opts.commit {
		return res, nil
	}
	if err := feeStore.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	if err := l.recordStatusLocked(res); err != nil {
		return nil, err
	}
	ev := l.logger.Info().
		Str("signature", res.Signature.String()).
		Uint64("slot", res.Slot).
		Uint64("units", res.UnitsConsumed).
		Uint64("fee", res.Fee)
	if res.Err != nil {
		ev = ev.Str("error", res.Err.Error())
	}
	ev.Msg("Transaction executed")
	return res, nil
}

// isReservedLocked reports keys that are never writable: executable
// programs and sysvars.
func (l *Ledger) isReservedLocked(k types.PublicKey) bool {
	if _, ok := l.programs[k]; ok {
		return true
	}
	return k == system.SysvarInstructionsID || k == system.SysvarRentID
}

func (l *Ledger) resolveLookupsLocked(msg *tx.Message) (tx.LoadedAddresses, string, error) {
	var loaded tx.LoadedAddresses
	for _, lk := range msg.AddressTableLookups {
		a, ok, err := loadAccount(l.accounts, lk.AccountKey)
		if err != nil {
			return loaded, "", err
		}
		if !ok || a.Owner != lookuptable.ProgramID {
			return loaded, tx.KindAddressLookupTableNotFound, nil
		}
		st, err := lookuptable.DecodeState(a.Data)
		if err != nil || !st.IsActive() {
			return loaded, tx.KindAddressLookupTableNotFound, nil
		}
		usable := len(st.Addresses)
		if st.LastExtendedSlot == l.slot {
			usable = int(st.LastExtendedStartIndex)
		}
		for _, idx := range lk.WritableIndexes {
			if int(idx) >= usable {
				return loaded, tx.KindInvalidAddressLookupTableIndex, nil
			}
			loaded.Writable = append(loaded.Writable, st.Addresses[idx])
		}
		for _, idx := range lk.ReadonlyIndexes {
			if int(idx) >= usable {
				return loaded, tx.KindInvalidAddressLookupTableIndex, nil
			}
			loaded.Readonly = append(loaded.Readonly, st.Addresses[idx])
		}
	}
	return loaded, "", nil
}

// SignatureStatus is the recorded outcome of a transaction.
type SignatureStatus struct {
	Slot          uint64
	Confirmations *uint64
	Err           *tx.ExecutionError
	Commitment    Commitment
}

type statusRecord struct {
	Slot uint64             `json:"slot"`
	Err  *tx.ExecutionError `json:"err,omitempty"`
}

func (l *Ledger) recordStatusLocked(res *Result) error {
	b, err := json.Marshal(statusRecord{Slot: res.Slot, Err: res.Err})
	if err != nil {
		return err
	}
	return l.statuses.Put(res.Signature[:], b)
}

// SignatureStatus returns the status of sig, or nil when the ledger has
// not seen it.
func (l *Ledger) SignatureStatus(sig types.Signature) (*SignatureStatus, error) {
	b, err := l.statuses.Get(sig[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signature status: %w", err)
	}
	var rec statusRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("signature status: %w", err)
	}

	l.mu.Lock()
	current := l.slot
	depth := l.cfg.FinalityDepth
	l.mu.Unlock()

	st := &SignatureStatus{Slot: rec.Slot, Err: rec.Err}
	age := current - rec.Slot
	switch {
	case age >= depth:
		st.Commitment = CommitmentFinalized
	case age >= 1:
		st.Commitment = CommitmentConfirmed
		st.Confirmations = &age
	default:
		st.Commitment = CommitmentProcessed
		st.Confirmations = &age
	}
	return st, nil
}

// RequestAirdrop credits lamports to key from the faucet and records the
// credit as a transaction with a synthetic signature.
func (l *Ledger) RequestAirdrop(key types.PublicKey, lamports uint64) (types.Signature, error) {
	if lamports == 0 || lamports > l.cfg.FaucetLamports {
		return types.Signature{}, fmt.Errorf("%w: %d lamports, max %d", ErrFaucetLimit, lamports, l.cfg.FaucetLamports)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok, err := loadAccount(l.accounts, key)
	if err != nil {
		return types.Signature{}, err
	}
	if !ok {
		a.Owner = system.ProgramID
	}
	a.Lamports += lamports
	if err := storeAccount(l.accounts, key, a); err != nil {
		return types.Signature{}, err
	}

	l.airdrops++
	h1 := crypto.HashConcat(l.hashes[l.slot], key[:])
	seq := binary.LittleEndian.AppendUint64(nil, l.airdrops)
	seq = binary.LittleEndian.AppendUint64(seq, uint64(time.Now().UnixNano()))
	h2 := crypto.HashConcat(h1, seq)
	var sig types.Signature
	copy(sig[:32], h1[:])
	copy(sig[32:], h2[:])
	if err := l.recordStatusLocked(&Result{Signature: sig, Slot: l.slot}); err != nil {
		return types.Signature{}, err
	}
	l.logger.Info().Str("to", key.String()).Uint64("lamports", lamports).Msg("Airdrop")
	return sig, nil
}

// MinimumBalanceForRentExemption mirrors MinimumBalance for the RPC layer.
func (l *Ledger) MinimumBalanceForRentExemption(size int) uint64 {
	return MinimumBalance(size)
}
