package localnet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/program/ed25519"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Owners of the accounts installed at startup.
var (
	NativeLoaderID = types.MustPublicKey("NativeLoader1111111111111111111111111111111")
	SysvarOwnerID  = types.MustPublicKey("Sysvar1111111111111111111111111111111111111")
)

// Compute units charged per instruction. Cross-program calls are folded
// into the cost of the calling instruction.
const (
	costSystem        uint32 = 150
	costComputeBudget uint32 = 150
	costTokenInitMint uint32 = 3_000
	costTokenInitAcct uint32 = 4_000
	costTokenMintTo   uint32 = 4_500
	costTokenSetAuth  uint32 = 3_000
	costCreateATA     uint32 = 22_000
	costTableCreate   uint32 = 1_200
	costTableExtend   uint32 = 1_000

	costNonceInit     uint32 = 12_000
	costNonceRegister uint32 = 14_000
	costNonceInitUser uint32 = 9_000
	costNonceVerify   uint32 = 8_000
	costNonceClose    uint32 = 5_000
	costNonceClaimFee uint32 = 6_000

	costAirdropInit     uint32 = 9_000
	costAirdropClaim    uint32 = 30_000
	costAirdropTransfer uint32 = 8_000
	costAirdropClose    uint32 = 5_000

	costDistInitManager uint32 = 12_000
	costDistUpdate      uint32 = 6_000
	costDistClaimFee    uint32 = 6_000
	costDistInitProject uint32 = 9_000
	costDistTransfer    uint32 = 8_000
)

// Custom error codes raised by the native programs.
const (
	errSystemAccountInUse        uint32 = 0
	errSystemInsufficientFunds   uint32 = 1
	errTokenNotRentExempt        uint32 = 0
	errTokenInvalidMint          uint32 = 2
	errTokenMintMismatch         uint32 = 3
	errTokenOwnerMismatch        uint32 = 4
	errTokenFixedSupply          uint32 = 5
	errTokenAlreadyInUse         uint32 = 6
	errTokenOverflow             uint32 = 14
	errPrecompileInvalidSig      uint32 = 2
	errPrecompileInvalidOffsets  uint32 = 3
	errPrecompileInvalidDataSize uint32 = 4
)

func (l *Ledger) registerPrograms() map[types.PublicKey]program {
	return map[types.PublicKey]program{
		system.ProgramID:        execSystem,
		computebudget.ProgramID: execComputeBudget,
		ed25519.ProgramID:       execEd25519,
		token.ProgramID:         execToken,
		ata.ProgramID:           execATA,
		lookuptable.ProgramID:   execLookupTable,
		l.cfg.NonceVerify:       l.execNonceVerify,
		l.cfg.Airdrop:           l.execAirdrop,
		l.cfg.Distribute:        l.execDistribute,
	}
}

// installPrograms writes the executable program accounts and sysvars so
// that account queries see them.
func (l *Ledger) installPrograms() error {
	batch := l.accounts.NewBatch()
	for id := range l.programs {
		a := Account{Lamports: 1, Owner: NativeLoaderID, Executable: true, Data: []byte(id.String())}
		if err := batch.Put(id[:], a.encode()); err != nil {
			return err
		}
	}
	for _, id := range []types.PublicKey{system.SysvarInstructionsID, system.SysvarRentID} {
		a := Account{Lamports: MinimumBalance(0), Owner: SysvarOwnerID}
		if err := batch.Put(id[:], a.encode()); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("install programs: %w", err)
	}
	return nil
}

func custom(code uint32) error {
	return tx.CustomFailure(0, code)
}

// transfer moves lamports between accounts on behalf of the system
// program. The caller authorizes the debit.
func (rt *runtime) transfer(from, to types.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	fa, _, err := rt.load(from)
	if err != nil {
		return err
	}
	if len(fa.Data) != 0 || fa.Owner != system.ProgramID {
		return reason(tx.ReasonInvalidArgument)
	}
	if fa.Lamports < lamports {
		rt.logf("Transfer: insufficient lamports %d, need %d", fa.Lamports, lamports)
		return custom(errSystemInsufficientFunds)
	}
	fa.Lamports -= lamports
	if err := rt.put(system.ProgramID, from, fa); err != nil {
		return err
	}
	return rt.credit(system.ProgramID, to, lamports)
}

// credit adds lamports to key on behalf of as.
func (rt *runtime) credit(as, key types.PublicKey, lamports uint64) error {
	ta, _, err := rt.load(key)
	if err != nil {
		return err
	}
	ta.Lamports += lamports
	return rt.put(as, key, ta)
}

// createAccount funds and allocates key for owner. The caller authorizes
// both the debit of from and the use of key.
func (rt *runtime) createAccount(from, key types.PublicKey, lamports uint64, space int, owner types.PublicKey) error {
	a, ok, err := rt.load(key)
	if err != nil {
		return err
	}
	if ok && (len(a.Data) != 0 || a.Owner != system.ProgramID) {
		rt.logf("Create Account: account %s already in use", key)
		return custom(errSystemAccountInUse)
	}
	if a.Lamports < lamports {
		if err := rt.transfer(from, key, lamports-a.Lamports); err != nil {
			return err
		}
		if a, _, err = rt.load(key); err != nil {
			return err
		}
	}
	a.Data = make([]byte, space)
	a.Owner = owner
	return rt.put(system.ProgramID, key, a)
}

// initAccount creates a rent-exempt account for program owner and writes
// data into it.
func (rt *runtime) initAccount(payer, key, owner types.PublicKey, data []byte, space int) error {
	if err := rt.createAccount(payer, key, MinimumBalance(space), space, owner); err != nil {
		return err
	}
	a, _, err := rt.load(key)
	if err != nil {
		return err
	}
	copy(a.Data, data)
	return rt.put(owner, key, a)
}

// closeAccount moves all lamports of key to dest and deletes it.
func (rt *runtime) closeAccount(as, key, dest types.PublicKey) error {
	a, _, err := rt.load(key)
	if err != nil {
		return err
	}
	if err := rt.put(as, key, Account{Owner: system.ProgramID}); err != nil {
		return err
	}
	return rt.credit(as, dest, a.Lamports)
}

// loadMint reads an initialized mint.
func (rt *runtime) loadMint(key types.PublicKey) (token.Mint, error) {
	a, ok, err := rt.load(key)
	if err != nil {
		return token.Mint{}, err
	}
	if !ok || a.Owner != token.ProgramID {
		return token.Mint{}, reason(tx.ReasonIncorrectProgramID)
	}
	m, err := token.DecodeMint(a.Data)
	if err != nil || !m.IsInitialized {
		return token.Mint{}, custom(errTokenInvalidMint)
	}
	return m, nil
}

// mintTo mints amount of mint into dest. authorized reports whether the
// given authority signed, directly or through program seeds.
func (rt *runtime) mintTo(mintKey, dest, authority types.PublicKey, amount uint64, authorized bool) error {
	m, err := rt.loadMint(mintKey)
	if err != nil {
		return err
	}
	da, ok, err := rt.load(dest)
	if err != nil {
		return err
	}
	if !ok || da.Owner != token.ProgramID {
		return reason(tx.ReasonIncorrectProgramID)
	}
	acct, err := token.DecodeAccount(da.Data)
	if err != nil || acct.State != token.StateInitialized {
		return reason(tx.ReasonUninitializedAccount)
	}
	if acct.Mint != mintKey {
		return custom(errTokenMintMismatch)
	}
	current, ok := m.MintAuthority.Get()
	if !ok {
		return custom(errTokenFixedSupply)
	}
	if current != authority {
		return custom(errTokenOwnerMismatch)
	}
	if !authorized {
		return reason(tx.ReasonMissingRequiredSignature)
	}
	if acct.Amount+amount < acct.Amount || m.Supply+amount < m.Supply {
		return custom(errTokenOverflow)
	}
	acct.Amount += amount
	m.Supply += amount
	da.Data = acct.Encode()
	if err := rt.put(token.ProgramID, dest, da); err != nil {
		return err
	}
	ma, _, err := rt.load(mintKey)
	if err != nil {
		return err
	}
	ma.Data = m.Encode()
	return rt.put(token.ProgramID, mintKey, ma)
}

// setMintAuthority replaces the mint authority of mint.
func (rt *runtime) setMintAuthority(mintKey, current types.PublicKey, next types.OptionalKey, authorized bool) error {
	m, err := rt.loadMint(mintKey)
	if err != nil {
		return err
	}
	held, ok := m.MintAuthority.Get()
	if !ok {
		return custom(errTokenFixedSupply)
	}
	if held != current {
		return custom(errTokenOwnerMismatch)
	}
	if !authorized {
		return reason(tx.ReasonMissingRequiredSignature)
	}
	m.MintAuthority = next
	ma, _, err := rt.load(mintKey)
	if err != nil {
		return err
	}
	ma.Data = m.Encode()
	return rt.put(token.ProgramID, mintKey, ma)
}

// createATA creates the associated token account of owner for mint, paid
// by payer. With idempotent set an existing matching account is accepted.
func (rt *runtime) createATA(payer, key, owner, mintKey types.PublicKey, idempotent bool) error {
	want, _, err := ata.FindAddress(owner, mintKey)
	if err != nil || want != key {
		return reason(tx.ReasonInvalidSeeds)
	}
	a, ok, err := rt.load(key)
	if err != nil {
		return err
	}
	if ok && a.Owner == token.ProgramID {
		if !idempotent {
			return custom(errSystemAccountInUse)
		}
		acct, err := token.DecodeAccount(a.Data)
		if err != nil || acct.Owner != owner || acct.Mint != mintKey {
			return reason(tx.ReasonIllegalOwner)
		}
		return nil
	}
	if _, err := rt.loadMint(mintKey); err != nil {
		return err
	}
	acct := token.Account{Mint: mintKey, Owner: owner, State: token.StateInitialized}
	return rt.initAccount(payer, key, token.ProgramID, acct.Encode(), token.AccountSize)
}

// loadAnchor reads and decodes an account owned by the invoked program,
// mapping failures to the framework error codes.
func loadAnchor[T any](inv *invocation, key types.PublicKey, decode func([]byte) (T, error)) (T, error) {
	var zero T
	a, ok, err := inv.rt.load(key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, anchor.NewError(anchor.ErrCodeAccountNotInitialized, nil)
	}
	if a.Owner != inv.program {
		return zero, anchor.NewError(anchor.ErrCodeAccountOwnedByWrongProgram, nil)
	}
	v, err := decode(a.Data)
	if errors.Is(err, anchor.ErrDiscriminatorMismatch) {
		return zero, anchor.NewError(anchor.ErrCodeAccountDiscriminatorMismatch, nil)
	}
	if err != nil {
		return zero, anchor.NewError(anchor.ErrCodeAccountDidNotDeserialize, nil)
	}
	return v, nil
}

// storeAnchor rewrites the data of an account owned by the invoked program.
func storeAnchor(inv *invocation, key types.PublicKey, data []byte) error {
	a, _, err := inv.rt.load(key)
	if err != nil {
		return err
	}
	if len(data) > len(a.Data) {
		return anchor.NewError(anchor.ErrCodeAccountDidNotDeserialize, nil)
	}
	a.Data = append(data[:len(data):len(data)], make([]byte, len(a.Data)-len(data))...)
	return inv.rt.put(inv.program, key, a)
}

// anchorSigner fails with AccountNotSigner unless key signed.
func anchorSigner(inv *invocation, key types.PublicKey) error {
	if !inv.isSigner(key) {
		return anchor.NewError(anchor.ErrCodeAccountNotSigner, nil)
	}
	return nil
}

// checkPDA fails with ConstraintSeeds unless got is want.
func checkPDA(got, want types.PublicKey) error {
	if got != want {
		return anchor.NewError(anchor.ErrCodeConstraintSeeds, nil)
	}
	return nil
}

// checkHasOne fails with ConstraintHasOne unless got is want.
func checkHasOne(got, want types.PublicKey) error {
	if got != want {
		return anchor.NewError(anchor.ErrCodeConstraintHasOne, nil)
	}
	return nil
}

// anchorDispatch splits instruction data into discriminator and body.
func anchorDispatch(data []byte) (anchor.Discriminator, []byte, error) {
	var d anchor.Discriminator
	if len(data) < anchor.DiscriminatorSize {
		return d, nil, anchor.NewError(anchor.ErrCodeInstructionFallbackNotFound, nil)
	}
	copy(d[:], data)
	return d, data[anchor.DiscriminatorSize:], nil
}

func didNotDeserialize() error {
	return anchor.NewError(anchor.ErrCodeInstructionDidNotDeserialize, nil)
}
