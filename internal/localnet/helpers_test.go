package localnet

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// testEnv is a ledger with a funded payer that advances one slot per
// transaction, so identical instructions never collide on signature.
type testEnv struct {
	t      *testing.T
	l      *Ledger
	payer  *crypto.PrivateKey
	tables []tx.LookupTable
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	l, err := New(storage.NewMemory(), Config{FinalityDepth: 4, FaucetLamports: 1000 * LamportsPerSOL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.Advance(1)
	e := &testEnv{t: t, l: l, payer: newKey(t)}
	e.fund(e.payer.PublicKey(), 100*LamportsPerSOL)
	return e
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return k
}

func (e *testEnv) fund(key types.PublicKey, lamports uint64) {
	e.t.Helper()
	if _, err := e.l.RequestAirdrop(key, lamports); err != nil {
		e.t.Fatalf("RequestAirdrop() error: %v", err)
	}
}

func (e *testEnv) build(ixs []tx.Instruction, signers ...crypto.Signer) *tx.Transaction {
	e.t.Helper()
	e.l.Advance(1)
	h, _ := e.l.LatestBlockhash(CommitmentProcessed)
	all := append([]crypto.Signer{e.payer}, signers...)
	t, err := tx.NewBuilder(e.payer.PublicKey()).
		AddInstruction(ixs...).
		SetRecentBlockhash(h).
		WithLookupTables(e.tables...).
		BuildSigned(all...)
	if err != nil {
		e.t.Fatalf("BuildSigned() error: %v", err)
	}
	return t
}

func (e *testEnv) send(ixs []tx.Instruction, signers ...crypto.Signer) (*Result, error) {
	e.t.Helper()
	return e.l.Submit(e.build(ixs, signers...), false)
}

func (e *testEnv) mustSend(ixs []tx.Instruction, signers ...crypto.Signer) *Result {
	e.t.Helper()
	res, err := e.send(ixs, signers...)
	if err != nil {
		if res != nil {
			for _, line := range res.Logs {
				e.t.Log(line)
			}
		}
		e.t.Fatalf("Submit() error: %v", err)
	}
	return res
}

func (e *testEnv) account(key types.PublicKey) *Account {
	e.t.Helper()
	a, err := e.l.Account(key)
	if err != nil {
		e.t.Fatalf("Account() error: %v", err)
	}
	return a
}

func (e *testEnv) balance(key types.PublicKey) uint64 {
	e.t.Helper()
	b, err := e.l.Balance(key)
	if err != nil {
		e.t.Fatalf("Balance() error: %v", err)
	}
	return b
}

// createMint creates mint with authority as its mint authority.
func (e *testEnv) createMint(mint *crypto.PrivateKey, authority types.PublicKey) types.PublicKey {
	e.t.Helper()
	e.mustSend([]tx.Instruction{
		system.CreateAccount(e.payer.PublicKey(), mint.PublicKey(), MinimumBalance(token.MintSize), token.MintSize, token.ProgramID),
		token.InitializeMint2(mint.PublicKey(), 6, authority, types.None[types.PublicKey]()),
	}, mint)
	return mint.PublicKey()
}

func (e *testEnv) tokenBalance(key types.PublicKey) uint64 {
	e.t.Helper()
	a := e.account(key)
	if a == nil {
		e.t.Fatalf("token account %s does not exist", key)
	}
	acct, err := token.DecodeAccount(a.Data)
	if err != nil {
		e.t.Fatalf("DecodeAccount() error: %v", err)
	}
	return acct.Amount
}

// wantFailure asserts that err is a preflight rejection with want as its
// execution error.
func wantFailure(t *testing.T, err error, want *tx.ExecutionError) {
	t.Helper()
	var pe *PreflightError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want preflight failure %v", err, want)
	}
	got := pe.Result.Err
	if got.Kind != want.Kind || got.Reason != want.Reason || got.Code != want.Code {
		for _, line := range pe.Result.Logs {
			t.Log(line)
		}
		t.Fatalf("error = %v, want %v", got, want)
	}
}

// wantCustom asserts that err is a preflight rejection with custom error
// code raised by instruction index.
func wantCustom(t *testing.T, err error, index int, code uint32) {
	t.Helper()
	wantFailure(t, err, tx.CustomFailure(index, code))
	var pe *PreflightError
	errors.As(err, &pe)
	if pe.Result.Err.Instruction != index {
		t.Fatalf("failing instruction = %d, want %d", pe.Result.Err.Instruction, index)
	}
}

func pda(t *testing.T) func(types.PublicKey, uint8, error) types.PublicKey {
	return func(k types.PublicKey, _ uint8, err error) types.PublicKey {
		t.Helper()
		if err != nil {
			t.Fatalf("derive address: %v", err)
		}
		return k
	}
}
