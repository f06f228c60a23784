package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/localnet"
	"github.com/Klingon-tech/klingdrop/internal/localnet/localnettest"
	"github.com/Klingon-tech/klingdrop/internal/rpc"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestMode_ParseString(t *testing.T) {
	for _, m := range []Mode{ModeInstructions, ModeMessage, ModeTransaction, ModeSendConfirm, ModeSendFinalize} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v, want %v", m.String(), got, err, m)
		}
	}
	if _, err := ParseMode("broadcast"); err == nil {
		t.Error("ParseMode(broadcast) should fail")
	}
	if ModeTransaction.Sends() || !ModeSendFinalize.Sends() {
		t.Error("Sends() wrong")
	}
}

func TestDedupeSigners(t *testing.T) {
	a := localnettest.NewKey(t)
	b := localnettest.NewKey(t)
	var missing *crypto.PrivateKey

	got := DedupeSigners([]crypto.Signer{nil, a, b, a, missing, b, nil})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].PublicKey() != a.PublicKey() || got[1].PublicKey() != b.PublicKey() {
		t.Error("DedupeSigners() did not keep first-seen order")
	}

	if got := DedupeSigners(Signers(nil, a, nil)); len(got) != 1 {
		t.Errorf("DedupeSigners(Signers(nil, a, nil)) len = %d, want 1", len(got))
	}
}

// connStub is a Conn that accepts every send and reports it confirmed.
type connStub struct {
	simStub
	blockhashes int
	sent        []*tx.Transaction
}

func (c *connStub) GetLatestBlockhash(context.Context, rpcclient.Commitment) (rpcclient.LatestBlockhash, error) {
	c.blockhashes++
	return rpcclient.LatestBlockhash{Blockhash: types.Hash{byte(c.blockhashes)}, LastValidBlockHeight: 100}, nil
}

func (c *connStub) SendTransaction(_ context.Context, t *tx.Transaction, _ rpcclient.SendOptions) (types.Signature, error) {
	c.sent = append(c.sent, t)
	return t.Signatures[0], nil
}

func (c *connStub) WaitForCommitment(context.Context, types.Signature, rpcclient.Commitment, time.Duration, time.Duration) (*rpcclient.SignatureStatus, error) {
	return &rpcclient.SignatureStatus{Slot: 1, ConfirmationStatus: rpc.StatusConfirmed}, nil
}

func TestBuild_Instructions(t *testing.T) {
	a := New(nil, DefaultConfig())
	ixs := []tx.Instruction{system.Transfer(types.PublicKey{1}, types.PublicKey{2}, 3)}
	res, err := a.Build(context.Background(), ixs, types.PublicKey{1}, Options{Mode: ModeInstructions})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(res.Instructions) != 1 || res.Message != nil || res.Transaction != nil {
		t.Errorf("result = %+v, want instructions only", res)
	}
}

func TestBuild_MessageAndTransaction(t *testing.T) {
	conn := &connStub{}
	a := New(conn, DefaultConfig())
	payer := types.PublicKey{1}
	ixs := []tx.Instruction{system.Transfer(payer, types.PublicKey{2}, 3)}

	for _, mode := range []Mode{ModeMessage, ModeTransaction} {
		res, err := a.Build(context.Background(), ixs, payer, Options{Mode: mode})
		if err != nil {
			t.Fatalf("Build(%s) error: %v", mode, err)
		}
		if res.Message == nil || res.Message.FeePayer() != payer {
			t.Errorf("Build(%s) message = %+v", mode, res.Message)
		}
		if res.Transaction.IsSigned() {
			t.Errorf("Build(%s) returned a signed transaction", mode)
		}
		if res.Budget != nil {
			t.Errorf("Build(%s) estimated without a price", mode)
		}
	}
	if len(conn.seen) != 0 {
		t.Errorf("simulated %d times without a price", len(conn.seen))
	}
}

func TestBuild_PriceIgnoredWithoutSend(t *testing.T) {
	conn := &connStub{simStub: simStub{res: &rpcclient.SimulationResult{UnitsConsumed: units(1000)}}}
	a := New(conn, DefaultConfig())
	payer := types.PublicKey{1}
	ixs := []tx.Instruction{system.Transfer(payer, types.PublicKey{2}, 3)}

	for _, mode := range []Mode{ModeMessage, ModeTransaction} {
		res, err := a.Build(context.Background(), ixs, payer, Options{Mode: mode, CUPrice: types.Some[uint64](50)})
		if err != nil {
			t.Fatalf("Build(%s) error: %v", mode, err)
		}
		if res.Budget != nil {
			t.Errorf("Build(%s) budget = %+v, want none", mode, res.Budget)
		}
		if len(res.Message.Instructions) != 1 {
			t.Errorf("Build(%s) instructions = %d, want 1", mode, len(res.Message.Instructions))
		}
	}
	if len(conn.seen) != 0 {
		t.Errorf("simulated %d times, want 0", len(conn.seen))
	}
	if conn.blockhashes != 2 {
		t.Errorf("fetched %d blockhashes, want 2", conn.blockhashes)
	}
}

func TestBuild_EstimateRebuilds(t *testing.T) {
	conn := &connStub{simStub: simStub{res: &rpcclient.SimulationResult{UnitsConsumed: units(1000)}}}
	a := New(conn, DefaultConfig())
	key := localnettest.NewKey(t)
	payer := key.PublicKey()
	ixs := []tx.Instruction{system.Transfer(payer, types.PublicKey{2}, 3)}

	res, err := a.Build(context.Background(), ixs, payer, Options{
		Mode:    ModeSendConfirm,
		CUPrice: types.Some[uint64](50),
		Signers: Signers(key),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(conn.sent) != 1 || conn.sent[0] != res.Transaction {
		t.Fatalf("sent %d transactions, want the built one", len(conn.sent))
	}
	if res.Budget == nil || *res.Budget != (BudgetPlan{UnitLimit: 1450, UnitPrice: 50}) {
		t.Fatalf("budget = %+v, want {1450 50}", res.Budget)
	}
	if conn.blockhashes != 2 {
		t.Errorf("fetched %d blockhashes, want 2", conn.blockhashes)
	}
	if res.Message.RecentBlockhash == conn.seen[0].Message.RecentBlockhash {
		t.Error("final message reuses the draft blockhash")
	}

	msg := res.Message
	if len(msg.Instructions) != 3 {
		t.Fatalf("instructions = %d, want 3", len(msg.Instructions))
	}
	var limits computebudget.Limits
	for i, want := range []struct {
		limit bool
		value uint64
	}{{true, 1450}, {false, 50}} {
		ci := msg.Instructions[i]
		if msg.StaticAccountKeys[ci.ProgramIDIndex] != computebudget.ProgramID {
			t.Fatalf("instruction %d is not a compute budget directive", i)
		}
		if err := limits.Apply(ci.Data); err != nil {
			t.Fatalf("Apply() error: %v", err)
		}
		if want.limit && uint64(limits.UnitLimit) != want.value {
			t.Errorf("unit limit = %d, want %d", limits.UnitLimit, want.value)
		}
		if !want.limit && limits.UnitPrice != want.value {
			t.Errorf("unit price = %d, want %d", limits.UnitPrice, want.value)
		}
	}
	if len(res.Instructions) != 3 || len(ixs) != 1 {
		t.Errorf("result instructions = %d, input = %d, want 3 and 1", len(res.Instructions), len(ixs))
	}
}

func TestBuild_SimulationFailureStops(t *testing.T) {
	conn := &connStub{simStub: simStub{res: &rpcclient.SimulationResult{Err: tx.NewExecutionError(tx.KindInsufficientFundsForFee)}}}
	a := New(conn, DefaultConfig())
	payer := types.PublicKey{1}
	_, err := a.Build(context.Background(), []tx.Instruction{system.Transfer(payer, types.PublicKey{2}, 3)}, payer,
		Options{Mode: ModeSendConfirm, CUPrice: types.Some[uint64](1)})
	if !errors.Is(err, ErrSimulationFailed) {
		t.Errorf("Build() error = %v, want ErrSimulationFailed", err)
	}
}

func TestBuild_TooLarge(t *testing.T) {
	a := New(&connStub{}, DefaultConfig())
	payer := types.PublicKey{1}
	big := tx.Instruction{ProgramID: types.PublicKey{7}, Data: make([]byte, tx.PacketDataSize)}
	_, err := a.Build(context.Background(), []tx.Instruction{big}, payer, Options{Mode: ModeMessage})
	if !errors.Is(err, tx.ErrTransactionTooLarge) {
		t.Errorf("Build() error = %v, want ErrTransactionTooLarge", err)
	}
}

func TestBuild_MissingSigner(t *testing.T) {
	a := New(&connStub{}, DefaultConfig())
	payer := localnettest.NewKey(t)
	other := localnettest.NewKey(t)
	ix := system.Transfer(other.PublicKey(), payer.PublicKey(), 1)
	_, err := a.Build(context.Background(), []tx.Instruction{ix}, payer.PublicKey(), Options{
		Mode:    ModeSendConfirm,
		Signers: Signers(payer, nil),
	})
	if !errors.Is(err, tx.ErrMissingSignature) {
		t.Errorf("Build() error = %v, want ErrMissingSignature", err)
	}
}

func newLive(t *testing.T) (*localnettest.Harness, *Assembler) {
	t.Helper()
	h := localnettest.New(t)
	h.AutoAdvance(10 * time.Millisecond)
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ConfirmTimeout = 10 * time.Second
	return h, New(h.Client, cfg)
}

func TestBuild_SendConfirmDedupesSigners(t *testing.T) {
	h, a := newLive(t)
	from := localnettest.NewKey(t)
	h.Fund(from.PublicKey(), localnet.LamportsPerSOL)
	to := types.PublicKey{42}

	ixs := []tx.Instruction{
		system.Transfer(from.PublicKey(), to, 1_000_000),
		system.Transfer(from.PublicKey(), to, 2_000_000),
	}
	res, err := a.Build(context.Background(), ixs, h.Payer.PublicKey(), Options{
		Mode:    ModeSendConfirm,
		Signers: Signers(h.Payer, nil, from, h.Payer, from, nil),
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(res.Transaction.Signatures) != 2 {
		t.Errorf("signatures = %d, want 2", len(res.Transaction.Signatures))
	}
	if err := res.Transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	if !res.Status.Reached(rpc.StatusConfirmed) {
		t.Errorf("status = %s, want at least confirmed", res.Status.ConfirmationStatus)
	}
	if got := h.Balance(to); got != 3_000_000 {
		t.Errorf("recipient balance = %d, want 3000000", got)
	}
}

func TestBuild_SendFinalizeWithBudget(t *testing.T) {
	h, a := newLive(t)
	to := types.PublicKey{43}
	before := h.Balance(h.Payer.PublicKey())

	res, err := a.Build(context.Background(),
		[]tx.Instruction{system.Transfer(h.Payer.PublicKey(), to, localnet.LamportsPerSOL)},
		h.Payer.PublicKey(),
		Options{Mode: ModeSendFinalize, CUPrice: types.Some[uint64](1_000_000), Signers: Signers(h.Payer)})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if res.Status.ConfirmationStatus != rpc.StatusFinalized {
		t.Errorf("status = %s, want finalized", res.Status.ConfirmationStatus)
	}
	if res.Budget == nil || res.Budget.UnitLimit == 0 {
		t.Fatalf("budget = %+v, want estimated plan", res.Budget)
	}
	wantFee := uint64(tx.LamportsPerSignature) + res.Budget.PriorityFee()
	if got := before - h.Balance(h.Payer.PublicKey()); got != localnet.LamportsPerSOL+wantFee {
		t.Errorf("payer spent %d, want %d", got, localnet.LamportsPerSOL+wantFee)
	}
}

func TestBuild_SendPreflightFailure(t *testing.T) {
	h, a := newLive(t)
	broke := localnettest.NewKey(t)
	_, err := a.Build(context.Background(),
		[]tx.Instruction{system.Transfer(h.Payer.PublicKey(), types.PublicKey{44}, 10)},
		h.Payer.PublicKey(),
		Options{Mode: ModeSendConfirm, Signers: Signers(h.Payer, broke)})
	if !errors.Is(err, tx.ErrUnknownSigner) {
		t.Fatalf("Build() with unrelated signer error = %v, want ErrUnknownSigner", err)
	}

	// Below rent-exempt minimum for a new account: rejected in preflight.
	_, err = a.Build(context.Background(),
		[]tx.Instruction{system.Transfer(h.Payer.PublicKey(), types.PublicKey{44}, 10)},
		h.Payer.PublicKey(),
		Options{Mode: ModeSendConfirm, Signers: Signers(h.Payer)})
	var rpcErr *rpcclient.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodePreflightFailure {
		t.Errorf("Build() error = %v, want preflight failure", err)
	}
}
