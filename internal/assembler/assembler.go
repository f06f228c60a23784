// Package assembler turns instruction lists into messages, transactions or
// landed signatures.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Mode selects how far Build takes a set of instructions.
type Mode int

// Build modes.
const (
	// ModeInstructions returns the instructions untouched.
	ModeInstructions Mode = iota
	// ModeMessage returns an unsigned v0 message.
	ModeMessage
	// ModeTransaction returns an unsigned v0 transaction.
	ModeTransaction
	// ModeSendConfirm signs, submits and waits for confirmed commitment.
	ModeSendConfirm
	// ModeSendFinalize signs, submits and waits for finalized commitment.
	ModeSendFinalize
)

var modeNames = map[Mode]string{
	ModeInstructions: "instructions",
	ModeMessage:      "message",
	ModeTransaction:  "transaction",
	ModeSendConfirm:  "confirm",
	ModeSendFinalize: "finalize",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a mode name as printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown build mode %q", s)
}

// Sends reports whether the mode submits the transaction.
func (m Mode) Sends() bool {
	return m == ModeSendConfirm || m == ModeSendFinalize
}

// Conn is the node API the assembler needs. *rpcclient.Client satisfies it.
type Conn interface {
	Simulator
	GetLatestBlockhash(ctx context.Context, commitment rpcclient.Commitment) (rpcclient.LatestBlockhash, error)
	SendTransaction(ctx context.Context, t *tx.Transaction, opts rpcclient.SendOptions) (types.Signature, error)
	WaitForCommitment(ctx context.Context, sig types.Signature, commitment rpcclient.Commitment, poll, timeout time.Duration) (*rpcclient.SignatureStatus, error)
}

// Config holds assembler defaults. Per-build Options override them.
type Config struct {
	// CUFactor scales simulated consumption; zero means DefaultCUFactor.
	CUFactor float64
	// Prepad pads every simulated draft with the maximum unit limit.
	Prepad bool
	// PollInterval is the delay between signature status polls.
	PollInterval time.Duration
	// ConfirmTimeout bounds each wait for a commitment level. Zero waits
	// until the context is done.
	ConfirmTimeout time.Duration
	// SkipPreflight submits without the node's preflight simulation.
	SkipPreflight bool
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		CUFactor:       DefaultCUFactor,
		PollInterval:   500 * time.Millisecond,
		ConfirmTimeout: 90 * time.Second,
	}
}

// Options configure one Build call.
type Options struct {
	Mode Mode
	// CUPrice enables compute budget estimation at this price in
	// micro-lamports per unit. Only the send modes estimate.
	CUPrice types.Option[uint64]
	// CUFactor overrides Config.CUFactor when non-zero.
	CUFactor float64
	// Prepad pads the simulated draft. It is combined with Config.Prepad.
	Prepad bool
	// LookupTables compress the message. They never change its meaning.
	LookupTables []tx.LookupTable
	// Signers may contain nil entries and duplicates.
	Signers []crypto.Signer
}

// Result is the output of Build. Which fields are set depends on Mode.
type Result struct {
	Mode         Mode
	Instructions []tx.Instruction
	Message      *tx.Message
	Transaction  *tx.Transaction
	// Budget is set when compute budget estimation ran.
	Budget *BudgetPlan
	// Signature and Status are set by the send modes.
	Signature types.Signature
	Status    *rpcclient.SignatureStatus
}

// Assembler compiles, signs and submits transactions.
type Assembler struct {
	conn   Conn
	cfg    Config
	logger zerolog.Logger
}

// New creates an assembler talking to conn.
func New(conn Conn, cfg Config) *Assembler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Assembler{
		conn:   conn,
		cfg:    cfg,
		logger: klog.Assembler,
	}
}

// Config returns the assembler defaults.
func (a *Assembler) Config() Config {
	return a.cfg
}

// Build takes ixs paid for by payer as far as opts.Mode asks.
func (a *Assembler) Build(ctx context.Context, ixs []tx.Instruction, payer types.PublicKey, opts Options) (*Result, error) {
	res := &Result{Mode: opts.Mode, Instructions: ixs}
	switch opts.Mode {
	case ModeInstructions:
		return res, nil
	case ModeMessage, ModeTransaction, ModeSendConfirm, ModeSendFinalize:
	default:
		return nil, fmt.Errorf("unknown build mode %d", int(opts.Mode))
	}

	t, plan, err := a.compile(ctx, ixs, payer, opts)
	if err != nil {
		return nil, err
	}
	res.Transaction = t
	res.Message = t.Message
	res.Budget = plan
	if plan != nil {
		res.Instructions = plan.Apply(ixs)
	}
	if !opts.Mode.Sends() {
		return res, nil
	}

	if err := a.sign(t, opts.Signers); err != nil {
		return nil, err
	}
	res.Signature, res.Status, err = a.send(ctx, t, opts.Mode)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// compile builds the unsigned transaction. The send modes estimate the
// compute budget first when a price is set.
func (a *Assembler) compile(ctx context.Context, ixs []tx.Instruction, payer types.PublicKey, opts Options) (*tx.Transaction, *BudgetPlan, error) {
	t, err := a.transaction(ctx, ixs, payer, opts.LookupTables)
	if err != nil {
		return nil, nil, err
	}
	price, ok := opts.CUPrice.Get()
	if !ok || !opts.Mode.Sends() {
		return t, nil, nil
	}

	factor := opts.CUFactor
	if factor == 0 {
		factor = a.cfg.CUFactor
	}
	plan, err := Estimate(ctx, a.conn, Draft{
		Payer:        payer,
		Instructions: ixs,
		Blockhash:    t.Message.RecentBlockhash,
		Tables:       opts.LookupTables,
	}, EstimateOptions{
		UnitPrice: price,
		Factor:    factor,
		Prepad:    opts.Prepad || a.cfg.Prepad,
	})
	if err != nil {
		return nil, nil, err
	}

	// Rebuild from scratch so nothing from the draft is reused.
	t, err = a.transaction(ctx, plan.Apply(ixs), payer, opts.LookupTables)
	if err != nil {
		return nil, nil, err
	}
	return t, &plan, nil
}

func (a *Assembler) transaction(ctx context.Context, ixs []tx.Instruction, payer types.PublicKey, tables []tx.LookupTable) (*tx.Transaction, error) {
	bh, err := a.conn.GetLatestBlockhash(ctx, rpcclient.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	t, err := tx.NewBuilder(payer).
		AddInstruction(ixs...).
		SetRecentBlockhash(bh.Blockhash).
		WithLookupTables(tables...).
		Build()
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}
	if size := t.Size(); size > tx.PacketDataSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", tx.ErrTransactionTooLarge, size, tx.PacketDataSize)
	}
	return t, nil
}

// sign signs t once with every distinct signer and checks that no
// required signature is missing.
func (a *Assembler) sign(t *tx.Transaction, signers []crypto.Signer) error {
	unique := DedupeSigners(signers)
	if err := t.Sign(unique...); err != nil {
		return err
	}
	for i, k := range t.Message.SignerKeys() {
		if t.Signatures[i].IsZero() {
			return fmt.Errorf("%w: %s", tx.ErrMissingSignature, k)
		}
	}
	return nil
}

func (a *Assembler) send(ctx context.Context, t *tx.Transaction, mode Mode) (types.Signature, *rpcclient.SignatureStatus, error) {
	sig, err := a.conn.SendTransaction(ctx, t, rpcclient.SendOptions{
		SkipPreflight:       a.cfg.SkipPreflight,
		PreflightCommitment: rpcclient.CommitmentConfirmed,
	})
	if err != nil {
		return types.Signature{}, nil, err
	}
	a.logger.Info().
		Str("signature", sig.String()).
		Int("size", t.Size()).
		Int("signers", len(t.Signatures)).
		Msg("Transaction sent")

	status, err := a.conn.WaitForCommitment(ctx, sig, rpcclient.CommitmentConfirmed, a.cfg.PollInterval, a.cfg.ConfirmTimeout)
	if err != nil {
		return sig, nil, err
	}
	a.logger.Info().Str("signature", sig.String()).Uint64("slot", status.Slot).Msg("Transaction confirmed")
	if mode != ModeSendFinalize {
		return sig, status, nil
	}

	status, err = a.conn.WaitForCommitment(ctx, sig, rpcclient.CommitmentFinalized, a.cfg.PollInterval, a.cfg.ConfirmTimeout)
	if err != nil {
		return sig, nil, err
	}
	a.logger.Info().Str("signature", sig.String()).Msg("Transaction finalized")
	return sig, status, nil
}
