package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

const (
	// DefaultCUFactor scales simulated consumption into a unit limit.
	DefaultCUFactor = 1.2
	// MinCUMargin is the smallest headroom kept above simulated consumption.
	MinCUMargin = 450
)

// Estimation errors.
var (
	ErrSimulationFailed = errors.New("simulation failed")
	ErrInvalidFactor    = errors.New("compute unit factor must be at least 1.0")
)

// SimulationError reports a simulation that errored or did not report its
// consumption. The full node response is kept for diagnostics.
type SimulationError struct {
	Result *rpcclient.SimulationResult
}

func (e *SimulationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrSimulationFailed.Error())
	if e.Result == nil {
		return b.String()
	}
	if e.Result.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Result.Err)
	} else {
		b.WriteString(": no units consumed reported")
	}
	if full, err := json.MarshalIndent(e.Result, "", "  "); err == nil {
		b.WriteString("\nsimulation result:\n")
		b.Write(full)
	}
	return b.String()
}

// Unwrap exposes ErrSimulationFailed and the execution error, if any.
func (e *SimulationError) Unwrap() []error {
	errs := []error{ErrSimulationFailed}
	if e.Result != nil && e.Result.Err != nil {
		errs = append(errs, e.Result.Err)
	}
	return errs
}

// BudgetPlan is the compute budget chosen for one transaction.
type BudgetPlan struct {
	UnitLimit uint32
	UnitPrice uint64
}

// Instructions returns the budget directives in the order they lead a
// transaction: limit first, then price.
func (p BudgetPlan) Instructions() []tx.Instruction {
	return []tx.Instruction{
		computebudget.SetComputeUnitLimit(p.UnitLimit),
		computebudget.SetComputeUnitPrice(p.UnitPrice),
	}
}

// PriorityFee is the most the plan adds to the transaction fee.
func (p BudgetPlan) PriorityFee() uint64 {
	return tx.PriorityFee(p.UnitLimit, p.UnitPrice)
}

// Apply returns ixs led by the budget directives. ixs is not modified.
func (p BudgetPlan) Apply(ixs []tx.Instruction) []tx.Instruction {
	out := make([]tx.Instruction, 0, len(ixs)+2)
	out = append(out, p.Instructions()...)
	return append(out, ixs...)
}

// ComputeLimit derives a unit limit from simulated consumption: units
// scaled by factor and rounded down, never less than MinCUMargin above
// units, and capped at the network maximum.
func ComputeLimit(units uint64, factor float64) uint32 {
	limit := uint64(math.Floor(float64(units) * factor))
	if limit < units+MinCUMargin {
		limit = units + MinCUMargin
	}
	if limit > uint64(computebudget.MaxComputeUnitLimit) {
		return computebudget.MaxComputeUnitLimit
	}
	return uint32(limit)
}

// Simulator runs transactions without committing them. *rpcclient.Client
// satisfies it.
type Simulator interface {
	SimulateTransaction(ctx context.Context, t *tx.Transaction, opts rpcclient.SimulateOptions) (*rpcclient.SimulationResult, error)
}

// Draft is a compiled-but-unsigned transaction description.
type Draft struct {
	Payer        types.PublicKey
	Instructions []tx.Instruction
	Blockhash    types.Hash
	Tables       []tx.LookupTable
}

// EstimateOptions configure Estimate.
type EstimateOptions struct {
	UnitPrice uint64
	// Factor defaults to DefaultCUFactor when zero.
	Factor float64
	// Prepad prepends a maximum unit limit to the simulated draft so that
	// simulation is not cut short by the default per-instruction limit.
	Prepad bool
}

// Estimate simulates draft and returns the budget plan for it. The draft
// is not changed; callers rebuild the transaction with plan.Apply and a
// fresh blockhash.
func Estimate(ctx context.Context, sim Simulator, draft Draft, opts EstimateOptions) (BudgetPlan, error) {
	factor := opts.Factor
	if factor == 0 {
		factor = DefaultCUFactor
	}
	if factor < 1 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return BudgetPlan{}, fmt.Errorf("%w: %v", ErrInvalidFactor, factor)
	}

	ixs := draft.Instructions
	if opts.Prepad {
		ixs = append([]tx.Instruction{computebudget.SetComputeUnitLimit(computebudget.MaxComputeUnitLimit)}, ixs...)
	}
	msg, err := tx.CompileMessage(draft.Payer, ixs, draft.Blockhash, draft.Tables)
	if err != nil {
		return BudgetPlan{}, fmt.Errorf("compile draft: %w", err)
	}

	res, err := sim.SimulateTransaction(ctx, tx.NewTransaction(msg), rpcclient.SimulateOptions{
		ReplaceRecentBlockhash: true,
		Commitment:             rpcclient.CommitmentConfirmed,
	})
	if err != nil {
		return BudgetPlan{}, fmt.Errorf("simulate: %w", err)
	}
	if res.Err != nil || res.UnitsConsumed == nil || *res.UnitsConsumed == 0 {
		return BudgetPlan{}, &SimulationError{Result: res}
	}

	plan := BudgetPlan{
		UnitLimit: ComputeLimit(*res.UnitsConsumed, factor),
		UnitPrice: opts.UnitPrice,
	}
	klog.Assembler.Debug().
		Uint64("units", *res.UnitsConsumed).
		Float64("factor", factor).
		Uint32("limit", plan.UnitLimit).
		Uint64("price", plan.UnitPrice).
		Bool("prepad", opts.Prepad).
		Msg("Compute budget estimated")
	return plan, nil
}
