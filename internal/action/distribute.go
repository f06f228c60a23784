package action

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// InitManagerRequest creates the distribute manager. Payer and Admin sign.
type InitManagerRequest struct {
	BuildOptions
	Payer   types.PublicKey
	Admin   types.PublicKey
	UserFee uint32
}

// InitManager creates the singleton manager and its fee receiver.
func (b *Builder) InitManager(ctx context.Context, req InitManagerRequest) (*assembler.Result, error) {
	ix := b.programs.Distribute.InitManager(req.Payer, req.Admin, req.UserFee)
	return b.build(ctx, "init manager", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// ManagerAdminRequest is an operation signed by the manager admin.
type ManagerAdminRequest struct {
	BuildOptions
	Payer types.PublicKey
	Admin types.PublicKey
}

func (b *Builder) checkManagerAdmin(ctx context.Context, admin types.PublicKey) error {
	m, err := b.reader.Manager(ctx, b.programs.Distribute)
	if err != nil {
		return err
	}
	return checkAuthority("manager admin", admin, m.Admin)
}

// UpdateManagerRequest changes the manager admin, its fee, or both.
type UpdateManagerRequest struct {
	ManagerAdminRequest
	NewAdmin types.OptionalKey
	NewFee   types.Option[uint32]
}

// UpdateManager updates the manager.
func (b *Builder) UpdateManager(ctx context.Context, req UpdateManagerRequest) (*assembler.Result, error) {
	if err := b.checkManagerAdmin(ctx, req.Admin); err != nil {
		return nil, fmt.Errorf("update manager: %w", err)
	}
	ix := b.programs.Distribute.UpdateManager(req.Payer, req.Admin, req.NewAdmin, req.NewFee)
	return b.build(ctx, "update manager", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// ClaimManagerFeeRequest withdraws collected distribution fees.
type ClaimManagerFeeRequest struct {
	ManagerAdminRequest
	Receiver types.PublicKey
	Amount   uint64
}

// ClaimManagerFee moves Amount lamports from the fee receiver to Receiver.
func (b *Builder) ClaimManagerFee(ctx context.Context, req ClaimManagerFeeRequest) (*assembler.Result, error) {
	if err := b.checkManagerAdmin(ctx, req.Admin); err != nil {
		return nil, fmt.Errorf("claim manager fee: %w", err)
	}
	ix := b.programs.Distribute.ClaimFee(req.Payer, req.Receiver, req.Admin, req.Amount)
	return b.build(ctx, "claim manager fee", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// InitDistributeProjectRequest creates a distribute project. Payer and the
// Project key sign.
type InitDistributeProjectRequest struct {
	BuildOptions
	Payer   types.PublicKey
	Admin   types.PublicKey
	Project types.PublicKey
}

// InitDistributeProject creates a project administered by Admin.
func (b *Builder) InitDistributeProject(ctx context.Context, req InitDistributeProjectRequest) (*assembler.Result, error) {
	ix := b.programs.Distribute.InitProject(req.Payer, req.Admin, req.Project)
	return b.build(ctx, "init distribute project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// ProjectAdminRequest is an operation signed by a distribute project admin.
type ProjectAdminRequest struct {
	BuildOptions
	Payer   types.PublicKey
	Admin   types.PublicKey
	Project types.PublicKey
}

func (b *Builder) checkProjectAdmin(ctx context.Context, project, admin types.PublicKey) error {
	pr, err := b.reader.DistributeProject(ctx, b.programs.Distribute, project)
	if err != nil {
		return err
	}
	return checkAuthority("project admin", admin, pr.Admin)
}

// UpdateDistributeProjectRequest hands a project to a new admin.
type UpdateDistributeProjectRequest struct {
	ProjectAdminRequest
	NewAdmin types.PublicKey
}

// UpdateDistributeProject changes the project admin.
func (b *Builder) UpdateDistributeProject(ctx context.Context, req UpdateDistributeProjectRequest) (*assembler.Result, error) {
	if err := b.checkProjectAdmin(ctx, req.Project, req.Admin); err != nil {
		return nil, fmt.Errorf("update distribute project: %w", err)
	}
	ix := b.programs.Distribute.UpdateProject(req.Payer, req.Admin, req.Project, req.NewAdmin)
	return b.build(ctx, "update distribute project", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// TransferDistributeMintRequest hands a project mint to a new authority.
type TransferDistributeMintRequest struct {
	ProjectAdminRequest
	Mint         types.PublicKey
	NewAuthority types.PublicKey
}

// TransferDistributeMintAuthority moves the mint authority of Mint from the
// project PDA to NewAuthority.
func (b *Builder) TransferDistributeMintAuthority(ctx context.Context, req TransferDistributeMintRequest) (*assembler.Result, error) {
	if err := b.checkProjectAdmin(ctx, req.Project, req.Admin); err != nil {
		return nil, fmt.Errorf("transfer mint authority: %w", err)
	}
	ix := b.programs.Distribute.TransferMintAuthority(req.Payer, req.Admin, req.Project, req.Mint, req.NewAuthority)
	return b.build(ctx, "transfer mint authority", []tx.Instruction{ix}, req.Payer, req.BuildOptions)
}

// DistributeRequest mints to many receivers in one transaction. Payer and
// Admin sign.
type DistributeRequest struct {
	ProjectAdminRequest
	Mint      types.PublicKey
	Receivers []distribute.Receiver
}

// Distribute mints each receiver's amount. The simulated draft is always
// padded to the maximum unit limit since large batches exceed the default.
func (b *Builder) Distribute(ctx context.Context, req DistributeRequest) (*assembler.Result, error) {
	if len(req.Receivers) == 0 {
		return nil, fmt.Errorf("distribute: %w", ErrNoReceivers)
	}
	if limit := distribute.MaxReceivers(len(req.LookupTables) > 0); len(req.Receivers) > limit {
		return nil, fmt.Errorf("distribute: %w: %d, max %d", ErrTooManyReceivers, len(req.Receivers), limit)
	}

	dp := b.programs.Distribute
	var mint token.Mint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.checkProjectAdmin(gctx, req.Project, req.Admin)
	})
	g.Go(func() (err error) {
		mint, err = b.reader.Mint(gctx, req.Mint)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	want, _, err := dp.FindMintAuthority(req.Project, req.Mint)
	if err != nil {
		return nil, fmt.Errorf("distribute: derive mint authority: %w", err)
	}
	if err := checkMintAuthority(mint, want); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}

	ix := dp.Distribute(distribute.DistributeParams{
		Payer:     req.Payer,
		Admin:     req.Admin,
		Project:   req.Project,
		Mint:      req.Mint,
		Receivers: req.Receivers,
	})
	opts := req.BuildOptions
	opts.Prepad = true
	return b.build(ctx, "distribute", []tx.Instruction{ix}, req.Payer, opts)
}

// DistributeTableRequest creates a lookup table for a project's
// distributions. Payer and Authority sign.
type DistributeTableRequest struct {
	BuildOptions
	Payer types.PublicKey
	// Authority owns the table.
	Authority types.PublicKey
	Project   types.PublicKey
	Mint      types.PublicKey
	// FeePayer is the distribution payer to store in the table, if known.
	FeePayer types.OptionalKey
}

// BuildDistributeLookupTable creates and fills a lookup table with the
// accounts shared by every distribution of a project and returns the table
// address. The table is usable one slot after the transaction lands.
func (b *Builder) BuildDistributeLookupTable(ctx context.Context, req DistributeTableRequest) (types.PublicKey, *assembler.Result, error) {
	dp := b.programs.Distribute
	var (
		project distribute.Project
		slot    uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		project, err = b.reader.DistributeProject(gctx, dp, req.Project)
		return err
	})
	g.Go(func() (err error) {
		slot, err = b.reader.Slot(gctx, rpcclient.CommitmentFinalized)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.PublicKey{}, nil, fmt.Errorf("distribute lookup table: %w", err)
	}

	create, table, err := lookuptable.Create(req.Authority, req.Payer, slot)
	if err != nil {
		return types.PublicKey{}, nil, fmt.Errorf("distribute lookup table: %w", err)
	}
	addrs := dp.LookupAddresses(req.FeePayer, project.Admin, req.Project, req.Mint, computebudget.ProgramID)
	ixs := []tx.Instruction{
		create,
		lookuptable.Extend(table, req.Authority, req.Payer, addrs),
	}
	res, err := b.build(ctx, "distribute lookup table", ixs, req.Payer, req.BuildOptions)
	if err != nil {
		return types.PublicKey{}, nil, err
	}
	return table, res, nil
}
