// Command klingdrop-demo boots an in-process local ledger from scratch and
// drives an airdrop and a distribution through the action builder.
//
// Usage: go run ./cmd/klingdrop-demo/
//
// It writes a genesis funding a fresh payer, starts a memory-backed ledger
// behind its JSON-RPC server, then over RPC creates a nonce project, an
// airdrop project and a mint, claims twice with admin signatures, and
// distributes to a batch of receivers. Every step is checked against the
// ledger state. Ctrl+C for early shutdown.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/action"
	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/ledger"
	"github.com/Klingon-tech/klingdrop/internal/localnet"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/node"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

const (
	numClaims    = 2
	claimAmount  = 5_000
	numReceivers = 8
	slotInterval = 50 * time.Millisecond
)

// demo groups the client side of the scenario.
type demo struct {
	logger   zerolog.Logger
	client   *rpcclient.Client
	builder  *action.Builder
	asm      *assembler.Assembler
	programs action.Programs
	payer    *crypto.PrivateKey
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("demo")

	logger.Info().Msg("=== Klingdrop Local Ledger Demo ===")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Phase 1: Genesis + ledger ───────────────────────────────────────

	dataDir, err := os.MkdirTemp("", "klingdrop-demo-*")
	if err != nil {
		fatal(logger, "create data dir", err)
	}
	defer os.RemoveAll(dataDir)

	payer := mustKey(logger)
	genesis := config.DefaultGenesis()
	genesis.Name = "klingdrop-demo"
	genesis.Alloc[payer.PublicKey().String()] = 1_000 * localnet.LamportsPerSOL
	genesisPath := filepath.Join(dataDir, "genesis.json")
	if err := genesis.Save(genesisPath); err != nil {
		fatal(logger, "write genesis", err)
	}

	cfg := config.DefaultLocalnet()
	cfg.DataDir = dataDir
	cfg.Localnet.DB = config.DBMemory
	cfg.Localnet.Port = 0
	cfg.Localnet.SlotInterval = slotInterval
	cfg.Localnet.Genesis = genesisPath
	cfg.Log.Level = "warn"

	n, err := node.New(cfg)
	if err != nil {
		fatal(logger, "create node", err)
	}
	if err := n.Start(); err != nil {
		fatal(logger, "start node", err)
	}
	defer n.Stop()
	klog.Init("info", false, "")
	logger = klog.WithComponent("demo")
	logger.Info().Str("rpc", n.RPCURL()).Str("payer", payer.PublicKey().String()).Msg("Ledger running")

	d := newDemo(logger, n.RPCURL(), payer)
	if err := d.client.GetHealth(ctx); err != nil {
		fatal(logger, "health check", err)
	}
	balance, err := d.client.GetBalance(ctx, payer.PublicKey(), rpcclient.CommitmentConfirmed)
	if err != nil {
		fatal(logger, "payer balance", err)
	}
	logger.Info().Uint64("lamports", balance).Msg("Payer funded by genesis")

	// ── Phase 2: Airdrop ────────────────────────────────────────────────

	if err := d.runAirdrop(ctx); err != nil {
		fatal(logger, "airdrop scenario", err)
	}

	// ── Phase 3: Distribute ─────────────────────────────────────────────

	if err := d.runDistribute(ctx); err != nil {
		fatal(logger, "distribute scenario", err)
	}

	slot, _ := d.client.GetSlot(ctx, rpcclient.CommitmentFinalized)
	logger.Info().Uint64("finalized_slot", slot).Msg("=== Demo complete ===")
}

func newDemo(logger zerolog.Logger, url string, payer *crypto.PrivateKey) *demo {
	client := rpcclient.New(url)
	programs := action.DefaultPrograms()
	acfg := assembler.DefaultConfig()
	acfg.PollInterval = slotInterval / 2
	acfg.ConfirmTimeout = 30 * time.Second
	asm := assembler.New(client, acfg)
	return &demo{
		logger:   logger,
		client:   client,
		builder:  action.New(ledger.NewReader(client, programs.NonceVerify), asm, programs),
		asm:      asm,
		programs: programs,
		payer:    payer,
	}
}

// send returns confirm-mode options with a priority fee, signed by the
// payer and signers.
func (d *demo) send(signers ...*crypto.PrivateKey) action.BuildOptions {
	return action.BuildOptions{
		Mode:    assembler.ModeSendConfirm,
		CUPrice: types.Some[uint64](1_000),
		Signers: assembler.Signers(append([]*crypto.PrivateKey{d.payer}, signers...)...),
	}
}

func (d *demo) runAirdrop(ctx context.Context) error {
	payer := d.payer.PublicKey()
	admin := mustKey(d.logger)
	claimant := mustKey(d.logger)

	nonceID := mustKey(d.logger)
	if _, err := d.builder.InitializeNonceProject(ctx, action.InitializeNonceProjectRequest{
		BuildOptions: d.send(nonceID),
		InitializeNonceProjectParams: nonceverify.InitializeNonceProjectParams{
			Payer:     payer,
			ProjectID: nonceID.PublicKey(),
			Admin:     types.None[types.PublicKey](),
			UserFee:   10,
		},
	}); err != nil {
		return err
	}

	projectID := mustKey(d.logger).PublicKey()
	airdropProject, _, err := d.builder.InitializeAirdropProject(ctx, action.InitializeAirdropProjectRequest{
		BuildOptions: d.send(),
		Payer:        payer,
		ProjectID:    projectID,
		Admin:        admin.PublicKey(),
	})
	if err != nil {
		return err
	}

	businessID := mustKey(d.logger).PublicKey()
	bpAddr, err := d.builder.BusinessProjectAddress(nonceID.PublicKey(), businessID)
	if err != nil {
		return err
	}
	authority, _, err := d.programs.Airdrop.FindBusinessAuthority(airdropProject, bpAddr)
	if err != nil {
		return err
	}
	businessProject, _, err := d.builder.RegisterBusinessProject(ctx, action.RegisterBusinessProjectRequest{
		BuildOptions: d.send(),
		RegisterBusinessProjectParams: nonceverify.RegisterBusinessProjectParams{
			Payer:             payer,
			RegisterFeePayer:  payer,
			NonceProjectID:    nonceID.PublicKey(),
			BusinessProjectID: businessID,
			Authority:         authority,
			Admin:             types.None[types.PublicKey](),
		},
	})
	if err != nil {
		return err
	}

	mint, err := d.createMintFor(ctx, func(mint types.PublicKey) (types.PublicKey, error) {
		a, _, err := d.programs.Airdrop.FindMintAuthority(airdropProject, mint)
		return a, err
	})
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("airdrop_project", airdropProject.String()).
		Str("business_project", businessProject.String()).
		Str("mint", mint.String()).
		Msg("Airdrop ready")

	for i := 0; i < numClaims; i++ {
		req := action.ClaimPayloadRequest{
			AirdropProject:  airdropProject,
			BusinessProject: businessProject,
			Claimant:        claimant.PublicKey(),
			Mint:            mint,
			Amount:          big.NewInt(claimAmount),
		}
		payload, sig, err := d.builder.SignClaim(ctx, admin, req)
		if err != nil {
			return err
		}
		res, err := d.builder.Claim(ctx, action.ClaimRequest{
			BuildOptions:    d.send(claimant),
			Payer:           payer,
			NonceFeePayer:   payer,
			Claimant:        claimant.PublicKey(),
			SpaceFeePayer:   payer,
			AirdropProject:  airdropProject,
			BusinessProject: businessProject,
			Mint:            mint,
			Amount:          req.Amount,
			Signature:       sig,
		})
		if err != nil {
			return err
		}
		d.logger.Info().
			Uint32("nonce", payload.Nonce).
			Str("signature", res.Signature.String()).
			Uint32("cu_limit", res.Budget.UnitLimit).
			Msg("Claim landed")
	}

	nonce, err := d.builder.Reader().UserNonce(ctx, businessProject, claimant.PublicKey())
	if err != nil {
		return err
	}
	if nonce.Value != numClaims {
		return fmt.Errorf("nonce after claims = %d, want %d", nonce.Value, numClaims)
	}
	acct, err := d.builder.Reader().TokenAccount(ctx, ata.MustFindAddress(claimant.PublicKey(), mint))
	if err != nil {
		return err
	}
	if want := uint64(numClaims * claimAmount); acct.Amount != want {
		return fmt.Errorf("claimant balance = %d, want %d", acct.Amount, want)
	}
	d.logger.Info().Uint64("balance", acct.Amount).Uint32("nonce", nonce.Value).Msg("Airdrop verified")
	return nil
}

// createMintFor creates a mint whose authority is derived from the mint
// address itself.
func (d *demo) createMintFor(ctx context.Context, authority func(mint types.PublicKey) (types.PublicKey, error)) (types.PublicKey, error) {
	mint, err := crypto.GenerateKey()
	if err != nil {
		return types.PublicKey{}, err
	}
	auth, err := authority(mint.PublicKey())
	if err != nil {
		return types.PublicKey{}, err
	}
	payer := d.payer.PublicKey()
	ixs := []tx.Instruction{
		system.CreateAccount(payer, mint.PublicKey(), localnet.MinimumBalance(token.MintSize), token.MintSize, token.ProgramID),
		token.InitializeMint2(mint.PublicKey(), 6, payer, types.None[types.PublicKey]()),
		token.SetMintAuthority(mint.PublicKey(), payer, types.Some(auth)),
	}
	if _, err := d.asm.Build(ctx, ixs, payer, assembler.Options{
		Mode:    assembler.ModeSendConfirm,
		Signers: assembler.Signers(d.payer, mint),
	}); err != nil {
		return types.PublicKey{}, fmt.Errorf("create mint: %w", err)
	}
	return mint.PublicKey(), nil
}

func (d *demo) runDistribute(ctx context.Context) error {
	payer := d.payer.PublicKey()
	admin := mustKey(d.logger)

	if _, err := d.builder.InitManager(ctx, action.InitManagerRequest{
		BuildOptions: d.send(admin),
		Payer:        payer,
		Admin:        admin.PublicKey(),
		UserFee:      25,
	}); err != nil {
		return err
	}
	project := mustKey(d.logger)
	if _, err := d.builder.InitDistributeProject(ctx, action.InitDistributeProjectRequest{
		BuildOptions: d.send(project),
		Payer:        payer,
		Admin:        admin.PublicKey(),
		Project:      project.PublicKey(),
	}); err != nil {
		return err
	}
	mint, err := d.createMintFor(ctx, func(mint types.PublicKey) (types.PublicKey, error) {
		a, _, err := d.programs.Distribute.FindMintAuthority(project.PublicKey(), mint)
		return a, err
	})
	if err != nil {
		return err
	}

	receivers := make([]distribute.Receiver, numReceivers)
	for i := range receivers {
		receivers[i] = distribute.Receiver{Owner: mustKey(d.logger).PublicKey(), Amount: uint64(100 * (i + 1))}
	}
	res, err := d.builder.Distribute(ctx, action.DistributeRequest{
		ProjectAdminRequest: action.ProjectAdminRequest{
			BuildOptions: d.send(admin),
			Payer:        payer,
			Admin:        admin.PublicKey(),
			Project:      project.PublicKey(),
		},
		Mint:      mint,
		Receivers: receivers,
	})
	if err != nil {
		return err
	}
	d.logger.Info().
		Int("receivers", len(receivers)).
		Str("signature", res.Signature.String()).
		Uint32("cu_limit", res.Budget.UnitLimit).
		Msg("Distribution landed")

	for _, r := range receivers {
		acct, err := d.builder.Reader().TokenAccount(ctx, ata.MustFindAddress(r.Owner, mint))
		if err != nil {
			return err
		}
		if acct.Amount != r.Amount {
			return fmt.Errorf("receiver %s balance = %d, want %d", r.Owner, acct.Amount, r.Amount)
		}
	}
	d.logger.Info().Msg("Distribution verified")
	return nil
}

func mustKey(logger zerolog.Logger) *crypto.PrivateKey {
	k, err := crypto.GenerateKey()
	if err != nil {
		fatal(logger, "generate key", err)
	}
	return k
}

func fatal(logger zerolog.Logger, msg string, err error) {
	logger.Error().Err(err).Msg(msg)
	os.Exit(1)
}
