// Package action builds the high level operations of the nonce-verify,
// airdrop and distribute programs. Every action reads the ledger state it
// depends on, checks its preconditions and hands the instructions to an
// assembler.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/ledger"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Precondition errors.
var (
	ErrAuthorityMismatch = errors.New("authority does not match on-chain state")
	ErrNonceNotFound     = errors.New("user nonce not initialized")
	ErrTooManyReceivers  = errors.New("too many receivers for one transaction")
	ErrNoReceivers       = errors.New("no receivers")
	ErrSignatureMismatch = errors.New("claim signature does not verify against the airdrop admin")
	ErrMissingAdmin      = errors.New("nonce project requires its admin to register")
)

// Programs are the deployments actions target.
type Programs struct {
	NonceVerify nonceverify.Program
	Airdrop     airdrop.Program
	Distribute  distribute.Program
}

// DefaultPrograms returns the well-known deployments.
func DefaultPrograms() Programs {
	return Programs{
		NonceVerify: nonceverify.Default,
		Airdrop:     airdrop.Default,
		Distribute:  distribute.Default,
	}
}

// BuildOptions are shared by every action.
type BuildOptions struct {
	Mode assembler.Mode
	// CUPrice enables compute budget estimation.
	CUPrice  types.Option[uint64]
	CUFactor float64
	Prepad   bool
	// LookupTables are table addresses; they are fetched before building.
	LookupTables []types.PublicKey
	// Signers may contain nil entries and duplicates. They are only used by
	// the send modes.
	Signers []crypto.Signer
}

// Builder runs actions against one ledger.
type Builder struct {
	reader   *ledger.Reader
	asm      *assembler.Assembler
	programs Programs
	logger   zerolog.Logger
}

// New returns a Builder. reader must read with the same nonce-verify
// deployment as programs.NonceVerify.
func New(reader *ledger.Reader, asm *assembler.Assembler, programs Programs) *Builder {
	return &Builder{
		reader:   reader,
		asm:      asm,
		programs: programs,
		logger:   klog.Action,
	}
}

// Programs returns the deployments b targets.
func (b *Builder) Programs() Programs {
	return b.programs
}

// Reader returns the ledger reader b checks preconditions with.
func (b *Builder) Reader() *ledger.Reader {
	return b.reader
}

// build fetches the requested lookup tables and hands ixs to the assembler.
func (b *Builder) build(ctx context.Context, name string, ixs []tx.Instruction, payer types.PublicKey, opts BuildOptions) (*assembler.Result, error) {
	var tables []tx.LookupTable
	if len(opts.LookupTables) > 0 {
		var err error
		tables, err = b.reader.LookupTables(ctx, opts.LookupTables...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	b.logger.Debug().
		Str("action", name).
		Str("mode", opts.Mode.String()).
		Int("instructions", len(ixs)).
		Int("tables", len(tables)).
		Msg("Building action")

	res, err := b.asm.Build(ctx, ixs, payer, assembler.Options{
		Mode:         opts.Mode,
		CUPrice:      opts.CUPrice,
		CUFactor:     opts.CUFactor,
		Prepad:       opts.Prepad,
		LookupTables: tables,
		Signers:      opts.Signers,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if opts.Mode.Sends() {
		b.logger.Info().Str("action", name).Str("signature", res.Signature.String()).Msg("Action landed")
	}
	return res, nil
}

func checkAuthority(what string, got, want types.PublicKey) error {
	if got != want {
		return fmt.Errorf("%w: %s is %s, got %s", ErrAuthorityMismatch, what, want, got)
	}
	return nil
}

func checkMintAuthority(mint token.Mint, want types.PublicKey) error {
	got, ok := mint.MintAuthority.Get()
	if !ok {
		return fmt.Errorf("%w: mint has no authority, want %s", ErrAuthorityMismatch, want)
	}
	return checkAuthority("mint authority", got, want)
}
