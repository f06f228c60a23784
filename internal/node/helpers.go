package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/localnet"
	"github.com/Klingon-tech/klingdrop/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openDB opens the configured ledger database.
func openDB(cfg *config.Config) (storage.DB, error) {
	switch cfg.Localnet.DB {
	case config.DBMemory:
		return storage.NewMemory(), nil
	case config.DBBadger:
		dir := cfg.LedgerDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger dir: %w", err)
		}
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", dir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown ledger database %q", cfg.Localnet.DB)
	}
}

// ledgerConfig maps node settings and genesis onto the ledger.
func ledgerConfig(cfg *config.Config, genesis *config.Genesis) (localnet.Config, error) {
	programs, err := cfg.Programs.Resolve()
	if err != nil {
		return localnet.Config{}, err
	}
	alloc, err := genesis.Allocations()
	if err != nil {
		return localnet.Config{}, fmt.Errorf("genesis: %w", err)
	}
	hash, err := genesis.Hash()
	if err != nil {
		return localnet.Config{}, fmt.Errorf("genesis hash: %w", err)
	}
	return localnet.Config{
		SlotInterval:   cfg.Localnet.SlotInterval,
		FinalityDepth:  cfg.Localnet.FinalityDepth,
		FaucetLamports: cfg.Localnet.FaucetLamports,
		GenesisHash:    hash,
		Alloc:          alloc,
		NonceVerify:    programs.NonceVerify,
		Airdrop:        programs.Airdrop,
		Distribute:     programs.Distribute,
	}, nil
}
