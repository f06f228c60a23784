package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Validate checks the configuration for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Localnet, Devnet, Mainnet:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Localnet, Devnet, Mainnet)
	}

	u, err := url.Parse(cfg.RPC.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("rpc.endpoint must be an http(s) URL, got %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout < 0 {
		return fmt.Errorf("rpc.timeout must not be negative")
	}

	if cfg.Budget.CUFactor < 1 {
		return fmt.Errorf("budget.cu_factor must be at least 1.0, got %g", cfg.Budget.CUFactor)
	}
	if cfg.Confirm.Poll <= 0 {
		return fmt.Errorf("confirm.poll must be positive")
	}
	if cfg.Confirm.Timeout < 0 {
		return fmt.Errorf("confirm.timeout must not be negative")
	}

	if _, err := cfg.Programs.Resolve(); err != nil {
		return err
	}

	if cfg.Keystore.Wallet == "" || strings.ContainsAny(cfg.Keystore.Wallet, `/\`) {
		return fmt.Errorf("keystore.wallet must be a plain name, got %q", cfg.Keystore.Wallet)
	}

	if cfg.Localnet.Port < 0 || cfg.Localnet.Port > 65535 {
		return fmt.Errorf("localnet.port must be in range [0, 65535]")
	}
	switch cfg.Localnet.DB {
	case DBMemory, DBBadger:
	default:
		return fmt.Errorf("localnet.db must be %q or %q", DBMemory, DBBadger)
	}
	if cfg.Localnet.FinalityDepth == 0 {
		return fmt.Errorf("localnet.finality_depth must be at least 1")
	}
	if cfg.Localnet.SlotInterval < 0 {
		return fmt.Errorf("localnet.slot_interval must not be negative")
	}
	return nil
}

// ProgramIDs are the resolved program deployments.
type ProgramIDs struct {
	NonceVerify types.PublicKey
	Airdrop     types.PublicKey
	Distribute  types.PublicKey
}

// Resolve parses the configured program IDs, falling back to the built-in
// deployments for empty fields.
func (p ProgramsConfig) Resolve() (ProgramIDs, error) {
	ids := ProgramIDs{
		NonceVerify: nonceverify.ProgramID,
		Airdrop:     airdrop.ProgramID,
		Distribute:  distribute.ProgramID,
	}
	for _, f := range []struct {
		key   string
		value string
		dst   *types.PublicKey
	}{
		{"programs.nonce_verify", p.NonceVerify, &ids.NonceVerify},
		{"programs.airdrop", p.Airdrop, &ids.Airdrop},
		{"programs.distribute", p.Distribute, &ids.Distribute},
	} {
		if f.value == "" {
			continue
		}
		k, err := types.PublicKeyFromBase58(f.value)
		if err != nil {
			return ProgramIDs{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = k
	}
	return ids, nil
}
