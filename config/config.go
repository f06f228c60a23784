// Package config handles klingdrop configuration.
//
// Settings come in three layers, each overriding the previous one:
//   - Network defaults (localnet, devnet, mainnet)
//   - The key = value config file in the data directory
//   - Command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// NetworkType identifies the cluster the client talks to.
type NetworkType string

const (
	Localnet NetworkType = "localnet"
	Devnet   NetworkType = "devnet"
	Mainnet  NetworkType = "mainnet"
)

// Config holds client and local ledger settings.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Node API
	RPC RPCConfig

	// Compute budget estimation
	Budget BudgetConfig

	// Confirmation polling
	Confirm ConfirmConfig

	// Program deployments
	Programs ProgramsConfig

	// Authority keys
	Keystore KeystoreConfig

	// Local ledger (klingdrop-localnet only)
	Localnet LocalnetConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds node endpoint settings.
type RPCConfig struct {
	Endpoint string        `conf:"rpc.endpoint"`
	Timeout  time.Duration `conf:"rpc.timeout"`
}

// BudgetConfig controls compute budget estimation.
type BudgetConfig struct {
	Estimate bool    `conf:"budget.estimate"`
	CUPrice  uint64  `conf:"budget.cu_price"` // micro-lamports per unit
	CUFactor float64 `conf:"budget.cu_factor"`
	Prepad   bool    `conf:"budget.prepad"`
}

// Price returns the unit price to build with, absent when estimation is off.
func (b BudgetConfig) Price() types.Option[uint64] {
	if !b.Estimate {
		return types.None[uint64]()
	}
	return types.Some(b.CUPrice)
}

// ConfirmConfig holds signature status polling settings.
type ConfirmConfig struct {
	Poll          time.Duration `conf:"confirm.poll"`
	Timeout       time.Duration `conf:"confirm.timeout"`
	SkipPreflight bool          `conf:"confirm.skip_preflight"`
}

// ProgramsConfig overrides program IDs. Empty fields keep the built-in
// deployments.
type ProgramsConfig struct {
	NonceVerify string `conf:"programs.nonce_verify"`
	Airdrop     string `conf:"programs.airdrop"`
	Distribute  string `conf:"programs.distribute"`
}

// KeystoreConfig holds wallet storage settings.
type KeystoreConfig struct {
	Dir    string `conf:"keystore.dir"` // Empty = <datadir>/<network>/keystore
	Wallet string `conf:"keystore.wallet"`
}

// Ledger database backends.
const (
	DBMemory = "memory"
	DBBadger = "badger"
)

// LocalnetConfig holds local ledger settings.
type LocalnetConfig struct {
	ListenAddr     string        `conf:"localnet.listen"`
	Port           int           `conf:"localnet.port"`
	AllowedIPs     []string      `conf:"localnet.allowed"`
	CORSOrigins    []string      `conf:"localnet.cors"` // Allowed CORS origins ("*" = all).
	SlotInterval   time.Duration `conf:"localnet.slot_interval"`
	FinalityDepth  uint64        `conf:"localnet.finality_depth"`
	DB             string        `conf:"localnet.db"` // memory or badger
	FaucetLamports uint64        `conf:"localnet.faucet"`
	Genesis        string        `conf:"localnet.genesis"` // Genesis file path (optional)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingdrop
//	macOS:   ~/Library/Application Support/Klingdrop
//	Windows: %APPDATA%\Klingdrop
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingdrop"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingdrop")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingdrop")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingdrop")
	default:
		return filepath.Join(home, ".klingdrop")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	if c.Keystore.Dir != "" {
		return c.Keystore.Dir
	}
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LedgerDir returns the local ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingdrop.conf")
}
