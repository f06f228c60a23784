package config

import "time"

const lamportsPerSOL = 1_000_000_000

// DefaultLocalnet returns the configuration for a klingdrop-localnet ledger
// on this machine.
func DefaultLocalnet() *Config {
	return &Config{
		Network: Localnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Endpoint: "http://127.0.0.1:8899",
			Timeout:  30 * time.Second,
		},
		Budget: BudgetConfig{
			Estimate: true,
			CUFactor: 1.2,
		},
		Confirm: ConfirmConfig{
			Poll:    100 * time.Millisecond,
			Timeout: 30 * time.Second,
		},
		Keystore: KeystoreConfig{
			Wallet: "default",
		},
		Localnet: LocalnetConfig{
			ListenAddr:     "127.0.0.1",
			Port:           8899,
			AllowedIPs:     []string{"127.0.0.1"},
			SlotInterval:   400 * time.Millisecond,
			FinalityDepth:  32,
			DB:             DBBadger,
			FaucetLamports: 100 * lamportsPerSOL,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDevnet returns the configuration for the public devnet cluster.
func DefaultDevnet() *Config {
	cfg := DefaultLocalnet()
	cfg.Network = Devnet
	cfg.RPC.Endpoint = "https://api.devnet.solana.com"
	cfg.Budget.CUPrice = 1_000
	cfg.Confirm.Poll = 500 * time.Millisecond
	cfg.Confirm.Timeout = 90 * time.Second
	return cfg
}

// DefaultMainnet returns the configuration for mainnet-beta.
func DefaultMainnet() *Config {
	cfg := DefaultDevnet()
	cfg.Network = Mainnet
	cfg.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	cfg.Budget.CUPrice = 10_000
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Devnet:
		return DefaultDevnet()
	case Mainnet:
		return DefaultMainnet()
	default:
		return DefaultLocalnet()
	}
}
