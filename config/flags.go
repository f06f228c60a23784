package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Client
	RPC           string
	CUPrice       string // "none" disables estimation
	CUFactor      float64
	Prepad        bool
	SkipPreflight bool
	Wallet        string

	// Local ledger
	Listen        string
	Port          int
	Allowed       string
	CORS          string
	SlotInterval  time.Duration
	FinalityDepth uint64
	DB            string
	Faucet        uint64
	Genesis       string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetPrepad        bool
	SetSkipPreflight bool
	SetLogJSON       bool
}

// NewFlagSet registers the shared flags on a new FlagSet. With ledger set
// it also registers the local ledger server flags.
func NewFlagSet(name string, ledger bool) (*flag.FlagSet, *Flags) {
	f := &Flags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network: localnet, devnet or mainnet")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Client
	fs.StringVar(&f.RPC, "rpc", "", "Node JSON-RPC endpoint")
	fs.StringVar(&f.CUPrice, "cu-price", "", "Compute unit price in micro-lamports, or none")
	fs.Float64Var(&f.CUFactor, "cu-factor", 0, "Multiplier for simulated compute units")
	fs.BoolVar(&f.Prepad, "prepad", false, "Simulate with the maximum unit limit")
	fs.BoolVar(&f.SkipPreflight, "skip-preflight", false, "Submit without preflight simulation")
	fs.StringVar(&f.Wallet, "wallet", "", "Keystore wallet name")

	if ledger {
		fs.StringVar(&f.Listen, "listen", "", "Local ledger RPC listen address")
		fs.IntVar(&f.Port, "port", 0, "Local ledger RPC port")
		fs.StringVar(&f.Allowed, "allowed", "", "Allowed IPs or CIDRs for RPC (comma-separated)")
		fs.StringVar(&f.CORS, "cors", "", "Allowed CORS origins for RPC (comma-separated)")
		fs.DurationVar(&f.SlotInterval, "slot-interval", 0, "Slot time")
		fs.Uint64Var(&f.FinalityDepth, "finality-depth", 0, "Slots until a transaction is finalized")
		fs.StringVar(&f.DB, "db", "", "Ledger database: memory or badger")
		fs.Uint64Var(&f.Faucet, "faucet", 0, "Largest faucet request in lamports")
		fs.StringVar(&f.Genesis, "genesis", "", "Genesis file with initial allocations")
	}

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	return fs, f
}

// Parse parses args into f. Parsing stops at the first positional
// argument; the rest is left in f.Args.
func (f *Flags) Parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.SetPrepad = isFlagSet(fs, "prepad")
	f.SetSkipPreflight = isFlagSet(fs, "skip-preflight")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) error {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Client
	if f.RPC != "" {
		cfg.RPC.Endpoint = f.RPC
	}
	switch strings.ToLower(f.CUPrice) {
	case "":
	case "none", "off":
		cfg.Budget.Estimate = false
	default:
		price, err := strconv.ParseUint(f.CUPrice, 10, 64)
		if err != nil {
			return fmt.Errorf("--cu-price: %w", err)
		}
		cfg.Budget.Estimate = true
		cfg.Budget.CUPrice = price
	}
	if f.CUFactor != 0 {
		cfg.Budget.CUFactor = f.CUFactor
	}
	if f.SetPrepad {
		cfg.Budget.Prepad = f.Prepad
	}
	if f.SetSkipPreflight {
		cfg.Confirm.SkipPreflight = f.SkipPreflight
	}
	if f.Wallet != "" {
		cfg.Keystore.Wallet = f.Wallet
	}

	// Local ledger
	if f.Listen != "" {
		cfg.Localnet.ListenAddr = f.Listen
	}
	if f.Port != 0 {
		cfg.Localnet.Port = f.Port
	}
	if f.Allowed != "" {
		cfg.Localnet.AllowedIPs = parseStringList(f.Allowed)
	}
	if f.CORS != "" {
		cfg.Localnet.CORSOrigins = parseStringList(f.CORS)
	}
	if f.SlotInterval != 0 {
		cfg.Localnet.SlotInterval = f.SlotInterval
	}
	if f.FinalityDepth != 0 {
		cfg.Localnet.FinalityDepth = f.FinalityDepth
	}
	if f.DB != "" {
		cfg.Localnet.DB = strings.ToLower(f.DB)
	}
	if f.Faucet != 0 {
		cfg.Localnet.FaucetLamports = f.Faucet
	}
	if f.Genesis != "" {
		cfg.Localnet.Genesis = f.Genesis
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	return nil
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Load builds the configuration with the following precedence:
// 1. Network defaults (network from flags, then the config file)
// 2. Config file
// 3. Command-line flags
//
// Data directories and a default config file are created on first use.
func Load(f *Flags) (*Config, error) {
	dataDir := f.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	configPath := f.Config
	if configPath == "" {
		configPath = (&Config{DataDir: dataDir}).ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	network := Localnet
	if v, ok := fileValues["network"]; ok && v != "" {
		network = NetworkType(v)
	}
	if f.Network != "" {
		network = NetworkType(f.Network)
	}

	cfg := Default(network)
	cfg.DataDir = dataDir
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}
	if err := ApplyFlags(cfg, f); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. It is idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(cfg.KeystoreDir(), 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", cfg.KeystoreDir(), err)
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
