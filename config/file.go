package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration values from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.endpoint", "rpc":
		cfg.RPC.Endpoint = value
	case "rpc.timeout":
		cfg.RPC.Timeout, err = time.ParseDuration(value)

	// Compute budget
	case "budget.estimate":
		cfg.Budget.Estimate = parseBool(value)
	case "budget.cu_price":
		cfg.Budget.CUPrice, err = strconv.ParseUint(value, 10, 64)
	case "budget.cu_factor":
		cfg.Budget.CUFactor, err = strconv.ParseFloat(value, 64)
	case "budget.prepad":
		cfg.Budget.Prepad = parseBool(value)

	// Confirmation
	case "confirm.poll":
		cfg.Confirm.Poll, err = time.ParseDuration(value)
	case "confirm.timeout":
		cfg.Confirm.Timeout, err = time.ParseDuration(value)
	case "confirm.skip_preflight":
		cfg.Confirm.SkipPreflight = parseBool(value)

	// Programs
	case "programs.nonce_verify":
		cfg.Programs.NonceVerify = value
	case "programs.airdrop":
		cfg.Programs.Airdrop = value
	case "programs.distribute":
		cfg.Programs.Distribute = value

	// Keystore
	case "keystore.dir":
		cfg.Keystore.Dir = value
	case "keystore.wallet", "wallet":
		cfg.Keystore.Wallet = value

	// Local ledger
	case "localnet.listen":
		cfg.Localnet.ListenAddr = value
	case "localnet.port":
		cfg.Localnet.Port, err = strconv.Atoi(value)
	case "localnet.allowed":
		cfg.Localnet.AllowedIPs = parseStringList(value)
	case "localnet.cors":
		cfg.Localnet.CORSOrigins = parseStringList(value)
	case "localnet.slot_interval":
		cfg.Localnet.SlotInterval, err = time.ParseDuration(value)
	case "localnet.finality_depth":
		cfg.Localnet.FinalityDepth, err = strconv.ParseUint(value, 10, 64)
	case "localnet.db":
		cfg.Localnet.DB = strings.ToLower(value)
	case "localnet.faucet":
		cfg.Localnet.FaucetLamports, err = strconv.ParseUint(value, 10, 64)
	case "localnet.genesis":
		cfg.Localnet.Genesis = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return err
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a commented configuration file for cfg's
// network.
func WriteDefaultConfig(path string, cfg *Config) error {
	content := `# Klingdrop Configuration
#
# Values here override the network defaults. Command-line flags override
# this file.

# Network: localnet, devnet or mainnet
network = ` + string(cfg.Network) + `

# Data directory (default: ~/.klingdrop)
# datadir = ~/.klingdrop

# ============================================================================
# Node API
# ============================================================================

rpc.endpoint = ` + cfg.RPC.Endpoint + `
rpc.timeout = ` + cfg.RPC.Timeout.String() + `

# ============================================================================
# Compute Budget
# ============================================================================

# Simulate every transaction and request a matching unit limit.
budget.estimate = ` + strconv.FormatBool(cfg.Budget.Estimate) + `
# Priority fee in micro-lamports per compute unit.
budget.cu_price = ` + strconv.FormatUint(cfg.Budget.CUPrice, 10) + `
# Multiplier applied to simulated units (>= 1.0).
budget.cu_factor = ` + strconv.FormatFloat(cfg.Budget.CUFactor, 'f', -1, 64) + `
# budget.prepad = false

# ============================================================================
# Confirmation
# ============================================================================

confirm.poll = ` + cfg.Confirm.Poll.String() + `
confirm.timeout = ` + cfg.Confirm.Timeout.String() + `
# confirm.skip_preflight = false

# ============================================================================
# Programs (base58; empty = built-in deployments)
# ============================================================================

# programs.nonce_verify =
# programs.airdrop =
# programs.distribute =

# ============================================================================
# Keystore
# ============================================================================

# keystore.dir = <datadir>/<network>/keystore
keystore.wallet = ` + cfg.Keystore.Wallet + `

# ============================================================================
# Local Ledger (klingdrop-localnet)
# ============================================================================

localnet.listen = ` + cfg.Localnet.ListenAddr + `
localnet.port = ` + strconv.Itoa(cfg.Localnet.Port) + `
localnet.allowed = ` + strings.Join(cfg.Localnet.AllowedIPs, ",") + `
# CORS allowed origins ("*" for all)
# localnet.cors = http://localhost:3000
localnet.slot_interval = ` + cfg.Localnet.SlotInterval.String() + `
localnet.finality_depth = ` + strconv.FormatUint(cfg.Localnet.FinalityDepth, 10) + `
# Database backend: memory or badger
localnet.db = ` + cfg.Localnet.DB + `
# Largest single faucet request in lamports
localnet.faucet = ` + strconv.FormatUint(cfg.Localnet.FaucetLamports, 10) + `
# localnet.genesis = genesis.json

# ============================================================================
# Logging
# ============================================================================

log.level = ` + cfg.Log.Level + `
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
