package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
)

func TestDefaults_Valid(t *testing.T) {
	for _, network := range []NetworkType{Localnet, Devnet, Mainnet} {
		cfg := Default(network)
		if cfg.Network != network {
			t.Errorf("Default(%s).Network = %s", network, cfg.Network)
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("Default(%s) invalid: %v", network, err)
		}
	}
	if got := DefaultMainnet().RPC.Endpoint; got != "https://api.mainnet-beta.solana.com" {
		t.Errorf("mainnet endpoint = %s", got)
	}
}

func TestBudgetConfig_Price(t *testing.T) {
	b := BudgetConfig{Estimate: true, CUPrice: 0}
	if price, ok := b.Price().Get(); !ok || price != 0 {
		t.Errorf("Price() = %d, %v, want 0, true", price, ok)
	}
	b.Estimate = false
	if b.Price().IsSome() {
		t.Error("Price() should be absent when estimation is off")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	content := `# comment
network = devnet

rpc.endpoint = "http://10.0.0.1:8899"
keystore.wallet = 'ops'
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	want := map[string]string{
		"network":         "devnet",
		"rpc.endpoint":    "http://10.0.0.1:8899",
		"keystore.wallet": "ops",
	}
	if len(values) != len(want) {
		t.Fatalf("LoadFile() = %v, want %v", values, want)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("values[%q] = %q, want %q", k, values[k], v)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("LoadFile() = %v, want empty", values)
	}
}

func TestLoadFile_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("network devnet\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("LoadFile() error = %v, want line 1 error", err)
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultLocalnet()
	err := ApplyFileConfig(cfg, map[string]string{
		"rpc.timeout":             "5s",
		"budget.cu_price":         "250",
		"budget.cu_factor":        "1.5",
		"budget.prepad":           "yes",
		"confirm.poll":            "50ms",
		"localnet.allowed":        "127.0.0.1, 10.0.0.0/8",
		"localnet.finality_depth": "4",
		"localnet.db":             "MEMORY",
		"log.json":                "on",
		"unknown.key":             "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if cfg.RPC.Timeout != 5*time.Second {
		t.Errorf("RPC.Timeout = %v, want 5s", cfg.RPC.Timeout)
	}
	if cfg.Budget.CUPrice != 250 || cfg.Budget.CUFactor != 1.5 || !cfg.Budget.Prepad {
		t.Errorf("Budget = %+v", cfg.Budget)
	}
	if cfg.Confirm.Poll != 50*time.Millisecond {
		t.Errorf("Confirm.Poll = %v, want 50ms", cfg.Confirm.Poll)
	}
	if len(cfg.Localnet.AllowedIPs) != 2 || cfg.Localnet.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("Localnet.AllowedIPs = %v", cfg.Localnet.AllowedIPs)
	}
	if cfg.Localnet.FinalityDepth != 4 || cfg.Localnet.DB != DBMemory {
		t.Errorf("Localnet = %+v", cfg.Localnet)
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON = false, want true")
	}
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	tests := map[string]string{
		"rpc.timeout":      "soon",
		"budget.cu_price":  "-1",
		"budget.cu_factor": "big",
		"localnet.port":    "http",
	}
	for key, value := range tests {
		if err := ApplyFileConfig(DefaultLocalnet(), map[string]string{key: value}); err == nil {
			t.Errorf("ApplyFileConfig(%s=%s) should fail", key, value)
		}
	}
}

func TestFlags_Override(t *testing.T) {
	fs, f := NewFlagSet("test", true)
	args := []string{"--rpc", "http://node:8899", "--cu-price", "42", "--prepad", "--db", "memory", "--port", "9000", "claim", "--amount", "1"}
	if err := f.Parse(fs, args); err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(f.Args) != 3 || f.Args[0] != "claim" {
		t.Errorf("Args = %v, want [claim --amount 1]", f.Args)
	}

	cfg := DefaultLocalnet()
	cfg.Budget.Estimate = false
	if err := ApplyFlags(cfg, f); err != nil {
		t.Fatalf("ApplyFlags() error: %v", err)
	}
	if cfg.RPC.Endpoint != "http://node:8899" {
		t.Errorf("RPC.Endpoint = %s", cfg.RPC.Endpoint)
	}
	if price, ok := cfg.Budget.Price().Get(); !ok || price != 42 {
		t.Errorf("Budget.Price() = %d, %v, want 42, true", price, ok)
	}
	if !cfg.Budget.Prepad {
		t.Error("Budget.Prepad = false, want true")
	}
	if cfg.Localnet.DB != DBMemory || cfg.Localnet.Port != 9000 {
		t.Errorf("Localnet = %+v", cfg.Localnet)
	}
	// Unset bool flags leave file values alone.
	if cfg.Log.JSON {
		t.Error("Log.JSON changed without --log-json")
	}
}

func TestFlags_CUPrice(t *testing.T) {
	tests := []struct {
		value    string
		estimate bool
		wantErr  bool
	}{
		{"none", false, false},
		{"OFF", false, false},
		{"0", true, false},
		{"x", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := DefaultLocalnet()
			cfg.Budget.Estimate = !tt.estimate
			err := ApplyFlags(cfg, &Flags{CUPrice: tt.value})
			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFlags() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFlags() error: %v", err)
			}
			if cfg.Budget.Estimate != tt.estimate {
				t.Errorf("Budget.Estimate = %v, want %v", cfg.Budget.Estimate, tt.estimate)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown network", func(c *Config) { c.Network = "testnet" }},
		{"endpoint scheme", func(c *Config) { c.RPC.Endpoint = "ftp://node" }},
		{"endpoint host", func(c *Config) { c.RPC.Endpoint = "http://" }},
		{"cu factor below one", func(c *Config) { c.Budget.CUFactor = 0.9 }},
		{"zero poll", func(c *Config) { c.Confirm.Poll = 0 }},
		{"negative confirm timeout", func(c *Config) { c.Confirm.Timeout = -time.Second }},
		{"bad program id", func(c *Config) { c.Programs.Airdrop = "not-base58-0OIl" }},
		{"wallet path", func(c *Config) { c.Keystore.Wallet = "../x" }},
		{"empty wallet", func(c *Config) { c.Keystore.Wallet = "" }},
		{"port range", func(c *Config) { c.Localnet.Port = 70000 }},
		{"db backend", func(c *Config) { c.Localnet.DB = "bolt" }},
		{"finality depth", func(c *Config) { c.Localnet.FinalityDepth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLocalnet()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) should fail")
	}
}

func TestProgramsConfig_Resolve(t *testing.T) {
	ids, err := ProgramsConfig{}.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ids.Airdrop != airdrop.ProgramID {
		t.Errorf("Airdrop = %s, want %s", ids.Airdrop, airdrop.ProgramID)
	}

	custom := "11111111111111111111111111111112"
	ids, err = ProgramsConfig{Distribute: custom}.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if ids.Distribute.String() != custom {
		t.Errorf("Distribute = %s, want %s", ids.Distribute, custom)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "klingdrop.conf")
	if err := os.WriteFile(conf, []byte("network = devnet\nbudget.cu_price = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs, f := NewFlagSet("test", false)
	if err := f.Parse(fs, []string{"--datadir", dir, "--wallet", "ops"}); err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Devnet {
		t.Errorf("Network = %s, want devnet from the config file", cfg.Network)
	}
	if cfg.RPC.Endpoint != DefaultDevnet().RPC.Endpoint {
		t.Errorf("RPC.Endpoint = %s, want devnet default", cfg.RPC.Endpoint)
	}
	if cfg.Budget.CUPrice != 7 {
		t.Errorf("Budget.CUPrice = %d, want 7", cfg.Budget.CUPrice)
	}
	if cfg.Keystore.Wallet != "ops" {
		t.Errorf("Keystore.Wallet = %s, want ops", cfg.Keystore.Wallet)
	}
	if info, err := os.Stat(cfg.KeystoreDir()); err != nil || !info.IsDir() {
		t.Errorf("keystore dir not created: %v", err)
	}
	if want := filepath.Join(dir, "devnet", "keystore"); cfg.KeystoreDir() != want {
		t.Errorf("KeystoreDir() = %s, want %s", cfg.KeystoreDir(), want)
	}
}

func TestLoad_WritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	fs, f := NewFlagSet("test", true)
	if err := f.Parse(fs, []string{"--datadir", dir}); err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	values, err := LoadFile(cfg.ConfigFile())
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	reloaded := DefaultLocalnet()
	if err := ApplyFileConfig(reloaded, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if err := Validate(reloaded); err != nil {
		t.Fatalf("written config invalid: %v", err)
	}
	if reloaded.Localnet.FaucetLamports != cfg.Localnet.FaucetLamports {
		t.Errorf("faucet = %d, want %d", reloaded.Localnet.FaucetLamports, cfg.Localnet.FaucetLamports)
	}
	if reloaded.Budget.CUFactor != cfg.Budget.CUFactor {
		t.Errorf("cu factor = %g, want %g", reloaded.Budget.CUFactor, cfg.Budget.CUFactor)
	}
}

func TestLoad_Invalid(t *testing.T) {
	fs, f := NewFlagSet("test", false)
	if err := f.Parse(fs, []string{"--datadir", t.TempDir(), "--cu-factor", "0.5"}); err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if _, err := Load(f); err == nil {
		t.Error("Load() should reject cu factor below 1")
	}
}
