package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Genesis describes the initial state of a local ledger.
type Genesis struct {
	Name      string `json:"name"`
	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Initial allocations (base58 address -> lamports). Funded accounts are
	// owned by the system program.
	Alloc map[string]uint64 `json:"alloc"`
}

// DefaultGenesis returns an empty local genesis.
func DefaultGenesis() *Genesis {
	return &Genesis{
		Name:      "klingdrop-localnet",
		Timestamp: 1790000000,
		Alloc:     map[string]uint64{},
	}
}

// LoadGenesis loads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks names, addresses and that the total supply fits a u64.
func (g *Genesis) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	_, err := g.Allocations()
	return err
}

// Allocations returns the parsed allocation table.
func (g *Genesis) Allocations() (map[types.PublicKey]uint64, error) {
	out := make(map[types.PublicKey]uint64, len(g.Alloc))
	var total uint64
	for addr, lamports := range g.Alloc {
		k, err := types.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addr, err)
		}
		if lamports == 0 {
			return nil, fmt.Errorf("alloc %s: zero lamports", addr)
		}
		if total > math.MaxUint64-lamports {
			return nil, fmt.Errorf("genesis allocations overflow u64")
		}
		total += lamports
		out[k] = lamports
	}
	return out, nil
}

// Hash returns a BLAKE3 hash of the genesis. The local ledger uses it as
// the blockhash of slot 0.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
