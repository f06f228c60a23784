package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/Klingon-tech/klingdrop/internal/action"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// addressInputs are the seeds the address command accepts.
type addressInputs struct {
	ProjectID         string
	NonceProjectID    string
	BusinessProjectID string
	BusinessProject   string
	AirdropProject    string
	Project           string
	User              string
	Mint              string
}

type addressDeriver func(p action.Programs, in addressInputs) (types.PublicKey, error)

var addressKinds = map[string]addressDeriver{
	"nonce-project": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		id, err := requireKey("project-id", in.ProjectID)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.NonceVerify.FindNonceProject(id)
		return addr, err
	},
	"nonce-vault": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		id, err := requireKey("project-id", in.ProjectID)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.NonceVerify.FindNonceVault(id)
		return addr, err
	},
	"business-project": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		npID, err := requireKey("nonce-project-id", in.NonceProjectID)
		if err != nil {
			return types.PublicKey{}, err
		}
		bpID, err := requireKey("business-project-id", in.BusinessProjectID)
		if err != nil {
			return types.PublicKey{}, err
		}
		np, _, err := p.NonceVerify.FindNonceProject(npID)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.NonceVerify.FindBusinessProject(np, bpID)
		return addr, err
	},
	"user-nonce": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		bp, err := requireKey("business-project", in.BusinessProject)
		if err != nil {
			return types.PublicKey{}, err
		}
		user, err := requireKey("user", in.User)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.NonceVerify.FindUserNonce(bp, user)
		return addr, err
	},
	"airdrop-project": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		id, err := requireKey("project-id", in.ProjectID)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.Airdrop.FindAirdropProject(id)
		return addr, err
	},
	"airdrop-mint-authority": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		ap, err := requireKey("airdrop-project", in.AirdropProject)
		if err != nil {
			return types.PublicKey{}, err
		}
		mint, err := requireKey("mint", in.Mint)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.Airdrop.FindMintAuthority(ap, mint)
		return addr, err
	},
	"business-authority": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		ap, err := requireKey("airdrop-project", in.AirdropProject)
		if err != nil {
			return types.PublicKey{}, err
		}
		bp, err := requireKey("business-project", in.BusinessProject)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.Airdrop.FindBusinessAuthority(ap, bp)
		return addr, err
	},
	"manager": func(p action.Programs, _ addressInputs) (types.PublicKey, error) {
		addr, _, err := p.Distribute.FindManager()
		return addr, err
	},
	"fee-receiver": func(p action.Programs, _ addressInputs) (types.PublicKey, error) {
		addr, _, err := p.Distribute.FindFeeReceiver()
		return addr, err
	},
	"distribute-mint-authority": func(p action.Programs, in addressInputs) (types.PublicKey, error) {
		project, err := requireKey("project", in.Project)
		if err != nil {
			return types.PublicKey{}, err
		}
		mint, err := requireKey("mint", in.Mint)
		if err != nil {
			return types.PublicKey{}, err
		}
		addr, _, err := p.Distribute.FindMintAuthority(project, mint)
		return addr, err
	},
}

// addressKindNames returns the supported kinds in sorted order.
func addressKindNames() []string {
	names := make([]string, 0, len(addressKinds))
	for k := range addressKinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// deriveAddress derives the program address of kind from in.
func deriveAddress(p action.Programs, kind string, in addressInputs) (types.PublicKey, error) {
	derive, ok := addressKinds[kind]
	if !ok {
		return types.PublicKey{}, fmt.Errorf("unknown address kind %q (want one of %s)", kind, strings.Join(addressKindNames(), ", "))
	}
	return derive(p, in)
}

func requireKey(flagName, value string) (types.PublicKey, error) {
	if value == "" {
		return types.PublicKey{}, fmt.Errorf("--%s is required", flagName)
	}
	key, err := types.PublicKeyFromBase58(value)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return key, nil
}

// parseAmount parses a non-negative base-10 integer that fits in a u64.
func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", s)
	}
	if !n.IsUint64() {
		return nil, fmt.Errorf("amount exceeds u64: %s", s)
	}
	return n, nil
}

// receiverEntry is one line of a receivers file.
type receiverEntry struct {
	Owner  types.PublicKey `json:"owner"`
	Amount uint64          `json:"amount"`
}

// parseReceivers decodes a JSON array of {"owner", "amount"} objects.
func parseReceivers(data []byte) ([]distribute.Receiver, error) {
	var entries []receiverEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse receivers: %w", err)
	}
	out := make([]distribute.Receiver, 0, len(entries))
	for i, e := range entries {
		if e.Owner.IsZero() {
			return nil, fmt.Errorf("receiver %d: missing owner", i)
		}
		if e.Amount == 0 {
			return nil, fmt.Errorf("receiver %d: zero amount", i)
		}
		out = append(out, distribute.Receiver{Owner: e.Owner, Amount: e.Amount})
	}
	return out, nil
}

func loadReceivers(path string) ([]distribute.Receiver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receivers: %w", err)
	}
	return parseReceivers(data)
}

// formatSOL renders lamports as SOL with nine decimals.
func formatSOL(lamports uint64) string {
	return fmt.Sprintf("%d.%09d", lamports/1_000_000_000, lamports%1_000_000_000)
}
