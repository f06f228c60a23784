// Package ledger reads program state from a ledger node. Readers never
// cache: every call fetches the current account data.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Reader errors.
var (
	// ErrScopeNotFound is returned when a nonce project or business
	// project does not exist.
	ErrScopeNotFound   = errors.New("scope not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrWrongOwner      = errors.New("account owned by unexpected program")
	ErrInactiveTable   = errors.New("lookup table deactivated")
)

// AccountFetcher loads raw accounts and the current slot.
// *rpcclient.Client satisfies it.
type AccountFetcher interface {
	GetSlot(ctx context.Context, commitment rpcclient.Commitment) (uint64, error)
	GetAccountInfo(ctx context.Context, key types.PublicKey, commitment rpcclient.Commitment) (*rpcclient.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, keys []types.PublicKey, commitment rpcclient.Commitment) ([]*rpcclient.AccountInfo, error)
}

// Nonce is the state of a user's nonce under a business project.
type Nonce struct {
	Value uint32
	// Exists is false when the nonce account has not been initialized; the
	// next expected value is then 0.
	Exists bool
}

// Reader decodes program accounts fetched at a fixed commitment.
type Reader struct {
	fetch      AccountFetcher
	nonce      nonceverify.Program
	commitment rpcclient.Commitment
}

// NewReader returns a reader for the nonce-verify deployment nonce.
// Accounts are read at confirmed commitment unless WithCommitment is used.
func NewReader(fetch AccountFetcher, nonce nonceverify.Program) *Reader {
	return &Reader{fetch: fetch, nonce: nonce, commitment: rpcclient.CommitmentConfirmed}
}

// WithCommitment returns a copy of r reading at c.
func (r *Reader) WithCommitment(c rpcclient.Commitment) *Reader {
	cp := *r
	cp.commitment = c
	return &cp
}

// NonceProgram returns the nonce-verify deployment r derives addresses for.
func (r *Reader) NonceProgram() nonceverify.Program {
	return r.nonce
}

// Slot returns the slot at commitment c.
func (r *Reader) Slot(ctx context.Context, c rpcclient.Commitment) (uint64, error) {
	slot, err := r.fetch.GetSlot(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// account fetches key and checks its owner. A missing account returns
// notFound wrapped with the address.
func (r *Reader) account(ctx context.Context, key, owner types.PublicKey, notFound error) ([]byte, error) {
	info, err := r.fetch.GetAccountInfo(ctx, key, r.commitment)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return checkAccount(info, key, owner, notFound)
}

func checkAccount(info *rpcclient.AccountInfo, key, owner types.PublicKey, notFound error) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: %s", notFound, key)
	}
	if info.Owner != owner {
		return nil, fmt.Errorf("%w: %s owned by %s, want %s", ErrWrongOwner, key, info.Owner, owner)
	}
	return info.Data, nil
}

// UserNonce returns the nonce of user under businessProject. The business
// project must exist; a missing nonce account reads as {0, false}.
func (r *Reader) UserNonce(ctx context.Context, businessProject, user types.PublicKey) (Nonce, error) {
	addr, _, err := r.nonce.FindUserNonce(businessProject, user)
	if err != nil {
		return Nonce{}, fmt.Errorf("derive user nonce: %w", err)
	}
	infos, err := r.fetch.GetMultipleAccounts(ctx, []types.PublicKey{businessProject, addr}, r.commitment)
	if err != nil {
		return Nonce{}, fmt.Errorf("fetch nonce accounts: %w", err)
	}
	if _, err := checkAccount(infos[0], businessProject, r.nonce.ID, ErrScopeNotFound); err != nil {
		return Nonce{}, err
	}
	if infos[1] == nil {
		return Nonce{}, nil
	}
	data, err := checkAccount(infos[1], addr, r.nonce.ID, ErrAccountNotFound)
	if err != nil {
		return Nonce{}, err
	}
	st, err := nonceverify.DecodeUserBusinessNonceState(data)
	if err != nil {
		return Nonce{}, fmt.Errorf("decode user nonce %s: %w", addr, err)
	}
	return Nonce{Value: st.NonceValue, Exists: true}, nil
}

// NonceProject returns the nonce project created for projectID.
func (r *Reader) NonceProject(ctx context.Context, projectID types.PublicKey) (nonceverify.NonceProject, error) {
	addr, _, err := r.nonce.FindNonceProject(projectID)
	if err != nil {
		return nonceverify.NonceProject{}, fmt.Errorf("derive nonce project: %w", err)
	}
	return r.NonceProjectAt(ctx, addr)
}

// NonceProjectAt returns the nonce project stored at address, as referenced
// by a business project.
func (r *Reader) NonceProjectAt(ctx context.Context, addr types.PublicKey) (nonceverify.NonceProject, error) {
	data, err := r.account(ctx, addr, r.nonce.ID, ErrScopeNotFound)
	if err != nil {
		return nonceverify.NonceProject{}, err
	}
	np, err := nonceverify.DecodeNonceProject(data)
	if err != nil {
		return nonceverify.NonceProject{}, fmt.Errorf("decode nonce project %s: %w", addr, err)
	}
	return np, nil
}

// BusinessProject returns the business project at address.
func (r *Reader) BusinessProject(ctx context.Context, address types.PublicKey) (nonceverify.BusinessProject, error) {
	data, err := r.account(ctx, address, r.nonce.ID, ErrScopeNotFound)
	if err != nil {
		return nonceverify.BusinessProject{}, err
	}
	bp, err := nonceverify.DecodeBusinessProject(data)
	if err != nil {
		return nonceverify.BusinessProject{}, fmt.Errorf("decode business project %s: %w", address, err)
	}
	return bp, nil
}

// BusinessProjectByID derives the business project address from its IDs
// and reads it.
func (r *Reader) BusinessProjectByID(ctx context.Context, nonceProjectID, businessProjectID types.PublicKey) (types.PublicKey, nonceverify.BusinessProject, error) {
	np, _, err := r.nonce.FindNonceProject(nonceProjectID)
	if err != nil {
		return types.PublicKey{}, nonceverify.BusinessProject{}, fmt.Errorf("derive nonce project: %w", err)
	}
	addr, _, err := r.nonce.FindBusinessProject(np, businessProjectID)
	if err != nil {
		return types.PublicKey{}, nonceverify.BusinessProject{}, fmt.Errorf("derive business project: %w", err)
	}
	bp, err := r.BusinessProject(ctx, addr)
	return addr, bp, err
}

// AirdropProject returns the airdrop project at address, which must be
// owned by program.
func (r *Reader) AirdropProject(ctx context.Context, program airdrop.Program, address types.PublicKey) (airdrop.AirdropProject, error) {
	data, err := r.account(ctx, address, program.ID, ErrAccountNotFound)
	if err != nil {
		return airdrop.AirdropProject{}, err
	}
	ap, err := airdrop.DecodeAirdropProject(data)
	if err != nil {
		return airdrop.AirdropProject{}, fmt.Errorf("decode airdrop project %s: %w", address, err)
	}
	return ap, nil
}

// Manager returns the singleton manager of program.
func (r *Reader) Manager(ctx context.Context, program distribute.Program) (distribute.Manager, error) {
	addr, _, err := program.FindManager()
	if err != nil {
		return distribute.Manager{}, fmt.Errorf("derive manager: %w", err)
	}
	data, err := r.account(ctx, addr, program.ID, ErrAccountNotFound)
	if err != nil {
		return distribute.Manager{}, err
	}
	m, err := distribute.DecodeManager(data)
	if err != nil {
		return distribute.Manager{}, fmt.Errorf("decode manager %s: %w", addr, err)
	}
	return m, nil
}

// DistributeProject returns the distribution project at address.
func (r *Reader) DistributeProject(ctx context.Context, program distribute.Program, address types.PublicKey) (distribute.Project, error) {
	data, err := r.account(ctx, address, program.ID, ErrAccountNotFound)
	if err != nil {
		return distribute.Project{}, err
	}
	pr, err := distribute.DecodeProject(data)
	if err != nil {
		return distribute.Project{}, fmt.Errorf("decode distribute project %s: %w", address, err)
	}
	return pr, nil
}

// Mint returns the token mint at address.
func (r *Reader) Mint(ctx context.Context, address types.PublicKey) (token.Mint, error) {
	data, err := r.account(ctx, address, token.ProgramID, ErrAccountNotFound)
	if err != nil {
		return token.Mint{}, err
	}
	m, err := token.DecodeMint(data)
	if err != nil {
		return token.Mint{}, fmt.Errorf("decode mint %s: %w", address, err)
	}
	return m, nil
}

// TokenAccount returns the token account at address.
func (r *Reader) TokenAccount(ctx context.Context, address types.PublicKey) (token.Account, error) {
	data, err := r.account(ctx, address, token.ProgramID, ErrAccountNotFound)
	if err != nil {
		return token.Account{}, err
	}
	a, err := token.DecodeAccount(data)
	if err != nil {
		return token.Account{}, fmt.Errorf("decode token account %s: %w", address, err)
	}
	return a, nil
}

// LookupTable returns the active lookup table at address in the form the
// message compiler takes.
func (r *Reader) LookupTable(ctx context.Context, address types.PublicKey) (tx.LookupTable, error) {
	data, err := r.account(ctx, address, lookuptable.ProgramID, ErrAccountNotFound)
	if err != nil {
		return tx.LookupTable{}, err
	}
	st, err := lookuptable.DecodeState(data)
	if err != nil {
		return tx.LookupTable{}, fmt.Errorf("decode lookup table %s: %w", address, err)
	}
	if !st.IsActive() {
		return tx.LookupTable{}, fmt.Errorf("%w: %s", ErrInactiveTable, address)
	}
	return st.Table(address), nil
}

// LookupTables reads each address with LookupTable.
func (r *Reader) LookupTables(ctx context.Context, addresses ...types.PublicKey) ([]tx.LookupTable, error) {
	tables := make([]tx.LookupTable, 0, len(addresses))
	for _, a := range addresses {
		t, err := r.LookupTable(ctx, a)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
