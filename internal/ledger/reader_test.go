package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingdrop/internal/localnet/localnettest"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestReader_UserNonce(t *testing.T) {
	h := localnettest.New(t)
	r := NewReader(h.Client, h.NonceVerify)
	ctx := context.Background()

	projectID := h.NonceProject(0, 0)
	authority := localnettest.NewKey(t)
	bp := h.BusinessProject(projectID, authority.PublicKey())
	user := localnettest.NewKey(t)

	got, err := r.UserNonce(ctx, bp, user.PublicKey())
	if err != nil {
		t.Fatalf("UserNonce() error: %v", err)
	}
	if got != (Nonce{}) {
		t.Errorf("UserNonce(fresh) = %+v, want zero", got)
	}

	h.Fund(user.PublicKey(), 1_000_000_000)
	h.Send([]tx.Instruction{h.NonceVerify.InitUserNonce(h.Payer.PublicKey(), user.PublicKey(), bp)}, user)

	got, err = r.UserNonce(ctx, bp, user.PublicKey())
	if err != nil {
		t.Fatalf("UserNonce() error: %v", err)
	}
	if got != (Nonce{Value: 0, Exists: true}) {
		t.Errorf("UserNonce(initialized) = %+v, want {0 true}", got)
	}

	_, err = r.UserNonce(ctx, types.PublicKey{9}, user.PublicKey())
	if !errors.Is(err, ErrScopeNotFound) {
		t.Errorf("UserNonce(unknown project) error = %v, want ErrScopeNotFound", err)
	}

	// A system-owned business project address is not a business project.
	_, err = r.UserNonce(ctx, h.Payer.PublicKey(), user.PublicKey())
	if !errors.Is(err, ErrWrongOwner) {
		t.Errorf("UserNonce(payer) error = %v, want ErrWrongOwner", err)
	}
}

func TestReader_Projects(t *testing.T) {
	h := localnettest.New(t)
	r := NewReader(h.Client, h.NonceVerify).WithCommitment(rpcclient.CommitmentProcessed)
	ctx := context.Background()

	projectID := h.NonceProject(7, 11)
	np, err := r.NonceProject(ctx, projectID)
	if err != nil {
		t.Fatalf("NonceProject() error: %v", err)
	}
	if np.BusinessFee != 7 || np.UserFee != 11 {
		t.Errorf("fees = %d/%d, want 7/11", np.BusinessFee, np.UserFee)
	}
	if _, err := r.NonceProject(ctx, types.PublicKey{4}); !errors.Is(err, ErrScopeNotFound) {
		t.Errorf("NonceProject(missing) error = %v, want ErrScopeNotFound", err)
	}

	authority := localnettest.NewKey(t).PublicKey()
	addr := h.BusinessProject(projectID, authority)
	bp, err := r.BusinessProject(ctx, addr)
	if err != nil {
		t.Fatalf("BusinessProject() error: %v", err)
	}
	if bp.Authority != authority {
		t.Errorf("authority = %s, want %s", bp.Authority, authority)
	}
	if _, _, err := r.BusinessProjectByID(ctx, projectID, types.PublicKey{5}); !errors.Is(err, ErrScopeNotFound) {
		t.Errorf("BusinessProjectByID(missing) error = %v, want ErrScopeNotFound", err)
	}
}

func TestReader_Airdrop(t *testing.T) {
	h := localnettest.New(t)
	r := NewReader(h.Client, h.NonceVerify)
	ctx := context.Background()
	s := h.SetupAirdrop(0)

	ap, err := r.AirdropProject(ctx, h.Airdrop, s.Project)
	if err != nil {
		t.Fatalf("AirdropProject() error: %v", err)
	}
	if ap.Admin != s.Admin.PublicKey() {
		t.Errorf("admin = %s, want %s", ap.Admin, s.Admin.PublicKey())
	}
	if _, err := r.AirdropProject(ctx, h.Airdrop, s.Mint); !errors.Is(err, ErrWrongOwner) {
		t.Errorf("AirdropProject(mint) error = %v, want ErrWrongOwner", err)
	}

	mint, err := r.Mint(ctx, s.Mint)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	want := h.Must(h.Airdrop.FindMintAuthority(s.Project, s.Mint))
	if got, ok := mint.MintAuthority.Get(); !ok || got != want {
		t.Errorf("mint authority = %v, want %s", mint.MintAuthority, want)
	}
	if _, err := r.TokenAccount(ctx, types.PublicKey{6}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("TokenAccount(missing) error = %v, want ErrAccountNotFound", err)
	}
}

func TestReader_Distribute(t *testing.T) {
	h := localnettest.New(t)
	r := NewReader(h.Client, h.NonceVerify)
	ctx := context.Background()
	s := h.SetupDistribute(25)

	m, err := r.Manager(ctx, h.Distribute)
	if err != nil {
		t.Fatalf("Manager() error: %v", err)
	}
	if m.Admin != s.Admin.PublicKey() || m.UserFee != 25 {
		t.Errorf("manager = %+v", m)
	}
	pr, err := r.DistributeProject(ctx, h.Distribute, s.Project)
	if err != nil {
		t.Fatalf("DistributeProject() error: %v", err)
	}
	if pr.Admin != s.Admin.PublicKey() {
		t.Errorf("project admin = %s, want %s", pr.Admin, s.Admin.PublicKey())
	}
}

func TestReader_LookupTable(t *testing.T) {
	h := localnettest.New(t)
	r := NewReader(h.Client, h.NonceVerify)
	ctx := context.Background()

	addrs := []types.PublicKey{{1}, {2}, token.ProgramID}
	key := h.LookupTable(addrs...)

	tables, err := r.LookupTables(ctx, key)
	if err != nil {
		t.Fatalf("LookupTables() error: %v", err)
	}
	if len(tables) != 1 || tables[0].Key != key {
		t.Fatalf("tables = %+v", tables)
	}
	if len(tables[0].Addresses) != len(addrs) {
		t.Fatalf("addresses = %d, want %d", len(tables[0].Addresses), len(addrs))
	}
	for i, a := range addrs {
		if tables[0].Addresses[i] != a {
			t.Errorf("address[%d] = %s, want %s", i, tables[0].Addresses[i], a)
		}
	}

	if _, err := r.LookupTable(ctx, h.Payer.PublicKey()); !errors.Is(err, ErrWrongOwner) {
		t.Errorf("LookupTable(payer) error = %v, want ErrWrongOwner", err)
	}
}

// stubFetcher serves fixed accounts.
type stubFetcher map[types.PublicKey]*rpcclient.AccountInfo

func (s stubFetcher) GetSlot(context.Context, rpcclient.Commitment) (uint64, error) {
	return 0, nil
}

func (s stubFetcher) GetAccountInfo(_ context.Context, key types.PublicKey, _ rpcclient.Commitment) (*rpcclient.AccountInfo, error) {
	return s[key], nil
}

func (s stubFetcher) GetMultipleAccounts(_ context.Context, keys []types.PublicKey, _ rpcclient.Commitment) ([]*rpcclient.AccountInfo, error) {
	out := make([]*rpcclient.AccountInfo, len(keys))
	for i, k := range keys {
		out[i] = s[k]
	}
	return out, nil
}

func TestReader_CorruptData(t *testing.T) {
	h := localnettest.New(t)
	bp := types.PublicKey{1}
	user := types.PublicKey{2}
	nonceAddr := h.Must(h.NonceVerify.FindUserNonce(bp, user))
	fetch := stubFetcher{
		bp:        {Owner: h.NonceVerify.ID, Data: make([]byte, 8)},
		nonceAddr: {Owner: h.NonceVerify.ID, Data: []byte{1, 2}},
	}
	r := NewReader(fetch, h.NonceVerify)
	if _, err := r.UserNonce(context.Background(), bp, user); err == nil {
		t.Error("UserNonce() with truncated nonce data should fail")
	}
	if _, err := r.LookupTable(context.Background(), bp); !errors.Is(err, ErrWrongOwner) {
		t.Errorf("LookupTable() error = %v, want ErrWrongOwner", err)
	}
}
