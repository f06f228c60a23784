package distribute

import (
	"testing"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestDistribute_Accounts(t *testing.T) {
	params := DistributeParams{
		Payer:   types.PublicKey{1},
		Admin:   types.PublicKey{2},
		Project: types.PublicKey{3},
		Mint:    types.PublicKey{4},
		Receivers: []Receiver{
			{Owner: types.PublicKey{5}, Amount: 10},
			{Owner: types.PublicKey{6}, Amount: 20},
		},
	}
	ix := Default.Distribute(params)

	if len(ix.Accounts) != FixedAccounts+4 {
		t.Fatalf("len(Accounts) = %d, want %d", len(ix.Accounts), FixedAccounts+4)
	}
	if !ix.Accounts[3].IsSigner || ix.Accounts[3].PublicKey != params.Admin {
		t.Error("account 3 must be the signing admin")
	}
	for i, r := range params.Receivers {
		owner := ix.Accounts[FixedAccounts+2*i]
		acct := ix.Accounts[FixedAccounts+2*i+1]
		if owner.PublicKey != r.Owner || owner.IsWritable {
			t.Errorf("receiver %d owner meta = %+v", i, owner)
		}
		if acct.PublicKey != ata.MustFindAddress(r.Owner, params.Mint) || !acct.IsWritable {
			t.Errorf("receiver %d token account meta = %+v", i, acct)
		}
	}

	d := anchor.NewDecoder(ix.Data[anchor.DiscriminatorSize:])
	amounts := d.VecU64()
	if d.Err() != nil || len(amounts) != 2 || amounts[0] != 10 || amounts[1] != 20 {
		t.Errorf("amounts = %v, err %v", amounts, d.Err())
	}
}

func TestUpdateManager_Options(t *testing.T) {
	ix := Default.UpdateManager(types.PublicKey{1}, types.PublicKey{2}, types.None[types.PublicKey](), types.Some[uint32](7))
	want := []byte{0, 1, 7, 0, 0, 0}
	got := ix.Data[anchor.DiscriminatorSize:]
	if string(got) != string(want) {
		t.Errorf("args = %x, want %x", got, want)
	}
}

func TestLookupAddresses_Dedupe(t *testing.T) {
	admin := types.PublicKey{2}
	addrs := Default.LookupAddresses(types.Some(admin), admin, types.PublicKey{3}, types.PublicKey{4})
	seen := map[types.PublicKey]bool{}
	for _, a := range addrs {
		if seen[a] {
			t.Fatalf("duplicate address %s", a)
		}
		seen[a] = true
	}
	if len(addrs) != 9 {
		t.Errorf("len(LookupAddresses()) = %d, want 9", len(addrs))
	}
}

func TestMaxReceivers(t *testing.T) {
	tests := []struct {
		withTables bool
		want       int
	}{
		{false, 8},
		{true, 11},
	}
	for _, tt := range tests {
		if got := MaxReceivers(tt.withTables); got != tt.want {
			t.Errorf("MaxReceivers(%v) = %d, want %d", tt.withTables, got, tt.want)
		}
	}
}

func TestAccounts_EncodeDecode(t *testing.T) {
	m := Manager{Initialized: true, Admin: types.PublicKey{1}, FeeReceiver: types.PublicKey{2}, UserFee: 5000}
	data := m.Encode()
	if len(data) != ManagerSize {
		t.Errorf("len(Manager.Encode()) = %d, want %d", len(data), ManagerSize)
	}
	got, err := DecodeManager(data)
	if err != nil || got != m {
		t.Errorf("DecodeManager() = %+v, %v", got, err)
	}

	pr := Project{Admin: types.PublicKey{9}}
	if len(pr.Encode()) != ProjectSize {
		t.Errorf("len(Project.Encode()) = %d, want %d", len(pr.Encode()), ProjectSize)
	}
	if _, err := DecodeProject(m.Encode()); err == nil {
		t.Error("DecodeProject accepted manager data")
	}
}
