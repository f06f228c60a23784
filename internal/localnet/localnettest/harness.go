// Package localnettest runs a local ledger behind a JSON-RPC server for
// tests of code that talks to a node.
package localnettest

import (
	"context"
	"testing"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/localnet"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/rpc"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/lookuptable"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Harness is a ledger, the RPC server in front of it and a client, with a
// funded payer.
type Harness struct {
	T      testing.TB
	Ledger *localnet.Ledger
	Client *rpcclient.Client
	Payer  *crypto.PrivateKey

	NonceVerify nonceverify.Program
	Airdrop     airdrop.Program
	Distribute  distribute.Program
}

// New starts a harness. The ledger does not produce slots on its own; tests
// move it with Ledger.Advance. Everything is torn down by t.Cleanup.
func New(t testing.TB) *Harness {
	t.Helper()
	klog.Init("error", false, "")

	l, err := localnet.New(storage.NewMemory(), localnet.Config{
		FinalityDepth:  2,
		FaucetLamports: 1000 * localnet.LamportsPerSOL,
	})
	if err != nil {
		t.Fatalf("localnet.New() error: %v", err)
	}
	l.Advance(3)

	srv := rpc.New("127.0.0.1:0", l)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	h := &Harness{
		T:           t,
		Ledger:      l,
		Client:      rpcclient.New(srv.URL()),
		Payer:       NewKey(t),
		NonceVerify: nonceverify.Default,
		Airdrop:     airdrop.Default,
		Distribute:  distribute.Default,
	}
	h.Fund(h.Payer.PublicKey(), 100*localnet.LamportsPerSOL)
	return h
}

// AutoAdvance produces a slot every interval until the test ends, so
// commitment waits make progress.
func (h *Harness) AutoAdvance(interval time.Duration) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.Ledger.Advance(1)
			}
		}
	}()
	h.T.Cleanup(func() {
		close(stop)
		<-done
	})
}

// NewKey generates a keypair or fails the test.
func NewKey(t testing.TB) *crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return k
}

// Must unwraps a derived address or fails the test.
func (h *Harness) Must(k types.PublicKey, _ uint8, err error) types.PublicKey {
	h.T.Helper()
	if err != nil {
		h.T.Fatalf("derive address: %v", err)
	}
	return k
}

// Fund credits lamports to key from the faucet.
func (h *Harness) Fund(key types.PublicKey, lamports uint64) {
	h.T.Helper()
	if _, err := h.Ledger.RequestAirdrop(key, lamports); err != nil {
		h.T.Fatalf("RequestAirdrop() error: %v", err)
	}
}

// Send builds a legacy transaction paid by the harness payer, advances one
// slot so repeated instructions get fresh signatures, and submits it.
func (h *Harness) Send(ixs []tx.Instruction, signers ...crypto.Signer) *localnet.Result {
	h.T.Helper()
	h.Ledger.Advance(1)
	bh, _ := h.Ledger.LatestBlockhash(localnet.CommitmentProcessed)
	all := append([]crypto.Signer{h.Payer}, signers...)
	t, err := tx.NewBuilder(h.Payer.PublicKey()).
		AddInstruction(ixs...).
		SetRecentBlockhash(bh).
		BuildSigned(all...)
	if err != nil {
		h.T.Fatalf("BuildSigned() error: %v", err)
	}
	res, err := h.Ledger.Submit(t, false)
	if err != nil {
		if res != nil {
			for _, line := range res.Logs {
				h.T.Log(line)
			}
		}
		h.T.Fatalf("Submit() error: %v", err)
	}
	return res
}

// CreateMint creates a 6-decimal mint controlled by authority.
func (h *Harness) CreateMint(authority types.PublicKey) types.PublicKey {
	h.T.Helper()
	mint := NewKey(h.T)
	h.Send([]tx.Instruction{
		system.CreateAccount(h.Payer.PublicKey(), mint.PublicKey(), localnet.MinimumBalance(token.MintSize), token.MintSize, token.ProgramID),
		token.InitializeMint2(mint.PublicKey(), 6, authority, types.None[types.PublicKey]()),
	}, mint)
	return mint.PublicKey()
}

// NonceProject creates an unguarded nonce project with the given fees and
// returns its project ID.
func (h *Harness) NonceProject(businessFee, userFee uint32) types.PublicKey {
	h.T.Helper()
	id := NewKey(h.T)
	h.Send([]tx.Instruction{h.NonceVerify.InitializeNonceProject(nonceverify.InitializeNonceProjectParams{
		Payer:       h.Payer.PublicKey(),
		ProjectID:   id.PublicKey(),
		Admin:       types.None[types.PublicKey](),
		BusinessFee: businessFee,
		UserFee:     userFee,
	})}, id)
	return id.PublicKey()
}

// BusinessProject registers a business project with authority under the
// nonce project projectID and returns its address.
func (h *Harness) BusinessProject(projectID, authority types.PublicKey) types.PublicKey {
	h.T.Helper()
	_, bp := h.registerBusiness(projectID, func(types.PublicKey) types.PublicKey { return authority })
	return bp
}

func (h *Harness) registerBusiness(projectID types.PublicKey, authority func(bp types.PublicKey) types.PublicKey) (types.PublicKey, types.PublicKey) {
	h.T.Helper()
	bpID := NewKey(h.T).PublicKey()
	np := h.Must(h.NonceVerify.FindNonceProject(projectID))
	bp := h.Must(h.NonceVerify.FindBusinessProject(np, bpID))
	h.Send([]tx.Instruction{h.NonceVerify.RegisterBusinessProject(nonceverify.RegisterBusinessProjectParams{
		Payer:             h.Payer.PublicKey(),
		RegisterFeePayer:  h.Payer.PublicKey(),
		NonceProjectID:    projectID,
		BusinessProjectID: bpID,
		Authority:         authority(bp),
		Admin:             types.None[types.PublicKey](),
	})})
	return bpID, bp
}

// AirdropSetup is an airdrop project with a business project and a mint it
// controls.
type AirdropSetup struct {
	Admin           *crypto.PrivateKey
	NonceProjectID  types.PublicKey
	ProjectID       types.PublicKey
	Project         types.PublicKey
	BusinessProject types.PublicKey
	Mint            types.PublicKey
}

// SetupAirdrop creates an airdrop project ready for claims. The nonce project
// charges userFee lamports per verification.
func (h *Harness) SetupAirdrop(userFee uint32) *AirdropSetup {
	h.T.Helper()
	s := &AirdropSetup{Admin: NewKey(h.T)}
	s.NonceProjectID = h.NonceProject(0, userFee)
	s.ProjectID = NewKey(h.T).PublicKey()
	s.Project = h.Must(h.Airdrop.FindAirdropProject(s.ProjectID))
	h.Send([]tx.Instruction{h.Airdrop.InitializeAirdrop(h.Payer.PublicKey(), s.ProjectID, s.Admin.PublicKey())})

	_, s.BusinessProject = h.registerBusiness(s.NonceProjectID, func(bp types.PublicKey) types.PublicKey {
		return h.Must(h.Airdrop.FindBusinessAuthority(s.Project, bp))
	})
	// The mint authority PDA depends on the mint key, so create the mint
	// under the payer and hand it over.
	s.Mint = h.CreateMint(h.Payer.PublicKey())
	auth := h.Must(h.Airdrop.FindMintAuthority(s.Project, s.Mint))
	h.Send([]tx.Instruction{token.SetMintAuthority(s.Mint, h.Payer.PublicKey(), types.Some(auth))})
	return s
}

// DistributeSetup is an initialized manager and project with a mint the
// project controls.
type DistributeSetup struct {
	Admin   *crypto.PrivateKey
	Project types.PublicKey
	Mint    types.PublicKey
}

// SetupDistribute initializes the manager with fee and a project administered by
// a fresh admin.
func (h *Harness) SetupDistribute(fee uint32) *DistributeSetup {
	h.T.Helper()
	s := &DistributeSetup{Admin: NewKey(h.T)}
	payer := h.Payer.PublicKey()
	h.Send([]tx.Instruction{h.Distribute.InitManager(payer, s.Admin.PublicKey(), fee)}, s.Admin)
	project := NewKey(h.T)
	h.Send([]tx.Instruction{h.Distribute.InitProject(payer, s.Admin.PublicKey(), project.PublicKey())}, project)
	s.Project = project.PublicKey()

	s.Mint = h.CreateMint(payer)
	auth := h.Must(h.Distribute.FindMintAuthority(s.Project, s.Mint))
	h.Send([]tx.Instruction{token.SetMintAuthority(s.Mint, payer, types.Some(auth))})
	return s
}

// LookupTable creates a table owned by the payer holding addresses and
// advances past the slot it was extended in, so it is usable right away.
func (h *Harness) LookupTable(addresses ...types.PublicKey) types.PublicKey {
	h.T.Helper()
	payer := h.Payer.PublicKey()
	create, table, err := lookuptable.Create(payer, payer, h.Ledger.Slot(localnet.CommitmentProcessed))
	if err != nil {
		h.T.Fatalf("lookuptable.Create() error: %v", err)
	}
	h.Send([]tx.Instruction{create})
	for start := 0; start < len(addresses); start += 20 {
		end := min(start+20, len(addresses))
		h.Send([]tx.Instruction{lookuptable.Extend(table, payer, payer, addresses[start:end])})
	}
	h.Ledger.Advance(1)
	return table
}

// Balance returns the lamports held by key at processed commitment.
func (h *Harness) Balance(key types.PublicKey) uint64 {
	h.T.Helper()
	b, err := h.Client.GetBalance(context.Background(), key, rpcclient.CommitmentProcessed)
	if err != nil {
		h.T.Fatalf("GetBalance() error: %v", err)
	}
	return b
}

// TokenBalance returns the amount held by the token account at key, or 0
// when it does not exist.
func (h *Harness) TokenBalance(key types.PublicKey) uint64 {
	h.T.Helper()
	a, err := h.Ledger.Account(key)
	if err != nil {
		h.T.Fatalf("Account() error: %v", err)
	}
	if a == nil {
		return 0
	}
	acct, err := token.DecodeAccount(a.Data)
	if err != nil {
		h.T.Fatalf("DecodeAccount() error: %v", err)
	}
	return acct.Amount
}
