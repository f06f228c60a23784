package localnet

import (
	"testing"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/ata"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/ed25519"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/token"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

var nv = nonceverify.Default

// initNonceProject creates a nonce project and returns its project ID.
func (e *testEnv) initNonceProject(admin *crypto.PrivateKey, businessFee, userFee uint32) types.PublicKey {
	e.t.Helper()
	projectID := newKey(e.t)
	params := nonceverify.InitializeNonceProjectParams{
		Payer:       e.payer.PublicKey(),
		ProjectID:   projectID.PublicKey(),
		Admin:       types.None[types.PublicKey](),
		BusinessFee: businessFee,
		UserFee:     userFee,
	}
	if admin != nil {
		params.Admin = types.Some(admin.PublicKey())
		params.RegisterNeedVerify = true
	}
	e.mustSend([]tx.Instruction{nv.InitializeNonceProject(params)}, projectID)
	return projectID.PublicKey()
}

func (e *testEnv) registerParams(projectID, authority types.PublicKey) (nonceverify.RegisterBusinessProjectParams, types.PublicKey) {
	bpID := newKey(e.t).PublicKey()
	np := pda(e.t)(nv.FindNonceProject(projectID))
	return nonceverify.RegisterBusinessProjectParams{
		Payer:             e.payer.PublicKey(),
		RegisterFeePayer:  e.payer.PublicKey(),
		NonceProjectID:    projectID,
		BusinessProjectID: bpID,
		Authority:         authority,
		Admin:             types.None[types.PublicKey](),
	}, pda(e.t)(nv.FindBusinessProject(np, bpID))
}

// registerBusiness registers a business project with authority and returns
// its address.
func (e *testEnv) registerBusiness(projectID, authority types.PublicKey) types.PublicKey {
	e.t.Helper()
	params, bp := e.registerParams(projectID, authority)
	e.mustSend([]tx.Instruction{nv.RegisterBusinessProject(params)})
	return bp
}

func (e *testEnv) initUserNonce(user *crypto.PrivateKey, bp types.PublicKey) {
	e.t.Helper()
	e.mustSend([]tx.Instruction{nv.InitUserNonce(e.payer.PublicKey(), user.PublicKey(), bp)}, user)
}

func (e *testEnv) nonceValue(bp, user types.PublicKey) uint32 {
	e.t.Helper()
	a := e.account(pda(e.t)(nv.FindUserNonce(bp, user)))
	if a == nil {
		e.t.Fatal("user nonce account missing")
	}
	st, err := nonceverify.DecodeUserBusinessNonceState(a.Data)
	if err != nil {
		e.t.Fatalf("DecodeUserBusinessNonceState() error: %v", err)
	}
	return st.NonceValue
}

func TestNonceVerify_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	authority := newKey(t)
	user := newKey(t)
	e.fund(user.PublicKey(), LamportsPerSOL)

	projectID := e.initNonceProject(nil, 1000, 500)
	vault := pda(t)(nv.FindNonceVault(projectID))
	if got := e.balance(vault); got != MinimumBalance(0) {
		t.Fatalf("vault balance = %d, want %d", got, MinimumBalance(0))
	}

	bp := e.registerBusiness(projectID, authority.PublicKey())
	if got := e.balance(vault); got != MinimumBalance(0)+1000 {
		t.Errorf("vault balance after register = %d, want business fee added", got)
	}
	e.initUserNonce(user, bp)
	if got := e.balance(user.PublicKey()); got != LamportsPerSOL-MinimumBalance(nonceverify.UserBusinessNonceStateSize) {
		t.Errorf("user balance = %d, want rent deducted", got)
	}

	verify := func(nonce uint32, signer *crypto.PrivateKey) error {
		_, err := e.send([]tx.Instruction{nv.VerifyNonce(nonceverify.VerifyNonceParams{
			Payer:           e.payer.PublicKey(),
			UserFeePayer:    e.payer.PublicKey(),
			User:            user.PublicKey(),
			BusinessProject: bp,
			Authority:       signer.PublicKey(),
			NonceProjectID:  projectID,
			Nonce:           nonce,
		})}, user, signer)
		return err
	}

	if err := verify(0, authority); err != nil {
		t.Fatalf("verify(0) error: %v", err)
	}
	if got := e.nonceValue(bp, user.PublicKey()); got != 1 {
		t.Errorf("nonce = %d, want 1", got)
	}
	wantCustom(t, verify(0, authority), 0, nonceverify.ErrCodeNonceValueNotMatch)
	wantCustom(t, verify(5, authority), 0, nonceverify.ErrCodeNonceValueNotMatch)
	wantCustom(t, verify(1, newKey(t)), 0, anchor.ErrCodeConstraintHasOne)
	if err := verify(1, authority); err != nil {
		t.Fatalf("verify(1) error: %v", err)
	}
	if got := e.nonceValue(bp, user.PublicKey()); got != 2 {
		t.Errorf("nonce = %d, want 2", got)
	}
	if got := e.balance(vault); got != MinimumBalance(0)+1000+2*500 {
		t.Errorf("vault balance = %d, want two user fees collected", got)
	}

	before := e.balance(user.PublicKey())
	nonceKey := pda(t)(nv.FindUserNonce(bp, user.PublicKey()))
	e.mustSend([]tx.Instruction{nv.CloseUserNonce(user.PublicKey(), bp)}, user)
	if e.account(nonceKey) != nil {
		t.Error("user nonce account still exists after close")
	}
	if got := e.balance(user.PublicKey()); got != before+MinimumBalance(nonceverify.UserBusinessNonceStateSize) {
		t.Errorf("user balance after close = %d, want rent refunded", got)
	}
}

func TestNonceVerify_InitTwice(t *testing.T) {
	e := newTestEnv(t)
	user := newKey(t)
	e.fund(user.PublicKey(), LamportsPerSOL)
	projectID := e.initNonceProject(nil, 0, 0)
	bp := e.registerBusiness(projectID, newKey(t).PublicKey())
	e.initUserNonce(user, bp)

	_, err := e.send([]tx.Instruction{nv.InitUserNonce(e.payer.PublicKey(), user.PublicKey(), bp)}, user)
	wantCustom(t, err, 0, errSystemAccountInUse)
}

func TestNonceVerify_AdminRegistration(t *testing.T) {
	e := newTestEnv(t)
	admin := newKey(t)
	projectID := e.initNonceProject(admin, 2000, 0)

	params, _ := e.registerParams(projectID, newKey(t).PublicKey())
	_, err := e.send([]tx.Instruction{nv.RegisterBusinessProject(params)})
	wantCustom(t, err, 0, nonceverify.ErrCodeRunOutOfAdminSignature)

	impostor := newKey(t)
	params.Admin = types.Some(impostor.PublicKey())
	_, err = e.send([]tx.Instruction{nv.RegisterBusinessProject(params)}, impostor)
	wantCustom(t, err, 0, nonceverify.ErrCodeRunOutOfAdminSignature)

	params.Admin = types.Some(admin.PublicKey())
	e.mustSend([]tx.Instruction{nv.RegisterBusinessProject(params)}, admin)

	receiver := newKey(t).PublicKey()
	e.fund(receiver, LamportsPerSOL)
	claim := nonceverify.ClaimNonceFeeParams{
		Payer:          e.payer.PublicKey(),
		Receiver:       receiver,
		Admin:          impostor.PublicKey(),
		NonceProjectID: projectID,
		Amount:         2000,
	}
	_, err = e.send([]tx.Instruction{nv.ClaimNonceFee(claim)}, impostor)
	wantCustom(t, err, 0, anchor.ErrCodeConstraintHasOne)

	claim.Admin = admin.PublicKey()
	e.mustSend([]tx.Instruction{nv.ClaimNonceFee(claim)}, admin)
	if got := e.balance(receiver); got != LamportsPerSOL+2000 {
		t.Errorf("receiver balance = %d, want fee claimed", got)
	}

	// The vault may not drop below its rent-exempt minimum.
	claim.Amount = 1
	_, err = e.send([]tx.Instruction{nv.ClaimNonceFee(claim)}, admin)
	wantFailure(t, err, tx.NewExecutionError(tx.KindInsufficientFundsForRent))
}

// airdropFixture is a nonce project, airdrop project and mint wired for
// claims.
type airdropFixture struct {
	e         *testEnv
	admin     *crypto.PrivateKey
	projectID types.PublicKey
	project   types.PublicKey
	business  types.PublicKey
	mint      types.PublicKey
}

func newAirdropFixture(t *testing.T) *airdropFixture {
	e := newTestEnv(t)
	f := &airdropFixture{e: e, admin: newKey(t)}
	p := airdrop.Default

	f.projectID = e.initNonceProject(nil, 0, 100)
	apID := newKey(t).PublicKey()
	f.project = pda(t)(p.FindAirdropProject(apID))
	e.mustSend([]tx.Instruction{p.InitializeAirdrop(e.payer.PublicKey(), apID, f.admin.PublicKey())})

	params, bp := e.registerParams(f.projectID, types.PublicKey{})
	params.Authority = pda(t)(p.FindBusinessAuthority(f.project, bp))
	e.mustSend([]tx.Instruction{nv.RegisterBusinessProject(params)})
	f.business = bp

	mint := newKey(t)
	f.mint = e.createMint(mint, pda(t)(p.FindMintAuthority(f.project, mint.PublicKey())))
	return f
}

func (f *airdropFixture) claim(claimant, signer *crypto.PrivateKey, nonce uint32, amount uint64) error {
	t := f.e.t
	t.Helper()
	payload := airdrop.ClaimPayload{
		Nonce:           nonce,
		Amount:          amount,
		Mint:            f.mint,
		Claimant:        claimant.PublicKey(),
		AirdropProject:  f.project,
		BusinessProject: f.business,
	}.Encode()
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	verify, err := ed25519.NewVerifyInstruction(signer.PublicKey(), sig, payload)
	if err != nil {
		t.Fatalf("NewVerifyInstruction() error: %v", err)
	}
	payer := f.e.payer.PublicKey()
	claim := airdrop.Default.Claim(airdrop.ClaimParams{
		Payer:           payer,
		NonceFeePayer:   payer,
		Claimant:        claimant.PublicKey(),
		SpaceFeePayer:   payer,
		AirdropProject:  f.project,
		Mint:            f.mint,
		NonceProgram:    nv,
		NonceProjectID:  f.projectID,
		BusinessProject: f.business,
		Amount:          amount,
		Nonce:           nonce,
		Signature:       sig,
	})
	_, err = f.e.send([]tx.Instruction{verify, claim}, claimant)
	return err
}

func TestAirdrop_Claim(t *testing.T) {
	f := newAirdropFixture(t)
	e := f.e
	claimant := newKey(t)
	e.fundUserNonce(claimant, f.business)
	tokenAccount := ata.MustFindAddress(claimant.PublicKey(), f.mint)

	if err := f.claim(claimant, f.admin, 0, 3000); err != nil {
		t.Fatalf("claim(0) error: %v", err)
	}
	if got := e.tokenBalance(tokenAccount); got != 3000 {
		t.Errorf("token balance = %d, want 3000", got)
	}

	// Replaying the same nonce fails in the nested verification.
	wantCustom(t, f.claim(claimant, f.admin, 0, 3000), 1, nonceverify.ErrCodeNonceValueNotMatch)

	if err := f.claim(claimant, f.admin, 1, 3000); err != nil {
		t.Fatalf("claim(1) error: %v", err)
	}
	if got := e.tokenBalance(tokenAccount); got != 6000 {
		t.Errorf("token balance = %d, want 6000", got)
	}
	if got := e.nonceValue(f.business, claimant.PublicKey()); got != 2 {
		t.Errorf("nonce = %d, want 2", got)
	}
}

func TestAirdrop_ClaimRejectsForeignSigner(t *testing.T) {
	f := newAirdropFixture(t)
	claimant := newKey(t)
	f.e.fundUserNonce(claimant, f.business)

	wantCustom(t, f.claim(claimant, newKey(t), 0, 3000), 1, airdrop.ErrCodeSigVerificationFailed)
}

func TestAirdrop_ClaimWithoutVerifyInstruction(t *testing.T) {
	f := newAirdropFixture(t)
	e := f.e
	claimant := newKey(t)
	e.fundUserNonce(claimant, f.business)

	payer := e.payer.PublicKey()
	claim := airdrop.Default.Claim(airdrop.ClaimParams{
		Payer:           payer,
		NonceFeePayer:   payer,
		Claimant:        claimant.PublicKey(),
		SpaceFeePayer:   payer,
		AirdropProject:  f.project,
		Mint:            f.mint,
		NonceProgram:    nv,
		NonceProjectID:  f.projectID,
		BusinessProject: f.business,
		Amount:          1,
	})
	_, err := e.send([]tx.Instruction{claim}, claimant)
	wantCustom(t, err, 0, airdrop.ErrCodeMissingEd25519Instruction)
}

func TestAirdrop_TransferAuthorityAndClose(t *testing.T) {
	f := newAirdropFixture(t)
	e := f.e
	p := airdrop.Default
	next := newKey(t).PublicKey()
	payer := e.payer.PublicKey()

	_, err := e.send([]tx.Instruction{p.TransferMintAuthority(payer, payer, f.project, f.mint, next)})
	wantCustom(t, err, 0, anchor.ErrCodeConstraintHasOne)

	e.mustSend([]tx.Instruction{p.TransferMintAuthority(payer, f.admin.PublicKey(), f.project, f.mint, next)}, f.admin)
	m, err := token.DecodeMint(e.account(f.mint).Data)
	if err != nil {
		t.Fatalf("DecodeMint() error: %v", err)
	}
	if got, _ := m.MintAuthority.Get(); got != next {
		t.Errorf("mint authority = %s, want %s", got, next)
	}

	receiver := newKey(t).PublicKey()
	e.mustSend([]tx.Instruction{p.CloseAirdrop(payer, receiver, f.admin.PublicKey(), f.project)}, f.admin)
	if e.account(f.project) != nil {
		t.Error("airdrop project still exists after close")
	}
	if got := e.balance(receiver); got != MinimumBalance(airdrop.AirdropProjectSize) {
		t.Errorf("receiver balance = %d, want project rent", got)
	}
}

// fundUserNonce funds user and creates its nonce account.
func (e *testEnv) fundUserNonce(user *crypto.PrivateKey, bp types.PublicKey) {
	e.t.Helper()
	e.fund(user.PublicKey(), LamportsPerSOL)
	e.initUserNonce(user, bp)
}

// distributeFixture is an initialized manager and project with a mint
// controlled by the project.
type distributeFixture struct {
	e       *testEnv
	admin   *crypto.PrivateKey
	project types.PublicKey
	mint    types.PublicKey
}

func newDistributeFixture(t *testing.T, fee uint32) *distributeFixture {
	e := newTestEnv(t)
	p := distribute.Default
	f := &distributeFixture{e: e, admin: newKey(t)}
	payer := e.payer.PublicKey()

	e.mustSend([]tx.Instruction{p.InitManager(payer, f.admin.PublicKey(), fee)}, f.admin)
	project := newKey(t)
	e.mustSend([]tx.Instruction{p.InitProject(payer, f.admin.PublicKey(), project.PublicKey())}, project)
	f.project = project.PublicKey()

	mint := newKey(t)
	f.mint = e.createMint(mint, pda(t)(p.FindMintAuthority(f.project, mint.PublicKey())))
	return f
}

func (f *distributeFixture) instruction(admin types.PublicKey, receivers []distribute.Receiver) tx.Instruction {
	return distribute.Default.Distribute(distribute.DistributeParams{
		Payer:     f.e.payer.PublicKey(),
		Admin:     admin,
		Project:   f.project,
		Mint:      f.mint,
		Receivers: receivers,
	})
}

func TestDistribute_Receivers(t *testing.T) {
	f := newDistributeFixture(t, 1000)
	e := f.e
	feeReceiver := pda(t)(distribute.Default.FindFeeReceiver())
	before := e.balance(feeReceiver)

	receivers := []distribute.Receiver{
		{Owner: newKey(t).PublicKey(), Amount: 10},
		{Owner: newKey(t).PublicKey(), Amount: 20},
		{Owner: newKey(t).PublicKey(), Amount: 30},
	}
	e.mustSend([]tx.Instruction{f.instruction(f.admin.PublicKey(), receivers)}, f.admin)
	for _, r := range receivers {
		if got := e.tokenBalance(ata.MustFindAddress(r.Owner, f.mint)); got != r.Amount {
			t.Errorf("balance of %s = %d, want %d", r.Owner, got, r.Amount)
		}
	}
	if got := e.balance(feeReceiver); got != before+3000 {
		t.Errorf("fee receiver balance = %d, want %d", got, before+3000)
	}

	// Existing token accounts are reused.
	e.mustSend([]tx.Instruction{f.instruction(f.admin.PublicKey(), receivers)}, f.admin)
	if got := e.tokenBalance(ata.MustFindAddress(receivers[2].Owner, f.mint)); got != 60 {
		t.Errorf("balance after second distribution = %d, want 60", got)
	}
}

func TestDistribute_Errors(t *testing.T) {
	f := newDistributeFixture(t, 0)
	e := f.e
	receivers := []distribute.Receiver{
		{Owner: newKey(t).PublicKey(), Amount: 1},
		{Owner: newKey(t).PublicKey(), Amount: 2},
	}

	short := f.instruction(f.admin.PublicKey(), receivers)
	short.Accounts = short.Accounts[:len(short.Accounts)-2]
	_, err := e.send([]tx.Instruction{short}, f.admin)
	wantCustom(t, err, 0, distribute.ErrCodeReceiverCountNotMatch)

	swapped := f.instruction(f.admin.PublicKey(), receivers)
	n := distribute.FixedAccounts
	swapped.Accounts[n+1], swapped.Accounts[n+3] = swapped.Accounts[n+3], swapped.Accounts[n+1]
	_, err = e.send([]tx.Instruction{swapped}, f.admin)
	wantCustom(t, err, 0, distribute.ErrCodeReceiverTokenAccountMismatch)

	other := newKey(t)
	_, err = e.send([]tx.Instruction{f.instruction(other.PublicKey(), receivers)}, other)
	wantCustom(t, err, 0, anchor.ErrCodeConstraintHasOne)
}

func TestDistribute_ManagerAndProjectUpdates(t *testing.T) {
	f := newDistributeFixture(t, 1000)
	e := f.e
	p := distribute.Default
	payer := e.payer.PublicKey()

	_, err := e.send([]tx.Instruction{p.InitManager(payer, f.admin.PublicKey(), 5)}, f.admin)
	wantCustom(t, err, 0, distribute.ErrCodeAlreadyInitialized)

	e.mustSend([]tx.Instruction{p.UpdateManager(payer, f.admin.PublicKey(), types.None[types.PublicKey](), types.Some[uint32](5))}, f.admin)
	m, err := distribute.DecodeManager(e.account(pda(t)(p.FindManager())).Data)
	if err != nil {
		t.Fatalf("DecodeManager() error: %v", err)
	}
	if m.UserFee != 5 || m.Admin != f.admin.PublicKey() {
		t.Errorf("manager = %+v, want fee 5 and unchanged admin", m)
	}

	nextAdmin := newKey(t)
	e.mustSend([]tx.Instruction{p.UpdateProject(payer, f.admin.PublicKey(), f.project, nextAdmin.PublicKey())}, f.admin)
	pr, err := distribute.DecodeProject(e.account(f.project).Data)
	if err != nil {
		t.Fatalf("DecodeProject() error: %v", err)
	}
	if pr.Admin != nextAdmin.PublicKey() {
		t.Errorf("project admin = %s, want %s", pr.Admin, nextAdmin.PublicKey())
	}

	_, err = e.send([]tx.Instruction{p.TransferMintAuthority(payer, f.admin.PublicKey(), f.project, f.mint, payer)}, f.admin)
	wantCustom(t, err, 0, anchor.ErrCodeConstraintHasOne)
	e.mustSend([]tx.Instruction{p.TransferMintAuthority(payer, nextAdmin.PublicKey(), f.project, f.mint, payer)}, nextAdmin)
	mint, err := token.DecodeMint(e.account(f.mint).Data)
	if err != nil {
		t.Fatalf("DecodeMint() error: %v", err)
	}
	if got, _ := mint.MintAuthority.Get(); got != payer {
		t.Errorf("mint authority = %s, want %s", got, payer)
	}

	receiver := newKey(t).PublicKey()
	e.fund(receiver, LamportsPerSOL)
	_, err = e.send([]tx.Instruction{p.ClaimFee(payer, receiver, f.admin.PublicKey(), 1)}, f.admin)
	wantFailure(t, err, tx.NewExecutionError(tx.KindInsufficientFundsForRent))
}
