package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/localnet"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// testEnv holds a ledger served over RPC.
type testEnv struct {
	server *Server
	ledger *localnet.Ledger
	url    string
	payer  *crypto.PrivateKey
}

func setupTestEnv(t *testing.T, cfg ...config.LocalnetConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	l, err := localnet.New(storage.NewMemory(), localnet.Config{
		FinalityDepth:  2,
		FaucetLamports: 10 * localnet.LamportsPerSOL,
	})
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	l.Advance(3)

	srv := New("127.0.0.1:0", l, cfg...)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	payer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := l.RequestAirdrop(payer.PublicKey(), 5*localnet.LamportsPerSOL); err != nil {
		t.Fatalf("fund payer: %v", err)
	}

	return &testEnv{server: srv, ledger: l, url: srv.URL(), payer: payer}
}

func rpcCall(t *testing.T, url, method string, params ...interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      1,
	}
	if len(params) > 0 {
		req.Params = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(t, resp.Body)
}

// decodeResponse keeps numbers intact so u64 fields survive re-decoding.
func decodeResponse(t *testing.T, r io.Reader) Response {
	t.Helper()
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var rpcResp Response
	if err := dec.Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// mustResult calls method and decodes its result into out.
func mustResult(t *testing.T, url, method string, out interface{}, params ...interface{}) {
	t.Helper()
	resp := rpcCall(t, url, method, params...)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	data, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("%s: decode result: %v", method, err)
	}
}

func (e *testEnv) transfer(t *testing.T, to types.PublicKey, lamports uint64) *tx.Transaction {
	t.Helper()
	h, _ := e.ledger.LatestBlockhash(localnet.CommitmentProcessed)
	txn, err := tx.NewBuilder(e.payer.PublicKey()).
		AddInstruction(system.Transfer(e.payer.PublicKey(), to, lamports)).
		SetRecentBlockhash(h).
		BuildSigned(e.payer)
	if err != nil {
		t.Fatalf("build transfer: %v", err)
	}
	return txn
}

func encode64(t *testing.T, txn *tx.Transaction) string {
	t.Helper()
	s, err := txn.Base64()
	if err != nil {
		t.Fatalf("Base64() error: %v", err)
	}
	return s
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_Health(t *testing.T) {
	env := setupTestEnv(t)
	var got string
	mustResult(t, env.url, "getHealth", &got)
	if got != "ok" {
		t.Errorf("getHealth = %q, want %q", got, "ok")
	}
}

func TestRPC_GetSlot(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		commitment string
		want       uint64
	}{
		{"processed", 3},
		{"confirmed", 2},
		{"finalized", 1},
		{"", 1},
	}
	for _, tt := range tests {
		var got uint64
		mustResult(t, env.url, "getSlot", &got, CommitmentConfig{Commitment: tt.commitment})
		if got != tt.want {
			t.Errorf("getSlot(%q) = %d, want %d", tt.commitment, got, tt.want)
		}
	}

	resp := rpcCall(t, env.url, "getSlot", CommitmentConfig{Commitment: "rooted"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("getSlot(rooted) error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_GetLatestBlockhash(t *testing.T) {
	env := setupTestEnv(t)

	var got WithContext[LatestBlockhash]
	mustResult(t, env.url, "getLatestBlockhash", &got, CommitmentConfig{Commitment: "confirmed"})
	want, lastValid := env.ledger.LatestBlockhash(localnet.CommitmentConfirmed)
	if got.Value.Blockhash != want {
		t.Errorf("blockhash = %s, want %s", got.Value.Blockhash, want)
	}
	if got.Value.LastValidBlockHeight != lastValid {
		t.Errorf("lastValidBlockHeight = %d, want %d", got.Value.LastValidBlockHeight, lastValid)
	}
	if got.Context.Slot != 2 {
		t.Errorf("context slot = %d, want 2", got.Context.Slot)
	}

	var valid WithContext[bool]
	mustResult(t, env.url, "isBlockhashValid", &valid, want)
	if !valid.Value {
		t.Error("isBlockhashValid() = false for the latest blockhash")
	}
	mustResult(t, env.url, "isBlockhashValid", &valid, types.Hash{9})
	if valid.Value {
		t.Error("isBlockhashValid() = true for an unknown blockhash")
	}
}

func TestRPC_GetAccountInfo(t *testing.T) {
	env := setupTestEnv(t)

	var got WithContext[*AccountInfo]
	mustResult(t, env.url, "getAccountInfo", &got, env.payer.PublicKey(), AccountInfoConfig{Encoding: "base64"})
	if got.Value == nil {
		t.Fatal("getAccountInfo(payer) = null")
	}
	if got.Value.Lamports != 5*localnet.LamportsPerSOL {
		t.Errorf("lamports = %d, want %d", got.Value.Lamports, 5*localnet.LamportsPerSOL)
	}
	if got.Value.Owner != system.ProgramID {
		t.Errorf("owner = %s, want %s", got.Value.Owner, system.ProgramID)
	}
	if got.Value.RentEpoch != RentEpochExempt {
		t.Errorf("rentEpoch = %d, want %d", got.Value.RentEpoch, RentEpochExempt)
	}

	mustResult(t, env.url, "getAccountInfo", &got, types.PublicKey{7})
	if got.Value != nil {
		t.Errorf("getAccountInfo(missing) = %+v, want null", got.Value)
	}

	var program WithContext[*AccountInfo]
	mustResult(t, env.url, "getAccountInfo", &program, system.ProgramID)
	if program.Value == nil || !program.Value.Executable {
		t.Errorf("system program account = %+v, want executable", program.Value)
	}

	resp := rpcCall(t, env.url, "getAccountInfo", env.payer.PublicKey(), AccountInfoConfig{Encoding: "jsonParsed"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("jsonParsed encoding error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_GetMultipleAccounts(t *testing.T) {
	env := setupTestEnv(t)

	var got WithContext[[]*AccountInfo]
	keys := []types.PublicKey{env.payer.PublicKey(), {7}, system.ProgramID}
	mustResult(t, env.url, "getMultipleAccounts", &got, keys)
	if len(got.Value) != 3 {
		t.Fatalf("len(value) = %d, want 3", len(got.Value))
	}
	if got.Value[0] == nil || got.Value[1] != nil || got.Value[2] == nil {
		t.Errorf("value = %v, want [account, null, account]", got.Value)
	}

	tooMany := make([]types.PublicKey, MaxMultipleAccounts+1)
	resp := rpcCall(t, env.url, "getMultipleAccounts", tooMany)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_RequestAirdropAndBalance(t *testing.T) {
	env := setupTestEnv(t)
	to := types.PublicKey{42}

	var sig types.Signature
	mustResult(t, env.url, "requestAirdrop", &sig, to, uint64(1_000_000))
	if sig.IsZero() {
		t.Error("requestAirdrop returned an empty signature")
	}

	var bal WithContext[uint64]
	mustResult(t, env.url, "getBalance", &bal, to)
	if bal.Value != 1_000_000 {
		t.Errorf("getBalance = %d, want 1000000", bal.Value)
	}

	resp := rpcCall(t, env.url, "requestAirdrop", to, uint64(11*localnet.LamportsPerSOL))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("over-limit airdrop error = %+v, want invalid params", resp.Error)
	}

	resp = rpcCall(t, env.url, "requestAirdrop", to)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("missing lamports error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_GetMinimumBalance(t *testing.T) {
	env := setupTestEnv(t)
	var got uint64
	mustResult(t, env.url, "getMinimumBalanceForRentExemption", &got, 165)
	if got != 2_039_280 {
		t.Errorf("getMinimumBalanceForRentExemption(165) = %d, want 2039280", got)
	}
}

func TestRPC_SendTransaction(t *testing.T) {
	env := setupTestEnv(t)
	to := types.PublicKey{5}
	txn := env.transfer(t, to, localnet.LamportsPerSOL)

	var sig types.Signature
	mustResult(t, env.url, "sendTransaction", &sig, encode64(t, txn), SendConfig{Encoding: "base64"})
	if sig != txn.Signature() {
		t.Errorf("signature = %s, want %s", sig, txn.Signature())
	}

	var statuses WithContext[[]*SignatureStatus]
	mustResult(t, env.url, "getSignatureStatuses", &statuses, []types.Signature{sig, {1}})
	if len(statuses.Value) != 2 {
		t.Fatalf("len(statuses) = %d, want 2", len(statuses.Value))
	}
	st := statuses.Value[0]
	if st == nil || st.ConfirmationStatus != StatusProcessed || st.Err != nil {
		t.Fatalf("status = %+v, want processed without error", st)
	}
	if statuses.Value[1] != nil {
		t.Errorf("unknown signature status = %+v, want null", statuses.Value[1])
	}

	env.ledger.Advance(2)
	mustResult(t, env.url, "getSignatureStatuses", &statuses, []types.Signature{sig})
	st = statuses.Value[0]
	if !st.Reached(StatusFinalized) || st.Confirmations != nil {
		t.Errorf("status after 2 slots = %+v, want finalized", st)
	}

	// Replays are rejected by preflight.
	resp := rpcCall(t, env.url, "sendTransaction", encode64(t, txn), SendConfig{Encoding: "base64"})
	if resp.Error == nil || resp.Error.Code != CodePreflightFailure {
		t.Errorf("replay error = %+v, want preflight failure", resp.Error)
	}
}

func TestRPC_SendTransactionBase58(t *testing.T) {
	env := setupTestEnv(t)
	txn := env.transfer(t, types.PublicKey{5}, 1_000_000)
	b, err := txn.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	var sig types.Signature
	mustResult(t, env.url, "sendTransaction", &sig, base58.Encode(b))
	if sig != txn.Signature() {
		t.Errorf("signature = %s, want %s", sig, txn.Signature())
	}
}

func TestRPC_SendTransactionPreflightFailure(t *testing.T) {
	env := setupTestEnv(t)
	// Leaves the recipient below the rent-exempt minimum.
	txn := env.transfer(t, types.PublicKey{5}, 1000)

	resp := rpcCall(t, env.url, "sendTransaction", encode64(t, txn), SendConfig{Encoding: "base64"})
	if resp.Error == nil || resp.Error.Code != CodePreflightFailure {
		t.Fatalf("error = %+v, want preflight failure", resp.Error)
	}
	data, _ := json.Marshal(resp.Error.Data)
	var sim SimulationResult
	if err := json.Unmarshal(data, &sim); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if sim.Err == nil || sim.Err.Kind != tx.KindInsufficientFundsForRent {
		t.Errorf("data.err = %v, want %s", sim.Err, tx.KindInsufficientFundsForRent)
	}
	if len(sim.Logs) == 0 {
		t.Error("data.logs is empty")
	}

	var statuses WithContext[[]*SignatureStatus]
	mustResult(t, env.url, "getSignatureStatuses", &statuses, []types.Signature{txn.Signature()})
	if statuses.Value[0] != nil {
		t.Errorf("rejected transaction has status %+v", statuses.Value[0])
	}
}

func TestRPC_SendTransactionBadSignature(t *testing.T) {
	env := setupTestEnv(t)
	txn := env.transfer(t, types.PublicKey{5}, localnet.LamportsPerSOL)
	txn.Signatures[0][0] ^= 0xff

	resp := rpcCall(t, env.url, "sendTransaction", encode64(t, txn), SendConfig{Encoding: "base64"})
	if resp.Error == nil || resp.Error.Code != CodeSignatureVerificationFailure {
		t.Errorf("error = %+v, want signature verification failure", resp.Error)
	}
}

func TestRPC_SendTransactionMalformed(t *testing.T) {
	env := setupTestEnv(t)
	tests := []struct {
		name string
		raw  string
		cfg  SendConfig
	}{
		{"bad base64", "%%%", SendConfig{Encoding: "base64"}},
		{"truncated", "AQ==", SendConfig{Encoding: "base64"}},
		{"unknown encoding", "AQ==", SendConfig{Encoding: "hex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, env.url, "sendTransaction", tt.raw, tt.cfg)
			if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
				t.Errorf("error = %+v, want invalid params", resp.Error)
			}
		})
	}
}

func TestRPC_SimulateTransaction(t *testing.T) {
	env := setupTestEnv(t)
	txn := env.transfer(t, types.PublicKey{5}, localnet.LamportsPerSOL)
	txn.Message.RecentBlockhash = types.Hash{1}
	txn.Signatures[0] = types.Signature{}

	var got WithContext[*SimulationResult]
	mustResult(t, env.url, "simulateTransaction", &got, encode64(t, txn), SimulateConfig{
		Encoding:               "base64",
		ReplaceRecentBlockhash: true,
		Commitment:             "confirmed",
	})
	sim := got.Value
	if sim.Err != nil {
		t.Fatalf("simulation error: %v", sim.Err)
	}
	if sim.UnitsConsumed == nil || *sim.UnitsConsumed == 0 {
		t.Errorf("unitsConsumed = %v, want > 0", sim.UnitsConsumed)
	}
	if sim.ReplacementBlockhash == nil {
		t.Fatal("replacementBlockhash missing")
	}
	if h, _ := env.ledger.LatestBlockhash(localnet.CommitmentProcessed); sim.ReplacementBlockhash.Blockhash != h {
		t.Errorf("replacement = %s, want %s", sim.ReplacementBlockhash.Blockhash, h)
	}

	// Simulation leaves no trace.
	var bal WithContext[uint64]
	mustResult(t, env.url, "getBalance", &bal, types.PublicKey{5})
	if bal.Value != 0 {
		t.Errorf("balance after simulation = %d, want 0", bal.Value)
	}

	mustResult(t, env.url, "simulateTransaction", &got, encode64(t, txn), SimulateConfig{Encoding: "base64"})
	if got.Value.Err == nil || got.Value.Err.Kind != tx.KindBlockhashNotFound {
		t.Errorf("err = %v, want %s", got.Value.Err, tx.KindBlockhashNotFound)
	}

	resp := rpcCall(t, env.url, "simulateTransaction", encode64(t, txn), SimulateConfig{
		Encoding:               "base64",
		SigVerify:              true,
		ReplaceRecentBlockhash: true,
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("sigVerify+replace error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_TooManySignatures(t *testing.T) {
	env := setupTestEnv(t)
	sigs := make([]types.Signature, MaxSignatureStatuses+1)
	resp := rpcCall(t, env.url, "getSignatureStatuses", sigs)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "getBlock", 1)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v, want method not found", resp.Error)
	}
}

func TestRPC_TooManyParams(t *testing.T) {
	env := setupTestEnv(t)
	resp := rpcCall(t, env.url, "getHealth")
	if resp.Error != nil {
		t.Fatalf("getHealth error: %v", resp.Error)
	}
	resp = rpcCall(t, env.url, "getSlot", CommitmentConfig{}, 1)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("error = %+v, want invalid params", resp.Error)
	}
}

func TestRPC_InvalidRequests(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{not json`, CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"getSlot","id":1}`, CodeInvalidRequest},
		{"object params", `{"jsonrpc":"2.0","method":"getBalance","params":{"a":1},"id":1}`, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.url, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			rpcResp := decodeResponse(t, resp.Body)
			if rpcResp.Error == nil || rpcResp.Error.Code != tt.want {
				t.Errorf("error = %+v, want code %d", rpcResp.Error, tt.want)
			}
		})
	}
}

func TestRPC_GetNotAllowed(t *testing.T) {
	env := setupTestEnv(t)
	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	rpcResp := decodeResponse(t, resp.Body)
	if rpcResp.Error == nil || rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error = %+v, want invalid request", rpcResp.Error)
	}
}

func TestRPC_AllowedIPs(t *testing.T) {
	env := setupTestEnv(t, config.LocalnetConfig{AllowedIPs: []string{"10.0.0.0/8"}})
	body := `{"jsonrpc":"2.0","method":"getHealth","id":1}`
	resp, err := http.Post(env.url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestRPC_CORS(t *testing.T) {
	env := setupTestEnv(t, config.LocalnetConfig{CORSOrigins: []string{"http://localhost:3000"}})

	req, _ := http.NewRequest(http.MethodOptions, env.url, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, env.url, nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q for foreign origin", got)
	}
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"127.0.0.1", "10.0.0.0/8", "::1", "garbage"})
	if len(nets) != 3 {
		t.Fatalf("len = %d, want 3", len(nets))
	}
}
