package rpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// JSON-RPC 2.0 error codes, plus the ledger's server error range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000

	// CodePreflightFailure is returned by sendTransaction when the
	// simulated transaction fails. Data carries a SimulationResult.
	CodePreflightFailure = -32002
	// CodeSignatureVerificationFailure is returned when a submitted
	// transaction carries an invalid signature.
	CodeSignatureVerificationFailure = -32003
)

// Limits on request inputs.
const (
	MaxSignatureStatuses = 256
	MaxMultipleAccounts  = 100
)

// RentEpochExempt is the rent epoch reported for every account.
const RentEpochExempt uint64 = math.MaxUint64

// Request is a JSON-RPC 2.0 request. Params is a positional array.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ── Config objects ──────────────────────────────────────────────────────

// CommitmentConfig is the trailing config of read methods.
type CommitmentConfig struct {
	Commitment     string `json:"commitment,omitempty"`
	MinContextSlot uint64 `json:"minContextSlot,omitempty"`
}

// AccountInfoConfig configures getAccountInfo and getMultipleAccounts.
// Only base64 encoding is served.
type AccountInfoConfig struct {
	Commitment string `json:"commitment,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// SimulateConfig configures simulateTransaction.
type SimulateConfig struct {
	SigVerify              bool   `json:"sigVerify,omitempty"`
	ReplaceRecentBlockhash bool   `json:"replaceRecentBlockhash,omitempty"`
	Commitment             string `json:"commitment,omitempty"`
	Encoding               string `json:"encoding,omitempty"`
}

// SendConfig configures sendTransaction.
type SendConfig struct {
	Encoding            string `json:"encoding,omitempty"`
	SkipPreflight       bool   `json:"skipPreflight,omitempty"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
	MaxRetries          *uint  `json:"maxRetries,omitempty"`
}

// SignatureStatusConfig configures getSignatureStatuses.
type SignatureStatusConfig struct {
	SearchTransactionHistory bool `json:"searchTransactionHistory,omitempty"`
}

// ── Results ─────────────────────────────────────────────────────────────

// Context is the slot a contextual result was read at.
type Context struct {
	Slot uint64 `json:"slot"`
}

// WithContext wraps a value with the slot it was read at.
type WithContext[T any] struct {
	Context Context `json:"context"`
	Value   T       `json:"value"`
}

// LatestBlockhash is the value of getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            types.Hash `json:"blockhash"`
	LastValidBlockHeight uint64     `json:"lastValidBlockHeight"`
}

// AccountData is account data in the ["<base64>", "base64"] form.
type AccountData []byte

// MarshalJSON encodes d as a base64 data tuple.
func (d AccountData) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{base64.StdEncoding.EncodeToString(d), "base64"})
}

// UnmarshalJSON decodes a base64 data tuple.
func (d *AccountData) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("account data: %w", err)
	}
	if len(pair) != 2 || pair[1] != "base64" {
		return fmt.Errorf("account data: unsupported encoding %v", pair)
	}
	b, err := base64.StdEncoding.DecodeString(pair[0])
	if err != nil {
		return fmt.Errorf("account data: %w", err)
	}
	*d = b
	return nil
}

// AccountInfo is one account as returned by getAccountInfo.
type AccountInfo struct {
	Lamports   uint64          `json:"lamports"`
	Owner      types.PublicKey `json:"owner"`
	Data       AccountData     `json:"data"`
	Executable bool            `json:"executable"`
	RentEpoch  uint64          `json:"rentEpoch"`
	Space      uint64          `json:"space"`
}

// SimulationResult is the value of simulateTransaction, and the data of a
// preflight failure.
type SimulationResult struct {
	Err                  *tx.ExecutionError `json:"err"`
	Logs                 []string           `json:"logs"`
	Accounts             []*AccountInfo     `json:"accounts"`
	UnitsConsumed        *uint64            `json:"unitsConsumed,omitempty"`
	ReplacementBlockhash *LatestBlockhash   `json:"replacementBlockhash,omitempty"`
}

// Confirmation statuses reported by getSignatureStatuses.
const (
	StatusProcessed = "processed"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
)

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot uint64 `json:"slot"`
	// Confirmations is nil once the transaction is finalized.
	Confirmations      *uint64            `json:"confirmations"`
	Err                *tx.ExecutionError `json:"err"`
	Status             TxStatus           `json:"status"`
	ConfirmationStatus string             `json:"confirmationStatus"`
}

// TxStatus is the legacy {"Ok":null} / {"Err":...} status field.
type TxStatus struct {
	Err *tx.ExecutionError
}

// MarshalJSON encodes s in its result-object form.
func (s TxStatus) MarshalJSON() ([]byte, error) {
	if s.Err == nil {
		return []byte(`{"Ok":null}`), nil
	}
	return json.Marshal(map[string]*tx.ExecutionError{"Err": s.Err})
}

// UnmarshalJSON decodes the result-object form.
func (s *TxStatus) UnmarshalJSON(data []byte) error {
	var obj map[string]*tx.ExecutionError
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	s.Err = obj["Err"]
	return nil
}

// Reached reports whether s has reached the confirmation status want.
func (s *SignatureStatus) Reached(want string) bool {
	return statusRank(s.ConfirmationStatus) >= statusRank(want)
}

func statusRank(s string) int {
	switch s {
	case StatusProcessed:
		return 1
	case StatusConfirmed:
		return 2
	case StatusFinalized:
		return 3
	}
	return 0
}
