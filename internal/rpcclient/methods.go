package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingdrop/internal/rpc"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Wire types shared with the server.
type (
	AccountInfo      = rpc.AccountInfo
	SimulationResult = rpc.SimulationResult
	SignatureStatus  = rpc.SignatureStatus
	LatestBlockhash  = rpc.LatestBlockhash
)

// Commitment is a confirmation level requested from the node.
type Commitment string

// Commitment levels.
const (
	CommitmentProcessed Commitment = rpc.StatusProcessed
	CommitmentConfirmed Commitment = rpc.StatusConfirmed
	CommitmentFinalized Commitment = rpc.StatusFinalized
)

// ErrConfirmTimeout is returned when a transaction is not confirmed within
// the wait deadline.
var ErrConfirmTimeout = errors.New("transaction not confirmed before timeout")

// GetHealth returns nil when the node reports itself healthy.
func (c *Client) GetHealth(ctx context.Context) error {
	var status string
	if err := c.Call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}

// GetSlot returns the slot at commitment.
func (c *Client) GetSlot(ctx context.Context, commitment Commitment) (uint64, error) {
	var slot uint64
	err := c.Call(ctx, "getSlot", []interface{}{rpc.CommitmentConfig{Commitment: string(commitment)}}, &slot)
	return slot, err
}

// GetLatestBlockhash returns the most recent blockhash at commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment Commitment) (LatestBlockhash, error) {
	var res rpc.WithContext[LatestBlockhash]
	err := c.Call(ctx, "getLatestBlockhash", []interface{}{rpc.CommitmentConfig{Commitment: string(commitment)}}, &res)
	return res.Value, err
}

// IsBlockhashValid reports whether h is still accepted by the node.
func (c *Client) IsBlockhashValid(ctx context.Context, h types.Hash, commitment Commitment) (bool, error) {
	var res rpc.WithContext[bool]
	err := c.Call(ctx, "isBlockhashValid", []interface{}{h, rpc.CommitmentConfig{Commitment: string(commitment)}}, &res)
	return res.Value, err
}

// GetAccountInfo returns the account at key, or nil when it does not
// exist.
func (c *Client) GetAccountInfo(ctx context.Context, key types.PublicKey, commitment Commitment) (*AccountInfo, error) {
	var res rpc.WithContext[*AccountInfo]
	cfg := rpc.AccountInfoConfig{Commitment: string(commitment), Encoding: "base64"}
	if err := c.Call(ctx, "getAccountInfo", []interface{}{key, cfg}, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetMultipleAccounts returns the accounts at keys in order, with nil
// entries for missing accounts. Large requests are split into batches the
// node accepts.
func (c *Client) GetMultipleAccounts(ctx context.Context, keys []types.PublicKey, commitment Commitment) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, 0, len(keys))
	cfg := rpc.AccountInfoConfig{Commitment: string(commitment), Encoding: "base64"}
	for start := 0; start < len(keys); start += rpc.MaxMultipleAccounts {
		end := min(start+rpc.MaxMultipleAccounts, len(keys))
		var res rpc.WithContext[[]*AccountInfo]
		if err := c.Call(ctx, "getMultipleAccounts", []interface{}{keys[start:end], cfg}, &res); err != nil {
			return nil, err
		}
		if len(res.Value) != end-start {
			return nil, fmt.Errorf("getMultipleAccounts: %d accounts for %d keys", len(res.Value), end-start)
		}
		out = append(out, res.Value...)
	}
	return out, nil
}

// GetBalance returns the lamports held by key.
func (c *Client) GetBalance(ctx context.Context, key types.PublicKey, commitment Commitment) (uint64, error) {
	var res rpc.WithContext[uint64]
	err := c.Call(ctx, "getBalance", []interface{}{key, rpc.CommitmentConfig{Commitment: string(commitment)}}, &res)
	return res.Value, err
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for an
// account with size bytes of data.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	var lamports uint64
	err := c.Call(ctx, "getMinimumBalanceForRentExemption", []interface{}{size}, &lamports)
	return lamports, err
}

// SimulateOptions configure SimulateTransaction.
type SimulateOptions struct {
	SigVerify              bool
	ReplaceRecentBlockhash bool
	Commitment             Commitment
}

// SimulateTransaction executes t on the node without committing it.
func (c *Client) SimulateTransaction(ctx context.Context, t *tx.Transaction, opts SimulateOptions) (*SimulationResult, error) {
	raw, err := t.Base64()
	if err != nil {
		return nil, err
	}
	cfg := rpc.SimulateConfig{
		SigVerify:              opts.SigVerify,
		ReplaceRecentBlockhash: opts.ReplaceRecentBlockhash,
		Commitment:             string(opts.Commitment),
		Encoding:               "base64",
	}
	var res rpc.WithContext[*SimulationResult]
	if err := c.Call(ctx, "simulateTransaction", []interface{}{raw, cfg}, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, errors.New("simulateTransaction: empty result")
	}
	return res.Value, nil
}

// SendOptions configure SendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
}

// SendTransaction submits a signed transaction and returns its signature.
// A failed preflight is returned as an *RPCError whose Unwrap yields the
// *tx.ExecutionError.
func (c *Client) SendTransaction(ctx context.Context, t *tx.Transaction, opts SendOptions) (types.Signature, error) {
	raw, err := t.Base64()
	if err != nil {
		return types.Signature{}, err
	}
	cfg := rpc.SendConfig{
		Encoding:            "base64",
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: string(opts.PreflightCommitment),
	}
	var sig types.Signature
	if err := c.Call(ctx, "sendTransaction", []interface{}{raw, cfg}, &sig); err != nil {
		return types.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatuses returns the status of each signature, nil for
// signatures the node has not seen.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs ...types.Signature) ([]*SignatureStatus, error) {
	var res rpc.WithContext[[]*SignatureStatus]
	if err := c.Call(ctx, "getSignatureStatuses", []interface{}{sigs}, &res); err != nil {
		return nil, err
	}
	if len(res.Value) != len(sigs) {
		return nil, fmt.Errorf("getSignatureStatuses: %d statuses for %d signatures", len(res.Value), len(sigs))
	}
	return res.Value, nil
}

// RequestAirdrop asks the node's faucet to credit lamports to key.
func (c *Client) RequestAirdrop(ctx context.Context, key types.PublicKey, lamports uint64) (types.Signature, error) {
	var sig types.Signature
	err := c.Call(ctx, "requestAirdrop", []interface{}{key, lamports}, &sig)
	return sig, err
}

// WaitForCommitment polls the status of sig every poll until it reaches
// commitment. A transaction that landed with an error returns a
// *TransactionError. The wait ends with ErrConfirmTimeout when timeout
// elapses, or with the context error when ctx is done.
func (c *Client) WaitForCommitment(ctx context.Context, sig types.Signature, commitment Commitment, poll, timeout time.Duration) (*SignatureStatus, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		statuses, err := c.GetSignatureStatuses(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitError(ctx, sig)
			}
			return nil, err
		}
		if st := statuses[0]; st != nil {
			if st.Err != nil {
				return st, &TransactionError{Signature: sig.String(), Err: st.Err}
			}
			if st.Reached(string(commitment)) {
				return st, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, waitError(ctx, sig)
		case <-ticker.C:
		}
	}
}

func waitError(ctx context.Context, sig types.Signature) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
	}
	return ctx.Err()
}
