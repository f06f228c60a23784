package rpc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/Klingon-tech/klingdrop/internal/localnet"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// ── Slot and blockhash endpoints ────────────────────────────────────────

func (s *Server) commitment(name string) (localnet.Commitment, *Error) {
	c, err := localnet.ParseCommitment(name)
	if err != nil {
		return "", &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return c, nil
}

func (s *Server) contextAt(name string) (Context, *Error) {
	c, rpcErr := s.commitment(name)
	if rpcErr != nil {
		return Context{}, rpcErr
	}
	return Context{Slot: s.ledger.Slot(c)}, nil
}

func (s *Server) handleGetSlot(req *Request) (interface{}, *Error) {
	var cfg CommitmentConfig
	if err := parseParams(req, 0, &cfg); err != nil {
		return nil, err
	}
	ctx, err := s.contextAt(cfg.Commitment)
	if err != nil {
		return nil, err
	}
	return ctx.Slot, nil
}

func (s *Server) handleGetLatestBlockhash(req *Request) (interface{}, *Error) {
	var cfg CommitmentConfig
	if err := parseParams(req, 0, &cfg); err != nil {
		return nil, err
	}
	c, rpcErr := s.commitment(cfg.Commitment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	h, lastValid := s.ledger.LatestBlockhash(c)
	return WithContext[LatestBlockhash]{
		Context: Context{Slot: s.ledger.Slot(c)},
		Value:   LatestBlockhash{Blockhash: h, LastValidBlockHeight: lastValid},
	}, nil
}

func (s *Server) handleIsBlockhashValid(req *Request) (interface{}, *Error) {
	var (
		h   types.Hash
		cfg CommitmentConfig
	)
	if err := parseParams(req, 1, &h, &cfg); err != nil {
		return nil, err
	}
	ctx, err := s.contextAt(cfg.Commitment)
	if err != nil {
		return nil, err
	}
	return WithContext[bool]{Context: ctx, Value: s.ledger.IsBlockhashValid(h)}, nil
}

// ── Account endpoints ───────────────────────────────────────────────────

// The ledger keeps only its latest state, so account reads at any
// commitment return that state with the commitment's slot as context.

func (s *Server) accountInfo(key types.PublicKey) (*AccountInfo, *Error) {
	a, err := s.ledger.Account(key)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("load account: %v", err)}
	}
	if a == nil {
		return nil, nil
	}
	return &AccountInfo{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Data:       AccountData(a.Data),
		Executable: a.Executable,
		RentEpoch:  RentEpochExempt,
		Space:      uint64(len(a.Data)),
	}, nil
}

func checkEncoding(enc string) *Error {
	if enc != "" && enc != "base64" {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unsupported encoding %q, only base64 is served", enc)}
	}
	return nil
}

func (s *Server) handleGetAccountInfo(req *Request) (interface{}, *Error) {
	var (
		key types.PublicKey
		cfg AccountInfoConfig
	)
	if err := parseParams(req, 1, &key, &cfg); err != nil {
		return nil, err
	}
	if err := checkEncoding(cfg.Encoding); err != nil {
		return nil, err
	}
	ctx, rpcErr := s.contextAt(cfg.Commitment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, rpcErr := s.accountInfo(key)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return WithContext[*AccountInfo]{Context: ctx, Value: info}, nil
}

func (s *Server) handleGetMultipleAccounts(req *Request) (interface{}, *Error) {
	var (
		keys []types.PublicKey
		cfg  AccountInfoConfig
	)
	if err := parseParams(req, 1, &keys, &cfg); err != nil {
		return nil, err
	}
	if len(keys) > MaxMultipleAccounts {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("Too many inputs provided; max %d", MaxMultipleAccounts)}
	}
	if err := checkEncoding(cfg.Encoding); err != nil {
		return nil, err
	}
	ctx, rpcErr := s.contextAt(cfg.Commitment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	infos := make([]*AccountInfo, len(keys))
	for i, k := range keys {
		info, rpcErr := s.accountInfo(k)
		if rpcErr != nil {
			return nil, rpcErr
		}
		infos[i] = info
	}
	return WithContext[[]*AccountInfo]{Context: ctx, Value: infos}, nil
}

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var (
		key types.PublicKey
		cfg CommitmentConfig
	)
	if err := parseParams(req, 1, &key, &cfg); err != nil {
		return nil, err
	}
	ctx, rpcErr := s.contextAt(cfg.Commitment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.ledger.Balance(key)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("load account: %v", err)}
	}
	return WithContext[uint64]{Context: ctx, Value: bal}, nil
}

func (s *Server) handleGetMinimumBalance(req *Request) (interface{}, *Error) {
	var (
		size int
		cfg  CommitmentConfig
	)
	if err := parseParams(req, 1, &size, &cfg); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "data length must not be negative"}
	}
	return s.ledger.MinimumBalanceForRentExemption(size), nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

// decodeTransaction decodes a wire transaction in enc, base58 when empty.
func decodeTransaction(raw, enc string) (*tx.Transaction, *Error) {
	var (
		b   []byte
		err error
	)
	switch enc {
	case "", "base58":
		b, err = base58.Decode(raw)
	case "base64":
		b, err = base64.StdEncoding.DecodeString(raw)
	default:
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unsupported encoding %q", enc)}
	}
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s encoding: %v", enc, err)}
	}
	if len(b) > tx.PacketDataSize {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("transaction too large: %d bytes (max: %d)", len(b), tx.PacketDataSize)}
	}
	t, err := tx.Deserialize(b)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("failed to deserialize transaction: %v", err)}
	}
	return t, nil
}

func simulationResult(res *localnet.Result) *SimulationResult {
	units := res.UnitsConsumed
	out := &SimulationResult{
		Err:           res.Err,
		Logs:          res.Logs,
		UnitsConsumed: &units,
	}
	if out.Logs == nil {
		out.Logs = []string{}
	}
	if res.ReplacementBlockhash != nil {
		out.ReplacementBlockhash = &LatestBlockhash{
			Blockhash:            *res.ReplacementBlockhash,
			LastValidBlockHeight: res.LastValidBlockHeight,
		}
	}
	return out
}

// executionFailure maps errors returned by the ledger before a result
// exists.
func executionFailure(err error) *Error {
	if errors.Is(err, localnet.ErrInvalidTransaction) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func (s *Server) handleSimulateTransaction(req *Request) (interface{}, *Error) {
	var (
		raw string
		cfg SimulateConfig
	)
	if err := parseParams(req, 1, &raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.SigVerify && cfg.ReplaceRecentBlockhash {
		return nil, &Error{Code: CodeInvalidParams, Message: "sigVerify may not be used with replaceRecentBlockhash"}
	}
	ctx, rpcErr := s.contextAt(cfg.Commitment)
	if rpcErr != nil {
		return nil, rpcErr
	}
	t, rpcErr := decodeTransaction(raw, cfg.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.ledger.Simulate(t, localnet.SimulateOptions{
		SigVerify:              cfg.SigVerify,
		ReplaceRecentBlockhash: cfg.ReplaceRecentBlockhash,
	})
	if err != nil {
		return nil, executionFailure(err)
	}
	return WithContext[*SimulationResult]{Context: ctx, Value: simulationResult(res)}, nil
}

func (s *Server) handleSendTransaction(req *Request) (interface{}, *Error) {
	var (
		raw string
		cfg SendConfig
	)
	if err := parseParams(req, 1, &raw, &cfg); err != nil {
		return nil, err
	}
	if _, rpcErr := s.commitment(cfg.PreflightCommitment); rpcErr != nil {
		return nil, rpcErr
	}
	t, rpcErr := decodeTransaction(raw, cfg.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.ledger.Submit(t, cfg.SkipPreflight)
	var pe *localnet.PreflightError
	switch {
	case errors.As(err, &pe):
		if pe.Result.Err.Kind == tx.KindSignatureFailure {
			return nil, &Error{Code: CodeSignatureVerificationFailure, Message: "Transaction signature verification failure"}
		}
		return nil, &Error{
			Code:    CodePreflightFailure,
			Message: "Transaction simulation failed: " + pe.Result.Err.Error(),
			Data:    simulationResult(pe.Result),
		}
	case err != nil:
		return nil, executionFailure(err)
	}
	return res.Signature, nil
}

func (s *Server) handleGetSignatureStatuses(req *Request) (interface{}, *Error) {
	var (
		sigs []types.Signature
		cfg  SignatureStatusConfig
	)
	if err := parseParams(req, 1, &sigs, &cfg); err != nil {
		return nil, err
	}
	if len(sigs) > MaxSignatureStatuses {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("Too many inputs provided; max %d", MaxSignatureStatuses)}
	}
	out := make([]*SignatureStatus, len(sigs))
	for i, sig := range sigs {
		st, err := s.ledger.SignatureStatus(sig)
		if err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		if st == nil {
			continue
		}
		out[i] = &SignatureStatus{
			Slot:               st.Slot,
			Confirmations:      st.Confirmations,
			Err:                st.Err,
			Status:             TxStatus{Err: st.Err},
			ConfirmationStatus: string(st.Commitment),
		}
	}
	return WithContext[[]*SignatureStatus]{
		Context: Context{Slot: s.ledger.Slot(localnet.CommitmentProcessed)},
		Value:   out,
	}, nil
}

func (s *Server) handleRequestAirdrop(req *Request) (interface{}, *Error) {
	var (
		key      types.PublicKey
		lamports uint64
		cfg      CommitmentConfig
	)
	if err := parseParams(req, 2, &key, &lamports, &cfg); err != nil {
		return nil, err
	}
	sig, err := s.ledger.RequestAirdrop(key, lamports)
	if errors.Is(err, localnet.ErrFaucetLimit) {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return sig, nil
}
