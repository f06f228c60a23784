package tx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Transaction-level failure kinds reported by the ledger.
const (
	KindInstructionError               = "InstructionError"
	KindAccountNotFound                = "AccountNotFound"
	KindBlockhashNotFound              = "BlockhashNotFound"
	KindInsufficientFundsForFee        = "InsufficientFundsForFee"
	KindInsufficientFundsForRent       = "InsufficientFundsForRent"
	KindSignatureFailure               = "SignatureFailure"
	KindAlreadyProcessed               = "AlreadyProcessed"
	KindInvalidAccountIndex            = "InvalidAccountIndex"
	KindAddressLookupTableNotFound     = "AddressLookupTableNotFound"
	KindInvalidAddressLookupTableIndex = "InvalidAddressLookupTableIndex"
	KindSanitizeFailure                = "SanitizeFailure"
)

// Instruction-level failure reasons.
const (
	ReasonCustom                      = "Custom"
	ReasonMissingRequiredSignature    = "MissingRequiredSignature"
	ReasonInvalidInstructionData      = "InvalidInstructionData"
	ReasonInvalidAccountData          = "InvalidAccountData"
	ReasonInvalidArgument             = "InvalidArgument"
	ReasonInvalidSeeds                = "InvalidSeeds"
	ReasonIncorrectProgramID          = "IncorrectProgramId"
	ReasonInsufficientFunds           = "InsufficientFunds"
	ReasonReadonlyDataModified        = "ReadonlyDataModified"
	ReasonReadonlyLamportChange       = "ReadonlyLamportChange"
	ReasonExternalAccountDataModified = "ExternalAccountDataModified"
	ReasonNotEnoughAccountKeys        = "NotEnoughAccountKeys"
	ReasonComputationalBudgetExceeded = "ComputationalBudgetExceeded"
	ReasonUnsupportedProgramID        = "UnsupportedProgramId"
	ReasonAccountAlreadyInitialized   = "AccountAlreadyInitialized"
	ReasonUninitializedAccount        = "UninitializedAccount"
	ReasonIncorrectAuthority          = "IncorrectAuthority"
	ReasonIllegalOwner                = "IllegalOwner"
	ReasonInvalidAccountOwner         = "InvalidAccountOwner"
)

// ExecutionError is a ledger-reported transaction failure. It marshals to
// the ledger's JSON shape: a bare kind string, or
// {"InstructionError":[index, reason]} where reason is a string or
// {"Custom":code}.
type ExecutionError struct {
	Kind        string
	Instruction int
	Reason      string
	Code        uint32
}

// NewExecutionError returns a transaction-level failure of kind.
func NewExecutionError(kind string) *ExecutionError {
	return &ExecutionError{Kind: kind}
}

// InstructionFailure returns a failure of instruction index with reason.
func InstructionFailure(index int, reason string) *ExecutionError {
	return &ExecutionError{Kind: KindInstructionError, Instruction: index, Reason: reason}
}

// CustomFailure returns a program-defined failure of instruction index.
func CustomFailure(index int, code uint32) *ExecutionError {
	return &ExecutionError{Kind: KindInstructionError, Instruction: index, Reason: ReasonCustom, Code: code}
}

func (e *ExecutionError) Error() string {
	if e.Kind != KindInstructionError {
		return e.Kind
	}
	if e.Reason == ReasonCustom {
		return fmt.Sprintf("instruction %d: custom program error 0x%x", e.Instruction, e.Code)
	}
	return fmt.Sprintf("instruction %d: %s", e.Instruction, e.Reason)
}

// CustomCode returns the program error code of a custom failure.
func (e *ExecutionError) CustomCode() (uint32, bool) {
	if e == nil || e.Kind != KindInstructionError || e.Reason != ReasonCustom {
		return 0, false
	}
	return e.Code, true
}

// MarshalJSON encodes e in the ledger's shape.
func (e *ExecutionError) MarshalJSON() ([]byte, error) {
	if e.Kind != KindInstructionError {
		return json.Marshal(e.Kind)
	}
	var reason any = e.Reason
	if e.Reason == ReasonCustom {
		reason = map[string]uint32{ReasonCustom: e.Code}
	}
	return json.Marshal(map[string][]any{KindInstructionError: {e.Instruction, reason}})
}

// UnmarshalJSON decodes the ledger's shape. Unknown object-valued kinds
// keep only their name.
func (e *ExecutionError) UnmarshalJSON(data []byte) error {
	*e = ExecutionError{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Kind)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("execution error: %w", err)
	}
	for kind, body := range obj {
		e.Kind = kind
		if kind != KindInstructionError {
			continue
		}
		var pair []json.RawMessage
		if err := json.Unmarshal(body, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("execution error: malformed %s", kind)
		}
		if err := json.Unmarshal(pair[0], &e.Instruction); err != nil {
			return fmt.Errorf("execution error: index: %w", err)
		}
		reason := bytes.TrimSpace(pair[1])
		if len(reason) > 0 && reason[0] == '"' {
			if err := json.Unmarshal(reason, &e.Reason); err != nil {
				return fmt.Errorf("execution error: reason: %w", err)
			}
			continue
		}
		var custom map[string]uint32
		if err := json.Unmarshal(reason, &custom); err != nil {
			return fmt.Errorf("execution error: reason: %w", err)
		}
		code, ok := custom[ReasonCustom]
		if !ok {
			return fmt.Errorf("execution error: unknown reason %s", reason)
		}
		e.Reason = ReasonCustom
		e.Code = code
	}
	return nil
}
