package anchor

import "fmt"

// Framework error codes reported as custom program errors.
const (
	ErrCodeInstructionFallbackNotFound  uint32 = 101
	ErrCodeInstructionDidNotDeserialize uint32 = 102
	ErrCodeConstraintMut                uint32 = 2000
	ErrCodeConstraintHasOne             uint32 = 2001
	ErrCodeConstraintSigner             uint32 = 2002
	ErrCodeConstraintSeeds              uint32 = 2006
	ErrCodeConstraintAddress            uint32 = 2012
	ErrCodeAccountDiscriminatorMismatch uint32 = 3002
	ErrCodeAccountDidNotDeserialize     uint32 = 3003
	ErrCodeAccountNotEnoughKeys         uint32 = 3005
	ErrCodeAccountOwnedByWrongProgram   uint32 = 3007
	ErrCodeAccountNotSigner             uint32 = 3010
	ErrCodeAccountNotInitialized        uint32 = 3012

	// ErrCodeUserOffset is the first code available to programs.
	ErrCodeUserOffset uint32 = 6000
)

var frameworkErrors = map[uint32]string{
	ErrCodeInstructionFallbackNotFound:  "InstructionFallbackNotFound",
	ErrCodeInstructionDidNotDeserialize: "InstructionDidNotDeserialize",
	ErrCodeConstraintMut:                "ConstraintMut",
	ErrCodeConstraintHasOne:             "ConstraintHasOne",
	ErrCodeConstraintSigner:             "ConstraintSigner",
	ErrCodeConstraintSeeds:              "ConstraintSeeds",
	ErrCodeConstraintAddress:            "ConstraintAddress",
	ErrCodeAccountDiscriminatorMismatch: "AccountDiscriminatorMismatch",
	ErrCodeAccountDidNotDeserialize:     "AccountDidNotDeserialize",
	ErrCodeAccountNotEnoughKeys:         "AccountNotEnoughKeys",
	ErrCodeAccountOwnedByWrongProgram:   "AccountOwnedByWrongProgram",
	ErrCodeAccountNotSigner:             "AccountNotSigner",
	ErrCodeAccountNotInitialized:        "AccountNotInitialized",
}

// ProgramError is a custom error raised by a program. Names maps program
// specific codes; framework codes are resolved here.
type ProgramError struct {
	Code uint32
	Name string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("custom program error: %#x (%s)", e.Code, e.Name)
}

// NewError builds a ProgramError, looking the name up in names and then in
// the framework table.
func NewError(code uint32, names map[uint32]string) *ProgramError {
	name, ok := names[code]
	if !ok {
		name, ok = frameworkErrors[code]
	}
	if !ok {
		name = "Unknown"
	}
	return &ProgramError{Code: code, Name: name}
}
