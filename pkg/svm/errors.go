package svm

import (
	"errors"
	"fmt"
)

// Instruction errors, with the messages the runtime reports for them.
var (
	ErrGenericError                = errors.New("generic instruction error")
	ErrInvalidArgument             = errors.New("invalid program argument")
	ErrInvalidInstructionData      = errors.New("invalid instruction data")
	ErrInvalidAccountData          = errors.New("invalid account data for instruction")
	ErrAccountDataTooSmall         = errors.New("account data too small for instruction")
	ErrInsufficientFunds           = errors.New("insufficient funds for instruction")
	ErrIncorrectProgramID          = errors.New("incorrect program id for instruction")
	ErrMissingRequiredSignature    = errors.New("missing required signature for instruction")
	ErrAccountAlreadyInitialized   = errors.New("instruction requires an uninitialized account")
	ErrUninitializedAccount        = errors.New("instruction requires an initialized account")
	ErrUnbalancedInstruction       = errors.New("sum of account balances before and after instruction do not match")
	ErrModifiedProgramID           = errors.New("instruction illegally modified the program id of an account")
	ErrExternalAccountLamportSpend = errors.New("instruction spent from the balance of an account it does not own")
	ErrExternalAccountDataModified = errors.New("instruction modified data of an account it does not own")
	ErrReadonlyLamportChange       = errors.New("instruction changed the balance of a read-only account")
	ErrReadonlyDataModified        = errors.New("instruction modified data of a read-only account")
	ErrExecutableModified          = errors.New("instruction changed executable bit of an account")
	ErrExecutableLamportChange     = errors.New("instruction changed the balance of an executable account")
	ErrExecutableDataModified      = errors.New("instruction changed executable accounts data")
	ErrRentEpochModified           = errors.New("instruction modified rent epoch of an account")
	ErrNotEnoughAccountKeys        = errors.New("insufficient account keys for instruction")
	ErrAccountNotExecutable        = errors.New("instruction expected an executable account")
	ErrUnsupportedProgramID        = errors.New("Unsupported program id")
	ErrCallDepth                   = errors.New("Cross-program invocation call depth too deep")
	ErrMissingAccount              = errors.New("An account required by the instruction is missing")
	ErrReentrancyNotAllowed        = errors.New("Cross-program invocation reentrancy not allowed for this instruction")
	ErrPrivilegeEscalation         = errors.New("Cross-program invocation with unauthorized signer or writable account")
	ErrMaxSeedLengthExceeded       = errors.New("Length of the seed is too long for address generation")
	ErrInvalidSeeds                = errors.New("Provided seeds do not result in a valid address")
	ErrInvalidRealloc              = errors.New("Failed to reallocate account data")
	ErrArithmeticOverflow          = errors.New("Program arithmetic overflowed")
	ErrIllegalOwner                = errors.New("Provided owner is not allowed")
)

// CustomError is a program-defined error code.
type CustomError uint32

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", uint32(c))
}

// InstructionError indicates an instruction returned an error in a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (i *InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

func (i *InstructionError) Unwrap() error {
	return i.Err
}

// CustomErrorCode extracts the custom program error code from err.
func CustomErrorCode(err error) (uint32, bool) {
	var custom CustomError
	if errors.As(err, &custom) {
		return uint32(custom), true
	}
	return 0, false
}
