// Package svm is an in-process Solana runtime for tests.
//
// It executes legacy transactions against programs written in Go:
// - native program dispatch through a Registry
// - Cross-Program Invocation with PDA signing
// - compute unit metering and compute budget instructions
// - post-instruction account verification and rent state checks
//
// Programs implement Program and see accounts through InvokeContext.
// Failed transactions commit only the fee debit.
package svm

import (
	"errors"
	"fmt"
)

// Transaction-level errors. A transaction rejected with one of these
// before execution produces no logs.
var (
	// ErrAccountNotFound is returned when the fee payer does not exist.
	ErrAccountNotFound = errors.New("Attempt to debit an account but found no record of a prior credit.")

	// ErrInsufficientFundsForFee is returned when the fee payer cannot cover the fee.
	ErrInsufficientFundsForFee = errors.New("Insufficient funds for fee")

	// ErrInvalidAccountForFee is returned when the fee payer is not system owned.
	ErrInvalidAccountForFee = errors.New("This account may not be used to pay transaction fees")

	// ErrBlockhashNotFound is returned for an unknown or expired recent blockhash.
	ErrBlockhashNotFound = errors.New("Blockhash not found")

	// ErrAlreadyProcessed is returned when a signature was already recorded.
	ErrAlreadyProcessed = errors.New("This transaction has already been processed")

	// ErrSignatureFailure is returned when a signature is missing or invalid.
	ErrSignatureFailure = errors.New("Transaction did not pass signature verification")

	// ErrSanitizeFailure is returned for structurally invalid messages.
	ErrSanitizeFailure = errors.New("Transaction failed to sanitize accounts offsets correctly")

	// ErrProgramAccountNotFound is returned when an instruction targets an unknown program.
	ErrProgramAccountNotFound = errors.New("Attempt to load a program that does not exist")
)

// InsufficientFundsForRentError reports an account left neither empty nor rent exempt.
type InsufficientFundsForRentError struct {
	AccountIndex int
}

func (e *InsufficientFundsForRentError) Error() string {
	return fmt.Sprintf("Transaction results in an account (%d) with insufficient funds for rent", e.AccountIndex)
}
