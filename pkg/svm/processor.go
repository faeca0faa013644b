package svm

import (
	"errors"
	"fmt"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// DefaultLamportsPerSignature is the base fee per transaction signature.
const DefaultLamportsPerSignature = uint64(5000)

// Bank is the state a Processor executes against.
type Bank interface {
	// GetAccount returns accounts.ErrAccountNotFound for unknown addresses.
	GetAccount(pubkey types.Pubkey) (*accounts.Account, error)

	IsBlockhashValid(hash types.Hash) bool
	HasSignature(sig types.Signature) bool
	Clock() Clock
	Rent() Rent
}

// Config controls transaction validation.
type Config struct {
	SigVerify            bool
	BlockhashCheck       bool
	LamportsPerSignature uint64

	// ComputeLimit replaces the per-instruction default budget when a
	// transaction does not request a limit. Zero keeps the default.
	ComputeLimit uint64
}

// DefaultConfig returns the validation settings of a real cluster.
func DefaultConfig() Config {
	return Config{
		SigVerify:            true,
		BlockhashCheck:       true,
		LamportsPerSignature: DefaultLamportsPerSignature,
	}
}

// Result is the outcome of a transaction that reached execution.
type Result struct {
	Signature            types.Signature
	Logs                 []string
	ComputeUnitsConsumed uint64
	ComputeUnitLimit     uint64
	Fee                  uint64
	ReturnData           *ReturnData

	// Err is nil on success.
	Err error

	// Writes are the account states to commit. On failure only the fee
	// payer, debited by the fee, is included.
	Writes []accounts.AccountEntry
}

// Processor validates and executes transactions.
type Processor struct {
	registry *Registry
	cfg      Config
}

// NewProcessor creates a processor dispatching to registry.
func NewProcessor(registry *Registry, cfg Config) *Processor {
	return &Processor{
		registry: registry,
		cfg:      cfg,
	}
}

// Registry returns the program registry.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Config returns the validation settings.
func (p *Processor) Config() Config {
	return p.cfg
}

// Process executes tx against bank without writing to it.
//
// A non-nil error means the transaction was rejected before execution and
// must not be committed. Otherwise the caller commits Result.Writes.
func (p *Processor) Process(bank Bank, tx *transaction.Transaction) (*Result, error) {
	msg := tx.Message

	if len(tx.Signatures) != int(msg.Header.NumSignatures) {
		return nil, fmt.Errorf("%w: %d signatures for %d signers", ErrSanitizeFailure, len(tx.Signatures), msg.Header.NumSignatures)
	}
	if err := msg.Sanitize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSanitizeFailure, err)
	}

	if p.cfg.BlockhashCheck && !bank.IsBlockhashValid(msg.RecentBlockhash) {
		return nil, ErrBlockhashNotFound
	}

	if bank.HasSignature(tx.Signature()) {
		return nil, ErrAlreadyProcessed
	}

	if p.cfg.SigVerify {
		messageBytes := msg.Marshal()
		for i, sig := range tx.Signatures {
			if sig.IsZero() || !sig.Verify(msg.Accounts[i], messageBytes) {
				return nil, ErrSignatureFailure
			}
		}
	}

	limits, err := ParseComputeBudget(msg, CUDefault)
	if err != nil {
		return nil, err
	}
	if !limits.explicitLimit && p.cfg.ComputeLimit > 0 {
		limits.ComputeUnitLimit = uint32(min(p.cfg.ComputeLimit, CUMax))
	}

	rent := bank.Rent()
	fee := uint64(len(tx.Signatures))*p.cfg.LamportsPerSignature + limits.PrioritizationFee()

	// Load every account; unknown addresses start as empty system accounts.
	original := make([]*accounts.Account, len(msg.Accounts))
	for i, key := range msg.Accounts {
		acc, err := bank.GetAccount(key)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			acc = &accounts.Account{Owner: types.SystemProgramAddr}
		} else if err != nil {
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}
		original[i] = acc
	}

	payer := original[0]
	if payer.Lamports == 0 {
		return nil, ErrAccountNotFound
	}
	if payer.Owner != types.SystemProgramAddr {
		return nil, ErrInvalidAccountForFee
	}
	if payer.Lamports < fee {
		return nil, ErrInsufficientFundsForFee
	}
	// A payer that was already rent-paying may only shrink further.
	payerWasRentPaying := !rent.IsExempt(payer.Lamports, uint64(len(payer.Data)))
	if left := payer.Lamports - fee; left > 0 && !payerWasRentPaying && !rent.IsExempt(left, uint64(len(payer.Data))) {
		return nil, &InsufficientFundsForRentError{AccountIndex: 0}
	}

	states := make([]*accounts.Account, len(original))
	for i, acc := range original {
		states[i] = acc.Clone()
	}
	states[0].Lamports -= fee
	feeOnly := []accounts.AccountEntry{{Pubkey: msg.Accounts[0], Account: states[0].Clone()}}

	result := &Result{
		Signature:        tx.Signature(),
		Fee:              fee,
		ComputeUnitLimit: uint64(limits.ComputeUnitLimit),
		Logs:             []string{},
	}

	for _, ix := range msg.Instructions {
		if !p.registry.Has(msg.Accounts[ix.ProgramIndex]) {
			result.Err = ErrProgramAccountNotFound
			result.Writes = feeOnly
			return result, nil
		}
	}

	meter := NewComputeMeter(uint64(limits.ComputeUnitLimit))
	tc := newTxContext(p.registry, meter, msg.Accounts, states, bank.Clock(), rent)

	for i := range msg.Instructions {
		ix, err := msg.Decompile(i)
		if err != nil {
			result.Err = &InstructionError{Index: i, Err: ErrInvalidArgument}
			break
		}
		if err := tc.execute(ix.Program, ix.Accounts, ix.Data, 1); err != nil {
			result.Err = &InstructionError{Index: i, Err: err}
			break
		}
	}

	if result.Err == nil {
		result.Err = checkRentState(msg, original, tc.states, rent)
	}

	result.Logs = tc.logs
	result.ComputeUnitsConsumed = meter.Consumed()

	if result.Err != nil {
		result.Writes = feeOnly
		return result, nil
	}

	result.ReturnData = tc.returnData
	for i, key := range msg.Accounts {
		if !msg.IsWritable(i) {
			continue
		}
		if accountChanged(original[i], tc.states[i]) {
			result.Writes = append(result.Writes, accounts.AccountEntry{Pubkey: key, Account: tc.states[i]})
		}
	}
	return result, nil
}

// checkRentState rejects transactions that leave a writable account
// holding lamports below the rent-exempt minimum, unless the account was
// already in that state with the same data size.
func checkRentState(msg transaction.Message, original, post []*accounts.Account, rent Rent) error {
	for i := range msg.Accounts {
		if !msg.IsWritable(i) || !accountChanged(original[i], post[i]) {
			continue
		}
		acc := post[i]
		if acc.Lamports == 0 || rent.IsExempt(acc.Lamports, uint64(len(acc.Data))) {
			continue
		}
		pre := original[i]
		wasRentPaying := pre.Lamports > 0 && !rent.IsExempt(pre.Lamports, uint64(len(pre.Data)))
		if wasRentPaying && len(pre.Data) == len(acc.Data) && acc.Lamports <= pre.Lamports {
			continue
		}
		return &InsufficientFundsForRentError{AccountIndex: i}
	}
	return nil
}

func accountChanged(a, b *accounts.Account) bool {
	return a.Lamports != b.Lamports ||
		a.Owner != b.Owner ||
		a.Executable != b.Executable ||
		a.RentEpoch != b.RentEpoch ||
		string(a.Data) != string(b.Data)
}
