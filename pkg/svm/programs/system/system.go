// Package system implements the Solana System Program.
//
// The System Program is responsible for:
// - Creating new accounts
// - Transferring lamports
// - Assigning account ownership
// - Allocating account space
// - The seed-derived variants of each
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount = iota
	InstructionAssign
	InstructionTransfer
	InstructionCreateAccountWithSeed
	InstructionAdvanceNonceAccount
	InstructionWithdrawNonceAccount
	InstructionInitializeNonceAccount
	InstructionAuthorizeNonceAccount
	InstructionAllocate
	InstructionAllocateWithSeed
	InstructionAssignWithSeed
	InstructionTransferWithSeed
	InstructionUpgradeNonceAccount
)

// System Program errors, reported as custom program errors.
const (
	ErrAccountAlreadyInUse        = svm.CustomError(0)
	ErrResultWithNegativeLamports = svm.CustomError(1)
	ErrInvalidProgramID           = svm.CustomError(2)
	ErrInvalidAccountDataLength   = svm.CustomError(3)
	ErrMaxSeedLengthExceeded      = svm.CustomError(4)
	ErrAddressWithSeedMismatch    = svm.CustomError(5)
)

// MaxPermittedDataLength is the largest account the program will allocate.
const MaxPermittedDataLength = 10 * 1024 * 1024

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 4 {
		return svm.ErrInvalidInstructionData
	}

	r := &reader{data: data[4:]}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, r)
	case InstructionAssign:
		return p.processAssign(ctx, r)
	case InstructionTransfer:
		return p.processTransfer(ctx, r)
	case InstructionCreateAccountWithSeed:
		return p.processCreateAccountWithSeed(ctx, r)
	case InstructionAllocate:
		return p.processAllocate(ctx, r)
	case InstructionAllocateWithSeed:
		return p.processAllocateWithSeed(ctx, r)
	case InstructionAssignWithSeed:
		return p.processAssignWithSeed(ctx, r)
	case InstructionTransferWithSeed:
		return p.processTransferWithSeed(ctx, r)
	default:
		return svm.ErrInvalidInstructionData
	}
}

// processCreateAccount creates a new account: [0] funder, [1] new account.
func (p *Processor) processCreateAccount(ctx svm.InvokeContext, r *reader) error {
	lamports, space, owner := r.u64(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}

	funder, newAccount, err := twoAccounts(ctx)
	if err != nil {
		return err
	}

	if !newAccount.IsSigner {
		ctx.Log(fmt.Sprintf("Create Account: account %s must sign", newAccount.Key))
		return svm.ErrMissingRequiredSignature
	}
	return createAccount(ctx, funder, newAccount, lamports, space, owner)
}

// processCreateAccountWithSeed creates an account at a seed-derived address:
// [0] funder, [1] new account, [2] base when it differs from the funder.
func (p *Processor) processCreateAccountWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed := r.pubkey(), r.seed()
	lamports, space, owner := r.u64(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}

	funder, newAccount, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	if err := verifySeedAddress(ctx, newAccount.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	return createAccount(ctx, funder, newAccount, lamports, space, owner)
}

func createAccount(ctx svm.InvokeContext, funder, newAccount *svm.AccountInfo, lamports, space uint64, owner types.Pubkey) error {
	if newAccount.Lamports > 0 {
		ctx.Log(fmt.Sprintf("Create Account: account %s already in use", newAccount.Key))
		return ErrAccountAlreadyInUse
	}
	if err := allocate(ctx, newAccount, space); err != nil {
		return err
	}
	if err := assign(ctx, newAccount, owner); err != nil {
		return err
	}
	return transfer(ctx, funder, newAccount, lamports)
}

// processAssign changes the owner of an account: [0] account.
func (p *Processor) processAssign(ctx svm.InvokeContext, r *reader) error {
	owner := r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	if !account.IsSigner {
		ctx.Log(fmt.Sprintf("Assign: account %s must sign", account.Key))
		return svm.ErrMissingRequiredSignature
	}
	return assign(ctx, account, owner)
}

// processAssignWithSeed assigns a seed-derived account: [0] account, [1] base.
func (p *Processor) processAssignWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed, owner := r.pubkey(), r.seed(), r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	if err := verifySeedAddress(ctx, account.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	return assign(ctx, account, owner)
}

func assign(ctx svm.InvokeContext, account *svm.AccountInfo, owner types.Pubkey) error {
	if account.Owner == owner {
		return nil
	}
	if account.Owner != ProgramID {
		ctx.Log(fmt.Sprintf("Assign: account %s must be owned by the system program", account.Key))
		return ErrInvalidProgramID
	}
	account.Owner = owner
	return nil
}

// processAllocate allocates space in an account: [0] account.
func (p *Processor) processAllocate(ctx svm.InvokeContext, r *reader) error {
	space := r.u64()
	if r.err != nil {
		return r.err
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	if !account.IsSigner {
		ctx.Log(fmt.Sprintf("Allocate: account %s must sign", account.Key))
		return svm.ErrMissingRequiredSignature
	}
	return allocate(ctx, account, space)
}

// processAllocateWithSeed allocates and assigns a seed-derived account:
// [0] account, [1] base.
func (p *Processor) processAllocateWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, seed, space, owner := r.pubkey(), r.seed(), r.u64(), r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	if err := verifySeedAddress(ctx, account.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	if err := allocate(ctx, account, space); err != nil {
		return err
	}
	return assign(ctx, account, owner)
}

func allocate(ctx svm.InvokeContext, account *svm.AccountInfo, space uint64) error {
	if len(account.Data) > 0 || account.Owner != ProgramID {
		ctx.Log(fmt.Sprintf("Allocate: account %s already in use", account.Key))
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		ctx.Log(fmt.Sprintf("Allocate: requested %d, max allowed %d", space, MaxPermittedDataLength))
		return ErrInvalidAccountDataLength
	}
	account.Data = make([]byte, space)
	return nil
}

// processTransfer transfers lamports: [0] from, [1] to.
func (p *Processor) processTransfer(ctx svm.InvokeContext, r *reader) error {
	lamports := r.u64()
	if r.err != nil {
		return r.err
	}

	from, to, err := twoAccounts(ctx)
	if err != nil {
		return err
	}
	return transfer(ctx, from, to, lamports)
}

// processTransferWithSeed transfers from a seed-derived account:
// [0] from, [1] base, [2] to.
func (p *Processor) processTransferWithSeed(ctx svm.InvokeContext, r *reader) error {
	lamports, seed, fromOwner := r.u64(), r.seed(), r.pubkey()
	if r.err != nil {
		return r.err
	}

	from, err := ctx.GetAccount(0)
	if err != nil {
		return err
	}
	base, err := ctx.GetAccount(1)
	if err != nil {
		return err
	}
	to, err := ctx.GetAccount(2)
	if err != nil {
		return err
	}

	if !base.IsSigner {
		ctx.Log(fmt.Sprintf("Transfer: `from` account %s must sign", base.Key))
		return svm.ErrMissingRequiredSignature
	}
	if err := verifySeedAddress(ctx, from.Key, base.Key, seed, fromOwner); err != nil {
		return err
	}
	return transferUnchecked(ctx, from, to, lamports)
}

func transfer(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		ctx.Log(fmt.Sprintf("Transfer: `from` account %s must sign", from.Key))
		return svm.ErrMissingRequiredSignature
	}
	return transferUnchecked(ctx, from, to, lamports)
}

func transferUnchecked(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	if len(from.Data) > 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return svm.ErrInvalidArgument
	}
	if from.Lamports < lamports {
		ctx.Log(fmt.Sprintf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports))
		return ErrResultWithNegativeLamports
	}
	if to.Lamports > ^uint64(0)-lamports {
		return svm.ErrArithmeticOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func twoAccounts(ctx svm.InvokeContext) (*svm.AccountInfo, *svm.AccountInfo, error) {
	a, err := ctx.GetAccount(0)
	if err != nil {
		return nil, nil, err
	}
	b, err := ctx.GetAccount(1)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func verifySeedAddress(ctx svm.InvokeContext, address, base types.Pubkey, seed string, owner types.Pubkey) error {
	if len(seed) > types.MaxSeedLen {
		return ErrMaxSeedLengthExceeded
	}
	expected, err := types.CreateWithSeed(base, seed, owner)
	if err != nil {
		return ErrMaxSeedLengthExceeded
	}
	if expected != address {
		ctx.Log(fmt.Sprintf("Create: address %s does not match derived address %s", address, expected))
		return ErrAddressWithSeedMismatch
	}
	return nil
}

func requireBaseSigner(ctx svm.InvokeContext, base types.Pubkey) error {
	account, err := ctx.AccountByKey(base)
	if err != nil || !account.IsSigner {
		ctx.Log(fmt.Sprintf("Create: base account %s must sign", base))
		return svm.ErrMissingRequiredSignature
	}
	return nil
}

// reader decodes bincode-encoded instruction arguments.
type reader struct {
	data []byte
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = svm.ErrInvalidInstructionData
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() types.Pubkey {
	var p types.Pubkey
	copy(p[:], r.take(types.PubkeySize))
	return p
}

func (r *reader) seed() string {
	n := r.u64()
	if r.err == nil && n > uint64(len(r.data)) {
		r.err = svm.ErrInvalidInstructionData
		return ""
	}
	return string(r.take(int(n)))
}
