// Package harness runs Anchor-style programs against an in-process ledger
// from Go tests.
//
// A Context owns:
// - the ledger.Ledger every transaction executes on
// - a funded payer keypair
// - the id of the program under test
//
// Transactions are built, signed against the latest blockhash, and
// executed synchronously. Their outcome is an ExecutionResult carrying
// logs, compute units and the error, with assertions that fail a test
// with the full log dump.
package harness

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// DefaultPayerLamports is the balance the context payer starts with.
const DefaultPayerLamports = 10_000_000_000

// NoSignersMessage is the BuildError message for a transaction without
// signers.
const NoSignersMessage = "No signers provided"

// Context is a test session against one ledger.
type Context struct {
	ledger    *ledger.Ledger
	payer     *types.Keypair
	programID types.Pubkey
	program   *anchor.Program
	log       *zap.Logger
}

// NewContext wraps l, creating and funding a payer with DefaultPayerLamports.
func NewContext(l *ledger.Ledger, programID types.Pubkey) (*Context, error) {
	payer, err := types.NewKeypair()
	if err != nil {
		return nil, err
	}
	return NewContextWithPayer(l, programID, payer, DefaultPayerLamports)
}

// NewContextWithPayer wraps l, funding payer with lamports.
func NewContextWithPayer(l *ledger.Ledger, programID types.Pubkey, payer *types.Keypair, lamports uint64) (*Context, error) {
	if lamports > 0 {
		if err := l.Airdrop(payer.Pubkey(), lamports); err != nil {
			return nil, fmt.Errorf("fund payer: %w", err)
		}
	}
	return &Context{
		ledger:    l,
		payer:     payer,
		programID: programID,
		program:   anchor.NewProgram(programID),
		log:       zap.NewNop(),
	}, nil
}

// Ledger returns the underlying ledger.
func (c *Context) Ledger() *ledger.Ledger {
	return c.ledger
}

// Payer returns the default fee payer.
func (c *Context) Payer() *types.Keypair {
	return c.payer
}

// ProgramID returns the id of the program under test.
func (c *Context) ProgramID() types.Pubkey {
	return c.programID
}

// Program returns the instruction builder factory of the program under test.
func (c *Context) Program() *anchor.Program {
	return c.program
}

// SetIDL makes the program's builders use idl.
func (c *Context) SetIDL(idl *anchor.IDL) {
	c.program = &anchor.Program{ID: c.programID, IDL: idl}
}

// Instruction starts building an instruction of the program under test.
func (c *Context) Instruction(name string) *anchor.InstructionBuilder {
	return c.program.Instruction(name)
}

// Close closes the ledger.
func (c *Context) Close() error {
	return c.ledger.Close()
}

// LatestBlockhash returns the blockhash new transactions are signed against.
func (c *Context) LatestBlockhash() types.Hash {
	return c.ledger.LatestBlockhash()
}

// GetAccount returns the raw account at addr.
func (c *Context) GetAccount(addr types.Pubkey) (*accounts.Account, error) {
	return c.ledger.GetAccount(addr)
}

// AccountExists reports whether an account exists at addr.
func (c *Context) AccountExists(addr types.Pubkey) bool {
	return c.ledger.HasAccount(addr)
}

// Airdrop credits lamports to addr.
func (c *Context) Airdrop(addr types.Pubkey, lamports uint64) error {
	return c.ledger.Airdrop(addr, lamports)
}

// SendOptions adjusts how a transaction is assembled.
type SendOptions struct {
	// Payer overrides the fee payer. The payer must be one of the signers.
	Payer *types.Pubkey
	// Label names the result.
	Label string
}

// SendOption sets a field of SendOptions.
type SendOption func(*SendOptions)

// WithPayer makes payer pay the fee instead of the first signer.
func WithPayer(payer types.Pubkey) SendOption {
	return func(o *SendOptions) {
		o.Payer = &payer
	}
}

// WithLabel names the result.
func WithLabel(label string) SendOption {
	return func(o *SendOptions) {
		o.Label = label
	}
}

// SendInstruction executes ix in its own transaction. The first signer
// pays the fee.
func (c *Context) SendInstruction(ix transaction.Instruction, signers ...*types.Keypair) (*ExecutionResult, error) {
	return c.SendInstructions([]transaction.Instruction{ix}, signers, WithLabel(fmt.Sprintf("instruction to %s", ix.Program)))
}

// SendInstructions executes ixs atomically in one transaction. The first
// signer pays the fee unless WithPayer says otherwise.
//
// A failed or rejected transaction is reported through the result; the
// returned error is a *anchor.BuildError for transactions that could not
// be assembled.
func (c *Context) SendInstructions(ixs []transaction.Instruction, signers []*types.Keypair, opts ...SendOption) (*ExecutionResult, error) {
	o := SendOptions{Label: "batch transaction"}
	for _, opt := range opts {
		opt(&o)
	}

	if len(signers) == 0 {
		return nil, &anchor.BuildError{Msg: NoSignersMessage}
	}

	payer := signers[0].Pubkey()
	if o.Payer != nil {
		payer = *o.Payer
	}

	tx := transaction.NewTransaction(payer, ixs...)
	tx.SetBlockhash(c.ledger.LatestBlockhash())
	if err := tx.Sign(signers...); err != nil {
		return nil, &anchor.BuildError{Msg: "failed to sign transaction", Err: err}
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return nil, &anchor.BuildError{Msg: fmt.Sprintf("missing signature for %s", tx.Message.Accounts[i])}
		}
	}

	return c.send(&tx, o.Label), nil
}

// ExecuteInstruction executes ix. The first signer pays; with no signers
// the context payer pays and signs.
func (c *Context) ExecuteInstruction(ix transaction.Instruction, signers ...*types.Keypair) (*ExecutionResult, error) {
	if len(signers) == 0 {
		signers = []*types.Keypair{c.payer}
	}
	return c.SendInstruction(ix, signers...)
}

// ExecuteInstructions executes ixs in one transaction with the payer rule
// of ExecuteInstruction.
func (c *Context) ExecuteInstructions(ixs []transaction.Instruction, signers ...*types.Keypair) (*ExecutionResult, error) {
	if len(signers) == 0 {
		signers = []*types.Keypair{c.payer}
	}
	return c.SendInstructions(ixs, signers)
}

// SendTransaction executes a transaction that is already built and signed.
func (c *Context) SendTransaction(tx *transaction.Transaction) *ExecutionResult {
	return c.send(tx, "transaction")
}

func (c *Context) send(tx *transaction.Transaction, label string) *ExecutionResult {
	meta, err := c.ledger.SendTransaction(tx)
	res := newExecutionResult(label, tx.Signature(), meta, err)

	c.log.Debug("transaction sent",
		zap.String("label", label),
		zap.Stringer("signature", res.Signature()),
		zap.Bool("success", res.IsSuccess()),
		zap.Uint64("compute_units", res.ComputeUnits()),
	)
	return res
}
