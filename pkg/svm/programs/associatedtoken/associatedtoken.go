// Package associatedtoken implements the Associated Token Account program,
// which creates token accounts at addresses derived from a wallet and mint.
package associatedtoken

import (
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ProgramID is the address of the associated token account program.
//
// Current key: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var ProgramID = types.AssociatedTokenProgramAddr

type Command byte

const (
	CommandCreate Command = iota
	CommandCreateIdempotent
)

// ErrInvalidOwner is returned when an existing account at the associated
// address is not owned by the wallet.
const ErrInvalidOwner = svm.CustomError(0)

// FindAssociatedTokenAddress returns the associated token account address
// for wallet and mint.
//
// Reference: https://spl.solana.com/associated-token-account#finding-the-associated-token-account-address
func FindAssociatedTokenAddress(wallet, mint types.Pubkey) (types.Pubkey, error) {
	addr, _, err := findAddress(wallet, mint)
	return addr, err
}

func findAddress(wallet, mint types.Pubkey) (types.Pubkey, uint8, error) {
	return types.FindProgramAddress(
		[][]byte{wallet[:], token.ProgramID[:], mint[:]},
		ProgramID,
	)
}

// Processor executes associated token account instructions.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Process creates an associated token account.
//
// Accounts expected:
//
//	0. `[writable,signer]` Funding account
//	1. `[writable]` Associated token account address
//	2. `[]` Wallet address for the new account
//	3. `[]` The token mint for the new account
//	4. `[]` System program
//	5. `[]` SPL Token program
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	cmd := CommandCreate
	if len(data) > 0 {
		cmd = Command(data[0])
	}

	switch cmd {
	case CommandCreate:
		ctx.Log("Create")
		return p.processCreate(ctx, false)
	case CommandCreateIdempotent:
		ctx.Log("CreateIdempotent")
		return p.processCreate(ctx, true)
	default:
		return svm.ErrInvalidInstructionData
	}
}

func (p *Processor) processCreate(ctx svm.InvokeContext, idempotent bool) error {
	infos := make([]*svm.AccountInfo, 4)
	for i := range infos {
		info, err := ctx.GetAccount(i)
		if err != nil {
			return err
		}
		infos[i] = info
	}
	payer, ata, wallet, mint := infos[0], infos[1], infos[2], infos[3]

	expected, bump, err := findAddress(wallet.Key, mint.Key)
	if err != nil {
		return err
	}
	if expected != ata.Key {
		ctx.Log("Error: Associated address does not match seed derivation")
		return svm.ErrInvalidSeeds
	}

	if idempotent && ata.IsOwnedBy(token.ProgramID) {
		var account token.Account
		if !account.Unmarshal(ata.Data) || account.State == token.AccountStateUninitialized {
			return svm.ErrInvalidAccountData
		}
		if account.Owner != wallet.Key {
			ctx.Log("Error: Owner does not match")
			return ErrInvalidOwner
		}
		if account.Mint != mint.Key {
			return token.ErrorMintMismatch
		}
		return nil
	}

	if !ata.IsOwnedBy(types.SystemProgramAddr) {
		return svm.ErrIllegalOwner
	}
	if !mint.IsOwnedBy(token.ProgramID) {
		return svm.ErrIncorrectProgramID
	}

	seeds := [][]byte{wallet.Key[:], token.ProgramID[:], mint.Key[:], {bump}}
	if err := createPDAAccount(ctx, payer.Key, ata, seeds); err != nil {
		return err
	}

	ctx.Log("Initialize the associated token account")
	return ctx.Invoke(token.InitializeAccount3(ata.Key, mint.Key, wallet.Key))
}

// createPDAAccount allocates a token account at the derived address. An
// address that was already sent lamports is topped up and allocated in
// place instead of created.
func createPDAAccount(ctx svm.InvokeContext, payer types.Pubkey, ata *svm.AccountInfo, seeds [][]byte) error {
	required := ctx.GetRentMinimum(token.AccountSize)

	if ata.Lamports == 0 {
		return ctx.Invoke(
			system.CreateAccount(payer, ata.Key, token.ProgramID, required, token.AccountSize),
			seeds,
		)
	}

	if ata.Lamports < required {
		if err := ctx.Invoke(system.Transfer(payer, ata.Key, required-ata.Lamports)); err != nil {
			return err
		}
	}
	if err := ctx.Invoke(system.Allocate(ata.Key, token.AccountSize), seeds); err != nil {
		return err
	}
	return ctx.Invoke(system.Assign(ata.Key, token.ProgramID), seeds)
}

// Create returns an instruction creating the associated token account of
// wallet for mint, funded by payer, together with its address.
func Create(payer, wallet, mint types.Pubkey) (transaction.Instruction, types.Pubkey, error) {
	return newCreate(CommandCreate, payer, wallet, mint)
}

// CreateIdempotent is Create that succeeds if the account already exists.
func CreateIdempotent(payer, wallet, mint types.Pubkey) (transaction.Instruction, types.Pubkey, error) {
	return newCreate(CommandCreateIdempotent, payer, wallet, mint)
}

func newCreate(cmd Command, payer, wallet, mint types.Pubkey) (transaction.Instruction, types.Pubkey, error) {
	addr, err := FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return transaction.Instruction{}, types.Pubkey{}, err
	}

	return transaction.NewInstruction(
		ProgramID,
		[]byte{byte(cmd)},
		transaction.NewAccountMeta(payer, true),
		transaction.NewAccountMeta(addr, false),
		transaction.NewReadonlyAccountMeta(wallet, false),
		transaction.NewReadonlyAccountMeta(mint, false),
		transaction.NewReadonlyAccountMeta(system.ProgramID, false),
		transaction.NewReadonlyAccountMeta(token.ProgramID, false),
	), addr, nil
}
