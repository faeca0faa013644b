package harness

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// setup executes a setup transaction, turning any failure into an error
// carrying the ledger error and the logs.
func (c *Context) setup(what string, ixs []transaction.Instruction, signers ...*types.Keypair) error {
	res, err := c.SendInstructions(ixs, signers, WithLabel(what))
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("failed to %s: %w\n%s", what, res.Err(), res.LogDump())
	}
	c.log.Debug("setup", zap.String("step", what), zap.Stringer("signature", res.Signature()))
	return nil
}

// CreateFundedAccount creates a keypair holding lamports.
func (c *Context) CreateFundedAccount(lamports uint64) (*types.Keypair, error) {
	kp, err := types.NewKeypair()
	if err != nil {
		return nil, err
	}
	if err := c.ledger.Airdrop(kp.Pubkey(), lamports); err != nil {
		return nil, fmt.Errorf("failed to airdrop: %w", err)
	}
	return kp, nil
}

// CreateFundedAccounts creates n keypairs holding lamports each.
func (c *Context) CreateFundedAccounts(n int, lamports uint64) ([]*types.Keypair, error) {
	out := make([]*types.Keypair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := c.CreateFundedAccount(lamports)
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, nil
}

// CreateTokenMint creates a mint with authority as mint authority. The
// authority pays for it.
func (c *Context) CreateTokenMint(authority *types.Keypair, decimals uint8) (*types.Keypair, error) {
	mint, err := types.NewKeypair()
	if err != nil {
		return nil, err
	}

	ixs := []transaction.Instruction{
		system.CreateAccount(authority.Pubkey(), mint.Pubkey(), token.ProgramID,
			c.ledger.MinimumBalanceForRentExemption(token.MintSize), token.MintSize),
		token.InitializeMint(mint.Pubkey(), authority.Pubkey(), nil, decimals),
	}
	if err := c.setup("create mint", ixs, authority, mint); err != nil {
		return nil, err
	}
	return mint, nil
}

// CreateTokenAccount creates a token account of mint owned by owner. The
// owner pays for it.
func (c *Context) CreateTokenAccount(mint types.Pubkey, owner *types.Keypair) (*types.Keypair, error) {
	account, err := types.NewKeypair()
	if err != nil {
		return nil, err
	}

	ixs := []transaction.Instruction{
		system.CreateAccount(owner.Pubkey(), account.Pubkey(), token.ProgramID,
			c.ledger.MinimumBalanceForRentExemption(token.AccountSize), token.AccountSize),
		token.InitializeAccount(account.Pubkey(), mint, owner.Pubkey()),
	}
	if err := c.setup("create token account", ixs, owner, account); err != nil {
		return nil, err
	}
	return account, nil
}

// CreateAssociatedTokenAccount creates the associated token account of
// owner for mint. The owner pays for it.
func (c *Context) CreateAssociatedTokenAccount(mint types.Pubkey, owner *types.Keypair) (types.Pubkey, error) {
	ix, ata, err := associatedtoken.Create(owner.Pubkey(), owner.Pubkey(), mint)
	if err != nil {
		return types.Pubkey{}, err
	}
	if err := c.setup("create ATA", []transaction.Instruction{ix}, owner); err != nil {
		return types.Pubkey{}, err
	}
	return ata, nil
}

// MintTo mints amount base units of mint into account.
func (c *Context) MintTo(mint, account types.Pubkey, authority *types.Keypair, amount uint64) error {
	ix := token.MintTo(mint, account, authority.Pubkey(), amount)
	return c.setup("mint tokens", []transaction.Instruction{ix}, authority)
}

// CreateTokenAccountWithBalance creates owner's associated token account
// for mint and mints amount into it.
func (c *Context) CreateTokenAccountWithBalance(mint types.Pubkey, owner, authority *types.Keypair, amount uint64) (types.Pubkey, error) {
	ata, err := c.CreateAssociatedTokenAccount(mint, owner)
	if err != nil {
		return types.Pubkey{}, err
	}
	if amount > 0 {
		if err := c.MintTo(mint, ata, authority, amount); err != nil {
			return types.Pubkey{}, err
		}
	}
	return ata, nil
}

// DerivePDA finds the program address for seeds and its bump.
func (c *Context) DerivePDA(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	return types.FindProgramAddress(seeds, programID)
}

// GetPDA returns the program address for seeds, or the zero key if the
// seeds are invalid.
func (c *Context) GetPDA(seeds [][]byte, programID types.Pubkey) types.Pubkey {
	addr, _ := c.GetPDAWithBump(seeds, programID)
	return addr
}

// GetPDAWithBump returns the program address for seeds and its bump, or
// the zero key if the seeds are invalid.
func (c *Context) GetPDAWithBump(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8) {
	addr, bump, err := types.FindProgramAddress(seeds, programID)
	if err != nil {
		return types.Pubkey{}, 0
	}
	return addr, bump
}

// CurrentSlot returns the slot of the Clock sysvar.
func (c *Context) CurrentSlot() uint64 {
	return c.ledger.Clock().Slot
}

// AdvanceSlot moves the clock forward n slots, one slot at a time.
func (c *Context) AdvanceSlot(n uint64) error {
	for i := uint64(0); i < n; i++ {
		if err := c.ledger.WarpToSlot(c.CurrentSlot() + 1); err != nil {
			return err
		}
	}
	return nil
}

// WarpToSlot jumps the clock to slot.
func (c *Context) WarpToSlot(slot uint64) error {
	return c.ledger.WarpToSlot(slot)
}

// UnixTimestamp returns the time of the Clock sysvar.
func (c *Context) UnixTimestamp() int64 {
	return c.ledger.Clock().UnixTimestamp
}

// SetUnixTimestamp sets the time of the Clock sysvar.
func (c *Context) SetUnixTimestamp(ts int64) error {
	clock := c.ledger.Clock()
	clock.UnixTimestamp = ts
	return c.ledger.SetClock(clock)
}
