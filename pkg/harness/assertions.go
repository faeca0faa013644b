package harness

import (
	"errors"
	"fmt"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// lookup reports an absent account as not found and fails t on any other
// ledger error.
func (c *Context) lookup(t TestingT, addr types.Pubkey) (*accounts.Account, bool) {
	acc, err := c.ledger.GetAccount(addr)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, false
	}
	require.NoError(t, err, "Failed to load account %s", addr)
	if acc == nil {
		return nil, false
	}
	return acc, true
}

// AssertAccountExists fails t unless an account exists at addr.
func (c *Context) AssertAccountExists(t TestingT, addr types.Pubkey) {
	helper(t)
	if _, ok := c.lookup(t, addr); !ok {
		require.Fail(t, fmt.Sprintf("Account %s should exist but doesn't", addr))
	}
}

// AssertAccountClosed fails t unless addr is absent, or holds no
// lamports and no data.
func (c *Context) AssertAccountClosed(t TestingT, addr types.Pubkey) {
	helper(t)
	acc, ok := c.lookup(t, addr)
	if !ok {
		return
	}
	if acc.Lamports != 0 || len(acc.Data) != 0 {
		require.Fail(t, fmt.Sprintf("Account %s should be closed but has %d lamports and %d bytes of data",
			addr, acc.Lamports, len(acc.Data)))
	}
}

// AssertTokenBalance fails t unless the token account holds expected base
// units. An absent account holds zero.
func (c *Context) AssertTokenBalance(t TestingT, account types.Pubkey, expected uint64) {
	helper(t)
	acc, ok := c.lookup(t, account)
	if !ok {
		require.Equal(t, expected, uint64(0), "Token account %s not found, balance treated as 0", account)
		return
	}

	var state token.Account
	if !state.Unmarshal(acc.Data) {
		require.Fail(t, fmt.Sprintf("Failed to unpack token account %s", account))
		return
	}
	require.Equal(t, expected, state.Amount, "Token balance mismatch for %s", account)
}

// AssertSOLBalance fails t unless addr holds expected lamports. An absent
// account holds zero.
func (c *Context) AssertSOLBalance(t TestingT, addr types.Pubkey, expected uint64) {
	helper(t)
	var lamports uint64
	if acc, ok := c.lookup(t, addr); ok {
		lamports = acc.Lamports
	}
	require.Equal(t, expected, lamports, "SOL balance mismatch for %s", addr)
}

// AssertMintSupply fails t unless the mint's supply is expected.
func (c *Context) AssertMintSupply(t TestingT, mint types.Pubkey, expected uint64) {
	helper(t)
	acc, ok := c.lookup(t, mint)
	if !ok {
		require.Fail(t, fmt.Sprintf("Mint %s not found", mint))
		return
	}

	var state token.Mint
	if !state.Unmarshal(acc.Data) {
		require.Fail(t, fmt.Sprintf("Failed to unpack mint %s", mint))
		return
	}
	require.Equal(t, expected, state.Supply, "Mint supply mismatch for %s", mint)
}

// AssertAccountOwner fails t unless addr is owned by owner.
func (c *Context) AssertAccountOwner(t TestingT, addr, owner types.Pubkey) {
	helper(t)
	acc, ok := c.lookup(t, addr)
	if !ok {
		require.Fail(t, fmt.Sprintf("Account %s not found", addr))
		return
	}
	require.Equal(t, owner, acc.Owner, "Account owner mismatch for %s", addr)
}

// AssertAccountDataLen fails t unless addr holds n bytes of data.
func (c *Context) AssertAccountDataLen(t TestingT, addr types.Pubkey, n int) {
	helper(t)
	acc, ok := c.lookup(t, addr)
	if !ok {
		require.Fail(t, fmt.Sprintf("Account %s not found", addr))
		return
	}
	require.Len(t, acc.Data, n, "Account data length mismatch for %s", addr)
}
