package system_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

const sol = uint64(1_000_000_000)

func setup(t *testing.T) (*ledger.Ledger, *types.Keypair) {
	t.Helper()

	l, err := ledger.New()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	payer := types.MustNewKeypair()
	require.NoError(t, l.Airdrop(payer.Pubkey(), 10*sol))
	return l, payer
}

func send(t *testing.T, l *ledger.Ledger, signers []*types.Keypair, ixs ...transaction.Instruction) (*ledger.TransactionMeta, error) {
	t.Helper()

	tx := transaction.NewTransaction(signers[0].Pubkey(), ixs...)
	tx.SetBlockhash(l.LatestBlockhash())
	require.NoError(t, tx.Sign(signers...))
	return l.SendTransaction(&tx)
}

func TestCreateAccount(t *testing.T) {
	l, payer := setup(t)
	account := types.MustNewKeypair()
	owner := types.MustNewKeypair().Pubkey()
	rent := l.MinimumBalanceForRentExemption(64)

	_, err := send(t, l, []*types.Keypair{payer, account}, system.CreateAccount(payer.Pubkey(), account.Pubkey(), owner, rent, 64))
	require.NoError(t, err)

	acc, err := l.GetAccount(account.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, rent, acc.Lamports)
	assert.Len(t, acc.Data, 64)
	assert.Equal(t, owner, acc.Owner)

	// The address is taken now.
	l.ExpireBlockhash()
	meta, err := send(t, l, []*types.Keypair{payer, account}, system.CreateAccount(payer.Pubkey(), account.Pubkey(), owner, rent, 64))
	assert.ErrorIs(t, err, system.ErrAccountAlreadyInUse)
	assert.Contains(t, meta.Logs, "Program log: Create Account: account "+account.Pubkey().String()+" already in use")
}

func TestCreateAccount_Errors(t *testing.T) {
	l, payer := setup(t)

	t.Run("NewAccountMustSign", func(t *testing.T) {
		account := types.MustNewKeypair()
		ix := system.CreateAccount(payer.Pubkey(), account.Pubkey(), payer.Pubkey(), sol, 0)
		ix.Accounts[1].IsSigner = false

		_, err := send(t, l, []*types.Keypair{payer}, ix)
		assert.ErrorIs(t, err, svm.ErrMissingRequiredSignature)
	})

	t.Run("TooLarge", func(t *testing.T) {
		account := types.MustNewKeypair()
		_, err := send(t, l, []*types.Keypair{payer, account},
			system.CreateAccount(payer.Pubkey(), account.Pubkey(), payer.Pubkey(), sol, system.MaxPermittedDataLength+1))
		assert.ErrorIs(t, err, system.ErrInvalidAccountDataLength)
	})

	t.Run("NotRentExempt", func(t *testing.T) {
		account := types.MustNewKeypair()
		_, err := send(t, l, []*types.Keypair{payer, account},
			system.CreateAccount(payer.Pubkey(), account.Pubkey(), payer.Pubkey(), 1_000, 10))

		var rentErr *svm.InsufficientFundsForRentError
		require.ErrorAs(t, err, &rentErr)
		assert.False(t, l.HasAccount(account.Pubkey()))
	})
}

func TestAssignAndAllocate(t *testing.T) {
	l, payer := setup(t)
	account := types.MustNewKeypair()
	owner := types.MustNewKeypair().Pubkey()
	require.NoError(t, l.Airdrop(account.Pubkey(), sol))

	_, err := send(t, l, []*types.Keypair{payer, account},
		system.Allocate(account.Pubkey(), 32),
		system.Assign(account.Pubkey(), owner),
	)
	require.NoError(t, err)

	acc, err := l.GetAccount(account.Pubkey())
	require.NoError(t, err)
	assert.Len(t, acc.Data, 32)
	assert.Equal(t, owner, acc.Owner)

	// Only the System Program may reassign its accounts.
	_, err = send(t, l, []*types.Keypair{payer, account}, system.Assign(account.Pubkey(), payer.Pubkey()))
	assert.ErrorIs(t, err, system.ErrInvalidProgramID)
}

func TestWithSeed(t *testing.T) {
	l, payer := setup(t)
	owner := types.MustNewKeypair().Pubkey()
	rent := l.MinimumBalanceForRentExemption(8)

	addr, err := types.CreateWithSeed(payer.Pubkey(), "vault", system.ProgramID)
	require.NoError(t, err)

	_, err = send(t, l, []*types.Keypair{payer},
		system.CreateAccountWithSeed(payer.Pubkey(), addr, payer.Pubkey(), "vault", 2*rent, 0, system.ProgramID),
		system.TransferWithSeed(addr, payer.Pubkey(), "vault", system.ProgramID, payer.Pubkey(), rent/2),
	)
	require.NoError(t, err)
	assert.Equal(t, 2*rent-rent/2, l.GetBalance(addr))

	other, err := types.CreateWithSeed(payer.Pubkey(), "data", owner)
	require.NoError(t, err)
	require.NoError(t, l.Airdrop(other, rent))

	_, err = send(t, l, []*types.Keypair{payer},
		system.AllocateWithSeed(other, payer.Pubkey(), "data", 8, owner),
	)
	require.NoError(t, err)
	acc, err := l.GetAccount(other)
	require.NoError(t, err)
	assert.Len(t, acc.Data, 8)
	assert.Equal(t, owner, acc.Owner)

	_, err = send(t, l, []*types.Keypair{payer},
		system.AssignWithSeed(other, payer.Pubkey(), "wrong", owner),
	)
	assert.ErrorIs(t, err, system.ErrAddressWithSeedMismatch)
}
