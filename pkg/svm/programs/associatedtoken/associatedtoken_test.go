package associatedtoken_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

func TestFindAssociatedTokenAddress(t *testing.T) {
	wallet := types.MustPubkeyFromBase58("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM")
	mint := types.MustPubkeyFromBase58("8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh")

	addr, err := associatedtoken.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, "H7MQwEzt97tUJryocn3qaEoy2ymWstwyEk1i9Yv3EmuZ", addr.String())
}

type env struct {
	l     *ledger.Ledger
	payer *types.Keypair
	mint  types.Pubkey
}

func newEnv(t *testing.T) *env {
	t.Helper()

	l, err := ledger.New()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	e := &env{l: l, payer: types.MustNewKeypair()}
	require.NoError(t, l.Airdrop(e.payer.Pubkey(), 10_000_000_000))

	mint := types.MustNewKeypair()
	_, err = e.send(t, []*types.Keypair{mint},
		system.CreateAccount(e.payer.Pubkey(), mint.Pubkey(), token.ProgramID, l.MinimumBalanceForRentExemption(token.MintSize), token.MintSize),
		token.InitializeMint(mint.Pubkey(), e.payer.Pubkey(), nil, 9),
	)
	require.NoError(t, err)
	e.mint = mint.Pubkey()
	return e
}

func (e *env) send(t *testing.T, signers []*types.Keypair, ixs ...transaction.Instruction) (*ledger.TransactionMeta, error) {
	t.Helper()

	tx := transaction.NewTransaction(e.payer.Pubkey(), ixs...)
	tx.SetBlockhash(e.l.LatestBlockhash())
	require.NoError(t, tx.Sign(append([]*types.Keypair{e.payer}, signers...)...))
	return e.l.SendTransaction(&tx)
}

func (e *env) tokenAccount(t *testing.T, addr types.Pubkey) token.Account {
	t.Helper()

	acc, err := e.l.GetAccount(addr)
	require.NoError(t, err)
	assert.Equal(t, token.ProgramID, acc.Owner)
	var account token.Account
	require.True(t, account.Unmarshal(acc.Data))
	return account
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	wallet := types.MustNewKeypair().Pubkey()

	ix, addr, err := associatedtoken.Create(e.payer.Pubkey(), wallet, e.mint)
	require.NoError(t, err)

	meta, err := e.send(t, nil, ix)
	require.NoError(t, err)

	account := e.tokenAccount(t, addr)
	assert.Equal(t, wallet, account.Owner)
	assert.Equal(t, e.mint, account.Mint)
	assert.Equal(t, token.AccountStateInitialized, account.State)
	assert.Equal(t, e.l.MinimumBalanceForRentExemption(token.AccountSize), e.l.GetBalance(addr))

	assert.Contains(t, meta.Logs, "Program log: Create")
	assert.Contains(t, meta.Logs, "Program log: Initialize the associated token account")
	assert.Contains(t, meta.Logs, "Program log: Instruction: InitializeAccount3")
	assert.Contains(t, meta.Logs, "Program "+token.ProgramID.String()+" invoke [2]")

	e.l.ExpireBlockhash()
	_, err = e.send(t, nil, ix)
	assert.ErrorIs(t, err, svm.ErrIllegalOwner)
}

func TestCreateIdempotent(t *testing.T) {
	e := newEnv(t)
	wallet := types.MustNewKeypair().Pubkey()

	ix, addr, err := associatedtoken.CreateIdempotent(e.payer.Pubkey(), wallet, e.mint)
	require.NoError(t, err)

	meta, err := e.send(t, nil, ix)
	require.NoError(t, err)
	assert.Contains(t, meta.Logs, "Program log: CreateIdempotent")

	e.l.ExpireBlockhash()
	_, err = e.send(t, nil, ix)
	require.NoError(t, err)
	assert.Equal(t, wallet, e.tokenAccount(t, addr).Owner)
}

func TestCreate_Prefunded(t *testing.T) {
	e := newEnv(t)
	wallet := types.MustNewKeypair().Pubkey()

	ix, addr, err := associatedtoken.Create(e.payer.Pubkey(), wallet, e.mint)
	require.NoError(t, err)
	require.NoError(t, e.l.Airdrop(addr, 1_000))

	_, err = e.send(t, nil, ix)
	require.NoError(t, err)
	assert.Equal(t, wallet, e.tokenAccount(t, addr).Owner)
	assert.Equal(t, e.l.MinimumBalanceForRentExemption(token.AccountSize), e.l.GetBalance(addr))
}

func TestCreate_Errors(t *testing.T) {
	e := newEnv(t)
	wallet := types.MustNewKeypair().Pubkey()

	t.Run("WrongAddress", func(t *testing.T) {
		ix, _, err := associatedtoken.Create(e.payer.Pubkey(), wallet, e.mint)
		require.NoError(t, err)
		ix.Accounts[1].PublicKey = types.MustNewKeypair().Pubkey()

		meta, err := e.send(t, nil, ix)
		assert.ErrorIs(t, err, svm.ErrInvalidSeeds)
		assert.Contains(t, meta.Logs, "Program log: Error: Associated address does not match seed derivation")
	})

	t.Run("MintNotTokenOwned", func(t *testing.T) {
		ix, _, err := associatedtoken.Create(e.payer.Pubkey(), wallet, types.MustNewKeypair().Pubkey())
		require.NoError(t, err)

		_, err = e.send(t, nil, ix)
		assert.ErrorIs(t, err, svm.ErrIncorrectProgramID)
	})
}
