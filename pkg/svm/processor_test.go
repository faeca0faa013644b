package svm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/computebudget"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

const sol = uint64(1_000_000_000)

type fakeBank struct {
	db        *accounts.MemoryDB
	blockhash types.Hash
	seen      map[types.Signature]bool
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		db:        accounts.NewMemoryDB(),
		blockhash: types.ComputeHash([]byte("genesis")),
		seen:      make(map[types.Signature]bool),
	}
}

func (b *fakeBank) GetAccount(pubkey types.Pubkey) (*accounts.Account, error) {
	return b.db.GetAccount(pubkey)
}

func (b *fakeBank) IsBlockhashValid(hash types.Hash) bool { return hash == b.blockhash }
func (b *fakeBank) HasSignature(sig types.Signature) bool { return b.seen[sig] }
func (b *fakeBank) Clock() svm.Clock { return svm.Clock{Slot: 1} }
func (b *fakeBank) Rent() svm.Rent { return svm.DefaultRent() }

func (b *fakeBank) fund(t *testing.T, pubkey types.Pubkey, lamports uint64) {
	require.NoError(t, b.db.SetAccount(pubkey, &accounts.Account{Lamports: lamports, Owner: types.SystemProgramAddr}))
}

func (b *fakeBank) balance(pubkey types.Pubkey) uint64 {
	acc, err := b.db.GetAccount(pubkey)
	if err != nil {
		return 0
	}
	return acc.Lamports
}

func (b *fakeBank) commit(t *testing.T, result *svm.Result) {
	require.NoError(t, b.db.ApplyBatch(result.Writes))
	b.seen[result.Signature] = true
}

type env struct {
	bank      *fakeBank
	registry  *svm.Registry
	processor *svm.Processor
	payer     *types.Keypair
}

func newEnv(t *testing.T) *env {
	registry := svm.NewRegistry()
	registry.Register(system.ProgramID, system.NewProcessor(), svm.CUSystemProgramDefault)
	registry.Register(computebudget.ProgramID, computebudget.NewProcessor(), svm.CUComputeBudgetDefault)

	e := &env{
		bank:      newFakeBank(),
		registry:  registry,
		processor: svm.NewProcessor(registry, svm.DefaultConfig()),
		payer:     types.MustNewKeypair(),
	}
	e.bank.fund(t, e.payer.Pubkey(), 10*sol)
	return e
}

func (e *env) tx(t *testing.T, signers []*types.Keypair, ixs ...transaction.Instruction) *transaction.Transaction {
	tx := transaction.NewTransaction(signers[0].Pubkey(), ixs...)
	tx.SetBlockhash(e.bank.blockhash)
	require.NoError(t, tx.Sign(signers...))
	return &tx
}

func (e *env) run(t *testing.T, signers []*types.Keypair, ixs ...transaction.Instruction) *svm.Result {
	result, err := e.processor.Process(e.bank, e.tx(t, signers, ixs...))
	require.NoError(t, err)
	e.bank.commit(t, result)
	return result
}

func hasLog(logs []string, substr string) bool {
	for _, l := range logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestProcessor_Transfer(t *testing.T) {
	e := newEnv(t)
	recipient := types.MustNewKeypair().Pubkey()

	result := e.run(t, []*types.Keypair{e.payer}, system.Transfer(e.payer.Pubkey(), recipient, sol))
	require.NoError(t, result.Err)

	assert.EqualValues(t, 5000, result.Fee)
	assert.EqualValues(t, 150, result.ComputeUnitsConsumed)
	assert.EqualValues(t, 200_000, result.ComputeUnitLimit)
	assert.Equal(t, []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program 11111111111111111111111111111111 consumed 150 of 200000 compute units",
		"Program 11111111111111111111111111111111 success",
	}, result.Logs)

	assert.Equal(t, 9*sol-5000, e.bank.balance(e.payer.Pubkey()))
	assert.Equal(t, sol, e.bank.balance(recipient))
}

func TestProcessor_RejectedBeforeExecution(t *testing.T) {
	e := newEnv(t)
	recipient := types.MustNewKeypair().Pubkey()
	transfer := system.Transfer(e.payer.Pubkey(), recipient, sol)

	t.Run("unknown blockhash", func(t *testing.T) {
		tx := transaction.NewTransaction(e.payer.Pubkey(), transfer)
		tx.SetBlockhash(types.ComputeHash([]byte("stale")))
		require.NoError(t, tx.Sign(e.payer))

		_, err := e.processor.Process(e.bank, &tx)
		assert.ErrorIs(t, err, svm.ErrBlockhashNotFound)
	})

	t.Run("bad signature", func(t *testing.T) {
		tx := e.tx(t, []*types.Keypair{e.payer}, transfer)
		tx.Signatures[0][0] ^= 0xff

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrSignatureFailure)
	})

	t.Run("missing signature", func(t *testing.T) {
		tx := e.tx(t, []*types.Keypair{e.payer}, transfer)
		tx.Signatures = nil

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrSanitizeFailure)
	})

	t.Run("already processed", func(t *testing.T) {
		tx := e.tx(t, []*types.Keypair{e.payer}, transfer)
		e.bank.seen[tx.Signature()] = true

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrAlreadyProcessed)
	})

	t.Run("unfunded payer", func(t *testing.T) {
		nobody := types.MustNewKeypair()
		tx := e.tx(t, []*types.Keypair{nobody}, system.Transfer(nobody.Pubkey(), recipient, 1))

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrAccountNotFound)
	})

	t.Run("payer cannot cover fee", func(t *testing.T) {
		poor := types.MustNewKeypair()
		e.bank.fund(t, poor.Pubkey(), 4000)
		tx := e.tx(t, []*types.Keypair{poor}, system.Transfer(poor.Pubkey(), recipient, 1))

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrInsufficientFundsForFee)
	})

	t.Run("payer not system owned", func(t *testing.T) {
		owned := types.MustNewKeypair()
		require.NoError(t, e.bank.db.SetAccount(owned.Pubkey(), &accounts.Account{Lamports: sol, Owner: types.TokenProgramAddr}))
		tx := e.tx(t, []*types.Keypair{owned}, system.Transfer(owned.Pubkey(), recipient, 1))

		_, err := e.processor.Process(e.bank, tx)
		assert.ErrorIs(t, err, svm.ErrInvalidAccountForFee)
	})
}

func TestProcessor_FailureChargesFeeOnly(t *testing.T) {
	e := newEnv(t)
	recipient := types.MustNewKeypair().Pubkey()

	result := e.run(t, []*types.Keypair{e.payer},
		system.Transfer(e.payer.Pubkey(), recipient, sol),
		system.Transfer(e.payer.Pubkey(), recipient, 100*sol),
	)

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, system.ErrResultWithNegativeLamports)
	assert.Equal(t, "Error processing Instruction 1: custom program error: 0x1", result.Err.Error())
	assert.True(t, hasLog(result.Logs, "failed: custom program error: 0x1"))

	require.Len(t, result.Writes, 1)
	assert.Equal(t, 10*sol-5000, e.bank.balance(e.payer.Pubkey()))
	assert.Zero(t, e.bank.balance(recipient))
}

func TestProcessor_UnknownProgram(t *testing.T) {
	e := newEnv(t)
	missing := types.MustNewKeypair().Pubkey()

	result := e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(missing, []byte{1}))
	assert.ErrorIs(t, result.Err, svm.ErrProgramAccountNotFound)
	assert.Empty(t, result.Logs)
	assert.Equal(t, 10*sol-5000, e.bank.balance(e.payer.Pubkey()))
}

func TestProcessor_RentState(t *testing.T) {
	e := newEnv(t)
	recipient := types.MustNewKeypair().Pubkey()

	result := e.run(t, []*types.Keypair{e.payer}, system.Transfer(e.payer.Pubkey(), recipient, 1000))

	var rentErr *svm.InsufficientFundsForRentError
	require.True(t, errors.As(result.Err, &rentErr))
	assert.Equal(t, 1, rentErr.AccountIndex)
	assert.Zero(t, e.bank.balance(recipient))
}

func TestProcessor_PayerRentState(t *testing.T) {
	e := newEnv(t)
	exempt := svm.DefaultRent().MinimumBalance(0)

	// An exempt payer cannot be left rent-paying by the fee.
	payer := types.MustNewKeypair()
	e.bank.fund(t, payer.Pubkey(), exempt+1000)
	_, err := e.processor.Process(e.bank, e.tx(t, []*types.Keypair{payer}, computebudget.SetComputeUnitLimit(1_000)))
	var rentErr *svm.InsufficientFundsForRentError
	require.ErrorAs(t, err, &rentErr)
	assert.Equal(t, 0, rentErr.AccountIndex)

	// A payer that was already rent-paying may keep paying fees.
	legacy := types.MustNewKeypair()
	e.bank.fund(t, legacy.Pubkey(), exempt/2)
	result := e.run(t, []*types.Keypair{legacy}, computebudget.SetComputeUnitLimit(1_000))
	require.NoError(t, result.Err)
	assert.Equal(t, exempt/2-5000, e.bank.balance(legacy.Pubkey()))
}

func TestProcessor_ComputeBudget(t *testing.T) {
	e := newEnv(t)
	recipient := types.MustNewKeypair().Pubkey()

	result := e.run(t, []*types.Keypair{e.payer},
		computebudget.SetComputeUnitLimit(10_000),
		computebudget.SetComputeUnitPrice(1_000_000),
		system.Transfer(e.payer.Pubkey(), recipient, sol),
	)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 10_000, result.ComputeUnitLimit)
	assert.EqualValues(t, 450, result.ComputeUnitsConsumed)
	assert.EqualValues(t, 5000+10_000, result.Fee)

	hungry := types.MustNewKeypair().Pubkey()
	e.registry.Register(hungry, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
		return ctx.ConsumeCompute(50_000)
	}), svm.CUProgramDefault)

	result = e.run(t, []*types.Keypair{e.payer},
		computebudget.SetComputeUnitLimit(20_000),
		transaction.NewInstruction(hungry, nil),
	)
	assert.ErrorIs(t, result.Err, svm.ErrComputeExceeded)
	assert.EqualValues(t, 20_000, result.ComputeUnitsConsumed)
	assert.True(t, hasLog(result.Logs, "consumed 19850 of 19850 compute units"))
}

func TestProcessor_AccountVerification(t *testing.T) {
	programID := types.MustNewKeypair().Pubkey()
	owned := types.MustNewKeypair().Pubkey()
	external := types.MustNewKeypair().Pubkey()

	for _, tc := range []struct {
		name     string
		writable bool
		mutate   func(owned, external *svm.AccountInfo)
		err      error
	}{
		{
			name:     "owner may change data and debit",
			writable: true,
			mutate: func(owned, external *svm.AccountInfo) {
				owned.Data[0] = 9
				owned.Lamports -= 10
				external.Lamports += 10
			},
		},
		{
			name:     "lamports must balance",
			writable: true,
			mutate:   func(owned, _ *svm.AccountInfo) { owned.Lamports += 10 },
			err:      svm.ErrUnbalancedInstruction,
		},
		{
			name:     "external data",
			writable: true,
			mutate:   func(_, external *svm.AccountInfo) { external.Data = []byte{1} },
			err:      svm.ErrInvalidRealloc,
		},
		{
			name:     "external lamport spend",
			writable: true,
			mutate: func(owned, external *svm.AccountInfo) {
				external.Lamports -= 10
				owned.Lamports += 10
			},
			err: svm.ErrExternalAccountLamportSpend,
		},
		{
			name:   "readonly data",
			mutate: func(owned, _ *svm.AccountInfo) { owned.Data[0] = 9 },
			err:    svm.ErrReadonlyDataModified,
		},
		{
			name:     "owner reassign of non-zero data",
			writable: true,
			mutate:   func(owned, _ *svm.AccountInfo) { owned.Owner = types.SystemProgramAddr },
			err:      svm.ErrModifiedProgramID,
		},
		{
			name:     "executable flag",
			writable: true,
			mutate:   func(owned, _ *svm.AccountInfo) { owned.Executable = true },
			err:      svm.ErrExecutableModified,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			require.NoError(t, e.bank.db.SetAccount(owned, &accounts.Account{Lamports: sol, Data: []byte{1, 2, 3}, Owner: programID}))
			e.bank.fund(t, external, sol)

			e.registry.Register(programID, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
				a, err := ctx.GetAccount(0)
				if err != nil {
					return err
				}
				b, err := ctx.GetAccount(1)
				if err != nil {
					return err
				}
				tc.mutate(a, b)
				return nil
			}), svm.CUProgramDefault)

			meta := transaction.NewReadonlyAccountMeta(owned, false)
			if tc.writable {
				meta = transaction.NewAccountMeta(owned, false)
			}
			ix := transaction.NewInstruction(programID, nil, meta, transaction.NewAccountMeta(external, false))

			result := e.run(t, []*types.Keypair{e.payer}, ix)
			if tc.err == nil {
				require.NoError(t, result.Err)
				return
			}
			assert.ErrorIs(t, result.Err, tc.err)
		})
	}
}

func TestProcessor_CrossProgramInvocation(t *testing.T) {
	e := newEnv(t)
	programID := types.MustNewKeypair().Pubkey()
	vault, bump := types.MustFindProgramAddress([][]byte{[]byte("vault")}, programID)
	recipient := types.MustNewKeypair().Pubkey()
	e.bank.fund(t, vault, 5*sol)

	// data[0] == 1 signs for the vault with its seeds.
	e.registry.Register(programID, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		ix := system.Transfer(vault, recipient, sol)
		if data[0] == 1 {
			return ctx.Invoke(ix, [][]byte{[]byte("vault"), {bump}})
		}
		return ctx.Invoke(ix)
	}), svm.CUProgramDefault)

	accountsFor := func() []transaction.AccountMeta {
		return []transaction.AccountMeta{
			transaction.NewAccountMeta(vault, false),
			transaction.NewAccountMeta(recipient, false),
			transaction.NewReadonlyAccountMeta(system.ProgramID, false),
		}
	}

	result := e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(programID, []byte{1}, accountsFor()...))
	require.NoError(t, result.Err)
	assert.True(t, hasLog(result.Logs, "Program 11111111111111111111111111111111 invoke [2]"))
	assert.Equal(t, 4*sol, e.bank.balance(vault))
	assert.Equal(t, sol, e.bank.balance(recipient))

	result = e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(programID, []byte{0}, accountsFor()...))
	assert.ErrorIs(t, result.Err, svm.ErrPrivilegeEscalation)
	assert.Equal(t, 4*sol, e.bank.balance(vault))
}

func TestProcessor_CallDepth(t *testing.T) {
	e := newEnv(t)
	programID := types.MustNewKeypair().Pubkey()

	// Invokes itself data[0] more times.
	e.registry.Register(programID, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		if data[0] == 0 {
			return nil
		}
		return ctx.Invoke(transaction.NewInstruction(programID, []byte{data[0] - 1}))
	}), svm.CUProgramDefault)

	result := e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(programID, []byte{4}))
	require.NoError(t, result.Err)
	assert.True(t, hasLog(result.Logs, "invoke [5]"))

	result = e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(programID, []byte{5}))
	assert.ErrorIs(t, result.Err, svm.ErrCallDepth)
}

func TestProcessor_Reentrancy(t *testing.T) {
	e := newEnv(t)
	outer := types.MustNewKeypair().Pubkey()
	inner := types.MustNewKeypair().Pubkey()

	e.registry.Register(outer, svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
		if len(data) > 0 {
			return nil
		}
		return ctx.Invoke(transaction.NewInstruction(inner, nil))
	}), svm.CUProgramDefault)
	e.registry.Register(inner, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
		return ctx.Invoke(transaction.NewInstruction(outer, []byte{1}))
	}), svm.CUProgramDefault)

	result := e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(outer, nil))
	assert.ErrorIs(t, result.Err, svm.ErrReentrancyNotAllowed)
}

func TestProcessor_LogsAndReturnData(t *testing.T) {
	e := newEnv(t)
	programID := types.MustNewKeypair().Pubkey()

	e.registry.Register(programID, svm.ProgramFunc(func(ctx svm.InvokeContext, _ []byte) error {
		ctx.Log("hello")
		ctx.Logf("slot %d", ctx.Clock().Slot)
		ctx.EmitEvent([]byte{1, 2, 3})
		ctx.SetReturnData([]byte("ok"))
		return nil
	}), svm.CUProgramDefault)

	result := e.run(t, []*types.Keypair{e.payer}, transaction.NewInstruction(programID, nil))
	require.NoError(t, result.Err)

	assert.Contains(t, result.Logs, "Program log: hello")
	assert.Contains(t, result.Logs, "Program log: slot 1")
	assert.Contains(t, result.Logs, "Program data: AQID")
	assert.Contains(t, result.Logs, "Program return: "+programID.String()+" b2s=")
	require.NotNil(t, result.ReturnData)
	assert.Equal(t, programID, result.ReturnData.ProgramID)
	assert.Equal(t, []byte("ok"), result.ReturnData.Data)
	assert.EqualValues(t, 1000, result.ComputeUnitsConsumed)
}
