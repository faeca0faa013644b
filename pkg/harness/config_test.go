package harness_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/harness"
	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDefaultConfig(t *testing.T) {
	cfg := harness.DefaultConfig()

	assert.Equal(t, uint64(harness.DefaultPayerLamports), cfg.PayerLamports)
	assert.True(t, cfg.SigVerify)
	assert.True(t, cfg.BlockhashCheck)
	assert.Equal(t, svm.DefaultLamportsPerSignature, cfg.LamportsPerSignature)
	assert.Equal(t, harness.BackendMemory, cfg.Accounts.Backend)
	assert.Nil(t, cfg.Log)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	cfg, err := harness.ParseConfig([]byte(`
payer_lamports: 5000000000
compute_limit: 400000
sig_verify: false
accounts:
  backend: badger
  path: /tmp/harness/accounts
  sync_writes: true
history:
  path: /tmp/harness/history.db
log:
  format: json
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, uint64(5_000_000_000), cfg.PayerLamports)
	assert.Equal(t, uint64(400_000), cfg.ComputeLimit)
	assert.False(t, cfg.SigVerify)
	assert.True(t, cfg.BlockhashCheck)
	assert.Equal(t, harness.AccountsConfig{Backend: "badger", Path: "/tmp/harness/accounts", SyncWrites: true}, cfg.Accounts)
	assert.Equal(t, "/tmp/harness/history.db", cfg.History.Path)
	require.NotNil(t, cfg.Log)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := harness.ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, harness.DefaultConfig(), cfg)
}

func TestParseConfig_Errors(t *testing.T) {
	invalid := map[string]string{
		"memory with path":  "accounts:\n  path: /tmp/x\n",
		"unknown backend":   "accounts:\n  backend: rocksdb\n",
		"two payers":        "payer_seed_phrase: a b c\npayer_keypair: id.json\n",
		"compute too large": "compute_limit: 1400001\n",
	}
	for name, doc := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := harness.ParseConfig([]byte(doc))
			assert.ErrorIs(t, err, harness.ErrInvalidConfig)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := harness.ParseConfig([]byte("payer_lamport: 5\n"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, harness.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payer_lamports: 42\n"), 0o644))

	cfg, err := harness.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.PayerLamports)

	_, err = harness.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigPayer(t *testing.T) {
	cfg := harness.DefaultConfig()
	cfg.PayerSeedPhrase = testPhrase

	a, err := cfg.Payer()
	require.NoError(t, err)
	b, err := cfg.Payer()
	require.NoError(t, err)
	assert.Equal(t, a.Pubkey(), b.Pubkey())

	cfg.PayerPassphrase = "secret"
	c, err := cfg.Payer()
	require.NoError(t, err)
	assert.NotEqual(t, a.Pubkey(), c.Pubkey())
}

func TestEnvironment_NoPrograms(t *testing.T) {
	_, err := harness.NewEnvironment().Build()
	assert.ErrorIs(t, err, harness.ErrNoPrograms)
}

func TestEnvironment_InvalidConfig(t *testing.T) {
	cfg := harness.DefaultConfig()
	cfg.Accounts.Backend = "rocksdb"

	_, err := harness.NewEnvironment().
		DeployProgram(echoProgramID, echo).
		WithConfig(cfg).
		Build()
	assert.ErrorIs(t, err, harness.ErrInvalidConfig)
}

func TestEnvironment_Primary(t *testing.T) {
	otherID := types.MustNewKeypair().Pubkey()
	cfg := harness.DefaultConfig()
	cfg.PayerSeedPhrase = testPhrase
	cfg.PayerLamports = 3 * sol

	ctx, err := harness.NewEnvironment().
		DeployProgram(otherID, echo).
		WithPrimary(echoProgramID, echo).
		WithConfig(cfg).
		WithLogger(zap.NewNop()).
		WithLedgerOptions(ledger.WithLamportsPerSignature(1)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })

	payer, err := cfg.Payer()
	require.NoError(t, err)
	assert.Equal(t, payer.Pubkey(), ctx.Payer().Pubkey())
	assert.Equal(t, echoProgramID, ctx.ProgramID())
	ctx.AssertSOLBalance(t, payer.Pubkey(), 3*sol)

	// Both programs are deployed.
	for _, id := range []types.Pubkey{echoProgramID, otherID} {
		ix, err := ctx.Instruction("ping").Signer("user", payer.Pubkey()).Args(id.String()).Build()
		require.NoError(t, err)
		ix.Program = id

		res, err := ctx.ExecuteInstruction(ix)
		require.NoError(t, err)
		res.AssertSuccess(t)
		assert.Equal(t, uint64(1), res.Fee())
	}
}

func TestEnvironment_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := harness.DefaultConfig()
	cfg.PayerSeedPhrase = testPhrase
	cfg.Accounts = harness.AccountsConfig{Backend: harness.BackendBadger, Path: filepath.Join(dir, "accounts")}
	cfg.History.Path = filepath.Join(dir, "history.db")

	ctx, err := harness.NewEnvironment().WithPrimary(echoProgramID, echo).WithConfig(cfg).Build()
	require.NoError(t, err)

	user, err := ctx.CreateFundedAccount(2 * sol)
	require.NoError(t, err)
	res, err := ctx.SendInstructions([]transaction.Instruction{ping(t, ctx, user.Pubkey(), "persist")},
		[]*types.Keypair{user})
	require.NoError(t, err)
	res.AssertSuccess(t)
	require.NoError(t, ctx.Close())

	cfg.PayerLamports = 0
	ctx, err = harness.NewEnvironment().WithPrimary(echoProgramID, echo).WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })

	ctx.AssertSOLBalance(t, user.Pubkey(), 2*sol-res.Fee())
	ctx.AssertSOLBalance(t, ctx.Payer().Pubkey(), harness.DefaultPayerLamports)

	recorded, err := ctx.Ledger().GetTransaction(res.Signature())
	require.NoError(t, err)
	assert.Contains(t, recorded.Meta.LogMessages, "Program log: pong")

	sigs, err := ctx.Ledger().GetSignaturesForAddress(user.Pubkey(), 10)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, res.Signature(), sigs[0].Signature)
}

func TestEnvironment_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.log")
	cfg, err := harness.ParseConfig([]byte("log:\n  format: json\n  level: debug\n  file: " + path + "\n"))
	require.NoError(t, err)

	ctx, err := harness.NewEnvironment().WithPrimary(echoProgramID, echo).WithConfig(cfg).Build()
	require.NoError(t, err)
	res, err := ctx.ExecuteInstruction(ping(t, ctx, ctx.Payer().Pubkey(), "logged"))
	require.NoError(t, err)
	res.AssertSuccess(t)
	require.NoError(t, ctx.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"transaction sent"`)
	assert.Contains(t, string(data), res.Signature().String())
}
