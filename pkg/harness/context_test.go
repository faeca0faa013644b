package harness_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/harness"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/associatedtoken"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

const sol = uint64(1_000_000_000)

var (
	echoProgramID = types.MustNewKeypair().Pubkey()

	pingDisc = anchor.InstructionDiscriminator("ping")
	failDisc = anchor.InstructionDiscriminator("fail")

	errBoom = anchor.NewError(3, "Boom", "Something went boom")
)

// echo logs "pong" and returns its arguments for ping, and fails with
// errBoom for fail.
var echo = svm.ProgramFunc(func(ctx svm.InvokeContext, data []byte) error {
	switch {
	case pingDisc.Matches(data):
		ctx.Log("Instruction: Ping")
		ctx.Log("pong")
		ctx.SetReturnData(data[anchor.DiscriminatorSize:])
		return nil
	case failDisc.Matches(data):
		ctx.Log("Instruction: Fail")
		return anchor.Fail(ctx, errBoom)
	default:
		return svm.ErrInvalidInstructionData
	}
})

// fakeT records failures instead of stopping the test.
type fakeT struct {
	failed bool
	msgs   []string
}

func (f *fakeT) Errorf(format string, args ...interface{}) {
	f.failed = true
	f.msgs = append(f.msgs, fmt.Sprintf(format, args...))
}

func (f *fakeT) FailNow() {
	f.failed = true
}

func (f *fakeT) output() string {
	return strings.Join(f.msgs, "\n")
}

func newContext(t *testing.T) *harness.Context {
	t.Helper()

	ctx, err := harness.NewWithProgram(echoProgramID, echo)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func ping(t *testing.T, ctx *harness.Context, signer types.Pubkey, msg string) transaction.Instruction {
	t.Helper()

	ix, err := ctx.Instruction("ping").
		Signer("user", signer).
		Args(msg).
		Build()
	require.NoError(t, err)
	return ix
}

func fail(t *testing.T, ctx *harness.Context, signer types.Pubkey) transaction.Instruction {
	t.Helper()

	ix, err := ctx.Instruction("fail").
		Signer("user", signer).
		Args().
		Build()
	require.NoError(t, err)
	return ix
}

func TestNewContext(t *testing.T) {
	ctx := newContext(t)

	assert.Equal(t, echoProgramID, ctx.ProgramID())
	assert.Equal(t, echoProgramID, ctx.Program().ID)
	assert.Equal(t, uint64(harness.DefaultPayerLamports), ctx.Ledger().GetBalance(ctx.Payer().Pubkey()))
	assert.True(t, ctx.AccountExists(ctx.Payer().Pubkey()))
	assert.False(t, ctx.AccountExists(types.MustNewKeypair().Pubkey()))
	assert.Equal(t, ctx.Ledger().LatestBlockhash(), ctx.LatestBlockhash())
}

func TestSendInstruction(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(10 * sol)
	require.NoError(t, err)

	res, err := ctx.SendInstruction(ping(t, ctx, user.Pubkey(), "hello"), user)
	require.NoError(t, err)

	res.AssertSuccess(t).
		AssertLog(t, "pong").
		AssertComputeUnitsBelow(t, 200_000)

	assert.True(t, res.IsSuccess())
	assert.NoError(t, res.Err())
	assert.Empty(t, res.ErrorMessage())
	assert.Equal(t, "instruction to "+echoProgramID.String(), res.Label())
	assert.NotZero(t, res.ComputeUnits())
	assert.Equal(t, svm.DefaultLamportsPerSignature, res.Fee())
	assert.Equal(t, 10*sol-res.Fee(), ctx.Ledger().GetBalance(user.Pubkey()))

	line, ok := res.FindLog("pong")
	require.True(t, ok)
	assert.Equal(t, "Program log: pong", line)
	_, ok = res.FindLog("missing")
	assert.False(t, ok)

	want, err := anchor.EncodeArgs("hello")
	require.NoError(t, err)
	require.NotNil(t, res.ReturnData())
	assert.Equal(t, echoProgramID, res.ReturnData().ProgramID)
	assert.Equal(t, want, res.ReturnData().Data)
}

func TestSendInstructions_NoSigners(t *testing.T) {
	ctx := newContext(t)

	res, err := ctx.SendInstructions([]transaction.Instruction{ping(t, ctx, ctx.Payer().Pubkey(), "x")}, nil)
	assert.Nil(t, res)

	var buildErr *anchor.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "No signers provided", buildErr.Error())
}

func TestSendInstructions_UnknownSigner(t *testing.T) {
	ctx := newContext(t)
	stranger := types.MustNewKeypair()

	_, err := ctx.SendInstructions([]transaction.Instruction{ping(t, ctx, ctx.Payer().Pubkey(), "x")},
		[]*types.Keypair{ctx.Payer(), stranger})

	var buildErr *anchor.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Error(), "failed to sign transaction")
}

func TestSendInstructions_WithPayer(t *testing.T) {
	ctx := newContext(t)
	accts, err := ctx.CreateFundedAccounts(2, 10*sol)
	require.NoError(t, err)
	user, sponsor := accts[0], accts[1]

	res, err := ctx.SendInstructions(
		[]transaction.Instruction{ping(t, ctx, user.Pubkey(), "a"), ping(t, ctx, user.Pubkey(), "b")},
		[]*types.Keypair{user, sponsor},
		harness.WithPayer(sponsor.Pubkey()),
		harness.WithLabel("sponsored pings"),
	)
	require.NoError(t, err)
	res.AssertSuccess(t)

	assert.Equal(t, "sponsored pings", res.Label())
	assert.Equal(t, 10*sol, ctx.Ledger().GetBalance(user.Pubkey()))
	assert.Equal(t, 10*sol-res.Fee(), ctx.Ledger().GetBalance(sponsor.Pubkey()))
	assert.Equal(t, 2*svm.DefaultLamportsPerSignature, res.Fee())
}

func TestSendInstructions_MissingSignature(t *testing.T) {
	ctx := newContext(t)
	accts, err := ctx.CreateFundedAccounts(2, sol)
	require.NoError(t, err)
	user, sponsor := accts[0], accts[1]
	ixs := []transaction.Instruction{ping(t, ctx, user.Pubkey(), "unsigned")}

	// The sponsor pays but its keypair is not supplied.
	res, err := ctx.SendInstructions(ixs, []*types.Keypair{user}, harness.WithPayer(sponsor.Pubkey()))
	assert.Nil(t, res)

	var buildErr *anchor.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "missing signature for "+sponsor.Pubkey().String(), buildErr.Error())

	// Nothing reached the ledger.
	assert.Equal(t, sol, ctx.Ledger().GetBalance(sponsor.Pubkey()))
	assert.Equal(t, sol, ctx.Ledger().GetBalance(user.Pubkey()))
}

func TestExecuteInstruction_DefaultsToPayer(t *testing.T) {
	ctx := newContext(t)
	before := ctx.Ledger().GetBalance(ctx.Payer().Pubkey())

	res, err := ctx.ExecuteInstruction(ping(t, ctx, ctx.Payer().Pubkey(), "payer"))
	require.NoError(t, err)
	res.AssertSuccess(t)
	assert.Equal(t, before-res.Fee(), ctx.Ledger().GetBalance(ctx.Payer().Pubkey()))

	res, err = ctx.ExecuteInstructions([]transaction.Instruction{ping(t, ctx, ctx.Payer().Pubkey(), "batch")})
	require.NoError(t, err)
	res.AssertSuccess(t)
	assert.Equal(t, "batch transaction", res.Label())
}

func TestSendTransaction(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(sol)
	require.NoError(t, err)

	tx := transaction.NewTransaction(user.Pubkey(), ping(t, ctx, user.Pubkey(), "raw"))
	tx.SetBlockhash(ctx.LatestBlockhash())
	require.NoError(t, tx.Sign(user))

	res := ctx.SendTransaction(&tx).AssertSuccess(t)
	assert.Equal(t, tx.Signature(), res.Signature())

	// The same transaction cannot be processed twice.
	ctx.SendTransaction(&tx).AssertFailure(t)
}

func TestFailedTransaction(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(sol)
	require.NoError(t, err)

	res, err := ctx.SendInstruction(fail(t, ctx, user.Pubkey()), user)
	require.NoError(t, err)

	res.AssertFailure(t).
		AssertAnchorError(t, "Boom").
		AssertErrorCode(t, 6003).
		AssertError(t, "custom program error: 0x1773").
		AssertLog(t, "Instruction: Fail")

	assert.False(t, res.IsSuccess())
	var failed *harness.ExecutionFailedError
	require.ErrorAs(t, res.Err(), &failed)
	code, ok := svm.CustomErrorCode(res.Err())
	require.True(t, ok)
	assert.Equal(t, uint32(6003), code)
	assert.Contains(t, res.ErrorMessage(), "custom program error: 0x1773")

	// Only the fee is charged.
	assert.Equal(t, sol-res.Fee(), ctx.Ledger().GetBalance(user.Pubkey()))
}

func TestResultAssertions_Fail(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(sol)
	require.NoError(t, err)

	ok, err := ctx.SendInstruction(ping(t, ctx, user.Pubkey(), "ok"), user)
	require.NoError(t, err)
	bad, err := ctx.SendInstruction(fail(t, ctx, user.Pubkey()), user)
	require.NoError(t, err)

	cases := map[string]func(harness.TestingT){
		"success on failure":      func(ft harness.TestingT) { bad.AssertSuccess(ft) },
		"failure on success":      func(ft harness.TestingT) { ok.AssertFailure(ft) },
		"error on success":        func(ft harness.TestingT) { ok.AssertError(ft, "boom") },
		"error substring":         func(ft harness.TestingT) { bad.AssertError(ft, "insufficient funds") },
		"error code":              func(ft harness.TestingT) { bad.AssertErrorCode(ft, 6000) },
		"error code prefix":       func(ft harness.TestingT) { bad.AssertErrorCode(ft, 0x177) },
		"error code single digit": func(ft harness.TestingT) { bad.AssertErrorCode(ft, 0x1) },
		"error code on success":   func(ft harness.TestingT) { ok.AssertErrorCode(ft, 6003) },
		"anchor error name":       func(ft harness.TestingT) { bad.AssertAnchorError(ft, "OfferExpired") },
		"anchor error on success": func(ft harness.TestingT) { ok.AssertAnchorError(ft, "Boom") },
		"log":                     func(ft harness.TestingT) { ok.AssertLog(ft, "not-in-logs") },
		"compute units":           func(ft harness.TestingT) { ok.AssertComputeUnitsBelow(ft, 1) },
	}
	for name, assertion := range cases {
		t.Run(name, func(t *testing.T) {
			ft := &fakeT{}
			assertion(ft)
			assert.True(t, ft.failed)
			assert.Contains(t, ft.output(), "Logs:")
		})
	}
}

func TestPrintLogs(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(sol)
	require.NoError(t, err)

	res, err := ctx.SendInstruction(fail(t, ctx, user.Pubkey()), user)
	require.NoError(t, err)

	var buf bytes.Buffer
	res.WithLabel("fail").PrintLogs(&buf)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== Transaction Logs ===\nInstruction: fail\n"))
	assert.Contains(t, out, "AnchorError occurred. Error Code: Boom.")
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, "Compute Units: ")

	assert.NotEqual(t, "fail", res.Label())
	assert.Contains(t, res.String(), "success: false")
}

func TestTokenAccountSetup(t *testing.T) {
	ctx := newContext(t)

	user, err := ctx.CreateFundedAccount(10 * sol)
	require.NoError(t, err)
	mint, err := ctx.CreateTokenMint(user, 9)
	require.NoError(t, err)
	ata, err := ctx.CreateAssociatedTokenAccount(mint.Pubkey(), user)
	require.NoError(t, err)
	require.NoError(t, ctx.MintTo(mint.Pubkey(), ata, user, 1_000_000_000))

	want, err := associatedtoken.FindAssociatedTokenAddress(user.Pubkey(), mint.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, want, ata)

	ctx.AssertTokenBalance(t, ata, 1_000_000_000)
	ctx.AssertMintSupply(t, mint.Pubkey(), 1_000_000_000)
	ctx.AssertAccountOwner(t, ata, token.ProgramID)
	ctx.AssertAccountDataLen(t, mint.Pubkey(), token.MintSize)

	for _, amount := range []uint64{0, 1, 999_999_999, 1_000_000_001} {
		ft := &fakeT{}
		ctx.AssertTokenBalance(ft, ata, amount)
		assert.True(t, ft.failed, "amount %d", amount)
	}
}

func TestTokenAccountSetup_Errors(t *testing.T) {
	ctx := newContext(t)

	poor, err := ctx.CreateFundedAccount(1)
	require.NoError(t, err)
	_, err = ctx.CreateTokenMint(poor, 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create mint")
	assert.Contains(t, err.Error(), "Logs:")

	user, err := ctx.CreateFundedAccount(10 * sol)
	require.NoError(t, err)
	mint, err := ctx.CreateTokenMint(user, 6)
	require.NoError(t, err)
	other, err := ctx.CreateFundedAccount(sol)
	require.NoError(t, err)
	acct, err := ctx.CreateTokenAccount(mint.Pubkey(), other)
	require.NoError(t, err)

	// Only the mint authority may mint.
	err = ctx.MintTo(mint.Pubkey(), acct.Pubkey(), other, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to mint tokens")
	ctx.AssertTokenBalance(t, acct.Pubkey(), 0)

	funded, err := ctx.CreateTokenAccountWithBalance(mint.Pubkey(), other, user, 42)
	require.NoError(t, err)
	ctx.AssertTokenBalance(t, funded, 42)
	ctx.AssertMintSupply(t, mint.Pubkey(), 42)
}

func TestAccountAssertions(t *testing.T) {
	ctx := newContext(t)
	user, err := ctx.CreateFundedAccount(3 * sol)
	require.NoError(t, err)
	missing := types.MustNewKeypair().Pubkey()

	ctx.AssertAccountExists(t, user.Pubkey())
	ctx.AssertSOLBalance(t, user.Pubkey(), 3*sol)
	ctx.AssertSOLBalance(t, missing, 0)
	ctx.AssertAccountClosed(t, missing)
	ctx.AssertTokenBalance(t, missing, 0)
	ctx.AssertAccountOwner(t, user.Pubkey(), types.SystemProgramAddr)
	ctx.AssertAccountDataLen(t, user.Pubkey(), 0)

	cases := map[string]func(harness.TestingT){
		"exists":        func(ft harness.TestingT) { ctx.AssertAccountExists(ft, missing) },
		"closed":        func(ft harness.TestingT) { ctx.AssertAccountClosed(ft, user.Pubkey()) },
		"sol balance":   func(ft harness.TestingT) { ctx.AssertSOLBalance(ft, user.Pubkey(), sol) },
		"token missing": func(ft harness.TestingT) { ctx.AssertTokenBalance(ft, missing, 1) },
		"not a token":   func(ft harness.TestingT) { ctx.AssertTokenBalance(ft, user.Pubkey(), 0) },
		"mint missing":  func(ft harness.TestingT) { ctx.AssertMintSupply(ft, missing, 0) },
		"owner":         func(ft harness.TestingT) { ctx.AssertAccountOwner(ft, user.Pubkey(), token.ProgramID) },
		"data len":      func(ft harness.TestingT) { ctx.AssertAccountDataLen(ft, user.Pubkey(), 8) },
	}
	for name, assertion := range cases {
		t.Run(name, func(t *testing.T) {
			ft := &fakeT{}
			assertion(ft)
			assert.True(t, ft.failed)
		})
	}
}

func TestAccountAssertions_LedgerError(t *testing.T) {
	ctx := newContext(t)
	missing := types.MustNewKeypair().Pubkey()
	require.NoError(t, ctx.Close())

	// A closed ledger is an error, not an absent account.
	cases := map[string]func(harness.TestingT){
		"closed":        func(ft harness.TestingT) { ctx.AssertAccountClosed(ft, missing) },
		"token balance": func(ft harness.TestingT) { ctx.AssertTokenBalance(ft, missing, 0) },
		"sol balance":   func(ft harness.TestingT) { ctx.AssertSOLBalance(ft, missing, 0) },
	}
	for name, assertion := range cases {
		t.Run(name, func(t *testing.T) {
			ft := &fakeT{}
			assertion(ft)
			assert.True(t, ft.failed)
			assert.Contains(t, ft.output(), missing.String())
		})
	}
}

func TestPDA(t *testing.T) {
	ctx := newContext(t)
	seeds := [][]byte{[]byte("vault"), ctx.Payer().Pubkey().Bytes()}

	addr, bump, err := ctx.DerivePDA(seeds, ctx.ProgramID())
	require.NoError(t, err)

	assert.Equal(t, addr, ctx.GetPDA(seeds, ctx.ProgramID()))
	gotAddr, gotBump := ctx.GetPDAWithBump(seeds, ctx.ProgramID())
	assert.Equal(t, addr, gotAddr)
	assert.Equal(t, bump, gotBump)

	created, err := types.CreateProgramAddress(append(seeds, []byte{bump}), ctx.ProgramID())
	require.NoError(t, err)
	assert.Equal(t, addr, created)

	tooLong := [][]byte{bytes.Repeat([]byte{1}, 33)}
	assert.True(t, ctx.GetPDA(tooLong, ctx.ProgramID()).IsZero())
	_, _, err = ctx.DerivePDA(tooLong, ctx.ProgramID())
	assert.Error(t, err)
}

func TestClock(t *testing.T) {
	ctx := newContext(t)
	start := ctx.CurrentSlot()

	require.NoError(t, ctx.AdvanceSlot(3))
	assert.Equal(t, start+3, ctx.CurrentSlot())

	require.NoError(t, ctx.WarpToSlot(1_000))
	assert.Equal(t, uint64(1_000), ctx.CurrentSlot())

	require.NoError(t, ctx.SetUnixTimestamp(1_700_000_000))
	assert.Equal(t, int64(1_700_000_000), ctx.UnixTimestamp())
	assert.Equal(t, uint64(1_000), ctx.CurrentSlot())

	// Transactions still execute after the clock moved.
	res, err := ctx.ExecuteInstruction(ping(t, ctx, ctx.Payer().Pubkey(), "later"))
	require.NoError(t, err)
	res.AssertSuccess(t)
	assert.Equal(t, uint64(1_000), res.Slot())
}

func TestIDLBuilders(t *testing.T) {
	ctx := newContext(t)
	idl, err := anchor.ParseIDL([]byte(fmt.Sprintf(`{
		"address": %q,
		"metadata": {"name": "echo", "version": "0.1.0", "spec": "0.1.0"},
		"instructions": [
			{"name": "ping", "discriminator": %s, "accounts": [{"name": "user", "signer": true}], "args": [{"name": "msg", "type": "string"}]}
		]
	}`, echoProgramID, intList(pingDisc))))
	require.NoError(t, err)
	ctx.SetIDL(idl)

	ix, err := ctx.Instruction("ping").Signer("user", ctx.Payer().Pubkey()).Args("idl").Build()
	require.NoError(t, err)
	res, err := ctx.ExecuteInstruction(ix)
	require.NoError(t, err)
	res.AssertSuccess(t).AssertLog(t, "pong")

	_, err = ctx.Instruction("pong").Args().Build()
	var buildErr *anchor.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Contains(t, buildErr.Error(), "instruction pong not found in IDL echo")
}

func intList(d anchor.Discriminator) string {
	parts := make([]string, len(d))
	for i, b := range d {
		parts[i] = fmt.Sprint(b)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
