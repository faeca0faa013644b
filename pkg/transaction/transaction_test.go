package transaction

import (
	"bytes"
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Reference transaction produced by the Solana SDK for a fixed keypair,
// program and recipient, with a zero blockhash.
const sdkGenerated = "ATMfBMZ8phHEheLph8K9TJhRKhnE4qNZvWiXdUdJRmlTCRsQjWmW2CkQJeRHBCcsqFm2gynjL40M9mTe0Dxp4QIBAAEDfEya6wnC7f3Cv53qnOEywwIJ928rIdqAlfXYI1adXroBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="

func TestTransaction_CrossImpl(t *testing.T) {
	keypair, err := types.KeypairFromSeed([]byte{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32, 255, 101, 36, 24, 124, 23,
		167, 21, 132, 204, 155, 5, 185, 58, 121, 75})
	require.NoError(t, err)
	programID := types.Pubkey{2, 2, 2, 4, 5, 6, 7, 8, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6, 5, 4, 2, 2, 2}
	to := types.Pubkey{1, 1, 1, 4, 5, 6, 7, 8, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 8, 7, 6, 5, 4, 1, 1, 1}

	tx := NewTransaction(
		keypair.Pubkey(),
		NewInstruction(
			programID,
			[]byte{1, 2, 3},
			NewAccountMeta(keypair.Pubkey(), true),
			NewAccountMeta(to, false),
		),
	)
	require.NoError(t, tx.Sign(keypair))
	assert.Equal(t, sdkGenerated, base64.StdEncoding.EncodeToString(tx.Marshal()))

	var rtt Transaction
	require.NoError(t, rtt.Unmarshal(tx.Marshal()))
	assert.Equal(t, tx.Signatures, rtt.Signatures)
	assert.Equal(t, tx.Message.Accounts, rtt.Message.Accounts)
	assert.True(t, rtt.Signature().Verify(keypair.Pubkey(), rtt.Message.Marshal()))
}

func TestMessage_AccountOrdering(t *testing.T) {
	payer := types.MustNewKeypair().Pubkey()
	signer := types.MustNewKeypair().Pubkey()
	readonlySigner := types.MustNewKeypair().Pubkey()
	writable := types.MustNewKeypair().Pubkey()
	readonly := types.MustNewKeypair().Pubkey()
	program := types.MustNewKeypair().Pubkey()

	m := NewMessage(payer,
		NewInstruction(program, nil,
			NewReadonlyAccountMeta(readonly, false),
			NewAccountMeta(writable, false),
			NewReadonlyAccountMeta(readonlySigner, true),
			NewAccountMeta(signer, true),
		),
	)

	require.Len(t, m.Accounts, 6)
	assert.Equal(t, payer, m.Accounts[0])
	assert.Equal(t, signer, m.Accounts[1])
	assert.Equal(t, readonlySigner, m.Accounts[2])
	assert.Equal(t, writable, m.Accounts[3])
	assert.Equal(t, readonly, m.Accounts[4])
	assert.Equal(t, program, m.Accounts[5])
	assert.Equal(t, Header{NumSignatures: 3, NumReadonlySigned: 1, NumReadOnly: 2}, m.Header)

	expected := []struct{ signer, writable bool }{
		{true, true}, {true, true}, {true, false}, {false, true}, {false, false}, {false, false},
	}
	for i, e := range expected {
		assert.Equal(t, e.signer, m.IsSigner(i), "signer %d", i)
		assert.Equal(t, e.writable, m.IsWritable(i), "writable %d", i)
	}

	// Instruction account order is kept even though the message is sorted.
	assert.Equal(t, []byte{4, 3, 2, 1}, m.Instructions[0].Accounts)
	assert.EqualValues(t, 5, m.Instructions[0].ProgramIndex)
	require.NoError(t, m.Sanitize())
}

func TestMessage_PromotesDuplicateFlags(t *testing.T) {
	payer := types.MustNewKeypair().Pubkey()
	shared := types.MustNewKeypair().Pubkey()
	program := types.MustNewKeypair().Pubkey()

	m := NewMessage(payer,
		NewInstruction(program, nil, NewReadonlyAccountMeta(shared, false)),
		NewInstruction(program, nil, NewAccountMeta(shared, false), NewAccountMeta(payer, false)),
	)

	require.Len(t, m.Accounts, 3)
	assert.True(t, m.IsWritable(1))
	assert.Equal(t, []byte{1}, m.Instructions[0].Accounts)
	assert.Equal(t, []byte{1, 0}, m.Instructions[1].Accounts)

	ix, err := m.Decompile(1)
	require.NoError(t, err)
	assert.Equal(t, program, ix.Program)
	assert.True(t, ix.Accounts[1].IsSigner)
	assert.True(t, ix.Accounts[1].IsWritable)

	_, err = m.Decompile(2)
	assert.Error(t, err)
}

func TestTransaction_SignErrors(t *testing.T) {
	payer := types.MustNewKeypair()
	other := types.MustNewKeypair()
	stranger := types.MustNewKeypair()
	program := types.MustNewKeypair().Pubkey()

	tx := NewTransaction(payer.Pubkey(), NewInstruction(program, []byte{1}, NewAccountMeta(other.Pubkey(), false)))

	assert.Error(t, tx.Sign(stranger))
	assert.Error(t, tx.Sign(other))
	assert.False(t, tx.IsSigned())

	require.NoError(t, tx.Sign(payer))
	assert.True(t, tx.IsSigned())
	assert.Equal(t, tx.Signatures[0], tx.Signature())

	// Changing the blockhash invalidates the signature.
	tx.SetBlockhash(types.ComputeHash([]byte("next")))
	assert.False(t, tx.Signature().Verify(payer.Pubkey(), tx.Message.Marshal()))
}

func TestMessage_Sanitize(t *testing.T) {
	payer := types.MustNewKeypair().Pubkey()
	program := types.MustNewKeypair().Pubkey()

	m := NewMessage(payer, NewInstruction(program, nil))
	require.NoError(t, m.Sanitize())

	bad := m
	bad.Instructions = []CompiledInstruction{{ProgramIndex: 9}}
	assert.Error(t, bad.Sanitize())

	bad = m
	bad.Instructions = []CompiledInstruction{{ProgramIndex: 1, Accounts: []byte{7}}}
	assert.Error(t, bad.Sanitize())

	bad = m
	bad.Header.NumSignatures = 0
	assert.Error(t, bad.Sanitize())

	bad = m
	bad.Accounts = []types.Pubkey{payer, payer}
	assert.Error(t, bad.Sanitize())
}

func TestTransaction_UnmarshalTruncated(t *testing.T) {
	kp := types.MustNewKeypair()
	tx := NewTransaction(kp.Pubkey(), NewInstruction(types.SystemProgramAddr, []byte{2, 0, 0, 0}, NewAccountMeta(kp.Pubkey(), true)))
	require.NoError(t, tx.Sign(kp))
	b := tx.Marshal()

	for _, n := range []int{0, 1, 40, 70, len(b) - 1} {
		var rtt Transaction
		assert.Error(t, rtt.Unmarshal(b[:n]), "length %d", n)
	}
}

func TestShortVec(t *testing.T) {
	for _, tc := range []struct {
		val     int
		encoded []byte
	}{
		{0x0, []byte{0x0}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0xff, []byte{0xff, 0x01}},
		{0x100, []byte{0x80, 0x02}},
		{0x7fff, []byte{0xff, 0xff, 0x01}},
		{0xffff, []byte{0xff, 0xff, 0x03}},
	} {
		buf := &bytes.Buffer{}
		n, err := encodeLen(buf, tc.val)
		require.NoError(t, err)
		assert.Equal(t, len(tc.encoded), n)
		assert.Equal(t, tc.encoded, buf.Bytes())

		actual, err := decodeLen(bytes.NewReader(tc.encoded))
		require.NoError(t, err)
		assert.Equal(t, tc.val, actual)
	}

	_, err := encodeLen(&bytes.Buffer{}, math.MaxUint16+1)
	assert.Error(t, err)

	_, err = decodeLen(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x01}))
	assert.Error(t, err)
}
