package anchor_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

type offer struct {
	Maker    types.Pubkey
	Amount   uint64
	Memo     string
	Accepted bool
	Fees     []uint16
	Expiry   *int64
}

func TestEncodeInstruction_U64(t *testing.T) {
	data, err := anchor.EncodeInstruction("deposit", uint64(42))
	require.NoError(t, err)
	require.Len(t, data, 16)

	disc := anchor.InstructionDiscriminator("deposit")
	assert.Equal(t, disc.Bytes(), data[:8])
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[8:]))
}

func TestEncodeArgs_Layout(t *testing.T) {
	key := types.MustNewKeypair().Pubkey()

	data, err := anchor.EncodeArgs(uint8(7), int32(-2), "abc", true, key)
	require.NoError(t, err)

	want := []byte{7}
	want = binary.LittleEndian.AppendUint32(want, uint32(0xfffffffe))
	want = append(want, 3, 0, 0, 0, 'a', 'b', 'c')
	want = append(want, 1)
	want = append(want, key[:]...)
	assert.Equal(t, want, data)
}

func TestEncodeArgs_Empty(t *testing.T) {
	data, err := anchor.EncodeArgs()
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = anchor.EncodeInstruction("refund")
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestEncode_Struct(t *testing.T) {
	expiry := int64(1_700_000_000)
	in := offer{
		Maker:    types.MustNewKeypair().Pubkey(),
		Amount:   1_000_000,
		Memo:     "swap",
		Accepted: true,
		Fees:     []uint16{5, 30},
		Expiry:   &expiry,
	}

	data, err := anchor.Encode(in)
	require.NoError(t, err)
	// 32 + 8 + (4+4) + 1 + (4+2*2) + (1+8)
	assert.Len(t, data, 66)

	var out offer
	require.NoError(t, anchor.Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestEncode_Pointer(t *testing.T) {
	in := offer{Maker: types.MustNewKeypair().Pubkey(), Amount: 42, Memo: "hi"}

	byValue, err := anchor.Encode(in)
	require.NoError(t, err)
	byPointer, err := anchor.Encode(&in)
	require.NoError(t, err)
	assert.Equal(t, byValue, byPointer)

	var out offer
	require.NoError(t, anchor.Decode(byPointer, &out))
	assert.Equal(t, in, out)

	amount := uint64(42)
	args, err := anchor.EncodeArgs(&amount, uint8(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{42, 0, 0, 0, 0, 0, 0, 0, 1}, args)

	_, err = anchor.Encode((*offer)(nil))
	assert.ErrorIs(t, err, anchor.ErrNilValue)
}

func TestEncode_Unsupported(t *testing.T) {
	type withInt struct {
		N int
	}
	type withUnexported struct {
		n uint64
	}

	for name, v := range map[string]interface{}{
		"int":             42,
		"uint":            uint(42),
		"chan":            make(chan int),
		"func":            func() {},
		"complex":         complex(1, 2),
		"nested int":      withInt{N: 1},
		"unexported":      withUnexported{n: 1},
		"slice of int":    []int{1},
		"map of chans":    map[string]chan int{},
		"interface slice": []interface{}{uint8(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := anchor.Encode(v)
			require.ErrorIs(t, err, anchor.ErrUnsupportedType)

			_, err = anchor.EncodeArgs(uint64(1), v)
			require.ErrorIs(t, err, anchor.ErrUnsupportedType)
		})
	}

	_, err := anchor.Encode(nil)
	assert.ErrorIs(t, err, anchor.ErrNilValue)
}

func TestDecode_Errors(t *testing.T) {
	var n uint64
	assert.ErrorIs(t, anchor.Decode([]byte{1}, n), anchor.ErrNotPointer)
	assert.ErrorIs(t, anchor.Decode([]byte{1}, nil), anchor.ErrNotPointer)
	assert.ErrorIs(t, anchor.Decode([]byte{1}, (*uint64)(nil)), anchor.ErrNotPointer)

	var i int
	assert.ErrorIs(t, anchor.Decode(make([]byte, 8), &i), anchor.ErrUnsupportedType)

	assert.Error(t, anchor.Decode(nil, &n))
}
