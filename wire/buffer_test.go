package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 1<<32 - 1} {
		b := NewBufferWithCapacity(4)
		b.AppendUint32(v)
		got, err := NewBuffer(b.Bytes()).ConsumeUint32()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	b := NewBufferWithCapacity(8)
	b.AppendUint64(1<<63 + 7)
	got, err := NewBuffer(b.Bytes()).ConsumeUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63+7), got)
}

func TestStringRoundTrip(t *testing.T) {
	for _, v := range []string{"", "hello", "with,comma", "unicode: é"} {
		b := NewBufferWithCapacity(16)
		b.AppendString(v)
		got, err := NewBuffer(b.Bytes()).ConsumeString()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestNameListRoundTrip(t *testing.T) {
	cases := [][]string{
		{},
		{"diffie-hellman-group14-sha1"},
		{"aes128-ctr", "aes256-ctr", "3des-cbc"},
	}
	for _, v := range cases {
		b := NewBufferWithCapacity(32)
		b.AppendNameList(v)
		got, err := NewBuffer(b.Bytes()).ConsumeNameList()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		b := NewBufferWithCapacity(1)
		b.AppendBool(v)
		got, err := NewBuffer(b.Bytes()).ConsumeBool()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestMPIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 127, 128, 255, 256, -1, -1234567, 1 << 40}
	for _, v := range cases {
		n := big.NewInt(v)
		b := NewBufferWithCapacity(16)
		b.AppendMPInt(n)
		got, err := NewBuffer(b.Bytes()).ConsumeMPInt()
		require.NoError(t, err)
		assert.Equal(t, 0, n.Cmp(got), "mpint %d round trip, got %s", v, got)
	}
}

func TestMPIntZeroEncodesEmpty(t *testing.T) {
	b := NewBufferWithCapacity(4)
	b.AppendMPInt(big.NewInt(0))
	assert.Equal(t, []byte{0, 0, 0, 0}, b.Bytes())
}

func TestMPIntHighBitGetsLeadingZero(t *testing.T) {
	// 0x80 alone would look negative in two's complement; a leading
	// zero byte must be inserted.
	n := big.NewInt(0x80)
	b := NewBufferWithCapacity(8)
	b.AppendMPInt(n)
	assert.Equal(t, []byte{0, 0, 0, 2, 0, 0x80}, b.Bytes())
}

func TestConsumeShortBufferFails(t *testing.T) {
	b := NewBuffer([]byte{0, 0})
	_, err := b.ConsumeUint32()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestFramePaddingMinimumAndAlignment(t *testing.T) {
	for _, blockSize := range []int{8, 16} {
		for n := 0; n < 40; n++ {
			payload := make([]byte, n)
			frame, err := EncodeFrame(payload, blockSize, false)
			require.NoError(t, err)
			length := int(frame[0])<<24 | int(frame[1])<<16 | int(frame[2])<<8 | int(frame[3])
			padLen := int(frame[4])
			assert.GreaterOrEqual(t, padLen, MinPadding)
			assert.Equal(t, 0, (1+n+padLen)%blockSize)
			assert.Equal(t, 1+n+padLen, length)

			body := frame[4:]
			got, err := DecodeFrame(body)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		}
	}
}

func TestCheckLengthRejectsOversize(t *testing.T) {
	assert.NoError(t, CheckLength(1024))
	assert.ErrorIs(t, CheckLength(MaxPacketLength+1), ErrPacketTooLarge)
	assert.Error(t, CheckLength(0))
}
