package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoverUncoverDoesNotCopy(t *testing.T) {
	b := NewFromBytes([]byte{1, 2, 3, 4, 5})
	require.Equal(t, 5, b.Size())

	require.NoError(t, b.Cover(2))
	require.Equal(t, []byte{3, 4, 5}, b.Bytes())

	require.NoError(t, b.Uncover(2))
	require.Equal(t, []byte{1, 2, 3, 4, 5}, b.Bytes())
}

func TestCoverOutOfBounds(t *testing.T) {
	b := NewFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, b.Cover(4), ErrOutOfBounds)
	require.ErrorIs(t, b.Uncover(1), ErrOutOfBounds)
}

func TestTailCoverUncover(t *testing.T) {
	b := NewFromBytes([]byte{1, 2, 3, 4})
	require.NoError(t, b.CoverTail(1))
	require.Equal(t, []byte{1, 2, 3}, b.Bytes())
	require.NoError(t, b.UncoverTail(1))
	require.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())
	require.ErrorIs(t, b.UncoverTail(1), ErrOutOfBounds)
}

func TestMoveZeroesSource(t *testing.T) {
	src := NewFromBytes([]byte{9, 9})
	dst := Move(src)
	require.Equal(t, 2, dst.Size())
	require.Equal(t, 0, src.Cap())
	require.Equal(t, 0, src.Size())
}

func TestReadWriteRoundTrip(t *testing.T) {
	b := New(16)
	require.NoError(t, b.UncoverTail(16))

	require.NoError(t, b.WriteUint32BE(0, 0xdeadbeef))
	v, err := b.ReadUint32BE(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)

	require.NoError(t, b.WriteUint64LE(4, 0x0102030405060708))
	v64, err := b.ReadUint64LE(4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)

	_, err = b.ReadUint32BE(13)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestNativeAccessorsRoundTripEveryWidth(t *testing.T) {
	b := New(32)
	require.NoError(t, b.UncoverTail(32))

	require.NoError(t, b.WriteUint8Native(0, 0x7f))
	v8, err := b.ReadUint8Native(0)
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), v8)

	require.NoError(t, b.WriteUint16Native(2, 0x1234))
	v16, err := b.ReadUint16Native(2)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v16)

	require.NoError(t, b.WriteUint32Native(4, 0xdeadbeef))
	v32, err := b.ReadUint32Native(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32)

	require.NoError(t, b.WriteUint64Native(8, 0x0102030405060708))
	v64, err := b.ReadUint64Native(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)

	_, err = b.ReadUint64Native(30)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWeakBufferSharesStorage(t *testing.T) {
	b := NewFromBytes([]byte{1, 2, 3, 4})
	w := b.Weak()
	w2, err := w.Cover(1)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3, 4}, w2.Bytes())
	// the owning buffer is untouched by a weak view's cover.
	require.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())
}
