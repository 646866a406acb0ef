package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Type:         TypeData,
		SrcConnID:    0x11223344,
		DstConnID:    0xaabbccdd,
		StreamID:     7,
		PacketNumber: 42,
		StreamOffset: 1000,
	}
	pkt := Encode(h, []byte("payload"))

	got, rest, err := Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, []byte("payload"), rest)
}

func TestDecodeRejectsShortAndBadVersion(t *testing.T) {
	_, _, err := Decode(make([]byte, HeaderLen-1))
	require.ErrorIs(t, err, ErrShortHeader)

	pkt := Encode(Header{Type: TypeRst}, nil)
	pkt[0] = Version + 1
	_, _, err = Decode(pkt)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestAckFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := AckFrame{LargestAcked: 10, AckDelayMicros: 2500, Ranges: []uint64{3, 2, 5}}
	b, err := EncodeAck(f)
	require.NoError(t, err)

	got, err := DecodeAck(b)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestEncodeAckRejectsEmptyRanges(t *testing.T) {
	_, err := EncodeAck(AckFrame{LargestAcked: 1})
	require.ErrorIs(t, err, ErrEmptyRanges)
}
