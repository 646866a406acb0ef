package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	sub := EncodeSubscribe(42)
	ft, err := DecodeFrameType(sub)
	require.NoError(t, err)
	require.Equal(t, FrameSubscribe, ft)
	ch, err := DecodeSubscribe(sub)
	require.NoError(t, err)
	require.Equal(t, ChannelID(42), ch)

	unsub := EncodeUnsubscribe(42)
	ft, err = DecodeFrameType(unsub)
	require.NoError(t, err)
	require.Equal(t, FrameUnsubscribe, ft)
}

func TestResponseRoundTrip(t *testing.T) {
	b := EncodeResponse(true, "ok")
	r, err := DecodeResponse(b)
	require.NoError(t, err)
	require.True(t, r.OK)
	require.Equal(t, "ok", r.Text)
}

func TestMessageWithHeadersRoundTrip(t *testing.T) {
	m := MessageWithHeaders{
		MessageID:   0x0102030405060708,
		Channel:     7,
		Attestation: []byte("sixty-seven-bytes-of-signature-goes-here-but-shortened-for-test"),
		Witness:     []byte{0, 34, 1, 2, 3},
		Payload:     []byte("block bytes"),
	}
	enc := EncodeMessageWithHeaders(m)
	ft, err := DecodeFrameType(enc)
	require.NoError(t, err)
	require.Equal(t, FrameMessageWithHeaders, ft)

	got, err := DecodeMessageWithHeaders(enc)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestDecodeMessageWithHeadersRejectsShort(t *testing.T) {
	_, err := DecodeMessageWithHeaders([]byte{byte(FrameMessageWithHeaders)})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestContentMessageIDDeterministic(t *testing.T) {
	id1 := ContentMessageID([]byte("same payload"))
	id2 := ContentMessageID([]byte("same payload"))
	id3 := ContentMessageID([]byte("different payload"))
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}
