package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marlinprotocol/relay/internal/attest"
	"github.com/marlinprotocol/relay/internal/config"
	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
	"github.com/marlinprotocol/relay/internal/witness"
)

type fakeSender struct{}

func (fakeSender) SendDatagram(sockaddr.SocketAddress, []byte) {}

type recordingApp struct {
	recv []MessageWithHeaders
}

func (a *recordingApp) DidRecv(channel ChannelID, messageID uint64, _ [20]byte, payload []byte) {
	a.recv = append(a.recv, MessageWithHeaders{Channel: channel, MessageID: messageID, Payload: payload})
}

func fakeConn(addr string) *stream.Connection {
	loop := fabric.NewLoop(4)
	src, _ := sockaddr.FromString("127.0.0.1:1")
	dst, _ := sockaddr.FromString(addr)
	var secret [32]byte
	return stream.AcceptListener(loop, fakeSender{}, nil, stream.DefaultConfig(), src, dst, secret)
}

func newTestNode(app Application) *Node {
	cfg := config.DefaultPubsub()
	return New(nil, []byte("my-32-byte-public-key-padding!!"), attest.EmptyAttester{}, witness.LpfBloomWitnesser{}, app, cfg, nil)
}

func TestHandleMessageDeliversOnce(t *testing.T) {
	app := &recordingApp{}
	n := newTestNode(app)
	from := fakeConn("127.0.0.1:9001")

	m := MessageWithHeaders{MessageID: 1, Channel: 5, Payload: []byte("hello")}
	n.handleMessage(from, m)
	require.Len(t, app.recv, 1)

	// duplicate (message_id, channel) is dropped before delivery.
	n.handleMessage(from, m)
	require.Len(t, app.recv, 1)
}

func TestHandleMessageDropsWitnessLoop(t *testing.T) {
	app := &recordingApp{}
	n := newTestNode(app)
	from := fakeConn("127.0.0.1:9002")

	var w witness.LpfBloomWitnesser
	filter, err := w.Witness(nil, n.myPublicKey)
	require.NoError(t, err)

	m := MessageWithHeaders{MessageID: 2, Channel: 5, Witness: filter, Payload: []byte("looped")}
	n.handleMessage(from, m)
	require.Empty(t, app.recv, "a message already witnessed by us should be dropped as a loop")
}

func TestHandleMessageDropsOnVerifyFailure(t *testing.T) {
	app := &recordingApp{}
	cfg := config.DefaultPubsub()
	key, _ := newFailingAttesterKey()
	n := New(nil, []byte("my-32-byte-public-key-padding!!"), key, witness.LpfBloomWitnesser{}, app, cfg, nil)
	from := fakeConn("127.0.0.1:9003")

	m := MessageWithHeaders{MessageID: 3, Channel: 5, Payload: []byte("bad sig")}
	n.handleMessage(from, m)
	require.Empty(t, app.recv)
}

type alwaysFailAttester struct{ attest.EmptyAttester }

func (alwaysFailAttester) Verify(_, _ []byte) (bool, [20]byte, error) {
	return false, [20]byte{}, nil
}

func newFailingAttesterKey() (alwaysFailAttester, error) {
	return alwaysFailAttester{}, nil
}
