package stream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
)

// loopRelay delivers a sent datagram straight to the peer connection's
// HandleInbound by posting onto the shared loop, standing in for the
// UDP socket + transport.Manager dispatch that would normally carry it.
type loopRelay struct {
	loop *fabric.Loop
	peer **stream.Connection
}

func (r loopRelay) SendDatagram(_ sockaddr.SocketAddress, b []byte) {
	body, err := fabric.StripVersion(b)
	if err != nil {
		return
	}
	r.loop.Post(func() {
		(*r.peer).HandleInbound(body)
	})
}

type recordingDelegate struct {
	connected chan struct{}
	recv      chan []byte
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{connected: make(chan struct{}, 1), recv: make(chan []byte, 8)}
}

func (d *recordingDelegate) DidConnect(*stream.Connection) {
	select {
	case d.connected <- struct{}{}:
	default:
	}
}
func (d *recordingDelegate) DidClose(*stream.Connection, error)                {}
func (d *recordingDelegate) DidRecvSkipStream(*stream.Connection, uint16)      {}
func (d *recordingDelegate) DidRecvStreamData(_ *stream.Connection, _ uint16, data []byte) {
	cp := append([]byte(nil), data...)
	d.recv <- cp
}

func dialPair(t *testing.T) (a, b *stream.Connection, loop *fabric.Loop, delegateA, delegateB *recordingDelegate) {
	t.Helper()
	loop = fabric.NewLoop(64)
	go loop.Run()
	t.Cleanup(loop.Stop)

	srcA, _ := sockaddr.FromString("127.0.0.1:10001")
	srcB, _ := sockaddr.FromString("127.0.0.1:10002")
	var secretA, secretB [32]byte
	secretA[0], secretB[0] = 1, 2

	delegateA = newRecordingDelegate()
	delegateB = newRecordingDelegate()

	cfg := stream.DefaultConfig()

	var connA *stream.Connection
	connB := stream.AcceptListener(loop, loopRelay{loop: loop, peer: &connA}, delegateB, cfg, srcB, srcA, secretB)
	connA = stream.Dial(loop, loopRelay{loop: loop, peer: &connB}, delegateA, cfg, srcA, srcB, secretA)

	return connA, connB, loop, delegateA, delegateB
}

func TestHandshakeEstablishesBothSides(t *testing.T) {
	connA, connB, _, delegateA, delegateB := dialPair(t)

	select {
	case <-delegateA.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never became established")
	}
	select {
	case <-delegateB.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never became established")
	}

	require.True(t, connA.Established())
	require.True(t, connB.Established())

	pubA, ok := connB.RemoteStaticPublic()
	require.True(t, ok)
	require.NotZero(t, pubA)
}

func TestSendDeliversStreamDataInOrder(t *testing.T) {
	connA, _, _, _, delegateB := dialPair(t)

	require.NoError(t, connA.Send(3, []byte("hello, ")))
	require.NoError(t, connA.Send(3, []byte("world")))

	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < len("hello, world") {
		select {
		case chunk := <-delegateB.recv:
			got = append(got, chunk...)
		case <-deadline:
			t.Fatalf("timed out waiting for data, got %q so far", got)
		}
	}
	require.Equal(t, "hello, world", string(got))
}

func TestCloseIsIdempotent(t *testing.T) {
	connA, _, _, _, _ := dialPair(t)
	require.NoError(t, connA.Close())
	require.NoError(t, connA.Close())
}
