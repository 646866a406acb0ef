package fabric

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marlinprotocol/relay/internal/sockaddr"
)

type capturingDelegate struct {
	got chan Datagram
}

func (d *capturingDelegate) DidRecvDatagram(dg Datagram) {
	d.got <- dg
}

func TestDatagramFiberSendRecvRoundTrip(t *testing.T) {
	loopback, err := sockaddr.FromString("127.0.0.1:0")
	require.NoError(t, err)

	delegate := &capturingDelegate{got: make(chan Datagram, 1)}
	recv, err := Bind(loopback, delegate)
	require.NoError(t, err)
	defer recv.Close()

	recvAddr, err := sockaddr.FromUDPAddr(recv.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	sendDelegate := &capturingDelegate{got: make(chan Datagram, 1)}
	sender, err := Bind(loopback, sendDelegate)
	require.NoError(t, err)
	defer sender.Close()

	go recv.Run()

	sender.Send(recvAddr, []byte("hello"))

	select {
	case dg := <-delegate.got:
		require.Equal(t, []byte("hello"), dg.Bytes)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
}
