package fabric

import (
	"net"

	"github.com/marlinprotocol/relay/internal/sockaddr"
)

// Datagram is the (src, dst, bytes) triple the datagram fiber (component
// A) surfaces to the layer above, and accepts from the layer above on
// send.
type Datagram struct {
	Src, Dst sockaddr.SocketAddress
	Bytes    []byte
}

// DatagramDelegate receives datagrams read off the socket. Owned by the
// layer above the datagram fiber (spec §9: the delegate is the sole
// owner, the fiber holds only a non-owning reference back).
type DatagramDelegate interface {
	DidRecvDatagram(d Datagram)
}

// DatagramFiber binds a UDP socket and relays (src,dst,bytes) in both
// directions. It has no inner edge of its own: it is the bottom of the
// stack.
type DatagramFiber struct {
	conn     *net.UDPConn
	delegate DatagramDelegate
	self     sockaddr.SocketAddress
}

// Bind opens a UDP socket on addr and returns a fiber ready to Run.
func Bind(addr sockaddr.SocketAddress, delegate DatagramDelegate) (*DatagramFiber, error) {
	conn, err := net.ListenUDP("udp4", addr.UDPAddr())
	if err != nil {
		return nil, err
	}
	return &DatagramFiber{conn: conn, delegate: delegate, self: addr}, nil
}

// Run reads datagrams until the socket is closed, delivering each to the
// delegate. Intended to run on its own goroutine; it is the only piece
// of the core that performs a blocking syscall, per spec §5's "the
// underlying event loop and UDP socket syscalls" boundary.
func (f *DatagramFiber) Run() error {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		src, cerr := sockaddr.FromUDPAddr(raddr)
		if cerr != nil {
			continue // malformed source address; drop per spec §7 protocol-error handling
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		f.delegate.DidRecvDatagram(Datagram{Src: src, Dst: f.self, Bytes: cp})
	}
}

// Send transmits bytes to dst. Per spec §5's shared-resource policy, the
// send path never blocks: a failed or partial write is dropped, relying
// on the reliable layer above to retransmit.
func (f *DatagramFiber) Send(dst sockaddr.SocketAddress, b []byte) {
	_, _ = f.conn.WriteToUDP(b, dst.UDPAddr())
}

// Close shuts down the socket. Idempotent.
func (f *DatagramFiber) Close() error {
	return f.conn.Close()
}
