// Package stream implements the reliable, multi-stream, ordered byte
// transport over UDP datagrams described in spec §4.1: a 3-way
// handshake, per-packet AEAD, selective acknowledgement, NewReno
// congestion control, RTT estimation, timer-based loss recovery, and
// per-stream skip/flush.
package stream

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/wire"
)

// State is the connection state machine of spec §4.1.2.
type State int

const (
	StateListen State = iota
	StateDialSent
	StateDialRecvd
	StateEstablished
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "listen"
	case StateDialSent:
		return "dial_sent"
	case StateDialRecvd:
		return "dial_recvd"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Delegate receives events from a Connection: reassembled stream data,
// stream skips, connection lifecycle. Owned by the layer above (spec
// §9's cyclic-reference resolution: the delegate owns the transport, the
// transport holds only a non-owning reference back).
type Delegate interface {
	DidRecvStreamData(conn *Connection, streamID uint16, data []byte)
	DidRecvSkipStream(conn *Connection, streamID uint16)
	DidConnect(conn *Connection)
	DidClose(conn *Connection, reason error)
}

// Config bundles the tunable constants of spec §4.1.3/§4.1.6.
type Config struct {
	InitialCwndBytes int
	MSSBytes         int
	MinRTO           time.Duration
	MaxRTO           time.Duration
	AckTimerDelay    time.Duration
	KeepaliveIdle    time.Duration
	HandshakeInitialBackoff time.Duration
	HandshakeMaxBackoff     time.Duration
	OutOfOrderHoldCap       int
}

// DefaultConfig returns the constants spec.md names explicitly.
func DefaultConfig() Config {
	return Config{
		InitialCwndBytes:        15000,
		MSSBytes:                1200,
		MinRTO:                  time.Second,
		MaxRTO:                  60 * time.Second,
		AckTimerDelay:           25 * time.Millisecond,
		KeepaliveIdle:           10 * time.Second,
		HandshakeInitialBackoff: time.Second,
		HandshakeMaxBackoff:     64 * time.Second,
		OutOfOrderHoldCap:       1024,
	}
}

// sentPacketInfo is spec's SentPacketInfo: one entry per on-the-wire
// data packet, used for loss detection and ACK processing.
type sentPacketInfo struct {
	sentTime     time.Time
	streamID     uint16
	streamOffset uint64
	length       int
	ackEliciting bool
}

// Sender is the capability a Connection uses to put bytes on the wire;
// implemented by the transport manager / datagram fiber pairing.
type Sender interface {
	SendDatagram(dst sockaddr.SocketAddress, b []byte)
}

// Connection is spec's StreamConnection.
type Connection struct {
	mu sync.Mutex // guards fields touched by both loop callbacks and metric reads

	loop   *fabric.Loop
	sender Sender
	delegate Delegate
	cfg    Config

	srcAddr, dstAddr     sockaddr.SocketAddress
	srcConnID, dstConnID uint32
	state                State

	staticSecret [32]byte
	staticPublic [32]byte
	remoteStaticPublic [32]byte
	haveRemoteStatic   bool

	keys sessionKeys

	sendStreams map[uint16]*SendStream
	recvStreams map[uint16]*RecvStream

	nextPacketNumber uint64
	sentPackets      map[uint64]*sentPacketInfo

	peerAckRanges     *wire.AckRanges // packets of ours the peer has acked, as we've heard
	largestAckedByPeer uint64
	haveLargestAcked  bool
	largestAckedTime  time.Time

	recvAckRanges *wire.AckRanges // packets we've received from the peer, to ack back
	ackElicitedSinceLastAck bool

	cong *congestionState
	rtt  *rttEstimator

	ackTimer          *fabric.Timer
	retransmitTimer   *fabric.Timer
	keepaliveTimer    *fabric.Timer
	stateTimer        *fabric.Timer
	currentRTO        time.Duration
	handshakeBackoff  time.Duration
	lastDialConfSent  []byte

	closed bool
}

// RemoteAddr returns the peer's socket address.
func (c *Connection) RemoteAddr() sockaddr.SocketAddress { return c.dstAddr }

// RemoteStaticPublic returns the peer's static X25519 public key, valid
// once the handshake has exchanged it (spec §3's "remote_static_pk").
func (c *Connection) RemoteStaticPublic() ([32]byte, bool) {
	return c.remoteStaticPublic, c.haveRemoteStatic
}

// Established reports whether the handshake has completed.
func (c *Connection) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateEstablished
}

func newConnection(loop *fabric.Loop, sender Sender, delegate Delegate, cfg Config, src, dst sockaddr.SocketAddress, staticSecret [32]byte) *Connection {
	c := &Connection{
		loop:          loop,
		sender:        sender,
		delegate:      delegate,
		cfg:           cfg,
		srcAddr:       src,
		dstAddr:       dst,
		staticSecret:  staticSecret,
		staticPublic:  PublicFromSecret(staticSecret),
		sendStreams:   make(map[uint16]*SendStream),
		recvStreams:   make(map[uint16]*RecvStream),
		sentPackets:   make(map[uint64]*sentPacketInfo),
		peerAckRanges: &wire.AckRanges{},
		recvAckRanges: &wire.AckRanges{},
		cong:          newCongestionState(cfg.InitialCwndBytes, cfg.MSSBytes),
		rtt:           newRTTEstimator(cfg.MinRTO, cfg.MaxRTO),
		currentRTO:    cfg.MinRTO,
		handshakeBackoff: cfg.HandshakeInitialBackoff,
	}
	return c
}

func randomConnID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Dial creates a Connection in DialSent and sends the initial DIAL.
func Dial(loop *fabric.Loop, sender Sender, delegate Delegate, cfg Config, src, dst sockaddr.SocketAddress, staticSecret [32]byte) *Connection {
	c := newConnection(loop, sender, delegate, cfg, src, dst, staticSecret)
	c.srcConnID = randomConnID()
	c.state = StateDialSent
	c.sendHandshake(wire.TypeDial)
	c.armStateTimer()
	return c
}

// AcceptListener constructs a Connection seeded from an inbound DIAL,
// in Listen state about to transition to DialRecvd.
func AcceptListener(loop *fabric.Loop, sender Sender, delegate Delegate, cfg Config, src, dst sockaddr.SocketAddress, staticSecret [32]byte) *Connection {
	c := newConnection(loop, sender, delegate, cfg, src, dst, staticSecret)
	c.state = StateListen
	return c
}

// sendHandshake emits a handshake packet of the given type, carrying our
// static public key as payload so the peer can derive session keys.
func (c *Connection) sendHandshake(t wire.PacketType) {
	h := wire.Header{Type: t, SrcConnID: c.srcConnID, DstConnID: c.dstConnID}
	pkt := wire.Encode(h, c.staticPublic[:])
	c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(pkt))
	if t == wire.TypeDialConf {
		c.lastDialConfSent = pkt
	}
}

// armStateTimer (re)schedules the handshake retransmit with exponential
// backoff, capped per spec §4.1.2, and fails the connection once the cap
// is exceeded without reaching Established (spec §5 cancellation).
func (c *Connection) armStateTimer() {
	if c.stateTimer == nil {
		c.stateTimer = c.loop.AfterFunc(c.handshakeBackoff, c.onStateTimer)
		return
	}
	c.stateTimer.Reset(c.handshakeBackoff, c.onStateTimer)
}

func (c *Connection) onStateTimer() {
	if c.state == StateEstablished || c.state == StateClosing {
		return
	}
	if c.handshakeBackoff >= c.cfg.HandshakeMaxBackoff {
		c.failHandshake(fmt.Errorf("stream: handshake timed out after backoff to %s", c.handshakeBackoff))
		return
	}
	switch c.state {
	case StateDialSent:
		c.sendHandshake(wire.TypeDial)
	case StateDialRecvd:
		if c.lastDialConfSent != nil {
			c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(c.lastDialConfSent))
		} else {
			c.sendHandshake(wire.TypeDialConf)
		}
	}
	c.handshakeBackoff *= 2
	if c.handshakeBackoff > c.cfg.HandshakeMaxBackoff {
		c.handshakeBackoff = c.cfg.HandshakeMaxBackoff
	}
	c.armStateTimer()
}

func (c *Connection) failHandshake(reason error) {
	c.state = StateClosing
	c.cancelTimers()
	if c.delegate != nil {
		c.delegate.DidClose(c, reason)
	}
}

func (c *Connection) cancelTimers() {
	for _, t := range []*fabric.Timer{c.ackTimer, c.retransmitTimer, c.keepaliveTimer, c.stateTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// Close tears the connection down (spec §9 open question resolution):
// before Close returns, the connection is marked closed, so further
// Send/FlushStream/SkipStream calls return ErrClosed; cancelling the
// timers, sending RST and calling DidClose are posted to the loop and
// run afterwards. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosing
	c.mu.Unlock()

	c.loop.Post(func() {
		c.cancelTimers()
		h := wire.Header{Type: wire.TypeRst, SrcConnID: c.srcConnID, DstConnID: c.dstConnID}
		c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(wire.Encode(h, nil)))
		if c.delegate != nil {
			c.delegate.DidClose(c, nil)
		}
	})
	return nil
}

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = fmt.Errorf("stream: connection closed")
