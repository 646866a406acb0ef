// Package transport implements the transport manager of spec §4.5: a
// SocketAddress -> *stream.Connection map with get/get_or_create/erase,
// wired to a single datagram fiber.
package transport

import (
	"sync"

	"golang.org/x/exp/maps"

	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
)

// DelegateFactory returns the stream.Delegate for a new connection to
// peer. The manager itself builds the *stream.Connection: as a dialer
// from GetOrCreate, or as a listener when a datagram arrives from an
// address with no entry.
type DelegateFactory func(peer sockaddr.SocketAddress) stream.Delegate

// Manager owns the datagram fiber, the single event loop shared by all
// connections, and the address -> connection map (a plain map guarded by
// mu), mirroring the load-or-store shape of moto's prewarmPools
// (controller/prewarm.go) generalized to stream connections instead of
// idle TCP sockets.
type Manager struct {
	mu    sync.Mutex
	conns map[sockaddr.SocketAddress]*stream.Connection

	loop        *fabric.Loop
	datagram    *fabric.DatagramFiber
	self        sockaddr.SocketAddress
	staticSecret [32]byte
	cfg         stream.Config
	delegateFor DelegateFactory
}

// New binds a UDP socket at self and returns a Manager. Call Run
// on its own goroutine to start the event loop and the datagram reader.
func New(self sockaddr.SocketAddress, staticSecret [32]byte, cfg stream.Config, delegateFor DelegateFactory) (*Manager, error) {
	m := &Manager{
		conns:        make(map[sockaddr.SocketAddress]*stream.Connection),
		loop:         fabric.NewLoop(1024),
		self:         self,
		staticSecret: staticSecret,
		cfg:          cfg,
		delegateFor:  delegateFor,
	}
	dg, err := fabric.Bind(self, m)
	if err != nil {
		return nil, err
	}
	m.datagram = dg
	return m, nil
}

// Run starts the event loop on its own goroutine and runs the UDP read
// loop on the calling goroutine, returning when the datagram fiber's
// socket closes.
func (m *Manager) Run() error {
	go m.loop.Run()
	return m.datagram.Run()
}

// DidRecvDatagram implements fabric.DatagramDelegate: dispatches an
// inbound UDP datagram to the right connection (creating a listening
// connection for any source address with no entry), on the manager's loop.
func (m *Manager) DidRecvDatagram(d fabric.Datagram) {
	m.loop.Post(func() {
		body, err := fabric.StripVersion(d.Bytes)
		if err != nil {
			return
		}
		conn, _ := m.getOrCreateLocked(d.Src, false)
		conn.HandleInbound(body)
	})
}

// SendDatagram implements stream.Sender.
func (m *Manager) SendDatagram(dst sockaddr.SocketAddress, b []byte) {
	m.datagram.Send(dst, b)
}

// Get returns the connection for peer, if one exists.
func (m *Manager) Get(peer sockaddr.SocketAddress) (*stream.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[peer]
	return c, ok
}

// GetOrCreate returns the existing connection for peer, or dials a new
// one, reporting whether it was freshly created (spec §4.5
// get_or_create).
func (m *Manager) GetOrCreate(peer sockaddr.SocketAddress) (*stream.Connection, bool) {
	return m.getOrCreateLocked(peer, true)
}

func (m *Manager) getOrCreateLocked(peer sockaddr.SocketAddress, asDialer bool) (*stream.Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[peer]; ok {
		return c, false
	}
	delegate := m.delegateFor(peer)
	var c *stream.Connection
	if asDialer {
		c = stream.Dial(m.loop, m, delegate, m.cfg, m.self, peer, m.staticSecret)
	} else {
		c = stream.AcceptListener(m.loop, m, delegate, m.cfg, m.self, peer, m.staticSecret)
	}
	m.conns[peer] = c
	return c, true
}

// Erase closes and removes peer's connection, cancelling its timers
// (spec §4.5 erase).
func (m *Manager) Erase(peer sockaddr.SocketAddress) {
	m.mu.Lock()
	c, ok := m.conns[peer]
	if ok {
		delete(m.conns, peer)
	}
	m.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// Close shuts the whole manager down: every connection and the socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := maps.Values(m.conns)
	m.conns = make(map[sockaddr.SocketAddress]*stream.Connection)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	m.loop.Stop()
	return m.datagram.Close()
}
