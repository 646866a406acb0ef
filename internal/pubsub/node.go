package pubsub

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/marlinprotocol/relay/internal/attest"
	"github.com/marlinprotocol/relay/internal/config"
	"github.com/marlinprotocol/relay/internal/metrics"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
	"github.com/marlinprotocol/relay/internal/transport"
	"github.com/marlinprotocol/relay/internal/witness"
)

// controlStreamID is the stream every pubsub frame travels on (spec
// §4.2.1: "Each pubsub message is one reliable stream payload").
const controlStreamID = 0

// Application receives fully forwarded/deduped messages (spec §4.2.4
// step 5, "Deliver to the local application via did_recv").
type Application interface {
	DidRecv(channel ChannelID, messageID uint64, origin [20]byte, payload []byte)
}

// dedupKey is spec's (message_id, channel) dedup cache key.
type dedupKey struct {
	id      uint64
	channel ChannelID
}

// Node is spec's PubSubNode: subscription tables, peer slots, dedup
// cache, and the forwarding pipeline, sitting on top of a
// transport.Manager the way cppla-moto's controllers sit on top of its
// listener/dialer pair.
type Node struct {
	mu sync.Mutex

	mgr       *transport.Manager
	attester  attest.Attester
	witnesser witness.Witnesser
	app       Application
	cfg       config.PubsubConfig
	metrics   *metrics.PubsubMetrics

	myPublicKey []byte
	myClientKey ClientKey

	peers           map[ClientKey]*peerEntry
	addrToClientKey map[sockaddr.SocketAddress]ClientKey

	// channelSubscribers[c] is every address that asked us (via
	// SUBSCRIBE) to forward channel c to it.
	channelSubscribers map[ChannelID]map[sockaddr.SocketAddress]struct{}
	lastHeartbeat      map[sockaddr.SocketAddress]time.Time

	dedup *cache.Cache

	heartbeatTicker *time.Ticker
	churnTicker     *time.Ticker
	stopCh          chan struct{}
}

// New builds a Node wired to mgr for transport, using attester/witnesser
// for message authentication and loop prevention.
func New(mgr *transport.Manager, myPublicKey []byte, attester attest.Attester, witnesser witness.Witnesser, app Application, cfg config.PubsubConfig, pm *metrics.PubsubMetrics) *Node {
	var ck ClientKey
	if len(myPublicKey) >= 32 {
		var pk [32]byte
		copy(pk[:], myPublicKey)
		ck = DeriveClientKey(pk)
	}
	return &Node{
		mgr:                mgr,
		attester:           attester,
		witnesser:          witnesser,
		app:                app,
		cfg:                cfg,
		metrics:            pm,
		myPublicKey:        myPublicKey,
		myClientKey:        ck,
		peers:              make(map[ClientKey]*peerEntry),
		addrToClientKey:    make(map[sockaddr.SocketAddress]ClientKey),
		channelSubscribers: make(map[ChannelID]map[sockaddr.SocketAddress]struct{}),
		lastHeartbeat:      make(map[sockaddr.SocketAddress]time.Time),
		dedup:              cache.New(time.Duration(cfg.DedupExpirySeconds)*time.Second, 2*time.Duration(cfg.DedupExpirySeconds)*time.Second),
		stopCh:             make(chan struct{}),
	}
}

// Run starts the heartbeat and churn background loops. Call in its own
// goroutine.
func (n *Node) Run() {
	n.heartbeatTicker = time.NewTicker(time.Duration(n.cfg.HeartbeatSeconds) * time.Second)
	n.churnTicker = time.NewTicker(time.Duration(n.cfg.HeartbeatSeconds) * time.Second)
	defer n.heartbeatTicker.Stop()
	defer n.churnTicker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-n.heartbeatTicker.C:
			n.sendHeartbeats()
			n.evictStale()
		case <-n.churnTicker.C:
			n.manageSubscriptions()
		}
	}
}

// Stop ends the background loops.
func (n *Node) Stop() { close(n.stopCh) }

// --- stream.Delegate ---

func (n *Node) DidConnect(conn *stream.Connection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pub, ok := conn.RemoteStaticPublic()
	if !ok {
		return
	}
	ck := DeriveClientKey(pub)
	n.addrToClientKey[conn.RemoteAddr()] = ck
	n.peerEntryLocked(ck)
	n.lastHeartbeat[conn.RemoteAddr()] = time.Now()
}

func (n *Node) DidClose(conn *stream.Connection, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	addr := conn.RemoteAddr()
	if ck, ok := n.addrToClientKey[addr]; ok {
		if e, ok := n.peers[ck]; ok {
			e.removeAddr(addr)
			if e.empty() {
				delete(n.peers, ck)
			}
		}
		delete(n.addrToClientKey, addr)
	}
	delete(n.lastHeartbeat, addr)
	for _, subs := range n.channelSubscribers {
		delete(subs, addr)
	}
}

func (n *Node) DidRecvSkipStream(_ *stream.Connection, _ uint16) {}

func (n *Node) DidRecvStreamData(conn *stream.Connection, streamID uint16, data []byte) {
	if streamID != controlStreamID || len(data) == 0 {
		return
	}
	ft, err := DecodeFrameType(data)
	if err != nil {
		return
	}
	switch ft {
	case FrameSubscribe:
		ch, err := DecodeSubscribe(data)
		if err == nil {
			n.handleSubscribe(conn, ch)
		}
	case FrameUnsubscribe:
		ch, err := DecodeSubscribe(data)
		if err == nil {
			n.handleUnsubscribe(conn, ch)
		}
	case FrameResponse:
		// informational only; nothing to reconcile.
	case FrameHeartbeat:
		n.mu.Lock()
		n.lastHeartbeat[conn.RemoteAddr()] = time.Now()
		n.mu.Unlock()
	case FrameMessageWithHeaders:
		m, err := DecodeMessageWithHeaders(data)
		if err == nil {
			n.handleMessage(conn, m)
		}
	}
}

func (n *Node) peerEntryLocked(ck ClientKey) *peerEntry {
	e, ok := n.peers[ck]
	if !ok {
		e = newPeerEntry(ck)
		n.peers[ck] = e
	}
	return e
}
