package pubsub

import (
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
)

// TransportSet is spec's PubSubTransportSet: a set of live connections
// keyed by peer address.
type TransportSet map[sockaddr.SocketAddress]*stream.Connection

// peerEntry is spec §3's PubsubConnMap entry, one per ClientKey.
type peerEntry struct {
	key              ClientKey
	solConns         TransportSet // peers we publish to
	solStandbyConns  TransportSet // candidates by RTT
	unsolConns       TransportSet // peers who subscribed to us, above cap
}

func newPeerEntry(key ClientKey) *peerEntry {
	return &peerEntry{
		key:             key,
		solConns:        TransportSet{},
		solStandbyConns: TransportSet{},
		unsolConns:      TransportSet{},
	}
}

func (e *peerEntry) removeAddr(addr sockaddr.SocketAddress) {
	delete(e.solConns, addr)
	delete(e.solStandbyConns, addr)
	delete(e.unsolConns, addr)
}

func (e *peerEntry) empty() bool {
	return len(e.solConns) == 0 && len(e.solStandbyConns) == 0 && len(e.unsolConns) == 0
}
