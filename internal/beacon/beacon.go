// Package beacon implements the consumer side of the discovery beacon
// contract (spec §6): a stream of new_peer_protocol events describing
// peers advertised by the beacon server. The beacon server itself is
// opaque per spec; only the consumer contract and a minimal JSON-polling
// client are in scope.
package beacon

import (
	"github.com/marlinprotocol/relay/internal/sockaddr"
)

// Event is one new_peer_protocol delivery (spec §6):
//
//	new_peer_protocol(client_key, addr, static_pk, protocol, version)
type Event struct {
	ClientKey [20]byte
	Addr      sockaddr.SocketAddress
	StaticPK  [32]byte
	Protocol  uint32
	Version   uint16
}

// Consumer receives beacon events as they're discovered. Implemented by
// the pubsub node (or anything that wants to react to new peers).
type Consumer interface {
	NewPeerProtocol(e Event)
}

// FilteredConsumer wraps a Consumer so only events matching Want
// reach it, per spec §6 ("the pubsub node accepts those matching its
// protocol number").
type FilteredConsumer struct {
	Want uint32
	Next Consumer
}

func (f FilteredConsumer) NewPeerProtocol(e Event) {
	if e.Protocol != f.Want {
		return
	}
	f.Next.NewPeerProtocol(e)
}
