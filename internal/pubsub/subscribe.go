package pubsub

import (
	"time"

	"golang.org/x/exp/maps"

	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
)

// Subscribe asks peer to start forwarding channel to us, dialing it if
// necessary and recording it as a solicited connection (spec §4.2.2/3).
func (n *Node) Subscribe(peer sockaddr.SocketAddress, channel ChannelID) error {
	conn, _ := n.mgr.GetOrCreate(peer)
	if err := conn.Send(controlStreamID, EncodeSubscribe(channel)); err != nil {
		return err
	}
	n.mu.Lock()
	n.addToSetForAddr(conn, peer, channel, setSol)
	n.mu.Unlock()
	return nil
}

// Unsubscribe stops soliciting channel from peer, demoting it to
// standby (spec §4.2.2 churn's counterpart operation).
func (n *Node) Unsubscribe(peer sockaddr.SocketAddress, channel ChannelID) error {
	conn, ok := n.mgr.Get(peer)
	if !ok {
		return nil
	}
	if err := conn.Send(controlStreamID, EncodeUnsubscribe(channel)); err != nil {
		return err
	}
	n.mu.Lock()
	n.addToSetForAddr(conn, peer, channel, setStandby)
	n.mu.Unlock()
	return nil
}

type slotSet int

const (
	setSol slotSet = iota
	setStandby
	setUnsol
)

func (n *Node) addToSetForAddr(conn *stream.Connection, addr sockaddr.SocketAddress, channel ChannelID, which slotSet) {
	ck, ok := n.addrToClientKey[addr]
	if !ok {
		pub, ok := conn.RemoteStaticPublic()
		if !ok {
			return
		}
		ck = DeriveClientKey(pub)
		n.addrToClientKey[addr] = ck
	}
	e := n.peerEntryLocked(ck)
	e.removeAddr(addr)
	switch which {
	case setSol:
		e.solConns[addr] = conn
	case setStandby:
		e.solStandbyConns[addr] = conn
	case setUnsol:
		e.unsolConns[addr] = conn
	}
}

// handleSubscribe registers the remote transport as a recipient of
// channel and acknowledges with RESPONSE (spec §4.2.3).
func (n *Node) handleSubscribe(conn *stream.Connection, channel ChannelID) {
	addr := conn.RemoteAddr()
	n.mu.Lock()
	subs, ok := n.channelSubscribers[channel]
	if !ok {
		subs = make(map[sockaddr.SocketAddress]struct{})
		n.channelSubscribers[channel] = subs
	}
	subs[addr] = struct{}{}
	if _, already := n.peers[n.addrToClientKey[addr]]; !already || n.addrToClientKey[addr] == (ClientKey{}) {
		n.addToSetForAddr(conn, addr, channel, setUnsol)
	} else if e := n.peers[n.addrToClientKey[addr]]; e != nil {
		if _, inSol := e.solConns[addr]; !inSol {
			n.addToSetForAddr(conn, addr, channel, setUnsol)
		}
	}
	n.mu.Unlock()
	_ = conn.Send(controlStreamID, EncodeResponse(true, "subscribed"))
}

// handleUnsubscribe removes the remote transport from channel's
// subscriber set.
func (n *Node) handleUnsubscribe(conn *stream.Connection, channel ChannelID) {
	addr := conn.RemoteAddr()
	n.mu.Lock()
	if subs, ok := n.channelSubscribers[channel]; ok {
		delete(subs, addr)
	}
	n.mu.Unlock()
	_ = conn.Send(controlStreamID, EncodeResponse(true, "unsubscribed"))
}

// sendHeartbeats pings every known connection (spec §4.2.5).
func (n *Node) sendHeartbeats() {
	n.mu.Lock()
	addrs := maps.Keys(n.addrToClientKey)
	n.mu.Unlock()
	for _, a := range addrs {
		if conn, ok := n.mgr.Get(a); ok {
			_ = conn.Send(controlStreamID, EncodeHeartbeat())
		}
	}
}

// evictStale closes connections silent for more than StaleAfterSeconds
// (spec §4.2.5).
func (n *Node) evictStale() {
	cutoff := time.Now().Add(-time.Duration(n.cfg.StaleAfterSeconds) * time.Second)
	n.mu.Lock()
	var stale []sockaddr.SocketAddress
	for a, last := range n.lastHeartbeat {
		if last.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	n.mu.Unlock()
	for _, a := range stale {
		n.mgr.Erase(a)
	}
}

// manageSubscriptions runs spec §4.2.2's periodic churn: demote the
// highest-RTT solicited peer when at capacity, promote the lowest-RTT
// standby when there's room.
func (n *Node) manageSubscriptions() {
	n.mu.Lock()
	type churnOp struct {
		addr    sockaddr.SocketAddress
		conn    *stream.Connection
		promote bool
	}
	var ops []churnOp
	for _, e := range n.peers {
		if len(e.solConns) >= n.cfg.MaxSolConn {
			var worstAddr sockaddr.SocketAddress
			var worstConn *stream.Connection
			worstRTT := -1.0
			for a, c := range e.solConns {
				if c.SmoothedRTTSeconds() > worstRTT {
					worstRTT = c.SmoothedRTTSeconds()
					worstAddr, worstConn = a, c
				}
			}
			if worstConn != nil {
				ops = append(ops, churnOp{worstAddr, worstConn, false})
			}
		} else if len(e.solStandbyConns) > 0 {
			var bestAddr sockaddr.SocketAddress
			var bestConn *stream.Connection
			bestRTT := -1.0
			for a, c := range e.solStandbyConns {
				if bestRTT < 0 || c.SmoothedRTTSeconds() < bestRTT {
					bestRTT = c.SmoothedRTTSeconds()
					bestAddr, bestConn = a, c
				}
			}
			if bestConn != nil {
				ops = append(ops, churnOp{bestAddr, bestConn, true})
			}
		}
	}
	n.mu.Unlock()

	for _, op := range ops {
		if op.promote {
			_ = op.conn.Send(controlStreamID, EncodeSubscribe(0))
			n.mu.Lock()
			n.addToSetForAddr(op.conn, op.addr, 0, setSol)
			n.mu.Unlock()
		} else {
			_ = op.conn.Send(controlStreamID, EncodeUnsubscribe(0))
			n.mu.Lock()
			n.addToSetForAddr(op.conn, op.addr, 0, setStandby)
			n.mu.Unlock()
		}
	}
}
