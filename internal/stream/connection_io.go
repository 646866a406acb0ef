package stream

import (
	"time"

	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/wire"
)

// HandleInbound processes one datagram (already stripped of the B-layer
// version byte) addressed to this connection. Must run on the
// connection's loop.
func (c *Connection) HandleInbound(raw []byte) {
	if c.state == StateClosing {
		return
	}
	h, rest, err := wire.Decode(raw)
	if err != nil {
		return // malformed header: silently dropped per spec §7.2
	}

	switch h.Type {
	case wire.TypeDial:
		c.onDial(h, rest)
		return
	case wire.TypeDialConf:
		c.onDialConf(h, rest)
		return
	case wire.TypeConf:
		c.onConf(h, rest)
		return
	case wire.TypeRst:
		c.onRst()
		return
	}

	// every other packet type requires an established, conn-id-matched
	// session: a mismatched id is silently dropped (spec §4.1.2).
	if c.state != StateEstablished {
		return
	}
	if h.SrcConnID != c.dstConnID || h.DstConnID != c.srcConnID {
		return
	}

	switch h.Type {
	case wire.TypeData, wire.TypeDataFin:
		c.onData(h, rest)
	case wire.TypeAck:
		c.onAck(h, rest)
	case wire.TypeSkipStream:
		c.onSkipStream(h, rest)
	case wire.TypeFlushStream:
		c.onFlushStream(h, rest)
	case wire.TypeFlushConf:
		c.onFlushConf(h, rest)
	}
}

func (c *Connection) onDial(h wire.Header, payload []byte) {
	switch c.state {
	case StateListen:
		c.dstConnID = h.SrcConnID
		c.srcConnID = randomConnID()
		if len(payload) >= 32 {
			copy(c.remoteStaticPublic[:], payload[:32])
			c.haveRemoteStatic = true
		}
		c.state = StateDialRecvd
		c.sendHandshake(wire.TypeDialConf)
		c.armStateTimer()
	case StateDialRecvd:
		// retransmitted DIAL: resend our DIAL_CONF
		if c.lastDialConfSent != nil {
			c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(c.lastDialConfSent))
		}
	}
}

func (c *Connection) onDialConf(h wire.Header, payload []byte) {
	if c.state != StateDialSent {
		return
	}
	if h.DstConnID != c.srcConnID {
		return // mismatched dst_conn_id: robust to stale/spoofed traffic
	}
	c.dstConnID = h.SrcConnID
	if len(payload) >= 32 {
		copy(c.remoteStaticPublic[:], payload[:32])
		c.haveRemoteStatic = true
	}
	if err := c.establishKeys(true); err != nil {
		c.failHandshake(err)
		return
	}
	c.sendHandshake(wire.TypeConf)
	c.becomeEstablished()
}

func (c *Connection) onConf(h wire.Header, _ []byte) {
	if c.state != StateDialRecvd {
		return
	}
	if h.SrcConnID != c.dstConnID || h.DstConnID != c.srcConnID {
		return
	}
	if err := c.establishKeys(false); err != nil {
		c.failHandshake(err)
		return
	}
	c.becomeEstablished()
}

func (c *Connection) onRst() {
	c.state = StateClosing
	c.cancelTimers()
	if c.delegate != nil {
		c.delegate.DidClose(c, nil)
	}
}

func (c *Connection) establishKeys(iAmInitiator bool) error {
	keys, err := deriveSessionKeys(c.staticSecret, c.remoteStaticPublic, iAmInitiator)
	if err != nil {
		return err
	}
	c.keys = keys
	return nil
}

func (c *Connection) becomeEstablished() {
	c.state = StateEstablished
	c.cancelStateTimer()
	c.armKeepalive()
	if c.delegate != nil {
		c.delegate.DidConnect(c)
	}
}

func (c *Connection) cancelStateTimer() {
	if c.stateTimer != nil {
		c.stateTimer.Stop()
	}
}

// --- data path ---

func (c *Connection) streamHeaderAAD(h wire.Header) []byte {
	return wire.Encode(h, nil)[:wire.HeaderLen]
}

func (c *Connection) onData(h wire.Header, ciphertext []byte) {
	plain, err := openPayload(c.keys.recvAEAD, h.PacketNumber, c.streamHeaderAAD(h), ciphertext)
	if err != nil {
		return // bad MAC: silently dropped per spec §7.2
	}
	c.recvAckRanges.Add(h.PacketNumber)
	c.ackElicitedSinceLastAck = true
	c.armAckTimer()

	rs, ok := c.recvStreams[h.StreamID]
	if !ok {
		rs = newRecvStream(h.StreamID, c.cfg.OutOfOrderHoldCap)
		c.recvStreams[h.StreamID] = rs
	}
	delivered := rs.onData(h.StreamOffset, plain, h.Type == wire.TypeDataFin)
	if len(delivered) > 0 && c.delegate != nil {
		c.delegate.DidRecvStreamData(c, h.StreamID, delivered)
	}
}

func (c *Connection) onSkipStream(h wire.Header, _ []byte) {
	rs, ok := c.recvStreams[h.StreamID]
	if !ok {
		rs = newRecvStream(h.StreamID, c.cfg.OutOfOrderHoldCap)
		c.recvStreams[h.StreamID] = rs
	}
	rs.skip(h.StreamOffset)
	if c.delegate != nil {
		c.delegate.DidRecvSkipStream(c, h.StreamID)
	}
}

func (c *Connection) onFlushStream(h wire.Header, _ []byte) {
	// reader requests we skip past h.StreamOffset on our send side.
	if ss, ok := c.sendStreams[h.StreamID]; ok {
		ss.Skip()
	}
	ack := wire.Header{Type: wire.TypeFlushConf, SrcConnID: c.srcConnID, DstConnID: c.dstConnID, StreamID: h.StreamID}
	c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(wire.Encode(ack, nil)))
}

func (c *Connection) onFlushConf(h wire.Header, _ []byte) {
	if rs, ok := c.recvStreams[h.StreamID]; ok {
		rs.skip(rs.recvOffset)
	}
}

func (c *Connection) onAck(h wire.Header, payload []byte) {
	frame, err := wire.DecodeAck(payload)
	if err != nil {
		return
	}
	now := time.Now()
	// each ACK frame carries the peer's full selective-ack history, so
	// the freshly decoded ranges simply replace our record of it.
	c.peerAckRanges = wire.FromFrame(frame)

	if !c.haveLargestAcked || frame.LargestAcked > c.largestAckedByPeer {
		c.largestAckedByPeer = frame.LargestAcked
		c.largestAckedTime = now
		c.haveLargestAcked = true
	}

	for pn, info := range c.sentPackets {
		if !c.peerAckRanges.Contains(pn) {
			continue
		}
		delete(c.sentPackets, pn)
		c.cong.OnAcked(info.length)
		if ss, ok := c.sendStreams[info.streamID]; ok {
			ss.ackRange(info.streamOffset, ss.outstandingAcks[pn])
			delete(ss.outstandingAcks, pn)
		}
		if pn == frame.LargestAcked {
			c.rtt.Sample(now.Sub(info.sentTime))
		}
	}
	c.cong.EndRecoveryIfPast(now, c.rtt.smoothedRTT)

	c.detectLosses(now)
	c.rearmRetransmitTimer()
	c.pumpSendStreams()
}

// detectLosses implements spec §4.1.3: a sent packet is lost if it was
// sent before largest_acked_time - 9/8*max(smoothed_rtt, latest_rtt), or
// three higher-numbered packets have already been acked.
func (c *Connection) detectLosses(now time.Time) {
	if !c.haveLargestAcked {
		return
	}
	threshold := maxDuration(c.rtt.smoothedRTT, c.rtt.latestRTT) * 9 / 8
	cutoff := c.largestAckedTime.Add(-threshold)

	var lost []uint64
	for pn, info := range c.sentPackets {
		higherAcked := 0
		for hn := pn + 1; hn <= c.largestAckedByPeer && higherAcked < 3; hn++ {
			if c.peerAckRanges.Contains(hn) {
				higherAcked++
			}
		}
		if info.sentTime.Before(cutoff) || higherAcked >= 3 {
			lost = append(lost, pn)
		}
	}
	for _, pn := range lost {
		info := c.sentPackets[pn]
		delete(c.sentPackets, pn)
		c.cong.OnLoss(now)
		c.cong.ReleaseInFlight(info.length)
		if ss, ok := c.sendStreams[info.streamID]; ok {
			ss.requeueFromOffset(info.streamOffset)
			delete(ss.outstandingAcks, pn)
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
