package stream

import (
	"time"

	"github.com/marlinprotocol/relay/internal/fabric"
	"github.com/marlinprotocol/relay/internal/wire"
)

// Send appends bytes to stream_id's send queue and wakes the sender
// (spec §4.1.5 send). Creating the stream on first use.
func (c *Connection) Send(streamID uint16, b []byte) error {
	if c.closed || c.state == StateClosing {
		return ErrClosed
	}
	done := make(chan struct{})
	c.loop.Post(func() {
		ss := c.sendStreamOrNew(streamID)
		ss.Enqueue(b)
		c.pumpSendStreams()
		close(done)
	})
	<-done
	return nil
}

// FlushStream marks stream_id done-queueing, emitting FIN on the last
// chunk (spec §4.1.5 flush_stream).
func (c *Connection) FlushStream(streamID uint16) error {
	if c.closed {
		return ErrClosed
	}
	done := make(chan struct{})
	c.loop.Post(func() {
		ss := c.sendStreamOrNew(streamID)
		ss.Flush()
		c.pumpSendStreams()
		close(done)
	})
	<-done
	return nil
}

// SkipStream abandons unacked send-side data and notifies the peer
// (spec §4.1.5 skip_stream).
func (c *Connection) SkipStream(streamID uint16) error {
	if c.closed {
		return ErrClosed
	}
	done := make(chan struct{})
	c.loop.Post(func() {
		ss := c.sendStreamOrNew(streamID)
		offset := ss.sentOffset
		ss.Skip()
		h := wire.Header{Type: wire.TypeSkipStream, SrcConnID: c.srcConnID, DstConnID: c.dstConnID, StreamID: streamID, StreamOffset: offset}
		c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(wire.Encode(h, nil)))
		close(done)
	})
	<-done
	return nil
}

func (c *Connection) sendStreamOrNew(id uint16) *SendStream {
	ss, ok := c.sendStreams[id]
	if !ok {
		ss = newSendStream(id)
		c.sendStreams[id] = ss
	}
	return ss
}

// pumpSendStreams drains ready send-stream data onto the wire while the
// congestion window allows it (spec §4.1.3 "Sending gate").
func (c *Connection) pumpSendStreams() {
	if c.state != StateEstablished {
		return
	}
	const maxPayload = 1200 - wire.HeaderLen - 16 // MSS minus header minus AEAD tag

	progressed := true
	for progressed {
		progressed = false
		for _, ss := range c.sendStreams {
			if ss.skipped {
				continue
			}
			chunk, offset, fin, ok := ss.nextChunk(maxPayload)
			if !ok {
				continue
			}
			size := len(chunk) + wire.HeaderLen + 16
			if !c.cong.CanSend(size) {
				continue
			}
			c.sendData(ss, chunk, offset, fin, size)
			progressed = true
		}
	}
}

func (c *Connection) sendData(ss *SendStream, chunk []byte, offset uint64, fin bool, size int) {
	pn := c.nextPacketNumber
	c.nextPacketNumber++

	t := wire.TypeData
	if fin {
		t = wire.TypeDataFin
	}
	h := wire.Header{Type: t, SrcConnID: c.srcConnID, DstConnID: c.dstConnID, StreamID: ss.id, PacketNumber: pn, StreamOffset: offset}
	aad := c.streamHeaderAAD(h)
	ciphertext := sealPayload(c.keys.sendAEAD, pn, aad, chunk)
	pkt := wire.Encode(h, ciphertext)
	c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(pkt))

	now := time.Now()
	c.sentPackets[pn] = &sentPacketInfo{sentTime: now, streamID: ss.id, streamOffset: offset, length: size, ackEliciting: true}
	ss.outstandingAcks[pn] = len(chunk)
	c.cong.OnSent(size)
	c.rearmRetransmitTimer()
}

// --- timers ---

func (c *Connection) armAckTimer() {
	if !c.ackElicitedSinceLastAck {
		return
	}
	if c.ackTimer == nil {
		c.ackTimer = c.loop.AfterFunc(c.cfg.AckTimerDelay, c.onAckTimer)
		return
	}
	c.ackTimer.Reset(c.cfg.AckTimerDelay, c.onAckTimer)
}

func (c *Connection) onAckTimer() {
	c.sendAck()
}

func (c *Connection) sendAck() {
	frame, ok := c.recvAckRanges.ToFrame(0)
	if !ok {
		return
	}
	payload, err := wire.EncodeAck(frame)
	if err != nil {
		return
	}
	h := wire.Header{Type: wire.TypeAck, SrcConnID: c.srcConnID, DstConnID: c.dstConnID}
	c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(wire.Encode(h, payload)))
	c.ackElicitedSinceLastAck = false
}

// rearmRetransmitTimer arms the timer at RTO from the earliest
// outstanding ack-eliciting send (spec §4.1.6), or stops it if nothing
// is outstanding.
func (c *Connection) rearmRetransmitTimer() {
	var earliest time.Time
	any := false
	for _, info := range c.sentPackets {
		if !info.ackEliciting {
			continue
		}
		if !any || info.sentTime.Before(earliest) {
			earliest = info.sentTime
			any = true
		}
	}
	if !any {
		if c.retransmitTimer != nil {
			c.retransmitTimer.Stop()
		}
		return
	}
	c.currentRTO = c.rtt.RTO()
	delay := time.Until(earliest.Add(c.currentRTO))
	if delay < 0 {
		delay = 0
	}
	if c.retransmitTimer == nil {
		c.retransmitTimer = c.loop.AfterFunc(delay, c.onRetransmitTimer)
		return
	}
	c.retransmitTimer.Reset(delay, c.onRetransmitTimer)
}

// onRetransmitTimer fires at RTO: declare the earliest outstanding
// packet lost and double RTO, capped (spec §4.1.6).
func (c *Connection) onRetransmitTimer() {
	var earliestPN uint64
	var earliestInfo *sentPacketInfo
	for pn, info := range c.sentPackets {
		if earliestInfo == nil || info.sentTime.Before(earliestInfo.sentTime) {
			earliestPN, earliestInfo = pn, info
		}
	}
	if earliestInfo == nil {
		return
	}
	now := time.Now()
	delete(c.sentPackets, earliestPN)
	c.cong.OnLoss(now)
	c.cong.ReleaseInFlight(earliestInfo.length)
	if ss, ok := c.sendStreams[earliestInfo.streamID]; ok {
		ss.requeueFromOffset(earliestInfo.streamOffset)
		delete(ss.outstandingAcks, earliestPN)
	}

	c.currentRTO *= 2
	if c.currentRTO > c.cfg.MaxRTO {
		c.currentRTO = c.cfg.MaxRTO
	}
	c.pumpSendStreams()
	c.rearmRetransmitTimer()
}

func (c *Connection) armKeepalive() {
	if c.keepaliveTimer == nil {
		c.keepaliveTimer = c.loop.AfterFunc(c.cfg.KeepaliveIdle, c.onKeepalive)
		return
	}
	c.keepaliveTimer.Reset(c.cfg.KeepaliveIdle, c.onKeepalive)
}

func (c *Connection) onKeepalive() {
	if c.state != StateEstablished {
		return
	}
	// an ACK-only packet: re-send our current ack state unconditionally.
	if frame, ok := c.recvAckRanges.ToFrame(0); ok {
		if payload, err := wire.EncodeAck(frame); err == nil {
			h := wire.Header{Type: wire.TypeAck, SrcConnID: c.srcConnID, DstConnID: c.dstConnID}
			c.sender.SendDatagram(c.dstAddr, fabric.PrependVersion(wire.Encode(h, payload)))
		}
	}
	c.armKeepalive()
}

// metrics.ConnGauges implementation

func (c *Connection) PeerLabel() string { return c.dstAddr.String() }
func (c *Connection) Cwnd() float64     { return c.cong.publishedCwnd.Load() }
func (c *Connection) BytesInFlight() float64 {
	return float64(c.cong.publishedInFlight.Load())
}
func (c *Connection) SmoothedRTTSeconds() float64 { return c.rtt.publishedSmoothedRTT.Load().Seconds() }
func (c *Connection) MinRTTSeconds() float64      { return c.rtt.publishedMinRTT.Load().Seconds() }
