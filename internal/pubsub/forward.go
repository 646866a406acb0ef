package pubsub

import (
	"github.com/patrickmn/go-cache"

	"github.com/marlinprotocol/relay/internal/stream"
)

// handleMessage runs spec §4.2.4's forwarding pipeline on an inbound
// MESSAGE_WITH_HEADERS.
func (n *Node) handleMessage(from *stream.Connection, m MessageWithHeaders) {
	key := dedupKey{id: m.MessageID, channel: m.Channel}
	if _, found := n.dedup.Get(dedupCacheKey(key)); found {
		if n.metrics != nil {
			n.metrics.DedupDropped.Inc()
		}
		return
	}

	ok, origin, err := n.attester.Verify(m.Payload, m.Attestation)
	if err != nil || !ok {
		if n.metrics != nil {
			n.metrics.VerifyFailed.Inc()
		}
		return
	}

	if len(m.Witness) > 0 {
		loop, err := n.witnesser.Contains(m.Witness, n.myPublicKey)
		if err == nil && loop {
			if n.metrics != nil {
				n.metrics.WitnessLoop.Inc()
			}
			return
		}
	}

	n.dedup.Set(dedupCacheKey(key), struct{}{}, cache.DefaultExpiration)

	if n.app != nil {
		n.app.DidRecv(m.Channel, m.MessageID, origin, m.Payload)
	}
	if n.metrics != nil {
		n.metrics.Delivered.Inc()
	}

	n.fanout(m, from)
}

// Publish originates a new message on channel: it attests fresh (no
// prior attestation to keep), seeds the witness filter with our own
// key, and fans out to every subscriber.
func (n *Node) Publish(channel ChannelID, messageID uint64, payload []byte) error {
	attestation, err := n.attester.Attest(payload)
	if err != nil {
		return err
	}
	filter, err := n.witnesser.Witness(nil, n.myPublicKey)
	if err != nil {
		return err
	}
	m := MessageWithHeaders{MessageID: messageID, Channel: channel, Attestation: attestation, Witness: filter, Payload: payload}

	key := dedupKey{id: m.MessageID, channel: m.Channel}
	n.dedup.Set(dedupCacheKey(key), struct{}{}, cache.DefaultExpiration)
	if n.metrics != nil {
		n.metrics.Delivered.Inc()
	}
	n.fanout(m, nil)
	return nil
}

// fanout re-witnesses the message and passes its attestation through
// unchanged (spec §4.3's "kept previous" rule; Publish attests before
// calling it), then sends to every transport subscribed to the channel
// except the one the message arrived from.
func (n *Node) fanout(m MessageWithHeaders, from *stream.Connection) {
	n.mu.Lock()
	subs := n.channelSubscribers[m.Channel]
	targets := make([]*stream.Connection, 0, len(subs))
	for addr := range subs {
		if from != nil && addr == from.RemoteAddr() {
			continue
		}
		if conn, ok := n.mgr.Get(addr); ok {
			targets = append(targets, conn)
		}
	}
	n.mu.Unlock()

	for _, conn := range targets {
		witnessed, err := n.witnesser.Witness(m.Witness, n.myPublicKey)
		if err != nil {
			continue
		}
		out := MessageWithHeaders{MessageID: m.MessageID, Channel: m.Channel, Attestation: m.Attestation, Witness: witnessed, Payload: m.Payload}
		if err := conn.Send(controlStreamID, EncodeMessageWithHeaders(out)); err == nil && n.metrics != nil {
			n.metrics.Forwarded.Inc()
		}
	}
}

func dedupCacheKey(k dedupKey) string {
	b := make([]byte, 10)
	b[0] = byte(k.channel >> 8)
	b[1] = byte(k.channel)
	for i := 0; i < 8; i++ {
		b[2+i] = byte(k.id >> uint(8*(7-i)))
	}
	return string(b)
}
