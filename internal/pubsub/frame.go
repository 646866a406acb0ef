// Package pubsub implements the channel subscription and message
// relay overlay of spec §4.2: frame encode/decode, per-peer solicited
// and standby sets with RTT-based churn, dedup cache, and the
// verify -> loop-check -> deliver -> fanout forwarding pipeline.
package pubsub

import (
	"encoding/binary"
	"fmt"
)

// FrameType is the first byte of every pubsub frame, carried as the
// payload of stream 0 (spec §4.2.1).
type FrameType byte

const (
	FrameSubscribe           FrameType = 0
	FrameUnsubscribe         FrameType = 1
	FrameResponse            FrameType = 2
	FrameMessage             FrameType = 3
	FrameHeartbeat           FrameType = 4
	FrameMessageWithHeaders  FrameType = 5
)

// ChannelID is spec's 2-byte channel identifier.
type ChannelID = uint16

// SubscribeFrame and UnsubscribeFrame carry a single channel id.
type SubscribeFrame struct {
	Channel ChannelID
}

type UnsubscribeFrame struct {
	Channel ChannelID
}

// ResponseFrame replies to a subscribe/unsubscribe with ok/err + text.
type ResponseFrame struct {
	OK   bool
	Text string
}

// MessageWithHeaders is spec §4.2.1's full wire frame:
// | 5 | message_id (8) | channel (2) | attestation_len (2) | attestation | witness_len (2) | witness | payload |
type MessageWithHeaders struct {
	MessageID   uint64
	Channel     ChannelID
	Attestation []byte
	Witness     []byte
	Payload     []byte
}

var (
	ErrShortFrame    = fmt.Errorf("pubsub: frame too short")
	ErrBadFrameType  = fmt.Errorf("pubsub: unrecognized frame type")
)

// EncodeSubscribe renders a SUBSCRIBE frame.
func EncodeSubscribe(channel ChannelID) []byte {
	b := make([]byte, 3)
	b[0] = byte(FrameSubscribe)
	binary.BigEndian.PutUint16(b[1:3], channel)
	return b
}

// EncodeUnsubscribe renders an UNSUBSCRIBE frame.
func EncodeUnsubscribe(channel ChannelID) []byte {
	b := make([]byte, 3)
	b[0] = byte(FrameUnsubscribe)
	binary.BigEndian.PutUint16(b[1:3], channel)
	return b
}

// EncodeResponse renders a RESPONSE frame.
func EncodeResponse(ok bool, text string) []byte {
	b := make([]byte, 2+len(text))
	b[0] = byte(FrameResponse)
	if ok {
		b[1] = 1
	}
	copy(b[2:], text)
	return b
}

// EncodeHeartbeat renders a bare HEARTBEAT frame.
func EncodeHeartbeat() []byte {
	return []byte{byte(FrameHeartbeat)}
}

// EncodeMessageWithHeaders renders a MESSAGE_WITH_HEADERS frame.
func EncodeMessageWithHeaders(m MessageWithHeaders) []byte {
	size := 1 + 8 + 2 + 2 + len(m.Attestation) + 2 + len(m.Witness) + len(m.Payload)
	b := make([]byte, size)
	b[0] = byte(FrameMessageWithHeaders)
	binary.BigEndian.PutUint64(b[1:9], m.MessageID)
	binary.BigEndian.PutUint16(b[9:11], m.Channel)
	binary.BigEndian.PutUint16(b[11:13], uint16(len(m.Attestation)))
	off := 13
	copy(b[off:], m.Attestation)
	off += len(m.Attestation)
	binary.BigEndian.PutUint16(b[off:off+2], uint16(len(m.Witness)))
	off += 2
	copy(b[off:], m.Witness)
	off += len(m.Witness)
	copy(b[off:], m.Payload)
	return b
}

// DecodeFrameType peeks the leading type byte of a frame.
func DecodeFrameType(b []byte) (FrameType, error) {
	if len(b) < 1 {
		return 0, ErrShortFrame
	}
	return FrameType(b[0]), nil
}

// DecodeSubscribe parses a whole SUBSCRIBE/UNSUBSCRIBE frame, skipping
// its leading type byte (DecodeFrameType only peeks at it).
func DecodeSubscribe(b []byte) (ChannelID, error) {
	if len(b) < 3 {
		return 0, ErrShortFrame
	}
	return binary.BigEndian.Uint16(b[1:3]), nil
}

// DecodeResponse parses a RESPONSE frame.
func DecodeResponse(b []byte) (ResponseFrame, error) {
	if len(b) < 2 {
		return ResponseFrame{}, ErrShortFrame
	}
	return ResponseFrame{OK: b[1] != 0, Text: string(b[2:])}, nil
}

// DecodeMessageWithHeaders parses a MESSAGE_WITH_HEADERS frame.
func DecodeMessageWithHeaders(b []byte) (MessageWithHeaders, error) {
	if len(b) < 13 {
		return MessageWithHeaders{}, ErrShortFrame
	}
	m := MessageWithHeaders{}
	m.MessageID = binary.BigEndian.Uint64(b[1:9])
	m.Channel = binary.BigEndian.Uint16(b[9:11])
	attLen := int(binary.BigEndian.Uint16(b[11:13]))
	off := 13
	if len(b) < off+attLen+2 {
		return MessageWithHeaders{}, ErrShortFrame
	}
	m.Attestation = append([]byte(nil), b[off:off+attLen]...)
	off += attLen
	witLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+witLen {
		return MessageWithHeaders{}, ErrShortFrame
	}
	m.Witness = append([]byte(nil), b[off:off+witLen]...)
	off += witLen
	m.Payload = append([]byte(nil), b[off:]...)
	return m, nil
}
