// Package wire implements the stream-transport packet header and
// ack-range encoding from spec §4.1.1 and §4.1.4. All integers are
// big-endian on the wire.
package wire

import (
	"encoding/binary"
	"errors"
)

// PacketType is the single-byte type field of a stream packet.
type PacketType uint8

const (
	TypeData       PacketType = 0
	TypeDataFin    PacketType = 1
	TypeAck        PacketType = 2
	TypeDial       PacketType = 3
	TypeDialConf   PacketType = 4
	TypeConf       PacketType = 5
	TypeRst        PacketType = 6
	TypeSkipStream PacketType = 7
	TypeFlushStream PacketType = 8
	TypeFlushConf  PacketType = 9
)

// Version is the stream-protocol header's own version byte (the first
// field of Header, offset 0 of the 28-byte layout below), distinct from
// fabric.CurrentVersion, the outer envelope-version byte the versioning
// fiber (spec component B) prepends ahead of the whole datagram. Both
// currently read as 1; they are independent because Header's own
// version field matches the original stream protocol's on-wire format
// byte-for-byte, while the fabric envelope byte versions delivery of
// arbitrary fabric payloads, stream packets being only one kind.
const Version byte = 1

// HeaderLen is the fixed 28-byte header (spec §4.1.1), with no reserved
// or pad bytes:
//   version(1) type(1) src_conn_id(4) dst_conn_id(4) stream_id(2)
//   packet_number(8) stream_offset(8)
const HeaderLen = 1 + 1 + 4 + 4 + 2 + 8 + 8

var (
	ErrShortHeader  = errors.New("wire: packet shorter than header")
	ErrBadVersion   = errors.New("wire: version mismatch")
	ErrEmptyRanges  = errors.New("wire: empty ack ranges")
)

// Header is the parsed fixed portion of a stream packet. For TypeAck
// packets, StreamOffset is unused; the ack payload follows the header
// (see AckFrame).
type Header struct {
	Type         PacketType
	SrcConnID    uint32
	DstConnID    uint32
	StreamID     uint16
	PacketNumber uint64
	StreamOffset uint64
}

// Encode writes ver followed by the header into a fresh byte slice sized
// to HeaderLen+len(payload), with payload appended after the header.
func Encode(h Header, payload []byte) []byte {
	out := make([]byte, HeaderLen+len(payload))
	out[0] = Version
	out[1] = byte(h.Type)
	binary.BigEndian.PutUint32(out[2:6], h.SrcConnID)
	binary.BigEndian.PutUint32(out[6:10], h.DstConnID)
	binary.BigEndian.PutUint16(out[10:12], h.StreamID)
	binary.BigEndian.PutUint64(out[12:20], h.PacketNumber)
	binary.BigEndian.PutUint64(out[20:28], h.StreamOffset)
	copy(out[HeaderLen:], payload)
	return out
}

// Decode expects buf to still carry the leading version byte (the
// caller strips the outer fabric version byte separately; this is the
// wire.Version byte Encode writes at out[0]), and parses it into a
// Header plus the remaining payload slice (aliases buf).
func Decode(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderLen {
		return Header{}, nil, ErrShortHeader
	}
	if buf[0] != Version {
		return Header{}, nil, ErrBadVersion
	}
	h := Header{
		Type:         PacketType(buf[1]),
		SrcConnID:    binary.BigEndian.Uint32(buf[2:6]),
		DstConnID:    binary.BigEndian.Uint32(buf[6:10]),
		StreamID:     binary.BigEndian.Uint16(buf[10:12]),
		PacketNumber: binary.BigEndian.Uint64(buf[12:20]),
		StreamOffset: binary.BigEndian.Uint64(buf[20:28]),
	}
	return h, buf[HeaderLen:], nil
}

// AckFrame is the ACK-specific payload carried in place of stream_offset
// semantics for TypeAck packets (spec §4.1.4).
type AckFrame struct {
	LargestAcked   uint64
	AckDelayMicros uint64
	// Ranges alternates contiguous run lengths starting with an acked
	// run ending at LargestAcked, then a gap, then acked, etc. Must be
	// non-empty.
	Ranges []uint64
}

// EncodeAck serializes an AckFrame: largest_acked(8) ack_delay(8)
// num_ranges(2) then num_ranges varint-free uint64 run lengths.
func EncodeAck(f AckFrame) ([]byte, error) {
	if len(f.Ranges) == 0 {
		return nil, ErrEmptyRanges
	}
	out := make([]byte, 8+8+2+8*len(f.Ranges))
	binary.BigEndian.PutUint64(out[0:8], f.LargestAcked)
	binary.BigEndian.PutUint64(out[8:16], f.AckDelayMicros)
	binary.BigEndian.PutUint16(out[16:18], uint16(len(f.Ranges)))
	for i, r := range f.Ranges {
		binary.BigEndian.PutUint64(out[18+8*i:26+8*i], r)
	}
	return out, nil
}

// DecodeAck is the inverse of EncodeAck.
func DecodeAck(buf []byte) (AckFrame, error) {
	if len(buf) < 18 {
		return AckFrame{}, ErrShortHeader
	}
	f := AckFrame{
		LargestAcked:   binary.BigEndian.Uint64(buf[0:8]),
		AckDelayMicros: binary.BigEndian.Uint64(buf[8:16]),
	}
	n := int(binary.BigEndian.Uint16(buf[16:18]))
	if n == 0 {
		return AckFrame{}, ErrEmptyRanges
	}
	if len(buf) < 18+8*n {
		return AckFrame{}, ErrShortHeader
	}
	f.Ranges = make([]uint64, n)
	for i := range f.Ranges {
		f.Ranges[i] = binary.BigEndian.Uint64(buf[18+8*i : 26+8*i])
	}
	return f, nil
}
