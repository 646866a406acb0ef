package pubsub

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// ContentMessageID derives spec §4.2.1's content-addressed message id: a
// 64-bit truncation of the BLAKE2b-256 digest of the payload.
func ContentMessageID(payload []byte) uint64 {
	sum := blake2b.Sum256(payload)
	return binary.BigEndian.Uint64(sum[:8])
}

// RandomMessageID assigns an origin-side id when the message is not
// naturally content-addressable (spec §4.2.1 "or a randomly assigned id
// at the origin").
func RandomMessageID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}
