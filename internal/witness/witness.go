// Package witness implements the loop-prevention filter of spec §4.4: a
// small Bloom-style marker appended to pubsub messages so a relay can
// tell "have I already forwarded this through this node's public key"
// without keeping per-message peer lists.
package witness

import (
	"encoding/binary"
	"fmt"
)

// Witnesser is the capability interface spec §4.4 describes: witness
// marks a node's own public key into the filter before forwarding,
// contains checks whether a key is already marked (loop detection), and
// the two size hooks mirror attest.Attester's framing contract.
type Witnesser interface {
	WitnessSize() int
	// Witness returns filter with the node identified by pubkey marked
	// into it, allocating a fresh filter if filter is nil/empty.
	Witness(filter []byte, pubkey []byte) ([]byte, error)
	// Contains reports whether pubkey is already marked into filter.
	Contains(filter []byte, pubkey []byte) (bool, error)
	ParseSize(buf []byte) (int, error)
}

// lpfSize is 2 bytes of length tag + 32 bytes (256 bits) of filter.
const lpfSize = 34

// LpfBloomWitnesser is spec's default witness: a fixed 256-bit filter
// with 8 raw bit positions set directly from a public key's bytes (not
// a general hashed-bloom scheme -- each of the first 8 key bytes, read
// as 0..255, selects one bit of the 256-bit field).
type LpfBloomWitnesser struct{}

func (LpfBloomWitnesser) WitnessSize() int { return lpfSize }

func (LpfBloomWitnesser) Witness(filter []byte, pubkey []byte) ([]byte, error) {
	out := make([]byte, lpfSize)
	if len(filter) == lpfSize {
		copy(out, filter)
	} else if len(filter) != 0 {
		return nil, fmt.Errorf("witness: bad filter length %d", len(filter))
	} else {
		binary.BigEndian.PutUint16(out[0:2], lpfSize)
	}
	if len(pubkey) < 8 {
		return nil, fmt.Errorf("witness: pubkey too short: %d bytes", len(pubkey))
	}
	bits := out[2:]
	for i := 0; i < 8; i++ {
		bitpos := int(pubkey[i]) % 256
		bits[bitpos/8] |= 1 << uint(bitpos%8)
	}
	return out, nil
}

func (LpfBloomWitnesser) Contains(filter []byte, pubkey []byte) (bool, error) {
	if len(filter) != lpfSize {
		return false, fmt.Errorf("witness: bad filter length %d", len(filter))
	}
	if len(pubkey) < 8 {
		return false, fmt.Errorf("witness: pubkey too short: %d bytes", len(pubkey))
	}
	bits := filter[2:]
	for i := 0; i < 8; i++ {
		bitpos := int(pubkey[i]) % 256
		if bits[bitpos/8]&(1<<uint(bitpos%8)) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (LpfBloomWitnesser) ParseSize(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("witness: short buffer for length tag")
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	if n != lpfSize {
		return 0, fmt.Errorf("witness: unexpected length tag %d", n)
	}
	return n, nil
}

// LegacyWitnesser reads the untagged 32-byte filter form predecessor
// nodes emit, distinguishing it from LpfBloomWitnesser purely by size:
// it accepts on receive but always emits the tagged 34-byte form, so a
// mixed-version mesh converges on the new framing.
type LegacyWitnesser struct {
	LpfBloomWitnesser
}

const legacySize = 32

func (LegacyWitnesser) ParseSize(buf []byte) (int, error) {
	if len(buf) < legacySize {
		return 0, fmt.Errorf("witness: short buffer for legacy filter")
	}
	return legacySize, nil
}

func (w LegacyWitnesser) Contains(filter []byte, pubkey []byte) (bool, error) {
	if len(filter) == legacySize {
		return w.LpfBloomWitnesser.Contains(append([]byte{0, 0}, filter...), pubkey)
	}
	return w.LpfBloomWitnesser.Contains(filter, pubkey)
}

func (w LegacyWitnesser) Witness(filter []byte, pubkey []byte) ([]byte, error) {
	if len(filter) == legacySize {
		tagged := make([]byte, lpfSize)
		binary.BigEndian.PutUint16(tagged[0:2], lpfSize)
		copy(tagged[2:], filter)
		filter = tagged
	}
	return w.LpfBloomWitnesser.Witness(filter, pubkey)
}
