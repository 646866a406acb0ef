package fabric

import "errors"

// ErrVersionMismatch is returned (and the datagram silently dropped by
// callers) when an inbound datagram's leading version byte does not
// match CurrentVersion, per spec component B.
var ErrVersionMismatch = errors.New("fabric: protocol version mismatch")

// CurrentVersion is the envelope-version byte the fabric layer prepends
// to every outbound datagram and strips/validates on every inbound one,
// before the datagram reaches any payload-specific decoder (spec
// component B). It versions the datagram envelope itself, independent
// of wire.Version, which versions the stream-protocol header nested
// inside that envelope; a future fabric envelope change (e.g. adding a
// payload-type byte ahead of non-stream traffic) bumps this without
// touching the stream wire format, and vice versa.
const CurrentVersion byte = 1

// StripVersion removes and validates the leading version byte.
func StripVersion(b []byte) ([]byte, error) {
	if len(b) < 1 {
		return nil, ErrVersionMismatch
	}
	if b[0] != CurrentVersion {
		return nil, ErrVersionMismatch
	}
	return b[1:], nil
}

// PrependVersion returns a new slice with CurrentVersion prepended.
func PrependVersion(b []byte) []byte {
	out := make([]byte, len(b)+1)
	out[0] = CurrentVersion
	copy(out[1:], b)
	return out
}
