// Package sockaddr implements SocketAddress: a hashable, orderable,
// wire-serializable IPv4 address + port, per spec §3.
package sockaddr

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const familyIPv4 = 2

// Size is the wire-serialized length: 2 family + 4 address + 2 port.
const Size = 8

// SocketAddress is an IPv4 address and port. The zero value is the
// "unknown" sentinel (0.0.0.0:0).
type SocketAddress struct {
	addr [4]byte
	port uint16
}

// Unknown is the sentinel zero address.
var Unknown = SocketAddress{}

// New builds a SocketAddress from a 4-byte IPv4 address and a port.
func New(addr [4]byte, port uint16) SocketAddress {
	return SocketAddress{addr: addr, port: port}
}

// FromUDPAddr converts a *net.UDPAddr with an IPv4 address.
func FromUDPAddr(u *net.UDPAddr) (SocketAddress, error) {
	ip4 := u.IP.To4()
	if ip4 == nil {
		return SocketAddress{}, fmt.Errorf("sockaddr: not an IPv4 address: %v", u.IP)
	}
	var a SocketAddress
	copy(a.addr[:], ip4)
	a.port = uint16(u.Port)
	return a, nil
}

// FromString parses "a.b.c.d:port".
func FromString(s string) (SocketAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return SocketAddress{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return SocketAddress{}, fmt.Errorf("sockaddr: invalid address %q", host)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return SocketAddress{}, fmt.Errorf("sockaddr: not IPv4: %q", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return SocketAddress{}, fmt.Errorf("sockaddr: invalid port %q: %w", portStr, err)
	}
	var a SocketAddress
	copy(a.addr[:], ip4)
	a.port = uint16(port)
	return a, nil
}

// String renders "a.b.c.d:port".
func (a SocketAddress) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d.%d:%d", a.addr[0], a.addr[1], a.addr[2], a.addr[3], a.port)
	return sb.String()
}

// UDPAddr converts to a *net.UDPAddr for use with the datagram fiber.
func (a SocketAddress) UDPAddr() *net.UDPAddr {
	ip := make(net.IP, 4)
	copy(ip, a.addr[:])
	return &net.UDPAddr{IP: ip, Port: int(a.port)}
}

// Port returns the port component.
func (a SocketAddress) Port() uint16 { return a.port }

// IsUnknown reports whether a is the zero sentinel.
func (a SocketAddress) IsUnknown() bool { return a == Unknown }

// Less gives SocketAddress a total order, for use as a sorted/ordered map
// key (e.g. deterministic standby-set iteration in pubsub churn).
func (a SocketAddress) Less(b SocketAddress) bool {
	for i := range a.addr {
		if a.addr[i] != b.addr[i] {
			return a.addr[i] < b.addr[i]
		}
	}
	return a.port < b.port
}

// Serialize writes the 8-byte wire form: 2-byte family (BE) + 4-byte
// address + 2-byte port (BE).
func (a SocketAddress) Serialize() [Size]byte {
	var out [Size]byte
	binary.BigEndian.PutUint16(out[0:2], familyIPv4)
	copy(out[2:6], a.addr[:])
	binary.BigEndian.PutUint16(out[6:8], a.port)
	return out
}

// Deserialize parses the 8-byte wire form produced by Serialize.
func Deserialize(b []byte) (SocketAddress, error) {
	if len(b) != Size {
		return SocketAddress{}, fmt.Errorf("sockaddr: wire form must be %d bytes, got %d", Size, len(b))
	}
	var a SocketAddress
	copy(a.addr[:], b[2:6])
	a.port = binary.BigEndian.Uint16(b[6:8])
	return a, nil
}
