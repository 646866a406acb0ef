package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// LengthPrefixedBridge speaks the length-prefixed wire shape of spec §6:
//
//	request:  | request_id (8 BE) | block_len (8 BE) | block_bytes |
//	response: | request_id (8 BE) | verdict (1) |
type LengthPrefixedBridge struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialLengthPrefixed connects to addr for length-prefixed verdict
// exchange.
func DialLengthPrefixed(addr string) (*LengthPrefixedBridge, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", addr, err)
	}
	return &LengthPrefixedBridge{conn: conn}, nil
}

func (b *LengthPrefixedBridge) Check(ctx context.Context, requestID uint64, block []byte) (Verdict, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = b.conn.SetDeadline(deadline)
	}

	req := make([]byte, 16+len(block))
	binary.BigEndian.PutUint64(req[0:8], requestID)
	binary.BigEndian.PutUint64(req[8:16], uint64(len(block)))
	copy(req[16:], block)
	if _, err := b.conn.Write(req); err != nil {
		return Verdict{}, fmt.Errorf("bridge: write request: %w", err)
	}

	resp := make([]byte, 9)
	if _, err := io.ReadFull(b.conn, resp); err != nil {
		return Verdict{}, fmt.Errorf("bridge: read response: %w", err)
	}
	gotID := binary.BigEndian.Uint64(resp[0:8])
	if gotID != requestID {
		return Verdict{}, fmt.Errorf("bridge: response request_id %d != sent %d", gotID, requestID)
	}
	return Verdict{OK: resp[8] != 0}, nil
}

func (b *LengthPrefixedBridge) Close() error {
	return b.conn.Close()
}
