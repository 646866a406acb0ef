// Package buffer implements the owned/weak byte-region type used
// throughout the fabric: a contiguous allocation with two logical ends
// that can cover or uncover a header without copying the payload.
package buffer

import (
	"encoding/binary"
	"errors"
)

// ErrOutOfBounds is returned by the checked read/write accessors when the
// requested width does not fit between start and end (or capacity).
var ErrOutOfBounds = errors.New("buffer: access out of bounds")

// Buffer is an owned contiguous byte region. Zero value is an empty,
// unusable buffer; use New or NewFromBytes to obtain one.
//
// Invariant: 0 <= start <= end <= len(data) at all times.
type Buffer struct {
	data  []byte
	start int
	end   int
}

// New allocates a Buffer of the given capacity with start == end == 0.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewFromBytes takes ownership of b, covering it entirely ([0, len(b))).
// The caller must not use b after this call.
func NewFromBytes(b []byte) *Buffer {
	return &Buffer{data: b, start: 0, end: len(b)}
}

// Move transfers ownership of buf's storage to a new Buffer and zeroes
// buf, so the source can no longer be used to reach the same storage.
func Move(buf *Buffer) *Buffer {
	moved := &Buffer{data: buf.data, start: buf.start, end: buf.end}
	buf.data = nil
	buf.start = 0
	buf.end = 0
	return moved
}

// Cap returns the total capacity backing the buffer.
func (b *Buffer) Cap() int { return len(b.data) }

// Start returns the current start offset.
func (b *Buffer) Start() int { return b.start }

// End returns the current end offset.
func (b *Buffer) End() int { return b.end }

// Size returns the number of live bytes, end - start.
func (b *Buffer) Size() int { return b.end - b.start }

// Bytes returns the live region [start, end) as a slice aliasing the
// buffer's storage. Callers must not retain it past further mutation.
func (b *Buffer) Bytes() []byte { return b.data[b.start:b.end] }

// Cover advances start by n, shrinking the live region from the front.
// Used to strip a header that has already been parsed.
func (b *Buffer) Cover(n int) error {
	if b.start+n > b.end {
		return ErrOutOfBounds
	}
	b.start += n
	return nil
}

// Uncover retracts start by n, growing the live region to expose header
// bytes previously covered. Used to prepend a header without copying.
func (b *Buffer) Uncover(n int) error {
	if b.start-n < 0 {
		return ErrOutOfBounds
	}
	b.start -= n
	return nil
}

// CoverTail shrinks the live region from the back by n, used to drop a
// trailer (e.g. an AEAD tag) that has already been verified.
func (b *Buffer) CoverTail(n int) error {
	if b.end-n < b.start {
		return ErrOutOfBounds
	}
	b.end -= n
	return nil
}

// UncoverTail grows the live region from the back by n, up to capacity.
func (b *Buffer) UncoverTail(n int) error {
	if b.end+n > len(b.data) {
		return ErrOutOfBounds
	}
	b.end += n
	return nil
}

// WeakBuffer is a non-owning view over someone else's storage. It offers
// Size, Bytes, Start, End and value-returning Cover/Uncover; it has none
// of Buffer's integer read/write accessors and no tail cover/uncover.
type WeakBuffer struct {
	data  []byte
	start int
	end   int
}

// Weak returns a WeakBuffer viewing b's live region.
func (b *Buffer) Weak() WeakBuffer {
	return WeakBuffer{data: b.data, start: b.start, end: b.end}
}

// NewWeak wraps an arbitrary slice as a WeakBuffer covering it entirely.
func NewWeak(b []byte) WeakBuffer {
	return WeakBuffer{data: b, start: 0, end: len(b)}
}

func (w WeakBuffer) Size() int      { return w.end - w.start }
func (w WeakBuffer) Bytes() []byte  { return w.data[w.start:w.end] }
func (w WeakBuffer) Start() int     { return w.start }
func (w WeakBuffer) End() int       { return w.end }

func (w WeakBuffer) Cover(n int) (WeakBuffer, error) {
	if w.start+n > w.end {
		return w, ErrOutOfBounds
	}
	w.start += n
	return w, nil
}

func (w WeakBuffer) Uncover(n int) (WeakBuffer, error) {
	if w.start-n < 0 {
		return w, ErrOutOfBounds
	}
	w.start -= n
	return w, nil
}

// The LE/BE read/write helpers below cover widths 16, 32 and 64 (u8 has a
// single byte-order-free pair), each with a checked (error-returning)
// variant and an unchecked one. The unchecked variants index the backing
// storage directly: they do not check against end, and panic only when
// the access runs past capacity. The native-endian helpers at the end of
// the file come in checked form only.

func (b *Buffer) ReadUint8Unsafe(off int) uint8 { return b.data[b.start+off] }

func (b *Buffer) ReadUint8(off int) (uint8, error) {
	if b.start+off >= b.end {
		return 0, ErrOutOfBounds
	}
	return b.data[b.start+off], nil
}

func (b *Buffer) WriteUint8Unsafe(off int, v uint8) { b.data[b.start+off] = v }

func (b *Buffer) WriteUint8(off int, v uint8) error {
	if b.start+off >= b.end {
		return ErrOutOfBounds
	}
	b.data[b.start+off] = v
	return nil
}

func (b *Buffer) ReadUint16LEUnsafe(off int) uint16 {
	return binary.LittleEndian.Uint16(b.data[b.start+off:])
}

func (b *Buffer) ReadUint16LE(off int) (uint16, error) {
	if b.start+off+2 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.LittleEndian.Uint16(b.data[b.start+off:]), nil
}

func (b *Buffer) ReadUint16BEUnsafe(off int) uint16 {
	return binary.BigEndian.Uint16(b.data[b.start+off:])
}

func (b *Buffer) ReadUint16BE(off int) (uint16, error) {
	if b.start+off+2 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint16(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint16LEUnsafe(off int, v uint16) {
	binary.LittleEndian.PutUint16(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint16LE(off int, v uint16) error {
	if b.start+off+2 > b.end {
		return ErrOutOfBounds
	}
	binary.LittleEndian.PutUint16(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) WriteUint16BEUnsafe(off int, v uint16) {
	binary.BigEndian.PutUint16(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint16BE(off int, v uint16) error {
	if b.start+off+2 > b.end {
		return ErrOutOfBounds
	}
	binary.BigEndian.PutUint16(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) ReadUint32LEUnsafe(off int) uint32 {
	return binary.LittleEndian.Uint32(b.data[b.start+off:])
}

func (b *Buffer) ReadUint32LE(off int) (uint32, error) {
	if b.start+off+4 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.LittleEndian.Uint32(b.data[b.start+off:]), nil
}

func (b *Buffer) ReadUint32BEUnsafe(off int) uint32 {
	return binary.BigEndian.Uint32(b.data[b.start+off:])
}

func (b *Buffer) ReadUint32BE(off int) (uint32, error) {
	if b.start+off+4 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint32(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint32LEUnsafe(off int, v uint32) {
	binary.LittleEndian.PutUint32(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint32LE(off int, v uint32) error {
	if b.start+off+4 > b.end {
		return ErrOutOfBounds
	}
	binary.LittleEndian.PutUint32(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) WriteUint32BEUnsafe(off int, v uint32) {
	binary.BigEndian.PutUint32(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint32BE(off int, v uint32) error {
	if b.start+off+4 > b.end {
		return ErrOutOfBounds
	}
	binary.BigEndian.PutUint32(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) ReadUint64LEUnsafe(off int) uint64 {
	return binary.LittleEndian.Uint64(b.data[b.start+off:])
}

func (b *Buffer) ReadUint64LE(off int) (uint64, error) {
	if b.start+off+8 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.LittleEndian.Uint64(b.data[b.start+off:]), nil
}

func (b *Buffer) ReadUint64BEUnsafe(off int) uint64 {
	return binary.BigEndian.Uint64(b.data[b.start+off:])
}

func (b *Buffer) ReadUint64BE(off int) (uint64, error) {
	if b.start+off+8 > b.end {
		return 0, ErrOutOfBounds
	}
	return binary.BigEndian.Uint64(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint64LEUnsafe(off int, v uint64) {
	binary.LittleEndian.PutUint64(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint64LE(off int, v uint64) error {
	if b.start+off+8 > b.end {
		return ErrOutOfBounds
	}
	binary.LittleEndian.PutUint64(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) WriteUint64BEUnsafe(off int, v uint64) {
	binary.BigEndian.PutUint64(b.data[b.start+off:], v)
}

func (b *Buffer) WriteUint64BE(off int, v uint64) error {
	if b.start+off+8 > b.end {
		return ErrOutOfBounds
	}
	binary.BigEndian.PutUint64(b.data[b.start+off:], v)
	return nil
}

// Native-endian aliases: the platform byte order, matching the source's
// "native" read/write surface. All Marlin wire formats are explicitly
// big-endian (spec §4.1.1); native accessors exist only for in-memory
// scratch use.
var nativeEndian = binary.LittleEndian

func (b *Buffer) ReadUint8Native(off int) (uint8, error) { return b.ReadUint8(off) }

func (b *Buffer) WriteUint8Native(off int, v uint8) error { return b.WriteUint8(off, v) }

func (b *Buffer) ReadUint16Native(off int) (uint16, error) {
	if b.start+off+2 > b.end {
		return 0, ErrOutOfBounds
	}
	return nativeEndian.Uint16(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint16Native(off int, v uint16) error {
	if b.start+off+2 > b.end {
		return ErrOutOfBounds
	}
	nativeEndian.PutUint16(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) ReadUint32Native(off int) (uint32, error) {
	if b.start+off+4 > b.end {
		return 0, ErrOutOfBounds
	}
	return nativeEndian.Uint32(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint32Native(off int, v uint32) error {
	if b.start+off+4 > b.end {
		return ErrOutOfBounds
	}
	nativeEndian.PutUint32(b.data[b.start+off:], v)
	return nil
}

func (b *Buffer) ReadUint64Native(off int) (uint64, error) {
	if b.start+off+8 > b.end {
		return 0, ErrOutOfBounds
	}
	return nativeEndian.Uint64(b.data[b.start+off:]), nil
}

func (b *Buffer) WriteUint64Native(off int, v uint64) error {
	if b.start+off+8 > b.end {
		return ErrOutOfBounds
	}
	nativeEndian.PutUint64(b.data[b.start+off:], v)
	return nil
}
