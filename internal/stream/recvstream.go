package stream

// RecvStream is the receive side of one stream within a connection. It
// reassembles out-of-order DATA packets into the contiguous byte stream
// the application reads (spec §3, §4.1.5 "Reassembly").
type RecvStream struct {
	id uint16

	size    *uint64 // set once a FIN (DATA+FIN or SKIP_STREAM) arrives
	done    bool
	recvOffset uint64 // contiguous prefix delivered so far
	readOffset uint64 // bytes handed to the application (== recvOffset here; no separate read cursor needed since delivery is push-based)

	// holds out-of-order fragments keyed by stream offset, capped per
	// spec §5's flow-control section.
	holds map[uint64][]byte
	cap   int
}

func newRecvStream(id uint16, holdCap int) *RecvStream {
	return &RecvStream{id: id, holds: make(map[uint64][]byte), cap: holdCap}
}

// drainContiguous drains any contiguous run starting at recvOffset and
// returns it for delivery to the application.
func (r *RecvStream) drainContiguous() []byte {
	var out []byte
	for {
		chunk, ok := r.holds[r.recvOffset]
		if !ok {
			break
		}
		delete(r.holds, r.recvOffset)
		out = append(out, chunk...)
		r.recvOffset += uint64(len(chunk))
	}
	return out
}

// onData accepts an inbound DATA (or DATA+FIN) fragment at the given
// offset, and returns any newly-deliverable contiguous bytes. If the
// out-of-order hold cap is exceeded, the fragment is dropped to be
// retransmitted by the peer (spec §5).
func (r *RecvStream) onData(offset uint64, payload []byte, fin bool) []byte {
	if r.done {
		return nil
	}
	if offset+uint64(len(payload)) <= r.recvOffset && !fin {
		return nil // fully duplicate
	}
	if offset > r.recvOffset {
		if len(r.holds) >= r.cap {
			return nil // over cap, dropped (spec §5 resource exhaustion)
		}
		r.holds[offset] = payload
	} else {
		// overlaps or starts at recvOffset: trim the already-seen prefix
		skip := r.recvOffset - offset
		if skip < uint64(len(payload)) {
			r.holds[offset+skip] = payload[skip:]
		}
	}
	delivered := r.drainContiguous()
	if fin {
		end := offset + uint64(len(payload))
		r.size = &end
	}
	if r.size != nil && r.recvOffset >= *r.size {
		r.done = true
	}
	return delivered
}

// skip abandons unacked/held data for this stream: drops all holds and
// advances recvOffset past size (or the last known offset), matching
// spec §4.1.5 skip_stream receiver behavior.
func (r *RecvStream) skip(lastOffset uint64) {
	r.holds = make(map[uint64][]byte)
	if lastOffset > r.recvOffset {
		r.recvOffset = lastOffset
	}
	r.done = true
	end := r.recvOffset
	r.size = &end
}
