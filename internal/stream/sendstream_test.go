package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// An out-of-order ack must not advance ackedOffset past a gap: acking
// item1 before item0 records the range but cannot evict item0, so a
// later requeueFromOffset(0) (as loss detection would issue) still
// finds it present.
func TestAckRangeOutOfOrderDoesNotAdvancePastGap(t *testing.T) {
	s := newSendStream(7)
	s.Enqueue(make([]byte, 1200)) // item0: [0, 1200)
	s.Enqueue(make([]byte, 1200)) // item1: [1200, 2400)

	_, _, _, ok := s.nextChunk(1200)
	require.True(t, ok)
	_, _, _, ok = s.nextChunk(1200)
	require.True(t, ok)
	require.Len(t, s.queue, 2)

	s.ackRange(1200, 1200) // item1 acked first
	require.Equal(t, uint64(0), s.ackedOffset)
	require.Len(t, s.queue, 2, "item0 must not be evicted by an ack that lands past a gap")

	s.requeueFromOffset(0)
	require.Equal(t, 0, s.queue[0].sentOffset, "item0 must still be present and requeued from its start")

	s.ackRange(0, 1200) // item0 finally acked, closing the gap
	require.Equal(t, uint64(2400), s.ackedOffset)
	require.Empty(t, s.queue)
}

func TestAckRangeMergesAdjacentRanges(t *testing.T) {
	s := newSendStream(7)
	s.Enqueue(make([]byte, 300))

	s.ackRange(200, 100) // [200,300)
	require.Equal(t, uint64(0), s.ackedOffset)
	require.Len(t, s.ackedRanges, 1)

	s.ackRange(0, 200) // [0,200) merges with [200,300) into [0,300)
	require.Equal(t, uint64(300), s.ackedOffset)
	require.Len(t, s.ackedRanges, 1)
	require.Empty(t, s.queue)
}
