package wire

import (
	"golang.org/x/exp/slices"
)

// interval is an inclusive, closed range of acked packet numbers.
type interval struct {
	lo, hi uint64
}

// AckRanges accumulates the set of packet numbers seen as acked,
// compactly, and can render itself as the run-length encoding carried
// in an ACK frame (spec §3, §4.1.4).
//
// Invariant: intervals are sorted ascending by lo, pairwise disjoint and
// non-adjacent (adjacent/overlapping runs are always merged), and
// largest == max(lo..hi) across all intervals once any packet has been
// added.
type AckRanges struct {
	intervals []interval
	hasAny    bool
	largest   uint64
}

// Add records packet number n as acked. Idempotent: a repeat Add(n) is a
// no-op.
func (a *AckRanges) Add(n uint64) {
	if !a.hasAny || n > a.largest {
		a.largest = n
		a.hasAny = true
	}

	// Find insertion point: first interval with hi >= n-1 (candidate for
	// merge on the left).
	i, _ := slices.BinarySearchFunc(a.intervals, n, func(iv interval, n uint64) int {
		if iv.hi+1 >= n {
			return 0
		}
		return -1
	})

	switch {
	case i < len(a.intervals) && a.intervals[i].lo <= n && n <= a.intervals[i].hi:
		// already covered
		return
	case i < len(a.intervals) && a.intervals[i].lo == n+1:
		// extend interval i on the left
		a.intervals[i].lo = n
	case i < len(a.intervals) && a.intervals[i].hi+1 == n:
		// extend interval i on the right, maybe merge with i+1
		a.intervals[i].hi = n
	default:
		// insert a fresh singleton interval at position i
		a.intervals = slices.Insert(a.intervals, i, interval{lo: n, hi: n})
	}

	a.mergeAround(i)
}

// mergeAround merges interval i with its neighbours if they are now
// adjacent or overlapping, after a mutation at index i.
func (a *AckRanges) mergeAround(i int) {
	for i+1 < len(a.intervals) && a.intervals[i].hi+1 >= a.intervals[i+1].lo {
		if a.intervals[i+1].hi > a.intervals[i].hi {
			a.intervals[i].hi = a.intervals[i+1].hi
		}
		a.intervals = slices.Delete(a.intervals, i+1, i+2)
	}
	for i > 0 && a.intervals[i-1].hi+1 >= a.intervals[i].lo {
		if a.intervals[i].hi > a.intervals[i-1].hi {
			a.intervals[i-1].hi = a.intervals[i].hi
		}
		a.intervals = slices.Delete(a.intervals, i, i+1)
		i--
	}
}

// Contains reports whether n has been added.
func (a *AckRanges) Contains(n uint64) bool {
	i, _ := slices.BinarySearchFunc(a.intervals, n, func(iv interval, n uint64) int {
		if iv.hi >= n {
			return 0
		}
		return -1
	})
	return i < len(a.intervals) && a.intervals[i].lo <= n
}

// Largest returns the greatest packet number ever added, and whether any
// packet number has been added at all.
func (a *AckRanges) Largest() (uint64, bool) {
	return a.largest, a.hasAny
}

// ToFrame renders the accumulated ranges as an AckFrame: the run of
// contiguous acked numbers ending at Largest, then the gap below it,
// then the next acked run, and so on down to the lowest recorded
// interval.
func (a *AckRanges) ToFrame(ackDelayMicros uint64) (AckFrame, bool) {
	if !a.hasAny || len(a.intervals) == 0 {
		return AckFrame{}, false
	}
	runs := make([]uint64, 0, len(a.intervals)*2-1)
	for i := len(a.intervals) - 1; i >= 0; i-- {
		iv := a.intervals[i]
		runs = append(runs, iv.hi-iv.lo+1)
		if i > 0 {
			prev := a.intervals[i-1]
			runs = append(runs, iv.lo-prev.hi-1)
		}
	}
	return AckFrame{LargestAcked: a.largest, AckDelayMicros: ackDelayMicros, Ranges: runs}, true
}

// FromFrame reconstructs an AckRanges from a received AckFrame, for
// processing a peer's selective-ack advertisement.
func FromFrame(f AckFrame) *AckRanges {
	a := &AckRanges{}
	if len(f.Ranges) == 0 {
		return a
	}
	top := f.LargestAcked
	for i, run := range f.Ranges {
		if run == 0 {
			continue
		}
		acked := i%2 == 0
		if acked {
			lo := top - run + 1
			for n := lo; n <= top; n++ {
				a.Add(n)
			}
			top = lo - 1
		} else {
			top -= run
		}
	}
	return a
}
