package stream

import (
	"time"

	"go.uber.org/atomic"
)

// congestionState implements the NewReno variant described in spec
// §4.1.3: slow start doubling cwnd per RTT until ssthresh, congestion
// avoidance adding MSS^2/cwnd per ACK, and a single-RTT recovery window
// that suppresses repeated halving for a burst of losses.
//
// cwnd and bytesInFlight are mutated only from the owning connection's
// event-loop goroutine, but the Prometheus collector reads them from
// its own scrape goroutine (metrics.ConnGauges). publishedCwnd and
// publishedInFlight mirror the two fields through every mutation so
// that cross-goroutine read is lock-free and race-free.
type congestionState struct {
	mss      float64
	cwnd     float64
	ssthresh float64

	bytesInFlight int

	inRecovery        bool
	recoveryStartTime time.Time

	publishedCwnd     atomic.Float64
	publishedInFlight atomic.Int64
}

func newCongestionState(initialCwnd, mss int) *congestionState {
	c := &congestionState{
		mss:      float64(mss),
		cwnd:     float64(initialCwnd),
		ssthresh: 1 << 30, // effectively unbounded until the first loss
	}
	c.publish()
	return c
}

// publish mirrors cwnd/bytesInFlight into the atomics read by the
// metrics collector. Call after any mutation of either field.
func (c *congestionState) publish() {
	c.publishedCwnd.Store(c.cwnd)
	c.publishedInFlight.Store(int64(c.bytesInFlight))
}

// CanSend reports whether packetSize more bytes may go on the wire
// without exceeding cwnd (spec §4.1.3 "Sending gate").
func (c *congestionState) CanSend(packetSize int) bool {
	return float64(c.bytesInFlight+packetSize) <= c.cwnd
}

// OnSent accounts for a newly-sent packet.
func (c *congestionState) OnSent(size int) {
	c.bytesInFlight += size
	c.publish()
}

// ReleaseInFlight removes size acked-or-lost bytes from flight, floored
// at zero. Used outside OnAcked by loss detection and RTO handling,
// which release bytes without the NewReno cwnd growth an ACK implies.
func (c *congestionState) ReleaseInFlight(size int) {
	c.bytesInFlight -= size
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
	c.publish()
}

// OnAcked grows cwnd per NewReno and releases size bytes from flight.
func (c *congestionState) OnAcked(size int) {
	c.bytesInFlight -= size
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
	if c.cwnd < c.ssthresh {
		c.cwnd += float64(size) // slow start: ~doubles per RTT
	} else {
		c.cwnd += c.mss * float64(size) / c.cwnd // congestion avoidance
	}
	c.publish()
}

// EndRecoveryIfPast clears the recovery window once now is past its
// one-RTT duration.
func (c *congestionState) EndRecoveryIfPast(now time.Time, rtt time.Duration) {
	if c.inRecovery && now.Sub(c.recoveryStartTime) >= rtt {
		c.inRecovery = false
	}
}

// minCwnd is the floor cwnd may never drop below (spec §8 boundary:
// "cwnd never decreases below MSS").
func (c *congestionState) minCwnd() float64 { return c.mss }

// OnLoss halves cwnd to ssthresh and opens a one-RTT recovery window,
// unless we're already inside one (spec §4.1.3: "further losses do not
// re-halve").
func (c *congestionState) OnLoss(now time.Time) {
	if c.inRecovery {
		return
	}
	c.ssthresh = c.cwnd / 2
	if c.ssthresh < c.minCwnd() {
		c.ssthresh = c.minCwnd()
	}
	c.cwnd = c.ssthresh
	c.inRecovery = true
	c.recoveryStartTime = now
	c.publish()
}
