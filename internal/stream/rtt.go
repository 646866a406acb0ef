package stream

import (
	"time"

	"go.uber.org/atomic"
)

// rttEstimator implements the RFC 6298-style update from spec §4.1.3.
//
// smoothedRTT and minRTT are mutated only from the owning connection's
// event-loop goroutine but read cross-goroutine by the Prometheus
// collector (metrics.ConnGauges); publishedSmoothedRTT/publishedMinRTT
// mirror them through every Sample so that read is lock-free.
type rttEstimator struct {
	initialized bool
	smoothedRTT time.Duration
	rttVar      time.Duration
	minRTT      time.Duration
	latestRTT   time.Duration
	minRTO      time.Duration
	maxRTO      time.Duration

	publishedSmoothedRTT atomic.Duration
	publishedMinRTT      atomic.Duration
}

func newRTTEstimator(minRTO, maxRTO time.Duration) *rttEstimator {
	return &rttEstimator{minRTO: minRTO, maxRTO: maxRTO}
}

// Sample folds in a new RTT measurement r (time from send to ack).
func (e *rttEstimator) Sample(r time.Duration) {
	if r <= 0 {
		return
	}
	e.latestRTT = r
	if !e.initialized {
		e.smoothedRTT = r
		e.rttVar = r / 2
		e.minRTT = r
		e.initialized = true
		e.publish()
		return
	}
	if r < e.minRTT {
		e.minRTT = r
	}
	diff := e.smoothedRTT - r
	if diff < 0 {
		diff = -diff
	}
	e.rttVar = e.rttVar*3/4 + diff/4
	e.smoothedRTT = e.smoothedRTT*7/8 + r/8
	e.publish()
}

func (e *rttEstimator) publish() {
	e.publishedSmoothedRTT.Store(e.smoothedRTT)
	e.publishedMinRTT.Store(e.minRTT)
}

// RTO computes the retransmit timeout, floored at minRTO (spec: "floored
// at 1s") and unrelated to the doubling applied on repeated timer fires
// (see Connection.onRetransmitTimer).
func (e *rttEstimator) RTO() time.Duration {
	rto := e.smoothedRTT + 4*e.rttVar
	if rto < e.minRTO {
		rto = e.minRTO
	}
	if !e.initialized {
		rto = e.minRTO
	}
	return rto
}
