package radiusd

import (
	"sync/atomic"

	"github.com/feedad/kilusi-bill-sub000/pkg/metrics"
)

// Stats holds per-service request counters. All fields are manipulated with
// atomics; a Snapshot is safe to read while the servers run.
type Stats struct {
	RequestTotal int64
	Accept       int64
	Reject       int64
	Accounting   int64
	Unauthorized int64
	Errors       int64
}

func (s *Stats) incrTotal() {
	atomic.AddInt64(&s.RequestTotal, 1)
	metrics.IncrCounter(metrics.MetricsRadiusRequestTotal, 1)
}

func (s *Stats) incrAccept() {
	atomic.AddInt64(&s.Accept, 1)
	metrics.IncrCounter(metrics.MetricsRadiusAccept, 1)
}

func (s *Stats) incrReject() {
	atomic.AddInt64(&s.Reject, 1)
	metrics.IncrCounter(metrics.MetricsRadiusReject, 1)
}

func (s *Stats) incrAccounting() {
	atomic.AddInt64(&s.Accounting, 1)
	metrics.IncrCounter(metrics.MetricsRadiusAccounting, 1)
}

func (s *Stats) incrUnauthorized() {
	atomic.AddInt64(&s.Unauthorized, 1)
	metrics.IncrCounter(metrics.MetricsRadiusUnauthorized, 1)
}

func (s *Stats) incrErrors() {
	atomic.AddInt64(&s.Errors, 1)
}

// Snapshot returns a point-in-time copy of the counters
func (s *Stats) Snapshot() Stats {
	return Stats{
		RequestTotal: atomic.LoadInt64(&s.RequestTotal),
		Accept:       atomic.LoadInt64(&s.Accept),
		Reject:       atomic.LoadInt64(&s.Reject),
		Accounting:   atomic.LoadInt64(&s.Accounting),
		Unauthorized: atomic.LoadInt64(&s.Unauthorized),
		Errors:       atomic.LoadInt64(&s.Errors),
	}
}
