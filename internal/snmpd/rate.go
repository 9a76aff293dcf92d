package snmpd

import (
	"fmt"
	"time"

	"github.com/feedad/kilusi-bill-sub000/pkg/cache"
)

// Direction of an interface octet counter
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// counterSample is the cached baseline for one counter key
type counterSample struct {
	at      time.Time
	counter uint64
}

// Baselines older than this are treated as cold starts rather than producing
// a rate over an enormous elapsed window
const baselineTTL = 30 * time.Minute

// RateTracker derives point-in-time byte rates from successive counter
// samples. Baselines are in-memory only; losing them just means the next
// reading reports zero.
type RateTracker struct {
	samples *cache.TTLCache
}

func NewRateTracker() *RateTracker {
	return &RateTracker{samples: cache.NewTTLCache()}
}

func rateKey(host, community string, ifIndex int, dir Direction) string {
	return fmt.Sprintf("%s|%s|%d|%s", host, community, ifIndex, dir)
}

// Observe records the new counter reading and returns the derived rate in
// bytes per second since the previous reading.
//
// The first sample for a key yields 0 (no baseline). A negative delta means
// the device counter wrapped or reset; the rate clamps to 0 instead of going
// negative or absurdly large.
func (t *RateTracker) Observe(host, community string, ifIndex int, dir Direction, counter uint64, now time.Time) float64 {
	key := rateKey(host, community, ifIndex, dir)

	prev, ok := t.samples.GetIfFresh(key, baselineTTL)
	t.samples.Put(key, counterSample{at: now, counter: counter})
	if !ok {
		return 0
	}

	sample := prev.(counterSample)
	elapsed := now.Sub(sample.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	if counter < sample.counter {
		return 0
	}
	return float64(counter-sample.counter) / elapsed
}

// PruneStale drops baselines older than the freshness window
func (t *RateTracker) PruneStale() int {
	return t.samples.Prune(baselineTTL)
}
