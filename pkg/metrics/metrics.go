// Package metrics keeps operational gauges and counters, persisting samples
// into an embedded tstorage time-series store under the application workdir.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

// Metric names used across the radius and isolir services
const (
	MetricsRadiusRequestTotal = "radius_request_total"
	MetricsRadiusAccept       = "radius_accept"
	MetricsRadiusReject       = "radius_reject"
	MetricsRadiusUnauthorized = "radius_unauthorized"
	MetricsRadiusAccounting   = "radius_accounting"
	MetricsRadiusOnline       = "radius_online"
	MetricsRadiusOffline      = "radius_offline"
	MetricsIsolirSuspended    = "isolir_suspended"
	MetricsIsolirRestored     = "isolir_restored"
	MetricsIsolirSweepErrors  = "isolir_sweep_errors"
	MetricsSnmpPollErrors     = "snmp_poll_errors"
	MetricsSystemCpuuse       = "system_cpuuse"
	MetricsSystemMemuse       = "system_memuse"
	MetricsProcessCpuuse      = "process_cpuuse"
	MetricsProcessMemuse      = "process_memuse"
)

var (
	mu       sync.Mutex
	storage  tstorage.Storage
	counters = make(map[string]int64)
)

// InitMetrics opens the tstorage data directory under workdir.
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30*24*time.Hour),
	)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

// SetGauge records an instantaneous value for name.
func SetGauge(name string, value int64) {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return
	}
	_ = s.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
	}})
}

// IncrCounter adds delta to the in-process counter for name and records the
// running total as a sample.
func IncrCounter(name string, delta int64) int64 {
	mu.Lock()
	counters[name] += delta
	total := counters[name]
	s := storage
	mu.Unlock()
	if s != nil {
		_ = s.InsertRows([]tstorage.Row{{
			Metric:    name,
			DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(total)},
		}})
	}
	return total
}

// CounterValue returns the current in-process counter total for name.
func CounterValue(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	return counters[name]
}

// Select reads samples for name between start and end unix seconds.
func Select(name string, start, end int64) ([]*tstorage.DataPoint, error) {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return nil, nil
	}
	return s.Select(name, nil, start, end)
}

// Close flushes and closes the underlying store.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
