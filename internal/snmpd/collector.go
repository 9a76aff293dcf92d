// Package snmpd polls NAS devices over SNMP for liveness and utilization
// telemetry: device identity, interface octet counters, and active PPPoE
// session enumeration.
package snmpd

import (
	"context"
	"fmt"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/gosnmp/gosnmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrDeviceUnreachable wraps SNMP timeouts; callers treat it as a per-target
// failure and keep the rest of the polling round going
var ErrDeviceUnreachable = errors.New("snmp device unreachable")

// Target identifies one SNMP endpoint with its credentials
type Target struct {
	Addr      string
	Port      uint16
	Community string
	Version   string // "1" or "2c"
}

// TargetFromNas builds a Target from a NAS row
func TargetFromNas(n *domain.NetNas) Target {
	port := uint16(161)
	if n.SnmpPort > 0 && n.SnmpPort < 65536 {
		port = uint16(n.SnmpPort)
	}
	return Target{
		Addr:      n.Ipaddr,
		Port:      port,
		Community: n.SnmpCommunity,
		Version:   n.SnmpVersion,
	}
}

// PDUValue is one decoded (oid, value) pair from a walk
type PDUValue struct {
	Oid   string
	Value interface{}
}

// Collector issues GET/WALK requests with bounded timeouts. It is stateless
// apart from the rate tracker; polls against independent targets can run
// concurrently.
type Collector struct {
	Timeout time.Duration
	Retries int

	rates *RateTracker
}

func NewCollector() *Collector {
	return &Collector{
		Timeout: 3 * time.Second,
		Retries: 1,
		rates:   NewRateTracker(),
	}
}

// Rates exposes the shared counter-rate tracker
func (c *Collector) Rates() *RateTracker {
	return c.rates
}

func (c *Collector) connect(ctx context.Context, target Target) (*gosnmp.GoSNMP, error) {
	version := gosnmp.Version2c
	if target.Version == "1" {
		version = gosnmp.Version1
	}
	params := &gosnmp.GoSNMP{
		Target:    target.Addr,
		Port:      target.Port,
		Community: target.Community,
		Version:   version,
		Timeout:   c.Timeout,
		Retries:   c.Retries,
		Context:   ctx,
	}
	if params.Port == 0 {
		params.Port = 161
	}
	if err := params.Connect(); err != nil {
		return nil, errors.Wrapf(ErrDeviceUnreachable, "%s: %v", target.Addr, err)
	}
	return params, nil
}

// Get fetches one or more scalar OIDs and returns decoded values keyed by OID
func (c *Collector) Get(ctx context.Context, target Target, oids []string) (map[string]interface{}, error) {
	if len(oids) == 0 {
		return map[string]interface{}{}, nil
	}
	conn, err := c.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	defer conn.Conn.Close()

	result, err := conn.Get(oids)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnreachable, "%s: get: %v", target.Addr, err)
	}

	values := make(map[string]interface{}, len(result.Variables))
	for _, v := range result.Variables {
		if decoded := DecodeValue(v); decoded != nil {
			values[v.Name] = decoded
		}
	}
	return values, nil
}

// Walk enumerates a subtree and returns decoded (oid, value) pairs.
// A decode failure on one binding skips that binding, not the walk.
func (c *Collector) Walk(ctx context.Context, target Target, rootOid string) ([]PDUValue, error) {
	conn, err := c.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	defer conn.Conn.Close()

	var results []PDUValue
	walkFn := func(pdu gosnmp.SnmpPDU) error {
		if decoded := DecodeValue(pdu); decoded != nil {
			results = append(results, PDUValue{Oid: pdu.Name, Value: decoded})
		}
		return nil
	}

	if conn.Version == gosnmp.Version1 {
		err = conn.Walk(rootOid, walkFn)
	} else {
		err = conn.BulkWalk(rootOid, walkFn)
	}
	if err != nil {
		return results, errors.Wrapf(ErrDeviceUnreachable, "%s: walk %s: %v", target.Addr, rootOid, err)
	}
	return results, nil
}

// Standard MIB-II / HOST-RESOURCES scalar OIDs
const (
	OidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	OidSysName   = ".1.3.6.1.2.1.1.5.0"
	OidSysUptime = ".1.3.6.1.2.1.1.3.0"

	oidHrProcessorLoad = ".1.3.6.1.2.1.25.3.3.1.2"
	oidHrStorageTable  = ".1.3.6.1.2.1.25.2.3.1"
)

// SystemInfo is the device identity and health overview
type SystemInfo struct {
	SysDescr      string
	SysName       string
	UptimeSeconds uint64
	CpuLoad       int // averaged hrProcessorLoad percent, -1 when unavailable
}

// GetSystemInfo reads the device overview. CPU load failures degrade to -1
// instead of failing the whole call.
func (c *Collector) GetSystemInfo(ctx context.Context, target Target) (*SystemInfo, error) {
	values, err := c.Get(ctx, target, []string{OidSysDescr, OidSysName, OidSysUptime})
	if err != nil {
		return nil, err
	}

	info := &SystemInfo{CpuLoad: -1}
	if v, ok := values[OidSysDescr].(string); ok {
		info.SysDescr = v
	}
	if v, ok := values[OidSysName].(string); ok {
		info.SysName = v
	}
	if v, ok := ToUint64(values[OidSysUptime]); ok {
		info.UptimeSeconds = v / 100 // TimeTicks are hundredths of a second
	}

	loads, err := c.Walk(ctx, target, oidHrProcessorLoad)
	if err != nil {
		zap.L().Debug("snmp cpu load walk failed",
			zap.String("namespace", "snmp"),
			zap.String("target", target.Addr),
			zap.Error(err),
		)
		return info, nil
	}
	var sum, n uint64
	for _, pv := range loads {
		if v, ok := ToUint64(pv.Value); ok {
			sum += v
			n++
		}
	}
	if n > 0 {
		info.CpuLoad = int(sum / n)
	}
	return info, nil
}

// StorageEntry is one row of the HOST-RESOURCES storage table
type StorageEntry struct {
	Index          int
	Description    string
	AllocationUnit uint64
	TotalUnits     uint64
	UsedUnits      uint64
}

// TotalBytes returns the entry capacity in bytes
func (e StorageEntry) TotalBytes() uint64 { return e.TotalUnits * e.AllocationUnit }

// UsedBytes returns the used capacity in bytes
func (e StorageEntry) UsedBytes() uint64 { return e.UsedUnits * e.AllocationUnit }

// GetStorage walks the hrStorage table for memory/disk utilization
func (c *Collector) GetStorage(ctx context.Context, target Target) ([]StorageEntry, error) {
	rows, err := c.Walk(ctx, target, oidHrStorageTable)
	if err != nil && len(rows) == 0 {
		return nil, err
	}

	byIndex := make(map[string]*StorageEntry)
	ordered := make([]string, 0, 8)
	get := func(idx string) *StorageEntry {
		e, ok := byIndex[idx]
		if !ok {
			e = &StorageEntry{}
			fmt.Sscanf(idx, "%d", &e.Index)
			byIndex[idx] = e
			ordered = append(ordered, idx)
		}
		return e
	}

	for _, pv := range rows {
		column, idx, ok := splitColumnIndex(pv.Oid, oidHrStorageTable)
		if !ok {
			continue
		}
		switch column {
		case 3: // hrStorageDescr
			if s, sok := pv.Value.(string); sok {
				get(idx).Description = s
			}
		case 4: // hrStorageAllocationUnits
			if v, vok := ToUint64(pv.Value); vok {
				get(idx).AllocationUnit = v
			}
		case 5: // hrStorageSize
			if v, vok := ToUint64(pv.Value); vok {
				get(idx).TotalUnits = v
			}
		case 6: // hrStorageUsed
			if v, vok := ToUint64(pv.Value); vok {
				get(idx).UsedUnits = v
			}
		}
	}

	entries := make([]StorageEntry, 0, len(ordered))
	for _, idx := range ordered {
		entries = append(entries, *byIndex[idx])
	}
	return entries, nil
}
