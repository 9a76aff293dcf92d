package snmpd

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/feedad/kilusi-bill-sub000/pkg/metrics"
	"go.uber.org/zap"
)

// Interface table OIDs. The 64-bit HC counters live in ifXTable; not every
// generic ONU/router implements them, so collection falls back to the 32-bit
// ifTable columns per interface.
const (
	oidIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	oidIfType        = ".1.3.6.1.2.1.2.2.1.3"
	oidIfOperStatus  = ".1.3.6.1.2.1.2.2.1.8"
	oidIfInOctets    = ".1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets   = ".1.3.6.1.2.1.2.2.1.16"
	oidIfHCInOctets  = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets = ".1.3.6.1.2.1.31.1.1.1.10"
)

// Keep counter GETs small enough that request and response PDUs stay under
// typical UDP payload limits: 2 OIDs per interface, 20 interfaces per batch.
const ifaceBatchSize = 20

// Role is the semantic classification of an interface
type Role string

const (
	RolePhysical Role = "physical"
	RolePppoe    Role = "pppoe"
	RoleHotspot  Role = "hotspot"
	RoleOther    Role = "other"
)

// Interface is one decoded row of the interface table with derived rates
type Interface struct {
	Index      int
	Name       string
	Role       Role
	PppoeUser  string // unwrapped from <pppoe-...> names
	IfType     int
	OperUp     bool
	InOctets   uint64
	OutOctets  uint64
	InRateBps  float64
	OutRateBps float64
	Counter64  bool // whether HC counters were used
}

// ClassifyInterface derives the interface role from the numeric type code and
// the name, unwrapping PPPoE session names of the form "<pppoe-username>".
func ClassifyInterface(ifType int, name string) (Role, string) {
	lower := strings.ToLower(name)

	if strings.HasPrefix(lower, "<pppoe-") || strings.HasPrefix(lower, "pppoe-") {
		return RolePppoe, UnwrapSessionName(name)
	}
	// ppp(23) interfaces are PPPoE sessions even without the name prefix
	if ifType == 23 {
		return RolePppoe, UnwrapSessionName(name)
	}
	if strings.Contains(lower, "hotspot") || strings.HasPrefix(lower, "<hs-") {
		return RoleHotspot, ""
	}
	// ethernetCsmacd(6) and ieee80211(71) are physical ports
	if ifType == 6 || ifType == 71 {
		return RolePhysical, ""
	}
	if strings.HasPrefix(lower, "ether") || strings.HasPrefix(lower, "sfp") ||
		strings.HasPrefix(lower, "wlan") {
		return RolePhysical, ""
	}
	return RoleOther, ""
}

// UnwrapSessionName recovers the username embedded in a dynamic session
// interface name: "<pppoe-budi>" yields "budi".
func UnwrapSessionName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	for _, prefix := range []string{"pppoe-", "ppp-", "hs-"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			return s[len(prefix):]
		}
	}
	return s
}

// InterfaceReport is the outcome of one interface polling round; partial
// data plus an error count rather than all-or-nothing
type InterfaceReport struct {
	Interfaces []Interface
	Errors     int
}

// CollectInterfaces walks the interface table, batches counter reads, and
// derives rates against the tracker baselines. One failed batch increments
// the error count and the round continues.
func (c *Collector) CollectInterfaces(ctx context.Context, target Target) (*InterfaceReport, error) {
	report := &InterfaceReport{}

	descrRows, err := c.Walk(ctx, target, oidIfDescr)
	if err != nil && len(descrRows) == 0 {
		return nil, err
	}

	byIndex := make(map[int]*Interface)
	indexes := make([]int, 0, len(descrRows))
	for _, pv := range descrRows {
		_, idxStr, ok := splitColumnIndex(pv.Oid, oidIfDescr)
		if !ok {
			continue
		}
		idx, convErr := strconv.Atoi(idxStr)
		if convErr != nil {
			continue
		}
		name, _ := pv.Value.(string)
		iface := &Interface{Index: idx, Name: name}
		byIndex[idx] = iface
		indexes = append(indexes, idx)
	}

	if typeRows, walkErr := c.Walk(ctx, target, oidIfType); walkErr == nil {
		for _, pv := range typeRows {
			_, idxStr, ok := splitColumnIndex(pv.Oid, oidIfType)
			if !ok {
				continue
			}
			idx, _ := strconv.Atoi(idxStr)
			if iface, found := byIndex[idx]; found {
				if v, vok := ToUint64(pv.Value); vok {
					iface.IfType = int(v)
				}
			}
		}
	} else {
		report.Errors++
	}

	if statusRows, walkErr := c.Walk(ctx, target, oidIfOperStatus); walkErr == nil {
		for _, pv := range statusRows {
			_, idxStr, ok := splitColumnIndex(pv.Oid, oidIfOperStatus)
			if !ok {
				continue
			}
			idx, _ := strconv.Atoi(idxStr)
			if iface, found := byIndex[idx]; found {
				if v, vok := ToUint64(pv.Value); vok {
					iface.OperUp = v == 1
				}
			}
		}
	} else {
		report.Errors++
	}

	for _, iface := range byIndex {
		iface.Role, iface.PppoeUser = ClassifyInterface(iface.IfType, iface.Name)
	}

	now := time.Now()
	for start := 0; start < len(indexes); start += ifaceBatchSize {
		end := start + ifaceBatchSize
		if end > len(indexes) {
			end = len(indexes)
		}
		if err := c.collectCounterBatch(ctx, target, byIndex, indexes[start:end], now); err != nil {
			report.Errors++
			metrics.IncrCounter(metrics.MetricsSnmpPollErrors, 1)
			zap.L().Warn("interface counter batch failed",
				zap.String("namespace", "snmp"),
				zap.String("target", target.Addr),
				zap.Error(err),
			)
		}
	}

	report.Interfaces = make([]Interface, 0, len(indexes))
	for _, idx := range indexes {
		report.Interfaces = append(report.Interfaces, *byIndex[idx])
	}
	return report, nil
}

// collectCounterBatch reads in/out octet counters for a batch of interfaces,
// preferring 64-bit HC counters and falling back to 32-bit per interface when
// the device reports no such object
func (c *Collector) collectCounterBatch(ctx context.Context, target Target, byIndex map[int]*Interface, batch []int, now time.Time) error {
	oids := make([]string, 0, len(batch)*2)
	for _, idx := range batch {
		oids = append(oids,
			oidIfHCInOctets+"."+strconv.Itoa(idx),
			oidIfHCOutOctets+"."+strconv.Itoa(idx),
		)
	}

	values, err := c.Get(ctx, target, oids)
	if err != nil {
		return err
	}

	for _, idx := range batch {
		iface := byIndex[idx]

		in, inOk := ToUint64(values[oidIfHCInOctets+"."+strconv.Itoa(idx)])
		out, outOk := ToUint64(values[oidIfHCOutOctets+"."+strconv.Itoa(idx)])
		iface.Counter64 = inOk || outOk

		if !inOk && !outOk {
			// device has no HC columns for this row; retry with 32-bit counters
			fallback, fbErr := c.Get(ctx, target, []string{
				oidIfInOctets + "." + strconv.Itoa(idx),
				oidIfOutOctets + "." + strconv.Itoa(idx),
			})
			if fbErr != nil {
				return fbErr
			}
			in, inOk = ToUint64(fallback[oidIfInOctets+"."+strconv.Itoa(idx)])
			out, outOk = ToUint64(fallback[oidIfOutOctets+"."+strconv.Itoa(idx)])
		}

		if inOk {
			iface.InOctets = in
			iface.InRateBps = c.rates.Observe(target.Addr, target.Community, idx, DirectionIn, in, now)
		}
		if outOk {
			iface.OutOctets = out
			iface.OutRateBps = c.rates.Observe(target.Addr, target.Community, idx, DirectionOut, out, now)
		}
	}
	return nil
}

// ActiveSessions returns the usernames of PPPoE sessions present in the
// interface table, the cheap liveness source for "is this subscriber online"
func (c *Collector) ActiveSessions(ctx context.Context, target Target) ([]string, error) {
	rows, err := c.Walk(ctx, target, oidIfDescr)
	if err != nil && len(rows) == 0 {
		return nil, err
	}
	var users []string
	for _, pv := range rows {
		name, ok := pv.Value.(string)
		if !ok {
			continue
		}
		if role, user := ClassifyInterface(0, name); role == RolePppoe && user != "" {
			users = append(users, user)
		}
	}
	return users, nil
}

// splitColumnIndex splits a table row OID into (column, index) relative to
// the table entry root, e.g. root=.1.3.6.1.2.1.25.2.3.1 oid=root.3.65536
// yields (3, "65536"). Column-root OIDs like oidIfDescr already carry the
// column, so the column return is 0 and index is the remainder.
func splitColumnIndex(oid, root string) (int, string, bool) {
	if !strings.HasPrefix(oid, root+".") {
		return 0, "", false
	}
	rest := strings.TrimPrefix(oid, root+".")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) == 1 {
		return 0, parts[0], true
	}
	column, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	return column, parts[1], true
}
