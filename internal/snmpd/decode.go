package snmpd

import (
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// DecodeValue converts a raw SNMP variable binding into a native Go value.
//
// Octet strings are not self-describing at this layer: the same OID can come
// back as text, a MAC address, or a big-endian counter depending on the
// device firmware, and Counter64 values are legally encoded in fewer than 8
// bytes. Classification is heuristic, see decodeOctets.
func DecodeValue(pdu gosnmp.SnmpPDU) interface{} {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return decodeOctets(b)
		}
		return pdu.Value
	case gosnmp.Integer:
		return int64(gosnmp.ToBigInt(pdu.Value).Int64())
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).Uint64()
	case gosnmp.Counter64:
		return gosnmp.ToBigInt(pdu.Value).Uint64()
	case gosnmp.IPAddress, gosnmp.ObjectIdentifier:
		return fmt.Sprintf("%v", pdu.Value)
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return nil
	default:
		return pdu.Value
	}
}

// decodeOctets classifies a raw octet string buffer:
//   - printable buffers longer than one byte are text, trailing NUL/control
//     bytes trimmed
//   - 6-byte non-printable buffers with at least 3 distinct values are
//     hardware addresses
//   - non-printable buffers of 1..8 bytes are big-endian unsigned integers
//     (variable-width Counter64 encodings)
//   - anything else passes through as raw bytes
func decodeOctets(b []byte) interface{} {
	if len(b) == 0 {
		return ""
	}

	if len(b) > 1 && isPrintable(b) {
		return strings.TrimRight(string(b), "\x00\r\n\t ")
	}

	if len(b) == 6 && distinctBytes(b) >= 3 {
		return formatMac(b)
	}

	if len(b) >= 1 && len(b) <= 8 {
		return bigEndianUint64(b)
	}

	return b
}

// bigEndianUint64 accumulates up to 8 bytes into an unsigned 64-bit value,
// accepting the short encodings devices emit for small Counter64 readings
func bigEndianUint64(b []byte) uint64 {
	var v uint64
	for _, octet := range b {
		v = v<<8 | uint64(octet)
	}
	return v
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c == 0 || c == '\r' || c == '\n' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func distinctBytes(b []byte) int {
	var seen [256]bool
	n := 0
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			n++
		}
	}
	return n
}

func formatMac(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":")
}

// ToUint64 coerces a decoded value into an unsigned counter where possible
func ToUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint:
		return uint64(n), true
	default:
		return 0, false
	}
}
