package snmpd

import (
	"testing"

	"github.com/gosnmp/gosnmp"
)

func TestDecodeOctetsText(t *testing.T) {
	got := decodeOctets([]byte("RouterOS RB750Gr3\x00\x00"))
	if got != "RouterOS RB750Gr3" {
		t.Errorf("got %q, want trailing NULs trimmed", got)
	}

	got = decodeOctets([]byte("ether1\r\n"))
	if got != "ether1" {
		t.Errorf("got %q, want CRLF trimmed", got)
	}
}

func TestDecodeOctetsMac(t *testing.T) {
	got := decodeOctets([]byte{0xdc, 0x2c, 0x6e, 0x01, 0x02, 0x03})
	if got != "dc:2c:6e:01:02:03" {
		t.Errorf("got %v, want MAC formatting", got)
	}
}

func TestDecodeOctetsCounter(t *testing.T) {
	// single byte
	if got := decodeOctets([]byte{0x05}); got != uint64(5) {
		t.Errorf("1-byte counter = %v, want 5", got)
	}
	// 4-byte big endian
	if got := decodeOctets([]byte{0x00, 0x00, 0x01, 0x00}); got != uint64(256) {
		t.Errorf("4-byte counter = %v, want 256", got)
	}
	// full-width Counter64; all bytes equal so it cannot classify as a MAC
	// anyway, but non-printable 8-byte buffers are always counters
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if got := decodeOctets(b); got != uint64(0x0102030405060708) {
		t.Errorf("8-byte counter = %v", got)
	}
}

func TestDecodeOctetsLowEntropySixBytesIsCounter(t *testing.T) {
	// 6 bytes with fewer than 3 distinct values is a counter, not a MAC
	got := decodeOctets([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01})
	if got != uint64(1) {
		t.Errorf("got %v, want 1", got)
	}
}

func TestDecodeOctetsEmpty(t *testing.T) {
	if got := decodeOctets(nil); got != "" {
		t.Errorf("got %v, want empty string", got)
	}
}

func TestDecodeValueNumericTypes(t *testing.T) {
	if got := DecodeValue(gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: 42}); got != int64(42) {
		t.Errorf("Integer = %v", got)
	}
	if got := DecodeValue(gosnmp.SnmpPDU{Type: gosnmp.Counter32, Value: uint(7)}); got != uint64(7) {
		t.Errorf("Counter32 = %v", got)
	}
	if got := DecodeValue(gosnmp.SnmpPDU{Type: gosnmp.NoSuchInstance}); got != nil {
		t.Errorf("NoSuchInstance = %v, want nil", got)
	}
}

func TestToUint64(t *testing.T) {
	if v, ok := ToUint64(int64(9)); !ok || v != 9 {
		t.Errorf("int64: %v %v", v, ok)
	}
	if _, ok := ToUint64(int64(-1)); ok {
		t.Error("negative int64 must not coerce")
	}
	if _, ok := ToUint64("text"); ok {
		t.Error("string must not coerce")
	}
}
