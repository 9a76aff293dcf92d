package snmpd

import (
	"testing"
	"time"
)

func TestClassifyInterface(t *testing.T) {
	tests := []struct {
		ifType int
		name   string
		role   Role
		user   string
	}{
		{23, "<pppoe-budi>", RolePppoe, "budi"},
		{0, "pppoe-siti", RolePppoe, "siti"},
		{23, "ppp-out1", RolePppoe, "out1"},
		{6, "ether1", RolePhysical, ""},
		{6, "sfp-sfpplus1", RolePhysical, ""},
		{71, "wlan1", RolePhysical, ""},
		{0, "<hs-hotspot1>", RoleHotspot, ""},
		{1, "lo", RoleOther, ""},
		{53, "bridge1", RoleOther, ""},
	}
	for _, tc := range tests {
		role, user := ClassifyInterface(tc.ifType, tc.name)
		if role != tc.role || user != tc.user {
			t.Errorf("ClassifyInterface(%d, %q) = (%s, %q), want (%s, %q)",
				tc.ifType, tc.name, role, user, tc.role, tc.user)
		}
	}
}

func TestUnwrapSessionName(t *testing.T) {
	if got := UnwrapSessionName("<pppoe-budi>"); got != "budi" {
		t.Errorf("got %q, want budi", got)
	}
	if got := UnwrapSessionName("pppoe-agus.rt02"); got != "agus.rt02" {
		t.Errorf("got %q, want agus.rt02", got)
	}
	if got := UnwrapSessionName("ether1"); got != "ether1" {
		t.Errorf("plain name must pass through, got %q", got)
	}
}

func TestSplitColumnIndex(t *testing.T) {
	col, idx, ok := splitColumnIndex(".1.3.6.1.2.1.25.2.3.1.3.65536", ".1.3.6.1.2.1.25.2.3.1")
	if !ok || col != 3 || idx != "65536" {
		t.Errorf("table root split = (%d, %q, %v)", col, idx, ok)
	}

	col, idx, ok = splitColumnIndex(oidIfDescr+".5", oidIfDescr)
	if !ok || col != 0 || idx != "5" {
		t.Errorf("column root split = (%d, %q, %v)", col, idx, ok)
	}

	if _, _, ok = splitColumnIndex(".1.3.6.1.2.1.1.1.0", oidIfDescr); ok {
		t.Error("unrelated OID must not split")
	}
}

func TestRateTracker(t *testing.T) {
	tr := NewRateTracker()
	now := time.Now()

	// no baseline yet
	if rate := tr.Observe("10.0.0.1", "public", 1, DirectionIn, 1000, now); rate != 0 {
		t.Errorf("first sample rate = %f, want 0", rate)
	}

	// 10000 bytes over 10 seconds
	rate := tr.Observe("10.0.0.1", "public", 1, DirectionIn, 11000, now.Add(10*time.Second))
	if rate != 1000 {
		t.Errorf("rate = %f, want 1000", rate)
	}

	// counter reset clamps to zero
	if rate := tr.Observe("10.0.0.1", "public", 1, DirectionIn, 50, now.Add(20*time.Second)); rate != 0 {
		t.Errorf("wrapped counter rate = %f, want 0", rate)
	}

	// directions keep independent baselines
	tr.Observe("10.0.0.1", "public", 1, DirectionOut, 500, now)
	rate = tr.Observe("10.0.0.1", "public", 1, DirectionOut, 700, now.Add(2*time.Second))
	if rate != 100 {
		t.Errorf("out rate = %f, want 100", rate)
	}
}
