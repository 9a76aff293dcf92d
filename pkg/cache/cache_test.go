package cache

import (
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	c := NewTTLCache()
	c.Put("a", 1)

	v, ok := c.GetIfFresh("a", time.Minute)
	if !ok || v != 1 {
		t.Fatalf("GetIfFresh = (%v, %v), want (1, true)", v, ok)
	}

	if _, ok := c.GetIfFresh("missing", time.Minute); ok {
		t.Fatal("missing key reported fresh")
	}
}

func TestZeroTTLDisablesFreshness(t *testing.T) {
	c := NewTTLCache()
	c.Put("a", "v")
	if _, ok := c.GetIfFresh("a", 0); !ok {
		t.Fatal("ttl 0 must disable the freshness check")
	}
}

func TestDeleteAndLen(t *testing.T) {
	c := NewTTLCache()
	c.Put("a", 1)
	c.Put("b", 2)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	c.Delete("a")
	if c.Len() != 1 {
		t.Fatalf("Len after delete = %d, want 1", c.Len())
	}
	if _, _, ok := c.Get("a"); ok {
		t.Fatal("deleted key still present")
	}
}

func TestOverwriteRefreshes(t *testing.T) {
	c := NewTTLCache()
	c.Put("a", 1)
	c.Put("a", 2)
	v, ok := c.GetIfFresh("a", time.Minute)
	if !ok || v != 2 {
		t.Fatalf("GetIfFresh = (%v, %v), want (2, true)", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}
