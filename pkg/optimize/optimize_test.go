package optimize

import (
	"testing"
)

func TestBytePool(t *testing.T) {
	pool := NewBytePool(1024)

	// Get buffer
	buf := pool.Get()
	if len(buf) != 1024 {
		t.Errorf("expected buffer size 1024, got %d", len(buf))
	}

	// Put back
	pool.Put(buf)

	// Get again (should reuse)
	buf2 := pool.Get()
	if len(buf2) != 1024 {
		t.Errorf("expected buffer size 1024, got %d", len(buf2))
	}
}

func TestBytePoolRejectsSmallBuffers(t *testing.T) {
	pool := NewBytePool(1024)
	pool.Put(make([]byte, 16))

	buf := pool.Get()
	if len(buf) != 1024 {
		t.Errorf("expected buffer size 1024, got %d", len(buf))
	}
}

func TestStringPool(t *testing.T) {
	pool := NewStringPool()

	// Get map
	m := pool.Get()
	if m == nil {
		t.Error("expected non-nil map")
	}

	// Use map
	m["key"] = "value"

	// Put back
	pool.Put(m)

	// Get again (should be cleared)
	m2 := pool.Get()
	if len(m2) != 0 {
		t.Errorf("expected empty map, got %d keys", len(m2))
	}
}
