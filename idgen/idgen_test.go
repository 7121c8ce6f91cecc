package idgen

import (
	"strings"
	"testing"
)

func TestNanoID(t *testing.T) {
	gen := NanoID(8)
	id := gen()
	if len(id) != 8 {
		t.Fatalf("NanoID(8): got length %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestNanoIDUniqueness(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("NanoID: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewIsUUID(t *testing.T) {
	id := New()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("New: not a UUID: %q", id)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("sess_", NanoID(8))()
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("Prefixed: got %q", id)
	}
	if len(id) != 5+8 {
		t.Fatalf("Prefixed: got length %d, want 13", len(id))
	}
}
