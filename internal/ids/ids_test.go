package ids

import (
	"strings"
	"testing"
)

func TestNewIsSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("rcp")
	if !strings.HasPrefix(id, "rcp_") || len(id) != len("rcp_")+26 {
		t.Fatalf("unexpected id %q", id)
	}
	if got := WithPrefix(" "); strings.Contains(got, "_") {
		t.Fatalf("empty prefix should fall back to New, got %q", got)
	}
}
