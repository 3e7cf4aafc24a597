package invoiceid

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

	id := New(now)
	if !Valid(id) {
		t.Fatalf("generated id %q does not match the format", id)
	}
	if !strings.HasPrefix(id, "INV-260216-") {
		t.Errorf("id %q must embed the date", id)
	}

	// суффикс случайный, коллизии в одну дату крайне маловероятны
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[New(now)] = true
	}
	if len(seen) < 95 {
		t.Errorf("suspiciously many collisions: %d unique of 100", len(seen))
	}
}

func TestValid(t *testing.T) {
	valid := []string{"INV-260216-A7B3", "INV-000101-0000", "INV-991231-ZZZZ"}
	for _, id := range valid {
		if !Valid(id) {
			t.Errorf("%q must be valid", id)
		}
	}

	invalid := []string{
		"",
		"INV-260216-a7b3",
		"INV-2602166-A7B3",
		"INV-260216-A7B",
		"inv-260216-A7B3",
		"INV-260216-A7B3X",
		"XXX-260216-A7B3",
	}
	for _, id := range invalid {
		if Valid(id) {
			t.Errorf("%q must be invalid", id)
		}
	}
}
