package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestValidAndTime(t *testing.T) {
	id := New()
	if !Valid(id) {
		t.Fatalf("fresh id %q not valid", id)
	}
	if Valid("not-an-id") {
		t.Fatalf("garbage accepted")
	}
	ts, ok := Time(id)
	if !ok {
		t.Fatalf("time not extracted")
	}
	if d := time.Since(ts); d < 0 || d > time.Minute {
		t.Fatalf("unexpected embedded time %v", ts)
	}
}
