package buffer

import "testing"

func TestRingKeepsNewestEntries(t *testing.T) {
	ring := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		ring.Add(i)
	}

	got := ring.List()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if ring.TotalAdded() != 5 {
		t.Fatalf("expected total 5, got %d", ring.TotalAdded())
	}
}

func TestRingTail(t *testing.T) {
	ring := NewRing[string](4)
	for _, entry := range []string{"a", "b", "c", "d", "e"} {
		ring.Add(entry)
	}

	tail := ring.Tail(2)
	if len(tail) != 2 || tail[0] != "d" || tail[1] != "e" {
		t.Fatalf("expected [d e], got %v", tail)
	}

	if got := ring.Tail(10); len(got) != 4 {
		t.Fatalf("expected full buffer for oversized tail, got %d entries", len(got))
	}
	if ring.Tail(0) != nil {
		t.Fatalf("expected nil tail for n=0")
	}
}

func TestRingZeroSize(t *testing.T) {
	ring := NewRing[int](0)
	ring.Add(1)
	ring.Add(2)
	if ring.Len() != 1 {
		t.Fatalf("expected size floor of 1, got %d", ring.Len())
	}
}
