package buffer

import "testing"

func TestOwnedProduceConsume(t *testing.T) {
	b := NewOwned(8)
	if u := b.Usage(); u != 0 {
		t.Fatalf("fresh buffer usage = %d, want 0", u)
	}
	b.Produce('a')
	b.Produce('b')
	if u := b.Usage(); u != 2 {
		t.Fatalf("usage after 2 produce = %d, want 2", u)
	}
	if c := b.Consume(); c != 'a' {
		t.Fatalf("consume = %q, want 'a'", c)
	}
	if p := b.Peek(); p != 'b' {
		t.Fatalf("peek = %d, want 'b'", p)
	}
}

func TestPeekEmpty(t *testing.T) {
	b := NewOwned(4)
	if p := b.Peek(); p != -1 {
		t.Fatalf("peek on empty = %d, want -1", p)
	}
}

func TestCompactReclaimsSpace(t *testing.T) {
	b := NewOwned(4)
	for i := 0; i < 4; i++ {
		b.Produce('x')
	}
	b.Consumed(3)
	if d := b.DirectAvail(); d != 0 {
		t.Fatalf("direct avail before compact = %d, want 0", d)
	}
	if d := b.Compact(); d != 3 {
		t.Fatalf("direct avail after compact = %d, want 3", d)
	}
	if u := b.Usage(); u != 1 {
		t.Fatalf("usage after compact = %d, want 1", u)
	}
}

func TestProduceTriggersCompaction(t *testing.T) {
	b := NewOwned(2)
	b.Produce('a')
	b.Produce('b')
	b.Consume()
	// direct avail is 0 (top==cap), but total avail is 1: Produce must compact.
	b.Produce('c')
	if got := b.String(); got != "bc" {
		t.Fatalf("contents = %q, want %q", got, "bc")
	}
}

func TestProduceFrom(t *testing.T) {
	src := NewOwned(8)
	src.Produce('h')
	src.Produce('i')
	dst := NewOwned(8)
	dst.ProduceFrom(src)
	if got := dst.String(); got != "hi" {
		t.Fatalf("dst = %q, want %q", got, "hi")
	}
	if src.Usage() != 0 {
		t.Fatalf("src usage after drain = %d, want 0", src.Usage())
	}
}

func TestProduceFromNPanicsOnShortage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on insufficient source bytes")
		}
	}()
	src := NewOwned(8)
	src.Produce('a')
	dst := NewOwned(8)
	dst.ProduceFromN(src, 5)
}

func TestView(t *testing.T) {
	v := NewView([]byte("hello"))
	if v.Usage() != 5 {
		t.Fatalf("view usage = %d, want 5", v.Usage())
	}
	if v.Consume() != 'h' {
		t.Fatal("view consume mismatch")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic producing into a view")
		}
	}()
	v.Produce('z')
}

func TestConsumedOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on consumed overflow")
		}
	}()
	b := NewOwned(4)
	b.Produce('a')
	b.Consumed(2)
}

func TestToProduceToConsumeRoundTrip(t *testing.T) {
	b := NewOwned(8)
	dst := b.ToProduce()
	n := copy(dst, []byte("abc"))
	b.Produced(n)
	if got := string(b.ToConsume()); got != "abc" {
		t.Fatalf("round trip = %q, want %q", got, "abc")
	}
	b.Consumed(n)
	if b.Usage() != 0 {
		t.Fatalf("usage after consumed = %d, want 0", b.Usage())
	}
}
