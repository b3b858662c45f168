package display

import (
	"testing"
	"time"
)

func TestCommandQueueFIFO(t *testing.T) {
	q := newCommandQueue(4)
	for i := 0; i < 3; i++ {
		if _, ok := q.enqueue(pendingCommand{expect: byte(i)}); !ok {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}
	for i := 0; i < 3; i++ {
		cmd := q.dequeue()
		if cmd.expect != byte(i) {
			t.Errorf("dequeue %d: expect = %d", i, cmd.expect)
		}
	}
	if !q.empty() {
		t.Error("queue not empty after draining")
	}
}

func TestCommandQueueOverflow(t *testing.T) {
	q := newCommandQueue(2)
	q.enqueue(pendingCommand{expect: 0x01})
	q.enqueue(pendingCommand{expect: 0x02})

	if _, ok := q.enqueue(pendingCommand{expect: 0x03}); ok {
		t.Fatal("enqueue succeeded on a full ring")
	}

	// Existing entries must be intact.
	if cmd := q.dequeue(); cmd.expect != 0x01 {
		t.Errorf("head expect = %d, want 1", cmd.expect)
	}
	if cmd := q.dequeue(); cmd.expect != 0x02 {
		t.Errorf("second expect = %d, want 2", cmd.expect)
	}

	// Room again after draining.
	if _, ok := q.enqueue(pendingCommand{expect: 0x04}); !ok {
		t.Error("enqueue failed after draining")
	}
}

func TestCommandQueueWraparound(t *testing.T) {
	q := newCommandQueue(2)
	for i := 0; i < 10; i++ {
		pos, ok := q.enqueue(pendingCommand{expect: byte(i)})
		if !ok {
			t.Fatalf("enqueue %d failed", i)
		}
		if pos != uint64(i) {
			t.Errorf("position = %d, want %d", pos, i)
		}
		if cmd := q.dequeue(); cmd.expect != byte(i) {
			t.Errorf("dequeue %d: expect = %d", i, cmd.expect)
		}
	}
}

func TestCommandQueuePassed(t *testing.T) {
	q := newCommandQueue(4)
	pos, _ := q.enqueue(pendingCommand{})
	if q.passed(pos) {
		t.Error("passed before dequeue")
	}
	q.dequeue()
	if !q.passed(pos) {
		t.Error("not passed after dequeue")
	}
}

func TestCommandQueuePurgeExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	q := newCommandQueue(4)

	if _, ok := q.purgeExpired(now); ok {
		t.Error("purge on empty queue reported work")
	}

	q.enqueue(pendingCommand{expect: 0x01, expiresAt: now.Add(-time.Millisecond)})
	q.enqueue(pendingCommand{expect: 0x02, expiresAt: now.Add(time.Second)})

	cmd, ok := q.purgeExpired(now)
	if !ok {
		t.Fatal("expired head not purged")
	}
	if cmd.expect != 0x01 {
		t.Errorf("purged expect = %d, want 1", cmd.expect)
	}

	// The unexpired entry stays.
	if _, ok := q.purgeExpired(now); ok {
		t.Error("unexpired head purged")
	}
	if q.len() != 1 {
		t.Errorf("len = %d, want 1", q.len())
	}
}

func TestResponseStoreReuse(t *testing.T) {
	s := newResponseStore(2, 16)
	first := s.claim()
	first.store([]byte{0x01})
	s.claim()

	// Third claim wraps onto the first slot and resets it.
	third := s.claim()
	if third != first {
		t.Fatal("store did not wrap onto the first slot")
	}
	if len(third.bytes()) != 0 {
		t.Error("reused slot not reset")
	}
}

func TestResponseSlotBoundedStore(t *testing.T) {
	s := newResponseStore(1, 4)
	slot := s.claim()
	slot.store([]byte{1, 2, 3, 4, 5, 6})
	got := slot.bytes()
	if len(got) != 4 {
		t.Fatalf("stored %d bytes, want 4", len(got))
	}
	if got[3] != 4 {
		t.Errorf("stored bytes = %v", got)
	}
}
