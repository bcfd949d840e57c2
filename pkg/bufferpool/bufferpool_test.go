package bufferpool

import "testing"

func pageFor(id uint64) []byte {
	data := make([]byte, 8)
	data[0] = byte(id)
	return data
}

func TestPoolMissThenHit(t *testing.T) {
	p := New(4)

	if _, ok := p.Get(1); ok {
		t.Fatal("expected a miss on an empty pool")
	}
	p.Put(1, pageFor(1))

	got, ok := p.Get(1)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if got[0] != 1 {
		t.Errorf("unexpected cached page contents")
	}

	stats := p.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPoolEvictsUnderCapacity(t *testing.T) {
	p := New(2)
	p.Put(1, pageFor(1))
	p.Put(2, pageFor(2))
	p.Put(3, pageFor(3)) // should evict something, cache stays within capacity

	resident := 0
	for _, id := range []uint64{1, 2, 3} {
		if _, ok := p.Get(id); ok {
			resident++
		}
	}
	if resident > 2 {
		t.Errorf("expected at most 2 resident pages, found %d", resident)
	}
}

func TestPoolRepeatedAccessPromotesToT2(t *testing.T) {
	p := New(4)
	p.Put(1, pageFor(1))
	p.Get(1) // first hit promotes 1 into T2

	stats := p.Stats()
	if stats.T2Size != 1 {
		t.Errorf("expected page 1 to be promoted to T2, stats: %+v", stats)
	}
	if stats.T1Size != 0 {
		t.Errorf("expected T1 to be empty after promotion, stats: %+v", stats)
	}
}

func TestPoolGhostHitAdaptsP(t *testing.T) {
	p := New(2)
	p.Put(1, pageFor(1))
	p.Put(2, pageFor(2))
	p.Put(3, pageFor(3)) // evicts the LRU of T1 (id 1) into B1

	before := p.Stats().P
	p.Put(1, pageFor(1)) // ghost hit in B1 should push p upward
	after := p.Stats().P

	if after <= before {
		t.Errorf("expected p to increase after a B1 ghost hit: before=%d after=%d", before, after)
	}
}

func TestPoolInvalidateRemovesEntry(t *testing.T) {
	p := New(4)
	p.Put(1, pageFor(1))
	p.Invalidate(1)
	if _, ok := p.Get(1); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

func TestPoolZeroCapacityAlwaysMisses(t *testing.T) {
	p := New(0)
	p.Put(1, pageFor(1))
	if _, ok := p.Get(1); ok {
		t.Fatal("expected a zero-capacity pool to never cache anything")
	}
}

func TestPoolWriteThroughUpdatesResidentEntry(t *testing.T) {
	p := New(4)
	p.Put(1, pageFor(1))
	updated := make([]byte, 8)
	updated[0] = 99
	p.Put(1, updated)

	got, ok := p.Get(1)
	if !ok {
		t.Fatal("expected page 1 to remain resident")
	}
	if got[0] != 99 {
		t.Errorf("expected write-through update to be visible, got %d", got[0])
	}
}
