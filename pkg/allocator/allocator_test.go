package allocator

import "testing"

func TestFreeSetMarkUsedAndFree(t *testing.T) {
	fs := NewFreeSet(16, []uint64{0})
	if fs.FreeBlocks() != 15 {
		t.Fatalf("expected 15 free blocks, got %d", fs.FreeBlocks())
	}
	if err := fs.MarkUsed([]uint64{1, 2, 5}); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if fs.FreeBlocks() != 12 {
		t.Fatalf("expected 12 free blocks after MarkUsed, got %d", fs.FreeBlocks())
	}
	if err := fs.MarkFree([]uint64{1, 2}); err != nil {
		t.Fatalf("MarkFree: %v", err)
	}
	if fs.FreeBlocks() != 14 {
		t.Fatalf("expected 14 free blocks after MarkFree, got %d", fs.FreeBlocks())
	}
}

func TestFreeSetDoubleFree(t *testing.T) {
	fs := NewFreeSet(8, []uint64{0})
	if err := fs.MarkFree([]uint64{3}); err != ErrDoubleFree {
		t.Fatalf("expected ErrDoubleFree, got %v", err)
	}
}

func TestFreeSetZeroNeverFreeable(t *testing.T) {
	fs := NewFreeSet(8, []uint64{0})
	if err := fs.MarkFree([]uint64{0}); err == nil {
		t.Fatalf("expected error freeing block 0")
	}
}

func TestFreeSetCoalescesAdjacentExtents(t *testing.T) {
	fs := NewFreeSet(10, []uint64{0, 3, 4, 5})
	if err := fs.MarkFree([]uint64{3, 4, 5}); err != nil {
		t.Fatalf("MarkFree: %v", err)
	}
	extents := fs.Extents()
	if len(extents) != 1 {
		t.Fatalf("expected the freed run to coalesce into a single extent, got %d: %+v", len(extents), extents)
	}
	if extents[0].Start != 1 || extents[0].Length != 9 {
		t.Fatalf("unexpected merged extent: %+v", extents[0])
	}
}

func TestBitmapAllocatorServesSmallRequests(t *testing.T) {
	fs := NewFreeSet(128, []uint64{0})
	b := NewBitmapAllocator(fs)
	ids, err := b.Allocate(4096) // one block
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 block, got %d", len(ids))
	}
}

func TestExtentAllocatorThresholdExact(t *testing.T) {
	// 256 KiB is exactly 64 blocks at the fixed page size; the extent
	// sub-allocator must return a contiguous run of exactly that length.
	fs := NewFreeSet(200, []uint64{0})
	e := NewExtentAllocator(fs)
	ids, err := e.Allocate(BitmapThresholdBytes)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(ids) != blocksPerBitmapRequest {
		t.Fatalf("expected %d blocks, got %d", blocksPerBitmapRequest, len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			t.Fatalf("expected contiguous block ids, got %v", ids)
		}
	}
}

type fakeExtender struct {
	calls []uint64
}

func (f *fakeExtender) Extend(newTotal uint64) error {
	f.calls = append(f.calls, newTotal)
	return nil
}

func TestHybridDispatchesByThreshold(t *testing.T) {
	fs := NewFreeSet(256, []uint64{0})
	h := NewHybrid(fs, &fakeExtender{}, nil)

	small, err := h.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate small: %v", err)
	}
	if len(small) != 1 {
		t.Fatalf("expected 1 block for a small request, got %d", len(small))
	}

	large, err := h.Allocate(BitmapThresholdBytes)
	if err != nil {
		t.Fatalf("Allocate large: %v", err)
	}
	if len(large) != blocksPerBitmapRequest {
		t.Fatalf("expected %d blocks for a threshold-sized request, got %d", blocksPerBitmapRequest, len(large))
	}
}

func TestHybridAutoGrowsOnExhaustion(t *testing.T) {
	fs := NewFreeSet(4, []uint64{0}) // 3 free blocks total
	ext := &fakeExtender{}
	var grew []uint64
	h := NewHybrid(fs, ext, func(oldTotal, newTotal uint64) {
		grew = append(grew, oldTotal, newTotal)
	})

	ids, err := h.Allocate(BitmapThresholdBytes) // needs 64 blocks, far more than available
	if err != nil {
		t.Fatalf("Allocate after grow: %v", err)
	}
	if len(ids) != blocksPerBitmapRequest {
		t.Fatalf("expected %d blocks, got %d", blocksPerBitmapRequest, len(ids))
	}
	if len(ext.calls) != 1 {
		t.Fatalf("expected exactly one grow call, got %d", len(ext.calls))
	}
	if h.TotalBlocks() != ext.calls[0] {
		t.Fatalf("free set total %d does not match extended size %d", h.TotalBlocks(), ext.calls[0])
	}
	if len(grew) != 2 || grew[0] != 4 {
		t.Fatalf("unexpected grow observer calls: %v", grew)
	}
}

func TestHybridFreeReturnsToSharedSet(t *testing.T) {
	fs := NewFreeSet(128, []uint64{0})
	h := NewHybrid(fs, &fakeExtender{}, nil)

	ids, err := h.Allocate(4096)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	freeBefore := h.FreeBlocks()
	if err := h.Free(ids); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if h.FreeBlocks() != freeBefore+uint64(len(ids)) {
		t.Fatalf("expected freed blocks to return to the shared set")
	}
}

func TestFragmentationScoreBounded(t *testing.T) {
	fs := NewFreeSet(64, []uint64{0, 1, 2, 10, 20, 30})
	h := NewHybrid(fs, &fakeExtender{}, nil)
	score := h.FragmentationScore()
	if score < 0 || score > 1 {
		t.Fatalf("fragmentation score out of bounds: %f", score)
	}
}
