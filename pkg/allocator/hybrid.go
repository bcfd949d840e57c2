package allocator

// Extender is the subset of the pager's contract the allocator needs to
// grow the container. Declared locally (rather than importing pkg/pager)
// so the allocator package has no dependency on file I/O.
type Extender interface {
	Extend(newTotalBlocks uint64) error
}

// GrowObserver is notified whenever the auto-grow protocol runs, so the
// facade can log and emit metrics without the allocator importing either.
type GrowObserver func(oldTotal, newTotal uint64)

// growSlack is the minimum headroom left after satisfying the request
// that triggered a grow, on top of doubling the container.
const growSlack = 16

// Hybrid dispatches allocation requests to the bitmap sub-allocator below
// BitmapThresholdBytes and the extent sub-allocator at or above it, both
// sharing one FreeSet, and runs the auto-grow protocol when neither can
// satisfy a request.
type Hybrid struct {
	free     *FreeSet
	bitmap   *BitmapAllocator
	extent   *ExtentAllocator
	extender Extender
	onGrow   GrowObserver
}

// NewHybrid builds a dispatcher over a shared free set and the pager used
// to grow the container file when space runs out. onGrow may be nil.
func NewHybrid(free *FreeSet, extender Extender, onGrow GrowObserver) *Hybrid {
	return &Hybrid{
		free:     free,
		bitmap:   NewBitmapAllocator(free),
		extent:   NewExtentAllocator(free),
		extender: extender,
		onGrow:   onGrow,
	}
}

// FreeSet exposes the shared free-block state, for components (such as the
// header writer) that need to persist TotalBlocks/FreeBlocks.
func (h *Hybrid) FreeSet() *FreeSet { return h.free }

// ReplaceFreeSet swaps in a freshly reconstructed free set (used after a
// scavenge pass recomputes ownership from the catalog) and rebuilds both
// sub-allocators over it.
func (h *Hybrid) ReplaceFreeSet(fs *FreeSet) {
	h.free = fs
	h.bitmap = NewBitmapAllocator(fs)
	h.extent = NewExtentAllocator(fs)
}

func (h *Hybrid) sub(sizeBytes uint64) BlockAllocator {
	if sizeBytes < BitmapThresholdBytes {
		return h.bitmap
	}
	return h.extent
}

// Allocate dispatches by size, growing the container and retrying once if
// the shared free set cannot currently satisfy the request.
func (h *Hybrid) Allocate(sizeBytes uint64) ([]uint64, error) {
	sub := h.sub(sizeBytes)
	ids, err := sub.Allocate(sizeBytes)
	if err == nil {
		return ids, nil
	}
	if err != ErrOutOfSpace {
		return nil, err
	}

	needed := blocksNeeded(sizeBytes)
	oldTotal := h.free.Total()
	newTotal := oldTotal * 2
	if min := oldTotal + needed + growSlack; newTotal < min {
		newTotal = min
	}

	if h.extender != nil {
		if err := h.extender.Extend(newTotal); err != nil {
			return nil, err
		}
	}
	h.free.Grow(newTotal)
	if h.onGrow != nil {
		h.onGrow(oldTotal, newTotal)
	}

	ids, err = sub.Allocate(sizeBytes)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Free returns blocks to the shared free set, regardless of which
// sub-allocator originally served them.
func (h *Hybrid) Free(blockIDs []uint64) error {
	return h.free.MarkFree(blockIDs)
}

// FragmentationScore blends the bitmap and extent fragmentation views into
// a single score in [0, 1].
func (h *Hybrid) FragmentationScore() float64 {
	return (h.free.FragmentationScoreBitmap() + h.free.FragmentationScoreExtent()) / 2
}

// TotalBlocks returns the current size of the container, in blocks.
func (h *Hybrid) TotalBlocks() uint64 { return h.free.Total() }

// FreeBlocks returns the number of blocks not currently allocated.
func (h *Hybrid) FreeBlocks() uint64 { return h.free.FreeBlocks() }
