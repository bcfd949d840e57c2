package allocator

// ExtentAllocator serves large requests by first-fit search over the
// shared free set's extent index, returning one contiguous run per
// request. Extent-backed allocations are always contiguous, which the
// bitmap sub-allocator does not guarantee.
type ExtentAllocator struct {
	free *FreeSet
}

// NewExtentAllocator wraps a shared free set for extent-style allocation.
func NewExtentAllocator(free *FreeSet) *ExtentAllocator {
	return &ExtentAllocator{free: free}
}

// Allocate returns one contiguous run of blocks large enough to hold
// sizeBytes, chosen by first fit among the free extents.
func (e *ExtentAllocator) Allocate(sizeBytes uint64) ([]uint64, error) {
	n := blocksNeeded(sizeBytes)
	for _, ext := range e.free.Extents() {
		start := ext.Start
		length := ext.Length
		if start == 0 {
			// Page 0 is the header and never allocatable; skip it if it
			// fronts this extent.
			start++
			length--
		}
		if length >= n {
			ids := make([]uint64, n)
			for i := uint64(0); i < n; i++ {
				ids[i] = start + i
			}
			if err := e.free.MarkUsed(ids); err != nil {
				return nil, err
			}
			return ids, nil
		}
	}
	return nil, ErrOutOfSpace
}

// Free returns a contiguous run (or any block list) to the shared free set.
func (e *ExtentAllocator) Free(blockIDs []uint64) error {
	return e.free.MarkFree(blockIDs)
}

// FragmentationScore reports the extent view of fragmentation: how many
// free extents the free space is split across.
func (e *ExtentAllocator) FragmentationScore() float64 {
	return e.free.FragmentationScoreExtent()
}

// TotalBlocks returns the size of the managed range.
func (e *ExtentAllocator) TotalBlocks() uint64 { return e.free.Total() }

// FreeBlocks returns the number of currently free blocks.
func (e *ExtentAllocator) FreeBlocks() uint64 { return e.free.FreeBlocks() }
