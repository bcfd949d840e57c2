package allocator

import "github.com/kestrelfs/cartridge/pkg/page"

// blocksPerBitmapRequest is the largest request size the bitmap
// sub-allocator will serve; requests of this size or larger belong to the
// extent sub-allocator (the 256 KiB threshold is exactly 64 pages at the
// fixed 4096-byte page size).
const blocksPerBitmapRequest = 64

// BitmapThresholdBytes is the smallest byte size Hybrid routes to the
// extent sub-allocator; smaller requests go to the bitmap sub-allocator.
const BitmapThresholdBytes = blocksPerBitmapRequest * page.Size

// BitmapAllocator serves small requests by scanning the shared free set
// for individually free blocks, without requiring them to be contiguous.
type BitmapAllocator struct {
	free   *FreeSet
	cursor uint64 // next block id to resume scanning from
}

// NewBitmapAllocator wraps a shared free set for bitmap-style allocation.
func NewBitmapAllocator(free *FreeSet) *BitmapAllocator {
	return &BitmapAllocator{free: free}
}

// Allocate returns up to blocksPerBitmapRequest block ids, scanning forward
// from the cursor and wrapping once. The blocks need not be contiguous.
func (b *BitmapAllocator) Allocate(sizeBytes uint64) ([]uint64, error) {
	n := blocksNeeded(sizeBytes)
	if n > blocksPerBitmapRequest {
		n = blocksPerBitmapRequest
	}
	ids := make([]uint64, 0, n)
	total := b.free.Total()
	start := b.cursor
	for scanned := uint64(0); scanned < total && uint64(len(ids)) < n; scanned++ {
		id := (start + scanned) % total
		if id == 0 {
			continue // page 0 is always the header, never allocatable
		}
		if !b.free.isUsed(id) {
			ids = append(ids, id)
		}
	}
	if uint64(len(ids)) < n {
		return nil, ErrOutOfSpace
	}
	if err := b.free.MarkUsed(ids); err != nil {
		return nil, err
	}
	b.cursor = (ids[len(ids)-1] + 1) % total
	return ids, nil
}

// Free returns blocks to the shared free set.
func (b *BitmapAllocator) Free(blockIDs []uint64) error {
	return b.free.MarkFree(blockIDs)
}

// FragmentationScore reports the bitmap view of fragmentation: the density
// of free/used transitions across the managed range.
func (b *BitmapAllocator) FragmentationScore() float64 {
	return b.free.FragmentationScoreBitmap()
}

// TotalBlocks returns the size of the managed range.
func (b *BitmapAllocator) TotalBlocks() uint64 { return b.free.Total() }

// FreeBlocks returns the number of currently free blocks.
func (b *BitmapAllocator) FreeBlocks() uint64 { return b.free.FreeBlocks() }

func blocksNeeded(sizeBytes uint64) uint64 {
	if sizeBytes == 0 {
		return 1
	}
	return (sizeBytes + page.Size - 1) / page.Size
}
