// Package allocator implements the hybrid block allocator: a bitmap
// sub-allocator for small requests and an extent sub-allocator for large
// ones, sharing one authoritative free-block set, plus the auto-grow
// protocol that extends the container when the free set is exhausted.
package allocator

import "fmt"

// BlockAllocator is the capability both sub-allocators and the Hybrid
// dispatcher implement: allocate a run of blocks for a byte size, free a
// list of blocks, and report space/fragmentation stats.
type BlockAllocator interface {
	Allocate(sizeBytes uint64) ([]uint64, error)
	Free(blockIDs []uint64) error
	FragmentationScore() float64
	TotalBlocks() uint64
	FreeBlocks() uint64
}

// Extent is a maximal contiguous run of blocks, free or used, identified
// by its starting block id and length in blocks.
type Extent struct {
	Start  uint64
	Length uint64
}

// End returns the first block id past the extent.
func (e Extent) End() uint64 { return e.Start + e.Length }

// ErrOutOfSpace is returned when a request cannot be satisfied even after
// the caller has grown the container (or growth is not available, as in
// a bare sub-allocator used without a Hybrid wrapper).
var ErrOutOfSpace = fmt.Errorf("allocator: out of space")

// ErrDoubleFree is returned when Free is called on a block id that is
// already in the free set.
var ErrDoubleFree = fmt.Errorf("allocator: double free")

// InvalidBlockIDError is returned when a block id passed to Free (or
// referenced internally) is out of the managed range.
type InvalidBlockIDError struct {
	ID uint64
}

func (e *InvalidBlockIDError) Error() string {
	return fmt.Sprintf("allocator: invalid block id %d", e.ID)
}
