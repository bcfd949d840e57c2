// Package header implements page 0 of a cartridge container: the magic
// number, format version, block accounting, and the persistence anchors
// the catalog and allocator need to rehydrate themselves on reopen.
package header

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrelfs/cartridge/pkg/page"
)

// Magic identifies the cartridge format on disk. The first four bytes
// are the ASCII string "CART" as required by the format.
var Magic = [8]byte{'C', 'A', 'R', 'T', '0', '0', '0', '1'}

const (
	// CurrentMajor/CurrentMinor are the format version this package writes.
	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0

	// MinTotalBlocks is the smallest legal container size: header, catalog
	// root, and at least one free block.
	MinTotalBlocks uint64 = 3

	offMagic        = 0
	offMajor        = 8
	offMinor        = 10
	offTotalBlocks  = 12
	offFreeBlocks   = 20
	offCatalogRoot  = 28
	offAllocHead    = 36
	encodedSize     = 44
)

// Header is the decoded contents of page 0.
type Header struct {
	Major uint16
	Minor uint16

	// TotalBlocks is the current size of the container, in pages.
	TotalBlocks uint64
	// FreeBlocks is the allocator's count of unused pages.
	FreeBlocks uint64
	// CatalogRootPageID is the page holding the catalog B-tree root, or 0
	// if the catalog is empty.
	CatalogRootPageID uint64
	// AllocatorStateHeadPageID is reserved for a future persisted free-list
	// chain (TypeFreelist pages). The current allocator reconstructs its
	// free set from the catalog on every Open instead of reading one, so
	// this field round-trips through ToPage/FromPage but is never set to
	// anything but 0 (see DESIGN.md, "Allocator state on reopen").
	AllocatorStateHeadPageID uint64
}

// New returns a fresh header for a newly-created container of the given
// initial size (in blocks). freeBlocks is the number of blocks not yet owned by
// the header or catalog.
func New(totalBlocks, freeBlocks uint64) *Header {
	return &Header{
		Major:       CurrentMajor,
		Minor:       CurrentMinor,
		TotalBlocks: totalBlocks,
		FreeBlocks:  freeBlocks,
	}
}

// Validate checks the header's invariants: free_blocks <= total_blocks
// and total_blocks >= MinTotalBlocks.
func (h *Header) Validate() error {
	if h.TotalBlocks < MinTotalBlocks {
		return fmt.Errorf("header: total_blocks %d below minimum %d", h.TotalBlocks, MinTotalBlocks)
	}
	if h.FreeBlocks > h.TotalBlocks {
		return fmt.Errorf("header: free_blocks %d exceeds total_blocks %d", h.FreeBlocks, h.TotalBlocks)
	}
	return nil
}

// ToPage serializes the header into a full 4096-byte page-0 image.
func (h *Header) ToPage() [page.Size]byte {
	var buf [page.Size]byte
	copy(buf[offMagic:], Magic[:])
	binary.LittleEndian.PutUint16(buf[offMajor:], h.Major)
	binary.LittleEndian.PutUint16(buf[offMinor:], h.Minor)
	binary.LittleEndian.PutUint64(buf[offTotalBlocks:], h.TotalBlocks)
	binary.LittleEndian.PutUint64(buf[offFreeBlocks:], h.FreeBlocks)
	binary.LittleEndian.PutUint64(buf[offCatalogRoot:], h.CatalogRootPageID)
	binary.LittleEndian.PutUint64(buf[offAllocHead:], h.AllocatorStateHeadPageID)
	return buf
}

// FromPage decodes page 0's image into a Header, validating magic, version
// and invariants in that priority order: invalid magic takes precedence
// over an unsupported version, which takes precedence over structural
// errors.
func FromPage(buf []byte) (*Header, error) {
	if len(buf) != page.Size {
		return nil, fmt.Errorf("header: page must be %d bytes, got %d", page.Size, len(buf))
	}
	var gotMagic [8]byte
	copy(gotMagic[:], buf[offMagic:offMagic+8])
	if gotMagic != Magic {
		return nil, ErrInvalidMagic
	}

	h := &Header{
		Major:                    binary.LittleEndian.Uint16(buf[offMajor:]),
		Minor:                    binary.LittleEndian.Uint16(buf[offMinor:]),
		TotalBlocks:              binary.LittleEndian.Uint64(buf[offTotalBlocks:]),
		FreeBlocks:               binary.LittleEndian.Uint64(buf[offFreeBlocks:]),
		CatalogRootPageID:        binary.LittleEndian.Uint64(buf[offCatalogRoot:]),
		AllocatorStateHeadPageID: binary.LittleEndian.Uint64(buf[offAllocHead:]),
	}

	if h.Major != CurrentMajor {
		return nil, &UnsupportedVersionError{Major: h.Major, Minor: h.Minor}
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// ErrInvalidMagic is returned when page 0 does not begin with the
// cartridge magic bytes.
var ErrInvalidMagic = fmt.Errorf("header: invalid magic bytes")

// UnsupportedVersionError is returned when the major version on disk is
// newer (or otherwise incompatible) with what this package writes.
type UnsupportedVersionError struct {
	Major, Minor uint16
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("header: unsupported version %d.%d", e.Major, e.Minor)
}
