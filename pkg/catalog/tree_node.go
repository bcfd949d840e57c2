package catalog

import (
	"bytes"
	"encoding/binary"

	"github.com/kestrelfs/cartridge/pkg/page"
)

const (
	nodeInternal = 1 // holds child page pointers, no metadata values
	nodeLeaf     = 2 // holds path keys and encoded FileMetadata values
)

const (
	nodeHeaderSize = 4

	// catPageSize is the usable space inside one catalog-node page, after
	// the page package's type/checksum envelope is subtracted.
	catPageSize = page.PayloadSize

	// maxPathKeySize bounds a single path's encoded length. 1000 bytes is
	// generous for any realistic absolute path and leaves headroom in the
	// page-size budget asserted in init below.
	maxPathKeySize = 1000

	// maxMetadataValueSize bounds one encoded FileMetadata record. Insert
	// enforces this before a KV pair ever reaches a node buffer, so it is
	// the one authoritative limit; init below only checks that a node
	// holding a single KV at this limit still fits a page.
	maxMetadataValueSize = 3000
)

// catNode is one page of the catalog's path-keyed B-tree, addressed by the
// page ids the catalog's allocator hands out. Internal nodes store child
// pointers with no value; leaves store a path key and its encoded
// FileMetadata value.
type catNode []byte

func (n catNode) ntype() uint16 {
	return binary.LittleEndian.Uint16(n[0:2])
}

func (n catNode) nkeys() uint16 {
	return binary.LittleEndian.Uint16(n[2:4])
}

func (n catNode) setHeader(ntype, nkeys uint16) {
	binary.LittleEndian.PutUint16(n[0:2], ntype)
	binary.LittleEndian.PutUint16(n[2:4], nkeys)
}

func (n catNode) getPtr(idx uint16) uint64 {
	if idx >= n.nkeys() {
		panic("catalog: node child index out of range")
	}
	pos := nodeHeaderSize + 8*idx
	return binary.LittleEndian.Uint64(n[pos:])
}

func (n catNode) setPtr(idx uint16, val uint64) {
	if idx >= n.nkeys() {
		panic("catalog: node child index out of range")
	}
	pos := nodeHeaderSize + 8*idx
	binary.LittleEndian.PutUint64(n[pos:], val)
}

func nodeOffsetPos(n catNode, idx uint16) uint16 {
	if idx < 1 || idx > n.nkeys() {
		panic("catalog: node offset index out of range")
	}
	return nodeHeaderSize + 8*n.nkeys() + 2*(idx-1)
}

func (n catNode) getOffset(idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	return binary.LittleEndian.Uint16(n[nodeOffsetPos(n, idx):])
}

func (n catNode) setOffset(idx uint16, offset uint16) {
	binary.LittleEndian.PutUint16(n[nodeOffsetPos(n, idx):], offset)
}

// kvPos returns the position of the nth path/value pair within the node.
func (n catNode) kvPos(idx uint16) uint16 {
	if idx > n.nkeys() {
		panic("catalog: node kv index out of range")
	}
	return nodeHeaderSize + 8*n.nkeys() + 2*n.nkeys() + n.getOffset(idx)
}

func (n catNode) getKey(idx uint16) []byte {
	if idx >= n.nkeys() {
		panic("catalog: node key index out of range")
	}
	pos := n.kvPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos:])
	return n[pos+4:][:klen]
}

func (n catNode) getVal(idx uint16) []byte {
	if idx >= n.nkeys() {
		panic("catalog: node value index out of range")
	}
	pos := n.kvPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos+0:])
	vlen := binary.LittleEndian.Uint16(n[pos+2:])
	return n[pos+4+klen:][:vlen]
}

func (n catNode) nbytes() uint16 {
	return n.kvPos(n.nkeys())
}

// nodeFloor returns the last index whose key is <= the search key. Index 0
// of every node is a floor key copied down from its parent (or, for the
// very first leaf the catalog ever allocates, an explicit empty-string
// floor — every real path starts with "/", which already sorts after "",
// so the bootstrap floor never collides with a stored path), so the scan
// can assume index 0 always qualifies and only needs to look for where the
// key range stops.
func nodeFloor(n catNode, key []byte) uint16 {
	nkeys := n.nkeys()
	found := uint16(0)
	for i := uint16(1); i < nkeys; i++ {
		cmp := bytes.Compare(n.getKey(i), key)
		if cmp <= 0 {
			found = i
		}
		if cmp >= 0 {
			break
		}
	}
	return found
}

// nodeAppendRange copies a run of entries from src into dst. Callers must
// have already validated that any KV pair in the copied range fits within
// a page; this function does no size checking of its own.
func nodeAppendRange(dst, src catNode, dstFrom, srcFrom, n uint16) {
	if srcFrom+n > src.nkeys() {
		panic("catalog: node copy source range out of bounds")
	}
	if dstFrom+n > dst.nkeys() {
		panic("catalog: node copy destination range out of bounds")
	}
	if n == 0 {
		return
	}

	if src.ntype() == nodeInternal {
		for i := uint16(0); i < n; i++ {
			dst.setPtr(dstFrom+i, src.getPtr(srcFrom+i))
		}
	}

	dstBegin := dst.getOffset(dstFrom)
	srcBegin := src.getOffset(srcFrom)
	for i := uint16(1); i <= n; i++ {
		offset := dstBegin + src.getOffset(srcFrom+i) - srcBegin
		dst.setOffset(dstFrom+i, offset)
	}

	begin := src.kvPos(srcFrom)
	end := src.kvPos(srcFrom + n)
	copy(dst[dst.kvPos(dstFrom):], src[begin:end])
}

// nodeAppendKV writes a single path/value (or child pointer, for internal
// nodes) entry at idx. The KV-size guard lives in catTree.Insert, which
// runs once per call before any node is touched, not here — by the time a
// key/value pair reaches this function it has already been accepted.
func nodeAppendKV(n catNode, idx uint16, ptr uint64, key, val []byte) {
	n.setPtr(idx, ptr)

	pos := n.kvPos(idx)
	binary.LittleEndian.PutUint16(n[pos+0:], uint16(len(key)))
	binary.LittleEndian.PutUint16(n[pos+2:], uint16(len(val)))
	copy(n[pos+4:], key)
	copy(n[pos+4+uint16(len(key)):], val)

	n.setOffset(idx+1, n.getOffset(idx)+4+uint16(len(key)+len(val)))
}

func init() {
	// A node holding exactly one KV pair at the documented maximums must
	// still fit in a page; Insert's runtime guard is what actually keeps
	// oversized values out, but this catches a maxPathKeySize/
	// maxMetadataValueSize/catPageSize edit that breaks the invariant.
	one := nodeHeaderSize + 8 + 2 + 4 + maxPathKeySize + maxMetadataValueSize
	if one > catPageSize {
		panic("catalog: maxPathKeySize/maxMetadataValueSize exceed catPageSize")
	}
}
