package catalog

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEncodeMetadataRoundTrip(t *testing.T) {
	m := &FileMetadata{
		FileType:    TypeFile,
		Size:        42,
		Blocks:      []uint64{7, 8, 9},
		CreatedAt:   100,
		ModifiedAt:  200,
		Permissions: 0o644,
		Owner:       "alice",
		ContentHash: bytes.Repeat([]byte{0xab}, 32),
		ContentType: "text/plain",
		UserMetadata: map[string]string{
			"k1": "v1",
		},
	}

	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Blocks, m.Blocks) {
		t.Errorf("blocks = %v, want %v", got.Blocks, m.Blocks)
	}
	if got.Owner != m.Owner || got.ContentType != m.ContentType {
		t.Errorf("unexpected roundtrip: %+v", got)
	}
	if !bytes.Equal(got.ContentHash, m.ContentHash) {
		t.Errorf("content hash mismatch")
	}
}

// TestEncodeMetadataLargeContiguousFileStaysSmall is the scenario the
// review flagged: a file big enough to need hundreds of blocks, allocated
// as a single contiguous extent. The flat one-uint64-per-block encoding
// scaled linearly with file size and could exceed maxMetadataValueSize;
// the run-length encoding collapses a contiguous allocation into one run
// regardless of how many blocks it spans.
func TestEncodeMetadataLargeContiguousFileStaysSmall(t *testing.T) {
	const blockCount = 100000 // far beyond what the old flat encoding could fit
	blocks := make([]uint64, blockCount)
	for i := range blocks {
		blocks[i] = uint64(1000 + i)
	}
	m := NewFileMetadata(TypeFile, blockCount*4096, blocks)

	encoded := EncodeMetadata(m)
	if len(encoded) > 200 {
		t.Fatalf("expected a single contiguous run to encode small, got %d bytes", len(encoded))
	}

	got, err := DecodeMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Blocks, blocks) {
		t.Fatal("block list did not round-trip through the run-length encoding")
	}
}

// TestEncodeMetadataScatteredBlocksRoundTrip covers the bitmap-allocator
// case: non-contiguous block ids, each its own run.
func TestEncodeMetadataScatteredBlocksRoundTrip(t *testing.T) {
	blocks := []uint64{2, 4, 6, 8, 10}
	m := NewFileMetadata(TypeFile, uint64(len(blocks))*4096, blocks)

	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Blocks, blocks) {
		t.Errorf("blocks = %v, want %v", got.Blocks, blocks)
	}
}

func TestEncodeMetadataEmptyBlocks(t *testing.T) {
	m := NewFileMetadata(TypeDirectory, 0, nil)
	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Blocks) != 0 {
		t.Errorf("expected no blocks, got %v", got.Blocks)
	}
}

func TestBlockRunsGrouping(t *testing.T) {
	cases := []struct {
		name   string
		blocks []uint64
		want   []blockRun
	}{
		{"empty", nil, nil},
		{"single", []uint64{5}, []blockRun{{start: 5, length: 1}}},
		{"one run", []uint64{5, 6, 7, 8}, []blockRun{{start: 5, length: 4}}},
		{"two runs", []uint64{1, 2, 5, 6, 7}, []blockRun{{start: 1, length: 2}, {start: 5, length: 3}}},
		{"all scattered", []uint64{1, 3, 5}, []blockRun{{start: 1, length: 1}, {start: 3, length: 1}, {start: 5, length: 1}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := blockRuns(c.blocks)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("blockRuns(%v) = %v, want %v", c.blocks, got, c.want)
			}
		})
	}
}
