package catalog

import (
	"encoding/binary"
	"fmt"
)

// EncodeMetadata serializes a FileMetadata record into the catalog tree's
// value format. Unlike the key (a path string, which the B-tree already
// orders lexicographically), values never need to preserve a sort order,
// so fields are written in a fixed order, variable-length ones simply
// length-prefixed rather than order-preserving escaped, with no type tags.
func EncodeMetadata(m *FileMetadata) []byte {
	out := make([]byte, 0, 128)

	out = append(out, byte(m.FileType))
	out = appendUint64(out, m.Size)
	out = appendBlockRuns(out, m.Blocks)
	out = appendInt64(out, m.CreatedAt)
	out = appendInt64(out, m.ModifiedAt)
	out = appendUint32(out, m.Permissions)
	out = appendString(out, m.Owner)
	out = appendBytes(out, m.ContentHash)
	out = appendString(out, m.ContentType)

	out = appendUint32(out, uint32(len(m.UserMetadata)))
	for k, v := range m.UserMetadata {
		out = appendString(out, k)
		out = appendString(out, v)
	}

	return out
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(data []byte) (*FileMetadata, error) {
	d := &decoder{buf: data}

	fileType, err := d.readByte()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode file type: %w", err)
	}
	size, err := d.readUint64()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode size: %w", err)
	}
	blocks, err := d.readBlockRuns()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode blocks: %w", err)
	}
	createdAt, err := d.readInt64()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode created_at: %w", err)
	}
	modifiedAt, err := d.readInt64()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode modified_at: %w", err)
	}
	perms, err := d.readUint32()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode permissions: %w", err)
	}
	owner, err := d.readString()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode owner: %w", err)
	}
	contentHash, err := d.readBytes()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode content_hash: %w", err)
	}
	contentType, err := d.readString()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode content_type: %w", err)
	}
	userCount, err := d.readUint32()
	if err != nil {
		return nil, fmt.Errorf("catalog: decode user_metadata count: %w", err)
	}
	var userMetadata map[string]string
	if userCount > 0 {
		userMetadata = make(map[string]string, userCount)
		for i := uint32(0); i < userCount; i++ {
			k, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("catalog: decode user_metadata key %d: %w", i, err)
			}
			v, err := d.readString()
			if err != nil {
				return nil, fmt.Errorf("catalog: decode user_metadata value %d: %w", i, err)
			}
			userMetadata[k] = v
		}
	}

	return &FileMetadata{
		FileType:     FileType(fileType),
		Size:         size,
		Blocks:       blocks,
		CreatedAt:    createdAt,
		ModifiedAt:   modifiedAt,
		Permissions:  perms,
		Owner:        owner,
		ContentHash:  contentHash,
		ContentType:  contentType,
		UserMetadata: userMetadata,
	}, nil
}

// appendBlockRuns encodes a Blocks list as a count of (start, length)
// runs followed by the runs themselves, rather than one uint64 per block
// id. A file allocated by the extent sub-allocator always lands in a
// single contiguous run regardless of its size, so this keeps a large
// file's encoded size constant instead of growing linearly with its block
// count; a bitmap-allocated file (capped at 64 blocks per request) is
// bounded the same way the flat encoding was.
func appendBlockRuns(out []byte, blocks []uint64) []byte {
	runs := blockRuns(blocks)
	out = appendUint32(out, uint32(len(runs)))
	for _, r := range runs {
		out = appendUint64(out, r.start)
		out = appendUint64(out, r.length)
	}
	return out
}

type blockRun struct {
	start  uint64
	length uint64
}

// blockRuns groups a block list into maximal runs of consecutive ids,
// preserving the input order (each run expands back into the same ids in
// the same order it was given).
func blockRuns(blocks []uint64) []blockRun {
	var runs []blockRun
	for i := 0; i < len(blocks); {
		start := blocks[i]
		j := i + 1
		for j < len(blocks) && blocks[j] == blocks[j-1]+1 {
			j++
		}
		runs = append(runs, blockRun{start: start, length: uint64(j - i)})
		i = j
	}
	return runs
}

func (d *decoder) readBlockRuns() ([]uint64, error) {
	runCount, err := d.readUint32()
	if err != nil {
		return nil, fmt.Errorf("run count: %w", err)
	}
	var blocks []uint64
	for i := uint32(0); i < runCount; i++ {
		start, err := d.readUint64()
		if err != nil {
			return nil, fmt.Errorf("run %d start: %w", i, err)
		}
		length, err := d.readUint64()
		if err != nil {
			return nil, fmt.Errorf("run %d length: %w", i, err)
		}
		for k := uint64(0); k < length; k++ {
			blocks = append(blocks, start+k)
		}
	}
	return blocks, nil
}

func appendUint64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

func appendInt64(out []byte, v int64) []byte {
	return appendUint64(out, uint64(v))
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func appendString(out []byte, s string) []byte {
	return appendBytes(out, []byte(s))
}

func appendBytes(out []byte, b []byte) []byte {
	out = appendUint32(out, uint32(len(b)))
	return append(out, b...)
}

// decoder walks a catalog value buffer left to right.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) readByte() (byte, error) {
	if d.pos+1 > len(d.buf) {
		return 0, fmt.Errorf("unexpected end of buffer at %d", d.pos)
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("unexpected end of buffer at %d", d.pos)
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) readInt64() (int64, error) {
	v, err := d.readUint64()
	return int64(v), err
}

func (d *decoder) readUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, fmt.Errorf("unexpected end of buffer at %d", d.pos)
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("unexpected end of buffer at %d", d.pos)
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	if n == 0 {
		return nil, nil
	}
	return out, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
