// Package pager translates page ids into file offsets and back. It is the
// only component that touches the container file directly; every other
// subsystem addresses blocks by id.
package pager

import (
	"fmt"
	"os"

	"github.com/kestrelfs/cartridge/pkg/page"
)

// Pager owns the container's file handle and performs whole-page I/O by id.
type Pager struct {
	file *os.File
	path string
}

// Create truncates (or creates) the file at path and returns a Pager over
// it. The caller is responsible for writing page 0 before anyone reads it.
func Create(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: create %s: %w", path, err)
	}
	return &Pager{file: f, path: path}, nil
}

// Open opens an existing container file for read/write page access.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}
	return &Pager{file: f, path: path}, nil
}

// Path returns the underlying file path.
func (p *Pager) Path() string { return p.path }

// TotalBlocks returns the number of whole pages currently backing the file.
func (p *Pager) TotalBlocks() (uint64, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("pager: stat: %w", err)
	}
	return uint64(info.Size()) / page.Size, nil
}

// ReadPage reads and decodes a structured page by id.
func (p *Pager) ReadPage(id uint64) (*page.Page, error) {
	buf, err := p.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	pg, err := page.FromBytes(buf[:])
	if err != nil {
		return nil, fmt.Errorf("pager: decode page %d: %w", id, err)
	}
	return pg, nil
}

// WritePage encodes and writes a structured page by id.
func (p *Pager) WritePage(id uint64, pg *page.Page) error {
	buf := pg.ToBytes()
	return p.WriteRaw(id, buf[:])
}

// ReadRaw reads the raw 4096-byte contents of a page, bypassing structured
// decoding. Used for opaque content-data pages.
func (p *Pager) ReadRaw(id uint64) ([page.Size]byte, error) {
	var buf [page.Size]byte
	n, err := p.file.ReadAt(buf[:], int64(id)*page.Size)
	if err != nil {
		return buf, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	if n != page.Size {
		return buf, fmt.Errorf("pager: short read on page %d: got %d bytes", id, n)
	}
	return buf, nil
}

// WriteRaw writes exactly page.Size bytes of raw content at the given page
// id, bypassing structured encoding.
func (p *Pager) WriteRaw(id uint64, data []byte) error {
	if len(data) != page.Size {
		return fmt.Errorf("pager: write page %d: buffer must be %d bytes, got %d", id, page.Size, len(data))
	}
	if _, err := p.file.WriteAt(data, int64(id)*page.Size); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	return nil
}

// Extend grows the file to hold newTotalBlocks pages. Bytes in the newly
// added region read back as zero.
func (p *Pager) Extend(newTotalBlocks uint64) error {
	if err := p.file.Truncate(int64(newTotalBlocks) * page.Size); err != nil {
		return fmt.Errorf("pager: extend to %d blocks: %w", newTotalBlocks, err)
	}
	return nil
}

// Sync durably flushes all pending writes to disk.
func (p *Pager) Sync() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (p *Pager) Close() error {
	return p.file.Close()
}
