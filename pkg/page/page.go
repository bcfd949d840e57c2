// Package page defines the fixed 4096-byte storage unit shared by every
// block in a cartridge container, and the structured-page envelope used
// by non-content pages (catalog nodes, freelist pages, the audit trail).
package page

import (
	"crypto/sha256"
	"fmt"
)

// Size is the fixed page/block size in bytes. Every byte in a container
// file belongs to exactly one page.
const Size = 4096

// Type tags a page's payload so a reader knows how to interpret it.
type Type byte

const (
	TypeHeader      Type = 0
	TypeCatalogNode Type = 1
	TypeContentData Type = 2
	TypeFreelist    Type = 3
	TypeAudit       Type = 4
	TypeUnused      Type = 5
)

func (t Type) String() string {
	switch t {
	case TypeHeader:
		return "header"
	case TypeCatalogNode:
		return "catalog-node"
	case TypeContentData:
		return "content-data"
	case TypeFreelist:
		return "freelist"
	case TypeAudit:
		return "audit"
	case TypeUnused:
		return "unused"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// headerSize is the on-disk size of the reserved area prefixing every
// structured page: 1 byte type tag, 1 byte "has checksum" flag, 32 bytes
// of SHA-256 checksum over the payload.
const headerSize = 1 + 1 + sha256.Size

// PayloadSize is the usable payload of a structured page, after the
// reserved header area is subtracted.
const PayloadSize = Size - headerSize

// Page is a decoded structured (non-content) page: a type tag, an
// optional integrity checksum over the payload, and the payload itself.
type Page struct {
	Type        Type
	HasChecksum bool
	Checksum    [sha256.Size]byte
	Data        [PayloadSize]byte
}

// New creates a zeroed page of the given type.
func New(t Type) *Page {
	return &Page{Type: t}
}

// ComputeChecksum sets the page's checksum to the SHA-256 of its payload
// and marks it present.
func (p *Page) ComputeChecksum() {
	p.Checksum = sha256.Sum256(p.Data[:])
	p.HasChecksum = true
}

// VerifyChecksum reports whether the stored checksum (if any) matches the
// current payload. A page with no checksum always verifies.
func (p *Page) VerifyChecksum() bool {
	if !p.HasChecksum {
		return true
	}
	return p.Checksum == sha256.Sum256(p.Data[:])
}

// ToBytes serializes the page to exactly Size bytes.
func (p *Page) ToBytes() [Size]byte {
	var out [Size]byte
	out[0] = byte(p.Type)
	if p.HasChecksum {
		out[1] = 1
	}
	copy(out[2:2+sha256.Size], p.Checksum[:])
	copy(out[headerSize:], p.Data[:])
	return out
}

// FromBytes deserializes a page from exactly Size bytes, validating the
// checksum if present.
func FromBytes(buf []byte) (*Page, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("page: buffer must be %d bytes, got %d", Size, len(buf))
	}
	p := &Page{
		Type:        Type(buf[0]),
		HasChecksum: buf[1] == 1,
	}
	copy(p.Checksum[:], buf[2:2+sha256.Size])
	copy(p.Data[:], buf[headerSize:])
	if !p.VerifyChecksum() {
		return nil, fmt.Errorf("page: checksum mismatch for type %s", p.Type)
	}
	return p, nil
}
