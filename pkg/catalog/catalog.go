package catalog

import (
	"fmt"
	"strings"

	"github.com/kestrelfs/cartridge/pkg/page"
)

// PageAllocator is the allocator capability the catalog needs: one page at
// a time for B-tree nodes.
type PageAllocator interface {
	Allocate(sizeBytes uint64) ([]uint64, error)
	Free(blockIDs []uint64) error
}

// PageStore is the pager capability the catalog needs to persist nodes.
type PageStore interface {
	ReadPage(id uint64) (*page.Page, error)
	WritePage(id uint64, pg *page.Page) error
}

// Catalog is the persistent ordered map from path string to FileMetadata,
// backed by a catTree whose nodes live one per page, allocated and freed
// through the container's shared allocator and persisted through the
// pager.
type Catalog struct {
	tree  catTree
	pager PageStore
	alloc PageAllocator
	// err captures an I/O failure surfaced by a get/newPage/del callback
	// (a later failure overwrites an earlier one), since the tree's page
	// callbacks cannot themselves return an error. Get, Insert, Delete and
	// Range check and clear it after use.
	err error
}

// Open wires a catalog to its backing pager and allocator, rooted at
// rootPageID (0 means the catalog is empty).
func Open(pager PageStore, alloc PageAllocator, rootPageID uint64) *Catalog {
	c := &Catalog{pager: pager, alloc: alloc}
	c.tree.SetRoot(rootPageID)
	c.tree.SetCallbacks(c.getNode, c.newNode, c.delNode)
	return c
}

// RootPageID returns the current root page of the catalog tree, for
// persisting into the container header.
func (c *Catalog) RootPageID() uint64 { return c.tree.GetRoot() }

// AllNodePageIDs returns every page id currently owned by the catalog's
// B-tree (internal nodes and leaves), for reconstructing block ownership
// on reopen without a separately persisted free list.
func (c *Catalog) AllNodePageIDs() []uint64 { return c.tree.AllPageIDs() }

func (c *Catalog) getNode(id uint64) []byte {
	pg, err := c.pager.ReadPage(id)
	if err != nil {
		c.err = fmt.Errorf("catalog: read node page %d: %w", id, err)
		return make([]byte, catPageSize)
	}
	if pg.Type != page.TypeCatalogNode {
		c.err = fmt.Errorf("catalog: page %d has type %s, want catalog-node", id, pg.Type)
	}
	return pg.Data[:]
}

func (c *Catalog) newNode(data []byte) uint64 {
	ids, err := c.alloc.Allocate(page.Size)
	if err != nil {
		c.err = fmt.Errorf("catalog: allocate node page: %w", err)
		return 0
	}
	id := ids[0]
	pg := page.New(page.TypeCatalogNode)
	copy(pg.Data[:], data)
	pg.ComputeChecksum()
	if err := c.pager.WritePage(id, pg); err != nil {
		c.err = fmt.Errorf("catalog: write node page %d: %w", id, err)
	}
	return id
}

func (c *Catalog) delNode(id uint64) {
	if err := c.alloc.Free([]uint64{id}); err != nil {
		c.err = fmt.Errorf("catalog: free node page %d: %w", id, err)
	}
}

func (c *Catalog) takeErr() error {
	err := c.err
	c.err = nil
	return err
}

// Get looks up the metadata for an exact path.
func (c *Catalog) Get(path string) (*FileMetadata, bool, error) {
	val, ok := c.tree.Get([]byte(path))
	if err := c.takeErr(); err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	m, err := DecodeMetadata(val)
	if err != nil {
		return nil, false, fmt.Errorf("catalog: decode metadata for %q: %w", path, err)
	}
	return m, true, nil
}

// Insert creates or overwrites the metadata record at path. It fails
// before touching any page if the path or its encoded metadata exceeds
// the catalog tree's per-entry size budget.
func (c *Catalog) Insert(path string, m *FileMetadata) error {
	if err := c.tree.Insert([]byte(path), EncodeMetadata(m)); err != nil {
		return err
	}
	return c.takeErr()
}

// Delete removes the metadata record at path, returning whether it existed.
func (c *Catalog) Delete(path string) (bool, error) {
	existed := c.tree.Delete([]byte(path))
	if err := c.takeErr(); err != nil {
		return false, err
	}
	return existed, nil
}

// Entry pairs a path with its decoded metadata, as returned by range scans.
type Entry struct {
	Path     string
	Metadata *FileMetadata
}

// Range scans every path with the given prefix, in lexicographic order,
// decoding each value.
func (c *Catalog) Range(prefix string) ([]Entry, error) {
	var entries []Entry
	var scanErr error
	c.tree.Scan([]byte(prefix), func(key, val []byte) bool {
		path := string(key)
		if !strings.HasPrefix(path, prefix) {
			return false
		}
		m, err := DecodeMetadata(val)
		if err != nil {
			scanErr = fmt.Errorf("catalog: decode metadata for %q: %w", path, err)
			return false
		}
		entries = append(entries, Entry{Path: path, Metadata: m})
		return true
	})
	if err := c.takeErr(); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return entries, nil
}

// ListChildren returns the direct children of dir: entries under dir + "/"
// with no further "/" in the remainder of their path.
func (c *Catalog) ListChildren(dir string) ([]Entry, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	all, err := c.Range(prefix)
	if err != nil {
		return nil, err
	}
	var children []Entry
	for _, e := range all {
		rest := strings.TrimPrefix(e.Path, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		children = append(children, e)
	}
	return children, nil
}
