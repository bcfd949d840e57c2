package catalog

import (
	"fmt"
	"testing"

	"github.com/kestrelfs/cartridge/pkg/page"
)

// memStore is an in-memory stand-in for the pager, used to exercise the
// catalog without a real container file.
type memStore struct {
	pages map[uint64]*page.Page
}

func newMemStore() *memStore { return &memStore{pages: map[uint64]*page.Page{}} }

func (s *memStore) ReadPage(id uint64) (*page.Page, error) {
	pg, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("memStore: no page %d", id)
	}
	return pg, nil
}

func (s *memStore) WritePage(id uint64, pg *page.Page) error {
	s.pages[id] = pg
	return nil
}

// memAllocator hands out sequential page ids starting at 1 (0 is reserved
// for the header in a real container).
type memAllocator struct {
	next uint64
	free map[uint64]bool
}

func newMemAllocator() *memAllocator {
	return &memAllocator{next: 1, free: map[uint64]bool{}}
}

func (a *memAllocator) Allocate(sizeBytes uint64) ([]uint64, error) {
	id := a.next
	a.next++
	return []uint64{id}, nil
}

func (a *memAllocator) Free(blockIDs []uint64) error {
	for _, id := range blockIDs {
		a.free[id] = true
	}
	return nil
}

func newTestCatalog() *Catalog {
	return Open(newMemStore(), newMemAllocator(), 0)
}

func TestCatalogInsertGet(t *testing.T) {
	c := newTestCatalog()

	m := NewFileMetadata(TypeFile, 17, []uint64{5})
	if err := c.Insert("/hello.txt", m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := c.Get("/hello.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected /hello.txt to exist")
	}
	if got.Size != 17 || len(got.Blocks) != 1 || got.Blocks[0] != 5 {
		t.Fatalf("unexpected metadata: %+v", got)
	}
}

func TestCatalogGetMissing(t *testing.T) {
	c := newTestCatalog()
	_, ok, err := c.Get("/nope.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected /nope.txt to be absent")
	}
}

func TestCatalogDelete(t *testing.T) {
	c := newTestCatalog()
	if err := c.Insert("/a", NewFileMetadata(TypeFile, 1, []uint64{1})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	existed, err := c.Delete("/a")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !existed {
		t.Fatal("expected /a to have existed")
	}
	_, ok, err := c.Get("/a")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Fatal("expected /a to be gone after delete")
	}
}

func TestCatalogMetadataRoundtripsContentTypeAndUserMetadata(t *testing.T) {
	c := newTestCatalog()
	m := NewFileMetadata(TypeFile, 3, []uint64{9}).
		WithContentType("text/plain").
		WithUserMetadata("author", "ci").
		WithUserMetadata("checksum-alg", "sha256")

	if err := c.Insert("/doc", m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok, err := c.Get("/doc")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ContentType != "text/plain" {
		t.Errorf("expected content type text/plain, got %q", got.ContentType)
	}
	if got.UserMetadata["author"] != "ci" || got.UserMetadata["checksum-alg"] != "sha256" {
		t.Errorf("unexpected user metadata: %+v", got.UserMetadata)
	}
}

func TestCatalogListChildrenDirectOnly(t *testing.T) {
	c := newTestCatalog()
	paths := []string{"/dir/a.txt", "/dir/b.txt", "/dir/sub/c.txt", "/other.txt"}
	for _, p := range paths {
		if err := c.Insert(p, NewFileMetadata(TypeFile, 0, nil)); err != nil {
			t.Fatalf("Insert %s: %v", p, err)
		}
	}

	children, err := c.ListChildren("/dir")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 direct children, got %d: %+v", len(children), children)
	}
	for _, e := range children {
		if e.Path != "/dir/a.txt" && e.Path != "/dir/b.txt" {
			t.Errorf("unexpected child %q", e.Path)
		}
	}
}

func TestCatalogRootPageIDPersists(t *testing.T) {
	c := newTestCatalog()
	if c.RootPageID() != 0 {
		t.Fatalf("expected empty catalog to report root page 0, got %d", c.RootPageID())
	}
	if err := c.Insert("/a", NewFileMetadata(TypeFile, 1, []uint64{1})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if c.RootPageID() == 0 {
		t.Fatal("expected a non-zero root page after the first insert")
	}
}
