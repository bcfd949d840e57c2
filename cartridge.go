package cartridge

import (
	"crypto/sha256"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelfs/cartridge/internal/cartlog"
	"github.com/kestrelfs/cartridge/internal/cartmetrics"
	"github.com/kestrelfs/cartridge/pkg/allocator"
	"github.com/kestrelfs/cartridge/pkg/bufferpool"
	"github.com/kestrelfs/cartridge/pkg/catalog"
	"github.com/kestrelfs/cartridge/pkg/header"
	"github.com/kestrelfs/cartridge/pkg/page"
	"github.com/kestrelfs/cartridge/pkg/pager"
)

func encodeManifest(m *Manifest) ([]byte, error) {
	return json.Marshal(m)
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ManifestPath is the reserved catalog entry every container carries,
// holding its identity (slug, title, instance id).
const ManifestPath = "/.cartridge/manifest.json"

// formatVersion is written into the manifest, independent of the on-disk
// header's Major/Minor (which govern page layout, not container metadata).
const formatVersion = "1.0"

// Options configures a Container at Create or Open time.
type Options struct {
	// BufferPoolSize is the number of pages the ARC buffer pool holds
	// resident. Zero selects the default of 256 pages.
	BufferPoolSize int
	Logger         *cartlog.Logger
	Metrics        *cartmetrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.BufferPoolSize == 0 {
		o.BufferPoolSize = 256
	}
	if o.Logger == nil {
		o.Logger = cartlog.Noop()
	}
	return o
}

// Manifest is the container's self-describing identity record, stored at
// ManifestPath like any other catalog entry.
type Manifest struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
	InstanceID  string `json:"instance_id"`
}

// Container is a single open cartridge: a growable, path-keyed blob store
// backed by fixed-size pages, coordinated through one RWMutex for
// concurrent reads and exclusive writes.
type Container struct {
	mu sync.RWMutex

	pg      *pager.Pager
	hdr     *header.Header
	alloc   *allocator.Hybrid
	cat     *catalog.Catalog
	pool    *bufferpool.Pool
	logger  *cartlog.Logger
	metrics *cartmetrics.Metrics
	path    string
}

// Entry describes one child returned by ListEntries: a name relative to
// its parent directory plus enough metadata to avoid a second lookup.
// CompressedSize always equals Size: the core has no compression
// pipeline, but external layers that add one still get a stable field
// to report through.
type Entry struct {
	Name           string
	Path           string
	IsDir          bool
	Size           uint64
	CompressedSize uint64
	Metadata       *catalog.FileMetadata
}

// Stats is a point-in-time snapshot of container health.
type Stats struct {
	TotalBlocks        uint64
	FreeBlocks         uint64
	FragmentationScore float64
	BufferPool         bufferpool.Stats
	FileCount          uint64
	DirectoryCount     uint64
}

// Create initializes a new container file at path, seeded with an empty
// catalog and a manifest recording slug and title.
func Create(path, slug, title string, opts Options) (*Container, error) {
	opts = opts.withDefaults()

	pg, err := pager.Create(path)
	if err != nil {
		return nil, wrapErr(KindIO, "create container", err)
	}

	hdr := header.New(header.MinTotalBlocks, header.MinTotalBlocks-1)
	if err := pg.Extend(hdr.TotalBlocks); err != nil {
		pg.Close()
		return nil, wrapErr(KindIO, "extend to initial size", err)
	}

	c := &Container{
		pg:      pg,
		hdr:     hdr,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		path:    path,
		pool:    bufferpool.New(opts.BufferPoolSize),
	}

	fs := allocator.NewFreeSet(hdr.TotalBlocks, []uint64{0})
	c.alloc = allocator.NewHybrid(fs, pg, c.onGrow)
	c.cat = catalog.Open(pg, c.alloc, 0)

	manifest := &Manifest{
		Slug:       slug,
		Title:      title,
		Version:    formatVersion,
		InstanceID: uuid.NewString(),
	}
	if err := c.writeManifestLocked(manifest); err != nil {
		pg.Close()
		return nil, err
	}
	if err := c.persistHeaderLocked(); err != nil {
		pg.Close()
		return nil, err
	}

	c.logger.LogContainerOpen(path, c.hdr.TotalBlocks, c.alloc.FreeBlocks())
	return c, nil
}

// Open reopens an existing container file. Since block ownership outside
// file content (catalog B-tree nodes, the header itself) isn't persisted
// as a separate free list, the allocator's free set is reconstructed by
// walking the catalog: every block referenced by a FileMetadata entry or
// owned by a catalog tree node is marked used, and everything else is
// free. This is the scavenge-on-open strategy; Scavenge performs the same
// walk against an already-open container to reclaim leaked blocks.
func Open(path string, opts Options) (*Container, error) {
	opts = opts.withDefaults()

	pg, err := pager.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, "open container", err)
	}

	raw, err := pg.ReadRaw(0)
	if err != nil {
		pg.Close()
		return nil, wrapErr(KindIO, "read header page", err)
	}
	hdr, err := header.FromPage(raw[:])
	if err != nil {
		pg.Close()
		return nil, classifyHeaderErr(err)
	}

	c := &Container{
		pg:      pg,
		hdr:     hdr,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		path:    path,
		pool:    bufferpool.New(opts.BufferPoolSize),
	}

	// Placeholder free set (everything but block 0 free) just so the
	// catalog has something to read through while it rebuilds itself.
	fs := allocator.NewFreeSet(hdr.TotalBlocks, []uint64{0})
	c.alloc = allocator.NewHybrid(fs, pg, c.onGrow)
	c.cat = catalog.Open(pg, c.alloc, hdr.CatalogRootPageID)

	used, err := c.usedBlocksLocked()
	if err != nil {
		pg.Close()
		return nil, err
	}
	c.alloc.ReplaceFreeSet(allocator.NewFreeSet(hdr.TotalBlocks, used))

	c.logger.LogContainerOpen(path, c.hdr.TotalBlocks, c.alloc.FreeBlocks())
	return c, nil
}

func classifyHeaderErr(err error) error {
	if err == header.ErrInvalidMagic {
		return wrapErr(KindInvalidMagic, "open container", err)
	}
	if _, ok := err.(*header.UnsupportedVersionError); ok {
		return wrapErr(KindUnsupportedVersion, "open container", err)
	}
	return wrapErr(KindSerialization, "open container", err)
}

// usedBlocksLocked walks the catalog to compute every block id currently
// owned by it: header page 0, every catalog B-tree node page, and every
// content block referenced by a file's FileMetadata.Blocks.
func (c *Container) usedBlocksLocked() ([]uint64, error) {
	used := map[uint64]bool{0: true}
	for _, id := range c.cat.AllNodePageIDs() {
		used[id] = true
	}

	entries, err := c.cat.Range("/")
	if err != nil {
		return nil, wrapErr(KindSerialization, "scan catalog", err)
	}
	for _, e := range entries {
		for _, b := range e.Metadata.Blocks {
			used[b] = true
		}
	}

	ids := make([]uint64, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *Container) onGrow(oldTotal, newTotal uint64) {
	c.logger.LogGrow(oldTotal, newTotal)
	c.metrics.RecordGrow()
}

// persistHeaderLocked refreshes the header's block accounting and catalog
// root from the live allocator/catalog state and writes page 0. Callers
// must already hold the write lock.
func (c *Container) persistHeaderLocked() error {
	c.hdr.TotalBlocks = c.alloc.TotalBlocks()
	c.hdr.FreeBlocks = c.alloc.FreeBlocks()
	c.hdr.CatalogRootPageID = c.cat.RootPageID()
	buf := c.hdr.ToPage()
	if err := c.pg.WriteRaw(0, buf[:]); err != nil {
		return wrapErr(KindIO, "persist header", err)
	}
	c.metrics.UpdateSpaceStats(c.hdr.TotalBlocks, c.hdr.FreeBlocks, c.alloc.FragmentationScore())
	return nil
}

func (c *Container) writeManifestLocked(m *Manifest) error {
	data, err := encodeManifest(m)
	if err != nil {
		return wrapErr(KindSerialization, "encode manifest", err)
	}
	return c.writeFileLocked(ManifestPath, data, catalog.TypeFile)
}

// Write stores data at path, creating or overwriting the entry and any
// missing ancestor directories. The new content is written and the
// catalog updated before any blocks the overwrite freed are released, so
// a crash mid-write never exposes a half-written file (write-then-swap
// coherence).
func (c *Container) Write(path string, data []byte) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.writeFileLocked(path, data, catalog.TypeFile)
	c.metrics.RecordOperation("write", status(err), time.Since(start))
	return err
}

func (c *Container) writeFileLocked(path string, data []byte, fileType catalog.FileType) error {
	if err := c.ensureAncestorsLocked(path); err != nil {
		return err
	}

	existing, had, err := c.cat.Get(path)
	if err != nil {
		return wrapErr(KindSerialization, "read existing entry", err)
	}

	var ids []uint64
	if len(data) > 0 {
		ids, err = c.alloc.Allocate(uint64(len(data)))
		if err != nil {
			return classifyAllocErr(err)
		}
		if err := c.writeContentLocked(ids, data); err != nil {
			return err
		}
	}

	var oldBlocks []uint64
	if had {
		oldBlocks = existing.Blocks
	}

	var meta *catalog.FileMetadata
	if had && existing.FileType == fileType {
		existing.Blocks = ids
		existing.Size = uint64(len(data))
		existing.Touch()
		meta = existing
	} else {
		meta = catalog.NewFileMetadata(fileType, uint64(len(data)), ids)
	}
	if len(data) > 0 {
		sum := sha256.Sum256(data)
		meta.ContentHash = sum[:]
	} else {
		meta.ContentHash = nil
	}

	if err := c.cat.Insert(path, meta); err != nil {
		return wrapErr(KindSerialization, "insert catalog entry", err)
	}

	if len(oldBlocks) > 0 {
		if err := c.alloc.Free(oldBlocks); err != nil {
			return wrapErr(KindAllocation, "free overwritten blocks", err)
		}
		for _, id := range oldBlocks {
			c.pool.Invalidate(id)
		}
	}

	return c.persistHeaderLocked()
}

func (c *Container) writeContentLocked(ids []uint64, data []byte) error {
	for i, id := range ids {
		var chunk [page.Size]byte
		lo := i * page.Size
		hi := lo + page.Size
		if hi > len(data) {
			hi = len(data)
		}
		copy(chunk[:], data[lo:hi])
		if err := c.pg.WriteRaw(id, chunk[:]); err != nil {
			return wrapErr(KindIO, "write content block", err)
		}
		c.pool.Put(id, append([]byte(nil), chunk[:]...))
	}
	return nil
}

// ensureAncestorsLocked creates any missing parent directories of path.
func (c *Container) ensureAncestorsLocked(path string) error {
	dir := parentDir(path)
	if dir == "" || dir == "/" {
		return nil
	}
	_, ok, err := c.cat.Get(dir)
	if err != nil {
		return wrapErr(KindSerialization, "check ancestor directory", err)
	}
	if ok {
		return nil
	}
	if err := c.ensureAncestorsLocked(dir); err != nil {
		return err
	}
	if err := c.cat.Insert(dir, catalog.NewDirectoryMetadata()); err != nil {
		return wrapErr(KindSerialization, "create ancestor directory", err)
	}
	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndex(strings.TrimSuffix(path, "/"), "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// Read returns the full content of the file at path.
func (c *Container) Read(path string) ([]byte, error) {
	start := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok, err := c.cat.Get(path)
	if err != nil {
		c.metrics.RecordOperation("read", "error", time.Since(start))
		return nil, wrapErr(KindSerialization, "read entry", err)
	}
	if !ok {
		c.metrics.RecordOperation("read", "not_found", time.Since(start))
		return nil, NotFound(path)
	}

	data := make([]byte, 0, int(meta.Size))
	for _, id := range meta.Blocks {
		chunk, cached := c.pool.Get(id)
		if cached {
			c.metrics.RecordBufferPoolHit()
		} else {
			c.metrics.RecordBufferPoolMiss()
			raw, err := c.pg.ReadRaw(id)
			if err != nil {
				return nil, wrapErr(KindIO, "read content block", err)
			}
			chunk = make([]byte, page.Size)
			copy(chunk, raw[:])
			c.pool.Put(id, chunk)
		}
		data = append(data, chunk...)
	}
	if uint64(len(data)) > meta.Size {
		data = data[:meta.Size]
	}

	c.metrics.RecordOperation("read", "ok", time.Since(start))
	return data, nil
}

// Delete removes the entry at path, freeing its content blocks.
func (c *Container) Delete(path string) error {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, had, err := c.cat.Get(path)
	if err != nil {
		c.metrics.RecordOperation("delete", "error", time.Since(start))
		return wrapErr(KindSerialization, "read entry before delete", err)
	}
	if !had {
		c.metrics.RecordOperation("delete", "not_found", time.Since(start))
		return NotFound(path)
	}

	if _, err := c.cat.Delete(path); err != nil {
		return wrapErr(KindSerialization, "delete catalog entry", err)
	}

	if len(meta.Blocks) > 0 {
		if err := c.alloc.Free(meta.Blocks); err != nil {
			return wrapErr(KindAllocation, "free deleted blocks", err)
		}
		for _, id := range meta.Blocks {
			c.pool.Invalidate(id)
		}
	}

	if err := c.persistHeaderLocked(); err != nil {
		return err
	}
	c.metrics.RecordOperation("delete", "ok", time.Since(start))
	return nil
}

// Metadata returns the FileMetadata record for path without reading content.
func (c *Container) Metadata(path string) (*catalog.FileMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok, err := c.cat.Get(path)
	if err != nil {
		return nil, wrapErr(KindSerialization, "read metadata", err)
	}
	if !ok {
		return nil, NotFound(path)
	}
	return meta, nil
}

// List returns the base names of the direct children of dir.
func (c *Container) List(dir string) ([]string, error) {
	entries, err := c.ListEntries(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// ListEntries returns the direct children of dir with their metadata.
func (c *Container) ListEntries(dir string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	children, err := c.cat.ListChildren(dir)
	if err != nil {
		return nil, wrapErr(KindSerialization, "list children", err)
	}
	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		entries = append(entries, Entry{
			Name:           strings.TrimPrefix(child.Path, strings.TrimSuffix(dir, "/")+"/"),
			Path:           child.Path,
			IsDir:          child.Metadata.IsDirectory(),
			Size:           child.Metadata.Size,
			CompressedSize: child.Metadata.Size,
			Metadata:       child.Metadata,
		})
	}
	return entries, nil
}

// Stats reports the current allocator and buffer pool state, plus a
// count of files and directories in the catalog.
func (c *Container) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var files, dirs uint64
	if entries, err := c.cat.Range("/"); err == nil {
		for _, e := range entries {
			if e.Metadata.IsDirectory() {
				dirs++
			} else {
				files++
			}
		}
	}

	return Stats{
		TotalBlocks:        c.alloc.TotalBlocks(),
		FreeBlocks:         c.alloc.FreeBlocks(),
		FragmentationScore: c.alloc.FragmentationScore(),
		BufferPool:         c.pool.Stats(),
		FileCount:          files,
		DirectoryCount:     dirs,
	}
}

// Scavenge recomputes block ownership from the catalog and reconciles the
// allocator's free set against it, reclaiming any leaked blocks. Returns
// the number of blocks reclaimed. This is the same walk Open uses to
// rebuild allocator state, exposed here as a caller-invoked reconciliation
// pass against an already-open container.
func (c *Container) Scavenge() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.alloc.FreeBlocks()
	used, err := c.usedBlocksLocked()
	if err != nil {
		return 0, err
	}
	c.alloc.ReplaceFreeSet(allocator.NewFreeSet(c.hdr.TotalBlocks, used))
	after := c.alloc.FreeBlocks()

	if err := c.persistHeaderLocked(); err != nil {
		return 0, err
	}
	if after > before {
		return after - before, nil
	}
	return 0, nil
}

// Flush durably syncs all pending writes to disk.
func (c *Container) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persistHeaderLocked(); err != nil {
		return err
	}
	if err := c.pg.Sync(); err != nil {
		return wrapErr(KindIO, "flush", err)
	}
	return nil
}

// Close flushes and releases the underlying file handle.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persistHeaderLocked(); err != nil {
		return err
	}
	if err := c.pg.Sync(); err != nil {
		return wrapErr(KindIO, "close: sync", err)
	}
	if err := c.pg.Close(); err != nil {
		return wrapErr(KindIO, "close", err)
	}
	return nil
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func classifyAllocErr(err error) error {
	if err == allocator.ErrOutOfSpace {
		return wrapErr(KindOutOfSpace, "allocate content blocks", err)
	}
	return wrapErr(KindAllocation, "allocate content blocks", err)
}
