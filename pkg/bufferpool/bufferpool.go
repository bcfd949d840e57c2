// Package bufferpool implements a bounded in-memory cache of decoded pages
// keyed by page id, replacing entries under an Adaptive Replacement Cache
// (ARC) policy: a recency list (T1) and a frequency list (T2) sized by a
// tunable split point p, backed by ghost lists (B1, B2) of recently
// evicted ids that adapt p toward whichever list has been predicting
// misses. Callers read-miss against the pager and then Put the result;
// write-through callers Put directly so a write is visible to the next
// read before the call returns.
package bufferpool

import (
	"container/list"
	"sync"

)

// Stats is a point-in-time snapshot of cache effectiveness and internal
// ARC sizing, for metrics and diagnostics.
type Stats struct {
	Hits   uint64
	Misses uint64

	T1Size int
	T2Size int
	B1Size int
	B2Size int
	P      int
}

// Pool is a fixed-capacity ARC cache of decoded pages.
type Pool struct {
	mu sync.Mutex

	capacity int
	p        int // target size of T1, in [0, capacity]

	t1, t2, b1, b2 *list.List
	elems          map[uint64]*list.Element // id -> element, across all four lists
	pages          map[uint64][]byte        // id -> cached content, for T1/T2 members only

	hits, misses uint64
}

// New returns an empty pool with the given capacity (number of pages, not
// bytes). A capacity of 0 disables caching: every Get misses and Put is a
// no-op, which is a valid (if useless) configuration rather than an error.
func New(capacity int) *Pool {
	return &Pool{
		capacity: capacity,
		t1:       list.New(),
		t2:       list.New(),
		b1:       list.New(),
		b2:       list.New(),
		elems:    make(map[uint64]*list.Element),
		pages:    make(map[uint64][]byte),
	}
}

// Capacity returns the maximum number of resident (T1+T2) pages.
func (p *Pool) Capacity() int { return p.capacity }

// Get returns the cached page for id, if resident in T1 or T2, promoting
// it to the MRU end of T2: a hit in either list migrates the entry
// toward the frequency list.
func (p *Pool) Get(id uint64) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.elems[id]; ok {
		if pg, cached := p.pages[id]; cached {
			p.promoteToT2(id, el)
			p.hits++
			return pg, true
		}
	}
	p.misses++
	return nil, false
}

func (p *Pool) promoteToT2(id uint64, el *list.Element) {
	switch el.Value.(listTag).list {
	case tagT1:
		p.t1.Remove(el)
	case tagT2:
		p.t2.Remove(el)
	default:
		return
	}
	p.elems[id] = p.t2.PushFront(listTag{id: id, list: tagT2})
}

type tag int

const (
	tagT1 tag = iota
	tagT2
	tagB1
	tagB2
)

type listTag struct {
	id   uint64
	list tag
}

// Put inserts or refreshes the cached page for id, running the ARC
// replacement and ghost-adaptation procedure when id is not already
// resident.
func (p *Pool) Put(id uint64, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity == 0 {
		return
	}

	if el, ok := p.elems[id]; ok {
		switch el.Value.(listTag).list {
		case tagT1, tagT2:
			p.pages[id] = data
			p.promoteToT2(id, el)
			return
		case tagB1:
			p.adapt(1)
			p.b1.Remove(el)
			delete(p.elems, id)
			p.replace(false)
			p.pages[id] = data
			p.elems[id] = p.t2.PushFront(listTag{id: id, list: tagT2})
			return
		case tagB2:
			p.adapt(-1)
			p.b2.Remove(el)
			delete(p.elems, id)
			p.replace(true)
			p.pages[id] = data
			p.elems[id] = p.t2.PushFront(listTag{id: id, list: tagT2})
			return
		}
	}

	// Case IV: id is not present anywhere (not even as a ghost).
	l1 := p.t1.Len() + p.b1.Len()
	total := p.t1.Len() + p.t2.Len() + p.b1.Len() + p.b2.Len()
	switch {
	case l1 == p.capacity:
		if p.t1.Len() < p.capacity {
			p.dropLRU(p.b1, tagB1)
			p.replace(false)
		} else {
			p.evictLRUFromCache(p.t1, tagT1)
		}
	case l1 < p.capacity && total >= p.capacity:
		if total == 2*p.capacity {
			p.dropLRU(p.b2, tagB2)
		}
		p.replace(false)
	}

	p.pages[id] = data
	p.elems[id] = p.t1.PushFront(listTag{id: id, list: tagT1})
}

// adapt shifts the target T1 size p by one ghost-list-ratio step. dir > 0
// means a B1 ghost hit (favor recency); dir < 0 means a B2 ghost hit
// (favor frequency).
func (p *Pool) adapt(dir int) {
	if dir > 0 {
		delta := 1
		if p.b1.Len() > 0 && p.b2.Len() > 0 {
			delta = max(1, p.b2.Len()/p.b1.Len())
		}
		p.p = min(p.capacity, p.p+delta)
	} else {
		delta := 1
		if p.b1.Len() > 0 && p.b2.Len() > 0 {
			delta = max(1, p.b1.Len()/p.b2.Len())
		}
		p.p = max(0, p.p-delta)
	}
}

// replace evicts one entry from T1 or T2 into the corresponding ghost
// list, per the ARC REPLACE procedure. triggeredByB2 is true when the
// access that called REPLACE was itself a B2 ghost hit, which biases the
// victim choice toward T1 even when |T1| == p exactly.
func (p *Pool) replace(triggeredByB2 bool) {
	if p.t1.Len() >= 1 && (p.t1.Len() > p.p || (triggeredByB2 && p.t1.Len() == p.p)) {
		p.evictLRUFromCache(p.t1, tagT1)
	} else if p.t2.Len() > 0 {
		p.evictLRUFromCache(p.t2, tagT2)
	} else if p.t1.Len() > 0 {
		p.evictLRUFromCache(p.t1, tagT1)
	}
}

// evictLRUFromCache moves the LRU entry of src (T1 or T2) into the
// matching ghost list, dropping its cached page.
func (p *Pool) evictLRUFromCache(src *list.List, from tag) {
	el := src.Back()
	if el == nil {
		return
	}
	id := el.Value.(listTag).id
	src.Remove(el)
	delete(p.pages, id)

	var dst *list.List
	var dstTag tag
	if from == tagT1 {
		dst, dstTag = p.b1, tagB1
	} else {
		dst, dstTag = p.b2, tagB2
	}
	p.elems[id] = dst.PushFront(listTag{id: id, list: dstTag})
	p.trimGhost(dst)
}

// dropLRU removes the LRU entry of a ghost list entirely (no cached page
// to release, since ghost lists never hold one).
func (p *Pool) dropLRU(l *list.List, tg tag) {
	el := l.Back()
	if el == nil {
		return
	}
	id := el.Value.(listTag).id
	l.Remove(el)
	delete(p.elems, id)
}

// trimGhost enforces the classic ARC bound that |T1|+|B1| and
// |T2|+|B2| never exceed capacity.
func (p *Pool) trimGhost(l *list.List) {
	var resident int
	if l == p.b1 {
		resident = p.t1.Len()
	} else {
		resident = p.t2.Len()
	}
	for resident+l.Len() > p.capacity && l.Len() > 0 {
		el := l.Back()
		id := el.Value.(listTag).id
		l.Remove(el)
		delete(p.elems, id)
	}
}

// Invalidate removes id from the pool entirely, including ghost history.
// Used for write-through coherence when a block is freed or overwritten
// outside the normal read/fetch path.
func (p *Pool) Invalidate(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.elems[id]
	if !ok {
		return
	}
	switch el.Value.(listTag).list {
	case tagT1:
		p.t1.Remove(el)
	case tagT2:
		p.t2.Remove(el)
	case tagB1:
		p.b1.Remove(el)
	case tagB2:
		p.b2.Remove(el)
	}
	delete(p.elems, id)
	delete(p.pages, id)
}

// Stats returns a snapshot of hit/miss counters and internal list sizes.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Hits:   p.hits,
		Misses: p.misses,
		T1Size: p.t1.Len(),
		T2Size: p.t2.Len(),
		B1Size: p.b1.Len(),
		B2Size: p.b2.Len(),
		P:      p.p,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
