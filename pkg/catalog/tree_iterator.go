package catalog

import "bytes"

// treeCursor walks the catalog tree from some starting path onward, used
// to implement Catalog.Range's prefix scans.
type treeCursor struct {
	tree *catTree
	path []catNode
	pos  []uint16
}

func (t *catTree) newCursor() *treeCursor {
	return &treeCursor{
		tree: t,
		path: make([]catNode, 0, 8),
		pos:  make([]uint16, 0, 8),
	}
}

// seekFloor positions the cursor at the last path <= key. Returns false
// if the catalog is empty.
func (c *treeCursor) seekFloor(key []byte) bool {
	c.path = c.path[:0]
	c.pos = c.pos[:0]

	if c.tree.root == 0 {
		return false
	}

	n := catNode(c.tree.get(c.tree.root))
	for {
		c.path = append(c.path, n)
		idx := nodeFloor(n, key)
		c.pos = append(c.pos, idx)

		if n.ntype() == nodeLeaf {
			break
		}
		n = catNode(c.tree.get(n.getPtr(idx)))
	}
	return true
}

func (c *treeCursor) valid() bool {
	if len(c.path) == 0 {
		return false
	}
	leaf := c.path[len(c.path)-1]
	pos := c.pos[len(c.pos)-1]
	return pos < leaf.nkeys()
}

func (c *treeCursor) key() []byte {
	if !c.valid() {
		return nil
	}
	leaf := c.path[len(c.path)-1]
	return leaf.getKey(c.pos[len(c.pos)-1])
}

func (c *treeCursor) val() []byte {
	if !c.valid() {
		return nil
	}
	leaf := c.path[len(c.path)-1]
	return leaf.getVal(c.pos[len(c.pos)-1])
}

// next advances to the next path in order, returning false once exhausted.
func (c *treeCursor) next() bool {
	if len(c.path) == 0 {
		return false
	}

	leafIdx := len(c.pos) - 1
	c.pos[leafIdx]++
	leaf := c.path[leafIdx]
	if c.pos[leafIdx] < leaf.nkeys() {
		return true
	}

	c.path = c.path[:leafIdx]
	c.pos = c.pos[:leafIdx]

	for len(c.pos) > 0 {
		parentIdx := len(c.pos) - 1
		c.pos[parentIdx]++
		parent := c.path[parentIdx]
		if c.pos[parentIdx] < parent.nkeys() {
			return c.descendToLeftmost()
		}
		c.path = c.path[:parentIdx]
		c.pos = c.pos[:parentIdx]
	}
	return false
}

func (c *treeCursor) descendToLeftmost() bool {
	for {
		parentIdx := len(c.path) - 1
		parent := c.path[parentIdx]
		pos := c.pos[parentIdx]

		child := catNode(c.tree.get(parent.getPtr(pos)))
		c.path = append(c.path, child)

		if child.ntype() == nodeLeaf {
			c.pos = append(c.pos, 0)
			return true
		}
		c.pos = append(c.pos, 0)
	}
}

// Scan calls fn for every path >= start, in lexicographic order, until fn
// returns false.
func (t *catTree) Scan(start []byte, fn func(key, val []byte) bool) {
	c := t.newCursor()
	if !c.seekFloor(start) {
		return
	}
	if bytes.Compare(c.key(), start) < 0 {
		if !c.next() {
			return
		}
	}
	for c.valid() {
		if !fn(c.key(), c.val()) {
			return
		}
		if !c.next() {
			return
		}
	}
}
