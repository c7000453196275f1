package rtree

import "github.com/rtreeindex/rtree/spill"

// This file is the node cache (spec.md §4.3): a reference-counted,
// hash-indexed pool of loaded node pages with dirty tracking and parent
// back-links, grounded on the node/page abstractions of the teacher's
// node.go and accelerated the way internal/fastmap accelerates gdbx's own
// dirty-page lookups — here repurposed as hash-chain buckets rather than
// open addressing, per spec.md's explicit chaining requirement.

// memNode is the in-memory record for one loaded or newly allocated page
// (spec.md §3 "In-memory node record").
type memNode struct {
	id     int64 // 0 until first persisted
	refs   int
	dirty  bool
	parent *memNode
	page   []byte

	hashNext *memNode // chain link within its bucket

	spillSlot *spill.Slot // non-nil when page is backed by a SpillCache
}

func (n *memNode) count() int              { return cellCount(n.page) }
func (n *memNode) setCount(c int)          { setCellCount(n.page, c) }
func (n *memNode) cellAt(i int, dims int, ct CoordType) Cell {
	return decodeCell(n.page, i, dims, ct)
}
func (n *memNode) setCellAt(i int, c Cell, ct CoordType) {
	encodeCell(n.page, i, c, ct)
	n.dirty = true
}

// nodePool is the per-index cache described by spec.md §3/§4.3.
type nodePool struct {
	idx        *Index
	buckets    [HashBuckets]*memNode
	cachedH    int // cached tree height, -1 when unknown
	reinsertH  int // reinsert_height sentinel (§4.6); -1 when not reinserting
	deleted    *memNode // singly-linked list of orphaned nodes (pDeleted), chained via hashNext
	busy       int
	rowidSeq   int64       // auto-generated-rowid probe cursor (supplements §4.8)
	spill      *SpillCache // optional overflow allocator for fresh pages
}

func newNodePool(idx *Index) *nodePool {
	return &nodePool{idx: idx, cachedH: -1, reinsertH: -1}
}

// bucketHash XOR-folds all eight bytes of id into one byte (§4.3), then
// masks that byte to HashBuckets.
func bucketHash(id int64) int {
	u := uint64(id)
	var b byte
	for i := 0; i < 8; i++ {
		b ^= byte(u >> (8 * i))
	}
	return int(b) & (HashBuckets - 1)
}

func (p *nodePool) hashLookup(id int64) *memNode {
	if id == 0 {
		return nil
	}
	for n := p.buckets[bucketHash(id)]; n != nil; n = n.hashNext {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (p *nodePool) hashInsert(n *memNode) {
	h := bucketHash(n.id)
	n.hashNext = p.buckets[h]
	p.buckets[h] = n
}

func (p *nodePool) hashDelete(n *memNode) {
	h := bucketHash(n.id)
	cur := p.buckets[h]
	if cur == n {
		p.buckets[h] = n.hashNext
		n.hashNext = nil
		return
	}
	for cur != nil {
		if cur.hashNext == n {
			cur.hashNext = n.hashNext
			n.hashNext = nil
			return
		}
		cur = cur.hashNext
	}
}

// acquire loads (or returns the already-cached) node id, reference counting
// it. If the node's parent link is absent and parentHint is supplied, the
// hint is attached (and itself reference counted) — but a hint that
// contradicts an already-recorded parent is never overwritten (§9 "parent
// back-links form a tree, not a graph").
func (p *nodePool) acquire(id int64, parentHint *memNode) (*memNode, error) {
	if n := p.hashLookup(id); n != nil {
		n.refs++
		if n.parent == nil && parentHint != nil {
			parentHint.refs++
			n.parent = parentHint
		}
		return n, nil
	}

	blob, ok, err := p.idx.store.ReadNode(id)
	if err != nil {
		return nil, ioErr("reading node", err)
	}
	if !ok {
		return nil, corruptf("node %d: missing page", id)
	}
	if len(blob) != p.idx.nodeSize {
		return nil, corruptf("node %d: page size %d != configured %d", id, len(blob), p.idx.nodeSize)
	}
	if cellCount(blob) > p.idx.m {
		return nil, corruptf("node %d: cell count %d exceeds M=%d", id, cellCount(blob), p.idx.m)
	}
	if id == RootNodeID {
		if h := rootHeight(blob); h > MaxHeight || h < 0 {
			return nil, corruptf("root height %d out of range", h)
		}
	}

	n := &memNode{id: id, page: blob, refs: 1, parent: parentHint}
	if parentHint != nil {
		parentHint.refs++
	}
	p.hashInsert(n)
	return n, nil
}

// newNode allocates a zeroed page with id 0, refcount 1, dirty, linked to
// parent (which is reference counted in turn). It is not hashed until its
// id is assigned at flush (§3 "Lifecycle").
func (p *nodePool) newNode(parent *memNode) *memNode {
	n := &memNode{refs: 1, dirty: true, parent: parent}
	if p.spill != nil {
		if data, slot, err := p.spill.alloc(); err == nil {
			n.page, n.spillSlot = data, slot
		}
	}
	if n.page == nil {
		n.page = make([]byte, p.idx.nodeSize)
	}
	for i := range n.page {
		n.page[i] = 0
	}
	if parent != nil {
		parent.refs++
	}
	return n
}

// release decrements n's reference count. On reaching zero it releases the
// parent (recursively), flushes the page if dirty, and removes n from the
// hash. The first flush error encountered anywhere in that unwind is
// returned to the caller, matching §9's "a write can fail; failure must
// surface to the operation that triggered the release."
func (p *nodePool) release(n *memNode) error {
	if n == nil {
		return nil
	}
	n.refs--
	if n.refs > 0 {
		return nil
	}

	var firstErr error
	if n.parent != nil {
		if err := p.release(n.parent); err != nil {
			firstErr = err
		}
		n.parent = nil
	}
	if n.dirty {
		if err := p.flush(n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n.id != 0 {
		p.hashDelete(n)
		if n.id == RootNodeID {
			p.cachedH = -1
		}
	}
	if n.spillSlot != nil && p.spill != nil {
		p.spill.release(n.spillSlot)
		n.spillSlot = nil
	}
	return firstErr
}

// flush writes n's page via the store if dirty. A node allocated with id 0
// gets the adapter-assigned id and is (re-)hashed under it.
func (p *nodePool) flush(n *memNode) error {
	if !n.dirty {
		return nil
	}
	assigned, err := p.idx.store.WriteNode(n.id, n.page)
	if err != nil {
		return ioErr("writing node", err)
	}
	if n.id == 0 {
		n.id = assigned
		p.hashInsert(n)
	}
	n.dirty = false
	return nil
}

// pushDeleted adds an orphaned node to the deleted list, keyed by its
// sub-tree height stashed where its id used to live (spec.md §4.7
// delete_cell: "move it to the index's pDeleted list, keyed by its
// sub-tree height stored in-place where its id used to be").
func (p *nodePool) pushDeleted(n *memNode, height int) {
	n.id = int64(height)
	n.hashNext = p.deleted
	p.deleted = n
}

// popDeleted removes and returns the head of the deleted list, or nil.
func (p *nodePool) popDeleted() *memNode {
	n := p.deleted
	if n == nil {
		return nil
	}
	p.deleted = n.hashNext
	n.hashNext = nil
	return n
}
