// Package rtree implements an embeddable multi-dimensional spatial index: an
// R-tree (with optional R*-tree insertion and split refinements) keyed by
// 1..5-dimensional axis-aligned bounding rectangles, persisted through a
// pluggable Store and cached in a reference-counted node pool.
//
// The package's shape — a connection-like handle opened against a pluggable
// backing engine, with search/insert/delete engines layered over a
// reference-counted page cache — is grounded on the teacher's Env/Txn/Cursor
// split (github.com/Giulio2002/gdbx), rebuilt around R-tree cell semantics
// rather than B+tree key/value semantics.
package rtree

import "fmt"

// hostPageSizeHint stands in for the "page_size" of the host storage engine
// referenced by spec.md §6's node-size formula, since this package is not
// embedded in a paged database of its own.
const hostPageSizeHint = DefaultHostPageSize

// DefaultHostPageSize is the page size assumed when auto-sizing nodes.
const DefaultHostPageSize = 4096

// Options configures a new or reconnected Index.
type Options struct {
	// Name identifies the index within Store (used to derive table names
	// for adapters that need namespacing, §6).
	Name string

	// Dims is the number of axes, 1..5.
	Dims int

	// CoordType selects float32 or int32 coordinate storage.
	CoordType CoordType

	// Split selects the overflow policy. Zero value is SplitGuttmanQuadratic.
	Split SplitPolicy

	// Conflict selects what Update does when a new rowid collides.
	Conflict ConflictMode

	// NodeSize overrides the auto-selected node size; 0 means auto-select
	// per §6 on Create, or read the existing size on Connect.
	NodeSize int

	// Store is the backing-store adapter. Required.
	Store Store
}

// Index is a handle to one spatial index: its descriptor (spec.md §3),
// its node cache, and the engines layered over it.
type Index struct {
	name      string
	dims      int
	coordType CoordType
	split     SplitPolicy
	conflict  ConflictMode
	nodeSize  int
	m         int // max cells per node
	store     Store
	pool      *nodePool
}

func validateDims(dims int) error {
	if dims < MinDimensions || dims > MaxDimensions {
		return constraintf("dimensions %d out of range [%d,%d]", dims, MinDimensions, MaxDimensions)
	}
	return nil
}

// Create builds a brand-new index: validates options, selects a node size
// per §6's formula when not overridden, seeds the root page, and returns a
// ready-to-use Index.
func Create(opts Options) (*Index, error) {
	if err := validateDims(opts.Dims); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, constraintf("Store is required")
	}

	bpc := bytesPerCell(opts.Dims)
	nodeSize := opts.NodeSize
	if nodeSize == 0 {
		cap1 := hostPageSizeHint - reservedOverheadBytes
		cap2 := NodeHeaderSize + bpc*MaxCellsPerNode
		nodeSize = cap1
		if cap2 < nodeSize {
			nodeSize = cap2
		}
	}
	if nodeSize < NodeHeaderSize+bpc {
		return nil, constraintf("node size %d too small for %d dimensions", nodeSize, opts.Dims)
	}

	idx := &Index{
		name:      opts.Name,
		dims:      opts.Dims,
		coordType: opts.CoordType,
		split:     opts.Split,
		conflict:  opts.Conflict,
		nodeSize:  nodeSize,
		m:         maxCells(nodeSize, opts.Dims),
		store:     opts.Store,
	}
	idx.pool = newNodePool(idx)

	if err := bootstrap(idx.store, idx.nodeSize); err != nil {
		return nil, err
	}
	return idx, nil
}

// Connect reopens an existing index, reading the node size from the root
// page's length per §6 "On reconnect: read from the root blob's length".
func Connect(opts Options) (*Index, error) {
	if err := validateDims(opts.Dims); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		return nil, constraintf("Store is required")
	}

	blob, ok, err := opts.Store.ReadNode(RootNodeID)
	if err != nil {
		return nil, ioErr("reading root on connect", err)
	}
	if !ok {
		return nil, corruptf("index %q has no root node", opts.Name)
	}

	idx := &Index{
		name:      opts.Name,
		dims:      opts.Dims,
		coordType: opts.CoordType,
		split:     opts.Split,
		conflict:  opts.Conflict,
		nodeSize:  len(blob),
		m:         maxCells(len(blob), opts.Dims),
		store:     opts.Store,
	}
	idx.pool = newNodePool(idx)
	return idx, nil
}

// Close releases the index's backing store.
func (idx *Index) Close() error { return idx.store.Close() }

// Dims returns the number of axes.
func (idx *Index) Dims() int { return idx.dims }

// NodeSize returns the configured node size in bytes.
func (idx *Index) NodeSize() int { return idx.nodeSize }

// M returns the maximum number of cells per node.
func (idx *Index) M() int { return idx.m }

// Height returns the current tree height (0 = root is a leaf), reading and
// caching it from the root page the first time it's needed and whenever
// the root is evicted from the cache (§4.3 "When the released node is id=1
// the index's cached depth is invalidated").
func (idx *Index) Height() (int, error) {
	if idx.pool.cachedH >= 0 {
		return idx.pool.cachedH, nil
	}
	root, err := idx.pool.acquire(RootNodeID, nil)
	if err != nil {
		return 0, err
	}
	h := rootHeight(root.page)
	// release may itself invalidate cachedH (root refs dropping to zero
	// here, since nothing else pins it); reassert it afterward so a
	// standalone Height() call actually primes the cache instead of
	// immediately discarding what it just read.
	relErr := idx.pool.release(root)
	idx.pool.cachedH = h
	if relErr != nil {
		return 0, relErr
	}
	return h, nil
}

func (idx *Index) String() string {
	return fmt.Sprintf("rtree.Index{name=%s dims=%d coord=%s m=%d}", idx.name, idx.dims, idx.coordType, idx.m)
}
