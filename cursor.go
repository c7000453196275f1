package rtree

// This file is the search engine (spec.md §4.5): constraint compilation,
// the two scan strategies, and the cursor state machine that drives
// descend-to-cell and next-row. Grounded on the teacher's cursor.go
// positioning/state-machine shape (a cursor owns a current node and
// position, and advances by walking the cache's parent back-links),
// rebuilt around cell-vs-constraint predicates instead of B+tree key
// comparison.

// Constraint is one compiled search predicate (§4.5). For relational ops
// the comparison is against Value; for MATCH, against Geom (the cursor
// takes ownership of it: Close calls Geom.Release).
type Constraint struct {
	Column int // coordinate index, 0..2*dims-1 (2*axis = min, 2*axis+1 = max)
	Op     ConstraintOp
	Value  float64
	Geom   *MatchArg
}

// Cursor scans an index under a strategy and a compiled constraint set.
type Cursor struct {
	idx         *Index
	strategy    int
	constraints []Constraint

	node    *memNode // currently positioned node (leaf for a found row); nil when exhausted
	cellIdx int
	height  int // height of node

	done bool
}

// NewCursor opens a cursor for strategy 1 (rowid lookup) or strategy 2
// (tree scan) against constraints, per the plan ChooseStrategy produced.
func (idx *Index) NewCursor(strategy int, constraints []Constraint) *Cursor {
	return &Cursor{idx: idx, strategy: strategy, constraints: constraints}
}

// Open positions the cursor on its first matching row (or marks it
// exhausted). Strategy 1 is a single rowid lookup with a one-shot lifetime
// (§4.5); strategy 2 begins a DFS from the root.
func (c *Cursor) Open(rowid int64) error {
	if c.strategy == 1 {
		return c.openDirect(rowid)
	}
	return c.openScan()
}

func (c *Cursor) openDirect(rowid int64) error {
	nodeID, ok, err := c.idx.store.ReadRowid(rowid)
	if err != nil {
		return ioErr("reading rowid", err)
	}
	if !ok {
		c.done = true
		return nil
	}
	leaf, err := c.idx.pool.acquire(nodeID, nil)
	if err != nil {
		return err
	}
	n := leaf.count()
	for i := 0; i < n; i++ {
		if leaf.cellAt(i, c.idx.dims, c.idx.coordType).Key == rowid {
			c.node, c.cellIdx, c.height = leaf, i, 0
			return nil
		}
	}
	c.idx.pool.release(leaf)
	c.done = true
	return nil
}

func (c *Cursor) openScan() error {
	root, err := c.idx.pool.acquire(RootNodeID, nil)
	if err != nil {
		return err
	}
	height, err := c.idx.Height()
	if err != nil {
		c.idx.pool.release(root)
		return err
	}
	c.node, c.cellIdx, c.height = root, 0, height
	matched, err := c.descend()
	if err != nil {
		return err
	}
	if !matched {
		c.done = true
	}
	return nil
}

// Valid reports whether the cursor is positioned on a row.
func (c *Cursor) Valid() bool { return !c.done && c.node != nil }

// Cell returns the cell the cursor is currently positioned on (valid only
// when Valid() is true).
func (c *Cursor) Cell() Cell { return c.node.cellAt(c.cellIdx, c.idx.dims, c.idx.coordType) }

// Close releases the cursor's node reference and disposes of any MATCH
// contexts it was handed, exactly once (§4.10).
func (c *Cursor) Close() error {
	for _, cst := range c.constraints {
		if cst.Geom != nil {
			cst.Geom.Release()
		}
	}
	if c.node == nil {
		return nil
	}
	n := c.node
	c.node = nil
	return c.idx.pool.release(n)
}

// excludesInternal applies the cell-vs-constraint predicates of §4.5.
func excludesInternal(box Rect, cst Constraint) (bool, error) {
	if cst.Op == OpMATCH {
		if cst.Geom == nil {
			return false, nil
		}
		ok, err := cst.Geom.Fn(cst.Geom.Ctx, box.dims(), []float64(box))
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	axis := cst.Column >> 1
	minV, maxV := box.min(axis), box.max(axis)
	switch cst.Op {
	case OpLE, OpLT:
		return cst.Value < minV, nil
	case OpGE, OpGT:
		return cst.Value > maxV, nil
	case OpEQ:
		return cst.Value < minV || cst.Value > maxV, nil
	}
	return false, nil
}

func includesLeaf(box Rect, cst Constraint) (bool, error) {
	if cst.Op == OpMATCH {
		if cst.Geom == nil {
			return true, nil
		}
		return cst.Geom.Fn(cst.Geom.Ctx, box.dims(), []float64(box))
	}
	axis := cst.Column >> 1
	isMax := cst.Column&1 == 1
	v := box.min(axis)
	if isMax {
		v = box.max(axis)
	}
	switch cst.Op {
	case OpLE:
		return v <= cst.Value, nil
	case OpLT:
		return v < cst.Value, nil
	case OpGE:
		return v >= cst.Value, nil
	case OpGT:
		return v > cst.Value, nil
	case OpEQ:
		return v == cst.Value, nil
	}
	return true, nil
}

func (c *Cursor) testInternal(box Rect) (bool, error) {
	for _, cst := range c.constraints {
		excl, err := excludesInternal(box, cst)
		if err != nil {
			return false, err
		}
		if excl {
			return false, nil
		}
	}
	return true, nil
}

func (c *Cursor) testLeaf(box Rect) (bool, error) {
	for _, cst := range c.constraints {
		ok, err := includesLeaf(box, cst)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// descend implements the descend-to-cell recursion (§4.5): starting at the
// cursor's current node/cellIdx/height, find the first non-excluded
// terminal (leaf) cell reachable by DFS, leaving the cursor positioned
// there. Returns false if nothing below matches; the cursor is then back
// on its entry node, with cellIdx past that node's last cell.
func (c *Cursor) descend() (bool, error) {
	for {
		n := c.node.count()
		for c.cellIdx < n {
			cell := c.node.cellAt(c.cellIdx, c.idx.dims, c.idx.coordType)
			if c.height == 0 {
				ok, err := c.testLeaf(cell.Box)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
				c.cellIdx++
				continue
			}
			ok, err := c.testInternal(cell.Box)
			if err != nil {
				return false, err
			}
			if !ok {
				c.cellIdx++
				continue
			}
			child, err := c.idx.pool.acquire(cell.Key, c.node)
			if err != nil {
				return false, err
			}
			parent := c.node
			parentCellIdx := c.cellIdx
			c.node, c.cellIdx, c.height = child, 0, c.height-1
			matched, err := c.descend()
			if err != nil {
				return false, err
			}
			if matched {
				if err := c.idx.pool.release(parent); err != nil {
					return false, err
				}
				return true, nil
			}
			if err := c.idx.pool.release(child); err != nil {
				return false, err
			}
			c.node, c.cellIdx, c.height = parent, parentCellIdx, c.height+1
			c.cellIdx++
		}
		return false, nil
	}
}

// Next advances the cursor to the next matching row (§4.5 "Next-row"):
// strategy 1 is one-shot and always exhausts; strategy 2 advances within
// the current leaf, backtracking up via the parent link and a linear scan
// for the child's cell index when the leaf is exhausted, then descending
// again.
func (c *Cursor) Next() error {
	if c.done || c.node == nil {
		return nil
	}
	if c.strategy == 1 {
		if err := c.idx.pool.release(c.node); err != nil {
			c.node = nil
			c.done = true
			return err
		}
		c.node = nil
		c.done = true
		return nil
	}

	c.cellIdx++
	for {
		n := c.node.count()
		if c.cellIdx < n {
			matched, err := c.descend()
			if err != nil {
				return err
			}
			if matched {
				return nil
			}
			c.cellIdx++
			continue
		}
		if c.node.id == RootNodeID {
			if err := c.idx.pool.release(c.node); err != nil {
				c.node = nil
				c.done = true
				return err
			}
			c.node = nil
			c.done = true
			return nil
		}
		parent := c.node.parent
		if parent == nil {
			return corruptf("node %d: exhausted with no parent link", c.node.id)
		}
		ci := c.idx.findChildCell(parent, c.node.id)
		if ci < 0 {
			return corruptf("parent %d: no cell for child %d (next-row)", parent.id, c.node.id)
		}
		child := c.node
		parent.refs++
		if err := c.idx.pool.release(child); err != nil {
			return err
		}
		c.node, c.cellIdx, c.height = parent, ci+1, c.height+1
	}
}
