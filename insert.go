package rtree

import "math"

// This file is the insertion engine (spec.md §4.6): choose-leaf, node
// split (Guttman or R*), forced reinsertion, tree-height growth and
// bounding-box adjustment.

// insertNewCell is the entry point used by Update (§4.8): resets the
// reinsert-height sentinel for this operation, descends to a leaf, and
// inserts.
func (idx *Index) insertNewCell(c Cell) error {
	idx.pool.reinsertH = -1
	leaf, err := idx.chooseLeaf(c, 0)
	if err != nil {
		return err
	}
	if err := idx.insertCell(leaf, 0, c); err != nil {
		idx.pool.release(leaf)
		return err
	}
	return idx.pool.release(leaf)
}

// chooseLeaf descends from the root picking, at each level, the child
// requiring least growth (and, for R*-tree at the level just above leaves,
// least overlap-enlargement) until it reaches targetHeight levels above the
// leaf frontier. The returned node is owned by the caller (one reference).
func (idx *Index) chooseLeaf(c Cell, targetHeight int) (*memNode, error) {
	height, err := idx.Height()
	if err != nil {
		return nil, err
	}
	cur, err := idx.pool.acquire(RootNodeID, nil)
	if err != nil {
		return nil, err
	}
	curHeight := height
	for curHeight > targetHeight {
		if cur.count() == 0 {
			return nil, corruptf("node %d: empty internal node mid-descent", cur.id)
		}
		var best int
		if idx.split == SplitRStar && curHeight == targetHeight+1 {
			best = idx.pickChildRStar(cur, c.Box)
		} else {
			best = idx.pickChildGrowth(cur, c.Box)
		}
		childCell := cur.cellAt(best, idx.dims, idx.coordType)
		child, err := idx.pool.acquire(childCell.Key, cur)
		if err != nil {
			idx.pool.release(cur)
			return nil, err
		}
		if err := idx.pool.release(cur); err != nil {
			idx.pool.release(child)
			return nil, err
		}
		cur = child
		curHeight--
	}
	return cur, nil
}

// pickChildGrowth picks the child cell minimizing growth, then area, then
// (as a deterministic tie-break) lowest child id.
func (idx *Index) pickChildGrowth(node *memNode, box Rect) int {
	n := node.count()
	best := 0
	bestGrowth := math.Inf(1)
	bestArea := math.Inf(1)
	var bestKey int64
	for i := 0; i < n; i++ {
		c := node.cellAt(i, idx.dims, idx.coordType)
		g := c.Box.growth(box)
		a := c.Box.area()
		better := i == 0
		if !better {
			if g < bestGrowth {
				better = true
			} else if g == bestGrowth {
				if a < bestArea {
					better = true
				} else if a == bestArea && c.Key < bestKey {
					better = true
				}
			}
		}
		if better {
			best, bestGrowth, bestArea, bestKey = i, g, a, c.Key
		}
	}
	return best
}

// pickChildRStar picks the child minimizing overlap-enlargement against its
// siblings, then growth, then area (§4.6, used only at the level directly
// above leaves under the R*-tree variant).
func (idx *Index) pickChildRStar(node *memNode, box Rect) int {
	n := node.count()
	rects := make([]Rect, n)
	keys := make([]int64, n)
	for i := 0; i < n; i++ {
		c := node.cellAt(i, idx.dims, idx.coordType)
		rects[i] = c.Box
		keys[i] = c.Key
	}
	best := 0
	bestEnl := math.Inf(1)
	bestGrowth := math.Inf(1)
	bestArea := math.Inf(1)
	for i := 0; i < n; i++ {
		before := overlap(rects, rects[i], i)
		grown := unionOf(rects[i], box)
		after := overlap(rects, grown, i)
		enl := after - before
		g := grown.area() - rects[i].area()
		a := rects[i].area()
		better := i == 0
		if !better {
			if enl < bestEnl {
				better = true
			} else if enl == bestEnl {
				if g < bestGrowth {
					better = true
				} else if g == bestGrowth {
					if a < bestArea {
						better = true
					} else if a == bestArea && keys[i] < keys[best] {
						better = true
					}
				}
			}
		}
		if better {
			best, bestEnl, bestGrowth, bestArea = i, enl, g, a
		}
	}
	return best
}

// insertCell inserts c into node at the given height (0 = leaf), splitting
// or forcing reinsertion on overflow, then propagating the bounding-box
// growth to the root.
func (idx *Index) insertCell(node *memNode, height int, c Cell) error {
	if height > 0 {
		if child := idx.pool.hashLookup(c.Key); child != nil && child.parent == nil {
			child.parent = node
			node.refs++
		}
	}

	if node.count() < idx.m {
		i := node.count()
		node.setCellAt(i, c, idx.coordType)
		node.setCount(i + 1)
		node.dirty = true
		if err := idx.writeCellMapping(c.Key, node, height); err != nil {
			return err
		}
		return idx.adjustTree(node, c.Box)
	}

	return idx.splitOrReinsert(node, c, height)
}

// writeCellMapping records key -> node.id in the rowid table (height 0) or
// the parent table (height > 0), flushing node first if it has no id yet.
func (idx *Index) writeCellMapping(key int64, node *memNode, height int) error {
	if node.id == 0 {
		if err := idx.pool.flush(node); err != nil {
			return err
		}
	}
	if height == 0 {
		return idx.store.WriteRowid(key, node.id)
	}
	return idx.store.WriteParent(key, node.id)
}

// adjustTree walks from node all the way to the root, widening each
// ancestor's cell on that path so it still encloses box; a cell that
// already contains box is left as it is and the walk goes on.
func (idx *Index) adjustTree(node *memNode, box Rect) error {
	if err := idx.ensureParentChain(node); err != nil {
		return err
	}
	cur := node
	for cur.id != RootNodeID {
		parent := cur.parent
		ci := idx.findChildCell(parent, cur.id)
		if ci < 0 {
			return corruptf("parent %d: no cell for child %d", parent.id, cur.id)
		}
		pc := parent.cellAt(ci, idx.dims, idx.coordType)
		if !pc.Box.contains(box) {
			grown := unionOf(pc.Box, box)
			parent.setCellAt(ci, Cell{Key: pc.Key, Box: grown}, idx.coordType)
		}
		cur = parent
	}
	return nil
}

// syncBBoxUpward recomputes node's bounding box as the union of its current
// cells and, if that differs from what its parent has recorded, replaces
// (not merely grows) the parent's cell and recurses. Used after an
// operation that can shrink a node's box (split, forced reinsertion,
// condensation), where adjustTree's grow-only logic would not suffice.
func (idx *Index) syncBBoxUpward(node *memNode) error {
	if node.id == RootNodeID {
		return nil
	}
	if err := idx.ensureParentChain(node); err != nil {
		return err
	}
	box := idx.unionOfCells(node)
	parent := node.parent
	ci := idx.findChildCell(parent, node.id)
	if ci < 0 {
		return corruptf("parent %d: no cell for child %d", parent.id, node.id)
	}
	pc := parent.cellAt(ci, idx.dims, idx.coordType)
	if rectEqual(pc.Box, box) {
		return nil
	}
	parent.setCellAt(ci, Cell{Key: pc.Key, Box: box}, idx.coordType)
	return idx.syncBBoxUpward(parent)
}

func rectEqual(a, b Rect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unionOfCells returns the bounding box enclosing every cell of node.
func (idx *Index) unionOfCells(node *memNode) Rect {
	n := node.count()
	box := node.cellAt(0, idx.dims, idx.coordType).Box
	out := make(Rect, len(box))
	copy(out, box)
	for i := 1; i < n; i++ {
		out.union(node.cellAt(i, idx.dims, idx.coordType).Box)
	}
	return out
}

// findChildCell returns the index within parent whose key equals childID,
// or -1 if not present (an invariant-7 violation if this ever happens).
func (idx *Index) findChildCell(parent *memNode, childID int64) int {
	n := parent.count()
	for i := 0; i < n; i++ {
		if parent.cellAt(i, idx.dims, idx.coordType).Key == childID {
			return i
		}
	}
	return -1
}

// ensureParentChain walks up from n populating parent back-links from the
// parent table where missing, refusing cycles (§9, spec.md §4.7
// fix_leaf_parent).
func (idx *Index) ensureParentChain(n *memNode) error {
	if n.id == RootNodeID {
		return nil
	}
	visited := map[int64]bool{n.id: true}
	cur := n
	for cur.id != RootNodeID {
		if cur.parent == nil {
			pid, ok, err := idx.store.ReadParent(cur.id)
			if err != nil {
				return ioErr("reading parent", err)
			}
			if !ok {
				return corruptf("node %d: no parent entry", cur.id)
			}
			if visited[pid] {
				return corruptf("parent-chain cycle detected at node %d", pid)
			}
			parent, err := idx.pool.acquire(pid, nil)
			if err != nil {
				return err
			}
			cur.parent = parent
		}
		visited[cur.parent.id] = true
		cur = cur.parent
	}
	return nil
}

// splitOrReinsert handles node overflow: under the R*-tree policy, the
// first overflow encountered at a given height during one update forces a
// reinsertion instead of a split (§4.6); every other overflow splits.
func (idx *Index) splitOrReinsert(node *memNode, newCell Cell, height int) error {
	if idx.split == SplitRStar && height > idx.pool.reinsertH && node.id != RootNodeID {
		idx.pool.reinsertH = height
		return idx.forceReinsert(node, newCell, height)
	}
	return idx.splitNode(node, newCell, height)
}

// forceReinsert implements the R*-tree overflow policy: the M+1 cells are
// sorted by distance from the node's centroid; the closest ceil(2M/3) are
// kept in the (emptied) node, and the furthest are reinserted from the root
// via choose_leaf.
func (idx *Index) forceReinsert(node *memNode, newCell Cell, height int) error {
	cells := idx.materializeCells(node, newCell)
	box := unionOfAll(cells)
	center := box.centroid()

	sortByDistance(cells, center)

	keep := (2*idx.m + 2) / 3
	if keep > len(cells) {
		keep = len(cells)
	}
	closest := cells[:keep]
	furthest := cells[keep:]

	zeroPage(node.page)
	node.setCount(0)
	node.dirty = true
	for i, c := range closest {
		node.setCellAt(i, c, idx.coordType)
		if err := idx.writeCellMapping(c.Key, node, height); err != nil {
			return err
		}
	}
	node.setCount(len(closest))

	if err := idx.syncBBoxUpward(node); err != nil {
		return err
	}

	for _, c := range furthest {
		leaf, err := idx.chooseLeaf(c, height)
		if err != nil {
			return err
		}
		err = idx.insertCell(leaf, height, c)
		if rerr := idx.pool.release(leaf); err == nil {
			err = rerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// splitNode materializes node's M cells plus newCell and distributes them
// into two nodes per the configured split policy (§4.6).
func (idx *Index) splitNode(node *memNode, newCell Cell, height int) error {
	cells := idx.materializeCells(node, newCell)

	var groupA, groupB []int
	switch idx.split {
	case SplitGuttmanLinear:
		groupA, groupB = linearSplit(cells, idx.m)
	case SplitRStar:
		groupA, groupB = rstarSplit(cells, idx.m)
	default:
		groupA, groupB = quadraticSplit(cells, idx.m)
	}

	isRoot := node.id == RootNodeID
	var left, right *memNode
	var err error
	if isRoot {
		left = idx.pool.newNode(node)
		right = idx.pool.newNode(node)
	} else {
		if err = idx.ensureParentChain(node); err != nil {
			return err
		}
		left = node
		zeroPage(left.page)
		left.dirty = true
		right = idx.pool.newNode(node.parent)
	}

	// Every cell being placed is a child-node id once height > 0 (§4.3); a
	// cell moving away from its old in-memory parent must have that cached
	// child's .parent link repointed, or the next findChildCell against the
	// stale parent fails (§9 "parent back-links form a tree, not a graph").
	if isRoot {
		if err := idx.reparentCachedChildren(cells, groupA, node, left, height); err != nil {
			return err
		}
		if err := idx.reparentCachedChildren(cells, groupB, node, right, height); err != nil {
			return err
		}
	} else {
		if err := idx.reparentCachedChildren(cells, groupB, node, right, height); err != nil {
			return err
		}
	}

	for i, ci := range groupA {
		left.setCellAt(i, cells[ci], idx.coordType)
	}
	left.setCount(len(groupA))
	for i, ci := range groupB {
		right.setCellAt(i, cells[ci], idx.coordType)
	}
	right.setCount(len(groupB))

	leftBox := idx.unionOfCells(left)
	rightBox := idx.unionOfCells(right)

	if isRoot {
		if err := idx.pool.flush(left); err != nil {
			return err
		}
		if err := idx.pool.flush(right); err != nil {
			return err
		}
		for _, ci := range groupA {
			if err := idx.writeCellMapping(cells[ci].Key, left, height); err != nil {
				return err
			}
		}
		for _, ci := range groupB {
			if err := idx.writeCellMapping(cells[ci].Key, right, height); err != nil {
				return err
			}
		}

		zeroPage(node.page)
		node.setCellAt(0, Cell{Key: left.id, Box: leftBox}, idx.coordType)
		node.setCellAt(1, Cell{Key: right.id, Box: rightBox}, idx.coordType)
		node.setCount(2)
		node.dirty = true
		newHeight := height + 1
		if cached, herr := idx.Height(); herr == nil {
			newHeight = cached + 1
		}
		setRootHeight(node.page, newHeight)
		idx.pool.cachedH = newHeight

		if err := idx.store.WriteParent(left.id, node.id); err != nil {
			return ioErr("writing parent", err)
		}
		if err := idx.store.WriteParent(right.id, node.id); err != nil {
			return ioErr("writing parent", err)
		}

		// left/right were created with refs==1 (§4.3 "new -> refcount 1":
		// the creator owns and must release that reference). Releasing them
		// here lets the zero-refs write-back cascade (nodecache.go release)
		// flush the reused root once its own last reference goes away,
		// instead of pinning it and the whole ancestor spine forever.
		if err := idx.pool.release(left); err != nil {
			return err
		}
		return idx.pool.release(right)
	}

	if err := idx.pool.flush(right); err != nil {
		return err
	}
	for _, ci := range groupB {
		if err := idx.writeCellMapping(cells[ci].Key, right, height); err != nil {
			return err
		}
	}
	for _, ci := range groupA {
		if err := idx.writeCellMapping(cells[ci].Key, left, height); err != nil {
			return err
		}
	}

	if err := idx.insertCell(node.parent, height+1, Cell{Key: right.id, Box: rightBox}); err != nil {
		return err
	}
	if err := idx.pool.release(right); err != nil {
		return err
	}
	return idx.syncBBoxUpward(left)
}

// reparentCachedChildren re-points the .parent link of any live cached
// child among cells[idxs] whose parent was oldParent, to newParent,
// transferring the refcount oldParent held on its behalf. A no-op at leaf
// height, where cell keys are rowids rather than child node ids and would
// otherwise collide with unrelated cached node ids.
func (idx *Index) reparentCachedChildren(cells []Cell, idxs []int, oldParent, newParent *memNode, height int) error {
	if height == 0 || oldParent == newParent {
		return nil
	}
	for _, ci := range idxs {
		child := idx.pool.hashLookup(cells[ci].Key)
		if child == nil || child.parent != oldParent {
			continue
		}
		newParent.refs++
		child.parent = newParent
		if err := idx.pool.release(oldParent); err != nil {
			return err
		}
	}
	return nil
}

// materializeCells decodes node's existing cells plus newCell into a fresh
// M+1-length slice, deep-copied so later page mutation can't alias them.
func (idx *Index) materializeCells(node *memNode, newCell Cell) []Cell {
	n := node.count()
	cells := make([]Cell, 0, n+1)
	for i := 0; i < n; i++ {
		cells = append(cells, node.cellAt(i, idx.dims, idx.coordType).clone())
	}
	cells = append(cells, newCell.clone())
	return cells
}

func unionOfAll(cells []Cell) Rect {
	box := make(Rect, len(cells[0].Box))
	copy(box, cells[0].Box)
	for _, c := range cells[1:] {
		box.union(c.Box)
	}
	return box
}

func sortByDistance(cells []Cell, center []float64) {
	dist := make([]float64, len(cells))
	for i, c := range cells {
		dist[i] = sqDist(c.Box.centroid(), center)
	}
	// simple insertion sort: these slices are at most M+1 <= 52 long.
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && dist[j] < dist[j-1]; j-- {
			cells[j], cells[j-1] = cells[j-1], cells[j]
			dist[j], dist[j-1] = dist[j-1], dist[j]
		}
	}
}

func zeroPage(page []byte) {
	for i := range page {
		page[i] = 0
	}
}

// quadraticSplit implements Guttman's quadratic seed selection and PickNext
// assignment (§4.6, §9 — using the corrected left/right growth formula).
func quadraticSplit(cells []Cell, m int) (groupA, groupB []int) {
	n := len(cells)
	bestVal := math.Inf(-1)
	si, sj := 0, 1
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := unionOf(cells[i].Box, cells[j].Box).area() - cells[j].Box.area()
			if v > bestVal {
				bestVal, si, sj = v, i, j
			}
		}
	}

	groupA = []int{si}
	groupB = []int{sj}
	leftBox := make(Rect, len(cells[si].Box))
	copy(leftBox, cells[si].Box)
	rightBox := make(Rect, len(cells[sj].Box))
	copy(rightBox, cells[sj].Box)

	assigned := make([]bool, n)
	assigned[si], assigned[sj] = true, true
	remaining := n - 2
	minReq := minCells(m)

	for remaining > 0 {
		if len(groupA)+remaining <= minReq {
			for i := 0; i < n; i++ {
				if !assigned[i] {
					groupA = append(groupA, i)
					leftBox.union(cells[i].Box)
					assigned[i] = true
				}
			}
			break
		}
		if len(groupB)+remaining <= minReq {
			for i := 0; i < n; i++ {
				if !assigned[i] {
					groupB = append(groupB, i)
					rightBox.union(cells[i].Box)
					assigned[i] = true
				}
			}
			break
		}

		bestI := -1
		bestDiff := math.Inf(-1)
		var bestGL, bestGR float64
		for i := 0; i < n; i++ {
			if assigned[i] {
				continue
			}
			gl := leftBox.growth(cells[i].Box)
			gr := rightBox.growth(cells[i].Box)
			diff := math.Abs(gl - gr)
			if diff > bestDiff {
				bestDiff, bestI, bestGL, bestGR = diff, i, gl, gr
			}
		}

		assignLeft := bestGL < bestGR
		if bestGL == bestGR {
			la, ra := leftBox.area(), rightBox.area()
			if la != ra {
				assignLeft = la < ra
			} else {
				assignLeft = len(groupA) <= len(groupB)
			}
		}
		if assignLeft {
			groupA = append(groupA, bestI)
			leftBox.union(cells[bestI].Box)
		} else {
			groupB = append(groupB, bestI)
			rightBox.union(cells[bestI].Box)
		}
		assigned[bestI] = true
		remaining--
	}
	return groupA, groupB
}

// linearSplit implements Guttman's linear seed selection (per-axis extreme
// normalized separation) and a single-pass, array-order assignment (§4.6).
func linearSplit(cells []Cell, m int) (groupA, groupB []int) {
	n := len(cells)
	dims := cells[0].Box.dims()

	bestNorm := math.Inf(-1)
	var si, sj int
	for a := 0; a < dims; a++ {
		lm, rm := 0, 0
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for i, c := range cells {
			if c.Box.max(a) < cells[lm].Box.max(a) {
				lm = i
			}
			if c.Box.min(a) > cells[rm].Box.min(a) {
				rm = i
			}
			if c.Box.max(a) > gmax {
				gmax = c.Box.max(a)
			}
			if c.Box.min(a) < gmin {
				gmin = c.Box.min(a)
			}
		}
		extent := gmax - gmin
		if extent == 0 {
			extent = 1
		}
		sep := (cells[rm].Box.min(a) - cells[lm].Box.max(a)) / extent
		if sep > bestNorm {
			bestNorm, si, sj = sep, lm, rm
		}
	}
	if si == sj {
		sj = (si + 1) % n
	}

	groupA = []int{si}
	groupB = []int{sj}
	leftBox := make(Rect, len(cells[si].Box))
	copy(leftBox, cells[si].Box)
	rightBox := make(Rect, len(cells[sj].Box))
	copy(rightBox, cells[sj].Box)

	assigned := make([]bool, n)
	assigned[si], assigned[sj] = true, true
	minReq := minCells(m)
	remaining := n - 2

	for i, c := range cells {
		if assigned[i] {
			continue
		}
		if len(groupA)+remaining <= minReq {
			groupA = append(groupA, i)
			leftBox.union(c.Box)
			remaining--
			continue
		}
		if len(groupB)+remaining <= minReq {
			groupB = append(groupB, i)
			rightBox.union(c.Box)
			remaining--
			continue
		}
		gl := leftBox.growth(c.Box)
		gr := rightBox.growth(c.Box)
		if gl < gr || (gl == gr && leftBox.area() <= rightBox.area()) {
			groupA = append(groupA, i)
			leftBox.union(c.Box)
		} else {
			groupB = append(groupB, i)
			rightBox.union(c.Box)
		}
		remaining--
	}
	return groupA, groupB
}

// rstarSplit implements the R*-tree margin-optimal split: for each axis,
// sort by min (tie by max), scan valid split positions accumulating total
// margin, and pick the axis/position minimizing margin then overlap then
// area (§4.6).
func rstarSplit(cells []Cell, m int) (groupA, groupB []int) {
	n := len(cells)
	dims := cells[0].Box.dims()
	minReq := minCells(m)
	lo, hi := minReq, n-minReq
	if lo > hi {
		lo, hi = n/2, n/2
	}

	bestMargin := math.Inf(1)
	var bestOrder []int
	var bestK int

	for a := 0; a < dims; a++ {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sortIndicesByAxis(order, cells, a)

		totalMargin := 0.0
		localBestK := lo
		localBestOverlap := math.Inf(1)
		localBestArea := math.Inf(1)
		for k := lo; k <= hi; k++ {
			leftBox := unionIndices(cells, order[:k])
			rightBox := unionIndices(cells, order[k:])
			totalMargin += leftBox.margin() + rightBox.margin()
			ov := 0.0
			if ix, ok := intersect(leftBox, rightBox); ok {
				ov = ix.area()
			}
			ar := leftBox.area() + rightBox.area()
			if ov < localBestOverlap || (ov == localBestOverlap && ar < localBestArea) {
				localBestOverlap, localBestArea, localBestK = ov, ar, k
			}
		}

		if totalMargin < bestMargin {
			bestMargin = totalMargin
			bestOrder = order
			bestK = localBestK
		}
	}

	groupA = append([]int(nil), bestOrder[:bestK]...)
	groupB = append([]int(nil), bestOrder[bestK:]...)
	return groupA, groupB
}

func sortIndicesByAxis(order []int, cells []Cell, axis int) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0; j-- {
			a, b := cells[order[j-1]].Box, cells[order[j]].Box
			if a.min(axis) < b.min(axis) || (a.min(axis) == b.min(axis) && a.max(axis) <= b.max(axis)) {
				break
			}
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}

func unionIndices(cells []Cell, idxs []int) Rect {
	box := make(Rect, len(cells[idxs[0]].Box))
	copy(box, cells[idxs[0]].Box)
	for _, i := range idxs[1:] {
		box.union(cells[i].Box)
	}
	return box
}
