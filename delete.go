package rtree

// This file is the deletion engine (spec.md §4.7): locate the leaf holding
// a rowid, remove its cell, condense under-full ancestors by detaching
// them to a deferred list, collapse a single-child root, and finally
// reinsert every orphaned node's surviving cells from scratch.

// deleteRowid removes rowid from the index, or reports it was absent.
func (idx *Index) deleteRowid(rowid int64) (found bool, err error) {
	idx.pool.reinsertH = -1

	nodeID, ok, err := idx.store.ReadRowid(rowid)
	if err != nil {
		return false, ioErr("reading rowid", err)
	}
	if !ok {
		return false, nil
	}

	leaf, err := idx.pool.acquire(nodeID, nil)
	if err != nil {
		return false, err
	}
	if err := idx.ensureParentChain(leaf); err != nil {
		idx.pool.release(leaf)
		return false, err
	}

	if err := idx.deleteCell(leaf, 0, rowid); err != nil {
		idx.pool.release(leaf)
		return false, err
	}
	if err := idx.pool.release(leaf); err != nil {
		return false, err
	}

	if err := idx.collapseRoot(); err != nil {
		return false, err
	}
	if err := idx.drainOrphans(); err != nil {
		return false, err
	}
	return true, nil
}

// deleteCell removes the cell keyed by key from node (at the given height),
// then condenses: if node is now under-full and not the root, it is
// detached from its parent and pushed onto the deferred orphan list instead
// of being patched in place (§4.7 "delete_cell"). Otherwise node's
// remaining bounding box is propagated upward.
func (idx *Index) deleteCell(node *memNode, height int, key int64) error {
	n := node.count()
	found := -1
	for i := 0; i < n; i++ {
		if node.cellAt(i, idx.dims, idx.coordType).Key == key {
			found = i
			break
		}
	}
	if found < 0 {
		return corruptf("node %d: cell %d not found for delete", node.id, key)
	}

	for i := found; i < n-1; i++ {
		node.setCellAt(i, node.cellAt(i+1, idx.dims, idx.coordType), idx.coordType)
	}
	node.setCount(n - 1)
	node.dirty = true

	if height == 0 {
		if err := idx.store.DeleteRowid(key); err != nil {
			return ioErr("deleting rowid", err)
		}
	} else {
		if err := idx.store.DeleteParent(key); err != nil {
			return ioErr("deleting parent", err)
		}
	}

	if node.id == RootNodeID {
		return nil
	}

	if node.count() < minCells(idx.m) {
		return idx.detachUnderfull(node, height)
	}
	return idx.syncBBoxUpward(node)
}

// detachUnderfull removes node's cell from its parent, recursively
// condensing the parent in turn, and pushes node onto the deferred orphan
// list keyed by its height so its surviving cells can be reinserted from
// scratch once the whole condensation pass settles (§4.7).
func (idx *Index) detachUnderfull(node *memNode, height int) error {
	parent := node.parent
	if parent == nil {
		return corruptf("node %d: under-full non-root with no parent link", node.id)
	}
	ci := idx.findChildCell(parent, node.id)
	if ci < 0 {
		return corruptf("parent %d: no cell for child %d", parent.id, node.id)
	}
	n := parent.count()
	for i := ci; i < n-1; i++ {
		parent.setCellAt(i, parent.cellAt(i+1, idx.dims, idx.coordType), idx.coordType)
	}
	parent.setCount(n - 1)
	parent.dirty = true
	if err := idx.store.DeleteParent(node.id); err != nil {
		return ioErr("deleting parent", err)
	}

	// The deleted list holds its own reference on node, so no release
	// flushes the page under the height now stored in its id; node's
	// parent link keeps parent pinned until drainOrphans releases it.
	idx.pool.busy++
	idx.pool.hashDelete(node)
	node.refs++
	idx.pool.pushDeleted(node, height)

	if parent.id != RootNodeID && parent.count() < minCells(idx.m) {
		return idx.detachUnderfull(parent, height+1)
	}
	return idx.syncBBoxUpward(parent)
}

// collapseRoot implements "if, after condensation, the root has exactly one
// child and height > 0, replace the root's contents with that child's and
// decrement height" (§4.7).
func (idx *Index) collapseRoot() error {
	for {
		root, err := idx.pool.acquire(RootNodeID, nil)
		if err != nil {
			return err
		}
		h := rootHeight(root.page)
		if h == 0 || root.count() != 1 {
			return idx.pool.release(root)
		}

		child, err := idx.pool.acquire(root.cellAt(0, idx.dims, idx.coordType).Key, nil)
		if err != nil {
			idx.pool.release(root)
			return err
		}

		n := child.count()
		zeroPage(root.page)
		for i := 0; i < n; i++ {
			root.setCellAt(i, child.cellAt(i, idx.dims, idx.coordType), idx.coordType)
		}
		root.setCount(n)
		setRootHeight(root.page, h-1)
		root.dirty = true
		idx.pool.cachedH = h - 1

		// Re-point every surviving cell's mapping at the root, and reparent
		// any live in-memory children of the old child onto the root.
		for i := 0; i < n; i++ {
			c := root.cellAt(i, idx.dims, idx.coordType)
			if err := idx.writeCellMapping(c.Key, root, h-1); err != nil {
				idx.pool.release(child)
				idx.pool.release(root)
				return err
			}
			if grand := idx.pool.hashLookup(c.Key); grand != nil && grand.parent == child {
				grand.parent = root
				root.refs++
				child.refs--
			}
		}

		if err := idx.store.DeleteNode(child.id); err != nil {
			idx.pool.release(child)
			idx.pool.release(root)
			return ioErr("deleting collapsed child", err)
		}
		idx.pool.hashDelete(child)
		child.id = 0 // orphaned placeholder, never flushed again
		child.dirty = false
		if err := idx.pool.release(child); err != nil {
			idx.pool.release(root)
			return err
		}
		if err := idx.pool.release(root); err != nil {
			return err
		}
	}
}

// drainOrphans reinserts every surviving cell of every node on the deferred
// orphan list from scratch, via choose_leaf at that cell's own height
// (§4.7's closing step), then discards the emptied orphan shells.
func (idx *Index) drainOrphans() error {
	for {
		orphan := idx.pool.popDeleted()
		if orphan == nil {
			break
		}
		height := int(orphan.id)
		n := orphan.count()
		for i := 0; i < n; i++ {
			c := orphan.cellAt(i, idx.dims, idx.coordType).clone()
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
		idx.pool.busy--
		if orphan.parent != nil {
			if err := idx.pool.release(orphan.parent); err != nil {
				return err
			}
			orphan.parent = nil
		}
	}
	return nil
}
