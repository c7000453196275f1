package rtree

// This file is the update dispatch entry point (spec.md §4.8): the single
// write path a host transaction layer drives for insert, delete, and
// replace.

// UpdateOp is one operand vector passed to Update. OldRowid and NewRowid
// are pointers so nil distinguishes "not supplied" from rowid 0.
type UpdateOp struct {
	OldRowid *int64
	NewRowid *int64
	Box      Rect // nil for a pure delete
}

// Update applies one operand vector: a pure delete (OldRowid set, Box nil),
// or an insert/replace (Box set; NewRowid auto-generated when nil). It
// returns the rowid written, or 0 for a pure delete.
func (idx *Index) Update(op UpdateOp) (int64, error) {
	idx.pool.reinsertH = -1

	if op.Box == nil {
		if op.OldRowid == nil {
			return 0, constraintf("update: delete requires an old rowid")
		}
		if _, err := idx.deleteRowid(*op.OldRowid); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if !op.Box.valid() {
		return 0, constraintf("update: min > max on some axis")
	}
	box := roundRect(op.Box, idx.coordType)

	newRowid, hasNew := int64(0), false
	if op.NewRowid != nil {
		newRowid, hasNew = *op.NewRowid, true
	}

	if hasNew {
		if _, ok, err := idx.store.ReadRowid(newRowid); err != nil {
			return 0, ioErr("checking rowid", err)
		} else if ok {
			switch idx.conflict {
			case ConflictReplace:
				if _, err := idx.deleteRowid(newRowid); err != nil {
					return 0, err
				}
			default:
				return 0, constraintf("update: rowid %d already present", newRowid)
			}
		}
	}

	if op.OldRowid != nil {
		if _, err := idx.deleteRowid(*op.OldRowid); err != nil {
			return 0, err
		}
	}

	if !hasNew {
		gen, err := idx.nextRowid()
		if err != nil {
			return 0, err
		}
		newRowid = gen
	}

	idx.pool.reinsertH = -1
	if err := idx.insertNewCell(Cell{Key: newRowid, Box: box}); err != nil {
		return 0, err
	}
	return newRowid, nil
}

// nextRowid auto-generates a rowid: it advances the pool's in-memory
// rowidSeq (0 for a freshly opened Index) by one and keeps probing upward
// until the rowid table has no entry for it. The sequence is not persisted,
// and explicit rowids above it do not move it forward; the probe only skips
// rowids that are already present.
func (idx *Index) nextRowid() (int64, error) {
	idx.pool.rowidSeq++
	for {
		_, ok, err := idx.store.ReadRowid(idx.pool.rowidSeq)
		if err != nil {
			return 0, ioErr("probing rowid sequence", err)
		}
		if !ok {
			return idx.pool.rowidSeq, nil
		}
		idx.pool.rowidSeq++
	}
}
