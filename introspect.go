package rtree

import (
	"fmt"
	"strconv"
	"strings"
)

// This file is the introspection surface: the rtreenode/rtreedepth scalar
// helpers of spec.md §6, plus the supplemented Stats/Check diagnostics
// that read the whole tree without mutating it.

// RtreeNode decodes a raw page blob and formats each cell as
// "{rowid coord0 coord1 ...}" separated by spaces (§6).
func RtreeNode(ndim int, blob []byte) (string, error) {
	if err := validateDims(ndim); err != nil {
		return "", err
	}
	bpc := bytesPerCell(ndim)
	if len(blob) < NodeHeaderSize {
		return "", argumentf("rtreenode: blob too short")
	}
	n := cellCount(blob)
	if NodeHeaderSize+n*bpc > len(blob) {
		return "", corruptf("rtreenode: cell count %d overruns blob of %d bytes", n, len(blob))
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		c := decodeCell(blob, i, ndim, CoordFloat32)
		b.WriteByte('{')
		b.WriteString(strconv.FormatInt(c.Key, 10))
		for _, v := range c.Box {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte('}')
	}
	return b.String(), nil
}

// RtreeDepth returns the big-endian 16-bit value at offset 0 of blob (§6).
func RtreeDepth(blob []byte) (int, error) {
	if len(blob) < 2 {
		return 0, argumentf("rtreedepth: blob too short")
	}
	return int(readI16(blob[0:2])), nil
}

// Stats reports simple tree-shape diagnostics, read without mutating the
// index.
type Stats struct {
	Height     int
	NodeCount  int
	LeafCount  int
	CellCount  int
	MinFanout  int
	MaxFanout  int
}

// Stats walks the whole tree once and summarizes its shape.
func (idx *Index) Stats() (Stats, error) {
	height, err := idx.Height()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Height: height, MinFanout: -1}
	root, err := idx.pool.acquire(RootNodeID, nil)
	if err != nil {
		return Stats{}, err
	}
	err = idx.walkStats(root, height, &st)
	if rerr := idx.pool.release(root); err == nil {
		err = rerr
	}
	return st, err
}

func (idx *Index) walkStats(node *memNode, height int, st *Stats) error {
	n := node.count()
	st.NodeCount++
	if st.MinFanout < 0 || n < st.MinFanout {
		st.MinFanout = n
	}
	if n > st.MaxFanout {
		st.MaxFanout = n
	}
	if height == 0 {
		st.LeafCount++
		st.CellCount += n
		return nil
	}
	for i := 0; i < n; i++ {
		cell := node.cellAt(i, idx.dims, idx.coordType)
		child, err := idx.pool.acquire(cell.Key, node)
		if err != nil {
			return err
		}
		err = idx.walkStats(child, height-1, st)
		if rerr := idx.pool.release(child); err == nil {
			err = rerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Check walks the whole tree and returns every violation it finds of these
// rules: each cell's box has min <= max on every axis, each non-root node
// holds between minCells(M) and M cells, and each child's cells lie inside
// the box its parent records for it. It does not consult the rowid or
// parent tables, and it does not check that a recorded box is the minimal
// enclosing one. It never mutates the index.
func (idx *Index) Check(ctx interface{}) []error {
	var errs []error
	height, err := idx.Height()
	if err != nil {
		return []error{err}
	}
	root, err := idx.pool.acquire(RootNodeID, nil)
	if err != nil {
		return []error{err}
	}
	idx.walkCheck(root, height, nil, &errs)
	if err := idx.pool.release(root); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (idx *Index) walkCheck(node *memNode, height int, ownBox Rect, errs *[]error) {
	n := node.count()
	if node.id != RootNodeID && n < minCells(idx.m) {
		*errs = append(*errs, corruptf("node %d: %d cells, below minimum %d", node.id, n, minCells(idx.m)))
	}
	if n > idx.m {
		*errs = append(*errs, corruptf("node %d: %d cells exceeds M=%d", node.id, n, idx.m))
	}
	for i := 0; i < n; i++ {
		cell := node.cellAt(i, idx.dims, idx.coordType)
		if !cell.Box.valid() {
			*errs = append(*errs, corruptf("node %d cell %d: min > max", node.id, i))
		}
		if ownBox != nil && !ownBox.contains(cell.Box) {
			*errs = append(*errs, corruptf("node %d cell %d: not contained in parent's recorded box", node.id, i))
		}
		if height == 0 {
			continue
		}
		child, err := idx.pool.acquire(cell.Key, node)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("node %d cell %d: %w", node.id, i, err))
			continue
		}
		idx.walkCheck(child, height-1, cell.Box, errs)
		if err := idx.pool.release(child); err != nil {
			*errs = append(*errs, err)
		}
	}
}
