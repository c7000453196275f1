package rtree

import (
	"strings"
	"testing"

	"github.com/rtreeindex/rtree/storemem"
)

func TestRtreeNodeFormatsCells(t *testing.T) {
	ndim := 2
	page := make([]byte, NodeHeaderSize+bytesPerCell(ndim)*2)
	setCellCount(page, 2)
	encodeCell(page, 0, Cell{Key: 1, Box: Rect{0, 1, 0, 1}}, CoordFloat32)
	encodeCell(page, 1, Cell{Key: 2, Box: Rect{2, 3, 2, 3}}, CoordFloat32)

	out, err := RtreeNode(ndim, page)
	if err != nil {
		t.Fatalf("RtreeNode: %v", err)
	}
	if !strings.HasPrefix(out, "{1 ") || !strings.Contains(out, "{2 ") {
		t.Fatalf("RtreeNode output = %q, want cells for rowid 1 and 2", out)
	}
}

func TestRtreeNodeRejectsShortBlob(t *testing.T) {
	if _, err := RtreeNode(2, []byte{0, 1}); err == nil {
		t.Fatal("expected error for truncated node blob")
	}
}

func TestRtreeDepth(t *testing.T) {
	page := make([]byte, NodeHeaderSize)
	setRootHeight(page, 4)
	depth, err := RtreeDepth(page)
	if err != nil {
		t.Fatalf("RtreeDepth: %v", err)
	}
	if depth != 4 {
		t.Fatalf("RtreeDepth = %d, want 4", depth)
	}
}

func TestRtreeDepthRejectsShortBlob(t *testing.T) {
	if _, err := RtreeDepth(nil); err == nil {
		t.Fatal("expected error for empty blob")
	}
}

func TestStatsOnPopulatedTree(t *testing.T) {
	idx := newTestIndex(t, SplitGuttmanQuadratic)
	const n = 250
	for i := int64(1); i <= n; i++ {
		insertBox(t, idx, i, box(float64(i), float64(i)+1, float64(i), float64(i)+1))
	}
	st, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.CellCount != n {
		t.Fatalf("CellCount = %d, want %d", st.CellCount, n)
	}
	if st.LeafCount == 0 {
		t.Fatal("expected at least one leaf")
	}
	if st.NodeCount < st.LeafCount {
		t.Fatalf("NodeCount %d < LeafCount %d", st.NodeCount, st.LeafCount)
	}
	if st.MinFanout < 0 || st.MinFanout > st.MaxFanout {
		t.Fatalf("bad fanout range [%d,%d]", st.MinFanout, st.MaxFanout)
	}
}

func TestStatsOnEmptyTree(t *testing.T) {
	idx := newTestIndex(t, SplitGuttmanQuadratic)
	st, err := idx.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.NodeCount != 1 || st.LeafCount != 1 || st.CellCount != 0 {
		t.Fatalf("Stats on empty tree = %+v, want one empty leaf root", st)
	}
}

func TestCheckCleanTree(t *testing.T) {
	idx := newTestIndex(t, SplitRStar)
	for i := int64(1); i <= 150; i++ {
		insertBox(t, idx, i, box(float64(i%20), float64(i%20)+1, float64(i%30), float64(i%30)+1))
	}
	if errs := idx.Check(nil); len(errs) != 0 {
		t.Fatalf("Check reported violations on a healthy tree: %v", errs)
	}
}

func TestCheckDetectsInvalidBox(t *testing.T) {
	idx, err := Create(Options{Name: "t", Dims: 1, Store: storemem.New()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rid := int64(1)
	if _, err := idx.Update(UpdateOp{NewRowid: &rid, Box: Rect{0, 1}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	blob, ok, err := idx.store.ReadNode(RootNodeID)
	if err != nil || !ok {
		t.Fatalf("ReadNode(root): ok=%v err=%v", ok, err)
	}
	// Corrupt the single cell's box to min > max directly in the page.
	encodeCell(blob, 0, Cell{Key: 1, Box: Rect{5, 1}}, idx.coordType)
	if _, err := idx.store.WriteNode(RootNodeID, blob); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	// The root was released back to the store (refs hit 0) when Update
	// returned, so Check's acquire below re-reads the corrupted page
	// rather than finding a still-cached, uncorrupted copy.

	errs := idx.Check(nil)
	if len(errs) == 0 {
		t.Fatal("expected Check to detect the corrupted box")
	}
}
