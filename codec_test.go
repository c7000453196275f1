package rtree

import "testing"

func TestBytesPerCellAndMaxCells(t *testing.T) {
	if got := bytesPerCell(2); got != 24 {
		t.Errorf("bytesPerCell(2) = %d, want 24", got)
	}
	if got := maxCells(4096-64, 2); got <= 0 || got > MaxCellsPerNode {
		t.Errorf("maxCells out of range: %d", got)
	}
}

func TestMinCells(t *testing.T) {
	cases := map[int]int{3: 1, 4: 2, 5: 2, 6: 2, 7: 3, 51: 17}
	for m, want := range cases {
		if got := minCells(m); got != want {
			t.Errorf("minCells(%d) = %d, want %d", m, got, want)
		}
	}
}

func TestCellRoundTrip(t *testing.T) {
	page := make([]byte, NodeHeaderSize+bytesPerCell(2)*4)
	c := Cell{Key: 42, Box: Rect{-1.5, 2.5, 0, 10}}
	encodeCell(page, 0, c, CoordFloat32)
	got := decodeCell(page, 0, 2, CoordFloat32)
	if got.Key != c.Key {
		t.Errorf("key = %d, want %d", got.Key, c.Key)
	}
	for i := range c.Box {
		if float32(got.Box[i]) != float32(c.Box[i]) {
			t.Errorf("box[%d] = %v, want %v", i, got.Box[i], c.Box[i])
		}
	}
}

func TestCellRoundTripInt32(t *testing.T) {
	page := make([]byte, NodeHeaderSize+bytesPerCell(1))
	c := Cell{Key: 7, Box: Rect{-100, 100}}
	encodeCell(page, 0, c, CoordInt32)
	got := decodeCell(page, 0, 1, CoordInt32)
	if got.Box[0] != -100 || got.Box[1] != 100 {
		t.Errorf("int32 round trip = %v, want [-100 100]", got.Box)
	}
}

func TestCellCountHeader(t *testing.T) {
	page := make([]byte, NodeHeaderSize)
	setCellCount(page, 9)
	if got := cellCount(page); got != 9 {
		t.Errorf("cellCount = %d, want 9", got)
	}
}

func TestRootHeightHeader(t *testing.T) {
	page := make([]byte, NodeHeaderSize)
	setRootHeight(page, 3)
	if got := rootHeight(page); got != 3 {
		t.Errorf("rootHeight = %d, want 3", got)
	}
}

func TestRoundMinMaxNeverShrink(t *testing.T) {
	vals := []float64{0, 1, -1, 0.1, -0.1, 123456.789, -123456.789}
	for _, v := range vals {
		if roundMin(v) > v {
			t.Errorf("roundMin(%v) = %v, grew above input", v, roundMin(v))
		}
		if roundMax(v) < v {
			t.Errorf("roundMax(%v) = %v, shrank below input", v, roundMax(v))
		}
	}
}

func TestRoundRectIntNoOp(t *testing.T) {
	r := Rect{1, 2, 3, 4}
	out := roundRect(r, CoordInt32)
	for i := range r {
		if out[i] != r[i] {
			t.Fatalf("roundRect for int32 must be a no-op, got %v", out)
		}
	}
}
