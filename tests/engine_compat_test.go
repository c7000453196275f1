//go:build cgo

// Package tests cross-checks the index engine against every cgo-gated
// backing-store adapter, the way the teacher's own tests package
// cross-checks gdbx against libmdbx opened through CGO.
package tests

import (
	"path/filepath"
	"testing"

	"github.com/rtreeindex/rtree"
	"github.com/rtreeindex/rtree/storebolt"
	"github.com/rtreeindex/rtree/storemdbx"
	"github.com/rtreeindex/rtree/storerocksdb"
)

// testStore opens a fresh store of the given kind under a temp directory,
// returning it plus a cleanup func.
func testStore(t *testing.T, kind string) (rtree.Store, func()) {
	t.Helper()
	dir := t.TempDir()
	switch kind {
	case "bolt":
		s, err := storebolt.Open(filepath.Join(dir, "idx.bolt"), "idx")
		if err != nil {
			t.Fatalf("storebolt.Open: %v", err)
		}
		return s, func() { s.Close() }
	case "mdbx":
		s, err := storemdbx.Open(dir, "idx")
		if err != nil {
			t.Fatalf("storemdbx.Open: %v", err)
		}
		return s, func() { s.Close() }
	case "rocksdb":
		s, err := storerocksdb.Open(filepath.Join(dir, "idx.rocks"), "idx")
		if err != nil {
			t.Fatalf("storerocksdb.Open: %v", err)
		}
		return s, func() { s.Close() }
	default:
		t.Fatalf("unknown store kind %q", kind)
		return nil, nil
	}
}

// populate inserts the same deterministic set of boxes into idx, returning
// the rowid->box map it wrote.
func populate(t *testing.T, idx *rtree.Index, n int) map[int64]rtree.Rect {
	t.Helper()
	want := map[int64]rtree.Rect{}
	for i := int64(1); i <= int64(n); i++ {
		x := float64(i % 37)
		y := float64(i % 53)
		b := rtree.Rect{x, x + 1, y, y + 1}
		rid := i
		if _, err := idx.Update(rtree.UpdateOp{NewRowid: &rid, Box: b}); err != nil {
			t.Fatalf("Update(insert %d): %v", i, err)
		}
		want[i] = b
	}
	return want
}

// scan drains a strategy-2 cursor with no constraints into a rowid->box map.
func scan(t *testing.T, idx *rtree.Index) map[int64]rtree.Rect {
	t.Helper()
	cur := idx.NewCursor(2, nil)
	if err := cur.Open(0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()
	out := map[int64]rtree.Rect{}
	for cur.Valid() {
		c := cur.Cell()
		out[c.Key] = c.Box
		if err := cur.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	return out
}

func runEngineCompat(t *testing.T, kind string) {
	store, cleanup := testStore(t, kind)
	defer cleanup()

	idx, err := rtree.Create(rtree.Options{Name: "idx", Dims: 2, Store: store})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer idx.Close()

	const n = 400
	want := populate(t, idx, n)
	got := scan(t, idx)

	if len(got) != len(want) {
		t.Fatalf("%s: scanned %d rows, want %d", kind, len(got), len(want))
	}
	for rid, wb := range want {
		gb, ok := got[rid]
		if !ok {
			t.Fatalf("%s: missing rowid %d", kind, rid)
		}
		for i := range wb {
			if float32(gb[i]) != float32(wb[i]) {
				t.Fatalf("%s: rowid %d box = %v, want %v", kind, rid, gb, wb)
			}
		}
	}
	if errs := idx.Check(nil); len(errs) != 0 {
		t.Fatalf("%s: Check found violations: %v", kind, errs)
	}
}

func TestEngineCompatBolt(t *testing.T)    { runEngineCompat(t, "bolt") }
func TestEngineCompatMDBX(t *testing.T)    { runEngineCompat(t, "mdbx") }
func TestEngineCompatRocksDB(t *testing.T) { runEngineCompat(t, "rocksdb") }

// TestEngineCompatAllIdentical runs the identical deterministic insert
// script against all three engines and checks they land on exactly the
// same rowid->box map, the way the teacher's compat tests check gdbx and
// libmdbx agree byte for byte on the same database.
func TestEngineCompatAllIdentical(t *testing.T) {
	kinds := []string{"bolt", "mdbx", "rocksdb"}
	results := make([]map[int64]rtree.Rect, len(kinds))
	for i, kind := range kinds {
		store, cleanup := testStore(t, kind)
		idx, err := rtree.Create(rtree.Options{Name: "idx", Dims: 2, Store: store})
		if err != nil {
			cleanup()
			t.Fatalf("%s: Create: %v", kind, err)
		}
		populate(t, idx, 150)
		results[i] = scan(t, idx)
		idx.Close()
		cleanup()
	}
	base := results[0]
	for i := 1; i < len(results); i++ {
		if len(results[i]) != len(base) {
			t.Fatalf("%s disagrees with %s on row count: %d vs %d", kinds[i], kinds[0], len(results[i]), len(base))
		}
		for rid, wb := range base {
			gb, ok := results[i][rid]
			if !ok {
				t.Fatalf("%s missing rowid %d present under %s", kinds[i], rid, kinds[0])
			}
			for k := range wb {
				if float32(gb[k]) != float32(wb[k]) {
					t.Fatalf("%s rowid %d box = %v, %s has %v", kinds[i], rid, gb, kinds[0], wb)
				}
			}
		}
	}
}
